package source

import (
	"fmt"

	"github.com/calvinalkan/blobcache/pkg/blobcache"
)

// MaxNameLength bounds file names accepted by [OpenNamed].
const MaxNameLength = 1024

// FromMemory opens a blob over an in-memory buffer against the given
// cache. The buffer is shared, not copied.
//
// Possible errors: [blobcache.ErrInvalid], [blobcache.ErrAccess].
func FromMemory(cache *blobcache.Cache, buf []byte, mode blobcache.Mode) (*blobcache.Blob, error) {
	if cache == nil {
		return nil, fmt.Errorf("no cache: %w", blobcache.ErrInvalid)
	}

	return cache.Create(NewBytes(buf, mode.Writable()), mode, MemoryMethods)
}

// OpenNamed opens a blob over the named file against the process-wide
// default store. The name is length-bounded; [blobcache.Init] must have
// run.
//
// Possible errors: [blobcache.ErrInvalid], [blobcache.ErrAccess],
// [blobcache.ErrIO].
func OpenNamed(name string, mode blobcache.Mode) (*blobcache.Blob, error) {
	if name == "" || len(name) > MaxNameLength {
		return nil, fmt.Errorf("file name length %d: %w", len(name), blobcache.ErrInvalid)
	}

	store := blobcache.DefaultStore()
	if store == nil {
		return nil, fmt.Errorf("blob store not initialised: %w", blobcache.ErrInvalid)
	}

	return store.Create(&File{Path: name}, mode, FileMethods)
}
