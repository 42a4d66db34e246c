package source

import (
	"fmt"
	"unsafe"

	"github.com/calvinalkan/blobcache/pkg/blobcache"
)

// Bytes is an in-memory source identity over one contiguous buffer.
// Two Bytes values over the same backing array with the same start and
// length are the same source.
type Bytes struct {
	data     []byte
	writable bool
}

// NewBytes creates a source identity over buf. The buffer is shared,
// not copied; cached frames may alias it directly.
func NewBytes(buf []byte, writable bool) *Bytes {
	return &Bytes{data: buf, writable: writable}
}

// CanWrite reports whether the identity permits writing.
func (b *Bytes) CanWrite() bool { return b.writable }

// AllowWrite widens the identity to permit writing.
func (b *Bytes) AllowWrite() { b.writable = true }

// MemoryMethods is the method table for [Bytes] sources.
var MemoryMethods blobcache.Methods = memoryMethods{}

type memoryMethods struct{}

func (memoryMethods) Same(a, b blobcache.Source) bool {
	ba, aok := a.(*Bytes)
	bb, bok := b.(*Bytes)

	return aok && bok && len(ba.data) == len(bb.data) &&
		unsafe.SliceData(ba.data) == unsafe.SliceData(bb.data)
}

func (memoryMethods) Create(blobcache.Source) (any, error) { return nil, nil }

func (memoryMethods) Destroy(blobcache.Source, any) {}

func (memoryMethods) Open(blobcache.Source, any, blobcache.Mode) error { return nil }

func (memoryMethods) Close(blobcache.Source, any) {}

// Available serves the whole remaining buffer without copying.
func (memoryMethods) Available(src blobcache.Source, _ any, offset uint64) []byte {
	b := src.(*Bytes)
	if offset >= uint64(len(b.data)) {
		return nil
	}

	return b.data[offset:]
}

func (memoryMethods) ReadAt(src blobcache.Source, _ any, dst []byte, offset uint64) int {
	b := src.(*Bytes)
	if offset >= uint64(len(b.data)) {
		return 0
	}

	return copy(dst, b.data[offset:])
}

func (memoryMethods) WriteAt(src blobcache.Source, _ any, data []byte, offset uint64) error {
	b := src.(*Bytes)
	if !b.writable {
		return fmt.Errorf("memory source is read-only: %w", blobcache.ErrAccess)
	}

	end := offset + uint64(len(data))
	if end > uint64(len(b.data)) {
		return fmt.Errorf("write past end of fixed buffer: %w", blobcache.ErrEndOfData)
	}

	copy(b.data[offset:], data)

	return nil
}

func (memoryMethods) Length(src blobcache.Source, _ any) (uint64, error) {
	return uint64(len(src.(*Bytes).data)), nil
}

func (memoryMethods) Protection(blobcache.Source, any) blobcache.Protection {
	return blobcache.ProtectionNone
}

// Restored reports the buffer gone: memory sources live in host VM and
// cannot outlive their save level.
func (memoryMethods) Restored(blobcache.Source, any, int) blobcache.Source { return nil }

// Regenerable marks memory sources as cheap to rebuild, so purge drops
// their blocks unconditionally.
func (memoryMethods) Regenerable() bool { return true }
