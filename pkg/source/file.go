package source

import (
	"fmt"
	"io"
	"os"

	"github.com/calvinalkan/blobcache/pkg/blobcache"
	"golang.org/x/sys/unix"
)

// File is a source identity naming a file on the filesystem. Two File
// values with the same path are the same source.
type File struct {
	Path string
}

// fileState is the method-private state of an open file source.
type fileState struct {
	f      *os.File
	mapped []byte // read-only mmap window over the file at open time
	locked bool   // holds an flock for exclusive mode
}

// FileMethods is the method table for [File] sources. Readable files
// are memory-mapped on open, so frames within the mapped window are
// zero-copy; exclusive mode takes a non-blocking flock on the file.
var FileMethods blobcache.Methods = fileMethods{}

type fileMethods struct{}

func (fileMethods) Same(a, b blobcache.Source) bool {
	fa, aok := a.(*File)
	fb, bok := b.(*File)

	return aok && bok && fa.Path == fb.Path
}

func (fileMethods) Create(blobcache.Source) (any, error) {
	return &fileState{}, nil
}

func (fileMethods) Destroy(_ blobcache.Source, private any) {
	st := private.(*fileState)
	if st.f != nil {
		closeState(st)
	}
}

func openFlags(mode blobcache.Mode) int {
	var flags int

	switch {
	case mode&blobcache.ModeReadWrite != 0:
		flags = os.O_RDWR
	case mode&blobcache.ModeWrite != 0:
		flags = os.O_WRONLY
	default:
		flags = os.O_RDONLY
	}

	if mode&blobcache.ModeAppend != 0 {
		flags |= os.O_APPEND
	}

	if mode&blobcache.ModeTruncate != 0 {
		flags |= os.O_TRUNC
	}

	if mode&blobcache.ModeCreate != 0 {
		flags |= os.O_CREATE
	}

	return flags
}

func (fileMethods) Open(src blobcache.Source, private any, mode blobcache.Mode) error {
	fs := src.(*File)
	st := private.(*fileState)

	f, err := os.OpenFile(fs.Path, openFlags(mode), 0o644)
	if err != nil {
		return fmt.Errorf("open %s: %w", fs.Path, blobcache.ErrIO)
	}

	if mode&blobcache.ModeExclusive != 0 {
		err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB)
		if err != nil {
			_ = f.Close()

			return fmt.Errorf("lock %s: %w", fs.Path, blobcache.ErrAccess)
		}

		st.locked = true
	}

	st.f = f

	// Map readable files for zero-copy frames. Not being able to map
	// is not an error; reads still work through the descriptor.
	if mode.Readable() {
		if info, err := f.Stat(); err == nil && info.Size() > 0 {
			data, err := unix.Mmap(int(f.Fd()), 0, int(info.Size()),
				unix.PROT_READ, unix.MAP_SHARED)
			if err == nil {
				st.mapped = data
			}
		}
	}

	return nil
}

func closeState(st *fileState) {
	if st.mapped != nil {
		_ = unix.Munmap(st.mapped)
		st.mapped = nil
	}

	if st.locked {
		_ = unix.Flock(int(st.f.Fd()), unix.LOCK_UN)
		st.locked = false
	}

	_ = st.f.Close()
	st.f = nil
}

func (fileMethods) Close(_ blobcache.Source, private any) {
	st := private.(*fileState)
	if st.f != nil {
		closeState(st)
	}
}

// Available serves the remainder of the mmap window. The window covers
// the file's size at open time; bytes appended later are reached
// through ReadAt instead.
func (fileMethods) Available(_ blobcache.Source, private any, offset uint64) []byte {
	st := private.(*fileState)
	if st.mapped == nil || offset >= uint64(len(st.mapped)) {
		return nil
	}

	return st.mapped[offset:]
}

func (fileMethods) ReadAt(_ blobcache.Source, private any, dst []byte, offset uint64) int {
	st := private.(*fileState)
	if st.f == nil {
		return 0
	}

	n, err := st.f.ReadAt(dst, int64(offset))
	if err != nil && err != io.EOF {
		return 0
	}

	return n
}

func (fileMethods) WriteAt(_ blobcache.Source, private any, data []byte, offset uint64) error {
	st := private.(*fileState)
	if st.f == nil {
		return fmt.Errorf("file not open: %w", blobcache.ErrIO)
	}

	if _, err := st.f.WriteAt(data, int64(offset)); err != nil {
		return fmt.Errorf("write: %w", blobcache.ErrIO)
	}

	return nil
}

func (fileMethods) Length(_ blobcache.Source, private any) (uint64, error) {
	st := private.(*fileState)
	if st.f == nil {
		return 0, fmt.Errorf("file not open: %w", blobcache.ErrIO)
	}

	info, err := st.f.Stat()
	if err != nil {
		return 0, fmt.Errorf("stat: %w", blobcache.ErrIO)
	}

	return uint64(info.Size()), nil
}

func (fileMethods) Protection(blobcache.Source, any) blobcache.Protection {
	return blobcache.ProtectionNone
}

// Restored keeps the identity: files live outside host VM and survive
// every save level.
func (fileMethods) Restored(src blobcache.Source, _ any, _ int) blobcache.Source {
	return src
}
