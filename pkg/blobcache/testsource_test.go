package blobcache_test

import (
	"errors"
	"unsafe"

	"github.com/calvinalkan/blobcache/pkg/blobcache"
)

// fakeSource is a controllable in-memory source identity for tests.
type fakeSource struct {
	name     string
	data     []byte
	writable bool
}

func (s *fakeSource) CanWrite() bool { return s.writable }
func (s *fakeSource) AllowWrite()    { s.writable = true }

var errFakeWrite = errors.New("fake source: write rejected")

// fakeMethods is a fully observable method table. The pointer is the
// table's identity, so distinct tables never match each other's
// entries.
type fakeMethods struct {
	zeroCopy  bool // serve Available straight from the source bytes
	regen     bool
	shortRead int // cap on bytes per ReadAt; 0 means unlimited

	failOpen  error // returned by the next Open when set
	protect   blobcache.Protection
	restored  func(src blobcache.Source, saveLevel int) blobcache.Source
	surviving bool // Restored keeps the identity as-is

	creates  int
	destroys int
	opens    int
	closes   int
	reads    int
	writes   int
	sessions int // currently open sessions
}

func (m *fakeMethods) Same(a, b blobcache.Source) bool {
	fa, aok := a.(*fakeSource)
	fb, bok := b.(*fakeSource)

	return aok && bok && fa.name == fb.name
}

func (m *fakeMethods) Create(blobcache.Source) (any, error) {
	m.creates++

	return nil, nil
}

func (m *fakeMethods) Destroy(blobcache.Source, any) {
	m.destroys++
}

func (m *fakeMethods) Open(blobcache.Source, any, blobcache.Mode) error {
	m.opens++

	if m.failOpen != nil {
		err := m.failOpen
		m.failOpen = nil

		return err
	}

	m.sessions++

	return nil
}

func (m *fakeMethods) Close(blobcache.Source, any) {
	m.closes++
	m.sessions--
}

func (m *fakeMethods) Available(src blobcache.Source, _ any, offset uint64) []byte {
	if !m.zeroCopy {
		return nil
	}

	s := src.(*fakeSource)
	if offset >= uint64(len(s.data)) {
		return nil
	}

	return s.data[offset:]
}

func (m *fakeMethods) ReadAt(src blobcache.Source, _ any, dst []byte, offset uint64) int {
	m.reads++

	s := src.(*fakeSource)
	if offset >= uint64(len(s.data)) {
		return 0
	}

	n := copy(dst, s.data[offset:])
	if m.shortRead > 0 && n > m.shortRead {
		n = m.shortRead
	}

	return n
}

func (m *fakeMethods) WriteAt(src blobcache.Source, _ any, data []byte, offset uint64) error {
	m.writes++

	s := src.(*fakeSource)
	if !s.writable {
		return errFakeWrite
	}

	end := offset + uint64(len(data))
	for uint64(len(s.data)) < end {
		s.data = append(s.data, 0)
	}

	copy(s.data[offset:], data)

	return nil
}

func (m *fakeMethods) Length(src blobcache.Source, _ any) (uint64, error) {
	return uint64(len(src.(*fakeSource).data)), nil
}

func (m *fakeMethods) Protection(blobcache.Source, any) blobcache.Protection {
	return m.protect
}

func (m *fakeMethods) Restored(src blobcache.Source, _ any, saveLevel int) blobcache.Source {
	if m.restored != nil {
		return m.restored(src, saveLevel)
	}

	if m.surviving {
		return src
	}

	return nil
}

func (m *fakeMethods) Regenerable() bool { return m.regen }

// patterned returns n bytes of content [i mod 256].
func patterned(n int) []byte {
	data := make([]byte, n)
	for i := range data {
		data[i] = byte(i % 256)
	}

	return data
}

// alignedTo reports whether the frame's base address satisfies the
// alignment.
func alignedTo(frame []byte, alignment int) bool {
	return uintptr(unsafe.Pointer(unsafe.SliceData(frame)))&uintptr(alignment-1) == 0
}

// sameBase reports whether two frames share a base address.
func sameBase(a, b []byte) bool {
	return unsafe.SliceData(a) == unsafe.SliceData(b)
}

// testCache creates a cache with the given sizing, failing the test on
// error and destroying the cache on cleanup.
type cacheOpts struct {
	limit int
	alloc int
	read  int
	trim  int
}

func testCache(t testingT, o cacheOpts) *blobcache.Cache {
	t.Helper()

	c, err := blobcache.New(blobcache.Config{
		Name:         "test",
		DataLimit:    o.limit,
		AllocQuantum: o.alloc,
		ReadQuantum:  o.read,
		TrimLimit:    o.trim,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	t.Cleanup(c.Destroy)

	return c
}

// testingT is the subset of *testing.T the helpers need.
type testingT interface {
	Helper()
	Fatalf(format string, args ...any)
	Cleanup(func())
}
