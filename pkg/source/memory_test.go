package source_test

import (
	"bytes"
	"errors"
	"io"
	"testing"
	"unsafe"

	"github.com/calvinalkan/blobcache/pkg/blobcache"
	"github.com/calvinalkan/blobcache/pkg/source"
)

func testCache(t *testing.T) *blobcache.Cache {
	t.Helper()

	c, err := blobcache.New(blobcache.Config{
		Name:         "source-test",
		DataLimit:    1 << 20,
		AllocQuantum: 4096,
		ReadQuantum:  4096,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	t.Cleanup(c.Destroy)

	return c
}

func pattern(n int) []byte {
	data := make([]byte, n)
	for i := range data {
		data[i] = byte(i % 251)
	}

	return data
}

func TestMemory_FramesAliasTheBuffer(t *testing.T) {
	c := testCache(t)

	buf := pattern(10000)

	blob, err := source.FromMemory(c, buf, blobcache.ModeRead)
	if err != nil {
		t.Fatalf("FromMemory: %v", err)
	}
	defer blob.Close()

	m, err := blob.MapOpen()
	if err != nil {
		t.Fatalf("MapOpen: %v", err)
	}
	defer m.Close()

	frame, err := m.Region(16, 100, 1)
	if err != nil {
		t.Fatalf("Region: %v", err)
	}

	if !bytes.Equal(frame, buf[16:116]) {
		t.Fatal("frame content mismatch")
	}

	// The memory source offers zero-copy views, so an aligned frame
	// points straight into the caller's buffer.
	if unsafe.SliceData(frame) != unsafe.SliceData(buf[16:]) {
		t.Fatal("aligned frame did not alias the source buffer")
	}
}

func TestMemory_ReadAndSeek(t *testing.T) {
	c := testCache(t)

	buf := pattern(500)

	blob, err := source.FromMemory(c, buf, blobcache.ModeRead)
	if err != nil {
		t.Fatalf("FromMemory: %v", err)
	}
	defer blob.Close()

	if err := blob.Seek(-100, io.SeekEnd); err != nil {
		t.Fatalf("Seek: %v", err)
	}

	got := make([]byte, 100)

	n, err := blob.Read(got)
	if err != nil || n != 100 {
		t.Fatalf("Read = %d, %v", n, err)
	}

	if !bytes.Equal(got, buf[400:]) {
		t.Fatal("read content mismatch")
	}

	if _, err := blob.Read(got); !errors.Is(err, blobcache.ErrEndOfData) {
		t.Fatalf("Read at end = %v, want ErrEndOfData", err)
	}
}

func TestMemory_WriteRequiresWritableMode(t *testing.T) {
	c := testCache(t)

	blob, err := source.FromMemory(c, pattern(100), blobcache.ModeRead)
	if err != nil {
		t.Fatalf("FromMemory: %v", err)
	}
	defer blob.Close()

	if err := blob.Write([]byte{1}); !errors.Is(err, blobcache.ErrAccess) {
		t.Fatalf("Write on read-only blob = %v, want ErrAccess", err)
	}
}

func TestMemory_WriteThrough(t *testing.T) {
	c := testCache(t)

	buf := pattern(100)

	blob, err := source.FromMemory(c, buf, blobcache.ModeReadWrite)
	if err != nil {
		t.Fatalf("FromMemory: %v", err)
	}
	defer blob.Close()

	if err := blob.Write([]byte{0xAA, 0xBB}); err != nil {
		t.Fatalf("Write: %v", err)
	}

	if buf[0] != 0xAA || buf[1] != 0xBB {
		t.Fatal("write did not reach the buffer")
	}

	// Writes cannot grow a fixed buffer.
	if err := blob.Seek(0, io.SeekEnd); err != nil {
		t.Fatalf("Seek: %v", err)
	}

	if err := blob.Write([]byte{1}); !errors.Is(err, blobcache.ErrEndOfData) {
		t.Fatalf("Write past fixed end = %v, want ErrEndOfData", err)
	}
}

func TestMemory_SameBufferSharesEntry(t *testing.T) {
	c := testCache(t)

	buf := pattern(100)

	b1, err := source.FromMemory(c, buf, blobcache.ModeRead)
	if err != nil {
		t.Fatalf("FromMemory: %v", err)
	}
	defer b1.Close()

	// A second blob over the same backing array must share the entry,
	// which shows up as a single cache entry.
	b2, err := c.Create(source.NewBytes(buf, false), blobcache.ModeRead, source.MemoryMethods)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer b2.Close()

	s := c.Stats()
	if s.Entries != 1 {
		t.Fatalf("entries = %d, want shared entry", s.Entries)
	}
}

func TestSegments_FramesAssembleAcrossBoundaries(t *testing.T) {
	c := testCache(t)

	full := pattern(900)
	segs := source.NewSegments([][]byte{full[:300], full[300:600], full[600:]})

	blob, err := c.Create(segs, blobcache.ModeRead, source.SegmentsMethods)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer blob.Close()

	m, err := blob.MapOpen()
	if err != nil {
		t.Fatalf("MapOpen: %v", err)
	}
	defer m.Close()

	// Within one segment: zero-copy.
	frame, err := m.Region(10, 50, 1)
	if err != nil {
		t.Fatalf("Region: %v", err)
	}

	if !bytes.Equal(frame, full[10:60]) {
		t.Fatal("in-segment frame mismatch")
	}

	// Spanning two boundaries: assembled into a block.
	frame, err = m.Region(250, 500, 1)
	if err != nil {
		t.Fatalf("Region: %v", err)
	}

	if !bytes.Equal(frame, full[250:750]) {
		t.Fatal("spanning frame mismatch")
	}

	length, err := blob.Length()
	if err != nil || length != 900 {
		t.Fatalf("Length = %d, %v, want 900", length, err)
	}
}
