package blobcache_test

import (
	"testing"

	"github.com/calvinalkan/blobcache/pkg/blobcache"
)

func TestPurge_MixedSourceTypes(t *testing.T) {
	c := testCache(t, cacheOpts{limit: 1 << 20, alloc: 4096, read: 4096})

	cheap := &fakeMethods{regen: true}
	costly := &fakeMethods{}

	srcArr := &fakeSource{name: "array", data: patterned(10000)}
	srcFile := &fakeSource{name: "file", data: patterned(10000)}

	blobArr, mArr := openMapped(t, c, srcArr, cheap)

	if _, err := mArr.Region(0, 100, 1); err != nil {
		t.Fatalf("Region: %v", err)
	}

	blobFile, mFile := openMapped(t, c, srcFile, costly)

	if _, err := mFile.Region(0, 100, 1); err != nil {
		t.Fatalf("Region: %v", err)
	}

	// Unlock all blocks, then release the array handle entirely so its
	// entry is collectable; the file handle stays open.
	mArr.Close()
	mFile.Close()
	blobArr.Close()

	freed := blobcache.Purge(c, blobcache.DataSize(c))
	if !freed {
		t.Fatal("purge freed nothing")
	}

	if cheap.destroys != 1 {
		t.Fatalf("array entry destroys = %d, want 1", cheap.destroys)
	}

	if got := len(blobcache.Blocks(blobFile)); got != 0 {
		t.Fatalf("file blocks after purge = %d, want 0", got)
	}

	if got := blobcache.EntryCount(c); got != 1 {
		t.Fatalf("entries after purge = %d, want the in-use file entry only", got)
	}

	if got := blobcache.DataSize(c); got != blobcache.EntryOverhead {
		t.Fatalf("data size after purge = %d, want one entry overhead", got)
	}

	if err := blobcache.CheckConsistency(c); err != nil {
		t.Fatalf("consistency: %v", err)
	}
}

func TestPurge_CheapBlocksGoRegardlessOfTarget(t *testing.T) {
	c := testCache(t, cacheOpts{limit: 1 << 20, alloc: 4096, read: 4096})

	cheap := &fakeMethods{regen: true}
	src := &fakeSource{name: "a", data: patterned(10000)}

	blob, m := openMapped(t, c, src, cheap)

	if _, err := m.Region(0, 100, 1); err != nil {
		t.Fatalf("Region: %v", err)
	}

	m.Close()

	// A one-byte request still clears every regenerable block.
	if !blobcache.Purge(c, 1) {
		t.Fatal("purge freed nothing")
	}

	if got := len(blobcache.Blocks(blob)); got != 0 {
		t.Fatalf("blocks after purge = %d, want 0", got)
	}
}

func TestPurge_SparesLockedBlocksOfInUseEntries(t *testing.T) {
	c := testCache(t, cacheOpts{limit: 1 << 20, alloc: 4096, read: 4096})

	methods := &fakeMethods{}
	src := &fakeSource{name: "a", data: patterned(10000)}

	blob, m := openMapped(t, c, src, methods)

	if _, err := m.Region(0, 100, 1); err != nil {
		t.Fatalf("Region: %v", err)
	}

	// The mapping is still open: the block carries the current lock
	// generation and the entry is in use, so nothing can go.
	if blobcache.Purge(c, blobcache.DataSize(c)) {
		t.Fatal("purge claimed to free locked data")
	}

	if got := len(blobcache.Blocks(blob)); got != 1 {
		t.Fatalf("blocks after purge = %d, want 1", got)
	}
}

func TestSetLimit_PurgesDownToNewLimit(t *testing.T) {
	c := testCache(t, cacheOpts{limit: 1 << 20, alloc: 4096, read: 4096})

	methods := &fakeMethods{}
	src := &fakeSource{name: "a", data: patterned(40000)}

	blob, m := openMapped(t, c, src, methods)

	for off := uint64(0); off < 32768; off += 8192 {
		if _, err := m.Region(off, 4000, 1); err != nil {
			t.Fatalf("Region(%d): %v", off, err)
		}
	}

	m.Close()

	before := blobcache.DataSize(c)
	if before <= 8192 {
		t.Fatalf("data size = %d, want several blocks", before)
	}

	c.SetLimit(8192)

	if got := blobcache.DataSize(c); got > before {
		t.Fatalf("data size after SetLimit = %d, want reduced", got)
	}

	if got := c.Limit(); got != 8192 {
		t.Fatalf("Limit = %d, want 8192", got)
	}

	if got := len(blobcache.Blocks(blob)); got >= 4 {
		t.Fatalf("blocks after SetLimit = %d, want fewer than 4", got)
	}

	if err := blobcache.CheckConsistency(c); err != nil {
		t.Fatalf("consistency: %v", err)
	}

	stats := c.Stats()
	if stats.Purges != 1 || stats.PurgedBytes == 0 {
		t.Fatalf("purge counters = %d/%d, want one purge with bytes", stats.Purges, stats.PurgedBytes)
	}
}

// fakeMemoryRegistry records registrations the way the host's
// low-memory subsystem would.
type fakeMemoryRegistry struct {
	registered   []*blobcache.PurgeHandler
	deregistered int
}

func (r *fakeMemoryRegistry) Register(h *blobcache.PurgeHandler) error {
	r.registered = append(r.registered, h)

	return nil
}

func (r *fakeMemoryRegistry) Deregister(*blobcache.PurgeHandler) {
	r.deregistered++
}

func TestLowMemoryHandler_RegisteredAndInvocable(t *testing.T) {
	registry := &fakeMemoryRegistry{}
	prev := blobcache.SetHost(blobcache.Host{Memory: registry})

	t.Cleanup(func() { blobcache.SetHost(prev) })

	c := testCache(t, cacheOpts{limit: 1 << 20, alloc: 4096, read: 4096})

	if len(registry.registered) != 1 {
		t.Fatalf("registered handlers = %d, want 1", len(registry.registered))
	}

	methods := &fakeMethods{regen: true}
	src := &fakeSource{name: "a", data: patterned(10000)}

	blob, m := openMapped(t, c, src, methods)

	if _, err := m.Region(0, 100, 1); err != nil {
		t.Fatalf("Region: %v", err)
	}

	m.Close()

	// The handler purges through the same engine as SetLimit.
	if !registry.registered[0].Purge(4096) {
		t.Fatal("handler purge freed nothing")
	}

	if got := len(blobcache.Blocks(blob)); got != 0 {
		t.Fatalf("blocks after handler purge = %d, want 0", got)
	}
}
