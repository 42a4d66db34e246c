package blobcache

// Test-only accessors over internal state, used by the external test
// package to verify structural invariants.

// SetHost installs host collaborators without creating the default
// store. Tests restore the previous host when done.
func SetHost(h Host) (prev Host) {
	prev = hostEnv
	hostEnv = h

	return prev
}

// CheckConsistency verifies the cache's structural invariants.
func CheckConsistency(c *Cache) error {
	return c.checkConsistency()
}

// DataSize returns the cache's advertised data size.
func DataSize(c *Cache) int {
	return c.dataSize
}

// Refcount returns the cache's reference count.
func Refcount(c *Cache) int {
	return c.refcount
}

// LockGeneration returns the cache's current lock generation.
func LockGeneration(c *Cache) uint64 {
	return c.lockGen
}

// EntryCount returns the number of entries owned by the cache.
func EntryCount(c *Cache) int {
	return len(c.entries)
}

// Purge invokes the purge engine directly, as the low-memory registry
// would.
func Purge(c *Cache, bytes int) bool {
	return c.purge(bytes)
}

// EntryOverhead and BlockOverhead expose the accounting constants.
const (
	EntryOverhead = entryOverhead
	BlockOverhead = blockOverhead
)

// BlockInfo describes one cached block for assertions.
type BlockInfo struct {
	Start     uint64
	Length    int
	Allocated int
	Footprint int
	Locked    bool
}

// Blocks returns the block list of the blob's entry, in list order.
func Blocks(b *Blob) []BlockInfo {
	infos := make([]BlockInfo, 0, len(b.data.blocks))
	for _, blk := range b.data.blocks {
		infos = append(infos, BlockInfo{
			Start:     blk.start,
			Length:    blk.length,
			Allocated: blk.allocated,
			Footprint: blk.footprint(),
			Locked:    blk.lock == b.cache.lockGen,
		})
	}

	return infos
}

// EntryInUse returns the use count of the blob's entry.
func EntryInUse(b *Blob) int {
	return b.data.inuse
}

// SameEntry reports whether two blobs share one cache entry.
func SameEntry(a, b *Blob) bool {
	return a.data == b.data
}

// ExpireEntry clears the blob's entry source, as a restore would.
func ExpireEntry(b *Blob) {
	b.data.expire()
}
