package blobcache

import (
	"fmt"
	"unsafe"
)

// Config configures a new [Cache].
type Config struct {
	// Name identifies the cache to the low-memory registry and in
	// statistics.
	Name string

	// DataLimit is the soft limit, in bytes, on cached data. Above it
	// the frame engine recycles blocks instead of allocating. Must be
	// positive.
	DataLimit int

	// AllocQuantum rounds every block allocation. Must be a power of
	// two; larger values make blocks easier to recycle.
	AllocQuantum int

	// ReadQuantum rounds source reads up to anticipate further
	// accesses. Must be a power of two; a multiple of the disk block
	// size performs best for file sources.
	ReadQuantum int

	// TrimLimit bounds opportunistic eviction of unused, block-less
	// entries encountered while walking the entry list: entries within
	// the first TrimLimit positions are kept. Must not be negative.
	TrimLimit int

	// Cost is the purge-cost hint forwarded to the low-memory
	// registry.
	Cost Cost

	// MultiThreadSafe declares the cache safe for cross-thread purge
	// invocation. Advisory to the low-memory registry only.
	MultiThreadSafe bool

	// Alloc provisions raw block memory. Returning nil signals
	// allocation failure. Defaults to make.
	Alloc func(size int) []byte

	// Yield is called at each block during list walks and block
	// stealing, so the host can interleave unrelated work. Defaults to
	// a no-op.
	Yield func()
}

// Cache is the top-level container: it owns a list of per-source
// entries and mediates memory policy across them.
//
// A Cache must be obtained via [New]; the zero value is not usable.
// Cache operations are not safe for concurrent use; see the package
// documentation for the scheduling model.
type Cache struct {
	_ [0]func() // prevent external construction

	name         string
	dataLimit    int
	dataSize     int
	allocQuantum int
	readQuantum  int
	trimLimit    int

	// lockGen advances whenever the open-map count returns to zero.
	// Blocks stamped with the current generation are in active use.
	lockGen  uint64
	mapsOpen int

	// refcount counts the registry entry, owned entries, and live
	// handles. The cache is freed when it reaches zero.
	refcount int

	entries []*blobData // most-recently-used first

	handler *PurgeHandler
	gcRoot  GCRoot
	alloc   func(int) []byte
	yield   func()

	purges      int
	purgedBytes int
}

// entryOverhead is the accounted per-entry size, charged against the
// cache's data size alongside block footprints.
const entryOverhead = int(unsafe.Sizeof(blobData{}))

// powerOfTwo reports whether n is a positive power of two.
func powerOfTwo(n int) bool {
	return n > 0 && n&(n-1) == 0
}

// New creates a cache, links it into the process-wide registry, creates
// its GC root and registers it with the low-memory registry (both only
// if the [Host] given to [Init] provides them).
//
// Possible errors: [ErrInvalid], [ErrMemory].
func New(cfg Config) (*Cache, error) {
	if cfg.DataLimit <= 0 {
		return nil, fmt.Errorf("data limit %d: %w", cfg.DataLimit, ErrInvalid)
	}

	if !powerOfTwo(cfg.AllocQuantum) {
		return nil, fmt.Errorf("alloc quantum %d is not a power of two: %w", cfg.AllocQuantum, ErrInvalid)
	}

	if !powerOfTwo(cfg.ReadQuantum) {
		return nil, fmt.Errorf("read quantum %d is not a power of two: %w", cfg.ReadQuantum, ErrInvalid)
	}

	if cfg.TrimLimit < 0 {
		return nil, fmt.Errorf("trim limit %d: %w", cfg.TrimLimit, ErrInvalid)
	}

	c := &Cache{
		name:         cfg.Name,
		dataLimit:    cfg.DataLimit,
		allocQuantum: cfg.AllocQuantum,
		readQuantum:  cfg.ReadQuantum,
		trimLimit:    cfg.TrimLimit,
		refcount:     1, // the registry's reference
		alloc:        cfg.Alloc,
		yield:        cfg.Yield,
	}

	if c.alloc == nil {
		c.alloc = func(size int) []byte { return make([]byte, size) }
	}

	if c.yield == nil {
		c.yield = func() {}
	}

	if hostEnv.GC != nil {
		root, err := hostEnv.GC.RootCreate(c.Scan)
		if err != nil {
			return nil, fmt.Errorf("create GC root for data cache: %w", ErrMemory)
		}

		c.gcRoot = root
	}

	registerCache(c)

	if hostEnv.Memory != nil {
		c.handler = &PurgeHandler{
			Name:            cfg.Name,
			Cost:            cfg.Cost,
			MultiThreadSafe: cfg.MultiThreadSafe,
			Purge:           c.purge,
		}

		if err := hostEnv.Memory.Register(c.handler); err != nil {
			unregisterCache(c)

			if c.gcRoot != nil {
				c.gcRoot.Destroy()
			}

			return nil, fmt.Errorf("register low-memory handler: %w", err)
		}
	}

	return c, nil
}

// Destroy releases the registry's reference to the cache. The cache is
// only torn down once no entry and no handle reference it.
func (c *Cache) Destroy() {
	c.release()
}

// release drops one reference. On the last reference the cache is
// deregistered from the low-memory registry, its GC root destroyed, and
// it is unlinked from the global registry.
func (c *Cache) release() {
	if c.refcount <= 0 {
		panic("blobcache: cache refcount underflow")
	}

	c.refcount--
	if c.refcount > 0 {
		return
	}

	if len(c.entries) != 0 {
		panic("blobcache: cache refcount reached zero with live entries")
	}

	if c.handler != nil && hostEnv.Memory != nil {
		hostEnv.Memory.Deregister(c.handler)
		c.handler = nil
	}

	if c.gcRoot != nil {
		c.gcRoot.Destroy()
		c.gcRoot = nil
	}

	unregisterCache(c)
}

// retain adds one reference.
func (c *Cache) retain() {
	c.refcount++
}

// SetLimit changes the cache's soft data limit. If more than the new
// limit is currently stored, a purge brings usage down first.
func (c *Cache) SetLimit(limit int) {
	if c.dataSize > limit {
		c.purge(c.dataSize - limit)
	}

	c.dataLimit = limit
}

// Limit returns the cache's soft data limit.
func (c *Cache) Limit() int {
	return c.dataLimit
}

// Scan is the cache's GC scan callback: it marks every entry's source
// identity through the scanner and stores the identity the scanner
// returns. It does not allocate, call source methods, or otherwise
// mutate entry state; cleanup of discarded entries is deferred to the
// next open walk or purge.
func (c *Cache) Scan(s Scanner) {
	for _, e := range c.entries {
		if e.source != nil {
			e.source = s.Retain(e.source)
		}
	}
}

// Stats is a point-in-time snapshot of a cache's state.
type Stats struct {
	Name           string
	DataSize       int
	DataLimit      int
	Entries        int
	Blocks         int
	OpenMaps       int
	LockGeneration uint64
	Purges         int
	PurgedBytes    int
}

// Stats returns a snapshot of the cache's current state.
func (c *Cache) Stats() Stats {
	blocks := 0
	for _, e := range c.entries {
		blocks += len(e.blocks)
	}

	return Stats{
		Name:           c.name,
		DataSize:       c.dataSize,
		DataLimit:      c.dataLimit,
		Entries:        len(c.entries),
		Blocks:         blocks,
		OpenMaps:       c.mapsOpen,
		LockGeneration: c.lockGen,
		Purges:         c.purges,
		PurgedBytes:    c.purgedBytes,
	}
}

// checkConsistency verifies the cache's structural invariants: the
// advertised data size matches the walked total, block lists are
// ordered, and no block is populated past its capacity. It returns a
// description of the first violation found.
func (c *Cache) checkConsistency() error {
	if c.refcount <= 0 {
		return fmt.Errorf("cache %q: refcount %d", c.name, c.refcount)
	}

	total := 0

	for _, e := range c.entries {
		for i, b := range e.blocks {
			if i+1 < len(e.blocks) && !b.less(e.blocks[i+1]) && !blockEqual(b, e.blocks[i+1]) {
				return fmt.Errorf("cache %q: block list out of order at %d+%d", c.name, b.start, b.length)
			}

			if b.length > b.allocated {
				return fmt.Errorf("cache %q: block at %d populated past capacity", c.name, b.start)
			}

			total += b.footprint()
		}

		total += entryOverhead
	}

	if total != c.dataSize {
		return fmt.Errorf("cache %q: data size %d, walked %d", c.name, c.dataSize, total)
	}

	return nil
}

// blockEqual reports whether two blocks sort identically.
func blockEqual(a, b *block) bool {
	return a.start == b.start && a.length == b.length && a.rank() == b.rank()
}
