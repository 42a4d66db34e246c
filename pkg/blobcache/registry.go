package blobcache

import (
	"fmt"
	"slices"
)

// Process-wide registry of live caches. Guarded by the single-threaded
// cooperative scheduling model; see the package documentation.
var (
	caches       []*Cache
	defaultStore *Cache
	hostEnv      Host
)

// Default sizing of the process-wide blob store.
const (
	defaultStoreLimit   = 1 << 20 // 1 MiB of data before purging
	defaultStoreQuantum = 16384   // block allocation and read quantum
	defaultStoreTrim    = 1       // retained closed entry limit
)

// Init wires the subsystem to its host collaborators and creates the
// process-wide default blob store. Call once on startup; pair with
// [Shutdown].
func Init(h Host) error {
	hostEnv = h

	store, err := New(Config{
		Name:         "blob store",
		DataLimit:    defaultStoreLimit,
		AllocQuantum: defaultStoreQuantum,
		ReadQuantum:  defaultStoreQuantum,
		TrimLimit:    defaultStoreTrim,
		Cost:         Cost{Tier: TierDisk, Value: 5.0},
	})
	if err != nil {
		return fmt.Errorf("create default blob store: %w", err)
	}

	defaultStore = store

	return nil
}

// Shutdown destroys the default store and detaches the host. Caches
// created explicitly must be destroyed by their creators first.
func Shutdown() {
	if defaultStore != nil {
		defaultStore.Destroy()
		defaultStore = nil
	}

	hostEnv = Host{}
}

// DefaultStore returns the process-wide blob store, or nil before
// [Init].
func DefaultStore() *Cache {
	return defaultStore
}

// CachesStats returns a snapshot of every live cache, most recently
// created first.
func CachesStats() []Stats {
	stats := make([]Stats, 0, len(caches))
	for _, c := range caches {
		stats = append(stats, c.Stats())
	}

	return stats
}

// registerCache links a new cache into the registry.
func registerCache(c *Cache) {
	caches = append([]*Cache{c}, caches...)
}

// unregisterCache removes a cache from the registry.
func unregisterCache(c *Cache) {
	i := slices.Index(caches, c)
	if i < 0 {
		panic("blobcache: cache not found on global list")
	}

	caches = slices.Delete(caches, i, i+1)
}
