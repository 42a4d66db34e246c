package blobcache

// Tier names the memory tier a cache's contents compete with. It is a
// hint forwarded to the low-memory registry.
type Tier int

const (
	// TierRAM marks content that is only backed by memory.
	TierRAM Tier = iota
	// TierDisk marks content that can be re-read from disk.
	TierDisk
)

// Cost describes how expensive a cache's contents are to regenerate.
// The low-memory registry uses it to order purge victims.
type Cost struct {
	Tier  Tier
	Value float64
}

// PurgeHandler is a cache's registration with the host's low-memory
// registry. The registry may invoke Purge at any suspension point;
// Purge reports whether any bytes were actually freed.
type PurgeHandler struct {
	Name            string
	Cost            Cost
	MultiThreadSafe bool
	Purge           func(bytes int) (freed bool)
}

// MemoryRegistry is the host's low-memory handler registry. A nil
// registry disables low-memory cooperation.
type MemoryRegistry interface {
	Register(h *PurgeHandler) error
	Deregister(h *PurgeHandler)
}

// Scanner is the host garbage collector's view of a scan in progress.
// Retain marks a source identity reachable and returns the identity to
// keep (the collector may relocate it); returning nil tells the cache
// the host is discarding the object.
type Scanner interface {
	Retain(src Source) Source
}

// GCRoot is a registered scan root; Destroy unregisters it.
type GCRoot interface {
	Destroy()
}

// GCRegistry is the host garbage collector's root registry. A nil
// registry disables GC cooperation.
type GCRegistry interface {
	// RootCreate registers scan as a root. The callback must only mark
	// source identities through the scanner; it must not allocate,
	// call source methods, or otherwise mutate cache state.
	RootCreate(scan func(Scanner)) (GCRoot, error)
}

// Host supplies the external collaborators of the blob cache
// subsystem. Zero-valued fields disable the corresponding cooperation.
type Host struct {
	// Memory is the low-memory handler registry.
	Memory MemoryRegistry

	// GC is the tracing garbage collector's root registry.
	GC GCRegistry

	// MaxGlobalSaveLevel is the highest save level considered global.
	// A restore commit at or below it must leave every cache empty.
	MaxGlobalSaveLevel int
}
