package blobcache

// Source is the identity of a blob data source. The cache treats it as
// opaque: it is compared for identity, handed to every [Methods] call,
// marked during GC scans, and possibly replaced during restore commit.
//
// Source values must be comparable (pointers are the common case); two
// handles over equal identities share one cache entry.
type Source any

// Protection classifies how a source's content is protected. The cache
// does not interpret the classification; it is reported verbatim to
// callers of [Blob.Protection].
type Protection int

const (
	// ProtectionNone marks plain, unprotected content.
	ProtectionNone Protection = iota
	// ProtectionScrambled marks content behind a reversible scramble.
	ProtectionScrambled
	// ProtectionEncrypted marks encrypted content.
	ProtectionEncrypted
)

// Methods is the capability set a caller supplies per source. It is the
// sole mechanism by which the cache interacts with the underlying data.
//
// A Methods value is compared for identity when matching sources to
// cache entries: pass the same value across a source's lifetime, and
// keep it usable even after the last handle closes (purge and restore
// call [Methods.Destroy] later).
type Methods interface {
	// Same reports whether two source identities are equivalent for
	// caching purposes. Must be reflexive, symmetric and
	// deterministic. The cache short-circuits Same(x, x) by identity.
	Same(a, b Source) bool

	// Create prepares per-source private state. Called once per cache
	// entry, before Open.
	Create(src Source) (private any, err error)

	// Destroy releases the private state created by Create.
	Destroy(src Source, private any)

	// Open asserts a session on the source. The cache guarantees
	// exactly one unmatched Open per entry at a time.
	Open(src Source, private any, mode Mode) error

	// Close ends the session asserted by Open.
	Close(src Source, private any)

	// Available returns a contiguous zero-copy view of the source
	// beginning at offset, or nil if the source cannot offer one. The
	// view's alignment is source-determined.
	Available(src Source, private any, offset uint64) []byte

	// ReadAt reads up to len(dst) bytes at offset into dst and returns
	// the number of bytes read. Short reads are permitted; zero
	// indicates end of data.
	ReadAt(src Source, private any, dst []byte, offset uint64) int

	// WriteAt writes data at offset. Only called when the blob's mode
	// grants write access and the entry has no live blocks.
	WriteAt(src Source, private any, data []byte, offset uint64) error

	// Length reports the source's current length in bytes.
	Length(src Source, private any) (uint64, error)

	// Protection reports the source's protection classification.
	Protection(src Source, private any) Protection

	// Restored is called during restore commit for sources that will
	// not survive the save level. A non-nil result is an updated
	// identity the method has arranged to keep alive; nil tells the
	// cache to tear the entry down.
	Restored(src Source, private any, saveLevel int) Source
}

// Regenerable is implemented by method tables whose sources can be
// rebuilt at little cost (in-memory strings, segmented buffers). The
// purge engine drops their blocks regardless of the byte target.
type Regenerable interface {
	Regenerable() bool
}

// Permissions is implemented by source identities that carry access
// bits. When two blobs with different permissions share one source, the
// cache widens the stored identity to the laxer of the two so later
// clones see the broader permissions.
type Permissions interface {
	// CanWrite reports whether the identity permits writing.
	CanWrite() bool
	// AllowWrite widens the identity to permit writing.
	AllowWrite()
}

// regenerable reports whether a method table marks its sources as cheap
// to rebuild.
func regenerable(m Methods) bool {
	r, ok := m.(Regenerable)

	return ok && r.Regenerable()
}
