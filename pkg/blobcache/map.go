package blobcache

import (
	"fmt"
	"slices"
)

// Map is an open memory-mapping context over a blob. Nothing is stored
// in the context itself; it tracks frame lifetime: only once every
// mapping context on a cache has closed does the cache's lock
// generation advance and its blocks become stealable again.
type Map struct {
	_ [0]func() // prevent external construction

	blob *Blob // nil once closed
}

// MapOpen opens a mapping context on the blob. The context holds a
// reference to the blob, so the blob cannot fully close while the
// mapping is open.
//
// Possible errors: [ErrInvalid], [ErrExpired], [ErrAccess].
func (b *Blob) MapOpen() (*Map, error) {
	if b == nil || b.data == nil {
		return nil, fmt.Errorf("nil blob: %w", ErrInvalid)
	}

	if b.data.source == nil {
		return nil, ErrExpired
	}

	if !b.mode.Readable() {
		return nil, fmt.Errorf("blob not readable: %w", ErrAccess)
	}

	m := &Map{blob: b}

	b.cache.mapsOpen++
	b.refcount++
	b.maps = append([]*Map{m}, b.maps...)

	return m, nil
}

// Region maps a section of the blob into a contiguous, aligned byte
// window of exactly length bytes. alignment must be a power of two not
// exceeding [MaxAlignment]. A zero length returns a non-nil, aligned,
// empty window without touching the source.
//
// The window stays valid until the owning blob closes; see the package
// documentation for the lock-generation caveat.
//
// Possible errors: [ErrInvalid], [ErrExpired], [ErrMemory].
func (m *Map) Region(start uint64, length, alignment int) ([]byte, error) {
	if m == nil || m.blob == nil {
		return nil, fmt.Errorf("nil map: %w", ErrInvalid)
	}

	if alignment <= 0 || alignment&(alignment-1) != 0 || alignment > MaxAlignment {
		return nil, fmt.Errorf("alignment %d: %w", alignment, ErrInvalid)
	}

	if length < 0 {
		return nil, fmt.Errorf("length %d: %w", length, ErrInvalid)
	}

	data := m.blob.data
	if data.source == nil {
		return nil, ErrExpired
	}

	frame := data.frame(start, length, alignment)
	if frame == nil {
		return nil, ErrMemory
	}

	return frame, nil
}

// Close ends the mapping context and releases its blob reference. When
// the last mapping on the cache closes, the lock generation advances,
// unlocking every block for future stealing and purging. Close is
// idempotent.
func (m *Map) Close() {
	if m == nil || m.blob == nil {
		return
	}

	b := m.blob
	m.blob = nil

	i := slices.Index(b.maps, m)
	if i < 0 {
		panic("blobcache: map not found on blob mapping list")
	}

	b.maps = slices.Delete(b.maps, i, i+1)

	// Unlocking per entry when its use count reaches zero would mean
	// iterating blocks; mappings are rare enough that unlocking only
	// when all of them close keeps this cheap.
	b.cache.mapsOpen--
	if b.cache.mapsOpen == 0 {
		b.cache.lockGen++
	}

	b.Close()
}
