package blobcache

import (
	"fmt"
	"slices"
)

// blobData associates one identified source with its cached blocks and
// the method table that fills them. Blocks are sorted by offset within
// the source; blocks may overlap when a frame spans previously
// allocated blocks. Entries are shared between all handles open on the
// same identifiable source.
type blobData struct {
	cache   *Cache
	source  Source  // nil once cleared by GC or restored away
	methods Methods // stable for the lifetime of the entry
	private any     // method-private state from Methods.Create
	mode    Mode    // merged modes of all opens
	inuse   int     // live handles referencing this entry
	blocks  []*block
}

// openData finds or creates the entry for the given source and asserts
// one more use of it. While walking, entries beyond the cache's trim
// limit that are idle and hold no blocks are evicted opportunistically;
// GC scans never call destroy, so apart from purge this walk is where
// dead entries actually go away.
//
// The source identity is matched first by identity, then through the
// method table's Same; both require the same Methods value.
func (c *Cache) openData(src Source, methods Methods, mode Mode) (*blobData, error) {
	if src == nil || methods == nil {
		return nil, fmt.Errorf("no source or methods: %w", ErrInvalid)
	}

	var found *blobData

	walked := 0

	for i := 0; i < len(c.entries); {
		e := c.entries[i]

		if e.methods == methods && e.source != nil &&
			(e.source == src || methods.Same(src, e.source)) {
			merged, err := e.mergeOpen(src, mode)
			if err != nil {
				return nil, err
			}

			e.mode = merged

			// Unlink; the entry is re-linked at the head below, which
			// keeps the list in most-recently-used order.
			c.entries = slices.Delete(c.entries, i, i+1)
			found = e

			break
		}

		walked++

		if walked > c.trimLimit && e.inuse == 0 && len(e.blocks) == 0 {
			c.entries = slices.Delete(c.entries, i, i+1)
			e.destroy()

			c.dataSize -= entryOverhead
			c.release()
		} else {
			i++
		}

		c.yield()
	}

	if found == nil {
		private, err := methods.Create(src)
		if err != nil {
			return nil, err
		}

		found = &blobData{
			cache:   c,
			source:  src,
			methods: methods,
			private: private,
			mode:    mode.normalize(),
		}

		c.retain()
		c.dataSize += entryOverhead
	}

	c.entries = slices.Insert(c.entries, 0, found)

	// Open the source only for the first use, so the available and
	// close methods can make predictable modifications to the source.
	// On failure the entry stays behind; it is purged on restore or on
	// a later walk.
	if found.inuse == 0 {
		if err := methods.Open(found.source, found.private, found.mode); err != nil {
			return nil, err
		}
	}

	found.inuse++

	return found, nil
}

// mergeOpen reconciles a new open's mode with an already-known entry.
// If the entry is in use, exclusive access and mismatched font hints
// are rejected, and adding write access to a previously read-only
// session closes and reopens the source so the provider sees the
// changed flags.
func (e *blobData) mergeOpen(src Source, mode Mode) (Mode, error) {
	reopen := false

	if e.inuse > 0 {
		if mode&ModeExclusive != 0 || e.mode&ModeExclusive != 0 {
			return 0, fmt.Errorf("source in use: %w", ErrAccess)
		}

		if mode&ModeFont != e.mode&ModeFont {
			return 0, fmt.Errorf("font hint mismatch: %w", ErrAccess)
		}

		if mode.Writable() && !e.mode.Writable() {
			e.methods.Close(e.source, e.private)

			reopen = true
		}

		mode |= e.mode
	}

	mode = mode.normalize()

	// The stored identity is local to the cache; widen its access to
	// the laxer of the old and new permissions, so that blobs opened
	// later against the shared entry see the broader access.
	if np, ok := src.(Permissions); ok && np.CanWrite() {
		if sp, ok := e.source.(Permissions); ok && !sp.CanWrite() {
			sp.AllowWrite()
		}
	}

	if reopen {
		if err := e.methods.Open(e.source, e.private, mode); err != nil {
			// The source is closed but handles still reference the
			// entry. Rather than leave the in-use invariant broken,
			// expire the entry: further handle operations report
			// ErrExpired and the husk is collected later.
			e.expire()

			return 0, err
		}
	}

	return mode, nil
}

// closeData releases one use of the entry. The source session ends when
// the last use goes away; the entry itself stays behind for purge, so
// its blocks can be reused by a prompt reopen.
func (e *blobData) closeData() {
	if e.inuse <= 0 {
		panic("blobcache: entry in-use underflow")
	}

	e.inuse--
	if e.inuse == 0 && e.source != nil {
		e.methods.Close(e.source, e.private)
	}
}

// destroy releases the entry's method-private state.
func (e *blobData) destroy() {
	if e.source != nil {
		e.methods.Destroy(e.source, e.private)
		e.private = nil
	}
}

// expire frees the entry's blocks, destroys its private state and
// clears its source, turning live handles into ErrExpired reporters.
func (e *blobData) expire() {
	e.freeBlocks()
	e.destroy()
	e.source = nil
}

// freeBlocks drops every block of the entry and returns their footprint
// to the cache.
func (e *blobData) freeBlocks() {
	for _, b := range e.blocks {
		e.cache.dataSize -= b.footprint()
	}

	e.blocks = nil
}
