package blobcache

// purge clears roughly the given quantity of data from the cache. It is
// the registered low-memory handler and the backing of [Cache.SetLimit].
//
// The data size is recomputed by walking every entry. Blocks of sources
// that are cheap to regenerate go unconditionally; other blocks go only
// once the retained total still exceeds the target. Blocks stamped with
// the current lock generation survive while their entry is in use.
// Entries left idle and block-less are destroyed. Purge never
// allocates, so it cannot fail; it reports whether anything was freed.
func (c *Cache) purge(amount int) bool {
	orig := c.dataSize
	target := orig - amount
	c.dataSize = 0

	for i := 0; i < len(c.entries); {
		e := c.entries[i]

		always := e.source == nil || regenerable(e.methods)

		kept := e.blocks[:0]

		for _, b := range e.blocks {
			size := b.footprint()

			if (always || c.dataSize >= target) &&
				(b.lock != c.lockGen || e.inuse == 0) {
				// Freed.
			} else {
				c.dataSize += size
				kept = append(kept, b)
			}

			c.yield()
		}

		clear(e.blocks[len(kept):])
		e.blocks = kept

		if e.inuse == 0 && len(e.blocks) == 0 {
			c.entries = append(c.entries[:i], c.entries[i+1:]...)
			e.destroy()
			c.release()
		} else {
			c.dataSize += entryOverhead
			i++
		}

		c.yield()
	}

	if orig < c.dataSize {
		panic("blobcache: purge grew the cache")
	}

	freed := orig > c.dataSize
	if freed {
		c.purges++
		c.purgedBytes += orig - c.dataSize
	}

	return freed
}
