package blobcache

import "slices"

// RestoreCommit is the hook the host's save/restore machinery calls
// when committing a restore to saveLevel. survives reports whether a
// source identity outlives the restore; at or below the host's maximum
// global save level every source is treated as restored regardless, so
// data loaded during startup does not linger forever.
//
// For each affected entry the method table's Restored is consulted: a
// non-nil result is an updated identity and the entry is kept; nil
// tears the entry down - its blocks are freed and, if handles still
// reference it, the entry expires in place so those handles report
// [ErrExpired].
//
// A restore commit at or below the global save level must leave every
// cache empty; violation is a fatal invariant and panics.
func RestoreCommit(saveLevel int, survives func(saveLevel int, src Source) bool) {
	// Freeing a cache's last entry can drop its final reference and
	// unlink it from the registry mid-walk, so iterate a snapshot.
	for _, c := range slices.Clone(caches) {
		for i := 0; i < len(c.entries); {
			e := c.entries[i]

			if e.source == nil ||
				(saveLevel > hostEnv.MaxGlobalSaveLevel && survives != nil && survives(saveLevel, e.source)) {
				i++

				continue
			}

			restored := e.methods.Restored(e.source, e.private, saveLevel)
			if restored != nil {
				e.source = restored
				i++

				continue
			}

			e.freeBlocks()
			e.destroy()

			if e.inuse > 0 {
				// Handles still reference the entry; expire it in
				// place rather than pulling it out from under them.
				e.source = nil
				i++
			} else {
				c.entries = slices.Delete(c.entries, i, i+1)
				c.dataSize -= entryOverhead
				c.release()
			}

			c.yield()
		}

		if saveLevel <= hostEnv.MaxGlobalSaveLevel && c.dataSize != 0 {
			panic("blobcache: global restore did not clear all blob data")
		}
	}
}
