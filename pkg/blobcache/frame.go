package blobcache

import (
	"math"
	"slices"
)

// Block-steal candidate ranks, ascending preference order. Orphaned
// blocks (completely shadowed by an earlier-starting, later-ending
// block) go first; blocks of the requesting entry go last.
const (
	candidateOrphan = iota
	candidateOther
	candidateInUse
	candidateSame
	candidateNone
)

// frame returns a contiguous window of at least length bytes of the
// source starting at start, aligned to the given power of two. The
// window stays valid until the owning handle closes, or until the
// cache's lock generation advances and the backing block is recycled.
//
// A nil return means the request could not be satisfied: allocation
// failed, or the source could not supply enough bytes.
func (e *blobData) frame(start uint64, length, alignment int) []byte {
	if alignment <= 0 || alignment&(alignment-1) != 0 || alignment > MaxAlignment {
		panic("blobcache: invalid frame alignment")
	}

	// Zero-length frames are legal and touch no source method.
	if length == 0 {
		return zeroFrame(alignment)
	}

	c := e.cache
	end := start + uint64(length)

	var found, misaligned *block

	foundIdx := -1

	// Walk the sorted block list for a block that could serve the
	// request. A correctly aligned block already containing the range
	// is an immediate hit; a correctly aligned block whose capacity
	// covers the range is an extendable hit; a misaligned block
	// containing the range is kept as a copy source.
	i := 0
	for ; i < len(e.blocks); i++ {
		b := e.blocks[i]

		if b.start > start {
			// Block starts too high; same as running off the end.
			break
		}

		off := start - b.start
		if off <= math.MaxInt-uint64(length) {
			so := int(off)

			if so+length <= b.length {
				if b.alignedAt(so, alignment) {
					b.lock = c.lockGen

					return b.data[so : so+length]
				}

				if misaligned == nil {
					misaligned = b
				}
			} else if so+length <= b.allocated && b.alignedAt(so, alignment) {
				found = b
				foundIdx = i

				break
			}
		}

		c.yield()
	}

	// The start of the first block at or beyond the end of the frame
	// bounds how much new data may be read, to avoid overlapping
	// blocks.
	backstop := uint64(0)

	for j := i; j < len(e.blocks); j++ {
		if e.blocks[j].start >= end {
			backstop = e.blocks[j].start

			break
		}
	}

	// No cached block covers the frame; a zero-copy view from the
	// source may, without any allocation.
	av := e.methods.Available(e.source, e.private, start)
	if len(av) >= length && addrOf(av)&uintptr(alignment-1) == 0 {
		return av[:length]
	}

	// An extendable block changes its list position once extended;
	// detach it now to simplify the control flow.
	if found != nil {
		e.blocks = slices.Delete(e.blocks, foundIdx, foundIdx+1)
		c.dataSize -= found.footprint()
	}

	// Before anything that may call the low-memory handler, lock the
	// misaligned copy source so it cannot be stolen underneath us.
	if misaligned != nil {
		misaligned.lock = c.lockGen
	}

	if found == nil && c.dataSize >= c.dataLimit {
		found = e.steal(length, alignment)
		if found != nil {
			found.realign(start, alignment)
		}
	}

	if found == nil {
		found = e.allocBlock(start, length, alignment, backstop, len(av) > 0)
		if found == nil {
			return nil
		}
	}

	if !e.populate(found, start, length, av, misaligned, backstop) {
		// The block is detached in every path that reaches here, so
		// dropping it is enough; its footprint was never re-charged.
		return nil
	}

	e.insertBlock(found)

	so := int(start - found.start)
	found.lock = c.lockGen

	return found.data[so : so+length]
}

// steal searches every entry of the cache for a block to recycle.
// Preference order: orphaned blocks, then blocks of idle entries, then
// blocks of in-use entries, then blocks of the requesting entry; among
// equals the oldest lock generation wins. Blocks stamped with the
// current lock generation, and blocks too small for the request after
// re-alignment, are never taken. The first orphan found wins outright.
func (e *blobData) steal(length, alignment int) *block {
	c := e.cache

	var bestEntry *blobData

	bestOrder := candidateNone
	bestIdx := -1
	bestLock := c.lockGen

	for _, se := range c.entries {
		if bestOrder == candidateOrphan {
			break
		}

		entryOrder := candidateOther
		if se == e {
			entryOrder = candidateSame
		} else if se.inuse > 0 {
			entryOrder = candidateInUse
		}

		// High-water mark of block ends; a block ending below it is
		// shadowed by a predecessor, hence orphaned.
		highestEnd := uint64(0)

		for bi, b := range se.blocks {
			order := entryOrder

			bend := b.start + uint64(b.length)
			if bend > highestEnd {
				highestEnd = bend
			} else {
				order = candidateOrphan
			}

			adjust := alignAdjust(addrOf(b.buf), alignment)

			if b.lock != c.lockGen && len(b.buf)-adjust >= length {
				if order < bestOrder || (order == bestOrder && b.lock < bestLock) {
					bestOrder = order
					bestEntry = se
					bestIdx = bi
					bestLock = b.lock

					if order == candidateOrphan {
						break
					}
				}
			}

			c.yield()
		}
	}

	if bestOrder == candidateNone {
		return nil
	}

	b := bestEntry.blocks[bestIdx]
	bestEntry.blocks = slices.Delete(bestEntry.blocks, bestIdx, bestIdx+1)
	c.dataSize -= b.footprint()

	return b
}

// allocBlock provisions a fresh, empty block at start whose data window
// satisfies alignment. The allocation is rounded up to the read quantum
// when no zero-copy data restricts the read, clamped to the backstop so
// new data does not overlap a following block, and finally rounded to
// the allocation quantum for easier recycling.
func (e *blobData) allocBlock(start uint64, length, alignment int, backstop uint64, haveAvail bool) *block {
	c := e.cache

	required := blockOverhead + length + alignment - 1
	allocsize := required

	if !haveAvail && allocsize < c.readQuantum {
		allocsize = c.readQuantum
	}

	if backstop > start {
		if dist := backstop - start; dist <= uint64(math.MaxInt) && int(dist) < allocsize {
			if int(dist) > required {
				allocsize = int(dist)
			} else {
				allocsize = required
			}
		}
	}

	allocsize = (allocsize + c.allocQuantum - 1) &^ (c.allocQuantum - 1)

	raw := c.alloc(allocsize - blockOverhead)
	if raw == nil {
		return nil
	}

	b := &block{buf: raw}
	b.realign(start, alignment)

	return b
}

// populate fills the detached block until it covers the requested
// range: first from the source's zero-copy view, then from a misaligned
// block holding the data, and finally by reading from the source with
// the read rounded up to the read quantum (unless zero-copy data was on
// offer) and clamped to the backstop. It reports whether the block now
// covers the range.
func (e *blobData) populate(b *block, start uint64, length int, av []byte, misaligned *block, backstop uint64) bool {
	c := e.cache
	so := int(start - b.start)
	end := start + uint64(length)

	// Use the zero-copy view when it is contiguous with the block's
	// populated tail.
	if len(av) > 0 && b.length >= so && b.length < so+len(av) {
		srcOff := b.length - so

		n := min(len(av)-srcOff, b.allocated-b.length)
		copy(b.data[b.length:b.length+n], av[srcOff:srcOff+n])
		b.length += n

		if b.length >= so+length {
			return true
		}
	}

	// Copy the remainder out of a misaligned block holding the data;
	// quicker than going back to the source.
	if misaligned != nil && misaligned.start <= b.start+uint64(b.length) {
		moff := b.start + uint64(b.length) - misaligned.start
		if moff <= uint64(math.MaxInt) && int(moff) < misaligned.length {
			smoff := int(moff)

			copysize := so + length - b.length
			if copysize+smoff > misaligned.length {
				copysize = misaligned.length - smoff
			}

			copy(b.data[b.length:b.length+copysize], misaligned.data[smoff:smoff+copysize])
			b.length += copysize

			if b.length >= so+length {
				return true
			}
		}
	}

	// Read from the source. When no zero-copy data was on offer the
	// read is rounded up to the next read quantum boundary, so the
	// whole disc block gets stored; with zero-copy data nearby, other
	// requests may be satisfied without buffering, so read only what
	// is needed.
	readEnd := end

	if len(av) == 0 {
		readEnd = (end | uint64(c.readQuantum-1)) + 1
		if backstop != 0 && readEnd > backstop {
			readEnd = backstop
		}
	}

	wanted := int(readEnd - b.start)
	if wanted > b.allocated {
		wanted = b.allocated
	}

	if wanted > b.length {
		readStart := b.start + uint64(b.length)
		b.length += e.methods.ReadAt(e.source, e.private, b.data[b.length:wanted], readStart)
	}

	return b.length >= so+length
}

// insertBlock re-links a detached block into the entry's sorted list
// and charges its footprint to the cache.
func (e *blobData) insertBlock(b *block) {
	pos := len(e.blocks)

	for i, sb := range e.blocks {
		if b.less(sb) {
			pos = i

			break
		}
	}

	e.blocks = slices.Insert(e.blocks, pos, b)
	e.cache.dataSize += b.footprint()
}
