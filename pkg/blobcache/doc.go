// Package blobcache provides a reference-counted, alignment-aware,
// block-granular cache over opaque data sources.
//
// A [Cache] maps identified sources (files, byte strings, segmented
// buffers) to overlapping, variably-sized cached byte ranges ("blocks")
// and hands out contiguous byte "frames" at caller-specified offsets
// and alignments. The cache does not interpret the data it holds; it is
// a general blob access layer.
//
// # Basic Usage
//
//	cache, err := blobcache.New(blobcache.Config{
//	    Name:         "font data",
//	    DataLimit:    1 << 20,
//	    AllocQuantum: 4096,
//	    ReadQuantum:  4096,
//	    TrimLimit:    1,
//	})
//	if err != nil {
//	    // handle [ErrInvalid]
//	}
//	defer cache.Destroy()
//
//	blob, err := cache.Create(src, blobcache.ModeRead, methods)
//	defer blob.Close()
//
//	m, err := blob.MapOpen()
//	frame, err := m.Region(offset, length, 4)
//	// ... use frame ...
//	m.Close()
//
// Sources are described to the cache through a [Methods] table; the
// table is the sole mechanism by which the cache touches the underlying
// data. Ready-made tables for memory, segmented and file sources live
// in the sibling source package.
//
// # Concurrency
//
// The cache is single-threaded cooperative. All operations on a cache -
// open, close, frames, purge, GC scan, restore commit - must execute
// serially on one logical actor. A cache may declare itself
// multi-thread safe at creation; the declaration is advisory to the
// low-memory registry only. Long walks call the configured
// [Config.Yield] hook so the host can interleave unrelated work.
//
// # Frame Lifetime
//
// Frames returned by [Map.Region] stay valid until the owning [Blob] is
// closed, with one exception: when the last mapping context on a cache
// closes, the cache's lock generation advances and previously returned
// frames may be invalidated by later allocations that steal their
// block. Do not retain frames across a full [Map.Close].
//
// # Error Handling
//
// Errors are classified by the sentinel values in this package
// ([ErrMemory], [ErrAccess], [ErrExpired], [ErrEndOfData],
// [ErrInvalid], [ErrIO]); callers classify with [errors.Is]. Violated
// internal invariants panic - they are programming errors, not error
// values.
package blobcache
