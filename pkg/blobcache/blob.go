package blobcache

import (
	"fmt"
	"io"
)

// Blob is a reference-counted handle over a cache entry: the
// caller-facing unit of access. Each handle carries its own seek
// position and mode; all handles over one identifiable source share the
// entry and its blocks.
//
// A Blob must be obtained via [Cache.Create], [Blob.Open] or a source
// factory; the zero value is not usable.
type Blob struct {
	_ [0]func() // prevent external construction

	data     *blobData
	cache    *Cache
	pos      uint64
	mode     Mode
	refcount int // includes references from open mapping contexts
	maps     []*Map
}

// Create opens a blob handle over the given source. The source is
// matched against existing cache entries through the method table, so
// two handles over the same identifiable source share cached blocks.
//
// Possible errors: [ErrInvalid], [ErrAccess], [ErrMemory], and source
// method errors unchanged.
func (c *Cache) Create(src Source, mode Mode, methods Methods) (*Blob, error) {
	if c == nil || src == nil || methods == nil {
		return nil, fmt.Errorf("no cache, source or methods: %w", ErrInvalid)
	}

	if !mode.hasAccess() {
		return nil, fmt.Errorf("no access mode: %w", ErrAccess)
	}

	data, err := c.openData(src, methods, mode)
	if err != nil {
		return nil, err
	}

	c.retain()

	return &Blob{
		data:     data,
		cache:    c,
		mode:     mode.normalize(),
		refcount: 1,
	}, nil
}

// Open clones the handle. The clone inherits the current seek position
// but not the open mappings, and holds its own reference to the shared
// entry.
//
// Possible errors: [ErrInvalid] (unsupported flags), [ErrExpired],
// [ErrAccess].
func (b *Blob) Open(mode Mode) (*Blob, error) {
	if b == nil {
		return nil, fmt.Errorf("nil blob: %w", ErrInvalid)
	}

	if mode&^modeHandle != 0 {
		return nil, fmt.Errorf("unsupported mode flags: %w", ErrInvalid)
	}

	if b.data.source == nil {
		return nil, ErrExpired
	}

	nb, err := b.cache.Create(b.data.source, mode, b.data.methods)
	if err != nil {
		return nil, err
	}

	nb.pos = b.pos

	return nb, nil
}

// Close releases one reference to the handle. On the last reference the
// entry use ends and the cache reference is dropped. Close succeeds
// even after the source has expired, and closing an already-closed
// handle is a no-op.
func (b *Blob) Close() {
	if b == nil || b.data == nil {
		return
	}

	if b.refcount <= 0 {
		panic("blobcache: blob refcount underflow")
	}

	b.refcount--
	if b.refcount > 0 {
		return
	}

	if len(b.maps) != 0 {
		panic("blobcache: blob closed with open mappings")
	}

	b.data.closeData()
	b.cache.release()
	b.data = nil
}

// Length reports the source's current length.
//
// Possible errors: [ErrInvalid], [ErrExpired], and source method errors.
func (b *Blob) Length() (uint64, error) {
	if b == nil || b.data == nil {
		return 0, fmt.Errorf("nil blob: %w", ErrInvalid)
	}

	if b.data.source == nil {
		return 0, ErrExpired
	}

	return b.data.methods.Length(b.data.source, b.data.private)
}

// Tell returns the handle's current seek position.
//
// Possible errors: [ErrInvalid], [ErrExpired].
func (b *Blob) Tell() (uint64, error) {
	if b == nil || b.data == nil {
		return 0, fmt.Errorf("nil blob: %w", ErrInvalid)
	}

	if b.data.source == nil {
		return 0, ErrExpired
	}

	return b.pos, nil
}

// Protection reports the source's protection classification.
//
// Possible errors: [ErrInvalid], [ErrExpired].
func (b *Blob) Protection() (Protection, error) {
	if b == nil || b.data == nil {
		return ProtectionNone, fmt.Errorf("nil blob: %w", ErrInvalid)
	}

	if b.data.source == nil {
		return ProtectionNone, ErrExpired
	}

	return b.data.methods.Protection(b.data.source, b.data.private), nil
}

// Read reads up to len(buf) bytes from the current position and
// advances it. Each handle's position is independent, even between
// handles sharing one source.
//
// Possible errors: [ErrInvalid], [ErrExpired], [ErrAccess],
// [ErrEndOfData] (zero bytes available).
func (b *Blob) Read(buf []byte) (int, error) {
	if b == nil || b.data == nil || buf == nil {
		return 0, fmt.Errorf("nil blob or buffer: %w", ErrInvalid)
	}

	if b.data.source == nil {
		return 0, ErrExpired
	}

	if !b.mode.Readable() {
		return 0, fmt.Errorf("blob not readable: %w", ErrAccess)
	}

	n := b.data.methods.ReadAt(b.data.source, b.data.private, buf, b.pos)
	if n == 0 {
		return 0, ErrEndOfData
	}

	b.pos += uint64(n)

	return n, nil
}

// Write writes buf at the current position and advances it. Writing is
// rejected while the entry holds live blocks: mapped frames must not
// change underneath their readers.
//
// Possible errors: [ErrInvalid], [ErrExpired], [ErrAccess], and source
// method errors.
func (b *Blob) Write(buf []byte) error {
	if b == nil || b.data == nil || buf == nil {
		return fmt.Errorf("nil blob or buffer: %w", ErrInvalid)
	}

	if b.data.source == nil {
		return ErrExpired
	}

	if !b.mode.Writable() {
		return fmt.Errorf("blob not writable: %w", ErrAccess)
	}

	if len(b.data.blocks) > 0 {
		return fmt.Errorf("blob has mapped blocks: %w", ErrAccess)
	}

	err := b.data.methods.WriteAt(b.data.source, b.data.private, buf, b.pos)
	if err != nil {
		return err
	}

	b.pos += uint64(len(buf))

	return nil
}

// extendChunk bounds each zero-fill write used when seeking past the
// end of a writable blob.
const extendChunk = 1024

// Seek adjusts the handle's position. whence is one of [io.SeekStart],
// [io.SeekCurrent], [io.SeekEnd]. Seeking before the start reports
// [ErrEndOfData]. Seeking past the end of a writable handle extends the
// source with zeros; on a read-only handle it reports [ErrEndOfData].
//
// Possible errors: [ErrInvalid], [ErrExpired], [ErrEndOfData], and
// source method errors.
func (b *Blob) Seek(offset int64, whence int) error {
	length, err := b.Length()
	if err != nil {
		return err
	}

	var pos int64

	switch whence {
	case io.SeekStart:
		pos = offset
	case io.SeekCurrent:
		pos = int64(b.pos) + offset
	case io.SeekEnd:
		pos = int64(length) + offset
	default:
		return fmt.Errorf("seek whence %d: %w", whence, ErrInvalid)
	}

	if pos < 0 {
		return ErrEndOfData
	}

	if uint64(pos) > length {
		// Extending is fine with blocks mapped; the zero fill cannot
		// change the contents of any cached block.
		if !b.mode.Writable() {
			return ErrEndOfData
		}

		extra := uint64(pos) - length

		var zeros [extendChunk]byte

		for extra > 0 {
			chunk := uint64(extendChunk)
			if extra < chunk {
				chunk = extra
			}

			err := b.data.methods.WriteAt(b.data.source, b.data.private, zeros[:chunk], length)
			if err != nil {
				return err
			}

			extra -= chunk
			length += chunk
		}
	}

	b.pos = uint64(pos)

	return nil
}
