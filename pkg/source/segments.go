package source

import (
	"fmt"

	"github.com/calvinalkan/blobcache/pkg/blobcache"
)

// Segments is a source identity over a sequence of byte segments
// presented as one logical buffer. Zero-copy views never cross a
// segment boundary; frames spanning segments are assembled by the
// cache.
type Segments struct {
	segs  [][]byte
	total uint64
}

// NewSegments creates a source identity over the given segments. The
// segments are shared, not copied.
func NewSegments(segs [][]byte) *Segments {
	s := &Segments{segs: segs}
	for _, seg := range segs {
		s.total += uint64(len(seg))
	}

	return s
}

// locate finds the segment containing offset and the offset within it.
func (s *Segments) locate(offset uint64) (int, int) {
	for i, seg := range s.segs {
		if offset < uint64(len(seg)) {
			return i, int(offset)
		}

		offset -= uint64(len(seg))
	}

	return -1, 0
}

// SegmentsMethods is the method table for [Segments] sources.
var SegmentsMethods blobcache.Methods = segmentsMethods{}

type segmentsMethods struct{}

func (segmentsMethods) Same(a, b blobcache.Source) bool {
	return a == b
}

func (segmentsMethods) Create(blobcache.Source) (any, error) { return nil, nil }

func (segmentsMethods) Destroy(blobcache.Source, any) {}

func (segmentsMethods) Open(blobcache.Source, any, blobcache.Mode) error { return nil }

func (segmentsMethods) Close(blobcache.Source, any) {}

// Available serves the remainder of the segment containing offset.
func (segmentsMethods) Available(src blobcache.Source, _ any, offset uint64) []byte {
	s := src.(*Segments)

	i, rest := s.locate(offset)
	if i < 0 {
		return nil
	}

	return s.segs[i][rest:]
}

func (segmentsMethods) ReadAt(src blobcache.Source, _ any, dst []byte, offset uint64) int {
	s := src.(*Segments)

	i, rest := s.locate(offset)
	if i < 0 {
		return 0
	}

	read := 0

	for read < len(dst) && i < len(s.segs) {
		read += copy(dst[read:], s.segs[i][rest:])
		rest = 0
		i++
	}

	return read
}

func (segmentsMethods) WriteAt(blobcache.Source, any, []byte, uint64) error {
	return fmt.Errorf("segmented source is read-only: %w", blobcache.ErrAccess)
}

func (segmentsMethods) Length(src blobcache.Source, _ any) (uint64, error) {
	return src.(*Segments).total, nil
}

func (segmentsMethods) Protection(blobcache.Source, any) blobcache.Protection {
	return blobcache.ProtectionNone
}

func (segmentsMethods) Restored(blobcache.Source, any, int) blobcache.Source { return nil }

func (segmentsMethods) Regenerable() bool { return true }
