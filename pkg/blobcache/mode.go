package blobcache

// Mode is a bitset of blob access flags.
//
// ModeAppend, ModeTruncate and ModeCreate are forwarded to the source
// methods and not otherwise interpreted by the cache.
type Mode uint32

const (
	// ModeRead requests read access.
	ModeRead Mode = 1 << iota
	// ModeWrite requests write access.
	ModeWrite
	// ModeReadWrite requests combined read and write access.
	ModeReadWrite
	// ModeFont marks the blob as font data. Blobs sharing one source
	// must agree on this hint.
	ModeFont
	// ModeExclusive requests exclusive access to the source.
	ModeExclusive
	// ModeAppend asks the source to position writes at the end.
	ModeAppend
	// ModeTruncate asks the source to discard existing content.
	ModeTruncate
	// ModeCreate asks the source to create the underlying object if it
	// does not exist.
	ModeCreate
)

// modeAll is every flag the cache understands.
const modeAll = ModeRead | ModeWrite | ModeReadWrite | ModeFont |
	ModeExclusive | ModeAppend | ModeTruncate | ModeCreate

// modeHandle is the subset accepted when cloning an open blob.
const modeHandle = ModeRead | ModeWrite | ModeReadWrite | ModeFont | ModeExclusive

// normalize collapses ModeRead|ModeWrite into ModeReadWrite.
func (m Mode) normalize() Mode {
	if m&(ModeRead|ModeWrite) == (ModeRead | ModeWrite) {
		m = (m &^ (ModeRead | ModeWrite)) | ModeReadWrite
	}

	return m
}

// Readable reports whether the mode grants read access.
func (m Mode) Readable() bool {
	return m&(ModeRead|ModeReadWrite) != 0
}

// Writable reports whether the mode grants write access.
func (m Mode) Writable() bool {
	return m&(ModeWrite|ModeReadWrite) != 0
}

// hasAccess reports whether any access bit is set.
func (m Mode) hasAccess() bool {
	return m&(ModeRead|ModeWrite|ModeReadWrite) != 0
}
