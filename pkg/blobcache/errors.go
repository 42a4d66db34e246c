package blobcache

import "errors"

// Error classification codes.
//
// Operations MAY wrap these errors with additional context; callers
// MUST classify errors using [errors.Is]. Errors returned by source
// method tables pass through unchanged, so a table may also surface its
// own error values.
var (
	// ErrMemory indicates a block or handle could not be provisioned.
	//
	// Frames also report ErrMemory when the source could not supply
	// enough bytes to cover the request.
	ErrMemory = errors.New("blobcache: memory")

	// ErrAccess indicates an exclusive-mode conflict or a mode-bit
	// mismatch (writing a read-only blob, mapping a write-only blob,
	// writing while frames are live).
	ErrAccess = errors.New("blobcache: access")

	// ErrExpired indicates the source identity was cleared by the
	// host garbage collector or restored away.
	//
	// The handle is unusable; Close still succeeds.
	ErrExpired = errors.New("blobcache: expired")

	// ErrEndOfData indicates a read at or past the end of the source,
	// or a seek to a position the blob cannot reach.
	ErrEndOfData = errors.New("blobcache: end of data")

	// ErrInvalid indicates invalid arguments: nil handles, an
	// alignment that is not a power of two or exceeds [MaxAlignment],
	// or an unsupported flag combination.
	//
	// This is a programming error.
	ErrInvalid = errors.New("blobcache: invalid")

	// ErrIO indicates a source method reported failure.
	ErrIO = errors.New("blobcache: io")
)
