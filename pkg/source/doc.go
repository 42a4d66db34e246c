// Package source provides ready-made data sources for the blob cache:
// in-memory byte buffers, segmented buffers, and files.
//
// Each source kind is a pair of an identity type and a [blobcache.Methods]
// table. Identities are matched by the cache so that independently
// created handles over the same underlying data share cached blocks.
//
// The package also carries the blob factories: [FromMemory] opens a
// blob over a byte buffer, [OpenNamed] opens a file by name against the
// process-wide default store.
package source
