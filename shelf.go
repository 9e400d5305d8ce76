// Package shelf provides content-addressed ingestion and retrieval of
// user-owned documents, primarily e-books.
//
// Uploaded bytes are deduplicated by content digest: each distinct
// payload is stored exactly once in a filesystem blob store, classified
// by filename extension against a lazily-populated type registry, and
// best-effort enriched with metadata (title, creator, cover image)
// parsed from recognized container formats. Every upload event produces
// its own catalog entry scoped to the uploading owner, so identical
// bytes uploaded by two owners share one blob and one metadata row but
// remain independently listed and removable.
package shelf

import (
	"github.com/meigma/shelf/registry"
)

// --- Re-exports from registry ---

// Entry is one upload event in the catalog.
type Entry = registry.Entry

// FileType is a canonical file-type record keyed by lowercase extension.
type FileType = registry.FileType

// Metadata is the hash-keyed enrichment extracted from recognized
// container formats.
type Metadata = registry.Metadata

// Descriptor joins a catalog entry with its file type and, when
// extraction ever succeeded for its content, the shared metadata row.
type Descriptor struct {
	Entry    Entry
	FileType FileType

	// Metadata is nil when no metadata was ever extracted for the
	// entry's content hash.
	Metadata *Metadata
}

// Cover frames a stored cover image for serving: the on-disk path, the
// declared mime type, and a display name.
type Cover struct {
	Path string
	Mime string
	Name string
}
