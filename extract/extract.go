// Package extract defines the metadata extraction boundary. Extractors
// operate on fully untrusted bytes: whatever a user uploads is handed to
// the format parser as-is, so implementations must treat malformed input
// as "no metadata", never as a failure that could reach the ingestion
// path. Keeping the boundary this narrow also leaves room to add size
// limits or sandboxing later without touching callers.
package extract

// Metadata is the structured information pulled out of a recognized
// container format. Cover and CoverMime are set together or not at all.
type Metadata struct {
	Title     string
	Creator   string
	Cover     []byte
	CoverMime string
}

// Extractor attempts to parse structured metadata from raw bytes.
// The boolean result is false when the input is not a well-formed
// instance of the extractor's format or carries no usable metadata.
type Extractor interface {
	Extract(data []byte) (*Metadata, bool)
}

// Discard is the fallback extractor for unrecognized formats. It always
// reports no metadata.
var Discard Extractor = discard{}

type discard struct{}

func (discard) Extract([]byte) (*Metadata, bool) {
	return nil, false
}
