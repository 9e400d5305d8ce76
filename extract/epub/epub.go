// Package epub extracts title, creator, and cover image from EPUB
// containers.
//
// Parsing is delegated to github.com/simp-lee/epub, which reads EPUB 2
// and EPUB 3 Dublin Core metadata and tries multiple cover-detection
// strategies (EPUB 3 properties, EPUB 2 meta reference, guide entry,
// manifest heuristic). Input is untrusted: every parse failure (not a
// zip, DRM protection, structural problems, missing title, missing
// cover) degrades to "no metadata" or "no cover", never to an error on
// the ingestion path.
package epub

import (
	"bytes"
	"net/http"
	"strings"

	epublib "github.com/simp-lee/epub"

	"github.com/meigma/shelf/extract"
)

// Extractor parses EPUB 2 and EPUB 3 containers.
type Extractor struct{}

// New returns an EPUB extractor.
func New() Extractor {
	return Extractor{}
}

// Extract implements extract.Extractor. A result is produced only when
// the container parses and declares a non-empty title; the cover is
// optional on top of that.
func (Extractor) Extract(data []byte) (*extract.Metadata, bool) {
	book, err := epublib.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, false
	}
	defer book.Close()

	info := book.Metadata()
	var title string
	if len(info.Titles) > 0 {
		title = strings.TrimSpace(info.Titles[0])
	}
	if title == "" {
		return nil, false
	}
	md := &extract.Metadata{Title: title}
	if len(info.Authors) > 0 {
		md.Creator = strings.TrimSpace(info.Authors[0].Name)
	}

	if cover, err := book.Cover(); err == nil && len(cover.Data) > 0 {
		md.Cover = cover.Data
		// The manifest's declared media type is optional and
		// unverified; sniff the bytes instead.
		md.CoverMime = http.DetectContentType(cover.Data)
	}

	return md, true
}
