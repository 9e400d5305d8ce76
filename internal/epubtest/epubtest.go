// Package epubtest builds minimal EPUB containers in memory for tests.
package epubtest

import (
	"archive/zip"
	"bytes"
	"fmt"
)

// Book describes the container to build. Cover is optional; when set,
// CoverMeta selects the EPUB 2 meta reference and CoverProperty the
// EPUB 3 cover-image property (either or both).
type Book struct {
	Title         string
	Creator       string
	Cover         []byte
	CoverMime     string
	CoverMeta     bool
	CoverProperty bool

	// OmitContainer drops META-INF/container.xml to simulate a broken
	// container.
	OmitContainer bool
}

const textXHTML = `<?xml version="1.0" encoding="UTF-8"?>
<html xmlns="http://www.w3.org/1999/xhtml"><head><title>text</title></head>
<body><p>text</p></body></html>`

const containerXML = `<?xml version="1.0" encoding="UTF-8"?>
<container version="1.0" xmlns="urn:oasis:names:tc:opendocument:xmlns:container">
  <rootfiles>
    <rootfile full-path="OEBPS/content.opf" media-type="application/oebps-package+xml"/>
  </rootfiles>
</container>`

// Build returns the zip bytes of the described EPUB. It panics on
// in-memory zip failures, which indicate a broken test, not a runtime
// condition.
func Build(b Book) []byte {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)

	write := func(name string, content []byte) {
		w, err := zw.Create(name)
		if err != nil {
			panic(fmt.Sprintf("epubtest: create %s: %v", name, err))
		}
		if _, err := w.Write(content); err != nil {
			panic(fmt.Sprintf("epubtest: write %s: %v", name, err))
		}
	}

	// The mimetype entry must be first and stored uncompressed.
	mt, err := zw.CreateHeader(&zip.FileHeader{Name: "mimetype", Method: zip.Store})
	if err != nil {
		panic(fmt.Sprintf("epubtest: create mimetype: %v", err))
	}
	if _, err := mt.Write([]byte("application/epub+zip")); err != nil {
		panic(fmt.Sprintf("epubtest: write mimetype: %v", err))
	}

	if !b.OmitContainer {
		write("META-INF/container.xml", []byte(containerXML))
	}
	write("OEBPS/content.opf", opf(b))
	write("OEBPS/text.xhtml", []byte(textXHTML))
	if b.Cover != nil {
		write("OEBPS/cover.jpg", b.Cover)
	}

	if err := zw.Close(); err != nil {
		panic(fmt.Sprintf("epubtest: close zip: %v", err))
	}
	return buf.Bytes()
}

func opf(b Book) []byte {
	var buf bytes.Buffer
	buf.WriteString(`<?xml version="1.0" encoding="UTF-8"?>
<package xmlns="http://www.idpf.org/2007/opf" xmlns:dc="http://purl.org/dc/elements/1.1/" version="3.0">
  <metadata>
`)
	if b.Title != "" {
		fmt.Fprintf(&buf, "    <dc:title>%s</dc:title>\n", b.Title)
	}
	if b.Creator != "" {
		fmt.Fprintf(&buf, "    <dc:creator>%s</dc:creator>\n", b.Creator)
	}
	if b.Cover != nil && b.CoverMeta {
		buf.WriteString(`    <meta name="cover" content="cover-img"/>` + "\n")
	}
	buf.WriteString("  </metadata>\n  <manifest>\n")
	if b.Cover != nil {
		prop := ""
		if b.CoverProperty {
			prop = ` properties="cover-image"`
		}
		fmt.Fprintf(&buf, `    <item id="cover-img" href="cover.jpg" media-type="%s"%s/>`+"\n",
			b.CoverMime, prop)
	}
	buf.WriteString(`    <item id="text" href="text.xhtml" media-type="application/xhtml+xml"/>
  </manifest>
  <spine>
    <itemref idref="text"/>
  </spine>
</package>`)
	return buf.Bytes()
}
