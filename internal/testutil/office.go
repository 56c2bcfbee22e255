package testutil

import (
	"archive/zip"
	"bytes"
	"fmt"
	"html"
	"strings"
)

// ZipEntry is one named part of a generated archive.
type ZipEntry struct {
	Name string
	Body string
}

// Zip writes the entries, in the given order, into a zip archive.
func Zip(entries ...ZipEntry) []byte {
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for _, e := range entries {
		fw, err := w.Create(e.Name)
		if err != nil {
			panic(err)
		}
		if _, err := fw.Write([]byte(e.Body)); err != nil {
			panic(err)
		}
	}
	if err := w.Close(); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

// SlideXML returns slide markup with one <a:t> run per argument.
func SlideXML(runs ...string) string {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8" standalone="yes"?>`)
	b.WriteString(`<p:sld xmlns:a="http://schemas.openxmlformats.org/drawingml/2006/main" xmlns:p="http://schemas.openxmlformats.org/presentationml/2006/main"><p:cSld><p:spTree><p:sp><p:txBody>`)
	for _, r := range runs {
		fmt.Fprintf(&b, `<a:p><a:r><a:rPr lang="en-US"/><a:t>%s</a:t></a:r></a:p>`, html.EscapeString(r))
	}
	b.WriteString(`</p:txBody></p:sp></p:spTree></p:cSld></p:sld>`)
	return b.String()
}

// Slide is a numbered slide for PPTX.
type Slide struct {
	Number int
	Runs   []string
}

// PPTX returns a presentation whose slide parts appear in the archive in the given order.
func PPTX(slides ...Slide) []byte {
	entries := []ZipEntry{{Name: "[Content_Types].xml", Body: `<?xml version="1.0"?><Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types"/>`}}
	for _, s := range slides {
		entries = append(entries, ZipEntry{
			Name: fmt.Sprintf("ppt/slides/slide%d.xml", s.Number),
			Body: SlideXML(s.Runs...),
		})
	}
	return Zip(entries...)
}

// DocumentXML returns word/document.xml markup with one paragraph per argument.
func DocumentXML(paragraphs ...string) string {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8" standalone="yes"?>`)
	b.WriteString(`<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>`)
	for _, p := range paragraphs {
		fmt.Fprintf(&b, `<w:p w:rsidR="00A1"><w:r><w:t xml:space="preserve">%s</w:t></w:r></w:p>`, html.EscapeString(p))
	}
	b.WriteString(`</w:body></w:document>`)
	return b.String()
}

// DOCX returns a document with word/document.xml holding the given paragraphs.
func DOCX(paragraphs ...string) []byte {
	return Zip(ZipEntry{Name: "word/document.xml", Body: DocumentXML(paragraphs...)})
}
