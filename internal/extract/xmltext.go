package extract

import (
	"bytes"
	"encoding/xml"
	"errors"
	"io"
	"strings"
)

// XML namespaces of the text-bearing elements in Office Open XML parts.
const (
	drawingMLNamespace  = "http://schemas.openxmlformats.org/drawingml/2006/main"
	wordprocessingMLNS  = "http://schemas.openxmlformats.org/wordprocessingml/2006/main"
	drawingMLPrefix     = "a"
	wordprocessingMLPfx = "w"
)

// isElement matches a namespaced element, also accepting the bare prefix for
// parts that omit the namespace declaration.
func isElement(name xml.Name, namespace, prefix, local string) bool {
	return name.Local == local && (name.Space == namespace || name.Space == prefix)
}

// textRuns returns the character data of every <a:t> element in document order.
// Entities are decoded and nested markup inside a run is ignored.
func textRuns(data []byte) ([]string, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))
	var (
		runs  []string
		depth int
		cur   strings.Builder
	)
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if isElement(t.Name, drawingMLNamespace, drawingMLPrefix, "t") {
				depth++
			}
		case xml.EndElement:
			if depth > 0 && isElement(t.Name, drawingMLNamespace, drawingMLPrefix, "t") {
				depth--
				if depth == 0 {
					runs = append(runs, cur.String())
					cur.Reset()
				}
			}
		case xml.CharData:
			if depth > 0 {
				cur.Write(t)
			}
		}
	}
	return runs, nil
}
