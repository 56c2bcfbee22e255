package extract

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"
)

// EmptyDocumentPlaceholder is the content of a document with no text.
const EmptyDocumentPlaceholder = "No text content found in document."

// docxDocumentXMLPath is the default path to the main document body inside a .docx zip.
const docxDocumentXMLPath = "word/document.xml"

// contentTypesPath is the path to [Content_Types].xml in OOXML packages.
const contentTypesPath = "[Content_Types].xml"

// docxMainContentType is the content type for the main document in DOCX files.
const docxMainContentType = "application/vnd.openxmlformats-officedocument.wordprocessingml.document.main+xml"

type contentTypes struct {
	Overrides []struct {
		PartName    string `xml:"PartName,attr"`
		ContentType string `xml:"ContentType,attr"`
	} `xml:"Override"`
}

// findDocxMainDocumentPath finds the main document path from [Content_Types].xml.
// Returns the path without leading slash, or empty string if not found.
func findDocxMainDocumentPath(zr *zip.Reader) string {
	for _, f := range zr.File {
		if f.Name != contentTypesPath {
			continue
		}
		data, err := readZipFile(f)
		if err != nil {
			return ""
		}
		var ct contentTypes
		if err := xml.Unmarshal(data, &ct); err != nil {
			return ""
		}
		for _, o := range ct.Overrides {
			if o.ContentType == docxMainContentType {
				return strings.TrimPrefix(o.PartName, "/")
			}
		}
		return ""
	}
	return ""
}

// extractDOCX returns the document's raw text: paragraphs separated by a blank line,
// <w:tab/> as a tab and <w:br/> as a newline. There is no page or section structure.
func extractDOCX(content []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", fmt.Errorf("extract DOCX: not a zip: %w", err)
	}

	// Find main document path from [Content_Types].xml, fall back to default
	docPath := findDocxMainDocumentPath(zr)
	if docPath == "" {
		docPath = docxDocumentXMLPath
	}

	var docXML []byte
	for _, f := range zr.File {
		if f.Name != docPath {
			continue
		}
		docXML, err = readZipFile(f)
		if err != nil {
			return "", fmt.Errorf("extract DOCX: %w", err)
		}
		break
	}
	if docXML == nil {
		return "", fmt.Errorf("extract DOCX: %s not found", docPath)
	}
	text, err := documentText(docXML)
	if err != nil {
		return "", fmt.Errorf("extract DOCX: parse %s: %w", docPath, err)
	}
	if strings.TrimSpace(text) == "" {
		return EmptyDocumentPlaceholder, nil
	}
	return text, nil
}

func documentText(data []byte) (string, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))
	var (
		paragraphs []string
		para       strings.Builder
		inText     bool
		inPara     bool
	)
	isW := func(n xml.Name, local string) bool {
		return isElement(n, wordprocessingMLNS, wordprocessingMLPfx, local)
	}
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch {
			case isW(t.Name, "p"):
				inPara = true
				para.Reset()
			case isW(t.Name, "t"):
				inText = true
			case isW(t.Name, "tab"):
				para.WriteByte('\t')
			case isW(t.Name, "br"), isW(t.Name, "cr"):
				para.WriteByte('\n')
			}
		case xml.EndElement:
			switch {
			case isW(t.Name, "t"):
				inText = false
			case isW(t.Name, "p"):
				if inPara {
					paragraphs = append(paragraphs, para.String())
				}
				inPara = false
			}
		case xml.CharData:
			if inText {
				para.Write(t)
			}
		}
	}
	return strings.TrimRight(strings.Join(paragraphs, "\n\n"), "\n"), nil
}
