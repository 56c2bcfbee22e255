// Package testutil builds small PDF and Office Open XML files in memory for tests.
package testutil

import (
	"bytes"
	"fmt"
	"strings"
)

// TextItem is a string drawn at an absolute baseline position in Helvetica.
type TextItem struct {
	X, Y float64
	Size float64
	Text string
}

// PDFPage describes one page of a generated PDF.
type PDFPage struct {
	// Lines are drawn top to bottom starting at (72, 720), 14pt apart, 12pt size.
	Lines []string
	// Items are drawn in addition to Lines, at their own positions.
	Items []TextItem
	// Rotate sets the page /Rotate entry.
	Rotate int
}

// PDF returns a valid PDF with one page per argument, each page showing its lines.
func PDF(pages ...[]string) []byte {
	ps := make([]PDFPage, len(pages))
	for i, lines := range pages {
		ps[i] = PDFPage{Lines: lines}
	}
	return BuildPDF(ps...)
}

// BuildPDF returns a valid PDF (US Letter, Helvetica without width tables) with
// a correct cross-reference table.
func BuildPDF(pages ...PDFPage) []byte {
	var objs []string
	// 1 catalog, 2 page tree, 3 font, then page/content pairs.
	kids := make([]string, len(pages))
	for i := range pages {
		kids[i] = fmt.Sprintf("%d 0 R", 4+2*i)
	}
	objs = append(objs,
		"<< /Type /Catalog /Pages 2 0 R >>",
		fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d /MediaBox [0 0 612 792] /Resources << /Font << /F1 3 0 R >> >> >>",
			strings.Join(kids, " "), len(pages)),
		"<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica >>",
	)
	for i, p := range pages {
		stream := contentStream(p)
		page := fmt.Sprintf("<< /Type /Page /Parent 2 0 R /Contents %d 0 R", 5+2*i)
		if p.Rotate != 0 {
			page += fmt.Sprintf(" /Rotate %d", p.Rotate)
		}
		page += " >>"
		objs = append(objs, page,
			fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(stream), stream))
	}

	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objs))
	for i, o := range objs {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, o)
	}
	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n", len(objs)+1)
	buf.WriteString("0000000000 65535 f \n")
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objs)+1, xref)
	return buf.Bytes()
}

func contentStream(p PDFPage) string {
	var b strings.Builder
	y := 720.0
	for _, line := range p.Lines {
		fmt.Fprintf(&b, "BT /F1 12 Tf 1 0 0 1 72 %g Tm (%s) Tj ET\n", y, escapePDFString(line))
		y -= 14
	}
	for _, it := range p.Items {
		size := it.Size
		if size == 0 {
			size = 12
		}
		fmt.Fprintf(&b, "BT /F1 %g Tf 1 0 0 1 %g %g Tm (%s) Tj ET\n", size, it.X, it.Y, escapePDFString(it.Text))
	}
	return strings.TrimSuffix(b.String(), "\n")
}

func escapePDFString(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `(`, `\(`, `)`, `\)`)
	return r.Replace(s)
}
