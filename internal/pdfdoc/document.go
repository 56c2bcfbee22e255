// Package pdfdoc opens PDF files and exposes page text runs, page geometry,
// viewport transforms, text overlays, search and thumbnails.
package pdfdoc

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/ledongthuc/pdf"
)

var (
	// ErrNoPages is returned when a document parses but reports no pages.
	ErrNoPages = errors.New("pdf has no pages")
	// ErrPageRange is returned for page numbers outside [1, NumPages].
	ErrPageRange = errors.New("page out of range")
)

// Letter is the page size used when a page has no usable MediaBox.
var Letter = Box{X0: 0, Y0: 0, X1: 612, Y1: 792}

// Box is a rectangle in PDF user space (points, y up).
type Box struct {
	X0, Y0, X1, Y1 float64
}

// Width returns the horizontal extent of the box.
func (b Box) Width() float64 { return math.Abs(b.X1 - b.X0) }

// Height returns the vertical extent of the box.
func (b Box) Height() float64 { return math.Abs(b.Y1 - b.Y0) }

// Document is a parsed PDF. Page text is extracted lazily and cached.
type Document struct {
	reader   *pdf.Reader
	numPages int

	mu    sync.Mutex
	pages map[int]*Page
}

// Open parses data as a PDF. Parser panics on malformed input are returned as errors.
func Open(data []byte) (doc *Document, err error) {
	defer func() {
		if r := recover(); r != nil {
			doc = nil
			err = fmt.Errorf("open pdf: malformed document: %v", r)
		}
	}()
	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}
	n := r.NumPage()
	if n <= 0 {
		return nil, ErrNoPages
	}
	return &Document{reader: r, numPages: n, pages: make(map[int]*Page)}, nil
}

// NumPages returns the page count from the page tree.
func (d *Document) NumPages() int {
	return d.numPages
}

// Page returns page n (1-based) with its geometry and text runs.
func (d *Document) Page(n int) (*Page, error) {
	if n < 1 || n > d.numPages {
		return nil, fmt.Errorf("%w: %d not in [1, %d]", ErrPageRange, n, d.numPages)
	}
	d.mu.Lock()
	cached, ok := d.pages[n]
	d.mu.Unlock()
	if ok {
		return cached, nil
	}
	p, err := d.loadPage(n)
	if err != nil {
		return nil, err
	}
	d.mu.Lock()
	d.pages[n] = p
	d.mu.Unlock()
	return p, nil
}

func (d *Document) loadPage(n int) (page *Page, err error) {
	defer func() {
		if r := recover(); r != nil {
			page = nil
			err = fmt.Errorf("page %d: malformed content: %v", n, r)
		}
	}()
	p := d.reader.Page(n)
	if p.V.IsNull() {
		return nil, fmt.Errorf("page %d: not found in page tree", n)
	}
	content := p.Content()
	return &Page{
		Number:   n,
		MediaBox: mediaBox(p.V),
		Rotate:   pageRotation(p.V),
		Runs:     groupRuns(content.Text),
	}, nil
}

// inherited walks the page tree upward until key is found.
func inherited(v pdf.Value, key string) pdf.Value {
	for ; !v.IsNull(); v = v.Key("Parent") {
		if r := v.Key(key); !r.IsNull() {
			return r
		}
	}
	return pdf.Value{}
}

func mediaBox(v pdf.Value) Box {
	mb := inherited(v, "MediaBox")
	if mb.Kind() != pdf.Array || mb.Len() != 4 {
		return Letter
	}
	b := Box{
		X0: mb.Index(0).Float64(),
		Y0: mb.Index(1).Float64(),
		X1: mb.Index(2).Float64(),
		Y1: mb.Index(3).Float64(),
	}
	if b.Width() == 0 || b.Height() == 0 {
		return Letter
	}
	// Normalize so X0,Y0 is the lower-left corner.
	if b.X0 > b.X1 {
		b.X0, b.X1 = b.X1, b.X0
	}
	if b.Y0 > b.Y1 {
		b.Y0, b.Y1 = b.Y1, b.Y0
	}
	return b
}

func pageRotation(v pdf.Value) int {
	return NormalizeRotation(int(inherited(v, "Rotate").Int64()))
}

// NormalizeRotation maps any angle to 0, 90, 180 or 270, rounding to the nearest quarter turn.
func NormalizeRotation(deg int) int {
	r := ((deg % 360) + 360) % 360
	return ((r + 45) / 90 * 90) % 360
}
