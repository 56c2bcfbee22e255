package pdfdoc

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"math"
)

const (
	// MaxThumbnails caps how many leading pages get a thumbnail.
	MaxThumbnails = 50
	// DefaultThumbnailScale is the fixed scale thumbnails are laid out at.
	DefaultThumbnailScale = 0.2
)

// Thumbnail is a small layout preview of a page: the page outline with a box per text run.
type Thumbnail struct {
	Page   int    `json:"page"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
	PNG    []byte `json:"png"`
}

var (
	paper = color.RGBA{R: 255, G: 255, B: 255, A: 255}
	ink   = color.RGBA{R: 160, G: 160, B: 170, A: 255}
	edge  = color.RGBA{R: 210, G: 210, B: 215, A: 255}
)

// Thumbnails builds previews for the first min(limit, MaxThumbnails, NumPages) pages
// at the given scale, ignoring any viewer zoom or rotation. Pages that fail are
// skipped and reported as *PageError values.
func (d *Document) Thumbnails(limit int, scale float64) ([]Thumbnail, []error) {
	if limit <= 0 || limit > MaxThumbnails {
		limit = MaxThumbnails
	}
	if limit > d.numPages {
		limit = d.numPages
	}
	if scale <= 0 {
		scale = DefaultThumbnailScale
	}
	var (
		out  []Thumbnail
		errs []error
	)
	for n := 1; n <= limit; n++ {
		p, err := d.Page(n)
		if err != nil {
			errs = append(errs, &PageError{Page: n, Err: err})
			continue
		}
		th, err := RenderThumbnail(p, scale)
		if err != nil {
			errs = append(errs, &PageError{Page: n, Err: err})
			continue
		}
		out = append(out, th)
	}
	return out, errs
}

// RenderThumbnail draws the layout preview of p with the page's own rotation applied.
func RenderThumbnail(p *Page, scale float64) (Thumbnail, error) {
	vp := NewViewport(p, scale, 0)
	w := int(math.Ceil(vp.Width))
	h := int(math.Ceil(vp.Height))
	if w <= 0 || h <= 0 {
		return Thumbnail{}, fmt.Errorf("empty viewport %dx%d", w, h)
	}
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: paper}, image.Point{}, draw.Src)
	strokeBorder(img, edge)

	for _, run := range p.Runs {
		r := runBounds(run, vp.Transform).Intersect(img.Bounds())
		if r.Empty() {
			continue
		}
		draw.Draw(img, r, &image.Uniform{C: ink}, image.Point{}, draw.Src)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return Thumbnail{}, fmt.Errorf("encode thumbnail: %w", err)
	}
	return Thumbnail{Page: p.Number, Width: w, Height: h, PNG: buf.Bytes()}, nil
}

func strokeBorder(img *image.RGBA, c color.Color) {
	b := img.Bounds()
	for x := b.Min.X; x < b.Max.X; x++ {
		img.Set(x, b.Min.Y, c)
		img.Set(x, b.Max.Y-1, c)
	}
	for y := b.Min.Y; y < b.Max.Y; y++ {
		img.Set(b.Min.X, y, c)
		img.Set(b.Max.X-1, y, c)
	}
}

// runBounds maps the run's page-space box (baseline to ascent, origin to advance)
// through m and returns the device-space bounding rectangle.
func runBounds(run Run, m Matrix) image.Rectangle {
	x, y := run.Transform[4], run.Transform[5]
	corners := [4][2]float64{
		{x, y - (1-ascent)*run.Height},
		{x + run.Width, y - (1-ascent)*run.Height},
		{x, y + ascent*run.Height},
		{x + run.Width, y + ascent*run.Height},
	}
	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	for _, c := range corners {
		dx, dy := m.Apply(c[0], c[1])
		minX, maxX = math.Min(minX, dx), math.Max(maxX, dx)
		minY, maxY = math.Min(minY, dy), math.Max(maxY, dy)
	}
	return image.Rect(int(math.Floor(minX)), int(math.Floor(minY)), int(math.Ceil(maxX)), int(math.Ceil(maxY)))
}
