package pdfdoc

import (
	"math"
)

// Matrix is an affine transform [a b c d e f]: x' = a*x + c*y + e, y' = b*x + d*y + f.
type Matrix [6]float64

// Identity is the identity transform.
var Identity = Matrix{1, 0, 0, 1, 0, 0}

// Multiply returns m applied after n (m x n).
func (m Matrix) Multiply(n Matrix) Matrix {
	return Matrix{
		m[0]*n[0] + m[2]*n[1],
		m[1]*n[0] + m[3]*n[1],
		m[0]*n[2] + m[2]*n[3],
		m[1]*n[2] + m[3]*n[3],
		m[0]*n[4] + m[2]*n[5] + m[4],
		m[1]*n[4] + m[3]*n[5] + m[5],
	}
}

// Apply transforms the point (x, y).
func (m Matrix) Apply(x, y float64) (float64, float64) {
	return m[0]*x + m[2]*y + m[4], m[1]*x + m[3]*y + m[5]
}

// Viewport maps page space (origin bottom-left, y up) to device pixels
// (origin top-left, y down) for a given scale and rotation.
type Viewport struct {
	Scale    float64 `json:"scale"`
	Rotation int     `json:"rotation"`
	Width    float64 `json:"width"`
	Height   float64 `json:"height"`
	// Transform is scale x rotation x page-to-device.
	Transform Matrix `json:"transform"`
}

// NewViewport computes the viewport for a page. rotation is added to the page's own /Rotate.
func NewViewport(p *Page, scale float64, rotation int) Viewport {
	box := p.MediaBox
	rot := NormalizeRotation(p.Rotate + rotation)
	cx := (box.X1 + box.X0) / 2
	cy := (box.Y1 + box.Y0) / 2

	var a, b, c, d float64
	switch rot {
	case 90:
		a, b, c, d = 0, 1, 1, 0
	case 180:
		a, b, c, d = -1, 0, 0, 1
	case 270:
		a, b, c, d = 0, -1, -1, 0
	default:
		a, b, c, d = 1, 0, 0, -1
	}

	var offX, offY, width, height float64
	if a == 0 {
		offX = math.Abs(cy-box.Y0) * scale
		offY = math.Abs(cx-box.X0) * scale
		width = box.Height() * scale
		height = box.Width() * scale
	} else {
		offX = math.Abs(cx-box.X0) * scale
		offY = math.Abs(cy-box.Y0) * scale
		width = box.Width() * scale
		height = box.Height() * scale
	}

	return Viewport{
		Scale:    scale,
		Rotation: rot,
		Width:    width,
		Height:   height,
		Transform: Matrix{
			a * scale, b * scale,
			c * scale, d * scale,
			offX - a*scale*cx - c*scale*cy,
			offY - b*scale*cx - d*scale*cy,
		},
	}
}

// OverlayItem positions one run of the invisible selectable text layer in device pixels.
type OverlayItem struct {
	Text     string  `json:"text"`
	Left     float64 `json:"left"`
	Top      float64 `json:"top"`
	FontSize float64 `json:"font_size"`
	// Width is the run's advance in device pixels, used to stretch the overlay text.
	Width      float64 `json:"width"`
	Angle      float64 `json:"angle"` // radians
	FontFamily string  `json:"font_family"`
}

// ascent is the fraction of the font height above the baseline when font metrics are unknown.
const ascent = 0.8

// Overlay places every run of p through vp, aligned with a raster rendered at the same viewport.
func Overlay(p *Page, vp Viewport) []OverlayItem {
	items := make([]OverlayItem, 0, len(p.Runs))
	for _, r := range p.Runs {
		tx := vp.Transform.Multiply(r.Transform)
		angle := math.Atan2(tx[1], tx[0])
		fontHeight := math.Hypot(tx[2], tx[3])
		fontAscent := fontHeight * ascent

		left, top := tx[4], tx[5]-fontAscent
		if angle != 0 {
			left = tx[4] + fontAscent*math.Sin(angle)
			top = tx[5] - fontAscent*math.Cos(angle)
		}
		items = append(items, OverlayItem{
			Text:       r.Text,
			Left:       left,
			Top:        top,
			FontSize:   fontHeight,
			Width:      r.Width * vp.Scale,
			Angle:      angle,
			FontFamily: r.FontFamily,
		})
	}
	return items
}
