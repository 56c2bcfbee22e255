package pdfdoc

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func letterPage(rotate int) *Page {
	return &Page{
		Number:   1,
		MediaBox: Letter,
		Rotate:   rotate,
		Runs: []Run{{
			Text:      "Hello",
			Transform: Matrix{12, 0, 0, 12, 72, 720},
			Width:     30,
			Height:    12,
		}},
	}
}

func TestNewViewport_rotations(t *testing.T) {
	tests := []struct {
		rotation      int
		width, height float64
		originX       float64
		originY       float64
	}{
		{0, 612, 792, 0, 792},
		{90, 792, 612, 0, 0},
		{180, 612, 792, 612, 0},
		{270, 792, 612, 792, 612},
	}
	for _, tt := range tests {
		vp := NewViewport(letterPage(0), 1, tt.rotation)
		assert.Equal(t, tt.rotation, vp.Rotation)
		assert.InDelta(t, tt.width, vp.Width, 1e-9, "rotation %d width", tt.rotation)
		assert.InDelta(t, tt.height, vp.Height, 1e-9, "rotation %d height", tt.rotation)
		x, y := vp.Transform.Apply(0, 0)
		assert.InDelta(t, tt.originX, x, 1e-9, "rotation %d origin x", tt.rotation)
		assert.InDelta(t, tt.originY, y, 1e-9, "rotation %d origin y", tt.rotation)
	}
}

func TestNewViewport_pageRotationCombines(t *testing.T) {
	vp := NewViewport(letterPage(90), 2, 270)
	assert.Equal(t, 0, vp.Rotation)
	assert.InDelta(t, 1224, vp.Width, 1e-9)
	assert.InDelta(t, 1584, vp.Height, 1e-9)
}

func TestOverlay_alignsWithScale(t *testing.T) {
	p := letterPage(0)

	items := Overlay(p, NewViewport(p, 1, 0))
	assert.Len(t, items, 1)
	assert.InDelta(t, 72, items[0].Left, 1e-9)
	assert.InDelta(t, 62.4, items[0].Top, 1e-9)
	assert.InDelta(t, 12, items[0].FontSize, 1e-9)
	assert.InDelta(t, 30, items[0].Width, 1e-9)
	assert.Zero(t, items[0].Angle)

	items = Overlay(p, NewViewport(p, 2, 0))
	assert.InDelta(t, 144, items[0].Left, 1e-9)
	assert.InDelta(t, 124.8, items[0].Top, 1e-9)
	assert.InDelta(t, 24, items[0].FontSize, 1e-9)
	assert.InDelta(t, 60, items[0].Width, 1e-9)
}

func TestOverlay_rotated(t *testing.T) {
	p := letterPage(0)
	items := Overlay(p, NewViewport(p, 1, 90))
	assert.Len(t, items, 1)
	// Baseline origin (72, 720) maps to device (720, 72) when turned a quarter clockwise.
	assert.NotZero(t, items[0].Angle)
	assert.InDelta(t, 12, items[0].FontSize, 1e-9)
}

func TestMatrix_Multiply(t *testing.T) {
	scale := Matrix{2, 0, 0, 2, 0, 0}
	translate := Matrix{1, 0, 0, 1, 10, 20}
	x, y := scale.Multiply(translate).Apply(1, 1)
	assert.Equal(t, 22.0, x)
	assert.Equal(t, 42.0, y)
	assert.Equal(t, translate, Identity.Multiply(translate))
}
