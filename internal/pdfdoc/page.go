package pdfdoc

import (
	"math"
	"strings"
	"unicode"

	"github.com/ledongthuc/pdf"
)

// RunSeparator joins runs into a page's flattened text. Ingestion and search both use it.
const RunSeparator = " "

// Page is one page's geometry and positioned text.
type Page struct {
	Number   int
	MediaBox Box
	// Rotate is the page's own /Rotate in degrees (0, 90, 180, 270).
	Rotate int
	Runs   []Run
}

// Run is a contiguous fragment of text sharing font, size and baseline.
type Run struct {
	Text string `json:"text"`
	// Transform maps glyph space to page space: [a b c d e f], with e,f the baseline origin.
	Transform  Matrix  `json:"transform"`
	Width      float64 `json:"width"`
	Height     float64 `json:"height"`
	FontFamily string  `json:"font_family"`
}

// Text returns the page's flattened text: run strings joined with RunSeparator.
func (p *Page) Text() string {
	parts := make([]string, len(p.Runs))
	for i, r := range p.Runs {
		parts[i] = r.Text
	}
	return strings.Join(parts, RunSeparator)
}

const (
	// maxRunGap is the widest horizontal gap, in ems, still treated as the same run.
	maxRunGap = 0.5
	// wordGap is the gap, in ems, above which a space is inserted inside a run.
	wordGap = 0.2
	// overlap tolerates kerning that pulls a glyph slightly left of the previous advance.
	overlap = 0.5
	// estimatedAdvance is the per-character width, in ems, used when a font has no widths.
	estimatedAdvance = 0.5
)

type runBuilder struct {
	text      strings.Builder
	font      string
	size      float64
	x, y      float64
	endX      float64
	hasWidths bool
	chars     int
}

func (b *runBuilder) active() bool { return b.chars > 0 }

func (b *runBuilder) accepts(g pdf.Text) bool {
	if !b.active() || g.Font != b.font || math.Abs(g.FontSize-b.size) > 0.01 {
		return false
	}
	if math.Abs(g.Y-b.y) > 0.01*math.Max(b.size, 1) {
		return false
	}
	gap := g.X - b.endX
	limit := maxRunGap
	if !b.hasWidths {
		// Without widths endX is the last glyph's origin, so the gap includes its advance.
		limit += estimatedAdvance
	}
	return gap >= -overlap*b.size && gap <= limit*b.size
}

func (b *runBuilder) add(g pdf.Text) {
	if !b.active() {
		b.font, b.size, b.x, b.y, b.endX = g.Font, g.FontSize, g.X, g.Y, g.X
	} else if g.X-b.endX > wordGap*b.size && !strings.HasSuffix(b.text.String(), " ") && !isSpace(g.S) {
		b.text.WriteByte(' ')
	}
	b.text.WriteString(g.S)
	if g.W > 0 {
		b.hasWidths = true
	}
	b.endX = g.X + g.W
	b.chars++
}

func (b *runBuilder) flush(out []Run) []Run {
	if !b.active() {
		return out
	}
	text := strings.TrimSpace(b.text.String())
	if text != "" {
		width := b.endX - b.x
		if !b.hasWidths || width <= 0 {
			width = float64(len([]rune(text))) * estimatedAdvance * b.size
		}
		out = append(out, Run{
			Text:       text,
			Transform:  Matrix{b.size, 0, 0, b.size, b.x, b.y},
			Width:      width,
			Height:     b.size,
			FontFamily: b.font,
		})
	}
	*b = runBuilder{}
	return out
}

// groupRuns merges per-glyph output into runs in content-stream order.
// An explicit line break always ends the current run.
func groupRuns(glyphs []pdf.Text) []Run {
	var (
		out []Run
		cur runBuilder
	)
	for _, g := range glyphs {
		if g.S == "\n" || g.S == "\r" {
			out = cur.flush(out)
			continue
		}
		if cur.active() && !cur.accepts(g) {
			out = cur.flush(out)
		}
		cur.add(g)
	}
	return cur.flush(out)
}

func isSpace(s string) bool {
	for _, r := range s {
		if !unicode.IsSpace(r) {
			return false
		}
	}
	return s != ""
}
