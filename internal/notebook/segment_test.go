package notebook

import (
	"testing"
	"time"

	"github.com/hyperjump/shiryo/internal/models"
)

func TestSplitUnits(t *testing.T) {
	content := "[Page 1] First page\n\n[Page 2] \n\n[Page 3] Third [Page 9] inline\n\n"
	units := SplitUnits(content)
	if len(units) != 3 {
		t.Fatalf("got %d units: %+v", len(units), units)
	}
	want := []Unit{
		{Label: "Page 1", Text: "First page"},
		{Label: "Page 2", Text: ""},
		{Label: "Page 3", Text: "Third [Page 9] inline"},
	}
	for i, u := range units {
		if u != want[i] {
			t.Errorf("unit %d = %+v, want %+v", i, u, want[i])
		}
	}
	if n := CountUnits(content); n != 3 {
		t.Errorf("CountUnits = %d, want 3", n)
	}
}

func TestSplitUnits_unlabeled(t *testing.T) {
	units := SplitUnits("  plain text  ")
	if len(units) != 1 || units[0].Label != "" || units[0].Text != "plain text" {
		t.Errorf("got %+v", units)
	}
	if CountUnits("plain") != 0 {
		t.Error("unlabeled content has no units")
	}
}

func TestSegments(t *testing.T) {
	at := time.Unix(0, 0)
	tests := []struct {
		name      string
		kind      models.Kind
		content   string
		wantUnits []string
	}{
		{"pdf pages", models.KindPDF, "[Page 1] a\n\n[Page 2] \n\n[Page 3] c\n\n", []string{"Page 1", "Page 3"}},
		{"pptx slides", models.KindPPTX, "[Slide 2] intro\n\n[Slide 5] end\n\n", []string{"Slide 2", "Slide 5"}},
		{"docx whole", models.KindDOCX, "para one\n\npara two", []string{""}},
		{"text labels ignored", models.KindText, "[Page 1] not a pdf", []string{""}},
		{"empty text", models.KindText, "   ", nil},
		{"image", models.KindImage, "iVBORw0KGgo=", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := models.NewSource("s1", "Title", tt.kind, at)
			src.Content = tt.content
			segs := Segments("nb", src)
			if len(segs) != len(tt.wantUnits) {
				t.Fatalf("got %d segments, want %d", len(segs), len(tt.wantUnits))
			}
			for i, seg := range segs {
				if seg.Unit != tt.wantUnits[i] {
					t.Errorf("segment %d unit = %q, want %q", i, seg.Unit, tt.wantUnits[i])
				}
				if seg.NotebookID != "nb" || seg.SourceID != "s1" || seg.Title != "Title" {
					t.Errorf("segment %d = %+v", i, seg)
				}
			}
			if len(segs) > 0 && segs[0].ID != "s1#1" {
				t.Errorf("first segment ID = %s", segs[0].ID)
			}
		})
	}
}

func TestPreprocess(t *testing.T) {
	if got := Preprocess("  a\n\n b\tc  "); got != "a b c" {
		t.Errorf("Preprocess = %q", got)
	}
}
