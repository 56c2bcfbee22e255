package notebook

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/hyperjump/shiryo/internal/keyword"
	"github.com/hyperjump/shiryo/internal/models"
)

// unitLabelRe matches the "[Page n] " and "[Slide n] " labels that open each unit
// of extracted PDF and PPTX content.
var unitLabelRe = regexp.MustCompile(`(?m)^\[(Page|Slide) (\d+)\] `)

// Unit is one labeled part of a source's content.
type Unit struct {
	Label string
	Text  string
}

// SplitUnits splits labeled content into its units, in order. Content without
// labels is a single unit with an empty label.
func SplitUnits(content string) []Unit {
	locs := unitLabelRe.FindAllStringSubmatchIndex(content, -1)
	if len(locs) == 0 {
		return []Unit{{Text: strings.TrimSpace(content)}}
	}
	units := make([]Unit, 0, len(locs))
	for i, loc := range locs {
		end := len(content)
		if i+1 < len(locs) {
			end = locs[i+1][0]
		}
		units = append(units, Unit{
			Label: content[loc[2]:loc[3]] + " " + content[loc[4]:loc[5]],
			Text:  strings.TrimSpace(content[loc[1]:end]),
		})
	}
	return units
}

// CountUnits returns the number of pages or slides in labeled content, or 0 when unlabeled.
func CountUnits(content string) int {
	return len(unitLabelRe.FindAllStringIndex(content, -1))
}

// Segments returns the keyword index segments of a source. PDF and PPTX sources
// get one segment per non-empty page or slide; other text sources are one segment;
// images are not indexed.
func Segments(notebookID string, src *models.Source) []keyword.Segment {
	if !src.Kind().TextBearing() {
		return nil
	}
	var units []Unit
	switch src.Kind() {
	case models.KindPDF, models.KindPPTX:
		units = SplitUnits(src.Content)
	default:
		units = []Unit{{Text: Preprocess(src.Content)}}
	}
	segs := make([]keyword.Segment, 0, len(units))
	for _, u := range units {
		if u.Text == "" {
			continue
		}
		segs = append(segs, keyword.Segment{
			ID:         fmt.Sprintf("%s#%d", src.ID, len(segs)+1),
			NotebookID: notebookID,
			SourceID:   src.ID,
			Title:      src.Title,
			Unit:       u.Label,
			Content:    u.Text,
		})
	}
	return segs
}
