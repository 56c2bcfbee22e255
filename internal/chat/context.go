// Package chat builds grounded prompts from notebook sources and runs them
// against a generative model.
package chat

import (
	"fmt"
	"strings"

	"github.com/hyperjump/shiryo/internal/gemini"
	"github.com/hyperjump/shiryo/internal/models"
)

// BuildContext renders text sources as citation blocks,
// "[[Source i]] Title: <title>\nContent: <content>", joined by a blank line.
// i counts text sources only, starting at 1; image sources are skipped and do not
// consume an index, so citation numbers stay stable when images are added.
func BuildContext(sources []*models.Source) string {
	var blocks []string
	for _, s := range sources {
		if !s.Kind().TextBearing() {
			continue
		}
		blocks = append(blocks, fmt.Sprintf("[[Source %d]] Title: %s\nContent: %s", len(blocks)+1, s.Title, s.Content))
	}
	return strings.Join(blocks, "\n\n")
}

// CitationIndex maps citation numbers used by BuildContext back to source IDs.
func CitationIndex(sources []*models.Source) map[int]string {
	idx := make(map[int]string)
	for _, s := range sources {
		if s.Kind().TextBearing() {
			idx[len(idx)+1] = s.ID
		}
	}
	return idx
}

// ImageParts returns the image sources as inline data parts.
func ImageParts(sources []*models.Source) []gemini.Part {
	var parts []gemini.Part
	for _, s := range sources {
		if s.Kind() != models.KindImage {
			continue
		}
		parts = append(parts, gemini.Part{InlineData: &gemini.InlineData{MIMEType: s.MediaType, Data: s.Content}})
	}
	return parts
}

// SourceText joins the content of every text source with a blank line.
func SourceText(sources []*models.Source) string {
	var texts []string
	for _, s := range sources {
		if s.Kind().TextBearing() {
			texts = append(texts, s.Content)
		}
	}
	return strings.Join(texts, "\n\n")
}
