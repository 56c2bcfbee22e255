package extract

import (
	"time"

	"github.com/hyperjump/shiryo/internal/models"
)

// Assemble wraps an extractor result into a source. It is pure and cannot fail.
func Assemble(id, filename string, r *Result, createdAt time.Time) *models.Source {
	src := models.NewSource(id, filename, r.Kind, createdAt)
	src.Content = r.Content
	if r.Kind.KeepsRawPayload() {
		src.RawPayload = r.RawPayload
	}
	if r.Kind == models.KindImage {
		src.MediaType = r.MediaType
	}
	return src
}
