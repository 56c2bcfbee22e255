package extract

import (
	"mime"
	"strings"

	"github.com/hyperjump/shiryo/internal/models"
)

// Declared media types the sniffer routes on.
const (
	MediaTypePDF      = "application/pdf"
	MediaTypeDOCX     = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	MediaTypePPTX     = "application/vnd.openxmlformats-officedocument.presentationml.presentation"
	MediaTypeText     = "text/plain"
	MediaTypeMarkdown = "text/markdown"
)

// Sniff picks the extractor for a file from its declared media type and name.
// Rules are checked in order and the first match wins; a file nothing matches
// fails with ErrUnsupportedFormat.
func Sniff(mediaType, filename string) (models.Kind, error) {
	mt := baseMediaType(mediaType)
	name := strings.ToLower(filename)
	switch {
	case mt == MediaTypePDF:
		return models.KindPDF, nil
	case mt == MediaTypeDOCX:
		return models.KindDOCX, nil
	case mt == MediaTypePPTX:
		return models.KindPPTX, nil
	case mt == MediaTypeText || mt == MediaTypeMarkdown || strings.HasSuffix(name, ".md"):
		return models.KindText, nil
	case strings.HasPrefix(mt, "image/"):
		return models.KindImage, nil
	case strings.HasSuffix(name, ".docx"):
		return models.KindDOCX, nil
	case strings.HasSuffix(name, ".pptx"):
		return models.KindPPTX, nil
	}
	return "", newError(filename, ErrUnsupportedFormat, nil)
}

// baseMediaType lowercases a media type and strips its parameters.
func baseMediaType(mediaType string) string {
	mediaType = strings.TrimSpace(mediaType)
	if mediaType == "" {
		return ""
	}
	if mt, _, err := mime.ParseMediaType(mediaType); err == nil {
		return mt
	}
	if i := strings.IndexByte(mediaType, ';'); i >= 0 {
		mediaType = mediaType[:i]
	}
	return strings.ToLower(strings.TrimSpace(mediaType))
}
