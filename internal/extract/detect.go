package extract

import (
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// extensionTypes covers formats content sniffing reports generically
// (OOXML without a content-types hint is just a zip, Markdown is just text).
var extensionTypes = map[string]string{
	".md":       MediaTypeMarkdown,
	".markdown": MediaTypeMarkdown,
	".txt":      MediaTypeText,
	".docx":     MediaTypeDOCX,
	".pptx":     MediaTypePPTX,
	".pdf":      MediaTypePDF,
	".heic":     "image/heic",
	".webp":     "image/webp",
}

// SupportedExtensions lists the file extensions a local import considers.
var SupportedExtensions = []string{".txt", ".md", ".markdown", ".pdf", ".docx", ".pptx", ".png", ".jpg", ".jpeg", ".webp", ".heic"}

// DetectMediaType supplies the declared media type for files that arrive without one
// (local imports, uploads sent as application/octet-stream). Known extensions win;
// otherwise the content is sniffed.
func DetectMediaType(filename string, content []byte) string {
	if mt, ok := extensionTypes[strings.ToLower(filepath.Ext(filename))]; ok {
		return mt
	}
	return baseMediaType(mimetype.Detect(content).String())
}

// HasSupportedExtension reports whether path has one of SupportedExtensions.
func HasSupportedExtension(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range SupportedExtensions {
		if ext == e {
			return true
		}
	}
	return false
}
