package extract

import (
	"errors"
	"unicode/utf8"
)

// EmptyFilePlaceholder stands in for a text file with no content.
const EmptyFilePlaceholder = "No text content found in file."

var errInvalidUTF8 = errors.New("content is not valid UTF-8")

// extractText returns content verbatim after validating it as UTF-8.
// A leading byte order mark is dropped, as text decoders do.
func extractText(content []byte) (string, error) {
	content = trimBOM(content)
	if !utf8.Valid(content) {
		return "", errInvalidUTF8
	}
	if len(content) == 0 {
		return EmptyFilePlaceholder, nil
	}
	return string(content), nil
}

func trimBOM(b []byte) []byte {
	if len(b) >= 3 && b[0] == 0xEF && b[1] == 0xBB && b[2] == 0xBF {
		return b[3:]
	}
	return b
}
