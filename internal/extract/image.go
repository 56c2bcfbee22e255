package extract

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/hyperjump/shiryo/internal/models"
)

// extractImage base64-encodes the image. Images carry no text.
func extractImage(content []byte, mediaType string) *Result {
	enc := base64.StdEncoding.EncodeToString(content)
	return &Result{
		Kind:       models.KindImage,
		Content:    enc,
		RawPayload: enc,
		MediaType:  mediaType,
	}
}

// DataURI builds a data URI from a media type and base64 payload.
func DataURI(mediaType, base64Data string) string {
	return fmt.Sprintf("data:%s;base64,%s", mediaType, base64Data)
}

var errNotDataURI = errors.New("not a base64 data URI")

// ParseDataURI splits a "data:<type>;base64,<payload>" URI and decodes the payload.
func ParseDataURI(uri string) (mediaType string, data []byte, err error) {
	rest, ok := strings.CutPrefix(uri, "data:")
	if !ok {
		return "", nil, errNotDataURI
	}
	meta, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return "", nil, errNotDataURI
	}
	mediaType, ok = strings.CutSuffix(meta, ";base64")
	if !ok {
		return "", nil, errNotDataURI
	}
	data, err = base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", nil, fmt.Errorf("decode data URI: %w", err)
	}
	return mediaType, data, nil
}
