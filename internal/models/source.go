// Package models defines core data structures for notebooks, sources, and search results.
package models

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Kind is the normalized format of a source. The set is closed.
type Kind string

const (
	KindText  Kind = "text"
	KindPDF   Kind = "pdf"
	KindDOCX  Kind = "docx"
	KindPPTX  Kind = "pptx"
	KindImage Kind = "image"
)

// Kinds lists every supported kind in display order.
var Kinds = []Kind{KindText, KindPDF, KindDOCX, KindPPTX, KindImage}

// ParseKind converts s to a Kind, rejecting anything outside the closed set.
func ParseKind(s string) (Kind, error) {
	for _, k := range Kinds {
		if string(k) == s {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown source kind %q", s)
}

// TextBearing reports whether content holds text rather than an encoded binary payload.
func (k Kind) TextBearing() bool {
	return k != KindImage
}

// KeepsRawPayload reports whether sources of this kind retain their original bytes.
func (k Kind) KeepsRawPayload() bool {
	return k == KindPDF || k == KindImage
}

// ErrNotImage is returned when a data URI is requested for a non-image source.
var ErrNotImage = errors.New("source is not an image")

// Source is the normalized result of ingesting one uploaded file.
// It has no reference to the notebook that owns it.
type Source struct {
	ID    string
	Title string
	kind  Kind
	// Content is UTF-8 text for text-bearing kinds and the base64 payload for images.
	Content string
	// RawPayload is the base64-encoded original file, kept for pdf and image only.
	RawPayload string
	// MediaType is set for image sources only.
	MediaType string
	// Checksum is the hex SHA-256 of the original bytes.
	Checksum string
	// Origin is the local path a source was imported from, empty for uploads.
	Origin    string
	createdAt time.Time
}

// NewSource returns a source whose kind and creation time are fixed for its lifetime.
func NewSource(id, title string, kind Kind, createdAt time.Time) *Source {
	return &Source{ID: id, Title: title, kind: kind, createdAt: createdAt.UTC()}
}

// Kind returns the source kind.
func (s *Source) Kind() Kind { return s.kind }

// CreatedAt returns the creation timestamp.
func (s *Source) CreatedAt() time.Time { return s.createdAt }

// DataURI returns a displayable data URI for an image source.
func (s *Source) DataURI() (string, error) {
	if s.kind != KindImage {
		return "", ErrNotImage
	}
	return fmt.Sprintf("data:%s;base64,%s", s.MediaType, s.Content), nil
}

// RawBytes decodes the retained original payload.
func (s *Source) RawBytes() ([]byte, error) {
	if s.RawPayload == "" {
		return nil, fmt.Errorf("source %s has no raw payload", s.ID)
	}
	b, err := base64.StdEncoding.DecodeString(s.RawPayload)
	if err != nil {
		return nil, fmt.Errorf("decode raw payload: %w", err)
	}
	return b, nil
}

// Summary returns the lightweight listing form of the source.
func (s *Source) Summary() *SourceSummary {
	sum := &SourceSummary{
		ID:        s.ID,
		Title:     s.Title,
		Kind:      s.kind,
		MediaType: s.MediaType,
		CreatedAt: s.createdAt,
	}
	if s.kind.TextBearing() {
		sum.Characters = len([]rune(s.Content))
	}
	return sum
}

type sourceJSON struct {
	ID         string    `json:"id"`
	Title      string    `json:"title"`
	Kind       Kind      `json:"kind"`
	Content    string    `json:"content"`
	RawPayload string    `json:"raw_payload,omitempty"`
	MediaType  string    `json:"media_type,omitempty"`
	Checksum   string    `json:"checksum,omitempty"`
	Origin     string    `json:"origin,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// MarshalJSON implements json.Marshaler.
func (s *Source) MarshalJSON() ([]byte, error) {
	return json.Marshal(sourceJSON{
		ID:         s.ID,
		Title:      s.Title,
		Kind:       s.kind,
		Content:    s.Content,
		RawPayload: s.RawPayload,
		MediaType:  s.MediaType,
		Checksum:   s.Checksum,
		Origin:     s.Origin,
		CreatedAt:  s.createdAt,
	})
}

// UnmarshalJSON implements json.Unmarshaler. Decoding into a source that already
// has a kind fails rather than changing it.
func (s *Source) UnmarshalJSON(data []byte) error {
	var v sourceJSON
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	if s.kind != "" && s.kind != v.Kind {
		return fmt.Errorf("source %s: kind is immutable", s.ID)
	}
	if _, err := ParseKind(string(v.Kind)); err != nil {
		return err
	}
	*s = Source{
		ID:         v.ID,
		Title:      v.Title,
		kind:       v.Kind,
		Content:    v.Content,
		RawPayload: v.RawPayload,
		MediaType:  v.MediaType,
		Checksum:   v.Checksum,
		Origin:     v.Origin,
		createdAt:  v.CreatedAt,
	}
	return nil
}

// SourceSummary is a source without its content, for listings.
type SourceSummary struct {
	ID         string    `json:"id"`
	Title      string    `json:"title"`
	Kind       Kind      `json:"kind"`
	MediaType  string    `json:"media_type,omitempty"`
	Characters int       `json:"characters"`
	CreatedAt  time.Time `json:"created_at"`
}
