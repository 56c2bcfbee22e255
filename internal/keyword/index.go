// Package keyword indexes source segments (pages, slides or whole sources) for
// keyword search within a notebook.
package keyword

import (
	"context"
)

// Segment is one searchable unit of a source.
type Segment struct {
	// ID is unique across the index: "<source id>#<n>".
	ID         string `json:"-"`
	NotebookID string `json:"notebook_id"`
	SourceID   string `json:"source_id"`
	Title      string `json:"title"`
	// Unit labels the segment within its source ("Page 3", "Slide 10"), empty for unlabeled content.
	Unit    string `json:"unit"`
	Content string `json:"content"`
}

// SearchOptions optional parameters for keyword search. Nil means use defaults.
type SearchOptions struct {
	// TitleBoost multiplies the score contribution from matches in the title (filename) field.
	// Values > 1 make filename matches rank higher. Use 1.0 for no boost.
	TitleBoost float64
	// FuzzyEnabled enables fuzzy matching for typo tolerance.
	FuzzyEnabled bool
	// Fuzziness is the maximum edit distance for fuzzy matching (1 or 2). Default 2.
	Fuzziness int
	// Offset skips the first hits, for paging.
	Offset int
}

// Hit is a single matching segment.
type Hit struct {
	SegmentID string
	SourceID  string
	Title     string
	Unit      string
	Score     float64
	// Snippet is a highlighted fragment of the segment's content.
	Snippet string
}

// Results is a page of hits and the total number of matches.
type Results struct {
	Hits  []*Hit
	Total uint64
}

// Index defines keyword search operations over segments.
type Index interface {
	// IndexSegments adds or replaces segments.
	IndexSegments(ctx context.Context, segs []Segment) error
	// Search finds segments of one notebook matching query.
	Search(ctx context.Context, notebookID, query string, limit int, opts *SearchOptions) (*Results, error)
	// DeleteSource removes every segment of a source.
	DeleteSource(ctx context.Context, sourceID string) error
	// DeleteNotebook removes every segment of a notebook.
	DeleteNotebook(ctx context.Context, notebookID string) error
	// DocCount returns the total number of segments in the index.
	DocCount() (uint64, error)
	Close() error
}

// TermDictionary provides access to the term dictionary for spelling suggestions.
type TermDictionary interface {
	// Terms returns every indexed term with its document frequency.
	Terms() (map[string]int, error)
}
