package models

// IngestFailure reports one file that could not be turned into a source.
type IngestFailure struct {
	Filename string `json:"filename"`
	Reason   string `json:"reason"`
	Message  string `json:"message"`
}

// IngestReport is the per-file outcome of a batch upload. Added keeps input order.
type IngestReport struct {
	Added    []*SourceSummary `json:"added"`
	Failures []IngestFailure  `json:"failures"`
	// Skipped lists files whose content was already present unchanged.
	Skipped []string `json:"skipped,omitempty"`
}

// KeywordHit is one matching unit (page, slide or whole source) of a notebook search.
type KeywordHit struct {
	SourceID string  `json:"source_id"`
	Title    string  `json:"title"`
	Unit     string  `json:"unit,omitempty"`
	Score    float64 `json:"score"`
	Snippet  string  `json:"snippet,omitempty"`
}

// KeywordSearchResponse is the response for a notebook keyword search.
type KeywordSearchResponse struct {
	Query     string        `json:"query"`
	Hits      []*KeywordHit `json:"hits"`
	Total     int           `json:"total"`
	QueryTime int64         `json:"query_time_ms"`
	// Suggestion is a corrected query offered when nothing matched.
	Suggestion string `json:"suggestion,omitempty"`
}
