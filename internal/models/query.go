package models

import "fmt"

// KeywordQuery is a keyword search request scoped to one notebook.
type KeywordQuery struct {
	Query      string `json:"query"`
	NotebookID string `json:"notebook_id,omitempty"`
	Limit      int    `json:"limit,omitempty"`
	Offset     int    `json:"offset,omitempty"`
	Fuzzy      bool   `json:"fuzzy,omitempty"`
}

// Validate ensures the query has valid fields and sets defaults.
// Returns an error if the query is empty; otherwise normalizes limit and offset.
func (q *KeywordQuery) Validate() error {
	if q.Query == "" {
		return fmt.Errorf("query cannot be empty")
	}
	if q.Limit <= 0 {
		q.Limit = 10
	}
	if q.Limit > 100 {
		q.Limit = 100
	}
	if q.Offset < 0 {
		q.Offset = 0
	}
	return nil
}
