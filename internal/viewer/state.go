// Package viewer holds the interactive PDF viewer: an immutable view state
// updated by a pure reducer, and sessions that pair that state with a parsed document.
package viewer

import (
	"slices"

	"github.com/hyperjump/shiryo/internal/pdfdoc"
	"github.com/hyperjump/shiryo/pkg/utils"
)

// Zoom and rotation limits.
const (
	MinScale     = 0.25
	MaxScale     = 4.0
	ScaleStep    = 0.25
	DefaultScale = 1.0
	RotationStep = 90
)

// State is the view state of one document. It is a value: Reduce returns a new
// State and never modifies the one it was given.
type State struct {
	Page     int     `json:"page"`
	NumPages int     `json:"num_pages"`
	Scale    float64 `json:"scale"`
	Rotation int     `json:"rotation"`
	// Query is the active search, empty when there is none.
	Query string             `json:"query,omitempty"`
	Hits  []pdfdoc.SearchHit `json:"hits,omitempty"`
	// Current indexes Hits, or is -1 when there are no hits.
	Current int `json:"current"`
}

// NewState returns the initial state for a document with numPages pages.
func NewState(numPages int) State {
	return State{
		Page:     1,
		NumPages: max(numPages, 1),
		Scale:    DefaultScale,
		Current:  -1,
	}
}

// CurrentHit returns the selected search hit, if any.
func (s State) CurrentHit() (pdfdoc.SearchHit, bool) {
	if s.Current < 0 || s.Current >= len(s.Hits) {
		return pdfdoc.SearchHit{}, false
	}
	return s.Hits[s.Current], true
}

// Searching reports whether a search is active.
func (s State) Searching() bool { return s.Query != "" }

// withPage returns s showing page n, clamped to the document.
func (s State) withPage(n int) State {
	s.Page = utils.ClampInt(n, 1, s.NumPages)
	return s
}

// withScale returns s at scale v, snapped to ScaleStep and clamped.
func (s State) withScale(v float64) State {
	s.Scale = utils.Clamp(utils.Snap(v, ScaleStep), MinScale, MaxScale)
	return s
}

func (s State) withRotation(deg int) State {
	s.Rotation = utils.Mod(deg, 360)
	return s
}

// withHit selects hit i (taken modulo the number of hits) and shows its page.
func (s State) withHit(i int) State {
	if len(s.Hits) == 0 {
		return s
	}
	s.Current = utils.Mod(i, len(s.Hits))
	return s.withPage(s.Hits[s.Current].Page)
}

func (s State) withSearch(query string, hits []pdfdoc.SearchHit) State {
	s.Query = query
	s.Hits = slices.Clone(hits)
	s.Current = -1
	if len(s.Hits) == 0 {
		return s
	}
	return s.withHit(0)
}
