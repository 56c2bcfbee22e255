package viewer

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hyperjump/shiryo/internal/pdfdoc"
)

// Event is a user action on the viewer. The set is closed: every event is one of
// the types below.
type Event interface {
	apply(State) State
}

type (
	// GoToPage jumps to Page, clamped to [1, NumPages].
	GoToPage struct{ Page int }
	// NextPage moves forward one page, stopping at the last.
	NextPage struct{}
	// PrevPage moves back one page, stopping at the first.
	PrevPage struct{}
	// ZoomIn raises the scale by one step up to MaxScale.
	ZoomIn struct{}
	// ZoomOut lowers the scale by one step down to MinScale.
	ZoomOut struct{}
	// SetZoom sets the scale, snapped to the step and clamped.
	SetZoom struct{ Scale float64 }
	// ResetZoom returns to DefaultScale.
	ResetZoom struct{}
	// RotateCW rotates clockwise by 90 degrees.
	RotateCW struct{}
	// RotateCCW rotates counter-clockwise by 90 degrees.
	RotateCCW struct{}
	// SearchResults installs the hits of a completed search. Non-empty results
	// select the first hit and jump to its page.
	SearchResults struct {
		Query string
		Hits  []pdfdoc.SearchHit
	}
	// NextHit selects the following hit, wrapping from last to first.
	NextHit struct{}
	// PrevHit selects the preceding hit, wrapping from first to last.
	PrevHit struct{}
	// ClearSearch drops the active search.
	ClearSearch struct{}
)

func (e GoToPage) apply(s State) State  { return s.withPage(e.Page) }
func (NextPage) apply(s State) State    { return s.withPage(s.Page + 1) }
func (PrevPage) apply(s State) State    { return s.withPage(s.Page - 1) }
func (ZoomIn) apply(s State) State      { return s.withScale(s.Scale + ScaleStep) }
func (ZoomOut) apply(s State) State     { return s.withScale(s.Scale - ScaleStep) }
func (e SetZoom) apply(s State) State   { return s.withScale(e.Scale) }
func (ResetZoom) apply(s State) State   { return s.withScale(DefaultScale) }
func (RotateCW) apply(s State) State    { return s.withRotation(s.Rotation + RotationStep) }
func (RotateCCW) apply(s State) State   { return s.withRotation(s.Rotation - RotationStep) }
func (NextHit) apply(s State) State     { return s.withHit(s.Current + 1) }
func (PrevHit) apply(s State) State     { return s.withHit(s.Current - 1) }
func (ClearSearch) apply(s State) State { return s.withSearch("", nil) }

func (e SearchResults) apply(s State) State {
	if e.Query == "" {
		return s.withSearch("", nil)
	}
	return s.withSearch(e.Query, e.Hits)
}

// Reduce applies ev to s and returns the new state. It is pure.
func Reduce(s State, ev Event) State {
	if ev == nil {
		return s
	}
	return ev.apply(s)
}

// ErrUnknownEvent is returned for event names ParseEvent does not know.
var ErrUnknownEvent = errors.New("unknown viewer event")

// wireEvent is the JSON form of an event: {"type": "goto_page", "page": 3}.
type wireEvent struct {
	Type  string  `json:"type"`
	Page  int     `json:"page,omitempty"`
	Scale float64 `json:"scale,omitempty"`
}

// DecodeEvent parses the JSON form of an event. Search results are produced by
// Session.Search and cannot be decoded.
func DecodeEvent(data []byte) (Event, error) {
	var w wireEvent
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnknownEvent, err)
	}
	return ParseEvent(w.Type, w.Page, w.Scale)
}

// ParseEvent builds an event from its name and arguments.
func ParseEvent(name string, page int, scale float64) (Event, error) {
	switch name {
	case "goto_page":
		return GoToPage{Page: page}, nil
	case "next_page":
		return NextPage{}, nil
	case "prev_page":
		return PrevPage{}, nil
	case "zoom_in":
		return ZoomIn{}, nil
	case "zoom_out":
		return ZoomOut{}, nil
	case "set_zoom":
		return SetZoom{Scale: scale}, nil
	case "reset_zoom":
		return ResetZoom{}, nil
	case "rotate_cw":
		return RotateCW{}, nil
	case "rotate_ccw":
		return RotateCCW{}, nil
	case "next_hit":
		return NextHit{}, nil
	case "prev_hit":
		return PrevHit{}, nil
	case "clear_search":
		return ClearSearch{}, nil
	default:
		return nil, fmt.Errorf("%w %q", ErrUnknownEvent, name)
	}
}
