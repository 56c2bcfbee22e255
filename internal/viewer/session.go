package viewer

import (
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/shiryo/internal/pdfdoc"
)

// ErrClosed is returned by a session whose document has been released.
var ErrClosed = errors.New("viewer session closed")

// RenderedPage is everything a client needs to draw the current page: the
// viewport, the positioned text overlay and the search highlights on this page.
type RenderedPage struct {
	State      State                `json:"state"`
	Viewport   pdfdoc.Viewport      `json:"viewport"`
	Overlay    []pdfdoc.OverlayItem `json:"overlay"`
	Highlights []HitHighlight       `json:"highlights,omitempty"`
}

// HitHighlight marks the runs covered by one search hit on the rendered page.
type HitHighlight struct {
	Hit    int                `json:"hit"`
	Active bool               `json:"active"`
	Spans  []pdfdoc.Highlight `json:"spans"`
}

// Session is one open document and its view state. It owns the parsed document;
// it is safe for concurrent use.
type Session struct {
	ID       string
	SourceID string

	mu         sync.Mutex
	doc        *pdfdoc.Document
	state      State
	lastUsed   time.Time
	thumbScale float64
	thumbLimit int
	logger     *zap.Logger
}

// SessionOption configures a Session.
type SessionOption func(*Session)

// WithThumbnails sets the thumbnail scale and page limit.
func WithThumbnails(scale float64, limit int) SessionOption {
	return func(s *Session) {
		s.thumbScale = scale
		s.thumbLimit = limit
	}
}

// WithSessionLogger sets the logger for skipped pages.
func WithSessionLogger(l *zap.Logger) SessionOption {
	return func(s *Session) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithInitialScale opens the session at the given zoom instead of DefaultScale.
func WithInitialScale(scale float64) SessionOption {
	return func(s *Session) {
		if scale > 0 {
			s.state = s.state.withScale(scale)
		}
	}
}

// NewSession wraps an opened document.
func NewSession(id, sourceID string, doc *pdfdoc.Document, opts ...SessionOption) *Session {
	s := &Session{
		ID:         id,
		SourceID:   sourceID,
		doc:        doc,
		state:      NewState(doc.NumPages()),
		lastUsed:   time.Now(),
		thumbScale: pdfdoc.DefaultThumbnailScale,
		thumbLimit: pdfdoc.MaxThumbnails,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// State returns the current view state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Dispatch reduces ev into the session state and returns the result.
func (s *Session) Dispatch(ev Event) State {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = Reduce(s.state, ev)
	return s.state
}

// Search scans the document for query and installs the results. An empty query
// clears the search.
func (s *Session) Search(query string) (State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.doc == nil {
		return s.state, ErrClosed
	}
	hits, errs := s.doc.Search(query)
	for _, err := range errs {
		s.logger.Warn("search skipped page", zap.String("source", s.SourceID), zap.Error(err))
	}
	s.state = Reduce(s.state, SearchResults{Query: query, Hits: hits})
	return s.state, nil
}

// Render lays out the current page for the current zoom and rotation.
func (s *Session) Render() (*RenderedPage, error) {
	doc, state, err := s.snapshot()
	if err != nil {
		return nil, err
	}
	page, err := doc.Page(state.Page)
	if err != nil {
		return nil, err
	}
	vp := pdfdoc.NewViewport(page, state.Scale, state.Rotation)
	out := &RenderedPage{
		State:    state,
		Viewport: vp,
		Overlay:  pdfdoc.Overlay(page, vp),
	}
	qlen := len([]rune(state.Query))
	for i, h := range state.Hits {
		if h.Page != state.Page {
			continue
		}
		out.Highlights = append(out.Highlights, HitHighlight{
			Hit:    i,
			Active: i == state.Current,
			Spans:  page.Locate(h.Offset, qlen),
		})
	}
	return out, nil
}

// Thumbnails renders previews of the leading pages. They do not depend on the
// current zoom or rotation.
func (s *Session) Thumbnails() ([]pdfdoc.Thumbnail, error) {
	doc, _, err := s.snapshot()
	if err != nil {
		return nil, err
	}
	thumbs, errs := doc.Thumbnails(s.thumbLimit, s.thumbScale)
	for _, err := range errs {
		s.logger.Warn("thumbnail skipped page", zap.String("source", s.SourceID), zap.Error(err))
	}
	return thumbs, nil
}

func (s *Session) snapshot() (*pdfdoc.Document, State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.doc == nil {
		return nil, s.state, ErrClosed
	}
	return s.doc, s.state, nil
}

// Close releases the document.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.doc = nil
}

func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	s.lastUsed = now
	s.mu.Unlock()
}

func (s *Session) idleSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastUsed
}
