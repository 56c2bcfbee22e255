package server

import (
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/hyperjump/shiryo/internal/models"
	"github.com/hyperjump/shiryo/internal/viewer"
)

// maxEventBytes bounds a viewer event body.
const maxEventBytes = 4 << 10

type openViewerRequest struct {
	NotebookID string  `json:"notebook_id"`
	SourceID   string  `json:"source_id"`
	Scale      float64 `json:"scale,omitempty"`
}

func (req *openViewerRequest) Validate() error {
	return validation.ValidateStruct(req,
		validation.Field(&req.NotebookID, validation.Required),
		validation.Field(&req.SourceID, validation.Required),
		validation.Field(&req.Scale, validation.Min(0.0), validation.Max(viewer.MaxScale)),
	)
}

type viewerSearchRequest struct {
	Query string `json:"query"`
}

type viewerResponse struct {
	ID       string       `json:"id"`
	SourceID string       `json:"source_id"`
	State    viewer.State `json:"state"`
}

func (s *Server) handleOpenViewer(w http.ResponseWriter, r *http.Request) {
	var req openViewerRequest
	if err := decodeJSON(r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}
	src, err := s.notebooks.Source(r.Context(), req.NotebookID, req.SourceID)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	if src.Kind() != models.KindPDF {
		s.respondError(w, r, badRequest("source %s is %s, only pdf sources can be viewed", src.ID, src.Kind()))
		return
	}
	data, err := src.RawBytes()
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	var opts []viewer.SessionOption
	if req.Scale > 0 {
		opts = append(opts, viewer.WithInitialScale(req.Scale))
	}
	sess, err := s.viewers.Open(src.ID, data, opts...)
	if err != nil {
		s.respondError(w, r, &requestError{status: http.StatusUnprocessableEntity, message: fmt.Sprintf("open %s: %v", src.Title, err)})
		return
	}
	s.respondJSON(w, http.StatusCreated, viewerResponse{ID: sess.ID, SourceID: sess.SourceID, State: sess.State()})
}

func (s *Server) session(w http.ResponseWriter, r *http.Request) (*viewer.Session, bool) {
	sess, err := s.viewers.Get(chi.URLParam(r, "vid"))
	if err != nil {
		s.respondError(w, r, err)
		return nil, false
	}
	return sess, true
}

func (s *Server) handleViewerState(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	s.respondJSON(w, http.StatusOK, viewerResponse{ID: sess.ID, SourceID: sess.SourceID, State: sess.State()})
}

func (s *Server) handleCloseViewer(w http.ResponseWriter, r *http.Request) {
	if err := s.viewers.Close(chi.URLParam(r, "vid")); err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "closed"})
}

// handleViewerEvent applies one event, sent as {"type": "zoom_in"} or
// {"type": "goto_page", "page": 3}, and returns the new state.
func (s *Server) handleViewerEvent(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxEventBytes))
	if err != nil {
		s.respondError(w, r, badRequest("read event: %v", err))
		return
	}
	ev, err := viewer.DecodeEvent(body)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, viewerResponse{ID: sess.ID, SourceID: sess.SourceID, State: sess.Dispatch(ev)})
}

func (s *Server) handleViewerPage(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	page, err := sess.Render()
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, page)
}

// handleViewerSearch runs a search and moves to the first hit. An empty query
// clears the search.
func (s *Server) handleViewerSearch(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	var req viewerSearchRequest
	if err := decodeJSON(r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}
	state, err := sess.Search(req.Query)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, viewerResponse{ID: sess.ID, SourceID: sess.SourceID, State: state})
}

func (s *Server) handleViewerThumbnails(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	thumbs, err := sess.Thumbnails()
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"thumbnails": thumbs})
}
