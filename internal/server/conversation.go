package server

import (
	"encoding/base64"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/hyperjump/shiryo/internal/chat"
	"github.com/hyperjump/shiryo/internal/models"
)

// maxAttachments bounds the images one chat message may carry.
const maxAttachments = 8

type chatRequest struct {
	Message     string               `json:"message"`
	Attachments []models.InlineImage `json:"attachments,omitempty"`
}

func (req *chatRequest) Validate() error {
	return validation.ValidateStruct(req,
		validation.Field(&req.Message, validation.When(len(req.Attachments) == 0, validation.Required)),
		validation.Field(&req.Attachments, validation.Length(0, maxAttachments), validation.Each(validation.By(validAttachment))),
	)
}

func validAttachment(v interface{}) error {
	img, ok := v.(models.InlineImage)
	if !ok {
		return validation.NewError("validation_attachment", "must be an inline image")
	}
	if !strings.HasPrefix(img.MediaType, "image/") {
		return validation.NewError("validation_attachment_type", "media_type must be an image type")
	}
	if _, err := base64.StdEncoding.DecodeString(img.Data); err != nil {
		return validation.NewError("validation_attachment_data", "data must be base64")
	}
	return nil
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := decodeJSON(r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}
	reply, err := s.notebooks.Ask(r.Context(), chi.URLParam(r, "id"), req.Message, req.Attachments)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, reply)
}

func (s *Server) handleListMessages(w http.ResponseWriter, r *http.Request) {
	msgs, err := s.notebooks.Messages(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	if msgs == nil {
		msgs = []*models.Message{}
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"messages": msgs})
}

func (s *Server) handleClearMessages(w http.ResponseWriter, r *http.Request) {
	if err := s.notebooks.ClearMessages(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}

func (s *Server) handleSuggestions(w http.ResponseWriter, r *http.Request) {
	qs, err := s.notebooks.Suggestions(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"questions": qs})
}

func (s *Server) handleStudio(w http.ResponseWriter, r *http.Request) {
	kind, err := chat.ParseStudioKind(chi.URLParam(r, "kind"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	art, err := s.notebooks.Studio(r.Context(), chi.URLParam(r, "id"), kind)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusCreated, art)
}

func (s *Server) handleListArtifacts(w http.ResponseWriter, r *http.Request) {
	arts, err := s.notebooks.Artifacts(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	if arts == nil {
		arts = []*models.Artifact{}
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"artifacts": arts})
}
