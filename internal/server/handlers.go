package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"go.uber.org/zap"

	"github.com/hyperjump/shiryo/internal/chat"
	"github.com/hyperjump/shiryo/internal/config"
	"github.com/hyperjump/shiryo/internal/extract"
	"github.com/hyperjump/shiryo/internal/gemini"
	"github.com/hyperjump/shiryo/internal/models"
	"github.com/hyperjump/shiryo/internal/notebook"
	"github.com/hyperjump/shiryo/internal/storage"
	"github.com/hyperjump/shiryo/internal/viewer"
)

// requestError is a client mistake with its own status code.
type requestError struct {
	status  int
	message string
}

func (e *requestError) Error() string { return e.message }

func badRequest(format string, args ...any) error {
	return &requestError{status: http.StatusBadRequest, message: fmt.Sprintf(format, args...)}
}

// statusFor maps an error to the HTTP status reported for it.
func statusFor(err error) int {
	var reqErr *requestError
	var apiErr *gemini.APIError
	var extractErr *extract.Error
	var validationErrs validation.Errors
	switch {
	case errors.As(err, &reqErr):
		return reqErr.status
	case errors.Is(err, storage.ErrNotFound), errors.Is(err, viewer.ErrSessionNotFound), errors.Is(err, viewer.ErrClosed):
		return http.StatusNotFound
	case errors.As(err, &validationErrs),
		errors.Is(err, notebook.ErrInvalidTitle),
		errors.Is(err, chat.ErrUnknownStudioKind),
		errors.Is(err, chat.ErrEmptyMessage),
		errors.Is(err, viewer.ErrUnknownEvent),
		errors.Is(err, models.ErrNotImage):
		return http.StatusBadRequest
	case errors.Is(err, notebook.ErrFileTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, extract.ErrUnsupportedFormat):
		return http.StatusUnsupportedMediaType
	case errors.As(err, &extractErr), errors.Is(err, chat.ErrNoSources):
		return http.StatusUnprocessableEntity
	case errors.As(err, &apiErr), errors.Is(err, gemini.ErrEmptyResponse):
		return http.StatusBadGateway
	case errors.Is(err, notebook.ErrNoAssistant), errors.Is(err, gemini.ErrNoAPIKey):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// respondError writes err as {"error": message} with the status statusFor picks.
// Server-side failures are logged; their message is still returned.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", status),
			zap.Error(err))
	} else {
		s.logger.Debug("request rejected", zap.String("path", r.URL.Path), zap.Int("status", status), zap.Error(err))
	}
	s.respondJSON(w, status, map[string]string{"error": err.Error()})
}

// decodeJSON decodes the request body into v and validates it when v is validatable.
func decodeJSON(r *http.Request, v interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return badRequest("invalid request body: %v", err)
	}
	if val, ok := v.(validation.Validatable); ok {
		return val.Validate()
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	stats, err := s.notebooks.Stats(ctx)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	segments, err := s.notebooks.IndexedSegments()
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	resp := map[string]interface{}{
		"notebooks":        stats.Notebooks,
		"sources":          stats.Sources,
		"messages":         stats.Messages,
		"artifacts":        stats.Artifacts,
		"indexed_segments": segments,
		"viewer_sessions":  s.viewers.Len(),
		"assistant":        s.notebooks.HasAssistant(),
		"uptime_seconds":   int64(time.Since(s.started).Seconds()),
	}

	s.cfgMu.Lock()
	configInfo := map[string]interface{}{
		"model":            s.cfg.Gemini.Model,
		"database_path":    s.cfg.Storage.DatabasePath,
		"bleve_index_path": s.cfg.Storage.BleveIndexPath,
		"ingest_workers":   s.cfg.Ingest.Workers,
	}
	dbPath, indexPath := s.cfg.Storage.DatabasePath, s.cfg.Storage.BleveIndexPath
	s.cfgMu.Unlock()
	if s.inbox != nil {
		configInfo["inbox_directories"] = s.inbox.Directories()
	}
	if usage, err := storage.MeasureUsage(dbPath, indexPath); err == nil {
		resp["disk_usage_bytes"] = usage.Total()
		resp["disk_usage"] = usage
	}
	resp["config"] = configInfo
	s.respondJSON(w, http.StatusOK, resp)
}

type apiKeyRequest struct {
	APIKey string `json:"api_key"`
	// Persist writes the key to the config file when one is in use.
	Persist bool `json:"persist,omitempty"`
}

func (req *apiKeyRequest) Validate() error {
	return validation.ValidateStruct(req,
		validation.Field(&req.APIKey, validation.Required, validation.Length(8, 256)),
	)
}

// handleSetAPIKey swaps the generative client for one built with the new key.
// Chat and studio calls already in flight finish with the previous client.
func (s *Server) handleSetAPIKey(w http.ResponseWriter, r *http.Request) {
	if s.newAssistant == nil {
		s.respondError(w, r, &requestError{status: http.StatusNotImplemented, message: "changing the API key is not enabled"})
		return
	}
	var req apiKeyRequest
	if err := decodeJSON(r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}
	a, err := s.newAssistant(req.APIKey)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.notebooks.SetAssistant(a)

	s.cfgMu.Lock()
	s.cfg.Gemini.APIKey = req.APIKey
	var saveErr error
	if req.Persist && s.configPath != "" {
		saveErr = config.Save(s.configPath, s.cfg)
	}
	s.cfgMu.Unlock()
	if saveErr != nil {
		s.logger.Warn("failed to persist api key", zap.Error(saveErr))
	}
	s.logger.Info("api key updated", zap.Bool("persisted", req.Persist && saveErr == nil))
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"status": "updated", "persisted": req.Persist && s.configPath != "" && saveErr == nil})
}
