// Package server provides the HTTP API for shiryo.
package server

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/hyperjump/shiryo/internal/chat"
	"github.com/hyperjump/shiryo/internal/config"
	"github.com/hyperjump/shiryo/internal/notebook"
	"github.com/hyperjump/shiryo/internal/viewer"
)

// AssistantFactory builds an assistant for an API key. It is called when the
// key changes at runtime.
type AssistantFactory func(apiKey string) (*chat.Assistant, error)

// InboxService is the part of the inbox watcher the API reports on.
type InboxService interface {
	Directories() []string
}

// Server is the HTTP server for the shiryo API.
type Server struct {
	notebooks *notebook.Service
	viewers   *viewer.Registry
	logger    *zap.Logger
	server    *http.Server
	started   time.Time

	// cfgMu guards cfg, which the settings endpoints change and persist.
	cfgMu        sync.Mutex
	cfg          *config.Config
	configPath   string
	newAssistant AssistantFactory
	inbox        InboxService
}

// Option configures a Server.
type Option func(*Server)

// WithConfigPath persists settings changes to path.
func WithConfigPath(path string) Option {
	return func(s *Server) { s.configPath = path }
}

// WithAssistantFactory enables changing the API key at runtime.
func WithAssistantFactory(f AssistantFactory) Option {
	return func(s *Server) { s.newAssistant = f }
}

// WithInbox reports the inbox watcher's directories in status.
func WithInbox(in InboxService) Option {
	return func(s *Server) { s.inbox = in }
}

// NewServer creates a server with the given dependencies.
func NewServer(notebooks *notebook.Service, viewers *viewer.Registry, cfg *config.Config, logger *zap.Logger, opts ...Option) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		notebooks: notebooks,
		viewers:   viewers,
		cfg:       cfg,
		logger:    logger,
		started:   time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Router returns the API handler.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	if t := s.cfg.Server.RequestTimeout; t > 0 {
		r.Use(middleware.Timeout(t))
	}
	r.Use(middleware.Compress(5))

	r.Get("/health", s.handleHealth)
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/status", s.handleStatus)
		r.Put("/settings/api-key", s.handleSetAPIKey)

		r.Route("/notebooks", func(r chi.Router) {
			r.Get("/", s.handleListNotebooks)
			r.Post("/", s.handleCreateNotebook)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetNotebook)
				r.Patch("/", s.handleRenameNotebook)
				r.Delete("/", s.handleDeleteNotebook)

				r.Post("/sources", s.handleUploadSources)
				r.Get("/sources", s.handleListSources)
				r.Get("/sources/{sourceID}", s.handleGetSource)
				r.Delete("/sources/{sourceID}", s.handleDeleteSource)
				r.Get("/sources/{sourceID}/raw", s.handleSourceRaw)
				r.Get("/sources/{sourceID}/data-uri", s.handleSourceDataURI)

				r.Get("/search", s.handleSearch)
				r.Get("/export.xlsx", s.handleExport)

				r.Post("/chat", s.handleChat)
				r.Get("/messages", s.handleListMessages)
				r.Delete("/messages", s.handleClearMessages)
				r.Get("/suggestions", s.handleSuggestions)
				r.Post("/studio/{kind}", s.handleStudio)
				r.Get("/artifacts", s.handleListArtifacts)
			})
		})

		r.Route("/viewers", func(r chi.Router) {
			r.Post("/", s.handleOpenViewer)
			r.Route("/{vid}", func(r chi.Router) {
				r.Get("/", s.handleViewerState)
				r.Delete("/", s.handleCloseViewer)
				r.Post("/events", s.handleViewerEvent)
				r.Get("/page", s.handleViewerPage)
				r.Post("/search", s.handleViewerSearch)
				r.Get("/thumbnails", s.handleViewerThumbnails)
			})
		})
	})
	return r
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := s.cfg.Server.Address()
	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.Router(),
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
	}
	s.logger.Info("Starting server", zap.String("addr", addr))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}
