// Package storage persists notebooks with their sources, chat history and
// generated artifacts.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/hyperjump/shiryo/internal/models"
)

// ErrNotFound is returned when a notebook, source or other record does not exist.
var ErrNotFound = errors.New("not found")

// Stats are row counts across all notebooks.
type Stats struct {
	Notebooks int64 `json:"notebooks"`
	Sources   int64 `json:"sources"`
	Messages  int64 `json:"messages"`
	Artifacts int64 `json:"artifacts"`
}

// Storage defines notebook persistence operations. Every source, message and
// artifact operation is scoped to a notebook.
type Storage interface {
	// Notebook operations
	CreateNotebook(ctx context.Context, nb *models.Notebook) error
	GetNotebook(ctx context.Context, id string) (*models.Notebook, error)
	// ListNotebooks returns notebooks newest first, keeping those whose title
	// contains filter case-insensitively (all when filter is empty).
	ListNotebooks(ctx context.Context, filter string) ([]*models.Notebook, error)
	RenameNotebook(ctx context.Context, id, title string) error
	TouchNotebook(ctx context.Context, id string, at time.Time) error
	// DeleteNotebook removes the notebook with its sources, messages and artifacts.
	DeleteNotebook(ctx context.Context, id string) error

	// Source operations
	AddSource(ctx context.Context, notebookID string, src *models.Source) error
	GetSource(ctx context.Context, notebookID, id string) (*models.Source, error)
	ListSources(ctx context.Context, notebookID string) ([]*models.Source, error)
	DeleteSource(ctx context.Context, notebookID, id string) error
	FindSourceByOrigin(ctx context.Context, notebookID, origin string) (*models.Source, error)
	CountSources(ctx context.Context, notebookID string) (int64, error)

	// Conversation operations
	AppendMessage(ctx context.Context, notebookID string, msg *models.Message) error
	ListMessages(ctx context.Context, notebookID string) ([]*models.Message, error)
	ClearMessages(ctx context.Context, notebookID string) error

	// Studio operations
	SaveArtifact(ctx context.Context, notebookID string, a *models.Artifact) error
	ListArtifacts(ctx context.Context, notebookID string) ([]*models.Artifact, error)

	// Stats
	Stats(ctx context.Context) (*Stats, error)

	Close() error
}
