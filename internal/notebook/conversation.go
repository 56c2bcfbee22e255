package notebook

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/hyperjump/shiryo/internal/chat"
	"github.com/hyperjump/shiryo/internal/models"
)

// ErrNoAssistant is returned by chat and studio operations while no
// generative model is configured.
var ErrNoAssistant = errors.New("no generative model configured")

// SetAssistant replaces the assistant, for example after the API key changed.
// A nil assistant disables chat and studio.
func (s *Service) SetAssistant(a *chat.Assistant) {
	s.mu.Lock()
	s.assistant = a
	s.mu.Unlock()
}

// HasAssistant reports whether chat and studio are available.
func (s *Service) HasAssistant() bool {
	_, err := s.currentAssistant()
	return err == nil
}

func (s *Service) currentAssistant() (*chat.Assistant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.assistant == nil {
		return nil, ErrNoAssistant
	}
	return s.assistant, nil
}

// Ask answers message from the notebook's sources and conversation so far.
// Both turns are stored only when the model answered.
func (s *Service) Ask(ctx context.Context, notebookID, message string, attachments []models.InlineImage) (*models.Message, error) {
	a, err := s.currentAssistant()
	if err != nil {
		return nil, err
	}
	sources, err := s.Sources(ctx, notebookID)
	if err != nil {
		return nil, err
	}
	stored, err := s.store.ListMessages(ctx, notebookID)
	if err != nil {
		return nil, fmt.Errorf("failed to load conversation: %w", err)
	}
	history := make([]models.Message, len(stored))
	for i, m := range stored {
		history[i] = *m
	}

	answer, err := a.Respond(ctx, history, message, sources, attachments)
	if err != nil {
		return nil, err
	}

	userMsg := &models.Message{ID: s.newID(), Role: models.RoleUser, Content: message, Images: attachments, CreatedAt: s.now()}
	if err := s.store.AppendMessage(ctx, notebookID, userMsg); err != nil {
		return nil, fmt.Errorf("failed to store message: %w", err)
	}
	reply := &models.Message{ID: s.newID(), Role: models.RoleModel, Content: answer, CreatedAt: s.now()}
	if err := s.store.AppendMessage(ctx, notebookID, reply); err != nil {
		return nil, fmt.Errorf("failed to store reply: %w", err)
	}
	if err := s.store.TouchNotebook(ctx, notebookID, s.now()); err != nil {
		s.logger.Warn("failed to touch notebook", zap.String("notebook", notebookID), zap.Error(err))
	}
	s.logger.Debug("question answered",
		zap.String("notebook", notebookID),
		zap.Int("sources", len(sources)),
		zap.Int("history", len(history)))
	return reply, nil
}

// Messages returns the notebook's conversation in order.
func (s *Service) Messages(ctx context.Context, notebookID string) ([]*models.Message, error) {
	if _, err := s.store.GetNotebook(ctx, notebookID); err != nil {
		return nil, err
	}
	return s.store.ListMessages(ctx, notebookID)
}

// ClearMessages deletes the notebook's conversation.
func (s *Service) ClearMessages(ctx context.Context, notebookID string) error {
	if _, err := s.store.GetNotebook(ctx, notebookID); err != nil {
		return err
	}
	return s.store.ClearMessages(ctx, notebookID)
}

// Suggestions returns starter questions for the notebook. Without an assistant
// or sources the default questions are returned.
func (s *Service) Suggestions(ctx context.Context, notebookID string) ([]string, error) {
	sources, err := s.Sources(ctx, notebookID)
	if err != nil {
		return nil, err
	}
	a, err := s.currentAssistant()
	if err != nil {
		return append([]string(nil), chat.DefaultQuestions...), nil
	}
	return a.SuggestedQuestions(ctx, sources)
}

// Studio generates an artifact of kind from the notebook's sources and stores it.
func (s *Service) Studio(ctx context.Context, notebookID string, kind chat.StudioKind) (*models.Artifact, error) {
	a, err := s.currentAssistant()
	if err != nil {
		return nil, err
	}
	sources, err := s.Sources(ctx, notebookID)
	if err != nil {
		return nil, err
	}
	content, err := a.Generate(ctx, kind, sources)
	if err != nil {
		return nil, err
	}
	art := &models.Artifact{ID: s.newID(), Kind: string(kind), Content: content, CreatedAt: s.now()}
	if err := s.store.SaveArtifact(ctx, notebookID, art); err != nil {
		return nil, fmt.Errorf("failed to store artifact: %w", err)
	}
	s.logger.Debug("artifact generated", zap.String("notebook", notebookID), zap.String("kind", string(kind)))
	return art, nil
}

// Artifacts returns the notebook's generated artifacts, newest first.
func (s *Service) Artifacts(ctx context.Context, notebookID string) ([]*models.Artifact, error) {
	if _, err := s.store.GetNotebook(ctx, notebookID); err != nil {
		return nil, err
	}
	return s.store.ListArtifacts(ctx, notebookID)
}

// BuildContext returns the citation context for the notebook's sources.
func (s *Service) BuildContext(ctx context.Context, notebookID string) (string, error) {
	sources, err := s.Sources(ctx, notebookID)
	if err != nil {
		return "", err
	}
	return chat.BuildContext(sources), nil
}
