package chat

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/hyperjump/shiryo/internal/gemini"
	"github.com/hyperjump/shiryo/internal/models"
	"github.com/hyperjump/shiryo/pkg/utils"
)

// DefaultMaxContextChars bounds the source text sent with studio and suggestion prompts.
const DefaultMaxContextChars = 30000

var (
	// ErrNoSources is returned by Generate for a notebook without text sources.
	ErrNoSources = errors.New("notebook has no text sources")
	// ErrUnknownStudioKind is returned for studio kinds outside StudioKinds.
	ErrUnknownStudioKind = errors.New("unknown studio kind")
	// ErrEmptyMessage is returned by Respond when there is nothing to send.
	ErrEmptyMessage = errors.New("message is empty")
)

// Generator produces text for a conversation. *gemini.Client implements it.
type Generator interface {
	GenerateContent(ctx context.Context, contents []gemini.Content) (string, error)
}

// Assistant answers questions and writes study artifacts grounded in sources.
type Assistant struct {
	gen      Generator
	maxChars int
	logger   *zap.Logger
}

// Option configures an Assistant.
type Option func(*Assistant)

// WithMaxContextChars sets how many characters of source text studio prompts carry.
func WithMaxContextChars(n int) Option {
	return func(a *Assistant) {
		if n > 0 {
			a.maxChars = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(a *Assistant) {
		if l != nil {
			a.logger = l
		}
	}
}

// NewAssistant returns an assistant that sends prompts to gen.
func NewAssistant(gen Generator, opts ...Option) *Assistant {
	a := &Assistant{gen: gen, maxChars: DefaultMaxContextChars, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Respond answers message in the context of history and sources. Image sources
// and attachments travel as inline data on the final user turn.
func (a *Assistant) Respond(ctx context.Context, history []models.Message, message string, sources []*models.Source, attachments []models.InlineImage) (string, error) {
	if strings.TrimSpace(message) == "" && len(attachments) == 0 {
		return "", ErrEmptyMessage
	}
	contents := make([]gemini.Content, 0, len(history)+1)
	for _, m := range history {
		role := gemini.RoleModel
		if m.Role == models.RoleUser {
			role = gemini.RoleUser
		}
		contents = append(contents, gemini.Content{Role: role, Parts: []gemini.Part{gemini.Text(m.Content)}})
	}

	prompt := message
	if ctxText := BuildContext(sources); ctxText != "" {
		prompt = fmt.Sprintf(contextPromptTemplate, ctxText) + message
	}
	parts := []gemini.Part{gemini.Text(prompt)}
	parts = append(parts, ImageParts(sources)...)
	for _, img := range attachments {
		parts = append(parts, gemini.Part{InlineData: &gemini.InlineData{MIMEType: img.MediaType, Data: img.Data}})
	}
	contents = append(contents, gemini.Content{Role: gemini.RoleUser, Parts: parts})

	a.logger.Debug("sending chat turn", zap.Int("history", len(history)), zap.Int("sources", len(sources)), zap.Int("images", len(parts)-1))
	return a.gen.GenerateContent(ctx, contents)
}

// SuggestedQuestions asks for follow-up questions about the sources. Without any
// source text it returns DefaultQuestions.
func (a *Assistant) SuggestedQuestions(ctx context.Context, sources []*models.Source) ([]string, error) {
	text := SourceText(sources)
	if strings.TrimSpace(text) == "" {
		return append([]string(nil), DefaultQuestions...), nil
	}
	out, err := a.gen.GenerateContent(ctx, []gemini.Content{gemini.UserText(suggestionsPrompt + utils.TruncateRunes(text, a.maxChars))})
	if err != nil {
		return nil, err
	}
	return ParseQuestions(out), nil
}

var listMarkerRe = regexp.MustCompile(`^(?:\d+[.)]\s*|[-*•]\s*)`)

// ParseQuestions splits a model answer into one question per non-blank line,
// stripping leading numbering and bullets.
func ParseQuestions(text string) []string {
	var qs []string
	for _, line := range strings.Split(text, "\n") {
		q := strings.TrimSpace(listMarkerRe.ReplaceAllString(strings.TrimSpace(line), ""))
		if q != "" {
			qs = append(qs, q)
		}
	}
	return qs
}

// Generate writes a studio artifact of the given kind from the sources' text.
func (a *Assistant) Generate(ctx context.Context, kind StudioKind, sources []*models.Source) (string, error) {
	if _, err := ParseStudioKind(string(kind)); err != nil {
		return "", err
	}
	text := SourceText(sources)
	if strings.TrimSpace(text) == "" {
		return "", ErrNoSources
	}
	prompt, err := studioPrompt(kind, utils.TruncateRunes(text, a.maxChars))
	if err != nil {
		return "", err
	}
	a.logger.Debug("generating studio artifact", zap.String("kind", string(kind)))
	return a.gen.GenerateContent(ctx, []gemini.Content{gemini.UserText(prompt)})
}
