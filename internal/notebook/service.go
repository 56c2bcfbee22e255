// Package notebook ties extraction, persistence and keyword search together:
// files become sources of a notebook, and every stored source is indexed.
package notebook

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hyperjump/shiryo/internal/chat"
	"github.com/hyperjump/shiryo/internal/extract"
	"github.com/hyperjump/shiryo/internal/fileid"
	"github.com/hyperjump/shiryo/internal/keyword"
	"github.com/hyperjump/shiryo/internal/models"
	"github.com/hyperjump/shiryo/internal/storage"
)

// MaxTitleLength bounds notebook titles, in characters.
const MaxTitleLength = 200

// colorCount is the number of notebook accent colors; indexes run 1..colorCount.
const colorCount = 5

var (
	// ErrInvalidTitle is returned for blank or overlong notebook titles.
	ErrInvalidTitle = errors.New("invalid notebook title")
	// ErrFileTooLarge is reported for files over the configured size limit.
	ErrFileTooLarge = errors.New("file too large")
	// ErrStore is reported for an extracted file that could not be stored or indexed.
	ErrStore = errors.New("storage failure")
)

// ImportAction is what ImportFile did with a file.
type ImportAction string

const (
	ImportAdded    ImportAction = "added"
	ImportReplaced ImportAction = "replaced"
	ImportSkipped  ImportAction = "skipped"
)

// Service manages notebooks and their sources.
type Service struct {
	store     storage.Storage
	index     keyword.Index
	extractor *extract.Extractor
	spell     *keyword.SpellChecker

	workers      int
	maxFileBytes int64
	titleBoost   float64
	logger       *zap.Logger
	now          func() time.Time
	newID        func() string

	// mu guards assistant, which is replaced when the API key changes.
	mu        sync.RWMutex
	assistant *chat.Assistant
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets a logger for ingestion and search events.
func WithLogger(l *zap.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithWorkers sets how many files of a batch are extracted at once.
func WithWorkers(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.workers = n
		}
	}
}

// WithMaxFileBytes rejects files larger than n bytes. Zero means no limit.
func WithMaxFileBytes(n int64) Option {
	return func(s *Service) { s.maxFileBytes = n }
}

// WithTitleBoost sets how much title matches weigh in keyword search.
func WithTitleBoost(boost float64) Option {
	return func(s *Service) {
		if boost > 0 {
			s.titleBoost = boost
		}
	}
}

// WithSpellChecker sets the checker used for "did you mean" suggestions.
func WithSpellChecker(sc *keyword.SpellChecker) Option {
	return func(s *Service) { s.spell = sc }
}

// WithAssistant sets the assistant used for chat and studio.
func WithAssistant(a *chat.Assistant) Option {
	return func(s *Service) { s.assistant = a }
}

// WithClock sets the time source for notebook and message timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithIDGenerator sets the generator for notebook, message and artifact IDs.
func WithIDGenerator(f func() string) Option {
	return func(s *Service) { s.newID = f }
}

// NewService creates a service over the given store, index and extractor.
// When the index exposes its term dictionary and no spell checker is given,
// one is built over it.
func NewService(store storage.Storage, index keyword.Index, extractor *extract.Extractor, opts ...Option) *Service {
	s := &Service{
		store:      store,
		index:      index,
		extractor:  extractor,
		workers:    extract.DefaultWorkers,
		titleBoost: 10.0,
		logger:     zap.NewNop(),
		now:        time.Now,
		newID:      func() string { return uuid.New().String() },
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.spell == nil {
		if dict, ok := index.(keyword.TermDictionary); ok {
			s.spell = keyword.NewSpellChecker(dict)
		}
	}
	return s
}

func validTitle(title string) (string, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return "", fmt.Errorf("%w: title is required", ErrInvalidTitle)
	}
	if utf8.RuneCountInString(title) > MaxTitleLength {
		return "", fmt.Errorf("%w: longer than %d characters", ErrInvalidTitle, MaxTitleLength)
	}
	return title, nil
}

// CreateNotebook creates an empty notebook. Accent colors cycle through the
// palette in creation order.
func (s *Service) CreateNotebook(ctx context.Context, title string) (*models.Notebook, error) {
	title, err := validTitle(title)
	if err != nil {
		return nil, err
	}
	stats, err := s.store.Stats(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count notebooks: %w", err)
	}
	now := s.now().UTC()
	nb := &models.Notebook{
		ID:         s.newID(),
		Title:      title,
		ColorIndex: 1 + int(stats.Notebooks%colorCount),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.store.CreateNotebook(ctx, nb); err != nil {
		return nil, fmt.Errorf("failed to create notebook: %w", err)
	}
	s.logger.Debug("notebook created", zap.String("id", nb.ID), zap.String("title", nb.Title))
	return nb, nil
}

// GetNotebook returns a notebook by ID.
func (s *Service) GetNotebook(ctx context.Context, id string) (*models.Notebook, error) {
	return s.store.GetNotebook(ctx, id)
}

// ListNotebooks returns notebooks newest first, filtered by title substring.
func (s *Service) ListNotebooks(ctx context.Context, filter string) ([]*models.Notebook, error) {
	return s.store.ListNotebooks(ctx, filter)
}

// RenameNotebook changes a notebook's title.
func (s *Service) RenameNotebook(ctx context.Context, id, title string) (*models.Notebook, error) {
	title, err := validTitle(title)
	if err != nil {
		return nil, err
	}
	if err := s.store.RenameNotebook(ctx, id, title); err != nil {
		return nil, err
	}
	return s.store.GetNotebook(ctx, id)
}

// DeleteNotebook removes a notebook, everything it owns and its index entries.
func (s *Service) DeleteNotebook(ctx context.Context, id string) error {
	if _, err := s.store.GetNotebook(ctx, id); err != nil {
		return err
	}
	if err := s.index.DeleteNotebook(ctx, id); err != nil {
		return fmt.Errorf("failed to delete notebook from index: %w", err)
	}
	if err := s.store.DeleteNotebook(ctx, id); err != nil {
		return fmt.Errorf("failed to delete notebook: %w", err)
	}
	s.invalidateSpelling()
	s.logger.Debug("notebook deleted", zap.String("id", id))
	return nil
}

// Ingest extracts files concurrently and adds every success to the notebook in
// input order. Per-file failures, storage ones included, are reported and the
// rest of the batch goes on; the error is reserved for the notebook missing.
func (s *Service) Ingest(ctx context.Context, notebookID string, files []extract.File) (*models.IngestReport, error) {
	if _, err := s.store.GetNotebook(ctx, notebookID); err != nil {
		return nil, err
	}
	report := &models.IngestReport{}
	accepted := make([]extract.File, 0, len(files))
	for _, f := range files {
		if s.maxFileBytes > 0 && int64(len(f.Data)) > s.maxFileBytes {
			report.Failures = append(report.Failures, failure(f.Name, s.tooLarge(f.Name)))
			continue
		}
		accepted = append(accepted, f)
	}

	outcomes := s.extractor.ExtractBatch(ctx, accepted, s.workers)
	for _, o := range outcomes {
		if o.Err != nil {
			report.Failures = append(report.Failures, failure(o.Filename, o.Err))
			continue
		}
		if err := s.addSource(ctx, notebookID, o.Source); err != nil {
			s.logger.Error("failed to add source", zap.String("notebook", notebookID), zap.String("file", o.Filename), zap.Error(err))
			report.Failures = append(report.Failures, failure(o.Filename, fmt.Errorf("%w: %w", ErrStore, err)))
			continue
		}
		report.Added = append(report.Added, o.Source.Summary())
	}
	s.logger.Info("ingest finished",
		zap.String("notebook", notebookID),
		zap.Int("added", len(report.Added)),
		zap.Int("failed", len(report.Failures)))
	return report, nil
}

func (s *Service) tooLarge(name string) error {
	return fmt.Errorf("%s: %w: limit is %d bytes", name, ErrFileTooLarge, s.maxFileBytes)
}

func failure(name string, err error) models.IngestFailure {
	reason := extract.Reason(err)
	switch {
	case errors.Is(err, ErrFileTooLarge):
		reason = "FileTooLarge"
	case errors.Is(err, ErrStore):
		reason = "StorageError"
	}
	return models.IngestFailure{Filename: name, Reason: reason, Message: err.Error()}
}

func (s *Service) addSource(ctx context.Context, notebookID string, src *models.Source) error {
	if err := s.store.AddSource(ctx, notebookID, src); err != nil {
		return fmt.Errorf("failed to store source %s: %w", src.Title, err)
	}
	if err := s.indexSource(ctx, notebookID, src); err != nil {
		if delErr := s.store.DeleteSource(ctx, notebookID, src.ID); delErr != nil {
			s.logger.Warn("failed to roll back unindexed source", zap.String("source", src.ID), zap.Error(delErr))
		}
		return err
	}
	s.logger.Debug("source added",
		zap.String("notebook", notebookID),
		zap.String("source", src.ID),
		zap.String("title", src.Title),
		zap.String("kind", string(src.Kind())))
	return nil
}

func (s *Service) indexSource(ctx context.Context, notebookID string, src *models.Source) error {
	segs := Segments(notebookID, src)
	if len(segs) == 0 {
		return nil
	}
	if err := s.index.IndexSegments(ctx, segs); err != nil {
		return fmt.Errorf("failed to index source %s: %w", src.Title, err)
	}
	s.invalidateSpelling()
	return nil
}

// IngestPath ingests a file, or every supported file directly inside a directory.
func (s *Service) IngestPath(ctx context.Context, notebookID, path string) (*models.IngestReport, error) {
	paths, err := supportedFiles(path)
	if err != nil {
		return nil, err
	}
	files := make([]extract.File, 0, len(paths))
	report := &models.IngestReport{}
	for _, p := range paths {
		f, err := s.loadLocal(p)
		if err != nil {
			report.Failures = append(report.Failures, failure(f.Name, err))
			continue
		}
		files = append(files, f)
	}
	rep, err := s.Ingest(ctx, notebookID, files)
	if err != nil {
		return nil, err
	}
	rep.Failures = append(report.Failures, rep.Failures...)
	return rep, nil
}

// supportedFiles lists path itself when it is a file, or the supported files
// directly inside it (sorted by name) when it is a directory.
func supportedFiles(path string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return []string{path}, nil
	}
	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") || !extract.HasSupportedExtension(e.Name()) {
			continue
		}
		out = append(out, filepath.Join(path, e.Name()))
	}
	sort.Strings(out)
	return out, nil
}

// loadLocal reads a local file into memory, enforcing the size limit.
func (s *Service) loadLocal(path string) (extract.File, error) {
	f := extract.LocalFile(path)
	if s.maxFileBytes > 0 {
		if info, err := os.Stat(f.Origin); err == nil && info.Size() > s.maxFileBytes {
			return f, s.tooLarge(f.Name)
		}
	}
	data, err := os.ReadFile(f.Origin)
	if err != nil {
		return f, fmt.Errorf("%s: %w: %w", f.Name, extract.ErrRead, err)
	}
	f.Data = data
	f.MediaType = extract.DetectMediaType(f.Name, data)
	return f, nil
}

// ImportFile brings a local file into the notebook. A file imported before
// from the same path is replaced when its content changed and skipped otherwise.
func (s *Service) ImportFile(ctx context.Context, notebookID, path string) (ImportAction, *models.Source, error) {
	f, err := s.loadLocal(path)
	if err != nil {
		return "", nil, err
	}
	existing, err := s.store.FindSourceByOrigin(ctx, notebookID, f.Origin)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return "", nil, err
	}
	if existing != nil && existing.Checksum == fileid.Checksum(f.Data) {
		s.logger.Debug("import skipped, unchanged", zap.String("path", f.Origin))
		return ImportSkipped, existing, nil
	}

	src, err := s.extractor.Extract(ctx, f)
	if err != nil {
		return "", nil, err
	}
	// The replacement is stored before the old source goes, so a failed add
	// leaves the notebook as it was.
	if err := s.addSource(ctx, notebookID, src); err != nil {
		return "", nil, err
	}
	action := ImportAdded
	if existing != nil {
		if err := s.removeSource(ctx, notebookID, existing.ID); err != nil {
			if undoErr := s.removeSource(ctx, notebookID, src.ID); undoErr != nil {
				s.logger.Warn("failed to undo replacement", zap.String("source", src.ID), zap.Error(undoErr))
			}
			return "", nil, err
		}
		action = ImportReplaced
	}
	s.logger.Info("file imported", zap.String("path", f.Origin), zap.String("action", string(action)))
	return action, src, nil
}

// RemoveOrigin deletes the source imported from path, if any. It reports
// whether a source was removed.
func (s *Service) RemoveOrigin(ctx context.Context, notebookID, path string) (bool, error) {
	existing, err := s.store.FindSourceByOrigin(ctx, notebookID, fileid.Origin(path))
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := s.removeSource(ctx, notebookID, existing.ID); err != nil {
		return false, err
	}
	s.logger.Info("imported file removed", zap.String("path", path), zap.String("source", existing.ID))
	return true, nil
}

// Sources returns a notebook's sources in the order they were added.
func (s *Service) Sources(ctx context.Context, notebookID string) ([]*models.Source, error) {
	if _, err := s.store.GetNotebook(ctx, notebookID); err != nil {
		return nil, err
	}
	return s.store.ListSources(ctx, notebookID)
}

// Source returns one source of a notebook.
func (s *Service) Source(ctx context.Context, notebookID, sourceID string) (*models.Source, error) {
	return s.store.GetSource(ctx, notebookID, sourceID)
}

// DeleteSource removes one source and its index entries. Other sources are untouched.
func (s *Service) DeleteSource(ctx context.Context, notebookID, sourceID string) error {
	return s.removeSource(ctx, notebookID, sourceID)
}

func (s *Service) removeSource(ctx context.Context, notebookID, sourceID string) error {
	if err := s.store.DeleteSource(ctx, notebookID, sourceID); err != nil {
		return err
	}
	if err := s.index.DeleteSource(ctx, sourceID); err != nil {
		return fmt.Errorf("failed to delete source from index: %w", err)
	}
	s.invalidateSpelling()
	return nil
}

// Search runs a keyword search over a notebook's sources. When nothing
// matches, a spelling-corrected query is suggested if one exists.
func (s *Service) Search(ctx context.Context, q models.KeywordQuery) (*models.KeywordSearchResponse, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	if _, err := s.store.GetNotebook(ctx, q.NotebookID); err != nil {
		return nil, err
	}
	start := s.now()
	res, err := s.index.Search(ctx, q.NotebookID, q.Query, q.Limit, &keyword.SearchOptions{
		TitleBoost:   s.titleBoost,
		FuzzyEnabled: q.Fuzzy,
		Offset:       q.Offset,
	})
	if err != nil {
		return nil, fmt.Errorf("keyword search failed: %w", err)
	}
	resp := &models.KeywordSearchResponse{
		Query:     q.Query,
		Hits:      make([]*models.KeywordHit, 0, len(res.Hits)),
		Total:     int(res.Total),
		QueryTime: s.now().Sub(start).Milliseconds(),
	}
	for _, h := range res.Hits {
		resp.Hits = append(resp.Hits, &models.KeywordHit{
			SourceID: h.SourceID,
			Title:    h.Title,
			Unit:     h.Unit,
			Score:    h.Score,
			Snippet:  h.Snippet,
		})
	}
	if resp.Total == 0 && s.spell != nil {
		if corrected, ok := s.spell.CorrectedQuery(q.Query); ok {
			resp.Suggestion = corrected
		}
	}
	s.logger.Debug("keyword search",
		zap.String("notebook", q.NotebookID),
		zap.String("query", q.Query),
		zap.Int("hits", len(resp.Hits)))
	return resp, nil
}

// Reindex rebuilds the index entries of every source in every notebook.
// It returns the number of sources indexed.
func (s *Service) Reindex(ctx context.Context) (int, error) {
	notebooks, err := s.store.ListNotebooks(ctx, "")
	if err != nil {
		return 0, err
	}
	count := 0
	for _, nb := range notebooks {
		if err := s.index.DeleteNotebook(ctx, nb.ID); err != nil {
			return count, fmt.Errorf("failed to clear notebook %s: %w", nb.ID, err)
		}
		sources, err := s.store.ListSources(ctx, nb.ID)
		if err != nil {
			return count, err
		}
		for _, src := range sources {
			if err := s.indexSource(ctx, nb.ID, src); err != nil {
				return count, err
			}
			count++
		}
	}
	s.invalidateSpelling()
	s.logger.Info("reindex finished", zap.Int("sources", count))
	return count, nil
}

// Stats returns row counts across all notebooks.
func (s *Service) Stats(ctx context.Context) (*storage.Stats, error) {
	return s.store.Stats(ctx)
}

// IndexedSegments returns the number of indexed segments.
func (s *Service) IndexedSegments() (uint64, error) {
	return s.index.DocCount()
}

func (s *Service) invalidateSpelling() {
	if s.spell != nil {
		s.spell.Invalidate()
	}
}
