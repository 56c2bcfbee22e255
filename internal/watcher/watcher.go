// Package watcher keeps a notebook in sync with inbox folders: files dropped
// into a watched directory are imported, changed files are replaced and deleted
// files are removed from the notebook.
package watcher

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/hyperjump/shiryo/internal/extract"
	"github.com/hyperjump/shiryo/internal/models"
	"github.com/hyperjump/shiryo/internal/notebook"
)

const defaultDebounce = 500 * time.Millisecond

// Importer applies inbox changes to a notebook. *notebook.Service implements it.
type Importer interface {
	ImportFile(ctx context.Context, notebookID, path string) (notebook.ImportAction, *models.Source, error)
	RemoveOrigin(ctx context.Context, notebookID, path string) (bool, error)
}

// SyncSummary counts what a sync did with the files it found.
type SyncSummary struct {
	Added    int `json:"added"`
	Replaced int `json:"replaced"`
	Skipped  int `json:"skipped"`
	Failed   int `json:"failed"`
}

func (s *SyncSummary) record(action notebook.ImportAction, err error) {
	switch {
	case err != nil:
		s.Failed++
	case action == notebook.ImportAdded:
		s.Added++
	case action == notebook.ImportReplaced:
		s.Replaced++
	default:
		s.Skipped++
	}
}

// Watcher watches inbox directories and imports their files into one notebook.
type Watcher struct {
	importer    Importer
	notebookID  string
	roots       []string
	recursive   bool
	match       func(path string) bool
	debounce    time.Duration
	watcher     *fsnotify.Watcher
	ctx         context.Context
	mu          sync.Mutex
	debounceMap map[string]*time.Timer
	rootPaths   map[string][]string // root -> directories added to fsnotify for it
	done        chan struct{}
	started     bool
	stopOnce    sync.Once
	logger      *zap.Logger
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(w *Watcher) {
		if l != nil {
			w.logger = l
		}
	}
}

// WithDebounce sets how long a path must stay quiet before it is imported.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// WithRecursive makes the watcher descend into subdirectories.
func WithRecursive(recursive bool) Option {
	return func(w *Watcher) { w.recursive = recursive }
}

// WithMatcher replaces the file filter. The default accepts the extensions the
// extractors support.
func WithMatcher(match func(path string) bool) Option {
	return func(w *Watcher) {
		if match != nil {
			w.match = match
		}
	}
}

// New creates a watcher that imports files under roots into notebookID.
func New(importer Importer, notebookID string, roots []string, opts ...Option) *Watcher {
	w := &Watcher{
		importer:    importer,
		notebookID:  notebookID,
		match:       extract.HasSupportedExtension,
		debounce:    defaultDebounce,
		ctx:         context.Background(),
		debounceMap: make(map[string]*time.Timer),
		rootPaths:   make(map[string][]string),
		done:        make(chan struct{}),
		logger:      zap.NewNop(),
	}
	for _, r := range roots {
		if abs, err := filepath.Abs(r); err == nil {
			w.roots = append(w.roots, filepath.Clean(abs))
		}
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Start begins watching. Missing roots are created. The watcher runs until ctx
// is cancelled or Stop is called; imports run with ctx.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.started {
		w.mu.Unlock()
		return nil
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		w.mu.Unlock()
		return err
	}
	w.watcher = fw
	w.ctx = ctx
	w.started = true
	w.logger.Info("inbox watcher starting",
		zap.Strings("directories", w.roots),
		zap.String("notebook", w.notebookID),
		zap.Bool("recursive", w.recursive))
	for _, root := range w.roots {
		if err := w.addRootLocked(root); err != nil {
			_ = w.watcher.Close()
			w.watcher = nil
			w.started = false
			w.mu.Unlock()
			return err
		}
	}
	w.mu.Unlock()
	go w.run(ctx, fw)
	return nil
}

func (w *Watcher) run(ctx context.Context, fw *fsnotify.Watcher) {
	for {
		select {
		case <-ctx.Done():
			w.Stop()
			return
		case <-w.done:
			return
		case ev, ok := <-fw.Events:
			if !ok {
				return
			}
			w.handleEvent(ev)
		case err, ok := <-fw.Errors:
			if !ok {
				return
			}
			if err != nil {
				w.logger.Warn("inbox watcher error", zap.Error(err))
			}
		}
	}
}

func (w *Watcher) handleEvent(ev fsnotify.Event) {
	path := filepath.Clean(ev.Name)
	if !w.underRoot(path) || hidden(path) {
		return
	}
	w.logger.Debug("inbox event", zap.String("op", ev.Op.String()), zap.String("path", path))
	switch {
	case ev.Has(fsnotify.Remove), ev.Has(fsnotify.Rename):
		// A rename reports the old name; the new name arrives as a Create.
		w.cancelDebounce(path)
		if w.match(path) {
			w.remove(path)
		}
	case ev.Has(fsnotify.Create), ev.Has(fsnotify.Write):
		info, err := os.Stat(path)
		if err == nil && info.IsDir() {
			w.handleNewDirectory(path)
			return
		}
		if w.match(path) {
			w.debounceImport(path)
		}
	}
}

// handleNewDirectory watches a directory created (or moved) under a recursive
// root and imports what it already holds.
func (w *Watcher) handleNewDirectory(dir string) {
	w.mu.Lock()
	recursive, fw := w.recursive, w.watcher
	w.mu.Unlock()
	if fw == nil || !recursive {
		return
	}
	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if err := fw.Add(path); err != nil {
				w.logger.Warn("failed to watch directory", zap.String("path", path), zap.Error(err))
			}
		}
		return nil
	})
	var sum SyncSummary
	w.syncDirectory(w.context(), dir, &sum)
}

func (w *Watcher) context() context.Context {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.ctx
}

func (w *Watcher) underRoot(path string) bool {
	w.mu.Lock()
	roots := append([]string(nil), w.roots...)
	w.mu.Unlock()
	for _, root := range roots {
		if root == path || inDir(root, path) {
			return true
		}
	}
	return false
}

func inDir(dir, path string) bool {
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// hidden reports dot files and office lock files ("~$report.docx").
func hidden(path string) bool {
	base := filepath.Base(path)
	return strings.HasPrefix(base, ".") || strings.HasPrefix(base, "~$")
}

func (w *Watcher) debounceImport(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.debounceMap[path]; ok {
		t.Stop()
	}
	w.debounceMap[path] = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		delete(w.debounceMap, path)
		ctx := w.ctx
		w.mu.Unlock()
		w.importFile(ctx, path)
	})
}

func (w *Watcher) cancelDebounce(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.debounceMap[path]; ok {
		t.Stop()
		delete(w.debounceMap, path)
	}
}

func (w *Watcher) importFile(ctx context.Context, path string) (notebook.ImportAction, error) {
	action, src, err := w.importer.ImportFile(ctx, w.notebookID, path)
	if err != nil {
		w.logger.Warn("inbox import failed",
			zap.String("path", path),
			zap.String("reason", extract.Reason(err)),
			zap.Error(err))
		return action, err
	}
	if action == notebook.ImportSkipped {
		w.logger.Debug("inbox file unchanged", zap.String("path", path))
		return action, nil
	}
	w.logger.Info("inbox file imported",
		zap.String("path", path),
		zap.String("action", string(action)),
		zap.String("source", src.ID))
	return action, nil
}

func (w *Watcher) remove(path string) {
	ctx := w.context()
	removed, err := w.importer.RemoveOrigin(ctx, w.notebookID, path)
	if err != nil {
		w.logger.Warn("inbox remove failed", zap.String("path", path), zap.Error(err))
		return
	}
	if removed {
		w.logger.Info("inbox file removed", zap.String("path", path))
	}
}

// AddDirectory starts watching root and, if syncExisting is set, imports the
// files it already holds in the background.
func (w *Watcher) AddDirectory(root string, syncExisting bool) error {
	abs, err := filepath.Abs(root)
	if err != nil {
		return err
	}
	abs = filepath.Clean(abs)
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, r := range w.roots {
		if r == abs {
			return nil
		}
	}
	if w.watcher != nil {
		if err := w.addRootLocked(abs); err != nil {
			return err
		}
	}
	w.roots = append(w.roots, abs)
	w.logger.Info("inbox directory added", zap.String("path", abs), zap.Bool("sync_existing", syncExisting))
	if syncExisting {
		ctx := w.ctx
		go func() {
			var sum SyncSummary
			w.syncDirectory(ctx, abs, &sum)
		}()
	}
	return nil
}

func (w *Watcher) addRootLocked(root string) error {
	if _, err := os.Stat(root); err != nil {
		if !os.IsNotExist(err) {
			return err
		}
		if err := os.MkdirAll(root, 0o755); err != nil {
			return err
		}
	}
	var paths []string
	if w.recursive {
		err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.IsDir() {
				return nil
			}
			if path != root && hidden(path) {
				return filepath.SkipDir
			}
			if err := w.watcher.Add(path); err != nil {
				return err
			}
			paths = append(paths, path)
			return nil
		})
		if err != nil {
			return err
		}
	} else {
		if err := w.watcher.Add(root); err != nil {
			return err
		}
		paths = append(paths, root)
	}
	w.rootPaths[root] = paths
	return nil
}

// syncDirectory imports every matching file under root in name order.
func (w *Watcher) syncDirectory(ctx context.Context, root string, sum *SyncSummary) {
	var files []string
	_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if path != root && (!w.recursive || hidden(path)) {
				return filepath.SkipDir
			}
			return nil
		}
		if !hidden(path) && w.match(path) {
			files = append(files, path)
		}
		return nil
	})
	sort.Strings(files)
	for _, path := range files {
		if ctx.Err() != nil {
			return
		}
		action, err := w.importFile(ctx, path)
		sum.record(action, err)
	}
}

// SyncExisting imports the files already present in every watched directory.
// Unchanged files are skipped, so calling it on every start is safe.
func (w *Watcher) SyncExisting(ctx context.Context) SyncSummary {
	var sum SyncSummary
	for _, root := range w.Directories() {
		w.syncDirectory(ctx, root, &sum)
	}
	w.logger.Info("inbox synced",
		zap.Int("added", sum.Added),
		zap.Int("replaced", sum.Replaced),
		zap.Int("skipped", sum.Skipped),
		zap.Int("failed", sum.Failed))
	return sum
}

// RemoveDirectory stops watching root. Sources already imported from it stay
// in the notebook.
func (w *Watcher) RemoveDirectory(root string) error {
	abs, err := filepath.Abs(root)
	if err != nil {
		return err
	}
	abs = filepath.Clean(abs)
	w.mu.Lock()
	defer w.mu.Unlock()
	idx := -1
	for i, r := range w.roots {
		if r == abs {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil
	}
	if w.watcher != nil {
		for _, p := range w.rootPaths[abs] {
			_ = w.watcher.Remove(p)
		}
	}
	delete(w.rootPaths, abs)
	w.roots = append(w.roots[:idx], w.roots[idx+1:]...)
	w.logger.Info("inbox directory removed", zap.String("path", abs))
	return nil
}

// Directories returns the watched root directories.
func (w *Watcher) Directories() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]string(nil), w.roots...)
}

// NotebookID returns the notebook files are imported into.
func (w *Watcher) NotebookID() string { return w.notebookID }

// Stop stops watching and cancels pending imports.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.started || w.watcher == nil {
		w.mu.Unlock()
		return
	}
	for path, t := range w.debounceMap {
		t.Stop()
		delete(w.debounceMap, path)
	}
	_ = w.watcher.Close()
	w.watcher = nil
	w.started = false
	w.mu.Unlock()
	w.stopOnce.Do(func() { close(w.done) })
}
