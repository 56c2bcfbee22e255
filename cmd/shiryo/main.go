// Package main is the shiryo CLI entry point.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/shiryo/internal/chat"
	"github.com/hyperjump/shiryo/internal/cli"
	"github.com/hyperjump/shiryo/internal/config"
	"github.com/hyperjump/shiryo/internal/export"
	"github.com/hyperjump/shiryo/internal/extract"
	"github.com/hyperjump/shiryo/internal/gemini"
	"github.com/hyperjump/shiryo/internal/keyword"
	"github.com/hyperjump/shiryo/internal/mcpserver"
	"github.com/hyperjump/shiryo/internal/models"
	"github.com/hyperjump/shiryo/internal/notebook"
	"github.com/hyperjump/shiryo/internal/pdfdoc"
	"github.com/hyperjump/shiryo/internal/server"
	"github.com/hyperjump/shiryo/internal/storage"
	"github.com/hyperjump/shiryo/internal/viewer"
	"github.com/hyperjump/shiryo/internal/watcher"
	"github.com/hyperjump/shiryo/pkg/utils"
)

var version = "dev"

const (
	defaultConfigPath = "/usr/local/etc/shiryo/config.yaml"
	defaultServerURL  = "http://localhost:8080"
	sweepInterval     = time.Minute
)

// loadConfig loads config from path. When path is the default, config.yaml in
// the current directory wins if it exists, so "shiryo server" run from a project
// directory uses that project's config. A missing default config falls back to
// defaults and the environment. Returns the config and the path actually loaded,
// empty when none was.
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if cwd, cwdErr := os.Getwd(); cwdErr == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, statErr := os.Stat(fallback); statErr == nil {
				cfg, loadErr := config.Load(fallback)
				if loadErr != nil {
					return nil, "", loadErr
				}
				return cfg, fallback, nil
			}
		}
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			return config.Default(), "", nil
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	command := os.Args[1]
	args := os.Args[2:]
	switch command {
	case "server":
		runServer(args)
	case "ingest":
		runIngest(args)
	case "notebooks":
		runNotebooks(args)
	case "sources":
		runSources(args)
	case "search":
		runSearch(args)
	case "view":
		runView(args)
	case "ask":
		runAsk(args)
	case "studio":
		runStudio(args)
	case "export":
		runExport(args)
	case "mcp":
		runMCP(args)
	case "status":
		runStatus(args)
	case "version", "--version", "-v":
		fmt.Printf("shiryo version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func fail(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

// app holds the components a command works with.
type app struct {
	cfg        *config.Config
	configPath string
	logger     *zap.Logger
	store      *storage.SQLiteStorage
	index      *keyword.BleveIndex
	notebooks  *notebook.Service
}

func (a *app) Close() {
	if a.index != nil {
		_ = a.index.Close()
	}
	if a.store != nil {
		_ = a.store.Close()
	}
	_ = a.logger.Sync()
}

// openApp loads the config and opens storage, the keyword index and the
// notebook service. A configured API key enables chat and studio.
func openApp(configPath string, debug bool) (*app, error) {
	cfg, resolved, err := loadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	debugMode := cfg.Debug || debug
	logger, err := utils.NewLogger(debugMode)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}
	logger.Debug("config loaded", zap.String("config_path", resolved), zap.Bool("debug", debugMode))

	if err := os.MkdirAll(filepath.Dir(cfg.Storage.DatabasePath), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	store, err := storage.NewSQLiteStorage(cfg.Storage.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	index, err := keyword.NewBleveIndex(cfg.Storage.BleveIndexPath)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to initialize keyword index: %w", err)
	}

	opts := []notebook.Option{
		notebook.WithLogger(logger),
		notebook.WithWorkers(cfg.Ingest.Workers),
		notebook.WithMaxFileBytes(cfg.Ingest.MaxFileBytes),
	}
	if cfg.Gemini.APIKey != "" {
		assistant, err := newAssistant(cfg.Gemini, logger)
		if err != nil {
			logger.Warn("chat disabled", zap.Error(err))
		} else {
			opts = append(opts, notebook.WithAssistant(assistant))
		}
	}
	svc := notebook.NewService(store, index, extract.NewExtractor(extract.WithLogger(logger)), opts...)
	return &app{cfg: cfg, configPath: resolved, logger: logger, store: store, index: index, notebooks: svc}, nil
}

func mustOpenApp(configPath string, debug bool) *app {
	a, err := openApp(configPath, debug)
	if err != nil {
		fail("%v", err)
	}
	return a
}

// newAssistant builds the Gemini client for cfg and an assistant around it.
func newAssistant(cfg config.GeminiConfig, logger *zap.Logger) (*chat.Assistant, error) {
	client, err := gemini.New(gemini.Config{
		APIKey:  cfg.APIKey,
		Model:   cfg.Model,
		BaseURL: cfg.BaseURL,
		Timeout: cfg.Timeout,
	})
	if err != nil {
		return nil, err
	}
	return chat.NewAssistant(client,
		chat.WithMaxContextChars(cfg.MaxContextChars),
		chat.WithLogger(logger),
	), nil
}

// resolveNotebook accepts a notebook ID or an exact (case-insensitive) title.
func resolveNotebook(ctx context.Context, svc *notebook.Service, ref string) (*models.Notebook, error) {
	if nb, err := svc.GetNotebook(ctx, ref); err == nil {
		return nb, nil
	} else if !errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}
	nbs, err := svc.ListNotebooks(ctx, ref)
	if err != nil {
		return nil, err
	}
	var matches []*models.Notebook
	for _, nb := range nbs {
		if strings.EqualFold(nb.Title, ref) {
			matches = append(matches, nb)
		}
	}
	switch len(matches) {
	case 0:
		return nil, fmt.Errorf("notebook %q: %w", ref, storage.ErrNotFound)
	case 1:
		return matches[0], nil
	default:
		return nil, fmt.Errorf("%d notebooks are titled %q; use the ID", len(matches), ref)
	}
}

// argsReorder moves any flags (and their values) that appear after positional
// arguments to the front so that flag.Parse sees them. The flag package stops at
// the first non-flag argument, so "shiryo search nb query -limit 5" would
// otherwise leave -limit unparsed.
func argsReorder(args []string) []string {
	for i, a := range args {
		if len(a) > 0 && a[0] == '-' {
			if i == 0 {
				return args
			}
			reordered := make([]string, 0, len(args))
			reordered = append(reordered, args[i:]...)
			reordered = append(reordered, args[:i]...)
			return reordered
		}
	}
	return args
}

// joinArgs joins positional args with spaces so multi-word queries work the
// same with or without shell quoting.
func joinArgs(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}

func outputFormat(s string) cli.OutputFormat {
	f, err := cli.ParseFormat(s)
	if err != nil {
		fail("%v", err)
	}
	return f
}

func runServer(args []string) {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(args)

	a := mustOpenApp(*configPath, *debug)
	defer a.Close()
	logger := a.logger
	cfg := a.cfg

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	registry := viewer.NewRegistry(cfg.Viewer.IdleTimeout,
		viewer.WithCapacity(cfg.Viewer.MaxSessions),
		viewer.WithRegistryLogger(logger),
		viewer.WithSessionOptions(
			viewer.WithThumbnails(cfg.Viewer.ThumbnailScale, cfg.Viewer.ThumbnailLimit),
			viewer.WithInitialScale(cfg.Viewer.DefaultScale),
		),
	)
	defer registry.CloseAll()
	go registry.RunSweeper(ctx, sweepInterval)

	opts := []server.Option{
		server.WithConfigPath(a.configPath),
		server.WithAssistantFactory(func(apiKey string) (*chat.Assistant, error) {
			g := cfg.Gemini
			g.APIKey = apiKey
			return newAssistant(g, logger)
		}),
	}
	if cfg.Inbox.Enabled() {
		inbox, err := startInbox(ctx, a)
		if err != nil {
			logger.Fatal("Failed to start inbox watcher", zap.Error(err))
		}
		defer inbox.Stop()
		opts = append(opts, server.WithInbox(inbox))
	}

	srv := server.NewServer(a.notebooks, registry, cfg, logger, opts...)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down...")
	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = srv.Stop(shutdownCtx)
}

// startInbox watches the configured inbox directories, creating the target
// notebook on first use, and imports what they already hold in the background.
func startInbox(ctx context.Context, a *app) (*watcher.Watcher, error) {
	nb, err := resolveNotebook(ctx, a.notebooks, a.cfg.Inbox.Notebook)
	if errors.Is(err, storage.ErrNotFound) {
		nb, err = a.notebooks.CreateNotebook(ctx, a.cfg.Inbox.Notebook)
	}
	if err != nil {
		return nil, err
	}
	w := watcher.New(a.notebooks, nb.ID, a.cfg.Inbox.Directories,
		watcher.WithLogger(a.logger),
		watcher.WithDebounce(a.cfg.Inbox.Debounce),
	)
	if err := w.Start(ctx); err != nil {
		return nil, err
	}
	go w.SyncExisting(ctx)
	return w, nil
}

func runIngest(args []string) {
	fs := flag.NewFlagSet("ingest", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	create := fs.Bool("create", false, "create the notebook if no notebook has this title")
	output := fs.String("output", "text", "output format: text or json")
	fs.Usage = func() {
		fmt.Fprintln(fs.Output(), "Usage: shiryo ingest [flags] <notebook> <file-or-directory>...")
		fs.PrintDefaults()
	}
	_ = fs.Parse(argsReorder(args))
	if fs.NArg() < 2 {
		fs.Usage()
		os.Exit(1)
	}
	format := outputFormat(*output)

	a := mustOpenApp(*configPath, false)
	defer a.Close()
	ctx := context.Background()

	nb, err := resolveNotebook(ctx, a.notebooks, fs.Arg(0))
	if errors.Is(err, storage.ErrNotFound) && *create {
		nb, err = a.notebooks.CreateNotebook(ctx, fs.Arg(0))
	}
	if err != nil {
		fail("Ingest failed: %v", err)
	}

	total := &models.IngestReport{Added: []*models.SourceSummary{}, Failures: []models.IngestFailure{}}
	for _, path := range fs.Args()[1:] {
		report, err := a.notebooks.IngestPath(ctx, nb.ID, path)
		if err != nil {
			total.Failures = append(total.Failures, models.IngestFailure{
				Filename: path,
				Reason:   extract.Reason(err),
				Message:  err.Error(),
			})
			continue
		}
		total.Added = append(total.Added, report.Added...)
		total.Failures = append(total.Failures, report.Failures...)
	}
	if err := cli.WriteIngestReport(os.Stdout, total, format); err != nil {
		fail("Output failed: %v", err)
	}
	if len(total.Added) == 0 && len(total.Failures) > 0 {
		os.Exit(1)
	}
}

func runNotebooks(args []string) {
	sub := "list"
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		sub, args = args[0], args[1:]
	}
	fs := flag.NewFlagSet("notebooks "+sub, flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	filter := fs.String("filter", "", "only list notebooks whose title contains this")
	output := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(argsReorder(args))
	format := outputFormat(*output)

	a := mustOpenApp(*configPath, false)
	defer a.Close()
	ctx := context.Background()

	switch sub {
	case "list":
		nbs, err := a.notebooks.ListNotebooks(ctx, *filter)
		if err != nil {
			fail("List failed: %v", err)
		}
		_ = cli.WriteNotebooks(os.Stdout, nbs, format)
	case "create":
		title := joinArgs(fs.Args())
		nb, err := a.notebooks.CreateNotebook(ctx, title)
		if err != nil {
			fail("Create failed: %v", err)
		}
		_ = cli.WriteNotebook(os.Stdout, nb, format)
	case "rename":
		if fs.NArg() < 2 {
			fail("Usage: shiryo notebooks rename <notebook> <new title>")
		}
		nb, err := resolveNotebook(ctx, a.notebooks, fs.Arg(0))
		if err != nil {
			fail("Rename failed: %v", err)
		}
		nb, err = a.notebooks.RenameNotebook(ctx, nb.ID, joinArgs(fs.Args()[1:]))
		if err != nil {
			fail("Rename failed: %v", err)
		}
		_ = cli.WriteNotebook(os.Stdout, nb, format)
	case "delete":
		if fs.NArg() < 1 {
			fail("Usage: shiryo notebooks delete <notebook>")
		}
		nb, err := resolveNotebook(ctx, a.notebooks, joinArgs(fs.Args()))
		if err != nil {
			fail("Delete failed: %v", err)
		}
		if err := a.notebooks.DeleteNotebook(ctx, nb.ID); err != nil {
			fail("Delete failed: %v", err)
		}
		fmt.Printf("Notebook deleted: %s\n", nb.ID)
	default:
		fail("Unknown notebooks subcommand: %s (use list, create, rename or delete)", sub)
	}
}

func runSources(args []string) {
	fs := flag.NewFlagSet("sources", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	remove := fs.String("delete", "", "delete the source with this ID instead of listing")
	output := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(argsReorder(args))
	if fs.NArg() < 1 {
		fail("Usage: shiryo sources [flags] <notebook>")
	}
	format := outputFormat(*output)

	a := mustOpenApp(*configPath, false)
	defer a.Close()
	ctx := context.Background()
	nb, err := resolveNotebook(ctx, a.notebooks, joinArgs(fs.Args()))
	if err != nil {
		fail("Sources failed: %v", err)
	}
	if *remove != "" {
		if err := a.notebooks.DeleteSource(ctx, nb.ID, *remove); err != nil {
			fail("Delete failed: %v", err)
		}
		fmt.Printf("Source deleted: %s\n", *remove)
		return
	}
	sources, err := a.notebooks.Sources(ctx, nb.ID)
	if err != nil {
		fail("Sources failed: %v", err)
	}
	out := make([]*models.SourceSummary, len(sources))
	for i, s := range sources {
		out[i] = s.Summary()
	}
	_ = cli.WriteSources(os.Stdout, out, format)
}

func printSearchUsage(fs *flag.FlagSet) {
	fmt.Fprintf(fs.Output(), "Usage: shiryo search [flags] <notebook> <query>\n\n")
	fmt.Fprintf(fs.Output(), "Query is all remaining arguments joined by spaces. Multi-word queries work with or without quotes.\n\n")
	fs.PrintDefaults()
	fmt.Fprintf(fs.Output(), `
Hits name the page or slide they were found on. When nothing matches, the
search is retried with typo tolerance and a corrected query may be suggested.

Examples:
  shiryo search Biology photosynthesis
  shiryo search --fuzzy Biology mitocondria
  shiryo search --server http://localhost:8080 <notebook-id> cell wall
`)
}

func runSearch(args []string) {
	fs := flag.NewFlagSet("search", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	serverURL := fs.String("server", "", "query a running server instead of opening the index (notebook must be an ID)")
	limit := fs.Int("limit", 10, "number of results")
	offset := fs.Int("offset", 0, "skip this many results")
	fuzzy := fs.Bool("fuzzy", false, "enable fuzzy matching for typo tolerance")
	output := fs.String("output", "text", "output format: text or json")
	fs.Usage = func() { printSearchUsage(fs) }
	_ = fs.Parse(argsReorder(args))

	if fs.NArg() < 2 {
		printSearchUsage(fs)
		os.Exit(1)
	}
	query := models.KeywordQuery{
		Query:  joinArgs(fs.Args()[1:]),
		Limit:  *limit,
		Offset: *offset,
		Fuzzy:  *fuzzy,
	}
	if query.Query == "" {
		printSearchUsage(fs)
		os.Exit(1)
	}
	format := outputFormat(*output)

	var search func(models.KeywordQuery) (*models.KeywordSearchResponse, error)
	if *serverURL != "" {
		query.NotebookID = fs.Arg(0)
		search = func(q models.KeywordQuery) (*models.KeywordSearchResponse, error) {
			return searchViaHTTP(*serverURL, q)
		}
	} else {
		a := mustOpenApp(*configPath, false)
		defer a.Close()
		ctx := context.Background()
		nb, err := resolveNotebook(ctx, a.notebooks, fs.Arg(0))
		if err != nil {
			fail("Search failed: %v", err)
		}
		query.NotebookID = nb.ID
		search = func(q models.KeywordQuery) (*models.KeywordSearchResponse, error) {
			return a.notebooks.Search(ctx, q)
		}
	}

	response, err := search(query)
	if err != nil {
		fail("Search failed: %v", err)
	}
	// Retry with typo tolerance when an exact search found nothing.
	if !query.Fuzzy && response.Total == 0 {
		query.Fuzzy = true
		if fuzzyResponse, fuzzyErr := search(query); fuzzyErr == nil && fuzzyResponse.Total > 0 {
			response = fuzzyResponse
		}
	}
	if err := cli.WriteSearchResults(os.Stdout, response, format); err != nil {
		fail("Output failed: %v", err)
	}
}

func searchViaHTTP(serverURL string, q models.KeywordQuery) (*models.KeywordSearchResponse, error) {
	params := url.Values{}
	params.Set("q", q.Query)
	params.Set("limit", fmt.Sprint(q.Limit))
	params.Set("offset", fmt.Sprint(q.Offset))
	if q.Fuzzy {
		params.Set("fuzzy", "true")
	}
	endpoint := fmt.Sprintf("%s/api/v1/notebooks/%s/search?%s", strings.TrimRight(serverURL, "/"), url.PathEscape(q.NotebookID), params.Encode())
	var response models.KeywordSearchResponse
	if err := getJSON(endpoint, &response); err != nil {
		return nil, err
	}
	return &response, nil
}

func getJSON(endpoint string, v interface{}) error {
	resp, err := http.Get(endpoint)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// viewOptions are the view command's flags, applied to a fresh viewer state.
type viewOptions struct {
	page   int
	query  string
	hit    int
	scale  float64
	rotate int
}

// viewEvents turns the view flags into reducer events, in the order they apply:
// zoom, rotation, hit selection, then an explicit page.
func viewEvents(o viewOptions) ([]viewer.Event, error) {
	var evs []viewer.Event
	if o.scale > 0 {
		evs = append(evs, viewer.SetZoom{Scale: o.scale})
	}
	if o.rotate%viewer.RotationStep != 0 {
		return nil, fmt.Errorf("rotation must be a multiple of %d, got %d", viewer.RotationStep, o.rotate)
	}
	steps := pdfdoc.NormalizeRotation(o.rotate) / viewer.RotationStep
	for i := 0; i < steps; i++ {
		evs = append(evs, viewer.RotateCW{})
	}
	for i := 1; i < o.hit; i++ {
		evs = append(evs, viewer.NextHit{})
	}
	if o.page > 0 {
		evs = append(evs, viewer.GoToPage{Page: o.page})
	}
	return evs, nil
}

func runView(args []string) {
	fs := flag.NewFlagSet("view", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	var o viewOptions
	fs.IntVar(&o.page, "page", 0, "page to show (default: first page, or the page of the selected hit)")
	fs.StringVar(&o.query, "query", "", "search the document and jump to the first match")
	fs.IntVar(&o.hit, "hit", 1, "with --query, show the n-th match (wraps around)")
	fs.Float64Var(&o.scale, "scale", 0, "zoom factor, 0.25 to 4")
	fs.IntVar(&o.rotate, "rotate", 0, "clockwise rotation in degrees, a multiple of 90")
	thumbs := fs.Bool("thumbnails", false, "write page thumbnails as PNG files to the current directory")
	output := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(argsReorder(args))
	if fs.NArg() < 2 {
		fail("Usage: shiryo view [flags] <notebook> <source-id>")
	}
	format := outputFormat(*output)
	evs, err := viewEvents(o)
	if err != nil {
		fail("View failed: %v", err)
	}

	a := mustOpenApp(*configPath, false)
	defer a.Close()
	ctx := context.Background()
	nb, err := resolveNotebook(ctx, a.notebooks, fs.Arg(0))
	if err != nil {
		fail("View failed: %v", err)
	}
	src, err := a.notebooks.Source(ctx, nb.ID, fs.Arg(1))
	if err != nil {
		fail("View failed: %v", err)
	}
	if src.Kind() != models.KindPDF {
		fail("View failed: %s is %s, only pdf sources can be viewed", src.Title, src.Kind())
	}
	data, err := src.RawBytes()
	if err != nil {
		fail("View failed: %v", err)
	}
	doc, err := pdfdoc.Open(data)
	if err != nil {
		fail("View failed: %v", err)
	}
	sess := viewer.NewSession("cli", src.ID, doc,
		viewer.WithSessionLogger(a.logger),
		viewer.WithThumbnails(a.cfg.Viewer.ThumbnailScale, a.cfg.Viewer.ThumbnailLimit),
	)
	defer sess.Close()

	if o.query != "" {
		if _, err := sess.Search(o.query); err != nil {
			fail("View failed: %v", err)
		}
	}
	for _, ev := range evs {
		sess.Dispatch(ev)
	}
	page, err := sess.Render()
	if err != nil {
		fail("View failed: %v", err)
	}
	if err := cli.WritePage(os.Stdout, page, format); err != nil {
		fail("Output failed: %v", err)
	}

	if *thumbs {
		list, err := sess.Thumbnails()
		if err != nil {
			fail("Thumbnails failed: %v", err)
		}
		base := strings.TrimSuffix(src.Title, filepath.Ext(src.Title))
		for _, t := range list {
			name := fmt.Sprintf("%s-p%03d.png", base, t.Page)
			if err := os.WriteFile(name, t.PNG, 0o644); err != nil {
				fail("Thumbnails failed: %v", err)
			}
		}
		fmt.Fprintf(os.Stderr, "Wrote %d thumbnail(s)\n", len(list))
	}
}

func runAsk(args []string) {
	fs := flag.NewFlagSet("ask", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	output := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(argsReorder(args))
	if fs.NArg() < 2 {
		fail("Usage: shiryo ask [flags] <notebook> <question>")
	}
	format := outputFormat(*output)

	a := mustOpenApp(*configPath, false)
	defer a.Close()
	ctx := context.Background()
	nb, err := resolveNotebook(ctx, a.notebooks, fs.Arg(0))
	if err != nil {
		fail("Ask failed: %v", err)
	}
	reply, err := a.notebooks.Ask(ctx, nb.ID, joinArgs(fs.Args()[1:]), nil)
	if errors.Is(err, notebook.ErrNoAssistant) {
		fail("Ask failed: no API key; set %s or gemini.api_key in the config", config.EnvAPIKey)
	}
	if err != nil {
		fail("Ask failed: %v", err)
	}
	_ = cli.WriteMessage(os.Stdout, reply.Content, reply, format)
}

func runStudio(args []string) {
	fs := flag.NewFlagSet("studio", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	output := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(argsReorder(args))
	if fs.NArg() < 2 {
		kinds := make([]string, len(chat.StudioKinds))
		for i, k := range chat.StudioKinds {
			kinds[i] = string(k)
		}
		fail("Usage: shiryo studio [flags] <notebook> <%s>", strings.Join(kinds, "|"))
	}
	format := outputFormat(*output)
	kind, err := chat.ParseStudioKind(fs.Arg(1))
	if err != nil {
		fail("Studio failed: %v", err)
	}

	a := mustOpenApp(*configPath, false)
	defer a.Close()
	ctx := context.Background()
	nb, err := resolveNotebook(ctx, a.notebooks, fs.Arg(0))
	if err != nil {
		fail("Studio failed: %v", err)
	}
	art, err := a.notebooks.Studio(ctx, nb.ID, kind)
	if errors.Is(err, notebook.ErrNoAssistant) {
		fail("Studio failed: no API key; set %s or gemini.api_key in the config", config.EnvAPIKey)
	}
	if err != nil {
		fail("Studio failed: %v", err)
	}
	_ = cli.WriteMessage(os.Stdout, art.Content, art, format)
}

func runExport(args []string) {
	fs := flag.NewFlagSet("export", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	_ = fs.Parse(argsReorder(args))
	if fs.NArg() < 2 {
		fail("Usage: shiryo export [flags] <notebook> <out.xlsx>")
	}

	a := mustOpenApp(*configPath, false)
	defer a.Close()
	ctx := context.Background()
	nb, err := resolveNotebook(ctx, a.notebooks, fs.Arg(0))
	if err != nil {
		fail("Export failed: %v", err)
	}
	inv, err := export.Collect(ctx, a.notebooks, nb.ID)
	if err != nil {
		fail("Export failed: %v", err)
	}
	f, err := os.Create(fs.Arg(1))
	if err != nil {
		fail("Export failed: %v", err)
	}
	if err := export.Write(f, inv); err != nil {
		_ = f.Close()
		fail("Export failed: %v", err)
	}
	if err := f.Close(); err != nil {
		fail("Export failed: %v", err)
	}
	fmt.Printf("Exported %d source(s) to %s\n", len(inv.Sources), fs.Arg(1))
}

func runMCP(args []string) {
	fs := flag.NewFlagSet("mcp", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	_ = fs.Parse(args)

	// Logs go to stderr; stdout carries the protocol.
	a := mustOpenApp(*configPath, false)
	defer a.Close()
	if err := mcpserver.New(a.notebooks, version, a.logger).ServeStdio(); err != nil {
		fail("MCP server failed: %v", err)
	}
}

func runStatus(args []string) {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path (for direct storage mode)")
	serverURL := fs.String("server", defaultServerURL, "server URL (empty = use direct storage)")
	output := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(args)
	format := outputFormat(*output)

	var status cli.Status
	if *serverURL != "" {
		if err := getJSON(strings.TrimRight(*serverURL, "/")+"/api/v1/status", &status); err != nil {
			fail("Status failed: %v", err)
		}
	} else {
		s, err := localStatus(*configPath)
		if err != nil {
			fail("Status failed: %v", err)
		}
		status = *s
	}
	if err := cli.WriteStatus(os.Stdout, &status, format); err != nil {
		fail("Output failed: %v", err)
	}
}

func localStatus(configPath string) (*cli.Status, error) {
	a, err := openApp(configPath, false)
	if err != nil {
		return nil, err
	}
	defer a.Close()
	stats, err := a.notebooks.Stats(context.Background())
	if err != nil {
		return nil, err
	}
	segments, err := a.notebooks.IndexedSegments()
	if err != nil {
		return nil, err
	}
	status := &cli.Status{
		Notebooks:       stats.Notebooks,
		Sources:         stats.Sources,
		Messages:        stats.Messages,
		Artifacts:       stats.Artifacts,
		IndexedSegments: segments,
		Assistant:       a.notebooks.HasAssistant(),
		Config: &cli.StatusConfig{
			Model:            a.cfg.Gemini.Model,
			DatabasePath:     a.cfg.Storage.DatabasePath,
			BleveIndexPath:   a.cfg.Storage.BleveIndexPath,
			IngestWorkers:    a.cfg.Ingest.Workers,
			InboxDirectories: a.cfg.Inbox.Directories,
		},
	}
	if disk, err := storage.DiskUsageBytes(a.cfg.Storage.DatabasePath, a.cfg.Storage.BleveIndexPath); err == nil {
		status.DiskUsageBytes = &disk
	}
	return status, nil
}

func printUsage() {
	fmt.Println(`shiryo - chat with your documents

Usage:
  shiryo server [flags]                        Start the HTTP server (and inbox watcher)
  shiryo ingest [flags] <notebook> <path>...   Add files or directories to a notebook
  shiryo notebooks [list|create|rename|delete] Manage notebooks
  shiryo sources [flags] <notebook>            List (or --delete) the sources of a notebook
  shiryo search [flags] <notebook> <query>     Keyword search within a notebook
  shiryo view [flags] <notebook> <source-id>   Show a PDF page with zoom, rotation and search
  shiryo ask [flags] <notebook> <question>     Ask a question grounded in the notebook's sources
  shiryo studio [flags] <notebook> <kind>      Generate a summary, faq, study-guide or timeline
  shiryo export [flags] <notebook> <out.xlsx>  Export the notebook inventory as a workbook
  shiryo mcp [flags]                           Serve notebook tools over MCP (stdio)
  shiryo status [flags]                        Show storage, index and assistant status
  shiryo version                               Show version
  shiryo help                                  Show this help

A <notebook> is a notebook ID or its exact title.

Common Flags:
  --config string    Config file path (default: /usr/local/etc/shiryo/config.yaml,
                     or ./config.yaml when present)
  --output string    Output format: text or json (default: text)

Server Flags:
  --debug            Enable debug logging

Ingest Flags:
  --create           Create the notebook when no notebook has this title

Search Flags:
  --limit int        Number of results (default: 10)
  --offset int       Skip this many results
  --fuzzy            Enable fuzzy matching for typo tolerance
  --server string    Query a running server (notebook must be an ID)

View Flags:
  --page int         Page to show
  --query string     Search the document and jump to the first match
  --hit int          Show the n-th match
  --scale float      Zoom factor, 0.25 to 4
  --rotate int       Clockwise rotation in degrees (multiple of 90)
  --thumbnails       Write page thumbnails as PNG files

Status Flags:
  --server string    Server URL (default: http://localhost:8080). Use --server "" for direct storage.

Environment:
  GEMINI_API_KEY     API key for chat and studio
  GEMINI_MODEL       Model name (default: gemini-2.5-flash)

Examples:
  shiryo notebooks create Biology
  shiryo ingest Biology ~/papers/photosynthesis.pdf ~/notes
  shiryo search Biology chlorophyll
  shiryo view --query chlorophyll --scale 1.5 Biology <source-id>
  shiryo ask Biology "What absorbs light?"
  shiryo studio Biology faq
  shiryo export Biology biology.xlsx`)
}
