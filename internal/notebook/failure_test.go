package notebook

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/hyperjump/shiryo/internal/extract"
	"github.com/hyperjump/shiryo/internal/keyword"
	"github.com/hyperjump/shiryo/internal/models"
	"github.com/hyperjump/shiryo/internal/storage"
)

var errDiskFull = errors.New("disk full")

// flakyStore fails AddSource for the titles in failTitles.
type flakyStore struct {
	storage.Storage
	failTitles map[string]bool
}

func (f *flakyStore) AddSource(ctx context.Context, notebookID string, src *models.Source) error {
	if f.failTitles[src.Title] {
		return errDiskFull
	}
	return f.Storage.AddSource(ctx, notebookID, src)
}

func newFlakyService(t *testing.T) (*Service, *flakyStore) {
	t.Helper()
	store, err := storage.NewSQLiteStorage(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = store.Close() })
	index, err := keyword.NewBleveIndex("")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = index.Close() })
	flaky := &flakyStore{Storage: store, failTitles: map[string]bool{}}
	return NewService(flaky, index, extract.NewExtractor()), flaky
}

func TestIngest_storageFailureIsPerFile(t *testing.T) {
	svc, flaky := newFlakyService(t)
	ctx := context.Background()
	nb := mustCreate(t, svc, "Flaky")
	flaky.failTitles["two.txt"] = true

	report, err := svc.Ingest(ctx, nb.ID, []extract.File{
		textFile("one.txt", "apples"),
		textFile("two.txt", "oranges"),
		textFile("three.txt", "pears"),
	})
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if len(report.Added) != 2 || report.Added[0].Title != "one.txt" || report.Added[1].Title != "three.txt" {
		t.Fatalf("added = %+v", report.Added)
	}
	if len(report.Failures) != 1 {
		t.Fatalf("failures = %+v", report.Failures)
	}
	if f := report.Failures[0]; f.Filename != "two.txt" || f.Reason != "StorageError" {
		t.Errorf("failure = %+v", f)
	}

	sources, err := svc.Sources(ctx, nb.ID)
	if err != nil || len(sources) != 2 {
		t.Fatalf("sources = %d, %v", len(sources), err)
	}
	resp, err := svc.Search(ctx, models.KeywordQuery{NotebookID: nb.ID, Query: "oranges"})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Total != 0 {
		t.Errorf("failed source was indexed: %+v", resp.Hits)
	}
}

func TestImportFile_failedReplacementKeepsOriginal(t *testing.T) {
	svc, flaky := newFlakyService(t)
	ctx := context.Background()
	nb := mustCreate(t, svc, "Inbox")
	path := filepath.Join(t.TempDir(), "memo.txt")
	if err := os.WriteFile(path, []byte("quarterly budget"), 0600); err != nil {
		t.Fatal(err)
	}
	_, first, err := svc.ImportFile(ctx, nb.ID, path)
	if err != nil {
		t.Fatal(err)
	}

	if err := os.WriteFile(path, []byte("annual forecast"), 0600); err != nil {
		t.Fatal(err)
	}
	flaky.failTitles["memo.txt"] = true
	if _, _, err := svc.ImportFile(ctx, nb.ID, path); !errors.Is(err, errDiskFull) {
		t.Fatalf("got %v, want errDiskFull", err)
	}

	sources, err := svc.Sources(ctx, nb.ID)
	if err != nil || len(sources) != 1 || sources[0].ID != first.ID || sources[0].Content != "quarterly budget" {
		t.Fatalf("sources after failed replace = %+v, %v", sources, err)
	}
	resp, err := svc.Search(ctx, models.KeywordQuery{NotebookID: nb.ID, Query: "budget"})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Total != 1 {
		t.Errorf("original no longer searchable: %+v", resp)
	}
}
