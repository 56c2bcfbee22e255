// Package cli renders command output for the shiryo CLI, as text for people or
// JSON for other programs.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/hyperjump/shiryo/internal/models"
	"github.com/hyperjump/shiryo/internal/viewer"
	"github.com/hyperjump/shiryo/pkg/utils"
)

// OutputFormat selects how results are written.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

// ParseFormat accepts "text" or "json".
func ParseFormat(s string) (OutputFormat, error) {
	switch OutputFormat(s) {
	case OutputText, "":
		return OutputText, nil
	case OutputJSON:
		return OutputJSON, nil
	default:
		return "", fmt.Errorf("unknown output format %q; use text or json", s)
	}
}

const rule = "─────────────────────────────────────────────────────────"

// WriteJSON writes v as indented JSON.
func WriteJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func date(t time.Time) string {
	return t.Local().Format("2006-01-02 15:04")
}

// WriteNotebooks lists notebooks.
func WriteNotebooks(w io.Writer, nbs []*models.Notebook, format OutputFormat) error {
	if format == OutputJSON {
		if nbs == nil {
			nbs = []*models.Notebook{}
		}
		return WriteJSON(w, nbs)
	}
	if len(nbs) == 0 {
		fmt.Fprintln(w, "No notebooks.")
		return nil
	}
	for _, nb := range nbs {
		fmt.Fprintf(w, "%s  %-40s  %3d sources  updated %s\n", nb.ID, Truncate(nb.Title, 40), nb.SourceCount, date(nb.UpdatedAt))
	}
	return nil
}

// WriteNotebook prints one notebook.
func WriteNotebook(w io.Writer, nb *models.Notebook, format OutputFormat) error {
	if format == OutputJSON {
		return WriteJSON(w, nb)
	}
	fmt.Fprintf(w, "%s  %s\n", nb.ID, nb.Title)
	return nil
}

// WriteSources lists the sources of a notebook in order.
func WriteSources(w io.Writer, sources []*models.SourceSummary, format OutputFormat) error {
	if format == OutputJSON {
		if sources == nil {
			sources = []*models.SourceSummary{}
		}
		return WriteJSON(w, sources)
	}
	if len(sources) == 0 {
		fmt.Fprintln(w, "No sources.")
		return nil
	}
	for i, s := range sources {
		fmt.Fprintf(w, "%3d. %-5s %s  %s (%d chars)\n", i+1, s.Kind, s.ID, s.Title, s.Characters)
	}
	return nil
}

// WriteIngestReport prints what an ingest added and which files failed.
func WriteIngestReport(w io.Writer, report *models.IngestReport, format OutputFormat) error {
	if format == OutputJSON {
		return WriteJSON(w, report)
	}
	fmt.Fprintf(w, "Added %d source(s), %d failure(s)", len(report.Added), len(report.Failures))
	if len(report.Skipped) > 0 {
		fmt.Fprintf(w, ", %d unchanged", len(report.Skipped))
	}
	fmt.Fprintln(w)
	for _, s := range report.Added {
		fmt.Fprintf(w, "  + %-5s %s\n", s.Kind, s.Title)
	}
	for _, f := range report.Failures {
		fmt.Fprintf(w, "  ! %s: %s (%s)\n", f.Filename, f.Reason, f.Message)
	}
	for _, name := range report.Skipped {
		fmt.Fprintf(w, "  = %s\n", name)
	}
	return nil
}

// WriteSearchResults writes keyword search results. Use OutputJSON for
// parseable output consumable by other apps.
func WriteSearchResults(w io.Writer, response *models.KeywordSearchResponse, format OutputFormat) error {
	if format == OutputJSON {
		return WriteJSON(w, response)
	}
	fmt.Fprintf(w, "\nFound %d results in %dms\n\n", response.Total, response.QueryTime)
	if response.Total == 0 && response.Suggestion != "" {
		fmt.Fprintf(w, "Did you mean: %s\n\n", response.Suggestion)
	}
	for i, hit := range response.Hits {
		fmt.Fprintln(w, rule)
		fmt.Fprintf(w, "%d. %s", i+1, hit.Title)
		if hit.Unit != "" {
			fmt.Fprintf(w, " (%s)", hit.Unit)
		}
		fmt.Fprintf(w, " | Score: %.4f\n", hit.Score)
		fmt.Fprintf(w, "ID: %s\n", hit.SourceID)
		if hit.Snippet != "" {
			fmt.Fprintf(w, "\n%s\n", Truncate(hit.Snippet, 200))
		}
		fmt.Fprintln(w)
	}
	return nil
}

// WriteMessage prints a chat answer or studio artifact body.
func WriteMessage(w io.Writer, content string, v interface{}, format OutputFormat) error {
	if format == OutputJSON {
		return WriteJSON(w, v)
	}
	fmt.Fprintln(w, strings.TrimRight(content, "\n"))
	return nil
}

// WritePage prints the viewer state and the text of the rendered page, one
// overlay run per line, with search hits listed after.
func WritePage(w io.Writer, page *viewer.RenderedPage, format OutputFormat) error {
	if format == OutputJSON {
		return WriteJSON(w, page)
	}
	st := page.State
	fmt.Fprintf(w, "Page %d/%d  zoom %d%%  rotation %d°  (%.0fx%.0f)\n",
		st.Page, st.NumPages, int(st.Scale*100+0.5), st.Rotation, page.Viewport.Width, page.Viewport.Height)
	fmt.Fprintln(w, rule)
	for _, item := range page.Overlay {
		fmt.Fprintln(w, item.Text)
	}
	if st.Query != "" {
		fmt.Fprintln(w, rule)
		if len(st.Hits) == 0 {
			fmt.Fprintf(w, "No matches for %q\n", st.Query)
			return nil
		}
		fmt.Fprintf(w, "Match %d of %d for %q\n", st.Current+1, len(st.Hits), st.Query)
		for _, h := range page.Highlights {
			marker := " "
			if h.Active {
				marker = ">"
			}
			fmt.Fprintf(w, "%s hit %d on this page (%d run(s))\n", marker, h.Hit+1, len(h.Spans))
		}
	}
	return nil
}

// Status is the shape of GET /api/v1/status, also built locally by
// "shiryo status" when no server is running.
type Status struct {
	Notebooks       int64         `json:"notebooks"`
	Sources         int64         `json:"sources"`
	Messages        int64         `json:"messages"`
	Artifacts       int64         `json:"artifacts"`
	IndexedSegments uint64        `json:"indexed_segments"`
	ViewerSessions  int           `json:"viewer_sessions"`
	Assistant       bool          `json:"assistant"`
	DiskUsageBytes  *int64        `json:"disk_usage_bytes,omitempty"`
	Config          *StatusConfig `json:"config,omitempty"`
}

// StatusConfig is the configuration part of Status.
type StatusConfig struct {
	Model            string   `json:"model,omitempty"`
	DatabasePath     string   `json:"database_path,omitempty"`
	BleveIndexPath   string   `json:"bleve_index_path,omitempty"`
	IngestWorkers    int      `json:"ingest_workers,omitempty"`
	InboxDirectories []string `json:"inbox_directories,omitempty"`
}

// WriteStatus prints service status.
func WriteStatus(w io.Writer, s *Status, format OutputFormat) error {
	if format == OutputJSON {
		return WriteJSON(w, s)
	}
	fmt.Fprintf(w, "notebooks:          %d\n", s.Notebooks)
	fmt.Fprintf(w, "sources:            %d\n", s.Sources)
	fmt.Fprintf(w, "messages:           %d\n", s.Messages)
	fmt.Fprintf(w, "artifacts:          %d\n", s.Artifacts)
	fmt.Fprintf(w, "indexed_segments:   %d   # pages, slides and documents in the keyword index\n", s.IndexedSegments)
	fmt.Fprintf(w, "viewer_sessions:    %d\n", s.ViewerSessions)
	fmt.Fprintf(w, "assistant:          %t\n", s.Assistant)
	if s.DiskUsageBytes != nil {
		fmt.Fprintf(w, "disk_usage_bytes:   %d   # database + index on disk\n", *s.DiskUsageBytes)
	}
	if c := s.Config; c != nil {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "# configuration")
		if c.Model != "" {
			fmt.Fprintf(w, "model:              %s\n", c.Model)
		}
		if c.DatabasePath != "" {
			fmt.Fprintf(w, "database_path:      %s\n", c.DatabasePath)
		}
		if c.BleveIndexPath != "" {
			fmt.Fprintf(w, "bleve_index_path:   %s\n", c.BleveIndexPath)
		}
		if c.IngestWorkers > 0 {
			fmt.Fprintf(w, "ingest_workers:     %d\n", c.IngestWorkers)
		}
		for _, d := range c.InboxDirectories {
			fmt.Fprintf(w, "inbox:              %s\n", d)
		}
	}
	return nil
}

// Truncate shortens s to maxLen runes and appends "..." if it was longer.
func Truncate(s string, maxLen int) string {
	if maxLen <= 0 || len([]rune(s)) <= maxLen {
		return s
	}
	return utils.TruncateRunes(s, maxLen) + "..."
}

// TruncateWords returns up to maxWords from the space-separated string.
func TruncateWords(s string, maxWords int) string {
	words := strings.Fields(s)
	if len(words) <= maxWords {
		return s
	}
	return strings.Join(words[:maxWords], " ") + "..."
}
