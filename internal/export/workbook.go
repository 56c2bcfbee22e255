// Package export writes a notebook inventory as an Excel workbook.
package export

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/hyperjump/shiryo/internal/models"
	"github.com/hyperjump/shiryo/internal/notebook"
)

// Sheet names.
const (
	SourcesSheet  = "Sources"
	NotebookSheet = "Notebook"
)

// ContentType is the media type of the written workbook.
const ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

const timeLayout = "2006-01-02 15:04:05"

// SourcesHeader is the header row of the Sources sheet.
var SourcesHeader = []string{"Position", "Title", "Kind", "Media Type", "Characters", "Units", "Created At"}

// Inventory is everything the workbook lists about one notebook.
type Inventory struct {
	Notebook  *models.Notebook
	Sources   []*models.Source
	Messages  int
	Artifacts int
}

// Collect gathers the inventory of one notebook.
func Collect(ctx context.Context, svc *notebook.Service, notebookID string) (Inventory, error) {
	nb, err := svc.GetNotebook(ctx, notebookID)
	if err != nil {
		return Inventory{}, err
	}
	sources, err := svc.Sources(ctx, notebookID)
	if err != nil {
		return Inventory{}, err
	}
	messages, err := svc.Messages(ctx, notebookID)
	if err != nil {
		return Inventory{}, err
	}
	artifacts, err := svc.Artifacts(ctx, notebookID)
	if err != nil {
		return Inventory{}, err
	}
	return Inventory{Notebook: nb, Sources: sources, Messages: len(messages), Artifacts: len(artifacts)}, nil
}

// Write renders inv as an xlsx workbook to w.
func Write(w io.Writer, inv Inventory) error {
	f, err := Build(inv)
	if err != nil {
		return err
	}
	defer f.Close()
	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

// Build creates the workbook in memory: a Sources sheet with one row per source
// in notebook order, and a Notebook sheet of key/value totals.
func Build(inv Inventory) (*excelize.File, error) {
	if inv.Notebook == nil {
		return nil, fmt.Errorf("export: notebook is required")
	}
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", SourcesSheet); err != nil {
		f.Close()
		return nil, err
	}
	if err := writeSources(f, inv.Sources); err != nil {
		f.Close()
		return nil, fmt.Errorf("sources sheet: %w", err)
	}
	if _, err := f.NewSheet(NotebookSheet); err != nil {
		f.Close()
		return nil, err
	}
	if err := writeNotebook(f, inv); err != nil {
		f.Close()
		return nil, fmt.Errorf("notebook sheet: %w", err)
	}
	f.SetActiveSheet(0)
	return f, nil
}

func writeSources(f *excelize.File, sources []*models.Source) error {
	header := make([]interface{}, len(SourcesHeader))
	for i, h := range SourcesHeader {
		header[i] = h
	}
	if err := f.SetSheetRow(SourcesSheet, "A1", &header); err != nil {
		return err
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return err
	}
	if err := f.SetCellStyle(SourcesSheet, "A1", "G1", bold); err != nil {
		return err
	}
	for i, src := range sources {
		sum := src.Summary()
		var units interface{} = ""
		if n := notebook.CountUnits(src.Content); n > 0 && src.Kind().TextBearing() {
			units = n
		}
		row := []interface{}{
			i + 1,
			sum.Title,
			string(sum.Kind),
			sum.MediaType,
			sum.Characters,
			units,
			formatTime(sum.CreatedAt),
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(SourcesSheet, cell, &row); err != nil {
			return err
		}
	}
	return f.SetColWidth(SourcesSheet, "B", "B", 40)
}

func writeNotebook(f *excelize.File, inv Inventory) error {
	nb := inv.Notebook
	rows := [][]interface{}{
		{"Title", nb.Title},
		{"Created", formatTime(nb.CreatedAt)},
		{"Updated", formatTime(nb.UpdatedAt)},
		{"Sources", len(inv.Sources)},
		{"Messages", inv.Messages},
		{"Artifacts", inv.Artifacts},
	}
	for i, row := range rows {
		if err := f.SetSheetRow(NotebookSheet, "A"+strconv.Itoa(i+1), &row); err != nil {
			return err
		}
	}
	return f.SetColWidth(NotebookSheet, "A", "B", 24)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(timeLayout)
}

// ReadSheet returns the rows of one sheet of an xlsx workbook, as text.
func ReadSheet(content []byte, sheet string) ([][]string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("get rows for sheet %q: %w", sheet, err)
	}
	return rows, nil
}
