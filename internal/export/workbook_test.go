package export

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperjump/shiryo/internal/models"
)

func src(id, title string, kind models.Kind, content string) *models.Source {
	s := models.NewSource(id, title, kind, time.Date(2024, 2, 3, 4, 5, 6, 0, time.UTC))
	s.Content = content
	if kind == models.KindImage {
		s.MediaType = "image/png"
	}
	return s
}

func TestWrite_sourcesAndNotebookSheets(t *testing.T) {
	inv := Inventory{
		Notebook: &models.Notebook{
			ID:        "nb",
			Title:     "Marine Biology",
			CreatedAt: time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC),
			UpdatedAt: time.Date(2024, 1, 2, 8, 0, 0, 0, time.UTC),
		},
		Sources: []*models.Source{
			src("1", "reef.pdf", models.KindPDF, "[Page 1] coral\n\n[Page 2] fish\n\n"),
			src("2", "deck.pptx", models.KindPPTX, "[Slide 1] whales\n\n"),
			src("3", "notes.txt", models.KindText, "héllo"),
			src("4", "photo.png", models.KindImage, "iVBORw0KGgo="),
		},
		Messages:  4,
		Artifacts: 1,
	}
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, inv))

	rows, err := ReadSheet(buf.Bytes(), SourcesSheet)
	require.NoError(t, err)
	require.Len(t, rows, 5)
	assert.Equal(t, SourcesHeader, rows[0])
	assert.Equal(t, []string{"1", "reef.pdf", "pdf", "", "31", "2", "2024-02-03 04:05:06"}, rows[1])
	assert.Equal(t, "1", rows[2][5], "one slide")
	assert.Equal(t, "5", rows[3][4], "characters are counted in runes")
	assert.Equal(t, "", rows[3][5], "plain text has no units")
	assert.Equal(t, "image/png", rows[4][3])
	assert.Equal(t, "0", rows[4][4])

	nbRows, err := ReadSheet(buf.Bytes(), NotebookSheet)
	require.NoError(t, err)
	assert.Equal(t, []string{"Title", "Marine Biology"}, nbRows[0])
	assert.Equal(t, []string{"Created", "2024-01-01 08:00:00"}, nbRows[1])
	assert.Equal(t, []string{"Sources", "4"}, nbRows[3])
	assert.Equal(t, []string{"Messages", "4"}, nbRows[4])
	assert.Equal(t, []string{"Artifacts", "1"}, nbRows[5])
}

func TestWrite_emptyNotebook(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, Inventory{Notebook: &models.Notebook{Title: "Empty"}}))
	rows, err := ReadSheet(buf.Bytes(), SourcesSheet)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestBuild_requiresNotebook(t *testing.T) {
	_, err := Build(Inventory{})
	assert.Error(t, err)
}

func TestReadSheet_notAWorkbook(t *testing.T) {
	_, err := ReadSheet([]byte("plain text"), SourcesSheet)
	assert.Error(t, err)
}
