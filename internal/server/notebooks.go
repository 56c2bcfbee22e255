package server

import (
	"bytes"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	validation "github.com/go-ozzo/ozzo-validation/v4"
	"go.uber.org/zap"

	"github.com/hyperjump/shiryo/internal/export"
	"github.com/hyperjump/shiryo/internal/extract"
	"github.com/hyperjump/shiryo/internal/models"
	"github.com/hyperjump/shiryo/internal/notebook"
)

// multipartMemory is how much of an upload is buffered in memory before
// spilling to temporary files.
const multipartMemory = 32 << 20

type notebookRequest struct {
	Title string `json:"title"`
}

func (req *notebookRequest) Validate() error {
	return validation.ValidateStruct(req,
		validation.Field(&req.Title, validation.Required, validation.RuneLength(1, notebook.MaxTitleLength)),
	)
}

func (s *Server) handleListNotebooks(w http.ResponseWriter, r *http.Request) {
	nbs, err := s.notebooks.ListNotebooks(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	if nbs == nil {
		nbs = []*models.Notebook{}
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"notebooks": nbs})
}

func (s *Server) handleCreateNotebook(w http.ResponseWriter, r *http.Request) {
	var req notebookRequest
	if err := decodeJSON(r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}
	nb, err := s.notebooks.CreateNotebook(r.Context(), req.Title)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusCreated, nb)
}

func (s *Server) handleGetNotebook(w http.ResponseWriter, r *http.Request) {
	nb, err := s.notebooks.GetNotebook(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, nb)
}

func (s *Server) handleRenameNotebook(w http.ResponseWriter, r *http.Request) {
	var req notebookRequest
	if err := decodeJSON(r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}
	nb, err := s.notebooks.RenameNotebook(r.Context(), chi.URLParam(r, "id"), req.Title)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, nb)
}

func (s *Server) handleDeleteNotebook(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")
	sources, err := s.notebooks.Sources(ctx, id)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	if err := s.notebooks.DeleteNotebook(ctx, id); err != nil {
		s.respondError(w, r, err)
		return
	}
	for _, src := range sources {
		s.viewers.CloseSource(src.ID)
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// handleUploadSources ingests every "file" part of a multipart upload. One
// unreadable or unsupported file is reported and never fails the request.
func (s *Server) handleUploadSources(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.Server.MaxUploadBytes)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		s.respondError(w, r, badRequest("invalid multipart upload: %v", err))
		return
	}
	defer r.MultipartForm.RemoveAll()

	headers := r.MultipartForm.File["file"]
	if len(headers) == 0 {
		s.respondError(w, r, badRequest("no files: send one or more \"file\" parts"))
		return
	}
	files := make([]extract.File, 0, len(headers))
	var unreadable []models.IngestFailure
	for _, fh := range headers {
		f, err := uploadedFile(fh)
		if err != nil {
			unreadable = append(unreadable, models.IngestFailure{
				Filename: fh.Filename,
				Reason:   extract.Reason(extract.ErrRead),
				Message:  err.Error(),
			})
			continue
		}
		files = append(files, f)
	}
	s.logger.Debug("upload", zap.String("notebook", chi.URLParam(r, "id")), zap.Int("files", len(headers)))

	report, err := s.notebooks.Ingest(r.Context(), chi.URLParam(r, "id"), files)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	report.Failures = append(unreadable, report.Failures...)
	if report.Added == nil {
		report.Added = []*models.SourceSummary{}
	}
	if report.Failures == nil {
		report.Failures = []models.IngestFailure{}
	}
	s.respondJSON(w, http.StatusOK, report)
}

// uploadedFile reads one multipart file. A missing or generic declared type is
// replaced by one detected from the name and content.
func uploadedFile(fh *multipart.FileHeader) (extract.File, error) {
	rc, err := fh.Open()
	if err != nil {
		return extract.File{}, fmt.Errorf("%s: %w: %w", fh.Filename, extract.ErrRead, err)
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return extract.File{}, fmt.Errorf("%s: %w: %w", fh.Filename, extract.ErrRead, err)
	}
	mediaType := fh.Header.Get("Content-Type")
	if mediaType == "" || strings.HasPrefix(mediaType, "application/octet-stream") {
		mediaType = extract.DetectMediaType(fh.Filename, data)
	}
	return extract.File{Name: fh.Filename, MediaType: mediaType, Data: data}, nil
}

func (s *Server) handleListSources(w http.ResponseWriter, r *http.Request) {
	sources, err := s.notebooks.Sources(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	out := make([]*models.SourceSummary, len(sources))
	for i, src := range sources {
		out[i] = src.Summary()
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"sources": out})
}

func (s *Server) handleGetSource(w http.ResponseWriter, r *http.Request) {
	src, err := s.notebooks.Source(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "sourceID"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, src)
}

func (s *Server) handleDeleteSource(w http.ResponseWriter, r *http.Request) {
	sourceID := chi.URLParam(r, "sourceID")
	if err := s.notebooks.DeleteSource(r.Context(), chi.URLParam(r, "id"), sourceID); err != nil {
		s.respondError(w, r, err)
		return
	}
	s.viewers.CloseSource(sourceID)
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// handleSourceRaw returns the original bytes of a PDF or image source.
func (s *Server) handleSourceRaw(w http.ResponseWriter, r *http.Request) {
	src, err := s.notebooks.Source(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "sourceID"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	if !src.Kind().KeepsRawPayload() {
		s.respondError(w, r, &requestError{status: http.StatusNotFound, message: fmt.Sprintf("%s sources keep no original file", src.Kind())})
		return
	}
	data, err := src.RawBytes()
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	contentType := src.MediaType
	if src.Kind() == models.KindPDF {
		contentType = extract.MediaTypePDF
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=%q", src.Title))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (s *Server) handleSourceDataURI(w http.ResponseWriter, r *http.Request) {
	src, err := s.notebooks.Source(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "sourceID"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	uri, err := src.DataURI()
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"data_uri": uri})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	query := models.KeywordQuery{
		NotebookID: chi.URLParam(r, "id"),
		Query:      strings.TrimSpace(q.Get("q")),
		Fuzzy:      q.Get("fuzzy") == "true",
	}
	var err error
	if query.Limit, err = intParam(q.Get("limit")); err != nil {
		s.respondError(w, r, err)
		return
	}
	if query.Offset, err = intParam(q.Get("offset")); err != nil {
		s.respondError(w, r, err)
		return
	}
	if query.Query == "" {
		s.respondError(w, r, badRequest("q is required"))
		return
	}
	s.logger.Debug("search request", zap.String("query", query.Query), zap.Int("limit", query.Limit))
	resp, err := s.notebooks.Search(r.Context(), query)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func intParam(v string) (int, error) {
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, badRequest("invalid number %q", v)
	}
	return n, nil
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	inv, err := export.Collect(r.Context(), s.notebooks, chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	var buf bytes.Buffer
	if err := export.Write(&buf, inv); err != nil {
		s.respondError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", export.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", exportFilename(inv.Notebook.Title)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

// exportFilename turns a notebook title into a safe file name.
func exportFilename(title string) string {
	name := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		case r == ' ':
			return '-'
		default:
			return -1
		}
	}, title)
	if name == "" {
		name = "notebook"
	}
	return name + ".xlsx"
}
