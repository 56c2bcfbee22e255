package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/shiryo/internal/chat"
	"github.com/hyperjump/shiryo/internal/config"
	"github.com/hyperjump/shiryo/internal/export"
	"github.com/hyperjump/shiryo/internal/extract"
	"github.com/hyperjump/shiryo/internal/gemini"
	"github.com/hyperjump/shiryo/internal/keyword"
	"github.com/hyperjump/shiryo/internal/models"
	"github.com/hyperjump/shiryo/internal/notebook"
	"github.com/hyperjump/shiryo/internal/storage"
	"github.com/hyperjump/shiryo/internal/testutil"
	"github.com/hyperjump/shiryo/internal/viewer"
)

type fakeGenerator struct {
	reply string
	err   error
}

func (f *fakeGenerator) GenerateContent(_ context.Context, _ []gemini.Content) (string, error) {
	return f.reply, f.err
}

type testServer struct {
	*Server
	handler http.Handler
	svc     *notebook.Service
}

func newTestServer(t *testing.T, opts ...Option) *testServer {
	t.Helper()
	dir := t.TempDir()
	store, err := storage.NewSQLiteStorage(filepath.Join(dir, "db.sqlite"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = store.Close() })
	kwIdx, err := keyword.NewBleveIndex(filepath.Join(dir, "bleve"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = kwIdx.Close() })

	svc := notebook.NewService(store, kwIdx, extract.NewExtractor())
	reg := viewer.NewRegistry(time.Minute)
	t.Cleanup(reg.CloseAll)
	cfg := config.Default()
	cfg.Storage.DatabasePath = filepath.Join(dir, "db.sqlite")
	cfg.Storage.BleveIndexPath = filepath.Join(dir, "bleve")

	srv := NewServer(svc, reg, cfg, zap.NewNop(), opts...)
	return &testServer{Server: srv, handler: srv.Router(), svc: svc}
}

func (ts *testServer) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	r := httptest.NewRequest(method, path, &buf)
	r.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	ts.handler.ServeHTTP(w, r)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.NewDecoder(w.Body).Decode(v); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
}

func (ts *testServer) createNotebook(t *testing.T, title string) *models.Notebook {
	t.Helper()
	w := ts.do(t, http.MethodPost, "/api/v1/notebooks", map[string]string{"title": title})
	if w.Code != http.StatusCreated {
		t.Fatalf("create notebook: %d %s", w.Code, w.Body.String())
	}
	var nb models.Notebook
	decode(t, w, &nb)
	return &nb
}

type upload struct {
	name, contentType string
	data              []byte
}

func (ts *testServer) upload(t *testing.T, notebookID string, files ...upload) *httptest.ResponseRecorder {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for _, f := range files {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, f.name))
		if f.contentType != "" {
			h.Set("Content-Type", f.contentType)
		}
		part, err := mw.CreatePart(h)
		if err != nil {
			t.Fatal(err)
		}
		_, _ = part.Write(f.data)
	}
	_ = mw.Close()
	r := httptest.NewRequest(http.MethodPost, "/api/v1/notebooks/"+notebookID+"/sources", &body)
	r.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	ts.handler.ServeHTTP(w, r)
	return w
}

func TestHandleHealth(t *testing.T) {
	ts := newTestServer(t)
	for _, path := range []string{"/health", "/api/v1/health"} {
		w := ts.do(t, http.MethodGet, path, nil)
		if w.Code != http.StatusOK {
			t.Errorf("%s: status %d", path, w.Code)
		}
	}
}

func TestNotebookLifecycle(t *testing.T) {
	ts := newTestServer(t)
	nb := ts.createNotebook(t, "Biology")
	ts.createNotebook(t, "History")

	w := ts.do(t, http.MethodGet, "/api/v1/notebooks?q=bio", nil)
	var list struct {
		Notebooks []*models.Notebook `json:"notebooks"`
	}
	decode(t, w, &list)
	if len(list.Notebooks) != 1 || list.Notebooks[0].ID != nb.ID {
		t.Fatalf("filtered list = %+v", list.Notebooks)
	}

	w = ts.do(t, http.MethodPatch, "/api/v1/notebooks/"+nb.ID, map[string]string{"title": "Cell Biology"})
	if w.Code != http.StatusOK {
		t.Fatalf("rename: %d %s", w.Code, w.Body.String())
	}
	var renamed models.Notebook
	decode(t, w, &renamed)
	if renamed.Title != "Cell Biology" {
		t.Errorf("title = %s", renamed.Title)
	}

	if w := ts.do(t, http.MethodDelete, "/api/v1/notebooks/"+nb.ID, nil); w.Code != http.StatusOK {
		t.Fatalf("delete: %d", w.Code)
	}
	if w := ts.do(t, http.MethodGet, "/api/v1/notebooks/"+nb.ID, nil); w.Code != http.StatusNotFound {
		t.Errorf("get deleted: %d", w.Code)
	}
}

func TestCreateNotebook_validation(t *testing.T) {
	ts := newTestServer(t)
	if w := ts.do(t, http.MethodPost, "/api/v1/notebooks", map[string]string{"title": ""}); w.Code != http.StatusBadRequest {
		t.Errorf("empty title: %d", w.Code)
	}
	if w := ts.do(t, http.MethodPost, "/api/v1/notebooks", map[string]string{"title": "   "}); w.Code != http.StatusBadRequest {
		t.Errorf("blank title: %d", w.Code)
	}
	r := httptest.NewRequest(http.MethodPost, "/api/v1/notebooks", strings.NewReader("{not json"))
	w := httptest.NewRecorder()
	ts.handler.ServeHTTP(w, r)
	if w.Code != http.StatusBadRequest {
		t.Errorf("bad json: %d", w.Code)
	}
}

func TestUploadSources_partialFailure(t *testing.T) {
	ts := newTestServer(t)
	nb := ts.createNotebook(t, "Uploads")
	w := ts.upload(t, nb.ID,
		upload{"notes.md", "", []byte("# Heading\nphotosynthesis basics")},
		upload{"broken.pdf", "application/pdf", []byte("%PDF-1.7 truncated")},
		upload{"slides.pdf", "application/pdf", testutil.PDF([]string{"chlorophyll absorbs light"})},
		upload{"logo.png", "image/png", []byte("\x89PNG\r\n\x1a\nrest")},
	)
	if w.Code != http.StatusOK {
		t.Fatalf("upload: %d %s", w.Code, w.Body.String())
	}
	var report models.IngestReport
	decode(t, w, &report)
	if len(report.Added) != 3 || len(report.Failures) != 1 {
		t.Fatalf("report = %+v", report)
	}
	if report.Failures[0].Filename != "broken.pdf" || report.Failures[0].Reason != "PdfParseError" {
		t.Errorf("failure = %+v", report.Failures[0])
	}

	w = ts.do(t, http.MethodGet, "/api/v1/notebooks/"+nb.ID+"/sources", nil)
	var list struct {
		Sources []models.SourceSummary `json:"sources"`
	}
	decode(t, w, &list)
	if len(list.Sources) != 3 || list.Sources[0].Kind != models.KindText || list.Sources[2].Kind != models.KindImage {
		t.Fatalf("sources = %+v", list.Sources)
	}
	pdfID, imgID, textID := list.Sources[1].ID, list.Sources[2].ID, list.Sources[0].ID

	w = ts.do(t, http.MethodGet, "/api/v1/notebooks/"+nb.ID+"/sources/"+pdfID+"/raw", nil)
	if w.Code != http.StatusOK || w.Header().Get("Content-Type") != "application/pdf" || !bytes.HasPrefix(w.Body.Bytes(), []byte("%PDF")) {
		t.Errorf("raw pdf: %d %s", w.Code, w.Header().Get("Content-Type"))
	}
	if w := ts.do(t, http.MethodGet, "/api/v1/notebooks/"+nb.ID+"/sources/"+textID+"/raw", nil); w.Code != http.StatusNotFound {
		t.Errorf("raw text: %d", w.Code)
	}

	w = ts.do(t, http.MethodGet, "/api/v1/notebooks/"+nb.ID+"/sources/"+imgID+"/data-uri", nil)
	var uri struct {
		DataURI string `json:"data_uri"`
	}
	decode(t, w, &uri)
	mediaType, data, err := extract.ParseDataURI(uri.DataURI)
	if err != nil || mediaType != "image/png" || !bytes.HasPrefix(data, []byte("\x89PNG")) {
		t.Errorf("data uri round trip: %s %v", mediaType, err)
	}
	if w := ts.do(t, http.MethodGet, "/api/v1/notebooks/"+nb.ID+"/sources/"+textID+"/data-uri", nil); w.Code != http.StatusBadRequest {
		t.Errorf("data uri of text: %d", w.Code)
	}

	w = ts.do(t, http.MethodGet, "/api/v1/notebooks/"+nb.ID+"/search?q=chlorophyll", nil)
	var resp models.KeywordSearchResponse
	decode(t, w, &resp)
	if resp.Total != 1 || resp.Hits[0].SourceID != pdfID || resp.Hits[0].Unit != "Page 1" {
		t.Errorf("search = %+v", resp)
	}

	if w := ts.do(t, http.MethodDelete, "/api/v1/notebooks/"+nb.ID+"/sources/"+pdfID, nil); w.Code != http.StatusOK {
		t.Fatalf("delete source: %d", w.Code)
	}
	if w := ts.do(t, http.MethodGet, "/api/v1/notebooks/"+nb.ID+"/sources/"+pdfID, nil); w.Code != http.StatusNotFound {
		t.Errorf("deleted source: %d", w.Code)
	}
}

func TestUploadSources_errors(t *testing.T) {
	ts := newTestServer(t)
	if w := ts.upload(t, "missing", upload{"a.txt", "text/plain", []byte("a")}); w.Code != http.StatusNotFound {
		t.Errorf("missing notebook: %d", w.Code)
	}
	nb := ts.createNotebook(t, "Empty")
	if w := ts.upload(t, nb.ID); w.Code != http.StatusBadRequest {
		t.Errorf("no files: %d", w.Code)
	}
}

func TestSearch_requiresQuery(t *testing.T) {
	ts := newTestServer(t)
	nb := ts.createNotebook(t, "Search")
	if w := ts.do(t, http.MethodGet, "/api/v1/notebooks/"+nb.ID+"/search", nil); w.Code != http.StatusBadRequest {
		t.Errorf("no q: %d", w.Code)
	}
	if w := ts.do(t, http.MethodGet, "/api/v1/notebooks/"+nb.ID+"/search?q=x&limit=abc", nil); w.Code != http.StatusBadRequest {
		t.Errorf("bad limit: %d", w.Code)
	}
}

func TestExport(t *testing.T) {
	ts := newTestServer(t)
	nb := ts.createNotebook(t, "Field Notes")
	ts.upload(t, nb.ID, upload{"a.txt", "text/plain", []byte("alpha")})

	w := ts.do(t, http.MethodGet, "/api/v1/notebooks/"+nb.ID+"/export.xlsx", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("export: %d %s", w.Code, w.Body.String())
	}
	if got := w.Header().Get("Content-Disposition"); !strings.Contains(got, "Field-Notes.xlsx") {
		t.Errorf("Content-Disposition = %s", got)
	}
	rows, err := export.ReadSheet(w.Body.Bytes(), export.SourcesSheet)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 2 || rows[1][1] != "a.txt" {
		t.Errorf("rows = %v", rows)
	}
}

func TestChat_withAndWithoutAssistant(t *testing.T) {
	ts := newTestServer(t)
	nb := ts.createNotebook(t, "Chat")
	path := "/api/v1/notebooks/" + nb.ID + "/chat"

	if w := ts.do(t, http.MethodPost, path, map[string]string{"message": "hi"}); w.Code != http.StatusServiceUnavailable {
		t.Errorf("without assistant: %d", w.Code)
	}

	ts.svc.SetAssistant(chat.NewAssistant(&fakeGenerator{reply: "Hello!"}))
	w := ts.do(t, http.MethodPost, path, map[string]string{"message": "hi"})
	if w.Code != http.StatusOK {
		t.Fatalf("chat: %d %s", w.Code, w.Body.String())
	}
	var reply models.Message
	decode(t, w, &reply)
	if reply.Content != "Hello!" || reply.Role != models.RoleModel {
		t.Errorf("reply = %+v", reply)
	}

	if w := ts.do(t, http.MethodPost, path, map[string]string{"message": ""}); w.Code != http.StatusBadRequest {
		t.Errorf("empty message: %d", w.Code)
	}
	bad := map[string]interface{}{"message": "look", "attachments": []models.InlineImage{{MediaType: "text/plain", Data: "eA=="}}}
	if w := ts.do(t, http.MethodPost, path, bad); w.Code != http.StatusBadRequest {
		t.Errorf("non-image attachment: %d", w.Code)
	}

	w = ts.do(t, http.MethodGet, "/api/v1/notebooks/"+nb.ID+"/messages", nil)
	var msgs struct {
		Messages []models.Message `json:"messages"`
	}
	decode(t, w, &msgs)
	if len(msgs.Messages) != 2 {
		t.Errorf("messages = %d", len(msgs.Messages))
	}
	if w := ts.do(t, http.MethodDelete, "/api/v1/notebooks/"+nb.ID+"/messages", nil); w.Code != http.StatusOK {
		t.Errorf("clear: %d", w.Code)
	}
}

func TestChat_modelErrorIsBadGateway(t *testing.T) {
	ts := newTestServer(t)
	ts.svc.SetAssistant(chat.NewAssistant(&fakeGenerator{err: &gemini.APIError{StatusCode: 429, Code: 429, Message: "quota", Status: "RESOURCE_EXHAUSTED"}}))
	nb := ts.createNotebook(t, "Chat")
	if w := ts.do(t, http.MethodPost, "/api/v1/notebooks/"+nb.ID+"/chat", map[string]string{"message": "hi"}); w.Code != http.StatusBadGateway {
		t.Errorf("model error: %d", w.Code)
	}
}

func TestStudioAndSuggestions(t *testing.T) {
	ts := newTestServer(t)
	nb := ts.createNotebook(t, "Studio")

	w := ts.do(t, http.MethodGet, "/api/v1/notebooks/"+nb.ID+"/suggestions", nil)
	var sugg struct {
		Questions []string `json:"questions"`
	}
	decode(t, w, &sugg)
	if len(sugg.Questions) != 3 {
		t.Errorf("default suggestions = %v", sugg.Questions)
	}

	ts.svc.SetAssistant(chat.NewAssistant(&fakeGenerator{reply: "# FAQ"}))
	if w := ts.do(t, http.MethodPost, "/api/v1/notebooks/"+nb.ID+"/studio/poem", nil); w.Code != http.StatusBadRequest {
		t.Errorf("unknown kind: %d", w.Code)
	}
	if w := ts.do(t, http.MethodPost, "/api/v1/notebooks/"+nb.ID+"/studio/faq", nil); w.Code != http.StatusUnprocessableEntity {
		t.Errorf("no sources: %d", w.Code)
	}
	ts.upload(t, nb.ID, upload{"a.txt", "text/plain", []byte("content")})
	w = ts.do(t, http.MethodPost, "/api/v1/notebooks/"+nb.ID+"/studio/faq", nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("studio: %d %s", w.Code, w.Body.String())
	}
	w = ts.do(t, http.MethodGet, "/api/v1/notebooks/"+nb.ID+"/artifacts", nil)
	var arts struct {
		Artifacts []models.Artifact `json:"artifacts"`
	}
	decode(t, w, &arts)
	if len(arts.Artifacts) != 1 || arts.Artifacts[0].Kind != "faq" {
		t.Errorf("artifacts = %+v", arts.Artifacts)
	}
}

func TestViewerFlow(t *testing.T) {
	ts := newTestServer(t)
	nb := ts.createNotebook(t, "Viewer")
	pdf := testutil.PDF([]string{"the cat sat"}, []string{"another cat"}, []string{"no match"})
	ts.upload(t, nb.ID, upload{"doc.pdf", "application/pdf", pdf}, upload{"t.txt", "text/plain", []byte("x")})
	sources, _ := ts.svc.Sources(context.Background(), nb.ID)

	if w := ts.do(t, http.MethodPost, "/api/v1/viewers", map[string]string{"notebook_id": nb.ID, "source_id": sources[1].ID}); w.Code != http.StatusBadRequest {
		t.Errorf("open text source: %d", w.Code)
	}

	w := ts.do(t, http.MethodPost, "/api/v1/viewers", map[string]string{"notebook_id": nb.ID, "source_id": sources[0].ID})
	if w.Code != http.StatusCreated {
		t.Fatalf("open: %d %s", w.Code, w.Body.String())
	}
	var opened viewerResponse
	decode(t, w, &opened)
	if opened.State.NumPages != 3 || opened.State.Page != 1 {
		t.Fatalf("state = %+v", opened.State)
	}
	base := "/api/v1/viewers/" + opened.ID

	w = ts.do(t, http.MethodPost, base+"/events", map[string]string{"type": "zoom_in"})
	var ev viewerResponse
	decode(t, w, &ev)
	if ev.State.Scale != 1.25 {
		t.Errorf("scale = %v", ev.State.Scale)
	}
	if w := ts.do(t, http.MethodPost, base+"/events", map[string]string{"type": "fly"}); w.Code != http.StatusBadRequest {
		t.Errorf("unknown event: %d", w.Code)
	}

	w = ts.do(t, http.MethodPost, base+"/search", map[string]string{"query": "CAT"})
	var searched viewerResponse
	decode(t, w, &searched)
	if len(searched.State.Hits) != 2 || searched.State.Current != 0 || searched.State.Page != 1 {
		t.Errorf("search state = %+v", searched.State)
	}
	w = ts.do(t, http.MethodPost, base+"/events", map[string]string{"type": "next_hit"})
	decode(t, w, &ev)
	if ev.State.Page != 2 || ev.State.Current != 1 {
		t.Errorf("after next_hit = %+v", ev.State)
	}

	w = ts.do(t, http.MethodGet, base+"/page", nil)
	var page viewer.RenderedPage
	decode(t, w, &page)
	if len(page.Overlay) == 0 || len(page.Highlights) != 1 || !page.Highlights[0].Active {
		t.Errorf("page = %+v", page)
	}

	w = ts.do(t, http.MethodGet, base+"/thumbnails", nil)
	var thumbs struct {
		Thumbnails []struct {
			Page int `json:"page"`
		} `json:"thumbnails"`
	}
	decode(t, w, &thumbs)
	if len(thumbs.Thumbnails) != 3 {
		t.Errorf("thumbnails = %d", len(thumbs.Thumbnails))
	}

	if w := ts.do(t, http.MethodDelete, base, nil); w.Code != http.StatusOK {
		t.Errorf("close: %d", w.Code)
	}
	if w := ts.do(t, http.MethodGet, base, nil); w.Code != http.StatusNotFound {
		t.Errorf("closed session: %d", w.Code)
	}
}

func TestSetAPIKey(t *testing.T) {
	t.Run("disabled", func(t *testing.T) {
		ts := newTestServer(t)
		if w := ts.do(t, http.MethodPut, "/api/v1/settings/api-key", map[string]string{"api_key": "abcdefgh12"}); w.Code != http.StatusNotImplemented {
			t.Errorf("status %d", w.Code)
		}
	})
	t.Run("rebuilds assistant", func(t *testing.T) {
		var gotKey string
		factory := func(key string) (*chat.Assistant, error) {
			gotKey = key
			return chat.NewAssistant(&fakeGenerator{reply: "ok"}), nil
		}
		ts := newTestServer(t, WithAssistantFactory(factory))
		if ts.svc.HasAssistant() {
			t.Fatal("no assistant expected before the key is set")
		}
		if w := ts.do(t, http.MethodPut, "/api/v1/settings/api-key", map[string]string{"api_key": "short"}); w.Code != http.StatusBadRequest {
			t.Errorf("short key: %d", w.Code)
		}
		if w := ts.do(t, http.MethodPut, "/api/v1/settings/api-key", map[string]string{"api_key": "abcdefgh12"}); w.Code != http.StatusOK {
			t.Fatalf("set key: %d", w.Code)
		}
		if gotKey != "abcdefgh12" || !ts.svc.HasAssistant() {
			t.Errorf("assistant not rebuilt (key %q)", gotKey)
		}
	})
	t.Run("factory error", func(t *testing.T) {
		factory := func(string) (*chat.Assistant, error) { return nil, gemini.ErrNoAPIKey }
		ts := newTestServer(t, WithAssistantFactory(factory))
		if w := ts.do(t, http.MethodPut, "/api/v1/settings/api-key", map[string]string{"api_key": "abcdefgh12"}); w.Code != http.StatusServiceUnavailable {
			t.Errorf("status %d", w.Code)
		}
	})
}

type staticInbox []string

func (s staticInbox) Directories() []string { return s }

func TestHandleStatus(t *testing.T) {
	ts := newTestServer(t, WithInbox(staticInbox{"/tmp/inbox"}))
	nb := ts.createNotebook(t, "Status")
	ts.upload(t, nb.ID, upload{"a.txt", "text/plain", []byte("alpha")})

	w := ts.do(t, http.MethodGet, "/api/v1/status", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status: %d", w.Code)
	}
	var out struct {
		Notebooks       int64 `json:"notebooks"`
		Sources         int64 `json:"sources"`
		IndexedSegments int64 `json:"indexed_segments"`
		Assistant       bool  `json:"assistant"`
		Config          struct {
			InboxDirectories []string `json:"inbox_directories"`
		} `json:"config"`
	}
	decode(t, w, &out)
	if out.Notebooks != 1 || out.Sources != 1 || out.IndexedSegments != 1 || out.Assistant {
		t.Errorf("status = %+v", out)
	}
	if len(out.Config.InboxDirectories) != 1 {
		t.Errorf("inbox = %v", out.Config.InboxDirectories)
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("wrap: %w", storage.ErrNotFound), http.StatusNotFound},
		{viewer.ErrSessionNotFound, http.StatusNotFound},
		{notebook.ErrInvalidTitle, http.StatusBadRequest},
		{fmt.Errorf("x: %w", extract.ErrUnsupportedFormat), http.StatusUnsupportedMediaType},
		{&extract.Error{Filename: "a.pdf", Kind: extract.ErrPdfParse}, http.StatusUnprocessableEntity},
		{&extract.Error{Filename: "a.bin", Kind: extract.ErrUnsupportedFormat}, http.StatusUnsupportedMediaType},
		{&gemini.APIError{StatusCode: 500}, http.StatusBadGateway},
		{notebook.ErrNoAssistant, http.StatusServiceUnavailable},
		{notebook.ErrFileTooLarge, http.StatusRequestEntityTooLarge},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := statusFor(tt.err); got != tt.want {
			t.Errorf("statusFor(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

func TestExportFilename(t *testing.T) {
	if got := exportFilename("Q3 report / draft"); got != "Q3-report--draft.xlsx" {
		t.Errorf("got %s", got)
	}
	if got := exportFilename("日本"); got != "notebook.xlsx" {
		t.Errorf("got %s", got)
	}
}
