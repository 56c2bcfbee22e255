package extract

import (
	"context"
	"encoding/base64"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hyperjump/shiryo/internal/models"
	"github.com/hyperjump/shiryo/internal/testutil"
)

var fixedTime = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestExtractor() *Extractor {
	var n atomic.Int64
	return NewExtractor(
		WithClock(func() time.Time { return fixedTime }),
		WithIDGenerator(func() string {
			return "src-" + strconv.FormatInt(n.Add(1), 10)
		}),
	)
}

func TestSniff(t *testing.T) {
	tests := []struct {
		mediaType string
		filename  string
		want      models.Kind
	}{
		{"application/pdf", "paper.pdf", models.KindPDF},
		{"application/pdf", "no-extension", models.KindPDF},
		{MediaTypeDOCX, "report.docx", models.KindDOCX},
		{MediaTypePPTX, "deck.pptx", models.KindPPTX},
		{"text/plain", "notes.txt", models.KindText},
		{"text/plain; charset=utf-8", "notes", models.KindText},
		{"text/markdown", "README", models.KindText},
		{"", "README.MD", models.KindText},
		{"application/octet-stream", "notes.md", models.KindText},
		{"image/png", "photo.png", models.KindImage},
		{"IMAGE/JPEG", "photo.jpg", models.KindImage},
		{"", "legacy.docx", models.KindDOCX},
		{"application/zip", "deck.PPTX", models.KindPPTX},
		// Declared type wins over the name.
		{"application/pdf", "misnamed.docx", models.KindPDF},
	}
	for _, tt := range tests {
		got, err := Sniff(tt.mediaType, tt.filename)
		if err != nil {
			t.Errorf("Sniff(%q, %q): %v", tt.mediaType, tt.filename, err)
			continue
		}
		if got != tt.want {
			t.Errorf("Sniff(%q, %q) = %q, want %q", tt.mediaType, tt.filename, got, tt.want)
		}
	}
}

func TestSniff_unsupported(t *testing.T) {
	for _, tt := range []struct{ mediaType, filename string }{
		{"application/zip", "archive.zip"},
		{"", "data.csv"},
		{"application/msword", "old.doc"},
	} {
		_, err := Sniff(tt.mediaType, tt.filename)
		if !errors.Is(err, ErrUnsupportedFormat) {
			t.Errorf("Sniff(%q, %q) err = %v, want ErrUnsupportedFormat", tt.mediaType, tt.filename, err)
		}
		if Reason(err) != "UnsupportedFormat" {
			t.Errorf("Reason = %q", Reason(err))
		}
	}
}

func TestExtract_plain(t *testing.T) {
	e := newTestExtractor()
	src, err := e.Extract(context.Background(), File{Name: "notes.md", MediaType: "text/markdown", Data: []byte("# Title\n\nBody")})
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if src.Kind() != models.KindText {
		t.Errorf("kind = %q", src.Kind())
	}
	if src.Content != "# Title\n\nBody" {
		t.Errorf("content = %q", src.Content)
	}
	if src.Title != "notes.md" || src.ID != "src-1" || !src.CreatedAt().Equal(fixedTime) {
		t.Errorf("unexpected record %+v", src)
	}
	if src.RawPayload != "" || src.MediaType != "" {
		t.Errorf("text source carries payload %q / media type %q", src.RawPayload, src.MediaType)
	}
	if !strings.HasPrefix(src.Checksum, "sha256:") {
		t.Errorf("checksum = %q", src.Checksum)
	}
}

func TestExtract_plainEmpty(t *testing.T) {
	src, err := newTestExtractor().Extract(context.Background(), File{Name: "empty.txt", MediaType: "text/plain", Data: []byte{}})
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if src.Content != EmptyFilePlaceholder {
		t.Errorf("content = %q", src.Content)
	}
}

func TestExtract_plainInvalidUTF8(t *testing.T) {
	_, err := newTestExtractor().Extract(context.Background(), File{Name: "bad.txt", MediaType: "text/plain", Data: []byte("hello\x80world")})
	if !errors.Is(err, ErrDecode) {
		t.Fatalf("err = %v, want ErrDecode", err)
	}
	var xerr *Error
	if !errors.As(err, &xerr) || xerr.Filename != "bad.txt" {
		t.Errorf("err = %#v", err)
	}
}

func TestExtract_image(t *testing.T) {
	raw := []byte{0x89, 'P', 'N', 'G', 0x0d, 0x0a, 0x1a, 0x0a, 1, 2, 3}
	src, err := newTestExtractor().Extract(context.Background(), File{Name: "shot.png", MediaType: "image/png", Data: raw})
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if src.Kind() != models.KindImage || src.MediaType != "image/png" {
		t.Errorf("kind %q media type %q", src.Kind(), src.MediaType)
	}
	if src.Content != src.RawPayload {
		t.Errorf("content and payload differ")
	}
	uri, err := src.DataURI()
	if err != nil {
		t.Fatalf("DataURI: %v", err)
	}
	if uri != DataURI("image/png", src.Content) {
		t.Errorf("uri = %q", uri)
	}
	mt, data, err := ParseDataURI(uri)
	if err != nil {
		t.Fatalf("ParseDataURI: %v", err)
	}
	if mt != "image/png" || string(data) != string(raw) {
		t.Errorf("round trip = %q %v", mt, data)
	}
}

func TestParseDataURI_invalid(t *testing.T) {
	for _, uri := range []string{"", "http://x", "data:image/png,abc", "data:image/png;base64", "data:image/png;base64,!!!"} {
		if _, _, err := ParseDataURI(uri); err == nil {
			t.Errorf("ParseDataURI(%q) succeeded", uri)
		}
	}
}

func TestExtract_pdf(t *testing.T) {
	data := testutil.PDF([]string{"Hello world", "Second line"}, []string{"Page two"})
	src, err := newTestExtractor().Extract(context.Background(), File{Name: "paper.pdf", MediaType: "application/pdf", Data: data})
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	want := "[Page 1] Hello world Second line\n\n[Page 2] Page two\n\n"
	if src.Content != want {
		t.Errorf("content = %q, want %q", src.Content, want)
	}
	if src.RawPayload != base64.StdEncoding.EncodeToString(data) {
		t.Errorf("raw payload does not encode the original bytes")
	}
	if src.MediaType != "" {
		t.Errorf("media type = %q", src.MediaType)
	}
}

func TestExtract_pdfBlankPageKeepsLabel(t *testing.T) {
	data := testutil.PDF([]string{"first"}, nil, []string{"third"})
	src, err := newTestExtractor().Extract(context.Background(), File{Name: "gaps.pdf", MediaType: "application/pdf", Data: data})
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	want := "[Page 1] first\n\n[Page 2] \n\n[Page 3] third\n\n"
	if src.Content != want {
		t.Errorf("content = %q, want %q", src.Content, want)
	}
}

func TestExtract_pdfCorrupt(t *testing.T) {
	_, err := newTestExtractor().Extract(context.Background(), File{Name: "broken.pdf", MediaType: "application/pdf", Data: []byte("%PDF-1.4 nothing else")})
	if !errors.Is(err, ErrPdfParse) {
		t.Fatalf("err = %v, want ErrPdfParse", err)
	}
	if Reason(err) != "PdfParseError" {
		t.Errorf("Reason = %q", Reason(err))
	}
}

func TestExtract_pptxNumericSlideOrder(t *testing.T) {
	data := testutil.PPTX(
		testutil.Slide{Number: 1, Runs: []string{"Intro"}},
		testutil.Slide{Number: 10, Runs: []string{"Ten"}},
		testutil.Slide{Number: 2, Runs: []string{"Two", "more"}},
		testutil.Slide{Number: 9, Runs: []string{"Nine"}},
	)
	src, err := newTestExtractor().Extract(context.Background(), File{Name: "deck.pptx", MediaType: MediaTypePPTX, Data: data})
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	want := "[Slide 1] Intro\n\n[Slide 2] Two more\n\n[Slide 9] Nine\n\n[Slide 10] Ten\n\n"
	if src.Content != want {
		t.Errorf("content = %q, want %q", src.Content, want)
	}
}

func TestExtract_pptxEntitiesAndEmptySlides(t *testing.T) {
	data := testutil.PPTX(
		testutil.Slide{Number: 1, Runs: []string{"Q&A <live>"}},
		testutil.Slide{Number: 2, Runs: []string{"  "}},
		testutil.Slide{Number: 3},
	)
	src, err := newTestExtractor().Extract(context.Background(), File{Name: "deck.pptx", MediaType: MediaTypePPTX, Data: data})
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if src.Content != "[Slide 1] Q&A <live>\n\n" {
		t.Errorf("content = %q", src.Content)
	}
}

func TestExtract_pptxNoText(t *testing.T) {
	data := testutil.PPTX(testutil.Slide{Number: 1}, testutil.Slide{Number: 2})
	src, err := newTestExtractor().Extract(context.Background(), File{Name: "blank.pptx", MediaType: MediaTypePPTX, Data: data})
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if src.Content != EmptyPresentationPlaceholder {
		t.Errorf("content = %q", src.Content)
	}
}

func TestExtract_pptxSkipsMalformedSlide(t *testing.T) {
	data := testutil.Zip(
		testutil.ZipEntry{Name: "ppt/slides/slide1.xml", Body: testutil.SlideXML("Good")},
		testutil.ZipEntry{Name: "ppt/slides/slide2.xml", Body: "<p:sld><a:t>unclosed"},
	)
	src, err := newTestExtractor().Extract(context.Background(), File{Name: "deck.pptx", MediaType: MediaTypePPTX, Data: data})
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if src.Content != "[Slide 1] Good\n\n" {
		t.Errorf("content = %q", src.Content)
	}
}

func TestExtract_pptxNotZip(t *testing.T) {
	_, err := newTestExtractor().Extract(context.Background(), File{Name: "deck.pptx", MediaType: MediaTypePPTX, Data: []byte("not a zip")})
	if !errors.Is(err, ErrArchive) {
		t.Fatalf("err = %v, want ErrArchive", err)
	}
}

func TestExtract_docx(t *testing.T) {
	data := testutil.DOCX("First paragraph", "Second & last")
	src, err := newTestExtractor().Extract(context.Background(), File{Name: "report.docx", MediaType: MediaTypeDOCX, Data: data})
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if src.Content != "First paragraph\n\nSecond & last" {
		t.Errorf("content = %q", src.Content)
	}
	if strings.Contains(src.Content, "[Page") {
		t.Errorf("docx content has page labels")
	}
}

func TestExtract_docxTabsAndBreaks(t *testing.T) {
	body := `<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>` +
		`<w:p><w:r><w:t>a</w:t><w:tab/><w:t>b</w:t><w:br/><w:t>c</w:t></w:r></w:p></w:body></w:document>`
	data := testutil.Zip(testutil.ZipEntry{Name: "word/document.xml", Body: body})
	got, err := extractDOCX(data)
	if err != nil {
		t.Fatalf("extractDOCX: %v", err)
	}
	if got != "a\tb\nc" {
		t.Errorf("got %q", got)
	}
}

func TestExtract_docxContentTypesOverride(t *testing.T) {
	data := testutil.Zip(
		testutil.ZipEntry{Name: "[Content_Types].xml", Body: `<Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types">` +
			`<Override PartName="/word/document2.xml" ContentType="` + docxMainContentType + `"/></Types>`},
		testutil.ZipEntry{Name: "word/document2.xml", Body: testutil.DocumentXML("Moved body")},
	)
	got, err := extractDOCX(data)
	if err != nil {
		t.Fatalf("extractDOCX: %v", err)
	}
	if got != "Moved body" {
		t.Errorf("got %q", got)
	}
}

func TestExtract_docxEmptyAndMissing(t *testing.T) {
	got, err := extractDOCX(testutil.DOCX())
	if err != nil {
		t.Fatalf("extractDOCX: %v", err)
	}
	if got != EmptyDocumentPlaceholder {
		t.Errorf("got %q", got)
	}

	_, err = newTestExtractor().Extract(context.Background(), File{
		Name: "hollow.docx", MediaType: MediaTypeDOCX,
		Data: testutil.Zip(testutil.ZipEntry{Name: "other.xml", Body: "<x/>"}),
	})
	if !errors.Is(err, ErrArchive) {
		t.Errorf("err = %v, want ErrArchive", err)
	}
}

func TestExtract_readError(t *testing.T) {
	f := File{Name: "gone.txt", MediaType: "text/plain", Open: func() (io.ReadCloser, error) {
		return nil, os.ErrNotExist
	}}
	_, err := newTestExtractor().Extract(context.Background(), f)
	if !errors.Is(err, ErrRead) || !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("err = %v", err)
	}
}

func TestExtractPath_detectsType(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "deck.pptx")
	if err := os.WriteFile(path, testutil.PPTX(testutil.Slide{Number: 1, Runs: []string{"Hi"}}), 0600); err != nil {
		t.Fatal(err)
	}
	src, err := newTestExtractor().ExtractPath(context.Background(), path)
	if err != nil {
		t.Fatalf("ExtractPath: %v", err)
	}
	if src.Kind() != models.KindPPTX || src.Content != "[Slide 1] Hi\n\n" {
		t.Errorf("got %q %q", src.Kind(), src.Content)
	}
	if src.Origin != path {
		t.Errorf("origin = %q, want %q", src.Origin, path)
	}
}

func TestExtractBatch_isolatesFailures(t *testing.T) {
	files := []File{
		{Name: "a.txt", MediaType: "text/plain", Data: []byte("alpha")},
		{Name: "b.pdf", MediaType: "application/pdf", Data: []byte("corrupt")},
		{Name: "c.pptx", MediaType: MediaTypePPTX, Data: testutil.PPTX(testutil.Slide{Number: 1, Runs: []string{"gamma"}})},
	}
	out := newTestExtractor().ExtractBatch(context.Background(), files, 2)
	if len(out) != 3 {
		t.Fatalf("got %d outcomes", len(out))
	}
	if out[0].Err != nil || out[0].Source.Content != "alpha" {
		t.Errorf("a.txt: %+v", out[0])
	}
	if !errors.Is(out[1].Err, ErrPdfParse) || out[1].Source != nil {
		t.Errorf("b.pdf: %+v", out[1])
	}
	if out[2].Err != nil || out[2].Source.Content != "[Slide 1] gamma\n\n" {
		t.Errorf("c.pptx: %+v", out[2])
	}

	rep := Report(out)
	if len(rep.Added) != 2 || rep.Added[0].Title != "a.txt" || rep.Added[1].Title != "c.pptx" {
		t.Errorf("added = %+v", rep.Added)
	}
	if len(rep.Failures) != 1 || rep.Failures[0].Filename != "b.pdf" || rep.Failures[0].Reason != "PdfParseError" {
		t.Errorf("failures = %+v", rep.Failures)
	}
}

func TestExtractBatch_unsupportedDoesNotStopOthers(t *testing.T) {
	files := []File{
		{Name: "x.zip", MediaType: "application/zip", Data: []byte("PK")},
		{Name: "y.txt", MediaType: "text/plain", Data: []byte("ok")},
	}
	out := newTestExtractor().ExtractBatch(context.Background(), files, 0)
	if !errors.Is(out[0].Err, ErrUnsupportedFormat) {
		t.Errorf("x.zip err = %v", out[0].Err)
	}
	if out[1].Err != nil {
		t.Errorf("y.txt err = %v", out[1].Err)
	}
}
