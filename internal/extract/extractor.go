// Package extract turns uploaded files into normalized sources: it sniffs the
// format, extracts text (or an encoded image payload) and assembles the record.
package extract

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hyperjump/shiryo/internal/fileid"
	"github.com/hyperjump/shiryo/internal/models"
)

// File is one uploaded or imported file. Data holds the bytes when they are
// already in memory; otherwise Open is used to read them. Local imports have no
// declared media type, so one is detected for files with an Origin.
type File struct {
	Name      string
	MediaType string
	Data      []byte
	Open      func() (io.ReadCloser, error)
	// Origin is the local path for imported files.
	Origin string
}

// LocalFile describes a file on disk. Its media type is detected on read.
func LocalFile(path string) File {
	origin := fileid.Origin(path)
	return File{
		Name:   filepath.Base(origin),
		Origin: origin,
		Open:   func() (io.ReadCloser, error) { return os.Open(origin) },
	}
}

// Result is an extractor's output before assembly.
type Result struct {
	Kind       models.Kind
	Content    string
	RawPayload string
	MediaType  string
}

// Extractor converts files into sources.
type Extractor struct {
	logger *zap.Logger
	now    func() time.Time
	newID  func() string
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithLogger sets the logger used for skipped pages and slides.
func WithLogger(l *zap.Logger) Option {
	return func(e *Extractor) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithClock sets the time source for creation timestamps.
func WithClock(now func() time.Time) Option {
	return func(e *Extractor) { e.now = now }
}

// WithIDGenerator sets the source ID generator.
func WithIDGenerator(f func() string) Option {
	return func(e *Extractor) { e.newID = f }
}

// NewExtractor returns a new Extractor.
func NewExtractor(opts ...Option) *Extractor {
	e := &Extractor{
		logger: zap.NewNop(),
		now:    time.Now,
		newID:  func() string { return uuid.New().String() },
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Extract reads, sniffs and extracts f, returning the assembled source.
func (e *Extractor) Extract(ctx context.Context, f File) (*models.Source, error) {
	if err := ctx.Err(); err != nil {
		return nil, newError(f.Name, ErrRead, err)
	}
	content, err := readFile(f)
	if err != nil {
		return nil, err
	}
	mediaType := f.MediaType
	if mediaType == "" && f.Origin != "" {
		mediaType = DetectMediaType(f.Name, content)
	}
	kind, err := Sniff(mediaType, f.Name)
	if err != nil {
		return nil, err
	}
	res, err := e.ExtractBytes(kind, f.Name, baseMediaType(mediaType), content)
	if err != nil {
		return nil, err
	}
	src := Assemble(e.newID(), f.Name, res, e.now())
	src.Checksum = fileid.Checksum(content)
	src.Origin = f.Origin
	return src, nil
}

// ExtractPath extracts a local file, detecting its media type from name and content.
func (e *Extractor) ExtractPath(ctx context.Context, path string) (*models.Source, error) {
	return e.Extract(ctx, LocalFile(path))
}

// ExtractBytes runs the extractor for kind over content. There is one case per
// Kind; adding a Kind without a case here is a bug caught by the default branch.
func (e *Extractor) ExtractBytes(kind models.Kind, filename, mediaType string, content []byte) (*Result, error) {
	switch kind {
	case models.KindText:
		text, err := extractText(content)
		if err != nil {
			return nil, newError(filename, ErrDecode, err)
		}
		return &Result{Kind: kind, Content: text}, nil
	case models.KindImage:
		return extractImage(content, mediaType), nil
	case models.KindPDF:
		return e.extractPDF(filename, content)
	case models.KindDOCX:
		text, err := extractDOCX(content)
		if err != nil {
			return nil, newError(filename, ErrArchive, err)
		}
		return &Result{Kind: kind, Content: text}, nil
	case models.KindPPTX:
		text, err := e.extractPPTX(filename, content)
		if err != nil {
			return nil, newError(filename, ErrArchive, err)
		}
		return &Result{Kind: kind, Content: text}, nil
	default:
		return nil, newError(filename, ErrUnsupportedFormat, fmt.Errorf("no extractor for kind %q", kind))
	}
}

func readFile(f File) ([]byte, error) {
	if f.Data != nil {
		return f.Data, nil
	}
	if f.Open == nil {
		return nil, newError(f.Name, ErrRead, fmt.Errorf("no content"))
	}
	rc, err := f.Open()
	if err != nil {
		return nil, newError(f.Name, ErrRead, err)
	}
	defer rc.Close()
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(rc); err != nil {
		return nil, newError(f.Name, ErrRead, err)
	}
	return buf.Bytes(), nil
}
