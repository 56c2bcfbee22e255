package extract

import (
	"errors"
	"fmt"
)

// Failure categories. Every extraction error wraps exactly one of these.
var (
	ErrUnsupportedFormat = errors.New("unsupported format")
	ErrDecode            = errors.New("decode error")
	ErrRead              = errors.New("read error")
	ErrPdfParse          = errors.New("pdf parse error")
	ErrArchive           = errors.New("archive error")
)

// Error is a per-file extraction failure.
type Error struct {
	Filename string
	// Kind is one of the Err* categories above.
	Kind error
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %v", e.Filename, e.Kind)
	}
	return fmt.Sprintf("%s: %v: %v", e.Filename, e.Kind, e.Err)
}

// Unwrap exposes both the category and the cause to errors.Is and errors.As.
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func newError(filename string, kind, cause error) *Error {
	return &Error{Filename: filename, Kind: kind, Err: cause}
}

// Reason returns the category name of err for reports, or "Error" when err is not an extraction failure.
func Reason(err error) string {
	switch {
	case errors.Is(err, ErrUnsupportedFormat):
		return "UnsupportedFormat"
	case errors.Is(err, ErrDecode):
		return "DecodeError"
	case errors.Is(err, ErrRead):
		return "ReadError"
	case errors.Is(err, ErrPdfParse):
		return "PdfParseError"
	case errors.Is(err, ErrArchive):
		return "ArchiveError"
	default:
		return "Error"
	}
}
