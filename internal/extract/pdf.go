package extract

import (
	"encoding/base64"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/hyperjump/shiryo/internal/models"
	"github.com/hyperjump/shiryo/internal/pdfdoc"
)

// extractPDF emits "[Page n] runs\n\n" for pages 1..N in physical order. A page
// whose text cannot be extracted keeps its label with empty text.
func (e *Extractor) extractPDF(filename string, content []byte) (*Result, error) {
	doc, err := pdfdoc.Open(content)
	if err != nil {
		return nil, newError(filename, ErrPdfParse, err)
	}
	var buf strings.Builder
	for n := 1; n <= doc.NumPages(); n++ {
		text := ""
		page, err := doc.Page(n)
		if err != nil {
			e.logger.Warn("skipping unreadable page", zap.String("file", filename), zap.Int("page", n), zap.Error(err))
		} else {
			text = page.Text()
		}
		fmt.Fprintf(&buf, "[Page %d] %s\n\n", n, text)
	}
	return &Result{
		Kind:       models.KindPDF,
		Content:    buf.String(),
		RawPayload: base64.StdEncoding.EncodeToString(content),
	}, nil
}
