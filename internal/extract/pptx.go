package extract

import (
	"archive/zip"
	"bytes"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

// EmptyPresentationPlaceholder is the content of a presentation with no text runs.
const EmptyPresentationPlaceholder = "No text content found in presentation."

// slidePartRe matches slide parts inside a .pptx zip and captures the slide number.
var slidePartRe = regexp.MustCompile(`^ppt/slides/slide(\d+)\.xml$`)

type slidePart struct {
	number int
	file   *zip.File
}

// slideParts returns the archive's slide parts sorted by slide number, not by name,
// so slide10 follows slide9.
func slideParts(zr *zip.Reader) []slidePart {
	var parts []slidePart
	for _, f := range zr.File {
		m := slidePartRe.FindStringSubmatch(f.Name)
		if m == nil {
			continue
		}
		n, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		parts = append(parts, slidePart{number: n, file: f})
	}
	sort.SliceStable(parts, func(i, j int) bool { return parts[i].number < parts[j].number })
	return parts
}

// extractPPTX emits "[Slide n] runs\n\n" for every slide with text, in slide order.
// A slide that cannot be read or parsed is logged and skipped.
func (e *Extractor) extractPPTX(filename string, content []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", fmt.Errorf("extract PPTX: not a zip: %w", err)
	}
	parts := slideParts(zr)
	var (
		buf    strings.Builder
		failed int
	)
	for _, part := range parts {
		data, err := readZipFile(part.file)
		if err != nil {
			failed++
			e.logger.Warn("skipping unreadable slide", zap.String("file", filename), zap.Int("slide", part.number), zap.Error(err))
			continue
		}
		runs, err := textRuns(data)
		if err != nil {
			failed++
			e.logger.Warn("skipping malformed slide", zap.String("file", filename), zap.Int("slide", part.number), zap.Error(err))
			continue
		}
		runs = nonBlank(runs)
		if len(runs) == 0 {
			continue
		}
		fmt.Fprintf(&buf, "[Slide %d] %s\n\n", part.number, strings.Join(runs, " "))
	}
	if len(parts) > 0 && failed == len(parts) {
		return "", fmt.Errorf("extract PPTX: none of %d slides could be parsed", len(parts))
	}
	if buf.Len() == 0 {
		return EmptyPresentationPlaceholder, nil
	}
	return buf.String(), nil
}

func nonBlank(runs []string) []string {
	out := runs[:0]
	for _, r := range runs {
		if strings.TrimSpace(r) != "" {
			out = append(out, r)
		}
	}
	return out
}

func readZipFile(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", f.Name, err)
	}
	defer rc.Close()
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(rc); err != nil {
		return nil, fmt.Errorf("read %s: %w", f.Name, err)
	}
	return buf.Bytes(), nil
}
