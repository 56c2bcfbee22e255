package pdfdoc

import (
	"fmt"
	"unicode"
)

// SearchHit is an occurrence of a query: page number and rune offset within the
// page's lowercased flattened text.
type SearchHit struct {
	Page   int `json:"page"`
	Offset int `json:"offset"`
}

// PageError records a page skipped during a document-wide operation.
type PageError struct {
	Page int
	Err  error
}

func (e *PageError) Error() string {
	return fmt.Sprintf("page %d: %v", e.Page, e.Err)
}

func (e *PageError) Unwrap() error { return e.Err }

// FindAll returns the rune offsets of every non-overlapping, case-insensitive
// occurrence of query in text. The scan resumes after each match.
func FindAll(text, query string) []int {
	q := lowerRunes(query)
	if len(q) == 0 {
		return nil
	}
	t := lowerRunes(text)
	var offsets []int
	for i := 0; i+len(q) <= len(t); {
		if hasPrefixAt(t, q, i) {
			offsets = append(offsets, i)
			i += len(q)
			continue
		}
		i++
	}
	return offsets
}

// Search scans every page in order. Pages whose text cannot be extracted are
// skipped and returned as *PageError values; the scan continues.
func (d *Document) Search(query string) ([]SearchHit, []error) {
	if len(lowerRunes(query)) == 0 {
		return nil, nil
	}
	var (
		hits []SearchHit
		errs []error
	)
	for n := 1; n <= d.numPages; n++ {
		p, err := d.Page(n)
		if err != nil {
			errs = append(errs, &PageError{Page: n, Err: err})
			continue
		}
		for _, off := range FindAll(p.Text(), query) {
			hits = append(hits, SearchHit{Page: n, Offset: off})
		}
	}
	return hits, errs
}

// lowerRunes lowercases rune by rune so offsets match the original text's rune positions.
func lowerRunes(s string) []rune {
	rs := []rune(s)
	for i, r := range rs {
		rs[i] = unicode.ToLower(r)
	}
	return rs
}

func hasPrefixAt(t, q []rune, i int) bool {
	for j := range q {
		if t[i+j] != q[j] {
			return false
		}
	}
	return true
}

// Highlight is the part of one run covered by a search hit, as rune offsets into the run text.
type Highlight struct {
	Run   int `json:"run"`
	Start int `json:"start"`
	End   int `json:"end"`
}

// Locate maps a flattened-text range [offset, offset+length) back onto the runs it covers.
// Separators between runs are not part of any run and are skipped.
func (p *Page) Locate(offset, length int) []Highlight {
	var out []Highlight
	end := offset + length
	pos := 0
	for i, r := range p.Runs {
		n := len([]rune(r.Text))
		runStart, runEnd := pos, pos+n
		s, e := max(offset, runStart), min(end, runEnd)
		if s < e {
			out = append(out, Highlight{Run: i, Start: s - runStart, End: e - runStart})
		}
		pos = runEnd + len([]rune(RunSeparator))
		if pos >= end {
			break
		}
	}
	return out
}
