package keyword

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/blevesearch/bleve/v2"
	keywordanalyzer "github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/search/highlight/highlighter/ansi"
	"github.com/blevesearch/bleve/v2/search/highlight/highlighter/html"
	blevequery "github.com/blevesearch/bleve/v2/search/query"
)

// deleteBatchSize bounds how many segment IDs are looked up per delete round.
const deleteBatchSize = 1000

// HighlightStyle selects how matched terms are marked in snippets.
type HighlightStyle string

const (
	HighlightHTML HighlightStyle = html.Name
	HighlightANSI HighlightStyle = ansi.Name
)

// BleveIndex implements Index using Bleve.
type BleveIndex struct {
	index bleve.Index
	style HighlightStyle
}

// NewBleveIndex creates or opens a Bleve index at path. An empty path creates an
// in-memory index. If you change the index mapping in code, remove the index
// directory to force a re-index.
func NewBleveIndex(path string) (*BleveIndex, error) {
	im := bleve.NewIndexMapping()

	segMapping := bleve.NewDocumentMapping()
	textFieldMapping := bleve.NewTextFieldMapping()
	// Standard analyzer (lowercase + tokenize, no stemming) so a query matches the exact word.
	textFieldMapping.Analyzer = standard.Name
	segMapping.AddFieldMappingsAt("content", textFieldMapping)
	segMapping.AddFieldMappingsAt("title", textFieldMapping)
	idFieldMapping := bleve.NewTextFieldMapping()
	idFieldMapping.Analyzer = keywordanalyzer.Name
	idFieldMapping.IncludeTermVectors = false
	segMapping.AddFieldMappingsAt("notebook_id", idFieldMapping)
	segMapping.AddFieldMappingsAt("source_id", idFieldMapping)
	unitFieldMapping := bleve.NewTextFieldMapping()
	unitFieldMapping.Index = false
	segMapping.AddFieldMappingsAt("unit", unitFieldMapping)
	im.AddDocumentMapping("segment", segMapping)
	im.DefaultType = "segment"
	im.DefaultMapping = segMapping

	var (
		index bleve.Index
		err   error
	)
	switch {
	case path == "":
		index, err = bleve.NewMemOnly(im)
	case exists(path):
		index, err = bleve.Open(path)
	default:
		index, err = bleve.New(path, im)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open Bleve index: %w", err)
	}
	return &BleveIndex{index: index, style: HighlightHTML}, nil
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// SetHighlightStyle changes how snippets mark matches.
func (b *BleveIndex) SetHighlightStyle(s HighlightStyle) { b.style = s }

// IndexSegments indexes segs in one batch.
func (b *BleveIndex) IndexSegments(ctx context.Context, segs []Segment) error {
	if len(segs) == 0 {
		return nil
	}
	batch := b.index.NewBatch()
	for i := range segs {
		seg := segs[i]
		// Underscores as spaces so "company_profile_2021.pptx" matches "company profile".
		seg.Title = strings.ReplaceAll(seg.Title, "_", " ")
		if err := batch.Index(seg.ID, seg); err != nil {
			return fmt.Errorf("index segment %s: %w", seg.ID, err)
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return b.index.Batch(batch)
}

// Search runs a match over content and title, restricted to one notebook.
// When opts.TitleBoost > 1 title matches weigh more; when opts.FuzzyEnabled is
// true each term matches within the fuzziness edit distance.
func (b *BleveIndex) Search(ctx context.Context, notebookID, query string, limit int, opts *SearchOptions) (*Results, error) {
	titleBoost := 1.0
	fuzzy := false
	fuzziness := 2
	offset := 0
	if opts != nil {
		if opts.TitleBoost > 0 {
			titleBoost = opts.TitleBoost
		}
		fuzzy = opts.FuzzyEnabled
		if opts.Fuzziness > 0 {
			fuzziness = opts.Fuzziness
		}
		offset = max(opts.Offset, 0)
	}

	var content, title blevequery.Query
	if fuzzy {
		content = buildFuzzyQuery(query, fuzziness, "content", 1)
		title = buildFuzzyQuery(query, fuzziness, "title", titleBoost)
	} else {
		cq := bleve.NewMatchQuery(query)
		cq.SetField("content")
		tq := bleve.NewMatchQuery(query)
		tq.SetField("title")
		tq.SetBoost(titleBoost)
		content, title = cq, tq
	}
	scope := bleve.NewTermQuery(notebookID)
	scope.SetField("notebook_id")
	q := bleve.NewConjunctionQuery(scope, bleve.NewDisjunctionQuery(content, title))

	req := bleve.NewSearchRequestOptions(q, limit, offset, false)
	req.Fields = []string{"source_id", "title", "unit"}
	req.Highlight = bleve.NewHighlightWithStyle(string(b.style))
	req.Highlight.AddField("content")

	res, err := b.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("Bleve search failed: %w", err)
	}
	out := &Results{Total: res.Total, Hits: make([]*Hit, 0, len(res.Hits))}
	for _, h := range res.Hits {
		hit := &Hit{
			SegmentID: h.ID,
			SourceID:  fieldString(h.Fields, "source_id"),
			Title:     fieldString(h.Fields, "title"),
			Unit:      fieldString(h.Fields, "unit"),
			Score:     h.Score,
		}
		if frags := h.Fragments["content"]; len(frags) > 0 {
			hit.Snippet = frags[0]
		}
		out.Hits = append(out.Hits, hit)
	}
	return out, nil
}

func fieldString(fields map[string]interface{}, name string) string {
	s, _ := fields[name].(string)
	return s
}

// buildFuzzyQuery creates a disjunction of FuzzyQueries for each term in the query.
func buildFuzzyQuery(queryStr string, fuzziness int, field string, boost float64) blevequery.Query {
	terms := tokenizeQuery(queryStr)
	if len(terms) == 0 {
		mq := bleve.NewMatchQuery(queryStr)
		mq.SetField(field)
		mq.SetBoost(boost)
		return mq
	}
	queries := make([]blevequery.Query, 0, len(terms))
	for _, term := range terms {
		fq := bleve.NewFuzzyQuery(term)
		fq.SetFuzziness(fuzziness)
		fq.SetField(field)
		fq.SetBoost(boost)
		queries = append(queries, fq)
	}
	if len(queries) == 1 {
		return queries[0]
	}
	return bleve.NewDisjunctionQuery(queries...)
}

// tokenizeQuery splits query into lowercase terms.
func tokenizeQuery(query string) []string {
	return strings.Fields(strings.ToLower(query))
}

// DeleteSource removes every segment of sourceID.
func (b *BleveIndex) DeleteSource(ctx context.Context, sourceID string) error {
	return b.deleteWhere(ctx, "source_id", sourceID)
}

// DeleteNotebook removes every segment of notebookID.
func (b *BleveIndex) DeleteNotebook(ctx context.Context, notebookID string) error {
	return b.deleteWhere(ctx, "notebook_id", notebookID)
}

func (b *BleveIndex) deleteWhere(ctx context.Context, field, value string) error {
	for {
		q := bleve.NewTermQuery(value)
		q.SetField(field)
		req := bleve.NewSearchRequestOptions(q, deleteBatchSize, 0, false)
		res, err := b.index.SearchInContext(ctx, req)
		if err != nil {
			return fmt.Errorf("find segments by %s: %w", field, err)
		}
		if len(res.Hits) == 0 {
			return nil
		}
		batch := b.index.NewBatch()
		for _, h := range res.Hits {
			batch.Delete(h.ID)
		}
		if err := b.index.Batch(batch); err != nil {
			return fmt.Errorf("delete segments: %w", err)
		}
	}
}

// DocCount returns the total number of segments in the index.
func (b *BleveIndex) DocCount() (uint64, error) {
	return b.index.DocCount()
}

// Terms returns every term of the content and title fields with its document frequency.
func (b *BleveIndex) Terms() (map[string]int, error) {
	terms := make(map[string]int)
	for _, field := range []string{"content", "title"} {
		dict, err := b.index.FieldDict(field)
		if err != nil {
			return nil, fmt.Errorf("field dictionary %s: %w", field, err)
		}
		for {
			entry, err := dict.Next()
			if err != nil || entry == nil {
				break
			}
			if int(entry.Count) > terms[entry.Term] {
				terms[entry.Term] = int(entry.Count)
			}
		}
		_ = dict.Close()
	}
	return terms, nil
}

// Close closes the Bleve index.
func (b *BleveIndex) Close() error {
	return b.index.Close()
}
