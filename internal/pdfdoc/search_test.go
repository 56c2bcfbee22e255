package pdfdoc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperjump/shiryo/internal/testutil"
)

func TestFindAll(t *testing.T) {
	tests := []struct {
		name  string
		text  string
		query string
		want  []int
	}{
		{"cursor moves past each match", "aaa", "aa", []int{0}},
		{"four as", "aaaa", "aa", []int{0, 2}},
		{"five as", "aaaaa", "aa", []int{0, 2}},
		{"separated repeats", "aa aa", "aa", []int{0, 3}},
		{"case-insensitive", "Go go GO", "go", []int{0, 3, 6}},
		{"rune offsets", "Café café", "CAFÉ", []int{0, 5}},
		{"no match", "hello", "xyz", nil},
		{"empty query", "hello", "", nil},
		{"query longer than text", "ab", "abc", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FindAll(tt.text, tt.query))
		})
	}
}

func TestFindAll_neverOverlaps(t *testing.T) {
	hits := FindAll("aaa", "aa")
	assert.Equal(t, []int{0}, hits)
	assert.NotContains(t, hits, 1)
	for i := 1; i < len(hits); i++ {
		assert.GreaterOrEqual(t, hits[i]-hits[i-1], 2, "hits %d and %d overlap", hits[i-1], hits[i])
	}
}

func TestDocument_Search(t *testing.T) {
	doc, err := Open(testutil.PDF(
		[]string{"alpha beta"},
		[]string{"nothing here"},
		[]string{"Beta gamma", "beta"},
	))
	require.NoError(t, err)

	hits, errs := doc.Search("BETA")
	assert.Empty(t, errs)
	assert.Equal(t, []SearchHit{
		{Page: 1, Offset: 6},
		{Page: 3, Offset: 0},
		{Page: 3, Offset: 11},
	}, hits)

	hits, _ = doc.Search("")
	assert.Empty(t, hits)
}

func TestPage_Locate(t *testing.T) {
	p := &Page{Runs: []Run{{Text: "Hello"}, {Text: "world"}}}
	assert.Equal(t, []Highlight{{Run: 0, Start: 4, End: 5}, {Run: 1, Start: 0, End: 1}}, p.Locate(4, 3))
	assert.Equal(t, []Highlight{{Run: 1, Start: 0, End: 5}}, p.Locate(6, 5))
	assert.Empty(t, p.Locate(5, 1))
}
