package keyword

import (
	"sort"
	"strings"
	"sync"
)

// Suggestion is a dictionary term close to a query term.
type Suggestion struct {
	Term      string
	Distance  int
	Frequency int
	Score     float64
}

// SpellChecker proposes corrected queries from the index's term dictionary.
// It is used to offer "did you mean" when a notebook search finds nothing.
type SpellChecker struct {
	dictionary  TermDictionary
	maxDistance int
	minFreq     int

	mu    sync.RWMutex
	terms map[string]int
	valid bool
}

// SpellCheckerOption configures a SpellChecker.
type SpellCheckerOption func(*SpellChecker)

// WithMaxDistance sets the maximum edit distance for suggestions.
func WithMaxDistance(d int) SpellCheckerOption {
	return func(s *SpellChecker) {
		if d > 0 {
			s.maxDistance = d
		}
	}
}

// WithMinFrequency sets the minimum document frequency a suggested term needs.
func WithMinFrequency(f int) SpellCheckerOption {
	return func(s *SpellChecker) {
		if f >= 0 {
			s.minFreq = f
		}
	}
}

// NewSpellChecker creates a SpellChecker over dict.
func NewSpellChecker(dict TermDictionary, opts ...SpellCheckerOption) *SpellChecker {
	s := &SpellChecker{dictionary: dict, maxDistance: 2, minFreq: 1}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Invalidate drops the cached dictionary; the next lookup reloads it.
// Call it after the index changes.
func (s *SpellChecker) Invalidate() {
	s.mu.Lock()
	s.valid = false
	s.mu.Unlock()
}

func (s *SpellChecker) load() (map[string]int, error) {
	s.mu.RLock()
	if s.valid {
		terms := s.terms
		s.mu.RUnlock()
		return terms, nil
	}
	s.mu.RUnlock()

	terms, err := s.dictionary.Terms()
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.terms, s.valid = terms, true
	s.mu.Unlock()
	return terms, nil
}

// Suggest returns dictionary terms within the edit distance of term, best first:
// closer terms win, then more frequent ones.
func (s *SpellChecker) Suggest(term string) []Suggestion {
	terms, err := s.load()
	if err != nil {
		return nil
	}
	term = strings.ToLower(term)
	var out []Suggestion
	for t, freq := range terms {
		if t == term || freq < s.minFreq {
			continue
		}
		if d := len([]rune(t)) - len([]rune(term)); d > s.maxDistance || -d > s.maxDistance {
			continue
		}
		dist := LevenshteinDistance(term, t)
		if dist > s.maxDistance {
			continue
		}
		out = append(out, Suggestion{Term: t, Distance: dist, Frequency: freq, Score: float64(freq) / float64(dist+1)})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Term < out[j].Term
	})
	return out
}

// CorrectedQuery replaces each unknown term of query with its best suggestion.
// It returns the corrected query and whether anything changed.
func (s *SpellChecker) CorrectedQuery(query string) (string, bool) {
	terms, err := s.load()
	if err != nil {
		return query, false
	}
	words := tokenizeQuery(query)
	changed := false
	for i, w := range words {
		if _, ok := terms[w]; ok {
			continue
		}
		if sugg := s.Suggest(w); len(sugg) > 0 {
			words[i] = sugg[0].Term
			changed = true
		}
	}
	if !changed {
		return query, false
	}
	return strings.Join(words, " "), true
}
