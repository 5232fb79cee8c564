package tiers

import (
	"sort"
	"strings"
	"unicode"

	"github.com/sanctex-io/sanctex/internal/domain"
)

// MemEntry is one row of the in-memory fuzzy corpus: an entity name
// or alias plus payload. The corpus is bounded (names and aliases,
// hundreds of rows) because every query scans it fully.
type MemEntry struct {
	DocID      string
	Text       string
	EntityType string
	Metadata   map[string]string
}

// FuzzyMem is the in-memory fuzzy matcher, used when no fuzzy-capable
// backend is reachable. It blends four similarity ratios per entry.
type FuzzyMem struct {
	entries []MemEntry
	weights RatioWeights
}

// NewFuzzyMem creates the in-memory matcher over a fixed corpus.
func NewFuzzyMem(entries []MemEntry, weights RatioWeights) *FuzzyMem {
	return &FuzzyMem{entries: entries, weights: weights}
}

// Len returns the corpus size.
func (f *FuzzyMem) Len() int { return len(f.entries) }

// Search scores every corpus entry against the query and returns the
// topK above the threshold. Entries that look like person names get
// a 1.2x boost capped at 1.0; name hits matter more than generic
// string hits in screening.
func (f *FuzzyMem) Search(query string, topK int, threshold float64) []domain.Candidate {
	if query == "" || topK <= 0 {
		return nil
	}

	out := make([]domain.Candidate, 0, topK)
	for _, e := range f.entries {
		plain := Ratio(query, e.Text)
		partial := PartialRatio(query, e.Text)
		tokenSort := TokenSortRatio(query, e.Text)
		tokenSet := TokenSetRatio(query, e.Text)

		score := (f.weights.Plain*float64(plain) +
			f.weights.Partial*float64(partial) +
			f.weights.TokenSort*float64(tokenSort) +
			f.weights.TokenSet*float64(tokenSet)) / 100.0

		boosted := false
		if looksLikePersonName(e.Text) {
			score *= 1.2
			if score > 1.0 {
				score = 1.0
			}
			boosted = true
		}
		if score < threshold {
			continue
		}

		out = append(out, domain.Candidate{
			DocID:      e.DocID,
			Score:      score,
			Text:       e.Text,
			EntityType: e.EntityType,
			Metadata:   cloneMeta(e.Metadata),
			SearchMode: domain.ModeFuzzy,
			Confidence: score,
			Trace: map[string]any{
				"algorithm":        "in_memory_blend",
				"ratio":            plain,
				"partial_ratio":    partial,
				"token_sort_ratio": tokenSort,
				"token_set_ratio":  tokenSet,
				"name_boost":       boosted,
			},
		})
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].DocID < out[j].DocID
	})
	if len(out) > topK {
		out = out[:topK]
	}
	return out
}

// patronymic and surname suffixes common in the sanctioned-name
// corpus, Cyrillic and transliterated.
var nameSuffixes = []string{
	"ович", "евич", "овна", "евна", "енко",
	"ovich", "evich", "ovna", "evna", "enko",
}

// looksLikePersonName is a cheap heuristic: a patronymic or surname
// suffix on any token, or at least two capitalized tokens.
func looksLikePersonName(text string) bool {
	capitalized := 0
	for _, token := range strings.Fields(text) {
		lower := strings.ToLower(token)
		for _, suffix := range nameSuffixes {
			if strings.HasSuffix(lower, suffix) {
				return true
			}
		}
		r := []rune(token)
		if len(r) > 0 && unicode.IsUpper(r[0]) {
			capitalized++
		}
	}
	return capitalized >= 2
}

func cloneMeta(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
