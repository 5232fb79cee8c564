// Package index holds the in-process degraded-mode indexes: a small
// pattern index for exact-ish lookup and an HNSW graph for semantic
// lookup. Both are last-resort structures consulted only when the
// primary backend is unreachable, so they favor simplicity and
// predictable behavior over throughput.
package index

import (
	"sort"
	"strings"
	"sync"

	"github.com/hbollon/go-edlib"
)

// Doc is the payload stored alongside an indexed pattern.
type Doc struct {
	Text       string
	EntityType string
	Metadata   map[string]string
}

// Scored is one lookup hit.
type Scored struct {
	DocID string
	Score float64
}

// Scores assigned by match class. Substring and near matches are
// deliberately below 1.0 so a genuine exact hit always ranks first.
const (
	exactScore     = 1.0
	substringScore = 0.85
	prefixScore    = 0.75

	// nearMatchCutoff drops similarity hits too weak to be useful
	// even in degraded mode.
	nearMatchCutoff = 0.6
)

// PatternIndex is a lowercase-keyed in-memory index over watchlist
// pattern strings. Safe for concurrent use.
type PatternIndex struct {
	mu   sync.RWMutex
	docs map[string]Doc
	// lowered caches the lowercased text per doc so Search does not
	// re-fold on every query.
	lowered map[string]string
}

// NewPatternIndex creates an empty pattern index.
func NewPatternIndex() *PatternIndex {
	return &PatternIndex{
		docs:    make(map[string]Doc),
		lowered: make(map[string]string),
	}
}

// Add inserts or replaces a document.
func (p *PatternIndex) Add(docID string, doc Doc) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.docs[docID] = doc
	p.lowered[docID] = strings.ToLower(doc.Text)
}

// Remove deletes a document. Missing IDs are a no-op.
func (p *PatternIndex) Remove(docID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.docs, docID)
	delete(p.lowered, docID)
}

// Len returns the number of indexed documents.
func (p *PatternIndex) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.docs)
}

// GetDoc returns the stored payload for a doc id.
func (p *PatternIndex) GetDoc(docID string) (Doc, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	doc, ok := p.docs[docID]
	return doc, ok
}

// Search scans the index for the query. Exact equality scores 1.0,
// containment 0.85, prefix 0.75; everything else falls through to
// Levenshtein similarity with a 0.6 cutoff. Results are sorted by
// score descending with doc id as the tie-break, truncated to topK.
func (p *PatternIndex) Search(query string, topK int) []Scored {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" || topK <= 0 {
		return nil
	}

	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make([]Scored, 0, topK)
	for id, text := range p.lowered {
		score := matchScore(q, text)
		if score <= 0 {
			continue
		}
		out = append(out, Scored{DocID: id, Score: score})
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

func matchScore(query, text string) float64 {
	switch {
	case text == query:
		return exactScore
	case strings.Contains(text, query) || strings.Contains(query, text):
		return substringScore
	case strings.HasPrefix(text, query) || strings.HasPrefix(query, text):
		return prefixScore
	}

	sim, err := edlib.StringsSimilarity(query, text, edlib.Levenshtein)
	if err != nil || float64(sim) < nearMatchCutoff {
		return 0
	}
	return float64(sim)
}
