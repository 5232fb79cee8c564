package tiers

import (
	"context"

	"go.uber.org/zap"

	"github.com/sanctex-io/sanctex/internal/domain"
	"github.com/sanctex-io/sanctex/internal/index"
)

// Fallback is the degraded-mode search path over local in-process
// indexes, used when the primary backend is disconnected or failing.
// It never returns an error: this is the last resort, so any internal
// failure is logged and yields an empty result.
type Fallback struct {
	patterns   patternLookup
	vectors    vectorLookup
	vectorizer vectorBuilder
	memFuzzy   *FuzzyMem

	// Local indexes have their own score semantics, so thresholds
	// are separate from the normal-path ones.
	threshold       float64
	vectorThreshold float64

	logger *zap.Logger
}

// NewFallback creates the fallback path.
func NewFallback(patterns patternLookup, vectors vectorLookup, vectorizer vectorBuilder,
	threshold, vectorThreshold float64, logger *zap.Logger) *Fallback {
	return &Fallback{
		patterns:        patterns,
		vectors:         vectors,
		vectorizer:      vectorizer,
		threshold:       threshold,
		vectorThreshold: vectorThreshold,
		logger:          logger,
	}
}

// WithMemFuzzy adds the in-memory fuzzy matcher as a middle stage
// between the pattern index and the vector top-up. Corpus population
// is the caller's concern.
func (f *Fallback) WithMemFuzzy(m *FuzzyMem) *Fallback {
	f.memFuzzy = m
	return f
}

// Search runs the local pattern index first, then the in-memory fuzzy
// matcher if one is wired, then tops up from the local vector index
// while the result is still under topK.
func (f *Fallback) Search(ctx context.Context, query string, topK int) []domain.Candidate {
	if topK <= 0 {
		return nil
	}

	out := f.patternSearch(query, topK)
	if f.memFuzzy != nil && len(out) < topK {
		out = append(out, f.memSearch(query, topK-len(out), docIDSet(out))...)
	}
	if len(out) < topK {
		out = append(out, f.vectorSearch(ctx, query, topK-len(out), docIDSet(out))...)
	}
	return out
}

func (f *Fallback) memSearch(query string, k int, seen map[string]bool) []domain.Candidate {
	out := make([]domain.Candidate, 0, k)
	for _, c := range f.memFuzzy.Search(query, k+len(seen), f.threshold) {
		if seen[c.DocID] {
			continue
		}
		c.Trace["degraded"] = true
		out = append(out, c)
		if len(out) == k {
			break
		}
	}
	return out
}

func (f *Fallback) patternSearch(query string, topK int) []domain.Candidate {
	if f.patterns == nil {
		return nil
	}
	out := make([]domain.Candidate, 0, topK)
	for _, hit := range f.patterns.Search(query, topK) {
		if hit.Score < f.threshold {
			continue
		}
		out = append(out, f.candidate(hit, domain.ModeFallbackAC))
	}
	return out
}

func (f *Fallback) vectorSearch(ctx context.Context, query string, k int, seen map[string]bool) []domain.Candidate {
	if f.vectors == nil || f.vectorizer == nil {
		return nil
	}

	vec, err := f.vectorizer.Build(ctx, query)
	if err != nil {
		f.logger.Warn("fallback vectorization failed", zap.Error(err))
		return nil
	}
	hits, err := f.vectors.Search(vec, k+len(seen))
	if err != nil {
		f.logger.Warn("fallback vector search failed", zap.Error(err))
		return nil
	}

	out := make([]domain.Candidate, 0, k)
	for _, hit := range hits {
		if hit.Score < f.vectorThreshold || seen[hit.DocID] {
			continue
		}
		out = append(out, f.candidate(hit, domain.ModeFallbackVector))
		if len(out) == k {
			break
		}
	}
	return out
}

func (f *Fallback) candidate(hit index.Scored, mode domain.Mode) domain.Candidate {
	c := domain.Candidate{
		DocID:      hit.DocID,
		Score:      hit.Score,
		SearchMode: mode,
		Confidence: hit.Score,
		Trace:      map[string]any{"degraded": true},
	}
	if f.patterns != nil {
		if doc, ok := f.patterns.GetDoc(hit.DocID); ok {
			c.Text = doc.Text
			c.EntityType = doc.EntityType
			c.Metadata = cloneMeta(doc.Metadata)
		}
	}
	return c
}

func docIDSet(cands []domain.Candidate) map[string]bool {
	set := make(map[string]bool, len(cands))
	for _, c := range cands {
		set[c.DocID] = true
	}
	return set
}
