// Package embedding builds fixed-dimension unit query vectors for the
// semantic tier, caching them and degrading to a deterministic
// pseudo-embedding when no real backend is configured.
package embedding

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/sanctex-io/sanctex/internal/domain"
)

// Vectorizer turns normalized query text into an L2-normalized vector
// of a fixed dimension. Output is deterministic for identical input.
type Vectorizer struct {
	backend   domain.Embedder // nil selects the pseudo-embedding
	dimension int
	cache     *Cache
	logger    *zap.Logger
}

// NewVectorizer creates a query vectorizer. backend may be nil.
func NewVectorizer(backend domain.Embedder, dimension int, cache *Cache, logger *zap.Logger) *Vectorizer {
	return &Vectorizer{
		backend:   backend,
		dimension: dimension,
		cache:     cache,
		logger:    logger,
	}
}

// Dimension returns the configured vector dimension.
func (v *Vectorizer) Dimension() int { return v.dimension }

// Build returns the query vector for the given normalized text.
// Pipeline: preprocess → cache → backend (fit + normalize) →
// pseudo-embedding fallback. The returned slice is shared with the
// cache; callers must not mutate it.
func (v *Vectorizer) Build(ctx context.Context, normalized string) ([]float32, error) {
	text := Preprocess(normalized)
	if text == "" {
		return nil, fmt.Errorf("%w: empty text after preprocessing", domain.ErrInvalidQuery)
	}

	if v.cache != nil {
		if vec, ok := v.cache.Get(text); ok {
			return vec, nil
		}
	}

	vec, err := v.compute(ctx, text)
	if err != nil {
		return nil, err
	}

	if v.cache != nil {
		v.cache.Add(text, vec)
	}
	return vec, nil
}

func (v *Vectorizer) compute(ctx context.Context, text string) ([]float32, error) {
	if v.backend == nil {
		return PseudoEmbed(text, v.dimension), nil
	}

	res, err := v.backend.Embed(ctx, text)
	if err != nil {
		// The backend is an enhancement, not a dependency: a failed
		// call degrades to the pseudo-embedding instead of failing
		// the whole vector tier.
		v.logger.Warn("embedding backend failed, using pseudo-embedding",
			zap.Error(err))
		return PseudoEmbed(text, v.dimension), nil
	}

	return l2Normalize(fitDimension(res.Embedding, v.dimension)), nil
}

// preprocessStrip removes everything outside word characters,
// whitespace, hyphen and period. This is a narrowing step distinct
// from upstream normalization: it exists to produce a stable cache
// key and stable embedding input.
var preprocessStrip = regexp.MustCompile(`[^\p{L}\p{N}_\s.\-]+`)

var whitespaceCollapse = regexp.MustCompile(`\s+`)

// Preprocess canonicalizes text for caching and embedding.
func Preprocess(text string) string {
	text = preprocessStrip.ReplaceAllString(text, "")
	text = whitespaceCollapse.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}

// PseudoEmbed builds the deterministic stand-in vector: each byte b
// at position i of the UTF-8 text increments bucket (b+i) mod dim.
// Not semantically meaningful — just stable and collision-resistant
// enough to keep the semantic tier operational without a model.
func PseudoEmbed(text string, dim int) []float32 {
	if dim <= 0 {
		return nil
	}
	vec := make([]float32, dim)
	for i, b := range []byte(text) {
		vec[(int(b)+i)%dim]++
	}
	return l2Normalize(vec)
}

// fitDimension truncates or zero-pads to the target dimension.
func fitDimension(vec []float32, dim int) []float32 {
	if len(vec) == dim {
		return vec
	}
	out := make([]float32, dim)
	copy(out, vec)
	return out
}

// l2Normalize scales the vector to unit length in place.
func l2Normalize(vec []float32) []float32 {
	var sum float64
	for _, f := range vec {
		sum += float64(f) * float64(f)
	}
	if sum == 0 {
		return vec
	}
	norm := float32(math.Sqrt(sum))
	for i := range vec {
		vec[i] /= norm
	}
	return vec
}
