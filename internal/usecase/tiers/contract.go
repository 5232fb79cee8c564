// Package tiers implements the individual search tiers: exact pattern
// lookup, backend-accelerated and in-memory fuzzy matching, vector
// kNN, and the degraded-mode fallback path over local indexes.
package tiers

import (
	"context"
	"time"

	"github.com/sanctex-io/sanctex/internal/domain"
	"github.com/sanctex-io/sanctex/internal/index"
)

// repo is the consumer interface over the watchlist repository (ISP).
type repo interface {
	Exact(ctx context.Context, query string, topK int) ([]domain.Candidate, error)
	Fuzzy(ctx context.Context, query string, distance, topK int) ([]domain.Candidate, error)
	KNN(ctx context.Context, vector []float32, k int) ([]domain.Candidate, error)
}

// vectorBuilder produces the unit query vector for the semantic tiers.
type vectorBuilder interface {
	Build(ctx context.Context, text string) ([]float32, error)
}

// patternLookup is the local AC-equivalent index used in degraded mode.
type patternLookup interface {
	Search(query string, topK int) []index.Scored
	GetDoc(docID string) (index.Doc, bool)
}

// vectorLookup is the local semantic index used in degraded mode.
type vectorLookup interface {
	Search(vec []float32, k int) ([]index.Scored, error)
}

// FuzzyParams tunes the backend-accelerated fuzzy tier. The blend
// coefficients trade backend relevance against local edit distance
// and word overlap; they are deploy-time policy, not constants.
type FuzzyParams struct {
	Distance      int
	Timeout       time.Duration
	BackendWeight float64
	EditWeight    float64
	OverlapWeight float64
	// Scores with an edit ratio below PenaltyCutoff are multiplied
	// by Penalty. Permissive fuzzy expansion over-matches short
	// queries; this keeps those hits from ranking as real ones.
	Penalty       float64
	PenaltyCutoff float64
}

// DefaultFuzzyParams returns the tuned production blend.
func DefaultFuzzyParams() FuzzyParams {
	return FuzzyParams{
		Distance:      2,
		Timeout:       2 * time.Second,
		BackendWeight: 0.2,
		EditWeight:    0.5,
		OverlapWeight: 0.3,
		Penalty:       0.7,
		PenaltyCutoff: 0.6,
	}
}

// RatioWeights tunes the in-memory fuzzy matcher's per-algorithm
// contribution.
type RatioWeights struct {
	Plain     float64
	Partial   float64
	TokenSort float64
	TokenSet  float64
}

// DefaultRatioWeights returns the production algorithm blend.
func DefaultRatioWeights() RatioWeights {
	return RatioWeights{Plain: 0.3, Partial: 0.25, TokenSort: 0.25, TokenSet: 0.2}
}
