// Package escalate drives the tier cascade: exact match first, fuzzy
// and vector only when the cheaper tier did not resolve the query
// confidently, fallback path when the primary backend is out.
package escalate

import (
	"context"

	"github.com/sanctex-io/sanctex/internal/domain"
)

// Consumer interfaces over the tier implementations (ISP).

type exactTier interface {
	Search(ctx context.Context, query string, topK int) ([]domain.Candidate, error)
}

type fuzzyTier interface {
	Search(ctx context.Context, query string, topK int) ([]domain.Candidate, error)
}

type vectorTier interface {
	Search(ctx context.Context, query string, topK int) ([]domain.Candidate, error)
	SearchRescored(ctx context.Context, query, rawQuery string, topK int) ([]domain.Candidate, error)
}

type fallbackPath interface {
	Search(ctx context.Context, query string, topK int) []domain.Candidate
}

// connectivity reports whether the primary backend is reachable; the
// controller short-circuits to the fallback path when it is not.
type connectivity interface {
	Connected(ctx context.Context) bool
}

// Thresholds are the escalation decision points.
type Thresholds struct {
	// FuzzyHighConfidence: one fuzzy hit at or above this resolves
	// the request without the vector tier.
	FuzzyHighConfidence float64
	// FuzzyMinimum: the fuzzy tier also suffices when its best hit
	// reaches 1.1x this floor.
	FuzzyMinimum float64
	// ACHardFloor: a best exact score below this is treated as
	// near-random and triggers the vector-fallback variant.
	ACHardFloor float64
	// VectorOutperform: vector beating exact by this factor suggests
	// the pattern index missed a real hit.
	VectorOutperform float64
}

// DefaultThresholds returns the production decision points.
func DefaultThresholds() Thresholds {
	return Thresholds{
		FuzzyHighConfidence: 0.85,
		FuzzyMinimum:        0.5,
		ACHardFloor:         0.3,
		VectorOutperform:    1.5,
	}
}

const fuzzyMinimumMargin = 1.1
