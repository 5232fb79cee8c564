package tiers

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/sanctex-io/sanctex/internal/db"
	"github.com/sanctex-io/sanctex/internal/domain"
)

// Vector is the semantic tier: query vectorization plus kNN against
// the primary index. Most expensive, lowest precision, consulted last.
type Vector struct {
	repo       repo
	vectorizer vectorBuilder
	threshold  float64
	logger     *zap.Logger
}

// NewVector creates the vector tier. threshold is the minimum cosine
// similarity a hit must reach.
func NewVector(r repo, v vectorBuilder, threshold float64, logger *zap.Logger) *Vector {
	return &Vector{repo: r, vectorizer: v, threshold: threshold, logger: logger}
}

// Search vectorizes the query and returns kNN hits above the
// similarity threshold.
func (t *Vector) Search(ctx context.Context, query string, topK int) ([]domain.Candidate, error) {
	cands, err := t.knn(ctx, query, topK)
	if err != nil {
		return nil, err
	}
	return t.filter(cands), nil
}

// SearchRescored is the vector-fallback variant: kNN plus lexical
// rerank and anchor boosting, used when exact match looks like it
// missed a real hit.
func (t *Vector) SearchRescored(ctx context.Context, query, rawQuery string, topK int) ([]domain.Candidate, error) {
	cands, err := t.knn(ctx, query, topK)
	if err != nil {
		return nil, err
	}

	applyLexicalRerank(query, cands)
	applyAnchorBoosts(cands, extractAnchors(rawQuery))

	sort.Slice(cands, func(i, j int) bool {
		if cands[i].Score != cands[j].Score {
			return cands[i].Score > cands[j].Score
		}
		return cands[i].DocID < cands[j].DocID
	})
	return t.filter(cands), nil
}

func (t *Vector) knn(ctx context.Context, query string, topK int) ([]domain.Candidate, error) {
	vec, err := t.vectorizer.Build(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("vector tier: %w", err)
	}

	cands, err := t.repo.KNN(ctx, vec, topK)
	if err != nil {
		if errors.Is(err, db.ErrUnavailable) {
			return nil, fmt.Errorf("%w: %v", domain.ErrBackendUnavailable, err)
		}
		return nil, fmt.Errorf("vector tier: %w", err)
	}
	return cands, nil
}

func (t *Vector) filter(cands []domain.Candidate) []domain.Candidate {
	if t.threshold <= 0 {
		return cands
	}
	out := cands[:0]
	for _, c := range cands {
		if c.Score >= t.threshold {
			out = append(out, c)
		}
	}
	return out
}
