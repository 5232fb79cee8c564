package tiers

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/sanctex-io/sanctex/internal/db"
	"github.com/sanctex-io/sanctex/internal/domain"
)

// Exact is the AC tier: a pattern lookup against the primary index.
// Highest precision, near-free, always consulted first.
type Exact struct {
	repo   repo
	logger *zap.Logger
}

// NewExact creates the exact tier.
func NewExact(r repo, logger *zap.Logger) *Exact {
	return &Exact{repo: r, logger: logger}
}

// Search runs the pattern lookup and annotates per-hit corroboration
// signals. A disconnected backend surfaces as
// domain.ErrBackendUnavailable so the caller can divert to the
// fallback path.
func (e *Exact) Search(ctx context.Context, query string, topK int) ([]domain.Candidate, error) {
	cands, err := e.repo.Exact(ctx, query, topK)
	if err != nil {
		if errors.Is(err, db.ErrUnavailable) {
			return nil, fmt.Errorf("%w: %v", domain.ErrBackendUnavailable, err)
		}
		return nil, fmt.Errorf("exact tier: %w", err)
	}

	annotateSignals(query, cands)
	return cands, nil
}

// annotateSignals marks hits whose stored DOB or doc id appears
// verbatim in the query. These are corroboration beyond name match
// and feed the audit trace.
func annotateSignals(query string, cands []domain.Candidate) {
	q := strings.ToLower(query)
	for i := range cands {
		c := &cands[i]
		if c.Trace == nil {
			c.Trace = make(map[string]any)
		}
		if dob := c.Metadata["dob"]; dob != "" && strings.Contains(q, strings.ToLower(dob)) {
			c.Trace["dob_match"] = true
		}
		if c.DocID != "" && strings.Contains(q, strings.ToLower(c.DocID)) {
			c.Trace["doc_id_match"] = true
		}
	}
}
