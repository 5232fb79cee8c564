package tiers

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/hbollon/go-edlib"
	"go.uber.org/zap"

	"github.com/sanctex-io/sanctex/internal/db"
	"github.com/sanctex-io/sanctex/internal/domain"
)

// fuzzyOversample widens the backend fetch so local re-scoring has
// enough raw hits to reject from.
const fuzzyOversample = 3

// Fuzzy is the backend-accelerated fuzzy tier. The backend does the
// edit-distance-tolerant retrieval; scoring is redone locally because
// backend relevance scores are not comparable across queries.
type Fuzzy struct {
	repo   repo
	params FuzzyParams
	logger *zap.Logger
}

// NewFuzzy creates the accelerated fuzzy tier.
func NewFuzzy(r repo, params FuzzyParams, logger *zap.Logger) *Fuzzy {
	return &Fuzzy{repo: r, params: params, logger: logger}
}

// Search retrieves fuzzy hits and re-scores them. Hits beyond the
// length-scaled edit budget are rejected outright. A backend timeout
// surfaces as domain.ErrTierTimeout; a disconnected backend as
// domain.ErrBackendUnavailable.
func (f *Fuzzy) Search(ctx context.Context, query string, topK int) ([]domain.Candidate, error) {
	ctx, cancel := context.WithTimeout(ctx, f.params.Timeout)
	defer cancel()

	raw, err := f.repo.Fuzzy(ctx, query, f.params.Distance, topK*fuzzyOversample)
	if err != nil {
		switch {
		case errors.Is(err, context.DeadlineExceeded):
			return nil, fmt.Errorf("%w: fuzzy backend after %s", domain.ErrTierTimeout, f.params.Timeout)
		case errors.Is(err, db.ErrUnavailable):
			return nil, fmt.Errorf("%w: %v", domain.ErrBackendUnavailable, err)
		}
		return nil, fmt.Errorf("fuzzy tier: %w", err)
	}
	if len(raw) == 0 {
		return nil, nil
	}

	budget := editBudget(query)
	maxBackend := 0.0
	for _, c := range raw {
		if s, ok := c.Trace["backend_score"].(float64); ok && s > maxBackend {
			maxBackend = s
		}
	}

	q := strings.ToLower(query)
	out := make([]domain.Candidate, 0, topK)
	for _, c := range raw {
		text := strings.ToLower(c.Text)
		dist := edlib.LevenshteinDistance(q, text)
		if dist > budget {
			continue
		}

		longest := utf8.RuneCountInString(q)
		if l := utf8.RuneCountInString(text); l > longest {
			longest = l
		}
		editRatio := 0.0
		if longest > 0 {
			editRatio = 1.0 - float64(dist)/float64(longest)
		}
		overlap := wordOverlap(query, c.Text)

		backendNorm := 0.0
		if bs, ok := c.Trace["backend_score"].(float64); ok && maxBackend > 0 {
			backendNorm = bs / maxBackend
		}

		score := f.params.BackendWeight*backendNorm +
			f.params.EditWeight*editRatio +
			f.params.OverlapWeight*overlap
		if editRatio < f.params.PenaltyCutoff {
			score *= f.params.Penalty
		}

		rescored := c.Clone()
		rescored.Score = score
		rescored.SearchMode = domain.ModeFuzzy
		rescored.Trace["algorithm"] = "backend_accelerated"
		rescored.Trace["edit_distance"] = dist
		rescored.Trace["edit_ratio"] = editRatio
		rescored.Trace["word_overlap"] = overlap
		out = append(out, rescored)
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
	return out, nil
}

// editBudget caps accepted edit distance by query length: flat 3 for
// short queries, one edit per five characters beyond 15.
func editBudget(query string) int {
	n := utf8.RuneCountInString(query)
	if n < 15 {
		return 3
	}
	budget := int(math.Ceil(float64(n) / 5.0))
	if budget < 3 {
		return 3
	}
	return budget
}
