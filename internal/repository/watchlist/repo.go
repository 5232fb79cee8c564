// Package watchlist translates raw backend search entries into domain
// candidates. Index field conventions: "pattern" is the indexed match
// pattern, "name" the canonical entity name, "entity_type" the entity
// class, "confidence" the offline pattern-tier confidence; every
// remaining field is open metadata (dob, country, passport, ...).
package watchlist

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/sanctex-io/sanctex/internal/db"
	"github.com/sanctex-io/sanctex/internal/domain"
)

// reserved index fields that never land in candidate metadata.
var reservedFields = map[string]bool{
	"pattern":     true,
	"name":        true,
	"entity_type": true,
	"confidence":  true,
	"__vector":    true,
}

// store is the consumer interface for watchlist lookups (ISP).
type store interface {
	SearchExact(ctx context.Context, q *db.ExactQuery) (*db.SearchResult, error)
	SearchFuzzy(ctx context.Context, q *db.FuzzyQuery) (*db.SearchResult, error)
	SearchKNN(ctx context.Context, q *db.KNNQuery) (*db.SearchResult, error)
}

// Repo reads the watchlist FT index.
type Repo struct {
	store     store
	indexName string
	keyPrefix string
}

// New creates a watchlist repository over the given index.
func New(s store, indexName, keyPrefix string) *Repo {
	return &Repo{store: s, indexName: indexName, keyPrefix: keyPrefix}
}

// returnFields are requested on every query; metadata fields come back
// regardless because the index stores them as plain hash fields.
var returnFields = []string{"pattern", "name", "entity_type", "confidence", "dob", "country", "passport", "tax_id"}

// Exact runs the AC-tier pattern lookup. Scores come from the offline
// pattern corpus ("confidence" field, exact→aggressive tiers), not
// from backend relevance.
func (r *Repo) Exact(ctx context.Context, query string, topK int) ([]domain.Candidate, error) {
	sr, err := r.store.SearchExact(ctx, &db.ExactQuery{
		IndexName:    r.indexName,
		Query:        query,
		TopK:         topK,
		ReturnFields: returnFields,
	})
	if err != nil {
		return nil, fmt.Errorf("search exact: %w", err)
	}
	return r.parse(sr, domain.ModeAC, scoreFromConfidence), nil
}

// Fuzzy runs the edit-distance-tolerant lookup. The backend relevance
// score is preserved in the candidate trace under "backend_score";
// the fuzzy tier replaces Score with its local blend.
func (r *Repo) Fuzzy(ctx context.Context, query string, distance, topK int) ([]domain.Candidate, error) {
	sr, err := r.store.SearchFuzzy(ctx, &db.FuzzyQuery{
		IndexName:    r.indexName,
		Query:        query,
		Distance:     distance,
		TopK:         topK,
		ReturnFields: returnFields,
	})
	if err != nil {
		return nil, fmt.Errorf("search fuzzy: %w", err)
	}
	return r.parse(sr, domain.ModeFuzzy, scoreFromBackend), nil
}

// KNN runs the vector-tier lookup; Score is cosine similarity.
func (r *Repo) KNN(ctx context.Context, vector []float32, k int) ([]domain.Candidate, error) {
	sr, err := r.store.SearchKNN(ctx, &db.KNNQuery{
		IndexName:    r.indexName,
		Vector:       vector,
		K:            k,
		ReturnFields: append(returnFields, "__vector_score"),
	})
	if err != nil {
		return nil, fmt.Errorf("search knn: %w", err)
	}
	return r.parse(sr, domain.ModeVector, scoreFromBackend), nil
}

type scorePolicy int

const (
	scoreFromBackend scorePolicy = iota
	scoreFromConfidence
)

func (r *Repo) parse(sr *db.SearchResult, mode domain.Mode, policy scorePolicy) []domain.Candidate {
	if sr == nil || sr.Total == 0 {
		return nil
	}

	out := make([]domain.Candidate, 0, len(sr.Entries))
	for _, entry := range sr.Entries {
		out = append(out, r.parseEntry(entry, mode, policy))
	}
	return out
}

func (r *Repo) parseEntry(entry db.SearchEntry, mode domain.Mode, policy scorePolicy) domain.Candidate {
	c := domain.Candidate{
		DocID:      strings.TrimPrefix(entry.Key, r.keyPrefix),
		Score:      entry.Score,
		SearchMode: mode,
		Metadata:   make(map[string]string),
		Trace:      map[string]any{"backend_score": entry.Score},
	}

	for k, v := range entry.Fields {
		switch k {
		case "pattern":
			if c.Text == "" {
				c.Text = v
			}
			c.MatchFields = append(c.MatchFields, "pattern")
		case "name":
			c.Text = v
			c.Metadata["name"] = v
		case "entity_type":
			c.EntityType = v
		case "confidence":
			if f, err := strconv.ParseFloat(v, 64); err == nil {
				c.Confidence = f
				if policy == scoreFromConfidence {
					c.Score = f
				}
			}
		default:
			if !reservedFields[k] && v != "" {
				c.Metadata[k] = v
			}
		}
	}

	if policy == scoreFromConfidence && c.Confidence == 0 {
		// Pattern rows predating the tiered corpus carry no
		// confidence; an exact pattern hit is still a strong match.
		c.Score = 1.0
		c.Confidence = 1.0
	}

	return c
}
