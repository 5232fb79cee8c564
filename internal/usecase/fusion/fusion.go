// Package fusion merges weighted candidate sets from heterogeneous
// search tiers into one deduplicated, descending-ranked list.
package fusion

import (
	"sort"

	"github.com/sanctex-io/sanctex/internal/domain"
)

// Source is one tier's contribution to a fused result: its candidate
// list and the weight its scores carry. Combine accepts an arbitrary
// number of sources and applies each weight exactly once — the
// pairwise-combining shape that double-weights intermediate results
// is deliberately not reproducible with this API.
type Source struct {
	Candidates []domain.Candidate
	Weight     float64
}

// Fuser combines tier results under configured weights and boosts.
type Fuser struct {
	weights domain.FusionWeights
	boosts  domain.FusionBoosts
}

// New creates a fuser. Weights are normalized at construction.
func New(weights domain.FusionWeights, boosts domain.FusionBoosts) *Fuser {
	weights.Normalize()
	return &Fuser{weights: weights, boosts: boosts}
}

// Weights returns the normalized per-tier weights.
func (f *Fuser) Weights() domain.FusionWeights { return f.weights }

// Boosts returns the configured bonuses.
func (f *Fuser) Boosts() domain.FusionBoosts { return f.boosts }

// ACSource wraps AC-tier candidates with the AC weight.
func (f *Fuser) ACSource(cands []domain.Candidate) Source {
	return Source{Candidates: cands, Weight: f.weights.AC}
}

// OtherSource wraps fuzzy/vector candidates with the vector weight.
func (f *Fuser) OtherSource(cands []domain.Candidate) Source {
	return Source{Candidates: cands, Weight: f.weights.Vector}
}

// Combine fuses sources into one ranked list. The first source is by
// convention the AC tier: when it is empty, every other source fuses
// at weight 1.0 — the only available signal is not penalized for the
// absence of an exact match.
//
// Candidates sharing a doc_id across sources merge: weighted scores
// sum plus the shared-hit bonus, metadata unions with first-source
// precedence, search_mode becomes HYBRID, confidence takes the max.
// Input candidates are never mutated; merged output is built from
// clones. Output ordering is deterministic and independent of input
// list order (score desc, then doc_id asc).
func (f *Fuser) Combine(sources []Source, opts *domain.SearchOpts) []domain.Candidate {
	if len(sources) == 0 {
		return nil
	}

	acEmpty := len(sources[0].Candidates) == 0

	merged := make(map[string]*domain.Candidate)
	order := make([]string, 0)

	for si, src := range sources {
		weight := src.Weight
		if acEmpty && si > 0 {
			weight = 1.0
		}

		for _, cand := range src.Candidates {
			weighted := cand.Score * weight

			existing, ok := merged[cand.DocID]
			if !ok {
				c := cand.Clone()
				c.Score = weighted
				if c.Trace == nil {
					c.Trace = make(map[string]any)
				}
				c.Trace["fusion_weight"] = weight
				merged[cand.DocID] = &c
				order = append(order, cand.DocID)
				continue
			}

			// Shared hit: independent tiers agreeing on one record.
			existing.Score += weighted + f.boosts.SharedHit
			existing.SearchMode = domain.ModeHybrid
			if cand.Confidence > existing.Confidence {
				existing.Confidence = cand.Confidence
			}
			mergeMetadata(existing, cand)
			existing.Trace["shared_hit"] = true
		}
	}

	hasFilters := opts != nil && len(opts.MetadataFilters) > 0

	out := make([]domain.Candidate, 0, len(merged))
	for _, id := range order {
		c := merged[id]
		if hasFilters && opts.MatchesMetadata(c) {
			c.Score += f.boosts.MetadataMatch
			c.Trace["metadata_match"] = true
		}
		out = append(out, *c)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].DocID < out[j].DocID
	})

	if opts != nil {
		if opts.EnableDeduplication {
			out = dedupeByDocID(out)
		}
		if opts.TopK > 0 && len(out) > opts.TopK {
			out = out[:opts.TopK]
		}
	}

	return out
}

// mergeMetadata unions metadata and match fields into dst; dst (the
// earlier source, AC first by convention) wins on key collision.
func mergeMetadata(dst *domain.Candidate, src domain.Candidate) {
	for k, v := range src.Metadata {
		if _, ok := dst.Metadata[k]; !ok {
			if dst.Metadata == nil {
				dst.Metadata = make(map[string]string)
			}
			dst.Metadata[k] = v
		}
	}
	for _, f := range src.MatchFields {
		if !containsString(dst.MatchFields, f) {
			dst.MatchFields = append(dst.MatchFields, f)
		}
	}
}

// dedupeByDocID keeps the first (highest-ranked) candidate per doc_id.
func dedupeByDocID(cands []domain.Candidate) []domain.Candidate {
	seen := make(map[string]bool, len(cands))
	out := cands[:0]
	for _, c := range cands {
		if seen[c.DocID] {
			continue
		}
		seen[c.DocID] = true
		out = append(out, c)
	}
	return out
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
