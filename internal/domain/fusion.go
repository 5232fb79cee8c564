package domain

// FusionWeights are the per-tier multipliers applied before merging.
// Normalized to sum to 1 at load time.
type FusionWeights struct {
	AC     float64 `json:"ac"`
	Vector float64 `json:"vector"`
}

// FusionBoosts are additive bonuses applied during merging.
type FusionBoosts struct {
	// SharedHit is added when a doc_id appears in more than one tier.
	SharedHit float64 `json:"shared_hit_bonus"`
	// MetadataMatch is added when a candidate satisfies every
	// metadata filter of the request.
	MetadataMatch float64 `json:"metadata_match_bonus"`
}

// DefaultFusionWeights favor the exact tier: AC hits are near-certain
// evidence, vector similarity is corroboration.
func DefaultFusionWeights() FusionWeights {
	return FusionWeights{AC: 0.6, Vector: 0.4}
}

// DefaultFusionBoosts returns the stock bonus values.
func DefaultFusionBoosts() FusionBoosts {
	return FusionBoosts{SharedHit: 0.1, MetadataMatch: 0.05}
}

// Normalize rescales weights to sum to 1, falling back to defaults
// when both are zero or negative.
func (w *FusionWeights) Normalize() {
	if w.AC < 0 {
		w.AC = 0
	}
	if w.Vector < 0 {
		w.Vector = 0
	}
	sum := w.AC + w.Vector
	if sum <= 0 {
		*w = DefaultFusionWeights()
		return
	}
	w.AC /= sum
	w.Vector /= sum
}
