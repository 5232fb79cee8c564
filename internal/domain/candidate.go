package domain

// Mode identifies the search tier that produced a candidate.
type Mode string

// Search tiers, ordered cheap-to-expensive.
const (
	ModeAC             Mode = "AC"
	ModeFuzzy          Mode = "FUZZY"
	ModeVector         Mode = "VECTOR"
	ModeHybrid         Mode = "HYBRID"
	ModeFallbackAC     Mode = "FALLBACK_AC"
	ModeFallbackVector Mode = "FALLBACK_VECTOR"
)

// Valid reports whether m is a mode a caller may request.
// HYBRID and the fallback tags are produced internally only.
func (m Mode) Valid() bool {
	switch m {
	case ModeAC, ModeVector, ModeHybrid:
		return true
	}
	return false
}

// Candidate is a single scored watchlist match.
//
// DocID is stable across repeated searches for the same underlying
// record; it is only unique within one tier until deduplication.
// Score is nominally [0,1] but tier boosts may push it past 1.0
// before the fusion layer clips the final list.
type Candidate struct {
	DocID       string
	Score       float64
	Text        string
	EntityType  string
	Metadata    map[string]string
	SearchMode  Mode
	MatchFields []string
	Confidence  float64
	Trace       map[string]any
}

// Clone returns a deep copy. Fusion and post-processing operate on
// clones so trace steps keep referencing the pre-fusion candidates.
func (c Candidate) Clone() Candidate {
	out := c
	if c.Metadata != nil {
		out.Metadata = make(map[string]string, len(c.Metadata))
		for k, v := range c.Metadata {
			out.Metadata[k] = v
		}
	}
	if c.MatchFields != nil {
		out.MatchFields = append([]string(nil), c.MatchFields...)
	}
	if c.Trace != nil {
		out.Trace = make(map[string]any, len(c.Trace))
		for k, v := range c.Trace {
			out.Trace[k] = v
		}
	}
	return out
}

// BestScore returns the highest score in a candidate list, or 0 for
// an empty list. Lists are descending-sorted per tier, but this does
// not assume it.
func BestScore(cands []Candidate) float64 {
	best := 0.0
	for _, c := range cands {
		if c.Score > best {
			best = c.Score
		}
	}
	return best
}
