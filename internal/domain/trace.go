package domain

import "time"

// MaxTraceHits caps the per-step hit list when a step is recorded.
// Traces travel in the response payload; unbounded hit lists are a
// payload-size hazard, not extra evidence.
const MaxTraceHits = 10

// TraceHit is one scored document inside a trace step.
type TraceHit struct {
	DocID   string         `json:"doc_id"`
	Score   float64        `json:"score"`
	Rank    int            `json:"rank"`
	Source  Mode           `json:"source"`
	Signals map[string]any `json:"signals,omitempty"`
}

// TraceStep documents one tier invocation: what was asked, how long
// it took, what came back and why the controller moved on (or not).
type TraceStep struct {
	Tier    Mode           `json:"tier"`
	Query   string         `json:"query"`
	Elapsed time.Duration  `json:"elapsed"`
	Hits    []TraceHit     `json:"hits"`
	Meta    map[string]any `json:"meta,omitempty"`
}

// SearchTrace is the audit record of one screening request. It lives
// for exactly one request/response cycle; it is never persisted by
// the engine. A populated trace on a zero-hit response is the
// compliance requirement — silence about why nothing matched is worse
// than a verbose failure trace.
type SearchTrace struct {
	Query     string        `json:"query"`
	StartedAt time.Time     `json:"started_at"`
	Total     time.Duration `json:"total"`
	Steps     []TraceStep   `json:"steps"`
}

// NewTrace starts a trace for one request.
func NewTrace(query string) *SearchTrace {
	return &SearchTrace{Query: query, StartedAt: time.Now()}
}

// AddStep records a tier invocation, capping the hit list.
func (t *SearchTrace) AddStep(tier Mode, query string, elapsed time.Duration, cands []Candidate, meta map[string]any) {
	if t == nil {
		return
	}
	n := len(cands)
	if n > MaxTraceHits {
		n = MaxTraceHits
	}
	hits := make([]TraceHit, 0, n)
	for i := 0; i < n; i++ {
		c := cands[i]
		var signals map[string]any
		if len(c.Trace) > 0 {
			signals = make(map[string]any, len(c.Trace))
			for k, v := range c.Trace {
				signals[k] = v
			}
		}
		hits = append(hits, TraceHit{
			DocID:   c.DocID,
			Score:   c.Score,
			Rank:    i + 1,
			Source:  c.SearchMode,
			Signals: signals,
		})
	}
	t.Steps = append(t.Steps, TraceStep{
		Tier:    tier,
		Query:   query,
		Elapsed: elapsed,
		Hits:    hits,
		Meta:    meta,
	})
}

// Finalize stamps the total duration. Idempotent.
func (t *SearchTrace) Finalize() {
	if t == nil || t.Total > 0 {
		return
	}
	t.Total = time.Since(t.StartedAt)
}
