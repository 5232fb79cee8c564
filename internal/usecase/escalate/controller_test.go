package escalate

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"

	"github.com/sanctex-io/sanctex/internal/domain"
	"github.com/sanctex-io/sanctex/internal/usecase/fusion"
)

type mockTier struct {
	cands []domain.Candidate
	err   error
	calls int
}

func (m *mockTier) Search(_ context.Context, _ string, _ int) ([]domain.Candidate, error) {
	m.calls++
	return m.cands, m.err
}

type mockVector struct {
	mockTier
	rescored      []domain.Candidate
	rescoredCalls int
}

func (m *mockVector) SearchRescored(_ context.Context, _, _ string, _ int) ([]domain.Candidate, error) {
	m.rescoredCalls++
	return m.rescored, nil
}

type mockFallback struct {
	cands []domain.Candidate
	calls int
}

func (m *mockFallback) Search(_ context.Context, _ string, _ int) []domain.Candidate {
	m.calls++
	return m.cands
}

type mockConn struct{ connected bool }

func (m *mockConn) Connected(_ context.Context) bool { return m.connected }

func cand(id string, score float64, mode domain.Mode) domain.Candidate {
	return domain.Candidate{DocID: id, Score: score, SearchMode: mode, Confidence: score}
}

type fixture struct {
	exact    *mockTier
	fuzzy    *mockTier
	vector   *mockVector
	fallback *mockFallback
	conn     *mockConn
	ctrl     *Controller
}

func newFixture() *fixture {
	f := &fixture{
		exact:    &mockTier{},
		fuzzy:    &mockTier{},
		vector:   &mockVector{},
		fallback: &mockFallback{},
		conn:     &mockConn{connected: true},
	}
	fuser := fusion.New(domain.DefaultFusionWeights(), domain.DefaultFusionBoosts())
	f.ctrl = New(f.exact, f.fuzzy, f.vector, f.fallback, fuser, f.conn,
		DefaultThresholds(), zap.NewNop())
	return f
}

func hybridOpts() *domain.SearchOpts {
	o := domain.DefaultOpts()
	return &o
}

func TestFindCandidates_HighConfidenceACSkipsEscalation(t *testing.T) {
	f := newFixture()
	f.exact.cands = []domain.Candidate{cand("a", 0.95, domain.ModeAC)}

	trace := domain.NewTrace("q")
	out, err := f.ctrl.FindCandidates(context.Background(), "q", "q", hybridOpts(), trace)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.fuzzy.calls != 0 || f.vector.calls != 0 {
		t.Error("confident exact match must not escalate")
	}
	if len(out) != 1 || out[0].DocID != "a" {
		t.Errorf("unexpected result: %+v", out)
	}
	if len(trace.Steps) != 1 {
		t.Fatalf("expected 1 trace step, got %d", len(trace.Steps))
	}
	if trace.Steps[0].Meta["should_escalate"] != false {
		t.Error("trace must document the escalation decision")
	}
}

func TestFindCandidates_LowACScoreEscalates(t *testing.T) {
	f := newFixture()
	f.exact.cands = []domain.Candidate{cand("a", 0.5, domain.ModeAC)}
	f.fuzzy.cands = []domain.Candidate{cand("b", 0.9, domain.ModeFuzzy)}

	trace := domain.NewTrace("q")
	out, err := f.ctrl.FindCandidates(context.Background(), "q", "q", hybridOpts(), trace)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.fuzzy.calls != 1 {
		t.Fatal("score below escalation threshold must trigger the fuzzy tier")
	}
	if f.vector.calls != 0 {
		t.Error("sufficient fuzzy result must skip the vector tier")
	}
	if trace.Steps[0].Meta["should_escalate"] != true {
		t.Error("trace must document escalation")
	}
	if trace.Steps[1].Meta["fuzzy_sufficient"] != true {
		t.Error("trace must document fuzzy sufficiency")
	}
	// both docs present after fusion
	if len(out) != 2 {
		t.Errorf("expected fused AC+fuzzy results, got %+v", out)
	}
}

func TestFindCandidates_EmptyACEscalates(t *testing.T) {
	f := newFixture()
	f.fuzzy.cands = []domain.Candidate{cand("b", 0.2, domain.ModeFuzzy)}
	f.vector.cands = []domain.Candidate{cand("c", 0.7, domain.ModeVector)}
	f.vector.rescored = []domain.Candidate{cand("d", 0.8, domain.ModeVector)}

	trace := domain.NewTrace("q")
	out, err := f.ctrl.FindCandidates(context.Background(), "q", "q", hybridOpts(), trace)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.fuzzy.calls != 1 || f.vector.calls != 1 {
		t.Error("empty exact tier must walk the full cascade")
	}
	if f.vector.rescoredCalls != 1 {
		t.Error("empty exact tier must also trigger the vector-fallback variant")
	}
	// AC empty: other tiers fuse at weight 1.0.
	for _, c := range out {
		if c.DocID == "c" && c.Score != 0.7 {
			t.Errorf("empty AC must not penalize vector score, got %v", c.Score)
		}
	}
}

func TestFindCandidates_EscalationDisabled(t *testing.T) {
	f := newFixture()
	f.exact.cands = []domain.Candidate{cand("a", 0.1, domain.ModeAC)}

	opts := hybridOpts()
	opts.EnableEscalation = false

	if _, err := f.ctrl.FindCandidates(context.Background(), "q", "q", opts, domain.NewTrace("q")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.fuzzy.calls != 0 || f.vector.calls != 0 {
		t.Error("disabled escalation must never leave the exact tier")
	}
}

func TestFindCandidates_ACMode(t *testing.T) {
	f := newFixture()
	f.exact.cands = []domain.Candidate{cand("a", 0.2, domain.ModeAC)}

	opts := hybridOpts()
	opts.Mode = domain.ModeAC

	out, err := f.ctrl.FindCandidates(context.Background(), "q", "q", opts, domain.NewTrace("q"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.fuzzy.calls != 0 || f.vector.calls != 0 {
		t.Error("AC mode must never escalate regardless of score")
	}
	if len(out) != 1 {
		t.Errorf("expected the AC hit, got %+v", out)
	}
}

func TestFindCandidates_VectorModeSkipsAC(t *testing.T) {
	f := newFixture()
	f.vector.cands = []domain.Candidate{cand("v", 0.8, domain.ModeVector)}

	opts := hybridOpts()
	opts.Mode = domain.ModeVector

	trace := domain.NewTrace("q")
	out, err := f.ctrl.FindCandidates(context.Background(), "q", "q", opts, trace)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.exact.calls != 0 {
		t.Error("VECTOR mode must not touch the exact tier")
	}
	if len(trace.Steps) == 0 || trace.Steps[0].Meta["skipped"] != true {
		t.Error("trace must record that the exact tier was skipped")
	}
	if len(out) != 1 || out[0].Score != 0.8 {
		t.Errorf("vector-only result must carry full weight, got %+v", out)
	}
}

func TestFindCandidates_DisconnectedShortCircuitsToFallback(t *testing.T) {
	f := newFixture()
	f.conn.connected = false
	f.fallback.cands = []domain.Candidate{cand("fb", 0.9, domain.ModeFallbackAC)}

	trace := domain.NewTrace("q")
	out, err := f.ctrl.FindCandidates(context.Background(), "q", "q", hybridOpts(), trace)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.exact.calls != 0 {
		t.Error("disconnected backend must not be queried")
	}
	if f.fallback.calls != 1 {
		t.Fatal("expected the fallback path to run")
	}
	if out[0].SearchMode != domain.ModeFallbackAC {
		t.Errorf("expected FALLBACK_AC tagging, got %s", out[0].SearchMode)
	}
	if trace.Steps[0].Meta["adapter_connected"] != false {
		t.Error("trace must document adapter_connected: false")
	}
}

func TestFindCandidates_ExactUnavailableFallsBack(t *testing.T) {
	f := newFixture()
	f.exact.err = domain.ErrBackendUnavailable
	f.fallback.cands = []domain.Candidate{cand("fb", 0.9, domain.ModeFallbackAC)}

	out, err := f.ctrl.FindCandidates(context.Background(), "q", "q", hybridOpts(), domain.NewTrace("q"))
	if err != nil {
		t.Fatalf("backend-unavailable must not surface as an error: %v", err)
	}
	if f.fallback.calls != 1 || len(out) != 1 {
		t.Errorf("expected fallback results, got %+v", out)
	}
}

func TestFindCandidates_FuzzyTimeoutContinuesToVector(t *testing.T) {
	f := newFixture()
	f.fuzzy.err = domain.ErrTierTimeout
	f.vector.cands = []domain.Candidate{cand("v", 0.9, domain.ModeVector)}

	out, err := f.ctrl.FindCandidates(context.Background(), "q", "q", hybridOpts(), domain.NewTrace("q"))
	if err != nil {
		t.Fatalf("fuzzy timeout must not fail the request: %v", err)
	}
	if f.vector.calls != 1 {
		t.Error("timeout in fuzzy must continue to the vector tier")
	}
	found := false
	for _, c := range out {
		if c.DocID == "v" {
			found = true
		}
	}
	if !found {
		t.Errorf("vector results missing: %+v", out)
	}
}

func TestShouldUseVectorFallback(t *testing.T) {
	f := newFixture()
	ac := []domain.Candidate{cand("a", 0.6, domain.ModeAC)}
	vec := []domain.Candidate{cand("v", 0.7, domain.ModeVector)}

	if f.ctrl.shouldUseVectorFallback(ac, vec) {
		t.Error("0.7 is not > 1.5 x 0.6; no fallback expected")
	}
	if !f.ctrl.shouldUseVectorFallback(nil, vec) {
		t.Error("no AC candidates must trigger fallback")
	}
	if !f.ctrl.shouldUseVectorFallback([]domain.Candidate{cand("a", 0.2, domain.ModeAC)}, vec) {
		t.Error("best AC below the hard floor must trigger fallback")
	}
	if !f.ctrl.shouldUseVectorFallback(ac, []domain.Candidate{cand("v", 0.95, domain.ModeVector)}) {
		t.Error("vector outperforming 1.5x must trigger fallback")
	}
}

func TestFuzzySufficient(t *testing.T) {
	f := newFixture()
	if f.ctrl.fuzzySufficient(nil) {
		t.Error("no fuzzy hits can never be sufficient")
	}
	if !f.ctrl.fuzzySufficient([]domain.Candidate{cand("a", 0.86, domain.ModeFuzzy)}) {
		t.Error("high-confidence hit must suffice")
	}
	if !f.ctrl.fuzzySufficient([]domain.Candidate{cand("a", 0.56, domain.ModeFuzzy)}) {
		t.Error("1.1x minimum (0.55) must suffice")
	}
	if f.ctrl.fuzzySufficient([]domain.Candidate{cand("a", 0.5, domain.ModeFuzzy)}) {
		t.Error("0.5 is below 1.1x minimum; must not suffice")
	}
}

func TestFindCandidates_UnexpectedErrorPropagates(t *testing.T) {
	f := newFixture()
	f.exact.err = errors.New("index corrupted")

	if _, err := f.ctrl.FindCandidates(context.Background(), "q", "q", hybridOpts(), domain.NewTrace("q")); err == nil {
		t.Fatal("unexpected tier errors must propagate to the facade")
	}
}
