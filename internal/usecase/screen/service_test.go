package screen

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/sanctex-io/sanctex/internal/domain"
)

type mockFinder struct {
	cands []domain.Candidate
	err   error
	panic bool
	calls int
}

func (m *mockFinder) FindCandidates(_ context.Context, normalized, _ string,
	_ *domain.SearchOpts, trace *domain.SearchTrace) ([]domain.Candidate, error) {
	m.calls++
	if m.panic {
		panic("boom")
	}
	trace.AddStep(domain.ModeAC, normalized, time.Millisecond, m.cands, nil)
	return m.cands, m.err
}

type mockFallback struct {
	cands []domain.Candidate
	calls int
}

func (m *mockFallback) Search(_ context.Context, _ string, _ int) []domain.Candidate {
	m.calls++
	return m.cands
}

type mockEmbedCache struct{ purged bool }

func (m *mockEmbedCache) Purge()   { m.purged = true }
func (m *mockEmbedCache) Len() int { return 0 }

func cand(id string, score float64) domain.Candidate {
	return domain.Candidate{
		DocID: id, Score: score, SearchMode: domain.ModeAC,
		EntityType: "person",
		Metadata:   map[string]string{"country": "UA"},
	}
}

func newService(t *testing.T, f *mockFinder, fb *mockFallback) *Service {
	t.Helper()
	s, err := New(f, fb, &mockEmbedCache{}, nil, DefaultConfig(), zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestSanitize(t *testing.T) {
	tests := []struct{ in, want string }{
		{`ivan <script> "petrov"`, "ivan petrov"},
		{"ivan'; DROP TABLE users", "ivan; TABLE users"},
		{"  Петро   Порошенко ", "Петро Порошенко"},
		{"SELECT union exec", ""},
	}
	for _, tt := range tests {
		if got := Sanitize(tt.in); got != tt.want {
			t.Errorf("Sanitize(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestSearch_ThresholdAndRedaction(t *testing.T) {
	f := &mockFinder{cands: []domain.Candidate{
		{DocID: "a", Score: 0.9, EntityType: "person",
			Metadata: map[string]string{"passport": "AB123456", "country": "UA"}},
		{DocID: "b", Score: 0.1, EntityType: "person"},
	}}
	s := newService(t, f, &mockFallback{})

	out, trace, err := s.Search(context.Background(), "ivan petrov", "", domain.DefaultOpts())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) != 1 || out[0].DocID != "a" {
		t.Fatalf("threshold filter failed: %+v", out)
	}
	if out[0].Metadata["passport"] != redactedPlaceholder {
		t.Errorf("passport must be redacted, got %q", out[0].Metadata["passport"])
	}
	if out[0].Metadata["country"] != "UA" {
		t.Error("non-sensitive metadata must survive")
	}
	if trace == nil || len(trace.Steps) == 0 || trace.Total == 0 {
		t.Error("trace must be populated and finalized")
	}
}

func TestSearch_ResultCacheHit(t *testing.T) {
	f := &mockFinder{cands: []domain.Candidate{cand("a", 0.9)}}
	s := newService(t, f, &mockFallback{})

	if _, _, err := s.Search(context.Background(), "ivan petrov", "", domain.DefaultOpts()); err != nil {
		t.Fatal(err)
	}
	_, trace, err := s.Search(context.Background(), "ivan petrov", "", domain.DefaultOpts())
	if err != nil {
		t.Fatal(err)
	}
	if f.calls != 1 {
		t.Errorf("second identical request must hit the cache, finder calls = %d", f.calls)
	}
	if trace.Steps[0].Meta["cache_hit"] != true {
		t.Error("cache hit must be visible in the trace")
	}

	// Different options miss the cache.
	opts := domain.DefaultOpts()
	opts.TopK = 3
	if _, _, err := s.Search(context.Background(), "ivan petrov", "", opts); err != nil {
		t.Fatal(err)
	}
	if f.calls != 2 {
		t.Errorf("different options must bypass the cache, finder calls = %d", f.calls)
	}
}

func TestSearch_CachedResultsAreIsolated(t *testing.T) {
	f := &mockFinder{cands: []domain.Candidate{cand("a", 0.9)}}
	s := newService(t, f, &mockFallback{})

	first, _, _ := s.Search(context.Background(), "ivan petrov", "", domain.DefaultOpts())
	first[0].Metadata["country"] = "tampered"

	second, _, _ := s.Search(context.Background(), "ivan petrov", "", domain.DefaultOpts())
	if second[0].Metadata["country"] != "UA" {
		t.Error("callers mutating returned results must not corrupt the cache")
	}
}

func TestSearch_RateLimit(t *testing.T) {
	f := &mockFinder{cands: []domain.Candidate{cand("a", 0.9)}}
	cfg := DefaultConfig()
	cfg.RequestsPerMinute = 2
	s, err := New(f, &mockFallback{}, nil, nil, cfg, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}

	opts := domain.DefaultOpts()
	opts.ClientID = "tenant-1"
	for i := 0; i < 2; i++ {
		// distinct queries so the result cache does not absorb them
		q := "ivan petrov " + string(rune('a'+i))
		if _, _, err := s.Search(context.Background(), q, "", opts); err != nil {
			t.Fatalf("request %d rejected: %v", i, err)
		}
	}
	if _, _, err := s.Search(context.Background(), "ivan petrov c", "", opts); !errors.Is(err, domain.ErrRateLimited) {
		t.Errorf("expected ErrRateLimited, got %v", err)
	}

	// other clients are unaffected
	opts.ClientID = "tenant-2"
	if _, _, err := s.Search(context.Background(), "ivan petrov d", "", opts); err != nil {
		t.Errorf("limit must be per client: %v", err)
	}
}

func TestSearch_CatastrophicFailureRecovers(t *testing.T) {
	f := &mockFinder{err: errors.New("pipeline corrupted")}
	fb := &mockFallback{cands: []domain.Candidate{{
		DocID: "fb", Score: 0.9, SearchMode: domain.ModeFallbackAC, EntityType: "person",
	}}}
	s := newService(t, f, fb)

	out, trace, err := s.Search(context.Background(), "ivan petrov", "", domain.DefaultOpts())
	if err != nil {
		t.Fatalf("facade must recover, got error: %v", err)
	}
	if fb.calls != 1 || len(out) != 1 || out[0].DocID != "fb" {
		t.Errorf("expected fallback results, got %+v", out)
	}
	found := false
	for _, step := range trace.Steps {
		if step.Meta["recovered_from"] != nil {
			found = true
		}
	}
	if !found {
		t.Error("trace must document the recovery")
	}
}

func TestSearch_PanicRecovers(t *testing.T) {
	f := &mockFinder{panic: true}
	s := newService(t, f, &mockFallback{})

	out, trace, err := s.Search(context.Background(), "ivan petrov", "", domain.DefaultOpts())
	if err != nil {
		t.Fatalf("panic must not escape the facade: %v", err)
	}
	if len(out) != 0 {
		t.Errorf("expected empty result, got %+v", out)
	}
	if trace == nil {
		t.Error("zero-hit recovery must still return a trace")
	}
}

func TestSearch_EmptyAfterSanitize(t *testing.T) {
	s := newService(t, &mockFinder{}, &mockFallback{})
	if _, _, err := s.Search(context.Background(), `<>"'`, "", domain.DefaultOpts()); !errors.Is(err, domain.ErrInvalidQuery) {
		t.Errorf("expected ErrInvalidQuery, got %v", err)
	}
}

func TestCacheManagement(t *testing.T) {
	f := &mockFinder{cands: []domain.Candidate{cand("a", 0.9)}}
	ec := &mockEmbedCache{}
	s, err := New(f, &mockFallback{}, ec, nil, DefaultConfig(), zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}

	if _, _, err := s.Search(context.Background(), "ivan petrov", "", domain.DefaultOpts()); err != nil {
		t.Fatal(err)
	}
	if _, _, err := s.Search(context.Background(), "acme trading", "", domain.DefaultOpts()); err != nil {
		t.Fatal(err)
	}

	if n := s.InvalidateSearchCache("ivan"); n != 1 {
		t.Errorf("expected 1 invalidated entry, got %d", n)
	}
	if n := s.CleanupExpiredCacheEntries(); n != 1 {
		t.Errorf("expected 1 live entry after invalidation, got %d", n)
	}

	s.ClearSearchCache()
	if n := s.CleanupExpiredCacheEntries(); n != 0 {
		t.Errorf("expected empty cache, got %d", n)
	}

	s.ClearEmbeddingCache()
	if !ec.purged {
		t.Error("embedding cache purge must propagate")
	}
}

func TestUpdateConfiguration(t *testing.T) {
	s := newService(t, &mockFinder{cands: []domain.Candidate{cand("a", 0.9)}}, &mockFallback{})

	bad := DefaultConfig()
	bad.DefaultThreshold = 2.0
	if err := s.UpdateConfiguration(bad); !errors.Is(err, domain.ErrInvalidConfiguration) {
		t.Fatalf("expected ErrInvalidConfiguration, got %v", err)
	}
	if s.Config().DefaultThreshold != DefaultConfig().DefaultThreshold {
		t.Error("rejected config must leave the old one in effect")
	}

	good := DefaultConfig()
	good.RequestsPerMinute = 1
	if err := s.UpdateConfiguration(good); err != nil {
		t.Fatal(err)
	}

	opts := domain.DefaultOpts()
	opts.ClientID = "t"
	if _, _, err := s.Search(context.Background(), "ivan petrov x", "", opts); err != nil {
		t.Fatal(err)
	}
	if _, _, err := s.Search(context.Background(), "ivan petrov y", "", opts); !errors.Is(err, domain.ErrRateLimited) {
		t.Errorf("new limit must take effect, got %v", err)
	}
}

func TestMetricsSnapshot(t *testing.T) {
	s := newService(t, &mockFinder{cands: []domain.Candidate{cand("a", 0.9)}}, &mockFallback{})

	if _, _, err := s.Search(context.Background(), "ivan petrov", "", domain.DefaultOpts()); err != nil {
		t.Fatal(err)
	}
	if _, _, err := s.Search(context.Background(), "ivan petrov", "", domain.DefaultOpts()); err != nil {
		t.Fatal(err)
	}

	m := s.Metrics()
	if m.Requests != 2 {
		t.Errorf("expected 2 requests, got %d", m.Requests)
	}
	if m.CacheHits != 1 || m.CacheMisses != 1 {
		t.Errorf("expected 1 hit / 1 miss, got %d / %d", m.CacheHits, m.CacheMisses)
	}
	if m.LatencySample != 1 {
		t.Errorf("cache hits do not record latency; expected sample 1, got %d", m.LatencySample)
	}
	if m.AvgLatency <= 0 || m.P95Latency <= 0 {
		t.Error("latency aggregates must be positive")
	}
}

func TestLimiter_WindowSlides(t *testing.T) {
	l := newLimiter(1)
	base := time.Now()
	l.now = func() time.Time { return base }

	if !l.allow("c") {
		t.Fatal("first request must pass")
	}
	if l.allow("c") {
		t.Fatal("second request in window must be rejected")
	}

	l.now = func() time.Time { return base.Add(61 * time.Second) }
	if !l.allow("c") {
		t.Error("request after the window slides must pass")
	}
	l.sweep()
}
