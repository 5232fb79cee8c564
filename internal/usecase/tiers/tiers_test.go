package tiers

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"

	"github.com/sanctex-io/sanctex/internal/db"
	"github.com/sanctex-io/sanctex/internal/domain"
	"github.com/sanctex-io/sanctex/internal/index"
)

type mockRepo struct {
	exact    []domain.Candidate
	exactErr error
	fuzzy    []domain.Candidate
	fuzzyErr error
	knn      []domain.Candidate
	knnErr   error

	fuzzyCalls int
}

func (m *mockRepo) Exact(_ context.Context, _ string, _ int) ([]domain.Candidate, error) {
	return m.exact, m.exactErr
}

func (m *mockRepo) Fuzzy(_ context.Context, _ string, _, _ int) ([]domain.Candidate, error) {
	m.fuzzyCalls++
	return m.fuzzy, m.fuzzyErr
}

func (m *mockRepo) KNN(_ context.Context, _ []float32, _ int) ([]domain.Candidate, error) {
	return m.knn, m.knnErr
}

type mockVectorizer struct {
	vec []float32
	err error
}

func (m *mockVectorizer) Build(_ context.Context, _ string) ([]float32, error) {
	return m.vec, m.err
}

func fuzzyCand(id, text string, backendScore float64) domain.Candidate {
	return domain.Candidate{
		DocID:      id,
		Score:      backendScore,
		Text:       text,
		SearchMode: domain.ModeFuzzy,
		Trace:      map[string]any{"backend_score": backendScore},
	}
}

func TestExact_SignalsAndUnavailable(t *testing.T) {
	repo := &mockRepo{exact: []domain.Candidate{{
		DocID:    "P-123",
		Score:    1.0,
		Text:     "ivan petrov",
		Metadata: map[string]string{"dob": "1980-01-02"},
	}}}
	e := NewExact(repo, zap.NewNop())

	out, err := e.Search(context.Background(), "ivan petrov 1980-01-02 p-123", 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out[0].Trace["dob_match"] != true {
		t.Error("expected dob_match signal")
	}
	if out[0].Trace["doc_id_match"] != true {
		t.Error("expected doc_id_match signal")
	}

	repo.exactErr = &db.Error{Op: db.OpSearch, Err: db.ErrUnavailable}
	if _, err := e.Search(context.Background(), "x", 10); !errors.Is(err, domain.ErrBackendUnavailable) {
		t.Errorf("expected ErrBackendUnavailable, got %v", err)
	}
}

func TestFuzzy_RescoreAndBudget(t *testing.T) {
	// "ivan petrov" vs "ivan petrof": distance 1, within budget.
	// "maria sidorova": distance way over 3, rejected.
	repo := &mockRepo{fuzzy: []domain.Candidate{
		fuzzyCand("a", "ivan petrof", 2.0),
		fuzzyCand("b", "maria sidorova", 5.0),
	}}
	f := NewFuzzy(repo, DefaultFuzzyParams(), zap.NewNop())

	out, err := f.Search(context.Background(), "ivan petrov", 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) != 1 || out[0].DocID != "a" {
		t.Fatalf("expected only the within-budget hit, got %+v", out)
	}

	// edit ratio 10/11, overlap 1/3 (petrov != petrof), backend 2/5.
	c := out[0]
	if c.Trace["edit_distance"] != 1 {
		t.Errorf("expected edit distance 1, got %v", c.Trace["edit_distance"])
	}
	if c.Trace["algorithm"] != "backend_accelerated" {
		t.Errorf("missing algorithm provenance: %v", c.Trace["algorithm"])
	}
	if c.Score <= 0 || c.Score > 1 {
		t.Errorf("blended score out of range: %v", c.Score)
	}
}

func TestFuzzy_LowEditRatioPenalty(t *testing.T) {
	// distance 3 on a 7-rune query: edit ratio 4/7 < 0.6 triggers
	// the 0.7 penalty but stays within the flat budget of 3.
	repo := &mockRepo{fuzzy: []domain.Candidate{fuzzyCand("a", "ivanchk", 1.0)}}
	f := NewFuzzy(repo, DefaultFuzzyParams(), zap.NewNop())

	out, err := f.Search(context.Background(), "ivanov", 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) != 1 {
		t.Fatalf("expected 1 hit, got %d", len(out))
	}
	ratio, _ := out[0].Trace["edit_ratio"].(float64)
	if ratio >= 0.6 {
		t.Fatalf("test premise broken: edit ratio %v not below cutoff", ratio)
	}
	params := DefaultFuzzyParams()
	unpenalized := params.BackendWeight*1.0 + params.EditWeight*ratio +
		params.OverlapWeight*out[0].Trace["word_overlap"].(float64)
	want := unpenalized * params.Penalty
	if diff := out[0].Score - want; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("expected penalized score %v, got %v", want, out[0].Score)
	}
}

func TestFuzzy_ErrorMapping(t *testing.T) {
	f := NewFuzzy(&mockRepo{fuzzyErr: context.DeadlineExceeded}, DefaultFuzzyParams(), zap.NewNop())
	if _, err := f.Search(context.Background(), "x", 10); !errors.Is(err, domain.ErrTierTimeout) {
		t.Errorf("expected ErrTierTimeout, got %v", err)
	}

	f = NewFuzzy(&mockRepo{fuzzyErr: db.ErrUnavailable}, DefaultFuzzyParams(), zap.NewNop())
	if _, err := f.Search(context.Background(), "x", 10); !errors.Is(err, domain.ErrBackendUnavailable) {
		t.Errorf("expected ErrBackendUnavailable, got %v", err)
	}
}

func TestFuzzyMem_WeightsAndNameBoost(t *testing.T) {
	entries := []MemEntry{
		{DocID: "p1", Text: "Ivan Petrovich", EntityType: "person"},
		{DocID: "o1", Text: "acme trading", EntityType: "organization"},
	}
	f := NewFuzzyMem(entries, DefaultRatioWeights())

	out := f.Search("Ivan Petrovich", 10, 0.1)
	if len(out) == 0 || out[0].DocID != "p1" {
		t.Fatalf("expected p1 first, got %+v", out)
	}
	if out[0].Score != 1.0 {
		t.Errorf("exact name with boost must cap at 1.0, got %v", out[0].Score)
	}
	if out[0].Trace["name_boost"] != true {
		t.Error("patronymic suffix must trigger the name boost")
	}
	if out[0].Trace["algorithm"] != "in_memory_blend" {
		t.Error("missing algorithm provenance")
	}
}

func TestFuzzyMem_ThresholdAndTopK(t *testing.T) {
	entries := []MemEntry{
		{DocID: "p1", Text: "ivan petrov"},
		{DocID: "p2", Text: "unrelated org name"},
	}
	f := NewFuzzyMem(entries, DefaultRatioWeights())

	out := f.Search("ivan petrov", 10, 0.9)
	if len(out) != 1 || out[0].DocID != "p1" {
		t.Errorf("threshold must drop weak hits, got %+v", out)
	}
	if out := f.Search("ivan petrov", 0, 0); out != nil {
		t.Errorf("topK=0 must return nil, got %+v", out)
	}
}

func TestLooksLikePersonName(t *testing.T) {
	tests := []struct {
		text string
		want bool
	}{
		{"ivan petrovich", true},  // patronymic suffix
		{"Тарас Шевченко", true},  // suffix + capitals
		{"Ivan Petrov", true},     // two capitalized tokens
		{"acme trading llc", false},
		{"Gazprom", false}, // single capitalized token
	}
	for _, tt := range tests {
		if got := looksLikePersonName(tt.text); got != tt.want {
			t.Errorf("looksLikePersonName(%q) = %v, want %v", tt.text, got, tt.want)
		}
	}
}

func TestVector_ThresholdFilter(t *testing.T) {
	repo := &mockRepo{knn: []domain.Candidate{
		{DocID: "a", Score: 0.9, SearchMode: domain.ModeVector},
		{DocID: "b", Score: 0.3, SearchMode: domain.ModeVector},
	}}
	v := NewVector(repo, &mockVectorizer{vec: []float32{1}}, 0.5, zap.NewNop())

	out, err := v.Search(context.Background(), "ivan", 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) != 1 || out[0].DocID != "a" {
		t.Errorf("threshold must drop low-similarity hits, got %+v", out)
	}
}

func TestVector_RescoredAppliesBoosts(t *testing.T) {
	repo := &mockRepo{knn: []domain.Candidate{
		{DocID: "a", Score: 0.5, Text: "ivan petrov",
			Metadata: map[string]string{"dob": "1980-01-02"}},
		{DocID: "b", Score: 0.5, Text: "completely different entity"},
	}}
	v := NewVector(repo, &mockVectorizer{vec: []float32{1}}, 0, zap.NewNop())

	out, err := v.SearchRescored(context.Background(), "ivan petrov", "ivan petrov 1980-01-02", 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out[0].DocID != "a" {
		t.Fatalf("boosted hit must rank first, got %+v", out)
	}
	// lexical x1.2 then DOB anchor x1.3 on a 0.5 base.
	want := 0.5 * 1.2 * 1.3
	if diff := out[0].Score - want; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("expected score %v, got %v", want, out[0].Score)
	}
	if out[0].Trace["anchor_dob"] != true {
		t.Error("expected DOB anchor signal")
	}
}

func TestExtractAnchors(t *testing.T) {
	a := extractAnchors("ivan petrov 1980-01-02 passport12345 AB123456")
	if len(a.dobs) != 1 || a.dobs[0] != "1980-01-02" {
		t.Errorf("expected one DOB anchor, got %+v", a.dobs)
	}
	if len(a.ids) != 2 {
		t.Errorf("expected passport and two-letter id anchors, got %+v", a.ids)
	}
	if extractAnchors("01.02.1980").empty() {
		t.Error("dotted DOB format must extract")
	}
	if !extractAnchors("plain name").empty() {
		t.Error("plain name must extract nothing")
	}
}

func TestFallback_PatternThenVector(t *testing.T) {
	patterns := index.NewPatternIndex()
	patterns.Add("wl:1", index.Doc{Text: "ivan petrov", EntityType: "person",
		Metadata: map[string]string{"country": "RU"}})
	patterns.Add("wl:2", index.Doc{Text: "semantic only", EntityType: "person"})

	vectors := index.NewVectorIndex(4)
	vec := []float32{1, 0, 0, 0}
	if err := vectors.Add("wl:2", vec); err != nil {
		t.Fatal(err)
	}

	f := NewFallback(patterns, vectors, &mockVectorizer{vec: vec}, 0.5, 0.5, zap.NewNop())
	out := f.Search(context.Background(), "ivan petrov", 5)

	if len(out) != 2 {
		t.Fatalf("expected pattern hit plus vector top-up, got %+v", out)
	}
	if out[0].SearchMode != domain.ModeFallbackAC || out[0].DocID != "wl:1" {
		t.Errorf("first hit must be FALLBACK_AC wl:1, got %+v", out[0])
	}
	if out[1].SearchMode != domain.ModeFallbackVector || out[1].DocID != "wl:2" {
		t.Errorf("second hit must be FALLBACK_VECTOR wl:2, got %+v", out[1])
	}
	if out[0].Metadata["country"] != "RU" {
		t.Error("fallback candidates must carry the stored metadata")
	}
}

func TestFallback_NeverErrors(t *testing.T) {
	patterns := index.NewPatternIndex()
	f := NewFallback(patterns, index.NewVectorIndex(4),
		&mockVectorizer{err: errors.New("boom")}, 0.5, 0.5, zap.NewNop())

	out := f.Search(context.Background(), "anything", 5)
	if out == nil {
		out = []domain.Candidate{}
	}
	if len(out) != 0 {
		t.Errorf("expected empty result on internal failure, got %+v", out)
	}
}

func TestFallback_MemFuzzyStage(t *testing.T) {
	patterns := index.NewPatternIndex()
	patterns.Add("wl:1", index.Doc{Text: "ivan petrov", EntityType: "person"})

	mem := NewFuzzyMem([]MemEntry{
		{DocID: "wl:1", Text: "Ivan Petrov", EntityType: "person"},
		{DocID: "wl:9", Text: "Ivane Petrov", EntityType: "person",
			Metadata: map[string]string{"country": "GE"}},
	}, DefaultRatioWeights())

	f := NewFallback(patterns, index.NewVectorIndex(4),
		&mockVectorizer{err: errors.New("must not be called")}, 0.5, 0.5, zap.NewNop()).
		WithMemFuzzy(mem)

	out := f.Search(context.Background(), "ivan petrov", 2)
	if len(out) != 2 {
		t.Fatalf("expected pattern hit plus mem-fuzzy top-up, got %+v", out)
	}
	if out[0].DocID != "wl:1" || out[0].SearchMode != domain.ModeFallbackAC {
		t.Errorf("first hit must be the pattern match, got %+v", out[0])
	}
	if out[1].DocID != "wl:9" || out[1].SearchMode != domain.ModeFuzzy {
		t.Errorf("second hit must be the mem-fuzzy match, got %+v", out[1])
	}
	if out[1].Trace["degraded"] != true {
		t.Error("mem-fuzzy hits must be tagged as degraded")
	}
	if out[1].Metadata["country"] != "GE" {
		t.Error("mem-fuzzy hits must carry the corpus metadata")
	}
}

func TestFallback_NoVectorTopUpWhenFull(t *testing.T) {
	patterns := index.NewPatternIndex()
	patterns.Add("wl:1", index.Doc{Text: "ivan petrov"})
	vz := &mockVectorizer{err: errors.New("must not be called")}
	f := NewFallback(patterns, index.NewVectorIndex(4), vz, 0.5, 0.5, zap.NewNop())

	out := f.Search(context.Background(), "ivan petrov", 1)
	if len(out) != 1 || out[0].SearchMode != domain.ModeFallbackAC {
		t.Errorf("expected pattern hit only, got %+v", out)
	}
}
