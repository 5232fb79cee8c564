package mirror

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"

	"github.com/sanctex-io/sanctex/internal/index"
)

type stubVectorizer struct {
	vec []float32
	err error
}

func (s *stubVectorizer) Build(context.Context, string) ([]float32, error) {
	return s.vec, s.err
}

func TestLoad(t *testing.T) {
	patterns := index.NewPatternIndex()
	vectors := index.NewVectorIndex(4)
	svc := New(patterns, vectors, &stubVectorizer{vec: []float32{1, 0, 0, 0}}, zap.NewNop())

	loaded, failed := svc.Load(context.Background(), []Entry{
		{DocID: "wl:1", Text: "Ivan Petrov", EntityType: "person",
			Metadata: map[string]string{"country": "RU"}},
		{DocID: "wl:2", Text: "Acme Trading LLC", EntityType: "org"},
		{DocID: "", Text: "missing id"},
	})

	if loaded != 2 || failed != 1 {
		t.Fatalf("loaded/failed = %d/%d, want 2/1", loaded, failed)
	}
	if patterns.Len() != 2 || vectors.Len() != 2 {
		t.Errorf("index sizes: patterns %d, vectors %d", patterns.Len(), vectors.Len())
	}

	doc, ok := patterns.GetDoc("wl:1")
	if !ok || doc.EntityType != "person" || doc.Metadata["country"] != "RU" {
		t.Errorf("stored doc: %+v, ok=%v", doc, ok)
	}
}

func TestLoad_VectorFailureKeepsPatternEntry(t *testing.T) {
	patterns := index.NewPatternIndex()
	vectors := index.NewVectorIndex(4)
	svc := New(patterns, vectors, &stubVectorizer{err: errors.New("backend down")}, zap.NewNop())

	loaded, failed := svc.Load(context.Background(), []Entry{
		{DocID: "wl:1", Text: "Ivan Petrov"},
	})

	if loaded != 1 || failed != 0 {
		t.Fatalf("loaded/failed = %d/%d, want 1/0", loaded, failed)
	}
	if patterns.Len() != 1 {
		t.Error("pattern entry must survive a vectorization failure")
	}
	if vectors.Len() != 0 {
		t.Error("no vector must be indexed on failure")
	}
}

func TestLoad_PatternOnly(t *testing.T) {
	patterns := index.NewPatternIndex()
	svc := New(patterns, nil, nil, zap.NewNop())

	loaded, failed := svc.Load(context.Background(), []Entry{
		{DocID: "wl:1", Text: "Ivan Petrov"},
	})
	if loaded != 1 || failed != 0 {
		t.Fatalf("loaded/failed = %d/%d", loaded, failed)
	}
	if svc.Len() != 1 {
		t.Errorf("Len = %d, want 1", svc.Len())
	}
}

func TestRemove(t *testing.T) {
	patterns := index.NewPatternIndex()
	vectors := index.NewVectorIndex(4)
	svc := New(patterns, vectors, &stubVectorizer{vec: []float32{1, 0, 0, 0}}, zap.NewNop())

	svc.Load(context.Background(), []Entry{{DocID: "wl:1", Text: "Ivan Petrov"}})
	svc.Remove("wl:1")

	if patterns.Len() != 0 {
		t.Error("pattern entry must be removed")
	}
	if _, ok := patterns.GetDoc("wl:1"); ok {
		t.Error("doc must be gone after removal")
	}
}
