// Package mirror maintains the local fallback copy of watchlist
// entries: the pattern and vector indexes the degraded-mode path
// searches when the primary backend is unreachable.
package mirror

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/sanctex-io/sanctex/internal/index"
)

// vectorBuilder produces the query/document vector for an entry.
type vectorBuilder interface {
	Build(ctx context.Context, text string) ([]float32, error)
}

// Entry is one watchlist record to mirror locally.
type Entry struct {
	DocID      string
	Text       string
	EntityType string
	Metadata   map[string]string
}

// Service loads watchlist entries into the local fallback indexes.
type Service struct {
	patterns   *index.PatternIndex
	vectors    *index.VectorIndex
	vectorizer vectorBuilder
	logger     *zap.Logger
}

// New creates the mirror service. vectors and vectorizer may be nil;
// entries then only land in the pattern index.
func New(patterns *index.PatternIndex, vectors *index.VectorIndex,
	vectorizer vectorBuilder, logger *zap.Logger) *Service {
	return &Service{
		patterns:   patterns,
		vectors:    vectors,
		vectorizer: vectorizer,
		logger:     logger,
	}
}

// Load upserts entries into the fallback indexes. An entry whose
// vector cannot be built still lands in the pattern index; the
// returned failed count covers entries skipped entirely.
func (s *Service) Load(ctx context.Context, entries []Entry) (loaded, failed int) {
	for _, e := range entries {
		if e.DocID == "" || e.Text == "" {
			failed++
			continue
		}

		s.patterns.Add(e.DocID, index.Doc{
			Text:       e.Text,
			EntityType: e.EntityType,
			Metadata:   e.Metadata,
		})

		if s.vectors != nil && s.vectorizer != nil {
			if err := s.vectorize(ctx, e); err != nil {
				s.logger.Warn("mirror vectorization failed",
					zap.String("doc_id", e.DocID), zap.Error(err))
			}
		}
		loaded++
	}
	return loaded, failed
}

func (s *Service) vectorize(ctx context.Context, e Entry) error {
	vec, err := s.vectorizer.Build(ctx, e.Text)
	if err != nil {
		return fmt.Errorf("build vector: %w", err)
	}
	if err := s.vectors.Add(e.DocID, vec); err != nil {
		return fmt.Errorf("index vector: %w", err)
	}
	return nil
}

// Remove drops an entry from both indexes.
func (s *Service) Remove(docID string) {
	s.patterns.Remove(docID)
	if s.vectors != nil {
		s.vectors.Remove(docID)
	}
}

// Len returns the mirrored entry count.
func (s *Service) Len() int { return s.patterns.Len() }
