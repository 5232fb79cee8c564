// Package screen is the screening facade: input hygiene, rate
// limiting, result caching, post-filtering and redaction layered
// around the escalation controller.
package screen

import (
	"context"
	"fmt"
	"time"

	"github.com/sanctex-io/sanctex/internal/domain"
	"github.com/sanctex-io/sanctex/internal/usecase/health"
)

// finder runs the tier cascade (ISP over the escalation controller).
type finder interface {
	FindCandidates(ctx context.Context, normalized, raw string,
		opts *domain.SearchOpts, trace *domain.SearchTrace) ([]domain.Candidate, error)
}

// fallbackPath is the last-resort local search, consulted directly
// when the cascade itself blows up.
type fallbackPath interface {
	Search(ctx context.Context, query string, topK int) []domain.Candidate
}

// embeddingCache is the vectorizer's cache, managed through the
// facade's cache-administration surface.
type embeddingCache interface {
	Purge()
	Len() int
}

// healthChecker aggregates component health.
type healthChecker interface {
	Check(ctx context.Context) health.Report
}

// Config is the facade's runtime-adjustable configuration.
type Config struct {
	RequestsPerMinute   int
	ResultCacheSize     int
	ResultCacheTTL      time.Duration
	DefaultThreshold    float64
	EscalationThreshold float64
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		RequestsPerMinute:   120,
		ResultCacheSize:     1024,
		ResultCacheTTL:      5 * time.Minute,
		DefaultThreshold:    domain.DefaultThreshold,
		EscalationThreshold: domain.DefaultEscalationThreshold,
	}
}

// Validate rejects configurations that cannot be applied.
func (c Config) Validate() error {
	if c.RequestsPerMinute < 0 {
		return fmt.Errorf("%w: requests_per_minute must be >= 0", domain.ErrInvalidConfiguration)
	}
	if c.ResultCacheSize < 0 {
		return fmt.Errorf("%w: result_cache_size must be >= 0", domain.ErrInvalidConfiguration)
	}
	if c.DefaultThreshold < 0 || c.DefaultThreshold > 1 {
		return fmt.Errorf("%w: default_threshold outside [0,1]", domain.ErrInvalidConfiguration)
	}
	if c.EscalationThreshold < 0 || c.EscalationThreshold > 1 {
		return fmt.Errorf("%w: escalation_threshold outside [0,1]", domain.ErrInvalidConfiguration)
	}
	return nil
}
