package screen

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.uber.org/zap"

	"github.com/sanctex-io/sanctex/internal/domain"
	"github.com/sanctex-io/sanctex/internal/metrics"
	"github.com/sanctex-io/sanctex/internal/usecase/health"
)

// cachedResult keeps the original query next to the cached candidate
// list so pattern invalidation can match on query text, not on the
// opaque cache key.
type cachedResult struct {
	query string
	cands []domain.Candidate
}

// Service is the screening facade.
type Service struct {
	finder     finder
	fallback   fallbackPath
	embedCache embeddingCache
	health     healthChecker
	logger     *zap.Logger

	mu  sync.RWMutex
	cfg Config

	limiter *limiter
	results *expirable.LRU[string, cachedResult]
	stats   *stats
}

// New creates the facade. embedCache and healthSvc may be nil.
func New(f finder, fb fallbackPath, embedCache embeddingCache, healthSvc healthChecker,
	cfg Config, logger *zap.Logger) (*Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Service{
		finder:     f,
		fallback:   fb,
		embedCache: embedCache,
		health:     healthSvc,
		logger:     logger,
		cfg:        cfg,
		limiter:    newLimiter(cfg.RequestsPerMinute),
		results:    expirable.NewLRU[string, cachedResult](cfg.ResultCacheSize, nil, cfg.ResultCacheTTL),
		stats:      newStats(),
	}, nil
}

// Search screens one query. rawText is the pre-normalization input,
// used only for anchor extraction downstream. The returned trace is
// always populated, including on zero-hit and degraded responses.
func (s *Service) Search(ctx context.Context, query, rawText string, opts domain.SearchOpts) ([]domain.Candidate, *domain.SearchTrace, error) {
	s.stats.recordRequest()
	start := time.Now()

	sanitized := Sanitize(query)
	if sanitized == "" {
		s.stats.recordError()
		return nil, nil, fmt.Errorf("%w: empty query after sanitization", domain.ErrInvalidQuery)
	}
	if rawText == "" {
		rawText = query
	}

	s.applyDefaults(&opts)
	opts.Normalize()
	if err := opts.Validate(); err != nil {
		s.stats.recordError()
		return nil, nil, err
	}

	if !s.limiter.allow(opts.ClientID) {
		s.stats.recordRateLimited()
		metrics.RateLimitedTotal.Inc()
		return nil, nil, fmt.Errorf("%w: client %q", domain.ErrRateLimited, opts.ClientID)
	}

	trace := domain.NewTrace(sanitized)
	key := opts.CacheKey(sanitized)

	results := s.resultCache()
	if entry, ok := results.Get(key); ok {
		s.stats.recordCacheHit()
		metrics.CacheTotal.WithLabelValues("result", "hit").Inc()
		trace.AddStep(opts.Mode, sanitized, 0, entry.cands, map[string]any{"cache_hit": true})
		trace.Finalize()
		return cloneCands(entry.cands), trace, nil
	}
	s.stats.recordCacheMiss()
	metrics.CacheTotal.WithLabelValues("result", "miss").Inc()

	cands, err := s.findSafe(ctx, sanitized, rawText, &opts, trace)
	if err != nil {
		// Last resort: a broken tier pipeline still must answer.
		// "No matches" is reviewable downstream; a crash halts the
		// whole screening batch.
		s.stats.recordError()
		s.logger.Error("tier pipeline failed, attempting fallback path",
			zap.String("client_id", opts.ClientID), zap.Error(err))
		metrics.FallbacksTotal.WithLabelValues("error").Inc()

		fbStart := time.Now()
		cands = s.fallback.Search(ctx, sanitized, opts.TopK)
		trace.AddStep(domain.ModeFallbackAC, sanitized, time.Since(fbStart), cands, map[string]any{
			"recovered_from": err.Error(),
		})
	}

	out := s.postProcess(cands, &opts)
	results.Add(key, cachedResult{query: sanitized, cands: cloneCands(out)})

	s.accountTrace(trace)
	s.stats.recordLatency(time.Since(start))
	metrics.SearchDuration.WithLabelValues(string(opts.Mode)).Observe(time.Since(start).Seconds())

	trace.Finalize()
	return out, trace, nil
}

// findSafe shields the facade from panics inside the cascade.
func (s *Service) findSafe(ctx context.Context, normalized, raw string,
	opts *domain.SearchOpts, trace *domain.SearchTrace) (cands []domain.Candidate, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("tier pipeline panic: %v", r)
		}
	}()
	return s.finder.FindCandidates(ctx, normalized, raw, opts, trace)
}

// postProcess applies the response filters and redaction. Output is
// cloned; cached entries and trace hits keep unredacted values
// in-process only.
func (s *Service) postProcess(cands []domain.Candidate, opts *domain.SearchOpts) []domain.Candidate {
	out := make([]domain.Candidate, 0, len(cands))
	for i := range cands {
		c := &cands[i]
		if c.Score < opts.Threshold {
			continue
		}
		if len(opts.EntityTypes) > 0 && !containsFold(opts.EntityTypes, c.EntityType) {
			continue
		}
		if !opts.MatchesMetadata(c) {
			continue
		}
		out = append(out, c.Clone())
	}
	redact(out)
	return out
}

func (s *Service) applyDefaults(opts *domain.SearchOpts) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if opts.Threshold == 0 {
		opts.Threshold = s.cfg.DefaultThreshold
	}
	if opts.EscalationThreshold == 0 {
		opts.EscalationThreshold = s.cfg.EscalationThreshold
	}
}

// accountTrace derives escalation/fallback counters from the trace
// instead of plumbing flags through the cascade.
func (s *Service) accountTrace(trace *domain.SearchTrace) {
	escalated, degraded := false, false
	for _, step := range trace.Steps {
		switch step.Tier {
		case domain.ModeFuzzy:
			escalated = true
		case domain.ModeFallbackAC, domain.ModeFallbackVector:
			degraded = true
		}
	}
	if escalated {
		s.stats.recordEscalation()
	}
	if degraded {
		s.stats.recordFallback()
	}
}

// HealthCheck aggregates component health.
func (s *Service) HealthCheck(ctx context.Context) health.Report {
	if s.health == nil {
		return health.Report{Status: health.Healthy, Checks: map[string]health.CheckResult{}}
	}
	return s.health.Check(ctx)
}

// Metrics returns a snapshot of the running counters.
func (s *Service) Metrics() Stats { return s.stats.snapshot() }

// ClearEmbeddingCache drops every cached query vector.
func (s *Service) ClearEmbeddingCache() {
	if s.embedCache != nil {
		s.embedCache.Purge()
	}
}

// ClearSearchCache drops every cached result list.
func (s *Service) ClearSearchCache() { s.resultCache().Purge() }

// resultCache returns the current cache instance; UpdateConfiguration
// may swap it while requests are in flight.
func (s *Service) resultCache() *expirable.LRU[string, cachedResult] {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.results
}

// InvalidateSearchCache removes cached results whose query contains
// the pattern. Returns the number of entries removed.
func (s *Service) InvalidateSearchCache(pattern string) int {
	pattern = strings.ToLower(pattern)
	results := s.resultCache()
	removed := 0
	for _, key := range results.Keys() {
		entry, ok := results.Peek(key)
		if !ok {
			continue
		}
		if pattern == "" || strings.Contains(strings.ToLower(entry.query), pattern) {
			results.Remove(key)
			removed++
		}
	}
	return removed
}

// CleanupExpiredCacheEntries sweeps the rate limiter's idle clients
// and reports the live result-cache size. The result cache expires
// its own entries.
func (s *Service) CleanupExpiredCacheEntries() int {
	s.limiter.sweep()
	return s.resultCache().Len()
}

// UpdateConfiguration swaps the runtime configuration. Validation is
// eager: a rejected config leaves the previous one fully in effect.
func (s *Service) UpdateConfiguration(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	old := s.cfg
	s.cfg = cfg
	s.limiter.setLimit(cfg.RequestsPerMinute)

	if cfg.ResultCacheSize != old.ResultCacheSize || cfg.ResultCacheTTL != old.ResultCacheTTL {
		s.results = expirable.NewLRU[string, cachedResult](cfg.ResultCacheSize, nil, cfg.ResultCacheTTL)
	}

	s.logger.Info("configuration updated",
		zap.Int("requests_per_minute", cfg.RequestsPerMinute),
		zap.Int("result_cache_size", cfg.ResultCacheSize),
		zap.Duration("result_cache_ttl", cfg.ResultCacheTTL),
	)
	return nil
}

// Config returns the active configuration.
func (s *Service) Config() Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

func cloneCands(cands []domain.Candidate) []domain.Candidate {
	out := make([]domain.Candidate, len(cands))
	for i := range cands {
		out[i] = cands[i].Clone()
	}
	return out
}

func containsFold(list []string, s string) bool {
	for _, v := range list {
		if strings.EqualFold(v, s) {
			return true
		}
	}
	return false
}
