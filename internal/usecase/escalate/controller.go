package escalate

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/sanctex-io/sanctex/internal/domain"
	"github.com/sanctex-io/sanctex/internal/metrics"
	"github.com/sanctex-io/sanctex/internal/usecase/fusion"
)

// Controller walks the tier cascade for one request. Tiers run
// strictly sequentially; each escalation decision depends on the
// previous tier's results.
type Controller struct {
	exact    exactTier
	fuzzy    fuzzyTier
	vector   vectorTier
	fallback fallbackPath
	fuser    *fusion.Fuser
	conn     connectivity

	thresholds Thresholds
	logger     *zap.Logger
}

// New wires the controller. conn may be nil when the backend exposes
// no connectivity signal; the fallback path then only activates on
// errors.
func New(exact exactTier, fuzzy fuzzyTier, vector vectorTier, fallback fallbackPath,
	fuser *fusion.Fuser, conn connectivity, thresholds Thresholds, logger *zap.Logger) *Controller {
	return &Controller{
		exact:      exact,
		fuzzy:      fuzzy,
		vector:     vector,
		fallback:   fallback,
		fuser:      fuser,
		conn:       conn,
		thresholds: thresholds,
		logger:     logger,
	}
}

// FindCandidates runs the cascade and returns the fused candidate
// list. Every tier invocation lands in the trace with the escalation
// decision that followed it; the trace is mandatory audit output, not
// instrumentation.
func (c *Controller) FindCandidates(ctx context.Context, normalized, raw string,
	opts *domain.SearchOpts, trace *domain.SearchTrace) ([]domain.Candidate, error) {

	if c.conn != nil && !c.conn.Connected(ctx) {
		c.logger.Warn("primary backend disconnected, using fallback path",
			zap.String("client_id", opts.ClientID))
		metrics.FallbacksTotal.WithLabelValues("disconnected").Inc()
		return c.runFallback(ctx, normalized, opts, trace, map[string]any{
			"adapter_connected": false,
		}), nil
	}

	if opts.Mode == domain.ModeVector {
		return c.vectorOnly(ctx, normalized, opts, trace)
	}

	ac, err := c.timedTier(ctx, domain.ModeAC, normalized, opts, trace, nil, func() ([]domain.Candidate, error) {
		return c.exact.Search(ctx, normalized, opts.TopK)
	})
	if err != nil {
		if errors.Is(err, domain.ErrBackendUnavailable) {
			metrics.FallbacksTotal.WithLabelValues("error").Inc()
			return c.runFallback(ctx, normalized, opts, trace, map[string]any{
				"adapter_connected": false,
				"exact_error":       err.Error(),
			}), nil
		}
		return nil, err
	}

	if opts.Mode == domain.ModeAC {
		return c.fuser.Combine([]fusion.Source{c.fuser.ACSource(ac)}, opts), nil
	}

	// HYBRID from here on.
	if !c.shouldEscalate(ac, opts) {
		c.annotateLastStep(trace, map[string]any{
			"should_escalate": false,
			"best_score":      domain.BestScore(ac),
		})
		return c.fuser.Combine([]fusion.Source{c.fuser.ACSource(ac)}, opts), nil
	}

	metrics.EscalationsTotal.Inc()
	c.annotateLastStep(trace, map[string]any{
		"should_escalate": true,
		"best_score":      domain.BestScore(ac),
	})

	fuzzy := c.optionalTier(ctx, domain.ModeFuzzy, normalized, opts, trace, func() ([]domain.Candidate, error) {
		return c.fuzzy.Search(ctx, normalized, opts.TopK)
	})

	if c.fuzzySufficient(fuzzy) {
		c.annotateLastStep(trace, map[string]any{
			"fuzzy_sufficient": true,
			"best_score":       domain.BestScore(fuzzy),
		})
		return c.fuser.Combine([]fusion.Source{
			c.fuser.ACSource(ac),
			c.fuser.OtherSource(fuzzy),
		}, opts), nil
	}
	c.annotateLastStep(trace, map[string]any{
		"fuzzy_sufficient": false,
		"best_score":       domain.BestScore(fuzzy),
	})

	vector := c.optionalTier(ctx, domain.ModeVector, normalized, opts, trace, func() ([]domain.Candidate, error) {
		return c.vector.Search(ctx, normalized, opts.TopK)
	})

	sources := []fusion.Source{
		c.fuser.ACSource(ac),
		c.fuser.OtherSource(fuzzy),
		c.fuser.OtherSource(vector),
	}

	if c.shouldUseVectorFallback(ac, vector) {
		metrics.FallbacksTotal.WithLabelValues("low_confidence").Inc()
		rescored := c.optionalTier(ctx, domain.ModeFallbackVector, normalized, opts, trace, func() ([]domain.Candidate, error) {
			return c.vector.SearchRescored(ctx, normalized, raw, opts.TopK)
		})
		sources = append(sources, c.fuser.OtherSource(rescored))
	}

	return c.fuser.Combine(sources, opts), nil
}

// vectorOnly serves explicit VECTOR-mode requests: the exact tier is
// skipped and the trace records that it was skipped, not just absent.
func (c *Controller) vectorOnly(ctx context.Context, query string,
	opts *domain.SearchOpts, trace *domain.SearchTrace) ([]domain.Candidate, error) {

	trace.AddStep(domain.ModeAC, query, 0, nil, map[string]any{
		"skipped": true,
		"reason":  "vector-only request",
	})

	vector, err := c.timedTier(ctx, domain.ModeVector, query, opts, trace, nil, func() ([]domain.Candidate, error) {
		return c.vector.Search(ctx, query, opts.TopK)
	})
	if err != nil {
		if errors.Is(err, domain.ErrBackendUnavailable) {
			metrics.FallbacksTotal.WithLabelValues("error").Inc()
			return c.runFallback(ctx, query, opts, trace, map[string]any{
				"adapter_connected": false,
			}), nil
		}
		return nil, err
	}

	return c.fuser.Combine([]fusion.Source{
		c.fuser.ACSource(nil),
		c.fuser.OtherSource(vector),
	}, opts), nil
}

// timedTier runs one tier, records the trace step and counters, and
// returns the tier's result. Timeouts degrade to zero results.
func (c *Controller) timedTier(ctx context.Context, tier domain.Mode, query string,
	opts *domain.SearchOpts, trace *domain.SearchTrace, meta map[string]any,
	run func() ([]domain.Candidate, error)) ([]domain.Candidate, error) {

	start := time.Now()
	cands, err := run()
	elapsed := time.Since(start)

	switch {
	case err == nil:
		metrics.SearchesTotal.WithLabelValues(string(tier), "ok").Inc()
		trace.AddStep(tier, query, elapsed, cands, meta)
		return cands, nil
	case errors.Is(err, domain.ErrTierTimeout):
		metrics.SearchesTotal.WithLabelValues(string(tier), "timeout").Inc()
		c.logger.Warn("tier timed out", zap.String("tier", string(tier)), zap.Error(err))
		trace.AddStep(tier, query, elapsed, nil, map[string]any{"timeout": true})
		return nil, nil
	default:
		metrics.SearchesTotal.WithLabelValues(string(tier), "error").Inc()
		trace.AddStep(tier, query, elapsed, nil, map[string]any{"error": err.Error()})
		return nil, err
	}
}

// optionalTier is timedTier for tiers whose failure must not fail the
// request: any error degrades to zero results.
func (c *Controller) optionalTier(ctx context.Context, tier domain.Mode, query string,
	opts *domain.SearchOpts, trace *domain.SearchTrace,
	run func() ([]domain.Candidate, error)) []domain.Candidate {

	cands, err := c.timedTier(ctx, tier, query, opts, trace, nil, run)
	if err != nil {
		c.logger.Warn("tier failed, continuing cascade",
			zap.String("tier", string(tier)), zap.Error(err))
		return nil
	}
	return cands
}

func (c *Controller) runFallback(ctx context.Context, query string,
	opts *domain.SearchOpts, trace *domain.SearchTrace, meta map[string]any) []domain.Candidate {

	start := time.Now()
	cands := c.fallback.Search(ctx, query, opts.TopK)
	trace.AddStep(domain.ModeFallbackAC, query, time.Since(start), cands, meta)
	metrics.SearchesTotal.WithLabelValues("fallback", "ok").Inc()
	return cands
}

// shouldEscalate: escalation happens when the exact tier came back
// empty, or when its best hit is below the request's escalation
// threshold. Disabled escalation always wins.
func (c *Controller) shouldEscalate(ac []domain.Candidate, opts *domain.SearchOpts) bool {
	if !opts.EnableEscalation {
		return false
	}
	if len(ac) == 0 {
		return true
	}
	return domain.BestScore(ac) < opts.EscalationThreshold
}

// fuzzySufficient: the fuzzy tier resolves the request when one hit
// reaches high confidence, or its best hit clears 1.1x the minimum.
func (c *Controller) fuzzySufficient(fuzzy []domain.Candidate) bool {
	if len(fuzzy) == 0 {
		return false
	}
	best := domain.BestScore(fuzzy)
	return best >= c.thresholds.FuzzyHighConfidence ||
		best >= fuzzyMinimumMargin*c.thresholds.FuzzyMinimum
}

// shouldUseVectorFallback: the vector-fallback variant runs when
// exact match plainly failed (no hits or a near-random best score) or
// when vector dramatically outperforms it.
func (c *Controller) shouldUseVectorFallback(ac, vector []domain.Candidate) bool {
	if len(ac) == 0 {
		return true
	}
	bestAC := domain.BestScore(ac)
	if bestAC < c.thresholds.ACHardFloor {
		return true
	}
	return domain.BestScore(vector) > c.thresholds.VectorOutperform*bestAC
}

// annotateLastStep merges decision metadata into the most recent
// trace step so the audit record shows why the cascade moved on.
func (c *Controller) annotateLastStep(trace *domain.SearchTrace, meta map[string]any) {
	if trace == nil || len(trace.Steps) == 0 {
		return
	}
	step := &trace.Steps[len(trace.Steps)-1]
	if step.Meta == nil {
		step.Meta = make(map[string]any, len(meta))
	}
	for k, v := range meta {
		step.Meta[k] = v
	}
}
