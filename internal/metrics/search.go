package metrics

import "github.com/prometheus/client_golang/prometheus"

// Screening Prometheus metrics.
var (
	SearchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sanctex",
			Name:      "searches_total",
			Help:      "Total number of tier invocations",
		},
		[]string{"tier", "status"},
	)

	SearchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "sanctex",
			Name:      "search_duration_seconds",
			Help:      "End-to-end screening request duration in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
		[]string{"mode"},
	)

	EscalationsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "sanctex",
			Name:      "escalations_total",
			Help:      "Requests escalated past the exact-match tier",
		},
	)

	FallbacksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sanctex",
			Name:      "fallbacks_total",
			Help:      "Degraded-mode fallback path activations",
		},
		[]string{"reason"}, // "disconnected" / "error" / "low_confidence"
	)

	RateLimitedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "sanctex",
			Name:      "rate_limited_total",
			Help:      "Requests rejected by the per-client rate limiter",
		},
	)

	CacheTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sanctex",
			Name:      "cache_total",
			Help:      "Cache hits and misses per cache",
		},
		[]string{"cache", "result"}, // cache: "embedding"/"result"; result: "hit"/"miss"
	)

	EmbeddingRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sanctex",
			Name:      "embedding_requests_total",
			Help:      "Total number of embedding backend requests",
		},
		[]string{"provider", "model", "status"},
	)

	EmbeddingRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "sanctex",
			Name:      "embedding_request_duration_seconds",
			Help:      "Embedding backend request duration in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"provider", "model"},
	)
)

var searchMetricsRegistered bool

// RegisterSearchMetrics registers screening metrics. Must be called once from main.
func RegisterSearchMetrics() {
	if searchMetricsRegistered {
		return
	}
	prometheus.MustRegister(SearchesTotal)
	prometheus.MustRegister(SearchDuration)
	prometheus.MustRegister(EscalationsTotal)
	prometheus.MustRegister(FallbacksTotal)
	prometheus.MustRegister(RateLimitedTotal)
	prometheus.MustRegister(CacheTotal)
	prometheus.MustRegister(EmbeddingRequestsTotal)
	prometheus.MustRegister(EmbeddingRequestDuration)
	searchMetricsRegistered = true
}
