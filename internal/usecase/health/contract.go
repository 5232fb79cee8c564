package health

import "context"

// DBPinger checks primary search backend availability.
type DBPinger interface {
	Ping(ctx context.Context) error
}

// EmbeddingChecker checks embedding provider availability.
type EmbeddingChecker interface {
	HealthCheck(ctx context.Context) error
}

// FallbackReadiness reports whether the degraded-mode indexes hold
// any data. An empty fallback index plus a dead backend means zero
// screening capability, which operators need to see.
type FallbackReadiness interface {
	Len() int
}
