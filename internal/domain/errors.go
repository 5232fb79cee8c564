package domain

import "errors"

// Sentinel errors crossing layer boundaries.
var (
	// ErrBackendUnavailable signals the primary search backend is
	// unreachable; the caller switches to the fallback path.
	ErrBackendUnavailable = errors.New("search backend unavailable")
	// ErrTierTimeout signals a single tier exceeded its deadline;
	// escalation proceeds as if the tier returned nothing.
	ErrTierTimeout = errors.New("search tier timed out")
	// ErrRateLimited signals the per-client request budget is spent.
	ErrRateLimited = errors.New("rate limit exceeded")
	// ErrInvalidQuery signals a query rejected by input validation.
	ErrInvalidQuery = errors.New("invalid query")
	// ErrInvalidConfiguration signals a rejected configuration update.
	ErrInvalidConfiguration = errors.New("invalid configuration")
	// ErrEmbeddingProviderError signals an embedding backend failure.
	ErrEmbeddingProviderError = errors.New("embedding provider error")
)
