package db

import (
	"context"
	"time"
)

// Store is the primary watchlist index facade. Consumers depend on
// the narrow sub-interfaces (ISP), not on Store itself.
type Store interface {
	Pinger
	Searcher
	ConnectivityReporter
	Close()
	WaitForReady(ctx context.Context, timeout time.Duration) error
}

// Pinger checks backend connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Searcher provides the three query kinds the screening tiers issue
// against the watchlist FT index.
type Searcher interface {
	SearchExact(ctx context.Context, q *ExactQuery) (*SearchResult, error)
	SearchFuzzy(ctx context.Context, q *FuzzyQuery) (*SearchResult, error)
	SearchKNN(ctx context.Context, q *KNNQuery) (*SearchResult, error)
}

// ConnectivityReporter exposes the backend's last known reachability.
// The escalation layer consults it to short-circuit straight to the
// in-process fallback path instead of burning a timeout per tier.
type ConnectivityReporter interface {
	Connected(ctx context.Context) bool
}
