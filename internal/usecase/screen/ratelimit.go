package screen

import (
	"sync"
	"time"
)

// rateWindow is the sliding-window length for per-client limiting.
const rateWindow = time.Minute

// limiter is a sliding-window rate limiter keyed by client id.
type limiter struct {
	mu      sync.Mutex
	limit   int
	clients map[string][]time.Time
	now     func() time.Time
}

func newLimiter(requestsPerMinute int) *limiter {
	return &limiter{
		limit:   requestsPerMinute,
		clients: make(map[string][]time.Time),
		now:     time.Now,
	}
}

// allow records one request and reports whether the client stays
// within the window. limit <= 0 disables limiting.
func (l *limiter) allow(clientID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.limit <= 0 {
		return true
	}

	now := l.now()
	cutoff := now.Add(-rateWindow)

	stamps := l.clients[clientID]
	kept := stamps[:0]
	for _, s := range stamps {
		if s.After(cutoff) {
			kept = append(kept, s)
		}
	}

	if len(kept) >= l.limit {
		l.clients[clientID] = kept
		return false
	}
	l.clients[clientID] = append(kept, now)
	return true
}

// setLimit swaps the per-minute limit; existing windows keep counting.
func (l *limiter) setLimit(requestsPerMinute int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.limit = requestsPerMinute
}

// sweep drops clients whose whole window has expired. Called from the
// cache-cleanup path so idle clients do not accumulate forever.
func (l *limiter) sweep() {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := l.now().Add(-rateWindow)
	for id, stamps := range l.clients {
		live := false
		for _, s := range stamps {
			if s.After(cutoff) {
				live = true
				break
			}
		}
		if !live {
			delete(l.clients, id)
		}
	}
}
