package screen

import (
	"sort"
	"sync"
	"time"
)

// latencyWindowSize bounds the rolling latency sample.
const latencyWindowSize = 512

// Stats is a point-in-time snapshot of the facade's running counters.
type Stats struct {
	Requests      int64         `json:"requests"`
	Errors        int64         `json:"errors"`
	RateLimited   int64         `json:"rate_limited"`
	CacheHits     int64         `json:"cache_hits"`
	CacheMisses   int64         `json:"cache_misses"`
	Escalations   int64         `json:"escalations"`
	Fallbacks     int64         `json:"fallbacks"`
	AvgLatency    time.Duration `json:"avg_latency"`
	P95Latency    time.Duration `json:"p95_latency"`
	LatencySample int           `json:"latency_sample"`
}

// stats tracks running counters and a bounded latency ring.
type stats struct {
	mu sync.Mutex

	requests    int64
	errors      int64
	rateLimited int64
	cacheHits   int64
	cacheMisses int64
	escalations int64
	fallbacks   int64

	latencies []time.Duration
	next      int
	filled    bool
}

func newStats() *stats {
	return &stats{latencies: make([]time.Duration, latencyWindowSize)}
}

func (s *stats) recordRequest()     { s.mu.Lock(); s.requests++; s.mu.Unlock() }
func (s *stats) recordError()       { s.mu.Lock(); s.errors++; s.mu.Unlock() }
func (s *stats) recordRateLimited() { s.mu.Lock(); s.rateLimited++; s.mu.Unlock() }
func (s *stats) recordCacheHit()    { s.mu.Lock(); s.cacheHits++; s.mu.Unlock() }
func (s *stats) recordCacheMiss()   { s.mu.Lock(); s.cacheMisses++; s.mu.Unlock() }
func (s *stats) recordEscalation()  { s.mu.Lock(); s.escalations++; s.mu.Unlock() }
func (s *stats) recordFallback()    { s.mu.Lock(); s.fallbacks++; s.mu.Unlock() }

func (s *stats) recordLatency(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.latencies[s.next] = d
	s.next++
	if s.next == len(s.latencies) {
		s.next = 0
		s.filled = true
	}
}

// snapshot computes the averages on demand; p95 sorts a copy of the
// sample, which is bounded and cheap.
func (s *stats) snapshot() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := s.next
	if s.filled {
		n = len(s.latencies)
	}

	out := Stats{
		Requests:      s.requests,
		Errors:        s.errors,
		RateLimited:   s.rateLimited,
		CacheHits:     s.cacheHits,
		CacheMisses:   s.cacheMisses,
		Escalations:   s.escalations,
		Fallbacks:     s.fallbacks,
		LatencySample: n,
	}
	if n == 0 {
		return out
	}

	sample := make([]time.Duration, n)
	copy(sample, s.latencies[:n])
	sort.Slice(sample, func(i, j int) bool { return sample[i] < sample[j] })

	var total time.Duration
	for _, d := range sample {
		total += d
	}
	out.AvgLatency = total / time.Duration(n)

	idx := (n * 95) / 100
	if idx >= n {
		idx = n - 1
	}
	out.P95Latency = sample[idx]
	return out
}
