package embedding

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"
)

// Cache is a process-local TTL-bounded LRU of query embeddings,
// keyed by preprocessed text. Capacity eviction removes the oldest
// entry; expired entries are discarded on read. Duplicating the cache
// per process is fine — it is a performance optimization, not a
// correctness dependency.
type Cache struct {
	lru        *expirable.LRU[string, []float32]
	cacheTotal *prometheus.CounterVec
}

// NewCache creates an embedding cache with the given capacity and TTL.
// cacheTotal is a counter vec with labels ("cache", "result"); may be nil.
func NewCache(size int, ttl time.Duration, cacheTotal *prometheus.CounterVec) *Cache {
	if size <= 0 {
		size = 1
	}
	return &Cache{
		lru:        expirable.NewLRU[string, []float32](size, nil, ttl),
		cacheTotal: cacheTotal,
	}
}

// Get returns the cached vector for key, if present and unexpired.
func (c *Cache) Get(key string) ([]float32, bool) {
	vec, ok := c.lru.Get(key)
	c.inc(ok)
	return vec, ok
}

// Add stores a vector, evicting the oldest entry when at capacity.
func (c *Cache) Add(key string, vec []float32) {
	c.lru.Add(key, vec)
}

// Len returns the number of live entries.
func (c *Cache) Len() int { return c.lru.Len() }

// Purge drops every entry.
func (c *Cache) Purge() { c.lru.Purge() }

func (c *Cache) inc(hit bool) {
	if c.cacheTotal == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	c.cacheTotal.WithLabelValues("embedding", result).Inc()
}
