package redis

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/rueidis"

	"github.com/sanctex-io/sanctex/internal/db"
)

// Compile-time check: Store implements db.Store.
var _ db.Store = (*Store)(nil)

// probeInterval bounds how often Connected re-pings the backend.
const probeInterval = 5 * time.Second

// probeTimeout keeps connectivity probes from stalling a request.
const probeTimeout = 500 * time.Millisecond

// Store implements db.Store via rueidis against a RediSearch-enabled
// Redis holding the watchlist FT index.
type Store struct {
	client rueidis.Client

	mu        sync.Mutex
	connected bool
	probedAt  time.Time
}

// Config holds connection parameters for the watchlist backend.
type Config struct {
	Addrs    []string
	Username string
	Password string
	DB       int
}

// NewStore creates a Redis store via rueidis.
func NewStore(cfg Config) (*Store, error) {
	if len(cfg.Addrs) == 0 {
		return nil, fmt.Errorf("addrs is required")
	}

	client, err := rueidis.NewClient(rueidis.ClientOption{
		InitAddress:  cfg.Addrs,
		Username:     cfg.Username,
		Password:     cfg.Password,
		SelectDB:     cfg.DB,
		DisableCache: true,
		AlwaysRESP2:  true, // FT.SEARCH result parsing expects RESP2 array format
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create client: %w", err)
	}

	return &Store{client: client}, nil
}

// Ping checks connectivity and records the outcome for Connected.
func (s *Store) Ping(ctx context.Context) error {
	cmd := s.client.B().Ping().Build()
	err := s.client.Do(ctx, cmd).Error()
	s.record(err == nil)
	if err != nil {
		return &db.Error{Op: db.OpPing, Err: err}
	}
	return nil
}

// Connected reports the last known backend reachability, re-probing
// at most once per probeInterval. A false result tells the caller to
// take the in-process fallback path without issuing backend queries.
func (s *Store) Connected(ctx context.Context) bool {
	s.mu.Lock()
	fresh := time.Since(s.probedAt) < probeInterval
	connected := s.connected
	s.mu.Unlock()
	if fresh {
		return connected
	}

	probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()
	return s.Ping(probeCtx) == nil
}

func (s *Store) record(ok bool) {
	s.mu.Lock()
	s.connected = ok
	s.probedAt = time.Now()
	s.mu.Unlock()
}

// Close shuts down the client.
func (s *Store) Close() {
	s.client.Close()
}

// WaitForReady polls Ping until the store responds or timeout expires.
func (s *Store) WaitForReady(ctx context.Context, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("timeout waiting for backend: %w", ctx.Err())
		case <-ticker.C:
			if err := s.Ping(ctx); err == nil {
				return nil
			}
		}
	}
}

func (s *Store) do(ctx context.Context, cmd rueidis.Completed) rueidis.RedisResult {
	return s.client.Do(ctx, cmd)
}

func (s *Store) b() rueidis.Builder {
	return s.client.B()
}
