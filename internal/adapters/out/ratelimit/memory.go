// Package ratelimit provides the per-client limiter guarding the API.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/bnema/zerowrap"
	"golang.org/x/time/rate"

	"github.com/bnema/berth/internal/boundaries/out"
)

// Ensure MemoryStore implements out.RateLimiter.
var _ out.RateLimiter = (*MemoryStore)(nil)

// Config holds limiter settings.
type Config struct {
	Enabled bool          `mapstructure:"enabled"`
	RPS     float64       `mapstructure:"rps"`
	Burst   int           `mapstructure:"burst"`
	IdleTTL time.Duration `mapstructure:"idle_ttl"`
}

type entry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// MemoryStore keeps one token bucket per key in memory.
// Buckets idle for longer than IdleTTL are evicted on access.
type MemoryStore struct {
	mu        sync.Mutex
	entries   map[string]*entry
	rps       float64
	burst     int
	idleTTL   time.Duration
	lastPrune time.Time
	now       func() time.Time
	log       zerowrap.Logger
}

// NewMemoryStore creates a new in-memory rate limiter store.
func NewMemoryStore(cfg Config, log zerowrap.Logger) *MemoryStore {
	if cfg.RPS <= 0 {
		cfg.RPS = 20
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 40
	}
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = 10 * time.Minute
	}
	return &MemoryStore{
		entries: make(map[string]*entry),
		rps:     cfg.RPS,
		burst:   cfg.Burst,
		idleTTL: cfg.IdleTTL,
		now:     time.Now,
		log:     log,
	}
}

// Allow checks if a request identified by key is allowed.
func (s *MemoryStore) Allow(_ context.Context, key string) bool {
	s.mu.Lock()
	now := s.now()
	if now.Sub(s.lastPrune) >= s.idleTTL {
		s.pruneLocked(now)
	}

	e, ok := s.entries[key]
	if !ok {
		e = &entry{limiter: rate.NewLimiter(rate.Limit(s.rps), s.burst)}
		s.entries[key] = e
	}
	e.lastSeen = now
	s.mu.Unlock()

	allowed := e.limiter.AllowN(now, 1)
	if !allowed {
		s.log.Debug().
			Str(zerowrap.FieldLayer, "adapter").
			Str(zerowrap.FieldAdapter, "ratelimit").
			Str("key", key).Msg("rate limited")
	}
	return allowed
}

// Len returns the number of tracked keys.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func (s *MemoryStore) pruneLocked(now time.Time) {
	for key, e := range s.entries {
		if now.Sub(e.lastSeen) > s.idleTTL {
			delete(s.entries, key)
		}
	}
	s.lastPrune = now
}
