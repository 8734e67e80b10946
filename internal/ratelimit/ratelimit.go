// Package ratelimit implements a sliding-window limiter over persisted request timestamps.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/tartampluch/go-hebrew-birthday/internal/config"
	"github.com/tartampluch/go-hebrew-birthday/internal/engine"
)

// Store loads and saves the request timestamps of one key atomically.
type Store interface {
	Update(ctx context.Context, key string, fn func(requests []time.Time) ([]time.Time, error)) error
}

// Limiter admits at most Max requests per key within any Window.
type Limiter struct {
	Store  Store
	Window time.Duration
	Max    int
	Clock  engine.Clock
}

// New creates a limiter with the default refresh quota.
func New(store Store) *Limiter {
	return &Limiter{
		Store:  store,
		Window: config.DefaultRefreshWindow,
		Max:    config.DefaultRefreshMaxRequests,
		Clock:  engine.RealClock{},
	}
}

// Allow records a request for key, or returns engine.ErrRateLimited when the window is full.
// Rejected requests are not recorded.
func (l *Limiter) Allow(ctx context.Context, key string) error {
	clock := l.Clock
	if clock == nil {
		clock = engine.RealClock{}
	}
	now := clock.Now()
	cutoff := now.Add(-l.Window)

	return l.Store.Update(ctx, key, func(requests []time.Time) ([]time.Time, error) {
		recent := requests[:0]
		for _, t := range requests {
			if t.After(cutoff) {
				recent = append(recent, t)
			}
		}
		if len(recent) >= l.Max {
			return nil, engine.ErrRateLimited
		}
		return append(recent, now), nil
	})
}

// MemoryStore keeps windows in process memory.
type MemoryStore struct {
	mu   sync.Mutex
	keys map[string][]time.Time
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{keys: make(map[string][]time.Time)}
}

// Update implements Store.
func (m *MemoryStore) Update(_ context.Context, key string, fn func([]time.Time) ([]time.Time, error)) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	current := append([]time.Time(nil), m.keys[key]...)
	next, err := fn(current)
	if err != nil {
		return err
	}
	m.keys[key] = next
	return nil
}
