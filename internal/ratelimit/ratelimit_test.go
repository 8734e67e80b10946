package ratelimit_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tartampluch/go-hebrew-birthday/internal/engine"
	"github.com/tartampluch/go-hebrew-birthday/internal/ratelimit"
	"github.com/tartampluch/go-hebrew-birthday/internal/store"
)

// fakeClock is a settable clock.
type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func sqliteStore(t *testing.T) ratelimit.Store {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	_, err = db.Exec(store.SchemaSQL())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return store.NewRateLimits(db)
}

func TestLimiter_SlidingWindow(t *testing.T) {
	backends := map[string]func(t *testing.T) ratelimit.Store{
		"memory": func(*testing.T) ratelimit.Store { return ratelimit.NewMemoryStore() },
		"sqlite": sqliteStore,
	}

	for name, newStore := range backends {
		t.Run(name, func(t *testing.T) {
			clock := &fakeClock{now: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)}
			l := ratelimit.New(newStore(t))
			l.Clock = clock
			ctx := context.Background()

			for i := 0; i < 3; i++ {
				require.NoError(t, l.Allow(ctx, "user-1_refresh"), "request %d", i+1)
				clock.now = clock.now.Add(time.Second)
			}
			assert.ErrorIs(t, l.Allow(ctx, "user-1_refresh"), engine.ErrRateLimited)

			// Another caller has its own window.
			assert.NoError(t, l.Allow(ctx, "user-2_refresh"))

			clock.now = clock.now.Add(31 * time.Second)
			assert.NoError(t, l.Allow(ctx, "user-1_refresh"))
		})
	}
}

func TestLimiter_RejectionsDoNotExtendWindow(t *testing.T) {
	clock := &fakeClock{now: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)}
	l := &ratelimit.Limiter{Store: ratelimit.NewMemoryStore(), Window: 30 * time.Second, Max: 1, Clock: clock}
	ctx := context.Background()

	require.NoError(t, l.Allow(ctx, "k"))
	clock.now = clock.now.Add(20 * time.Second)
	assert.ErrorIs(t, l.Allow(ctx, "k"), engine.ErrRateLimited)

	clock.now = clock.now.Add(11 * time.Second)
	assert.NoError(t, l.Allow(ctx, "k"))
}
