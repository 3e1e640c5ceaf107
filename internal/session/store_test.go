package session

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/normanking/wayfarer/internal/trip"
)

func testStores(t *testing.T) map[string]Store {
	t.Helper()

	sqlite, err := NewSQLiteStore(filepath.Join(t.TempDir(), "sessions.db"))
	require.NoError(t, err)
	t.Cleanup(func() { sqlite.Close() })

	return map[string]Store{
		"memory": NewMemoryStore(),
		"sqlite": sqlite,
	}
}

func TestStoreRoundTrip(t *testing.T) {
	for name, store := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			s := NewSession()
			s.Context.Destination = trip.StringSlot{Value: "tokyo", Status: trip.SlotPresent}
			s.Context.DurationDays = trip.IntSlot{Value: 5, Status: trip.SlotPresent}
			s.AppendTurn("user", "plan a trip to tokyo")
			require.NoError(t, store.Save(ctx, s))

			loaded, err := store.Load(ctx, s.ID)
			require.NoError(t, err)
			assert.Equal(t, s.ID, loaded.ID)
			assert.Equal(t, "tokyo", loaded.Context.Destination.Value)
			assert.True(t, loaded.Context.Destination.Present())
			require.Len(t, loaded.History, 1)
			assert.Equal(t, "plan a trip to tokyo", loaded.History[0].Content)
		})
	}
}

func TestStoreLoadMissing(t *testing.T) {
	for name, store := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			_, err := store.Load(context.Background(), "nope")
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestStoreSaveOverwrites(t *testing.T) {
	for name, store := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			s := NewSession()
			require.NoError(t, store.Save(ctx, s))

			s.Context.Destination = trip.StringSlot{Value: "rome", Status: trip.SlotPresent}
			require.NoError(t, store.Save(ctx, s))

			loaded, err := store.Load(ctx, s.ID)
			require.NoError(t, err)
			assert.Equal(t, "rome", loaded.Context.Destination.Value)
		})
	}
}

func TestStoreDelete(t *testing.T) {
	for name, store := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			s := NewSession()
			require.NoError(t, store.Save(ctx, s))
			require.NoError(t, store.Delete(ctx, s.ID))

			_, err := store.Load(ctx, s.ID)
			assert.ErrorIs(t, err, ErrNotFound)

			assert.NoError(t, store.Delete(ctx, "missing"))
		})
	}
}

func TestStoreExpireMarksWithoutDeleting(t *testing.T) {
	for name, store := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			s := NewSession()
			require.NoError(t, store.Save(ctx, s))
			require.NoError(t, store.Expire(ctx, s.ID))

			// The record survives expiry; only loading is refused.
			_, err := store.Load(ctx, s.ID)
			assert.ErrorIs(t, err, ErrExpired)
			_, err = store.Load(ctx, "missing")
			assert.ErrorIs(t, err, ErrNotFound)

			// A fresh save for the same ID clears the mark.
			require.NoError(t, store.Save(ctx, s))
			_, err = store.Load(ctx, s.ID)
			assert.NoError(t, err)

			assert.NoError(t, store.Expire(ctx, "missing"))
		})
	}
}

func TestStoreExpireBefore(t *testing.T) {
	for name, store := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			old := NewSession()
			old.LastActive = time.Now().Add(-2 * time.Hour)
			require.NoError(t, store.Save(ctx, old))

			fresh := NewSession()
			require.NoError(t, store.Save(ctx, fresh))

			n, err := store.ExpireBefore(ctx, time.Now().Add(-time.Hour))
			require.NoError(t, err)
			assert.Equal(t, 1, n)

			_, err = store.Load(ctx, old.ID)
			assert.ErrorIs(t, err, ErrExpired)
			_, err = store.Load(ctx, fresh.ID)
			assert.NoError(t, err)

			// Already-marked sessions do not count again.
			n, err = store.ExpireBefore(ctx, time.Now().Add(-time.Hour))
			require.NoError(t, err)
			assert.Equal(t, 0, n)
		})
	}
}

func TestStoreIsolation(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	s := NewSession()
	s.Context.Destination = trip.StringSlot{Value: "tokyo", Status: trip.SlotPresent}
	require.NoError(t, store.Save(ctx, s))

	// Mutating the original after save must not leak into the store.
	s.Context.Destination.Value = "osaka"

	loaded, err := store.Load(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, "tokyo", loaded.Context.Destination.Value)
}

func TestSessionHistoryBounded(t *testing.T) {
	s := NewSession()
	for i := 0; i < maxHistory+10; i++ {
		s.AppendTurn("user", "turn")
	}
	assert.Len(t, s.History, maxHistory)
}

func TestManagerGetCreatesAndRecovers(t *testing.T) {
	m := NewManager(NewMemoryStore())
	ctx := context.Background()

	fresh, err := m.Get(ctx, "")
	require.NoError(t, err)
	assert.NotEmpty(t, fresh.ID)

	// Unknown ID yields an empty session with that ID.
	named, err := m.Get(ctx, "abc-123")
	require.NoError(t, err)
	assert.Equal(t, "abc-123", named.ID)

	named.Context.Destination = trip.StringSlot{Value: "rome", Status: trip.SlotPresent}
	require.NoError(t, m.Save(ctx, named))

	again, err := m.Get(ctx, "abc-123")
	require.NoError(t, err)
	assert.Equal(t, "rome", again.Context.Destination.Value)
}

func TestManagerExpiresIdleSession(t *testing.T) {
	store := NewMemoryStore()
	m := NewManager(store, WithInactivity(10*time.Millisecond))
	ctx := context.Background()

	s := NewSession()
	s.ID = "idle"
	s.Context.Destination = trip.StringSlot{Value: "rome", Status: trip.SlotPresent}
	s.LastActive = time.Now().Add(-time.Minute)
	require.NoError(t, store.Save(ctx, s))

	got, err := m.Get(ctx, "idle")
	require.NoError(t, err)
	assert.False(t, got.Context.Destination.Present(), "idle session replaced with a fresh one")

	// The idle session was marked, not deleted.
	_, err = store.Load(ctx, "idle")
	assert.ErrorIs(t, err, ErrExpired)
	assert.Equal(t, 1, store.Len())
}

func TestManagerAcquireSerializesPerSession(t *testing.T) {
	m := NewManager(NewMemoryStore())

	var mu sync.Mutex
	var inTurn, peak int

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release := m.Acquire("same-session")
			defer release()

			mu.Lock()
			inTurn++
			if inTurn > peak {
				peak = inTurn
			}
			mu.Unlock()

			time.Sleep(5 * time.Millisecond)

			mu.Lock()
			inTurn--
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, peak, "one turn at a time per session")
}

func TestManagerSweep(t *testing.T) {
	store := NewMemoryStore()
	m := NewManager(store,
		WithInactivity(10*time.Millisecond),
		WithSweepInterval(10*time.Millisecond),
	)
	ctx := context.Background()

	s := NewSession()
	s.LastActive = time.Now().Add(-time.Minute)
	require.NoError(t, store.Save(ctx, s))

	m.Start()
	defer m.Stop()

	require.Eventually(t, func() bool {
		_, err := store.Load(ctx, s.ID)
		return errors.Is(err, ErrExpired)
	}, time.Second, 10*time.Millisecond)

	// Sweeping marks; retention still owns deletion.
	assert.Equal(t, 1, store.Len())
}
