package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	// DefaultInactivity is how long a session may idle before expiry.
	DefaultInactivity = 30 * time.Minute

	// DefaultSweepInterval is how often idle sessions are marked expired.
	DefaultSweepInterval = 5 * time.Minute
)

// Manager mediates all session access. Each session has its own lock so a
// session processes one turn at a time while distinct sessions proceed
// concurrently.
type Manager struct {
	store      Store
	inactivity time.Duration
	sweepEvery time.Duration
	logger     zerolog.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithInactivity sets the idle timeout after which sessions expire.
func WithInactivity(d time.Duration) ManagerOption {
	return func(m *Manager) {
		if d > 0 {
			m.inactivity = d
		}
	}
}

// WithSweepInterval sets how often the expiry sweep runs.
func WithSweepInterval(d time.Duration) ManagerOption {
	return func(m *Manager) {
		if d > 0 {
			m.sweepEvery = d
		}
	}
}

// NewManager creates a manager over the given store. Call Start to enable
// the background expiry sweep.
func NewManager(store Store, opts ...ManagerOption) *Manager {
	m := &Manager{
		store:      store,
		inactivity: DefaultInactivity,
		sweepEvery: DefaultSweepInterval,
		logger:     log.With().Str("component", "session").Logger(),
		locks:      make(map[string]*sync.Mutex),
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Acquire locks a session for exclusive turn processing. The returned
// release function must be called when the turn completes.
func (m *Manager) Acquire(id string) (release func()) {
	m.mu.Lock()
	lock, ok := m.locks[id]
	if !ok {
		lock = &sync.Mutex{}
		m.locks[id] = lock
	}
	m.mu.Unlock()

	lock.Lock()
	return lock.Unlock
}

// Get loads an existing session or creates a fresh one when the ID is empty
// or unknown, or when the stored session idled past the inactivity window.
func (m *Manager) Get(ctx context.Context, id string) (*Session, error) {
	if id == "" {
		return NewSession(), nil
	}

	sess, err := m.store.Load(ctx, id)
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrExpired) {
		s := NewSession()
		s.ID = id
		return s, nil
	}
	if err != nil {
		return nil, err
	}

	if time.Since(sess.LastActive) > m.inactivity {
		m.logger.Info().Str("session", id).Msg("session expired, starting fresh")
		if xerr := m.store.Expire(ctx, id); xerr != nil {
			m.logger.Warn().Err(xerr).Str("session", id).Msg("expire session failed")
		}
		s := NewSession()
		s.ID = id
		return s, nil
	}
	return sess, nil
}

// Save touches and persists the session.
func (m *Manager) Save(ctx context.Context, s *Session) error {
	s.Touch()
	return m.store.Save(ctx, s)
}

// Start launches the background expiry sweep.
func (m *Manager) Start() {
	go func() {
		defer close(m.done)
		ticker := time.NewTicker(m.sweepEvery)
		defer ticker.Stop()
		for {
			select {
			case <-m.stop:
				return
			case <-ticker.C:
				m.sweep()
			}
		}
	}()
}

// Stop halts the sweep and waits for it to finish.
func (m *Manager) Stop() {
	m.stopOnce.Do(func() { close(m.stop) })
	<-m.done
}

func (m *Manager) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	n, err := m.store.ExpireBefore(ctx, time.Now().Add(-m.inactivity))
	if err != nil {
		m.logger.Warn().Err(err).Msg("session sweep failed")
		return
	}
	if n > 0 {
		m.logger.Info().Int("expired", n).Msg("sessions swept")
	}
}
