package session

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

// MemoryStore keeps sessions in process memory. Sessions are stored as
// serialized snapshots so callers never share mutable state with the store.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string][]byte
	active   map[string]time.Time
	expired  map[string]bool
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string][]byte),
		active:   make(map[string]time.Time),
		expired:  make(map[string]bool),
	}
}

// Load returns a copy of the stored session.
func (m *MemoryStore) Load(ctx context.Context, id string) (*Session, error) {
	m.mu.RLock()
	raw, ok := m.sessions[id]
	exp := m.expired[id]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	if exp {
		return nil, ErrExpired
	}

	var s Session
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// Save stores a snapshot of the session, clearing any expiry mark.
func (m *MemoryStore) Save(ctx context.Context, s *Session) error {
	raw, err := json.Marshal(s)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.sessions[s.ID] = raw
	m.active[s.ID] = s.LastActive
	delete(m.expired, s.ID)
	m.mu.Unlock()
	return nil
}

// Expire marks a session expired, keeping its record.
func (m *MemoryStore) Expire(ctx context.Context, id string) error {
	m.mu.Lock()
	if _, ok := m.sessions[id]; ok {
		m.expired[id] = true
	}
	m.mu.Unlock()
	return nil
}

// Delete removes a session record.
func (m *MemoryStore) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	delete(m.sessions, id)
	delete(m.active, id)
	delete(m.expired, id)
	m.mu.Unlock()
	return nil
}

// ExpireBefore marks sessions last active before the cutoff as expired.
func (m *MemoryStore) ExpireBefore(ctx context.Context, cutoff time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for id, last := range m.active {
		if last.Before(cutoff) && !m.expired[id] {
			m.expired[id] = true
			n++
		}
	}
	return n, nil
}

// Close is a no-op.
func (m *MemoryStore) Close() error { return nil }

// Len reports the number of stored sessions, expired ones included.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}
