// Package session holds per-conversation state: the trip context, the turn
// history, and the most recent plan. Stores persist sessions; the Manager
// serializes access so each session processes one turn at a time.
package session

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/normanking/wayfarer/internal/llm"
	"github.com/normanking/wayfarer/internal/trip"
)

// ErrNotFound is returned when no session exists for an ID.
var ErrNotFound = errors.New("session not found")

// ErrExpired is returned when the session exists but has been expired. An
// expired session is never served; its record remains until retention
// deletes it.
var ErrExpired = errors.New("session expired")

// maxHistory bounds how many turns a session retains.
const maxHistory = 20

// Session is one conversation's state. Mutations happen only under the
// Manager's per-session lock.
type Session struct {
	ID          string               `json:"id"`
	Context     *trip.Context        `json:"context"`
	History     []llm.Turn           `json:"history,omitempty"`
	LastPlan    *trip.TripPlan       `json:"last_plan,omitempty"`
	Suggestions *trip.SuggestionList `json:"suggestions,omitempty"`
	CreatedAt   time.Time            `json:"created_at"`
	LastActive  time.Time            `json:"last_active"`
}

// NewSession creates an empty session with a fresh ID.
func NewSession() *Session {
	now := time.Now()
	return &Session{
		ID:         uuid.NewString(),
		Context:    &trip.Context{},
		CreatedAt:  now,
		LastActive: now,
	}
}

// AppendTurn records a conversation turn, trimming old history.
func (s *Session) AppendTurn(role, content string) {
	s.History = append(s.History, llm.Turn{Role: role, Content: content})
	if len(s.History) > maxHistory {
		s.History = s.History[len(s.History)-maxHistory:]
	}
}

// Touch updates the activity timestamp.
func (s *Session) Touch() {
	s.LastActive = time.Now()
}

// Store persists sessions. Expiry marks a session unusable without removing
// its record; deletion is a separate retention concern. Implementations must
// be safe for concurrent use.
type Store interface {
	// Load returns the session for an ID, ErrNotFound when none exists,
	// or ErrExpired when it has been expired.
	Load(ctx context.Context, id string) (*Session, error)

	// Save writes the session, replacing any existing state and clearing
	// any expiry mark.
	Save(ctx context.Context, s *Session) error

	// Expire marks a session expired without deleting it. Expiring a
	// missing session is not an error.
	Expire(ctx context.Context, id string) error

	// Delete removes a session record. Deleting a missing session is not
	// an error.
	Delete(ctx context.Context, id string) error

	// ExpireBefore marks sessions last active before the cutoff as
	// expired and returns how many were newly marked.
	ExpireBefore(ctx context.Context, cutoff time.Time) (int, error)

	// Close releases store resources.
	Close() error
}
