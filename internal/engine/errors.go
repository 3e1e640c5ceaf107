package engine

import (
	"fmt"
	"strings"

	"github.com/normanking/wayfarer/internal/trip"
)

// ValidationError means a planning request lacks required trip attributes.
// It is conversational: the turn answers with a prompt for the missing
// slots instead of failing.
type ValidationError struct {
	Missing []string
}

func (e *ValidationError) Error() string {
	return "missing trip details: " + strings.Join(e.Missing, ", ")
}

// ToolFailure wraps one or more failed tool invocations. The turn still
// produces a degraded plan; this error only surfaces in logs and stats.
type ToolFailure struct {
	Categories []trip.ToolCategory
}

func (e *ToolFailure) Error() string {
	names := make([]string, len(e.Categories))
	for i, c := range e.Categories {
		names[i] = string(c)
	}
	return "tool failures: " + strings.Join(names, ", ")
}

// ClassifierFailure means intent classification could not produce a label.
// The turn degrades to a clarification prompt.
type ClassifierFailure struct {
	Err error
}

func (e *ClassifierFailure) Error() string {
	return fmt.Sprintf("intent classification failed: %v", e.Err)
}

func (e *ClassifierFailure) Unwrap() error { return e.Err }

// SafetyViolation means the input or a generated response was rejected by
// the safety gate. The turn answers with a refusal or safe fallback.
type SafetyViolation struct {
	Stage    string
	Category string
}

func (e *SafetyViolation) Error() string {
	return fmt.Sprintf("safety violation at %s stage (category %s)", e.Stage, e.Category)
}

// SessionStoreFailure means session state could not be loaded or persisted.
// It is the only turn-fatal error: without a consistent session the engine
// cannot answer.
type SessionStoreFailure struct {
	Op  string
	Err error
}

func (e *SessionStoreFailure) Error() string {
	return fmt.Sprintf("session store %s failed: %v", e.Op, e.Err)
}

func (e *SessionStoreFailure) Unwrap() error { return e.Err }
