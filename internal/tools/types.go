// Package tools provides the tool execution layer: one Tool per external
// provider category and the Orchestrator that fans requests out
// concurrently, enforces timeouts, and settles every request into a tagged
// result for assembly.
package tools

import (
	"context"
	"errors"

	"github.com/normanking/wayfarer/internal/trip"
)

// Tool is one provider-backed capability.
type Tool interface {
	// Category returns the tool identifier.
	Category() trip.ToolCategory

	// Execute performs the provider call. It returns a payload or an
	// error; the orchestrator converts errors into tagged failures.
	Execute(ctx context.Context, req *trip.ToolRequest) (*trip.ToolPayload, error)
}

// ErrInvalidResponse marks a provider reply that could not be interpreted.
// Providers wrap it so the orchestrator can distinguish malformed data from
// transport failures.
var ErrInvalidResponse = errors.New("invalid provider response")

// ProgressStatus reports a fan-out task's lifecycle to the presentation
// layer.
type ProgressStatus string

const (
	ProgressStarted  ProgressStatus = "started"
	ProgressFinished ProgressStatus = "finished"
	ProgressFailed   ProgressStatus = "failed"
)

// ProgressEvent is one in-flight notification. Correctness never depends on
// these being consumed.
type ProgressEvent struct {
	Category trip.ToolCategory
	Status   ProgressStatus
}

// Notifier receives progress events. Implementations must return promptly;
// the orchestrator calls them inline on the task goroutine.
type Notifier func(ProgressEvent)
