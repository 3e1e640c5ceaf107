// Package llm defines the boundary to the external language-model service
// used for classification and text generation. The engine never interprets
// natural language itself; everything probabilistic flows through a Provider.
package llm

import (
	"context"
	"errors"
	"regexp"
	"time"
)

// MaxErrorBodySize limits how much error response body we read (1MB).
const MaxErrorBodySize = 1 * 1024 * 1024

// TaskKind selects the prompt family for a classification call.
type TaskKind string

const (
	TaskIntent       TaskKind = "intent"
	TaskExtraction   TaskKind = "extraction"
	TaskQueryKind    TaskKind = "query_kind"
	TaskSafetyInput  TaskKind = "safety_input"
	TaskSafetyOutput TaskKind = "safety_output"
	TaskDestination  TaskKind = "destination_assessment"
)

// Turn is one prior exchange supplied as classification context.
type Turn struct {
	Role    string `json:"role"` // "user" or "assistant"
	Content string `json:"content"`
}

// ClassifyRequest asks the provider to label a piece of text.
type ClassifyRequest struct {
	Kind    TaskKind
	Text    string
	History []Turn

	// Vars supplies extra template variables for kinds whose prompts need
	// more than the text and history (destination, prior response).
	Vars map[string]string
}

// Classification is a labeled verdict from the provider. A failed provider
// call is reported as an error, never as a low-confidence Classification;
// callers can therefore distinguish the two.
type Classification struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
	Rationale  string  `json:"rationale,omitempty"`

	// Fields holds any extra structured output the prompt requested
	// (extraction slots, safety categories).
	Fields map[string]string `json:"fields,omitempty"`
}

// GenerateRequest asks the provider to produce text from a prompt template.
type GenerateRequest struct {
	Template string
	Vars     map[string]string

	// Strict requests a more constrained regeneration (used after an
	// output-safety failure).
	Strict bool
}

// Provider is the external classifier/generator service.
type Provider interface {
	// Classify labels text for the given task kind.
	Classify(ctx context.Context, req *ClassifyRequest) (*Classification, error)

	// Generate renders a prompt template and returns the generated text.
	Generate(ctx context.Context, req *GenerateRequest) (string, error)

	// Name returns the provider identifier.
	Name() string
}

// ErrUnavailable marks a provider that is not configured or not reachable.
var ErrUnavailable = errors.New("llm provider unavailable")

// jsonObjectRe finds the first JSON object embedded in a model response.
// Models wrap JSON in prose often enough that this is load-bearing.
var jsonObjectRe = regexp.MustCompile(`(?s)\{.*\}`)

// ExtractJSON returns the first JSON object in s, or "" when none exists.
func ExtractJSON(s string) string {
	return jsonObjectRe.FindString(s)
}

// ClassifyWithRetry calls Classify and retries exactly once after a short
// backoff on error. Classifier providers are not retried indefinitely.
func ClassifyWithRetry(ctx context.Context, p Provider, req *ClassifyRequest, backoff time.Duration) (*Classification, error) {
	result, err := p.Classify(ctx, req)
	if err == nil {
		return result, nil
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(backoff):
	}

	return p.Classify(ctx, req)
}
