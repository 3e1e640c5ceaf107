// Package safety implements the two-stage content gate: input screening
// before the pipeline runs and output validation before a response is
// emitted. Failing verdicts never surface raw content; incidents are logged
// as truncated hashes only.
package safety

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/normanking/wayfarer/internal/llm"
)

// Verdict is a turn-scoped safety decision.
type Verdict struct {
	Safe      bool   `json:"safe"`
	Category  string `json:"category"`
	Rationale string `json:"rationale,omitempty"`
}

// Gate screens input and validates output via the safety classifier.
type Gate struct {
	provider  llm.Provider
	incidents IncidentLog
	timeout   time.Duration
}

// Option configures a Gate.
type Option func(*Gate)

// WithTimeout bounds each classifier call.
func WithTimeout(d time.Duration) Option {
	return func(g *Gate) { g.timeout = d }
}

// WithIncidentLog sets the incident sink.
func WithIncidentLog(incidents IncidentLog) Option {
	return func(g *Gate) { g.incidents = incidents }
}

// NewGate creates a safety gate backed by the safety classifier.
func NewGate(provider llm.Provider, opts ...Option) *Gate {
	g := &Gate{
		provider:  provider,
		incidents: NopIncidentLog{},
		timeout:   10 * time.Second,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// ScreenInput checks user input before any other component sees it. A
// failing verdict is recorded in the incident log. A classifier failure
// fails open with category "unknown". The turn proceeds, but the outage is
// logged so it is never silent.
func (g *Gate) ScreenInput(ctx context.Context, text string) *Verdict {
	if text == "" {
		return &Verdict{Safe: true, Category: "safe"}
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	result, err := g.provider.Classify(ctx, &llm.ClassifyRequest{Kind: llm.TaskSafetyInput, Text: text})
	if err != nil {
		log.Warn().Err(err).Str("component", "safety").Msg("input screening unavailable, proceeding with caution")
		return &Verdict{Safe: true, Category: "unknown", Rationale: "safety check unavailable"}
	}

	verdict := &Verdict{
		Safe:      result.Label == "safe",
		Category:  result.Fields["concern_type"],
		Rationale: result.Rationale,
	}
	if verdict.Category == "" {
		verdict.Category = result.Label
	}
	if !verdict.Safe {
		g.incidents.Record(StageInput, verdict.Category, text)
	}
	return verdict
}

// ValidateOutput checks a generated response before it is emitted.
// userContext is the triggering user input, supplied so the classifier can
// judge the response in context. A classifier failure allows the output.
func (g *Gate) ValidateOutput(ctx context.Context, response, userContext string) *Verdict {
	if response == "" {
		return &Verdict{Safe: true, Category: "safe"}
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	result, err := g.provider.Classify(ctx, &llm.ClassifyRequest{
		Kind: llm.TaskSafetyOutput,
		Text: response,
		Vars: map[string]string{
			"user_context": userContext,
			"response":     response,
		},
	})
	if err != nil {
		log.Warn().Err(err).Str("component", "safety").Msg("output validation unavailable, allowing response")
		return &Verdict{Safe: true, Category: "unknown", Rationale: "safety check unavailable"}
	}

	verdict := &Verdict{
		Safe:      result.Label == "safe",
		Category:  result.Fields["concern_type"],
		Rationale: result.Rationale,
	}
	if verdict.Category == "" {
		verdict.Category = result.Label
	}
	if !verdict.Safe {
		g.incidents.Record(StageOutput, verdict.Category, response)
	}
	return verdict
}

// AssessDestination flags destinations needing special safety warnings
// beyond normal precautions. Failure defaults to not sensitive.
func (g *Gate) AssessDestination(ctx context.Context, destination string) bool {
	if destination == "" {
		return false
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	result, err := g.provider.Classify(ctx, &llm.ClassifyRequest{
		Kind: llm.TaskDestination,
		Text: destination,
		Vars: map[string]string{"destination": destination},
	})
	if err != nil {
		return false
	}
	return result.Label == "sensitive"
}
