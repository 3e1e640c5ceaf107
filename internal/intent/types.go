// Package intent implements the per-turn intent router. The external
// classifier is the primary signal; when it fails or is uncertain the router
// falls back to asking for clarification rather than guessing.
package intent

import (
	"time"
)

// Label is the routing label assigned to a turn.
type Label string

const (
	// LabelExplore routes to the exploration path (suggestions only).
	LabelExplore Label = "explore"
	// LabelPlan routes to the planning path (tool fan-out).
	LabelPlan Label = "plan"
	// LabelFollowup answers from the session's cached trip plan.
	LabelFollowup Label = "followup-query"
	// LabelClarify asks the user to restate; the fallback for low
	// confidence or classifier failure.
	LabelClarify Label = "clarification-needed"
	// LabelUnsafe short-circuits the pipeline; takes precedence over
	// every other label once the safety gate rejects the input.
	LabelUnsafe Label = "unsafe"
)

// AllLabels returns every routing label for validation.
func AllLabels() []Label {
	return []Label{LabelExplore, LabelPlan, LabelFollowup, LabelClarify, LabelUnsafe}
}

// String returns the string representation of a Label.
func (l Label) String() string { return string(l) }

// IsValid checks if a Label is known.
func (l Label) IsValid() bool {
	for _, valid := range AllLabels() {
		if l == valid {
			return true
		}
	}
	return false
}

// Intent is the turn-scoped routing decision. It is produced once per turn
// and never persisted beyond it.
type Intent struct {
	Label        Label         `json:"label"`
	Confidence   float64       `json:"confidence"`
	Rationale    string        `json:"rationale,omitempty"`
	ClassifiedAt time.Time     `json:"classified_at"`
	Duration     time.Duration `json:"duration"`
}

// QueryKind sub-classifies a follow-up question by plan section.
type QueryKind string

const (
	QueryWeather    QueryKind = "weather"
	QueryActivities QueryKind = "activities"
	QueryNearby     QueryKind = "nearby"
	QueryBudget     QueryKind = "budget"
	QueryFlights    QueryKind = "flights"
	QueryGeneral    QueryKind = "general"
)

// Stats tracks router behavior over time.
type Stats struct {
	TotalTurns        int64
	Fallbacks         int64 // low confidence or classifier failure
	Retries           int64
	LabelDistribution map[Label]int64
	AverageConfidence float64
}
