package trip

import (
	"time"
)

// Completeness marks how much of a plan section made it through assembly.
type Completeness string

const (
	SectionFull     Completeness = "full"
	SectionDegraded Completeness = "degraded"
	SectionMissing  Completeness = "missing"
)

// PlanSection is one category's slice of the assembled plan. A degraded
// section carries an explicit unavailable marker and a fallback phrase,
// never a fabricated value.
type PlanSection struct {
	Category     ToolCategory  `json:"category"`
	Completeness Completeness  `json:"completeness"`
	Body         string        `json:"body"`
	Payload      *ToolPayload  `json:"payload,omitempty"`
	Failure      FailureReason `json:"failure,omitempty"`
}

// Unavailable reports whether the section lacks real provider data.
func (s *PlanSection) Unavailable() bool {
	return s.Completeness != SectionFull
}

// TripPlan aggregates all tool results for one planning turn, together with
// the context snapshot they were produced from. Sections are always in
// AllCategories order.
type TripPlan struct {
	Sections  []PlanSection `json:"sections"`
	Snapshot  *Context      `json:"snapshot"`
	Narrative string        `json:"narrative,omitempty"`
	CreatedAt time.Time     `json:"created_at"`
}

// Section returns the section for a category, or nil.
func (p *TripPlan) Section(cat ToolCategory) *PlanSection {
	for i := range p.Sections {
		if p.Sections[i].Category == cat {
			return &p.Sections[i]
		}
	}
	return nil
}

// Degraded lists the categories whose sections are not full.
func (p *TripPlan) Degraded() []ToolCategory {
	var out []ToolCategory
	for _, s := range p.Sections {
		if s.Unavailable() {
			out = append(out, s.Category)
		}
	}
	return out
}

// Suggestion is one destination idea on the exploration path.
type Suggestion struct {
	Destination string `json:"destination"`
	Reason      string `json:"reason,omitempty"`
}

// SuggestionList is the exploration-path response body.
type SuggestionList struct {
	Intro       string       `json:"intro,omitempty"`
	Suggestions []Suggestion `json:"suggestions"`
	Raw         string       `json:"raw,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
}
