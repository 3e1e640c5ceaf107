package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/normanking/wayfarer/internal/llm"
	"github.com/normanking/wayfarer/internal/trip"
)

// ActivityTool generates activity ideas for the destination through the
// language model rather than an external catalog.
type ActivityTool struct {
	provider llm.Provider
}

// NewActivityTool creates the activity suggestion tool.
func NewActivityTool(p llm.Provider) *ActivityTool {
	return &ActivityTool{provider: p}
}

// Category returns the tool identifier.
func (t *ActivityTool) Category() trip.ToolCategory { return trip.ToolActivity }

// Execute produces an activity list for the destination.
func (t *ActivityTool) Execute(ctx context.Context, req *trip.ToolRequest) (*trip.ToolPayload, error) {
	dest := req.Param("destination")
	if dest == "" {
		return nil, fmt.Errorf("empty destination")
	}

	vars := map[string]string{"destination": dest}
	if interests := req.Param("interests"); interests != "" {
		vars["destination"] = dest + " (traveler interests: " + interests + ")"
	}

	text, err := t.provider.Generate(ctx, &llm.GenerateRequest{
		Template: llm.PromptActivitySuggestion,
		Vars:     vars,
	})
	if err != nil {
		return nil, err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("%w: empty activity suggestions", ErrInvalidResponse)
	}
	return &trip.ToolPayload{Text: text}, nil
}

// BudgetTool estimates a trip budget through the language model, grounded
// on the known trip attributes.
type BudgetTool struct {
	provider llm.Provider
	currency string
}

// NewBudgetTool creates the budget estimation tool. The currency is the
// unit estimates are expressed in.
func NewBudgetTool(p llm.Provider, currency string) *BudgetTool {
	if currency == "" {
		currency = "USD"
	}
	return &BudgetTool{provider: p, currency: currency}
}

// Category returns the tool identifier.
func (t *BudgetTool) Category() trip.ToolCategory { return trip.ToolBudget }

// Execute produces a category budget breakdown.
func (t *BudgetTool) Execute(ctx context.Context, req *trip.ToolRequest) (*trip.ToolPayload, error) {
	dest := req.Param("destination")
	if dest == "" {
		return nil, fmt.Errorf("empty destination")
	}

	nights := req.Param("duration")
	if nights == "" {
		nights = "unspecified"
	}
	travelers := req.Param("travelers")
	if travelers == "" {
		travelers = "1"
	}

	flightLine := "Flight cost: unknown"
	if fare := req.Param("flight_fare"); fare != "" {
		flightLine = "Flight cost: " + fare
	}
	activities := req.Param("activities")
	if activities == "" {
		activities = "typical sightseeing"
	}

	vars := map[string]string{
		"currency":    t.currency,
		"destination": dest,
		"flight_line": flightLine,
		"nights":      nights,
		"travelers":   travelers,
		"activities":  activities,
	}
	if limit := req.Param("limit"); limit != "" {
		vars["destination"] = dest + " (stay within a total budget of " + limit + " " + t.currency + ")"
	}

	text, err := t.provider.Generate(ctx, &llm.GenerateRequest{
		Template: llm.PromptBudgetEstimate,
		Vars:     vars,
	})
	if err != nil {
		return nil, err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("%w: empty budget estimate", ErrInvalidResponse)
	}
	return &trip.ToolPayload{Text: text}, nil
}
