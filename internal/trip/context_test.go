package trip

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestContext_Merge_Monotonic(t *testing.T) {
	ctx := &Context{}

	ctx.Merge(Extraction{Destination: "Dubai", Confidence: 0.9}, 0.7)
	assert.Equal(t, "dubai", ctx.Destination.Value)
	assert.Equal(t, SlotPresent, ctx.Destination.Status)

	// Low-confidence drift must not overwrite a present slot.
	ctx.Merge(Extraction{Destination: "Paris", Confidence: 0.3}, 0.7)
	assert.Equal(t, "dubai", ctx.Destination.Value)

	// Even a high-confidence extraction without an explicit correction
	// leaves a present slot alone.
	ctx.Merge(Extraction{Destination: "Paris", Confidence: 0.95}, 0.7)
	assert.Equal(t, "dubai", ctx.Destination.Value)

	// An explicit correction unlocks it.
	ctx.Merge(Extraction{Destination: "Paris", Confidence: 0.95, Correction: true}, 0.7)
	assert.Equal(t, "paris", ctx.Destination.Value)
	assert.Equal(t, SlotPresent, ctx.Destination.Status)
}

func TestContext_Merge_UncertainBelowThreshold(t *testing.T) {
	ctx := &Context{}
	ctx.Merge(Extraction{Destination: "Lisbon", Confidence: 0.5}, 0.7)

	assert.Equal(t, "lisbon", ctx.Destination.Value)
	assert.Equal(t, SlotUncertain, ctx.Destination.Status)

	// A later confident extraction may firm up an uncertain slot.
	ctx.Merge(Extraction{Destination: "Lisbon", Confidence: 0.9}, 0.7)
	assert.Equal(t, SlotPresent, ctx.Destination.Status)
}

func TestContext_Merge_UnrelatedTurnKeepsSlots(t *testing.T) {
	ctx := &Context{}
	ctx.Merge(Extraction{Destination: "Dubai", DurationDays: 5, Travelers: 2, Confidence: 0.9}, 0.7)

	// A turn extracting nothing (empty fields) changes nothing.
	ctx.Merge(Extraction{Confidence: 0.9}, 0.7)

	assert.Equal(t, "dubai", ctx.Destination.Value)
	assert.Equal(t, 5, ctx.DurationDays.Value)
	assert.Equal(t, 2, ctx.Travelers.Value)
}

func TestContext_MissingForPlanning(t *testing.T) {
	ctx := &Context{}
	assert.Equal(t, []string{"destination", "start date", "trip duration"}, ctx.MissingForPlanning())

	ctx.Merge(Extraction{Destination: "Dubai", StartDate: "2026-12-05", DurationDays: 5, Confidence: 0.9}, 0.7)
	assert.Empty(t, ctx.MissingForPlanning())
}

func TestContext_Interests(t *testing.T) {
	ctx := &Context{}
	ctx.Merge(Extraction{Interests: []string{"Beaches", "food", "beaches "}, Confidence: 0.9}, 0.7)
	assert.Equal(t, []string{"beaches", "food"}, ctx.Interests)
}

func TestNormalizeDate(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"2026-12-05", "2026-12-05"},
		{"2026/12/05", "2026-12-05"},
		{"Dec 5, 2026", "2026-12-05"},
		{"5 December 2026", "2026-12-05"},
		{"  ", ""},
		{"next winter", "next winter"}, // unparseable stays trimmed
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizeDate(tt.in), "input %q", tt.in)
	}
}

func TestNormalizeDestination(t *testing.T) {
	assert.Equal(t, "new york", NormalizeDestination("  New   York "))
	assert.Equal(t, "", NormalizeDestination(""))
}

func TestCheapestFlight(t *testing.T) {
	offers := []FlightOffer{
		{Price: 420, Airline: "EK"},
		{Price: 385, Airline: "AI"},
		{Price: 510, Airline: "BA"},
	}
	cheapest := CheapestFlight(offers)
	assert.Equal(t, "AI", cheapest.Airline)
	assert.Nil(t, CheapestFlight(nil))
}

func TestAllCategories_Order(t *testing.T) {
	want := []ToolCategory{ToolFlight, ToolWeather, ToolActivity, ToolBudget, ToolMap, ToolCurrency}
	assert.Equal(t, want, AllCategories())
}
