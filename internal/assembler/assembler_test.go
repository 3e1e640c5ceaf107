package assembler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/normanking/wayfarer/internal/cache"
	"github.com/normanking/wayfarer/internal/llm"
	"github.com/normanking/wayfarer/internal/trip"
)

func snapshot() *trip.Context {
	return &trip.Context{
		Destination:  trip.StringSlot{Value: "tokyo", Status: trip.SlotPresent},
		StartDate:    trip.StringSlot{Value: "2026-10-01", Status: trip.SlotPresent},
		DurationDays: trip.IntSlot{Value: 5, Status: trip.SlotPresent},
		Travelers:    trip.IntSlot{Value: 2, Status: trip.SlotPresent},
	}
}

func fullResults() map[trip.ToolCategory]*trip.ToolResult {
	return map[trip.ToolCategory]*trip.ToolResult{
		trip.ToolFlight: {
			Category: trip.ToolFlight,
			Payload: &trip.ToolPayload{Flights: []trip.FlightOffer{
				{Price: 612.4, Currency: "USD", Airline: "LH", DepartureAirport: "BER", ArrivalAirport: "HND", DepartureTime: "2026-10-01T09:30:00"},
				{Price: 540, Currency: "USD", Airline: "TK", DepartureAirport: "BER", ArrivalAirport: "HND", DepartureTime: "2026-10-01T06:10:00"},
			}},
		},
		trip.ToolWeather: {
			Category: trip.ToolWeather,
			Payload:  &trip.ToolPayload{Weather: &trip.WeatherSnapshot{Date: "2026-10-01", Summary: "rain", TempMaxC: 21.5, TempMinC: 14}},
		},
		trip.ToolActivity: {
			Category: trip.ToolActivity,
			Payload:  &trip.ToolPayload{Text: "1. Visit temples\n2. Street food tour"},
		},
		trip.ToolBudget: {
			Category: trip.ToolBudget,
			Payload:  &trip.ToolPayload{Text: "Total: 1200 USD"},
		},
		trip.ToolMap: {
			Category: trip.ToolMap,
			Payload:  &trip.ToolPayload{Places: []trip.Place{{Name: "Senso-ji", Address: "Asakusa"}}},
		},
		trip.ToolCurrency: {
			Category: trip.ToolCurrency,
			Payload:  &trip.ToolPayload{Rate: &trip.CurrencyQuote{Amount: 1, From: "USD", To: "JPY", Converted: 149.3, Rate: 149.3}},
		},
	}
}

func TestAssembleCanonicalOrder(t *testing.T) {
	a := New(&llm.MockProvider{GenerateText: "Day 1: arrive in Tokyo."})

	plan := a.Assemble(context.Background(), snapshot(), fullResults())
	require.Len(t, plan.Sections, 6)

	want := trip.AllCategories()
	for i, s := range plan.Sections {
		assert.Equal(t, want[i], s.Category)
		assert.Equal(t, trip.SectionFull, s.Completeness)
	}
	assert.Equal(t, "Day 1: arrive in Tokyo.", plan.Narrative)
	assert.Empty(t, plan.Degraded())
}

func TestAssembleDegradedSection(t *testing.T) {
	a := New(&llm.MockProvider{GenerateText: "itinerary"})

	results := fullResults()
	results[trip.ToolFlight] = trip.Failed(trip.ToolFlight, trip.FailureTimeout, "deadline exceeded", 0)

	plan := a.Assemble(context.Background(), snapshot(), results)
	require.Len(t, plan.Sections, 6)

	flight := plan.Section(trip.ToolFlight)
	require.NotNil(t, flight)
	assert.True(t, flight.Unavailable())
	assert.Equal(t, trip.FailureTimeout, flight.Failure)
	assert.Contains(t, flight.Body, "unavailable")
	assert.Nil(t, flight.Payload, "no fabricated data for a failed tool")

	assert.Equal(t, []trip.ToolCategory{trip.ToolFlight}, plan.Degraded())
	assert.Equal(t, trip.SectionFull, plan.Section(trip.ToolWeather).Completeness)
}

func TestAssembleSkipsInapplicableCategories(t *testing.T) {
	a := New(&llm.MockProvider{GenerateText: "itinerary"})

	results := map[trip.ToolCategory]*trip.ToolResult{
		trip.ToolWeather:  fullResults()[trip.ToolWeather],
		trip.ToolActivity: fullResults()[trip.ToolActivity],
	}
	plan := a.Assemble(context.Background(), snapshot(), results)
	require.Len(t, plan.Sections, 2)
	assert.Equal(t, trip.ToolWeather, plan.Sections[0].Category)
	assert.Equal(t, trip.ToolActivity, plan.Sections[1].Category)
	assert.Nil(t, plan.Section(trip.ToolFlight))
}

func TestAssembleNarrativeFallback(t *testing.T) {
	a := New(&llm.MockProvider{GenerateErr: llm.ErrUnavailable})

	plan := a.Assemble(context.Background(), snapshot(), fullResults())
	require.NotEmpty(t, plan.Narrative)
	assert.Contains(t, plan.Narrative, "Tokyo")
	assert.Contains(t, plan.Narrative, "Total: 1200 USD")
}

func TestAssembleNarrativeDataBlock(t *testing.T) {
	mock := &llm.MockProvider{GenerateText: "itinerary"}
	a := New(mock)

	results := fullResults()
	results[trip.ToolBudget] = trip.Failed(trip.ToolBudget, trip.FailureProviderError, "upstream 500", 0)
	a.Assemble(context.Background(), snapshot(), results)

	require.Len(t, mock.GenerateCalls, 1)
	data := mock.GenerateCalls[0].Vars["trip_data"]
	assert.Contains(t, data, "Duration: 5 days")
	assert.Contains(t, data, "Cheapest fare: 540.00 USD")
	assert.Contains(t, data, "DATA UNAVAILABLE", "failed sections marked, never invented")
	assert.Equal(t, "tokyo", mock.GenerateCalls[0].Vars["destination"])
}

func TestAssembleSnapshotIsolated(t *testing.T) {
	a := New(&llm.MockProvider{GenerateText: "itinerary"})

	c := snapshot()
	plan := a.Assemble(context.Background(), c, fullResults())

	c.Destination.Value = "osaka"
	assert.Equal(t, "tokyo", plan.Snapshot.Destination.Value)
}

func TestSuggestParsesNumberedList(t *testing.T) {
	mock := &llm.MockProvider{GenerateText: `Here are some ideas:
1. Kyoto - ancient temples and traditional gardens
2. Lisbon - coastal food scene, best in spring
3) Oaxaca: rich culinary heritage
Something that is not a list line.
4. Reykjavik`}
	a := New(mock)

	list, err := a.Suggest(context.Background(), "culture and food")
	require.NoError(t, err)
	require.Len(t, list.Suggestions, 4)
	assert.Equal(t, "Kyoto", list.Suggestions[0].Destination)
	assert.Equal(t, "ancient temples and traditional gardens", list.Suggestions[0].Reason)
	assert.Equal(t, "Oaxaca", list.Suggestions[2].Destination)
	assert.Equal(t, "Reykjavik", list.Suggestions[3].Destination)
	assert.Empty(t, list.Suggestions[3].Reason)
	assert.NotEmpty(t, list.Raw)

	require.Len(t, mock.GenerateCalls, 1)
	assert.Equal(t, "culture and food", mock.GenerateCalls[0].Vars["preferences"])
}

func TestSuggestCachedByPreferenceTags(t *testing.T) {
	mock := &llm.MockProvider{GenerateText: "1. Kyoto - temples and food"}
	a := New(mock, WithSuggestionCache(cache.New(16), time.Hour))

	first, err := a.Suggest(context.Background(), "I want somewhere with temples and food")
	require.NoError(t, err)

	// A rephrasing of the same preferences reuses the cached list.
	second, err := a.Suggest(context.Background(), "food and temples, please")
	require.NoError(t, err)

	assert.Equal(t, first.Raw, second.Raw)
	require.Len(t, mock.GenerateCalls, 1)
}

func TestSuggestDistinctPreferencesMiss(t *testing.T) {
	mock := &llm.MockProvider{GenerateText: "1. Bali - beaches"}
	a := New(mock, WithSuggestionCache(cache.New(16), time.Hour))

	_, err := a.Suggest(context.Background(), "beaches and surfing")
	require.NoError(t, err)
	_, err = a.Suggest(context.Background(), "mountains and hiking")
	require.NoError(t, err)

	require.Len(t, mock.GenerateCalls, 2)
}

func TestSuggestFailureNotCached(t *testing.T) {
	mock := &llm.MockProvider{GenerateErr: llm.ErrUnavailable}
	a := New(mock, WithSuggestionCache(cache.New(16), time.Hour))

	_, err := a.Suggest(context.Background(), "beaches")
	require.Error(t, err)

	mock.GenerateErr = nil
	mock.GenerateText = "1. Bali - beaches"
	list, err := a.Suggest(context.Background(), "beaches")
	require.NoError(t, err)
	require.Len(t, list.Suggestions, 1)
}

func TestPreferenceTags(t *testing.T) {
	assert.Equal(t,
		preferenceTags("I want somewhere WARM this winter"),
		preferenceTags("warm winter, please"))
	assert.NotEqual(t,
		preferenceTags("warm winter"),
		preferenceTags("cold winter"))
}

func TestSuggestProviderError(t *testing.T) {
	a := New(&llm.MockProvider{GenerateErr: llm.ErrUnavailable})
	_, err := a.Suggest(context.Background(), "beaches")
	require.Error(t, err)
}

func TestSuggestEmptyPreferences(t *testing.T) {
	mock := &llm.MockProvider{GenerateText: "1. Bali - beaches"}
	a := New(mock)

	_, err := a.Suggest(context.Background(), "   ")
	require.NoError(t, err)
	require.Len(t, mock.GenerateCalls, 1)
	assert.Equal(t, "open to anywhere", mock.GenerateCalls[0].Vars["preferences"])
}

func TestSectionBodies(t *testing.T) {
	weather := weatherBody(&trip.WeatherSnapshot{Date: "2026-10-01", Summary: "clear sky", TempMaxC: 24, TempMinC: 15})
	assert.Equal(t, "2026-10-01: clear sky, high 24°C, low 15°C.", weather)

	current := weatherBody(&trip.WeatherSnapshot{Date: "2026-12-24", Summary: "fog", TempMaxC: 3, Current: true})
	assert.Contains(t, current, "not yet available")

	rate := currencyBody(&trip.CurrencyQuote{From: "USD", To: "JPY", Rate: 149.3})
	assert.Equal(t, "1 USD = 149.3000 JPY", rate)
}
