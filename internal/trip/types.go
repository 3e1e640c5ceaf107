// Package trip defines the core domain model for the trip-planning engine:
// the conversation context with its slot-status tracking, tool requests and
// results, and the assembled trip plan.
package trip

import (
	"time"
)

// ToolCategory identifies the kind of external provider a request targets.
type ToolCategory string

const (
	ToolFlight   ToolCategory = "flight"
	ToolWeather  ToolCategory = "weather"
	ToolActivity ToolCategory = "activity"
	ToolBudget   ToolCategory = "budget"
	ToolMap      ToolCategory = "map"
	ToolCurrency ToolCategory = "currency"
)

// AllCategories returns every tool category in canonical assembly order.
// The Result Assembler emits plan sections in exactly this order regardless
// of tool completion order.
func AllCategories() []ToolCategory {
	return []ToolCategory{
		ToolFlight,
		ToolWeather,
		ToolActivity,
		ToolBudget,
		ToolMap,
		ToolCurrency,
	}
}

// String returns the string representation of a ToolCategory.
func (c ToolCategory) String() string {
	return string(c)
}

// IsValid checks if a ToolCategory is a known category.
func (c ToolCategory) IsValid() bool {
	for _, valid := range AllCategories() {
		if c == valid {
			return true
		}
	}
	return false
}

// FailureReason classifies why a tool invocation produced no usable payload.
type FailureReason string

const (
	FailureNone            FailureReason = ""
	FailureTimeout         FailureReason = "timeout"
	FailureProviderError   FailureReason = "provider-error"
	FailureInvalidResponse FailureReason = "invalid-response"
)

// ToolRequest is an immutable, normalized request for one tool category.
// Params hold only normalized values (lower-cased destinations, canonical
// dates) so that identical requests derive identical cache keys.
type ToolRequest struct {
	Category ToolCategory      `json:"category"`
	Params   map[string]string `json:"params"`
}

// Param returns a named parameter or the empty string.
func (r *ToolRequest) Param(key string) string {
	if r.Params == nil {
		return ""
	}
	return r.Params[key]
}

// ToolResult is the settled outcome of one tool invocation. Either Payload
// is set (success) or Failure carries a reason code. Results are immutable
// once created; a failed result is tagged, never discarded.
type ToolResult struct {
	Category ToolCategory  `json:"category"`
	Payload  *ToolPayload  `json:"payload,omitempty"`
	Failure  FailureReason `json:"failure,omitempty"`
	Detail   string        `json:"detail,omitempty"`
	Cached   bool          `json:"cached,omitempty"`
	Duration time.Duration `json:"duration"`
}

// OK reports whether the invocation produced a usable payload.
func (r *ToolResult) OK() bool {
	return r != nil && r.Failure == FailureNone && r.Payload != nil
}

// Failed constructs a failure result for a category.
func Failed(cat ToolCategory, reason FailureReason, detail string, elapsed time.Duration) *ToolResult {
	return &ToolResult{Category: cat, Failure: reason, Detail: detail, Duration: elapsed}
}

// ToolPayload carries the category-specific success data. Only the fields
// relevant to the category are populated; everything else stays zero.
type ToolPayload struct {
	// Flight offers, cheapest first.
	Flights []FlightOffer `json:"flights,omitempty"`

	// Weather snapshot for the travel date.
	Weather *WeatherSnapshot `json:"weather,omitempty"`

	// Free-text content for LLM-backed categories (activities, budget).
	Text string `json:"text,omitempty"`

	// Nearby places of interest.
	Places []Place `json:"places,omitempty"`

	// Currency conversion of the cheapest flight fare.
	Rate *CurrencyQuote `json:"rate,omitempty"`
}

// FlightOffer is one flight option returned by the flight provider.
type FlightOffer struct {
	Price            float64 `json:"price"`
	Currency         string  `json:"currency"`
	Airline          string  `json:"airline"`
	DepartureAirport string  `json:"departure_airport"`
	ArrivalAirport   string  `json:"arrival_airport"`
	DepartureTime    string  `json:"departure_time"`
}

// WeatherSnapshot summarizes conditions for the destination and date.
type WeatherSnapshot struct {
	Date     string  `json:"date"`
	Summary  string  `json:"summary"`
	TempMaxC float64 `json:"temp_max_c,omitempty"`
	TempMinC float64 `json:"temp_min_c,omitempty"`
	Current  bool    `json:"current,omitempty"` // true when falling back to current conditions
}

// Place is a nearby point of interest from the map provider.
type Place struct {
	Name     string  `json:"name"`
	Category string  `json:"category"`
	Address  string  `json:"address,omitempty"`
	Lat      float64 `json:"lat,omitempty"`
	Lon      float64 `json:"lon,omitempty"`
}

// CurrencyQuote is a converted monetary amount.
type CurrencyQuote struct {
	Amount    float64 `json:"amount"`
	From      string  `json:"from"`
	To        string  `json:"to"`
	Converted float64 `json:"converted"`
	Rate      float64 `json:"rate"`
}

// CheapestFlight returns the lowest-priced offer, or nil when none exist.
func CheapestFlight(offers []FlightOffer) *FlightOffer {
	var best *FlightOffer
	for i := range offers {
		if best == nil || offers[i].Price < best.Price {
			best = &offers[i]
		}
	}
	return best
}
