// Package assembler turns settled tool results into an ordered trip plan
// and renders the exploration-path destination suggestions. Sections appear
// in canonical category order regardless of tool completion order, and a
// failed tool yields an explicit unavailable marker, never invented data.
package assembler

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/normanking/wayfarer/internal/cache"
	"github.com/normanking/wayfarer/internal/llm"
	"github.com/normanking/wayfarer/internal/trip"
)

// fallbackPhrases are the per-category bodies used when a tool failed.
var fallbackPhrases = map[trip.ToolCategory]string{
	trip.ToolFlight:   "Flight information is currently unavailable. Please check airline websites directly for up-to-date fares.",
	trip.ToolWeather:  "Weather data is currently unavailable. Check a forecast service closer to your travel date.",
	trip.ToolActivity: "Activity suggestions are currently unavailable. Local tourism sites are a good starting point.",
	trip.ToolBudget:   "A budget estimate could not be produced right now.",
	trip.ToolMap:      "Nearby points of interest are currently unavailable.",
	trip.ToolCurrency: "Exchange rate information is currently unavailable.",
}

var sectionTitles = map[trip.ToolCategory]string{
	trip.ToolFlight:   "Flights",
	trip.ToolWeather:  "Weather",
	trip.ToolActivity: "Activities",
	trip.ToolBudget:   "Budget",
	trip.ToolMap:      "Nearby Places",
	trip.ToolCurrency: "Currency",
}

// DefaultSuggestionTTL is how long a suggestion list stays cached. The
// lists are near-static for a given preference set, so the window is long.
const DefaultSuggestionTTL = 6 * time.Hour

// Assembler builds trip plans and destination suggestions.
type Assembler struct {
	provider   llm.Provider
	timeout    time.Duration
	cache      *cache.Cache
	suggestTTL time.Duration
	logger     zerolog.Logger
}

// Option configures an Assembler.
type Option func(*Assembler)

// WithNarrativeTimeout bounds the itinerary generation call.
func WithNarrativeTimeout(d time.Duration) Option {
	return func(a *Assembler) {
		if d > 0 {
			a.timeout = d
		}
	}
}

// WithSuggestionCache memoizes destination suggestions keyed by normalized
// preference tags. A zero ttl keeps DefaultSuggestionTTL.
func WithSuggestionCache(c *cache.Cache, ttl time.Duration) Option {
	return func(a *Assembler) {
		a.cache = c
		if ttl > 0 {
			a.suggestTTL = ttl
		}
	}
}

// New creates an assembler backed by the given language model provider.
func New(p llm.Provider, opts ...Option) *Assembler {
	a := &Assembler{
		provider:   p,
		timeout:    20 * time.Second,
		suggestTTL: DefaultSuggestionTTL,
		logger:     log.With().Str("component", "assembler").Logger(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Assemble merges settled tool results into a plan. Only categories present
// in results produce sections, always in canonical order. The narrative is
// generated from the section data; when generation fails the plan falls back
// to a structured summary so the turn still succeeds.
func (a *Assembler) Assemble(ctx context.Context, snapshot *trip.Context, results map[trip.ToolCategory]*trip.ToolResult) *trip.TripPlan {
	plan := &trip.TripPlan{
		Snapshot:  snapshot.Clone(),
		CreatedAt: time.Now(),
	}

	for _, cat := range trip.AllCategories() {
		res, ok := results[cat]
		if !ok {
			continue
		}
		plan.Sections = append(plan.Sections, a.buildSection(cat, res))
	}

	plan.Narrative = a.narrative(ctx, snapshot, plan)
	return plan
}

func (a *Assembler) buildSection(cat trip.ToolCategory, res *trip.ToolResult) trip.PlanSection {
	if !res.OK() {
		a.logger.Debug().
			Str("category", string(cat)).
			Str("failure", string(res.Failure)).
			Msg("section degraded")
		return trip.PlanSection{
			Category:     cat,
			Completeness: trip.SectionDegraded,
			Body:         fallbackPhrases[cat],
			Failure:      res.Failure,
		}
	}
	return trip.PlanSection{
		Category:     cat,
		Completeness: trip.SectionFull,
		Body:         sectionBody(cat, res.Payload),
		Payload:      res.Payload,
	}
}

// sectionBody renders one category's payload as plain text.
func sectionBody(cat trip.ToolCategory, p *trip.ToolPayload) string {
	switch cat {
	case trip.ToolFlight:
		return flightBody(p.Flights)
	case trip.ToolWeather:
		return weatherBody(p.Weather)
	case trip.ToolMap:
		return placesBody(p.Places)
	case trip.ToolCurrency:
		return currencyBody(p.Rate)
	default:
		return strings.TrimSpace(p.Text)
	}
}

func flightBody(offers []trip.FlightOffer) string {
	if len(offers) == 0 {
		return ""
	}
	var sb strings.Builder
	if cheapest := trip.CheapestFlight(offers); cheapest != nil {
		fmt.Fprintf(&sb, "Cheapest fare: %.2f %s (%s, %s to %s)\n",
			cheapest.Price, cheapest.Currency, cheapest.Airline,
			cheapest.DepartureAirport, cheapest.ArrivalAirport)
	}
	for i, o := range offers {
		fmt.Fprintf(&sb, "%d. %s %s-%s departing %s: %.2f %s\n",
			i+1, o.Airline, o.DepartureAirport, o.ArrivalAirport,
			o.DepartureTime, o.Price, o.Currency)
	}
	return strings.TrimRight(sb.String(), "\n")
}

func weatherBody(w *trip.WeatherSnapshot) string {
	if w == nil {
		return ""
	}
	if w.Current {
		return fmt.Sprintf("Forecast for %s is not yet available. Current conditions: %s, around %.0f°C.",
			w.Date, w.Summary, w.TempMaxC)
	}
	return fmt.Sprintf("%s: %s, high %.0f°C, low %.0f°C.", w.Date, w.Summary, w.TempMaxC, w.TempMinC)
}

func placesBody(places []trip.Place) string {
	if len(places) == 0 {
		return ""
	}
	var sb strings.Builder
	for i, p := range places {
		fmt.Fprintf(&sb, "%d. %s", i+1, p.Name)
		if p.Address != "" {
			fmt.Fprintf(&sb, " (%s)", p.Address)
		}
		sb.WriteString("\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}

func currencyBody(q *trip.CurrencyQuote) string {
	if q == nil {
		return ""
	}
	return fmt.Sprintf("1 %s = %.4f %s", q.From, q.Rate, q.To)
}

// narrative generates the itinerary text for the plan. It never fails the
// turn: on provider error it falls back to a structured section summary.
func (a *Assembler) narrative(ctx context.Context, snapshot *trip.Context, plan *trip.TripPlan) string {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	text, err := a.provider.Generate(ctx, &llm.GenerateRequest{
		Template: llm.PromptItinerary,
		Vars: map[string]string{
			"destination": snapshot.Destination.Value,
			"trip_data":   tripData(plan),
		},
	})
	if err != nil || strings.TrimSpace(text) == "" {
		a.logger.Warn().Err(err).Msg("itinerary generation failed, using structured fallback")
		return structuredFallback(snapshot, plan)
	}
	return strings.TrimSpace(text)
}

// tripData flattens the plan sections into the prompt's data block.
func tripData(plan *trip.TripPlan) string {
	var sb strings.Builder
	c := plan.Snapshot
	if c.StartDate.Present() {
		fmt.Fprintf(&sb, "Start date: %s\n", c.StartDate.Value)
	}
	if c.DurationDays.Present() {
		fmt.Fprintf(&sb, "Duration: %d days\n", c.DurationDays.Value)
	}
	fmt.Fprintf(&sb, "Travelers: %d\n", c.TravelerCount())
	if len(c.Interests) > 0 {
		fmt.Fprintf(&sb, "Interests: %s\n", strings.Join(c.Interests, ", "))
	}
	sb.WriteString("\n")

	for _, s := range plan.Sections {
		fmt.Fprintf(&sb, "## %s\n", sectionTitles[s.Category])
		if s.Unavailable() {
			fmt.Fprintf(&sb, "DATA UNAVAILABLE: %s\n\n", s.Body)
			continue
		}
		sb.WriteString(s.Body)
		sb.WriteString("\n\n")
	}
	return strings.TrimSpace(sb.String())
}

// structuredFallback is the plan text used when itinerary generation fails.
func structuredFallback(snapshot *trip.Context, plan *trip.TripPlan) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Here is what I found for your trip to %s:\n\n", titleCase(snapshot.Destination.Value))
	for _, s := range plan.Sections {
		fmt.Fprintf(&sb, "%s:\n%s\n\n", sectionTitles[s.Category], s.Body)
	}
	return strings.TrimSpace(sb.String())
}

var suggestionLineRe = regexp.MustCompile(`^\s*\d+[.)]\s*(.+)$`)

// fillerWords are dropped when reducing a preference phrase to tags, so
// rephrasings of the same preferences share one cache entry.
var fillerWords = map[string]bool{
	"a": true, "an": true, "the": true, "i": true, "we": true, "im": true,
	"id": true, "me": true, "my": true, "to": true, "go": true, "want": true,
	"like": true, "would": true, "love": true, "somewhere": true, "some": true,
	"place": true, "places": true, "trip": true, "travel": true, "for": true,
	"in": true, "on": true, "and": true, "or": true, "with": true, "this": true,
	"that": true, "is": true, "it": true, "of": true, "please": true,
}

var wordRe = regexp.MustCompile(`[a-z]+`)

// preferenceTags reduces a free-form preference phrase to sorted,
// deduplicated content words.
func preferenceTags(preferences string) string {
	seen := map[string]bool{}
	var tags []string
	for _, w := range wordRe.FindAllString(strings.ToLower(preferences), -1) {
		if fillerWords[w] || seen[w] {
			continue
		}
		seen[w] = true
		tags = append(tags, w)
	}
	sort.Strings(tags)
	return strings.Join(tags, ",")
}

// Suggest produces destination ideas for the exploration path. When a cache
// is configured, lists are memoized by normalized preference tags so
// rephrased but equivalent asks reuse the stored list.
func (a *Assembler) Suggest(ctx context.Context, preferences string) (*trip.SuggestionList, error) {
	if strings.TrimSpace(preferences) == "" {
		preferences = "open to anywhere"
	}

	if a.cache == nil {
		return a.generateSuggestions(ctx, preferences)
	}

	key := cache.KeyFrom("suggestion", map[string]string{"prefs": preferenceTags(preferences)})
	v, cached, err := a.cache.GetOrFetch(ctx, key, a.suggestTTL, func(ctx context.Context) (any, error) {
		return a.generateSuggestions(ctx, preferences)
	})
	if err != nil {
		return nil, err
	}
	list := v.(*trip.SuggestionList)
	if cached {
		a.logger.Debug().Str("tags", preferenceTags(preferences)).Msg("suggestions served from cache")
	}
	return list, nil
}

func (a *Assembler) generateSuggestions(ctx context.Context, preferences string) (*trip.SuggestionList, error) {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	text, err := a.provider.Generate(ctx, &llm.GenerateRequest{
		Template: llm.PromptDestinationSuggestion,
		Vars:     map[string]string{"preferences": preferences},
	})
	if err != nil {
		return nil, fmt.Errorf("destination suggestions: %w", err)
	}

	list := &trip.SuggestionList{
		Raw:       strings.TrimSpace(text),
		CreatedAt: time.Now(),
	}
	for _, line := range strings.Split(text, "\n") {
		m := suggestionLineRe.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		name, reason := splitSuggestion(m[1])
		if name == "" {
			continue
		}
		list.Suggestions = append(list.Suggestions, trip.Suggestion{
			Destination: name,
			Reason:      reason,
		})
	}
	return list, nil
}

// splitSuggestion separates "Kyoto - ancient temples and gardens" into name
// and reason.
func splitSuggestion(line string) (string, string) {
	for _, sep := range []string{" - ", ": ", " \u2013 "} {
		if idx := strings.Index(line, sep); idx > 0 {
			return strings.TrimSpace(line[:idx]), strings.TrimSpace(line[idx+len(sep):])
		}
	}
	return strings.TrimSpace(strings.TrimSuffix(line, ".")), ""
}

func titleCase(s string) string {
	fields := strings.Fields(s)
	for i, f := range fields {
		if len(f) > 0 {
			fields[i] = strings.ToUpper(f[:1]) + f[1:]
		}
	}
	return strings.Join(fields, " ")
}
