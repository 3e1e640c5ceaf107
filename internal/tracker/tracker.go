// Package tracker maintains the per-session trip context. It extracts
// attributes from each turn (pattern pass plus the external extractor) and
// merges them monotonically: confirmed attributes survive unrelated turns
// and only move on explicit user correction.
package tracker

import (
	"context"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/normanking/wayfarer/internal/llm"
	"github.com/normanking/wayfarer/internal/trip"
)

const (
	// DefaultPresentThreshold is the extraction confidence above which a
	// slot is marked present rather than uncertain.
	DefaultPresentThreshold = 0.7

	// DefaultInactivity is how long a session may idle before the
	// lifecycle policy expires it.
	DefaultInactivity = 30 * time.Minute

	// patternConfidence is assigned to regex hits: the user stated the
	// attribute in a recognized explicit form.
	patternConfidence = 0.9
)

// Extraction patterns. These run on every turn; the external extractor
// refines them when it is available.
var (
	durationRe  = regexp.MustCompile(`(?i)(\d+)[-\s]*(?:day|days|night|nights)`)
	travelersRe = regexp.MustCompile(`(?i)(\d+)\s*(?:people|persons?|travellers?|travelers?|adults?|pax)`)
	budgetRe    = regexp.MustCompile(`(?i)(?:budget of|under|within|around)\s*[$₹€£]?\s*([\d,]+)`)
	dateRe      = regexp.MustCompile(`\b(\d{4}-\d{2}-\d{2})\b`)
	destRe      = regexp.MustCompile(`(?i)(?:trip to|travel(?:ing)? to|go(?:ing)? to|fly(?:ing)? to|visit(?:ing)?|vacation (?:in|to))\s+([A-Za-z][A-Za-z ]{1,40}?)(?:\s+(?:for|in|on|from|with|next|this)\b|[.,!?]|$)`)
	originRe    = regexp.MustCompile(`(?i)\bfrom\s+([A-Za-z][A-Za-z ]{1,40}?)(?:\s+(?:for|in|on|to|with|next|this)\b|[.,!?]|$)`)
)

// correctionMarkers signal the user is revising an earlier attribute. The
// bare word "not" is deliberately absent; it only counts as a correction
// when it negates a value the context already holds (see isCorrection).
var correctionMarkers = []string{
	"actually",
	"instead",
	"change that",
	"change it",
	"make that",
	"make it",
	"i meant",
	"scratch that",
}

// Tracker owns context extraction and the session inactivity policy.
type Tracker struct {
	provider         llm.Provider
	presentThreshold float64
	inactivity       time.Duration
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithPresentThreshold overrides the present/uncertain boundary.
func WithPresentThreshold(threshold float64) Option {
	return func(t *Tracker) { t.presentThreshold = threshold }
}

// WithInactivity overrides the session expiry window.
func WithInactivity(d time.Duration) Option {
	return func(t *Tracker) { t.inactivity = d }
}

// New creates a Tracker. provider may be nil; extraction then relies on the
// pattern pass alone.
func New(provider llm.Provider, opts ...Option) *Tracker {
	t := &Tracker{
		provider:         provider,
		presentThreshold: DefaultPresentThreshold,
		inactivity:       DefaultInactivity,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Update extracts trip attributes from the turn and merges them into c. The
// pattern pass and the external extractor merge separately, each at its own
// confidence, so an LLM-only extraction is never promoted by a regex hit on
// a different attribute. It returns the combined extraction for logging and
// tests.
func (t *Tracker) Update(ctx context.Context, c *trip.Context, text string, history []llm.Turn) trip.Extraction {
	patterns := t.extractPatterns(text, c)
	c.Merge(patterns, t.presentThreshold)

	if t.provider != nil {
		if refined, ok := t.extractLLM(ctx, text, history); ok {
			refined.Correction = refined.Correction || patterns.Correction
			c.Merge(refined, t.presentThreshold)
			return combine(patterns, refined)
		}
	}
	return patterns
}

// extractPatterns runs the regex pass. It is the hot path and never fails.
// Confidence is patternConfidence only when at least one pattern hit; a turn
// with no hits carries zero confidence so it cannot promote anything.
func (t *Tracker) extractPatterns(text string, c *trip.Context) trip.Extraction {
	e := trip.Extraction{Correction: isCorrection(text, c)}

	if m := destRe.FindStringSubmatch(text); m != nil {
		e.Destination = strings.TrimSpace(m[1])
	}
	if m := originRe.FindStringSubmatch(text); m != nil {
		e.OriginCity = strings.TrimSpace(m[1])
	}
	if m := durationRe.FindStringSubmatch(text); m != nil {
		e.DurationDays, _ = strconv.Atoi(m[1])
	}
	if m := travelersRe.FindStringSubmatch(text); m != nil {
		e.Travelers, _ = strconv.Atoi(m[1])
	}
	if m := budgetRe.FindStringSubmatch(text); m != nil {
		e.BudgetLimit, _ = strconv.ParseFloat(strings.ReplaceAll(m[1], ",", ""), 64)
	}
	if m := dateRe.FindStringSubmatch(text); m != nil {
		e.StartDate = m[1]
	}

	if e.Destination != "" || e.OriginCity != "" || e.StartDate != "" ||
		e.DurationDays != 0 || e.Travelers != 0 || e.BudgetLimit != 0 {
		e.Confidence = patternConfidence
	}
	return e
}

// extractLLM asks the external extractor for a structured attribute delta.
func (t *Tracker) extractLLM(ctx context.Context, text string, history []llm.Turn) (trip.Extraction, bool) {
	result, err := t.provider.Classify(ctx, &llm.ClassifyRequest{
		Kind:    llm.TaskExtraction,
		Text:    text,
		History: history,
		Vars:    map[string]string{"chat_context": historySummary(history)},
	})
	if err != nil {
		log.Debug().Err(err).Str("component", "tracker").Msg("llm extraction failed, using pattern pass only")
		return trip.Extraction{}, false
	}

	e := trip.Extraction{
		Destination: result.Fields["destination"],
		OriginCity:  result.Fields["origin"],
		StartDate:   result.Fields["date"],
		Currency:    result.Fields["currency"],
		Confidence:  result.Confidence,
		Correction:  result.Fields["correction"] == "true",
	}
	if v := result.Fields["duration"]; v != "" {
		e.DurationDays, _ = strconv.Atoi(strings.TrimSpace(strings.TrimSuffix(v, "days")))
	}
	if v := result.Fields["travelers"]; v != "" {
		e.Travelers, _ = strconv.Atoi(v)
	}
	if v := result.Fields["budget"]; v != "" {
		e.BudgetLimit, _ = strconv.ParseFloat(v, 64)
	}
	if v := result.Fields["interests"]; v != "" {
		for _, interest := range strings.Split(v, ",") {
			if interest = strings.TrimSpace(interest); interest != "" {
				e.Interests = append(e.Interests, interest)
			}
		}
	}

	return e, true
}

// combine overlays the refined extraction on the pattern pass for the
// returned per-turn summary. Both sources have already merged into the
// context at their own confidence; this only reports what the turn yielded.
func combine(patterns, refined trip.Extraction) trip.Extraction {
	out := refined
	if out.Destination == "" {
		out.Destination = patterns.Destination
	}
	if out.OriginCity == "" {
		out.OriginCity = patterns.OriginCity
	}
	if out.StartDate == "" {
		out.StartDate = patterns.StartDate
	}
	if out.DurationDays == 0 {
		out.DurationDays = patterns.DurationDays
	}
	if out.Travelers == 0 {
		out.Travelers = patterns.Travelers
	}
	if out.BudgetLimit == 0 {
		out.BudgetLimit = patterns.BudgetLimit
	}
	if len(out.Interests) == 0 {
		out.Interests = patterns.Interests
	}
	out.Correction = patterns.Correction || refined.Correction
	if patterns.Confidence > out.Confidence {
		out.Confidence = patterns.Confidence
	}
	return out
}

// isCorrection reports whether the turn explicitly revises an earlier
// attribute. "not X" counts only when X restates a value the context
// already holds ("not kyoto, osaka"); an incidental "not" in unrelated
// phrasing never unlocks present slots.
func isCorrection(text string, c *trip.Context) bool {
	lower := strings.ToLower(text)
	for _, marker := range correctionMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	for _, held := range []string{c.Destination.Value, c.OriginCity.Value, c.StartDate.Value} {
		if held != "" && strings.Contains(lower, "not "+strings.ToLower(held)) {
			return true
		}
	}
	return false
}

func historySummary(history []llm.Turn) string {
	if len(history) > 3 {
		history = history[len(history)-3:]
	}
	var parts []string
	for _, turn := range history {
		content := turn.Content
		if len(content) > 100 {
			content = content[:100]
		}
		parts = append(parts, content)
	}
	return strings.Join(parts, " ")
}

// Inactivity returns the session expiry window this tracker enforces.
func (t *Tracker) Inactivity() time.Duration { return t.inactivity }

// ShouldExpire reports whether a session idle since lastActive is past the
// inactivity window.
func (t *Tracker) ShouldExpire(lastActive time.Time) bool {
	return time.Since(lastActive) >= t.inactivity
}
