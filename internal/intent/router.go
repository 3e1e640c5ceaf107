package intent

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/normanking/wayfarer/internal/llm"
)

const (
	// DefaultConfidenceThreshold is the minimum classifier confidence the
	// router accepts. Below it the turn routes to clarification; the
	// system never silently assumes plan intent on uncertain input.
	DefaultConfidenceThreshold = 0.7

	// DefaultRetryBackoff is the pause before the single classifier retry.
	DefaultRetryBackoff = 200 * time.Millisecond
)

// Router classifies each turn into a routing label.
type Router struct {
	provider  llm.Provider
	threshold float64
	backoff   time.Duration

	mu    sync.Mutex
	stats Stats
}

// Option configures a Router.
type Option func(*Router)

// WithConfidenceThreshold overrides the acceptance threshold.
func WithConfidenceThreshold(threshold float64) Option {
	return func(r *Router) { r.threshold = threshold }
}

// WithRetryBackoff overrides the retry backoff.
func WithRetryBackoff(backoff time.Duration) Option {
	return func(r *Router) { r.backoff = backoff }
}

// NewRouter creates a Router backed by the external classifier.
func NewRouter(provider llm.Provider, opts ...Option) *Router {
	r := &Router{
		provider:  provider,
		threshold: DefaultConfidenceThreshold,
		backoff:   DefaultRetryBackoff,
		stats:     Stats{LabelDistribution: make(map[Label]int64)},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Route classifies a turn. inputRejected reports that the safety gate
// already failed this input, in which case unsafe wins unconditionally.
func (r *Router) Route(ctx context.Context, text string, history []llm.Turn, inputRejected bool) *Intent {
	start := time.Now()

	if inputRejected {
		return r.record(&Intent{
			Label:      LabelUnsafe,
			Confidence: 1.0,
			Rationale:  "input rejected by safety gate",
		}, start, false, 0)
	}

	result, retried, err := r.classify(ctx, text, history)
	if err != nil {
		log.Debug().Err(err).Str("component", "intent").Msg("classifier failed, routing to clarification")
		return r.record(&Intent{
			Label:      LabelClarify,
			Confidence: 0,
			Rationale:  "classifier unavailable",
		}, start, true, retried)
	}

	label := mapLabel(result.Label)
	if result.Confidence < r.threshold || label == "" {
		return r.record(&Intent{
			Label:      LabelClarify,
			Confidence: result.Confidence,
			Rationale:  "low-confidence classification: " + result.Label,
		}, start, true, retried)
	}

	return r.record(&Intent{
		Label:      label,
		Confidence: result.Confidence,
		Rationale:  result.Rationale,
	}, start, false, retried)
}

// classify invokes the classifier with a single retry on error.
func (r *Router) classify(ctx context.Context, text string, history []llm.Turn) (*llm.Classification, int, error) {
	req := &llm.ClassifyRequest{Kind: llm.TaskIntent, Text: text, History: history}

	result, err := r.provider.Classify(ctx, req)
	if err == nil {
		return result, 0, nil
	}

	select {
	case <-ctx.Done():
		return nil, 0, ctx.Err()
	case <-time.After(r.backoff):
	}

	result, err = r.provider.Classify(ctx, req)
	if err != nil {
		return nil, 1, err
	}
	return result, 1, nil
}

// ClassifyQuery sub-classifies a follow-up question by plan section.
// A keyword pass answers the common cases without a classifier round trip;
// anything ambiguous goes to the classifier with QueryGeneral as fallback.
func (r *Router) ClassifyQuery(ctx context.Context, text, destination string) QueryKind {
	if kind, ok := matchQueryKeywords(text); ok {
		return kind
	}

	result, err := r.provider.Classify(ctx, &llm.ClassifyRequest{
		Kind: llm.TaskQueryKind,
		Text: text,
		Vars: map[string]string{"destination": destination},
	})
	if err != nil {
		return QueryGeneral
	}

	switch QueryKind(result.Label) {
	case QueryWeather, QueryActivities, QueryNearby, QueryBudget, QueryFlights:
		return QueryKind(result.Label)
	default:
		return QueryGeneral
	}
}

// queryKeywords maps plan sections to their trigger phrases. Matching walks
// queryKindOrder so a text hitting several sections always resolves the
// same way; cost wording outranks the flight words it often rides along.
var queryKeywords = map[QueryKind][]string{
	QueryWeather:    {"weather", "temperature", "rain", "climate", "forecast"},
	QueryActivities: {"activities", "things to do", "attractions", "sightseeing"},
	QueryNearby:     {"nearby", "around", "close to", "vicinity"},
	QueryBudget:     {"budget", "cost", "expense", "price", "money", "spend"},
	QueryFlights:    {"flight", "plane", "airline", "airport", "fly"},
}

var queryKindOrder = []QueryKind{
	QueryWeather, QueryActivities, QueryNearby, QueryBudget, QueryFlights,
}

func matchQueryKeywords(text string) (QueryKind, bool) {
	lower := strings.ToLower(text)
	for _, kind := range queryKindOrder {
		for _, w := range queryKeywords[kind] {
			if strings.Contains(lower, w) {
				return kind, true
			}
		}
	}
	return QueryGeneral, false
}

// mapLabel converts a classifier label to a routing label. "chat" and
// unknown labels collapse to clarification.
func mapLabel(s string) Label {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "explore":
		return LabelExplore
	case "plan":
		return LabelPlan
	case "followup", "followup-query", "follow-up":
		return LabelFollowup
	case "chat", "general":
		return LabelClarify
	default:
		return ""
	}
}

func (r *Router) record(intent *Intent, start time.Time, fallback bool, retries int) *Intent {
	intent.ClassifiedAt = time.Now()
	intent.Duration = time.Since(start)

	r.mu.Lock()
	r.stats.TotalTurns++
	r.stats.Retries += int64(retries)
	if fallback {
		r.stats.Fallbacks++
	}
	r.stats.LabelDistribution[intent.Label]++
	total := float64(r.stats.TotalTurns)
	r.stats.AverageConfidence = (r.stats.AverageConfidence*(total-1) + intent.Confidence) / total
	r.mu.Unlock()

	return intent
}

// Stats returns a copy of the routing statistics.
func (r *Router) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()

	dist := make(map[Label]int64, len(r.stats.LabelDistribution))
	for k, v := range r.stats.LabelDistribution {
		dist[k] = v
	}
	s := r.stats
	s.LabelDistribution = dist
	return s
}
