package tools

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/semaphore"

	"github.com/normanking/wayfarer/internal/cache"
	"github.com/normanking/wayfarer/internal/trip"
)

const (
	// DefaultMaxConcurrent bounds the number of tools running at once.
	DefaultMaxConcurrent = 4

	// DefaultPerToolTimeout is the budget for a single provider call.
	DefaultPerToolTimeout = 8 * time.Second

	// DefaultCeiling is the overall budget for one fan-out.
	DefaultCeiling = 20 * time.Second

	// DefaultTTL applies to categories without an explicit cache TTL.
	DefaultTTL = 10 * time.Minute
)

// OrchestratorStats tracks fan-out activity.
type OrchestratorStats struct {
	Dispatched int64
	Succeeded  int64
	Failed     int64
	CacheHits  int64
	mu         sync.Mutex
}

// Orchestrator owns the tool registry and runs the concurrent fan-out.
// Results are always settled: every applicable category yields either a
// payload or a tagged failure.
type Orchestrator struct {
	mu           sync.RWMutex
	registry     map[trip.ToolCategory]Tool
	cache        *cache.Cache
	ttls         map[trip.ToolCategory]time.Duration
	maxInFlight  int64
	perToolLimit time.Duration
	ceiling      time.Duration
	homeCurrency string
	notify       Notifier
	stats        OrchestratorStats
	logger       zerolog.Logger
}

// OrchestratorOption configures an Orchestrator.
type OrchestratorOption func(*Orchestrator)

// WithCache enables result memoization for repeated requests.
func WithCache(c *cache.Cache) OrchestratorOption {
	return func(o *Orchestrator) { o.cache = c }
}

// WithTTL overrides the cache TTL for one category.
func WithTTL(cat trip.ToolCategory, ttl time.Duration) OrchestratorOption {
	return func(o *Orchestrator) { o.ttls[cat] = ttl }
}

// WithMaxConcurrent bounds simultaneous provider calls.
func WithMaxConcurrent(n int) OrchestratorOption {
	return func(o *Orchestrator) {
		if n > 0 {
			o.maxInFlight = int64(n)
		}
	}
}

// WithPerToolTimeout sets the single-call budget.
func WithPerToolTimeout(d time.Duration) OrchestratorOption {
	return func(o *Orchestrator) {
		if d > 0 {
			o.perToolLimit = d
		}
	}
}

// WithCeiling sets the overall fan-out budget.
func WithCeiling(d time.Duration) OrchestratorOption {
	return func(o *Orchestrator) {
		if d > 0 {
			o.ceiling = d
		}
	}
}

// WithHomeCurrency sets the traveler's settlement currency used for
// exchange-rate lookups.
func WithHomeCurrency(code string) OrchestratorOption {
	return func(o *Orchestrator) {
		if code != "" {
			o.homeCurrency = code
		}
	}
}

// WithNotifier attaches a progress callback.
func WithNotifier(n Notifier) OrchestratorOption {
	return func(o *Orchestrator) { o.notify = n }
}

// NewOrchestrator creates an orchestrator with the given tools registered.
func NewOrchestrator(toolset []Tool, opts ...OrchestratorOption) *Orchestrator {
	o := &Orchestrator{
		registry:     make(map[trip.ToolCategory]Tool),
		ttls:         make(map[trip.ToolCategory]time.Duration),
		maxInFlight:  DefaultMaxConcurrent,
		perToolLimit: DefaultPerToolTimeout,
		ceiling:      DefaultCeiling,
		homeCurrency: "EUR",
		logger:       log.With().Str("component", "tools").Logger(),
	}
	for _, opt := range opts {
		opt(o)
	}
	for _, t := range toolset {
		o.registry[t.Category()] = t
	}
	return o
}

// Register adds or replaces a tool.
func (o *Orchestrator) Register(t Tool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.registry[t.Category()] = t
}

// Registered reports whether a category has a tool.
func (o *Orchestrator) Registered(cat trip.ToolCategory) bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	_, ok := o.registry[cat]
	return ok
}

// BuildRequests derives the applicable tool requests from a trip context.
// A category is included only when the slots it needs are present.
func (o *Orchestrator) BuildRequests(c *trip.Context) []*trip.ToolRequest {
	var reqs []*trip.ToolRequest
	if c == nil {
		return reqs
	}

	dest := c.Destination.Present()
	origin := c.OriginCity.Present()
	date := c.StartDate.Present()
	duration := c.DurationDays.Present()

	if o.Registered(trip.ToolFlight) && dest && origin && date {
		reqs = append(reqs, &trip.ToolRequest{
			Category: trip.ToolFlight,
			Params: map[string]string{
				"origin":      c.OriginCity.Value,
				"destination": c.Destination.Value,
				"date":        c.StartDate.Value,
				"travelers":   strconv.Itoa(c.TravelerCount()),
			},
		})
	}
	if o.Registered(trip.ToolWeather) && dest && date {
		reqs = append(reqs, &trip.ToolRequest{
			Category: trip.ToolWeather,
			Params: map[string]string{
				"destination": c.Destination.Value,
				"date":        c.StartDate.Value,
			},
		})
	}
	if o.Registered(trip.ToolActivity) && dest {
		params := map[string]string{"destination": c.Destination.Value}
		if len(c.Interests) > 0 {
			params["interests"] = strings.Join(c.Interests, ",")
		}
		reqs = append(reqs, &trip.ToolRequest{Category: trip.ToolActivity, Params: params})
	}
	if o.Registered(trip.ToolBudget) && dest && duration {
		params := map[string]string{
			"destination": c.Destination.Value,
			"duration":    strconv.Itoa(c.DurationDays.Value),
			"travelers":   strconv.Itoa(c.TravelerCount()),
		}
		if c.BudgetLimit.Present() {
			params["limit"] = strconv.FormatFloat(c.BudgetLimit.Value, 'f', 2, 64)
		}
		reqs = append(reqs, &trip.ToolRequest{Category: trip.ToolBudget, Params: params})
	}
	if o.Registered(trip.ToolMap) && dest {
		reqs = append(reqs, &trip.ToolRequest{
			Category: trip.ToolMap,
			Params:   map[string]string{"destination": c.Destination.Value},
		})
	}
	if o.Registered(trip.ToolCurrency) && dest {
		to := o.homeCurrency
		if c.Currency.Present() {
			to = c.Currency.Value
		}
		reqs = append(reqs, &trip.ToolRequest{
			Category: trip.ToolCurrency,
			Params: map[string]string{
				"amount": "1",
				"from":   "USD",
				"to":     to,
			},
		})
	}
	return reqs
}

// Execute fans the requests out concurrently and returns one settled result
// per request. Individual failures never abort the batch; an exhausted
// ceiling marks the remaining tasks as timed out.
func (o *Orchestrator) Execute(ctx context.Context, reqs []*trip.ToolRequest) map[trip.ToolCategory]*trip.ToolResult {
	results := make(map[trip.ToolCategory]*trip.ToolResult, len(reqs))
	if len(reqs) == 0 {
		return results
	}

	ctx, cancel := context.WithTimeout(ctx, o.ceiling)
	defer cancel()

	sem := semaphore.NewWeighted(o.maxInFlight)
	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)

	for _, req := range reqs {
		req := req
		wg.Add(1)
		go func() {
			defer wg.Done()
			res := o.runOne(ctx, sem, req)
			mu.Lock()
			results[req.Category] = res
			mu.Unlock()
		}()
	}
	wg.Wait()
	return results
}

func (o *Orchestrator) runOne(ctx context.Context, sem *semaphore.Weighted, req *trip.ToolRequest) *trip.ToolResult {
	o.stats.mu.Lock()
	o.stats.Dispatched++
	o.stats.mu.Unlock()

	if err := sem.Acquire(ctx, 1); err != nil {
		return o.settleFailure(req, err, 0)
	}
	defer sem.Release(1)

	o.emit(ProgressEvent{Category: req.Category, Status: ProgressStarted})

	o.mu.RLock()
	tool, ok := o.registry[req.Category]
	o.mu.RUnlock()
	if !ok {
		res := trip.Failed(req.Category, trip.FailureProviderError, "no tool registered", 0)
		o.emit(ProgressEvent{Category: req.Category, Status: ProgressFailed})
		return res
	}

	start := time.Now()
	payload, cached, err := o.fetch(ctx, tool, req)
	elapsed := time.Since(start)

	if err != nil {
		res := o.settleFailure(req, err, elapsed)
		o.emit(ProgressEvent{Category: req.Category, Status: ProgressFailed})
		return res
	}

	o.stats.mu.Lock()
	o.stats.Succeeded++
	if cached {
		o.stats.CacheHits++
	}
	o.stats.mu.Unlock()

	o.emit(ProgressEvent{Category: req.Category, Status: ProgressFinished})
	return &trip.ToolResult{
		Category: req.Category,
		Payload:  payload,
		Cached:   cached,
		Duration: elapsed,
	}
}

// fetch runs the provider call behind the cache when one is configured.
func (o *Orchestrator) fetch(ctx context.Context, tool Tool, req *trip.ToolRequest) (*trip.ToolPayload, bool, error) {
	call := func(ctx context.Context) (*trip.ToolPayload, error) {
		callCtx, cancel := context.WithTimeout(ctx, o.perToolLimit)
		defer cancel()
		return tool.Execute(callCtx, req)
	}

	if o.cache == nil {
		p, err := call(ctx)
		return p, false, err
	}

	key := cache.RequestKey(req)
	ttl := o.ttls[req.Category]
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	val, fromCache, err := o.cache.GetOrFetch(ctx, key, ttl, func(ctx context.Context) (any, error) {
		return call(ctx)
	})
	if err != nil {
		return nil, false, err
	}
	payload, ok := val.(*trip.ToolPayload)
	if !ok {
		return nil, false, fmt.Errorf("%w: unexpected cached value for %s", ErrInvalidResponse, req.Category)
	}
	return payload, fromCache, nil
}

func (o *Orchestrator) settleFailure(req *trip.ToolRequest, err error, elapsed time.Duration) *trip.ToolResult {
	o.stats.mu.Lock()
	o.stats.Failed++
	o.stats.mu.Unlock()

	reason := classifyFailure(err)
	o.logger.Warn().
		Str("tool", string(req.Category)).
		Str("reason", string(reason)).
		Dur("elapsed", elapsed).
		Err(err).
		Msg("tool call failed")

	return trip.Failed(req.Category, reason, err.Error(), elapsed)
}

func classifyFailure(err error) trip.FailureReason {
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return trip.FailureTimeout
	case errors.Is(err, ErrInvalidResponse):
		return trip.FailureInvalidResponse
	default:
		return trip.FailureProviderError
	}
}

func (o *Orchestrator) emit(ev ProgressEvent) {
	if o.notify != nil {
		o.notify(ev)
	}
}

// Stats returns a snapshot of fan-out counters.
func (o *Orchestrator) Stats() (dispatched, succeeded, failed, cacheHits int64) {
	o.stats.mu.Lock()
	defer o.stats.mu.Unlock()
	return o.stats.Dispatched, o.stats.Succeeded, o.stats.Failed, o.stats.CacheHits
}
