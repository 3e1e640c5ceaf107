package engine

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/normanking/wayfarer/internal/assembler"
	"github.com/normanking/wayfarer/internal/intent"
	"github.com/normanking/wayfarer/internal/llm"
	"github.com/normanking/wayfarer/internal/logging"
	"github.com/normanking/wayfarer/internal/safety"
	"github.com/normanking/wayfarer/internal/session"
	"github.com/normanking/wayfarer/internal/tools"
	"github.com/normanking/wayfarer/internal/tracker"
	"github.com/normanking/wayfarer/internal/trip"
)

// DefaultTurnTimeout bounds one full turn.
const DefaultTurnTimeout = 60 * time.Second

// Response is the outcome of one conversation turn.
type Response struct {
	SessionID   string               `json:"session_id"`
	Intent      intent.Label         `json:"intent"`
	Text        string               `json:"text"`
	Plan        *trip.TripPlan       `json:"plan,omitempty"`
	Suggestions *trip.SuggestionList `json:"suggestions,omitempty"`
	Missing     []string             `json:"missing,omitempty"`
	Degraded    []trip.ToolCategory  `json:"degraded,omitempty"`
	Refused     bool                 `json:"refused,omitempty"`
	Trace       []State              `json:"trace,omitempty"`
	Duration    time.Duration        `json:"duration"`
}

// Stats is a snapshot of turn counters.
type Stats struct {
	Turns          int64
	Refusals       int64
	Clarifications int64
	PlansBuilt     int64
	DegradedPlans  int64
	StoreFailures  int64
}

// Engine wires the pipeline components and drives each turn through the
// state machine.
type Engine struct {
	router       *intent.Router
	tracker      *tracker.Tracker
	gate         *safety.Gate
	orchestrator *tools.Orchestrator
	assembler    *assembler.Assembler
	sessions     *session.Manager
	provider     llm.Provider
	turnTimeout  time.Duration
	logger       zerolog.Logger

	statsMu sync.Mutex
	stats   Stats
}

// Option configures an Engine.
type Option func(*Engine)

// WithTurnTimeout bounds one full turn.
func WithTurnTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.turnTimeout = d
		}
	}
}

// New creates the engine from its pipeline components.
func New(
	router *intent.Router,
	trk *tracker.Tracker,
	gate *safety.Gate,
	orch *tools.Orchestrator,
	asm *assembler.Assembler,
	sessions *session.Manager,
	provider llm.Provider,
	opts ...Option,
) *Engine {
	e := &Engine{
		router:       router,
		tracker:      trk,
		gate:         gate,
		orchestrator: orch,
		assembler:    asm,
		sessions:     sessions,
		provider:     provider,
		turnTimeout:  DefaultTurnTimeout,
		logger:       log.With().Str("component", "engine").Logger(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// turn is the mutable state threaded through one HandleTurn call.
type turn struct {
	state    State
	trace    []State
	sess     *session.Session
	text     string
	verdict  *safety.Verdict
	intent   *intent.Intent
	resp     *Response
	validate bool // response text must pass output validation
}

// advance applies a pipeline event and records the trace.
func (e *Engine) advance(t *turn, ev Event) {
	next, ok := Transition(t.state, ev)
	if !ok {
		e.logger.Error().
			Str("state", string(t.state)).
			Str("event", string(ev)).
			Msg("illegal pipeline transition")
		return
	}
	t.state = next
	t.trace = append(t.trace, next)
}

// HandleTurn processes one user message for a session. The returned error is
// non-nil only for session store failures; every other problem degrades into
// a conversational response.
func (e *Engine) HandleTurn(ctx context.Context, sessionID, text string) (*Response, error) {
	ctx, cancel := context.WithTimeout(ctx, e.turnTimeout)
	defer cancel()
	start := time.Now()

	e.statsMu.Lock()
	e.stats.Turns++
	e.statsMu.Unlock()

	t := &turn{state: StateStart, text: strings.TrimSpace(text)}
	e.advance(t, EventBegin)

	// One turn at a time per session.
	release := e.sessions.Acquire(sessionID)
	defer release()

	sess, err := e.sessions.Get(ctx, sessionID)
	if err != nil {
		e.statsMu.Lock()
		e.stats.StoreFailures++
		e.statsMu.Unlock()
		return nil, &SessionStoreFailure{Op: "load", Err: err}
	}
	t.sess = sess
	t.resp = &Response{SessionID: sess.ID}

	e.screenInput(ctx, t)
	e.extract(ctx, t)
	e.classify(ctx, t)

	switch t.intent.Label {
	case intent.LabelUnsafe:
		e.advance(t, EventIntentUnsafe)
		e.refuse(t)
	case intent.LabelClarify:
		e.advance(t, EventIntentClarify)
		e.clarify(t)
	case intent.LabelExplore:
		e.advance(t, EventIntentExplore)
		e.explore(ctx, t)
	case intent.LabelPlan:
		e.advance(t, EventIntentPlan)
		e.plan(ctx, t)
	case intent.LabelFollowup:
		e.advance(t, EventIntentFollowup)
		e.followup(ctx, t)
	}

	if t.state == StateOutputSafety {
		if t.validate {
			e.validateOutput(ctx, t)
		} else {
			// Canned text is already safe.
			e.advance(t, EventOutputChecked)
		}
	}

	if err := e.persist(ctx, t); err != nil {
		return nil, err
	}

	t.resp.Trace = t.trace
	t.resp.Duration = time.Since(start)
	e.logger.Info().
		Str("session", sess.ID).
		Str("intent", string(t.resp.Intent)).
		Bool("refused", t.resp.Refused).
		Dur("elapsed", t.resp.Duration).
		Msg("turn complete")
	return t.resp, nil
}

func (e *Engine) screenInput(ctx context.Context, t *turn) {
	t.verdict = e.gate.ScreenInput(ctx, t.text)
	if t.verdict.Safe {
		e.advance(t, EventInputSafe)
		return
	}
	e.advance(t, EventInputUnsafe)
}

func (e *Engine) extract(ctx context.Context, t *turn) {
	if t.state != StateExtraction {
		// Rejected input never updates the trip context.
		return
	}
	e.tracker.Update(ctx, t.sess.Context, t.text, t.sess.History)
	e.advance(t, EventExtracted)
}

func (e *Engine) classify(ctx context.Context, t *turn) {
	t.intent = e.router.Route(ctx, t.text, t.sess.History, !t.verdict.Safe)
	t.resp.Intent = t.intent.Label
}

func (e *Engine) refuse(t *turn) {
	e.statsMu.Lock()
	e.stats.Refusals++
	e.statsMu.Unlock()

	t.resp.Refused = true
	t.resp.Text = safety.RefusalFor(t.verdict.Category)
	e.advance(t, EventResponseReady)
}

func (e *Engine) clarify(t *turn) {
	e.statsMu.Lock()
	e.stats.Clarifications++
	e.statsMu.Unlock()

	if missing := t.sess.Context.MissingForPlanning(); t.text != "" && len(missing) < 3 && len(missing) > 0 {
		// Mid-planning conversation: ask for what is still needed.
		t.resp.Missing = missing
		t.resp.Text = missingPrompt(missing)
	} else {
		t.resp.Text = "I can help you explore destination ideas or plan a specific trip. " +
			"Could you tell me a bit more about where you'd like to go, or what kind of trip you have in mind?"
	}
	e.advance(t, EventResponseReady)
}

func (e *Engine) explore(ctx context.Context, t *turn) {
	prefs := t.text
	if interests := strings.Join(t.sess.Context.Interests, ", "); interests != "" {
		prefs += " (interests so far: " + interests + ")"
	}

	list, err := e.assembler.Suggest(ctx, prefs)
	if err != nil {
		e.logger.Warn().Err(err).Msg("destination suggestions failed")
		if prev := t.sess.Suggestions; prev != nil {
			// Serve the session's last suggestion list over nothing.
			t.resp.Suggestions = prev
			t.resp.Text = prev.Raw
			e.advance(t, EventResponseReady)
			return
		}
		t.resp.Text = "I couldn't put together destination ideas just now. Could you try again, or tell me a specific place you're considering?"
		e.advance(t, EventResponseReady)
		return
	}

	t.sess.Suggestions = list
	t.resp.Suggestions = list
	t.resp.Text = list.Raw
	t.validate = true
	e.advance(t, EventResponseReady)
}

func (e *Engine) plan(ctx context.Context, t *turn) {
	missing := t.sess.Context.MissingForPlanning()
	if len(missing) > 0 {
		verr := &ValidationError{Missing: missing}
		e.logger.Debug().Err(verr).Msg("planning validation incomplete")
		e.advance(t, EventSlotsMissing)

		e.statsMu.Lock()
		e.stats.Clarifications++
		e.statsMu.Unlock()

		t.resp.Missing = missing
		t.resp.Text = missingPrompt(missing)
		e.advance(t, EventResponseReady)
		return
	}
	e.advance(t, EventSlotsComplete)

	reqs := e.orchestrator.BuildRequests(t.sess.Context)
	results := e.orchestrator.Execute(ctx, reqs)
	e.advance(t, EventToolsSettled)

	plan := e.assembler.Assemble(ctx, t.sess.Context, results)
	t.sess.LastPlan = plan

	text := plan.Narrative
	if e.gate.AssessDestination(ctx, t.sess.Context.Destination.Value) {
		text = destinationAdvisory(t.sess.Context.Destination.Value) + "\n\n" + text
	}

	e.statsMu.Lock()
	e.stats.PlansBuilt++
	e.statsMu.Unlock()

	if degraded := plan.Degraded(); len(degraded) > 0 {
		e.statsMu.Lock()
		e.stats.DegradedPlans++
		e.statsMu.Unlock()
		e.logger.Warn().Err(&ToolFailure{Categories: degraded}).Msg("plan degraded")
		t.resp.Degraded = degraded
	}

	t.resp.Plan = plan
	t.resp.Text = text
	t.validate = true
	e.advance(t, EventResponseReady)
}

func (e *Engine) followup(ctx context.Context, t *turn) {
	plan := t.sess.LastPlan
	if plan == nil {
		e.statsMu.Lock()
		e.stats.Clarifications++
		e.statsMu.Unlock()
		t.resp.Text = "I don't have a trip plan for this conversation yet. Tell me where you'd like to go and I'll put one together."
		e.advance(t, EventResponseReady)
		return
	}

	dest := plan.Snapshot.Destination.Value
	kind := e.router.ClassifyQuery(ctx, t.text, dest)
	sections := sectionData(plan, kind)

	answer, err := e.provider.Generate(ctx, &llm.GenerateRequest{
		Template: llm.PromptFollowupAnswer,
		Vars: map[string]string{
			"user_input":   t.text,
			"destination":  dest,
			"section_data": sections,
		},
	})
	if err != nil || strings.TrimSpace(answer) == "" {
		e.logger.Warn().Err(err).Msg("followup generation failed, returning section data")
		answer = sections
	}

	t.resp.Plan = plan
	t.resp.Text = strings.TrimSpace(answer)
	t.validate = true
	e.advance(t, EventResponseReady)
}

// validateOutput screens generated text, rewriting it once on a violation
// and falling back to the canned safe response when the rewrite also fails.
func (e *Engine) validateOutput(ctx context.Context, t *turn) {
	defer e.advance(t, EventOutputChecked)

	verdict := e.gate.ValidateOutput(ctx, t.resp.Text, t.text)
	if verdict.Safe {
		return
	}

	viol := &SafetyViolation{Stage: "output", Category: verdict.Category}
	e.logger.Warn().Err(viol).Msg("response failed output validation, rewriting")

	rewritten, err := e.provider.Generate(ctx, &llm.GenerateRequest{
		Template: llm.PromptSafeRewrite,
		Vars:     map[string]string{"response": t.resp.Text},
		Strict:   true,
	})
	if err == nil && strings.TrimSpace(rewritten) != "" {
		if again := e.gate.ValidateOutput(ctx, rewritten, t.text); again.Safe {
			t.resp.Text = strings.TrimSpace(rewritten)
			return
		}
	}

	t.resp.Text = safety.SafeFallback
	t.resp.Plan = nil
	t.resp.Suggestions = nil
}

func (e *Engine) persist(ctx context.Context, t *turn) error {
	t.sess.AppendTurn("user", t.text)
	t.sess.AppendTurn("assistant", t.resp.Text)

	// Persist even when the turn deadline already fired.
	ctx, cancel := logging.DetachContextWithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := e.sessions.Save(ctx, t.sess); err != nil {
		e.statsMu.Lock()
		e.stats.StoreFailures++
		e.statsMu.Unlock()
		return &SessionStoreFailure{Op: "save", Err: err}
	}
	e.advance(t, EventSaved)
	return nil
}

// Stats returns a snapshot of turn counters.
func (e *Engine) Stats() Stats {
	e.statsMu.Lock()
	defer e.statsMu.Unlock()
	return e.stats
}

// sectionData selects the plan sections relevant to a follow-up query.
func sectionData(plan *trip.TripPlan, kind intent.QueryKind) string {
	var cats []trip.ToolCategory
	switch kind {
	case intent.QueryWeather:
		cats = []trip.ToolCategory{trip.ToolWeather}
	case intent.QueryActivities:
		cats = []trip.ToolCategory{trip.ToolActivity}
	case intent.QueryNearby:
		cats = []trip.ToolCategory{trip.ToolMap}
	case intent.QueryBudget:
		cats = []trip.ToolCategory{trip.ToolBudget, trip.ToolCurrency}
	case intent.QueryFlights:
		cats = []trip.ToolCategory{trip.ToolFlight, trip.ToolCurrency}
	default:
		cats = trip.AllCategories()
	}

	var sb strings.Builder
	for _, cat := range cats {
		s := plan.Section(cat)
		if s == nil {
			continue
		}
		if s.Unavailable() {
			fmt.Fprintf(&sb, "%s: data was unavailable when the plan was built.\n", cat)
			continue
		}
		fmt.Fprintf(&sb, "%s:\n%s\n", cat, s.Body)
	}
	if sb.Len() == 0 {
		return "No relevant data in the current plan."
	}
	return strings.TrimSpace(sb.String())
}

func missingPrompt(missing []string) string {
	return fmt.Sprintf(
		"Happy to plan that trip. I still need a few details: %s. Could you fill those in?",
		strings.Join(missing, ", "))
}

func destinationAdvisory(dest string) string {
	return fmt.Sprintf(
		"A note before you book: %s currently warrants extra caution. Please check your government's travel advisories and local guidance before finalizing plans.",
		strings.TrimSpace(dest))
}
