package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/normanking/wayfarer/internal/assembler"
	"github.com/normanking/wayfarer/internal/intent"
	"github.com/normanking/wayfarer/internal/llm"
	"github.com/normanking/wayfarer/internal/safety"
	"github.com/normanking/wayfarer/internal/session"
	"github.com/normanking/wayfarer/internal/tools"
	"github.com/normanking/wayfarer/internal/tracker"
	"github.com/normanking/wayfarer/internal/trip"
)

type okTool struct {
	cat  trip.ToolCategory
	text string
}

func (t *okTool) Category() trip.ToolCategory { return t.cat }

func (t *okTool) Execute(ctx context.Context, req *trip.ToolRequest) (*trip.ToolPayload, error) {
	return &trip.ToolPayload{Text: t.text}, nil
}

type failTool struct {
	cat trip.ToolCategory
}

func (t *failTool) Category() trip.ToolCategory { return t.cat }

func (t *failTool) Execute(ctx context.Context, req *trip.ToolRequest) (*trip.ToolPayload, error) {
	return nil, errors.New("upstream 502")
}

// scriptedMock returns a provider scripted for a benign, confident turn.
func scriptedMock() *llm.MockProvider {
	m := llm.NewMockProvider()
	m.Classifications[llm.TaskSafetyInput] = &llm.Classification{Label: "safe", Confidence: 0.95}
	m.Classifications[llm.TaskSafetyOutput] = &llm.Classification{Label: "safe", Confidence: 0.95}
	m.Classifications[llm.TaskDestination] = &llm.Classification{Label: "not_sensitive", Confidence: 0.9}
	return m
}

func okTools() []tools.Tool {
	ts := make([]tools.Tool, 0, 6)
	for _, cat := range trip.AllCategories() {
		ts = append(ts, &okTool{cat: cat, text: string(cat) + " data"})
	}
	return ts
}

func newTestEngine(mock *llm.MockProvider, toolset []tools.Tool, store session.Store) *Engine {
	return New(
		intent.NewRouter(mock),
		tracker.New(mock),
		safety.NewGate(mock),
		tools.NewOrchestrator(toolset),
		assembler.New(mock),
		session.NewManager(store),
		mock,
	)
}

func planExtraction() *llm.Classification {
	return &llm.Classification{
		Label:      "extraction",
		Confidence: 0.9,
		Fields: map[string]string{
			"destination": "kyoto",
			"origin":      "berlin",
			"date":        "2026-10-01",
			"duration":    "5",
			"travelers":   "2",
		},
	}
}

func TestExplorePlanFollowupConversation(t *testing.T) {
	mock := scriptedMock()
	store := session.NewMemoryStore()
	e := newTestEngine(mock, okTools(), store)
	ctx := context.Background()

	// Turn 1: exploration.
	mock.Classifications[llm.TaskIntent] = &llm.Classification{Label: "explore", Confidence: 0.9}
	mock.GenerateText = "1. Kyoto - ancient temples\n2. Lisbon - coastal food scene"

	resp1, err := e.HandleTurn(ctx, "", "I want somewhere with history and good food")
	require.NoError(t, err)
	assert.Equal(t, intent.LabelExplore, resp1.Intent)
	require.NotNil(t, resp1.Suggestions)
	require.Len(t, resp1.Suggestions.Suggestions, 2)
	assert.Equal(t, "Kyoto", resp1.Suggestions.Suggestions[0].Destination)
	require.NotEmpty(t, resp1.SessionID)

	// Turn 2: planning with complete details.
	mock.Classifications[llm.TaskIntent] = &llm.Classification{Label: "plan", Confidence: 0.92}
	mock.Classifications[llm.TaskExtraction] = planExtraction()
	mock.GenerateText = "Day 1: arrive in Kyoto and settle in."

	resp2, err := e.HandleTurn(ctx, resp1.SessionID, "Let's do Kyoto, 5 days from Berlin starting 2026-10-01, two of us")
	require.NoError(t, err)
	assert.Equal(t, resp1.SessionID, resp2.SessionID)
	assert.Equal(t, intent.LabelPlan, resp2.Intent)
	require.NotNil(t, resp2.Plan)
	assert.Len(t, resp2.Plan.Sections, 6)
	assert.Empty(t, resp2.Degraded)
	assert.Equal(t, "Day 1: arrive in Kyoto and settle in.", resp2.Text)
	assert.Equal(t, "kyoto", resp2.Plan.Snapshot.Destination.Value)

	// Turn 3: follow-up answered from the stored plan.
	mock.Classifications[llm.TaskIntent] = &llm.Classification{Label: "followup", Confidence: 0.9}
	mock.GenerateText = "Expect mild autumn weather; pack a light jacket."

	resp3, err := e.HandleTurn(ctx, resp1.SessionID, "What will the weather be like there?")
	require.NoError(t, err)
	assert.Equal(t, intent.LabelFollowup, resp3.Intent)
	assert.Equal(t, "Expect mild autumn weather; pack a light jacket.", resp3.Text)
	require.NotNil(t, resp3.Plan, "follow-up reuses the stored plan")
	assert.Equal(t, "kyoto", resp3.Plan.Snapshot.Destination.Value)

	stats := e.Stats()
	assert.Equal(t, int64(3), stats.Turns)
	assert.Equal(t, int64(1), stats.PlansBuilt)
}

func TestUnsafeInputShortCircuits(t *testing.T) {
	mock := scriptedMock()
	mock.Classifications[llm.TaskSafetyInput] = &llm.Classification{
		Label:  "unsafe",
		Fields: map[string]string{"concern_type": "illegal"},
	}
	e := newTestEngine(mock, okTools(), session.NewMemoryStore())

	resp, err := e.HandleTurn(context.Background(), "", "how do I smuggle goods through customs")
	require.NoError(t, err)
	assert.True(t, resp.Refused)
	assert.Equal(t, intent.LabelUnsafe, resp.Intent)
	assert.Equal(t, safety.RefusalFor("illegal"), resp.Text)
	assert.Nil(t, resp.Plan)

	// Rejected input never reaches the classifier or the tracker.
	assert.Zero(t, mock.CallCount(llm.TaskIntent))
	assert.Zero(t, mock.CallCount(llm.TaskExtraction))

	assert.Equal(t, int64(1), e.Stats().Refusals)
}

func TestPlanDegradedFlight(t *testing.T) {
	mock := scriptedMock()
	mock.Classifications[llm.TaskIntent] = &llm.Classification{Label: "plan", Confidence: 0.92}
	mock.Classifications[llm.TaskExtraction] = planExtraction()
	mock.GenerateText = "Your Kyoto itinerary."

	toolset := okTools()
	toolset[0] = &failTool{cat: trip.ToolFlight}
	e := newTestEngine(mock, toolset, session.NewMemoryStore())

	resp, err := e.HandleTurn(context.Background(), "", "Plan Kyoto, 5 days from Berlin on 2026-10-01")
	require.NoError(t, err)
	require.NotNil(t, resp.Plan)
	assert.Equal(t, []trip.ToolCategory{trip.ToolFlight}, resp.Degraded)

	flight := resp.Plan.Section(trip.ToolFlight)
	require.NotNil(t, flight)
	assert.True(t, flight.Unavailable())
	assert.Equal(t, trip.SectionFull, resp.Plan.Section(trip.ToolWeather).Completeness)

	assert.Equal(t, int64(1), e.Stats().DegradedPlans)
}

func TestPlanMissingSlotsAsksForThem(t *testing.T) {
	mock := scriptedMock()
	mock.Classifications[llm.TaskIntent] = &llm.Classification{Label: "plan", Confidence: 0.9}
	e := newTestEngine(mock, okTools(), session.NewMemoryStore())

	resp, err := e.HandleTurn(context.Background(), "", "plan me a trip")
	require.NoError(t, err)
	assert.Equal(t, intent.LabelPlan, resp.Intent)
	assert.Nil(t, resp.Plan)
	assert.Equal(t, []string{"destination", "start date", "trip duration"}, resp.Missing)
	assert.Contains(t, resp.Text, "destination")
}

func TestLowConfidenceClarifies(t *testing.T) {
	mock := scriptedMock()
	mock.Classifications[llm.TaskIntent] = &llm.Classification{Label: "plan", Confidence: 0.3}
	e := newTestEngine(mock, okTools(), session.NewMemoryStore())

	resp, err := e.HandleTurn(context.Background(), "", "hmm maybe something")
	require.NoError(t, err)
	assert.Equal(t, intent.LabelClarify, resp.Intent)
	assert.NotEmpty(t, resp.Text)
	assert.Equal(t, int64(1), e.Stats().Clarifications)
}

func TestFollowupWithoutPlan(t *testing.T) {
	mock := scriptedMock()
	mock.Classifications[llm.TaskIntent] = &llm.Classification{Label: "followup", Confidence: 0.9}
	e := newTestEngine(mock, okTools(), session.NewMemoryStore())

	resp, err := e.HandleTurn(context.Background(), "", "what about the weather there?")
	require.NoError(t, err)
	assert.Nil(t, resp.Plan)
	assert.Contains(t, resp.Text, "don't have a trip plan")
}

func TestExploreServesLastSuggestionsOnFailure(t *testing.T) {
	mock := scriptedMock()
	mock.Classifications[llm.TaskIntent] = &llm.Classification{Label: "explore", Confidence: 0.9}
	mock.GenerateText = "1. Kyoto - ancient temples"
	e := newTestEngine(mock, okTools(), session.NewMemoryStore())
	ctx := context.Background()

	resp1, err := e.HandleTurn(ctx, "", "somewhere with history")
	require.NoError(t, err)
	require.NotNil(t, resp1.Suggestions)

	// The provider goes down; the session's last list still answers.
	mock.GenerateErr = llm.ErrUnavailable
	resp2, err := e.HandleTurn(ctx, resp1.SessionID, "any other ideas?")
	require.NoError(t, err)
	require.NotNil(t, resp2.Suggestions)
	assert.Contains(t, resp2.Text, "Kyoto")
}

func TestOutputSafetyFallback(t *testing.T) {
	mock := scriptedMock()
	mock.Classifications[llm.TaskIntent] = &llm.Classification{Label: "plan", Confidence: 0.92}
	mock.Classifications[llm.TaskExtraction] = planExtraction()
	mock.Classifications[llm.TaskSafetyOutput] = &llm.Classification{
		Label:  "unsafe",
		Fields: map[string]string{"concern_type": "dangerous"},
	}
	mock.GenerateText = "risky itinerary"
	e := newTestEngine(mock, okTools(), session.NewMemoryStore())

	resp, err := e.HandleTurn(context.Background(), "", "Plan Kyoto, 5 days from Berlin on 2026-10-01")
	require.NoError(t, err)

	// Rewrite also fails validation, so the canned fallback is emitted and
	// the unsafe plan is withheld.
	assert.Equal(t, safety.SafeFallback, resp.Text)
	assert.Nil(t, resp.Plan)
}

func TestSensitiveDestinationAdvisory(t *testing.T) {
	mock := scriptedMock()
	mock.Classifications[llm.TaskIntent] = &llm.Classification{Label: "plan", Confidence: 0.92}
	mock.Classifications[llm.TaskExtraction] = planExtraction()
	mock.Classifications[llm.TaskDestination] = &llm.Classification{Label: "sensitive", Confidence: 0.9}
	mock.GenerateText = "itinerary body"
	e := newTestEngine(mock, okTools(), session.NewMemoryStore())

	resp, err := e.HandleTurn(context.Background(), "", "Plan Kyoto, 5 days from Berlin on 2026-10-01")
	require.NoError(t, err)
	assert.Contains(t, resp.Text, "travel advisories")
	assert.Contains(t, resp.Text, "itinerary body")
}

type brokenStore struct {
	*session.MemoryStore
	failSave bool
}

func (b *brokenStore) Save(ctx context.Context, s *session.Session) error {
	if b.failSave {
		return errors.New("disk full")
	}
	return b.MemoryStore.Save(ctx, s)
}

func TestSessionStoreFailureIsFatal(t *testing.T) {
	mock := scriptedMock()
	mock.Classifications[llm.TaskIntent] = &llm.Classification{Label: "explore", Confidence: 0.9}
	mock.GenerateText = "1. Bali - beaches"

	store := &brokenStore{MemoryStore: session.NewMemoryStore(), failSave: true}
	e := newTestEngine(mock, okTools(), store)

	_, err := e.HandleTurn(context.Background(), "", "somewhere sunny")
	require.Error(t, err)

	var sf *SessionStoreFailure
	require.ErrorAs(t, err, &sf)
	assert.Equal(t, "save", sf.Op)
	assert.Equal(t, int64(1), e.Stats().StoreFailures)
}

func TestContextMonotonicAcrossTurns(t *testing.T) {
	mock := scriptedMock()
	store := session.NewMemoryStore()
	e := newTestEngine(mock, okTools(), store)
	ctx := context.Background()

	mock.Classifications[llm.TaskIntent] = &llm.Classification{Label: "plan", Confidence: 0.92}
	mock.Classifications[llm.TaskExtraction] = planExtraction()
	mock.GenerateText = "itinerary"

	resp, err := e.HandleTurn(ctx, "", "Plan Kyoto, 5 days from Berlin on 2026-10-01")
	require.NoError(t, err)

	// A later vague mention must not overwrite the established destination.
	mock.Classifications[llm.TaskExtraction] = &llm.Classification{
		Label:      "extraction",
		Confidence: 0.4,
		Fields:     map[string]string{"destination": "osaka"},
	}
	resp2, err := e.HandleTurn(ctx, resp.SessionID, "I hear osaka is nice too")
	require.NoError(t, err)
	require.NotNil(t, resp2.Plan)
	assert.Equal(t, "kyoto", resp2.Plan.Snapshot.Destination.Value)
}

func TestPlanPipelineTrace(t *testing.T) {
	mock := scriptedMock()
	mock.Classifications[llm.TaskIntent] = &llm.Classification{Label: "plan", Confidence: 0.92}
	mock.Classifications[llm.TaskExtraction] = planExtraction()
	mock.GenerateText = "itinerary"
	e := newTestEngine(mock, okTools(), session.NewMemoryStore())

	resp, err := e.HandleTurn(context.Background(), "", "Plan Kyoto, 5 days from Berlin on 2026-10-01")
	require.NoError(t, err)
	assert.Equal(t, []State{
		StateInputSafety,
		StateExtraction,
		StateIntent,
		StateValidation,
		StateTools,
		StateAssembly,
		StateOutputSafety,
		StatePersist,
		StateDone,
	}, resp.Trace)
}

func TestTransitionRejectsIllegalEvent(t *testing.T) {
	next, ok := Transition(StateStart, EventSaved)
	assert.False(t, ok)
	assert.Equal(t, StateStart, next)

	next, ok = Transition(StateStart, EventBegin)
	assert.True(t, ok)
	assert.Equal(t, StateInputSafety, next)
}

func TestTurnTimeoutOption(t *testing.T) {
	mock := scriptedMock()
	mock.Classifications[llm.TaskIntent] = &llm.Classification{Label: "explore", Confidence: 0.9}
	mock.Delay = 50 * time.Millisecond

	e := newTestEngine(mock, okTools(), session.NewMemoryStore())
	WithTurnTimeout(time.Millisecond)(e)

	// The safety screen times out and fails open; the rest of the pipeline
	// degrades but the turn still answers.
	resp, err := e.HandleTurn(context.Background(), "", "somewhere sunny")
	require.NoError(t, err)
	assert.NotEmpty(t, resp.Text)
}
