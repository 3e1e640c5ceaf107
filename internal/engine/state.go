// Package engine drives one conversation turn through the orchestration
// pipeline: input screening, context extraction, intent routing, the
// explore or plan path, output validation, and session persistence.
package engine

// State identifies one stage of the turn pipeline.
type State string

const (
	StateStart        State = "start"
	StateInputSafety  State = "input_safety"
	StateExtraction   State = "extraction"
	StateIntent       State = "intent"
	StateExplore      State = "explore"
	StateValidation   State = "validation"
	StateTools        State = "tools"
	StateAssembly     State = "assembly"
	StateFollowup     State = "followup"
	StateClarify      State = "clarify"
	StateRefusal      State = "refusal"
	StateOutputSafety State = "output_safety"
	StatePersist      State = "persist"
	StateDone         State = "done"
)

// Event is a pipeline outcome that moves the turn to its next state.
type Event string

const (
	EventBegin          Event = "begin"
	EventInputSafe      Event = "input_safe"
	EventInputUnsafe    Event = "input_unsafe"
	EventExtracted      Event = "extracted"
	EventIntentExplore  Event = "intent_explore"
	EventIntentPlan     Event = "intent_plan"
	EventIntentFollowup Event = "intent_followup"
	EventIntentClarify  Event = "intent_clarify"
	EventIntentUnsafe   Event = "intent_unsafe"
	EventSlotsComplete  Event = "slots_complete"
	EventSlotsMissing   Event = "slots_missing"
	EventToolsSettled   Event = "tools_settled"
	EventResponseReady  Event = "response_ready"
	EventOutputChecked  Event = "output_checked"
	EventSaved          Event = "saved"
)

// transitions is the legal state graph. Anything not listed is invalid.
var transitions = map[State]map[Event]State{
	StateStart: {
		EventBegin: StateInputSafety,
	},
	StateInputSafety: {
		EventInputSafe:   StateExtraction,
		EventInputUnsafe: StateIntent,
	},
	StateExtraction: {
		EventExtracted: StateIntent,
	},
	StateIntent: {
		EventIntentExplore:  StateExplore,
		EventIntentPlan:     StateValidation,
		EventIntentFollowup: StateFollowup,
		EventIntentClarify:  StateClarify,
		EventIntentUnsafe:   StateRefusal,
	},
	StateExplore: {
		EventResponseReady: StateOutputSafety,
	},
	StateValidation: {
		EventSlotsComplete: StateTools,
		EventSlotsMissing:  StateClarify,
	},
	StateTools: {
		EventToolsSettled: StateAssembly,
	},
	StateAssembly: {
		EventResponseReady: StateOutputSafety,
	},
	StateFollowup: {
		EventResponseReady: StateOutputSafety,
	},
	StateClarify: {
		EventResponseReady: StatePersist,
	},
	StateRefusal: {
		EventResponseReady: StatePersist,
	},
	StateOutputSafety: {
		EventOutputChecked: StatePersist,
	},
	StatePersist: {
		EventSaved: StateDone,
	},
}

// Transition returns the next state for an event, or the current state with
// ok=false when the event is not legal from here. It is a pure function; the
// engine owns the side effects.
func Transition(s State, ev Event) (State, bool) {
	next, ok := transitions[s][ev]
	if !ok {
		return s, false
	}
	return next, true
}
