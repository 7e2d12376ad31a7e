package orchestrator

// State is the delegation state of a runtime
type State string

const (
	StateIdle             State = "idle"
	StatePlanning         State = "planning"
	StateDelegating       State = "delegating"
	StateAwaitingResults  State = "awaiting_results"
	StateComposingResults State = "composing_results"
	StateFollowUpReady    State = "follow_up_ready"
	StateContinuing       State = "continuing"
)

var transitions = map[State][]State{
	StateIdle:             {StatePlanning},
	StatePlanning:         {StateDelegating},
	StateDelegating:       {StateAwaitingResults},
	StateAwaitingResults:  {StateComposingResults},
	StateComposingResults: {StateFollowUpReady},
	StateFollowUpReady:    {StateContinuing},
	StateContinuing:       {StateDelegating, StatePlanning},
}

// CanTransition reports whether from -> to is in the transition table.
// Staying in the same state is always allowed.
func CanTransition(from, to State) bool {
	if from == to {
		return true
	}
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}
