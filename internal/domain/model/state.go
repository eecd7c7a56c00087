package model

// State is a batch lifecycle stage.
type State string

// Batch states in processing order. Failed and Cancelled are terminal
// alternatives to Complete.
const (
	StateReceived    State = "received"
	StateValidating  State = "validating"
	StateNormalizing State = "normalizing"
	StateScoring     State = "scoring"
	StateLabeling    State = "labeling"
	StateComplete    State = "complete"
	StateFailed      State = "failed"
	StateCancelled   State = "cancelled"
)

var transitions = map[State][]State{ //nolint:gochecknoglobals // static transition table
	StateReceived:    {StateValidating, StateFailed, StateCancelled},
	StateValidating:  {StateNormalizing, StateFailed, StateCancelled},
	StateNormalizing: {StateScoring, StateFailed, StateCancelled},
	StateScoring:     {StateLabeling, StateFailed, StateCancelled},
	StateLabeling:    {StateComplete, StateFailed, StateCancelled},
}

// CanTransition reports whether next may follow s.
func (s State) CanTransition(next State) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Terminal reports whether no further transitions are possible.
func (s State) Terminal() bool {
	return s == StateComplete || s == StateFailed || s == StateCancelled
}
