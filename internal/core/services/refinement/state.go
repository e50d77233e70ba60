package refinement

import "fmt"

// State is a position of the refinement loop state machine
type State string

const (
	StateNotStarted       State = "not_started"
	StateEvaluating       State = "evaluating"
	StateRegenerating     State = "regenerating"
	StateAwaitingFeedback State = "awaiting_feedback"
	StateCompleted        State = "completed"
	StateExhausted        State = "exhausted"
	StateFailed           State = "failed"
)

// IsTerminal reports whether the loop has ended and no further cycle can
// change the final result without new feedback.
func (s State) IsTerminal() bool {
	switch s {
	case StateCompleted, StateExhausted, StateFailed:
		return true
	default:
		return false
	}
}

// IsFinal reports whether the state designates a final result
func (s State) IsFinal() bool {
	return s == StateCompleted || s == StateExhausted
}

// IsValidState checks membership
func IsValidState(s State) bool {
	switch s {
	case StateNotStarted, StateEvaluating, StateRegenerating, StateAwaitingFeedback,
		StateCompleted, StateExhausted, StateFailed:
		return true
	default:
		return false
	}
}

// machine tracks one cycle and records every step it takes
type machine struct {
	current State
	trace   []State
}

func newMachine() *machine {
	return &machine{current: StateNotStarted, trace: []State{StateNotStarted}}
}

// transition moves from the expected current state to `to`. It fails without
// changing state if the current state differs or the edge is not allowed.
func (m *machine) transition(from, to State) error {
	if m.current != from {
		return fmt.Errorf("invalid transition: expected %s, got %s", from, m.current)
	}
	if !isAllowedTransition(from, to) {
		return fmt.Errorf("disallowed transition: %s -> %s", from, to)
	}
	m.current = to
	m.trace = append(m.trace, to)
	return nil
}

// fail moves to StateFailed from wherever the cycle stopped
func (m *machine) fail() error {
	return m.transition(m.current, StateFailed)
}

func isAllowedTransition(from, to State) bool {
	switch from {
	case StateNotStarted:
		return to == StateEvaluating || to == StateFailed
	case StateEvaluating:
		return to == StateCompleted || to == StateRegenerating || to == StateExhausted || to == StateFailed
	case StateRegenerating:
		return to == StateAwaitingFeedback || to == StateExhausted || to == StateFailed
	case StateAwaitingFeedback:
		return to == StateEvaluating
	default:
		return false
	}
}
