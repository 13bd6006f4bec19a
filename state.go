package vigil

import "go.uber.org/atomic"

// State is the lifecycle state of a sensor run.
type State uint32

const (
	// StatePending is the state of a sensor that has not been executed.
	StatePending State = iota
	// StatePolling is the state of a sensor between its first poke and a terminal state.
	StatePolling
	// StateSuccess is reached when the predicate returned true.
	StateSuccess
	// StateFailed is reached on timeout without soft fail, on a poke error, or on cancellation.
	StateFailed
	// StateSkipped is reached on timeout with soft fail set.
	StateSkipped
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StatePolling:
		return "polling"
	case StateSuccess:
		return "success"
	case StateFailed:
		return "failed"
	case StateSkipped:
		return "skipped"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transitions are possible from s.
func (s State) Terminal() bool {
	return s == StateSuccess || s == StateFailed || s == StateSkipped
}

// canTransition reports whether from -> to is a forward transition.
func canTransition(from, to State) bool {
	switch from {
	case StatePending:
		return to == StatePolling
	case StatePolling:
		return to.Terminal()
	default:
		return false
	}
}

// stateMachine holds a State and only allows forward transitions.
type stateMachine struct {
	v atomic.Uint32
}

func (m *stateMachine) load() State {
	return State(m.v.Load())
}

// transition moves the machine from -> to, failing if the current state is not from or the
// transition is not a forward one.
func (m *stateMachine) transition(from, to State) bool {
	if !canTransition(from, to) {
		return false
	}
	return m.v.CompareAndSwap(uint32(from), uint32(to))
}
