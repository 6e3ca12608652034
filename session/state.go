package session

import "fmt"

// State is the lifecycle position of a session.
type State int

const (
	Uninitialized State = iota
	Initializing
	Idle
	Running
	AwaitingRepl
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Initializing:
		return "initializing"
	case Idle:
		return "idle"
	case Running:
		return "running"
	case AwaitingRepl:
		return "awaiting-repl"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Busy reports whether the engine is executing user code.
func (s State) Busy() bool {
	return s == Running || s == AwaitingRepl
}

var transitions = map[State][]State{
	Uninitialized: {Initializing},
	Initializing:  {Idle, Uninitialized},
	Idle:          {Initializing, Running, AwaitingRepl},
	Running:       {Idle, Initializing},
	AwaitingRepl:  {Idle, Initializing},
}

// CanTransition reports whether from -> to is a legal move.
func CanTransition(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}
