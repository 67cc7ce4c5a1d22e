package session

import (
	"errors"
	"fmt"
)

// State is the lifecycle state of a Session.
type State string

const (
	StateUninitialized State = "uninitialized"
	StateLoading       State = "loading"
	StateReady         State = "ready"
	StateError         State = "error"
)

// Event drives a state transition.
type Event string

const (
	EventLogin  Event = "login"
	EventLoaded Event = "loaded"
	EventFailed Event = "failed"
	EventLogout Event = "logout"
)

// ErrNoTransition is returned when an event is not accepted in the current state.
var ErrNoTransition = errors.New("no transition available")

// transitions is keyed by [from][event]. A failed refetch in Ready keeps the
// last good data, so Ready accepts both outcomes.
var transitions = map[State]map[Event]State{
	StateUninitialized: {
		EventLogin: StateLoading,
	},
	StateLoading: {
		EventLoaded: StateReady,
		EventFailed: StateError,
		EventLogout: StateUninitialized,
	},
	StateReady: {
		EventLoaded: StateReady,
		EventFailed: StateReady,
		EventLogout: StateUninitialized,
	},
	StateError: {
		EventLoaded: StateReady,
		EventFailed: StateError,
		EventLogout: StateUninitialized,
	},
}

// next returns the state reached from s on ev.
func next(s State, ev Event) (State, error) {
	to, ok := transitions[s][ev]
	if !ok {
		return s, fmt.Errorf("%w: state %q, event %q", ErrNoTransition, s, ev)
	}
	return to, nil
}
