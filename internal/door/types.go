// Package door turns the raw door signal into confirmed, glitch-filtered
// open/closed transitions.
package door

import "time"

// State is the confirmed state of the door.
type State string

const (
	StateUnknown State = "UNKNOWN"
	StateOpen    State = "OPEN"
	StateClosed  State = "CLOSED"
)

// stateFor maps a raw closed flag to a State.
func stateFor(closed bool) State {
	if closed {
		return StateClosed
	}
	return StateOpen
}

// EventType is one of the two edge notifications a Monitor emits.
type EventType string

const (
	EventOpened EventType = "DOOR_OPENED"
	EventClosed EventType = "DOOR_CLOSED"
)

// Event is a confirmed transition.
type Event struct {
	Type      EventType
	Timestamp time.Time
}

// Status is the confirmed state plus the time it was last confirmed.
// LastChange is zero while the state is unknown.
type Status struct {
	State      State
	LastChange time.Time
}

// Counts tracks confirmed transitions since startup.
type Counts struct {
	Opened int
	Closed int
}

// Handler receives confirmed transitions. It runs synchronously on the
// monitor's goroutine, so a slow handler delays the next poll.
type Handler func(Event)
