package app

import "time"

// Result describes one produced session.
type Result struct {
	SessionID string
	StartedAt time.Time
	Slots     int
	Samples   int

	// Err is the sink error, if persistence failed.
	Err error
}

// EventHandler receives coordinator notifications. Calls are made outside of
// the coordinator lock from whichever goroutine caused the event and should
// return quickly.
type EventHandler interface {
	OnPhaseChange(previous, current Phase, reason string)
	OnSessionPersisted(result Result)
}
