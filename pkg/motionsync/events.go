package motionsync

import (
	"time"

	"github.com/extropian/motionsync/internal/app"
)

// State is the lifecycle state of a Recorder.
type State int

const (
	StateStopped State = iota
	StateStarting
	StateRunning
	StateStopping
	StateFailed
)

// String returns a human-readable representation of the state.
func (s State) String() string {
	return app.RunState(s).String()
}

// StateChangeEvent is emitted on every lifecycle transition.
type StateChangeEvent struct {
	Previous State
	Current  State
	Reason   string
}

// PhaseChangeEvent is emitted on every session phase transition.
type PhaseChangeEvent struct {
	Previous Phase
	Current  Phase
	Reason   string
}

// SessionEvent is emitted after a session was handed to the sink, whether
// or not persistence succeeded.
type SessionEvent struct {
	SessionID string
	StartedAt time.Time
	Slots     int
	Samples   int
	Err       error
}

// EventHandler receives recorder notifications.
type EventHandler interface {
	OnStateChange(StateChangeEvent)
	OnPhaseChange(PhaseChangeEvent)
	OnSession(SessionEvent)
}

// BaseEventHandler implements EventHandler with no-ops. Embed it to
// override only the events of interest.
type BaseEventHandler struct{}

func (BaseEventHandler) OnStateChange(StateChangeEvent) {}
func (BaseEventHandler) OnPhaseChange(PhaseChangeEvent) {}
func (BaseEventHandler) OnSession(SessionEvent)         {}

// emitter adapts EventHandler to the internal listener interfaces.
type emitter struct {
	handler EventHandler
	onArmed func()
}

func (e *emitter) OnRunStateChange(previous, current app.RunState, reason string) {
	if e.handler == nil {
		return
	}
	e.handler.OnStateChange(StateChangeEvent{
		Previous: State(previous),
		Current:  State(current),
		Reason:   reason,
	})
}

func (e *emitter) OnPhaseChange(previous, current app.Phase, reason string) {
	if current == app.PhaseArmed && e.onArmed != nil {
		e.onArmed()
	}
	if e.handler == nil {
		return
	}
	e.handler.OnPhaseChange(PhaseChangeEvent{Previous: previous, Current: current, Reason: reason})
}

func (e *emitter) OnSessionPersisted(r app.Result) {
	if e.handler == nil {
		return
	}
	e.handler.OnSession(SessionEvent{
		SessionID: r.SessionID,
		StartedAt: r.StartedAt,
		Slots:     r.Slots,
		Samples:   r.Samples,
		Err:       r.Err,
	})
}
