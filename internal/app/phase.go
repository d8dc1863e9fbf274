package app

import (
	"fmt"

	"github.com/extropian/motionsync/internal/domain"
)

// Phase is the state of a coordination lifetime.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseAwaitingDevices
	PhaseArmed
	PhaseFreezing
	PhaseDraining
	PhaseComplete
)

// String returns a human-readable representation of the phase.
func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "Idle"
	case PhaseAwaitingDevices:
		return "AwaitingDevices"
	case PhaseArmed:
		return "Armed"
	case PhaseFreezing:
		return "Freezing"
	case PhaseDraining:
		return "Draining"
	case PhaseComplete:
		return "Complete"
	default:
		return "Unknown"
	}
}

// accepting reports whether slots may be assigned or released while in p
// with the phase following the connected count.
func (p Phase) accepting() bool {
	return p == PhaseIdle || p == PhaseAwaitingDevices || p == PhaseArmed
}

// transitions lists the valid successors of each phase. Teardown to Idle is
// always allowed and handled separately.
var transitions = map[Phase][]Phase{
	PhaseIdle:            {PhaseAwaitingDevices, PhaseArmed},
	PhaseAwaitingDevices: {PhaseIdle, PhaseArmed},
	PhaseArmed:           {PhaseIdle, PhaseAwaitingDevices, PhaseFreezing},
	PhaseFreezing:        {PhaseDraining},
	PhaseDraining:        {PhaseComplete},
	PhaseComplete:        {PhaseAwaitingDevices, PhaseArmed},
}

// validTransition reports whether from -> to is allowed.
func validTransition(from, to Phase) error {
	if to == PhaseIdle {
		return nil
	}
	for _, p := range transitions[from] {
		if p == to {
			return nil
		}
	}
	if from == PhaseComplete {
		return domain.ErrSessionComplete
	}
	return fmt.Errorf("invalid phase transition %s -> %s", from, to)
}

// phaseForCount returns the resting phase for n connected devices.
func phaseForCount(n, minDevices int) Phase {
	switch {
	case n == 0:
		return PhaseIdle
	case n < minDevices:
		return PhaseAwaitingDevices
	default:
		return PhaseArmed
	}
}
