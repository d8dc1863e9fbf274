package domain

import (
	"fmt"
	"strings"
)

// Packet geometry and batching constants.
const (
	// PacketLength is the exact size of one data frame.
	PacketLength = 221

	// SamplesPerPacket is the number of sub-records in a frame.
	SamplesPerPacket = 5

	// ExpectedPacketCount is the number of frames in a complete batch.
	ExpectedPacketCount = 21

	// MinDevices is the number of connected slots required to arm a session.
	MinDevices = 2

	// MaxSlots is the number of body positions.
	MaxSlots = 4
)

// SlotID identifies a body position.
type SlotID int

const (
	SlotRightWrist SlotID = iota + 1
	SlotLeftWrist
	SlotHip
	SlotTorso
)

// Slots lists every position in payload order.
var Slots = []SlotID{SlotRightWrist, SlotLeftWrist, SlotHip, SlotTorso}

// String returns the canonical slot name used in payloads and config.
func (s SlotID) String() string {
	switch s {
	case SlotRightWrist:
		return "right_wrist"
	case SlotLeftWrist:
		return "left_wrist"
	case SlotHip:
		return "hip"
	case SlotTorso:
		return "torso"
	default:
		return fmt.Sprintf("slot(%d)", int(s))
	}
}

// Valid reports whether s is one of the known positions.
func (s SlotID) Valid() bool {
	return s >= SlotRightWrist && s <= SlotTorso
}

// ParseSlot converts a slot name into a SlotID. It accepts the canonical
// names ("right_wrist"), display names ("Right Wrist") and the legacy
// device keys ("Device1".."Device4").
func ParseSlot(name string) (SlotID, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	n = strings.NewReplacer(" ", "_", "-", "_").Replace(n)
	switch n {
	case "right_wrist", "device1":
		return SlotRightWrist, nil
	case "left_wrist", "device2":
		return SlotLeftWrist, nil
	case "hip", "device3":
		return SlotHip, nil
	case "torso", "device4":
		return SlotTorso, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownSlot, name)
}

// ConnectionState is the link state of a slot.
type ConnectionState int

const (
	Disconnected ConnectionState = iota
	Connecting
	Connected
)

// String returns a human-readable representation of the state.
func (c ConnectionState) String() string {
	switch c {
	case Disconnected:
		return "Disconnected"
	case Connecting:
		return "Connecting"
	case Connected:
		return "Connected"
	default:
		return "Unknown"
	}
}
