package domain

import "fmt"

// Command is a control byte written to a device's command channel.
type Command byte

// Control bytes understood by the sensor firmware.
const (
	CommandStopIMU    Command = 0x00
	CommandStartIMU   Command = 0x01
	CommandResetClock Command = 0x02
	CommandFreeze     Command = 0x03
	CommandDrain      Command = 0x04
)

// ThresholdSignal is the byte a device emits on its threshold channel when
// its motion crosses the trigger threshold.
const ThresholdSignal byte = 0x05

// Bytes returns the wire encoding of the command.
func (c Command) Bytes() []byte {
	return []byte{byte(c)}
}

// String returns a human-readable representation of the command.
func (c Command) String() string {
	switch c {
	case CommandStopIMU:
		return "stop"
	case CommandStartIMU:
		return "start"
	case CommandResetClock:
		return "reset-clock"
	case CommandFreeze:
		return "freeze"
	case CommandDrain:
		return "drain"
	default:
		return fmt.Sprintf("command(0x%02x)", byte(c))
	}
}

// IsThreshold reports whether a threshold-channel notification carries the
// trigger signal. Only the first byte is significant.
func IsThreshold(data []byte) bool {
	return len(data) > 0 && data[0] == ThresholdSignal
}
