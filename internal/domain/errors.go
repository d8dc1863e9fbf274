package domain

import (
	"errors"
	"fmt"
)

// Domain errors represent error conditions in the motionsync domain.
// They are returned directly or wrapped by the structured errors below and can
// be checked with errors.Is.
var (
	// ErrLengthMismatch is returned when a frame is not exactly PacketLength bytes.
	ErrLengthMismatch = errors.New("motionsync: frame length mismatch")

	// ErrMarkerMismatch is returned when a sub-record marker byte is wrong.
	ErrMarkerMismatch = errors.New("motionsync: frame marker mismatch")

	// ErrFieldOutOfBounds is returned when a field read runs past the frame.
	ErrFieldOutOfBounds = errors.New("motionsync: frame field out of bounds")

	// ErrConnectTimeout is returned when a device does not connect in time.
	ErrConnectTimeout = errors.New("motionsync: connect timeout")

	// ErrWriteFailed is returned when a command cannot be written to a device.
	ErrWriteFailed = errors.New("motionsync: write failed")

	// ErrUnsupported is returned when a device lacks a required channel.
	ErrUnsupported = errors.New("motionsync: characteristic unsupported")

	// ErrNotConnected is returned for operations on a slot with no link.
	ErrNotConnected = errors.New("motionsync: slot not connected")

	// ErrUnknownSlot is returned for slot names or ids outside the four positions.
	ErrUnknownSlot = errors.New("motionsync: unknown slot")

	// ErrSlotTaken is returned when a slot already has a device assigned.
	ErrSlotTaken = errors.New("motionsync: slot already assigned")

	// ErrNotEnoughDevices is returned when fewer than MinDevices are connected.
	ErrNotEnoughDevices = errors.New("motionsync: not enough connected devices")

	// ErrNotArmed is returned when the freeze protocol is requested outside Armed.
	ErrNotArmed = errors.New("motionsync: session not armed")

	// ErrSessionComplete is returned when a session was already produced.
	ErrSessionComplete = errors.New("motionsync: session already complete")

	// ErrCoordinatorClosed is returned by operations on a closed coordinator.
	ErrCoordinatorClosed = errors.New("motionsync: coordinator closed")

	// ErrRestartDisabled is returned by Rearm when the restart policy is off.
	ErrRestartDisabled = errors.New("motionsync: session restart disabled")

	// ErrAlreadyRunning is returned when Start() is called on a running instance.
	ErrAlreadyRunning = errors.New("motionsync: already running")

	// ErrNotRunning is returned when Stop() is called on a stopped instance.
	ErrNotRunning = errors.New("motionsync: not running")

	// ErrShutdownTimeout is returned when graceful shutdown times out.
	ErrShutdownTimeout = errors.New("motionsync: shutdown timeout")

	// ErrInvalidConfig is returned when configuration validation fails.
	ErrInvalidConfig = errors.New("motionsync: invalid configuration")
)

// FrameError describes why a frame could not be decoded.
type FrameError struct {
	// Kind is one of ErrLengthMismatch, ErrMarkerMismatch, ErrFieldOutOfBounds.
	Kind error

	// Length is the observed frame length (LengthMismatch).
	Length int

	// Expected and Got are the marker bytes (MarkerMismatch).
	Expected byte
	Got      byte

	// SubRecord is the zero-based sub-record index, or -1 for frame-level errors.
	SubRecord int

	// Offset is the byte offset at which decoding stopped.
	Offset int
}

func (e *FrameError) Error() string {
	switch e.Kind {
	case ErrLengthMismatch:
		return fmt.Sprintf("frame length %d, want %d", e.Length, PacketLength)
	case ErrMarkerMismatch:
		return fmt.Sprintf("sub-record %d: marker %q, want %q", e.SubRecord, e.Got, e.Expected)
	case ErrFieldOutOfBounds:
		return fmt.Sprintf("sub-record %d: field at offset %d out of bounds", e.SubRecord, e.Offset)
	default:
		return fmt.Sprintf("frame error at offset %d", e.Offset)
	}
}

func (e *FrameError) Unwrap() error { return e.Kind }

// LinkError is a per-slot transport failure.
type LinkError struct {
	Op   string
	Slot SlotID
	Err  error
}

func (e *LinkError) Error() string {
	return fmt.Sprintf("link %s %s: %v", e.Op, e.Slot, e.Err)
}

func (e *LinkError) Unwrap() error { return e.Err }

// SinkError is a persistence failure for one session.
type SinkError struct {
	SessionID string
	Err       error
}

func (e *SinkError) Error() string {
	return fmt.Sprintf("persist session %s: %v", e.SessionID, e.Err)
}

func (e *SinkError) Unwrap() error { return e.Err }
