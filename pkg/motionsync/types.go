package motionsync

import (
	"github.com/extropian/motionsync/internal/app"
	"github.com/extropian/motionsync/internal/domain"
	"github.com/extropian/motionsync/internal/ports"
)

// Re-exported domain types so that embedders never import internal packages.
type (
	// Slot identifies a body position.
	Slot = domain.SlotID

	// Command is a one-byte device control command.
	Command = domain.Command

	// Sample is one decoded IMU reading.
	Sample = domain.SensorSample

	// Session is an assembled capture handed to a SessionSink.
	Session = domain.SessionPayload

	// Document is the persisted shape of a Session.
	Document = domain.SessionDocument

	// Phase is the session coordination phase.
	Phase = app.Phase

	// Timing holds the freeze protocol delays.
	Timing = app.Timing

	// Result describes a produced session.
	Result = app.Result

	// Link drives devices on behalf of the recorder.
	Link = ports.Link

	// NotificationHandler receives one device notification.
	NotificationHandler = ports.NotificationHandler

	// SessionSink persists assembled sessions.
	SessionSink = ports.SessionSink

	// Logger is the interface for structured logging.
	Logger = ports.Logger

	// LogField represents a structured log field.
	LogField = ports.Field
)

const (
	SlotRightWrist = domain.SlotRightWrist
	SlotLeftWrist  = domain.SlotLeftWrist
	SlotHip        = domain.SlotHip
	SlotTorso      = domain.SlotTorso
)

const (
	PhaseIdle            = app.PhaseIdle
	PhaseAwaitingDevices = app.PhaseAwaitingDevices
	PhaseArmed           = app.PhaseArmed
	PhaseFreezing        = app.PhaseFreezing
	PhaseDraining        = app.PhaseDraining
	PhaseComplete        = app.PhaseComplete
)

// DefaultTiming returns the reference protocol delays.
func DefaultTiming() Timing { return app.DefaultTiming() }

// ParseSlot converts a slot name such as "right_wrist" into a Slot.
func ParseSlot(name string) (Slot, error) { return domain.ParseSlot(name) }

// Errors returned by the recorder, comparable with errors.Is.
var (
	ErrAlreadyRunning   = domain.ErrAlreadyRunning
	ErrNotRunning       = domain.ErrNotRunning
	ErrShutdownTimeout  = domain.ErrShutdownTimeout
	ErrInvalidConfig    = domain.ErrInvalidConfig
	ErrUnknownSlot      = domain.ErrUnknownSlot
	ErrSlotTaken        = domain.ErrSlotTaken
	ErrNotConnected     = domain.ErrNotConnected
	ErrNotEnoughDevices = domain.ErrNotEnoughDevices
	ErrNotArmed         = domain.ErrNotArmed
	ErrSessionComplete  = domain.ErrSessionComplete
	ErrRestartDisabled  = domain.ErrRestartDisabled
)
