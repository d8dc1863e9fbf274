package app

import (
	"time"

	"github.com/extropian/motionsync/internal/domain"
)

// Timing holds the tunable delays of the freeze protocol. It can be replaced
// at runtime with Coordinator.SetTiming; a running protocol keeps the values
// it started with.
type Timing struct {
	// TriggerDelay is waited between a threshold signal and the freeze fan-out.
	TriggerDelay time.Duration

	// SettleDelay is waited between the freeze and drain fan-outs.
	SettleDelay time.Duration

	// DrainPollAttempts and DrainPollInterval bound the per-slot readiness
	// poll after a drain command.
	DrainPollAttempts int
	DrainPollInterval time.Duration

	// CommandTimeout bounds each command write during a fan-out.
	CommandTimeout time.Duration
}

// DefaultTiming returns the delays observed on the reference firmware.
func DefaultTiming() Timing {
	return Timing{
		TriggerDelay:      time.Second,
		SettleDelay:       50 * time.Millisecond,
		DrainPollAttempts: 10,
		DrainPollInterval: 10 * time.Millisecond,
		CommandTimeout:    2 * time.Second,
	}
}

// withDefaults fills zero fields that must be positive. Zero delays are valid.
func (t Timing) withDefaults() Timing {
	d := DefaultTiming()
	if t.DrainPollAttempts <= 0 {
		t.DrainPollAttempts = d.DrainPollAttempts
	}
	if t.DrainPollInterval <= 0 {
		t.DrainPollInterval = d.DrainPollInterval
	}
	if t.CommandTimeout <= 0 {
		t.CommandTimeout = d.CommandTimeout
	}
	return t
}

// Config configures a Coordinator.
type Config struct {
	// ExpectedPackets is the batch size at which a slot buffer is ready.
	ExpectedPackets int

	// MinDevices is the number of connected slots required to arm.
	MinDevices int

	// AllowRestart lets Rearm start a new session after Complete. When false
	// a coordinator produces at most one session.
	AllowRestart bool

	// Timing holds the protocol delays.
	Timing Timing

	// QueueSize is the capacity of the worker event queue.
	QueueSize int

	// SessionID derives the session identifier from the start time.
	// Defaults to domain.TimeSessionID.
	SessionID func(time.Time) string

	// Now returns the current time. Defaults to time.Now.
	Now func() time.Time
}

// DefaultConfig returns a Config with the reference constants.
func DefaultConfig() Config {
	return Config{
		ExpectedPackets: domain.ExpectedPacketCount,
		MinDevices:      domain.MinDevices,
		Timing:          DefaultTiming(),
		QueueSize:       64,
		SessionID:       domain.TimeSessionID,
		Now:             time.Now,
	}
}

// SetDefaults fills unset fields from DefaultConfig.
func (c *Config) SetDefaults() {
	d := DefaultConfig()
	if c.ExpectedPackets <= 0 {
		c.ExpectedPackets = d.ExpectedPackets
	}
	if c.MinDevices <= 0 {
		c.MinDevices = d.MinDevices
	}
	if c.QueueSize <= 0 {
		c.QueueSize = d.QueueSize
	}
	if c.SessionID == nil {
		c.SessionID = d.SessionID
	}
	if c.Now == nil {
		c.Now = d.Now
	}
	c.Timing = c.Timing.withDefaults()
}
