package motionsync

import (
	"fmt"
	"time"

	"github.com/extropian/motionsync/internal/app"
	"github.com/extropian/motionsync/internal/domain"
)

// Assignment binds a device to a body slot.
type Assignment struct {
	Slot     Slot
	DeviceID string
}

// Config holds recorder configuration. Zero values take defaults.
type Config struct {
	// Devices are assigned, in order, when the recorder starts.
	Devices []Assignment

	// AutoCapture sends reset-clock and start to every device once the
	// configured devices are connected and the session is armed, and again
	// whenever a later change arms it.
	AutoCapture bool

	// AllowRestart lets Rearm start another session after one completes.
	AllowRestart bool

	// ExpectedPackets is the batch size at which a device buffer is ready.
	// Default: 21
	ExpectedPackets int

	// Timing holds the freeze protocol delays.
	Timing Timing

	// SessionID derives a session identifier from its start time.
	// Default: UTC timestamp "20060102T150405.000Z".
	SessionID func(time.Time) string

	// ConfigPath is passed to plugins that watch the configuration file.
	ConfigPath string

	// SessionDir is the directory a file sink writes into, if any.
	SessionDir string
}

// SetDefaults fills zero fields.
func (c *Config) SetDefaults() {
	if c.ExpectedPackets <= 0 {
		c.ExpectedPackets = domain.ExpectedPacketCount
	}
	if c.Timing == (Timing{}) {
		c.Timing = DefaultTiming()
	}
	if c.SessionID == nil {
		c.SessionID = domain.TimeSessionID
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if len(c.Devices) > domain.MaxSlots {
		return fmt.Errorf("%w: %d devices, at most %d slots", domain.ErrInvalidConfig, len(c.Devices), domain.MaxSlots)
	}
	seen := make(map[Slot]bool, len(c.Devices))
	for _, a := range c.Devices {
		if !a.Slot.Valid() {
			return fmt.Errorf("%w: %s", domain.ErrUnknownSlot, a.Slot)
		}
		if a.DeviceID == "" {
			return fmt.Errorf("%w: empty device id for %s", domain.ErrInvalidConfig, a.Slot)
		}
		if seen[a.Slot] {
			return fmt.Errorf("%w: %s assigned twice", domain.ErrInvalidConfig, a.Slot)
		}
		seen[a.Slot] = true
	}
	if c.Timing.TriggerDelay < 0 || c.Timing.SettleDelay < 0 {
		return fmt.Errorf("%w: negative protocol delay", domain.ErrInvalidConfig)
	}
	return nil
}

func (c Config) coordinator() app.Config {
	return app.Config{
		ExpectedPackets: c.ExpectedPackets,
		MinDevices:      domain.MinDevices,
		AllowRestart:    c.AllowRestart,
		Timing:          c.Timing,
		SessionID:       c.SessionID,
	}
}
