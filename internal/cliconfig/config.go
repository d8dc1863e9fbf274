package cliconfig

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/extropian/motionsync/internal/app"
	"github.com/extropian/motionsync/internal/domain"
)

// Link kinds.
const (
	LinkMemory = "memory"
	LinkMQTT   = "mqtt"
	LinkSerial = "serial"
)

// Sink kinds.
const (
	SinkFile   = "file"
	SinkHTTP   = "http"
	SinkSQLite = "sqlite"
	SinkInflux = "influx"
)

// Session id schemes.
const (
	SessionIDTime = "time"
	SessionIDUUID = "uuid"
)

// Config holds CLI configuration for motionsync.
type Config struct {
	Link string
	Sink string

	// Devices maps slot names to device identifiers.
	Devices map[string]string

	MQTTBroker      string
	MQTTClientID    string
	MQTTTopicPrefix string
	MQTTQoS         int

	SerialPort string
	SerialBaud int

	OutputDir string

	ServiceURL  string
	AuthKey     string
	HTTPTimeout time.Duration

	SQLitePath string

	// RetainMB caps the size of OutputDir in MiB. Zero keeps everything.
	RetainMB int

	InfluxURL    string
	InfluxToken  string
	InfluxOrg    string
	InfluxBucket string

	TriggerDelay      time.Duration
	SettleDelay       time.Duration
	DrainPollAttempts int
	DrainPollInterval time.Duration
	CommandTimeout    time.Duration

	ConnectAttempts int
	ConnectTimeout  time.Duration

	ExpectedPackets int
	AllowRestart    bool
	SessionIDScheme string
	LogLevel        string
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	t := app.DefaultTiming()
	return Config{
		Link:              LinkMemory,
		Sink:              SinkFile,
		Devices:           map[string]string{},
		MQTTBroker:        "tcp://localhost:1883",
		MQTTClientID:      "motionsync",
		MQTTTopicPrefix:   "motionsync/devices",
		MQTTQoS:           1,
		SerialBaud:        115200,
		OutputDir:         "sessions",
		HTTPTimeout:       15 * time.Second,
		SQLitePath:        "motionsync.db",
		TriggerDelay:      t.TriggerDelay,
		SettleDelay:       t.SettleDelay,
		DrainPollAttempts: t.DrainPollAttempts,
		DrainPollInterval: t.DrainPollInterval,
		CommandTimeout:    t.CommandTimeout,
		ConnectAttempts:   3,
		ConnectTimeout:    10 * time.Second,
		ExpectedPackets:   domain.ExpectedPacketCount,
		SessionIDScheme:   SessionIDTime,
		LogLevel:          "info",
		AuthKey:           os.Getenv("MOTIONSYNC_AUTH_KEY"),
	}
}

// Validate checks the configuration for errors and sets derived defaults.
func (c *Config) Validate() error {
	switch c.Link {
	case LinkMemory, LinkMQTT:
	case LinkSerial:
		if c.SerialPort == "" {
			return fmt.Errorf("serial-port is required for the serial link")
		}
	default:
		return fmt.Errorf("%w: unknown link %q", domain.ErrInvalidConfig, c.Link)
	}

	switch c.Sink {
	case SinkFile:
		if c.OutputDir == "" {
			return fmt.Errorf("output-dir is required for the file sink")
		}
	case SinkHTTP:
		if c.ServiceURL == "" {
			return fmt.Errorf("service-url is required for the http sink")
		}
		c.ServiceURL = strings.TrimRight(c.ServiceURL, "/")
	case SinkSQLite:
		if c.SQLitePath == "" {
			return fmt.Errorf("sqlite-path is required for the sqlite sink")
		}
	case SinkInflux:
		if c.InfluxURL == "" || c.InfluxOrg == "" || c.InfluxBucket == "" {
			return fmt.Errorf("influx-url, influx-org and influx-bucket are required for the influx sink")
		}
	default:
		return fmt.Errorf("%w: unknown sink %q", domain.ErrInvalidConfig, c.Sink)
	}

	switch c.SessionIDScheme {
	case "":
		c.SessionIDScheme = SessionIDTime
	case SessionIDTime, SessionIDUUID:
	default:
		return fmt.Errorf("%w: unknown session id scheme %q", domain.ErrInvalidConfig, c.SessionIDScheme)
	}

	if c.MQTTQoS < 0 || c.MQTTQoS > 2 {
		return fmt.Errorf("mqtt-qos must be 0, 1 or 2")
	}
	if c.ExpectedPackets <= 0 {
		return fmt.Errorf("expected-packets must be positive")
	}
	if c.RetainMB < 0 {
		return fmt.Errorf("retain-mb must not be negative")
	}
	if c.DrainPollAttempts <= 0 {
		return fmt.Errorf("drain poll attempts must be positive")
	}
	if c.TriggerDelay < 0 || c.SettleDelay < 0 {
		return fmt.Errorf("protocol delays must not be negative")
	}

	if _, err := c.Assignments(); err != nil {
		return err
	}
	return nil
}

// Timing returns the protocol delays as coordinator timing.
func (c *Config) Timing() app.Timing {
	return app.Timing{
		TriggerDelay:      c.TriggerDelay,
		SettleDelay:       c.SettleDelay,
		DrainPollAttempts: c.DrainPollAttempts,
		DrainPollInterval: c.DrainPollInterval,
		CommandTimeout:    c.CommandTimeout,
	}
}

// Assignment binds a device to a slot.
type Assignment struct {
	Slot     domain.SlotID
	DeviceID string
}

// Assignments resolves the configured devices in slot order. A device may
// only be bound to one slot.
func (c *Config) Assignments() ([]Assignment, error) {
	out := make([]Assignment, 0, len(c.Devices))
	seen := make(map[string]domain.SlotID, len(c.Devices))
	for name, dev := range c.Devices {
		slot, err := domain.ParseSlot(name)
		if err != nil {
			return nil, err
		}
		if dev == "" {
			return nil, fmt.Errorf("%w: empty device for %s", domain.ErrInvalidConfig, slot)
		}
		if prev, ok := seen[dev]; ok && prev != slot {
			return nil, fmt.Errorf("%w: device %s bound to %s and %s", domain.ErrInvalidConfig, dev, prev, slot)
		}
		seen[dev] = slot
		out = append(out, Assignment{Slot: slot, DeviceID: dev})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Slot < out[j].Slot })
	for i := 1; i < len(out); i++ {
		if out[i].Slot == out[i-1].Slot {
			return nil, fmt.Errorf("%w: %s assigned twice", domain.ErrInvalidConfig, out[i].Slot)
		}
	}
	return out, nil
}

// SessionIDFunc returns the session id generator for the configured scheme.
func (c *Config) SessionIDFunc() func(time.Time) string {
	if c.SessionIDScheme == SessionIDUUID {
		return UUIDSessionID
	}
	return domain.TimeSessionID
}

// UUIDSessionID ignores the start time and returns a random UUID.
func UUIDSessionID(time.Time) string {
	return uuid.NewString()
}

// configSetter helps apply configuration values while respecting flag precedence.
// It only applies values if the corresponding flag hasn't been explicitly set.
type configSetter struct {
	changed map[string]bool
}

func newConfigSetter(changed map[string]bool) *configSetter {
	return &configSetter{changed: changed}
}

// setString sets a string value if not empty and flag not changed.
func (s *configSetter) setString(flag, value string, dst *string) {
	if value == "" || s.changed[flag] {
		return
	}
	*dst = value
}

// setInt sets an int value if positive and flag not changed.
func (s *configSetter) setInt(flag string, value int, dst *int) {
	if value <= 0 || s.changed[flag] {
		return
	}
	*dst = value
}

// setIntPtr sets an int value from a pointer, so that zero can be configured.
func (s *configSetter) setIntPtr(flag string, value *int, dst *int) {
	if value == nil || s.changed[flag] {
		return
	}
	*dst = *value
}

func (s *configSetter) setDuration(flag, value string, dst *time.Duration) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	*dst = d
	return nil
}

// setBool sets a bool value from a pointer if not nil and flag not changed.
func (s *configSetter) setBool(flag string, value *bool, dst *bool) {
	if value == nil || s.changed[flag] {
		return
	}
	*dst = *value
}

// setDevices merges slot assignments into dst. Entries for a slot replace
// the existing one.
func (s *configSetter) setDevices(flag string, value map[string]string, dst *map[string]string) {
	if len(value) == 0 || s.changed[flag] {
		return
	}
	if *dst == nil {
		*dst = make(map[string]string, len(value))
	}
	for k, v := range value {
		(*dst)[k] = v
	}
}

// setIntFromString parses a string to int and sets the destination if valid.
// Used for environment variables that come as strings.
func (s *configSetter) setIntFromString(flag, value string, dst *int) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	i, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	if i < 0 {
		return nil
	}
	*dst = i
	return nil
}

// setBoolFromString parses a string to bool and sets the destination.
// Accepts "true", "1" as true, anything else as false.
func (s *configSetter) setBoolFromString(flag, value string, dst *bool) {
	if value == "" || s.changed[flag] {
		return
	}
	*dst = value == "true" || value == "1"
}

// parseDevices parses "slot=device,slot=device".
func parseDevices(value string) (map[string]string, error) {
	out := map[string]string{}
	for _, part := range strings.Split(value, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		k, v, ok := strings.Cut(part, "=")
		if !ok {
			return nil, fmt.Errorf("parse devices: %q is not slot=device", part)
		}
		out[strings.TrimSpace(k)] = strings.TrimSpace(v)
	}
	return out, nil
}
