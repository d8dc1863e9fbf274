package cliconfig

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// FileConfig mirrors Config but uses strings for durations so that TOML and
// YAML files stay readable.
type FileConfig struct {
	Link    string            `toml:"link" yaml:"link"`
	Sink    string            `toml:"sink" yaml:"sink"`
	Devices map[string]string `toml:"devices" yaml:"devices"`

	MQTT struct {
		Broker      string `toml:"broker" yaml:"broker"`
		ClientID    string `toml:"client_id" yaml:"client_id"`
		TopicPrefix string `toml:"topic_prefix" yaml:"topic_prefix"`
		QoS         *int   `toml:"qos" yaml:"qos"`
	} `toml:"mqtt" yaml:"mqtt"`

	Serial struct {
		Port string `toml:"port" yaml:"port"`
		Baud int    `toml:"baud" yaml:"baud"`
	} `toml:"serial" yaml:"serial"`

	OutputDir   string `toml:"output_dir" yaml:"output_dir"`
	ServiceURL  string `toml:"service_url" yaml:"service_url"`
	AuthKey     string `toml:"auth_key" yaml:"auth_key"`
	HTTPTimeout string `toml:"http_timeout" yaml:"http_timeout"`
	SQLitePath  string `toml:"sqlite_path" yaml:"sqlite_path"`

	Influx struct {
		URL    string `toml:"url" yaml:"url"`
		Token  string `toml:"token" yaml:"token"`
		Org    string `toml:"org" yaml:"org"`
		Bucket string `toml:"bucket" yaml:"bucket"`
	} `toml:"influx" yaml:"influx"`

	Timing TimingFile `toml:"timing" yaml:"timing"`

	RetainMB int `toml:"retain_mb" yaml:"retain_mb"`

	ConnectAttempts int    `toml:"connect_attempts" yaml:"connect_attempts"`
	ConnectTimeout  string `toml:"connect_timeout" yaml:"connect_timeout"`

	ExpectedPackets int    `toml:"expected_packets" yaml:"expected_packets"`
	AllowRestart    *bool  `toml:"allow_restart" yaml:"allow_restart"`
	SessionIDScheme string `toml:"session_id" yaml:"session_id"`
	LogLevel        string `toml:"log_level" yaml:"log_level"`
}

// TimingFile is the [timing] table of a config file.
type TimingFile struct {
	TriggerDelay      string `toml:"trigger_delay" yaml:"trigger_delay"`
	SettleDelay       string `toml:"settle_delay" yaml:"settle_delay"`
	DrainPollAttempts int    `toml:"drain_poll_attempts" yaml:"drain_poll_attempts"`
	DrainPollInterval string `toml:"drain_poll_interval" yaml:"drain_poll_interval"`
	CommandTimeout    string `toml:"command_timeout" yaml:"command_timeout"`
}

// LoadFileConfig reads a config file. Files ending in .yaml or .yml are
// parsed as YAML, everything else as TOML.
func LoadFileConfig(path string) (FileConfig, error) {
	var fc FileConfig
	b, err := os.ReadFile(path)
	if err != nil {
		return fc, err
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &fc); err != nil {
			return fc, fmt.Errorf("parse %s: %w", path, err)
		}
	default:
		if err := toml.Unmarshal(b, &fc); err != nil {
			return fc, fmt.Errorf("parse %s: %w", path, err)
		}
	}
	return fc, nil
}

// DefaultConfigPath returns ~/.motionsync/config.toml, or "" if the home
// directory is unknown.
func DefaultConfigPath() string {
	if h, err := os.UserHomeDir(); err == nil {
		return filepath.Join(h, ".motionsync", "config.toml")
	}
	return ""
}

// ApplyFileConfig applies configuration from a file to the Config struct.
// It respects flags that have been explicitly set (changed map).
func ApplyFileConfig(cfg *Config, fc FileConfig, changed map[string]bool) error {
	s := newConfigSetter(changed)

	s.setString("link", fc.Link, &cfg.Link)
	s.setString("sink", fc.Sink, &cfg.Sink)
	s.setDevices("device", fc.Devices, &cfg.Devices)

	s.setString("mqtt-broker", fc.MQTT.Broker, &cfg.MQTTBroker)
	s.setString("mqtt-client-id", fc.MQTT.ClientID, &cfg.MQTTClientID)
	s.setString("mqtt-topic-prefix", fc.MQTT.TopicPrefix, &cfg.MQTTTopicPrefix)
	s.setIntPtr("mqtt-qos", fc.MQTT.QoS, &cfg.MQTTQoS)

	s.setString("serial-port", fc.Serial.Port, &cfg.SerialPort)
	s.setInt("serial-baud", fc.Serial.Baud, &cfg.SerialBaud)

	s.setString("output-dir", fc.OutputDir, &cfg.OutputDir)
	s.setString("service-url", fc.ServiceURL, &cfg.ServiceURL)
	s.setString("auth-key", fc.AuthKey, &cfg.AuthKey)
	s.setString("sqlite-path", fc.SQLitePath, &cfg.SQLitePath)

	s.setString("influx-url", fc.Influx.URL, &cfg.InfluxURL)
	s.setString("influx-token", fc.Influx.Token, &cfg.InfluxToken)
	s.setString("influx-org", fc.Influx.Org, &cfg.InfluxOrg)
	s.setString("influx-bucket", fc.Influx.Bucket, &cfg.InfluxBucket)

	if err := s.setDuration("timeout", fc.HTTPTimeout, &cfg.HTTPTimeout); err != nil {
		return err
	}
	if err := s.setDuration("connect-timeout", fc.ConnectTimeout, &cfg.ConnectTimeout); err != nil {
		return err
	}
	s.setInt("connect-attempts", fc.ConnectAttempts, &cfg.ConnectAttempts)

	if err := ApplyTimingFile(cfg, fc.Timing, changed); err != nil {
		return err
	}

	s.setInt("retain-mb", fc.RetainMB, &cfg.RetainMB)
	s.setInt("expected-packets", fc.ExpectedPackets, &cfg.ExpectedPackets)
	s.setBool("allow-restart", fc.AllowRestart, &cfg.AllowRestart)
	s.setString("session-id", fc.SessionIDScheme, &cfg.SessionIDScheme)
	s.setString("log-level", fc.LogLevel, &cfg.LogLevel)

	return nil
}

// ApplyTimingFile applies only the [timing] table. The config watcher uses
// it to hot-reload protocol delays.
func ApplyTimingFile(cfg *Config, t TimingFile, changed map[string]bool) error {
	s := newConfigSetter(changed)

	if err := s.setDuration("trigger-delay", t.TriggerDelay, &cfg.TriggerDelay); err != nil {
		return err
	}
	if err := s.setDuration("settle-delay", t.SettleDelay, &cfg.SettleDelay); err != nil {
		return err
	}
	if err := s.setDuration("drain-poll-interval", t.DrainPollInterval, &cfg.DrainPollInterval); err != nil {
		return err
	}
	if err := s.setDuration("command-timeout", t.CommandTimeout, &cfg.CommandTimeout); err != nil {
		return err
	}
	s.setInt("drain-poll-attempts", t.DrainPollAttempts, &cfg.DrainPollAttempts)
	return nil
}

// FileExists checks if a file exists at the given path.
func FileExists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}
