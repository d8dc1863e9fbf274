package cliconfig

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestApplyFileConfig(t *testing.T) {
	trueVal := true
	zero := 0

	full := FileConfig{
		Link:            LinkMQTT,
		Sink:            SinkSQLite,
		Devices:         map[string]string{"hip": "D3", "torso": "D4"},
		OutputDir:       "/tmp/sessions",
		ServiceURL:      "http://example.com",
		AuthKey:         "secret",
		HTTPTimeout:     "30s",
		SQLitePath:      "/tmp/ms.db",
		ConnectAttempts: 5,
		ConnectTimeout:  "4s",
		ExpectedPackets: 7,
		AllowRestart:    &trueVal,
		SessionIDScheme: SessionIDUUID,
		LogLevel:        "debug",
		Timing: TimingFile{
			TriggerDelay:      "250ms",
			SettleDelay:       "20ms",
			DrainPollAttempts: 3,
			DrainPollInterval: "5ms",
			CommandTimeout:    "1s",
		},
	}
	full.MQTT.Broker = "tcp://broker:1883"
	full.MQTT.ClientID = "rig-1"
	full.MQTT.TopicPrefix = "lab/imu"
	full.MQTT.QoS = &zero
	full.Serial.Port = "/dev/ttyACM0"
	full.Serial.Baud = 230400
	full.Influx.URL = "http://influx:8086"
	full.Influx.Token = "tok"
	full.Influx.Org = "lab"
	full.Influx.Bucket = "imu"

	tests := []struct {
		name       string
		fileConfig FileConfig
		changed    map[string]bool
		initial    Config
		expected   Config
		wantErr    bool
	}{
		{
			name:       "applies every field",
			fileConfig: full,
			changed:    map[string]bool{},
			initial:    Config{MQTTQoS: 1},
			expected: Config{
				Link:              LinkMQTT,
				Sink:              SinkSQLite,
				Devices:           map[string]string{"hip": "D3", "torso": "D4"},
				MQTTBroker:        "tcp://broker:1883",
				MQTTClientID:      "rig-1",
				MQTTTopicPrefix:   "lab/imu",
				MQTTQoS:           0,
				SerialPort:        "/dev/ttyACM0",
				SerialBaud:        230400,
				OutputDir:         "/tmp/sessions",
				ServiceURL:        "http://example.com",
				AuthKey:           "secret",
				HTTPTimeout:       30 * time.Second,
				SQLitePath:        "/tmp/ms.db",
				InfluxURL:         "http://influx:8086",
				InfluxToken:       "tok",
				InfluxOrg:         "lab",
				InfluxBucket:      "imu",
				TriggerDelay:      250 * time.Millisecond,
				SettleDelay:       20 * time.Millisecond,
				DrainPollAttempts: 3,
				DrainPollInterval: 5 * time.Millisecond,
				CommandTimeout:    time.Second,
				ConnectAttempts:   5,
				ConnectTimeout:    4 * time.Second,
				ExpectedPackets:   7,
				AllowRestart:      true,
				SessionIDScheme:   SessionIDUUID,
				LogLevel:          "debug",
			},
		},
		{
			name:       "respects changed flags",
			fileConfig: FileConfig{Link: LinkSerial, Sink: SinkHTTP},
			changed:    map[string]bool{"link": true},
			initial:    Config{Link: LinkMemory, Sink: SinkFile},
			expected:   Config{Link: LinkMemory, Sink: SinkHTTP},
		},
		{
			name:       "devices flag blocks file devices",
			fileConfig: FileConfig{Devices: map[string]string{"hip": "FILE"}},
			changed:    map[string]bool{"device": true},
			initial:    Config{Devices: map[string]string{"hip": "FLAG"}},
			expected:   Config{Devices: map[string]string{"hip": "FLAG"}},
		},
		{
			name:       "devices merge per slot",
			fileConfig: FileConfig{Devices: map[string]string{"hip": "FILE"}},
			changed:    map[string]bool{},
			initial:    Config{Devices: map[string]string{"torso": "D4"}},
			expected:   Config{Devices: map[string]string{"hip": "FILE", "torso": "D4"}},
		},
		{
			name:       "invalid timing duration",
			fileConfig: FileConfig{Timing: TimingFile{SettleDelay: "soon"}},
			changed:    map[string]bool{},
			wantErr:    true,
		},
		{
			name:       "invalid http timeout",
			fileConfig: FileConfig{HTTPTimeout: "later"},
			changed:    map[string]bool{},
			wantErr:    true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := tt.initial
			err := ApplyFileConfig(&cfg, tt.fileConfig, tt.changed)

			if tt.wantErr {
				if err == nil {
					t.Error("ApplyFileConfig() expected error but got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("ApplyFileConfig() unexpected error: %v", err)
			}
			if diff := cmp.Diff(tt.expected, cfg); diff != "" {
				t.Errorf("config mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestLoadFileConfig_TOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	content := `
link = "serial"
sink = "influx"
session_id = "uuid"
allow_restart = true

[devices]
right_wrist = "AA:01"
left_wrist = "AA:02"

[serial]
port = "/dev/ttyUSB0"
baud = 921600

[influx]
url = "http://localhost:8086"
org = "lab"
bucket = "imu"

[timing]
trigger_delay = "0s"
settle_delay = "75ms"
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	fc, err := LoadFileConfig(path)
	if err != nil {
		t.Fatalf("LoadFileConfig() = %v", err)
	}
	if fc.Link != LinkSerial || fc.Sink != SinkInflux {
		t.Errorf("link/sink = %s/%s", fc.Link, fc.Sink)
	}
	if fc.Devices["left_wrist"] != "AA:02" {
		t.Errorf("Devices = %v", fc.Devices)
	}
	if fc.Serial.Baud != 921600 {
		t.Errorf("Serial.Baud = %d", fc.Serial.Baud)
	}
	if fc.Influx.Bucket != "imu" {
		t.Errorf("Influx.Bucket = %q", fc.Influx.Bucket)
	}
	if fc.Timing.SettleDelay != "75ms" || fc.Timing.TriggerDelay != "0s" {
		t.Errorf("Timing = %+v", fc.Timing)
	}
	if fc.AllowRestart == nil || !*fc.AllowRestart {
		t.Error("AllowRestart not parsed")
	}
}

func TestLoadFileConfig_YAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
link: mqtt
sink: sqlite
sqlite_path: /var/lib/motionsync/sessions.db
devices:
  hip: "C0:FF:EE:00:00:03"
  torso: "C0:FF:EE:00:00:04"
mqtt:
  broker: tcp://gateway:1883
  qos: 0
timing:
  drain_poll_attempts: 20
  drain_poll_interval: 15ms
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	fc, err := LoadFileConfig(path)
	if err != nil {
		t.Fatalf("LoadFileConfig() = %v", err)
	}

	cfg := DefaultConfig()
	if err := ApplyFileConfig(&cfg, fc, map[string]bool{}); err != nil {
		t.Fatalf("ApplyFileConfig() = %v", err)
	}
	if cfg.Link != LinkMQTT || cfg.Sink != SinkSQLite {
		t.Errorf("link/sink = %s/%s", cfg.Link, cfg.Sink)
	}
	if cfg.MQTTBroker != "tcp://gateway:1883" || cfg.MQTTQoS != 0 {
		t.Errorf("mqtt = %s qos %d", cfg.MQTTBroker, cfg.MQTTQoS)
	}
	if cfg.DrainPollAttempts != 20 || cfg.DrainPollInterval != 15*time.Millisecond {
		t.Errorf("drain poll = %d x %v", cfg.DrainPollAttempts, cfg.DrainPollInterval)
	}
	if cfg.Devices["torso"] != "C0:FF:EE:00:00:04" {
		t.Errorf("Devices = %v", cfg.Devices)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() = %v", err)
	}
}

func TestLoadFileConfig_Errors(t *testing.T) {
	dir := t.TempDir()

	if _, err := LoadFileConfig(filepath.Join(dir, "missing.toml")); err == nil {
		t.Error("expected error for missing file")
	}

	bad := filepath.Join(dir, "bad.toml")
	if err := os.WriteFile(bad, []byte("link = [unterminated"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadFileConfig(bad); err == nil {
		t.Error("expected error for invalid TOML")
	}

	badYAML := filepath.Join(dir, "bad.yml")
	if err := os.WriteFile(badYAML, []byte("devices: [a, b"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadFileConfig(badYAML); err == nil {
		t.Error("expected error for invalid YAML")
	}
}

func TestDefaultConfigPath(t *testing.T) {
	p := DefaultConfigPath()
	if p == "" {
		t.Skip("no home directory")
	}
	if filepath.Base(p) != "config.toml" || filepath.Base(filepath.Dir(p)) != ".motionsync" {
		t.Errorf("DefaultConfigPath() = %v", p)
	}
}

func TestFileExists(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "x.toml")
	if FileExists(p) {
		t.Error("FileExists() = true before create")
	}
	if err := os.WriteFile(p, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	if !FileExists(p) {
		t.Error("FileExists() = false after create")
	}
}
