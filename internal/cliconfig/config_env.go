package cliconfig

import "os"

// ApplyEnvConfig applies configuration from environment variables
// (MOTIONSYNC_*). Flags that were set explicitly win.
func ApplyEnvConfig(cfg *Config, changed map[string]bool) error {
	s := newConfigSetter(changed)

	s.setString("link", os.Getenv("MOTIONSYNC_LINK"), &cfg.Link)
	s.setString("sink", os.Getenv("MOTIONSYNC_SINK"), &cfg.Sink)
	if v := os.Getenv("MOTIONSYNC_DEVICES"); v != "" {
		devices, err := parseDevices(v)
		if err != nil {
			return err
		}
		s.setDevices("device", devices, &cfg.Devices)
	}

	s.setString("mqtt-broker", os.Getenv("MOTIONSYNC_MQTT_BROKER"), &cfg.MQTTBroker)
	s.setString("mqtt-client-id", os.Getenv("MOTIONSYNC_MQTT_CLIENT_ID"), &cfg.MQTTClientID)
	s.setString("mqtt-topic-prefix", os.Getenv("MOTIONSYNC_MQTT_TOPIC_PREFIX"), &cfg.MQTTTopicPrefix)
	if err := s.setIntFromString("mqtt-qos", os.Getenv("MOTIONSYNC_MQTT_QOS"), &cfg.MQTTQoS); err != nil {
		return err
	}

	s.setString("serial-port", os.Getenv("MOTIONSYNC_SERIAL_PORT"), &cfg.SerialPort)
	if err := s.setIntFromString("serial-baud", os.Getenv("MOTIONSYNC_SERIAL_BAUD"), &cfg.SerialBaud); err != nil {
		return err
	}

	s.setString("output-dir", os.Getenv("MOTIONSYNC_OUTPUT_DIR"), &cfg.OutputDir)
	s.setString("service-url", os.Getenv("MOTIONSYNC_SERVICE_URL"), &cfg.ServiceURL)
	s.setString("auth-key", os.Getenv("MOTIONSYNC_AUTH_KEY"), &cfg.AuthKey)
	s.setString("sqlite-path", os.Getenv("MOTIONSYNC_SQLITE_PATH"), &cfg.SQLitePath)

	s.setString("influx-url", os.Getenv("MOTIONSYNC_INFLUX_URL"), &cfg.InfluxURL)
	s.setString("influx-token", os.Getenv("MOTIONSYNC_INFLUX_TOKEN"), &cfg.InfluxToken)
	s.setString("influx-org", os.Getenv("MOTIONSYNC_INFLUX_ORG"), &cfg.InfluxOrg)
	s.setString("influx-bucket", os.Getenv("MOTIONSYNC_INFLUX_BUCKET"), &cfg.InfluxBucket)

	if err := s.setDuration("timeout", os.Getenv("MOTIONSYNC_HTTP_TIMEOUT"), &cfg.HTTPTimeout); err != nil {
		return err
	}
	if err := s.setDuration("connect-timeout", os.Getenv("MOTIONSYNC_CONNECT_TIMEOUT"), &cfg.ConnectTimeout); err != nil {
		return err
	}
	if err := s.setDuration("trigger-delay", os.Getenv("MOTIONSYNC_TRIGGER_DELAY"), &cfg.TriggerDelay); err != nil {
		return err
	}
	if err := s.setDuration("settle-delay", os.Getenv("MOTIONSYNC_SETTLE_DELAY"), &cfg.SettleDelay); err != nil {
		return err
	}
	if err := s.setDuration("drain-poll-interval", os.Getenv("MOTIONSYNC_DRAIN_POLL_INTERVAL"), &cfg.DrainPollInterval); err != nil {
		return err
	}
	if err := s.setDuration("command-timeout", os.Getenv("MOTIONSYNC_COMMAND_TIMEOUT"), &cfg.CommandTimeout); err != nil {
		return err
	}

	if err := s.setIntFromString("drain-poll-attempts", os.Getenv("MOTIONSYNC_DRAIN_POLL_ATTEMPTS"), &cfg.DrainPollAttempts); err != nil {
		return err
	}
	if err := s.setIntFromString("connect-attempts", os.Getenv("MOTIONSYNC_CONNECT_ATTEMPTS"), &cfg.ConnectAttempts); err != nil {
		return err
	}
	if err := s.setIntFromString("retain-mb", os.Getenv("MOTIONSYNC_RETAIN_MB"), &cfg.RetainMB); err != nil {
		return err
	}
	if err := s.setIntFromString("expected-packets", os.Getenv("MOTIONSYNC_EXPECTED_PACKETS"), &cfg.ExpectedPackets); err != nil {
		return err
	}

	s.setBoolFromString("allow-restart", os.Getenv("MOTIONSYNC_ALLOW_RESTART"), &cfg.AllowRestart)
	s.setString("session-id", os.Getenv("MOTIONSYNC_SESSION_ID"), &cfg.SessionIDScheme)
	s.setString("log-level", os.Getenv("MOTIONSYNC_LOG_LEVEL"), &cfg.LogLevel)

	return nil
}
