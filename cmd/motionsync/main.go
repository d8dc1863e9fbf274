package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"runtime/debug"
	"strings"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	pflag "github.com/spf13/pflag"

	logAdapter "github.com/extropian/motionsync/internal/adapters/log"
	"github.com/extropian/motionsync/internal/cliconfig"
	"github.com/extropian/motionsync/internal/ports"
	"github.com/extropian/motionsync/pkg/motionsync"
	"github.com/extropian/motionsync/plugins/configwatcher"
	"github.com/extropian/motionsync/plugins/sessioncleanup"
)

const helpDescription = `
Capture synchronized IMU sessions from up to four wearable sensors.

Devices are assigned to body slots (right_wrist, left_wrist, hip, torso).
Once two or more are connected the session is armed; the first device to
cross its motion threshold freezes every device, their buffered frames are
drained and the assembled session is persisted exactly once.

Sessions can be written as JSON files, PUT to a document service, stored in
SQLite or written to InfluxDB. Configure via file, env (MOTIONSYNC_*) or flags.
`

var exampleUsage = strings.TrimSpace(`
  motionsync --link mqtt --device right_wrist=C0:FF:EE:00:00:01 --device left_wrist=C0:FF:EE:00:00:02
  motionsync --config $HOME/.motionsync/config.toml --sink sqlite
  motionsync simulate --devices 3
  motionsync decode capture.bin
`)

func getVersion() string {
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" {
		return info.Main.Version
	}
	return "dev"
}

// cli holds the configuration shared by all commands.
type cli struct {
	cfg     cliconfig.Config
	cfgPath string
	cfgFile string
	changed map[string]bool
	log     zerolog.Logger
}

func main() {
	c := &cli{
		cfg: cliconfig.DefaultConfig(),
		log: cliconfig.Logger(),
	}

	root := &cobra.Command{
		Use:           "motionsync",
		Short:         "Capture synchronized multi-device IMU sessions",
		Long:          strings.TrimSpace(helpDescription),
		Example:       exampleUsage,
		Version:       fmt.Sprintf("%s %s/%s", getVersion(), runtime.GOOS, runtime.GOARCH),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return c.load(cmd)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.capture(cmd.Context())
		},
	}

	f := root.PersistentFlags()
	f.StringVar(&c.cfgPath, "config", "", "path to config file (default: $HOME/.motionsync/config.toml)")
	f.StringVar(&c.cfg.Link, "link", c.cfg.Link, "device transport: memory, mqtt or serial")
	f.StringVar(&c.cfg.Sink, "sink", c.cfg.Sink, "session sink: file, http, sqlite or influx")
	f.StringToStringVar(&c.cfg.Devices, "device", c.cfg.Devices, "slot=device assignment (repeatable)")

	f.StringVar(&c.cfg.MQTTBroker, "mqtt-broker", c.cfg.MQTTBroker, "MQTT broker URL")
	f.StringVar(&c.cfg.MQTTClientID, "mqtt-client-id", c.cfg.MQTTClientID, "MQTT client id")
	f.StringVar(&c.cfg.MQTTTopicPrefix, "mqtt-topic-prefix", c.cfg.MQTTTopicPrefix, "MQTT topic prefix for device channels")
	f.IntVar(&c.cfg.MQTTQoS, "mqtt-qos", c.cfg.MQTTQoS, "MQTT quality of service (0-2)")

	f.StringVar(&c.cfg.SerialPort, "serial-port", c.cfg.SerialPort, "gateway serial port (e.g. /dev/ttyACM0)")
	f.IntVar(&c.cfg.SerialBaud, "serial-baud", c.cfg.SerialBaud, "gateway baud rate")

	f.StringVar(&c.cfg.OutputDir, "output-dir", c.cfg.OutputDir, "directory for session JSON files")
	f.StringVar(&c.cfg.ServiceURL, "service-url", c.cfg.ServiceURL, "document service base URL")
	f.StringVar(&c.cfg.AuthKey, "auth-key", c.cfg.AuthKey, "document service API key")
	f.DurationVar(&c.cfg.HTTPTimeout, "timeout", c.cfg.HTTPTimeout, "HTTP timeout")
	f.StringVar(&c.cfg.SQLitePath, "sqlite-path", c.cfg.SQLitePath, "SQLite database path")
	f.IntVar(&c.cfg.RetainMB, "retain-mb", c.cfg.RetainMB, "prune the oldest session files once output-dir exceeds this many MiB (0 disables)")
	f.StringVar(&c.cfg.InfluxURL, "influx-url", c.cfg.InfluxURL, "InfluxDB URL")
	f.StringVar(&c.cfg.InfluxToken, "influx-token", c.cfg.InfluxToken, "InfluxDB token")
	f.StringVar(&c.cfg.InfluxOrg, "influx-org", c.cfg.InfluxOrg, "InfluxDB organization")
	f.StringVar(&c.cfg.InfluxBucket, "influx-bucket", c.cfg.InfluxBucket, "InfluxDB bucket")

	f.DurationVar(&c.cfg.TriggerDelay, "trigger-delay", c.cfg.TriggerDelay, "delay between a threshold signal and the freeze")
	f.DurationVar(&c.cfg.SettleDelay, "settle-delay", c.cfg.SettleDelay, "delay between freeze and drain")
	f.IntVar(&c.cfg.DrainPollAttempts, "drain-poll-attempts", c.cfg.DrainPollAttempts, "readiness polls per device after drain")
	f.DurationVar(&c.cfg.DrainPollInterval, "drain-poll-interval", c.cfg.DrainPollInterval, "interval between readiness polls")
	f.DurationVar(&c.cfg.CommandTimeout, "command-timeout", c.cfg.CommandTimeout, "timeout for each device command")
	f.IntVar(&c.cfg.ConnectAttempts, "connect-attempts", c.cfg.ConnectAttempts, "connect attempts per device")
	f.DurationVar(&c.cfg.ConnectTimeout, "connect-timeout", c.cfg.ConnectTimeout, "timeout for each connect attempt")

	f.IntVar(&c.cfg.ExpectedPackets, "expected-packets", c.cfg.ExpectedPackets, "frames per complete device batch")
	if err := f.MarkHidden("expected-packets"); err != nil {
		c.log.Info().Err(err).Msg("failed to hide expected-packets flag")
	}
	f.BoolVar(&c.cfg.AllowRestart, "allow-restart", c.cfg.AllowRestart, "arm a new session after each completed one")
	f.StringVar(&c.cfg.SessionIDScheme, "session-id", c.cfg.SessionIDScheme, "session id scheme: time or uuid")
	f.StringVar(&c.cfg.LogLevel, "log-level", c.cfg.LogLevel, "log level (debug, info, warn, error)")

	root.AddCommand(newSimulateCmd(c), newDecodeCmd(c), newSessionsCmd(c))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := root.ExecuteContext(ctx); err != nil {
		c.log.Error().Err(err).Msg("motionsync")
		stop()
		os.Exit(1)
	}
}

// load layers file, env and flags into c.cfg. Flags win over env, env over
// the file.
func (c *cli) load(cmd *cobra.Command) error {
	c.changed = map[string]bool{}
	cmd.Flags().Visit(func(f *pflag.Flag) { c.changed[f.Name] = true })

	c.cfgFile = c.cfgPath
	if c.cfgFile == "" {
		c.cfgFile = cliconfig.DefaultConfigPath()
	}
	if c.cfgFile != "" && cliconfig.FileExists(c.cfgFile) {
		fc, err := cliconfig.LoadFileConfig(c.cfgFile)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if err := cliconfig.ApplyFileConfig(&c.cfg, fc, c.changed); err != nil {
			return err
		}
	} else if c.cfgPath != "" {
		return fmt.Errorf("config file %s not found", c.cfgPath)
	} else {
		c.cfgFile = ""
	}

	if err := cliconfig.ApplyEnvConfig(&c.cfg, c.changed); err != nil {
		return err
	}

	lvl, err := cliconfig.ParseLevel(c.cfg.LogLevel)
	if err != nil {
		return err
	}
	c.log = c.log.Level(lvl)
	return nil
}

func (c *cli) validate() error {
	if err := c.cfg.Validate(); err != nil {
		return err
	}
	logCfg := c.cfg
	if logCfg.AuthKey != "" {
		logCfg.AuthKey = "*****"
	}
	if logCfg.InfluxToken != "" {
		logCfg.InfluxToken = "*****"
	}
	c.log.Info().Interface("config", logCfg).Msg("configuration")
	return nil
}

func (c *cli) logger() ports.Logger {
	return logAdapter.NewZerologAdapterWithLogger(c.log)
}

// recorderConfig converts the CLI configuration.
func (c *cli) recorderConfig() (motionsync.Config, error) {
	assignments, err := c.cfg.Assignments()
	if err != nil {
		return motionsync.Config{}, err
	}
	devices := make([]motionsync.Assignment, 0, len(assignments))
	for _, a := range assignments {
		devices = append(devices, motionsync.Assignment{Slot: a.Slot, DeviceID: a.DeviceID})
	}
	var sessionDir string
	if c.cfg.Sink == cliconfig.SinkFile {
		sessionDir = c.cfg.OutputDir
	}
	return motionsync.Config{
		Devices:         devices,
		AutoCapture:     true,
		AllowRestart:    c.cfg.AllowRestart,
		ExpectedPackets: c.cfg.ExpectedPackets,
		Timing:          c.cfg.Timing(),
		SessionID:       c.cfg.SessionIDFunc(),
		ConfigPath:      c.cfgFile,
		SessionDir:      sessionDir,
	}, nil
}

// retention returns the session cleanup option when a size cap is set.
func (c *cli) retention() []motionsync.Option {
	if c.cfg.RetainMB <= 0 || c.cfg.Sink != cliconfig.SinkFile {
		return nil
	}
	return []motionsync.Option{sessioncleanup.WithSessionCleanup(sessioncleanup.Config{
		HighWatermark:  int64(c.cfg.RetainMB) << 20,
		RunImmediately: true,
	})}
}

// capture runs the recorder until a session completes (or, with
// allow-restart, until interrupted).
func (c *cli) capture(ctx context.Context) error {
	if err := c.validate(); err != nil {
		return err
	}
	if len(c.cfg.Devices) < 2 {
		c.log.Warn().Int("devices", len(c.cfg.Devices)).Msg("fewer than two devices configured; the session cannot arm")
	}

	logger := c.logger()
	l, closeLink, err := buildLink(ctx, c.cfg, logger)
	if err != nil {
		return fmt.Errorf("open link: %w", err)
	}
	defer closeLink()

	sink, closeSink, err := buildSink(c.cfg, logger)
	if err != nil {
		return fmt.Errorf("open sink: %w", err)
	}
	defer closeSink()

	rcfg, err := c.recorderConfig()
	if err != nil {
		return err
	}
	opts := append([]motionsync.Option{
		motionsync.WithLogger(logger),
		configwatcher.WithConfigWatcher(configwatcher.Config{Pinned: c.changed}),
	}, c.retention()...)
	rec, err := motionsync.New(l, sink, rcfg, opts...)
	if err != nil {
		return fmt.Errorf("create recorder: %w", err)
	}
	return c.run(ctx, rec, nil)
}

// run starts rec and waits for sessions until ctx is done or, without
// allow-restart, the first session completes. afterStart, if set, runs on
// its own goroutine once the recorder is running.
func (c *cli) run(ctx context.Context, rec *motionsync.Recorder, afterStart func(context.Context)) error {
	if err := rec.Start(ctx); err != nil {
		return fmt.Errorf("start recorder: %w", err)
	}
	if afterStart != nil {
		go afterStart(ctx)
	}

	var sessionErr error
	for done := false; !done; {
		select {
		case <-ctx.Done():
			c.log.Info().Msg("received signal, stopping...")
			done = true
		case <-rec.Done():
			res, _ := rec.Result()
			sessionErr = res.Err
			c.log.Info().
				Str("session", res.SessionID).
				Int("slots", res.Slots).
				Int("samples", res.Samples).
				Msg("session complete")
			if !c.cfg.AllowRestart {
				done = true
				break
			}
			if err := rec.Rearm(); err != nil {
				c.log.Error().Err(err).Msg("rearm failed")
				done = true
			}
		}
	}

	if err := rec.Stop(); err != nil {
		return fmt.Errorf("stop recorder: %w", err)
	}
	return sessionErr
}
