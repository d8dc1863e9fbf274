package main

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/extropian/motionsync/internal/adapters/fs"
	logadapter "github.com/extropian/motionsync/internal/adapters/log"
	"github.com/extropian/motionsync/internal/adapters/sqlite"
	"github.com/extropian/motionsync/internal/cliconfig"
	"github.com/extropian/motionsync/internal/link"
)

func testCLI(t *testing.T) *cli {
	t.Helper()
	cfg := cliconfig.DefaultConfig()
	cfg.OutputDir = t.TempDir()
	cfg.TriggerDelay = 0
	cfg.SettleDelay = 0
	cfg.DrainPollAttempts = 100
	cfg.DrainPollInterval = time.Millisecond
	return &cli{cfg: cfg, changed: map[string]bool{}, log: zerolog.Nop()}
}

func TestBuildSink(t *testing.T) {
	logger := logadapter.NewNoopLogger()

	cfg := cliconfig.DefaultConfig()
	cfg.OutputDir = t.TempDir()
	sink, cleanup, err := buildSink(cfg, logger)
	require.NoError(t, err)
	cleanup()
	assert.IsType(t, &fs.SessionFileSink{}, sink)

	cfg.Sink = cliconfig.SinkSQLite
	cfg.SQLitePath = filepath.Join(t.TempDir(), "ms.db")
	sink, cleanup, err = buildSink(cfg, logger)
	require.NoError(t, err)
	assert.IsType(t, &sqlite.Store{}, sink)
	cleanup()

	cfg.Sink = cliconfig.SinkInflux
	_, _, err = buildSink(cfg, logger)
	assert.Error(t, err, "influx without url must fail")

	cfg.Sink = "tape"
	_, _, err = buildSink(cfg, logger)
	assert.Error(t, err)
}

func TestBuildLink_Memory(t *testing.T) {
	cfg := cliconfig.DefaultConfig()
	cfg.Devices = map[string]string{"hip": "D3", "torso": "D4"}

	l, cleanup, err := buildLink(context.Background(), cfg, logadapter.NewNoopLogger())
	require.NoError(t, err)
	defer cleanup()

	fleet, ok := l.(*link.Fleet)
	require.True(t, ok)
	require.NoError(t, fleet.Connect(context.Background(), 3, "D3"))
}

func TestBuildLink_Unknown(t *testing.T) {
	cfg := cliconfig.DefaultConfig()
	cfg.Link = "carrier-pigeon"
	_, _, err := buildLink(context.Background(), cfg, logadapter.NewNoopLogger())
	assert.Error(t, err)
}

func TestSimulate_WritesSession(t *testing.T) {
	c := testCLI(t)
	c.cfg.Devices = map[string]string{
		"right_wrist": "SIM-right_wrist",
		"left_wrist":  "SIM-left_wrist",
		"hip":         "SIM-hip",
	}
	opts := map[string]link.DeviceOptions{"SIM-hip": {Silent: true}}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, c.simulate(ctx, opts))

	sink := fs.NewSessionFileSink(c.cfg.OutputDir)
	ids, err := sink.List()
	require.NoError(t, err)
	require.Len(t, ids, 1)

	doc, err := sink.Load(ids[0])
	require.NoError(t, err)
	assert.Len(t, doc.Samples["right_wrist"], 105)
	assert.Len(t, doc.Samples["left_wrist"], 105)
	assert.Empty(t, doc.Samples["hip"])
	assert.Equal(t, "SIM-hip", doc.Devices["hip"])
}

func TestListSessions_Unsupported(t *testing.T) {
	c := testCLI(t)
	c.cfg.Sink = cliconfig.SinkHTTP
	assert.Error(t, c.listSessions(context.Background(), &nopWriter{}))
}

type nopWriter struct{}

func (nopWriter) Write(p []byte) (int, error) { return len(p), nil }

func TestRetention(t *testing.T) {
	c := testCLI(t)
	assert.Empty(t, c.retention())

	c.cfg.RetainMB = 16
	assert.Len(t, c.retention(), 1)

	c.cfg.Sink = cliconfig.SinkSQLite
	assert.Empty(t, c.retention(), "retention only applies to the file sink")
}

func TestRecorderConfig_SessionDir(t *testing.T) {
	c := testCLI(t)
	c.cfg.Devices = map[string]string{"hip": "D3", "torso": "D4"}

	rcfg, err := c.recorderConfig()
	require.NoError(t, err)
	assert.Equal(t, c.cfg.OutputDir, rcfg.SessionDir)
	assert.True(t, rcfg.AutoCapture)
	require.Len(t, rcfg.Devices, 2)

	c.cfg.Sink = cliconfig.SinkHTTP
	rcfg, err = c.recorderConfig()
	require.NoError(t, err)
	assert.Empty(t, rcfg.SessionDir)
}
