package motionsync_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/extropian/motionsync/internal/link"
	"github.com/extropian/motionsync/pkg/motionsync"
)

// =============================================================================
// Test Utilities
// =============================================================================

type memorySink struct {
	mu       sync.Mutex
	sessions []*motionsync.Session
}

func (s *memorySink) Persist(_ context.Context, p *motionsync.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions = append(s.sessions, p)
	return nil
}

func (s *memorySink) Sessions() []*motionsync.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*motionsync.Session(nil), s.sessions...)
}

type eventTracker struct {
	motionsync.BaseEventHandler
	mu       sync.Mutex
	states   []motionsync.StateChangeEvent
	phases   []motionsync.PhaseChangeEvent
	sessions []motionsync.SessionEvent
}

func (e *eventTracker) OnStateChange(ev motionsync.StateChangeEvent) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.states = append(e.states, ev)
}

func (e *eventTracker) OnPhaseChange(ev motionsync.PhaseChangeEvent) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.phases = append(e.phases, ev)
}

func (e *eventTracker) OnSession(ev motionsync.SessionEvent) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sessions = append(e.sessions, ev)
}

func (e *eventTracker) States() []motionsync.State {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]motionsync.State, 0, len(e.states))
	for _, s := range e.states {
		out = append(out, s.Current)
	}
	return out
}

func (e *eventTracker) Sessions() []motionsync.SessionEvent {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]motionsync.SessionEvent(nil), e.sessions...)
}

type trackingPlugin struct {
	name      string
	order     *[]string
	mu        *sync.Mutex
	initError error
	cfg       motionsync.PluginConfig
}

func (p *trackingPlugin) Name() string { return p.name }

func (p *trackingPlugin) Initialize(_ context.Context, cfg motionsync.PluginConfig) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.initError != nil {
		return p.initError
	}
	p.cfg = cfg
	*p.order = append(*p.order, "init:"+p.name)
	return nil
}

func (p *trackingPlugin) Shutdown(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	*p.order = append(*p.order, "shutdown:"+p.name)
	return nil
}

func fastTiming() motionsync.Timing {
	return motionsync.Timing{
		DrainPollAttempts: 100,
		DrainPollInterval: time.Millisecond,
		CommandTimeout:    time.Second,
	}
}

func twoDeviceFleet() (*link.Fleet, []motionsync.Assignment) {
	fleet := link.NewFleet()
	right := fleet.Add("RW-01", link.DeviceOptions{})
	left := fleet.Add("LW-02", link.DeviceOptions{})
	right.Queue(link.SyntheticFrames(21, 0, 0)...)
	left.Queue(link.SyntheticFrames(21, 0, 1.5)...)
	return fleet, []motionsync.Assignment{
		{Slot: motionsync.SlotRightWrist, DeviceID: "RW-01"},
		{Slot: motionsync.SlotLeftWrist, DeviceID: "LW-02"},
	}
}

func waitDone(t *testing.T, rec *motionsync.Recorder) {
	t.Helper()
	select {
	case <-rec.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("session did not complete")
	}
}

// =============================================================================
// Construction
// =============================================================================

func TestNew_Validation(t *testing.T) {
	fleet := link.NewFleet()
	sink := &memorySink{}

	_, err := motionsync.New(nil, sink, motionsync.Config{})
	assert.ErrorIs(t, err, motionsync.ErrInvalidConfig)

	_, err = motionsync.New(fleet, nil, motionsync.Config{})
	assert.ErrorIs(t, err, motionsync.ErrInvalidConfig)

	_, err = motionsync.New(fleet, sink, motionsync.Config{
		Devices: []motionsync.Assignment{{Slot: motionsync.Slot(9), DeviceID: "X"}},
	})
	assert.ErrorIs(t, err, motionsync.ErrUnknownSlot)

	_, err = motionsync.New(fleet, sink, motionsync.Config{
		Devices: []motionsync.Assignment{
			{Slot: motionsync.SlotHip, DeviceID: "A"},
			{Slot: motionsync.SlotHip, DeviceID: "B"},
		},
	})
	assert.ErrorIs(t, err, motionsync.ErrInvalidConfig)

	_, err = motionsync.New(fleet, sink, motionsync.Config{
		Devices: []motionsync.Assignment{{Slot: motionsync.SlotHip}},
	})
	assert.ErrorIs(t, err, motionsync.ErrInvalidConfig)

	rec, err := motionsync.New(fleet, sink, motionsync.Config{})
	require.NoError(t, err)
	assert.Equal(t, motionsync.StateStopped, rec.Status())
	assert.Equal(t, motionsync.PhaseIdle, rec.Phase())
	assert.Equal(t, motionsync.DefaultTiming(), rec.Timing())
}

// =============================================================================
// Session flow
// =============================================================================

func TestRecorder_ThresholdProducesOneSession(t *testing.T) {
	fleet, devices := twoDeviceFleet()
	sink := &memorySink{}
	events := &eventTracker{}

	rec, err := motionsync.New(fleet, sink, motionsync.Config{
		Devices:     devices,
		AutoCapture: true,
		Timing:      fastTiming(),
	}, motionsync.WithEventHandler(events))
	require.NoError(t, err)

	require.NoError(t, rec.Start(context.Background()))
	assert.Equal(t, motionsync.StateRunning, rec.Status())

	require.Eventually(t, func() bool {
		d, ok := fleet.Device(motionsync.SlotLeftWrist)
		return ok && d.Received(motionsync.Command(0x01))
	}, 2*time.Second, 5*time.Millisecond, "auto capture should start the devices")
	assert.Equal(t, motionsync.PhaseArmed, rec.Phase())

	right, ok := fleet.Device(motionsync.SlotRightWrist)
	require.True(t, ok)
	right.EmitThreshold()

	waitDone(t, rec)
	fleet.Wait()

	res, ok := rec.Result()
	require.True(t, ok)
	require.NoError(t, res.Err)
	assert.Equal(t, 2, res.Slots)
	assert.Equal(t, 2*21*5, res.Samples)
	assert.Equal(t, motionsync.PhaseComplete, rec.Phase())

	// A second threshold after completion does not persist again.
	right.EmitThreshold()
	time.Sleep(20 * time.Millisecond)
	require.Len(t, sink.Sessions(), 1)

	doc := sink.Sessions()[0].Document()
	assert.Equal(t, "RW-01", doc.Devices["right_wrist"])
	assert.Equal(t, "LW-02", doc.Devices["left_wrist"])
	assert.Len(t, doc.Samples["left_wrist"], 105)

	require.NoError(t, rec.Stop())
	assert.Equal(t, motionsync.StateStopped, rec.Status())
	assert.Empty(t, rec.Connected())

	assert.Equal(t, []motionsync.State{
		motionsync.StateStarting,
		motionsync.StateRunning,
		motionsync.StateStopping,
		motionsync.StateStopped,
	}, events.States())
	require.Len(t, events.Sessions(), 1)
	assert.Equal(t, res.SessionID, events.Sessions()[0].SessionID)
}

func TestRecorder_ManualFreeze(t *testing.T) {
	fleet, devices := twoDeviceFleet()
	sink := &memorySink{}

	rec, err := motionsync.New(fleet, sink, motionsync.Config{Timing: fastTiming()})
	require.NoError(t, err)
	require.NoError(t, rec.Start(context.Background()))
	defer rec.Stop()

	ctx := context.Background()
	_, err = rec.Freeze(ctx, motionsync.SlotHip)
	assert.ErrorIs(t, err, motionsync.ErrNotArmed)

	for _, d := range devices {
		require.NoError(t, rec.Assign(ctx, d.Slot, d.DeviceID))
	}
	assert.ErrorIs(t, rec.Assign(ctx, motionsync.SlotRightWrist, "OTHER"), motionsync.ErrSlotTaken)
	require.NoError(t, rec.StartCapture(ctx))

	res, err := rec.Freeze(ctx, motionsync.SlotRightWrist)
	require.NoError(t, err)
	assert.Equal(t, 210, res.Samples)

	_, err = rec.Freeze(ctx, motionsync.SlotRightWrist)
	assert.ErrorIs(t, err, motionsync.ErrSessionComplete)
	assert.ErrorIs(t, rec.Rearm(), motionsync.ErrRestartDisabled)
}

func TestRecorder_RearmProducesSecondSession(t *testing.T) {
	fleet, devices := twoDeviceFleet()
	sink := &memorySink{}

	rec, err := motionsync.New(fleet, sink, motionsync.Config{
		Devices:      devices,
		AllowRestart: true,
		Timing:       fastTiming(),
	})
	require.NoError(t, err)
	require.NoError(t, rec.Start(context.Background()))
	defer rec.Stop()

	require.Eventually(t, func() bool { return rec.Phase() == motionsync.PhaseArmed },
		2*time.Second, 5*time.Millisecond)

	_, err = rec.Freeze(context.Background(), motionsync.SlotLeftWrist)
	require.NoError(t, err)
	fleet.Wait()

	require.NoError(t, rec.Rearm())
	assert.Equal(t, motionsync.PhaseArmed, rec.Phase())

	for _, s := range []motionsync.Slot{motionsync.SlotRightWrist, motionsync.SlotLeftWrist} {
		d, _ := fleet.Device(s)
		d.Queue(link.SyntheticFrames(21, 105, 0)...)
	}
	_, err = rec.Freeze(context.Background(), motionsync.SlotLeftWrist)
	require.NoError(t, err)

	sessions := sink.Sessions()
	require.Len(t, sessions, 2)
	assert.Equal(t, uint32(105), sessions[1].Slots[0].Samples[0].Timestamp)
}

func TestRecorder_OperationsRequireRunning(t *testing.T) {
	rec, err := motionsync.New(link.NewFleet(), &memorySink{}, motionsync.Config{})
	require.NoError(t, err)

	ctx := context.Background()
	assert.ErrorIs(t, rec.Assign(ctx, motionsync.SlotHip, "X"), motionsync.ErrNotRunning)
	assert.ErrorIs(t, rec.Release(ctx, motionsync.SlotHip), motionsync.ErrNotRunning)
	assert.ErrorIs(t, rec.StartCapture(ctx), motionsync.ErrNotRunning)
	_, err = rec.Freeze(ctx, motionsync.SlotHip)
	assert.ErrorIs(t, err, motionsync.ErrNotRunning)
	assert.ErrorIs(t, rec.Stop(), motionsync.ErrNotRunning)
}

func TestRecorder_StartTwice(t *testing.T) {
	rec, err := motionsync.New(link.NewFleet(), &memorySink{}, motionsync.Config{})
	require.NoError(t, err)

	require.NoError(t, rec.Start(context.Background()))
	assert.ErrorIs(t, rec.Start(context.Background()), motionsync.ErrAlreadyRunning)
	require.NoError(t, rec.Stop())

	// A stopped recorder can be started again with a fresh session.
	require.NoError(t, rec.Start(context.Background()))
	assert.Equal(t, motionsync.PhaseIdle, rec.Phase())
	require.NoError(t, rec.Stop())
}

func TestRecorder_FailedDeviceDoesNotFailStart(t *testing.T) {
	fleet, devices := twoDeviceFleet()
	devices = append(devices, motionsync.Assignment{Slot: motionsync.SlotTorso, DeviceID: "MISSING"})

	rec, err := motionsync.New(fleet, &memorySink{}, motionsync.Config{Devices: devices, Timing: fastTiming()})
	require.NoError(t, err)
	require.NoError(t, rec.Start(context.Background()))
	defer rec.Stop()

	require.Eventually(t, func() bool { return len(rec.Connected()) == 2 },
		2*time.Second, 5*time.Millisecond)
	assert.Equal(t, motionsync.PhaseArmed, rec.Phase())
	_, torso := rec.Connected()[motionsync.SlotTorso]
	assert.False(t, torso)
}

// =============================================================================
// Plugins
// =============================================================================

func TestPlugin_InitializationOrder(t *testing.T) {
	var order []string
	var mu sync.Mutex
	p1 := &trackingPlugin{name: "p1", order: &order, mu: &mu}
	p2 := &trackingPlugin{name: "p2", order: &order, mu: &mu}

	rec, err := motionsync.New(link.NewFleet(), &memorySink{},
		motionsync.Config{ConfigPath: "/etc/motionsync.toml"},
		motionsync.WithPlugin(p1),
		motionsync.WithPlugin(p2),
	)
	require.NoError(t, err)

	require.NoError(t, rec.Start(context.Background()))
	require.NoError(t, rec.Stop())

	assert.Equal(t, []string{"init:p1", "init:p2", "shutdown:p2", "shutdown:p1"}, order)
	assert.Equal(t, "/etc/motionsync.toml", p1.cfg.ConfigPath)
	assert.NotNil(t, p1.cfg.Logger)
	assert.NotNil(t, p1.cfg.Tuner)
}

func TestPlugin_InitializationFailure_PreventsStart(t *testing.T) {
	var order []string
	var mu sync.Mutex
	p1 := &trackingPlugin{name: "p1", order: &order, mu: &mu}
	p2 := &trackingPlugin{name: "p2", order: &order, mu: &mu, initError: errors.New("boom")}
	p3 := &trackingPlugin{name: "p3", order: &order, mu: &mu}

	rec, err := motionsync.New(link.NewFleet(), &memorySink{}, motionsync.Config{},
		motionsync.WithPlugin(p1),
		motionsync.WithPlugin(p2),
		motionsync.WithPlugin(p3),
	)
	require.NoError(t, err)

	err = rec.Start(context.Background())
	require.Error(t, err)
	assert.Equal(t, motionsync.StateFailed, rec.Status())
	assert.Equal(t, []string{"init:p1", "shutdown:p1"}, order)

	// A failed recorder may be started again.
	p2.initError = nil
	require.NoError(t, rec.Start(context.Background()))
	require.NoError(t, rec.Stop())
}

func TestPlugin_TunerAdjustsTiming(t *testing.T) {
	var order []string
	var mu sync.Mutex
	p := &trackingPlugin{name: "tuner", order: &order, mu: &mu}

	rec, err := motionsync.New(link.NewFleet(), &memorySink{}, motionsync.Config{}, motionsync.WithPlugin(p))
	require.NoError(t, err)
	require.NoError(t, rec.Start(context.Background()))
	defer rec.Stop()

	want := fastTiming()
	want.TriggerDelay = 300 * time.Millisecond
	p.cfg.Tuner.SetTiming(want)

	assert.Equal(t, want, rec.Timing())
}

func TestBasePlugin(t *testing.T) {
	p := motionsync.BasePlugin{PluginName: "noop"}
	assert.Equal(t, "noop", p.Name())
	assert.NoError(t, p.Initialize(context.Background(), motionsync.PluginConfig{}))
	assert.NoError(t, p.Shutdown(context.Background()))
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "Running", motionsync.StateRunning.String())
	assert.Equal(t, "Failed", motionsync.StateFailed.String())
}
