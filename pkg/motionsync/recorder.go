package motionsync

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/extropian/motionsync/internal/app"
	"github.com/extropian/motionsync/internal/domain"
	"github.com/extropian/motionsync/internal/ports"
)

// Recorder captures synchronized sessions from a set of devices.
// Use New to create one, then Start to connect the configured devices.
type Recorder struct {
	cfg       Config
	link      Link
	sink      SessionSink
	logger    Logger
	plugins   []Plugin
	lifecycle *app.Lifecycle
	emitter   *emitter

	// mu serializes Start and Stop.
	mu     sync.Mutex
	cancel context.CancelFunc
	used   bool

	// assigning is set while the configured devices are being connected.
	assigning atomic.Bool

	// cmu guards coord and cfg.Timing.
	cmu   sync.RWMutex
	coord *app.Coordinator
}

// New creates a Recorder in StateStopped.
func New(link Link, sink SessionSink, cfg Config, opts ...Option) (*Recorder, error) {
	if link == nil || sink == nil {
		return nil, fmt.Errorf("%w: link and sink are required", domain.ErrInvalidConfig)
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	em := &emitter{handler: o.eventHandler}
	r := &Recorder{
		cfg:       cfg,
		link:      link,
		sink:      sink,
		logger:    o.logger,
		plugins:   o.plugins,
		lifecycle: app.NewLifecycle(o.logger, em),
		emitter:   em,
	}
	r.coord = r.newCoordinator()
	return r, nil
}

func (r *Recorder) newCoordinator() *app.Coordinator {
	return app.NewCoordinator(r.cfg.coordinator(), r.link, r.sink, r.logger, r.emitter)
}

// Start initializes plugins, starts the coordinator worker and connects the
// configured devices in the background. It returns once the recorder is
// running; device failures are logged and do not fail Start.
func (r *Recorder) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.lifecycle.CanStart() {
		return domain.ErrAlreadyRunning
	}
	if err := r.lifecycle.TransitionTo(app.RunStarting, "Start() called"); err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel

	r.cmu.Lock()
	if r.used {
		r.coord = r.newCoordinator()
	}
	r.used = true
	coord := r.coord
	r.cmu.Unlock()

	autoCapture := func() {
		if err := coord.StartCapture(runCtx); err != nil {
			r.logger.Warn("auto capture failed", ports.Err(err))
		}
	}
	r.emitter.onArmed = nil
	if r.cfg.AutoCapture {
		r.emitter.onArmed = func() {
			if r.assigning.Load() {
				return
			}
			r.lifecycle.Go(autoCapture)
		}
	}

	pluginCfg := PluginConfig{
		ConfigPath: r.cfg.ConfigPath,
		SessionDir: r.cfg.SessionDir,
		Logger:     r.logger,
		Tuner:      r,
	}
	for i, p := range r.plugins {
		if err := p.Initialize(runCtx, pluginCfg); err != nil {
			r.logger.Error("plugin initialization failed",
				ports.String("plugin", p.Name()),
				ports.Err(err))
			for j := i - 1; j >= 0; j-- {
				_ = r.plugins[j].Shutdown(context.Background())
			}
			cancel()
			_ = r.lifecycle.TransitionTo(app.RunFailed, "plugin init failed: "+p.Name())
			return err
		}
		r.logger.Info("plugin initialized", ports.String("plugin", p.Name()))
	}

	r.lifecycle.Go(func() {
		if err := coord.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
			r.logger.Error("coordinator stopped", ports.Err(err))
			_ = r.lifecycle.TransitionTo(app.RunFailed, err.Error())
		}
	})

	if err := r.lifecycle.TransitionTo(app.RunRunning, "coordinator started"); err != nil {
		cancel()
		return err
	}

	devices := append([]Assignment(nil), r.cfg.Devices...)
	if len(devices) > 0 {
		r.assigning.Store(true)
		r.lifecycle.Go(func() {
			for _, d := range devices {
				if err := coord.Assign(runCtx, d.Slot, d.DeviceID); err != nil {
					r.logger.Error("device assignment failed",
						ports.Stringer("slot", d.Slot),
						ports.String("device", d.DeviceID),
						ports.Err(err))
				}
			}
			r.assigning.Store(false)
			if r.cfg.AutoCapture && coord.Phase() == app.PhaseArmed {
				autoCapture()
			}
		})
	}
	return nil
}

// Stop cancels background work, disconnects every device and shuts plugins
// down in reverse order. Returns ErrShutdownTimeout if workers did not exit
// within app.ShutdownTimeout.
func (r *Recorder) Stop() error {
	r.mu.Lock()
	if !r.lifecycle.CanStop() {
		r.mu.Unlock()
		return domain.ErrNotRunning
	}
	if err := r.lifecycle.TransitionTo(app.RunStopping, "Stop() called"); err != nil {
		r.mu.Unlock()
		return err
	}
	if r.cancel != nil {
		r.cancel()
	}
	r.mu.Unlock()

	err := r.lifecycle.WaitWithTimeout(app.ShutdownTimeout)

	closeCtx, cancel := context.WithTimeout(context.Background(), app.ShutdownTimeout)
	defer cancel()
	if cerr := r.coordinator().Close(closeCtx); cerr != nil {
		r.logger.Warn("disconnect failed", ports.Err(cerr))
	}

	for i := len(r.plugins) - 1; i >= 0; i-- {
		p := r.plugins[i]
		if shutdownErr := p.Shutdown(closeCtx); shutdownErr != nil {
			r.logger.Error("plugin shutdown failed",
				ports.String("plugin", p.Name()),
				ports.Err(shutdownErr))
		} else {
			r.logger.Info("plugin shutdown complete", ports.String("plugin", p.Name()))
		}
	}

	if err != nil {
		_ = r.lifecycle.TransitionTo(app.RunFailed, "shutdown timeout")
	} else {
		_ = r.lifecycle.TransitionTo(app.RunStopped, "graceful shutdown")
	}
	return err
}

// Status returns the lifecycle state.
func (r *Recorder) Status() State {
	return State(r.lifecycle.State())
}

// Phase returns the session phase.
func (r *Recorder) Phase() Phase {
	return r.coordinator().Phase()
}

// Done is closed once the current session has been handed to the sink.
func (r *Recorder) Done() <-chan struct{} {
	return r.coordinator().Done()
}

// Result returns the outcome of the current session once Done is closed.
func (r *Recorder) Result() (Result, bool) {
	return r.coordinator().Result()
}

// Connected returns the connected devices by slot.
func (r *Recorder) Connected() map[Slot]string {
	return r.coordinator().Connected()
}

// Assign connects deviceID and binds it to slot.
func (r *Recorder) Assign(ctx context.Context, slot Slot, deviceID string) error {
	if r.Status() != StateRunning {
		return domain.ErrNotRunning
	}
	return r.coordinator().Assign(ctx, slot, deviceID)
}

// Release disconnects the device in slot.
func (r *Recorder) Release(ctx context.Context, slot Slot) error {
	if r.Status() != StateRunning {
		return domain.ErrNotRunning
	}
	return r.coordinator().Release(ctx, slot)
}

// StartCapture resets device clocks and starts streaming on every slot.
func (r *Recorder) StartCapture(ctx context.Context) error {
	if r.Status() != StateRunning {
		return domain.ErrNotRunning
	}
	return r.coordinator().StartCapture(ctx)
}

// Freeze triggers the freeze/drain protocol manually, as if trigger had
// crossed its threshold.
func (r *Recorder) Freeze(ctx context.Context, trigger Slot) (Result, error) {
	if r.Status() != StateRunning {
		return Result{}, domain.ErrNotRunning
	}
	return r.coordinator().Freeze(ctx, trigger)
}

// Rearm prepares a new session after the current one completed. Requires
// Config.AllowRestart.
func (r *Recorder) Rearm() error {
	return r.coordinator().Rearm()
}

// Timing returns the protocol delays in effect.
func (r *Recorder) Timing() Timing {
	return r.coordinator().Timing()
}

// SetTiming replaces the protocol delays. A protocol already in progress
// keeps the values it started with.
func (r *Recorder) SetTiming(t Timing) {
	r.cmu.Lock()
	r.cfg.Timing = t
	coord := r.coord
	r.cmu.Unlock()
	coord.SetTiming(t)
}

func (r *Recorder) coordinator() *app.Coordinator {
	r.cmu.RLock()
	defer r.cmu.RUnlock()
	return r.coord
}

var _ Tuner = (*Recorder)(nil)
