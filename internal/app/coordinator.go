package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/extropian/motionsync/internal/buffer"
	"github.com/extropian/motionsync/internal/domain"
	"github.com/extropian/motionsync/internal/ports"
)

// slot is the coordinator's view of one assigned device.
type slot struct {
	id       domain.SlotID
	deviceID string
	state    domain.ConnectionState
	buf      *buffer.Device
}

type eventKind int

const (
	eventParse eventKind = iota
	eventThreshold
)

type event struct {
	kind eventKind
	slot *slot
}

// Coordinator owns the device slots of one coordination lifetime and runs
// the freeze/drain protocol that turns their buffers into a session.
//
// Transport callbacks only append to buffers and queue work. Parsing runs on
// the goroutine that calls Run; the freeze protocol and persistence run on a
// goroutine Run starts for a threshold, or on the caller of Freeze.
type Coordinator struct {
	cfg     Config
	link    ports.Link
	sink    ports.SessionSink
	logger  ports.Logger
	handler EventHandler
	events  chan event

	mu        sync.Mutex
	phase     Phase
	slots     map[domain.SlotID]*slot
	timing    Timing
	startedAt time.Time
	done      chan struct{}
	result    *Result
	pending   bool
	closed    bool

	wg sync.WaitGroup
}

// NewCoordinator creates a coordinator in PhaseIdle.
func NewCoordinator(cfg Config, link ports.Link, sink ports.SessionSink, logger ports.Logger, handler EventHandler) *Coordinator {
	cfg.SetDefaults()
	return &Coordinator{
		cfg:     cfg,
		link:    link,
		sink:    sink,
		logger:  logger,
		handler: handler,
		events:  make(chan event, cfg.QueueSize),
		phase:   PhaseIdle,
		slots:   make(map[domain.SlotID]*slot, domain.MaxSlots),
		timing:  cfg.Timing,
		done:    make(chan struct{}),
	}
}

// Phase returns the current phase.
func (c *Coordinator) Phase() Phase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase
}

// Done returns a channel that is closed when the current session completes.
func (c *Coordinator) Done() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.done
}

// Result returns the last produced session, if any.
func (c *Coordinator) Result() (Result, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.result == nil {
		return Result{}, false
	}
	return *c.result, true
}

// SetTiming replaces the protocol delays used by subsequent sessions.
func (c *Coordinator) SetTiming(t Timing) {
	t = t.withDefaults()
	c.mu.Lock()
	c.timing = t
	c.mu.Unlock()
	c.logger.Info("timing updated",
		ports.Duration("trigger_delay", t.TriggerDelay),
		ports.Duration("settle_delay", t.SettleDelay),
		ports.Int("drain_poll_attempts", t.DrainPollAttempts),
		ports.Duration("drain_poll_interval", t.DrainPollInterval),
		ports.Duration("command_timeout", t.CommandTimeout),
	)
}

// Timing returns the current protocol delays.
func (c *Coordinator) Timing() Timing {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.timing
}

// Connected returns the connected slots and their device ids.
func (c *Coordinator) Connected() map[domain.SlotID]string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[domain.SlotID]string, len(c.slots))
	for id, s := range c.slots {
		if s.state == domain.Connected {
			out[id] = s.deviceID
		}
	}
	return out
}

// Assign binds deviceID to slot id, connects it through the link, subscribes
// to its data and threshold channels and stops its IMU. On success the phase
// follows the number of connected devices.
func (c *Coordinator) Assign(ctx context.Context, id domain.SlotID, deviceID string) error {
	if !id.Valid() {
		return fmt.Errorf("%w: %d", domain.ErrUnknownSlot, int(id))
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return domain.ErrCoordinatorClosed
	}
	if c.phase == PhaseComplete {
		c.mu.Unlock()
		return domain.ErrSessionComplete
	}
	if !c.phase.accepting() {
		c.mu.Unlock()
		return fmt.Errorf("assign %s during %s: %w", id, c.phase, domain.ErrNotArmed)
	}
	if _, ok := c.slots[id]; ok {
		c.mu.Unlock()
		return fmt.Errorf("%w: %s", domain.ErrSlotTaken, id)
	}
	s := &slot{
		id:       id,
		deviceID: deviceID,
		state:    domain.Connecting,
		buf:      buffer.NewDevice(id, c.cfg.ExpectedPackets, c.logger),
	}
	c.slots[id] = s
	c.mu.Unlock()

	c.logger.Info("connecting device",
		ports.Stringer("slot", id),
		ports.String("device", deviceID),
	)

	if err := c.link.Connect(ctx, id, deviceID); err != nil {
		c.drop(s)
		return fmt.Errorf("connect %s: %w", id, err)
	}
	if err := c.link.SubscribeData(ctx, id, c.onData(s)); err != nil {
		c.abandon(ctx, s)
		return fmt.Errorf("subscribe data %s: %w", id, err)
	}
	if err := c.link.SubscribeThreshold(ctx, id, c.onThreshold(s)); err != nil {
		c.abandon(ctx, s)
		return fmt.Errorf("subscribe threshold %s: %w", id, err)
	}

	// Devices may still be sampling from a previous run.
	c.command(ctx, s, domain.CommandStopIMU, c.Timing().CommandTimeout)

	c.mu.Lock()
	if c.slots[id] != s {
		c.mu.Unlock()
		return fmt.Errorf("%w: %s released during connect", domain.ErrNotConnected, id)
	}
	s.state = domain.Connected
	prev, next, changed := c.settleLocked()
	c.mu.Unlock()

	c.logger.Info("device connected",
		ports.Stringer("slot", id),
		ports.String("device", deviceID),
	)
	if changed {
		c.emitPhase(prev, next, "device "+deviceID+" connected to "+id.String())
	}
	return nil
}

// Release disconnects the slot, clears its buffers and removes it. Any
// freeze or drain wait in progress for the slot is abandoned.
func (c *Coordinator) Release(ctx context.Context, id domain.SlotID) error {
	c.mu.Lock()
	s, ok := c.slots[id]
	if !ok {
		c.mu.Unlock()
		return fmt.Errorf("%w: %s", domain.ErrNotConnected, id)
	}
	delete(c.slots, id)
	s.state = domain.Disconnected
	s.buf.Reset()
	var prev, next Phase
	var changed bool
	if c.phase.accepting() {
		prev, next, changed = c.settleLocked()
	}
	c.mu.Unlock()

	if changed {
		c.emitPhase(prev, next, "slot "+id.String()+" released")
	}
	if err := c.link.Disconnect(ctx, id); err != nil {
		c.logger.Warn("disconnect failed", ports.Stringer("slot", id), ports.Err(err))
		return err
	}
	c.logger.Info("slot released", ports.Stringer("slot", id))
	return nil
}

// StartCapture resets every connected device's clock and starts sampling.
// It requires an armed session; per-device failures are logged and do not
// stop the other devices.
func (c *Coordinator) StartCapture(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return domain.ErrCoordinatorClosed
	}
	switch c.phase {
	case PhaseArmed:
	case PhaseComplete:
		c.mu.Unlock()
		return domain.ErrSessionComplete
	case PhaseIdle, PhaseAwaitingDevices:
		c.mu.Unlock()
		return domain.ErrNotEnoughDevices
	default:
		c.mu.Unlock()
		return domain.ErrNotArmed
	}
	targets := c.connectedLocked()
	c.startedAt = c.cfg.Now()
	timeout := c.timing.CommandTimeout
	c.mu.Unlock()

	for _, s := range targets {
		if err := c.command(ctx, s, domain.CommandResetClock, timeout); err != nil {
			continue
		}
		c.command(ctx, s, domain.CommandStartIMU, timeout)
	}
	c.logger.Info("capture started", ports.Int("devices", len(targets)))
	return nil
}

// Run processes queued parse and threshold work until ctx is done. A
// threshold schedules the freeze after the trigger delay on its own
// goroutine, so batches keep being parsed while it waits. Run returns once
// any scheduled freeze has finished.
func (c *Coordinator) Run(ctx context.Context) error {
	defer c.wg.Wait()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-c.events:
			c.handle(ctx, ev)
		}
	}
}

func (c *Coordinator) handle(ctx context.Context, ev event) {
	switch ev.kind {
	case eventParse:
		// The phase check and the parse share the lock so that Freeze cannot
		// leave Armed while a batch is half drained.
		c.mu.Lock()
		if c.slots[ev.slot.id] == ev.slot && c.phase.accepting() && ev.slot.buf.IsReady() {
			ev.slot.buf.DrainAndParse()
		}
		c.mu.Unlock()

	case eventThreshold:
		c.mu.Lock()
		if c.pending || c.closed || c.phase != PhaseArmed {
			c.mu.Unlock()
			c.logger.Debug("threshold ignored", ports.Stringer("slot", ev.slot.id))
			return
		}
		c.pending = true
		delay := c.timing.TriggerDelay
		c.mu.Unlock()

		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			c.delayedFreeze(ctx, ev.slot.id, delay)
		}()
	}
}

// delayedFreeze waits for the trigger delay and runs the freeze protocol.
func (c *Coordinator) delayedFreeze(ctx context.Context, trigger domain.SlotID, delay time.Duration) {
	defer func() {
		c.mu.Lock()
		c.pending = false
		c.mu.Unlock()
	}()

	if !sleepCtx(ctx, delay) {
		return
	}
	if _, err := c.Freeze(ctx, trigger); err != nil {
		if errors.Is(err, domain.ErrSessionComplete) || errors.Is(err, domain.ErrNotArmed) ||
			errors.Is(err, domain.ErrCoordinatorClosed) {
			c.logger.Debug("threshold ignored", ports.Stringer("slot", trigger), ports.Err(err))
			return
		}
		c.logger.Error("session failed", ports.Err(err))
	}
}

// Rearm returns a completed coordinator to the resting phase for its
// connected devices with empty buffers, so that a new session can be
// produced. It fails with ErrRestartDisabled unless AllowRestart is set.
func (c *Coordinator) Rearm() error {
	if !c.cfg.AllowRestart {
		return domain.ErrRestartDisabled
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return domain.ErrCoordinatorClosed
	}
	if c.phase != PhaseComplete {
		c.mu.Unlock()
		return nil
	}
	for _, s := range c.slots {
		s.buf.Reset()
	}
	c.done = make(chan struct{})
	c.startedAt = time.Time{}
	prev, next, changed := c.settleLocked()
	c.mu.Unlock()

	if changed {
		c.emitPhase(prev, next, "rearmed")
	}
	return nil
}

// Close tears the coordinator down: every slot is disconnected, its buffers
// cleared and the phase reset to Idle. A closed coordinator is terminal;
// Assign, StartCapture, Freeze and Rearm return ErrCoordinatorClosed.
func (c *Coordinator) Close(ctx context.Context) error {
	c.mu.Lock()
	c.closed = true
	slots := make([]*slot, 0, len(c.slots))
	for _, s := range c.slots {
		s.state = domain.Disconnected
		slots = append(slots, s)
	}
	c.slots = make(map[domain.SlotID]*slot, domain.MaxSlots)
	prev := c.phase
	c.phase = PhaseIdle
	c.mu.Unlock()

	var errs []error
	for _, s := range slots {
		s.buf.Reset()
		if err := c.link.Disconnect(ctx, s.id); err != nil {
			c.logger.Warn("disconnect failed", ports.Stringer("slot", s.id), ports.Err(err))
			errs = append(errs, err)
		}
	}
	if prev != PhaseIdle {
		c.emitPhase(prev, PhaseIdle, "closed")
	}
	return errors.Join(errs...)
}

// onData returns the data-channel handler for s.
func (c *Coordinator) onData(s *slot) ports.NotificationHandler {
	return func(data []byte) {
		c.mu.Lock()
		live := c.slots[s.id] == s
		phase := c.phase
		c.mu.Unlock()

		if !live {
			return
		}
		if phase == PhaseComplete {
			c.logger.Debug("packet after completion ignored",
				ports.Stringer("slot", s.id),
				ports.Int("bytes", len(data)),
			)
			return
		}

		n := s.buf.Push(data)
		if phase.accepting() && n >= c.cfg.ExpectedPackets {
			c.enqueue(event{kind: eventParse, slot: s})
		}
	}
}

// onThreshold returns the threshold-channel handler for s.
func (c *Coordinator) onThreshold(s *slot) ports.NotificationHandler {
	return func(data []byte) {
		if !domain.IsThreshold(data) {
			c.logger.Debug("unknown threshold notification",
				ports.Stringer("slot", s.id),
				ports.Int("bytes", len(data)),
			)
			return
		}

		c.mu.Lock()
		live := c.slots[s.id] == s
		phase := c.phase
		c.mu.Unlock()

		if !live {
			return
		}
		if phase != PhaseArmed {
			c.logger.Debug("threshold ignored",
				ports.Stringer("slot", s.id),
				ports.Stringer("phase", phase),
			)
			return
		}
		c.logger.Info("threshold crossed", ports.Stringer("slot", s.id))
		c.enqueue(event{kind: eventThreshold, slot: s})
	}
}

func (c *Coordinator) enqueue(ev event) {
	select {
	case c.events <- ev:
	default:
		c.logger.Warn("event queue full, dropping event",
			ports.Stringer("slot", ev.slot.id),
			ports.Int("kind", int(ev.kind)),
		)
	}
}

// command writes cmd to s with a timeout and logs failures.
func (c *Coordinator) command(ctx context.Context, s *slot, cmd domain.Command, timeout time.Duration) error {
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := c.link.SendCommand(cctx, s.id, cmd); err != nil {
		c.logger.Warn("command failed",
			ports.Stringer("slot", s.id),
			ports.Stringer("command", cmd),
			ports.Err(err),
		)
		return err
	}
	c.logger.Debug("command sent",
		ports.Stringer("slot", s.id),
		ports.Stringer("command", cmd),
	)
	return nil
}

// drop removes s if it is still registered.
func (c *Coordinator) drop(s *slot) {
	c.mu.Lock()
	if c.slots[s.id] == s {
		delete(c.slots, s.id)
	}
	c.mu.Unlock()
}

// abandon drops s and disconnects it after a failed setup.
func (c *Coordinator) abandon(ctx context.Context, s *slot) {
	c.drop(s)
	if err := c.link.Disconnect(ctx, s.id); err != nil {
		c.logger.Debug("disconnect after failed setup", ports.Stringer("slot", s.id), ports.Err(err))
	}
}

// live reports whether s is still registered.
func (c *Coordinator) live(s *slot) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.slots[s.id] == s
}

// connectedLocked returns connected slots in payload order.
func (c *Coordinator) connectedLocked() []*slot {
	out := make([]*slot, 0, len(c.slots))
	for _, id := range domain.Slots {
		if s, ok := c.slots[id]; ok && s.state == domain.Connected {
			out = append(out, s)
		}
	}
	return out
}

// settleLocked moves an accepting phase to the one matching the connected
// count. Returns the transition for the caller to emit after unlocking.
func (c *Coordinator) settleLocked() (prev, next Phase, changed bool) {
	prev = c.phase
	next = phaseForCount(len(c.connectedLocked()), c.cfg.MinDevices)
	if prev == next {
		return prev, next, false
	}
	if err := validTransition(prev, next); err != nil {
		return prev, prev, false
	}
	c.phase = next
	if next == PhaseArmed && c.startedAt.IsZero() {
		c.startedAt = c.cfg.Now()
	}
	return prev, next, true
}

// transition moves to next if allowed and emits the change.
func (c *Coordinator) transition(next Phase, reason string) error {
	c.mu.Lock()
	prev := c.phase
	if err := validTransition(prev, next); err != nil {
		c.mu.Unlock()
		return err
	}
	c.phase = next
	c.mu.Unlock()

	c.emitPhase(prev, next, reason)
	return nil
}

func (c *Coordinator) emitPhase(prev, next Phase, reason string) {
	if c.handler != nil {
		c.handler.OnPhaseChange(prev, next, reason)
	}
	c.logger.Info("phase transition",
		ports.Stringer("from", prev),
		ports.Stringer("to", next),
		ports.String("reason", reason),
	)
}

// sleepCtx waits for d or until ctx is done. Returns false if ctx ended first.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
