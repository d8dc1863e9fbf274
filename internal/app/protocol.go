package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/extropian/motionsync/internal/domain"
	"github.com/extropian/motionsync/internal/ports"
)

// Freeze runs the freeze/drain protocol and persists the assembled session.
// trigger names the slot whose threshold started the protocol; it is only
// logged. Freeze succeeds at most once per session: later calls return
// ErrSessionComplete, and calls outside Armed return ErrNotArmed.
//
// A sink failure is returned as a *domain.SinkError and also recorded in the
// Result. Per-device command failures are logged and do not abort the run.
func (c *Coordinator) Freeze(ctx context.Context, trigger domain.SlotID) (Result, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return Result{}, domain.ErrCoordinatorClosed
	}
	switch c.phase {
	case PhaseArmed:
	case PhaseComplete:
		c.mu.Unlock()
		return Result{}, domain.ErrSessionComplete
	default:
		phase := c.phase
		c.mu.Unlock()
		return Result{}, fmt.Errorf("freeze during %s: %w", phase, domain.ErrNotArmed)
	}
	c.phase = PhaseFreezing
	targets := c.connectedLocked()
	timing := c.timing
	startedAt := c.startedAt
	if startedAt.IsZero() {
		startedAt = c.cfg.Now()
	}
	done := c.done
	c.mu.Unlock()

	c.emitPhase(PhaseArmed, PhaseFreezing, "threshold from "+trigger.String())

	c.fanOut(ctx, targets, func(ctx context.Context, s *slot) {
		c.command(ctx, s, domain.CommandFreeze, timing.CommandTimeout)
	})

	sleepCtx(ctx, timing.SettleDelay)

	if err := c.transition(PhaseDraining, "settled"); err != nil {
		return Result{}, fmt.Errorf("enter draining: %w", err)
	}

	c.fanOut(ctx, targets, func(ctx context.Context, s *slot) {
		if err := c.command(ctx, s, domain.CommandDrain, timing.CommandTimeout); err != nil {
			return
		}
		c.awaitDrain(ctx, s, timing)
	})

	payload := c.assemble(targets, startedAt)

	if err := c.transition(PhaseComplete, "drained"); err != nil {
		return Result{}, fmt.Errorf("enter complete: %w", err)
	}

	res := Result{
		SessionID: payload.ID,
		StartedAt: payload.StartedAt,
		Slots:     len(payload.Slots),
		Samples:   payload.SampleCount(),
	}

	if err := c.sink.Persist(ctx, payload); err != nil {
		res.Err = &domain.SinkError{SessionID: payload.ID, Err: err}
		c.logger.Error("session persist failed",
			ports.String("session", payload.ID),
			ports.Err(err),
		)
	} else {
		c.logger.Info("session persisted",
			ports.String("session", res.SessionID),
			ports.Int("slots", res.Slots),
			ports.Int("samples", res.Samples),
		)
	}

	c.mu.Lock()
	c.result = &res
	c.mu.Unlock()
	close(done)

	if c.handler != nil {
		c.handler.OnSessionPersisted(res)
	}
	return res, res.Err
}

// fanOut runs fn for every target concurrently and waits for all of them.
func (c *Coordinator) fanOut(ctx context.Context, targets []*slot, fn func(context.Context, *slot)) {
	var wg sync.WaitGroup
	for _, s := range targets {
		wg.Add(1)
		go func(s *slot) {
			defer wg.Done()
			fn(ctx, s)
		}(s)
	}
	wg.Wait()
}

// awaitDrain polls the slot buffer until a full batch is present, the poll
// budget runs out or the slot is released.
func (c *Coordinator) awaitDrain(ctx context.Context, s *slot, timing Timing) {
	for i := 0; i < timing.DrainPollAttempts; i++ {
		if !c.live(s) {
			return
		}
		if s.buf.IsReady() {
			return
		}
		if !sleepCtx(ctx, timing.DrainPollInterval) {
			return
		}
	}
	if !s.buf.IsReady() {
		c.logger.Warn("drain timed out",
			ports.Stringer("slot", s.id),
			ports.Int("packets", s.buf.Len()),
		)
	}
}

// assemble parses whatever each still-registered target has buffered and
// builds the payload in slot order. A slot without new packets contributes
// its last parsed batch, which may be empty.
func (c *Coordinator) assemble(targets []*slot, startedAt time.Time) *domain.SessionPayload {
	payload := &domain.SessionPayload{
		ID:        c.cfg.SessionID(startedAt),
		StartedAt: startedAt,
		Slots:     make([]domain.SlotRecord, 0, len(targets)),
	}
	for _, s := range targets {
		if !c.live(s) {
			c.logger.Info("slot released before assembly", ports.Stringer("slot", s.id))
			continue
		}
		var samples []domain.SensorSample
		if s.buf.Len() > 0 {
			samples = s.buf.DrainAndParse()
		} else {
			samples = s.buf.Samples()
		}
		payload.Slots = append(payload.Slots, domain.SlotRecord{
			Slot:     s.id,
			DeviceID: s.deviceID,
			Samples:  samples,
		})
	}
	return payload
}
