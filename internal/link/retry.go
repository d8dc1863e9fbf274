package link

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/extropian/motionsync/internal/domain"
	"github.com/extropian/motionsync/internal/ports"
)

// RetryConfig configures Retrying.
type RetryConfig struct {
	// Attempts is the number of Connect attempts. Defaults to 3.
	Attempts int

	// Step is the linear backoff increment between attempts. Defaults to 1s.
	Step time.Duration

	// Timeout bounds each attempt. Defaults to 10s.
	Timeout time.Duration
}

func (c *RetryConfig) setDefaults() {
	if c.Attempts <= 0 {
		c.Attempts = DefaultAttempts
	}
	if c.Step <= 0 {
		c.Step = DefaultBackoffStep
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultConnectTimeout
	}
}

// Retrying wraps a Link and retries Connect. Other operations pass through.
type Retrying struct {
	ports.Link
	cfg    RetryConfig
	logger ports.Logger
}

// NewRetrying returns a Link that retries Connect on next.
func NewRetrying(next ports.Link, cfg RetryConfig, logger ports.Logger) *Retrying {
	cfg.setDefaults()
	return &Retrying{Link: next, cfg: cfg, logger: logger}
}

// Connect tries to connect up to Attempts times. Each attempt is bounded by
// Timeout; a timed out attempt is reported as ErrConnectTimeout.
func (r *Retrying) Connect(ctx context.Context, slot domain.SlotID, deviceID string) error {
	b := newBackoff(r.cfg.Step, 0)
	var lastErr error
	for attempt := 1; attempt <= r.cfg.Attempts; attempt++ {
		actx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
		err := r.Link.Connect(actx, slot, deviceID)
		timedOut := errors.Is(actx.Err(), context.DeadlineExceeded) && ctx.Err() == nil
		cancel()
		if err == nil {
			if attempt > 1 {
				r.logger.Info("connected after retry",
					ports.Stringer("slot", slot),
					ports.String("device", deviceID),
					ports.Int("attempt", attempt),
				)
			}
			return nil
		}
		if timedOut && !errors.Is(err, domain.ErrConnectTimeout) {
			err = &domain.LinkError{Op: "connect", Slot: slot, Err: fmt.Errorf("%w: %v", domain.ErrConnectTimeout, err)}
		}
		lastErr = err

		if ctx.Err() != nil {
			return ctx.Err()
		}
		r.logger.Warn("connect failed",
			ports.Stringer("slot", slot),
			ports.String("device", deviceID),
			ports.Int("attempt", attempt),
			ports.Int("attempts", r.cfg.Attempts),
			ports.Err(err),
		)
		if attempt == r.cfg.Attempts {
			break
		}
		if err := b.Sleep(ctx); err != nil {
			return err
		}
	}
	return fmt.Errorf("connect %s after %d attempts: %w", deviceID, r.cfg.Attempts, lastErr)
}
