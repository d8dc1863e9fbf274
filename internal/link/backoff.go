package link

import (
	"context"
	"time"
)

// Default reconnect timing.
const (
	DefaultAttempts       = 3
	DefaultBackoffStep    = time.Second
	DefaultConnectTimeout = 10 * time.Second
)

// backoff implements linear backoff: the n-th wait is n*step, capped at max.
type backoff struct {
	step    time.Duration
	max     time.Duration
	current time.Duration
}

// newBackoff creates a new backoff with the given step and cap.
func newBackoff(step, max time.Duration) *backoff {
	return &backoff{
		step:    step,
		max:     max,
		current: step,
	}
}

// Sleep waits for the current backoff duration and increases it. Returns
// ctx.Err() if ctx is done first.
func (b *backoff) Sleep(ctx context.Context) error {
	if b.current > 0 {
		t := time.NewTimer(b.current)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
	}

	b.current += b.step
	if b.max > 0 && b.current > b.max {
		b.current = b.max
	}
	return nil
}
