package app

import (
	"sync"
	"time"

	"github.com/extropian/motionsync/internal/domain"
	"github.com/extropian/motionsync/internal/ports"
)

// ShutdownTimeout is the maximum time Stop waits for background workers.
const ShutdownTimeout = 10 * time.Second

// RunState is the lifecycle state of a recorder, independent of the session
// phase of its coordinator.
type RunState int

const (
	RunStopped RunState = iota
	RunStarting
	RunRunning
	RunStopping
	RunFailed
)

// String returns a human-readable representation of the state.
func (s RunState) String() string {
	switch s {
	case RunStopped:
		return "Stopped"
	case RunStarting:
		return "Starting"
	case RunRunning:
		return "Running"
	case RunStopping:
		return "Stopping"
	case RunFailed:
		return "Failed"
	default:
		return "Unknown"
	}
}

var runTransitions = map[RunState][]RunState{
	RunStopped:  {RunStarting},
	RunStarting: {RunRunning, RunStopping, RunFailed},
	RunRunning:  {RunStopping, RunFailed},
	RunStopping: {RunStopped, RunFailed},
	RunFailed:   {RunStarting},
}

// RunStateListener is notified of lifecycle changes.
type RunStateListener interface {
	OnRunStateChange(previous, current RunState, reason string)
}

// Lifecycle tracks a recorder's run state and its background workers.
type Lifecycle struct {
	mu       sync.RWMutex
	state    RunState
	wg       sync.WaitGroup
	logger   ports.Logger
	listener RunStateListener
}

// NewLifecycle creates a lifecycle in RunStopped. listener may be nil.
func NewLifecycle(logger ports.Logger, listener RunStateListener) *Lifecycle {
	return &Lifecycle{
		state:    RunStopped,
		logger:   logger,
		listener: listener,
	}
}

// State returns the current run state.
func (l *Lifecycle) State() RunState {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state
}

// TransitionTo moves to next. Invalid moves from a stopped or failed state
// return ErrNotRunning, others ErrAlreadyRunning; the state is unchanged.
func (l *Lifecycle) TransitionTo(next RunState, reason string) error {
	l.mu.Lock()
	prev := l.state
	allowed := false
	for _, s := range runTransitions[prev] {
		if s == next {
			allowed = true
			break
		}
	}
	if !allowed {
		l.mu.Unlock()
		if prev == RunStopped || prev == RunFailed {
			return domain.ErrNotRunning
		}
		return domain.ErrAlreadyRunning
	}
	l.state = next
	l.mu.Unlock()

	if l.listener != nil {
		l.listener.OnRunStateChange(prev, next, reason)
	}
	l.logger.Info("state transition",
		ports.Stringer("from", prev),
		ports.Stringer("to", next),
		ports.String("reason", reason),
	)
	return nil
}

// CanStart reports whether a start is allowed.
func (l *Lifecycle) CanStart() bool {
	s := l.State()
	return s == RunStopped || s == RunFailed
}

// CanStop reports whether a stop is allowed.
func (l *Lifecycle) CanStop() bool {
	s := l.State()
	return s == RunRunning || s == RunStarting
}

// Go runs fn on a tracked worker goroutine.
func (l *Lifecycle) Go(fn func()) {
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		fn()
	}()
}

// WaitWithTimeout waits for all workers. Returns ErrShutdownTimeout if they
// are still running after timeout.
func (l *Lifecycle) WaitWithTimeout(timeout time.Duration) error {
	done := make(chan struct{})
	go func() {
		l.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		l.logger.Warn("shutdown timeout, abandoning workers",
			ports.Duration("timeout", timeout),
		)
		return domain.ErrShutdownTimeout
	}
}
