package app

import (
	"sync"
	"testing"
	"time"

	logadapter "github.com/extropian/motionsync/internal/adapters/log"
	"github.com/extropian/motionsync/internal/domain"
)

type runChange struct {
	previous RunState
	current  RunState
}

type mockListener struct {
	mu      sync.Mutex
	changes []runChange
}

func (m *mockListener) OnRunStateChange(previous, current RunState, _ string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.changes = append(m.changes, runChange{previous, current})
}

func (m *mockListener) Changes() []runChange {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]runChange{}, m.changes...)
}

func TestRunState_String(t *testing.T) {
	tests := []struct {
		state RunState
		want  string
	}{
		{RunStopped, "Stopped"},
		{RunStarting, "Starting"},
		{RunRunning, "Running"},
		{RunStopping, "Stopping"},
		{RunFailed, "Failed"},
		{RunState(42), "Unknown"},
	}

	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("RunState(%d).String() = %s, want %s", tt.state, got, tt.want)
		}
	}
}

func TestLifecycle_TransitionTo(t *testing.T) {
	tests := []struct {
		name    string
		from    RunState
		to      RunState
		wantErr error
	}{
		{"stopped to starting", RunStopped, RunStarting, nil},
		{"starting to running", RunStarting, RunRunning, nil},
		{"starting to stopping", RunStarting, RunStopping, nil},
		{"running to stopping", RunRunning, RunStopping, nil},
		{"running to failed", RunRunning, RunFailed, nil},
		{"stopping to stopped", RunStopping, RunStopped, nil},
		{"failed to starting", RunFailed, RunStarting, nil},

		{"stopped to running", RunStopped, RunRunning, domain.ErrNotRunning},
		{"failed to stopped", RunFailed, RunStopped, domain.ErrNotRunning},
		{"running to starting", RunRunning, RunStarting, domain.ErrAlreadyRunning},
		{"stopping to running", RunStopping, RunRunning, domain.ErrAlreadyRunning},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := NewLifecycle(logadapter.NewNoopLogger(), nil)
			l.state = tt.from

			err := l.TransitionTo(tt.to, "test")
			if err != tt.wantErr {
				t.Fatalf("TransitionTo() error = %v, want %v", err, tt.wantErr)
			}
			want := tt.to
			if err != nil {
				want = tt.from
			}
			if l.State() != want {
				t.Errorf("state = %v, want %v", l.State(), want)
			}
		})
	}
}

func TestLifecycle_NotifiesListener(t *testing.T) {
	listener := &mockListener{}
	l := NewLifecycle(logadapter.NewNoopLogger(), listener)

	_ = l.TransitionTo(RunStarting, "start")
	_ = l.TransitionTo(RunRunning, "started")
	_ = l.TransitionTo(RunStarting, "invalid")

	changes := listener.Changes()
	if len(changes) != 2 {
		t.Fatalf("got %d changes, want 2", len(changes))
	}
	if changes[1] != (runChange{RunStarting, RunRunning}) {
		t.Errorf("change 1 = %+v", changes[1])
	}
}

func TestLifecycle_CanStartCanStop(t *testing.T) {
	tests := []struct {
		state     RunState
		wantStart bool
		wantStop  bool
	}{
		{RunStopped, true, false},
		{RunStarting, false, true},
		{RunRunning, false, true},
		{RunStopping, false, false},
		{RunFailed, true, false},
	}

	for _, tt := range tests {
		t.Run(tt.state.String(), func(t *testing.T) {
			l := NewLifecycle(logadapter.NewNoopLogger(), nil)
			l.state = tt.state

			if got := l.CanStart(); got != tt.wantStart {
				t.Errorf("CanStart() = %v, want %v", got, tt.wantStart)
			}
			if got := l.CanStop(); got != tt.wantStop {
				t.Errorf("CanStop() = %v, want %v", got, tt.wantStop)
			}
		})
	}
}

func TestLifecycle_WaitWithTimeout(t *testing.T) {
	l := NewLifecycle(logadapter.NewNoopLogger(), nil)

	l.Go(func() { time.Sleep(10 * time.Millisecond) })
	if err := l.WaitWithTimeout(time.Second); err != nil {
		t.Errorf("WaitWithTimeout() = %v, want nil", err)
	}

	release := make(chan struct{})
	l.Go(func() { <-release })
	if err := l.WaitWithTimeout(10 * time.Millisecond); err != domain.ErrShutdownTimeout {
		t.Errorf("WaitWithTimeout() = %v, want ErrShutdownTimeout", err)
	}
	close(release)
}
