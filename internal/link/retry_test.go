package link

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	logadapter "github.com/extropian/motionsync/internal/adapters/log"
	"github.com/extropian/motionsync/internal/domain"
	"github.com/extropian/motionsync/internal/ports"
)

// blockingLink never completes Connect until ctx ends.
type blockingLink struct {
	ports.Link
	calls int
}

func (b *blockingLink) Connect(ctx context.Context, _ domain.SlotID, _ string) error {
	b.calls++
	<-ctx.Done()
	return ctx.Err()
}

func TestBackoff_Linear(t *testing.T) {
	b := newBackoff(time.Millisecond, 3*time.Millisecond)
	ctx := context.Background()

	assert.Equal(t, time.Millisecond, b.current)
	require.NoError(t, b.Sleep(ctx))
	assert.Equal(t, 2*time.Millisecond, b.current)
	require.NoError(t, b.Sleep(ctx))
	assert.Equal(t, 3*time.Millisecond, b.current)
	require.NoError(t, b.Sleep(ctx))
	assert.Equal(t, 3*time.Millisecond, b.current, "capped")
}

func TestBackoff_SleepCanceled(t *testing.T) {
	b := newBackoff(time.Hour, 0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, b.Sleep(ctx), context.Canceled)
}

func TestRetrying_SucceedsAfterFailures(t *testing.T) {
	fleet := NewFleet()
	dev := fleet.Add("dev-1", DeviceOptions{FailConnects: 2})
	r := NewRetrying(fleet, RetryConfig{Step: time.Millisecond}, logadapter.NewNoopLogger())

	err := r.Connect(context.Background(), domain.SlotHip, "dev-1")

	require.NoError(t, err)
	assert.Equal(t, 3, dev.Connects())
	_, ok := fleet.Device(domain.SlotHip)
	assert.True(t, ok)
}

func TestRetrying_GivesUpAfterAttempts(t *testing.T) {
	fleet := NewFleet()
	dev := fleet.Add("dev-1", DeviceOptions{FailConnects: 10})
	r := NewRetrying(fleet, RetryConfig{Step: time.Millisecond}, logadapter.NewNoopLogger())

	err := r.Connect(context.Background(), domain.SlotHip, "dev-1")

	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrConnectTimeout)
	var le *domain.LinkError
	assert.True(t, errors.As(err, &le))
	assert.Equal(t, DefaultAttempts, dev.Connects())
}

func TestRetrying_AttemptTimeout(t *testing.T) {
	inner := &blockingLink{}
	r := NewRetrying(inner, RetryConfig{Attempts: 2, Step: time.Millisecond, Timeout: 5 * time.Millisecond}, logadapter.NewNoopLogger())

	err := r.Connect(context.Background(), domain.SlotTorso, "dev-x")

	assert.ErrorIs(t, err, domain.ErrConnectTimeout)
	assert.Equal(t, 2, inner.calls)
}

func TestRetrying_ParentCanceled(t *testing.T) {
	fleet := NewFleet()
	fleet.Add("dev-1", DeviceOptions{FailConnects: 10})
	r := NewRetrying(fleet, RetryConfig{Step: time.Hour}, logadapter.NewNoopLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	err := r.Connect(ctx, domain.SlotHip, "dev-1")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRetrying_PassesThroughCommands(t *testing.T) {
	fleet := NewFleet()
	dev := fleet.Add("dev-1", DeviceOptions{})
	r := NewRetrying(fleet, RetryConfig{}, logadapter.NewNoopLogger())
	ctx := context.Background()

	require.NoError(t, r.Connect(ctx, domain.SlotLeftWrist, "dev-1"))
	require.NoError(t, r.SendCommand(ctx, domain.SlotLeftWrist, domain.CommandFreeze))

	assert.Equal(t, []domain.Command{domain.CommandFreeze}, dev.Commands())
}
