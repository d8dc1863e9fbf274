package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	logadapter "github.com/extropian/motionsync/internal/adapters/log"
	"github.com/extropian/motionsync/internal/domain"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "sessions.db"), logadapter.NewNoopLogger())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func testPayload(id string, start time.Time) *domain.SessionPayload {
	return &domain.SessionPayload{
		ID:        id,
		StartedAt: start,
		Slots: []domain.SlotRecord{
			{
				Slot:     domain.SlotRightWrist,
				DeviceID: "rw",
				Samples: []domain.SensorSample{
					{Timestamp: 10, Accel: domain.Vector3{X: 0.5, Y: -1.25, Z: 9.75}, Gyro: domain.Vector3{X: 1}, Mag: domain.Vector3{Z: 40}},
					{Timestamp: 11, Accel: domain.Vector3{X: 0.75}},
				},
			},
			{Slot: domain.SlotTorso, DeviceID: "torso", Samples: []domain.SensorSample{}},
		},
	}
}

func TestStore_Migrates(t *testing.T) {
	s := openTestStore(t)

	version, dirty, err := s.MigrateVersion()
	require.NoError(t, err)
	assert.Equal(t, uint(1), version)
	assert.False(t, dirty)

	// Reapplying is a no-op.
	require.NoError(t, s.MigrateUp())
}

func TestStore_PersistAndLoad(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	start := time.Date(2026, 5, 1, 12, 0, 0, 123_000_000, time.UTC)
	want := testPayload("s1", start)

	require.NoError(t, s.Persist(ctx, want))

	got, err := s.Load(ctx, "s1")
	require.NoError(t, err)
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Load() mismatch (-want +got):\n%s", diff)
	}
}

func TestStore_PersistIsIdempotent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	p := testPayload("s1", time.Unix(0, 0).UTC())

	require.NoError(t, s.Persist(ctx, p))
	require.NoError(t, s.Persist(ctx, p))

	sessions, err := s.Sessions(ctx)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, 2, sessions[0].SlotCount)
	assert.Equal(t, 2, sessions[0].SampleCount)
}

func TestStore_SessionsNewestFirst(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, s.Persist(ctx, testPayload("old", base)))
	require.NoError(t, s.Persist(ctx, testPayload("new", base.Add(time.Hour))))

	sessions, err := s.Sessions(ctx)
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	assert.Equal(t, "new", sessions[0].ID)
	assert.True(t, sessions[0].StartedAt.Equal(base.Add(time.Hour)))
}

func TestStore_LoadMissing(t *testing.T) {
	s := openTestStore(t)

	_, err := s.Load(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestStore_SessionsOrderedBySubsecondStart(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)

	require.NoError(t, s.Persist(ctx, testPayload("whole", base)))
	require.NoError(t, s.Persist(ctx, testPayload("half", base.Add(500*time.Millisecond))))
	require.NoError(t, s.Persist(ctx, testPayload("later", base.Add(589*time.Millisecond))))

	sessions, err := s.Sessions(ctx)
	require.NoError(t, err)
	require.Len(t, sessions, 3)
	assert.Equal(t, []string{"later", "half", "whole"},
		[]string{sessions[0].ID, sessions[1].ID, sessions[2].ID})
	assert.True(t, sessions[2].StartedAt.Equal(base))

	p, err := s.Load(ctx, "half")
	require.NoError(t, err)
	assert.True(t, p.StartedAt.Equal(base.Add(500*time.Millisecond)))
}
