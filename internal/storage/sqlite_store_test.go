package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roman-kulish/mocap-bridge/internal/telemetry"
)

func newTestStore(t *testing.T) *SqliteStore {
	t.Helper()

	store := NewSqliteStore(filepath.Join(t.TempDir(), "recorder.sqlite"))
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func testRecords(base time.Time) []*telemetry.Odometry {
	return []*telemetry.Odometry{
		{
			Timestamp: base,
			Frame:     10,
			Q:         [4]float64{1, 0, 0, 0},
			Quality:   100,
		},
		{
			Timestamp: base.Add(40 * time.Millisecond),
			Frame:     12,
			X:         0.04, Y: -0.02, Z: -1,
			Q:  [4]float64{0.7071, 0, 0, 0.7071},
			VX: 1, VY: -0.5, VZ: 0,
			Quality: 100,
		},
		{
			Timestamp:           base.Add(20 * time.Millisecond),
			Frame:               11,
			X:                   0.02,
			Q:                   [4]float64{1, 0, 0, 0},
			PositionOccluded:    true,
			OrientationOccluded: true,
			Quality:             0,
		},
	}
}

func TestSqliteStore_SchemaVersion(t *testing.T) {
	store := newTestStore(t)

	version, err := store.SchemaVersion()
	require.NoError(t, err)
	assert.Equal(t, uint(2), version)
}

func TestSqliteStore_Sessions(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	config := map[string]any{"updatePeriod": "20ms"}
	first, err := store.CreateSession(ctx, "run-a", "sim", config)
	require.NoError(t, err)
	second, err := store.CreateSession(ctx, "run-b", "process", nil)
	require.NoError(t, err)
	assert.NotEqual(t, first, second)

	_, err = store.CreateSession(ctx, "run-a", "sim", nil)
	assert.Error(t, err, "run ids are unique")

	sess, err := store.Session(ctx, first)
	require.NoError(t, err)
	assert.Equal(t, "run-a", sess.RunID)
	assert.Equal(t, "sim", sess.Source)
	require.NotNil(t, sess.Config)
	assert.JSONEq(t, `{"updatePeriod":"20ms"}`, *sess.Config)
	assert.WithinDuration(t, time.Now(), sess.StartTime, time.Minute)

	sessions, err := store.Sessions(ctx)
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	assert.Equal(t, first, sessions[0].ID)
	assert.Nil(t, sessions[1].Config)

	_, err = store.Session(ctx, 999)
	assert.Error(t, err)
}

func TestSqliteStore_OdometryRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	sessionID, err := store.CreateSession(ctx, "run", "sim", nil)
	require.NoError(t, err)

	base := time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC)
	records := testRecords(base)
	require.NoError(t, store.StoreOdometry(ctx, sessionID, records))
	require.NoError(t, store.StoreOdometry(ctx, sessionID, nil))

	count, err := store.CountOdometry(ctx, sessionID)
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)

	reader, err := store.ReadOdometry(ctx, sessionID)
	require.NoError(t, err)
	defer reader.Close()

	assert.Equal(t, "run", reader.Session().RunID)

	var got []telemetry.Odometry
	for reader.Next(ctx) {
		got = append(got, *reader.Current())
	}
	require.NoError(t, reader.Error())
	require.Len(t, got, 3)

	// timestamp order, not insertion order
	assert.Equal(t, []uint64{10, 11, 12}, []uint64{got[0].Frame, got[1].Frame, got[2].Frame})
	assert.Equal(t, *records[1], got[2])
	assert.True(t, got[1].PositionOccluded)
	assert.True(t, got[1].OrientationOccluded)
	assert.Equal(t, int8(0), got[1].Quality)
}

func TestSqliteStore_ReadOdometryFilters(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	sessionID, err := store.CreateSession(ctx, "run", "sim", nil)
	require.NoError(t, err)

	base := time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC)
	require.NoError(t, store.StoreOdometry(ctx, sessionID, testRecords(base)))

	frames := func(opts ...ReaderOption) []uint64 {
		reader, err := store.ReadOdometry(ctx, sessionID, opts...)
		require.NoError(t, err)
		defer reader.Close()

		var result []uint64
		for reader.Next(ctx) {
			result = append(result, reader.Current().Frame)
		}
		require.NoError(t, reader.Error())
		return result
	}

	assert.Equal(t, []uint64{10, 12}, frames(WithoutOccluded()))
	assert.Equal(t, []uint64{11, 12}, frames(WithStartTime(base.Add(10*time.Millisecond))))
	assert.Equal(t, []uint64{10, 11}, frames(WithEndTime(base.Add(20*time.Millisecond))))
	assert.Equal(t, []uint64{11}, frames(WithTimeRange(base.Add(time.Millisecond), base.Add(30*time.Millisecond))))

	_, err = store.ReadOdometry(ctx, sessionID, WithTimeRange(base.Add(time.Second), base))
	assert.Error(t, err)

	_, err = store.ReadOdometry(ctx, 0)
	assert.Error(t, err)
}

func TestSqliteStore_ReaderCancelled(t *testing.T) {
	store := newTestStore(t)

	sessionID, err := store.CreateSession(context.Background(), "run", "sim", nil)
	require.NoError(t, err)
	require.NoError(t, store.StoreOdometry(context.Background(), sessionID, testRecords(time.Now())))

	reader, err := store.ReadOdometry(context.Background(), sessionID)
	require.NoError(t, err)
	defer reader.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.False(t, reader.Next(ctx))
	assert.ErrorIs(t, reader.Error(), context.Canceled)
}

func TestSqliteStore_ReopenReadOnly(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "recorder.sqlite")

	writer := NewSqliteStore(dbPath)
	sessionID, err := writer.CreateSession(ctx, "run", "sim", nil)
	require.NoError(t, err)
	require.NoError(t, writer.StoreOdometry(ctx, sessionID, testRecords(time.Now())))
	require.NoError(t, writer.Close())
	require.NoError(t, writer.Close())

	reader := NewSqliteStore(dbPath)
	defer reader.Close()

	count, err := reader.CountOdometry(ctx, sessionID)
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)
}
