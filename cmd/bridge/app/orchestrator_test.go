package app

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/bluenviron/gomavlib/v3/pkg/dialects/common"
	"github.com/bluenviron/gomavlib/v3/pkg/dialects/minimal"
	"github.com/bluenviron/gomavlib/v3/pkg/message"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roman-kulish/mocap-bridge/internal/mocap"
	"github.com/roman-kulish/mocap-bridge/internal/storage"
	"github.com/roman-kulish/mocap-bridge/internal/telemetry"
)

type memoryTransport struct {
	mu        sync.Mutex
	heartbeat int
	odometry  int
}

func (m *memoryTransport) Send(msg message.Message) {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch msg.(type) {
	case *minimal.MessageHeartbeat:
		m.heartbeat++
	case *common.MessageOdometry:
		m.odometry++
	}
}

func (m *memoryTransport) Close() error { return nil }

func (m *memoryTransport) counts() (int, int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.heartbeat, m.odometry
}

type failingSource struct{ err error }

func (f failingSource) Poll() (mocap.Sample, error) { return mocap.Sample{}, f.err }

func testConfig() *Config {
	config := NewConfig()
	config.Source.Kind = SourceSim
	config.Loop.UpdatePeriod = TimeDuration(time.Millisecond)
	config.Loop.PendingBackoff = TimeDuration(time.Millisecond)
	config.Loop.HeartbeatPeriod = TimeDuration(10 * time.Millisecond)
	return config
}

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

func TestOrchestrator_RunsUntilCancelled(t *testing.T) {
	config := testConfig()
	source := mocap.NewSimSource(mocap.SimConfig{Rate: 1000})
	var transport memoryTransport

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- NewOrchestrator(source, &transport, config, discard).Run(ctx) }()

	require.Eventually(t, func() bool {
		heartbeats, odometry := transport.counts()
		return heartbeats >= 2 && odometry >= 10
	}, 2*time.Second, time.Millisecond)

	cancel()
	require.NoError(t, <-done)
}

func TestOrchestrator_SourceFailureStopsEverything(t *testing.T) {
	sourceErr := errors.New("capture server gone")
	var transport memoryTransport

	done := make(chan error, 1)
	go func() {
		done <- NewOrchestrator(failingSource{sourceErr}, &transport, testConfig(), discard).Run(context.Background())
	}()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, sourceErr)
	case <-time.After(2 * time.Second):
		t.Fatal("orchestrator kept running after a source failure")
	}
}

func TestOrchestrator_Records(t *testing.T) {
	ctx := context.Background()
	store := storage.NewSqliteStore(filepath.Join(t.TempDir(), "flights.sqlite"))
	defer store.Close()

	sessionID, err := store.CreateSession(ctx, "run", "sim", testConfig())
	require.NoError(t, err)

	recorder, err := telemetry.NewRecorder(store, sessionID)
	require.NoError(t, err)

	var transport memoryTransport
	source := mocap.NewSimSource(mocap.SimConfig{Rate: 1000})

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() {
		done <- NewOrchestrator(source, &transport, testConfig(), discard, WithRecorder(recorder)).Run(runCtx)
	}()

	require.Eventually(t, func() bool {
		_, odometry := transport.counts()
		return odometry >= 5
	}, 2*time.Second, time.Millisecond)

	cancel()
	require.NoError(t, <-done)

	_, published := transport.counts()
	count, err := store.CountOdometry(ctx, sessionID)
	require.NoError(t, err)
	assert.Equal(t, int64(published), count, "every published update is recorded after the drain")
}
