package bridge

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/bluenviron/gomavlib/v3/pkg/dialects/common"
	"github.com/bluenviron/gomavlib/v3/pkg/dialects/minimal"
	"github.com/bluenviron/gomavlib/v3/pkg/message"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/roman-kulish/mocap-bridge/internal/mavlink"
	"github.com/roman-kulish/mocap-bridge/internal/mocap"
	"github.com/roman-kulish/mocap-bridge/internal/pose"
	"github.com/roman-kulish/mocap-bridge/internal/spatial"
	"github.com/roman-kulish/mocap-bridge/internal/telemetry"
)

type pollResult struct {
	sample mocap.Sample
	err    error
}

// scriptedSource replays results and then reports ErrPending forever
type scriptedSource struct {
	mu      sync.Mutex
	results []pollResult
	polls   int
}

func (s *scriptedSource) Poll() (mocap.Sample, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.polls++
	if len(s.results) == 0 {
		return mocap.Sample{}, mocap.ErrPending
	}

	r := s.results[0]
	s.results = s.results[1:]
	return r.sample, r.err
}

func (s *scriptedSource) pollCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.polls
}

type published struct {
	ts      time.Time
	pose    pose.Pose
	v       pose.Velocity
	quality int8
}

type recordingPublisher struct {
	mu    sync.Mutex
	calls []published
}

func (p *recordingPublisher) Publish(ts time.Time, ps pose.Pose, v pose.Velocity, quality int8) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, published{ts, ps, v, quality})
}

func (p *recordingPublisher) published() []published {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]published(nil), p.calls...)
}

type recordingRecorder struct {
	records []telemetry.Odometry
}

func (r *recordingRecorder) Record(o telemetry.Odometry) bool {
	r.records = append(r.records, o)
	return true
}

// sharedTransport stands in for the MAVLink link shared by both publishers
type sharedTransport struct {
	mu       sync.Mutex
	messages []message.Message
}

func (t *sharedTransport) Send(m message.Message) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.messages = append(t.messages, m)
}

func (t *sharedTransport) Close() error { return nil }

func (t *sharedTransport) count() (heartbeats, odometry int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, m := range t.messages {
		switch m.(type) {
		case *minimal.MessageHeartbeat:
			heartbeats++
		case *common.MessageOdometry:
			odometry++
		}
	}
	return
}

func measured(x, y, z float64) pollResult {
	return pollResult{sample: mocap.Sample{
		Position:    spatial.Vector{X: x, Y: y, Z: z},
		Orientation: spatial.Identity,
	}}
}

var pending = pollResult{err: mocap.ErrPending}

func TestBridge_RetryOnPending(t *testing.T) {
	source := scriptedSource{results: []pollResult{pending, pending, pending, measured(100, 200, 300)}}
	var publisher recordingPublisher

	b := New(&source, &publisher, WithPendingBackoff(time.Millisecond))

	require.NoError(t, b.Step(context.Background()))

	assert.Equal(t, 4, source.pollCount())
	assert.Len(t, publisher.published(), 1)

	origin, ok := b.Calibration().Origin()
	require.True(t, ok)
	assert.Equal(t, spatial.Vector{X: 100, Y: 200, Z: 300}, origin)

	sum := b.Stats()
	assert.Equal(t, uint64(1), sum.Published)
	assert.Equal(t, uint64(3), sum.Pending)
}

func TestBridge_PublishesTransformedPose(t *testing.T) {
	mock := clock.NewMock()
	source := scriptedSource{results: []pollResult{
		measured(500, 500, 500),
		measured(1500, 2500, 3500),
	}}
	var publisher recordingPublisher
	var recorder recordingRecorder

	b := New(&source, &publisher, WithClock(mock), WithRecorder(&recorder))

	require.NoError(t, b.Step(context.Background()))
	mock.Add(500 * time.Millisecond)
	require.NoError(t, b.Step(context.Background()))

	calls := publisher.published()
	require.Len(t, calls, 2)

	assert.Equal(t, spatial.Vector{}, calls[0].pose.Position)
	assert.Equal(t, pose.Velocity{}, calls[0].v)
	assert.Equal(t, mavlink.QualityMeasured, calls[0].quality)

	approx := cmpopts.EquateApprox(0, 1e-9)
	assert.Empty(t, cmp.Diff(spatial.Vector{X: 1, Y: -2, Z: -3}, calls[1].pose.Position, approx))
	assert.Empty(t, cmp.Diff(pose.Velocity{X: 2, Y: -4, Z: -6}, calls[1].v, approx))
	assert.Empty(t, cmp.Diff([4]float64{1, 0, 0, 0}, calls[1].pose.Orientation, approx))
	assert.Equal(t, mock.Now(), calls[1].ts)

	require.Len(t, recorder.records, 2)
	assert.Equal(t, calls[1].ts, recorder.records[1].Timestamp)
	assert.InDelta(t, 1, recorder.records[1].X, 1e-9)
	assert.InDelta(t, 2, recorder.records[1].VX, 1e-9)
}

func TestBridge_OccludedSampleIsDegraded(t *testing.T) {
	occluded := measured(0, 0, 0)
	occluded.sample.PositionOccluded = true

	source := scriptedSource{results: []pollResult{measured(0, 0, 0), occluded}}
	var publisher recordingPublisher

	b := New(&source, &publisher)
	require.NoError(t, b.Step(context.Background()))
	require.NoError(t, b.Step(context.Background()))

	calls := publisher.published()
	require.Len(t, calls, 2)
	assert.Equal(t, mavlink.QualityMeasured, calls[0].quality)
	assert.Equal(t, mavlink.QualityDegraded, calls[1].quality)
	assert.Equal(t, uint64(1), b.Stats().Occluded)
}

func TestBridge_FatalSourceError(t *testing.T) {
	sourceErr := errors.New("helper exited")
	source := scriptedSource{results: []pollResult{measured(0, 0, 0), {err: sourceErr}}}
	var publisher recordingPublisher

	b := New(&source, &publisher, WithUpdatePeriod(time.Millisecond))

	err := b.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, sourceErr)
	assert.Len(t, publisher.published(), 1)
}

func TestBridge_CancelWhilePending(t *testing.T) {
	var source scriptedSource
	var publisher recordingPublisher

	b := New(&source, &publisher, WithPendingBackoff(time.Millisecond))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- b.Run(ctx) }()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("loop did not observe cancellation")
	}

	assert.Empty(t, publisher.published())
	assert.Greater(t, source.pollCount(), 1)
}

func TestBridge_StallTimeout(t *testing.T) {
	var source scriptedSource
	var publisher recordingPublisher

	b := New(&source, &publisher, WithPendingBackoff(time.Millisecond), WithStallTimeout(20*time.Millisecond))

	err := b.Run(context.Background())
	assert.ErrorIs(t, err, ErrSourceStalled)
}

func TestBridge_HeartbeatIndependentOfLoop(t *testing.T) {
	var transport sharedTransport
	var source scriptedSource // stuck in pending retries

	b := New(&source, mavlink.NewOdometryPublisher(&transport), WithPendingBackoff(time.Millisecond))
	hb := mavlink.NewHeartbeat(&transport, mavlink.WithHeartbeatPeriod(10*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return hb.Run(ctx) })
	g.Go(func() error { return b.Run(ctx) })

	require.Eventually(t, func() bool {
		heartbeats, _ := transport.count()
		return heartbeats >= 4
	}, 2*time.Second, time.Millisecond)

	cancel()
	require.NoError(t, g.Wait())

	_, odometry := transport.count()
	assert.Zero(t, odometry)
	assert.Greater(t, source.pollCount(), 1)
}
