package bridge

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/benbjohnson/clock"
	"golang.org/x/time/rate"

	"github.com/roman-kulish/mocap-bridge/internal/mavlink"
	"github.com/roman-kulish/mocap-bridge/internal/mocap"
	"github.com/roman-kulish/mocap-bridge/internal/pose"
	"github.com/roman-kulish/mocap-bridge/internal/telemetry"
)

const (
	DefaultUpdatePeriod   = 20 * time.Millisecond
	DefaultPendingBackoff = 10 * time.Millisecond
	DefaultStatsInterval  = 30 * time.Second

	warnInterval = 5 * time.Second
)

// ErrSourceStalled is returned by Run when the frame source has not produced
// a sample for longer than the stall timeout
var ErrSourceStalled = errors.New("frame source stalled")

// Publisher sends one odometry update
type Publisher interface {
	Publish(ts time.Time, p pose.Pose, v pose.Velocity, quality int8)
}

// Recorder receives a copy of every published update. Record must not block.
type Recorder interface {
	Record(o telemetry.Odometry) bool
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) func(*Bridge) {
	return func(b *Bridge) {
		b.logger = logger
	}
}

// WithClock sets the clock used for timestamps, backoff and pacing
func WithClock(clk clock.Clock) func(*Bridge) {
	return func(b *Bridge) {
		b.clock = clk
	}
}

// WithUpdatePeriod sets the fixed delay between two published updates
func WithUpdatePeriod(period time.Duration) func(*Bridge) {
	return func(b *Bridge) {
		b.updatePeriod = period
	}
}

// WithPendingBackoff sets the wait before polling again after ErrPending
func WithPendingBackoff(backoff time.Duration) func(*Bridge) {
	return func(b *Bridge) {
		b.pendingBackoff = backoff
	}
}

// WithStallTimeout makes Run fail with ErrSourceStalled when no sample
// arrives for timeout. Zero disables the guard.
func WithStallTimeout(timeout time.Duration) func(*Bridge) {
	return func(b *Bridge) {
		b.stallTimeout = timeout
	}
}

// WithStatsInterval sets how often loop statistics are logged. Zero disables
// the report.
func WithStatsInterval(interval time.Duration) func(*Bridge) {
	return func(b *Bridge) {
		b.statsInterval = interval
	}
}

// WithRecorder tees every published update into r
func WithRecorder(r Recorder) func(*Bridge) {
	return func(b *Bridge) {
		b.recorder = r
	}
}

// Bridge is the acquisition loop: it polls the frame source, converts each
// sample into the output convention, estimates velocity and publishes
// odometry at a fixed pace. Calibration and velocity history are owned by the
// Bridge and only touched from the goroutine running it.
type Bridge struct {
	source      mocap.Source
	publisher   Publisher
	recorder    Recorder
	transformer *pose.Transformer
	velocity    pose.VelocityEstimator

	updatePeriod   time.Duration
	pendingBackoff time.Duration
	stallTimeout   time.Duration
	statsInterval  time.Duration

	clock  clock.Clock
	logger *slog.Logger

	occlusionWarning rate.Sometimes
	stats            *Stats
	lastSample       time.Time
	lastReport       time.Time
}

// New creates a Bridge polling source and publishing through publisher
func New(source mocap.Source, publisher Publisher, options ...func(*Bridge)) *Bridge {
	b := Bridge{
		source:           source,
		publisher:        publisher,
		transformer:      pose.NewTransformer(),
		updatePeriod:     DefaultUpdatePeriod,
		pendingBackoff:   DefaultPendingBackoff,
		statsInterval:    DefaultStatsInterval,
		clock:            clock.New(),
		logger:           slog.New(slog.NewTextHandler(io.Discard, nil)),
		occlusionWarning: rate.Sometimes{Interval: warnInterval},
		stats:            NewStats(defaultStatsWindow),
	}

	for _, option := range options {
		option(&b)
	}

	return &b
}

// Calibration returns the calibration state of the loop
func (b *Bridge) Calibration() *pose.Calibration {
	return b.transformer.Calibration()
}

// Stats returns a summary of the loop statistics
func (b *Bridge) Stats() Summary {
	return b.stats.Summary()
}

// Run executes iterations until ctx is cancelled or the source fails. A
// cancelled context is a clean shutdown and returns nil.
func (b *Bridge) Run(ctx context.Context) error {
	b.lastSample = b.clock.Now()
	b.lastReport = b.lastSample

	b.logger.Info("bridge loop started",
		slog.Duration("updatePeriod", b.updatePeriod),
		slog.Duration("pendingBackoff", b.pendingBackoff),
	)
	defer func() {
		b.logger.Info("bridge loop stopped", b.stats.Summary().attrs()...)
	}()

	for ctx.Err() == nil {
		if err := b.Step(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		b.report()

		if err := b.sleep(ctx, b.updatePeriod); err != nil {
			return nil
		}
	}

	return nil
}

// Step runs one iteration: acquire a sample, retrying while the source has
// nothing new, then transform, estimate and publish it.
func (b *Bridge) Step(ctx context.Context) error {
	s, err := b.acquire(ctx)
	if err != nil {
		return err
	}

	b.process(s)
	return nil
}

func (b *Bridge) acquire(ctx context.Context) (mocap.Sample, error) {
	if b.lastSample.IsZero() {
		b.lastSample = b.clock.Now()
	}

	for {
		s, err := b.source.Poll()
		switch {
		case err == nil:
			b.lastSample = b.clock.Now()
			return s, nil

		case errors.Is(err, mocap.ErrPending):
			b.stats.pending++

			if b.stallTimeout > 0 {
				if idle := b.clock.Since(b.lastSample); idle >= b.stallTimeout {
					return mocap.Sample{}, fmt.Errorf("%w: no sample for %s", ErrSourceStalled, idle)
				}
			}

			if err = b.sleep(ctx, b.pendingBackoff); err != nil {
				return mocap.Sample{}, err
			}

		default:
			return mocap.Sample{}, fmt.Errorf("polling frame source: %w", err)
		}
	}
}

func (b *Bridge) process(s mocap.Sample) {
	now := b.clock.Now()

	p, latched := b.transformer.Transform(s)
	if latched.Origin {
		origin, _ := b.transformer.Calibration().Origin()
		b.logger.Info("origin captured",
			slog.Uint64("frame", s.Frame),
			slog.Float64("x", origin.X),
			slog.Float64("y", origin.Y),
			slog.Float64("z", origin.Z),
		)
	}
	if latched.Orientation {
		b.logger.Info("reference orientation captured", slog.Uint64("frame", s.Frame))
	}

	v := b.velocity.Estimate(p.Position, now)

	quality := mavlink.QualityMeasured
	if s.PositionOccluded || s.OrientationOccluded {
		quality = mavlink.QualityDegraded
		b.stats.occluded++

		if b.transformer.Calibration().IsComplete() {
			b.occlusionWarning.Do(func() {
				b.logger.Warn("publishing occluded sample",
					slog.Uint64("frame", s.Frame),
					slog.Bool("position", s.PositionOccluded),
					slog.Bool("orientation", s.OrientationOccluded),
				)
			})
		}
	}

	b.publisher.Publish(now, p, v, quality)
	b.stats.observe(now)

	if b.recorder != nil {
		b.recorder.Record(telemetry.Odometry{
			Timestamp:           now,
			Frame:               s.Frame,
			X:                   p.Position.X,
			Y:                   p.Position.Y,
			Z:                   p.Position.Z,
			Q:                   p.Orientation,
			VX:                  v.X,
			VY:                  v.Y,
			VZ:                  v.Z,
			PositionOccluded:    s.PositionOccluded,
			OrientationOccluded: s.OrientationOccluded,
			Quality:             quality,
		})
	}
}

func (b *Bridge) report() {
	if b.statsInterval <= 0 {
		return
	}

	now := b.clock.Now()
	if now.Sub(b.lastReport) < b.statsInterval {
		return
	}
	b.lastReport = now

	b.logger.Info("loop statistics", b.stats.Summary().attrs()...)
}

// sleep waits for d or until ctx is done, whichever comes first
func (b *Bridge) sleep(ctx context.Context, d time.Duration) error {
	timer := b.clock.Timer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
