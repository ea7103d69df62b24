package app

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/roman-kulish/mocap-bridge/internal/bridge"
	"github.com/roman-kulish/mocap-bridge/internal/mavlink"
	"github.com/roman-kulish/mocap-bridge/internal/mocap"
	"github.com/roman-kulish/mocap-bridge/internal/telemetry"
)

// WithRecorder tees published odometry into the flight recorder
func WithRecorder(recorder *telemetry.Recorder) func(*Orchestrator) {
	return func(o *Orchestrator) {
		o.recorder = recorder
	}
}

// Orchestrator runs the heartbeat, the bridge loop and the optional flight
// recorder as one group: the first failure stops the others.
type Orchestrator struct {
	source    mocap.Source
	transport mavlink.Transport
	config    *Config
	recorder  *telemetry.Recorder
	logger    *slog.Logger
}

// NewOrchestrator creates a new Orchestrator
func NewOrchestrator(source mocap.Source, transport mavlink.Transport, config *Config, logger *slog.Logger, options ...func(*Orchestrator)) *Orchestrator {
	o := Orchestrator{
		source:    source,
		transport: transport,
		config:    config,
		logger:    logger,
	}

	for _, option := range options {
		option(&o)
	}

	return &o
}

// Run blocks until ctx is cancelled or a task fails. The transport is left
// open, it belongs to the caller.
func (o *Orchestrator) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	heartbeat := mavlink.NewHeartbeat(o.transport,
		mavlink.WithHeartbeatPeriod(o.config.Loop.HeartbeatPeriod.Duration()),
		mavlink.WithHeartbeatLogger(o.logger),
	)

	options := []func(*bridge.Bridge){
		bridge.WithLogger(o.logger),
		bridge.WithUpdatePeriod(o.config.Loop.UpdatePeriod.Duration()),
		bridge.WithPendingBackoff(o.config.Loop.PendingBackoff.Duration()),
		bridge.WithStallTimeout(o.config.Source.StallTimeout.Duration()),
		bridge.WithStatsInterval(o.config.Loop.StatsInterval.Duration()),
	}

	// the recorder outlives the loop so the last published updates are drained
	recorderCtx, stopRecorder := context.WithCancel(context.WithoutCancel(ctx))
	defer stopRecorder()

	if o.recorder != nil {
		options = append(options, bridge.WithRecorder(o.recorder))

		g.Go(func() error {
			return o.recorder.Run(recorderCtx)
		})
	}

	loop := bridge.New(o.source, mavlink.NewOdometryPublisher(o.transport), options...)

	// heartbeat first, it does not wait for calibration or frames
	g.Go(func() error {
		return heartbeat.Run(ctx)
	})

	g.Go(func() error {
		defer stopRecorder()

		if err := loop.Run(ctx); err != nil {
			return fmt.Errorf("bridge loop: %w", err)
		}
		return nil
	})

	return g.Wait()
}
