package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/roman-kulish/mocap-bridge/internal/mavlink"
	"github.com/roman-kulish/mocap-bridge/internal/mocap"
	"github.com/roman-kulish/mocap-bridge/internal/storage"
	"github.com/roman-kulish/mocap-bridge/internal/telemetry"
)

const (
	storageDir = "data"
	dbFileName = "flights.sqlite"
)

// Run wires the frame source, the MAVLink link and the optional recorder and
// runs the bridge until ctx is cancelled or a component fails
func Run(ctx context.Context, config *Config, logger *slog.Logger) error {
	runID := uuid.NewString()
	logger = logger.With(slog.String("run", runID))

	link, err := mavlink.NewLink(config.Output.LinkConfig(), mavlink.WithLinkLogger(logger))
	if err != nil {
		return fmt.Errorf("creating mavlink link: %w", err)
	}
	defer link.Close()

	source, closeSource, err := createSource(ctx, &config.Source, logger)
	if err != nil {
		return fmt.Errorf("creating frame source: %w", err)
	}
	defer closeSource()

	var options []func(*Orchestrator)

	if config.Recorder.Enabled {
		store, recorder, err := createRecorder(ctx, config, runID, logger)
		if err != nil {
			return fmt.Errorf("creating recorder: %w", err)
		}
		defer store.Close()

		options = append(options, WithRecorder(recorder))
	}

	logger.Info("bridge starting",
		slog.String("source", string(config.Source.Kind)),
		slog.String("output", string(config.Output.Kind)),
		slog.String("address", config.Output.LinkConfig().Address),
	)

	return NewOrchestrator(source, link, config, logger, options...).Run(ctx)
}

func createSource(ctx context.Context, config *SourceConfig, logger *slog.Logger) (mocap.Source, func() error, error) {
	switch config.Kind {
	case SourceSim:
		source := mocap.NewSimSource(mocap.SimConfig{
			Rate:         config.Sim.Rate,
			Radius:       config.Sim.Radius,
			Period:       config.Sim.Period.Duration(),
			Height:       config.Sim.Height,
			OccludeEvery: config.Sim.OccludeEvery,
		})
		return source, func() error { return nil }, nil

	case SourceProcess:
		handler, err := mocap.NewCommandHandler(config.Command, config.ProcessArgs()...)
		if err != nil {
			return nil, nil, fmt.Errorf("creating helper command: %w", err)
		}

		source := mocap.NewProcessSource(handler,
			mocap.WithLogger(logger),
			mocap.WithParseErrorsThreshold(config.ParseErrorsThreshold),
		)
		if err = source.Start(ctx); err != nil {
			return nil, nil, fmt.Errorf("starting helper: %w", err)
		}
		return source, source.Close, nil

	default:
		return nil, nil, fmt.Errorf("unknown source kind '%s'", config.Kind)
	}
}

func createRecorder(ctx context.Context, config *Config, runID string, logger *slog.Logger) (*storage.SqliteStore, *telemetry.Recorder, error) {
	dbPath, err := recorderPath(&config.Recorder)
	if err != nil {
		return nil, nil, err
	}

	store := storage.NewSqliteStore(dbPath, storage.WithLogger(logger))

	sessionID, err := store.CreateSession(ctx, runID, string(config.Source.Kind), config)
	if err != nil {
		_ = store.Close()
		return nil, nil, fmt.Errorf("creating session: %w", err)
	}

	batch := config.Recorder.MaxBatchSize
	recorder, err := telemetry.NewRecorder(store, sessionID,
		telemetry.WithLogger(logger),
		telemetry.WithQueueSize(config.Recorder.QueueSize),
		telemetry.WithBatchSize(2*batch, batch),
		telemetry.WithFlushInterval(config.Recorder.FlushInterval.Duration()),
	)
	if err != nil {
		_ = store.Close()
		return nil, nil, err
	}

	logger.Info("recording odometry", slog.String("path", dbPath), slog.Int64("session", sessionID))
	return store, recorder, nil
}

func recorderPath(config *RecorderConfig) (string, error) {
	dir := config.DataDirectory
	if dir == "" {
		dir = storageDir
	}

	if !filepath.IsAbs(dir) {
		wd, err := os.Getwd()
		if err != nil {
			return "", fmt.Errorf("failed to get current working directory: %w", err)
		}
		dir = filepath.Join(wd, dir)
	}

	stat, err := os.Stat(dir)
	switch {
	case os.IsNotExist(err):
		if err = os.MkdirAll(dir, 0o755); err != nil {
			return "", fmt.Errorf("creating storage directory '%s': %w", dir, err)
		}
	case err != nil:
		return "", fmt.Errorf("checking storage directory '%s': %w", dir, err)
	case !stat.IsDir():
		return "", fmt.Errorf("invalid storage directory '%s'", dir)
	}

	return filepath.Join(dir, dbFileName), nil
}
