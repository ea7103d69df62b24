package app

import (
	"context"
	"fmt"
	"image/jpeg"
	"image/png"
	"log/slog"
	"os"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/roman-kulish/mocap-bridge/internal/storage"
)

func Run(ctx context.Context, config *Config, logger *slog.Logger) error {
	if _, err := os.Stat(config.DBPath); err != nil && os.IsNotExist(err) {
		return fmt.Errorf("database file '%s' does not exist: %w", config.DBPath, err)
	}

	store := storage.NewSqliteStore(config.DBPath, storage.WithLogger(logger))
	defer store.Close()

	return plotTrack(ctx, store, config, logger)
}

func plotTrack(ctx context.Context, store *storage.SqliteStore, config *Config, logger *slog.Logger) (err error) {
	var opts []storage.ReaderOption
	var filters []any
	switch {
	case config.MinTimestamp != nil && config.MaxTimestamp != nil:
		opts = append(opts, storage.WithTimeRange(config.MinTimestamp.UTC(), config.MaxTimestamp.UTC()))

		filters = append(filters,
			slog.String("minTimestamp", config.MinTimestamp.UTC().Format(time.DateTime)),
			slog.String("maxTimestamp", config.MaxTimestamp.UTC().Format(time.DateTime)))

	case config.MinTimestamp != nil:
		opts = append(opts, storage.WithStartTime(config.MinTimestamp.UTC()))
		filters = append(filters, slog.String("minTimestamp", config.MinTimestamp.UTC().Format(time.DateTime)))

	case config.MaxTimestamp != nil:
		opts = append(opts, storage.WithEndTime(config.MaxTimestamp.UTC()))
		filters = append(filters, slog.String("maxTimestamp", config.MaxTimestamp.UTC().Format(time.DateTime)))
	}

	if config.SkipOccluded {
		opts = append(opts, storage.WithoutOccluded())
		filters = append(filters, slog.Bool("skipOccluded", true))
	}

	logger.Info("reader configuration", filters...)

	iter, err := store.ReadOdometry(ctx, config.SessionID, opts...)
	if err != nil {
		return err
	}
	defer iter.Close()

	session := iter.Session()

	track := NewTrack()
	for iter.Next(ctx) {
		track.Update(iter.Current())
	}
	if err = iter.Error(); err != nil {
		return err
	}
	if err = track.Finalize(); err != nil {
		return err
	}

	logger.Info("finished reading odometry",
		slog.Group("session",
			slog.Int64("id", session.ID),
			slog.String("runId", session.RunID),
			slog.String("source", session.Source),
		),
		slog.Group("stats",
			slog.String("samples", humanize.Comma(int64(len(track.Points)))),
			slog.String("occluded", humanize.Comma(int64(track.Degraded))),
			slog.String("minTimestamp", track.TimestampStart.In(config.TimeZone).Format(time.DateTime)),
			slog.String("maxTimestamp", track.TimestampEnd.In(config.TimeZone).Format(time.DateTime)),
			slog.String("distance", fmt.Sprintf("%0.2fm", track.Distance)),
			slog.String("peakSpeed", fmt.Sprintf("%0.2fm/s", track.Speed.Peak)),
		))

	renderer, err := NewTrackRenderer(RenderConfig{
		Size:       config.Size,
		Title:      fmt.Sprintf("Session %d (%s)", session.ID, session.Source),
		Location:   config.TimeZone,
		ColorTheme: config.Theme,
	})
	if err != nil {
		return fmt.Errorf("creating track renderer: %w", err)
	}

	logger.Info("rendering track",
		slog.Group("image",
			slog.String("destination", config.OutputFile),
			slog.String("format", string(config.Format)),
			slog.String("theme", string(config.Theme)),
			slog.Int("size", config.Size),
		))

	img, err := renderer.Render(track)
	if err != nil {
		return fmt.Errorf("rendering track: %w", err)
	}

	out, err := os.Create(config.OutputFile)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := out.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	switch config.Format {
	case ImagePNG:
		err = png.Encode(out, img)

	case ImageJPEG:
		err = jpeg.Encode(out, img, &jpeg.Options{
			Quality: 98,
		})
	}
	return err
}
