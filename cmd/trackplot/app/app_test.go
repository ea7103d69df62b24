package app

import (
	"context"
	"image/png"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roman-kulish/mocap-bridge/internal/storage"
	"github.com/roman-kulish/mocap-bridge/internal/telemetry"
)

func recordSession(t *testing.T, dbPath string, samples int) int64 {
	t.Helper()

	ctx := context.Background()
	store := storage.NewSqliteStore(dbPath)

	sessionID, err := store.CreateSession(ctx, "run-1", "sim", nil)
	require.NoError(t, err)

	t0 := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	records := make([]*telemetry.Odometry, samples)
	for i := range records {
		records[i] = &telemetry.Odometry{
			Timestamp: t0.Add(time.Duration(i) * 20 * time.Millisecond),
			Frame:     uint64(i),
			X:         float64(i) * 0.01,
			Y:         float64(i%10) * 0.02,
			Q:         [4]float64{1, 0, 0, 0},
			VX:        0.5,
			Quality:   100,
		}
	}
	require.NoError(t, store.StoreOdometry(ctx, sessionID, records))
	require.NoError(t, store.Close())

	return sessionID
}

func TestRun(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "flights.sqlite")
	sessionID := recordSession(t, dbPath, 200)

	config := NewConfig()
	config.DBPath = dbPath
	config.SessionID = sessionID
	config.Size = 300
	config.OutputFile = filepath.Join(dir, "track.png")

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	require.NoError(t, Run(context.Background(), config, logger))

	f, err := os.Open(config.OutputFile)
	require.NoError(t, err)
	defer f.Close()

	img, err := png.Decode(f)
	require.NoError(t, err)
	assert.Equal(t, defaultLeftBorder+300+defaultRightBorder, img.Bounds().Dx())
	assert.Equal(t, defaultTopBorder+300+defaultBottomBorder, img.Bounds().Dy())
}

func TestRun_MissingDatabase(t *testing.T) {
	config := NewConfig()
	config.DBPath = filepath.Join(t.TempDir(), "missing.sqlite")
	config.OutputFile = filepath.Join(t.TempDir(), "track.png")

	err := Run(context.Background(), config, slog.New(slog.NewTextHandler(io.Discard, nil)))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestRun_EmptyRange(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "flights.sqlite")
	sessionID := recordSession(t, dbPath, 10)

	from := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)

	config := NewConfig()
	config.DBPath = dbPath
	config.SessionID = sessionID
	config.MinTimestamp = &from
	config.OutputFile = filepath.Join(dir, "track.png")

	err := Run(context.Background(), config, slog.New(slog.NewTextHandler(io.Discard, nil)))
	assert.ErrorIs(t, err, ErrEmptyTrack)
}

func TestNewConfigFromCLI(t *testing.T) {
	config, err := NewConfigFromCLI([]string{
		"-db", "flights.sqlite", "-s", "3", "-o", "out", "-f", "JPEG", "-theme", "thermal",
		"-from", "2024-01-01 12:00:00", "-tz", "UTC", "-skip-occluded",
	})
	require.NoError(t, err)

	assert.Equal(t, "flights.sqlite", config.DBPath)
	assert.Equal(t, int64(3), config.SessionID)
	assert.Equal(t, "out.jpeg", config.OutputFile)
	assert.Equal(t, ImageJPEG, config.Format)
	assert.Equal(t, ThermalTheme, config.Theme)
	assert.True(t, config.SkipOccluded)
	require.NotNil(t, config.MinTimestamp)
	assert.Equal(t, time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC), config.MinTimestamp.UTC())
	assert.Nil(t, config.MaxTimestamp)
}

func TestNewConfigFromCLI_Errors(t *testing.T) {
	testCases := []struct {
		name string
		args []string
	}{
		{"no db", []string{"-o", "out"}},
		{"no output", []string{"-db", "x"}},
		{"bad session", []string{"-db", "x", "-o", "out", "-s", "0"}},
		{"bad format", []string{"-db", "x", "-o", "out", "-f", "gif"}},
		{"bad theme", []string{"-db", "x", "-o", "out", "-theme", "neon"}},
		{"small", []string{"-db", "x", "-o", "out", "-size", "10"}},
		{"bad time", []string{"-db", "x", "-o", "out", "-from", "yesterday"}},
		{"inverted range", []string{"-db", "x", "-o", "out", "-tz", "UTC", "-from", "2024-01-02 00:00:00", "-to", "2024-01-01 00:00:00"}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewConfigFromCLI(tc.args)
			assert.Error(t, err)
		})
	}
}
