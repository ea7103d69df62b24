package app

import (
	"io"
	"log/slog"
	"os"

	"gopkg.in/natefinch/lumberjack.v2"
)

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// NewLogger applies settings to level and returns a text logger writing to
// stdout and, when settings.logFile is set, to a rotated log file as well.
// The returned closer releases the log file.
func NewLogger(settings *Settings, level *slog.LevelVar) (*slog.Logger, io.Closer, error) {
	l, err := settings.Level()
	if err != nil {
		return nil, nil, err
	}
	level.Set(l)

	var out io.Writer = os.Stdout
	var closer io.Closer = nopCloser{}

	if settings.LogFile != "" {
		file := &lumberjack.Logger{
			Filename:   settings.LogFile,
			MaxSize:    settings.LogMaxSize,
			MaxBackups: settings.LogMaxBackups,
			Compress:   true,
		}
		out = io.MultiWriter(os.Stdout, file)
		closer = file
	}

	return slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{Level: level})), closer, nil
}
