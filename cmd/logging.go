package cmd

import (
	"fmt"
	"log/slog"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/northcutted/drvscan/pkg/config"
)

// setupLogger builds the run's logger. Without a log file it writes text to
// stderr; with one it writes JSON through a rotating lumberjack writer. The
// returned func closes the log file, if any.
func setupLogger(lc config.LogConfig, debug bool) (*slog.Logger, func() error, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(lc.Level)); err != nil {
		return nil, nil, fmt.Errorf("invalid log level %q: %w", lc.Level, err)
	}
	if debug {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}

	if lc.File == "" {
		return slog.New(slog.NewTextHandler(stderr, opts)), func() error { return nil }, nil
	}

	rotator := &lumberjack.Logger{
		Filename:   lc.File,
		MaxSize:    lc.MaxSizeMB,
		MaxBackups: lc.MaxBackups,
		MaxAge:     lc.MaxAgeDays,
		Compress:   lc.Compress,
	}
	return slog.New(slog.NewJSONHandler(rotator, opts)), rotator.Close, nil
}
