package common

import (
	"io"
	"log/slog"
	"os"

	"gopkg.in/natefinch/lumberjack.v2"
)

// LoggingOpts configures SetupLogger.
type LoggingOpts struct {
	Debug   bool
	JSON    bool
	Service string
	Version string

	// File additionally writes JSON records to a size-rotated log file.
	// Empty means stdout only.
	File           string
	FileMaxSizeMB  int
	FileMaxBackups int

	// Writer replaces stdout, mainly for tests.
	Writer io.Writer
}

// SetupLogger builds a slog logger from opts. The returned closer releases the
// log file, if any, and must be called when the logger is no longer used.
func SetupLogger(opts *LoggingOpts) (*slog.Logger, io.Closer) {
	level := slog.LevelInfo
	if opts.Debug {
		level = slog.LevelDebug
	}
	handlerOpts := &slog.HandlerOptions{Level: level}

	var out io.Writer = os.Stdout
	if opts.Writer != nil {
		out = opts.Writer
	}

	var closer io.Closer = nopCloser{}
	if opts.File != "" {
		maxSize := opts.FileMaxSizeMB
		if maxSize <= 0 {
			maxSize = 30
		}
		file := &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    maxSize,
			MaxBackups: opts.FileMaxBackups,
		}
		out = io.MultiWriter(out, file)
		closer = file
	}

	var handler slog.Handler
	if opts.JSON || opts.File != "" {
		handler = slog.NewJSONHandler(out, handlerOpts)
	} else {
		handler = slog.NewTextHandler(out, handlerOpts)
	}

	logger := slog.New(handler)
	if opts.Service != "" {
		logger = logger.With("service", opts.Service)
	}
	if opts.Version != "" {
		logger = logger.With("version", opts.Version)
	}
	return logger, closer
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
