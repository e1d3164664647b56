package bcache

import (
	"context"
	"log/slog"
	"os"
	"time"
)

// Logger wraps slog.Logger with cache-specific context.
// This provides structured logging with consistent field names.
type Logger struct {
	*slog.Logger
}

// NewLogger creates a new Logger with the given handler.
// If handler is nil, uses default text handler to stderr.
func NewLogger(handler slog.Handler) *Logger {
	if handler == nil {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		})
	}
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewJSONLogger creates a Logger that outputs JSON-formatted logs.
// level sets the minimum log level (e.g., slog.LevelDebug, slog.LevelInfo).
func NewJSONLogger(level slog.Level) *Logger {
	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewTextLogger creates a Logger that outputs human-readable text logs.
func NewTextLogger(level slog.Level) *Logger {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NoopLogger creates a Logger that discards all log output.
// Use this to disable logging entirely.
func NoopLogger() *Logger {
	return &Logger{
		Logger: slog.New(slog.DiscardHandler),
	}
}

// WithDevice adds a device field to the logger.
func (l *Logger) WithDevice(dev uint32) *Logger {
	return &Logger{
		Logger: l.Logger.With("dev", dev),
	}
}

// LogMiss logs a lookup that had to claim a buffer.
func (l *Logger) LogMiss(ctx context.Context, dev, block uint32, slot int) {
	l.DebugContext(ctx, "buffer miss",
		"dev", dev,
		"block", block,
		"slot", slot,
	)
}

// LogTransfer logs a device transfer.
func (l *Logger) LogTransfer(ctx context.Context, op Op, dev, block uint32, duration time.Duration, err error) {
	if err != nil {
		l.ErrorContext(ctx, "transfer failed",
			"op", op,
			"dev", dev,
			"block", block,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "transfer completed",
			"op", op,
			"dev", dev,
			"block", block,
			"duration", duration,
		)
	}
}

// LogMount logs a mount or unmount.
func (l *Logger) LogMount(ctx context.Context, dev uint32, mounted bool, err error) {
	msg := "device mounted"
	if !mounted {
		msg = "device unmounted"
	}
	if err != nil {
		l.WarnContext(ctx, msg+" failed",
			"dev", dev,
			"error", err,
		)
	} else {
		l.InfoContext(ctx, msg,
			"dev", dev,
		)
	}
}

// LogInvalidate logs the outcome of dropping a device's buffers.
func (l *Logger) LogInvalidate(ctx context.Context, dev uint32, dropped, busy int) {
	if busy > 0 {
		l.WarnContext(ctx, "invalidate skipped busy buffers",
			"dev", dev,
			"dropped", dropped,
			"busy", busy,
		)
	} else {
		l.DebugContext(ctx, "invalidate completed",
			"dev", dev,
			"dropped", dropped,
		)
	}
}

// LogFatal logs an unrecoverable cache error.
func (l *Logger) LogFatal(ctx context.Context, err *FatalError) {
	l.ErrorContext(ctx, "fatal cache error",
		"op", err.Op,
		"dev", err.Dev,
		"block", err.Block,
		"error", err.cause,
	)
}
