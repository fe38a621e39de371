package trisum

import (
	"context"
	"log/slog"
	"os"
	"time"
)

// Logger wraps slog.Logger with trisum-specific context.
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
func NewJSONLogger(level slog.Level) *Logger {
	return NewLogger(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
}

// NewTextLogger creates a Logger that outputs human-readable text logs.
func NewTextLogger(level slog.Level) *Logger {
	return NewLogger(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
}

// NoopLogger creates a Logger that discards all log output.
func NoopLogger() *Logger {
	return NewLogger(slog.DiscardHandler)
}

// WithPhase adds a phase field to the logger.
func (l *Logger) WithPhase(phase Phase) *Logger {
	return &Logger{
		Logger: l.Logger.With("phase", string(phase)),
	}
}

// WithWorker adds a worker (chunk) field to the logger.
func (l *Logger) WithWorker(chunk int) *Logger {
	return &Logger{
		Logger: l.Logger.With("worker", chunk),
	}
}

// WithStrategy adds a strategy field to the logger.
func (l *Logger) WithStrategy(s Strategy) *Logger {
	return &Logger{
		Logger: l.Logger.With("strategy", s.String()),
	}
}

// LogPhase logs the end of a run phase.
func (l *Logger) LogPhase(ctx context.Context, phase Phase, workers, items int, d time.Duration, err error) {
	if err != nil {
		l.ErrorContext(ctx, "phase failed",
			"phase", string(phase),
			"workers", workers,
			"duration", d,
			"error", err,
		)
		return
	}
	l.InfoContext(ctx, "phase completed",
		"phase", string(phase),
		"workers", workers,
		"items", items,
		"duration", d,
	)
}

// LogCheckpoint logs a checkpoint save.
func (l *Logger) LogCheckpoint(ctx context.Context, name string, size int64, err error) {
	if err != nil {
		l.WarnContext(ctx, "checkpoint save failed, continuing without checkpoint",
			"error", err,
		)
		return
	}
	l.InfoContext(ctx, "checkpoint saved",
		"name", name,
		"bytes", size,
	)
}

// LogResume logs whether a build structure was resumed from a checkpoint.
func (l *Logger) LogResume(ctx context.Context, name string, resumed bool) {
	if resumed {
		l.InfoContext(ctx, "build skipped, structure resumed", "checkpoint", name)
		return
	}
	l.DebugContext(ctx, "no usable checkpoint, structure built", "checkpoint", name)
}
