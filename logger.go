package splatgo

import (
	"context"
	"log/slog"
	"os"
)

// Logger wraps slog.Logger with splatgo-specific context.
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
	return &Logger{Logger: slog.New(handler)}
}

// NewJSONLogger creates a Logger that outputs JSON-formatted logs.
func NewJSONLogger(level slog.Level) *Logger {
	return &Logger{Logger: slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))}
}

// NewTextLogger creates a Logger that outputs human-readable text logs.
func NewTextLogger(level slog.Level) *Logger {
	return &Logger{Logger: slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))}
}

// NoopLogger creates a Logger that discards all log output.
func NoopLogger() *Logger {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.Level(1000), // Unreachable level
	})
	return &Logger{Logger: slog.New(handler)}
}

// WithStep adds the training step field to the logger.
func (l *Logger) WithStep(step int) *Logger {
	return &Logger{Logger: l.Logger.With("step", step)}
}

// WithPopulation adds the population field to the logger.
func (l *Logger) WithPopulation(n int) *Logger {
	return &Logger{Logger: l.Logger.With("population", n)}
}

// LogRefine logs one refinement pass.
func (l *Logger) LogRefine(ctx context.Context, step, split, duplicated, culled, population int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "refine failed",
			"step", step,
			"error", err,
		)
		return
	}
	l.DebugContext(ctx, "refine completed",
		"step", step,
		"split", split,
		"duplicated", duplicated,
		"culled", culled,
		"population", population,
	)
}

// LogGrowth logs an incremental growth operation.
func (l *Logger) LogGrowth(ctx context.Context, added, population int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "growth failed",
			"requested", added,
			"error", err,
		)
		return
	}
	l.DebugContext(ctx, "points grown",
		"added", added,
		"population", population,
	)
}

// LogQuery logs a relevancy ladder scan.
func (l *Logger) LogQuery(ctx context.Context, phrases int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "relevancy query failed",
			"phrases", phrases,
			"error", err,
		)
		return
	}
	l.DebugContext(ctx, "relevancy query completed",
		"phrases", phrases,
	)
}

// LogSnapshot logs a checkpoint operation.
func (l *Logger) LogSnapshot(ctx context.Context, name string, population int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "snapshot failed",
			"name", name,
			"error", err,
		)
		return
	}
	l.InfoContext(ctx, "snapshot saved",
		"name", name,
		"population", population,
	)
}
