package atree

import (
	"context"
	"io"
	"log/slog"
	"os"
)

// Logger wraps slog.Logger with consistent field names for index
// operations.
type Logger struct {
	*slog.Logger
}

// NewLogger creates a new Logger with the given handler.  If handler is nil,
// logs are written as text to stderr at info level.
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

// NewTextLogger creates a Logger that writes human-readable text logs to w.
func NewTextLogger(w io.Writer, level slog.Level) *Logger {
	return NewLogger(slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: level,
	}))
}

// NoopLogger creates a Logger that discards all log output.
func NoopLogger() *Logger {
	return NewLogger(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{
		Level: slog.Level(1000),
	}))
}

// LogInsert logs an insert operation.
func (l *Logger) LogInsert(ctx context.Context, id uint64, nodes int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "insert failed",
			"id", id,
			"error", err,
		)
		return
	}
	l.DebugContext(ctx, "insert completed",
		"id", id,
		"nodes", nodes,
	)
}

// LogDelete logs a delete operation.  found is false when the id didn't
// exist.
func (l *Logger) LogDelete(ctx context.Context, id uint64, found bool, nodes int) {
	l.DebugContext(ctx, "delete completed",
		"id", id,
		"found", found,
		"nodes", nodes,
	)
}

// LogSearch logs a search operation.
func (l *Logger) LogSearch(ctx context.Context, defined, matches int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "search failed",
			"error", err,
		)
		return
	}
	l.DebugContext(ctx, "search completed",
		"defined", defined,
		"matches", matches,
	)
}

// LogSearchBatch logs a batch search.
func (l *Logger) LogSearchBatch(ctx context.Context, events int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "batch search failed",
			"events", events,
			"error", err,
		)
		return
	}
	l.DebugContext(ctx, "batch search completed",
		"events", events,
	)
}
