package logger

import (
	"context"
	"sync"
)

// LoggerContext wraps a Logger and accumulates attributes over the lifetime
// of an operation, so attributes discovered mid-flow (ids, names) appear on
// every subsequent record without re-passing them at each call site.
// Safe for concurrent use.
type LoggerContext struct {
	mu     sync.RWMutex
	logger *Logger
	attrs  []any
}

// NewLoggerContext constructs a LoggerContext around the given Logger.
func NewLoggerContext(l *Logger) *LoggerContext {
	return &LoggerContext{logger: l}
}

// Add appends key/value pairs to the set of attributes included in every
// subsequent log record.
func (lc *LoggerContext) Add(args ...any) {
	lc.mu.Lock()
	defer lc.mu.Unlock()
	lc.attrs = append(lc.attrs, args...)
}

// Debug logs at LevelDebug with the accumulated attributes.
func (lc *LoggerContext) Debug(ctx context.Context, msg string, args ...any) {
	lc.logger.Debugc(ctx, 3, msg, lc.merged(args)...)
}

// Info logs at LevelInfo with the accumulated attributes.
func (lc *LoggerContext) Info(ctx context.Context, msg string, args ...any) {
	lc.logger.Infoc(ctx, 3, msg, lc.merged(args)...)
}

// Warn logs at LevelWarn with the accumulated attributes.
func (lc *LoggerContext) Warn(ctx context.Context, msg string, args ...any) {
	lc.logger.Warnc(ctx, 3, msg, lc.merged(args)...)
}

// Error logs at LevelError with the accumulated attributes.
func (lc *LoggerContext) Error(ctx context.Context, msg string, args ...any) {
	lc.logger.Errorc(ctx, 3, msg, lc.merged(args)...)
}

func (lc *LoggerContext) merged(args []any) []any {
	lc.mu.RLock()
	defer lc.mu.RUnlock()

	if len(lc.attrs) == 0 {
		return args
	}
	out := make([]any, 0, len(lc.attrs)+len(args))
	out = append(out, lc.attrs...)
	out = append(out, args...)
	return out
}
