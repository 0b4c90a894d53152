package notify

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/ggoodman/mcp-engine-go/mcp"
)

// DefaultLoggingLevel is the threshold a Logger starts with.
const DefaultLoggingLevel = mcp.LoggingLevelInfo

// Logger filters protocol log messages against a threshold and emits the
// accepted ones as notifications/message.
type Logger struct {
	sink      Sink
	threshold atomic.Value // mcp.LoggingLevel
	levelVar  *slog.LevelVar
}

// LoggerOption configures a Logger.
type LoggerOption func(*Logger)

// WithSlogLevelVar mirrors every threshold change onto lv so that process
// logging follows the level the client asked for.
func WithSlogLevelVar(lv *slog.LevelVar) LoggerOption {
	return func(l *Logger) { l.levelVar = lv }
}

// NewLogger creates a Logger emitting into sink.
func NewLogger(sink Sink, opts ...LoggerOption) *Logger {
	l := &Logger{sink: sink}
	for _, opt := range opts {
		opt(l)
	}
	l.threshold.Store(DefaultLoggingLevel)
	if l.levelVar != nil {
		l.levelVar.Set(SlogLevel(DefaultLoggingLevel))
	}
	return l
}

// Level returns the current threshold.
func (l *Logger) Level() mcp.LoggingLevel {
	return l.threshold.Load().(mcp.LoggingLevel)
}

// SetLevel replaces the threshold. Unknown levels fail with InvalidParams and
// leave the threshold unchanged.
func (l *Logger) SetLevel(level mcp.LoggingLevel) error {
	if !mcp.IsValidLoggingLevel(level) {
		return mcp.NewError(mcp.KindInvalidParams, "invalid logging level: %q", level)
	}
	l.threshold.Store(level)
	if l.levelVar != nil {
		l.levelVar.Set(SlogLevel(level))
	}
	return nil
}

// Enabled reports whether a message at level would currently be delivered.
func (l *Logger) Enabled(level mcp.LoggingLevel) bool {
	return level.Passes(l.Level())
}

// Log emits a notifications/message if level passes the threshold. logger
// may be empty.
func (l *Logger) Log(ctx context.Context, level mcp.LoggingLevel, logger string, data any) error {
	if !l.Enabled(level) {
		return nil
	}
	return l.sink.Notify(ctx, mcp.LoggingMessageNotificationMethod, mcp.LoggingMessageNotification{
		Level:  level,
		Logger: logger,
		Data:   data,
	})
}

// SlogLevel maps a protocol level onto the nearest slog level.
func SlogLevel(level mcp.LoggingLevel) slog.Level {
	switch level {
	case mcp.LoggingLevelDebug:
		return slog.LevelDebug
	case mcp.LoggingLevelInfo, mcp.LoggingLevelNotice:
		return slog.LevelInfo
	case mcp.LoggingLevelWarning:
		return slog.LevelWarn
	default:
		return slog.LevelError
	}
}
