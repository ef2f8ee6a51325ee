package logger

import (
	"context"
	"fmt"
	"log/slog"
)

type contextKey struct{}

var defaultLogger = NewLogger()

// WithLogger attaches l to ctx so downstream code can log through
// FromContext (or the package-level Info/Debug/Warn/Error helpers) without
// threading a Logger value through every function signature.
func WithLogger(ctx context.Context, l Logger) context.Context {
	return context.WithValue(ctx, contextKey{}, l)
}

// FromContext returns the Logger attached to ctx, or a no-frills default
// logger if none was attached.
func FromContext(ctx context.Context) Logger {
	if ctx == nil {
		return defaultLogger
	}
	if l, ok := ctx.Value(contextKey{}).(Logger); ok {
		return l
	}
	return defaultLogger
}

// ctxLog logs through ctx's Logger at a fixed call depth, so the reported
// source location is always the package-level helper's caller rather than
// a frame inside this file.
func ctxLog(ctx context.Context, level slog.Level, msg string, args []any) {
	l := FromContext(ctx)
	if sl, ok := l.(*slogLogger); ok {
		sl.log(4, level, msg, args)
		return
	}
	// Fallback for a custom Logger implementation: depth may be off by
	// one frame, but the message is still delivered.
	switch level {
	case slog.LevelDebug:
		l.Debug(msg, args...)
	case slog.LevelWarn:
		l.Warn(msg, args...)
	case slog.LevelError:
		l.Error(msg, args...)
	default:
		l.Info(msg, args...)
	}
}

func Debug(ctx context.Context, msg string, args ...any) { ctxLog(ctx, slog.LevelDebug, msg, args) }
func Info(ctx context.Context, msg string, args ...any)  { ctxLog(ctx, slog.LevelInfo, msg, args) }
func Warn(ctx context.Context, msg string, args ...any)  { ctxLog(ctx, slog.LevelWarn, msg, args) }
func Error(ctx context.Context, msg string, args ...any) { ctxLog(ctx, slog.LevelError, msg, args) }

func Debugf(ctx context.Context, format string, args ...any) {
	ctxLogf(ctx, slog.LevelDebug, format, args)
}
func Infof(ctx context.Context, format string, args ...any) {
	ctxLogf(ctx, slog.LevelInfo, format, args)
}
func Warnf(ctx context.Context, format string, args ...any) {
	ctxLogf(ctx, slog.LevelWarn, format, args)
}
func Errorf(ctx context.Context, format string, args ...any) {
	ctxLogf(ctx, slog.LevelError, format, args)
}

func ctxLogf(ctx context.Context, level slog.Level, format string, args []any) {
	l := FromContext(ctx)
	if sl, ok := l.(*slogLogger); ok {
		sl.log(4, level, fmt.Sprintf(format, args...), nil)
		return
	}
	switch level {
	case slog.LevelDebug:
		l.Debugf(format, args...)
	case slog.LevelWarn:
		l.Warnf(format, args...)
	case slog.LevelError:
		l.Errorf(format, args...)
	default:
		l.Infof(format, args...)
	}
}
