// Package logger wraps log/slog with the small, context-carried Logger
// interface used throughout scriptyard: every call site logs through an
// interface value rather than a global, and every log line reports the
// caller's own source location rather than a frame inside this package.
package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime"
	"time"

	slogmulti "github.com/samber/slog-multi"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Logger is the logging surface every component depends on.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
	Debugf(format string, args ...any)
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
	With(args ...any) Logger
	WithGroup(name string) Logger
}

type slogLogger struct {
	handler slog.Handler
}

type config struct {
	debug  bool
	format string
	writer io.Writer
	quiet  bool
	file   *os.File
}

// Option customizes a new Logger.
type Option func(*config)

// WithDebug enables debug level and source-location reporting, mirroring
// how a verbose/--debug CLI flag should behave.
func WithDebug() Option {
	return func(c *config) { c.debug = true }
}

// WithFormat selects "text" (default) or "json" output.
func WithFormat(format string) Option {
	return func(c *config) { c.format = format }
}

// WithWriter overrides the default os.Stdout destination, primarily for
// tests that capture output into a buffer.
func WithWriter(w io.Writer) Option {
	return func(c *config) { c.writer = w }
}

// WithQuiet suppresses the default stdout destination. A writer set with
// WithWriter and a file set with WithLogFile still receive output.
func WithQuiet() Option {
	return func(c *config) { c.quiet = true }
}

// WithLogFile tees output into f in addition to (or instead of, under
// WithQuiet) the console writer.
func WithLogFile(f *os.File) Option {
	return func(c *config) { c.file = f }
}

// NewLogger builds a Logger from the given options. With no options it
// logs text at info level to stdout with no source location.
func NewLogger(opts ...Option) Logger {
	cfg := &config{format: "text"}
	for _, opt := range opts {
		opt(cfg)
	}

	level := slog.LevelInfo
	if cfg.debug {
		level = slog.LevelDebug
	}

	handlerOpts := &slog.HandlerOptions{Level: level, AddSource: cfg.debug}
	newHandler := func(w io.Writer) slog.Handler {
		if cfg.format == "json" {
			return slog.NewJSONHandler(w, handlerOpts)
		}
		return slog.NewTextHandler(w, handlerOpts)
	}

	var handlers []slog.Handler
	if cfg.writer != nil {
		handlers = append(handlers, newHandler(cfg.writer))
	} else if !cfg.quiet {
		handlers = append(handlers, newHandler(os.Stdout))
	}
	if cfg.file != nil {
		handlers = append(handlers, newHandler(cfg.file))
	}

	// slogmulti.Fanout lets the console sink and an optional log-file sink
	// (and, later, an audit-log sink) each receive every record
	// independently rather than sharing one io.MultiWriter destination.
	switch len(handlers) {
	case 0:
		return &slogLogger{handler: newHandler(io.Discard)}
	case 1:
		return &slogLogger{handler: handlers[0]}
	default:
		return &slogLogger{handler: slogmulti.Fanout(handlers...)}
	}
}

// NewRotatingFileLogger is NewLogger plus a size/age-rotated file sink
// backed by lumberjack, for long-running server processes.
func NewRotatingFileLogger(path string, maxSizeMB, maxBackups, maxAgeDays int, opts ...Option) Logger {
	roller := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    maxSizeMB,
		MaxBackups: maxBackups,
		MaxAge:     maxAgeDays,
		Compress:   true,
	}
	cfg := &config{format: "text", writer: os.Stdout}
	for _, opt := range opts {
		opt(cfg)
	}
	level := slog.LevelInfo
	if cfg.debug {
		level = slog.LevelDebug
	}
	handlerOpts := &slog.HandlerOptions{Level: level, AddSource: cfg.debug}
	newHandler := func(w io.Writer) slog.Handler {
		if cfg.format == "json" {
			return slog.NewJSONHandler(w, handlerOpts)
		}
		return slog.NewTextHandler(w, handlerOpts)
	}

	handlers := []slog.Handler{newHandler(roller)}
	if !cfg.quiet {
		handlers = append(handlers, newHandler(cfg.writer))
	}
	if len(handlers) == 1 {
		return &slogLogger{handler: handlers[0]}
	}
	return &slogLogger{handler: slogmulti.Fanout(handlers...)}
}

func (l *slogLogger) log(skip int, level slog.Level, msg string, args []any) {
	ctx := context.Background()
	if !l.handler.Enabled(ctx, level) {
		return
	}
	var pcs [1]uintptr
	runtime.Callers(skip, pcs[:])
	r := slog.NewRecord(time.Now(), level, msg, pcs[0])
	r.Add(args...)
	_ = l.handler.Handle(ctx, r)
}

func (l *slogLogger) Debug(msg string, args ...any) { l.log(3, slog.LevelDebug, msg, args) }
func (l *slogLogger) Info(msg string, args ...any)  { l.log(3, slog.LevelInfo, msg, args) }
func (l *slogLogger) Warn(msg string, args ...any)  { l.log(3, slog.LevelWarn, msg, args) }
func (l *slogLogger) Error(msg string, args ...any) { l.log(3, slog.LevelError, msg, args) }

func (l *slogLogger) Debugf(format string, args ...any) {
	l.log(3, slog.LevelDebug, fmt.Sprintf(format, args...), nil)
}
func (l *slogLogger) Infof(format string, args ...any) {
	l.log(3, slog.LevelInfo, fmt.Sprintf(format, args...), nil)
}
func (l *slogLogger) Warnf(format string, args ...any) {
	l.log(3, slog.LevelWarn, fmt.Sprintf(format, args...), nil)
}
func (l *slogLogger) Errorf(format string, args ...any) {
	l.log(3, slog.LevelError, fmt.Sprintf(format, args...), nil)
}

func (l *slogLogger) With(args ...any) Logger {
	return &slogLogger{handler: l.handler.WithAttrs(argsToAttrs(args))}
}

func (l *slogLogger) WithGroup(name string) Logger {
	return &slogLogger{handler: l.handler.WithGroup(name)}
}

func argsToAttrs(args []any) []slog.Attr {
	attrs := make([]slog.Attr, 0, len(args)/2)
	for i := 0; i+1 < len(args); i += 2 {
		key, _ := args[i].(string)
		attrs = append(attrs, slog.Any(key, args[i+1]))
	}
	return attrs
}
