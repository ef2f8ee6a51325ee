package logger

import (
	"bytes"
	"context"
	"strings"
	"testing"
)

func TestLoggerSourceLocation(t *testing.T) {
	tests := []struct {
		name          string
		logFunc       func(Logger)
		shouldNotHave []string
	}{
		{"Info", func(l Logger) { l.Info("test message") }, []string{"internal/logger/logger.go"}},
		{"Debug", func(l Logger) { l.Debug("debug message") }, []string{"internal/logger/logger.go"}},
		{"Error", func(l Logger) { l.Error("error message") }, []string{"internal/logger/logger.go"}},
		{"Warn", func(l Logger) { l.Warn("warn message") }, []string{"internal/logger/logger.go"}},
		{"Infof", func(l Logger) { l.Infof("formatted %s", "message") }, []string{"internal/logger/logger.go"}},
		{"Debugf", func(l Logger) { l.Debugf("debug %d", 42) }, []string{"internal/logger/logger.go"}},
		{"Errorf", func(l Logger) { l.Errorf("error %v", "test") }, []string{"internal/logger/logger.go"}},
		{"Warnf", func(l Logger) { l.Warnf("warning %s", "test") }, []string{"internal/logger/logger.go"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			l := NewLogger(WithDebug(), WithFormat("text"), WithWriter(&buf), WithQuiet())
			tt.logFunc(l)

			output := buf.String()
			if !strings.Contains(output, "logger_test.go:") {
				t.Errorf("expected log to report this test file, got: %s", output)
			}
			for _, bad := range tt.shouldNotHave {
				if strings.Contains(output, bad) {
					t.Errorf("log should not contain %q, got: %s", bad, output)
				}
			}
		})
	}
}

func TestLoggerSourceLocationWithContext(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(WithDebug(), WithFormat("text"), WithWriter(&buf), WithQuiet())
	ctx := WithLogger(context.Background(), l)

	Info(ctx, "context info message")
	Debugf(ctx, "debug %d", 7)

	output := buf.String()
	if !strings.Contains(output, "logger_test.go:") {
		t.Errorf("expected log to report this test file, got: %s", output)
	}
	if strings.Contains(output, "internal/logger/context.go") {
		t.Errorf("log should not contain context.go, got: %s", output)
	}
}

func TestLoggerWithAttributesAndGroup(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(WithDebug(), WithFormat("text"), WithWriter(&buf), WithQuiet())

	l.With("key", "value").Info("with attributes")
	if !strings.Contains(buf.String(), "key=value") {
		t.Errorf("expected attribute in output, got: %s", buf.String())
	}

	buf.Reset()
	l.WithGroup("grp").Info("with group", "k", "v")
	if !strings.Contains(buf.String(), "grp.k=v") {
		t.Errorf("expected grouped attribute in output, got: %s", buf.String())
	}
}

func TestLoggerQuietSuppressesOutput(t *testing.T) {
	l := NewLogger(WithQuiet())
	l.Info("should go nowhere")
}

func TestLoggerJSONFormat(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(WithDebug(), WithFormat("json"), WithWriter(&buf), WithQuiet())
	l.Info("json format test")

	output := buf.String()
	if !strings.Contains(output, `"msg":"json format test"`) {
		t.Errorf("expected JSON-encoded message, got: %s", output)
	}
	if strings.Contains(output, "internal/logger/logger.go") {
		t.Errorf("JSON log should not contain logger.go, got: %s", output)
	}
}

func TestLoggerProductionModeHidesSource(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(WithFormat("text"), WithWriter(&buf), WithQuiet())
	l.Info("production mode")

	if strings.Contains(buf.String(), "source=") {
		t.Errorf("expected no source location without WithDebug, got: %s", buf.String())
	}
}
