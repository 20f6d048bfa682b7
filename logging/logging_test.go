package logging

import (
	"bytes"
	"errors"
	"io"
	"os"
	"strings"
	"testing"

	"github.com/go-logr/zapr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestOrNoOp(t *testing.T) {
	if _, ok := OrNoOp(nil).(*NoOpLogger); !ok {
		t.Fatal("Expected no-op logger for nil")
	}

	console := NewConsoleLogger("test")
	if OrNoOp(console) != console {
		t.Fatal("Expected the given logger back")
	}
}

func TestZapLogger(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	logger := NewZapLogger(zap.New(core))

	logger.Debug("connecting", "url", "ws://x")
	logger.Warn("dropped", "event", "unknown")
	logger.Error("failed", "error", errors.New("boom"))

	if logs.Len() != 3 {
		t.Fatalf("Expected 3 entries, got %d", logs.Len())
	}

	first := logs.All()[0]
	if first.Message != "connecting" || first.ContextMap()["url"] != "ws://x" {
		t.Fatalf("Unexpected entry: %+v", first)
	}
	if logs.All()[1].Level != zapcore.WarnLevel {
		t.Fatalf("Expected warn level, got %v", logs.All()[1].Level)
	}
}

func TestLogrLoggerExtractsError(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	logger := NewLogrLogger(zapr.NewLogger(zap.New(core)))

	logger.Error("refetch failed", "key", "chats:list", "error", errors.New("timeout"))

	if logs.Len() != 1 {
		t.Fatalf("Expected 1 entry, got %d", logs.Len())
	}
	entry := logs.All()[0]
	ctx := entry.ContextMap()
	if ctx["error"] != "timeout" {
		t.Fatalf("Expected error 'timeout', got %v", ctx["error"])
	}
	if ctx["key"] != "chats:list" {
		t.Fatalf("Expected key field, got %v", ctx["key"])
	}
}

func captureStdout(t *testing.T, fn func()) string {
	t.Helper()
	old := os.Stdout
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("Pipe failed: %v", err)
	}
	os.Stdout = w

	fn()

	w.Close()
	os.Stdout = old

	var buf bytes.Buffer
	io.Copy(&buf, r)
	return buf.String()
}

func TestConsoleLogger(t *testing.T) {
	tests := []struct {
		level string
		log   func(Logger)
	}{
		{"[DEBUG]", func(l Logger) { l.Debug("test message", "key", "value") }},
		{"[INFO]", func(l Logger) { l.Info("test message", "key", "value") }},
		{"[WARN]", func(l Logger) { l.Warn("test message", "key", "value") }},
		{"[ERROR]", func(l Logger) { l.Error("test message", "key", "value") }},
	}

	for _, tt := range tests {
		output := captureStdout(t, func() { tt.log(NewConsoleLogger("TestPrefix")) })

		for _, want := range []string{tt.level, "TestPrefix", "test message", "key"} {
			if !strings.Contains(output, want) {
				t.Errorf("Expected %q in output, got: %s", want, output)
			}
		}
	}
}

func TestConsoleLoggerWithoutArgs(t *testing.T) {
	output := captureStdout(t, func() { NewConsoleLogger("p").Info("bare") })
	if strings.Contains(output, "[]") {
		t.Errorf("Expected no args suffix, got: %s", output)
	}
}

func TestNoOpLogger(t *testing.T) {
	logger := NewNoOpLogger()

	// These should not panic - they're no-ops
	logger.Debug("test message", "key", "value")
	logger.Info("test message")
	logger.Warn("test message", nil)
	logger.Error("test message", "error", errors.New("x"))
}
