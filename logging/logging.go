// Package logging defines the Logger used across live-sync and adapters for
// common logging backends.
package logging

import (
	"fmt"

	"github.com/go-logr/logr"
	"go.uber.org/zap"
)

// Logger defines the interface for logging in live-sync.
type Logger interface {
	// Debug logs a debug message.
	Debug(msg string, args ...any)

	// Info logs an info message.
	Info(msg string, args ...any)

	// Warn logs a warning message.
	Warn(msg string, args ...any)

	// Error logs an error message.
	Error(msg string, args ...any)
}

// NoOpLogger is a logger that does nothing.
type NoOpLogger struct{}

// Debug logs a debug message (no-op).
func (n *NoOpLogger) Debug(msg string, args ...any) {}

// Info logs an info message (no-op).
func (n *NoOpLogger) Info(msg string, args ...any) {}

// Warn logs a warning message (no-op).
func (n *NoOpLogger) Warn(msg string, args ...any) {}

// Error logs an error message (no-op).
func (n *NoOpLogger) Error(msg string, args ...any) {}

// NewNoOpLogger creates a new no-op logger.
func NewNoOpLogger() Logger {
	return &NoOpLogger{}
}

// OrNoOp returns l, or a no-op logger when l is nil.
func OrNoOp(l Logger) Logger {
	if l == nil {
		return NewNoOpLogger()
	}
	return l
}

// ConsoleLogger prints leveled lines to stdout.
type ConsoleLogger struct {
	prefix string
}

func (cl *ConsoleLogger) print(level, msg string, args []any) {
	fmt.Printf("[%s] %s: %s", level, cl.prefix, msg)
	if len(args) > 0 {
		fmt.Printf(" %v", args)
	}
	fmt.Println()
}

// Debug logs a debug message to console.
func (cl *ConsoleLogger) Debug(msg string, args ...any) { cl.print("DEBUG", msg, args) }

// Info logs an info message to console.
func (cl *ConsoleLogger) Info(msg string, args ...any) { cl.print("INFO", msg, args) }

// Warn logs a warning message to console.
func (cl *ConsoleLogger) Warn(msg string, args ...any) { cl.print("WARN", msg, args) }

// Error logs an error message to console.
func (cl *ConsoleLogger) Error(msg string, args ...any) { cl.print("ERROR", msg, args) }

// NewConsoleLogger creates a new console logger.
func NewConsoleLogger(prefix string) Logger {
	return &ConsoleLogger{prefix: prefix}
}

// ZapLogger adapts a zap.SugaredLogger. Args are alternating key/value pairs.
type ZapLogger struct {
	sugar *zap.SugaredLogger
}

// NewZapLogger wraps l.
func NewZapLogger(l *zap.Logger) Logger {
	return &ZapLogger{sugar: l.Sugar()}
}

func (z *ZapLogger) Debug(msg string, args ...any) { z.sugar.Debugw(msg, args...) }
func (z *ZapLogger) Info(msg string, args ...any)  { z.sugar.Infow(msg, args...) }
func (z *ZapLogger) Warn(msg string, args ...any)  { z.sugar.Warnw(msg, args...) }
func (z *ZapLogger) Error(msg string, args ...any) { z.sugar.Errorw(msg, args...) }

// LogrLogger adapts a logr.Logger. Debug maps to V(1); Warn is logged at
// info level with a "level" key since logr has no warning level.
type LogrLogger struct {
	log logr.Logger
}

// NewLogrLogger wraps l.
func NewLogrLogger(l logr.Logger) Logger {
	return &LogrLogger{log: l}
}

func (lr *LogrLogger) Debug(msg string, args ...any) { lr.log.V(1).Info(msg, args...) }
func (lr *LogrLogger) Info(msg string, args ...any)  { lr.log.Info(msg, args...) }
func (lr *LogrLogger) Warn(msg string, args ...any) {
	lr.log.Info(msg, append([]any{"level", "warn"}, args...)...)
}

// Error logs msg. An error value passed under the "error" key becomes the
// logr error argument.
func (lr *LogrLogger) Error(msg string, args ...any) {
	var err error
	rest := make([]any, 0, len(args))
	for i := 0; i < len(args); i++ {
		if i+1 < len(args) && args[i] == "error" {
			if e, ok := args[i+1].(error); ok {
				err = e
				i++
				continue
			}
		}
		rest = append(rest, args[i])
	}
	lr.log.Error(err, msg, rest...)
}
