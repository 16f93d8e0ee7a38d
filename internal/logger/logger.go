// Package logger provides leveled logging for the quackdas CLI and services.
// Debug and Info messages are printed only in verbose mode (--verbose);
// warnings and errors are always printed. Output goes to stderr through a
// log/slog text handler.
package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
)

var (
	mu      sync.RWMutex
	verbose bool
	output  io.Writer = os.Stderr
	level             = new(slog.LevelVar)
	base              = newLogger(os.Stderr)
)

func init() {
	level.Set(slog.LevelWarn)
}

func newLogger(w io.Writer) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: dropTime,
	}))
}

// dropTime removes the timestamp so CLI output stays compact and diffable.
func dropTime(groups []string, a slog.Attr) slog.Attr {
	if len(groups) == 0 && a.Key == slog.TimeKey {
		return slog.Attr{}
	}
	return a
}

// SetVerbose enables or disables verbose logging.
func SetVerbose(v bool) {
	mu.Lock()
	defer mu.Unlock()
	verbose = v
	if v {
		level.Set(slog.LevelDebug)
	} else {
		level.Set(slog.LevelWarn)
	}
}

// IsVerbose returns true if verbose mode is enabled.
func IsVerbose() bool {
	mu.RLock()
	defer mu.RUnlock()
	return verbose
}

// SetOutput sets the output writer for logs.
// Defaults to os.Stderr. Useful for testing.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	output = w
	base = newLogger(w)
}

// L returns the underlying structured logger.
func L() *slog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return base
}

// With returns a structured logger carrying the given attributes,
// e.g. logger.With("job_id", id, "kind", kind).
func With(args ...any) *slog.Logger {
	return L().With(args...)
}

// Debug prints a message if verbose mode is enabled.
func Debug(format string, args ...any) {
	L().Debug(fmt.Sprintf(format, args...))
}

// Info prints an informational message if verbose mode is enabled.
func Info(format string, args ...any) {
	L().Info(fmt.Sprintf(format, args...))
}

// Warn prints a warning message.
func Warn(format string, args ...any) {
	L().Warn(fmt.Sprintf(format, args...))
}

// Error prints an error message.
func Error(format string, args ...any) {
	L().Error(fmt.Sprintf(format, args...))
}

// Section prints a section header if verbose mode is enabled.
func Section(name string) {
	mu.RLock()
	defer mu.RUnlock()
	if verbose {
		fmt.Fprintf(output, "\n=== %s ===\n", name)
	}
}
