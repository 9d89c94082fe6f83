// Package progress provides a small elapsed-time logger shared by the CLI,
// the graph adapters, and the solver, so none of them need a package-level
// logger or global state.
package progress

import (
	"fmt"
	"os"
	"time"
)

// Logger reports progress to stderr with an elapsed-time prefix. A Logger
// derived via WithUnit additionally tags every line with the owning unit,
// so interleaved output from concurrent Runners (spec.md §4: one goroutine
// per unit) stays attributable without every call site re-formatting its
// own unit id.
type Logger struct {
	start   time.Time
	verbose bool
	prefix  string
}

// New creates a progress reporter.
func New(verbose bool) *Logger {
	return &Logger{start: time.Now(), verbose: verbose}
}

// WithUnit returns a Logger that tags every message with name, sharing
// this Logger's start time and verbosity. Called once per unit
// (Manager.getOrCreateRunner), so a Runner's own log calls never repeat
// its unit id in every format string.
func (l *Logger) WithUnit(name string) *Logger {
	return &Logger{start: l.start, verbose: l.verbose, prefix: "unit " + name + ": "}
}

// Log prints a progress message with elapsed time prefix.
func (l *Logger) Log(format string, args ...any) {
	elapsed := time.Since(l.start)
	mins := int(elapsed.Minutes())
	secs := int(elapsed.Seconds()) % 60
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintf(os.Stderr, "[%02d:%02d] %s%s\n", mins, secs, l.prefix, msg)
}

// Verbose prints only when verbose mode is enabled.
func (l *Logger) Verbose(format string, args ...any) {
	if l.verbose {
		l.Log(format, args...)
	}
}

// Warn prints a warning-prefixed message unconditionally.
func (l *Logger) Warn(format string, args ...any) {
	l.Log("warning: "+format, args...)
}
