package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

// Logger writes levelled, human-readable log lines. Values wrapped in
// Secret are always rendered as [REDACTED].
type Logger struct {
	debug   bool
	noColor bool

	mu  sync.Mutex
	out io.Writer
	now func() time.Time
}

// New creates a logger writing to stderr.
func New(debug, noColor bool) *Logger {
	return NewWithWriter(os.Stderr, debug, noColor)
}

// NewWithWriter creates a logger writing to w.
func NewWithWriter(w io.Writer, debug, noColor bool) *Logger {
	return &Logger{
		debug:   debug,
		noColor: noColor,
		out:     w,
		now:     time.Now,
	}
}

// Discard returns a logger that drops everything. Useful as a default
// for components constructed without a logger.
func Discard() *Logger {
	return NewWithWriter(io.Discard, false, true)
}

// DebugEnabled reports whether debug output is written.
func (l *Logger) DebugEnabled() bool {
	return l.debug
}

// Info logs an informational message
func (l *Logger) Info(format string, args ...interface{}) {
	l.write("32", "INFO ", format, args...)
}

// Warn logs a warning message
func (l *Logger) Warn(format string, args ...interface{}) {
	l.write("33", "WARN ", format, args...)
}

// Error logs an error message
func (l *Logger) Error(format string, args ...interface{}) {
	l.write("31", "ERROR", format, args...)
}

// Debug logs a debug message if debug mode is enabled
func (l *Logger) Debug(format string, args ...interface{}) {
	if !l.debug {
		return
	}
	l.write("36", "DEBUG", format, args...)
}

func (l *Logger) write(color, level, format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	ts := l.now().UTC().Format(time.RFC3339)

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.noColor {
		fmt.Fprintf(l.out, "%s %s %s\n", ts, level, msg)
		return
	}
	fmt.Fprintf(l.out, "%s \033[%sm%s\033[0m %s\n", ts, color, level, msg)
}

// Secret represents a value that should be redacted in logs
type Secret string

// String implements the Stringer interface, always returning a redacted value
func (s Secret) String() string {
	return "[REDACTED]"
}

// GoString implements the GoStringer interface for %#v formatting
func (s Secret) GoString() string {
	return "[REDACTED]"
}

// Redact replaces sensitive values in a string with [REDACTED]
func Redact(s string, secrets []string) string {
	result := s
	for _, secret := range secrets {
		if secret != "" && len(secret) > 3 { // Only redact non-trivial secrets
			result = strings.ReplaceAll(result, secret, "[REDACTED]")
		}
	}
	return result
}
