// Package feedback carries progress and warning messages from a run to the
// user.
package feedback

import (
	"fmt"
	"io"
	"log/slog"
	"sync"
)

// Logger reports through a structured logger.
type Logger struct {
	logger *slog.Logger
}

// NewLogger creates a slog-backed sink.
func NewLogger(logger *slog.Logger) *Logger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Logger{logger: logger.With("component", "feedback")}
}

// Progress logs at info level.
func (l *Logger) Progress(format string, args ...any) {
	l.logger.Info(fmt.Sprintf(format, args...))
}

// Warn logs at warn level.
func (l *Logger) Warn(format string, args ...any) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

// Writer prints one line per message. It is safe for concurrent use.
type Writer struct {
	mu sync.Mutex
	w  io.Writer
}

// NewWriter creates a sink writing to w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// Progress prints the message.
func (w *Writer) Progress(format string, args ...any) {
	w.line("", format, args...)
}

// Warn prints the message prefixed with "Warning: ".
func (w *Writer) Warn(format string, args ...any) {
	w.line("Warning: ", format, args...)
}

func (w *Writer) line(prefix, format string, args ...any) {
	w.mu.Lock()
	defer w.mu.Unlock()
	fmt.Fprintf(w.w, "%s%s\n", prefix, fmt.Sprintf(format, args...))
}
