package main

import (
	"fmt"
	"os"
)

// DebugMode enables verbose logging of every command the deploy tool runs.
// Set from the --debug flag before any executor is created.
var DebugMode bool

// debugLog prints to stderr when --debug is set.
func debugLog(format string, args ...interface{}) {
	if DebugMode {
		fmt.Fprintf(os.Stderr, "[DEBUG] "+format+"\n", args...)
	}
}

// debugLogger adapts debugLog to the deploy.Logger interface so executors
// share the tool's debug output.
type debugLogger struct{}

func (debugLogger) Debugf(format string, args ...interface{}) {
	debugLog(format, args...)
}

// Spinner renders a terminal spinner for long-running operations.
type Spinner struct {
	message string
	frames  []string
	index   int
}

// NewSpinner creates a spinner with the given message.
func NewSpinner(message string) *Spinner {
	return &Spinner{
		message: message,
		frames:  []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"},
	}
}

// Next returns the next frame, prefixed with a carriage return so repeated
// prints redraw in place on the same line.
func (s *Spinner) Next() string {
	frame := s.frames[s.index%len(s.frames)]
	s.index++
	return fmt.Sprintf("\r%s %s", frame, s.message)
}
