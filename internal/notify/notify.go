// Package notify publishes pipeline events to external sinks.
package notify

import "time"

// DetectionEvent announces the start of a sighting episode. The pipeline
// emits one per rising edge, not one per frame.
type DetectionEvent struct {
	ClassName  string    `json:"class_name"`
	Confidence float64   `json:"confidence"`
	Count      int       `json:"count"`
	Timestamp  time.Time `json:"timestamp"`
}

// TriggerEvent announces one actuation attempt.
type TriggerEvent struct {
	Success   bool      `json:"success"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Notifier receives pipeline events. Implementations must be safe for
// concurrent use. The caller logs failures and keeps going; a broken sink
// never stalls the pipeline.
type Notifier interface {
	DetectionStarted(event DetectionEvent) error
	Triggered(event TriggerEvent) error
	Close() error
}

// Nop discards all events. It is the sink of record when no broker is
// configured.
type Nop struct{}

func (Nop) DetectionStarted(DetectionEvent) error { return nil }

func (Nop) Triggered(TriggerEvent) error { return nil }

func (Nop) Close() error { return nil }
