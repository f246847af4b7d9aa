package pipeline

import (
	"encoding/json"
	"sync"
	"time"
)

// statusTimeFormat is the wall-clock form the status endpoint has always
// served; clients parse it, so it is part of the API contract.
const statusTimeFormat = "2006-01-02 15:04:05"

// Status is the aggregate detection state shared between the pipeline
// writer and HTTP readers. All fields move together under one lock, so a
// reader never observes a torn combination.
type Status struct {
	mu          sync.Mutex
	detected    bool
	count       int
	lastTrigger time.Time
}

// NewStatus creates an empty Status.
func NewStatus() *Status {
	return &Status{}
}

// Observe folds one pipeline iteration's outcome into the status: it sets
// the detected flag, increments the counter when detected, and reports
// whether this observation is a rising edge (not detected before, detected
// now).
func (s *Status) Observe(detected bool) (rising bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rising = detected && !s.detected
	s.detected = detected
	if detected {
		s.count++
	}
	return rising
}

// MarkTriggered records the time of a successful actuation.
func (s *Status) MarkTriggered(at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastTrigger = at
}

// Snapshot returns one consistent read of the aggregate state.
func (s *Status) Snapshot() StatusSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return StatusSnapshot{
		Detected:    s.detected,
		Count:       s.count,
		LastTrigger: s.lastTrigger,
	}
}

// StatusSnapshot is a point-in-time copy of the aggregate state.
// LastTrigger is the zero time before the first successful actuation.
type StatusSnapshot struct {
	Detected    bool
	Count       int
	LastTrigger time.Time
}

// MarshalJSON renders the status in the shape the status endpoint serves:
// last_trigger is a local wall-clock string, or null before the first
// trigger.
func (s StatusSnapshot) MarshalJSON() ([]byte, error) {
	out := struct {
		Detected    bool    `json:"detected"`
		Count       int     `json:"count"`
		LastTrigger *string `json:"last_trigger"`
	}{
		Detected: s.Detected,
		Count:    s.Count,
	}
	if !s.LastTrigger.IsZero() {
		ts := s.LastTrigger.Local().Format(statusTimeFormat)
		out.LastTrigger = &ts
	}
	return json.Marshal(out)
}
