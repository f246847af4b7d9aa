package pipeline

import "sync"

// DrawMode is the flag that switches the pipeline between detection and
// region-editing behavior. HTTP handlers set it; the pipeline samples it
// once per iteration, so a change becomes visible within one iteration
// period.
type DrawMode struct {
	mu     sync.Mutex
	active bool
}

// NewDrawMode creates the flag in the inactive state.
func NewDrawMode() *DrawMode {
	return &DrawMode{}
}

// Enter activates drawing mode. Idempotent.
func (m *DrawMode) Enter() {
	m.mu.Lock()
	m.active = true
	m.mu.Unlock()
}

// Exit deactivates drawing mode. Idempotent.
func (m *DrawMode) Exit() {
	m.mu.Lock()
	m.active = false
	m.mu.Unlock()
}

// Active reports the current state of the flag.
func (m *DrawMode) Active() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active
}
