package relay

import "sync"

// MockDriver is an in-memory actuator used in dev mode and tests. It records
// every pin it hands out so callers can inspect the level transitions.
type MockDriver struct {
	mu      sync.Mutex
	openErr error
	setErr  error
	pins    []*MockPin
}

// NewMockDriver creates a MockDriver.
func NewMockDriver() *MockDriver {
	return &MockDriver{}
}

// FailOpens makes subsequent Open calls return err. Pass nil to heal.
func (d *MockDriver) FailOpens(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.openErr = err
}

// FailSets makes SetLevel fail on pins opened after this call.
func (d *MockDriver) FailSets(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.setErr = err
}

// Open returns a fresh MockPin, or the configured error.
func (d *MockDriver) Open() (Pin, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.openErr != nil {
		return nil, d.openErr
	}
	p := &MockPin{setErr: d.setErr}
	d.pins = append(d.pins, p)
	return p, nil
}

// Opens returns how many times Open succeeded.
func (d *MockDriver) Opens() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pins)
}

// Pins returns the pins opened so far.
func (d *MockDriver) Pins() []*MockPin {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]*MockPin, len(d.pins))
	copy(out, d.pins)
	return out
}

// MockPin records the level transitions requested of it.
type MockPin struct {
	mu     sync.Mutex
	setErr error
	levels []bool
	closed bool
}

// SetLevel records the requested level. The attempt is recorded even when
// the configured error is returned, so tests can see what was tried.
func (p *MockPin) SetLevel(on bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.levels = append(p.levels, on)
	return p.setErr
}

// Close marks the pin released.
func (p *MockPin) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

// Levels returns the recorded level transitions in order.
func (p *MockPin) Levels() []bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]bool, len(p.levels))
	copy(out, p.levels)
	return out
}

// Closed reports whether the pin was released.
func (p *MockPin) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}
