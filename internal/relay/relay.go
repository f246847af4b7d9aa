// Package relay drives the physical actuator through a timed pulse. The
// hardware pin is acquired per pulse and released afterward, so the output
// is left unconfigured between pulses and a crashed process cannot hold the
// relay energized.
package relay

import (
	"fmt"
	"time"

	"github.com/fenceline/catsentry/internal/timeutil"
)

// DefaultHold is how long the relay stays energized during a pulse.
const DefaultHold = 500 * time.Millisecond

// Pin is a single output pin. SetLevel(true) energizes the relay
// regardless of the electrical polarity, which the implementation owns.
type Pin interface {
	SetLevel(on bool) error
	Close() error
}

// Driver opens the underlying output pin.
type Driver interface {
	Open() (Pin, error)
}

// Controller performs the ON, hold, OFF pulse sequence. It enforces no
// cooldown of its own; rate limiting is the caller's concern.
type Controller struct {
	driver Driver
	hold   time.Duration
	clock  timeutil.Clock
}

// NewController creates a Controller. A zero hold selects DefaultHold and a
// nil clock selects the real one.
func NewController(driver Driver, hold time.Duration, clock timeutil.Clock) *Controller {
	if hold <= 0 {
		hold = DefaultHold
	}
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Controller{driver: driver, hold: hold, clock: clock}
}

// Hold returns the configured pulse duration.
func (c *Controller) Hold() time.Duration { return c.hold }

// Pulse energizes the relay, holds for the configured duration, and
// de-energizes it. It blocks for the full hold. The inactive level is
// restored and the pin released on every exit path, including errors
// partway through the sequence.
func (c *Controller) Pulse() (err error) {
	pin, openErr := c.driver.Open()
	if openErr != nil {
		return fmt.Errorf("open actuator pin: %w", openErr)
	}
	defer func() {
		if cerr := pin.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("release actuator pin: %w", cerr)
		}
	}()
	defer func() {
		if rerr := pin.SetLevel(false); rerr != nil && err == nil {
			err = fmt.Errorf("restore inactive level: %w", rerr)
		}
	}()

	if err := pin.SetLevel(true); err != nil {
		return fmt.Errorf("energize relay: %w", err)
	}
	c.clock.Sleep(c.hold)
	return nil
}
