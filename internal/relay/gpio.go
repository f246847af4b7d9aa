package relay

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

const sysfsGPIOBase = "/sys/class/gpio"

// GPIODriver drives a relay wired to a GPIO output through the sysfs
// interface. Open exports the pin and sets it as an output; Close unexports
// it, mirroring a full GPIO reset cycle around each pulse.
type GPIODriver struct {
	base      string
	pin       int
	activeLow bool
}

// NewGPIODriver creates a driver for the given BCM pin number. Most relay
// boards energize on a low level; pass activeLow accordingly.
func NewGPIODriver(pin int, activeLow bool) *GPIODriver {
	return &GPIODriver{base: sysfsGPIOBase, pin: pin, activeLow: activeLow}
}

// Open exports the pin if needed and configures it as an output.
func (d *GPIODriver) Open() (Pin, error) {
	dir := filepath.Join(d.base, fmt.Sprintf("gpio%d", d.pin))
	if _, err := os.Stat(dir); err != nil {
		// Not exported yet. The kernel creates the gpioN directory in
		// response to this write.
		exportPath := filepath.Join(d.base, "export")
		if werr := os.WriteFile(exportPath, []byte(strconv.Itoa(d.pin)), 0o200); werr != nil {
			return nil, fmt.Errorf("export gpio%d: %w", d.pin, werr)
		}
	}

	if err := os.WriteFile(filepath.Join(dir, "direction"), []byte("out"), 0o644); err != nil {
		return nil, fmt.Errorf("set gpio%d direction: %w", d.pin, err)
	}

	return &gpioPin{base: d.base, pin: d.pin, activeLow: d.activeLow}, nil
}

type gpioPin struct {
	base      string
	pin       int
	activeLow bool
}

// SetLevel writes the pin level corresponding to the requested logical
// state, honoring the configured polarity.
func (p *gpioPin) SetLevel(on bool) error {
	level := "1"
	if on == p.activeLow {
		level = "0"
	}
	path := filepath.Join(p.base, fmt.Sprintf("gpio%d", p.pin), "value")
	if err := os.WriteFile(path, []byte(level), 0o644); err != nil {
		return fmt.Errorf("write gpio%d value: %w", p.pin, err)
	}
	return nil
}

// Close unexports the pin, releasing it back to the kernel.
func (p *gpioPin) Close() error {
	path := filepath.Join(p.base, "unexport")
	if err := os.WriteFile(path, []byte(strconv.Itoa(p.pin)), 0o200); err != nil {
		return fmt.Errorf("unexport gpio%d: %w", p.pin, err)
	}
	return nil
}
