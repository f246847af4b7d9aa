package relay

import (
	"os"
	"path/filepath"
	"testing"
)

// fakeSysfs lays out an already-exported pin directory the way the kernel
// would after a successful export.
func fakeSysfs(t *testing.T, pin string) string {
	t.Helper()
	base := t.TempDir()
	if err := os.MkdirAll(filepath.Join(base, "gpio"+pin), 0o755); err != nil {
		t.Fatal(err)
	}
	return base
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return string(data)
}

func TestGPIOPulseFileSequence(t *testing.T) {
	base := fakeSysfs(t, "18")
	driver := &GPIODriver{base: base, pin: 18, activeLow: true}

	pin, err := driver.Open()
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	if got := readFile(t, filepath.Join(base, "gpio18", "direction")); got != "out" {
		t.Errorf("direction = %q, want out", got)
	}

	if err := pin.SetLevel(true); err != nil {
		t.Fatalf("SetLevel(true): %v", err)
	}
	if got := readFile(t, filepath.Join(base, "gpio18", "value")); got != "0" {
		t.Errorf("active-low on wrote %q, want 0", got)
	}

	if err := pin.SetLevel(false); err != nil {
		t.Fatalf("SetLevel(false): %v", err)
	}
	if got := readFile(t, filepath.Join(base, "gpio18", "value")); got != "1" {
		t.Errorf("active-low off wrote %q, want 1", got)
	}

	if err := pin.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if got := readFile(t, filepath.Join(base, "unexport")); got != "18" {
		t.Errorf("unexport = %q, want 18", got)
	}
}

func TestGPIOActiveHighPolarity(t *testing.T) {
	base := fakeSysfs(t, "23")
	driver := &GPIODriver{base: base, pin: 23, activeLow: false}

	pin, err := driver.Open()
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	if err := pin.SetLevel(true); err != nil {
		t.Fatal(err)
	}
	if got := readFile(t, filepath.Join(base, "gpio23", "value")); got != "1" {
		t.Errorf("active-high on wrote %q, want 1", got)
	}

	if err := pin.SetLevel(false); err != nil {
		t.Fatal(err)
	}
	if got := readFile(t, filepath.Join(base, "gpio23", "value")); got != "0" {
		t.Errorf("active-high off wrote %q, want 0", got)
	}
}

// An unexported pin triggers an export write. Without a kernel to create the
// gpioN directory in response, Open then fails on the direction write, which
// is enough to observe the export ordering.
func TestGPIOOpenExportsUnexportedPin(t *testing.T) {
	base := t.TempDir()
	driver := &GPIODriver{base: base, pin: 18, activeLow: true}

	_, err := driver.Open()
	if err == nil {
		t.Fatal("expected direction write to fail without kernel-created pin directory")
	}

	if got := readFile(t, filepath.Join(base, "export")); got != "18" {
		t.Errorf("export = %q, want 18", got)
	}
}

func TestNewGPIODriverDefaults(t *testing.T) {
	driver := NewGPIODriver(18, true)
	if driver.base != sysfsGPIOBase {
		t.Errorf("base = %q, want %q", driver.base, sysfsGPIOBase)
	}
	if driver.pin != 18 || !driver.activeLow {
		t.Errorf("driver = %+v, want pin 18 active-low", driver)
	}
}
