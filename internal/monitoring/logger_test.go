package monitoring

import (
	"testing"
)

func TestSetLogger(t *testing.T) {
	original := Logf
	defer func() { Logf = original }()

	var got string
	SetLogger(func(format string, v ...interface{}) {
		got = format
	})
	Logf("capture failed: %v", "boom")
	if got != "capture failed: %v" {
		t.Errorf("custom logger saw %q", got)
	}

	// nil installs a no-op logger that swallows calls without panicking.
	SetLogger(nil)
	got = ""
	Logf("should be dropped")
	if got != "" {
		t.Error("no-op logger must not invoke the previous logger")
	}
}

func TestLogfDefault(t *testing.T) {
	if Logf == nil {
		t.Fatal("Logf should never be nil")
	}
	defer func() {
		if r := recover(); r != nil {
			t.Errorf("Logf panicked: %v", r)
		}
	}()
	Logf("pipeline started: %dx%d", 640, 480)
}
