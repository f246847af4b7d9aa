package notify

import (
	"encoding/json"
	"testing"
	"time"
)

func TestDetectionEventPayload(t *testing.T) {
	event := DetectionEvent{
		ClassName:  "cat",
		Confidence: 0.87,
		Count:      2,
		Timestamp:  time.Date(2026, 8, 23, 10, 0, 0, 0, time.UTC),
	}

	payload, err := json.Marshal(event)
	if err != nil {
		t.Fatalf("Failed to marshal detection event: %v", err)
	}

	want := `{"class_name":"cat","confidence":0.87,"count":2,"timestamp":"2026-08-23T10:00:00Z"}`
	if string(payload) != want {
		t.Errorf("Unexpected payload:\n got %s\nwant %s", payload, want)
	}
}

func TestTriggerEventPayload(t *testing.T) {
	ok := TriggerEvent{
		Success:   true,
		Timestamp: time.Date(2026, 8, 23, 10, 0, 0, 0, time.UTC),
	}
	payload, err := json.Marshal(ok)
	if err != nil {
		t.Fatalf("Failed to marshal trigger event: %v", err)
	}
	want := `{"success":true,"timestamp":"2026-08-23T10:00:00Z"}`
	if string(payload) != want {
		t.Errorf("Unexpected payload:\n got %s\nwant %s", payload, want)
	}

	failed := TriggerEvent{
		Success:   false,
		Error:     "energize relay: broken wire",
		Timestamp: time.Date(2026, 8, 23, 10, 0, 0, 0, time.UTC),
	}
	payload, err = json.Marshal(failed)
	if err != nil {
		t.Fatalf("Failed to marshal failed trigger event: %v", err)
	}
	want = `{"success":false,"error":"energize relay: broken wire","timestamp":"2026-08-23T10:00:00Z"}`
	if string(payload) != want {
		t.Errorf("Unexpected payload:\n got %s\nwant %s", payload, want)
	}
}

func TestNopDiscardsEverything(t *testing.T) {
	var n Nop

	if err := n.DetectionStarted(DetectionEvent{ClassName: "cat"}); err != nil {
		t.Errorf("Expected nil from DetectionStarted, got %v", err)
	}
	if err := n.Triggered(TriggerEvent{Success: true}); err != nil {
		t.Errorf("Expected nil from Triggered, got %v", err)
	}
	if err := n.Close(); err != nil {
		t.Errorf("Expected nil from Close, got %v", err)
	}
}
