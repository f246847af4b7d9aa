package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/fenceline/catsentry/internal/api"
	"github.com/fenceline/catsentry/internal/camera"
	"github.com/fenceline/catsentry/internal/config"
	"github.com/fenceline/catsentry/internal/detect"
	"github.com/fenceline/catsentry/internal/events"
	"github.com/fenceline/catsentry/internal/framepub"
	"github.com/fenceline/catsentry/internal/fsutil"
	"github.com/fenceline/catsentry/internal/pipeline"
	"github.com/fenceline/catsentry/internal/region"
	"github.com/fenceline/catsentry/internal/relay"
)

func strPtr(s string) *string { return &s }

func TestResolve(t *testing.T) {
	if got := resolve("", ":5000"); got != ":5000" {
		t.Errorf("expected config value, got %q", got)
	}
	if got := resolve(":9000", ":5000"); got != ":9000" {
		t.Errorf("expected flag value to win, got %q", got)
	}
}

func TestBuildCameraBackends(t *testing.T) {
	cfg := config.EmptyConfig()
	cfg.Camera = &config.CameraConfig{Backend: strPtr("mock")}
	cam, err := buildCamera(cfg, false)
	if err != nil {
		t.Fatalf("mock backend failed: %v", err)
	}
	if _, ok := cam.(*camera.MockCamera); !ok {
		t.Errorf("expected *camera.MockCamera, got %T", cam)
	}

	// dev mode gets the synthetic camera even with a hardware backend
	// configured
	cfg.Camera.Backend = strPtr("ffmpeg")
	cam, err = buildCamera(cfg, true)
	if err != nil {
		t.Fatalf("dev mode failed: %v", err)
	}
	if _, ok := cam.(*camera.MockCamera); !ok {
		t.Errorf("expected dev mode to select *camera.MockCamera, got %T", cam)
	}

	cfg.Camera.Backend = strPtr("bogus")
	if _, err := buildCamera(cfg, false); err == nil {
		t.Error("expected error for unknown backend")
	}
}

func TestBuildDetectorBackends(t *testing.T) {
	cfg := config.EmptyConfig()
	cfg.Detector = &config.DetectorConfig{Backend: strPtr("mock")}
	det, err := buildDetector(cfg, false)
	if err != nil {
		t.Fatalf("mock backend failed: %v", err)
	}
	if _, ok := det.(*detect.MockDetector); !ok {
		t.Errorf("expected *detect.MockDetector, got %T", det)
	}

	cfg.Detector.Backend = strPtr("remote")
	det, err = buildDetector(cfg, false)
	if err != nil {
		t.Fatalf("remote backend failed: %v", err)
	}
	if _, ok := det.(*detect.RemoteDetector); !ok {
		t.Errorf("expected *detect.RemoteDetector, got %T", det)
	}

	cfg.Detector.Backend = strPtr("dnn")
	det, err = buildDetector(cfg, true)
	if err != nil {
		t.Fatalf("dev mode failed: %v", err)
	}
	if _, ok := det.(*detect.MockDetector); !ok {
		t.Errorf("expected dev mode to select *detect.MockDetector, got %T", det)
	}

	cfg.Detector.Backend = strPtr("bogus")
	if _, err := buildDetector(cfg, false); err == nil {
		t.Error("expected error for unknown backend")
	}
}

func TestBuildActuatorBackends(t *testing.T) {
	cfg := config.EmptyConfig()
	for _, backend := range []string{"gpio", "serial", "mock"} {
		cfg.Relay = &config.RelayConfig{Backend: strPtr(backend)}
		actuator, err := buildActuator(cfg, false)
		if err != nil {
			t.Fatalf("%s backend failed: %v", backend, err)
		}
		if actuator == nil {
			t.Fatalf("%s backend returned nil controller", backend)
		}
	}

	cfg.Relay = &config.RelayConfig{Backend: strPtr("bogus")}
	if _, err := buildActuator(cfg, false); err == nil {
		t.Error("expected error for unknown backend")
	}
}

// TestDaemonEndToEnd wires the pipeline and HTTP surface the way main does,
// with mock hardware, and verifies a synthetic sighting flows all the way
// through: relay pulse, database rows, and the status endpoint.
func TestDaemonEndToEnd(t *testing.T) {
	testingDir := t.TempDir()

	db, err := events.NewDB(filepath.Join(testingDir, "events.db"))
	if err != nil {
		t.Fatalf("Failed to connect to test database: %v", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			t.Errorf("Failed to close test database: %v", err)
		}
	}()

	regionStore, err := region.NewStore(filepath.Join(testingDir, "polygon.json"), fsutil.OSFileSystem{})
	if err != nil {
		t.Fatalf("Failed to open region store: %v", err)
	}
	if err := regionStore.Load(); err != nil {
		t.Fatalf("Failed to load region: %v", err)
	}

	publisher := framepub.New()
	defer publisher.Close()

	status := pipeline.NewStatus()
	mode := pipeline.NewDrawMode()
	snapshot := pipeline.NewSnapshotHolder()
	driver := relay.NewMockDriver()

	pl := pipeline.New(pipeline.Deps{
		Camera:    camera.NewMockCamera(64, 48),
		Detector:  detect.NewMockDetector("cat"),
		Actuator:  relay.NewController(driver, time.Millisecond, nil),
		Region:    regionStore,
		Mode:      mode,
		Snapshot:  snapshot,
		Status:    status,
		Publisher: publisher,
		Recorder:  db,
	}, pipeline.Config{
		ConfidenceThreshold: 0.25,
		Cooldown:            time.Hour, // one pulse only
		Interval:            time.Millisecond,
		DrawingInterval:     time.Millisecond,
		RetryDelay:          time.Millisecond,
		StreamQuality:       85,
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		pl.Run(ctx)
	}()

	deadline := time.Now().Add(5 * time.Second)
	for {
		triggers, err := db.RecentTriggers(5)
		if err != nil {
			cancel()
			t.Fatalf("Failed to query triggers: %v", err)
		}
		if len(triggers) > 0 {
			break
		}
		if time.Now().After(deadline) {
			cancel()
			t.Fatal("no trigger recorded within deadline")
		}
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	<-done

	// exactly one pulse: the hour-long cooldown blocks any second one
	pins := driver.Pins()
	if len(pins) != 1 {
		t.Fatalf("expected 1 relay pulse, got %d", len(pins))
	}
	if diff := cmp.Diff([]bool{true, false}, pins[0].Levels()); diff != "" {
		t.Errorf("pulse sequence mismatch (-want +got):\n%s", diff)
	}
	if !pins[0].Closed() {
		t.Error("relay pin not released after pulse")
	}

	triggers, err := db.RecentTriggers(5)
	if err != nil {
		t.Fatalf("Failed to query triggers: %v", err)
	}
	got := triggers[0]
	if got.ID == "" {
		t.Error("trigger record missing ID")
	}
	if got.Timestamp.IsZero() {
		t.Error("trigger record missing timestamp")
	}
	got.ID = ""
	got.Timestamp = time.Time{}
	want := events.TriggerEvent{Detections: 1, Success: true}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("trigger record mismatch (-want +got):\n%s", diff)
	}

	detections, err := db.RecentDetections(5)
	if err != nil {
		t.Fatalf("Failed to query detections: %v", err)
	}
	if len(detections) != 1 {
		t.Fatalf("expected 1 detection record for the sighting, got %d", len(detections))
	}
	if detections[0].ClassName != "cat" {
		t.Errorf("expected class cat, got %q", detections[0].ClassName)
	}

	// the HTTP surface sees the same state
	mux := api.NewServer(api.ServerConfig{
		Status:   status,
		Mode:     mode,
		Snapshot: snapshot,
		Region:   regionStore,
		Frames:   publisher,
		DB:       db,
	}).ServeMux()

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 from /status, got %d", rec.Code)
	}
	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("Failed to decode status: %v", err)
	}
	if body["detected"] != true {
		t.Errorf("expected detected=true, got %v", body["detected"])
	}
	if count, ok := body["count"].(float64); !ok || count < 1 {
		t.Errorf("expected count >= 1, got %v", body["count"])
	}
	if body["last_trigger"] == nil {
		t.Error("expected last_trigger to be set")
	}
}
