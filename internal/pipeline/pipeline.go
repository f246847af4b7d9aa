// Package pipeline runs the continuous capture, inference, filtering,
// triggering, and publishing loop at the core of the daemon. One goroutine
// drives an explicit state machine; everything it shares with the HTTP
// layer (region, drawing mode, status, snapshot, published frames) is
// guarded by its own lock, and no lock is held across a blocking call.
package pipeline

import (
	"context"
	"time"

	"github.com/fenceline/catsentry/internal/camera"
	"github.com/fenceline/catsentry/internal/detect"
	"github.com/fenceline/catsentry/internal/framepub"
	"github.com/fenceline/catsentry/internal/geometry"
	"github.com/fenceline/catsentry/internal/monitoring"
	"github.com/fenceline/catsentry/internal/notify"
	"github.com/fenceline/catsentry/internal/timeutil"
	"github.com/fenceline/catsentry/internal/vision"
)

// Defaults for the loop's tunables. Zero-valued Config fields fall back to
// these.
const (
	DefaultConfidenceThreshold = 0.25
	DefaultCooldown            = 2 * time.Second
	DefaultInterval            = 33 * time.Millisecond
	DefaultDrawingInterval     = 100 * time.Millisecond
	DefaultRetryDelay          = 100 * time.Millisecond
	DefaultStreamQuality       = 85
)

// state names one node of the pipeline's iteration graph. Drawing mode is
// a separate branch after acquisition, so the detection states are simply
// never entered while the editor is open.
type state int

const (
	stateAcquire state = iota
	stateDrawingSnapshot
	stateInfer
	stateFilter
	stateTriggerCheck
	statePublish
)

// iteration carries one frame's artifacts between states.
type iteration struct {
	raw        *vision.Frame
	detections []detect.Detection
	annotated  *vision.Frame
}

// RegionSource provides the current region of interest. *region.Store
// satisfies it.
type RegionSource interface {
	Get() geometry.Polygon
}

// Actuator fires the physical output once. *relay.Controller satisfies it.
type Actuator interface {
	Pulse() error
}

// Recorder persists detection and trigger events. *events.DB satisfies it;
// a nop implementation is substituted when event storage is disabled.
type Recorder interface {
	RecordDetection(className string, confidence float64, x1, y1, x2, y2 int) error
	RecordTrigger(detections int, success bool, errMsg string) error
}

type nopRecorder struct{}

func (nopRecorder) RecordDetection(string, float64, int, int, int, int) error { return nil }
func (nopRecorder) RecordTrigger(int, bool, string) error                     { return nil }

// Config holds the loop tunables. Zero values select the defaults above.
type Config struct {
	ConfidenceThreshold float64
	Cooldown            time.Duration
	Interval            time.Duration
	DrawingInterval     time.Duration
	RetryDelay          time.Duration
	StreamQuality       int
}

func (c Config) withDefaults() Config {
	if c.ConfidenceThreshold <= 0 {
		c.ConfidenceThreshold = DefaultConfidenceThreshold
	}
	if c.Cooldown <= 0 {
		c.Cooldown = DefaultCooldown
	}
	if c.Interval <= 0 {
		c.Interval = DefaultInterval
	}
	if c.DrawingInterval <= 0 {
		c.DrawingInterval = DefaultDrawingInterval
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = DefaultRetryDelay
	}
	if c.StreamQuality <= 0 {
		c.StreamQuality = DefaultStreamQuality
	}
	return c
}

// Deps wires the pipeline to its collaborators. Camera, Detector, Actuator,
// Region, Mode, Snapshot, Status, and Publisher must be set; Recorder,
// Notifier, and Clock may be nil and default to a nop recorder, a nop
// notifier, and the real clock.
type Deps struct {
	Camera    camera.Camera
	Detector  detect.Detector
	Actuator  Actuator
	Region    RegionSource
	Mode      *DrawMode
	Snapshot  *SnapshotHolder
	Status    *Status
	Publisher *framepub.Publisher
	Recorder  Recorder
	Notifier  notify.Notifier
	Clock     timeutil.Clock
}

// Pipeline is the detection loop. Create with New, drive with Run.
type Pipeline struct {
	camera    camera.Camera
	detector  detect.Detector
	actuator  Actuator
	region    RegionSource
	mode      *DrawMode
	snapshot  *SnapshotHolder
	status    *Status
	publisher *framepub.Publisher
	recorder  Recorder
	notifier  notify.Notifier
	clock     timeutil.Clock
	cfg       Config

	// lastPulse is the completion time of the last successful pulse. Only
	// the pipeline goroutine touches it. The zero value lets the first
	// qualifying detection trigger immediately.
	lastPulse time.Time
}

// New creates a Pipeline. Nil optional deps are replaced per Deps.
func New(deps Deps, cfg Config) *Pipeline {
	if deps.Recorder == nil {
		deps.Recorder = nopRecorder{}
	}
	if deps.Notifier == nil {
		deps.Notifier = notify.Nop{}
	}
	if deps.Clock == nil {
		deps.Clock = timeutil.RealClock{}
	}
	return &Pipeline{
		camera:    deps.Camera,
		detector:  deps.Detector,
		actuator:  deps.Actuator,
		region:    deps.Region,
		mode:      deps.Mode,
		snapshot:  deps.Snapshot,
		status:    deps.Status,
		publisher: deps.Publisher,
		recorder:  deps.Recorder,
		notifier:  deps.Notifier,
		clock:     deps.Clock,
		cfg:       cfg.withDefaults(),
	}
}

// Run drives the state machine until ctx is canceled and returns the
// context's error. Per-frame failures (capture, inference, encode) are
// logged and the frame dropped; they never end the loop. Collaborator
// lifetimes are owned by the caller.
func (p *Pipeline) Run(ctx context.Context) error {
	st := stateAcquire
	var it iteration

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		switch st {
		case stateAcquire:
			st, it = p.acquire(ctx)
		case stateDrawingSnapshot:
			st = p.drawingSnapshot(it)
		case stateInfer:
			st, it = p.infer(ctx, it)
		case stateFilter:
			st, it = p.filter(it)
		case stateTriggerCheck:
			st = p.triggerCheck(it)
		case statePublish:
			st = p.publish(it)
		}
	}
}

// acquire pulls one frame. Failures wait the retry delay and try again;
// a successful capture routes on the drawing-mode flag.
func (p *Pipeline) acquire(ctx context.Context) (state, iteration) {
	frame, err := p.camera.Capture(ctx)
	if err != nil {
		if ctx.Err() == nil {
			monitoring.Logf("pipeline: capture failed: %v", err)
			p.clock.Sleep(p.cfg.RetryDelay)
		}
		return stateAcquire, iteration{}
	}
	if frame == nil {
		monitoring.Logf("pipeline: camera returned no frame")
		p.clock.Sleep(p.cfg.RetryDelay)
		return stateAcquire, iteration{}
	}

	if p.mode.Active() {
		return stateDrawingSnapshot, iteration{raw: frame}
	}
	return stateInfer, iteration{raw: frame}
}

// drawingSnapshot serves the region editor: the raw frame becomes the
// current snapshot and the stream shows it with the region overlay, at the
// slower drawing rate. Detection, status, and triggering are not touched
// on this branch.
func (p *Pipeline) drawingSnapshot(it iteration) state {
	p.snapshot.SetSnapshot(it.raw)

	preview := it.raw.Clone()
	if region := p.region.Get(); len(region) > 0 {
		vision.DrawPolygonOverlay(preview, region)
	}
	p.publishFrame(preview)

	p.clock.Sleep(p.cfg.DrawingInterval)
	return stateAcquire
}

// infer runs the detector. An inference failure drops the frame after the
// normal interval so a wedged detector does not spin the loop.
func (p *Pipeline) infer(ctx context.Context, it iteration) (state, iteration) {
	detections, annotated, err := p.detector.Detect(ctx, it.raw, p.cfg.ConfidenceThreshold)
	if err != nil {
		if ctx.Err() == nil {
			monitoring.Logf("pipeline: inference failed: %v", err)
			p.clock.Sleep(p.cfg.Interval)
		}
		return stateAcquire, iteration{}
	}

	it.detections = detections
	it.annotated = annotated
	return stateFilter, it
}

// filter drops detections whose box center falls outside the region and
// composites the region overlay onto the visualization. A region with
// fewer than 3 points defines no boundary and keeps everything.
func (p *Pipeline) filter(it iteration) (state, iteration) {
	region := p.region.Get()
	if len(region) >= 3 {
		var kept []detect.Detection
		for _, d := range it.detections {
			if geometry.Contains(d.Center(), region) {
				kept = append(kept, d)
			}
		}
		it.detections = kept
	}
	if len(region) > 0 {
		vision.DrawPolygonOverlay(it.annotated, region)
	}
	return stateTriggerCheck, it
}

// triggerCheck updates the status, records the start of a sighting, and
// pulses the actuator when the cooldown allows. The cooldown advances only
// on a successful pulse; a failed one is recorded and retried on the next
// qualifying frame.
func (p *Pipeline) triggerCheck(it iteration) state {
	detected := len(it.detections) > 0
	rising := p.status.Observe(detected)

	if rising {
		best := bestDetection(it.detections)
		if err := p.recorder.RecordDetection(best.ClassName, best.Confidence, best.X1, best.Y1, best.X2, best.Y2); err != nil {
			monitoring.Logf("pipeline: record detection: %v", err)
		}
		if err := p.notifier.DetectionStarted(notify.DetectionEvent{
			ClassName:  best.ClassName,
			Confidence: best.Confidence,
			Count:      p.status.Snapshot().Count,
			Timestamp:  p.clock.Now(),
		}); err != nil {
			monitoring.Logf("pipeline: notify detection: %v", err)
		}
	}

	if detected && p.clock.Since(p.lastPulse) > p.cfg.Cooldown {
		err := p.actuator.Pulse()
		completed := p.clock.Now()
		if err != nil {
			monitoring.Logf("pipeline: pulse failed: %v", err)
		} else {
			// The cooldown is measured from the end of the pulse, so the
			// configured duration is a true quiet gap between actuations.
			p.lastPulse = completed
			p.status.MarkTriggered(completed)
		}

		errMsg := ""
		if err != nil {
			errMsg = err.Error()
		}
		if rerr := p.recorder.RecordTrigger(len(it.detections), err == nil, errMsg); rerr != nil {
			monitoring.Logf("pipeline: record trigger: %v", rerr)
		}
		if nerr := p.notifier.Triggered(notify.TriggerEvent{
			Success:   err == nil,
			Error:     errMsg,
			Timestamp: completed,
		}); nerr != nil {
			monitoring.Logf("pipeline: notify trigger: %v", nerr)
		}
	}

	return statePublish
}

// publish encodes the visualization for the stream and paces the loop.
func (p *Pipeline) publish(it iteration) state {
	p.publishFrame(it.annotated)
	p.clock.Sleep(p.cfg.Interval)
	return stateAcquire
}

func (p *Pipeline) publishFrame(f *vision.Frame) {
	data, err := vision.EncodeJPEG(f, p.cfg.StreamQuality)
	if err != nil {
		monitoring.Logf("pipeline: encode failed: %v", err)
		return
	}
	p.publisher.Publish(framepub.Frame{
		Seq:      f.Seq,
		Captured: f.Timestamp,
		JPEG:     data,
	})
}

// bestDetection returns the highest-confidence detection. Callers ensure
// the slice is non-empty.
func bestDetection(detections []detect.Detection) detect.Detection {
	best := detections[0]
	for _, d := range detections[1:] {
		if d.Confidence > best.Confidence {
			best = d
		}
	}
	return best
}
