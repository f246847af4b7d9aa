// Package detect runs object detection on frames. The pipeline treats a
// Detector as an opaque function from frame to bounding boxes plus an
// annotated copy of the frame; three implementations are provided: an
// in-process DNN via OpenCV, a remote detector daemon spoken to over TCP,
// and a mock that finds the synthetic target drawn by the mock camera.
package detect

import (
	"context"
	"fmt"
	"image"

	"github.com/fenceline/catsentry/internal/geometry"
	"github.com/fenceline/catsentry/internal/vision"
)

// Detection is one candidate object in a frame.
type Detection struct {
	ClassName  string
	Confidence float64
	X1, Y1     int
	X2, Y2     int
}

// Center returns the midpoint of the bounding box, the point used for
// region containment.
func (d Detection) Center() geometry.Point {
	return geometry.Center(d.X1, d.Y1, d.X2, d.Y2)
}

// Box returns the bounding box as an image.Rectangle.
func (d Detection) Box() image.Rectangle {
	return image.Rect(d.X1, d.Y1, d.X2, d.Y2)
}

// Label returns the annotation text for the box.
func (d Detection) Label() string {
	return fmt.Sprintf("%s %.2f", d.ClassName, d.Confidence)
}

// Detector produces detections for a frame, along with a copy of the frame
// annotated with the detector's own boxes and labels. Implementations apply
// the confidence threshold themselves; returned detections all meet it. The
// input frame is never modified.
type Detector interface {
	Detect(ctx context.Context, f *vision.Frame, confidenceThreshold float64) ([]Detection, *vision.Frame, error)
	Close() error
}

// annotate draws every detection onto a copy of the frame. Boxes are red so
// they stay readable over the green region overlay composited later.
func annotate(f *vision.Frame, detections []Detection) *vision.Frame {
	out := f.Clone()
	for _, d := range detections {
		vision.DrawBox(out, d.Box(), d.Label(), vision.Red)
	}
	return out
}

// matchesTarget reports whether a class name passes the target filter. An
// empty filter accepts everything.
func matchesTarget(targets map[string]bool, className string) bool {
	if len(targets) == 0 {
		return true
	}
	return targets[className]
}

// targetSet builds the filter set from a class list.
func targetSet(classes []string) map[string]bool {
	if len(classes) == 0 {
		return nil
	}
	set := make(map[string]bool, len(classes))
	for _, c := range classes {
		set[c] = true
	}
	return set
}
