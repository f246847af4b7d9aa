package detect

import (
	"context"

	"github.com/fenceline/catsentry/internal/vision"
)

// MockDetector finds the synthetic target drawn by the mock camera: any
// contiguous region of strongly green pixels. It gives the dev-mode
// pipeline a real moving detection without a model.
type MockDetector struct {
	className string
}

// NewMockDetector creates a detector that reports targets as the given
// class name.
func NewMockDetector(className string) *MockDetector {
	if className == "" {
		className = "cat"
	}
	return &MockDetector{className: className}
}

// Detect scans for saturated green pixels and returns their bounding box as
// a single high-confidence detection, drawn onto a copy of the frame.
func (d *MockDetector) Detect(ctx context.Context, f *vision.Frame, confidenceThreshold float64) ([]Detection, *vision.Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	minX, minY := f.Width, f.Height
	maxX, maxY := -1, -1

	for y := 0; y < f.Height; y++ {
		for x := 0; x < f.Width; x++ {
			b, g, r := f.BGRAt(x, y)
			if g > 150 && b < 100 && r < 100 {
				if x < minX {
					minX = x
				}
				if y < minY {
					minY = y
				}
				if x > maxX {
					maxX = x
				}
				if y > maxY {
					maxY = y
				}
			}
		}
	}

	if maxX < 0 {
		return nil, f.Clone(), nil
	}

	const confidence = 0.99
	if confidence < confidenceThreshold {
		return nil, f.Clone(), nil
	}

	detections := []Detection{{
		ClassName:  d.className,
		Confidence: confidence,
		X1:         minX,
		Y1:         minY,
		X2:         maxX + 1,
		Y2:         maxY + 1,
	}}
	return detections, annotate(f, detections), nil
}

// Close is a no-op.
func (d *MockDetector) Close() error { return nil }
