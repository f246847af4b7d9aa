package camera

import (
	"context"
	"time"

	"github.com/fenceline/catsentry/internal/vision"
)

// Background and target levels for the synthetic scene, in BGR.
const (
	mockBackground  = 40
	mockTargetGreen = 200
)

// MockCamera synthesizes frames so the full pipeline can run without
// hardware: a green bar sweeps across a dark background, giving the mock
// detector something to find.
type MockCamera struct {
	width  int
	height int
	seq    uint64
}

// NewMockCamera creates a synthetic camera at the given frame size.
func NewMockCamera(width, height int) *MockCamera {
	return &MockCamera{width: width, height: height}
}

// Capture returns the next synthetic frame.
func (c *MockCamera) Capture(ctx context.Context) (*vision.Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f := vision.NewFrame(c.width, c.height)
	for i := range f.Data {
		f.Data[i] = mockBackground
	}

	barWidth := c.width / 16
	if barWidth < 1 {
		barWidth = 1
	}
	x0 := int(c.seq*4) % (c.width - barWidth + 1)

	top := c.height / 4
	bottom := c.height - c.height/4
	for y := top; y < bottom; y++ {
		for x := x0; x < x0+barWidth; x++ {
			f.SetBGR(x, y, mockBackground, mockTargetGreen, mockBackground)
		}
	}

	c.seq++
	f.Seq = c.seq
	f.Timestamp = time.Now()
	return f, nil
}

// Close is a no-op for the synthetic camera.
func (c *MockCamera) Close() error { return nil }
