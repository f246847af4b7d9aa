package camera

import (
	"context"
	"fmt"
	"image"
	"os"
	"time"

	"gocv.io/x/gocv"

	"github.com/fenceline/catsentry/internal/vision"
)

// CVCamera reads frames through OpenCV. It handles whatever sources the
// local OpenCV build supports (RTSP, V4L2 device indices, files) and
// resizes to the configured frame size when the source disagrees.
type CVCamera struct {
	capture *gocv.VideoCapture
	mat     gocv.Mat
	resized gocv.Mat
	width   int
	height  int
	seq     uint64
}

// NewCVCamera opens the source with OpenCV. A numeric source selects a
// local device index.
func NewCVCamera(source string, width, height int) (*CVCamera, error) {
	// Keep RTSP latency down; harmless for other source types.
	os.Setenv("OPENCV_FFMPEG_CAPTURE_OPTIONS", "rtsp_transport;tcp|buffer_size;65536|stimeout;5000000")

	capture, err := gocv.OpenVideoCapture(source)
	if err != nil {
		return nil, fmt.Errorf("open video source %s: %w", source, err)
	}
	capture.Set(gocv.VideoCaptureBufferSize, 1)

	return &CVCamera{
		capture: capture,
		mat:     gocv.NewMat(),
		resized: gocv.NewMat(),
		width:   width,
		height:  height,
	}, nil
}

// Capture reads and converts the next frame.
func (c *CVCamera) Capture(ctx context.Context) (*vision.Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if ok := c.capture.Read(&c.mat); !ok || c.mat.Empty() {
		return nil, fmt.Errorf("video source returned no frame")
	}

	data := c.mat.ToBytes()
	if c.mat.Cols() != c.width || c.mat.Rows() != c.height {
		gocv.Resize(c.mat, &c.resized, image.Pt(c.width, c.height), 0, 0, gocv.InterpolationLinear)
		data = c.resized.ToBytes()
	}

	f, err := vision.FrameFromBytes(c.width, c.height, data)
	if err != nil {
		return nil, err
	}
	c.seq++
	f.Seq = c.seq
	f.Timestamp = time.Now()
	return f, nil
}

// Close releases the OpenCV handles.
func (c *CVCamera) Close() error {
	if err := c.mat.Close(); err != nil {
		return err
	}
	if err := c.resized.Close(); err != nil {
		return err
	}
	return c.capture.Close()
}
