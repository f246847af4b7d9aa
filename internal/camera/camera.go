// Package camera acquires raw BGR frames from a video source. Three
// backends are provided: an ffmpeg child process for RTSP cameras and V4L2
// devices, an OpenCV capture for gocv builds, and a synthetic generator for
// development without hardware.
package camera

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/fenceline/catsentry/internal/vision"
)

// Camera produces raw frames. Capture blocks until the next frame is
// available or the context is done; it is called from the single pipeline
// goroutine only.
type Camera interface {
	Capture(ctx context.Context) (*vision.Frame, error)
	Close() error
}

// frameReader assembles fixed-size packed BGR24 buffers from a byte stream
// into frames, stamping sequence numbers and capture times.
type frameReader struct {
	r      io.Reader
	width  int
	height int
	seq    uint64
}

func (fr *frameReader) next() (*vision.Frame, error) {
	buf := make([]byte, fr.width*fr.height*3)
	if _, err := io.ReadFull(fr.r, buf); err != nil {
		return nil, fmt.Errorf("read raw frame: %w", err)
	}

	f, err := vision.FrameFromBytes(fr.width, fr.height, buf)
	if err != nil {
		return nil, err
	}
	fr.seq++
	f.Seq = fr.seq
	f.Timestamp = time.Now()
	return f, nil
}
