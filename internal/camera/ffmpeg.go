package camera

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"sync"

	"github.com/fenceline/catsentry/internal/vision"
)

const stderrTailSize = 4096

// FFmpegCamera decodes a video source through an ffmpeg child process
// emitting raw bgr24 frames on stdout. RTSP URLs are pulled over TCP,
// /dev/video* paths are opened as V4L2 devices, anything else is treated as
// a video file and looped.
type FFmpegCamera struct {
	source string
	reader frameReader
	stderr *tailBuffer

	mu     sync.Mutex
	cmd    *exec.Cmd
	closed bool
}

// NewFFmpegCamera starts ffmpeg against the source, scaled to width x height.
func NewFFmpegCamera(source string, width, height int) (*FFmpegCamera, error) {
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		return nil, fmt.Errorf("ffmpeg binary not found: %w", err)
	}

	stderr := &tailBuffer{limit: stderrTailSize}
	cmd := exec.Command("ffmpeg", ffmpegArgs(source, width, height)...)
	cmd.Stderr = stderr

	pipe, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("ffmpeg stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start ffmpeg: %w", err)
	}

	return &FFmpegCamera{
		source: source,
		reader: frameReader{r: pipe, width: width, height: height},
		stderr: stderr,
		cmd:    cmd,
	}, nil
}

// ffmpegArgs builds the ffmpeg command line for a source. Output is always
// raw bgr24 at the requested size with audio dropped.
func ffmpegArgs(source string, width, height int) []string {
	size := fmt.Sprintf("%dx%d", width, height)

	var args []string
	switch {
	case strings.HasPrefix(source, "rtsp://"):
		args = []string{"-rtsp_transport", "tcp", "-i", source}
	case strings.HasPrefix(source, "/dev/video"):
		args = []string{"-f", "v4l2", "-framerate", "30", "-video_size", size, "-i", source}
	default:
		// Video file input, looped forever so the pipeline keeps running.
		args = []string{"-re", "-stream_loop", "-1", "-i", source}
	}

	return append(args,
		"-loglevel", "error",
		"-an",
		"-f", "rawvideo",
		"-pix_fmt", "bgr24",
		"-s", size,
		"-",
	)
}

// Capture returns the next decoded frame. Errors include the tail of
// ffmpeg's stderr, which is where decode problems actually get explained.
func (c *FFmpegCamera) Capture(ctx context.Context) (*vision.Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f, err := c.reader.next()
	if err != nil {
		if tail := c.stderr.Tail(); tail != "" {
			return nil, fmt.Errorf("%s: %w (ffmpeg: %s)", c.source, err, tail)
		}
		return nil, fmt.Errorf("%s: %w", c.source, err)
	}
	return f, nil
}

// Close kills the ffmpeg process and reaps it. Safe to call more than once.
func (c *FFmpegCamera) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true

	if c.cmd.Process != nil {
		_ = c.cmd.Process.Kill()
	}
	// Wait returns an error for the kill; that is expected, not a failure.
	_ = c.cmd.Wait()
	return nil
}

// tailBuffer keeps the last limit bytes written to it.
type tailBuffer struct {
	mu    sync.Mutex
	limit int
	buf   []byte
}

func (b *tailBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf = append(b.buf, p...)
	if len(b.buf) > b.limit {
		b.buf = b.buf[len(b.buf)-b.limit:]
	}
	return len(p), nil
}

// Tail returns the retained stderr output, trimmed.
func (b *tailBuffer) Tail() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return strings.TrimSpace(string(b.buf))
}
