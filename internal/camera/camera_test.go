package camera

import (
	"bytes"
	"context"
	"strings"
	"testing"
)

func TestFrameReaderAssemblesFrames(t *testing.T) {
	// Two 2x2 frames of packed BGR24.
	first := []byte{
		1, 2, 3, 4, 5, 6,
		7, 8, 9, 10, 11, 12,
	}
	second := []byte{
		21, 22, 23, 24, 25, 26,
		27, 28, 29, 30, 31, 32,
	}
	stream := append(append([]byte{}, first...), second...)

	fr := &frameReader{r: bytes.NewReader(stream), width: 2, height: 2}

	f1, err := fr.next()
	if err != nil {
		t.Fatalf("first frame: %v", err)
	}
	if f1.Seq != 1 {
		t.Errorf("first frame seq = %d, want 1", f1.Seq)
	}
	if !bytes.Equal(f1.Data, first) {
		t.Errorf("first frame data = %v, want %v", f1.Data, first)
	}
	if f1.Timestamp.IsZero() {
		t.Error("frame timestamp not set")
	}

	f2, err := fr.next()
	if err != nil {
		t.Fatalf("second frame: %v", err)
	}
	if f2.Seq != 2 {
		t.Errorf("second frame seq = %d, want 2", f2.Seq)
	}
	if !bytes.Equal(f2.Data, second) {
		t.Errorf("second frame data = %v, want %v", f2.Data, second)
	}

	if _, err := fr.next(); err == nil {
		t.Error("expected error at end of stream")
	}
}

func TestFrameReaderShortStream(t *testing.T) {
	fr := &frameReader{r: bytes.NewReader(make([]byte, 5)), width: 2, height: 2}
	if _, err := fr.next(); err == nil {
		t.Error("expected error for truncated frame")
	}
}

func TestFFmpegArgsRTSP(t *testing.T) {
	args := ffmpegArgs("rtsp://cam.local/stream", 640, 480)
	joined := strings.Join(args, " ")

	if !strings.HasPrefix(joined, "-rtsp_transport tcp -i rtsp://cam.local/stream") {
		t.Errorf("rtsp args = %q, want tcp transport first", joined)
	}
	assertRawOutput(t, joined)
}

func TestFFmpegArgsV4L2(t *testing.T) {
	args := ffmpegArgs("/dev/video0", 640, 480)
	joined := strings.Join(args, " ")

	if !strings.Contains(joined, "-f v4l2") || !strings.Contains(joined, "-video_size 640x480") {
		t.Errorf("v4l2 args = %q, want v4l2 input at 640x480", joined)
	}
	assertRawOutput(t, joined)
}

func TestFFmpegArgsFile(t *testing.T) {
	args := ffmpegArgs("clips/yard.mp4", 320, 240)
	joined := strings.Join(args, " ")

	if !strings.Contains(joined, "-stream_loop -1") {
		t.Errorf("file args = %q, want looped input", joined)
	}
	if !strings.Contains(joined, "-s 320x240") {
		t.Errorf("file args = %q, want 320x240 output", joined)
	}
	assertRawOutput(t, joined)
}

func assertRawOutput(t *testing.T, joined string) {
	t.Helper()
	for _, want := range []string{"-f rawvideo", "-pix_fmt bgr24", "-an"} {
		if !strings.Contains(joined, want) {
			t.Errorf("args = %q, missing %q", joined, want)
		}
	}
	if !strings.HasSuffix(joined, " -") {
		t.Errorf("args = %q, want stdout output", joined)
	}
}

func TestTailBufferKeepsTail(t *testing.T) {
	b := &tailBuffer{limit: 8}

	if _, err := b.Write([]byte("0123456789abcdef")); err != nil {
		t.Fatal(err)
	}
	if got := b.Tail(); got != "89abcdef" {
		t.Errorf("Tail() = %q, want 89abcdef", got)
	}

	if _, err := b.Write([]byte("XY")); err != nil {
		t.Fatal(err)
	}
	if got := b.Tail(); got != "abcdefXY" {
		t.Errorf("Tail() after second write = %q, want abcdefXY", got)
	}
}

func TestTailBufferTrimsWhitespace(t *testing.T) {
	b := &tailBuffer{limit: 64}
	if _, err := b.Write([]byte("decode error\n")); err != nil {
		t.Fatal(err)
	}
	if got := b.Tail(); got != "decode error" {
		t.Errorf("Tail() = %q, want trimmed text", got)
	}
}

func TestMockCameraFrames(t *testing.T) {
	cam := NewMockCamera(64, 48)
	defer cam.Close()

	f1, err := cam.Capture(context.Background())
	if err != nil {
		t.Fatalf("Capture: %v", err)
	}
	if f1.Width != 64 || f1.Height != 48 {
		t.Fatalf("frame size = %dx%d, want 64x48", f1.Width, f1.Height)
	}
	if f1.Seq != 1 {
		t.Errorf("seq = %d, want 1", f1.Seq)
	}

	// Every pixel is either background or the green target.
	sawTarget := false
	for y := 0; y < f1.Height; y++ {
		for x := 0; x < f1.Width; x++ {
			b, g, r := f1.BGRAt(x, y)
			switch {
			case b == mockBackground && g == mockBackground && r == mockBackground:
			case b == mockBackground && g == mockTargetGreen && r == mockBackground:
				sawTarget = true
			default:
				t.Fatalf("unexpected pixel (%d,%d) = %d,%d,%d", x, y, b, g, r)
			}
		}
	}
	if !sawTarget {
		t.Error("no target bar in synthetic frame")
	}

	f2, err := cam.Capture(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if f2.Seq != 2 {
		t.Errorf("seq = %d, want 2", f2.Seq)
	}
	if bytes.Equal(f1.Data, f2.Data) {
		t.Error("target bar did not move between frames")
	}
}

func TestMockCameraCanceledContext(t *testing.T) {
	cam := NewMockCamera(64, 48)
	defer cam.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := cam.Capture(ctx); err == nil {
		t.Error("expected an error from a canceled context")
	}
}
