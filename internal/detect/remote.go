package detect

import (
	"bufio"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"net"
	"time"

	"github.com/fenceline/catsentry/internal/vision"
)

// DefaultRemoteTimeout bounds one full request to the detector daemon.
const DefaultRemoteTimeout = 3 * time.Second

// prediction is the wire form returned by the detector daemon: a JSON array
// terminated by a newline, one object per detection, box as [x1,y1,x2,y2].
type prediction struct {
	Object     int       `json:"object"`
	ClassName  string    `json:"class_name"`
	Box        []float64 `json:"box"`
	Confidence float64   `json:"confidence"`
}

// RemoteDetector sends frames to an external detector daemon over TCP:
// a 4-byte big-endian length prefix, the JPEG bytes, then one JSON line
// back. Each inference uses a fresh connection, so a restarted daemon is
// picked up without any reconnect logic here.
type RemoteDetector struct {
	addr    string
	timeout time.Duration
	targets map[string]bool
}

// NewRemoteDetector creates a detector client for addr. A zero timeout
// selects DefaultRemoteTimeout.
func NewRemoteDetector(addr string, timeout time.Duration, targetClasses []string) *RemoteDetector {
	if timeout <= 0 {
		timeout = DefaultRemoteTimeout
	}
	return &RemoteDetector{addr: addr, timeout: timeout, targets: targetSet(targetClasses)}
}

// Detect encodes the frame as JPEG, ships it to the daemon, filters the
// response by confidence threshold and target classes, and draws the
// surviving boxes onto a copy of the frame.
func (d *RemoteDetector) Detect(ctx context.Context, f *vision.Frame, confidenceThreshold float64) ([]Detection, *vision.Frame, error) {
	imgData, err := vision.EncodeJPEG(f, 0)
	if err != nil {
		return nil, nil, fmt.Errorf("encode frame: %w", err)
	}

	dialer := net.Dialer{Timeout: d.timeout}
	conn, err := dialer.DialContext(ctx, "tcp", d.addr)
	if err != nil {
		return nil, nil, fmt.Errorf("dial detector %s: %w", d.addr, err)
	}
	defer conn.Close()

	if err := conn.SetDeadline(time.Now().Add(d.timeout)); err != nil {
		return nil, nil, err
	}

	var sizeBytes [4]byte
	binary.BigEndian.PutUint32(sizeBytes[:], uint32(len(imgData)))
	if _, err := conn.Write(sizeBytes[:]); err != nil {
		return nil, nil, fmt.Errorf("send frame size: %w", err)
	}
	if _, err := conn.Write(imgData); err != nil {
		return nil, nil, fmt.Errorf("send frame: %w", err)
	}

	respData, err := bufio.NewReader(conn).ReadBytes('\n')
	if err != nil {
		return nil, nil, fmt.Errorf("read detector response: %w", err)
	}

	var preds []prediction
	if err := json.Unmarshal(respData, &preds); err != nil {
		return nil, nil, fmt.Errorf("parse detector response: %w", err)
	}

	var detections []Detection
	for _, p := range preds {
		if len(p.Box) != 4 {
			continue
		}
		if p.Confidence < confidenceThreshold {
			continue
		}
		if !matchesTarget(d.targets, p.ClassName) {
			continue
		}
		detections = append(detections, Detection{
			ClassName:  p.ClassName,
			Confidence: p.Confidence,
			X1:         int(p.Box[0]),
			Y1:         int(p.Box[1]),
			X2:         int(p.Box[2]),
			Y2:         int(p.Box[3]),
		})
	}
	return detections, annotate(f, detections), nil
}

// Close is a no-op; connections are per-inference.
func (d *RemoteDetector) Close() error { return nil }
