package detect

import (
	"context"
	"fmt"
	"image"
	"os"
	"strings"
	"sync"

	"gocv.io/x/gocv"

	"github.com/fenceline/catsentry/internal/vision"
)

// DNNDetector runs a YOLO network in-process through OpenCV's DNN module.
// Output rows are the Darknet layout: center-x, center-y, width, height
// (all normalized), objectness, then one score per class.
type DNNDetector struct {
	mu         sync.Mutex
	net        gocv.Net
	classNames []string
	targets    map[string]bool
	inputSize  int
}

// NewDNNDetector loads the network from weights and config, with class
// names one per line. targetClasses restricts which classes count as
// detections; empty means all.
func NewDNNDetector(weightsPath, configPath, namesPath string, inputSize int, targetClasses []string) (*DNNDetector, error) {
	net := gocv.ReadNet(weightsPath, configPath)
	if net.Empty() {
		return nil, fmt.Errorf("load network from %s and %s", weightsPath, configPath)
	}
	net.SetPreferableBackend(gocv.NetBackendDefault)
	net.SetPreferableTarget(gocv.NetTargetCPU)

	namesData, err := os.ReadFile(namesPath)
	if err != nil {
		net.Close()
		return nil, fmt.Errorf("read class names: %w", err)
	}
	var classNames []string
	for _, line := range strings.Split(string(namesData), "\n") {
		if name := strings.TrimSpace(line); name != "" {
			classNames = append(classNames, name)
		}
	}

	if inputSize <= 0 {
		inputSize = 416
	}

	return &DNNDetector{
		net:        net,
		classNames: classNames,
		targets:    targetSet(targetClasses),
		inputSize:  inputSize,
	}, nil
}

// Detect runs a forward pass and returns detections above the threshold
// plus a copy of the frame with boxes and labels drawn.
func (d *DNNDetector) Detect(ctx context.Context, f *vision.Frame, confidenceThreshold float64) ([]Detection, *vision.Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	// NewMatFromBytes copies, so drawing on mat leaves f untouched.
	mat, err := gocv.NewMatFromBytes(f.Height, f.Width, gocv.MatTypeCV8UC3, f.Data)
	if err != nil {
		return nil, nil, fmt.Errorf("wrap frame: %w", err)
	}
	defer mat.Close()

	blob := gocv.BlobFromImage(mat, 1.0/255.0, image.Pt(d.inputSize, d.inputSize),
		gocv.NewScalar(0, 0, 0, 0), true, false)
	defer blob.Close()

	d.net.SetInput(blob, "")
	output := d.net.Forward("")
	defer output.Close()

	frameW := float32(f.Width)
	frameH := float32(f.Height)

	var detections []Detection
	for i := 0; i < output.Rows(); i++ {
		row := output.RowRange(i, i+1)
		data := row.Clone()
		scores := data.ColRange(5, data.Cols())
		_, maxVal, _, maxLoc := gocv.MinMaxLoc(scores)
		classID := maxLoc.X
		confidence := float64(maxVal)

		if confidence > confidenceThreshold && classID < len(d.classNames) {
			className := d.classNames[classID]
			if matchesTarget(d.targets, className) {
				// Normalized center/size, scaled straight to frame space.
				cx := data.GetFloatAt(0, 0) * frameW
				cy := data.GetFloatAt(0, 1) * frameH
				w := data.GetFloatAt(0, 2) * frameW
				h := data.GetFloatAt(0, 3) * frameH

				detections = append(detections, Detection{
					ClassName:  className,
					Confidence: confidence,
					X1:         int(cx - w/2),
					Y1:         int(cy - h/2),
					X2:         int(cx + w/2),
					Y2:         int(cy + h/2),
				})
			}
		}

		scores.Close()
		data.Close()
		row.Close()
	}

	for _, det := range detections {
		gocv.Rectangle(&mat, det.Box(), vision.Red, 2)
		gocv.PutText(&mat, det.Label(), image.Pt(det.X1, det.Y1-6),
			gocv.FontHersheySimplex, 0.5, vision.Red, 1)
	}

	annotated, err := vision.FrameFromBytes(f.Width, f.Height, mat.ToBytes())
	if err != nil {
		return nil, nil, fmt.Errorf("convert annotated frame: %w", err)
	}
	annotated.Seq = f.Seq
	annotated.Timestamp = f.Timestamp

	return detections, annotated, nil
}

// Close releases the network.
func (d *DNNDetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.net.Close()
}
