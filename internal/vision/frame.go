// Package vision holds the in-memory frame representation shared by the
// camera, detector, and pipeline layers, plus the JPEG codec and the
// annotation drawing used for the stream overlay.
//
// Frames are packed BGR24, the native order of the capture stack. Frame
// implements image.Image and draw.Image so the standard library codecs and
// font rendering work on it directly.
package vision

import (
	"fmt"
	"image"
	"image/color"
	"time"
)

// Frame is one video frame. Data holds Width*Height*3 bytes in packed
// blue-green-red order, rows top to bottom.
type Frame struct {
	Seq       uint64
	Timestamp time.Time
	Width     int
	Height    int
	Data      []byte
}

// NewFrame allocates a zeroed frame of the given size.
func NewFrame(width, height int) *Frame {
	return &Frame{
		Width:  width,
		Height: height,
		Data:   make([]byte, width*height*3),
	}
}

// FrameFromBytes wraps an existing BGR24 buffer. The buffer is owned by the
// returned frame; callers must not reuse it.
func FrameFromBytes(width, height int, data []byte) (*Frame, error) {
	if want := width * height * 3; len(data) != want {
		return nil, fmt.Errorf("frame buffer is %d bytes, want %d for %dx%d BGR24", len(data), want, width, height)
	}
	return &Frame{Width: width, Height: height, Data: data}, nil
}

// Clone returns an independent copy sharing no storage with f.
func (f *Frame) Clone() *Frame {
	out := &Frame{
		Seq:       f.Seq,
		Timestamp: f.Timestamp,
		Width:     f.Width,
		Height:    f.Height,
		Data:      make([]byte, len(f.Data)),
	}
	copy(out.Data, f.Data)
	return out
}

// ColorModel implements image.Image.
func (f *Frame) ColorModel() color.Model { return color.RGBAModel }

// Bounds implements image.Image.
func (f *Frame) Bounds() image.Rectangle { return image.Rect(0, 0, f.Width, f.Height) }

// At implements image.Image.
func (f *Frame) At(x, y int) color.Color {
	if !(image.Point{X: x, Y: y}.In(f.Bounds())) {
		return color.RGBA{}
	}
	i := (y*f.Width + x) * 3
	return color.RGBA{R: f.Data[i+2], G: f.Data[i+1], B: f.Data[i], A: 0xff}
}

// Set implements draw.Image.
func (f *Frame) Set(x, y int, c color.Color) {
	if !(image.Point{X: x, Y: y}.In(f.Bounds())) {
		return
	}
	r, g, b, _ := c.RGBA()
	i := (y*f.Width + x) * 3
	f.Data[i] = uint8(b >> 8)
	f.Data[i+1] = uint8(g >> 8)
	f.Data[i+2] = uint8(r >> 8)
}

// SetBGR writes one pixel without the color.Color conversion cost.
func (f *Frame) SetBGR(x, y int, b, g, r uint8) {
	if x < 0 || y < 0 || x >= f.Width || y >= f.Height {
		return
	}
	i := (y*f.Width + x) * 3
	f.Data[i] = b
	f.Data[i+1] = g
	f.Data[i+2] = r
}

// BGRAt reads one pixel. Out-of-bounds reads return black.
func (f *Frame) BGRAt(x, y int) (b, g, r uint8) {
	if x < 0 || y < 0 || x >= f.Width || y >= f.Height {
		return 0, 0, 0
	}
	i := (y*f.Width + x) * 3
	return f.Data[i], f.Data[i+1], f.Data[i+2]
}
