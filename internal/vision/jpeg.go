package vision

import (
	"bytes"
	"fmt"
	"image/draw"
	"image/jpeg"
)

// EncodeJPEG compresses the frame at the given quality (1-100). A quality
// of 0 or less selects the codec default.
func EncodeJPEG(f *Frame, quality int) ([]byte, error) {
	var opts *jpeg.Options
	if quality > 0 {
		opts = &jpeg.Options{Quality: quality}
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, f, opts); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}

// DecodeJPEG decompresses data into a fresh frame.
func DecodeJPEG(data []byte) (*Frame, error) {
	img, err := jpeg.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode jpeg: %w", err)
	}
	b := img.Bounds()
	f := NewFrame(b.Dx(), b.Dy())
	draw.Draw(f, f.Bounds(), img, b.Min, draw.Src)
	return f, nil
}
