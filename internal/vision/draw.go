package vision

import (
	"image"
	"image/color"
	"math"
	"sort"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/fenceline/catsentry/internal/geometry"
)

// Annotation colors, RGBA order.
var (
	Green = color.RGBA{R: 0, G: 255, B: 0, A: 255}
	Red   = color.RGBA{R: 255, G: 0, B: 0, A: 255}
	White = color.RGBA{R: 255, G: 255, B: 255, A: 255}
)

// DrawPolygonOverlay composites the region of interest onto f: a 30%
// green wash over the polygon interior (fill requires at least 3
// vertices) and a 2 px closed outline for any polygon with 2 or more.
// Pixels outside the polygon are untouched.
func DrawPolygonOverlay(f *Frame, poly geometry.Polygon) {
	if len(poly) >= 3 {
		fillPolygonBlend(f, poly)
	}
	if len(poly) >= 2 {
		for i := range poly {
			next := poly[(i+1)%len(poly)]
			drawThickLine(f, poly[i].X, poly[i].Y, next.X, next.Y, Green)
		}
	}
}

// fillPolygonBlend applies out = 0.3*green + 0.7*src to every pixel inside
// the polygon, row by row, using the same edge-crossing rule as
// geometry.Contains so the wash and the filter agree.
func fillPolygonBlend(f *Frame, poly geometry.Polygon) {
	minY, maxY := poly[0].Y, poly[0].Y
	for _, p := range poly[1:] {
		if p.Y < minY {
			minY = p.Y
		}
		if p.Y > maxY {
			maxY = p.Y
		}
	}
	if minY < 0 {
		minY = 0
	}
	if maxY >= f.Height {
		maxY = f.Height - 1
	}

	crossings := make([]float64, 0, 8)
	for y := minY; y <= maxY; y++ {
		crossings = crossings[:0]
		fy := float64(y)
		for i := range poly {
			p1, p2 := poly[i], poly[(i+1)%len(poly)]
			y1, y2 := float64(p1.Y), float64(p2.Y)
			if y1 == y2 || fy <= math.Min(y1, y2) || fy > math.Max(y1, y2) {
				continue
			}
			crossings = append(crossings, (fy-y1)*float64(p2.X-p1.X)/(y2-y1)+float64(p1.X))
		}
		sort.Float64s(crossings)

		for i := 0; i+1 < len(crossings); i += 2 {
			x0 := int(math.Ceil(crossings[i]))
			x1 := int(math.Floor(crossings[i+1]))
			if x0 < 0 {
				x0 = 0
			}
			if x1 >= f.Width {
				x1 = f.Width - 1
			}
			for x := x0; x <= x1; x++ {
				o := (y*f.Width + x) * 3
				f.Data[o] = uint8(int(f.Data[o]) * 7 / 10)
				f.Data[o+1] = uint8((int(f.Data[o+1])*7 + 765) / 10)
				f.Data[o+2] = uint8(int(f.Data[o+2]) * 7 / 10)
			}
		}
	}
}

// DrawBox draws a 2 px rectangle with an optional label above the top-left
// corner. Boxes partially outside the frame are clipped.
func DrawBox(f *Frame, box image.Rectangle, label string, c color.RGBA) {
	drawThickLine(f, box.Min.X, box.Min.Y, box.Max.X, box.Min.Y, c)
	drawThickLine(f, box.Max.X, box.Min.Y, box.Max.X, box.Max.Y, c)
	drawThickLine(f, box.Max.X, box.Max.Y, box.Min.X, box.Max.Y, c)
	drawThickLine(f, box.Min.X, box.Max.Y, box.Min.X, box.Min.Y, c)
	if label != "" {
		DrawLabel(f, label, box.Min.X, box.Min.Y-4, c)
	}
}

// DrawLabel renders small text with its baseline at (x, y).
func DrawLabel(f *Frame, text string, x, y int, c color.RGBA) {
	d := font.Drawer{
		Dst:  f,
		Src:  image.NewUniform(c),
		Face: basicfont.Face7x13,
		Dot:  fixed.P(x, y),
	}
	d.DrawString(text)
}

// drawThickLine is a 2 px Bresenham line. Out-of-bounds pixels are dropped
// by SetBGR.
func drawThickLine(f *Frame, x0, y0, x1, y1 int, c color.RGBA) {
	dx := abs(x1 - x0)
	dy := -abs(y1 - y0)
	sx := 1
	if x0 > x1 {
		sx = -1
	}
	sy := 1
	if y0 > y1 {
		sy = -1
	}
	err := dx + dy

	for {
		f.SetBGR(x0, y0, c.B, c.G, c.R)
		f.SetBGR(x0+1, y0, c.B, c.G, c.R)
		f.SetBGR(x0, y0+1, c.B, c.G, c.R)
		if x0 == x1 && y0 == y1 {
			return
		}
		e2 := 2 * err
		if e2 >= dy {
			err += dy
			x0 += sx
		}
		if e2 <= dx {
			err += dx
			y0 += sy
		}
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
