// Package geometry provides the point-in-polygon containment test used to
// decide whether a detection falls inside the configured region of interest.
package geometry

import (
	"encoding/json"
	"fmt"
)

// Point is a pixel coordinate in frame space. It marshals to and from the
// two-element JSON array form [x, y] used by the region persistence format
// and the HTTP API.
type Point struct {
	X int
	Y int
}

// Polygon is an ordered sequence of vertices. It is not required to be
// closed; the containment test wraps the last vertex back to the first.
type Polygon []Point

// MarshalJSON renders the point as [x, y].
func (p Point) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]int{p.X, p.Y})
}

// UnmarshalJSON accepts the [x, y] form.
func (p *Point) UnmarshalJSON(data []byte) error {
	var pair []int
	if err := json.Unmarshal(data, &pair); err != nil {
		return fmt.Errorf("point must be a two-element array: %w", err)
	}
	if len(pair) != 2 {
		return fmt.Errorf("point must have exactly 2 coordinates, got %d", len(pair))
	}
	p.X, p.Y = pair[0], pair[1]
	return nil
}

// MarshalJSON renders a nil polygon as [], never null, so an empty region
// always encodes as an empty list.
func (poly Polygon) MarshalJSON() ([]byte, error) {
	if poly == nil {
		return []byte("[]"), nil
	}
	return json.Marshal([]Point(poly))
}

// Clone returns an independent copy of the polygon.
func (poly Polygon) Clone() Polygon {
	if poly == nil {
		return nil
	}
	out := make(Polygon, len(poly))
	copy(out, poly)
	return out
}

// Contains reports whether pt lies inside poly using a horizontal ray-cast.
//
// A polygon with fewer than 3 vertices defines no region, so every point is
// considered inside. Horizontal edges never toggle membership: the strict
// lower bound and inclusive upper bound on the edge's y-range exclude them.
// Points on the right or top boundary count as inside; behavior for
// self-intersecting polygons follows the even-odd rule of the cast.
func Contains(pt Point, poly Polygon) bool {
	if len(poly) < 3 {
		return true
	}

	x, y := float64(pt.X), float64(pt.Y)
	inside := false

	p1x, p1y := float64(poly[0].X), float64(poly[0].Y)
	for i := 1; i <= len(poly); i++ {
		next := poly[i%len(poly)]
		p2x, p2y := float64(next.X), float64(next.Y)

		if y > min(p1y, p2y) && y <= max(p1y, p2y) && x <= max(p1x, p2x) && p1y != p2y {
			xCross := (y-p1y)*(p2x-p1x)/(p2y-p1y) + p1x
			if p1x == p2x || x <= xCross {
				inside = !inside
			}
		}
		p1x, p1y = p2x, p2y
	}

	return inside
}

// Center returns the integer midpoint of the box (x1,y1)-(x2,y2).
func Center(x1, y1, x2, y2 int) Point {
	return Point{X: (x1 + x2) / 2, Y: (y1 + y2) / 2}
}
