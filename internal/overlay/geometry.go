package overlay

import "math"

// Point is a position in either window space or page pixel space.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

func (p Point) Add(dx, dy float64) Point {
	return Point{X: p.X + dx, Y: p.Y + dy}
}

func (p Point) Sub(q Point) Point {
	return Point{X: p.X - q.X, Y: p.Y - q.Y}
}

// Clip clamps p into r. A rect with a negative size collapses to its origin.
func (p Point) Clip(r Rect) Point {
	return Point{
		X: clamp(p.X, r.X, r.X+math.Max(r.Width, 0)),
		Y: clamp(p.Y, r.Y, r.Y+math.Max(r.Height, 0)),
	}
}

type Rect struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Bound returns the smallest rect containing all points.
func Bound(points ...Point) Rect {
	if len(points) == 0 {
		return Rect{}
	}
	minX, minY := points[0].X, points[0].Y
	maxX, maxY := minX, minY
	for _, p := range points[1:] {
		minX = math.Min(minX, p.X)
		minY = math.Min(minY, p.Y)
		maxX = math.Max(maxX, p.X)
		maxY = math.Max(maxY, p.Y)
	}
	return Rect{X: minX, Y: minY, Width: maxX - minX, Height: maxY - minY}
}

func (r Rect) Origin() Point { return Point{X: r.X, Y: r.Y} }
func (r Rect) MaxX() float64 { return r.X + r.Width }
func (r Rect) MaxY() float64 { return r.Y + r.Height }

func (r Rect) Contains(p Point) bool {
	return p.X >= r.X && p.X <= r.MaxX() && p.Y >= r.Y && p.Y <= r.MaxY()
}

// Inset shrinks the rect from its far edges, used to keep an object of size w×h inside it.
func (r Rect) Inset(w, h float64) Rect {
	return Rect{X: r.X, Y: r.Y, Width: r.Width - w, Height: r.Height - h}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
