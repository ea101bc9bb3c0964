// Package geometry turns pointer drags into normalized page rectangles.
package geometry

import "github.com/golang/geo/r2"

// MinExtent is the smallest width and height, in pixels, of a kept rectangle.
const MinExtent = 5.0

// Rect is an axis-aligned rectangle with a top-left origin.
type Rect struct {
	X      float64
	Y      float64
	Width  float64
	Height float64
}

// Span returns the normalized rectangle covering start and end, whatever the
// drag direction. Degenerate spans are allowed.
func Span(start, end r2.Point) Rect {
	r := r2.RectFromPoints(start, end)
	lo, size := r.Lo(), r.Size()
	return Rect{X: lo.X, Y: lo.Y, Width: size.X, Height: size.Y}
}

// FromDrag returns the rectangle of a drag from start to end, or false when
// either extent is below MinExtent.
func FromDrag(start, end r2.Point) (Rect, bool) {
	return FromDragMin(start, end, MinExtent)
}

// FromDragMin is FromDrag with an explicit threshold.
func FromDragMin(start, end r2.Point, minExtent float64) (Rect, bool) {
	r := Span(start, end)
	if r.Width < minExtent || r.Height < minExtent {
		return Rect{}, false
	}
	return r, true
}

// Contains reports whether p lies inside a width x height surface anchored at the origin.
func Contains(width, height float64, p r2.Point) bool {
	if width <= 0 || height <= 0 {
		return false
	}
	bounds := r2.RectFromPoints(r2.Point{}, r2.Point{X: width, Y: height})
	return bounds.ContainsPoint(p)
}

// Scale multiplies every coordinate of r by factor.
func Scale(r Rect, factor float64) Rect {
	return Rect{X: r.X * factor, Y: r.Y * factor, Width: r.Width * factor, Height: r.Height * factor}
}
