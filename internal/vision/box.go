// Package vision redacts regions of images: face detection, normalised
// bounding boxes, and pixelation.
package vision

import (
	"image"
	"math"
)

// BoundingBox is a rectangle in normalised image coordinates: X and Y are
// the top-left corner and W and H the size, all fractions of the image.
type BoundingBox struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W float64 `json:"w"`
	H float64 `json:"h"`
}

// Margin grows a box: Left and Top shift the corner, Width and Height are
// added to the size. All values are fractions of the image.
type Margin struct {
	Left   float64
	Top    float64
	Width  float64
	Height float64
}

// FaceMargin widens detected faces to cover hair and chin.
var FaceMargin = Margin{Left: 0.1, Top: 0.15, Width: 0.2, Height: 0.3}

// Clamp intersects the box with the unit square. A box wholly outside, or
// with a non-finite coordinate, becomes empty. Clamping a negative origin
// also shrinks the width: only the part of the box inside the image is
// kept, the width is not carried over from the origin.
func (b BoundingBox) Clamp() BoundingBox {
	for _, v := range []float64{b.X, b.Y, b.W, b.H} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return BoundingBox{}
		}
	}
	x0, y0 := max(b.X, 0), max(b.Y, 0)
	x1, y1 := min(b.X+b.W, 1), min(b.Y+b.H, 1)
	if x1 <= x0 || y1 <= y0 {
		return BoundingBox{X: min(x0, 1), Y: min(y0, 1)}
	}
	return BoundingBox{X: x0, Y: y0, W: x1 - x0, H: y1 - y0}
}

// Empty reports whether the box covers no area.
func (b BoundingBox) Empty() bool { return b.W <= 0 || b.H <= 0 }

// Expand grows the box by m and clamps it to the image.
func (b BoundingBox) Expand(m Margin) BoundingBox {
	return BoundingBox{
		X: b.X - m.Left,
		Y: b.Y - m.Top,
		W: b.W + m.Width,
		H: b.H + m.Height,
	}.Clamp()
}

// Rect maps the box onto pixel bounds, rounding outwards so partially
// covered pixels are included.
func (b BoundingBox) Rect(bounds image.Rectangle) image.Rectangle {
	c := b.Clamp()
	if c.Empty() {
		return image.Rectangle{}
	}
	w, h := float64(bounds.Dx()), float64(bounds.Dy())
	r := image.Rect(
		bounds.Min.X+int(math.Floor(c.X*w)),
		bounds.Min.Y+int(math.Floor(c.Y*h)),
		bounds.Min.X+int(math.Ceil((c.X+c.W)*w)),
		bounds.Min.Y+int(math.Ceil((c.Y+c.H)*h)),
	)
	return r.Intersect(bounds)
}

// IoU returns the intersection-over-union of two boxes.
func (b BoundingBox) IoU(o BoundingBox) float64 {
	ix := min(b.X+b.W, o.X+o.W) - max(b.X, o.X)
	iy := min(b.Y+b.H, o.Y+o.H) - max(b.Y, o.Y)
	if ix <= 0 || iy <= 0 {
		return 0
	}
	inter := ix * iy
	union := b.W*b.H + o.W*o.H - inter
	if union <= 0 {
		return 0
	}
	return inter / union
}
