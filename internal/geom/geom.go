// Package geom holds the small geometry types shared by the renderer and
// the panel navigation code.
package geom

import (
	"image"
	"math"
)

// IntSize is a size in whole pixels.
type IntSize struct {
	Width  int
	Height int
}

// IsZero reports whether the size is unknown or empty.
func (s IntSize) IsZero() bool {
	return s.Width <= 0 || s.Height <= 0
}

// Area returns width*height as a float to avoid overflow on large pages.
func (s IntSize) Area() float64 {
	return float64(s.Width) * float64(s.Height)
}

// Size is a size in fractional pixels.
type Size struct {
	Width  float64
	Height float64
}

func (s IntSize) ToSize() Size {
	return Size{Width: float64(s.Width), Height: float64(s.Height)}
}

// Offset is a 2D translation.
type Offset struct {
	X float64
	Y float64
}

func (o Offset) Add(other Offset) Offset {
	return Offset{X: o.X + other.X, Y: o.Y + other.Y}
}

func (o Offset) Sub(other Offset) Offset {
	return Offset{X: o.X - other.X, Y: o.Y - other.Y}
}

func (o Offset) Scale(f float64) Offset {
	return Offset{X: o.X * f, Y: o.Y * f}
}

// IntRect is an integer rectangle with exclusive right and bottom edges.
type IntRect struct {
	Left   int
	Top    int
	Right  int
	Bottom int
}

func (r IntRect) Width() int  { return r.Right - r.Left }
func (r IntRect) Height() int { return r.Bottom - r.Top }

func (r IntRect) ToRect() Rect {
	return Rect{
		Left:   float64(r.Left),
		Top:    float64(r.Top),
		Right:  float64(r.Right),
		Bottom: float64(r.Bottom),
	}
}

// Rect is a floating point rectangle.
type Rect struct {
	Left   float64
	Top    float64
	Right  float64
	Bottom float64
}

func (r Rect) Width() float64  { return r.Right - r.Left }
func (r Rect) Height() float64 { return r.Bottom - r.Top }

// IsEmpty reports whether the rectangle has no area.
func (r Rect) IsEmpty() bool {
	return r.Left >= r.Right || r.Top >= r.Bottom
}

// Overlaps reports whether r and other share a region of non-zero area.
func (r Rect) Overlaps(other Rect) bool {
	return r.Right > other.Left && other.Right > r.Left &&
		r.Bottom > other.Top && other.Bottom > r.Top
}

// Intersect returns the shared region, which may be empty.
func (r Rect) Intersect(other Rect) Rect {
	return Rect{
		Left:   math.Max(r.Left, other.Left),
		Top:    math.Max(r.Top, other.Top),
		Right:  math.Min(r.Right, other.Right),
		Bottom: math.Min(r.Bottom, other.Bottom),
	}
}

// Scale multiplies every edge by f.
func (r Rect) Scale(f float64) Rect {
	return Rect{Left: r.Left * f, Top: r.Top * f, Right: r.Right * f, Bottom: r.Bottom * f}
}

// FromImageRect converts an image.Rectangle.
func FromImageRect(r image.Rectangle) Rect {
	return Rect{
		Left:   float64(r.Min.X),
		Top:    float64(r.Min.Y),
		Right:  float64(r.Max.X),
		Bottom: float64(r.Max.Y),
	}
}

// ToImageRect rounds the edges to the nearest pixel.
func (r Rect) ToImageRect() image.Rectangle {
	return image.Rect(
		int(math.Round(r.Left)),
		int(math.Round(r.Top)),
		int(math.Round(r.Right)),
		int(math.Round(r.Bottom)),
	)
}

// FitSize returns the largest size with the aspect ratio of src that fits
// inside area. Without allowUpscale the result never exceeds src.
func FitSize(src, area IntSize, allowUpscale bool) IntSize {
	if src.IsZero() || area.IsZero() {
		return IntSize{}
	}
	scale := math.Min(
		float64(area.Width)/float64(src.Width),
		float64(area.Height)/float64(src.Height),
	)
	if !allowUpscale {
		scale = math.Min(1, scale)
	}
	return IntSize{
		Width:  int(math.Round(float64(src.Width) * scale)),
		Height: int(math.Round(float64(src.Height) * scale)),
	}
}
