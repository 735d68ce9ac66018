// Package viewport tracks how a page is scaled and panned inside the
// reader area.
package viewport

import (
	"math"
	"sync"

	"github.com/Snd-R/Komelia-sub005/internal/geom"
	"github.com/Snd-R/Komelia-sub005/internal/observable"
)

// MaxZoom is the upper zoom limit relative to 100%.
const MaxZoom = 5.0

// overscrollFraction is how far past its edges the target may be panned while
// overscroll is enabled, as a fraction of the area.
const overscrollFraction = 0.1

// Transformation maps target coordinates to the screen. Offset is measured
// from the area centre.
type Transformation struct {
	Offset geom.Offset
	Scale  float64
}

// PointOf returns the untransformed point displayed at transformed.
func (t Transformation) PointOf(transformed geom.Offset) geom.Offset {
	if t.Scale == 0 {
		return geom.Offset{}
	}
	return transformed.Sub(t.Offset).Scale(1 / t.Scale)
}

// OffsetOf returns the offset placing point at transformed under scale.
func OffsetOf(point, transformed geom.Offset, scale float64) geom.Offset {
	return transformed.Sub(point.Scale(scale))
}

type limits struct {
	min float64
	max float64
}

func (l limits) clamp(v float64) float64 {
	return math.Max(l.min, math.Min(l.max, v))
}

// ScreenScale holds the zoom and pan of a target (the page fitted to the area)
// inside the reader area. Zoom 1 ("100%") fills the area along both axes;
// the minimum zoom shows the whole target.
type ScreenScale struct {
	mu         sync.Mutex
	zoom       float64
	zoomLimits limits
	offset     geom.Offset
	offsetX    limits
	offsetY    limits
	area       geom.IntSize
	target     geom.Size
	overscroll bool

	transformation *observable.Value[Transformation]
	areaSize       *observable.Value[geom.IntSize]
}

func NewScreenScale() *ScreenScale {
	return &ScreenScale{
		zoom:           1,
		zoomLimits:     limits{min: 1, max: MaxZoom},
		offsetX:        limits{min: -1, max: 1},
		offsetY:        limits{min: -1, max: 1},
		target:         geom.Size{Width: 1, Height: 1},
		transformation: observable.NewValue(Transformation{Scale: 1}),
		areaSize:       observable.NewValue(geom.IntSize{}),
	}
}

// Transformation is published after every change.
func (s *ScreenScale) Transformation() *observable.Value[Transformation] { return s.transformation }

// AreaSize is the size of the reader area.
func (s *ScreenScale) AreaSize() *observable.Value[geom.IntSize] { return s.areaSize }

func (s *ScreenScale) Zoom() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.zoom
}

func (s *ScreenScale) TargetSize() geom.Size {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.target
}

// ZoomLimits returns the allowed zoom range.
func (s *ScreenScale) ZoomLimits() (float64, float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.zoomLimits.min, s.zoomLimits.max
}

// ScaleFor100PercentZoom is the scale at which the target covers the area.
func (s *ScreenScale) ScaleFor100PercentZoom() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.scaleFor100()
}

func (s *ScreenScale) scaleFor100() float64 {
	return math.Max(
		float64(s.area.Width)/s.target.Width,
		float64(s.area.Height)/s.target.Height,
	)
}

func (s *ScreenScale) scaleForFullVisibility() float64 {
	return math.Min(
		float64(s.area.Width)/s.target.Width,
		float64(s.area.Height)/s.target.Height,
	)
}

func (s *ScreenScale) zoomToScale(zoom float64) float64 {
	return zoom * s.scaleFor100()
}

// SetAreaSize records the reader area size.
func (s *ScreenScale) SetAreaSize(area geom.IntSize) {
	s.mu.Lock()
	s.area = area
	s.mu.Unlock()
	s.areaSize.Set(area)
}

// SetTargetSize sets the fitted page size and optionally the zoom, then
// re-applies the limits.
func (s *ScreenScale) SetTargetSize(target geom.Size, zoom *float64) {
	s.mu.Lock()
	if target == s.target && (zoom == nil || *zoom == s.zoom) {
		s.mu.Unlock()
		return
	}
	s.target = target
	s.updateZoomLimits()
	if zoom != nil {
		s.zoom = *zoom
	}
	t := s.applyLimits()
	s.mu.Unlock()
	s.transformation.Set(t)
}

func (s *ScreenScale) updateZoomLimits() {
	minZoom := s.scaleForFullVisibility() / s.scaleFor100()
	if math.IsNaN(minZoom) || math.IsInf(minZoom, 0) {
		minZoom = 1
	}
	s.zoomLimits = limits{min: minZoom, max: MaxZoom}
}

func offsetLimits(target, area float64, overscroll bool) limits {
	extra := math.Max(0, target/2-area/2)
	if overscroll {
		extra += area * overscrollFraction
	}
	return limits{min: -extra, max: extra}
}

// applyLimits clamps zoom and offset and returns the resulting transformation.
// Callers hold mu and publish the result after unlocking.
func (s *ScreenScale) applyLimits() Transformation {
	s.zoom = s.zoomLimits.clamp(s.zoom)
	scale := s.zoomToScale(s.zoom)
	s.offsetX = offsetLimits(s.target.Width*scale, float64(s.area.Width), s.overscroll)
	s.offsetY = offsetLimits(s.target.Height*scale, float64(s.area.Height), s.overscroll)
	s.offset = geom.Offset{X: s.offsetX.clamp(s.offset.X), Y: s.offsetY.clamp(s.offset.Y)}
	return Transformation{Offset: s.offset, Scale: scale}
}

// AddPan moves the target by pan, expressed in unscaled units.
func (s *ScreenScale) AddPan(pan geom.Offset) {
	s.mu.Lock()
	s.offset = s.offset.Add(pan.Scale(s.zoomToScale(s.zoom)))
	t := s.applyLimits()
	s.mu.Unlock()
	s.transformation.Set(t)
}

// EnableOverscroll lets the target be panned slightly past its edges. It is
// on while a page is shown and off while the reader is stopped.
func (s *ScreenScale) EnableOverscroll(enabled bool) {
	s.mu.Lock()
	if s.overscroll == enabled {
		s.mu.Unlock()
		return
	}
	s.overscroll = enabled
	t := s.applyLimits()
	s.mu.Unlock()
	s.transformation.Set(t)
}

// ScrollTo places the target at offset.
func (s *ScreenScale) ScrollTo(offset geom.Offset) {
	s.mu.Lock()
	s.offset = offset
	t := s.applyLimits()
	s.mu.Unlock()
	s.transformation.Set(t)
}

// SetZoom changes the zoom keeping the point under focus in place. Focus is
// relative to the area centre.
func (s *ScreenScale) SetZoom(zoom float64, focus geom.Offset) {
	s.mu.Lock()
	newZoom := s.zoomLimits.clamp(zoom)
	current := Transformation{Offset: s.offset, Scale: s.zoomToScale(s.zoom)}
	s.offset = OffsetOf(current.PointOf(focus), focus, s.zoomToScale(newZoom))
	s.zoom = newZoom
	t := s.applyLimits()
	s.mu.Unlock()
	s.transformation.Set(t)
}

func (s *ScreenScale) MultiplyZoom(multiplier float64, focus geom.Offset) {
	s.SetZoom(s.Zoom()*multiplier, focus)
}

func (s *ScreenScale) AddZoom(delta float64, focus geom.Offset) {
	s.SetZoom(s.Zoom()+delta, focus)
}

// CanPan reports whether the target can still move in the given direction.
func (s *ScreenScale) CanPan(dx, dy float64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (dx < 0 && s.offset.X > s.offsetX.min) || (dx > 0 && s.offset.X < s.offsetX.max) ||
		(dy < 0 && s.offset.Y > s.offsetY.min) || (dy > 0 && s.offset.Y < s.offsetY.max)
}

// Apply copies the state of other, typically a scale computed off-screen for
// a page that is about to be shown.
func (s *ScreenScale) Apply(other *ScreenScale) {
	other.mu.Lock()
	otherOffset, otherArea, otherTarget, otherZoom := other.offset, other.area, other.target, other.zoom
	other.mu.Unlock()

	s.mu.Lock()
	s.offset = otherOffset
	areaChanged := false
	if otherTarget != s.target || otherZoom != s.zoom {
		areaChanged = s.area != otherArea
		s.area = otherArea
		s.target = otherTarget
		s.updateZoomLimits()
		s.zoom = otherZoom
	}
	t := s.applyLimits()
	area := s.area
	s.mu.Unlock()

	if areaChanged {
		s.areaSize.Set(area)
	}
	s.transformation.Set(t)
}
