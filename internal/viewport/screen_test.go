package viewport

import (
	"math"
	"testing"

	"github.com/Snd-R/Komelia-sub005/internal/geom"
)

func approx(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func newScale(area geom.IntSize, target geom.Size, zoom float64) *ScreenScale {
	s := NewScreenScale()
	s.SetAreaSize(area)
	s.SetTargetSize(target, &zoom)
	return s
}

func TestZoomLimits(t *testing.T) {
	// a portrait page fitted into a landscape area
	s := newScale(geom.IntSize{Width: 1000, Height: 500}, geom.Size{Width: 250, Height: 500}, 0)

	minZoom, maxZoom := s.ZoomLimits()
	if !approx(minZoom, 0.25) || maxZoom != MaxZoom {
		t.Errorf("limits = [%v, %v], expected [0.25, %v]", minZoom, maxZoom, MaxZoom)
	}
	if s.Zoom() != minZoom {
		t.Errorf("zoom %v not clamped to %v", s.Zoom(), minZoom)
	}
	if got := s.Transformation().Get().Scale; !approx(got, 1) {
		t.Errorf("scale at minimum zoom = %v, expected 1", got)
	}

	s.SetZoom(100, geom.Offset{})
	if s.Zoom() != MaxZoom {
		t.Errorf("zoom = %v, expected clamp to %v", s.Zoom(), MaxZoom)
	}
}

func TestOffsetLimits(t *testing.T) {
	s := newScale(geom.IntSize{Width: 1000, Height: 500}, geom.Size{Width: 250, Height: 500}, 1)
	// zoom 1 scales the target to 1000x2000
	s.ScrollTo(geom.Offset{X: 50, Y: 5000})
	got := s.Transformation().Get()
	if got.Offset.X != 0 || got.Offset.Y != 750 {
		t.Errorf("offset = %v, expected (0, 750)", got.Offset)
	}
	if !s.CanPan(0, -1) || s.CanPan(0, 1) || s.CanPan(1, 0) {
		t.Error("unexpected pan capabilities at the bottom limit")
	}
}

func TestOverscroll(t *testing.T) {
	s := newScale(geom.IntSize{Width: 1000, Height: 500}, geom.Size{Width: 250, Height: 500}, 1)
	s.EnableOverscroll(true)
	s.ScrollTo(geom.Offset{X: 500, Y: 5000})
	if got := s.Transformation().Get().Offset; got.X != 100 || got.Y != 800 {
		t.Errorf("offset = %v, expected (100, 800)", got)
	}

	s.EnableOverscroll(false)
	if got := s.Transformation().Get().Offset; got.X != 0 || got.Y != 750 {
		t.Errorf("offset = %v, expected (0, 750) once disabled", got)
	}
}

func TestSetZoomKeepsFocusPoint(t *testing.T) {
	s := newScale(geom.IntSize{Width: 1000, Height: 1000}, geom.Size{Width: 1000, Height: 1000}, 2)
	focus := geom.Offset{X: 100, Y: -50}
	before := s.Transformation().Get().PointOf(focus)

	s.SetZoom(3, focus)
	after := s.Transformation().Get().PointOf(focus)
	if !approx(before.X, after.X) || !approx(before.Y, after.Y) {
		t.Errorf("focus point moved from %v to %v", before, after)
	}
}

func TestAddPanUsesScale(t *testing.T) {
	s := newScale(geom.IntSize{Width: 1000, Height: 1000}, geom.Size{Width: 1000, Height: 1000}, 2)
	s.AddPan(geom.Offset{X: 10, Y: -20})
	if got := s.Transformation().Get().Offset; got != (geom.Offset{X: 20, Y: -40}) {
		t.Errorf("offset = %v, expected (20, -40)", got)
	}
}

func TestApply(t *testing.T) {
	live := newScale(geom.IntSize{Width: 800, Height: 600}, geom.Size{Width: 800, Height: 600}, 1)

	computed := NewScreenScale()
	computed.SetAreaSize(geom.IntSize{Width: 800, Height: 600})
	zoom := 2.0
	computed.SetTargetSize(geom.Size{Width: 400, Height: 600}, &zoom)
	computed.ScrollTo(geom.Offset{X: 100, Y: 200})

	live.Apply(computed)
	if live.Zoom() != 2 || live.TargetSize() != (geom.Size{Width: 400, Height: 600}) {
		t.Errorf("apply did not copy zoom/target: %v %v", live.Zoom(), live.TargetSize())
	}
	if live.Transformation().Get() != computed.Transformation().Get() {
		t.Errorf("transformation %v, expected %v", live.Transformation().Get(), computed.Transformation().Get())
	}
}
