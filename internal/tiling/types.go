package tiling

import (
	"context"
	"image"
	"time"

	"github.com/Snd-R/Komelia-sub005/internal/geom"
	"github.com/Snd-R/Komelia-sub005/internal/observable"
	"github.com/Snd-R/Komelia-sub005/internal/page"
	"github.com/Snd-R/Komelia-sub005/internal/raster"
)

// UpdateRequest asks the controller to render the page for a viewport.
// VisibleDisplaySize is the visible part of the page in display coordinates,
// that is the coordinate space of the page fitted into MaxDisplaySize at zoom 1.
type UpdateRequest struct {
	VisibleDisplaySize geom.IntRect
	ZoomFactor         float64
	MaxDisplaySize     geom.IntSize
}

// Surface is a GPU or memory resource holding rendered pixels.
type Surface interface {
	Width() int
	Height() int
	Close() error
	IsClosed() bool
}

// SurfaceFactory uploads rendered pixels into a Surface.
type SurfaceFactory interface {
	NewSurface(img image.Image) (Surface, error)
}

// ImageData is a rendered image ready for drawing.
type ImageData struct {
	Width   int
	Height  int
	Surface Surface
}

// Tile is one rendered piece of a page. DisplayRegion is where the tile is
// drawn in display coordinates; SourceRegion is the source pixels it covers.
type Tile struct {
	Size          geom.IntSize
	DisplayRegion geom.Rect
	SourceRegion  image.Rectangle
	Visible       bool
	Surface       Surface
}

// Painter is a snapshot of what to draw for a page. A Painter and its Tiles
// slice are never modified after being published.
type Painter struct {
	Tiles       []Tile
	DisplaySize geom.IntSize
	ScaleFactor float64
	Placeholder bool
}

// Platform performs the pixel work of a render pass.
type Platform interface {
	Resize(ctx context.Context, img *raster.Image, width, height int, kernel raster.Kernel) (ImageData, error)
	Region(ctx context.Context, img *raster.Image, region image.Rectangle, width, height int, kernel raster.Kernel) (ImageData, error)
}

// Processor transforms decoded pages; see processing.Pipeline.
type Processor interface {
	Process(ctx context.Context, id page.ID, img *raster.Image) (*raster.Image, error)
	Changes() *observable.Value[uint64]
}

// RenderSettings are the user settings affecting how a page is rendered.
// Any change triggers a re-render of the last request.
type RenderSettings struct {
	StretchToFit bool
	Upsampling   raster.Kernel
	Downsampling raster.Kernel
}

func DefaultRenderSettings() RenderSettings {
	return RenderSettings{
		StretchToFit: true,
		Upsampling:   raster.KernelCatmullRom,
		Downsampling: raster.KernelLanczos,
	}
}

// Tuning holds the thresholds deciding between a full resize and tiling.
// Pixel counts refer to the target size of the whole page.
type Tuning struct {
	FullResizeMaxPixels int
	Tile1024MaxPixels   int
	Tile512MaxPixels    int
	// LookAhead expands the visible window: left and top are divided by it,
	// right and bottom multiplied.
	LookAhead float64
	// Debounce is the pause after each processed request. Zero selects the
	// default, a negative value disables it.
	Debounce time.Duration
}

func DefaultTuning() Tuning {
	return Tuning{
		FullResizeMaxPixels: 2048 * 2048,
		Tile1024MaxPixels:   4096 * 4096,
		Tile512MaxPixels:    6144 * 6144,
		LookAhead:           1.5,
		Debounce:            100 * time.Millisecond,
	}
}

func (t Tuning) withDefaults() Tuning {
	d := DefaultTuning()
	if t.FullResizeMaxPixels <= 0 {
		t.FullResizeMaxPixels = d.FullResizeMaxPixels
	}
	if t.Tile1024MaxPixels <= 0 {
		t.Tile1024MaxPixels = d.Tile1024MaxPixels
	}
	if t.Tile512MaxPixels <= 0 {
		t.Tile512MaxPixels = d.Tile512MaxPixels
	}
	if t.LookAhead < 1 {
		t.LookAhead = d.LookAhead
	}
	switch {
	case t.Debounce == 0:
		t.Debounce = d.Debounce
	case t.Debounce < 0:
		t.Debounce = 0
	}
	return t
}

// TileSizeFor returns the tile edge for a target pixel count, or 0 when the
// page should be resized in one piece.
func (t Tuning) TileSizeFor(pixels int) int {
	switch {
	case pixels <= t.FullResizeMaxPixels:
		return 0
	case pixels <= t.Tile1024MaxPixels:
		return 1024
	case pixels <= t.Tile512MaxPixels:
		return 512
	default:
		return 256
	}
}

// PassMode describes what the last render pass did.
type PassMode string

const (
	PassFullResize PassMode = "full"
	PassUnchanged  PassMode = "unchanged"
	PassTiled      PassMode = "tiled"
)

// PassStats describes the last render pass.
type PassStats struct {
	Mode       PassMode
	TileSize   int
	Considered int
	Rendered   int
	Reused     int
	Disposed   int
	Duration   time.Duration
}
