package main

import (
	"bytes"
	"image"
	"image/color"
	"sync/atomic"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/text/v2"
	"github.com/hajimehoshi/ebiten/v2/vector"
	"golang.org/x/image/font/gofont/goregular"

	"github.com/Snd-R/Komelia-sub005/internal/tiling"
)

// Global font source for all text rendering
var globalFontSource *text.GoTextFaceSource

// InitGraphics initializes the global font source for text rendering
func InitGraphics() error {
	s, err := text.NewGoTextFaceSource(bytes.NewReader(goregular.TTF))
	if err != nil {
		return err
	}
	globalFontSource = s
	return nil
}

func newFace(size float64) *text.GoTextFace {
	return &text.GoTextFace{Source: globalFontSource, Size: size}
}

// DrawText draws text with specified position and color
func DrawText(screen *ebiten.Image, textString string, font *text.GoTextFace, x, y float64, textColor color.RGBA) {
	op := &text.DrawOptions{}
	op.GeoM.Translate(x, y)
	op.ColorScale.ScaleWithColor(textColor)
	text.Draw(screen, textString, font, op)
}

// DrawCenteredText draws text centred on (cx, y).
func DrawCenteredText(screen *ebiten.Image, textString string, font *text.GoTextFace, cx, y float64, textColor color.RGBA) {
	w, _ := text.Measure(textString, font, 0)
	DrawText(screen, textString, font, cx-w/2, y, textColor)
}

// DrawFilledRect draws filled rectangles with float64 coordinates
func DrawFilledRect(screen *ebiten.Image, x, y, w, h float64, bgColor color.RGBA) {
	vector.DrawFilledRect(screen, float32(x), float32(y), float32(w), float32(h), bgColor, false)
}

// DrawStrokeRect draws a rectangle outline.
func DrawStrokeRect(screen *ebiten.Image, x, y, w, h, width float64, lineColor color.RGBA) {
	vector.StrokeRect(screen, float32(x), float32(y), float32(w), float32(h), float32(width), lineColor, false)
}

// DrawErrorPanel fills the rectangle with an error notice for a page that
// could not be shown.
func DrawErrorPanel(screen *ebiten.Image, x, y, width, height float64, title, reason string) {
	if width <= 0 || height <= 0 {
		width, height = 400, 300
	}
	DrawFilledRect(screen, x, y, width, height, colorErrorBg)
	DrawStrokeRect(screen, x, y, width, height, 3, colorWhite)
	if globalFontSource == nil {
		return
	}

	errorFont := newFace(20)
	maxChars := max(int(width-20)/10, 4) // roughly 10px per character
	lines := []string{"ERROR", truncate(title, maxChars), truncate("Reason: "+reason, maxChars)}
	for i, line := range lines {
		DrawText(screen, line, errorFont, x+10, y+10+float64(i)*30, colorWhite)
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}

// ebitenSurface is a rendered tile held in GPU memory.
type ebitenSurface struct {
	img    *ebiten.Image
	width  int
	height int
	closed atomic.Bool
}

func (s *ebitenSurface) Width() int     { return s.width }
func (s *ebitenSurface) Height() int    { return s.height }
func (s *ebitenSurface) IsClosed() bool { return s.closed.Load() }

// Image returns the texture, or nil once closed.
func (s *ebitenSurface) Image() *ebiten.Image {
	if s.closed.Load() {
		return nil
	}
	return s.img
}

func (s *ebitenSurface) Close() error {
	if s.closed.CompareAndSwap(false, true) {
		s.img.Deallocate()
	}
	return nil
}

// ebitenSurfaces uploads rendered tiles as Ebiten images. Ebiten queues the
// upload, so it is safe to call from the render workers.
type ebitenSurfaces struct{}

func (ebitenSurfaces) NewSurface(img image.Image) (tiling.Surface, error) {
	b := img.Bounds()
	return &ebitenSurface{
		img:    ebiten.NewImageFromImage(img),
		width:  b.Dx(),
		height: b.Dy(),
	}, nil
}
