package tiling

import (
	"context"
	"fmt"
	"image"
	"os"
	"sync/atomic"

	"github.com/Snd-R/Komelia-sub005/internal/raster"
)

// Source provides the encoded bytes of a page.
type Source interface {
	Read(ctx context.Context) ([]byte, error)
}

// MemorySource is a page already held in memory.
type MemorySource struct {
	Data []byte
}

func (s MemorySource) Read(context.Context) ([]byte, error) {
	return s.Data, nil
}

// FileSource reads a page from disk.
type FileSource struct {
	Path string
}

func (s FileSource) Read(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.Path)
	if err != nil {
		return nil, fmt.Errorf("read page %s: %w", s.Path, err)
	}
	return data, nil
}

// ImagingPlatform renders with the raster package and uploads the result
// through a SurfaceFactory.
type ImagingPlatform struct {
	Surfaces SurfaceFactory
}

func (p ImagingPlatform) Resize(ctx context.Context, img *raster.Image, width, height int, kernel raster.Kernel) (ImageData, error) {
	return p.Region(ctx, img, image.Rect(0, 0, img.Width(), img.Height()), width, height, kernel)
}

func (p ImagingPlatform) Region(ctx context.Context, img *raster.Image, region image.Rectangle, width, height int, kernel raster.Kernel) (ImageData, error) {
	pixels, err := raster.ResizeRegion(ctx, img, region, width, height, kernel)
	if err != nil {
		return ImageData{}, err
	}
	surface, err := p.Surfaces.NewSurface(pixels)
	if err != nil {
		return ImageData{}, fmt.Errorf("upload %dx%d surface: %w", width, height, err)
	}
	return ImageData{Width: surface.Width(), Height: surface.Height(), Surface: surface}, nil
}

// MemorySurface keeps rendered pixels in main memory.
type MemorySurface struct {
	pixels image.Image
	closed atomic.Bool
}

func (s *MemorySurface) Width() int     { return s.pixels.Bounds().Dx() }
func (s *MemorySurface) Height() int    { return s.pixels.Bounds().Dy() }
func (s *MemorySurface) IsClosed() bool { return s.closed.Load() }

// Image returns the pixels, or nil once closed.
func (s *MemorySurface) Image() image.Image {
	if s.closed.Load() {
		return nil
	}
	return s.pixels
}

func (s *MemorySurface) Close() error {
	s.closed.Store(true)
	return nil
}

// MemorySurfaces creates MemorySurfaces.
type MemorySurfaces struct{}

func (MemorySurfaces) NewSurface(img image.Image) (Surface, error) {
	return &MemorySurface{pixels: img}, nil
}
