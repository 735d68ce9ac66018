// Package raster decodes page images and performs the pixel operations the
// renderer needs: resize, region extraction and border trimming.
package raster

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"sync"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// ErrDecode is returned when page bytes cannot be decoded.
var ErrDecode = errors.New("image decode failed")

// Image is a decoded page held in memory. Close releases the pixels; it is
// safe to call more than once.
type Image struct {
	mu     sync.RWMutex
	pixels *image.NRGBA
	width  int
	height int
	closed bool
}

// FromImage wraps img, converting it to NRGBA when needed.
func FromImage(img image.Image) *Image {
	nrgba, ok := img.(*image.NRGBA)
	if !ok || nrgba.Rect.Min != (image.Point{}) {
		nrgba = imaging.Clone(img)
	}
	return &Image{
		pixels: nrgba,
		width:  nrgba.Rect.Dx(),
		height: nrgba.Rect.Dy(),
	}
}

func (i *Image) Width() int  { return i.width }
func (i *Image) Height() int { return i.height }

// Pixels returns the image data, or nil after Close.
func (i *Image) Pixels() *image.NRGBA {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.pixels
}

func (i *Image) IsClosed() bool {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.closed
}

func (i *Image) Close() error {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.closed = true
	i.pixels = nil
	return nil
}

// Decoder turns encoded page bytes into an Image.
type Decoder interface {
	Decode(ctx context.Context, data []byte) (*Image, error)
}

// StdDecoder decodes every format registered with the image package: jpeg,
// png, gif, bmp, tiff and webp.
type StdDecoder struct{}

func (StdDecoder) Decode(ctx context.Context, data []byte) (*Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecode, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	decoded := FromImage(img)
	if decoded.width == 0 || decoded.height == 0 {
		return nil, fmt.Errorf("%w: empty %s image", ErrDecode, format)
	}
	return decoded, nil
}
