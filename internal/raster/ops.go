package raster

import (
	"context"
	"errors"
	"fmt"
	"image"
	"strings"

	"github.com/disintegration/imaging"
)

var errClosed = errors.New("image is closed")

// Kernel selects the resampling filter used when scaling.
type Kernel int

const (
	KernelNearest Kernel = iota
	KernelLinear
	KernelCatmullRom
	KernelMitchell
	KernelLanczos
	KernelBox
)

var kernelNames = map[Kernel]string{
	KernelNearest:    "nearest",
	KernelLinear:     "linear",
	KernelCatmullRom: "catmullrom",
	KernelMitchell:   "mitchell",
	KernelLanczos:    "lanczos",
	KernelBox:        "box",
}

func (k Kernel) String() string {
	if name, ok := kernelNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kernel(%d)", int(k))
}

// ParseKernel maps a config name to a Kernel.
func ParseKernel(name string) (Kernel, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for k, n := range kernelNames {
		if n == name {
			return k, nil
		}
	}
	return KernelLanczos, fmt.Errorf("unknown resampling kernel %q", name)
}

func (k Kernel) filter() imaging.ResampleFilter {
	switch k {
	case KernelNearest:
		return imaging.NearestNeighbor
	case KernelLinear:
		return imaging.Linear
	case KernelCatmullRom:
		return imaging.CatmullRom
	case KernelMitchell:
		return imaging.MitchellNetravali
	case KernelBox:
		return imaging.Box
	default:
		return imaging.Lanczos
	}
}

// Resize scales the whole image to width x height.
func Resize(ctx context.Context, img *Image, width, height int, kernel Kernel) (*image.NRGBA, error) {
	return ResizeRegion(ctx, img, image.Rect(0, 0, img.Width(), img.Height()), width, height, kernel)
}

// ExtractArea copies region out of img without scaling.
func ExtractArea(ctx context.Context, img *Image, region image.Rectangle) (*image.NRGBA, error) {
	return ResizeRegion(ctx, img, region, region.Dx(), region.Dy(), KernelNearest)
}

// ResizeRegion crops region out of img and scales it to width x height.
func ResizeRegion(ctx context.Context, img *Image, region image.Rectangle, width, height int, kernel Kernel) (*image.NRGBA, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	pixels := img.Pixels()
	if pixels == nil {
		return nil, errClosed
	}
	region = region.Intersect(pixels.Rect)
	if region.Empty() || width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid region %v to %dx%d", region, width, height)
	}

	var src image.Image = pixels
	if region != pixels.Rect {
		src = imaging.Crop(pixels, region)
		if err := ctx.Err(); err != nil {
			return nil, err
		}
	}
	if region.Dx() == width && region.Dy() == height {
		return imaging.Clone(src), nil
	}
	return imaging.Resize(src, width, height, kernel.filter()), ctx.Err()
}

// FindTrim returns the bounding box of the pixels that differ from the
// top-left background colour by more than threshold in any channel. The
// result is empty when the image is uniform.
func FindTrim(img *Image, threshold int) image.Rectangle {
	pixels := img.Pixels()
	if pixels == nil || pixels.Rect.Empty() {
		return image.Rectangle{}
	}

	bg := pixels.Pix[0:4]
	minX, minY := pixels.Rect.Dx(), pixels.Rect.Dy()
	maxX, maxY := -1, -1
	for y := 0; y < pixels.Rect.Dy(); y++ {
		row := pixels.Pix[y*pixels.Stride : y*pixels.Stride+pixels.Rect.Dx()*4]
		for x := 0; x < pixels.Rect.Dx(); x++ {
			p := row[x*4 : x*4+4]
			if !differs(p, bg, threshold) {
				continue
			}
			minX = min(minX, x)
			maxX = max(maxX, x)
			minY = min(minY, y)
			maxY = max(maxY, y)
		}
	}
	if maxX < 0 {
		return image.Rectangle{}
	}
	return image.Rect(minX, minY, maxX+1, maxY+1)
}

func differs(p, bg []uint8, threshold int) bool {
	for c := 0; c < 3; c++ {
		d := int(p[c]) - int(bg[c])
		if d < 0 {
			d = -d
		}
		if d > threshold {
			return true
		}
	}
	return false
}
