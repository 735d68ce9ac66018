package raster

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"testing"
)

func solid(w, h int, c color.NRGBA) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, c)
		}
	}
	return img
}

func TestStdDecoder(t *testing.T) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, solid(40, 30, color.NRGBA{R: 200, A: 255})); err != nil {
		t.Fatal(err)
	}

	img, err := StdDecoder{}.Decode(context.Background(), buf.Bytes())
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if img.Width() != 40 || img.Height() != 30 {
		t.Errorf("decoded size = %dx%d, expected 40x30", img.Width(), img.Height())
	}

	_, err = StdDecoder{}.Decode(context.Background(), []byte("not an image"))
	if !errors.Is(err, ErrDecode) {
		t.Errorf("Decode(garbage) error = %v, expected ErrDecode", err)
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	img := FromImage(solid(4, 4, color.NRGBA{A: 255}))
	if err := img.Close(); err != nil {
		t.Fatal(err)
	}
	if err := img.Close(); err != nil {
		t.Fatal(err)
	}
	if !img.IsClosed() || img.Pixels() != nil {
		t.Error("closed image still exposes pixels")
	}
	if _, err := Resize(context.Background(), img, 2, 2, KernelLinear); err == nil {
		t.Error("Resize on closed image should fail")
	}
}

func TestResizeRegion(t *testing.T) {
	img := FromImage(solid(100, 80, color.NRGBA{G: 255, A: 255}))
	ctx := context.Background()

	tests := []struct {
		name   string
		region image.Rectangle
		w, h   int
	}{
		{"full downscale", image.Rect(0, 0, 100, 80), 50, 40},
		{"tile upscale", image.Rect(10, 10, 30, 20), 40, 20},
		{"same size copy", image.Rect(0, 0, 10, 10), 10, 10},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := ResizeRegion(ctx, img, tt.region, tt.w, tt.h, KernelLanczos)
			if err != nil {
				t.Fatalf("ResizeRegion() error = %v", err)
			}
			if out.Rect.Dx() != tt.w || out.Rect.Dy() != tt.h {
				t.Errorf("size = %v, expected %dx%d", out.Rect, tt.w, tt.h)
			}
		})
	}

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	if _, err := Resize(cancelled, img, 10, 10, KernelLinear); !errors.Is(err, context.Canceled) {
		t.Errorf("Resize() with cancelled context error = %v", err)
	}
}

func TestFindTrim(t *testing.T) {
	page := solid(100, 100, color.NRGBA{R: 255, G: 255, B: 255, A: 255})
	for y := 20; y < 60; y++ {
		for x := 30; x < 70; x++ {
			page.SetNRGBA(x, y, color.NRGBA{A: 255})
		}
	}
	// faint noise under the threshold
	page.SetNRGBA(5, 5, color.NRGBA{R: 240, G: 240, B: 240, A: 255})

	got := FindTrim(FromImage(page), 50)
	if expected := image.Rect(30, 20, 70, 60); got != expected {
		t.Errorf("FindTrim() = %v, expected %v", got, expected)
	}

	if got := FindTrim(FromImage(solid(10, 10, color.NRGBA{A: 255})), 50); !got.Empty() {
		t.Errorf("FindTrim(uniform) = %v, expected empty", got)
	}
}

func TestParseKernel(t *testing.T) {
	for k, name := range kernelNames {
		got, err := ParseKernel(name)
		if err != nil || got != k {
			t.Errorf("ParseKernel(%q) = %v, %v", name, got, err)
		}
	}
	if _, err := ParseKernel("bicubic-ish"); err == nil {
		t.Error("expected error for unknown kernel")
	}
}
