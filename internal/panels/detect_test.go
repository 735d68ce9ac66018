package panels

import (
	"context"
	"errors"
	"image"
	"image/color"
	"image/draw"
	"reflect"
	"testing"

	"github.com/Snd-R/Komelia-sub005/internal/raster"
)

func pageWithPanels(w, h int, panels ...image.Rectangle) *raster.Image {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	for _, p := range panels {
		draw.Draw(img, p, image.NewUniform(color.Black), image.Point{}, draw.Src)
	}
	return raster.FromImage(img)
}

func TestGutterDetector(t *testing.T) {
	grid := []image.Rectangle{
		image.Rect(10, 10, 95, 95),
		image.Rect(105, 10, 190, 95),
		image.Rect(10, 105, 95, 190),
		image.Rect(105, 105, 190, 190),
	}
	tests := []struct {
		name string
		img  *raster.Image
		want []image.Rectangle
	}{
		{
			name: "grid",
			img:  pageWithPanels(200, 200, grid...),
			want: grid,
		},
		{
			name: "row of two",
			img:  pageWithPanels(200, 100, image.Rect(10, 10, 95, 90), image.Rect(105, 10, 190, 90)),
			want: []image.Rectangle{image.Rect(10, 10, 95, 90), image.Rect(105, 10, 190, 90)},
		},
		{
			name: "blank page",
			img:  pageWithPanels(200, 200),
			want: nil,
		},
		{
			name: "splash page",
			img:  pageWithPanels(200, 200, image.Rect(10, 10, 190, 190)),
			want: []image.Rectangle{image.Rect(10, 10, 190, 190)},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := GutterDetector{}.Detect(context.Background(), tt.img)
			if err != nil {
				t.Fatalf("Detect() error = %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Detect() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestGutterDetectorErrors(t *testing.T) {
	t.Run("closed image", func(t *testing.T) {
		img := pageWithPanels(50, 50)
		img.Close()
		_, err := GutterDetector{}.Detect(context.Background(), img)
		var detectionErr *DetectionError
		if !errors.As(err, &detectionErr) {
			t.Errorf("Detect() error = %v, want DetectionError", err)
		}
	})

	t.Run("cancelled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := GutterDetector{}.Detect(ctx, pageWithPanels(50, 50))
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Detect() error = %v, want context.Canceled", err)
		}
	})
}
