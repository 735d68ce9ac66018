package processing

import (
	"context"
	"errors"
	"image"
	"image/color"
	"testing"

	"github.com/Snd-R/Komelia-sub005/internal/page"
	"github.com/Snd-R/Komelia-sub005/internal/raster"
)

type invertStep struct{ calls int }

func (s *invertStep) Name() string { return "invert" }

func (s *invertStep) Process(_ context.Context, _ page.ID, img *raster.Image) (*raster.Image, error) {
	s.calls++
	src := img.Pixels()
	out := image.NewNRGBA(src.Rect)
	for i := range src.Pix {
		if i%4 == 3 {
			out.Pix[i] = src.Pix[i]
			continue
		}
		out.Pix[i] = 255 - src.Pix[i]
	}
	return raster.FromImage(out), nil
}

type failingStep struct{}

func (failingStep) Name() string { return "failing" }

func (failingStep) Process(context.Context, page.ID, *raster.Image) (*raster.Image, error) {
	return nil, errors.New("boom")
}

func grayPage(v uint8) *raster.Image {
	img := image.NewNRGBA(image.Rect(0, 0, 8, 8))
	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: v, G: v, B: v, A: 255})
		}
	}
	return raster.FromImage(img)
}

func TestPipelineProcess(t *testing.T) {
	ctx := context.Background()
	id := page.ID{BookID: "b", PageNumber: 1}

	t.Run("no steps returns input", func(t *testing.T) {
		in := grayPage(10)
		out, err := NewPipeline(nil).Process(ctx, id, in)
		if err != nil || out != in {
			t.Errorf("Process() = %p, %v; expected input back", out, err)
		}
	})

	t.Run("intermediate images closed", func(t *testing.T) {
		first, second := &invertStep{}, &invertStep{}
		in := grayPage(10)
		out, err := NewPipeline(nil, first, second).Process(ctx, id, in)
		if err != nil {
			t.Fatal(err)
		}
		if in.IsClosed() {
			t.Error("pipeline closed its input")
		}
		if out.Pixels().Pix[0] != 10 {
			t.Errorf("double invert = %d, expected 10", out.Pixels().Pix[0])
		}
		if first.calls != 1 || second.calls != 1 {
			t.Errorf("step calls = %d, %d", first.calls, second.calls)
		}
	})

	t.Run("step failure wrapped", func(t *testing.T) {
		_, err := NewPipeline(nil, &invertStep{}, failingStep{}).Process(ctx, id, grayPage(1))
		if err == nil {
			t.Fatal("expected error")
		}
	})
}

func TestColorCorrectionNotifiesPipeline(t *testing.T) {
	cc := NewColorCorrection(Correction{})
	p := NewPipeline(nil, cc)
	cc.Attach(p)

	in := grayPage(100)
	out, err := p.Process(context.Background(), page.ID{}, in)
	if err != nil || out != in {
		t.Fatalf("identity correction should be a no-op, got %p, %v", out, err)
	}

	cc.Set(Correction{Brightness: 20})
	if got := p.Changes().Get(); got != 1 {
		t.Errorf("generation = %d, expected 1", got)
	}
	cc.Set(Correction{Brightness: 20})
	if got := p.Changes().Get(); got != 1 {
		t.Errorf("unchanged Set bumped generation to %d", got)
	}

	out, err = p.Process(context.Background(), page.ID{}, in)
	if err != nil {
		t.Fatal(err)
	}
	if out.Pixels().Pix[0] <= 100 {
		t.Errorf("brightness not applied: %d", out.Pixels().Pix[0])
	}
}
