package processing

import (
	"context"
	"sync"

	"github.com/disintegration/imaging"

	"github.com/Snd-R/Komelia-sub005/internal/page"
	"github.com/Snd-R/Komelia-sub005/internal/raster"
)

// Correction holds colour adjustments. Brightness, Contrast and Saturation are
// percentages in [-100, 100]; Gamma is a multiplier where 1 is unchanged.
type Correction struct {
	Brightness float64
	Contrast   float64
	Saturation float64
	Gamma      float64
}

// IsIdentity reports whether applying c would leave pixels unchanged.
func (c Correction) IsIdentity() bool {
	return c.Brightness == 0 && c.Contrast == 0 && c.Saturation == 0 && (c.Gamma == 0 || c.Gamma == 1)
}

// ColorCorrection is a pipeline step applying a Correction to every page.
type ColorCorrection struct {
	mu       sync.RWMutex
	current  Correction
	pipeline *Pipeline
}

func NewColorCorrection(initial Correction) *ColorCorrection {
	return &ColorCorrection{current: initial}
}

// Attach registers the pipeline notified by Set.
func (c *ColorCorrection) Attach(p *Pipeline) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pipeline = p
}

func (c *ColorCorrection) Get() Correction {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.current
}

// Set replaces the correction, notifying the pipeline when it changed.
func (c *ColorCorrection) Set(correction Correction) {
	c.mu.Lock()
	changed := c.current != correction
	c.current = correction
	p := c.pipeline
	c.mu.Unlock()

	if changed && p != nil {
		p.NotifyChanged()
	}
}

func (c *ColorCorrection) Name() string { return "color-correction" }

func (c *ColorCorrection) Process(ctx context.Context, _ page.ID, img *raster.Image) (*raster.Image, error) {
	correction := c.Get()
	if correction.IsIdentity() {
		return img, nil
	}
	pixels := img.Pixels()
	if pixels == nil {
		return img, nil
	}

	out := pixels
	if correction.Brightness != 0 {
		out = imaging.AdjustBrightness(out, correction.Brightness)
	}
	if correction.Contrast != 0 {
		out = imaging.AdjustContrast(out, correction.Contrast)
	}
	if correction.Saturation != 0 {
		out = imaging.AdjustSaturation(out, correction.Saturation)
	}
	if correction.Gamma != 0 && correction.Gamma != 1 {
		out = imaging.AdjustGamma(out, correction.Gamma)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return raster.FromImage(out), nil
}
