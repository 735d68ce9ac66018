// Package processing applies user-configurable transforms to decoded pages
// before they are rendered.
package processing

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Snd-R/Komelia-sub005/internal/observable"
	"github.com/Snd-R/Komelia-sub005/internal/page"
	"github.com/Snd-R/Komelia-sub005/internal/raster"
)

// Step transforms a decoded page. Returning the input image means the step
// did nothing.
type Step interface {
	Name() string
	Process(ctx context.Context, id page.ID, img *raster.Image) (*raster.Image, error)
}

// Pipeline runs its steps in order. Its generation counter changes whenever a
// step's parameters change so that renderers can reprocess.
type Pipeline struct {
	steps      []Step
	generation *observable.Value[uint64]
	logger     *slog.Logger
}

func NewPipeline(logger *slog.Logger, steps ...Step) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		steps:      steps,
		generation: observable.NewValue[uint64](0),
		logger:     logger.With("component", "pipeline"),
	}
}

// Changes exposes the generation counter.
func (p *Pipeline) Changes() *observable.Value[uint64] {
	return p.generation
}

// NotifyChanged bumps the generation counter.
func (p *Pipeline) NotifyChanged() {
	p.generation.Update(func(g uint64) uint64 { return g + 1 })
}

// Process runs every step over img. The input is never closed; intermediate
// images replaced by a later step are.
func (p *Pipeline) Process(ctx context.Context, id page.ID, img *raster.Image) (*raster.Image, error) {
	current := img
	for _, step := range p.steps {
		next, err := step.Process(ctx, id, current)
		if err != nil {
			if current != img {
				current.Close()
			}
			return nil, fmt.Errorf("processing step %s: %w", step.Name(), err)
		}
		if next != current && current != img {
			current.Close()
		}
		current = next
	}
	if current != img {
		p.logger.Debug("page processed", "page", id)
	}
	return current, nil
}
