package panels

import (
	"context"
	"errors"
	"fmt"
	"image"

	"github.com/Snd-R/Komelia-sub005/internal/raster"
)

// Detector finds panel bounding boxes on a decoded page.
type Detector interface {
	Detect(ctx context.Context, img *raster.Image) ([]image.Rectangle, error)
}

// DetectionError reports a failure of the detection runtime itself, as
// opposed to a page that simply has no panels. Readers fall back to whole-page
// navigation when they see it.
type DetectionError struct {
	Err error
}

func (e *DetectionError) Error() string {
	return fmt.Sprintf("panel detection failed: %v", e.Err)
}

func (e *DetectionError) Unwrap() error { return e.Err }

const (
	defaultGutterTolerance = 24
	defaultMinPanelDiv     = 11
	maxGutterDepth         = 8
)

// GutterDetector splits a page along background-coloured gutters: first into
// rows, then each row into columns, recursively. The background colour is
// taken from the top-left pixel.
type GutterDetector struct {
	// Tolerance is the maximum luminance difference from the background for a
	// pixel to count as gutter.
	Tolerance int
	// MinPanelDiv sets the smallest panel edge as a fraction of the page
	// height (1/MinPanelDiv).
	MinPanelDiv int
}

type lumaPage struct {
	width  int
	height int
	gutter []bool
}

func (p *lumaPage) rowIsGutter(y, x0, x1 int) bool {
	row := p.gutter[y*p.width : (y+1)*p.width]
	for x := x0; x < x1; x++ {
		if !row[x] {
			return false
		}
	}
	return true
}

func (p *lumaPage) colIsGutter(x, y0, y1 int) bool {
	for y := y0; y < y1; y++ {
		if !p.gutter[y*p.width+x] {
			return false
		}
	}
	return true
}

func (d GutterDetector) Detect(ctx context.Context, img *raster.Image) ([]image.Rectangle, error) {
	pixels := img.Pixels()
	if pixels == nil {
		return nil, &DetectionError{Err: errors.New("page image is closed")}
	}
	if pixels.Rect.Empty() {
		return nil, nil
	}
	tolerance := d.Tolerance
	if tolerance <= 0 {
		tolerance = defaultGutterTolerance
	}
	div := d.MinPanelDiv
	if div <= 0 {
		div = defaultMinPanelDiv
	}

	page := &lumaPage{
		width:  pixels.Rect.Dx(),
		height: pixels.Rect.Dy(),
		gutter: make([]bool, pixels.Rect.Dx()*pixels.Rect.Dy()),
	}
	bg := luma(pixels.Pix[0:4])
	for y := 0; y < page.height; y++ {
		for x := 0; x < page.width; x++ {
			i := y*pixels.Stride + x*4
			diff := luma(pixels.Pix[i:i+4]) - bg
			page.gutter[y*page.width+x] = diff <= tolerance && diff >= -tolerance
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	minPanel := max(1, page.height/div)
	var found []image.Rectangle
	var split func(area image.Rectangle, depth int) error
	split = func(area image.Rectangle, depth int) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		rows := splitRows(page, area, minPanel)
		if len(rows) == 0 {
			return nil
		}
		if depth >= maxGutterDepth {
			found = append(found, area)
			return nil
		}
		if len(rows) > 1 || rows[0] != area {
			for _, r := range rows {
				if err := split(r, depth+1); err != nil {
					return err
				}
			}
			return nil
		}

		cols := splitColumns(page, area, minPanel)
		if len(cols) == 0 {
			return nil
		}
		if len(cols) > 1 || cols[0] != area {
			for _, c := range cols {
				if err := split(c, depth+1); err != nil {
					return err
				}
			}
			return nil
		}
		found = append(found, area)
		return nil
	}

	full := image.Rect(0, 0, page.width, page.height)
	if err := split(full, 0); err != nil {
		return nil, err
	}
	// a page without gutters is a single splash panel, reported as none
	if len(found) == 1 && found[0] == full {
		return nil, nil
	}
	return found, nil
}

// splitRows returns the bands of area separated by full-width gutter rows,
// dropping bands thinner than minPanel.
func splitRows(page *lumaPage, area image.Rectangle, minPanel int) []image.Rectangle {
	var bands []image.Rectangle
	start := -1
	for y := area.Min.Y; y < area.Max.Y; y++ {
		if page.rowIsGutter(y, area.Min.X, area.Max.X) {
			if start != -1 {
				if y-start > minPanel {
					bands = append(bands, image.Rect(area.Min.X, start, area.Max.X, y))
				}
				start = -1
			}
			continue
		}
		if start == -1 {
			start = y
		}
	}
	if start != -1 && area.Max.Y-start > minPanel {
		bands = append(bands, image.Rect(area.Min.X, start, area.Max.X, area.Max.Y))
	}
	return bands
}

// splitColumns is splitRows turned sideways.
func splitColumns(page *lumaPage, area image.Rectangle, minPanel int) []image.Rectangle {
	var bands []image.Rectangle
	start := -1
	for x := area.Min.X; x < area.Max.X; x++ {
		if page.colIsGutter(x, area.Min.Y, area.Max.Y) {
			if start != -1 {
				if x-start > minPanel {
					bands = append(bands, image.Rect(start, area.Min.Y, x, area.Max.Y))
				}
				start = -1
			}
			continue
		}
		if start == -1 {
			start = x
		}
	}
	if start != -1 && area.Max.X-start > minPanel {
		bands = append(bands, image.Rect(start, area.Min.Y, area.Max.X, area.Max.Y))
	}
	return bands
}

func luma(p []uint8) int {
	return (299*int(p[0]) + 587*int(p[1]) + 114*int(p[2])) / 1000
}
