package panels

import (
	"fmt"
	"image"
	"math"
	"slices"
	"sort"
	"strings"

	"github.com/Snd-R/Komelia-sub005/internal/geom"
)

// ReadingDirection is the horizontal order panels and pages are read in.
type ReadingDirection int

const (
	LeftToRight ReadingDirection = iota
	RightToLeft
)

func (d ReadingDirection) String() string {
	if d == RightToLeft {
		return "right to left"
	}
	return "left to right"
}

// ParseReadingDirection accepts "ltr", "rtl" and the long forms.
func ParseReadingDirection(s string) (ReadingDirection, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "ltr", "left_to_right", "left-to-right":
		return LeftToRight, nil
	case "rtl", "right_to_left", "right-to-left":
		return RightToLeft, nil
	}
	return LeftToRight, fmt.Errorf("unknown reading direction %q", s)
}

// Panels are sorted in a normalised 1000x1000 space so that the pixel
// thresholds below do not depend on the page resolution.
const sortSpace = 1000.0

// SortPanels orders panels for reading: rows top to bottom, panels within a
// row in reading direction. Identical panels are collapsed.
//
// The row heuristics are written for right-to-left pages; left-to-right pages
// are mirrored before sorting.
func SortPanels(panels []image.Rectangle, imageSize geom.IntSize, direction ReadingDirection) []image.Rectangle {
	if len(panels) == 0 || imageSize.IsZero() {
		return slices.Clone(panels)
	}
	ratio := math.Max(sortSpace/float64(imageSize.Width), sortSpace/float64(imageSize.Height))

	var items []geom.Rect
	var origin []image.Rectangle
	seen := make(map[geom.Rect]int, len(panels))
	for _, p := range panels {
		r := geom.FromImageRect(p).Scale(ratio)
		if direction == LeftToRight {
			r = flipX(r)
		}
		if i, ok := seen[r]; ok {
			origin[i] = p
			continue
		}
		seen[r] = len(items)
		items = append(items, r)
		origin = append(origin, p)
	}

	sorted := make([]image.Rectangle, 0, len(items))
	for _, row := range sortByRows(items) {
		for _, i := range row {
			sorted = append(sorted, origin[i])
		}
	}
	return sorted
}

func flipX(r geom.Rect) geom.Rect {
	return geom.Rect{Left: sortSpace - r.Right, Top: r.Top, Right: sortSpace - r.Left, Bottom: r.Bottom}
}

type panelRow struct {
	key    float64
	panels []int
}

// sortByRows groups panel indexes into rows. A row is keyed by the top of the
// panel that opened it, the first row by 0.
func sortByRows(items []geom.Rect) [][]int {
	order := make([]int, len(items))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return items[order[a]].Top < items[order[b]].Top })

	var rows []*panelRow
	find := func(key float64) *panelRow {
		for _, r := range rows {
			if r.key == key {
				return r
			}
		}
		return nil
	}

	var currentStart float64
	for _, i := range order {
		if row := find(currentStart); row != nil && !panelBelongsToRow(items, row.panels, items[i]) {
			currentStart = items[i].Top
		}
		if row := find(currentStart); row == nil {
			rows = append(rows, &panelRow{key: currentStart, panels: []int{i}})
		} else {
			row.panels = insertPanel(items, row.panels, i)
		}
	}

	out := make([][]int, len(rows))
	for i, r := range rows {
		out[i] = r.panels
	}
	return out
}

func sharesVerticalEdge(a, b geom.Rect) bool {
	return a.Top < b.Bottom && b.Top < a.Bottom
}

func sharesHorizontalEdge(a, b geom.Rect) bool {
	return a.Left < b.Right && b.Left < a.Right
}

// horizontalEdgeRatio is the share of r's width it has in common with to.
func horizontalEdgeRatio(r, to geom.Rect) float64 {
	return (math.Min(r.Right, to.Right) - math.Max(r.Left, to.Left)) / r.Width()
}

// verticalEdgeRatio is the share of r's height it has in common with to.
func verticalEdgeRatio(r, to geom.Rect) float64 {
	return (math.Min(r.Bottom, to.Bottom) - math.Max(r.Top, to.Top)) / r.Height()
}

func isInside(r, other geom.Rect) bool {
	if !r.Overlaps(other) {
		return false
	}
	in := r.Intersect(other)
	return in.Width() == r.Width() && in.Height() == r.Height()
}

// mostlyOverlapping reports whether the intersection covers more than 80% of
// the smaller panel along both axes.
func mostlyOverlapping(a, b geom.Rect) bool {
	in := a.Intersect(b)
	return in.Width()/math.Min(a.Width(), b.Width()) > .8 &&
		in.Height()/math.Min(a.Height(), b.Height()) > .8
}

// pick returns the first index whose key is best according to better, or -1.
func pick(idx []int, key func(int) float64, better func(a, b float64) bool) int {
	best := -1
	for _, i := range idx {
		if best == -1 || better(key(i), key(best)) {
			best = i
		}
	}
	return best
}

func greater(a, b float64) bool { return a > b }
func less(a, b float64) bool    { return a < b }

func insertPanel(items []geom.Rect, row []int, idx int) []int {
	panel := items[idx]
	var vertical, horizontal []int
	for _, j := range row {
		if sharesVerticalEdge(items[j], panel) {
			vertical = append(vertical, j)
		}
		if sharesHorizontalEdge(items[j], panel) {
			horizontal = append(horizontal, j)
		}
	}

	var right, left []int
	for _, j := range vertical {
		if items[j].Left > panel.Left {
			right = append(right, j)
		}
		if items[j].Right < panel.Right {
			left = append(left, j)
		}
	}
	closestRight := pick(right, func(j int) float64 { return items[j].Left }, less)
	closestLeft := pick(left, func(j int) float64 { return items[j].Right }, greater)

	var above []int
	for _, j := range horizontal {
		if items[j].Top < panel.Bottom && horizontalEdgeRatio(items[j], panel) > .2 {
			above = append(above, j)
		}
	}
	top := func(j int) float64 { return items[j].Top }
	var closestTop int
	if len(above) > 0 {
		nearest := items[pick(above, top, greater)].Top
		var sameLevel []int
		for _, j := range above {
			if math.Abs(items[j].Top-nearest) < 50 {
				sameLevel = append(sameLevel, j)
			}
		}
		closestTop = pick(sameLevel, func(j int) float64 { return items[j].Left }, less)
	} else {
		closestTop = pick(horizontal, top, greater)
	}

	pos := func(j int) int { return slices.Index(row, j) }
	switch {
	case closestTop != -1:
		switch {
		case closestLeft != -1 && closestTop == closestLeft:
			return addOverlappingPanel(items, row, closestTop, idx)
		case closestRight != -1 && closestTop == closestRight:
			return slices.Insert(row, pos(closestRight)+1, idx)
		case closestRight != -1:
			if verticalEdgeRatio(items[closestRight], panel) > .8 {
				return slices.Insert(row, pos(closestRight)+1, idx)
			}
			return slices.Insert(row, pos(closestTop)+1, idx)
		case isInside(panel, items[closestTop]):
			// inside the right half of the enclosing panel: read it first
			enclosing := items[closestTop]
			if enclosing.Right-panel.Right < enclosing.Width()/2 {
				return slices.Insert(row, pos(closestTop), idx)
			}
			return slices.Insert(row, pos(closestTop)+1, idx)
		default:
			return slices.Insert(row, pos(closestTop)+1, idx)
		}
	case closestLeft != -1:
		return slices.Insert(row, pos(closestLeft), idx)
	case closestRight != -1:
		return slices.Insert(row, pos(closestRight)+1, idx)
	default:
		return append(row, idx)
	}
}

func addOverlappingPanel(items []geom.Rect, row []int, neighbour, idx int) []int {
	at := slices.Index(row, neighbour)
	a, panel := items[neighbour], items[idx]
	if !a.Overlaps(panel) || mostlyOverlapping(a, panel) {
		return slices.Insert(row, at, idx)
	}

	common := math.Min(a.Right, panel.Right) - math.Max(a.Left, panel.Left)
	// mostly below the neighbour: read after it, otherwise treat as the
	// panel to its right
	if common/panel.Width() > .8 || common/a.Width() > .8 {
		return slices.Insert(row, at+1, idx)
	}
	return slices.Insert(row, at, idx)
}

func panelBelongsToRow(items []geom.Rect, row []int, panel geom.Rect) bool {
	if len(row) == 0 {
		return false
	}

	var horizontal []int
	for _, j := range row {
		if sharesHorizontalEdge(items[j], panel) {
			horizontal = append(horizontal, j)
		}
	}
	if len(horizontal) > 0 {
		widest := pick(horizontal, func(j int) float64 {
			return math.Min(items[j].Right, panel.Right) - math.Max(items[j].Left, panel.Left)
		}, greater)
		upperFullWidth := items[widest].Width()/sortSpace > .9
		panelFullWidth := panel.Width()/sortSpace > .9
		tallest := pick(horizontal, func(j int) float64 { return items[j].Height() }, greater)
		if (upperFullWidth || panelFullWidth) && panel.Bottom > items[tallest].Bottom {
			return false
		}
	}

	for _, j := range row {
		r := items[j]
		if !sharesVerticalEdge(r, panel) {
			continue
		}
		if r.Overlaps(panel) && mostlyOverlapping(r, panel) {
			return true
		}
		common := math.Min(r.Bottom, panel.Bottom) - math.Max(r.Top, panel.Top)
		if common/panel.Height() > .8 || common/r.Height() > .25 {
			return true
		}
	}
	return false
}
