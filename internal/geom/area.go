package geom

import (
	"slices"
	"sort"
)

type interval struct {
	start float64
	end   float64
}

// AreaOfRects returns the area of the union of rects. Overlapping regions are
// counted once.
//
// The plane is cut into vertical strips at every distinct left and right
// edge. Inside a strip every rectangle either covers the full strip width or
// none of it, so the covered area is the strip width times the length of the
// merged vertical intervals.
func AreaOfRects(rects []Rect) float64 {
	nonEmpty := make([]Rect, 0, len(rects))
	for _, r := range rects {
		if r.Width() > 0 && r.Height() > 0 {
			nonEmpty = append(nonEmpty, r)
		}
	}
	if len(nonEmpty) == 0 {
		return 0
	}

	dividers := make([]float64, 0, len(nonEmpty)*2)
	for _, r := range nonEmpty {
		dividers = append(dividers, r.Left, r.Right)
	}
	slices.Sort(dividers)
	dividers = slices.Compact(dividers)

	var total float64
	spans := make([]interval, 0, len(nonEmpty))
	for i := 0; i+1 < len(dividers); i++ {
		left, right := dividers[i], dividers[i+1]

		spans = spans[:0]
		for _, r := range nonEmpty {
			if r.Left <= left && r.Right >= right {
				spans = append(spans, interval{start: r.Top, end: r.Bottom})
			}
		}
		if len(spans) == 0 {
			continue
		}
		total += (right - left) * mergedLength(spans)
	}
	return total
}

// mergedLength sorts spans in place and returns the length of their union.
func mergedLength(spans []interval) float64 {
	sort.Slice(spans, func(i, j int) bool { return spans[i].start < spans[j].start })

	var length float64
	current := spans[0]
	for _, s := range spans[1:] {
		if s.start <= current.end {
			if s.end > current.end {
				current.end = s.end
			}
			continue
		}
		length += current.end - current.start
		current = s
	}
	return length + current.end - current.start
}
