package tiling

import "image"

// Grid splits a width x height image into tileSize squares, row by row. Edge
// tiles are clamped to the image bounds.
func Grid(width, height, tileSize int) []image.Rectangle {
	if width <= 0 || height <= 0 || tileSize <= 0 {
		return nil
	}
	cols := (width + tileSize - 1) / tileSize
	rows := (height + tileSize - 1) / tileSize
	cells := make([]image.Rectangle, 0, cols*rows)
	for y := 0; y < height; y += tileSize {
		for x := 0; x < width; x += tileSize {
			cells = append(cells, image.Rect(x, y, min(x+tileSize, width), min(y+tileSize, height)))
		}
	}
	return cells
}

func closeTiles(tiles []Tile) {
	for _, t := range tiles {
		if t.Surface != nil {
			t.Surface.Close()
		}
	}
}

// unusedTiles returns the tiles of old whose surface is not part of current.
func unusedTiles(old, current []Tile) []Tile {
	kept := make(map[Surface]struct{}, len(current))
	for _, t := range current {
		if t.Surface != nil {
			kept[t.Surface] = struct{}{}
		}
	}
	var unused []Tile
	for _, t := range old {
		if _, ok := kept[t.Surface]; !ok && t.Surface != nil {
			unused = append(unused, t)
		}
	}
	return unused
}
