package source

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
)

const pdfEntryPrefix = "page-"

// PDF serves the largest embedded image of every page. Pages that are pure
// vector graphics have no entry content and fail to load.
type PDF struct {
	Path string
}

func (p PDF) Entries(ctx context.Context) ([]string, error) {
	f, err := os.Open(p.Path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	count, err := api.PageCount(f, nil)
	if err != nil {
		return nil, fmt.Errorf("page count of %s: %w", p.Path, err)
	}
	names := make([]string, count)
	for i := range names {
		names[i] = pdfEntryPrefix + strconv.Itoa(i+1)
	}
	return names, nil
}

func (p PDF) Read(ctx context.Context, name string) ([]byte, error) {
	number, err := strconv.Atoi(strings.TrimPrefix(name, pdfEntryPrefix))
	if err != nil || !strings.HasPrefix(name, pdfEntryPrefix) {
		return nil, fmt.Errorf("%s in %s: %w", name, p.Path, ErrEntryNotFound)
	}

	f, err := os.Open(p.Path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	pages, err := api.ExtractImagesRaw(f, []string{strconv.Itoa(number)}, nil)
	if err != nil {
		return nil, fmt.Errorf("extract images of page %d from %s: %w", number, p.Path, err)
	}

	var best io.Reader
	bestArea := -1
	for _, images := range pages {
		for _, img := range images {
			if area := img.Width * img.Height; area > bestArea {
				best, bestArea = img.Reader, area
			}
		}
	}
	if best == nil {
		return nil, fmt.Errorf("no image on page %d of %s: %w", number, p.Path, ErrEntryNotFound)
	}
	return io.ReadAll(best)
}
