package panels

import (
	"context"
	"fmt"
	"image"
	"log/slog"

	"github.com/Snd-R/Komelia-sub005/internal/geom"
	"github.com/Snd-R/Komelia-sub005/internal/observable"
	"github.com/Snd-R/Komelia-sub005/internal/page"
	"github.com/Snd-R/Komelia-sub005/internal/raster"
	"github.com/Snd-R/Komelia-sub005/internal/tiling"
)

// ReaderImage is a page being rendered; *tiling.Controller implements it.
type ReaderImage interface {
	OriginalImage(ctx context.Context) (*raster.Image, error)
	OriginalSize(ctx context.Context) (geom.IntSize, error)
	FitSize(area geom.IntSize, stretch bool) geom.IntSize
	RequestUpdate(visible geom.IntRect, zoom float64, maxDisplaySize geom.IntSize)
	Close() error
}

// ImageResult is the outcome of loading a page image: ImageSuccess or
// ImageFailure. A nil ImageResult means the page is still loading.
type ImageResult interface {
	isImageResult()
}

type ImageSuccess struct {
	Image ReaderImage
}

type ImageFailure struct {
	Err error
}

func (ImageSuccess) isImageResult() {}
func (ImageFailure) isImageResult() {}

// ImageOf returns the image of a successful result, or nil.
func ImageOf(r ImageResult) ReaderImage {
	if s, ok := r.(ImageSuccess); ok {
		return s.Image
	}
	return nil
}

// PanelData is the detected panels of a page in reading order.
// CoversMajority is set when the panels cover most of the page, in which
// case the reader does not zoom out after the last panel.
type PanelData struct {
	Panels            []image.Rectangle
	OriginalImageSize geom.IntSize
	CoversMajority    bool
}

// Page is a page as seen by the panel reader. Panels is nil when detection
// did not run or failed.
type Page struct {
	Metadata page.Metadata
	Image    ImageResult
	Panels   *PanelData
}

// PageIndex is the reading position.
type PageIndex struct {
	Page                   int
	Panel                  int
	LastPanelZoomOutActive bool
}

// Transition is shown between books: BookStart before the first page,
// BookEnd after the last one.
type Transition interface {
	isTransition()
}

type BookStart struct {
	Current  page.Book
	Previous *page.Book
}

type BookEnd struct {
	Current page.Book
	Next    *page.Book
}

func (BookStart) isTransition() {}
func (BookEnd) isTransition()   {}

// ImageLoader creates the reader image of a page.
type ImageLoader interface {
	LoadReaderImage(ctx context.Context, meta page.Metadata) ImageResult
}

// BookNavigator owns the list of books and the reading progress.
type BookNavigator interface {
	Books() *observable.Value[*page.BookState]
	LoadNextBook(ctx context.Context) error
	LoadPreviousBook(ctx context.Context) error
	OnProgressChange(ctx context.Context, pageNumber int) error
}

// PageSource provides the encoded bytes of a page.
type PageSource interface {
	PageBytes(ctx context.Context, meta page.Metadata) ([]byte, error)
}

// TilingLoader loads pages into tiling controllers sharing one decoder,
// processing pipeline, platform and settings.
type TilingLoader struct {
	Pages     PageSource
	Decoder   raster.Decoder
	Processor tiling.Processor
	Platform  tiling.Platform
	Settings  *observable.Value[tiling.RenderSettings]
	Tuning    tiling.Tuning
	Logger    *slog.Logger
}

func (l *TilingLoader) LoadReaderImage(ctx context.Context, meta page.Metadata) ImageResult {
	data, err := l.Pages.PageBytes(ctx, meta)
	if err != nil {
		return ImageFailure{Err: fmt.Errorf("load page %d: %w", meta.PageNumber, err)}
	}
	return ImageSuccess{Image: tiling.New(tiling.Config{
		PageID:    meta.ID(),
		Source:    tiling.MemorySource{Data: data},
		Decoder:   l.Decoder,
		Processor: l.Processor,
		Platform:  l.Platform,
		Settings:  l.Settings,
		Tuning:    l.Tuning,
		Logger:    l.Logger,
	})}
}
