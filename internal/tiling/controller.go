// Package tiling renders a decoded page progressively for a moving viewport.
// Small targets are resized in one piece; large targets are split into tiles
// and only the tiles near the visible region are rendered.
package tiling

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/Snd-R/Komelia-sub005/internal/geom"
	"github.com/Snd-R/Komelia-sub005/internal/observable"
	"github.com/Snd-R/Komelia-sub005/internal/page"
	"github.com/Snd-R/Komelia-sub005/internal/raster"
)

// ErrClosed is returned by waiting calls after Close.
var ErrClosed = errors.New("reader image closed")

// FailedSize is published as the original size when decoding fails so that
// callers waiting for a size are released.
var FailedSize = geom.IntSize{Width: 1, Height: 1}

// Config configures a Controller. Source, Decoder and Platform are required.
type Config struct {
	PageID    page.ID
	Source    Source
	Decoder   raster.Decoder
	Processor Processor
	Platform  Platform
	Settings  *observable.Value[RenderSettings]
	Tuning    Tuning
	Logger    *slog.Logger
}

type decodeResult struct {
	image *raster.Image
	err   error
	done  bool
}

// Controller owns the rendered representation of one page. All rendering
// runs on a single worker goroutine; the exported methods are safe for
// concurrent use.
type Controller struct {
	id        page.ID
	source    Source
	decoder   raster.Decoder
	processor Processor
	platform  Platform
	settings  *observable.Value[RenderSettings]
	tuning    Tuning
	logger    *slog.Logger

	painter      *observable.Value[*Painter]
	err          *observable.Value[error]
	originalSize *observable.Value[geom.IntSize]
	displaySize  *observable.Value[geom.IntSize]
	currentSize  *observable.Value[geom.IntSize]
	decoded      *observable.Value[decodeResult]

	// conflated single-slot request queue
	mu      sync.Mutex
	pending *UpdateRequest
	wake    chan struct{}

	statsMu sync.Mutex
	stats   PassStats

	ctx       context.Context
	cancel    context.CancelFunc
	done      chan struct{}
	closeOnce sync.Once

	// owned by the worker goroutine
	original      *raster.Image
	image         *raster.Image
	tiles         []Tile
	lastRequest   *UpdateRequest
	lastUsedScale float64
	hasLastScale  bool
	current       RenderSettings
	generation    uint64
}

// New starts decoding the page in the background and returns immediately.
func New(cfg Config) *Controller {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	settings := cfg.Settings
	if settings == nil {
		settings = observable.NewValue(DefaultRenderSettings())
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Controller{
		id:           cfg.PageID,
		source:       cfg.Source,
		decoder:      cfg.Decoder,
		processor:    cfg.Processor,
		platform:     cfg.Platform,
		settings:     settings,
		tuning:       cfg.Tuning.withDefaults(),
		logger:       logger.With("page", cfg.PageID.String()),
		painter:      observable.NewValue[*Painter](nil),
		err:          observable.NewValue[error](nil),
		originalSize: observable.NewValue(geom.IntSize{}),
		displaySize:  observable.NewValue(geom.IntSize{}),
		currentSize:  observable.NewValue(geom.IntSize{}),
		decoded:      observable.NewValue(decodeResult{}),
		wake:         make(chan struct{}, 1),
		ctx:          ctx,
		cancel:       cancel,
		done:         make(chan struct{}),
	}
	go c.run()
	return c
}

// Painter is the latest drawable snapshot; nil until the first request.
func (c *Controller) Painter() *observable.Value[*Painter] { return c.painter }

// Error is the failure of the last update, nil when it succeeded.
func (c *Controller) Error() *observable.Value[error] { return c.err }

// OriginalSizeState is the page size after processing; zero until decoded.
func (c *Controller) OriginalSizeState() *observable.Value[geom.IntSize] { return c.originalSize }

// DisplaySize is the page fitted into the last requested area at zoom 1.
func (c *Controller) DisplaySize() *observable.Value[geom.IntSize] { return c.displaySize }

// CurrentSize is the target size of the last request, published before its
// pixels are ready.
func (c *Controller) CurrentSize() *observable.Value[geom.IntSize] { return c.currentSize }

// LastPass describes the most recent render pass.
func (c *Controller) LastPass() PassStats {
	c.statsMu.Lock()
	defer c.statsMu.Unlock()
	return c.stats
}

// OriginalSize waits for the page to be decoded and processed.
func (c *Controller) OriginalSize(ctx context.Context) (geom.IntSize, error) {
	res, err := c.decoded.Await(ctx, func(r decodeResult) bool { return r.done })
	if err != nil {
		return geom.IntSize{}, err
	}
	if res.err != nil {
		return FailedSize, res.err
	}
	return c.originalSize.Get(), nil
}

// OriginalImage waits for the decoded page before processing. The image is
// owned by the controller and closed with it.
func (c *Controller) OriginalImage(ctx context.Context) (*raster.Image, error) {
	res, err := c.decoded.Await(ctx, func(r decodeResult) bool { return r.done })
	if err != nil {
		return nil, err
	}
	return res.image, res.err
}

// FitSize returns the display size of the page in area, or zero if the page
// size is not known yet.
func (c *Controller) FitSize(area geom.IntSize, stretch bool) geom.IntSize {
	size := c.originalSize.Get()
	if size == FailedSize {
		return geom.IntSize{}
	}
	return geom.FitSize(size, area, stretch)
}

// RequestUpdate queues a render for the given viewport. Only the latest
// pending request is kept.
func (c *Controller) RequestUpdate(visible geom.IntRect, zoom float64, maxDisplaySize geom.IntSize) {
	if c.ctx.Err() != nil {
		return
	}
	c.offer(UpdateRequest{VisibleDisplaySize: visible, ZoomFactor: zoom, MaxDisplaySize: maxDisplaySize})
}

func (c *Controller) offer(req UpdateRequest) {
	c.mu.Lock()
	c.pending = &req
	c.mu.Unlock()
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

func (c *Controller) takePending() *UpdateRequest {
	c.mu.Lock()
	defer c.mu.Unlock()
	req := c.pending
	c.pending = nil
	return req
}

// Close stops rendering and releases every surface and decoded image. It is
// safe to call more than once.
func (c *Controller) Close() error {
	c.closeOnce.Do(func() {
		c.cancel()
		<-c.done

		closeTiles(c.tiles)
		c.tiles = nil
		c.releaseImages()
		c.painter.Set(nil)
		c.decoded.Set(decodeResult{err: ErrClosed, done: true})
		c.logger.Debug("reader image closed")
	})
	return nil
}

func (c *Controller) releaseImages() {
	if c.image != nil && c.image != c.original {
		c.image.Close()
	}
	if c.original != nil {
		c.original.Close()
	}
	c.image = nil
	c.original = nil
}

func (c *Controller) run() {
	defer close(c.done)
	ctx := c.ctx

	c.current = c.settings.Get()
	var generations <-chan uint64
	if c.processor != nil {
		c.generation = c.processor.Changes().Get()
		generations = c.processor.Changes().Subscribe(ctx)
	}
	settings := c.settings.Subscribe(ctx)

	if !c.load(ctx) {
		<-ctx.Done()
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.wake:
			req := c.takePending()
			if req == nil {
				continue
			}
			c.update(ctx, *req)
			c.debounce(ctx)
		case gen, ok := <-generations:
			if !ok {
				return
			}
			if gen == c.generation {
				continue
			}
			c.generation = gen
			c.logger.Debug("processing changed, reprocessing")
			if err := c.process(ctx); err != nil {
				c.publishError(ctx, err)
				continue
			}
			c.reloadLastRequest()
		case s, ok := <-settings:
			if !ok {
				return
			}
			if s == c.current {
				continue
			}
			c.current = s
			c.reloadLastRequest()
		}
	}
}

func (c *Controller) debounce(ctx context.Context) {
	if c.tuning.Debounce <= 0 {
		return
	}
	timer := time.NewTimer(c.tuning.Debounce)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

// reloadLastRequest re-renders the last request from scratch unless a newer
// request is already waiting.
func (c *Controller) reloadLastRequest() {
	c.hasLastScale = false
	if c.lastRequest == nil {
		return
	}
	c.mu.Lock()
	if c.pending == nil {
		req := *c.lastRequest
		c.pending = &req
	}
	c.mu.Unlock()
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

func (c *Controller) load(ctx context.Context) bool {
	start := time.Now()
	data, err := c.source.Read(ctx)
	if err == nil {
		c.original, err = c.decoder.Decode(ctx, data)
	}
	if err != nil {
		if ctx.Err() != nil {
			return false
		}
		err = fmt.Errorf("decode page %s: %w", c.id, err)
		c.logger.Error("page decode failed", "error", err)
		c.err.Set(err)
		c.originalSize.Set(FailedSize)
		c.decoded.Set(decodeResult{err: err, done: true})
		return false
	}

	if err := c.process(ctx); err != nil {
		if ctx.Err() != nil {
			return false
		}
		c.publishError(ctx, err)
		c.image = c.original
		c.originalSize.Set(geom.IntSize{Width: c.image.Width(), Height: c.image.Height()})
	}
	c.decoded.Set(decodeResult{image: c.original, done: true})
	c.logger.Debug("page decoded",
		"width", c.original.Width(), "height", c.original.Height(), "duration", time.Since(start))
	return true
}

// process runs the processing pipeline over the retained decode, replacing
// the previous processed image.
func (c *Controller) process(ctx context.Context) error {
	processed := c.original
	if c.processor != nil {
		var err error
		processed, err = c.processor.Process(ctx, c.id, c.original)
		if err != nil {
			return err
		}
	}
	if c.image != nil && c.image != c.original && c.image != processed {
		c.image.Close()
	}
	c.image = processed
	c.hasLastScale = false
	c.currentSize.Set(geom.IntSize{})
	c.originalSize.Set(geom.IntSize{Width: processed.Width(), Height: processed.Height()})
	return nil
}

func (c *Controller) publishError(ctx context.Context, err error) {
	if errors.Is(err, context.Canceled) || ctx.Err() != nil {
		return
	}
	c.logger.Error("page update failed", "error", err)
	c.err.Set(err)
}

func (c *Controller) update(ctx context.Context, req UpdateRequest) {
	c.err.Set(nil)
	if err := c.doUpdate(ctx, req); err != nil {
		c.publishError(ctx, err)
	}
}

func (c *Controller) doUpdate(ctx context.Context, req UpdateRequest) error {
	c.lastRequest = &req
	img := c.image
	if img == nil || req.ZoomFactor <= 0 {
		return nil
	}

	imageSize := geom.IntSize{Width: img.Width(), Height: img.Height()}
	displaySize := geom.FitSize(imageSize, req.MaxDisplaySize, c.current.StretchToFit)
	if displaySize.IsZero() {
		return nil
	}

	displayScale := math.Min(
		float64(displaySize.Width)/float64(imageSize.Width),
		float64(displaySize.Height)/float64(imageSize.Height),
	)
	actualScale := displayScale * req.ZoomFactor
	dstWidth := float64(displaySize.Width) * req.ZoomFactor
	dstHeight := float64(displaySize.Height) * req.ZoomFactor

	c.displaySize.Set(displaySize)
	c.currentSize.Set(geom.IntSize{Width: int(math.Round(dstWidth)), Height: int(math.Round(dstHeight))})
	if c.painter.Get() == nil {
		c.painter.Set(&Painter{DisplaySize: displaySize, Placeholder: true})
	}

	kernel := c.current.Downsampling
	if actualScale > 1 {
		kernel = c.current.Upsampling
	}

	tileSize := c.tuning.TileSizeFor(int(math.Round(dstWidth * dstHeight)))
	if tileSize == 0 {
		return c.fullResize(ctx, img, displaySize, displayScale, actualScale, kernel)
	}
	return c.tile(ctx, img, req, displaySize, displayScale, actualScale, tileSize, kernel)
}

func (c *Controller) fullResize(
	ctx context.Context,
	img *raster.Image,
	displaySize geom.IntSize,
	displayScale, scale float64,
	kernel raster.Kernel,
) error {
	if c.hasLastScale && c.lastUsedScale == scale && len(c.tiles) == 1 {
		c.setStats(PassStats{Mode: PassUnchanged})
		return nil
	}

	start := time.Now()
	width := max(1, int(math.Round(float64(img.Width())*scale)))
	height := max(1, int(math.Round(float64(img.Height())*scale)))
	data, err := c.platform.Resize(ctx, img, width, height, kernel)
	if err != nil {
		return fmt.Errorf("resize page to %dx%d: %w", width, height, err)
	}
	if err := ctx.Err(); err != nil {
		data.Surface.Close()
		return err
	}

	tile := Tile{
		Size: geom.IntSize{Width: data.Width, Height: data.Height},
		DisplayRegion: geom.Rect{
			Right:  math.Round(float64(img.Width()) * displayScale),
			Bottom: math.Round(float64(img.Height()) * displayScale),
		},
		SourceRegion: image.Rect(0, 0, img.Width(), img.Height()),
		Visible:      true,
		Surface:      data.Surface,
	}
	previous := c.tiles
	c.tiles = []Tile{tile}
	c.painter.Set(&Painter{Tiles: c.tiles, DisplaySize: displaySize, ScaleFactor: scale})
	closeTiles(previous)

	c.lastUsedScale = scale
	c.hasLastScale = true
	stats := PassStats{Mode: PassFullResize, Rendered: 1, Disposed: len(previous), Duration: time.Since(start)}
	c.setStats(stats)
	c.logger.Debug("page resized",
		"source_width", img.Width(), "source_height", img.Height(),
		"width", width, "height", height, "duration", stats.Duration)
	return nil
}

func (c *Controller) tile(
	ctx context.Context,
	img *raster.Image,
	req UpdateRequest,
	displaySize geom.IntSize,
	displayScale, scale float64,
	tileSize int,
	kernel raster.Kernel,
) error {
	start := time.Now()
	visible := req.VisibleDisplaySize.ToRect()
	window := geom.Rect{
		Left:   visible.Left / c.tuning.LookAhead,
		Top:    visible.Top / c.tuning.LookAhead,
		Right:  visible.Right * c.tuning.LookAhead,
		Bottom: visible.Bottom * c.tuning.LookAhead,
	}

	old := c.tiles
	reusable := c.hasLastScale && c.lastUsedScale == scale
	stats := PassStats{Mode: PassTiled, TileSize: tileSize}
	var newTiles, created []Tile

	for _, region := range Grid(img.Width(), img.Height(), tileSize) {
		stats.Considered++
		if err := ctx.Err(); err != nil {
			closeTiles(created)
			return err
		}

		display := geom.FromImageRect(region).Scale(displayScale)
		if !window.Overlaps(display) {
			continue
		}
		if reusable {
			if existing, ok := findTile(old, display); ok {
				newTiles = append(newTiles, existing)
				stats.Reused++
				continue
			}
		}

		width := max(1, int(math.Round(float64(region.Dx())*scale)))
		height := max(1, int(math.Round(float64(region.Dy())*scale)))
		data, err := c.platform.Region(ctx, img, region, width, height, kernel)
		if err != nil {
			closeTiles(created)
			return fmt.Errorf("render tile %v: %w", region, err)
		}
		t := Tile{
			Size:          geom.IntSize{Width: data.Width, Height: data.Height},
			DisplayRegion: display,
			SourceRegion:  region,
			Visible:       true,
			Surface:       data.Surface,
		}
		newTiles = append(newTiles, t)
		created = append(created, t)
		stats.Rendered++
	}
	if err := ctx.Err(); err != nil {
		closeTiles(created)
		return err
	}

	unused := unusedTiles(old, newTiles)
	if len(newTiles) == 0 || (len(created) == 0 && len(unused) == 0) {
		// the kept tiles were rendered at lastUsedScale
		stats.Duration = time.Since(start)
		c.setStats(stats)
		return nil
	}

	c.tiles = newTiles
	c.lastUsedScale = scale
	c.hasLastScale = true
	c.painter.Set(&Painter{Tiles: newTiles, DisplaySize: displaySize, ScaleFactor: scale})
	closeTiles(unused)

	stats.Disposed = len(unused)
	stats.Duration = time.Since(start)
	c.setStats(stats)
	c.logger.Debug("page tiled",
		"tile_size", tileSize, "tiles", len(newTiles), "rendered", stats.Rendered,
		"reused", stats.Reused, "disposed", stats.Disposed, "duration", stats.Duration)
	return nil
}

func findTile(tiles []Tile, display geom.Rect) (Tile, bool) {
	for _, t := range tiles {
		if t.DisplayRegion == display && t.Surface != nil && !t.Surface.IsClosed() {
			return t, true
		}
	}
	return Tile{}, false
}

func (c *Controller) setStats(stats PassStats) {
	c.statsMu.Lock()
	defer c.statsMu.Unlock()
	c.stats = stats
}
