// Package panels implements panel-by-panel reading: it detects and orders the
// panels of each page, frames the current panel in the viewport and moves
// between panels, pages and books.
package panels

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/Snd-R/Komelia-sub005/internal/geom"
	"github.com/Snd-R/Komelia-sub005/internal/observable"
	"github.com/Snd-R/Komelia-sub005/internal/page"
	"github.com/Snd-R/Komelia-sub005/internal/raster"
	"github.com/Snd-R/Komelia-sub005/internal/viewport"
)

const (
	DefaultCacheSize         = 10
	DefaultCoverageThreshold = 0.8
	DefaultTrimThreshold     = 50
	DefaultViewportDebounce  = 100 * time.Millisecond
)

// Config configures a Controller. Loader, Books and Screen are required.
type Config struct {
	Loader   ImageLoader
	Detector Detector
	Books    BookNavigator
	Screen   *viewport.ScreenScale

	// StretchToFit reports whether pages may be upscaled to fill the area.
	StretchToFit     func() bool
	ReadingDirection ReadingDirection
	// OnReadingDirectionChange persists a direction chosen by the user.
	OnReadingDirectionChange func(ReadingDirection)
	// Notify shows a short message to the user.
	Notify func(string)

	CacheSize         int
	CacheTTL          time.Duration
	CoverageThreshold float64
	TrimThreshold     int
	ViewportDebounce  time.Duration

	Logger *slog.Logger
}

// Controller is the panel reader state. Navigation methods are meant to be
// called from the UI goroutine; page loads run in the background.
type Controller struct {
	loader     ImageLoader
	detector   Detector
	books      BookNavigator
	screen     *viewport.ScreenScale
	stretch    func() bool
	persistDir func(ReadingDirection)
	notify     func(string)
	coverage   float64
	trim       int
	debounce   time.Duration
	logger     *slog.Logger

	pageMetadata     *observable.Value[[]page.Metadata]
	currentIndex     *observable.Value[PageIndex]
	currentPage      *observable.Value[*Page]
	transition       *observable.Value[Transition]
	readingDirection *observable.Value[ReadingDirection]

	mu         sync.Mutex
	cache      *expirable.LRU[page.ID, *pageJob]
	loadCtx    context.Context
	loadCancel context.CancelFunc
	publishMu  sync.Mutex

	rootCtx    context.Context
	rootCancel context.CancelFunc
	stateCtx   context.Context
	stopState  context.CancelFunc
	state      sync.WaitGroup
	cleanup    sync.WaitGroup
}

func New(cfg Config) *Controller {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	c := &Controller{
		loader:           cfg.Loader,
		detector:         cfg.Detector,
		books:            cfg.Books,
		screen:           cfg.Screen,
		stretch:          cfg.StretchToFit,
		persistDir:       cfg.OnReadingDirectionChange,
		notify:           cfg.Notify,
		coverage:         cfg.CoverageThreshold,
		trim:             cfg.TrimThreshold,
		debounce:         cfg.ViewportDebounce,
		logger:           logger.With("component", "panels"),
		pageMetadata:     observable.NewValue[[]page.Metadata](nil),
		currentIndex:     observable.NewValue(PageIndex{}),
		currentPage:      observable.NewValue[*Page](nil),
		transition:       observable.NewValue[Transition](nil),
		readingDirection: observable.NewValue(cfg.ReadingDirection),
	}
	if c.stretch == nil {
		c.stretch = func() bool { return true }
	}
	if c.coverage <= 0 {
		c.coverage = DefaultCoverageThreshold
	}
	if c.trim <= 0 {
		c.trim = DefaultTrimThreshold
	}
	if c.debounce == 0 {
		c.debounce = DefaultViewportDebounce
	}
	size := cfg.CacheSize
	if size <= 0 {
		size = DefaultCacheSize
	}
	c.cache = expirable.NewLRU[page.ID, *pageJob](size, c.onEvict, cfg.CacheTTL)

	c.rootCtx, c.rootCancel = context.WithCancel(context.Background())
	c.loadCtx, c.loadCancel = context.WithCancel(c.rootCtx)
	c.stateCtx, c.stopState = context.WithCancel(c.rootCtx)
	return c
}

func (c *Controller) PageMetadata() *observable.Value[[]page.Metadata] { return c.pageMetadata }
func (c *Controller) CurrentIndex() *observable.Value[PageIndex] { return c.currentIndex }
func (c *Controller) CurrentPage() *observable.Value[*Page] { return c.currentPage }
func (c *Controller) Transition() *observable.Value[Transition] { return c.transition }
func (c *Controller) ReadingDirection() *observable.Value[ReadingDirection] { return c.readingDirection }

// Initialize starts following the viewport, the reading direction and the
// book state.
func (c *Controller) Initialize() {
	c.goState(c.trackViewport)
	c.goState(c.trackReadingDirection)
	c.goState(c.trackBooks)
	if c.notify != nil {
		c.notify("Panels " + c.readingDirection.Get().String())
	}
}

func (c *Controller) goState(fn func(ctx context.Context)) {
	c.state.Add(1)
	go func() {
		defer c.state.Done()
		fn(c.stateCtx)
	}()
}

// Stop cancels background work and drops every cached page, closing their
// images.
func (c *Controller) Stop() {
	c.stopState()
	c.screen.EnableOverscroll(false)
	c.mu.Lock()
	c.loadCancel()
	c.mu.Unlock()
	c.cache.Purge()
}

// Close stops the controller and waits for background work and image cleanup
// to finish.
func (c *Controller) Close() error {
	c.Stop()
	c.rootCancel()
	c.state.Wait()
	c.cleanup.Wait()
	return nil
}

func (c *Controller) onEvict(id page.ID, job *pageJob) {
	c.cleanup.Add(1)
	go func() {
		defer c.cleanup.Done()
		// cancelled loads close their own image
		p, err := job.Await(context.Background())
		if err != nil {
			return
		}
		if img := ImageOf(p.Image); img != nil {
			img.Close()
			c.logger.Debug("page image released", "page", id)
		}
	}()
}

func (c *Controller) trackViewport(ctx context.Context) {
	transformations := c.screen.Transformation().Subscribe(ctx)
	areas := c.screen.AreaSize().Subscribe(ctx)
	// skip the current values
	<-transformations
	<-areas

	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-transformations:
			if !ok {
				return
			}
		case _, ok := <-areas:
			if !ok {
				return
			}
		}
		if p := c.currentPage.Get(); p != nil {
			c.updateImageState(p, c.screen)
			if !sleep(ctx, c.debounce) {
				return
			}
		}
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func (c *Controller) trackReadingDirection(ctx context.Context) {
	directions := c.readingDirection.Subscribe(ctx)
	<-directions
	for direction := range directions {
		p := c.currentPage.Get()
		if p == nil || p.Panels == nil {
			continue
		}
		sorted := withSortedPanels(p, direction)
		c.currentPage.Set(sorted)
		c.currentIndex.Update(func(i PageIndex) PageIndex {
			i.Panel = 0
			i.LastPanelZoomOutActive = false
			return i
		})
		if len(sorted.Panels.Panels) > 0 {
			c.scrollToPanel(sorted.Panels.OriginalImageSize, sorted.Panels.Panels[0])
		}
	}
}

func (c *Controller) trackBooks(ctx context.Context) {
	for state := range c.books.Books().Subscribe(ctx) {
		if state != nil {
			c.onNewBookLoaded(state)
		}
	}
}

func (c *Controller) onNewBookLoaded(state *page.BookState) {
	pages := state.Current.Pages
	c.pageMetadata.Set(pages)
	if len(pages) == 0 {
		c.currentPage.Set(nil)
		c.currentIndex.Set(PageIndex{})
		return
	}
	idx := min(max(state.StartPage-1, 0), len(pages)-1)
	c.currentPage.Set(&Page{Metadata: pages[idx]})
	c.currentIndex.Set(PageIndex{Page: idx})
	c.launchPageLoad(idx)
}

// OnReadingDirectionChange switches the reading direction, re-sorting the
// panels of the current page.
func (c *Controller) OnReadingDirectionChange(direction ReadingDirection) {
	c.readingDirection.Set(direction)
	if c.persistDir != nil {
		c.persistDir(direction)
	}
}

// panelMove is what a panel step resolved to.
type panelMove int

const (
	panelStale panelMove = iota
	panelScroll
	panelZoomOut
	panelTurnPage
)

// NextPanel frames the next panel. After the last panel the page is shown
// whole once, unless the panels already cover most of it, and the following
// call moves to the next page.
func (c *Controller) NextPanel() {
	p := c.currentPage.Get()
	if p == nil || p.Panels == nil {
		c.nextPage()
		return
	}
	panels := p.Panels.Panels
	move := panelStale
	var target image.Rectangle
	c.currentIndex.Update(func(i PageIndex) PageIndex {
		if !c.showing(p, i) {
			return i
		}
		if len(panels) <= i.Panel+1 {
			if len(panels) == 0 || p.Panels.CoversMajority || i.LastPanelZoomOutActive {
				move = panelTurnPage
				return i
			}
			move = panelZoomOut
			i.LastPanelZoomOutActive = true
			return i
		}
		move = panelScroll
		i.Panel++
		target = panels[i.Panel]
		return i
	})

	switch move {
	case panelTurnPage:
		c.nextPage()
	case panelZoomOut:
		c.scrollToFit()
	case panelScroll:
		c.scrollToPanel(p.Panels.OriginalImageSize, target)
	}
}

// PreviousPanel frames the previous panel, or moves to the previous page
// from the first one.
func (c *Controller) PreviousPanel() {
	p := c.currentPage.Get()
	if p == nil || p.Panels == nil {
		c.previousPage()
		return
	}
	panels := p.Panels.Panels
	move := panelStale
	var target image.Rectangle
	c.currentIndex.Update(func(i PageIndex) PageIndex {
		if !c.showing(p, i) {
			return i
		}
		if i.Panel-1 < 0 || i.Panel-1 >= len(panels) {
			move = panelTurnPage
			return i
		}
		move = panelScroll
		i.Panel--
		i.LastPanelZoomOutActive = false
		target = panels[i.Panel]
		return i
	})

	switch move {
	case panelTurnPage:
		c.previousPage()
	case panelScroll:
		c.scrollToPanel(p.Panels.OriginalImageSize, target)
	}
}

// showing reports whether idx still points at page p. A page load may
// publish between reading the page and updating the index.
func (c *Controller) showing(p *Page, idx PageIndex) bool {
	pages := c.pageMetadata.Get()
	if idx.Page < 0 || idx.Page >= len(pages) {
		return false
	}
	return pages[idx.Page].ID() == p.Metadata.ID()
}

// NextPage skips the remaining panels of the current page.
func (c *Controller) NextPage() { c.nextPage() }

// PreviousPage moves to the previous page regardless of the current panel.
func (c *Controller) PreviousPage() { c.previousPage() }

// Refresh asks the current page to render again for the current viewport,
// after a setting that changes its display size.
func (c *Controller) Refresh() {
	if p := c.currentPage.Get(); p != nil {
		c.updateImageState(p, c.screen)
	}
}

func (c *Controller) nextPage() {
	current := c.currentIndex.Get().Page
	transition := c.transition.Get()
	switch {
	case current < len(c.pageMetadata.Get())-1:
		if transition != nil {
			c.transition.Set(nil)
		} else {
			c.OnPageChange(current + 1)
		}
	case transition == nil:
		state := c.books.Books().Get()
		if state == nil {
			return
		}
		c.transition.Set(BookEnd{Current: state.Current, Next: state.Next})
	default:
		switch t := transition.(type) {
		case BookEnd:
			if t.Next != nil {
				c.changeBook(c.books.LoadNextBook)
			}
		case BookStart:
			// single page book: leave the start screen
			c.transition.Set(nil)
		}
	}
}

func (c *Controller) previousPage() {
	current := c.currentIndex.Get().Page
	transition := c.transition.Get()
	switch {
	case current != 0:
		if transition != nil {
			c.transition.Set(nil)
		} else {
			c.OnPageChange(current - 1)
		}
	case transition == nil:
		state := c.books.Books().Get()
		if state == nil {
			return
		}
		c.transition.Set(BookStart{Current: state.Current, Previous: state.Previous})
	default:
		switch t := transition.(type) {
		case BookStart:
			if t.Previous != nil {
				c.changeBook(c.books.LoadPreviousBook)
			}
		case BookEnd:
			c.transition.Set(nil)
		}
	}
}

func (c *Controller) changeBook(load func(context.Context) error) {
	c.goState(func(ctx context.Context) {
		c.currentPage.Set(nil)
		c.transition.Set(nil)
		if err := load(ctx); err != nil && !errors.Is(err, context.Canceled) {
			c.logger.Error("failed to load book", "error", err)
			if c.notify != nil {
				c.notify(fmt.Sprintf("Failed to open book: %v", err))
			}
		}
	})
}

// OnPageChange jumps to the page at the 0-based index.
func (c *Controller) OnPageChange(pageIndex int) {
	if c.currentIndex.Get().Page == pageIndex {
		return
	}
	if pageIndex < 0 || pageIndex >= len(c.pageMetadata.Get()) {
		return
	}
	c.launchPageLoad(pageIndex)
}

func (c *Controller) launchPageLoad(pageIndex int) {
	if pageIndex != c.currentIndex.Get().Page {
		pageNumber := pageIndex + 1
		c.goState(func(ctx context.Context) {
			if err := c.books.OnProgressChange(ctx, pageNumber); err != nil && !errors.Is(err, context.Canceled) {
				c.logger.Warn("failed to save reading progress", "page", pageNumber, "error", err)
			}
		})
	}

	c.mu.Lock()
	c.loadCancel()
	c.loadCtx, c.loadCancel = context.WithCancel(c.rootCtx)
	ctx := c.loadCtx
	c.mu.Unlock()

	go c.doPageLoad(ctx, pageIndex)
}

func (c *Controller) doPageLoad(ctx context.Context, pageIndex int) {
	pages := c.pageMetadata.Get()
	if pageIndex < 0 || pageIndex >= len(pages) {
		return
	}
	meta := pages[pageIndex]
	job := c.launchDownload(meta)
	c.preloadAround(ctx, pages, pageIndex)

	if job.Active() {
		c.publish(ctx, func() {
			c.currentPage.Set(&Page{Metadata: meta})
			c.currentIndex.Set(PageIndex{Page: pageIndex})
			c.transition.Set(nil)
			c.screen.SetZoom(0, geom.Offset{})
		})
	}

	p, err := job.Await(ctx)
	if err != nil {
		return
	}
	sorted := withSortedPanels(p, c.readingDirection.Get())
	scale := c.scaleFor(sorted, c.screen.AreaSize().Get())
	c.updateImageState(sorted, scale)

	c.publish(ctx, func() {
		c.currentIndex.Set(PageIndex{Page: pageIndex})
		c.transition.Set(nil)
		c.currentPage.Set(sorted)
		c.screen.EnableOverscroll(true)
		c.screen.Apply(scale)
	})
}

// publish runs fn unless the load that produced it was superseded.
func (c *Controller) publish(ctx context.Context, fn func()) {
	c.publishMu.Lock()
	defer c.publishMu.Unlock()
	if ctx.Err() != nil {
		return
	}
	fn()
}

func (c *Controller) preloadAround(ctx context.Context, pages []page.Metadata, pageIndex int) {
	from := max(pageIndex-1, 0)
	to := min(pageIndex+1, len(pages)-1)
	for i := from; i <= to; i++ {
		if i == pageIndex {
			continue
		}
		job := c.launchDownload(pages[i])
		go func() {
			p, err := job.Await(ctx)
			if err != nil {
				return
			}
			sorted := withSortedPanels(p, c.readingDirection.Get())
			c.updateImageState(sorted, c.scaleFor(sorted, c.screen.AreaSize().Get()))
		}()
	}
}

// launchDownload returns the cached load of a page, starting a new one when
// there is none or the cached one was cancelled.
func (c *Controller) launchDownload(meta page.Metadata) *pageJob {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := meta.ID()
	cached, ok := c.cache.Get(id)
	if ok && !cached.Cancelled() {
		return cached
	}
	job := startJob(c.loadCtx, func(ctx context.Context) (*Page, error) {
		return c.download(ctx, meta)
	})
	// replacing a key does not fire the evict callback
	if ok {
		c.onEvict(id, cached)
	}
	c.cache.Add(id, job)
	return job
}

// download loads the page image and detects its panels. It only fails when
// ctx is cancelled, closing whatever it loaded.
func (c *Controller) download(ctx context.Context, meta page.Metadata) (*Page, error) {
	result := c.loader.LoadReaderImage(ctx, meta)
	img := ImageOf(result)
	if img == nil {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if f, ok := result.(ImageFailure); ok {
			c.logger.Error("page load failed", "page", meta.PageNumber, "error", f.Err)
		}
		return &Page{Metadata: meta, Image: result}, nil
	}

	original, err := img.OriginalImage(ctx)
	if err != nil {
		img.Close()
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return &Page{Metadata: meta, Image: ImageFailure{Err: err}}, nil
	}
	if c.detector == nil {
		return &Page{Metadata: meta, Image: result}, nil
	}

	start := time.Now()
	panels, err := c.detector.Detect(ctx, original)
	if err != nil {
		if ctx.Err() != nil {
			img.Close()
			return nil, ctx.Err()
		}
		var detectionErr *DetectionError
		if errors.As(err, &detectionErr) {
			c.logger.Warn("panel detection failed, reading whole page", "page", meta.PageNumber, "error", err)
			return &Page{Metadata: meta, Image: result}, nil
		}
		img.Close()
		return &Page{Metadata: meta, Image: ImageFailure{Err: fmt.Errorf("detect panels: %w", err)}}, nil
	}

	if err := ctx.Err(); err != nil {
		img.Close()
		return nil, err
	}

	size := geom.IntSize{Width: original.Width(), Height: original.Height()}
	ratio := c.coverageRatio(original, panels, size)
	c.logger.Debug("panel detection completed",
		"page", meta.PageNumber, "panels", len(panels), "coverage", ratio, "duration", time.Since(start))

	return &Page{
		Metadata: meta,
		Image:    result,
		Panels: &PanelData{
			Panels:            panels,
			OriginalImageSize: size,
			CoversMajority:    ratio > c.coverage,
		},
	}, nil
}

// coverageRatio is the share of the page covered by panels. Pages with wide
// margins are measured against their trimmed content instead.
func (c *Controller) coverageRatio(original *raster.Image, panels []image.Rectangle, size geom.IntSize) float64 {
	rects := make([]geom.Rect, len(panels))
	for i, p := range panels {
		rects[i] = geom.FromImageRect(p)
	}
	covered := geom.AreaOfRects(rects)
	ratio := covered / size.Area()
	if ratio >= c.coverage {
		return ratio
	}
	if trim := raster.FindTrim(original, c.trim); !trim.Empty() {
		ratio = covered / (float64(trim.Dx()) * float64(trim.Dy()))
	}
	return ratio
}

func withSortedPanels(p *Page, direction ReadingDirection) *Page {
	if p.Panels == nil {
		return p
	}
	data := *p.Panels
	data.Panels = SortPanels(data.Panels, data.OriginalImageSize, direction)
	sorted := *p
	sorted.Panels = &data
	return &sorted
}

// scaleFor computes, off-screen, the viewport a page opens with: its first
// panel framed, or the whole page when it has none.
func (c *Controller) scaleFor(p *Page, area geom.IntSize) *viewport.ScreenScale {
	scale := viewport.NewScreenScale()
	scale.SetAreaSize(area)
	img := ImageOf(p.Image)
	if img == nil {
		scale.SetZoom(0, geom.Offset{})
		return scale
	}

	fit := img.FitSize(area, true)
	scale.SetTargetSize(fit.ToSize(), nil)
	if p.Panels == nil || len(p.Panels.Panels) == 0 {
		scale.SetZoom(0, geom.Offset{})
		return scale
	}
	offset, zoom := PanelOffsetAndZoom(p.Panels.OriginalImageSize, area, fit, p.Panels.Panels[0])
	scale.SetZoom(zoom, geom.Offset{})
	scale.ScrollTo(offset)
	return scale
}

// updateImageState asks the page image to render the region visible under
// scale.
func (c *Controller) updateImageState(p *Page, scale *viewport.ScreenScale) {
	img := ImageOf(p.Image)
	if img == nil {
		return
	}
	area := scale.AreaSize().Get()
	t := scale.Transformation().Get()
	display := img.FitSize(area, c.stretch())
	if display.IsZero() || t.Scale <= 0 {
		return
	}
	scale.SetTargetSize(display.ToSize(), nil)

	visible := VisibleArea(display, area, t.Scale, t.Offset)
	img.RequestUpdate(visible, t.Scale, area)
}

// VisibleArea returns the part of a display-sized page visible in area at the
// given zoom and offset, in display coordinates.
func VisibleArea(display, area geom.IntSize, zoom float64, offset geom.Offset) geom.IntRect {
	visibleHeight := (float64(display.Height)*zoom - float64(area.Height)) / 2
	visibleWidth := (float64(display.Width)*zoom - float64(area.Width)) / 2

	top := clampInt(int(math.Round((visibleHeight-offset.Y)/zoom)), 0, display.Height)
	left := clampInt(int(math.Round((visibleWidth-offset.X)/zoom)), 0, display.Width)
	return geom.IntRect{
		Left:   left,
		Top:    top,
		Right:  min(int(math.Round(float64(left)+float64(area.Width)/zoom)), display.Width),
		Bottom: min(int(math.Round(float64(top)+float64(area.Height)/zoom)), display.Height),
	}
}

func clampInt(v, lo, hi int) int {
	return max(lo, min(v, hi))
}

func (c *Controller) scrollToFit() {
	c.screen.SetZoom(0, geom.Offset{})
	c.screen.ScrollTo(geom.Offset{})
}

func (c *Controller) scrollToPanel(imageSize geom.IntSize, panel image.Rectangle) {
	target := c.screen.TargetSize()
	targetSize := geom.IntSize{Width: int(math.Round(target.Width)), Height: int(math.Round(target.Height))}
	offset, zoom := PanelOffsetAndZoom(imageSize, c.screen.AreaSize().Get(), targetSize, panel)
	c.screen.SetZoom(zoom, geom.Offset{})
	c.screen.ScrollTo(offset)
}

// PanelOffsetAndZoom returns the viewport offset and zoom that fit panel into
// area, where the page of imageSize is displayed at targetSize.
func PanelOffsetAndZoom(imageSize, area, target geom.IntSize, panel image.Rectangle) (geom.Offset, float64) {
	xScale := float64(target.Width) / float64(imageSize.Width)
	yScale := float64(target.Height) / float64(imageSize.Height)

	left := float64(max(panel.Min.X, 0)) * xScale
	right := float64(min(panel.Max.X, imageSize.Width)) * xScale
	top := float64(max(panel.Min.Y, 0)) * yScale
	bottom := float64(min(panel.Max.Y, imageSize.Height)) * yScale
	width := right - left
	height := bottom - top

	scale := math.Min(float64(area.Width)/width, float64(area.Height)/height)
	fitToScreen := math.Max(
		float64(area.Width)/float64(target.Width),
		float64(area.Height)/float64(target.Height),
	)
	zoom := scale / fitToScreen

	centerX := -(left - float64(target.Width)/2)
	centerY := -(top - float64(target.Height)/2)
	offset := geom.Offset{
		X: (centerX - width/2) * scale,
		Y: (centerY - height/2) * scale,
	}
	return offset, zoom
}
