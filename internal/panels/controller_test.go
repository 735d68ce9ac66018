package panels

import (
	"context"
	"errors"
	"image"
	"image/color"
	"image/draw"
	"math"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Snd-R/Komelia-sub005/internal/geom"
	"github.com/Snd-R/Komelia-sub005/internal/observable"
	"github.com/Snd-R/Komelia-sub005/internal/page"
	"github.com/Snd-R/Komelia-sub005/internal/raster"
	"github.com/Snd-R/Komelia-sub005/internal/viewport"
)

type fakeImage struct {
	original *raster.Image
	closes   atomic.Int32

	mu       sync.Mutex
	requests []geom.IntRect
}

func (f *fakeImage) OriginalImage(ctx context.Context) (*raster.Image, error) {
	return f.original, ctx.Err()
}

func (f *fakeImage) OriginalSize(ctx context.Context) (geom.IntSize, error) {
	return geom.IntSize{Width: f.original.Width(), Height: f.original.Height()}, ctx.Err()
}

func (f *fakeImage) FitSize(area geom.IntSize, stretch bool) geom.IntSize {
	return geom.FitSize(geom.IntSize{Width: f.original.Width(), Height: f.original.Height()}, area, stretch)
}

func (f *fakeImage) RequestUpdate(visible geom.IntRect, zoom float64, maxDisplaySize geom.IntSize) {
	f.mu.Lock()
	f.requests = append(f.requests, visible)
	f.mu.Unlock()
}

func (f *fakeImage) Close() error {
	f.closes.Add(1)
	return nil
}

type fakeLoader struct {
	mu     sync.Mutex
	loads  map[page.ID]int
	images []*fakeImage
	fail   error
}

func (l *fakeLoader) LoadReaderImage(ctx context.Context, meta page.Metadata) ImageResult {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.loads == nil {
		l.loads = make(map[page.ID]int)
	}
	l.loads[meta.ID()]++
	if l.fail != nil {
		return ImageFailure{Err: l.fail}
	}
	img := &fakeImage{original: whitePage(meta.Width, meta.Height)}
	l.images = append(l.images, img)
	return ImageSuccess{Image: img}
}

func (l *fakeLoader) loadCount(id page.ID) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.loads[id]
}

func (l *fakeLoader) allImages() []*fakeImage {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]*fakeImage(nil), l.images...)
}

func whitePage(w, h int) *raster.Image {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	return raster.FromImage(img)
}

// fakeDetector returns the panels registered for a page width.
type fakeDetector struct {
	byWidth map[int][]image.Rectangle
	err     error
}

func (d fakeDetector) Detect(ctx context.Context, img *raster.Image) ([]image.Rectangle, error) {
	if d.err != nil {
		return nil, d.err
	}
	return d.byWidth[img.Width()], ctx.Err()
}

type fakeBooks struct {
	books    *observable.Value[*page.BookState]
	progress atomic.Int32
	loaded   atomic.Int32
}

func (b *fakeBooks) Books() *observable.Value[*page.BookState] { return b.books }

func (b *fakeBooks) LoadNextBook(ctx context.Context) error {
	current := b.books.Get()
	if current == nil || current.Next == nil {
		return errors.New("no next book")
	}
	b.loaded.Add(1)
	previous := current.Current
	b.books.Set(&page.BookState{Current: *current.Next, Previous: &previous, StartPage: 1})
	return nil
}

func (b *fakeBooks) LoadPreviousBook(ctx context.Context) error {
	return errors.New("no previous book")
}

func (b *fakeBooks) OnProgressChange(ctx context.Context, pageNumber int) error {
	b.progress.Store(int32(pageNumber))
	return nil
}

func testBook(id string, sizes ...geom.IntSize) page.Book {
	b := page.Book{ID: id, Title: id}
	for i, s := range sizes {
		b.Pages = append(b.Pages, page.Metadata{BookID: id, PageNumber: i + 1, Width: s.Width, Height: s.Height})
	}
	return b
}

var quarterPanels = []image.Rectangle{
	image.Rect(0, 0, 400, 400),
	image.Rect(600, 0, 1000, 400),
	image.Rect(0, 600, 400, 1000),
	image.Rect(600, 600, 1000, 1000),
}

func newTestController(t *testing.T, loader ImageLoader, detector Detector, books BookNavigator) *Controller {
	t.Helper()
	screen := viewport.NewScreenScale()
	screen.SetAreaSize(geom.IntSize{Width: 1000, Height: 1000})
	c := New(Config{
		Loader:           loader,
		Detector:         detector,
		Books:            books,
		Screen:           screen,
		ReadingDirection: LeftToRight,
		ViewportDebounce: -1,
	})
	t.Cleanup(func() { c.Close() })
	return c
}

func await[T any](t *testing.T, v *observable.Value[T], what string, pred func(T) bool) T {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	got, err := v.Await(ctx, pred)
	if err != nil {
		t.Fatalf("timed out waiting for %s, last value %+v", what, v.Get())
	}
	return got
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func loadedPage(bookID string, number int) func(*Page) bool {
	return func(p *Page) bool {
		return p != nil && p.Metadata.BookID == bookID && p.Metadata.PageNumber == number && p.Image != nil
	}
}

func TestPanelOffsetAndZoom(t *testing.T) {
	tests := []struct {
		name       string
		imageSize  geom.IntSize
		area       geom.IntSize
		target     geom.IntSize
		panel      image.Rectangle
		wantOffset geom.Offset
		wantZoom   float64
	}{
		{
			name:       "top left quarter",
			imageSize:  geom.IntSize{Width: 1000, Height: 1000},
			area:       geom.IntSize{Width: 1000, Height: 1000},
			target:     geom.IntSize{Width: 1000, Height: 1000},
			panel:      image.Rect(0, 0, 500, 500),
			wantOffset: geom.Offset{X: 500, Y: 500},
			wantZoom:   2,
		},
		{
			name:       "whole page",
			imageSize:  geom.IntSize{Width: 2000, Height: 2000},
			area:       geom.IntSize{Width: 1000, Height: 1000},
			target:     geom.IntSize{Width: 1000, Height: 1000},
			panel:      image.Rect(0, 0, 2000, 2000),
			wantOffset: geom.Offset{},
			wantZoom:   1,
		},
		{
			name:       "panel clipped to the page",
			imageSize:  geom.IntSize{Width: 1000, Height: 1000},
			area:       geom.IntSize{Width: 1000, Height: 1000},
			target:     geom.IntSize{Width: 1000, Height: 1000},
			panel:      image.Rect(500, 500, 1200, 1200),
			wantOffset: geom.Offset{X: -500, Y: -500},
			wantZoom:   2,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			offset, zoom := PanelOffsetAndZoom(tt.imageSize, tt.area, tt.target, tt.panel)
			if math.Abs(offset.X-tt.wantOffset.X) > 1e-9 || math.Abs(offset.Y-tt.wantOffset.Y) > 1e-9 {
				t.Errorf("offset = %+v, want %+v", offset, tt.wantOffset)
			}
			if math.Abs(zoom-tt.wantZoom) > 1e-9 {
				t.Errorf("zoom = %v, want %v", zoom, tt.wantZoom)
			}
		})
	}
}

func TestVisibleArea(t *testing.T) {
	display := geom.IntSize{Width: 1000, Height: 1000}
	area := geom.IntSize{Width: 1000, Height: 1000}
	tests := []struct {
		name   string
		zoom   float64
		offset geom.Offset
		want   geom.IntRect
	}{
		{"fit", 1, geom.Offset{}, geom.IntRect{Right: 1000, Bottom: 1000}},
		{"top left quarter", 2, geom.Offset{X: 500, Y: 500}, geom.IntRect{Right: 500, Bottom: 500}},
		{"centre", 2, geom.Offset{}, geom.IntRect{Left: 250, Top: 250, Right: 750, Bottom: 750}},
		{"bottom right quarter", 2, geom.Offset{X: -500, Y: -500}, geom.IntRect{Left: 500, Top: 500, Right: 1000, Bottom: 1000}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := VisibleArea(display, area, tt.zoom, tt.offset); got != tt.want {
				t.Errorf("VisibleArea() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestNavigation(t *testing.T) {
	size := geom.IntSize{Width: 1000, Height: 1000}
	narrow := geom.IntSize{Width: 800, Height: 1000}
	first := testBook("b1", size, narrow)
	second := testBook("b2", size)
	books := &fakeBooks{books: observable.NewValue(&page.BookState{Current: first, Next: &second, StartPage: 1})}
	loader := &fakeLoader{}
	detector := fakeDetector{byWidth: map[int][]image.Rectangle{1000: quarterPanels}}

	c := newTestController(t, loader, detector, books)
	c.Initialize()

	p := await(t, c.CurrentPage(), "first page", loadedPage("b1", 1))
	if p.Panels == nil || len(p.Panels.Panels) != 4 {
		t.Fatalf("panels = %+v, want 4 panels", p.Panels)
	}
	if p.Panels.CoversMajority {
		t.Errorf("CoversMajority = true for panels covering 64%% of the page")
	}
	await(t, c.screen.Transformation(), "zoom on first panel", func(tr viewport.Transformation) bool {
		return math.Abs(tr.Scale-2.5) < 1e-9
	})

	for want := 1; want <= 3; want++ {
		c.NextPanel()
		if got := c.CurrentIndex().Get(); got.Panel != want || got.Page != 0 {
			t.Fatalf("after NextPanel index = %+v, want panel %d", got, want)
		}
	}

	c.NextPanel()
	if got := c.CurrentIndex().Get(); !got.LastPanelZoomOutActive || got.Page != 0 {
		t.Fatalf("index = %+v, want zoom out on the last panel", got)
	}
	if lo, _ := c.screen.ZoomLimits(); c.screen.Zoom() != lo {
		t.Errorf("zoom = %v, want fit %v", c.screen.Zoom(), lo)
	}

	c.PreviousPanel()
	if got := c.CurrentIndex().Get(); got.Panel != 2 || got.LastPanelZoomOutActive {
		t.Errorf("after PreviousPanel index = %+v, want panel 2", got)
	}
	c.NextPanel()
	c.NextPanel()
	c.NextPanel()

	await(t, c.CurrentPage(), "second page", loadedPage("b1", 2))
	await(t, c.CurrentIndex(), "second page index", func(i PageIndex) bool { return i.Page == 1 })
	eventually(t, "progress saved", func() bool { return books.progress.Load() == 2 })

	// no panels on the last page: the next step ends the book
	c.NextPanel()
	end, ok := c.Transition().Get().(BookEnd)
	if !ok || end.Next == nil || end.Next.ID != "b2" {
		t.Fatalf("transition = %#v, want BookEnd with next book", c.Transition().Get())
	}

	c.NextPanel()
	await(t, c.CurrentPage(), "next book", loadedPage("b2", 1))
	if got := books.loaded.Load(); got != 1 {
		t.Errorf("next book loaded %d times, want 1", got)
	}
	if c.Transition().Get() != nil {
		t.Errorf("transition = %#v, want none", c.Transition().Get())
	}
}

func TestPanelStepIgnoresSupersededPage(t *testing.T) {
	size := geom.IntSize{Width: 1000, Height: 1000}
	book := testBook("b1", size, size)
	books := &fakeBooks{books: observable.NewValue[*page.BookState](nil)}
	c := newTestController(t, &fakeLoader{}, fakeDetector{}, books)

	c.pageMetadata.Set(book.Pages)
	c.currentPage.Set(&Page{
		Metadata: book.Pages[0],
		Panels:   &PanelData{Panels: quarterPanels, OriginalImageSize: size},
	})
	// a load of the second page published its index but not the page yet
	loading := PageIndex{Page: 1}
	c.currentIndex.Set(loading)
	before := c.screen.Transformation().Get()

	tests := []struct {
		name string
		step func()
	}{
		{"next", c.NextPanel},
		{"previous", c.PreviousPanel},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.step()
			if got := c.CurrentIndex().Get(); got != loading {
				t.Errorf("index = %+v, want %+v", got, loading)
			}
			if got := c.screen.Transformation().Get(); got != before {
				t.Errorf("transformation = %+v, want unchanged %+v", got, before)
			}
			if tr := c.Transition().Get(); tr != nil {
				t.Errorf("transition = %#v, want none", tr)
			}
		})
	}
}

func TestPreviousPanelAtBookStart(t *testing.T) {
	first := testBook("b1", geom.IntSize{Width: 1000, Height: 1000})
	books := &fakeBooks{books: observable.NewValue(&page.BookState{Current: first, StartPage: 1})}
	c := newTestController(t, &fakeLoader{}, fakeDetector{}, books)
	c.Initialize()
	await(t, c.CurrentPage(), "first page", loadedPage("b1", 1))

	c.PreviousPanel()
	start, ok := c.Transition().Get().(BookStart)
	if !ok || start.Previous != nil {
		t.Fatalf("transition = %#v, want BookStart without a previous book", c.Transition().Get())
	}
	// nothing to go back to
	c.PreviousPanel()
	if _, ok := c.Transition().Get().(BookStart); !ok {
		t.Errorf("transition = %#v, want BookStart to stay", c.Transition().Get())
	}

	c.NextPanel()
	if c.Transition().Get() != nil {
		t.Errorf("transition = %#v, want none after moving forward", c.Transition().Get())
	}
}

func TestOnNewBookStartPage(t *testing.T) {
	size := geom.IntSize{Width: 100, Height: 100}
	book := testBook("b1", size, size, size)
	tests := []struct {
		name      string
		startPage int
		want      int
	}{
		{"first", 1, 0},
		{"middle", 2, 1},
		{"past the end", 9, 2},
		{"zero", 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			books := &fakeBooks{books: observable.NewValue(&page.BookState{Current: book, StartPage: tt.startPage})}
			c := newTestController(t, &fakeLoader{}, fakeDetector{}, books)
			c.Initialize()
			await(t, c.CurrentPage(), "start page", loadedPage("b1", tt.want+1))
			if got := c.CurrentIndex().Get().Page; got != tt.want {
				t.Errorf("page = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestLaunchDownloadReusesJobs(t *testing.T) {
	loader := &fakeLoader{}
	c := newTestController(t, loader, fakeDetector{}, &fakeBooks{books: observable.NewValue[*page.BookState](nil)})
	meta := page.Metadata{BookID: "b", PageNumber: 1, Width: 10, Height: 10}

	a := c.launchDownload(meta)
	b := c.launchDownload(meta)
	if a != b {
		t.Fatal("launchDownload started a second load for a cached page")
	}
	if _, err := a.Await(context.Background()); err != nil {
		t.Fatalf("Await() error = %v", err)
	}
	if got := loader.loadCount(meta.ID()); got != 1 {
		t.Errorf("loads = %d, want 1", got)
	}

	// a cancelled load is replaced
	c.mu.Lock()
	c.loadCancel()
	c.loadCtx, c.loadCancel = context.WithCancel(c.rootCtx)
	c.mu.Unlock()
	other := page.Metadata{BookID: "b", PageNumber: 2, Width: 10, Height: 10}
	cancelled := startJob(canceledContext(), func(ctx context.Context) (*Page, error) { return nil, ctx.Err() })
	c.cache.Add(other.ID(), cancelled)
	if got := c.launchDownload(other); got == cancelled {
		t.Error("launchDownload returned a cancelled job")
	}
}

// heldLoader blocks every load until release is closed. Its images ignore
// cancellation, so a load cancelled while held still succeeds.
type heldLoader struct {
	release chan struct{}
	started chan struct{}

	mu     sync.Mutex
	images []*fakeImage
}

type uncancellableImage struct{ *fakeImage }

func (u uncancellableImage) OriginalImage(context.Context) (*raster.Image, error) {
	return u.original, nil
}

func (l *heldLoader) LoadReaderImage(ctx context.Context, meta page.Metadata) ImageResult {
	img := &fakeImage{original: whitePage(meta.Width, meta.Height)}
	l.mu.Lock()
	l.images = append(l.images, img)
	l.mu.Unlock()
	l.started <- struct{}{}
	<-l.release
	return ImageSuccess{Image: uncancellableImage{img}}
}

func TestReplacedJobClosesImage(t *testing.T) {
	loader := &heldLoader{release: make(chan struct{}), started: make(chan struct{}, 2)}
	c := New(Config{Loader: loader, Books: &fakeBooks{}, Screen: viewport.NewScreenScale()})
	meta := page.Metadata{BookID: "b", PageNumber: 1, Width: 10, Height: 10}

	first := c.launchDownload(meta)
	<-loader.started
	c.mu.Lock()
	c.loadCancel()
	c.loadCtx, c.loadCancel = context.WithCancel(c.rootCtx)
	c.mu.Unlock()

	second := c.launchDownload(meta)
	if second == first {
		t.Fatal("launchDownload kept a cancelled job")
	}
	<-loader.started
	close(loader.release)

	if _, err := first.Await(context.Background()); !errors.Is(err, context.Canceled) {
		t.Errorf("cancelled job Await() error = %v, want context.Canceled", err)
	}
	if _, err := second.Await(context.Background()); err != nil {
		t.Fatalf("second job Await() error = %v", err)
	}
	c.Close()

	loader.mu.Lock()
	defer loader.mu.Unlock()
	if len(loader.images) != 2 {
		t.Fatalf("loaded %d images, want 2", len(loader.images))
	}
	for i, img := range loader.images {
		if got := img.closes.Load(); got != 1 {
			t.Errorf("image %d closed %d times, want 1", i, got)
		}
	}
}

func canceledContext() context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	return ctx
}

func TestEvictionClosesImagesOnce(t *testing.T) {
	loader := &fakeLoader{}
	screen := viewport.NewScreenScale()
	c := New(Config{Loader: loader, Books: &fakeBooks{}, Screen: screen, CacheSize: 2})

	for i := 1; i <= 5; i++ {
		job := c.launchDownload(page.Metadata{BookID: "b", PageNumber: i, Width: 10, Height: 10})
		if _, err := job.Await(context.Background()); err != nil {
			t.Fatalf("page %d: %v", i, err)
		}
	}
	c.Close()

	images := loader.allImages()
	if len(images) != 5 {
		t.Fatalf("loaded %d images, want 5", len(images))
	}
	for i, img := range images {
		if got := img.closes.Load(); got != 1 {
			t.Errorf("image %d closed %d times, want 1", i, got)
		}
	}
}

func TestDownload(t *testing.T) {
	meta := page.Metadata{BookID: "b", PageNumber: 1, Width: 1000, Height: 1000}

	t.Run("load failure", func(t *testing.T) {
		c := newTestController(t, &fakeLoader{fail: errors.New("gone")}, fakeDetector{}, &fakeBooks{})
		p, err := c.download(context.Background(), meta)
		if err != nil {
			t.Fatalf("download() error = %v", err)
		}
		if _, ok := p.Image.(ImageFailure); !ok || p.Panels != nil {
			t.Errorf("page = %+v, want image failure without panels", p)
		}
	})

	t.Run("detection error falls back to the whole page", func(t *testing.T) {
		loader := &fakeLoader{}
		detector := fakeDetector{err: &DetectionError{Err: errors.New("no runtime")}}
		c := newTestController(t, loader, detector, &fakeBooks{})
		p, err := c.download(context.Background(), meta)
		if err != nil {
			t.Fatalf("download() error = %v", err)
		}
		if ImageOf(p.Image) == nil || p.Panels != nil {
			t.Errorf("page = %+v, want image without panels", p)
		}
		if got := loader.allImages()[0].closes.Load(); got != 0 {
			t.Errorf("image closed %d times, want 0", got)
		}
	})

	t.Run("other detector errors fail the page", func(t *testing.T) {
		loader := &fakeLoader{}
		c := newTestController(t, loader, fakeDetector{err: errors.New("broken")}, &fakeBooks{})
		p, err := c.download(context.Background(), meta)
		if err != nil {
			t.Fatalf("download() error = %v", err)
		}
		if _, ok := p.Image.(ImageFailure); !ok {
			t.Errorf("image = %#v, want failure", p.Image)
		}
		if got := loader.allImages()[0].closes.Load(); got != 1 {
			t.Errorf("image closed %d times, want 1", got)
		}
	})

	t.Run("cancelled", func(t *testing.T) {
		loader := &fakeLoader{}
		c := newTestController(t, loader, fakeDetector{}, &fakeBooks{})
		if _, err := c.download(canceledContext(), meta); !errors.Is(err, context.Canceled) {
			t.Errorf("download() error = %v, want context.Canceled", err)
		}
		if got := loader.allImages()[0].closes.Load(); got != 1 {
			t.Errorf("image closed %d times, want 1", got)
		}
	})
}

func TestCoverageRatio(t *testing.T) {
	framed := func() *raster.Image {
		img := image.NewNRGBA(image.Rect(0, 0, 1000, 1000))
		draw.Draw(img, img.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
		draw.Draw(img, image.Rect(100, 100, 900, 900), image.NewUniform(color.Black), image.Point{}, draw.Src)
		return raster.FromImage(img)
	}
	inner := []image.Rectangle{
		image.Rect(100, 100, 500, 500),
		image.Rect(500, 100, 900, 500),
		image.Rect(100, 500, 500, 900),
		image.Rect(500, 500, 900, 900),
	}
	size := geom.IntSize{Width: 1000, Height: 1000}
	c := New(Config{Books: &fakeBooks{}, Screen: viewport.NewScreenScale()})
	defer c.Close()

	tests := []struct {
		name   string
		img    *raster.Image
		panels []image.Rectangle
		want   float64
	}{
		{"white margins trimmed", framed(), inner, 1},
		{"uniform page", whitePage(1000, 1000), quarterPanels, 0.64},
		{"overlapping panels counted once", whitePage(1000, 1000), []image.Rectangle{
			image.Rect(0, 0, 1000, 900), image.Rect(0, 0, 1000, 900),
		}, 0.9},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := c.coverageRatio(tt.img, tt.panels, size); math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("coverageRatio() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestReadingDirectionChangeResorts(t *testing.T) {
	book := testBook("b1", geom.IntSize{Width: 1000, Height: 1000})
	books := &fakeBooks{books: observable.NewValue(&page.BookState{Current: book, StartPage: 1})}
	detector := fakeDetector{byWidth: map[int][]image.Rectangle{1000: quarterPanels}}
	var persisted atomic.Int32
	screen := viewport.NewScreenScale()
	screen.SetAreaSize(geom.IntSize{Width: 1000, Height: 1000})
	c := New(Config{
		Loader:                   &fakeLoader{},
		Detector:                 detector,
		Books:                    books,
		Screen:                   screen,
		OnReadingDirectionChange: func(d ReadingDirection) { persisted.Store(int32(d) + 1) },
		ViewportDebounce:         -1,
	})
	defer c.Close()
	c.Initialize()

	p := await(t, c.CurrentPage(), "page", loadedPage("b1", 1))
	if got := p.Panels.Panels[0]; got != quarterPanels[0] {
		t.Fatalf("first panel = %v, want top left", got)
	}
	c.NextPanel()

	c.OnReadingDirectionChange(RightToLeft)
	await(t, c.CurrentPage(), "re-sorted page", func(p *Page) bool {
		return p != nil && p.Panels != nil && len(p.Panels.Panels) > 0 && p.Panels.Panels[0] == quarterPanels[1]
	})
	await(t, c.CurrentIndex(), "panel reset", func(i PageIndex) bool { return i.Panel == 0 })
	if got := persisted.Load(); got != int32(RightToLeft)+1 {
		t.Errorf("persisted direction = %d, want right to left", got-1)
	}
}

func TestNextPageSkipsPanels(t *testing.T) {
	size := geom.IntSize{Width: 1000, Height: 1000}
	book := testBook("b1", size, size)
	books := &fakeBooks{books: observable.NewValue(&page.BookState{Current: book, StartPage: 1})}
	detector := fakeDetector{byWidth: map[int][]image.Rectangle{1000: quarterPanels}}
	c := newTestController(t, &fakeLoader{}, detector, books)
	c.Initialize()
	await(t, c.CurrentPage(), "first page", loadedPage("b1", 1))

	c.NextPanel()
	c.NextPage()
	await(t, c.CurrentPage(), "second page", loadedPage("b1", 2))
	if got := await(t, c.CurrentIndex(), "second page index", func(i PageIndex) bool { return i.Page == 1 }); got.Panel != 0 {
		t.Errorf("index = %+v, want the first panel", got)
	}

	c.PreviousPage()
	await(t, c.CurrentPage(), "first page again", loadedPage("b1", 1))
	if got := c.CurrentIndex().Get(); got.Panel != 0 {
		t.Errorf("index = %+v, want the first panel", got)
	}
}

func TestRefreshRequestsUpdate(t *testing.T) {
	book := testBook("b1", geom.IntSize{Width: 500, Height: 500})
	books := &fakeBooks{books: observable.NewValue(&page.BookState{Current: book, StartPage: 1})}
	loader := &fakeLoader{}
	c := newTestController(t, loader, fakeDetector{}, books)
	c.Initialize()
	await(t, c.CurrentPage(), "first page", loadedPage("b1", 1))

	images := loader.allImages()
	if len(images) == 0 {
		t.Fatal("no image loaded")
	}
	img := images[0]
	count := func() int {
		img.mu.Lock()
		defer img.mu.Unlock()
		return len(img.requests)
	}
	before := count()
	c.Refresh()
	if got := count(); got <= before {
		t.Errorf("requests = %d after Refresh, want more than %d", got, before)
	}
}
