package main

import (
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/hajimehoshi/ebiten/v2"

	"github.com/Snd-R/Komelia-sub005/internal/geom"
	"github.com/Snd-R/Komelia-sub005/internal/observable"
	"github.com/Snd-R/Komelia-sub005/internal/panels"
	"github.com/Snd-R/Komelia-sub005/internal/processing"
	"github.com/Snd-R/Komelia-sub005/internal/raster"
	"github.com/Snd-R/Komelia-sub005/internal/source"
	"github.com/Snd-R/Komelia-sub005/internal/tiling"
	"github.com/Snd-R/Komelia-sub005/internal/viewport"
)

// paintSource is implemented by page images that render through tiling.
type paintSource interface {
	Painter() *observable.Value[*tiling.Painter]
	Error() *observable.Value[error]
	LastPass() tiling.PassStats
}

// Game is the Ebiten front end of the panel reader.
type Game struct {
	logger   *slog.Logger
	configs  *ConfigManager
	config   Config
	library  *source.Library
	screen   *viewport.ScreenScale
	reader   *panels.Controller
	settings *observable.Value[tiling.RenderSettings]
	colors   *processing.ColorCorrection

	keys     *KeybindingManager
	mouse    *MousebindingManager
	input    *InputHandler
	renderer *Renderer

	showHelp        bool
	showInfo        bool
	showTileGrid    bool
	pageInputMode   bool
	pageInputBuffer string
	messages        *observable.Value[OverlayMessage]

	// pending is a config reloaded from disk, applied on the next Update.
	pending atomic.Pointer[Config]

	savedWinW int
	savedWinH int
	exiting   atomic.Bool
}

// NewGame wires the reader for the books of library. The returned game owns
// the reader; call Close when the window is gone.
func NewGame(configs *ConfigManager, library *source.Library, logger *slog.Logger) *Game {
	cfg := configs.Get()
	g := &Game{
		logger:       logger.With("component", "game"),
		configs:      configs,
		config:       cfg,
		library:      library,
		screen:       viewport.NewScreenScale(),
		settings:     observable.NewValue(cfg.RenderSettings()),
		colors:       processing.NewColorCorrection(cfg.Correction()),
		showTileGrid: cfg.ShowTileGrid,
		messages:     observable.NewValue(OverlayMessage{}),
	}
	g.screen.SetAreaSize(geom.IntSize{Width: cfg.WindowWidth, Height: cfg.WindowHeight})

	pipeline := processing.NewPipeline(logger, g.colors)
	g.colors.Attach(pipeline)

	g.reader = panels.New(panels.Config{
		Loader: &panels.TilingLoader{
			Pages:     library,
			Decoder:   raster.StdDecoder{},
			Processor: pipeline,
			Platform:  tiling.ImagingPlatform{Surfaces: ebitenSurfaces{}},
			Settings:  g.settings,
			Tuning:    cfg.Tuning(),
			Logger:    logger,
		},
		Detector: panels.GutterDetector{},
		Books:    library,
		Screen:   g.screen,
		StretchToFit: func() bool {
			return g.settings.Get().StretchToFit
		},
		ReadingDirection:         cfg.ReadingDirection(),
		OnReadingDirectionChange: g.persistReadingDirection,
		Notify:                   g.ShowOverlayMessage,
		CacheSize:                cfg.CacheSize,
		CoverageThreshold:        cfg.CoverageThreshold,
		TrimThreshold:            cfg.TrimThreshold,
		Logger:                   logger,
	})

	g.keys = NewKeybindingManager(cfg.Keybindings)
	g.mouse = NewMousebindingManager(cfg.Mousebindings, cfg.MouseSettings)
	g.input = NewInputHandler(g, g, g.keys, g.mouse)
	g.renderer = NewRenderer(g)

	configs.OnChange(func(c Config) {
		g.pending.Store(&c)
	})
	return g
}

// Start begins loading the first book.
func (g *Game) Start() {
	g.reader.Initialize()
}

// Close saves the window size and stops the reader.
func (g *Game) Close() error {
	if !ebiten.IsFullscreen() {
		if w, h := ebiten.WindowSize(); w > 0 && h > 0 {
			g.updateConfig(func(c *Config) {
				c.WindowWidth, c.WindowHeight = w, h
			})
		}
	}
	return g.reader.Close()
}

func (g *Game) Update() error {
	if next := g.pending.Swap(nil); next != nil {
		g.applyConfig(*next)
	}
	if !g.exiting.Load() {
		g.input.HandleInput(time.Now())
	}
	if g.exiting.Load() {
		return ebiten.Termination
	}
	return nil
}

func (g *Game) Draw(screen *ebiten.Image) {
	g.renderer.Draw(screen)
}

func (g *Game) Layout(outsideWidth, outsideHeight int) (int, int) {
	area := geom.IntSize{Width: outsideWidth, Height: outsideHeight}
	if area != g.screen.AreaSize().Get() {
		g.screen.SetAreaSize(area)
	}
	return outsideWidth, outsideHeight
}

// applyConfig applies a config changed on disk. Only the differences are
// applied; settings read at startup need a restart.
func (g *Game) applyConfig(next Config) {
	prev := g.config
	g.config = next

	g.keys.UpdateKeybindings(next.Keybindings)
	g.mouse.UpdateMousebindings(next.Mousebindings)
	g.mouse.UpdateSettings(next.MouseSettings)
	g.showTileGrid = next.ShowTileGrid

	if next.RenderSettings() != prev.RenderSettings() {
		g.settings.Set(next.RenderSettings())
		if next.StretchToFit != prev.StretchToFit {
			g.reader.Refresh()
		}
	}
	g.colors.Set(next.Correction())
	if next.ReadingDirection() != g.reader.ReadingDirection().Get() {
		g.reader.OnReadingDirectionChange(next.ReadingDirection())
	}
	if next.Fullscreen != ebiten.IsFullscreen() {
		g.setFullscreen(next.Fullscreen)
	}
	if next.CacheSize != prev.CacheSize || next.SortMethod != prev.SortMethod ||
		next.CoverageThreshold != prev.CoverageThreshold || next.TrimThreshold != prev.TrimThreshold ||
		next.Tiling != prev.Tiling {
		g.logger.Info("some config changes take effect on restart")
	}
	g.ShowOverlayMessage("Config reloaded")
}

// updateConfig changes the config and saves it.
func (g *Game) updateConfig(fn func(*Config)) {
	fn(&g.config)
	if err := g.configs.Save(g.config); err != nil {
		g.logger.Warn("failed to save config", "path", g.configs.Path(), "error", err)
	}
}

func (g *Game) persistReadingDirection(direction panels.ReadingDirection) {
	rtl := direction == panels.RightToLeft
	if g.config.RightToLeft == rtl {
		return
	}
	g.updateConfig(func(c *Config) { c.RightToLeft = rtl })
}

// GetReaderFrame collects the reader state for the renderer.
func (g *Game) GetReaderFrame() ReaderFrame {
	idx := g.reader.CurrentIndex().Get()
	frame := ReaderFrame{
		Area:           g.screen.AreaSize().Get(),
		Target:         g.screen.TargetSize(),
		Zoom:           g.screen.Zoom(),
		Transformation: g.screen.Transformation().Get(),
		Transition:     g.reader.Transition().Get(),
		PageNumber:     idx.Page + 1,
		TotalPages:     len(g.reader.PageMetadata().Get()),
		Panel:          idx.Panel,
		Direction:      g.reader.ReadingDirection().Get(),
	}
	if state := g.library.Books().Get(); state != nil {
		frame.BookTitle = state.Current.Title
	}

	p := g.reader.CurrentPage().Get()
	if p == nil {
		frame.Loading = true
		return frame
	}
	if p.Panels != nil {
		frame.PanelCount = len(p.Panels.Panels)
	}
	switch result := p.Image.(type) {
	case nil:
		frame.Loading = true
	case panels.ImageFailure:
		frame.Err = result.Err
	case panels.ImageSuccess:
		src, ok := result.Image.(paintSource)
		if !ok {
			break
		}
		frame.Painter = src.Painter().Get()
		frame.Pass = src.LastPass()
		frame.Err = src.Error().Get()
		frame.Loading = frame.Painter == nil && frame.Err == nil
	}
	return frame
}

// RenderState

func (g *Game) IsShowingHelp() bool                   { return g.showHelp }
func (g *Game) IsShowingInfo() bool                   { return g.showInfo }
func (g *Game) IsShowingTileGrid() bool               { return g.showTileGrid }
func (g *Game) IsInPageInputMode() bool               { return g.pageInputMode }
func (g *Game) GetPageInputBuffer() string            { return g.pageInputBuffer }
func (g *Game) GetOverlayMessage() OverlayMessage     { return g.messages.Get() }
func (g *Game) GetTotalPagesCount() int               { return len(g.reader.PageMetadata().Get()) }
func (g *Game) GetFontSize() float64                  { return g.config.HelpFontSize }
func (g *Game) GetConfigStatus() ConfigLoadResult     { return g.configs.Status() }
func (g *Game) GetKeybindings() map[string][]string   { return g.keys.GetKeybindings() }
func (g *Game) GetMousebindings() map[string][]string { return g.mouse.GetMousebindings() }

// InputActions

// Exit ends the game loop on the next Update. Safe from any goroutine.
func (g *Game) Exit() { g.exiting.Store(true) }

func (g *Game) ToggleHelp() { g.showHelp = !g.showHelp }
func (g *Game) ToggleInfo() { g.showInfo = !g.showInfo }

func (g *Game) ToggleTileGrid() {
	g.showTileGrid = !g.showTileGrid
	g.updateConfig(func(c *Config) { c.ShowTileGrid = g.showTileGrid })
}

func (g *Game) ToggleFullscreen() {
	fullscreen := !ebiten.IsFullscreen()
	g.setFullscreen(fullscreen)
	g.updateConfig(func(c *Config) { c.Fullscreen = fullscreen })
}

func (g *Game) setFullscreen(fullscreen bool) {
	if fullscreen {
		g.savedWinW, g.savedWinH = ebiten.WindowSize()
		ebiten.SetFullscreen(true)
		return
	}
	ebiten.SetFullscreen(false)
	if g.savedWinW > 0 && g.savedWinH > 0 {
		ebiten.SetWindowSize(g.savedWinW, g.savedWinH)
	}
}

func (g *Game) EnterPageInputMode() {
	g.pageInputMode = true
	g.pageInputBuffer = ""
}

func (g *Game) ExitPageInputMode() {
	g.pageInputMode = false
	g.pageInputBuffer = ""
}

func (g *Game) ProcessPageInput() {
	if g.pageInputBuffer == "" {
		return
	}
	total := g.GetTotalPagesCount()
	n, ok := parsePageInput(g.pageInputBuffer, total)
	if !ok {
		g.ShowOverlayMessage(fmt.Sprintf("Invalid page: %s (1-%d)", g.pageInputBuffer, total))
		return
	}
	g.JumpToPage(n)
}

func (g *Game) UpdatePageInputBuffer(buffer string) { g.pageInputBuffer = buffer }

func (g *Game) ToggleReadingDirection() {
	next := panels.RightToLeft
	if g.reader.ReadingDirection().Get() == panels.RightToLeft {
		next = panels.LeftToRight
	}
	g.reader.OnReadingDirectionChange(next)
	g.ShowOverlayMessage("Panels " + next.String())
}

func (g *Game) ToggleStretchToFit() {
	settings := g.settings.Update(func(s tiling.RenderSettings) tiling.RenderSettings {
		s.StretchToFit = !s.StretchToFit
		return s
	})
	g.updateConfig(func(c *Config) { c.StretchToFit = settings.StretchToFit })
	g.reader.Refresh()
	if settings.StretchToFit {
		g.ShowOverlayMessage("Stretch to fit: on")
	} else {
		g.ShowOverlayMessage("Stretch to fit: off")
	}
}

func (g *Game) NextPanel()     { g.reader.NextPanel() }
func (g *Game) PreviousPanel() { g.reader.PreviousPanel() }
func (g *Game) NextPage()      { g.reader.NextPage() }
func (g *Game) PreviousPage()  { g.reader.PreviousPage() }

// JumpToPage opens the 1-based page.
func (g *Game) JumpToPage(page int) {
	g.reader.OnPageChange(page - 1)
}

func (g *Game) Zoom(multiplier float64) {
	g.screen.MultiplyZoom(multiplier, g.cursorFocus())
}

// cursorFocus is the cursor position relative to the area centre, or the
// centre itself when the cursor is outside the area.
func (g *Game) cursorFocus() geom.Offset {
	area := g.screen.AreaSize().Get()
	x, y := ebiten.CursorPosition()
	if x < 0 || y < 0 || x >= area.Width || y >= area.Height {
		return geom.Offset{}
	}
	return geom.Offset{X: float64(x) - float64(area.Width)/2, Y: float64(y) - float64(area.Height)/2}
}

func (g *Game) ZoomFit() {
	g.screen.SetZoom(0, geom.Offset{})
	g.screen.ScrollTo(geom.Offset{})
}

func (g *Game) Pan(fx, fy float64) {
	area := g.screen.AreaSize().Get()
	g.PanByDelta(fx*float64(area.Width), fy*float64(area.Height))
}

func (g *Game) PanByDelta(deltaX, deltaY float64) {
	scale := g.screen.Transformation().Get().Scale
	if scale <= 0 {
		return
	}
	g.screen.AddPan(geom.Offset{X: deltaX / scale, Y: deltaY / scale})
}

func (g *Game) AdjustColors(brightness, contrast float64) {
	c := g.colors.Get()
	c.Brightness = clampFloat(c.Brightness+brightness, -maxColorAdjust, maxColorAdjust)
	c.Contrast = clampFloat(c.Contrast+contrast, -maxColorAdjust, maxColorAdjust)
	g.setCorrection(c)
	g.ShowOverlayMessage(fmt.Sprintf("Brightness %+.0f  Contrast %+.0f", c.Brightness, c.Contrast))
}

func (g *Game) ResetColors() {
	g.setCorrection(processing.Correction{Gamma: 1})
	g.ShowOverlayMessage("Colors reset")
}

func (g *Game) setCorrection(c processing.Correction) {
	g.colors.Set(c)
	g.updateConfig(func(cfg *Config) {
		cfg.Brightness, cfg.Contrast = c.Brightness, c.Contrast
		cfg.Saturation, cfg.Gamma = c.Saturation, c.Gamma
	})
}

// ShowOverlayMessage is safe to call from any goroutine.
func (g *Game) ShowOverlayMessage(message string) {
	g.messages.Set(OverlayMessage{Text: message, At: time.Now()})
}
