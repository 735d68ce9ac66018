package main

import (
	"time"

	"github.com/Snd-R/Komelia-sub005/internal/geom"
	"github.com/Snd-R/Komelia-sub005/internal/panels"
	"github.com/Snd-R/Komelia-sub005/internal/tiling"
	"github.com/Snd-R/Komelia-sub005/internal/viewport"
)

const (
	// Overlay message display duration
	overlayMessageDuration = 2 * time.Second
)

// OverlayMessage is a short notice shown over the page.
type OverlayMessage struct {
	Text string
	At   time.Time
}

// Active reports whether the message is still shown at now.
func (m OverlayMessage) Active(now time.Time) bool {
	return m.Text != "" && now.Sub(m.At) < overlayMessageDuration
}

// ReaderFrame is everything the renderer needs to draw the reader area for
// one frame.
type ReaderFrame struct {
	Area           geom.IntSize
	Target         geom.Size
	Zoom           float64
	Transformation viewport.Transformation
	Painter        *tiling.Painter
	Pass           tiling.PassStats
	Transition     panels.Transition
	Err            error
	Loading        bool

	BookTitle  string
	PageNumber int
	TotalPages int
	Panel      int
	PanelCount int
	Direction  panels.ReadingDirection
}

// RenderState provides read-only access to game state for the renderer
type RenderState interface {
	GetReaderFrame() ReaderFrame

	IsShowingHelp() bool
	IsShowingInfo() bool
	IsShowingTileGrid() bool
	IsInPageInputMode() bool
	GetPageInputBuffer() string
	GetOverlayMessage() OverlayMessage

	GetTotalPagesCount() int
	GetFontSize() float64
	GetConfigStatus() ConfigLoadResult
	GetKeybindings() map[string][]string
	GetMousebindings() map[string][]string
}

// RenderStateSnapshot captures what a frame showed so that identical frames
// are not redrawn.
type RenderStateSnapshot struct {
	Frame         ReaderFrame
	OverlayActive bool
	Overlay       string
	Help          bool
	Info          bool
	TileGrid      bool
	PageInput     bool
	PageBuffer    string
	WindowWidth   int
	WindowHeight  int
}

func NewRenderStateSnapshot(state RenderState, windowWidth, windowHeight int, now time.Time) *RenderStateSnapshot {
	overlay := state.GetOverlayMessage()
	return &RenderStateSnapshot{
		Frame:         state.GetReaderFrame(),
		OverlayActive: overlay.Active(now),
		Overlay:       overlay.Text,
		Help:          state.IsShowingHelp(),
		Info:          state.IsShowingInfo(),
		TileGrid:      state.IsShowingTileGrid(),
		PageInput:     state.IsInPageInputMode(),
		PageBuffer:    state.GetPageInputBuffer(),
		WindowWidth:   windowWidth,
		WindowHeight:  windowHeight,
	}
}

// Equals checks if two snapshots would draw the same frame. Painters are
// immutable once published, so pointer equality is enough.
func (s *RenderStateSnapshot) Equals(other *RenderStateSnapshot) bool {
	if other == nil {
		return false
	}
	a, b := s.Frame, other.Frame
	frameEqual := a.Area == b.Area &&
		a.Target == b.Target &&
		a.Zoom == b.Zoom &&
		a.Transformation == b.Transformation &&
		a.Painter == b.Painter &&
		transitionKey(a.Transition) == transitionKey(b.Transition) &&
		errorText(a.Err) == errorText(b.Err) &&
		a.Loading == b.Loading &&
		a.PageNumber == b.PageNumber &&
		a.TotalPages == b.TotalPages &&
		a.Panel == b.Panel &&
		a.PanelCount == b.PanelCount &&
		a.Direction == b.Direction &&
		a.BookTitle == b.BookTitle &&
		a.Pass == b.Pass

	return frameEqual &&
		s.OverlayActive == other.OverlayActive &&
		s.Overlay == other.Overlay &&
		s.Help == other.Help &&
		s.Info == other.Info &&
		s.TileGrid == other.TileGrid &&
		s.PageInput == other.PageInput &&
		s.PageBuffer == other.PageBuffer &&
		s.WindowWidth == other.WindowWidth &&
		s.WindowHeight == other.WindowHeight
}

// transitionKey identifies a transition; transitions hold slices and cannot
// be compared directly.
func transitionKey(t panels.Transition) string {
	switch t := t.(type) {
	case panels.BookStart:
		return "start:" + t.Current.ID
	case panels.BookEnd:
		return "end:" + t.Current.ID
	}
	return ""
}

func errorText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// InputActions provides action methods for the input handler
type InputActions interface {
	Exit()

	ToggleHelp()
	ToggleInfo()
	ToggleFullscreen()
	ToggleTileGrid()

	EnterPageInputMode()
	ExitPageInputMode()
	ProcessPageInput()
	UpdatePageInputBuffer(buffer string)

	ToggleReadingDirection()
	ToggleStretchToFit()

	NextPanel()
	PreviousPanel()
	NextPage()
	PreviousPage()
	JumpToPage(page int)

	// Zoom multiplies the zoom around the cursor, or the area centre when
	// the cursor is outside the window.
	Zoom(multiplier float64)
	ZoomFit()
	// Pan moves the page by a fraction of the area size.
	Pan(fx, fy float64)
	// PanByDelta moves the page by screen pixels.
	PanByDelta(deltaX, deltaY float64)

	AdjustColors(brightness, contrast float64)
	ResetColors()

	ShowOverlayMessage(message string)

	GetTotalPagesCount() int
}

// InputState provides read-only access to input-related state
type InputState interface {
	IsInPageInputMode() bool
	GetPageInputBuffer() string
}
