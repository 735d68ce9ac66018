package main

import (
	"fmt"
	"image/color"
	"math"
	"strings"
	"time"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/text/v2"

	"github.com/Snd-R/Komelia-sub005/internal/panels"
	"github.com/Snd-R/Komelia-sub005/internal/tiling"
)

// Common colors used in rendering
var (
	colorWhite     = color.RGBA{255, 255, 255, 255}
	colorGray      = color.RGBA{180, 180, 180, 255}
	colorLightGray = color.RGBA{192, 192, 192, 255}
	colorYellow    = color.RGBA{255, 255, 100, 255}
	colorCyan      = color.RGBA{100, 255, 255, 255}
	colorLightBlue = color.RGBA{200, 200, 255, 255}
	colorGreen     = color.RGBA{100, 255, 100, 255}
	colorOrange    = color.RGBA{255, 200, 100, 255}
	colorLightRed  = color.RGBA{255, 150, 150, 255}
	colorMagenta   = color.RGBA{255, 0, 255, 255}
	colorErrorBg   = color.RGBA{120, 30, 30, 255}
	colorPageBg    = color.RGBA{40, 40, 40, 255}

	// Background colors for semi-transparent overlays
	bgColorLight  = color.RGBA{0, 0, 0, 128}
	bgColorMedium = color.RGBA{0, 0, 0, 160}
	bgColorDark   = color.RGBA{0, 0, 0, 200}
)

const (
	helpPadding       = 40.0
	helpMaxWarnings   = 2
	helpMinFontSize   = 12.0
	helpSearchEpsilon = 0.5
)

// Renderer handles all drawing operations
type Renderer struct {
	renderState  RenderState
	lastSnapshot *RenderStateSnapshot
}

func NewRenderer(renderState RenderState) *Renderer {
	return &Renderer{renderState: renderState}
}

// Draw renders the entire screen. Frames identical to the previous one are
// skipped; the game disables clearing the screen every frame.
func (r *Renderer) Draw(screen *ebiten.Image) {
	w, h := screen.Bounds().Dx(), screen.Bounds().Dy()
	snapshot := NewRenderStateSnapshot(r.renderState, w, h, time.Now())
	if snapshot.Equals(r.lastSnapshot) {
		return
	}
	r.lastSnapshot = snapshot

	screen.Clear()
	frame := snapshot.Frame
	switch {
	case frame.Transition != nil:
		r.drawTransition(screen, frame.Transition)
	case frame.Err != nil:
		r.drawPageError(screen, frame)
	default:
		r.drawPage(screen, frame)
		if snapshot.TileGrid {
			r.drawTileGrid(screen, frame)
		}
	}

	if snapshot.Info {
		r.drawInfoDisplay(screen, frame)
	}
	if snapshot.Help {
		r.drawHelpOverlay(screen)
	}
	if snapshot.PageInput {
		r.drawPageInputOverlay(screen)
	}
	if snapshot.OverlayActive {
		r.drawOverlayMessage(screen, snapshot.Overlay)
	}
}

// screenRect maps a rectangle in painter display coordinates onto the screen.
// The painter may lag behind a resize, so display coordinates are first
// rescaled to the current target.
func screenRect(frame ReaderFrame, left, top, right, bottom float64) (x, y, w, h float64) {
	display := frame.Painter.DisplaySize
	target := frame.Target
	if target.Width <= 0 || target.Height <= 0 {
		target = display.ToSize()
	}
	sx := target.Width / float64(display.Width) * frame.Transformation.Scale
	sy := target.Height / float64(display.Height) * frame.Transformation.Scale
	t := frame.Transformation
	x = float64(frame.Area.Width)/2 + (left-float64(display.Width)/2)*sx + t.Offset.X
	y = float64(frame.Area.Height)/2 + (top-float64(display.Height)/2)*sy + t.Offset.Y
	return x, y, (right - left) * sx, (bottom - top) * sy
}

func (r *Renderer) drawPage(screen *ebiten.Image, frame ReaderFrame) {
	painter := frame.Painter
	if painter == nil || painter.DisplaySize.IsZero() {
		if frame.Loading {
			DrawCenteredText(screen, "Loading…", newFace(r.renderState.GetFontSize()),
				float64(frame.Area.Width)/2, float64(frame.Area.Height)/2, colorGray)
		}
		return
	}

	x, y, w, h := screenRect(frame, 0, 0, float64(painter.DisplaySize.Width), float64(painter.DisplaySize.Height))
	if painter.Placeholder {
		DrawFilledRect(screen, x, y, w, h, colorPageBg)
		DrawCenteredText(screen, "Loading…", newFace(r.renderState.GetFontSize()), x+w/2, y+h/2, colorGray)
		return
	}

	for _, tile := range painter.Tiles {
		r.drawTile(screen, frame, tile)
	}
}

func (r *Renderer) drawTile(screen *ebiten.Image, frame ReaderFrame, tile tiling.Tile) {
	surface, ok := tile.Surface.(*ebitenSurface)
	if !ok || !tile.Visible {
		return
	}
	img := surface.Image()
	if img == nil || surface.Width() == 0 || surface.Height() == 0 {
		return
	}

	region := tile.DisplayRegion
	x, y, w, h := screenRect(frame, region.Left, region.Top, region.Right, region.Bottom)
	op := &ebiten.DrawImageOptions{}
	op.Filter = ebiten.FilterLinear
	op.GeoM.Scale(w/float64(surface.Width()), h/float64(surface.Height()))
	op.GeoM.Translate(x, y)
	screen.DrawImage(img, op)
}

func (r *Renderer) drawTileGrid(screen *ebiten.Image, frame ReaderFrame) {
	if frame.Painter == nil {
		return
	}
	for _, tile := range frame.Painter.Tiles {
		region := tile.DisplayRegion
		x, y, w, h := screenRect(frame, region.Left, region.Top, region.Right, region.Bottom)
		c := colorMagenta
		if !tile.Visible {
			c = colorGray
		}
		DrawStrokeRect(screen, x, y, w, h, 1, c)
	}
}

func (r *Renderer) drawPageError(screen *ebiten.Image, frame ReaderFrame) {
	width := math.Min(float64(frame.Area.Width)*0.8, 600)
	height := 150.0
	x := (float64(frame.Area.Width) - width) / 2
	y := (float64(frame.Area.Height) - height) / 2
	DrawErrorPanel(screen, x, y, width, height, fmt.Sprintf("Page %d", frame.PageNumber), frame.Err.Error())
}

func (r *Renderer) drawTransition(screen *ebiten.Image, transition panels.Transition) {
	var lines []string
	switch t := transition.(type) {
	case panels.BookStart:
		lines = append(lines, "Start of "+t.Current.Title)
		if t.Previous != nil {
			lines = append(lines, "Previous: "+t.Previous.Title)
		} else {
			lines = append(lines, "There is no previous book")
		}
	case panels.BookEnd:
		lines = append(lines, "End of "+t.Current.Title)
		if t.Next != nil {
			lines = append(lines, "Next: "+t.Next.Title)
		} else {
			lines = append(lines, "There is no next book")
		}
	}

	w, h := float64(screen.Bounds().Dx()), float64(screen.Bounds().Dy())
	fontSize := r.renderState.GetFontSize()
	titleFont := newFace(fontSize * 1.5)
	bodyFont := newFace(fontSize)
	y := h/2 - fontSize*2
	for i, line := range lines {
		if i == 0 {
			DrawCenteredText(screen, line, titleFont, w/2, y, colorWhite)
			y += fontSize * 3
			continue
		}
		DrawCenteredText(screen, line, bodyFont, w/2, y, colorLightGray)
		y += fontSize * 1.5
	}
}

// helpRow is one line of the help overlay.
type helpRow struct {
	action      string
	keys        string
	mouse       string
	description string
}

// helpRows lists bound actions in definition order.
func (r *Renderer) helpRows() []helpRow {
	keybindings := r.renderState.GetKeybindings()
	mousebindings := r.renderState.GetMousebindings()

	var rows []helpRow
	for _, def := range actionDefinitions {
		keys, mouse := keybindings[def.Name], mousebindings[def.Name]
		if len(keys) == 0 && len(mouse) == 0 {
			continue
		}
		rows = append(rows, helpRow{
			action:      def.Name,
			keys:        strings.Join(keys, ", "),
			mouse:       strings.Join(mouse, ", "),
			description: def.Description,
		})
	}
	return rows
}

func (r helpRow) input() string {
	switch {
	case r.keys != "" && r.mouse != "":
		return r.keys + " | " + r.mouse
	case r.keys != "":
		return r.keys
	}
	return r.mouse
}

func configWarnings(status ConfigLoadResult) []string {
	var warnings []string
	for i, warning := range status.Warnings {
		if i >= helpMaxWarnings {
			break
		}
		warnings = append(warnings, "• "+truncate(warning, 50))
	}
	return warnings
}

// helpLayout holds the column positions of the help overlay at a font size.
type helpLayout struct {
	actionX float64
	arrowX  float64
	inputX  float64
	descX   float64
	width   float64
	height  float64
}

func measureHelp(rows []helpRow, status ConfigLoadResult, font *text.GoTextFace) helpLayout {
	lineHeight := font.Size * 1.5
	maxAction, maxInput, maxDesc := 0.0, 0.0, 0.0
	for _, row := range rows {
		w, _ := text.Measure(row.action, font, 0)
		maxAction = math.Max(maxAction, w)
		w, _ = text.Measure(row.input(), font, 0)
		maxInput = math.Max(maxInput, w)
		w, _ = text.Measure(row.description, font, 0)
		maxDesc = math.Max(maxDesc, w)
	}

	l := helpLayout{actionX: helpPadding + 40}
	l.arrowX = l.actionX + maxAction + 20
	l.inputX = l.arrowX + 30
	l.descX = l.inputX + maxInput + 20
	l.width = l.descX + maxDesc + helpPadding

	for _, line := range append([]string{"Controls (Keyboard | Mouse):", configStatusText(status)}, configWarnings(status)...) {
		w, _ := text.Measure(line, font, 0)
		l.width = math.Max(l.width, w+helpPadding*2+80)
	}

	warnings := len(configWarnings(status))
	l.height = helpPadding*2 + font.Size*2 + lineHeight*1.5 +
		float64(len(rows))*lineHeight + lineHeight*4 + float64(warnings)*lineHeight
	return l
}

func configStatusText(status ConfigLoadResult) string {
	return fmt.Sprintf("Config Status: %s", status.Status)
}

// calculateOptimalFontSize finds the largest font size at which the help
// overlay fits, searching between the minimum and the configured size.
func (r *Renderer) calculateOptimalFontSize(rows []helpRow, status ConfigLoadResult, availableWidth, availableHeight float64) (float64, bool) {
	fits := func(size float64) bool {
		l := measureHelp(rows, status, newFace(size))
		return l.width <= availableWidth && l.height <= availableHeight
	}

	maxFontSize := r.renderState.GetFontSize()
	if !fits(helpMinFontSize) {
		return helpMinFontSize, false
	}
	if fits(maxFontSize) {
		return maxFontSize, true
	}

	low, high := helpMinFontSize, maxFontSize
	for high-low > helpSearchEpsilon {
		mid := (low + high) / 2
		if fits(mid) {
			low = mid
		} else {
			high = mid
		}
	}
	return low, true
}

func (r *Renderer) drawHelpOverlay(screen *ebiten.Image) {
	w, h := float64(screen.Bounds().Dx()), float64(screen.Bounds().Dy())
	rows := r.helpRows()
	status := r.renderState.GetConfigStatus()

	fontSize, canFit := r.calculateOptimalFontSize(rows, status, w-helpPadding*2, h-helpPadding*2)
	if !canFit {
		r.drawMarginTooSmallMessage(screen)
		return
	}

	DrawFilledRect(screen, 0, 0, w, h, bgColorLight)
	DrawFilledRect(screen, helpPadding, helpPadding, w-helpPadding*2, h-helpPadding*2, bgColorMedium)

	font := newFace(fontSize)
	layout := measureHelp(rows, status, font)
	lineHeight := fontSize * 1.5

	titleY := helpPadding + 30
	DrawText(screen, "HELP:", font, helpPadding+20, titleY, colorWhite)
	y := titleY + fontSize*2
	DrawText(screen, "Controls (Keyboard | Mouse):", font, helpPadding+20, y, colorWhite)
	y += lineHeight * 1.5

	for _, row := range rows {
		DrawText(screen, row.action, font, layout.actionX, y, colorLightBlue)
		DrawText(screen, "→", font, layout.arrowX, y, colorWhite)

		x := layout.inputX
		if row.keys != "" {
			DrawText(screen, row.keys, font, x, y, colorYellow)
			kw, _ := text.Measure(row.keys, font, 0)
			x += kw
		}
		if row.keys != "" && row.mouse != "" {
			DrawText(screen, " | ", font, x, y, colorWhite)
			sw, _ := text.Measure(" | ", font, 0)
			x += sw
		}
		if row.mouse != "" {
			DrawText(screen, row.mouse, font, x, y, colorCyan)
		}
		DrawText(screen, row.description, font, layout.descX, y, colorGray)
		y += lineHeight
	}

	y += lineHeight
	DrawText(screen, "System:", font, helpPadding+20, y, colorWhite)
	y += lineHeight

	statusColor := colorGreen
	if status.Status == configStatusWarn || status.Status == configStatusErr {
		statusColor = colorOrange
	}
	DrawText(screen, configStatusText(status), font, helpPadding+40, y, statusColor)
	y += lineHeight
	DrawText(screen, "Page order: "+getSortMethodName(status.Config.SortMethod), font, helpPadding+40, y, colorGray)
	y += lineHeight
	for _, warning := range configWarnings(status) {
		DrawText(screen, warning, font, helpPadding+40, y, colorLightRed)
		y += lineHeight
	}
}

// drawMarginTooSmallMessage displays Fermat's margin joke when help cannot fit
func (r *Renderer) drawMarginTooSmallMessage(screen *ebiten.Image) {
	w, h := float64(screen.Bounds().Dx()), float64(screen.Bounds().Dy())
	DrawFilledRect(screen, 0, 0, w, h, bgColorLight)

	jokeFont := newFace(16)
	message := "Hanc marginis exiguitas non caperet."
	subtitle := "(This margin is too small to contain it.)"

	_, messageHeight := text.Measure(message, jokeFont, 0)
	messageY := h/2 - messageHeight/2
	DrawCenteredText(screen, message, jokeFont, w/2, messageY, colorWhite)
	DrawCenteredText(screen, subtitle, jokeFont, w/2, messageY+messageHeight+10, colorGray)
}

func (r *Renderer) drawPageInputOverlay(screen *ebiten.Image) {
	w, h := float64(screen.Bounds().Dx()), float64(screen.Bounds().Dy())
	inputFont := newFace(r.renderState.GetFontSize())
	rangeFont := newFace(r.renderState.GetFontSize() * 0.8)

	inputText := fmt.Sprintf("Go to page: %s_", r.renderState.GetPageInputBuffer())
	rangeText := fmt.Sprintf("(1-%d)", r.renderState.GetTotalPagesCount())
	inputWidth, inputHeight := text.Measure(inputText, inputFont, 0)
	rangeWidth, rangeHeight := text.Measure(rangeText, rangeFont, 0)

	padding := 20.0
	boxWidth := math.Max(inputWidth, rangeWidth) + padding*2
	boxHeight := inputHeight + rangeHeight + 10 + padding*2
	boxX := (w - boxWidth) / 2
	boxY := (h - boxHeight) / 2

	DrawFilledRect(screen, boxX, boxY, boxWidth, boxHeight, bgColorDark)
	DrawCenteredText(screen, inputText, inputFont, w/2, boxY+padding, colorWhite)
	DrawCenteredText(screen, rangeText, rangeFont, w/2, boxY+padding+inputHeight+10, colorLightGray)
}

// buildInfoString describes the reading position and the last render pass.
func buildInfoString(frame ReaderFrame) string {
	if frame.TotalPages == 0 {
		return "0 / 0"
	}
	var b strings.Builder
	if frame.BookTitle != "" {
		fmt.Fprintf(&b, "%s  ", frame.BookTitle)
	}
	fmt.Fprintf(&b, "%d / %d", frame.PageNumber, frame.TotalPages)
	if frame.PanelCount > 0 {
		fmt.Fprintf(&b, "  panel %d / %d", frame.Panel+1, frame.PanelCount)
	}
	fmt.Fprintf(&b, "  %s  %.0f%%", directionLabel(frame.Direction), frame.Zoom*100)
	if frame.Pass.Mode != "" {
		fmt.Fprintf(&b, "  [%s", frame.Pass.Mode)
		if frame.Pass.Mode == tiling.PassTiled {
			fmt.Fprintf(&b, " %dpx %d/%d", frame.Pass.TileSize, frame.Pass.Rendered, frame.Pass.Considered)
		}
		b.WriteString("]")
	}
	return b.String()
}

func directionLabel(d panels.ReadingDirection) string {
	if d == panels.RightToLeft {
		return "RTL"
	}
	return "LTR"
}

func (r *Renderer) drawInfoDisplay(screen *ebiten.Image, frame ReaderFrame) {
	infoFont := newFace(r.renderState.GetFontSize())
	infoText := buildInfoString(frame)
	textWidth, textHeight := text.Measure(infoText, infoFont, 0)

	padding, bgPadding := 10.0, 5.0
	textX := float64(screen.Bounds().Dx()) - textWidth - padding
	textY := float64(screen.Bounds().Dy()) - textHeight - padding
	DrawFilledRect(screen, textX-bgPadding, textY-bgPadding, textWidth+bgPadding*2, textHeight+bgPadding*2, bgColorLight)
	DrawText(screen, infoText, infoFont, textX, textY, colorWhite)
}

func (r *Renderer) drawOverlayMessage(screen *ebiten.Image, message string) {
	messageFont := newFace(r.renderState.GetFontSize())
	textWidth, textHeight := text.Measure(message, messageFont, 0)

	padding := 20.0
	boxWidth := textWidth + padding*2
	boxHeight := textHeight + padding*2
	boxX := (float64(screen.Bounds().Dx()) - boxWidth) / 2
	boxY := (float64(screen.Bounds().Dy()) - boxHeight) / 2

	DrawFilledRect(screen, boxX, boxY, boxWidth, boxHeight, bgColorDark)
	DrawText(screen, message, messageFont, boxX+padding, boxY+padding, colorWhite)
}
