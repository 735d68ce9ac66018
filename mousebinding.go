package main

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/inpututil"
)

// MouseSettings contains mouse-specific configuration
type MouseSettings struct {
	WheelSensitivity float64 `json:"wheel_sensitivity" mapstructure:"wheel_sensitivity"`
	DoubleClickTime  int     `json:"double_click_time" mapstructure:"double_click_time"` // milliseconds
	DragThreshold    int     `json:"drag_threshold" mapstructure:"drag_threshold"`       // pixels
	EnableMouse      bool    `json:"enable_mouse" mapstructure:"enable_mouse"`
	WheelInverted    bool    `json:"wheel_inverted" mapstructure:"wheel_inverted"`
	EnableDragPan    bool    `json:"enable_drag_pan" mapstructure:"enable_drag_pan"`
	DragSensitivity  float64 `json:"drag_sensitivity" mapstructure:"drag_sensitivity"`
}

// GetDefaultMouseSettings returns the default mouse settings
func GetDefaultMouseSettings() MouseSettings {
	return MouseSettings{
		WheelSensitivity: 1.0,
		DoubleClickTime:  300,
		DragThreshold:    5,
		EnableMouse:      true,
		EnableDragPan:    true,
		DragSensitivity:  1.0,
	}
}

var mouseMapping = map[string]ebiten.MouseButton{
	"LeftClick":   ebiten.MouseButtonLeft,
	"RightClick":  ebiten.MouseButtonRight,
	"MiddleClick": ebiten.MouseButtonMiddle,
	"Back":        ebiten.MouseButton3,
	"Forward":     ebiten.MouseButton4,
}

// MouseCombination represents a mouse action with optional modifiers
type MouseCombination struct {
	Button        ebiten.MouseButton
	IsWheel       bool
	WheelDeltaX   float64
	WheelDeltaY   float64
	IsDoubleClick bool
	Modifiers
}

// parseMouseString parses a mouse string like "Shift+LeftClick" or "WheelUp"
func parseMouseString(mouseStr string) (MouseCombination, error) {
	mods, name, err := splitModifiers(mouseStr)
	if err != nil {
		return MouseCombination{}, err
	}
	combination := MouseCombination{Modifiers: mods}

	switch {
	case strings.HasPrefix(name, "Wheel"):
		combination.IsWheel = true
		switch name {
		case "WheelUp":
			combination.WheelDeltaY = 1
		case "WheelDown":
			combination.WheelDeltaY = -1
		case "WheelLeft":
			combination.WheelDeltaX = -1
		case "WheelRight":
			combination.WheelDeltaX = 1
		default:
			return MouseCombination{}, fmt.Errorf("%w: %s", errUnknownKey, name)
		}
	case strings.HasPrefix(name, "Double"):
		combination.IsDoubleClick = true
		name = strings.TrimPrefix(name, "Double")
		fallthrough
	default:
		button, exists := mouseMapping[name]
		if !exists {
			return MouseCombination{}, fmt.Errorf("%w: %s", errUnknownKey, name)
		}
		combination.Button = button
	}
	return combination, nil
}

// pointerState is the per-frame state of the pointer, sampled once so that
// every binding sees the same values.
type pointerState struct {
	mods     Modifiers
	wheelX   float64
	wheelY   float64
	pressed  map[ebiten.MouseButton]bool
	released map[ebiten.MouseButton]bool
	double   map[ebiten.MouseButton]bool
}

// DoubleClickTracker tracks double-click state
type DoubleClickTracker struct {
	lastClickTime   time.Time
	lastClickButton ebiten.MouseButton
	clickCount      int
}

// click records a press and reports whether it completes a double click.
func (t *DoubleClickTracker) click(button ebiten.MouseButton, now time.Time, window time.Duration) bool {
	if t.lastClickButton == button && t.clickCount == 1 && now.Sub(t.lastClickTime) <= window {
		t.clickCount = 0
		t.lastClickTime = now
		return true
	}
	t.clickCount = 1
	t.lastClickButton = button
	t.lastClickTime = now
	return false
}

// dragTracker follows the left button. Once the pointer moved further than
// the threshold the press is a drag and its release is not a click.
type dragTracker struct {
	active   bool
	dragging bool
	startX   int
	startY   int
	lastX    int
	lastY    int
}

// MousebindingManager resolves actions against the mouse. Clicks fire on
// release so that a drag can pan without also triggering its click action.
type MousebindingManager struct {
	mousebindings map[string][]string
	parsed        map[string][]MouseCombination
	settings      MouseSettings

	doubleClick DoubleClickTracker
	drag        dragTracker
	frame       pointerState
}

func NewMousebindingManager(mousebindings map[string][]string, settings MouseSettings) *MousebindingManager {
	mm := &MousebindingManager{settings: settings}
	mm.UpdateMousebindings(mousebindings)
	return mm
}

// Update samples the pointer for this frame and returns the drag movement
// since the previous frame in screen pixels.
func (mm *MousebindingManager) Update(now time.Time) (dx, dy float64) {
	mm.frame = pointerState{
		mods:     currentModifiers(),
		pressed:  make(map[ebiten.MouseButton]bool),
		released: make(map[ebiten.MouseButton]bool),
		double:   make(map[ebiten.MouseButton]bool),
	}
	if !mm.settings.EnableMouse {
		return 0, 0
	}

	mm.frame.wheelX, mm.frame.wheelY = ebiten.Wheel()
	if mm.settings.WheelInverted {
		mm.frame.wheelY = -mm.frame.wheelY
	}
	mm.frame.wheelX *= mm.settings.WheelSensitivity
	mm.frame.wheelY *= mm.settings.WheelSensitivity

	window := time.Duration(mm.settings.DoubleClickTime) * time.Millisecond
	for _, button := range mouseMapping {
		if inpututil.IsMouseButtonJustPressed(button) {
			mm.frame.pressed[button] = true
			mm.frame.double[button] = mm.doubleClick.click(button, now, window)
		}
		if inpututil.IsMouseButtonJustReleased(button) {
			mm.frame.released[button] = true
		}
	}

	x, y := ebiten.CursorPosition()
	return mm.trackDrag(x, y)
}

func (mm *MousebindingManager) trackDrag(x, y int) (float64, float64) {
	d := &mm.drag
	switch {
	case mm.frame.pressed[ebiten.MouseButtonLeft]:
		*d = dragTracker{active: true, startX: x, startY: y, lastX: x, lastY: y}
		return 0, 0
	case !d.active:
		return 0, 0
	}

	if !d.dragging {
		distance := math.Hypot(float64(x-d.startX), float64(y-d.startY))
		d.dragging = mm.settings.EnableDragPan && distance > float64(mm.settings.DragThreshold)
	}
	dx, dy := float64(x-d.lastX), float64(y-d.lastY)
	d.lastX, d.lastY = x, y
	if mm.frame.released[ebiten.MouseButtonLeft] {
		d.active = false
	}
	if !d.dragging {
		return 0, 0
	}
	return dx * mm.settings.DragSensitivity, dy * mm.settings.DragSensitivity
}

func (mm *MousebindingManager) triggered(c MouseCombination) bool {
	if !mm.settings.EnableMouse || c.Modifiers != mm.frame.mods {
		return false
	}
	switch {
	case c.IsWheel:
		return sameSign(c.WheelDeltaX, mm.frame.wheelX) || sameSign(c.WheelDeltaY, mm.frame.wheelY)
	case c.IsDoubleClick:
		return mm.frame.double[c.Button]
	case c.Button == ebiten.MouseButtonLeft:
		return mm.frame.released[c.Button] && !mm.drag.dragging
	default:
		return mm.frame.released[c.Button]
	}
}

func sameSign(want, got float64) bool {
	return (want > 0 && got > 0) || (want < 0 && got < 0)
}

// CheckAction reports whether a binding of action fired this frame.
func (mm *MousebindingManager) CheckAction(action string) bool {
	for _, c := range mm.parsed[action] {
		if mm.triggered(c) {
			return true
		}
	}
	return false
}

// EndFrame forgets a finished drag once every action has been checked.
func (mm *MousebindingManager) EndFrame() {
	if !mm.drag.active {
		mm.drag.dragging = false
	}
}

// GetMousebindings returns the current mouse bindings map (for display purposes)
func (mm *MousebindingManager) GetMousebindings() map[string][]string {
	return mm.mousebindings
}

func (mm *MousebindingManager) UpdateMousebindings(mousebindings map[string][]string) {
	mm.mousebindings = mousebindings
	mm.parsed = make(map[string][]MouseCombination, len(mousebindings))
	for action, inputs := range mousebindings {
		for _, mouseStr := range inputs {
			if c, err := parseMouseString(mouseStr); err == nil {
				mm.parsed[action] = append(mm.parsed[action], c)
			}
		}
	}
}

func (mm *MousebindingManager) UpdateSettings(settings MouseSettings) {
	mm.settings = settings
}
