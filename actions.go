package main

// ActionDefinition defines an action with its default keybindings, mouse bindings, and description
type ActionDefinition struct {
	Name         string
	Keys         []string
	MouseActions []string
	Description  string
}

// actionDefinitions lists every action in the order input is checked.
var actionDefinitions = []ActionDefinition{
	{"exit", []string{"Escape", "KeyQ"}, []string{}, "Quit application"},
	{"help", []string{"Shift+Slash"}, []string{"Alt+RightClick"}, "Show/hide help"},
	{"info", []string{"KeyI"}, []string{}, "Show/hide info display"},
	{"page_input", []string{"KeyG"}, []string{"Ctrl+LeftClick"}, "Go to page (enter page number)"},

	// Panel and page navigation
	{"next", []string{"Space", "KeyN"}, []string{"LeftClick", "WheelDown"}, "Next panel"},
	{"previous", []string{"Backspace", "KeyP"}, []string{"RightClick", "WheelUp"}, "Previous panel"},
	{"next_page", []string{"Shift+Space", "PageDown"}, []string{"Shift+WheelDown", "Forward"}, "Next page, skipping remaining panels"},
	{"previous_page", []string{"Shift+Backspace", "PageUp"}, []string{"Shift+WheelUp", "Back"}, "Previous page"},
	{"jump_first", []string{"Home", "Shift+Comma"}, []string{}, "Jump to first page"},
	{"jump_last", []string{"End", "Shift+Period"}, []string{}, "Jump to last page"},

	{"toggle_reading_direction", []string{"Shift+KeyB"}, []string{"Ctrl+MiddleClick"}, "Toggle panel order (LTR ↔ RTL)"},
	{"toggle_stretch", []string{"KeyS"}, []string{}, "Toggle stretching small pages to fit"},
	{"toggle_tile_grid", []string{"KeyT"}, []string{}, "Show/hide rendered tile borders"},
	{"fullscreen", []string{"Enter"}, []string{"DoubleLeftClick"}, "Toggle fullscreen"},

	// Zoom and pan
	{"zoom_in", []string{"Equal", "Shift+Equal"}, []string{"Ctrl+WheelUp"}, "Zoom in"},
	{"zoom_out", []string{"Minus"}, []string{"Ctrl+WheelDown"}, "Zoom out"},
	{"zoom_fit", []string{"KeyF", "Key0"}, []string{"MiddleClick"}, "Show the whole page"},
	{"pan_up", []string{"ArrowUp"}, []string{}, "Pan up"},
	{"pan_down", []string{"ArrowDown"}, []string{}, "Pan down"},
	{"pan_left", []string{"ArrowLeft"}, []string{}, "Pan left"},
	{"pan_right", []string{"ArrowRight"}, []string{}, "Pan right"},

	// Color correction
	{"brightness_up", []string{"Shift+KeyL"}, []string{}, "Increase brightness"},
	{"brightness_down", []string{"KeyL"}, []string{}, "Decrease brightness"},
	{"contrast_up", []string{"Shift+KeyC"}, []string{}, "Increase contrast"},
	{"contrast_down", []string{"KeyC"}, []string{}, "Decrease contrast"},
	{"reset_colors", []string{"KeyR"}, []string{}, "Reset color correction"},
}

const (
	panStep   = 0.1 // fraction of the area per pan key press
	zoomStep  = 1.25
	colorStep = 5.0
)

// ActionExecutor maps action names onto InputActions. Key and mouse bindings
// share it so that both input paths behave identically.
type ActionExecutor struct{}

// ExecuteAction runs action and reports whether the name was known.
func (ActionExecutor) ExecuteAction(action string, inputActions InputActions, inputState InputState) bool {
	switch action {
	case "exit":
		inputActions.Exit()
	case "help":
		inputActions.ToggleHelp()
	case "info":
		inputActions.ToggleInfo()
	case "page_input":
		if !inputState.IsInPageInputMode() {
			inputActions.EnterPageInputMode()
		}

	case "next":
		inputActions.NextPanel()
	case "previous":
		inputActions.PreviousPanel()
	case "next_page":
		inputActions.NextPage()
	case "previous_page":
		inputActions.PreviousPage()
	case "jump_first":
		inputActions.JumpToPage(1)
	case "jump_last":
		if totalPages := inputActions.GetTotalPagesCount(); totalPages > 0 {
			inputActions.JumpToPage(totalPages)
		}

	case "toggle_reading_direction":
		inputActions.ToggleReadingDirection()
	case "toggle_stretch":
		inputActions.ToggleStretchToFit()
	case "toggle_tile_grid":
		inputActions.ToggleTileGrid()
	case "fullscreen":
		inputActions.ToggleFullscreen()

	case "zoom_in":
		inputActions.Zoom(zoomStep)
	case "zoom_out":
		inputActions.Zoom(1 / zoomStep)
	case "zoom_fit":
		inputActions.ZoomFit()
	case "pan_up":
		inputActions.Pan(0, panStep)
	case "pan_down":
		inputActions.Pan(0, -panStep)
	case "pan_left":
		inputActions.Pan(panStep, 0)
	case "pan_right":
		inputActions.Pan(-panStep, 0)

	case "brightness_up":
		inputActions.AdjustColors(colorStep, 0)
	case "brightness_down":
		inputActions.AdjustColors(-colorStep, 0)
	case "contrast_up":
		inputActions.AdjustColors(0, colorStep)
	case "contrast_down":
		inputActions.AdjustColors(0, -colorStep)
	case "reset_colors":
		inputActions.ResetColors()

	default:
		return false
	}
	return true
}

// GetActionDescriptions returns a map of action names to their descriptions
func GetActionDescriptions() map[string]string {
	descriptions := make(map[string]string)
	for _, action := range actionDefinitions {
		descriptions[action.Name] = action.Description
	}
	return descriptions
}

// GetDefaultKeybindings returns a map of action names to their default keybindings
func GetDefaultKeybindings() map[string][]string {
	keybindings := make(map[string][]string)
	for _, action := range actionDefinitions {
		keybindings[action.Name] = action.Keys
	}
	return keybindings
}

// GetDefaultMousebindings returns a map of action names to their default mouse bindings
func GetDefaultMousebindings() map[string][]string {
	mousebindings := make(map[string][]string)
	for _, action := range actionDefinitions {
		mousebindings[action.Name] = action.MouseActions
	}
	return mousebindings
}
