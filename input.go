package main

import (
	"strconv"
	"time"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/inpututil"
)

// InputHandler turns keyboard and mouse input into actions
type InputHandler struct {
	inputActions        InputActions
	inputState          InputState
	keybindingManager   *KeybindingManager
	mousebindingManager *MousebindingManager
	executor            ActionExecutor
}

func NewInputHandler(inputActions InputActions, inputState InputState, keys *KeybindingManager, mouse *MousebindingManager) *InputHandler {
	return &InputHandler{
		inputActions:        inputActions,
		inputState:          inputState,
		keybindingManager:   keys,
		mousebindingManager: mouse,
	}
}

// HandleInput processes all input for the current frame
// Returns true if any input was processed, false otherwise
func (h *InputHandler) HandleInput(now time.Time) bool {
	dx, dy := h.mousebindingManager.Update(now)
	defer h.mousebindingManager.EndFrame()

	if h.inputState.IsInPageInputMode() {
		return h.handlePageInputMode()
	}

	inputProcessed := false
	if dx != 0 || dy != 0 {
		h.inputActions.PanByDelta(dx, dy)
		inputProcessed = true
	}

	// in definition order
	for _, def := range actionDefinitions {
		if h.keybindingManager.CheckAction(def.Name) || h.mousebindingManager.CheckAction(def.Name) {
			inputProcessed = h.executor.ExecuteAction(def.Name, h.inputActions, h.inputState) || inputProcessed
		}
	}
	return inputProcessed
}

func (h *InputHandler) handlePageInputMode() bool {
	if inpututil.IsKeyJustPressed(ebiten.KeyEscape) {
		h.inputActions.ExitPageInputMode()
		return true
	}

	if inpututil.IsKeyJustPressed(ebiten.KeyEnter) || inpututil.IsKeyJustPressed(ebiten.KeyNumpadEnter) {
		h.inputActions.ProcessPageInput()
		h.inputActions.ExitPageInputMode()
		return true
	}

	if inpututil.IsKeyJustPressed(ebiten.KeyBackspace) {
		if buffer := h.inputState.GetPageInputBuffer(); len(buffer) > 0 {
			h.inputActions.UpdatePageInputBuffer(buffer[:len(buffer)-1])
		}
		return true
	}

	digit := pressedDigit(ebiten.Key0, ebiten.Key9)
	if digit < 0 {
		digit = pressedDigit(ebiten.KeyNumpad0, ebiten.KeyNumpad9)
	}
	if digit >= 0 {
		h.inputActions.UpdatePageInputBuffer(h.inputState.GetPageInputBuffer() + strconv.Itoa(digit))
		return true
	}
	return false
}

// pressedDigit returns the digit of the first key in [first, last] pressed
// this frame, or -1.
func pressedDigit(first, last ebiten.Key) int {
	for key := first; key <= last; key++ {
		if inpututil.IsKeyJustPressed(key) {
			return int(key - first)
		}
	}
	return -1
}

// parsePageInput validates a typed page number against the page count.
func parsePageInput(buffer string, totalPages int) (int, bool) {
	n, err := strconv.Atoi(buffer)
	if err != nil || n < 1 || n > totalPages {
		return 0, false
	}
	return n, true
}
