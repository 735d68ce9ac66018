package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/inpututil"
)

var (
	errEmptyBinding    = errors.New("empty binding")
	errUnknownKey      = errors.New("unknown key")
	errUnknownModifier = errors.New("unknown modifier")
)

// keyMapping maps config key names to Ebiten keys
var keyMapping = map[string]ebiten.Key{
	// Letters
	"KeyA": ebiten.KeyA, "KeyB": ebiten.KeyB, "KeyC": ebiten.KeyC, "KeyD": ebiten.KeyD,
	"KeyE": ebiten.KeyE, "KeyF": ebiten.KeyF, "KeyG": ebiten.KeyG, "KeyH": ebiten.KeyH,
	"KeyI": ebiten.KeyI, "KeyJ": ebiten.KeyJ, "KeyK": ebiten.KeyK, "KeyL": ebiten.KeyL,
	"KeyM": ebiten.KeyM, "KeyN": ebiten.KeyN, "KeyO": ebiten.KeyO, "KeyP": ebiten.KeyP,
	"KeyQ": ebiten.KeyQ, "KeyR": ebiten.KeyR, "KeyS": ebiten.KeyS, "KeyT": ebiten.KeyT,
	"KeyU": ebiten.KeyU, "KeyV": ebiten.KeyV, "KeyW": ebiten.KeyW, "KeyX": ebiten.KeyX,
	"KeyY": ebiten.KeyY, "KeyZ": ebiten.KeyZ,

	// Numbers
	"Key0": ebiten.Key0, "Key1": ebiten.Key1, "Key2": ebiten.Key2, "Key3": ebiten.Key3,
	"Key4": ebiten.Key4, "Key5": ebiten.Key5, "Key6": ebiten.Key6, "Key7": ebiten.Key7,
	"Key8": ebiten.Key8, "Key9": ebiten.Key9,

	"Space":      ebiten.KeySpace,
	"Backspace":  ebiten.KeyBackspace,
	"Enter":      ebiten.KeyEnter,
	"Escape":     ebiten.KeyEscape,
	"Tab":        ebiten.KeyTab,
	"Home":       ebiten.KeyHome,
	"End":        ebiten.KeyEnd,
	"PageUp":     ebiten.KeyPageUp,
	"PageDown":   ebiten.KeyPageDown,
	"ArrowUp":    ebiten.KeyArrowUp,
	"ArrowDown":  ebiten.KeyArrowDown,
	"ArrowLeft":  ebiten.KeyArrowLeft,
	"ArrowRight": ebiten.KeyArrowRight,

	"Comma":     ebiten.KeyComma,
	"Period":    ebiten.KeyPeriod,
	"Slash":     ebiten.KeySlash,
	"Semicolon": ebiten.KeySemicolon,
	"Quote":     ebiten.KeyQuote,
	"Minus":     ebiten.KeyMinus,
	"Equal":     ebiten.KeyEqual,

	"Numpad0":     ebiten.KeyNumpad0,
	"Numpad1":     ebiten.KeyNumpad1,
	"Numpad2":     ebiten.KeyNumpad2,
	"Numpad3":     ebiten.KeyNumpad3,
	"Numpad4":     ebiten.KeyNumpad4,
	"Numpad5":     ebiten.KeyNumpad5,
	"Numpad6":     ebiten.KeyNumpad6,
	"Numpad7":     ebiten.KeyNumpad7,
	"Numpad8":     ebiten.KeyNumpad8,
	"Numpad9":     ebiten.KeyNumpad9,
	"NumpadAdd":   ebiten.KeyNumpadAdd,
	"NumpadSub":   ebiten.KeyNumpadSubtract,
	"NumpadEnter": ebiten.KeyNumpadEnter,
}

// Modifiers is the modifier state a binding requires. A binding only fires
// when exactly its modifiers are held.
type Modifiers struct {
	Shift bool
	Ctrl  bool
	Alt   bool
}

func currentModifiers() Modifiers {
	return Modifiers{
		Shift: ebiten.IsKeyPressed(ebiten.KeyShift),
		Ctrl:  ebiten.IsKeyPressed(ebiten.KeyControl),
		Alt:   ebiten.IsKeyPressed(ebiten.KeyAlt),
	}
}

// splitModifiers splits "Shift+Ctrl+KeyB" into its modifiers and "KeyB".
func splitModifiers(binding string) (Modifiers, string, error) {
	var mods Modifiers
	if binding == "" {
		return mods, "", errEmptyBinding
	}
	parts := strings.Split(binding, "+")
	for _, part := range parts[:len(parts)-1] {
		switch strings.ToLower(part) {
		case "shift":
			mods.Shift = true
		case "ctrl":
			mods.Ctrl = true
		case "alt":
			mods.Alt = true
		default:
			return mods, "", fmt.Errorf("%w: %s", errUnknownModifier, part)
		}
	}
	return mods, parts[len(parts)-1], nil
}

// KeyCombination represents a key with optional modifiers
type KeyCombination struct {
	Key ebiten.Key
	Modifiers
}

// parseKeyString parses a key string like "Shift+KeyB"
func parseKeyString(keyStr string) (KeyCombination, error) {
	mods, name, err := splitModifiers(keyStr)
	if err != nil {
		return KeyCombination{}, err
	}
	key, exists := keyMapping[name]
	if !exists {
		return KeyCombination{}, fmt.Errorf("%w: %s", errUnknownKey, name)
	}
	return KeyCombination{Key: key, Modifiers: mods}, nil
}

// KeybindingManager resolves actions against the keyboard. Bindings are
// parsed once when set; invalid ones are ignored.
type KeybindingManager struct {
	keybindings map[string][]string
	parsed      map[string][]KeyCombination
}

func NewKeybindingManager(keybindings map[string][]string) *KeybindingManager {
	km := &KeybindingManager{}
	km.UpdateKeybindings(keybindings)
	return km
}

// CheckAction reports whether a binding of action was pressed this frame.
func (km *KeybindingManager) CheckAction(action string) bool {
	combinations := km.parsed[action]
	if len(combinations) == 0 {
		return false
	}
	mods := currentModifiers()
	for _, c := range combinations {
		if c.Modifiers == mods && inpututil.IsKeyJustPressed(c.Key) {
			return true
		}
	}
	return false
}

// GetKeybindings returns the current keybindings map (for display purposes)
func (km *KeybindingManager) GetKeybindings() map[string][]string {
	return km.keybindings
}

func (km *KeybindingManager) UpdateKeybindings(keybindings map[string][]string) {
	km.keybindings = keybindings
	km.parsed = make(map[string][]KeyCombination, len(keybindings))
	for action, keys := range keybindings {
		for _, keyStr := range keys {
			if c, err := parseKeyString(keyStr); err == nil {
				km.parsed[action] = append(km.parsed[action], c)
			}
		}
	}
}
