package events

import (
	"strings"
	"unicode"
)

// ProcessedMouseEvent is a pointer event after throttling and clustering.
// Kinematics fields are populated for move samples, WheelDelta for scroll
// aggregates, and Button/NumberOfClicks for click clusters.
type ProcessedMouseEvent struct {
	Type           MouseEventType `json:"type"`
	X              float64        `json:"x"`
	Y              float64        `json:"y"`
	TimestampMs    int64          `json:"timestampMs"`
	Modifiers      Modifiers      `json:"modifiers"`
	Button         Button         `json:"button,omitempty"`
	WheelDelta     int            `json:"wheelDelta,omitempty"`
	NumberOfClicks int            `json:"numberOfClicks,omitempty"`
	Velocity       float64        `json:"velocity,omitempty"`
	Distance       float64        `json:"distance,omitempty"`
	Direction      float64        `json:"direction,omitempty"`
}

// ProcessedKeyboardEvent is a key-down rendered as a canonical chord such as
// "Ctrl+Shift+K". Key-ups never appear here.
type ProcessedKeyboardEvent struct {
	TimestampMs    int64  `json:"timestampMs"`
	FormattedInput string `json:"formattedInput"`
}

// ProcessedWindowEvent records one application focus change.
type ProcessedWindowEvent struct {
	ProcessName string `json:"processName"`
	WindowTitle string `json:"windowTitle"`
	TimestampMs int64  `json:"timestampMs"`
}

// FormatKeyChord renders a key plus modifiers in the canonical
// Ctrl+Alt+Shift+Meta order with a normalized key name.
func FormatKeyChord(key string, mods Modifiers) string {
	parts := make([]string, 0, 5)
	if mods.Ctrl {
		parts = append(parts, "Ctrl")
	}
	if mods.Alt {
		parts = append(parts, "Alt")
	}
	if mods.Shift {
		parts = append(parts, "Shift")
	}
	if mods.Meta {
		parts = append(parts, "Meta")
	}
	parts = append(parts, normalizeKeyName(key))
	return strings.Join(parts, "+")
}

var namedKeys = map[string]string{
	"space":     "Space",
	"spacebar":  "Space",
	"enter":     "Enter",
	"return":    "Enter",
	"tab":       "Tab",
	"esc":       "Escape",
	"escape":    "Escape",
	"backspace": "Backspace",
	"delete":    "Delete",
	"del":       "Delete",
	"up":        "Up",
	"down":      "Down",
	"left":      "Left",
	"right":     "Right",
	"home":      "Home",
	"end":       "End",
	"pageup":    "PageUp",
	"pagedown":  "PageDown",
}

func normalizeKeyName(key string) string {
	trimmed := strings.TrimSpace(key)
	if trimmed == "" {
		return "Unknown"
	}
	if mapped, ok := namedKeys[strings.ToLower(trimmed)]; ok {
		return mapped
	}
	runes := []rune(trimmed)
	if len(runes) == 1 {
		return string(unicode.ToUpper(runes[0]))
	}
	return trimmed
}

// KeyTracker turns raw key transitions into processed key-down events while
// maintaining held-key state. Key-ups only release state.
//
// Not safe for concurrent use; confine to the ingest path.
type KeyTracker struct {
	held map[string]struct{}
}

// NewKeyTracker returns an empty tracker.
func NewKeyTracker() *KeyTracker {
	return &KeyTracker{held: make(map[string]struct{})}
}

// Observe processes one raw key transition. It returns a processed event and
// true for key-downs; key-ups and unknown transition types return false.
func (t *KeyTracker) Observe(ev KeyboardEvent) (ProcessedKeyboardEvent, bool) {
	name := normalizeKeyName(ev.Key)
	switch ev.Type {
	case KeyDown:
		t.held[name] = struct{}{}
		return ProcessedKeyboardEvent{
			TimestampMs:    ev.TimestampMs,
			FormattedInput: FormatKeyChord(ev.Key, ev.Modifiers),
		}, true
	case KeyUp:
		delete(t.held, name)
	}
	return ProcessedKeyboardEvent{}, false
}

// Held reports whether the named key is currently depressed.
func (t *KeyTracker) Held(key string) bool {
	_, ok := t.held[normalizeKeyName(key)]
	return ok
}

// HeldCount returns the number of currently depressed keys.
func (t *KeyTracker) HeldCount() int { return len(t.held) }
