package events

import (
	"context"
	"strings"
)

// Button identifies a pointer button.
type Button string

const (
	ButtonLeft   Button = "left"
	ButtonRight  Button = "right"
	ButtonMiddle Button = "middle"
)

// ParseButton canonicalizes a button code. Unknown codes map to the left
// button: telemetry favours completeness over strictness.
func ParseButton(raw string) Button {
	switch Button(strings.ToLower(strings.TrimSpace(raw))) {
	case ButtonRight:
		return ButtonRight
	case ButtonMiddle:
		return ButtonMiddle
	default:
		return ButtonLeft
	}
}

// Modifiers records which modifier keys were held when an event fired.
// Absent or malformed flags are simply false.
type Modifiers struct {
	Ctrl  bool `json:"ctrl,omitempty"`
	Alt   bool `json:"alt,omitempty"`
	Shift bool `json:"shift,omitempty"`
	Meta  bool `json:"meta,omitempty"`
}

// Any reports whether at least one modifier is held.
func (m Modifiers) Any() bool {
	return m.Ctrl || m.Alt || m.Shift || m.Meta
}

// MouseEventType discriminates the pointer event variants.
type MouseEventType string

const (
	MouseMove   MouseEventType = "move"
	MouseClick  MouseEventType = "click"
	MouseScroll MouseEventType = "scroll"
)

// KeyboardEventType discriminates key transitions.
type KeyboardEventType string

const (
	KeyDown KeyboardEventType = "key_down"
	KeyUp   KeyboardEventType = "key_up"
)

// RawEvent is the closed set of inputs an EventSource may deliver.
// Implementations live in this package only; consumers switch exhaustively
// over MouseEvent, KeyboardEvent, WindowEvent and SourceFault.
type RawEvent interface {
	// EventTimestampMs returns the adapter-supplied timestamp in
	// milliseconds since the Unix epoch.
	EventTimestampMs() int64

	rawEvent()
}

// MouseEvent is a raw pointer event.
type MouseEvent struct {
	Type        MouseEventType `json:"type"`
	X           float64        `json:"x"`
	Y           float64        `json:"y"`
	Button      Button         `json:"button,omitempty"`
	WheelDelta  int            `json:"wheelDelta,omitempty"`
	Modifiers   Modifiers      `json:"modifiers"`
	TimestampMs int64          `json:"timestampMs"`
}

func (e MouseEvent) EventTimestampMs() int64 { return e.TimestampMs }
func (MouseEvent) rawEvent()                 {}

// KeyboardEvent is a raw key transition.
type KeyboardEvent struct {
	Type        KeyboardEventType `json:"type"`
	Key         string            `json:"key"`
	Modifiers   Modifiers         `json:"modifiers"`
	TimestampMs int64             `json:"timestampMs"`
}

func (e KeyboardEvent) EventTimestampMs() int64 { return e.TimestampMs }
func (KeyboardEvent) rawEvent()                 {}

// WindowEvent reports the frontmost application at the time of a focus poll
// or focus-change notification.
type WindowEvent struct {
	ProcessName string `json:"processName"`
	WindowTitle string `json:"windowTitle"`
	TimestampMs int64  `json:"timestampMs"`
}

func (e WindowEvent) EventTimestampMs() int64 { return e.TimestampMs }
func (WindowEvent) rawEvent()                 {}

// SourceFault carries a non-fatal fault from the hook subsystem. The
// pipeline forwards it to its error stream without halting.
type SourceFault struct {
	Err         error
	TimestampMs int64
}

func (e SourceFault) EventTimestampMs() int64 { return e.TimestampMs }
func (SourceFault) rawEvent()                 {}

// EventSource delivers raw interaction events to the pipeline. Stream blocks
// until the source is exhausted, the context is cancelled, or emit returns an
// error. A non-nil return that is not the context's error indicates the
// source could not register with the underlying hook subsystem.
type EventSource interface {
	Stream(ctx context.Context, emit func(RawEvent) error) error
}

// EventSourceFunc adapts a function literal to the EventSource interface.
type EventSourceFunc func(ctx context.Context, emit func(RawEvent) error) error

// Stream calls the underlying function.
func (f EventSourceFunc) Stream(ctx context.Context, emit func(RawEvent) error) error {
	return f(ctx, emit)
}
