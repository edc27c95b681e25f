// Package window accumulates processed interaction events and publishes
// fixed-duration observation windows on a wall-clock tick.
//
// Windows are contiguous and non-overlapping; every processed event belongs
// to exactly one window, decided by its timestamp when the tick fires. An
// idle interval still publishes a window with zero-valued summaries.
package window

import (
	"time"

	"github.com/offlinefirst/glimpse/pkg/events"
	"github.com/offlinefirst/glimpse/pkg/snapshot"
	"github.com/offlinefirst/glimpse/pkg/stats"
)

// MouseData groups a window's processed pointer events with their
// statistical summaries.
type MouseData struct {
	Events          []events.ProcessedMouseEvent `json:"events"`
	MovementSummary stats.MovementSummary        `json:"movementSummary"`
	ScrollSummary   stats.ScrollSummary          `json:"scrollSummary"`
	ClickSummary    stats.ClickSummary           `json:"clickSummary"`
}

// ObservationWindow is the published artifact. It is immutable once
// published; ownership passes fully to the consumer and the pipeline
// retains no reference.
type ObservationWindow struct {
	WindowStartMs  int64                           `json:"windowStartMs"`
	WindowEndMs    int64                           `json:"windowEndMs"`
	DurationMs     int64                           `json:"durationMs"`
	Screenshot     snapshot.Frame                  `json:"screenshot,omitempty"`
	MouseData      MouseData                       `json:"mouseData"`
	KeyboardEvents []events.ProcessedKeyboardEvent `json:"keyboardEvents"`
	WindowEvents   []events.ProcessedWindowEvent   `json:"windowEvents"`
}

// Start returns the window's inclusive start time.
func (w ObservationWindow) Start() time.Time { return time.UnixMilli(w.WindowStartMs).UTC() }

// End returns the window's exclusive end time.
func (w ObservationWindow) End() time.Time { return time.UnixMilli(w.WindowEndMs).UTC() }

// Assemble builds an observation window from the collected event slices,
// computing all three summaries. Empty slices produce zero-valued
// summaries, never nulls; the event arrays are always non-nil so the
// serialized form carries empty lists rather than JSON null.
func Assemble(startMs, endMs int64, mouse []events.ProcessedMouseEvent, keyboard []events.ProcessedKeyboardEvent, focus []events.ProcessedWindowEvent, shot snapshot.Frame) ObservationWindow {
	if mouse == nil {
		mouse = []events.ProcessedMouseEvent{}
	}
	if keyboard == nil {
		keyboard = []events.ProcessedKeyboardEvent{}
	}
	if focus == nil {
		focus = []events.ProcessedWindowEvent{}
	}

	duration := time.Duration(endMs-startMs) * time.Millisecond

	return ObservationWindow{
		WindowStartMs: startMs,
		WindowEndMs:   endMs,
		DurationMs:    endMs - startMs,
		Screenshot:    shot,
		MouseData: MouseData{
			Events:          mouse,
			MovementSummary: stats.Movement(mouse),
			ScrollSummary:   stats.Scroll(mouse),
			ClickSummary:    stats.Clicks(mouse, duration),
		},
		KeyboardEvents: keyboard,
		WindowEvents:   focus,
	}
}
