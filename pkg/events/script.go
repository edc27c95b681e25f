package events

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"
)

// ScriptSource replays a fixed sequence of raw events. With Pace enabled the
// source sleeps between events to reproduce the original timestamp spacing,
// which makes it usable against the wall-clock scheduler; without pacing it
// emits as fast as the consumer accepts.
type ScriptSource struct {
	Events []RawEvent
	Pace   bool

	// Sleeper is injectable for tests; nil uses a timer honouring ctx.
	Sleeper func(context.Context, time.Duration) error
}

// Stream emits the scripted events in order.
func (s *ScriptSource) Stream(ctx context.Context, emit func(RawEvent) error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	sleeper := s.Sleeper
	if sleeper == nil {
		sleeper = sleepFor
	}

	var prevMs int64
	for i, event := range s.Events {
		if err := ctx.Err(); err != nil {
			return err
		}
		if s.Pace && i > 0 {
			if gap := event.EventTimestampMs() - prevMs; gap > 0 {
				if err := sleeper(ctx, time.Duration(gap)*time.Millisecond); err != nil {
					return err
				}
			}
		}
		prevMs = event.EventTimestampMs()
		if err := emit(event); err != nil {
			return err
		}
	}
	return nil
}

func sleepFor(ctx context.Context, wait time.Duration) error {
	if wait <= 0 {
		return nil
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// scriptRecord is the JSONL wire form of a scripted raw event. The kind
// field discriminates the variant; remaining fields mirror the event structs.
type scriptRecord struct {
	Kind string `json:"kind"`

	Type       string    `json:"type,omitempty"`
	X          float64   `json:"x,omitempty"`
	Y          float64   `json:"y,omitempty"`
	Button     string    `json:"button,omitempty"`
	WheelDelta int       `json:"wheelDelta,omitempty"`
	Modifiers  Modifiers `json:"modifiers,omitempty"`

	Key string `json:"key,omitempty"`

	ProcessName string `json:"processName,omitempty"`
	WindowTitle string `json:"windowTitle,omitempty"`

	TimestampMs int64 `json:"timestampMs"`
}

// ParseScript reads newline-delimited JSON event records. Blank lines and
// lines starting with '#' are skipped.
func ParseScript(r io.Reader) ([]RawEvent, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var out []RawEvent
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		var rec scriptRecord
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			return nil, fmt.Errorf("line %d: decode event: %w", lineNo, err)
		}

		event, err := rec.toEvent()
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}
		out = append(out, event)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read script: %w", err)
	}
	return out, nil
}

func (rec scriptRecord) toEvent() (RawEvent, error) {
	switch strings.ToLower(rec.Kind) {
	case "mouse":
		var eventType MouseEventType
		switch MouseEventType(rec.Type) {
		case MouseMove, MouseClick, MouseScroll:
			eventType = MouseEventType(rec.Type)
		default:
			return nil, fmt.Errorf("unknown mouse event type %q", rec.Type)
		}
		return MouseEvent{
			Type:        eventType,
			X:           rec.X,
			Y:           rec.Y,
			Button:      ParseButton(rec.Button),
			WheelDelta:  rec.WheelDelta,
			Modifiers:   rec.Modifiers,
			TimestampMs: rec.TimestampMs,
		}, nil
	case "keyboard":
		var eventType KeyboardEventType
		switch KeyboardEventType(rec.Type) {
		case KeyDown, KeyUp:
			eventType = KeyboardEventType(rec.Type)
		default:
			return nil, fmt.Errorf("unknown keyboard event type %q", rec.Type)
		}
		return KeyboardEvent{
			Type:        eventType,
			Key:         rec.Key,
			Modifiers:   rec.Modifiers,
			TimestampMs: rec.TimestampMs,
		}, nil
	case "window":
		return WindowEvent{
			ProcessName: rec.ProcessName,
			WindowTitle: rec.WindowTitle,
			TimestampMs: rec.TimestampMs,
		}, nil
	default:
		return nil, fmt.Errorf("unknown event kind %q", rec.Kind)
	}
}

// DemoScript synthesises a short deterministic interaction timeline starting
// at the given epoch millisecond: a burst of pointer motion, a double click,
// some typing, a scroll, and a focus change. Used by the run command when no
// script is supplied, and by tests.
func DemoScript(startMs int64) []RawEvent {
	var out []RawEvent

	// Diagonal sweep, one raw move every 20ms.
	for i := 0; i <= 25; i++ {
		out = append(out, MouseEvent{
			Type:        MouseMove,
			X:           float64(40 + i*8),
			Y:           float64(40 + i*5),
			TimestampMs: startMs + int64(i*20),
		})
	}

	out = append(out,
		WindowEvent{ProcessName: "editor", WindowTitle: "notes.txt", TimestampMs: startMs + 600},
		MouseEvent{Type: MouseClick, X: 240, Y: 165, Button: ButtonLeft, TimestampMs: startMs + 700},
		MouseEvent{Type: MouseClick, X: 241, Y: 165, Button: ButtonLeft, TimestampMs: startMs + 780},
		KeyboardEvent{Type: KeyDown, Key: "h", TimestampMs: startMs + 1000},
		KeyboardEvent{Type: KeyUp, Key: "h", TimestampMs: startMs + 1060},
		KeyboardEvent{Type: KeyDown, Key: "i", TimestampMs: startMs + 1120},
		KeyboardEvent{Type: KeyUp, Key: "i", TimestampMs: startMs + 1180},
		KeyboardEvent{Type: KeyDown, Key: "s", Modifiers: Modifiers{Ctrl: true}, TimestampMs: startMs + 1400},
		KeyboardEvent{Type: KeyUp, Key: "s", Modifiers: Modifiers{Ctrl: true}, TimestampMs: startMs + 1450},
		MouseEvent{Type: MouseScroll, X: 240, Y: 165, WheelDelta: -3, TimestampMs: startMs + 1700},
		MouseEvent{Type: MouseScroll, X: 240, Y: 165, WheelDelta: -2, TimestampMs: startMs + 1740},
		WindowEvent{ProcessName: "browser", WindowTitle: "docs", TimestampMs: startMs + 2000},
		MouseEvent{Type: MouseClick, X: 500, Y: 80, Button: ButtonRight, TimestampMs: startMs + 2200},
	)

	return out
}
