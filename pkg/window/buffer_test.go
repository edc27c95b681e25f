package window

import (
	"testing"

	"github.com/offlinefirst/glimpse/pkg/events"
)

func newTestBuffer(t *testing.T, maxEvents int) *Buffer {
	t.Helper()
	b, err := NewBuffer(BufferOptions{MaxEvents: maxEvents})
	if err != nil {
		t.Fatalf("new buffer: %v", err)
	}
	return b
}

func mouseAt(ts int64) events.ProcessedMouseEvent {
	return events.ProcessedMouseEvent{Type: events.MouseMove, TimestampMs: ts}
}

func TestNewBufferValidation(t *testing.T) {
	if _, err := NewBuffer(BufferOptions{MaxEvents: 0}); err == nil {
		t.Fatalf("expected error for non-positive cap")
	}
}

func TestBufferCollectFiltersByTimestamp(t *testing.T) {
	b := newTestBuffer(t, 100)

	b.AppendMouse(mouseAt(10))
	b.AppendMouse(mouseAt(20))
	b.AppendKeyboard(events.ProcessedKeyboardEvent{TimestampMs: 15, FormattedInput: "a"})
	b.AppendFocus(events.ProcessedWindowEvent{TimestampMs: 25, ProcessName: "editor"})

	mouse, keyboard, focus := b.Collect(20, 100)
	if len(mouse) != 1 || mouse[0].TimestampMs != 20 {
		t.Fatalf("expected one mouse event at 20, got %+v", mouse)
	}
	if len(keyboard) != 0 {
		t.Fatalf("expected keyboard event before boundary to be excluded, got %+v", keyboard)
	}
	if len(focus) != 1 || focus[0].TimestampMs != 25 {
		t.Fatalf("expected one focus event at 25, got %+v", focus)
	}

	// Collect never mutates the buffer.
	if got := b.Stats().Buffered; got != 4 {
		t.Fatalf("expected 4 buffered events after collect, got %d", got)
	}
}

func TestBufferPruneKeepsNewerEvents(t *testing.T) {
	b := newTestBuffer(t, 100)

	b.AppendMouse(mouseAt(10))
	b.AppendMouse(mouseAt(20))
	b.AppendMouse(mouseAt(30))

	// The boundary event itself is pruned; only strictly newer events stay.
	b.Prune(20)
	mouse, _, _ := b.Collect(0, 100)
	if len(mouse) != 1 || mouse[0].TimestampMs != 30 {
		t.Fatalf("expected only the event at 30 to remain, got %+v", mouse)
	}
}

func TestBufferCollectExcludesEventsBeyondWindowEnd(t *testing.T) {
	b := newTestBuffer(t, 100)

	b.AppendKeyboard(events.ProcessedKeyboardEvent{TimestampMs: 500, FormattedInput: "a"})
	// Stamped after the scheduled end: belongs to the next window even
	// though it is already buffered when the tick fires.
	b.AppendKeyboard(events.ProcessedKeyboardEvent{TimestampMs: 1120, FormattedInput: "b"})

	_, keyboard, _ := b.Collect(0, 1000)
	if len(keyboard) != 1 || keyboard[0].TimestampMs != 500 {
		t.Fatalf("expected only the in-window event, got %+v", keyboard)
	}

	b.Prune(1000)
	_, keyboard, _ = b.Collect(1000, 2000)
	if len(keyboard) != 1 || keyboard[0].TimestampMs != 1120 {
		t.Fatalf("expected the held-back event in the next window, got %+v", keyboard)
	}
}

func TestBufferDropsStaleEvents(t *testing.T) {
	b := newTestBuffer(t, 100)
	b.SetFloor(1000)

	if b.AppendMouse(mouseAt(999)) {
		t.Fatalf("expected event below the floor to be dropped")
	}
	if !b.AppendMouse(mouseAt(1000)) {
		t.Fatalf("expected event at the floor to be admitted")
	}

	stats := b.Stats()
	if stats.DroppedStale != 1 {
		t.Fatalf("expected 1 stale drop, got %d", stats.DroppedStale)
	}
	if stats.Buffered != 1 {
		t.Fatalf("expected 1 buffered event, got %d", stats.Buffered)
	}
}

func TestBufferEvictsOldestAtCapacity(t *testing.T) {
	b := newTestBuffer(t, 3)

	b.AppendMouse(mouseAt(1))
	b.AppendKeyboard(events.ProcessedKeyboardEvent{TimestampMs: 2, FormattedInput: "x"})
	b.AppendMouse(mouseAt(3))
	// Fourth append evicts the oldest event overall, the mouse event at 1.
	b.AppendMouse(mouseAt(4))

	stats := b.Stats()
	if stats.Buffered != 3 {
		t.Fatalf("expected buffer to stay at capacity, got %d", stats.Buffered)
	}
	if stats.Evicted != 1 {
		t.Fatalf("expected 1 eviction, got %d", stats.Evicted)
	}

	mouse, keyboard, _ := b.Collect(0, 100)
	if len(mouse) != 2 || mouse[0].TimestampMs != 3 {
		t.Fatalf("expected mouse event at 1 to be evicted, got %+v", mouse)
	}
	if len(keyboard) != 1 {
		t.Fatalf("expected keyboard event to survive, got %+v", keyboard)
	}
}

func TestBufferEvictsAcrossCategories(t *testing.T) {
	b := newTestBuffer(t, 2)

	b.AppendKeyboard(events.ProcessedKeyboardEvent{TimestampMs: 5, FormattedInput: "a"})
	b.AppendMouse(mouseAt(10))
	b.AppendMouse(mouseAt(20))

	// The keyboard event was oldest overall and must be the one evicted.
	mouse, keyboard, _ := b.Collect(0, 100)
	if len(keyboard) != 0 {
		t.Fatalf("expected keyboard event to be evicted, got %+v", keyboard)
	}
	if len(mouse) != 2 {
		t.Fatalf("expected both mouse events to remain, got %+v", mouse)
	}
}
