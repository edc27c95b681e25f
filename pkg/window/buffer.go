package window

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/offlinefirst/glimpse/pkg/events"
	"github.com/offlinefirst/glimpse/pkg/logging"
)

// rateWarnInterval throttles drop and eviction warnings so a stuck
// consumer cannot flood the log.
const rateWarnInterval = time.Second

// BufferOptions configure the shared event buffer.
type BufferOptions struct {
	// MaxEvents caps the total number of buffered events across all
	// categories, a safety valve against unconnected consumers. When the
	// cap is hit the oldest event of the incoming category is evicted.
	MaxEvents int
	Logger    *slog.Logger
}

// Buffer is the mutex-guarded accumulation structure shared between the
// ingest path and the flush path. Appends are O(1) inside the critical
// section and never block on downstream work; the flush side reads by
// timestamp, so events appended mid-flush land in whichever window their
// timestamp selects.
type Buffer struct {
	maxEvents int
	logger    *slog.Logger
	warnLimit *rate.Limiter

	mu       sync.Mutex
	mouse    []events.ProcessedMouseEvent
	keyboard []events.ProcessedKeyboardEvent
	focus    []events.ProcessedWindowEvent

	// floorMs is the end of the last published window; events stamped
	// before it can no longer be placed in a meaningful window.
	floorMs      int64
	droppedStale uint64
	evicted      uint64
}

// BufferStats reports accounting counters for diagnostics.
type BufferStats struct {
	Buffered     int
	DroppedStale uint64
	Evicted      uint64
}

// NewBuffer validates options and constructs an empty buffer.
func NewBuffer(opts BufferOptions) (*Buffer, error) {
	if opts.MaxEvents <= 0 {
		return nil, errors.New("max buffered events must be positive")
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	return &Buffer{
		maxEvents: opts.MaxEvents,
		logger:    logger,
		warnLimit: rate.NewLimiter(rate.Every(rateWarnInterval), 1),
	}, nil
}

// SetFloor records the lower bound below which arriving events are stale.
// The pipeline calls it once at start and after every publish.
func (b *Buffer) SetFloor(ms int64) {
	b.mu.Lock()
	b.floorMs = ms
	b.mu.Unlock()
}

// AppendMouse buffers a processed pointer event. It reports false when the
// event was dropped as stale.
func (b *Buffer) AppendMouse(ev events.ProcessedMouseEvent) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.admit(ev.TimestampMs) {
		return false
	}
	b.mouse = append(b.mouse, ev)
	return true
}

// AppendKeyboard buffers a processed key-down.
func (b *Buffer) AppendKeyboard(ev events.ProcessedKeyboardEvent) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.admit(ev.TimestampMs) {
		return false
	}
	b.keyboard = append(b.keyboard, ev)
	return true
}

// AppendFocus buffers a focus change.
func (b *Buffer) AppendFocus(ev events.ProcessedWindowEvent) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.admit(ev.TimestampMs) {
		return false
	}
	b.focus = append(b.focus, ev)
	return true
}

// admit enforces the stale floor and the size cap. Callers hold b.mu.
func (b *Buffer) admit(tsMs int64) bool {
	if tsMs < b.floorMs {
		b.droppedStale++
		if b.warnLimit.Allow() {
			b.logger.Warn("dropping stale event", "timestamp_ms", tsMs, "floor_ms", b.floorMs, "dropped_total", b.droppedStale)
		}
		return false
	}
	if len(b.mouse)+len(b.keyboard)+len(b.focus) >= b.maxEvents {
		b.evictOldest()
		b.evicted++
		if b.warnLimit.Allow() {
			b.logger.Warn("event buffer full, evicting oldest", "max_events", b.maxEvents, "evicted_total", b.evicted)
		}
	}
	return true
}

// evictOldest drops the oldest buffered event across the three categories.
func (b *Buffer) evictOldest() {
	oldest := -1
	var oldestMs int64
	if len(b.mouse) > 0 {
		oldest, oldestMs = 0, b.mouse[0].TimestampMs
	}
	if len(b.keyboard) > 0 && (oldest < 0 || b.keyboard[0].TimestampMs < oldestMs) {
		oldest, oldestMs = 1, b.keyboard[0].TimestampMs
	}
	if len(b.focus) > 0 && (oldest < 0 || b.focus[0].TimestampMs < oldestMs) {
		oldest = 2
	}
	switch oldest {
	case 0:
		b.mouse = b.mouse[1:]
	case 1:
		b.keyboard = b.keyboard[1:]
	case 2:
		b.focus = b.focus[1:]
	}
}

// Collect copies, in arrival order, every buffered event stamped inside
// [startMs, endMs). The buffer itself is untouched; selection is by
// timestamp, not physical slicing, so an event appended mid-flush is still
// picked up if it lands before the filter runs. Events stamped at or after
// endMs stay buffered for the next window; without the upper bound a tick
// firing late would publish them twice.
func (b *Buffer) Collect(startMs, endMs int64) ([]events.ProcessedMouseEvent, []events.ProcessedKeyboardEvent, []events.ProcessedWindowEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()

	mouse := make([]events.ProcessedMouseEvent, 0, len(b.mouse))
	for _, ev := range b.mouse {
		if ev.TimestampMs >= startMs && ev.TimestampMs < endMs {
			mouse = append(mouse, ev)
		}
	}
	keyboard := make([]events.ProcessedKeyboardEvent, 0, len(b.keyboard))
	for _, ev := range b.keyboard {
		if ev.TimestampMs >= startMs && ev.TimestampMs < endMs {
			keyboard = append(keyboard, ev)
		}
	}
	focus := make([]events.ProcessedWindowEvent, 0, len(b.focus))
	for _, ev := range b.focus {
		if ev.TimestampMs >= startMs && ev.TimestampMs < endMs {
			focus = append(focus, ev)
		}
	}
	return mouse, keyboard, focus
}

// Prune discards events stamped at or before startMs. Events newer than the
// boundary remain for the next window.
func (b *Buffer) Prune(startMs int64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	mouse := b.mouse[:0]
	for _, ev := range b.mouse {
		if ev.TimestampMs > startMs {
			mouse = append(mouse, ev)
		}
	}
	b.mouse = mouse

	keyboard := b.keyboard[:0]
	for _, ev := range b.keyboard {
		if ev.TimestampMs > startMs {
			keyboard = append(keyboard, ev)
		}
	}
	b.keyboard = keyboard

	focus := b.focus[:0]
	for _, ev := range b.focus {
		if ev.TimestampMs > startMs {
			focus = append(focus, ev)
		}
	}
	b.focus = focus
}

// Stats returns a snapshot of the accounting counters.
func (b *Buffer) Stats() BufferStats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return BufferStats{
		Buffered:     len(b.mouse) + len(b.keyboard) + len(b.focus),
		DroppedStale: b.droppedStale,
		Evicted:      b.evicted,
	}
}
