package observe

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/offlinefirst/glimpse/pkg/events"
	"github.com/offlinefirst/glimpse/pkg/snapshot"
	"github.com/offlinefirst/glimpse/pkg/stats"
	"github.com/offlinefirst/glimpse/pkg/window"
)

const testEpochMs = 1_700_000_000_000

// testHarness runs a pipeline against a hand-fed event source and a manual
// ticker so tests control both the event flow and the window clock.
type testHarness struct {
	pipeline *Pipeline
	feed     chan events.RawEvent
	ticks    chan time.Time
	windows  <-chan window.ObservationWindow
	runDone  chan struct{}
	runErr   error
	cancel   context.CancelFunc
}

func newTestHarness(t *testing.T, mutate func(*Options)) *testHarness {
	t.Helper()

	feed := make(chan events.RawEvent)
	ticks := make(chan time.Time)

	source := events.EventSourceFunc(func(ctx context.Context, emit func(events.RawEvent) error) error {
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case ev, ok := <-feed:
				if !ok {
					return nil
				}
				if err := emit(ev); err != nil {
					return err
				}
			}
		}
	})

	opts := Options{
		Source: source,
		Tunables: Tunables{
			Interval:       time.Second,
			MoveThrottle:   100 * time.Millisecond,
			ScrollThrottle: 150 * time.Millisecond,
		},
		Clock: func() time.Time { return time.UnixMilli(testEpochMs) },
		NewTicker: func(time.Duration) (<-chan time.Time, func()) {
			return ticks, func() {}
		},
	}
	if mutate != nil {
		mutate(&opts)
	}

	p, err := New(opts)
	if err != nil {
		t.Fatalf("new pipeline: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	h := &testHarness{
		pipeline: p,
		feed:     feed,
		ticks:    ticks,
		windows:  p.Subscribe(),
		runDone:  make(chan struct{}),
		cancel:   cancel,
	}
	go func() {
		h.runErr = p.Run(ctx)
		close(h.runDone)
	}()
	t.Cleanup(func() {
		cancel()
		select {
		case <-h.runDone:
		case <-time.After(time.Second):
			t.Errorf("pipeline did not stop")
		}
	})
	return h
}

// emit feeds events and then synchronizes on a marker fault so the caller
// knows the ingest goroutine has consumed everything sent before it.
func (h *testHarness) emit(t *testing.T, toSend ...events.RawEvent) {
	t.Helper()
	marker := errors.New("sync marker")
	for _, ev := range toSend {
		select {
		case h.feed <- ev:
		case <-time.After(time.Second):
			t.Fatalf("source never accepted event %+v", ev)
		}
	}
	select {
	case h.feed <- events.SourceFault{Err: marker}:
	case <-time.After(time.Second):
		t.Fatalf("source never accepted sync marker")
	}
	select {
	case err := <-h.pipeline.Errors():
		if !errors.Is(err, marker) {
			t.Fatalf("unexpected fault before sync marker: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("sync marker never surfaced")
	}
}

func (h *testHarness) tick(t *testing.T) window.ObservationWindow {
	t.Helper()
	select {
	case h.ticks <- time.Now():
	case <-time.After(time.Second):
		t.Fatalf("scheduler never accepted tick")
	}
	select {
	case win := <-h.windows:
		return win
	case <-time.After(time.Second):
		t.Fatalf("window never published")
	}
	return window.ObservationWindow{}
}

func TestNewPipelineRequiresSource(t *testing.T) {
	if _, err := New(Options{}); err == nil {
		t.Fatalf("expected error without a source")
	}
}

func TestPipelinePublishesWindowWithEvents(t *testing.T) {
	h := newTestHarness(t, nil)

	h.emit(t,
		events.MouseEvent{Type: events.MouseMove, X: 10, Y: 10, TimestampMs: testEpochMs + 50},
		events.MouseEvent{Type: events.MouseClick, X: 10, Y: 10, Button: events.ButtonLeft, TimestampMs: testEpochMs + 100},
		events.KeyboardEvent{Type: events.KeyDown, Key: "a", TimestampMs: testEpochMs + 200},
	)

	win := h.tick(t)
	if win.WindowStartMs != testEpochMs {
		t.Fatalf("expected window to start at the pipeline epoch, got %d", win.WindowStartMs)
	}
	if win.WindowEndMs != testEpochMs+1000 {
		t.Fatalf("expected 1s window, got end %d", win.WindowEndMs)
	}
	if win.MouseData.MovementSummary.MoveCount != 1 {
		t.Fatalf("expected one move sample, got %+v", win.MouseData.MovementSummary)
	}
	if win.MouseData.ClickSummary.TotalClicks != 1 {
		t.Fatalf("expected one click cluster, got %+v", win.MouseData.ClickSummary)
	}
	if len(win.KeyboardEvents) != 1 || win.KeyboardEvents[0].FormattedInput != "A" {
		t.Fatalf("expected processed key-down, got %+v", win.KeyboardEvents)
	}
}

func TestPipelinePublishesContiguousWindows(t *testing.T) {
	h := newTestHarness(t, nil)

	first := h.tick(t)
	second := h.tick(t)
	third := h.tick(t)

	if first.WindowStartMs != testEpochMs {
		t.Fatalf("unexpected first window start %d", first.WindowStartMs)
	}
	if second.WindowStartMs != first.WindowEndMs || third.WindowStartMs != second.WindowEndMs {
		t.Fatalf("windows not contiguous: %d/%d, %d/%d",
			first.WindowEndMs, second.WindowStartMs, second.WindowEndMs, third.WindowStartMs)
	}
}

func TestPipelinePublishesEmptyWindow(t *testing.T) {
	h := newTestHarness(t, nil)

	win := h.tick(t)
	if len(win.MouseData.Events) != 0 || len(win.KeyboardEvents) != 0 || len(win.WindowEvents) != 0 {
		t.Fatalf("expected an empty window, got %+v", win)
	}
	if win.MouseData.Events == nil || win.KeyboardEvents == nil || win.WindowEvents == nil {
		t.Fatalf("expected non-nil slices in empty window")
	}
	if win.MouseData.ScrollSummary.ScrollDirection != stats.ScrollMixed {
		t.Fatalf("expected scroll direction mixed, got %q", win.MouseData.ScrollSummary.ScrollDirection)
	}
}

func TestPipelineSnapshotFailureIsSoft(t *testing.T) {
	h := newTestHarness(t, func(opts *Options) {
		opts.SnapshotProvider = snapshot.ProviderFunc(func(ctx context.Context) (snapshot.Frame, error) {
			return snapshot.Frame{}, errors.New("capture backend down")
		})
	})

	h.emit(t, events.MouseEvent{Type: events.MouseMove, X: 5, Y: 5, TimestampMs: testEpochMs + 10})

	win := h.tick(t)
	if !win.Screenshot.Empty() {
		t.Fatalf("expected empty screenshot on capture failure")
	}
	if win.MouseData.MovementSummary.MoveCount != 1 {
		t.Fatalf("expected event data to survive capture failure, got %+v", win.MouseData.MovementSummary)
	}
}

func TestPipelineSnapshotAttached(t *testing.T) {
	h := newTestHarness(t, func(opts *Options) {
		opts.SnapshotProvider = snapshot.ProviderFunc(func(ctx context.Context) (snapshot.Frame, error) {
			return snapshot.Frame{Data: []byte{0xAA}, Format: "png"}, nil
		})
	})

	win := h.tick(t)
	if win.Screenshot.Empty() {
		t.Fatalf("expected screenshot to be attached")
	}
	if win.Screenshot.Format != "png" {
		t.Fatalf("unexpected screenshot format %q", win.Screenshot.Format)
	}
}

func TestPipelinePauseDropsEvents(t *testing.T) {
	h := newTestHarness(t, nil)

	h.pipeline.Control().Pause()
	h.emit(t, events.MouseEvent{Type: events.MouseClick, X: 1, Y: 1, Button: events.ButtonLeft, TimestampMs: testEpochMs + 10})

	win := h.tick(t)
	if win.MouseData.ClickSummary.TotalClicks != 0 {
		t.Fatalf("expected paused pipeline to drop events, got %+v", win.MouseData.ClickSummary)
	}

	// Resumed events flow again.
	h.pipeline.Control().Resume()
	h.emit(t, events.MouseEvent{Type: events.MouseClick, X: 1, Y: 1, Button: events.ButtonLeft, TimestampMs: testEpochMs + 1100})
	win = h.tick(t)
	if win.MouseData.ClickSummary.TotalClicks != 1 {
		t.Fatalf("expected resumed pipeline to admit events, got %+v", win.MouseData.ClickSummary)
	}
}

func TestPipelineEventBeyondBoundaryPublishedOnce(t *testing.T) {
	h := newTestHarness(t, nil)

	// Stamped inside the second window but ingested before the first tick,
	// as happens when the ticker fires late. It must appear in the second
	// window only.
	h.emit(t, events.KeyboardEvent{Type: events.KeyDown, Key: "q", TimestampMs: testEpochMs + 1120})

	first := h.tick(t)
	if len(first.KeyboardEvents) != 0 {
		t.Fatalf("expected no keyboard events in [%d,%d), got %+v", first.WindowStartMs, first.WindowEndMs, first.KeyboardEvents)
	}

	second := h.tick(t)
	if len(second.KeyboardEvents) != 1 || second.KeyboardEvents[0].TimestampMs != testEpochMs+1120 {
		t.Fatalf("expected the event in [%d,%d), got %+v", second.WindowStartMs, second.WindowEndMs, second.KeyboardEvents)
	}

	third := h.tick(t)
	if len(third.KeyboardEvents) != 0 {
		t.Fatalf("expected the event to publish exactly once, got %+v", third.KeyboardEvents)
	}
}

func TestPipelineFaultAfterStopDoesNotPanic(t *testing.T) {
	release := make(chan struct{})
	emitted := make(chan struct{})
	p, err := New(Options{
		Source: events.EventSourceFunc(func(ctx context.Context, emit func(events.RawEvent) error) error {
			// Outlive Run: emit a fault only after the test has observed
			// the pipeline stop.
			<-release
			emit(events.SourceFault{Err: errors.New("late hook fault")})
			close(emitted)
			return nil
		}),
		Tunables:  Tunables{Interval: time.Second},
		Clock:     func() time.Time { return time.UnixMilli(testEpochMs) },
		NewTicker: func(time.Duration) (<-chan time.Time, func()) { return make(chan time.Time), func() {} },
	})
	if err != nil {
		t.Fatalf("new pipeline: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	runDone := make(chan error, 1)
	go func() { runDone <- p.Run(ctx) }()

	cancel()
	select {
	case <-runDone:
	case <-time.After(time.Second):
		t.Fatalf("pipeline did not stop on cancel")
	}

	close(release)
	select {
	case <-emitted:
	case <-time.After(time.Second):
		t.Fatalf("source never emitted the late fault")
	}
}

func TestPipelineStaleEventsDropped(t *testing.T) {
	h := newTestHarness(t, nil)

	// Publish one window, then feed an event stamped before its end.
	h.tick(t)
	h.emit(t, events.MouseEvent{Type: events.MouseClick, X: 1, Y: 1, Button: events.ButtonLeft, TimestampMs: testEpochMs + 500})

	// The stale click sits in the clusterer until the next flush; it must
	// not surface in the published window.
	win := h.tick(t)
	if win.MouseData.ClickSummary.TotalClicks != 0 {
		t.Fatalf("expected stale click to be dropped, got %+v", win.MouseData.ClickSummary)
	}
	if h.pipeline.BufferStats().DroppedStale == 0 {
		t.Fatalf("expected stale drop counter to advance")
	}
}

func TestPipelineKillStopsRun(t *testing.T) {
	h := newTestHarness(t, nil)

	h.pipeline.Control().Kill(nil)
	select {
	case <-h.runDone:
		if !errors.Is(h.runErr, ErrStopped) {
			t.Fatalf("expected ErrStopped, got %v", h.runErr)
		}
	case <-time.After(time.Second):
		t.Fatalf("pipeline did not stop after kill")
	}

	// The subscriber channel closes on stop.
	select {
	case _, ok := <-h.windows:
		if ok {
			t.Fatalf("expected closed subscriber channel")
		}
	case <-time.After(time.Second):
		t.Fatalf("subscriber channel never closed")
	}
}

func TestPipelineCancelReturnsContextError(t *testing.T) {
	h := newTestHarness(t, nil)

	h.cancel()
	select {
	case <-h.runDone:
		if !errors.Is(h.runErr, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", h.runErr)
		}
	case <-time.After(time.Second):
		t.Fatalf("pipeline did not stop on cancel")
	}
}

func TestPipelineFatalSourceError(t *testing.T) {
	cause := errors.New("hook registration denied")
	p, err := New(Options{
		Source: events.EventSourceFunc(func(ctx context.Context, emit func(events.RawEvent) error) error {
			return cause
		}),
		Tunables: Tunables{Interval: time.Hour},
	})
	if err != nil {
		t.Fatalf("new pipeline: %v", err)
	}

	err = p.Run(context.Background())
	if !errors.Is(err, cause) {
		t.Fatalf("expected source error to be fatal, got %v", err)
	}
	if !strings.Contains(err.Error(), "event source") {
		t.Fatalf("expected wrapped source error, got %v", err)
	}
}

func TestPipelineSurvivesSourceDrain(t *testing.T) {
	h := newTestHarness(t, nil)

	h.emit(t, events.MouseEvent{Type: events.MouseClick, X: 1, Y: 1, Button: events.ButtonLeft, TimestampMs: testEpochMs + 10})
	close(h.feed)

	// Drained source is not fatal: the schedule keeps publishing.
	win := h.tick(t)
	if win.MouseData.ClickSummary.TotalClicks != 1 {
		t.Fatalf("expected buffered event in first window, got %+v", win.MouseData.ClickSummary)
	}
	win = h.tick(t)
	if len(win.MouseData.Events) != 0 {
		t.Fatalf("expected empty follow-up window, got %+v", win.MouseData.Events)
	}
}

func TestSubscribeAfterStopReturnsClosedChannel(t *testing.T) {
	h := newTestHarness(t, nil)

	h.cancel()
	select {
	case <-h.runDone:
	case <-time.After(time.Second):
		t.Fatalf("pipeline did not stop")
	}

	ch := h.pipeline.Subscribe()
	select {
	case _, ok := <-ch:
		if ok {
			t.Fatalf("expected closed channel from late subscribe")
		}
	case <-time.After(time.Second):
		t.Fatalf("late subscriber channel never closed")
	}
}
