package observe

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/offlinefirst/glimpse/pkg/cluster"
	"github.com/offlinefirst/glimpse/pkg/events"
	"github.com/offlinefirst/glimpse/pkg/sampler"
	"github.com/offlinefirst/glimpse/pkg/snapshot"
	"github.com/offlinefirst/glimpse/pkg/window"
)

// Tunables carry the per-event processing knobs shared by the live pipeline
// and the synchronous replay driver. Zero fields take defaults.
type Tunables struct {
	Interval               time.Duration
	MoveThrottle           time.Duration
	ScrollThrottle         time.Duration
	ClickTimeTolerance     time.Duration
	ClickPositionTolerance float64
	MaxBufferedEvents      int
	Redactor               events.Redactor
	Privacy                events.PrivacyPolicy
}

const (
	defaultInterval          = 20 * time.Second
	defaultMoveThrottle      = 100 * time.Millisecond
	defaultScrollThrottle    = 150 * time.Millisecond
	defaultClickTolerance    = 500 * time.Millisecond
	defaultClickRadius       = 5.0
	defaultMaxBufferedEvents = 100_000
)

func (t Tunables) withDefaults() Tunables {
	if t.Interval <= 0 {
		t.Interval = defaultInterval
	}
	if t.MoveThrottle <= 0 {
		t.MoveThrottle = defaultMoveThrottle
	}
	if t.ScrollThrottle <= 0 {
		t.ScrollThrottle = defaultScrollThrottle
	}
	if t.ClickTimeTolerance <= 0 {
		t.ClickTimeTolerance = defaultClickTolerance
	}
	if t.ClickPositionTolerance <= 0 {
		t.ClickPositionTolerance = defaultClickRadius
	}
	if t.MaxBufferedEvents <= 0 {
		t.MaxBufferedEvents = defaultMaxBufferedEvents
	}
	return t
}

// core wires the per-event reducers to the shared buffer. The consume path
// must only ever run on the source goroutine; closeWindow runs on the tick
// side and synchronizes through the buffer and clusterer.
type core struct {
	sampler   *sampler.Sampler
	clusterer *cluster.Clusterer
	keys      *events.KeyTracker
	buffer    *window.Buffer

	redactor events.Redactor
	privacy  events.PrivacyPolicy

	lastFocusSeen    bool
	lastFocusProcess string
	lastFocusTitle   string
}

func newCore(t Tunables, logger *slog.Logger) (*core, error) {
	t = t.withDefaults()

	moveSampler, err := sampler.New(sampler.Options{
		MoveThrottle:   t.MoveThrottle,
		ScrollThrottle: t.ScrollThrottle,
	})
	if err != nil {
		return nil, fmt.Errorf("initialise sampler: %w", err)
	}

	clusterer, err := cluster.New(cluster.Options{
		TimeTolerance:     t.ClickTimeTolerance,
		PositionTolerance: t.ClickPositionTolerance,
	})
	if err != nil {
		return nil, fmt.Errorf("initialise click clusterer: %w", err)
	}

	buffer, err := window.NewBuffer(window.BufferOptions{
		MaxEvents: t.MaxBufferedEvents,
		Logger:    logger,
	})
	if err != nil {
		return nil, fmt.Errorf("initialise event buffer: %w", err)
	}

	return &core{
		sampler:   moveSampler,
		clusterer: clusterer,
		keys:      events.NewKeyTracker(),
		buffer:    buffer,
		redactor:  t.Redactor,
		privacy:   t.Privacy,
	}, nil
}

// consume reduces one raw event into the buffer. It never returns an error
// to the producer; malformed input is absorbed with defaults.
func (c *core) consume(raw events.RawEvent) {
	switch ev := raw.(type) {
	case events.MouseEvent:
		switch ev.Type {
		case events.MouseMove:
			if sample, ok := c.sampler.SampleMove(ev); ok {
				c.buffer.AppendMouse(sample)
			}
		case events.MouseScroll:
			if aggregate, ok := c.sampler.SampleScroll(ev); ok {
				c.buffer.AppendMouse(aggregate)
			}
		case events.MouseClick:
			if closed, ok := c.clusterer.Observe(ev); ok {
				c.buffer.AppendMouse(closed)
			}
		}
	case events.KeyboardEvent:
		if down, ok := c.keys.Observe(ev); ok {
			down.FormattedInput = c.redactor.ApplyString(down.FormattedInput)
			c.buffer.AppendKeyboard(down)
		}
	case events.WindowEvent:
		if !c.privacy.AllowsProcess(ev.ProcessName) {
			return
		}
		if c.lastFocusSeen && c.lastFocusProcess == ev.ProcessName && c.lastFocusTitle == ev.WindowTitle {
			// Focus polls repeat the frontmost app; only changes count.
			return
		}
		c.lastFocusSeen = true
		c.lastFocusProcess = ev.ProcessName
		c.lastFocusTitle = ev.WindowTitle
		c.buffer.AppendFocus(c.redactor.ApplyWindow(events.ProcessedWindowEvent{
			ProcessName: ev.ProcessName,
			WindowTitle: ev.WindowTitle,
			TimestampMs: ev.TimestampMs,
		}))
	}
}

// closeWindow flushes the open click cluster, selects the window's events
// by timestamp, assembles the summaries, and prunes the buffer. The
// returned window has no screenshot attached; the caller correlates one
// separately so the capture wait never holds the buffer lock.
func (c *core) closeWindow(startMs, endMs int64) window.ObservationWindow {
	if open, ok := c.clusterer.Flush(); ok {
		c.buffer.AppendMouse(open)
	}

	mouse, keyboard, focus := c.buffer.Collect(startMs, endMs)
	published := window.Assemble(startMs, endMs, mouse, keyboard, focus, snapshot.Frame{})

	c.buffer.Prune(startMs)
	c.buffer.SetFloor(endMs)
	return published
}
