// Package cluster merges temporally and spatially adjacent clicks of the
// same button into logical clicks with a multiplicity count.
package cluster

import (
	"errors"
	"math"
	"sync"
	"time"

	"github.com/offlinefirst/glimpse/pkg/events"
)

// Options configure the merge tolerances. Both must hold for a click to
// join the open cluster.
type Options struct {
	TimeTolerance     time.Duration
	PositionTolerance float64
}

// Clusterer is a streaming, single-pass, greedy click merger. It never
// re-clusters retroactively: a click that misses the tolerance starts a
// fresh cluster even if an earlier cluster was a better geometric fit.
//
// Safe for concurrent use; Observe runs on the ingest path while Flush runs
// from the window tick.
type Clusterer struct {
	timeToleranceMs   int64
	positionTolerance float64

	mu   sync.Mutex
	open *events.ProcessedMouseEvent
	// latestMs tracks the newest click folded into the open cluster; the
	// merge window is measured from here, not from the first click.
	latestMs int64
}

// New validates options and constructs a clusterer.
func New(opts Options) (*Clusterer, error) {
	if opts.TimeTolerance <= 0 {
		return nil, errors.New("time tolerance must be positive")
	}
	if opts.PositionTolerance <= 0 {
		return nil, errors.New("position tolerance must be positive")
	}
	return &Clusterer{
		timeToleranceMs:   opts.TimeTolerance.Milliseconds(),
		positionTolerance: opts.PositionTolerance,
	}, nil
}

// Observe consumes one raw click. When the click cannot join the open
// cluster, that cluster is closed and returned; the click then opens a new
// cluster. A cluster's reported position stays fixed at its first click
// while its timestamp advances to the newest merged click.
func (c *Clusterer) Observe(ev events.MouseEvent) (events.ProcessedMouseEvent, bool) {
	button := ev.Button
	if button == "" {
		button = events.ButtonLeft
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.open != nil && c.merges(ev, button) {
		c.open.NumberOfClicks++
		c.open.TimestampMs = ev.TimestampMs
		c.open.Modifiers = ev.Modifiers
		c.latestMs = ev.TimestampMs
		return events.ProcessedMouseEvent{}, false
	}

	closed := c.open
	c.open = &events.ProcessedMouseEvent{
		Type:           events.MouseClick,
		X:              ev.X,
		Y:              ev.Y,
		TimestampMs:    ev.TimestampMs,
		Modifiers:      ev.Modifiers,
		Button:         button,
		NumberOfClicks: 1,
	}
	c.latestMs = ev.TimestampMs

	if closed == nil {
		return events.ProcessedMouseEvent{}, false
	}
	return *closed, true
}

func (c *Clusterer) merges(ev events.MouseEvent, button events.Button) bool {
	if c.open.Button != button {
		return false
	}
	if ev.TimestampMs-c.latestMs > c.timeToleranceMs {
		return false
	}
	return math.Hypot(ev.X-c.open.X, ev.Y-c.open.Y) <= c.positionTolerance
}

// Flush closes and returns the open cluster, if any. Called at window
// boundaries so an in-progress cluster lands in the window its clicks
// belong to.
func (c *Clusterer) Flush() (events.ProcessedMouseEvent, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.open == nil {
		return events.ProcessedMouseEvent{}, false
	}
	closed := *c.open
	c.open = nil
	return closed, true
}
