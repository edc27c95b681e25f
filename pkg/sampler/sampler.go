// Package sampler throttles the continuous pointer signals (motion, wheel)
// into periodic samples carrying instantaneous kinematics.
package sampler

import (
	"errors"
	"math"
	"time"

	"github.com/offlinefirst/glimpse/pkg/events"
)

// Options configure throttle intervals.
type Options struct {
	// MoveThrottle is the minimum spacing between emitted move samples.
	MoveThrottle time.Duration
	// ScrollThrottle is the minimum spacing between emitted scroll
	// aggregates.
	ScrollThrottle time.Duration
}

// Sampler reduces raw move and scroll streams. Methods never block and do
// O(1) work per event; they are not safe for concurrent use and must be
// confined to the ingest path.
type Sampler struct {
	moveThrottleMs   int64
	scrollThrottleMs int64

	hasLast    bool
	lastX      float64
	lastY      float64
	lastMoveMs int64

	pendingDelta     int
	hasScrolled      bool
	lastScrollEmitMs int64
}

// New validates options and constructs a sampler.
func New(opts Options) (*Sampler, error) {
	if opts.MoveThrottle <= 0 {
		return nil, errors.New("move throttle must be positive")
	}
	if opts.ScrollThrottle <= 0 {
		return nil, errors.New("scroll throttle must be positive")
	}
	return &Sampler{
		moveThrottleMs:   opts.MoveThrottle.Milliseconds(),
		scrollThrottleMs: opts.ScrollThrottle.Milliseconds(),
	}, nil
}

// SampleMove consumes one raw move. It returns an emitted sample when the
// throttle interval has elapsed since the previous sample; moves inside the
// interval are discarded, so kinematics measure net displacement between
// emitted samples, not path length. The first sample of a session carries
// zero kinematics.
func (s *Sampler) SampleMove(ev events.MouseEvent) (events.ProcessedMouseEvent, bool) {
	if !s.hasLast {
		s.hasLast = true
		s.lastX, s.lastY = ev.X, ev.Y
		s.lastMoveMs = ev.TimestampMs
		return events.ProcessedMouseEvent{
			Type:        events.MouseMove,
			X:           ev.X,
			Y:           ev.Y,
			TimestampMs: ev.TimestampMs,
			Modifiers:   ev.Modifiers,
		}, true
	}

	elapsed := ev.TimestampMs - s.lastMoveMs
	if elapsed < s.moveThrottleMs {
		return events.ProcessedMouseEvent{}, false
	}

	dx := ev.X - s.lastX
	dy := ev.Y - s.lastY
	distance := math.Hypot(dx, dy)

	var velocity float64
	if elapsed > 0 {
		velocity = distance / float64(elapsed)
	}

	sample := events.ProcessedMouseEvent{
		Type:        events.MouseMove,
		X:           ev.X,
		Y:           ev.Y,
		TimestampMs: ev.TimestampMs,
		Modifiers:   ev.Modifiers,
		Distance:    distance,
		Velocity:    velocity,
		Direction:   math.Atan2(dy, dx),
	}

	s.lastX, s.lastY = ev.X, ev.Y
	s.lastMoveMs = ev.TimestampMs
	return sample, true
}

// SampleScroll accumulates a raw wheel delta and returns one aggregated
// scroll event at most once per throttle interval, positioned at the
// triggering event. The accumulator resets on emit.
func (s *Sampler) SampleScroll(ev events.MouseEvent) (events.ProcessedMouseEvent, bool) {
	s.pendingDelta += ev.WheelDelta

	if s.hasScrolled && ev.TimestampMs-s.lastScrollEmitMs < s.scrollThrottleMs {
		return events.ProcessedMouseEvent{}, false
	}

	aggregate := events.ProcessedMouseEvent{
		Type:        events.MouseScroll,
		X:           ev.X,
		Y:           ev.Y,
		TimestampMs: ev.TimestampMs,
		Modifiers:   ev.Modifiers,
		WheelDelta:  s.pendingDelta,
	}

	s.pendingDelta = 0
	s.hasScrolled = true
	s.lastScrollEmitMs = ev.TimestampMs
	return aggregate, true
}

// PendingScrollDelta exposes the unemitted wheel total, mainly for
// diagnostics. Pending deltas carry over into the next window rather than
// being force-flushed at a boundary.
func (s *Sampler) PendingScrollDelta() int { return s.pendingDelta }
