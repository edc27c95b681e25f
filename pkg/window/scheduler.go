package window

import (
	"context"
	"errors"
	"time"
)

// SchedulerOptions configure the flush cadence.
type SchedulerOptions struct {
	// Interval is the fixed window duration.
	Interval time.Duration
	// NewTicker is injectable for tests. It returns the tick channel and a
	// stop function; nil uses time.NewTicker.
	NewTicker func(time.Duration) (<-chan time.Time, func())
}

// Scheduler fires the window flush on a fixed wall-clock cadence. The tick
// is time-driven, not event-driven: idle intervals still fire so empty
// windows publish on schedule.
type Scheduler struct {
	interval  time.Duration
	newTicker func(time.Duration) (<-chan time.Time, func())
}

// NewScheduler validates options and constructs a scheduler.
func NewScheduler(opts SchedulerOptions) (*Scheduler, error) {
	if opts.Interval <= 0 {
		return nil, errors.New("window interval must be positive")
	}
	newTicker := opts.NewTicker
	if newTicker == nil {
		newTicker = func(d time.Duration) (<-chan time.Time, func()) {
			ticker := time.NewTicker(d)
			return ticker.C, ticker.Stop
		}
	}
	return &Scheduler{interval: opts.Interval, newTicker: newTicker}, nil
}

// Interval returns the configured window duration.
func (s *Scheduler) Interval() time.Duration { return s.interval }

// Run invokes onTick once per interval until the context is cancelled,
// then stops the ticker and returns the context's error. A cancelled run
// never fires a final partial tick.
func (s *Scheduler) Run(ctx context.Context, onTick func(now time.Time)) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ticks, stop := s.newTicker(s.interval)
	defer stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticks:
			onTick(now)
		}
	}
}
