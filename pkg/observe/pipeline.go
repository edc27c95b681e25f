// Package observe owns the ingest-aggregate-window-publish pipeline: it
// wires an event source through the sampler, clusterer and window buffer,
// and publishes one ObservationWindow per tick with a correlated screen
// snapshot.
//
// Pipelines are explicit instances with no shared global state; several can
// run independently in one process.
package observe

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/offlinefirst/glimpse/pkg/events"
	"github.com/offlinefirst/glimpse/pkg/logging"
	"github.com/offlinefirst/glimpse/pkg/snapshot"
	"github.com/offlinefirst/glimpse/pkg/window"
)

// ErrStopped reports that the pipeline was stopped through its controller
// without a more specific cause.
var ErrStopped = errors.New("pipeline stopped")

// Options configure a pipeline instance.
type Options struct {
	// Source delivers raw interaction events. Required.
	Source events.EventSource
	// SnapshotProvider captures one screen frame per tick. Optional;
	// windows publish without an image when absent.
	SnapshotProvider snapshot.Provider
	// SnapshotTimeout bounds each capture. Defaults to 5s.
	SnapshotTimeout time.Duration

	Tunables Tunables

	// SubscriberBuffer sizes each subscriber channel. A subscriber that
	// falls behind loses windows rather than stalling the tick. Defaults
	// to 4.
	SubscriberBuffer int

	Logger  *slog.Logger
	Clock   func() time.Time
	Control *Controller
	// NewTicker is injectable for tests; see window.SchedulerOptions.
	NewTicker func(time.Duration) (<-chan time.Time, func())
}

// Pipeline is the long-lived owner of one observation stream. Create with
// New, start with Run, and consume windows through Subscribe.
type Pipeline struct {
	source     events.EventSource
	core       *core
	scheduler  *window.Scheduler
	correlator *snapshot.Correlator
	control    *Controller

	logger *slog.Logger
	clock  func() time.Time

	subscriberBuffer int
	dropWarn         *rate.Limiter

	mu            sync.Mutex
	subscribers   []chan window.ObservationWindow
	closed        bool
	windowStartMs int64

	errs chan error
}

// New validates options and constructs a pipeline. Nothing runs until Run.
func New(opts Options) (*Pipeline, error) {
	if opts.Source == nil {
		return nil, errors.New("event source must be provided")
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}
	control := opts.Control
	if control == nil {
		control = NewController()
	}
	subscriberBuffer := opts.SubscriberBuffer
	if subscriberBuffer <= 0 {
		subscriberBuffer = 4
	}

	pipelineCore, err := newCore(opts.Tunables, logger)
	if err != nil {
		return nil, err
	}

	scheduler, err := window.NewScheduler(window.SchedulerOptions{
		Interval:  opts.Tunables.withDefaults().Interval,
		NewTicker: opts.NewTicker,
	})
	if err != nil {
		return nil, fmt.Errorf("initialise scheduler: %w", err)
	}

	var correlator *snapshot.Correlator
	if opts.SnapshotProvider != nil {
		correlator, err = snapshot.NewCorrelator(snapshot.Options{
			Provider: opts.SnapshotProvider,
			Timeout:  opts.SnapshotTimeout,
			Logger:   logger,
		})
		if err != nil {
			return nil, fmt.Errorf("initialise snapshot correlator: %w", err)
		}
	}

	return &Pipeline{
		source:           opts.Source,
		core:             pipelineCore,
		scheduler:        scheduler,
		correlator:       correlator,
		control:          control,
		logger:           logger,
		clock:            clock,
		subscriberBuffer: subscriberBuffer,
		dropWarn:         rate.NewLimiter(rate.Every(time.Second), 1),
		errs:             make(chan error, 16),
	}, nil
}

// Control returns the pipeline's pause/resume/kill controller.
func (p *Pipeline) Control() *Controller { return p.control }

// BufferStats reports accumulation counters for diagnostics.
func (p *Pipeline) BufferStats() window.BufferStats { return p.core.buffer.Stats() }

// Subscribe registers a consumer of published windows. The channel is
// closed when the pipeline stops. Ownership of each received window passes
// fully to the consumer.
func (p *Pipeline) Subscribe() <-chan window.ObservationWindow {
	ch := make(chan window.ObservationWindow, p.subscriberBuffer)
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		close(ch)
		return ch
	}
	p.subscribers = append(p.subscribers, ch)
	return ch
}

// Errors returns the stream of non-fatal faults (source errors, hook
// faults). The pipeline never halts on these; it forwards them so a
// consumer can alert.
func (p *Pipeline) Errors() <-chan error { return p.errs }

// Run registers with the event source, starts the window schedule, and
// blocks until the context is cancelled, the controller is killed, or the
// source fails fatally. Accumulated-but-unpublished events are discarded on
// stop; a partial window is not a meaningful unit of observation.
func (p *Pipeline) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer p.closeSubscribers()

	startMs := p.clock().UTC().UnixMilli()
	p.mu.Lock()
	p.windowStartMs = startMs
	p.mu.Unlock()
	p.core.buffer.SetFloor(startMs)

	sourceDone := make(chan error, 1)
	go func() {
		sourceDone <- p.source.Stream(runCtx, p.ingest)
	}()

	scheduleDone := make(chan error, 1)
	go func() {
		scheduleDone <- p.scheduler.Run(runCtx, func(time.Time) { p.flush(runCtx) })
	}()

	p.logger.Info("pipeline started",
		"interval", p.scheduler.Interval(),
		"window_start_ms", startMs,
		"snapshots", p.correlator != nil)

	sourceExited := sourceDone
	for {
		select {
		case <-runCtx.Done():
			<-scheduleDone
			p.logger.Info("pipeline stopped", "reason", runCtx.Err())
			return ctx.Err()

		case <-p.control.Done():
			cancel()
			<-scheduleDone
			err := p.control.Err()
			if err == nil {
				err = ErrStopped
			}
			p.logger.Info("pipeline killed", "error", err)
			return err

		case err := <-sourceExited:
			if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
				// Failing to register with the source is fatal; the
				// caller decides whether to retry.
				cancel()
				<-scheduleDone
				return fmt.Errorf("event source: %w", err)
			}
			// Source drained without error: keep publishing windows on
			// schedule until the caller stops the pipeline.
			p.logger.Debug("event source drained")
			sourceExited = nil
		}
	}
}

// ingest is the hot-path callback handed to the event source. It never
// blocks on downstream work and never returns an error for malformed
// input.
func (p *Pipeline) ingest(raw events.RawEvent) error {
	if fault, ok := raw.(events.SourceFault); ok {
		p.reportFault(fault.Err)
		return nil
	}
	if !p.control.Running() {
		return nil
	}
	p.core.consume(raw)
	return nil
}

// flush closes the current window, correlates a snapshot, and publishes.
// Snapshot capture runs concurrently with summarization and holds no lock
// needed by the accumulation path.
func (p *Pipeline) flush(ctx context.Context) {
	p.mu.Lock()
	startMs := p.windowStartMs
	endMs := startMs + p.scheduler.Interval().Milliseconds()
	p.windowStartMs = endMs
	p.mu.Unlock()

	var frame snapshot.Frame
	captured := make(chan struct{})
	if p.correlator != nil {
		go func() {
			defer close(captured)
			frame, _ = p.correlator.Capture(ctx)
		}()
	} else {
		close(captured)
	}

	published := p.core.closeWindow(startMs, endMs)

	<-captured
	published.Screenshot = frame

	p.publish(published)
}

func (p *Pipeline) publish(published window.ObservationWindow) {
	p.mu.Lock()
	subscribers := p.subscribers
	p.mu.Unlock()

	for _, subscriber := range subscribers {
		select {
		case subscriber <- published:
		default:
			if p.dropWarn.Allow() {
				p.logger.Warn("subscriber lagging, window dropped",
					"window_start_ms", published.WindowStartMs)
			}
		}
	}

	p.logger.Debug("window published",
		"window_start_ms", published.WindowStartMs,
		"window_end_ms", published.WindowEndMs,
		"mouse_events", len(published.MouseData.Events),
		"keyboard_events", len(published.KeyboardEvents),
		"focus_changes", len(published.WindowEvents),
		"screenshot", !published.Screenshot.Empty())
}

func (p *Pipeline) reportFault(err error) {
	if err == nil {
		return
	}
	// The source goroutine can outlive Run briefly on the cancel path; a
	// fault arriving after closeSubscribers must not hit the closed channel.
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	select {
	case p.errs <- err:
	default:
		if p.dropWarn.Allow() {
			p.logger.Warn("error stream full, fault dropped", "error", err)
		}
	}
}

func (p *Pipeline) closeSubscribers() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	for _, subscriber := range p.subscribers {
		close(subscriber)
	}
	p.subscribers = nil
	close(p.errs)
}
