// Package snapshot pairs each window publish tick with an externally
// captured screen image, tolerating provider failure.
package snapshot

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/offlinefirst/glimpse/pkg/logging"
)

// Frame bundles the encoded image bytes with capture metadata. A zero Frame
// means no image was captured for the tick.
type Frame struct {
	Data       []byte    `json:"data,omitempty"`
	Format     string    `json:"format,omitempty"`
	Width      int       `json:"width,omitempty"`
	Height     int       `json:"height,omitempty"`
	CapturedAt time.Time `json:"capturedAt,omitempty"`
}

// Empty reports whether the frame carries no image data.
func (f Frame) Empty() bool { return len(f.Data) == 0 }

// Provider produces screen frames. Implementations wrap the platform
// capture subsystem and may block for I/O; the correlator bounds the wait.
type Provider interface {
	Grab(ctx context.Context) (Frame, error)
}

// ProviderFunc adapts a function literal to the Provider interface.
type ProviderFunc func(ctx context.Context) (Frame, error)

// Grab calls the underlying function.
func (f ProviderFunc) Grab(ctx context.Context) (Frame, error) { return f(ctx) }

// Options configure the correlator.
type Options struct {
	Provider Provider
	// Timeout bounds each Grab call. Defaults to 5s.
	Timeout time.Duration
	// Limiter guards a slow or misconfigured provider; ticks arriving
	// faster than the limit skip capture instead of queueing. Defaults to
	// one capture per second.
	Limiter *rate.Limiter
	Logger  *slog.Logger
}

// Correlator requests at most one frame per window tick with a bounded
// wait. Capture failure never fails the tick.
type Correlator struct {
	provider Provider
	timeout  time.Duration
	limiter  *rate.Limiter
	logger   *slog.Logger
}

// NewCorrelator validates options and constructs a correlator.
func NewCorrelator(opts Options) (*Correlator, error) {
	if opts.Provider == nil {
		return nil, errors.New("snapshot provider must be provided")
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	limiter := opts.Limiter
	if limiter == nil {
		limiter = rate.NewLimiter(rate.Every(time.Second), 1)
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	return &Correlator{
		provider: opts.Provider,
		timeout:  timeout,
		limiter:  limiter,
		logger:   logger,
	}, nil
}

// Capture grabs one frame for the current tick. On provider error, timeout,
// or rate-limit skip it returns a zero frame and false; the caller publishes
// the window without an image.
func (c *Correlator) Capture(ctx context.Context) (Frame, bool) {
	if ctx == nil {
		ctx = context.Background()
	}
	if !c.limiter.Allow() {
		c.logger.Debug("snapshot capture skipped by rate limit")
		return Frame{}, false
	}

	grabCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	frame, err := c.provider.Grab(grabCtx)
	if err != nil {
		c.logger.Warn("snapshot capture failed", "error", err)
		return Frame{}, false
	}
	if frame.Empty() {
		c.logger.Warn("snapshot provider returned empty frame")
		return Frame{}, false
	}
	if frame.CapturedAt.IsZero() {
		frame.CapturedAt = time.Now().UTC()
	}
	return frame, true
}
