package observe

import "sync"

// Controller coordinates pause/resume/kill signals for a running pipeline.
// Pausing stops raw-event admission while the window schedule keeps
// publishing (empty) windows; Kill stops the pipeline entirely.
type Controller struct {
	mu       sync.Mutex
	paused   bool
	stopping bool
	stopErr  error
	done     chan struct{}
}

// NewController constructs a controller in the running state.
func NewController() *Controller {
	return &Controller{done: make(chan struct{})}
}

// Pause transitions the controller into a paused state.
func (c *Controller) Pause() {
	c.mu.Lock()
	c.paused = true
	c.mu.Unlock()
}

// Resume clears a paused state.
func (c *Controller) Resume() {
	c.mu.Lock()
	c.paused = false
	c.mu.Unlock()
}

// Kill requests the pipeline to stop and records an optional cause. Only
// the first call's error is retained.
func (c *Controller) Kill(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopping {
		return
	}
	c.stopping = true
	c.stopErr = err
	close(c.done)
}

// Running reports whether events should currently be admitted. It is a
// single lock acquisition, cheap enough for the ingest hot path.
func (c *Controller) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.paused && !c.stopping
}

// Err returns the cause recorded by Kill, if any.
func (c *Controller) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stopErr
}

// Done returns a channel closed once Kill has been called.
func (c *Controller) Done() <-chan struct{} { return c.done }

// State reports the textual state for diagnostics.
func (c *Controller) State() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch {
	case c.stopping:
		return "stopping"
	case c.paused:
		return "paused"
	default:
		return "running"
	}
}
