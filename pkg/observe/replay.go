package observe

import (
	"errors"
	"log/slog"

	"github.com/offlinefirst/glimpse/pkg/events"
	"github.com/offlinefirst/glimpse/pkg/logging"
	"github.com/offlinefirst/glimpse/pkg/window"
)

// ReplayOptions configure a deterministic offline run.
type ReplayOptions struct {
	Tunables Tunables
	// StartMs anchors the first window boundary. Defaults to the first
	// event's timestamp.
	StartMs int64
	Logger  *slog.Logger
}

// Replay drives the full reduction synchronously over a recorded event
// sequence and returns every window the live pipeline would have
// published, without snapshots or wall-clock waits. The union of the
// returned windows covers the recording with no gaps or overlaps.
func Replay(recorded []events.RawEvent, opts ReplayOptions) ([]window.ObservationWindow, error) {
	if len(recorded) == 0 {
		return nil, errors.New("no events to replay")
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}

	tunables := opts.Tunables.withDefaults()
	intervalMs := tunables.Interval.Milliseconds()

	replayCore, err := newCore(tunables, logger)
	if err != nil {
		return nil, err
	}

	startMs := opts.StartMs
	if startMs == 0 {
		startMs = recorded[0].EventTimestampMs()
	}
	replayCore.buffer.SetFloor(startMs)

	var published []window.ObservationWindow
	windowStartMs := startMs
	lastMs := startMs

	for _, raw := range recorded {
		ts := raw.EventTimestampMs()
		// Fire every tick the wall clock would have fired before this
		// event arrived, including empty windows across idle gaps.
		for ts >= windowStartMs+intervalMs {
			published = append(published, replayCore.closeWindow(windowStartMs, windowStartMs+intervalMs))
			windowStartMs += intervalMs
		}
		if _, isFault := raw.(events.SourceFault); isFault {
			continue
		}
		replayCore.consume(raw)
		if ts > lastMs {
			lastMs = ts
		}
	}

	// Close out windows until the recording's final event is covered.
	for windowStartMs <= lastMs {
		published = append(published, replayCore.closeWindow(windowStartMs, windowStartMs+intervalMs))
		windowStartMs += intervalMs
	}

	return published, nil
}
