package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"image"
	"image/png"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/offlinefirst/glimpse/pkg/config"
	"github.com/offlinefirst/glimpse/pkg/events"
	"github.com/offlinefirst/glimpse/pkg/observe"
	"github.com/offlinefirst/glimpse/pkg/snapshot"
	"github.com/offlinefirst/glimpse/pkg/store"
)

func newRunCommand() command {
	return command{
		name:        "run",
		description: "Start the observation pipeline and stream windows as JSONL",
		configure: func(fs *flag.FlagSet) {
			fs.String("script", "", "Path to a JSONL event script (default: built-in demo timeline)")
			fs.String("out", "-", "Destination for published windows (- for stdout)")
			fs.Duration("for", 0, "Stop after this duration (0: run until interrupted)")
		},
		run: runPipeline,
	}
}

var (
	timeNow  = time.Now
	hostname = os.Hostname
)

func runPipeline(fs *flag.FlagSet, args []string, ctx *AppContext, stdout io.Writer, stderr io.Writer) error {
	if ctx == nil {
		return fmt.Errorf("application context unavailable")
	}
	cfg := ctx.Config

	scriptPath := stringFlag(fs, "script")
	outPath := stringFlag(fs, "out")
	runFor := durationFlag(fs, "for")

	start := timeNow().UTC()

	source, err := resolveSource(scriptPath, start)
	if err != nil {
		return err
	}

	pipe, err := buildPipeline(cfg, source, ctx)
	if err != nil {
		return err
	}

	out := stdout
	if outPath != "" && outPath != "-" {
		file, err := os.OpenFile(outPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
		if err != nil {
			return fmt.Errorf("open output file: %w", err)
		}
		defer file.Close()
		out = file
	}

	var sink *store.Store
	sessionID := start.Format("20060102_150405")
	if cfg.Storage.Enabled {
		sink, err = store.Open(cfg.Storage.Path)
		if err != nil {
			return fmt.Errorf("open window store: %w", err)
		}
		defer sink.Close()

		host, err := hostname()
		if err != nil {
			host = "unknown"
		}
		if err := sink.BeginSession(sessionID, host, start); err != nil {
			return err
		}
		defer func() {
			if err := sink.EndSession(sessionID, timeNow().UTC()); err != nil {
				ctx.Logger.Warn("failed to close session", "error", err)
			}
		}()
	}

	runCtx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	if runFor > 0 {
		var timedCancel context.CancelFunc
		runCtx, timedCancel = context.WithTimeout(runCtx, runFor)
		defer timedCancel()
	}

	windows := pipe.Subscribe()
	encoder := json.NewEncoder(out)

	published := 0
	consumerDone := make(chan struct{})
	go func() {
		defer close(consumerDone)
		for win := range windows {
			if err := encoder.Encode(win); err != nil {
				ctx.Logger.Error("failed to encode window", "error", err)
				continue
			}
			published++
			if sink != nil {
				if err := sink.SaveWindow(sessionID, win); err != nil {
					ctx.Logger.Warn("failed to persist window", "error", err)
				}
			}
		}
	}()
	go func() {
		for fault := range pipe.Errors() {
			ctx.Logger.Warn("event source fault", "error", fault)
		}
	}()

	runErr := pipe.Run(runCtx)
	<-consumerDone

	if runErr != nil && !errors.Is(runErr, context.Canceled) && !errors.Is(runErr, context.DeadlineExceeded) {
		return runErr
	}

	bufferStats := pipe.BufferStats()
	ctx.Logger.Info("run complete",
		"windows_published", published,
		"dropped_stale", bufferStats.DroppedStale,
		"evicted", bufferStats.Evicted)
	return nil
}

func resolveSource(scriptPath string, start time.Time) (events.EventSource, error) {
	if scriptPath == "" {
		return &events.ScriptSource{Events: events.DemoScript(start.UnixMilli()), Pace: true}, nil
	}
	file, err := os.Open(scriptPath)
	if err != nil {
		return nil, fmt.Errorf("open event script: %w", err)
	}
	defer file.Close()

	scripted, err := events.ParseScript(file)
	if err != nil {
		return nil, err
	}
	return &events.ScriptSource{Events: scripted, Pace: true}, nil
}

func buildPipeline(cfg config.Config, source events.EventSource, ctx *AppContext) (*observe.Pipeline, error) {
	redactor, err := events.NewRedactor(cfg.Privacy.RedactEmails, cfg.Privacy.RedactPatterns)
	if err != nil {
		return nil, fmt.Errorf("initialise redactor: %w", err)
	}

	opts := observe.Options{
		Source:          source,
		SnapshotTimeout: cfg.Snapshot.Timeout(),
		Tunables: observe.Tunables{
			Interval:               cfg.Pipeline.WindowInterval(),
			MoveThrottle:           cfg.Pipeline.MoveThrottle(),
			ScrollThrottle:         cfg.Pipeline.ScrollThrottle(),
			ClickTimeTolerance:     cfg.Pipeline.ClickTimeTolerance(),
			ClickPositionTolerance: cfg.Pipeline.ClickPositionTolerancePx,
			MaxBufferedEvents:      cfg.Pipeline.MaxBufferedEvents,
			Redactor:               redactor,
			Privacy:                events.NewPrivacyPolicy(cfg.Privacy.AllowApps, cfg.Privacy.DropUnknown),
		},
		Logger: ctx.Logger,
		Clock:  timeNow,
	}
	if cfg.Snapshot.Enabled {
		opts.SnapshotProvider = placeholderProvider()
	}
	return observe.New(opts)
}

// placeholderProvider stands in for the platform capture subsystem, which
// is wired externally. It returns a small solid PNG so the correlation
// path stays exercised end to end.
func placeholderProvider() snapshot.Provider {
	return snapshot.ProviderFunc(func(context.Context) (snapshot.Frame, error) {
		img := image.NewGray(image.Rect(0, 0, 8, 8))
		for i := range img.Pix {
			img.Pix[i] = 0x80
		}
		var buf bytes.Buffer
		if err := png.Encode(&buf, img); err != nil {
			return snapshot.Frame{}, err
		}
		return snapshot.Frame{
			Data:       buf.Bytes(),
			Format:     "png",
			Width:      8,
			Height:     8,
			CapturedAt: timeNow().UTC(),
		}, nil
	})
}

func stringFlag(fs *flag.FlagSet, name string) string {
	if f := fs.Lookup(name); f != nil {
		return f.Value.String()
	}
	return ""
}

func durationFlag(fs *flag.FlagSet, name string) time.Duration {
	if f := fs.Lookup(name); f != nil {
		if getter, ok := f.Value.(flag.Getter); ok {
			if d, ok := getter.Get().(time.Duration); ok {
				return d
			}
		}
	}
	return 0
}
