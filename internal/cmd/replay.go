package cmd

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/offlinefirst/glimpse/pkg/events"
	"github.com/offlinefirst/glimpse/pkg/observe"
)

func newReplayCommand() command {
	return command{
		name:        "replay",
		description: "Re-run the reduction over a recorded event script deterministically",
		configure: func(fs *flag.FlagSet) {
			fs.String("script", "-", "Path to a JSONL event script (- for stdin)")
		},
		run: runReplay,
	}
}

func runReplay(fs *flag.FlagSet, args []string, ctx *AppContext, stdout io.Writer, stderr io.Writer) error {
	if ctx == nil {
		return fmt.Errorf("application context unavailable")
	}
	cfg := ctx.Config

	scriptPath := stringFlag(fs, "script")
	var input io.Reader = os.Stdin
	if scriptPath != "" && scriptPath != "-" {
		file, err := os.Open(scriptPath)
		if err != nil {
			return fmt.Errorf("open event script: %w", err)
		}
		defer file.Close()
		input = file
	}

	recorded, err := events.ParseScript(input)
	if err != nil {
		return err
	}
	if len(recorded) == 0 {
		return errors.New("event script is empty")
	}

	redactor, err := events.NewRedactor(cfg.Privacy.RedactEmails, cfg.Privacy.RedactPatterns)
	if err != nil {
		return fmt.Errorf("initialise redactor: %w", err)
	}

	windows, err := observe.Replay(recorded, observe.ReplayOptions{
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
	})
	if err != nil {
		return err
	}

	encoder := json.NewEncoder(stdout)
	for _, win := range windows {
		if err := encoder.Encode(win); err != nil {
			return fmt.Errorf("encode window: %w", err)
		}
	}

	ctx.Logger.Info("replay complete", "events", len(recorded), "windows", len(windows))
	return nil
}
