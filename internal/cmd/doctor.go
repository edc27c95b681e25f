package cmd

import (
	"flag"
	"fmt"
	"io"

	"github.com/offlinefirst/glimpse/pkg/store"
)

func newDoctorCommand() command {
	return command{
		name:        "doctor",
		description: "Report the resolved configuration and probe the window store",
		run:         runDoctor,
	}
}

func runDoctor(fs *flag.FlagSet, args []string, ctx *AppContext, stdout io.Writer, stderr io.Writer) error {
	if ctx == nil {
		return fmt.Errorf("application context unavailable")
	}
	cfg := ctx.Config

	fmt.Fprintf(stdout, "Configuration source: %s\n", cfg.Source)
	fmt.Fprintf(stdout, "Window interval:      %s\n", cfg.Pipeline.WindowInterval())
	fmt.Fprintf(stdout, "Move throttle:        %s\n", cfg.Pipeline.MoveThrottle())
	fmt.Fprintf(stdout, "Scroll throttle:      %s\n", cfg.Pipeline.ScrollThrottle())
	fmt.Fprintf(stdout, "Click tolerance:      %s / %.1fpx\n", cfg.Pipeline.ClickTimeTolerance(), cfg.Pipeline.ClickPositionTolerancePx)
	fmt.Fprintf(stdout, "Max buffered events:  %d\n", cfg.Pipeline.MaxBufferedEvents)
	fmt.Fprintf(stdout, "Snapshots:            enabled=%t timeout=%s\n", cfg.Snapshot.Enabled, cfg.Snapshot.Timeout())
	fmt.Fprintf(stdout, "Redaction:            emails=%t custom_patterns=%d\n", cfg.Privacy.RedactEmails, len(cfg.Privacy.RedactPatterns))
	fmt.Fprintf(stdout, "Focus allow-list:     %d apps (drop_unknown=%t)\n", len(cfg.Privacy.AllowApps), cfg.Privacy.DropUnknown)

	if !cfg.Storage.Enabled {
		fmt.Fprintln(stdout, "Storage:              disabled")
		return nil
	}

	sink, err := store.Open(cfg.Storage.Path)
	if err != nil {
		fmt.Fprintf(stdout, "Storage:              UNAVAILABLE (%v)\n", err)
		return nil
	}
	defer sink.Close()
	fmt.Fprintf(stdout, "Storage:              ok (%s)\n", cfg.Storage.Path)
	return nil
}
