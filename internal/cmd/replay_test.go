package cmd

import (
	"bufio"
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/offlinefirst/glimpse/pkg/window"
)

func writeScriptFile(t *testing.T, lines ...string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "script.jsonl")
	if err := os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o644); err != nil {
		t.Fatalf("write script: %v", err)
	}
	return path
}

func TestReplayCommandEmitsWindows(t *testing.T) {
	path := writeScriptFile(t,
		`{"kind":"mouse","type":"click","x":100,"y":100,"button":"left","timestampMs":1000}`,
		`{"kind":"mouse","type":"click","x":100,"y":100,"button":"left","timestampMs":1100}`,
		`{"kind":"keyboard","type":"key_down","key":"s","modifiers":{"ctrl":true},"timestampMs":1500}`,
	)

	rc, stdout, _ := newTestRoot()
	if err := rc.Execute([]string{"replay", "--script", path}); err != nil {
		t.Fatalf("execute: %v", err)
	}

	var windows []window.ObservationWindow
	scanner := bufio.NewScanner(bytes.NewReader(stdout.Bytes()))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var win window.ObservationWindow
		if err := json.Unmarshal([]byte(line), &win); err != nil {
			t.Fatalf("decode window line %q: %v", line, err)
		}
		windows = append(windows, win)
	}
	if len(windows) != 1 {
		t.Fatalf("expected 1 window, got %d", len(windows))
	}

	win := windows[0]
	if win.MouseData.ClickSummary.TotalClicks != 1 || win.MouseData.ClickSummary.DoubleClicks != 1 {
		t.Fatalf("expected one double-click cluster, got %+v", win.MouseData.ClickSummary)
	}
	if len(win.KeyboardEvents) != 1 || win.KeyboardEvents[0].FormattedInput != "Ctrl+S" {
		t.Fatalf("expected Ctrl+S key event, got %+v", win.KeyboardEvents)
	}
}

func TestReplayCommandRejectsEmptyScript(t *testing.T) {
	path := writeScriptFile(t, "# only a comment")

	rc, _, _ := newTestRoot()
	if err := rc.Execute([]string{"replay", "--script", path}); err == nil {
		t.Fatalf("expected error for empty script")
	}
}

func TestReplayCommandRejectsMissingScript(t *testing.T) {
	rc, _, _ := newTestRoot()
	missing := filepath.Join(t.TempDir(), "nope.jsonl")
	if err := rc.Execute([]string{"replay", "--script", missing}); err == nil {
		t.Fatalf("expected error for missing script file")
	}
}
