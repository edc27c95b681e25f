// Package store persists published observation windows to SQLite. It is an
// ordinary pipeline subscriber, never part of the ingest hot path.
//
// Store is safe for concurrent use; the underlying sql.DB serializes
// access. SaveWindow is a single transaction.
package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite" // pure-Go SQLite driver, no CGO required

	"github.com/offlinefirst/glimpse/pkg/window"
)

// Store handles window persistence for one database file.
type Store struct {
	db *sql.DB
}

// StoredWindow is a persisted window row with its session linkage.
type StoredWindow struct {
	ID        int64
	SessionID string
	Window    window.ObservationWindow
	SavedAt   time.Time
}

// Open creates or opens the database at path and applies migrations.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("store path must not be empty")
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// WAL keeps the writer from blocking concurrent readers.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		hostname TEXT,
		started_at DATETIME NOT NULL,
		ended_at DATETIME,
		window_count INTEGER DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS windows (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL,
		start_ms INTEGER NOT NULL,
		end_ms INTEGER NOT NULL,
		duration_ms INTEGER NOT NULL,
		screenshot BLOB,
		screenshot_format TEXT,
		move_count INTEGER NOT NULL,
		total_distance REAL NOT NULL,
		average_velocity REAL NOT NULL,
		max_velocity REAL NOT NULL,
		directional_changes INTEGER NOT NULL,
		movement_variance REAL NOT NULL,
		scroll_count INTEGER NOT NULL,
		total_scroll_delta INTEGER NOT NULL,
		scroll_direction TEXT NOT NULL,
		total_clicks INTEGER NOT NULL,
		click_rate REAL NOT NULL,
		double_clicks INTEGER NOT NULL,
		left_clicks INTEGER NOT NULL,
		right_clicks INTEGER NOT NULL,
		mouse_events TEXT NOT NULL,
		keyboard_events TEXT NOT NULL,
		window_events TEXT NOT NULL,
		saved_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (session_id) REFERENCES sessions(id)
	);

	CREATE INDEX IF NOT EXISTS idx_windows_session ON windows(session_id);
	CREATE INDEX IF NOT EXISTS idx_windows_start ON windows(start_ms DESC);
	`
	_, err := s.db.Exec(schema)
	return err
}

// BeginSession records the start of a pipeline run.
func (s *Store) BeginSession(id, hostname string, startedAt time.Time) error {
	if strings.TrimSpace(id) == "" {
		return errors.New("session id must not be empty")
	}
	_, err := s.db.Exec(
		`INSERT INTO sessions (id, hostname, started_at) VALUES (?, ?, ?)`,
		id, hostname, startedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("begin session: %w", err)
	}
	return nil
}

// EndSession stamps the session's end time.
func (s *Store) EndSession(id string, endedAt time.Time) error {
	_, err := s.db.Exec(
		`UPDATE sessions SET ended_at = ? WHERE id = ?`,
		endedAt.UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("end session: %w", err)
	}
	return nil
}

// SaveWindow persists one published window under the session.
func (s *Store) SaveWindow(sessionID string, published window.ObservationWindow) error {
	mouseJSON, err := json.Marshal(published.MouseData.Events)
	if err != nil {
		return fmt.Errorf("encode mouse events: %w", err)
	}
	keyboardJSON, err := json.Marshal(published.KeyboardEvents)
	if err != nil {
		return fmt.Errorf("encode keyboard events: %w", err)
	}
	focusJSON, err := json.Marshal(published.WindowEvents)
	if err != nil {
		return fmt.Errorf("encode window events: %w", err)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	movement := published.MouseData.MovementSummary
	scroll := published.MouseData.ScrollSummary
	clicks := published.MouseData.ClickSummary

	_, err = tx.Exec(`
		INSERT INTO windows (
			session_id, start_ms, end_ms, duration_ms,
			screenshot, screenshot_format,
			move_count, total_distance, average_velocity, max_velocity,
			directional_changes, movement_variance,
			scroll_count, total_scroll_delta, scroll_direction,
			total_clicks, click_rate, double_clicks, left_clicks, right_clicks,
			mouse_events, keyboard_events, window_events
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sessionID, published.WindowStartMs, published.WindowEndMs, published.DurationMs,
		published.Screenshot.Data, published.Screenshot.Format,
		movement.MoveCount, movement.TotalDistance, movement.AverageVelocity, movement.MaxVelocity,
		movement.DirectionalChanges, movement.MovementVariance,
		scroll.ScrollCount, scroll.TotalScrollDelta, string(scroll.ScrollDirection),
		clicks.TotalClicks, clicks.ClickRate, clicks.DoubleClicks, clicks.LeftClicks, clicks.RightClicks,
		string(mouseJSON), string(keyboardJSON), string(focusJSON),
	)
	if err != nil {
		return fmt.Errorf("insert window: %w", err)
	}

	if _, err := tx.Exec(
		`UPDATE sessions SET window_count = window_count + 1 WHERE id = ?`,
		sessionID,
	); err != nil {
		return fmt.Errorf("bump session window count: %w", err)
	}

	return tx.Commit()
}

// RecentWindows returns up to limit windows for the session, newest first.
func (s *Store) RecentWindows(sessionID string, limit int) ([]StoredWindow, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(`
		SELECT id, session_id, start_ms, end_ms, duration_ms,
			mouse_events, keyboard_events, window_events, saved_at
		FROM windows
		WHERE session_id = ?
		ORDER BY start_ms DESC
		LIMIT ?`,
		sessionID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query windows: %w", err)
	}
	defer rows.Close()

	var out []StoredWindow
	for rows.Next() {
		var stored StoredWindow
		var mouseJSON, keyboardJSON, focusJSON string
		if err := rows.Scan(
			&stored.ID, &stored.SessionID,
			&stored.Window.WindowStartMs, &stored.Window.WindowEndMs, &stored.Window.DurationMs,
			&mouseJSON, &keyboardJSON, &focusJSON, &stored.SavedAt,
		); err != nil {
			return nil, fmt.Errorf("scan window row: %w", err)
		}
		if err := json.Unmarshal([]byte(mouseJSON), &stored.Window.MouseData.Events); err != nil {
			return nil, fmt.Errorf("decode mouse events: %w", err)
		}
		if err := json.Unmarshal([]byte(keyboardJSON), &stored.Window.KeyboardEvents); err != nil {
			return nil, fmt.Errorf("decode keyboard events: %w", err)
		}
		if err := json.Unmarshal([]byte(focusJSON), &stored.Window.WindowEvents); err != nil {
			return nil, fmt.Errorf("decode window events: %w", err)
		}
		out = append(out, stored)
	}
	return out, rows.Err()
}

// SessionWindowCount returns the number of windows stored for a session.
func (s *Store) SessionWindowCount(sessionID string) (int, error) {
	var count int
	err := s.db.QueryRow(
		`SELECT window_count FROM sessions WHERE id = ?`, sessionID,
	).Scan(&count)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("unknown session %q", sessionID)
	}
	if err != nil {
		return 0, fmt.Errorf("query session: %w", err)
	}
	return count, nil
}

// Close releases the database handle.
func (s *Store) Close() error { return s.db.Close() }
