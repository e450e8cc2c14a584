// Package store persists gaze session events (blinks, click outcomes,
// calibration fits) to sqlite for the control surface and offline review.
package store

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/banshee-data/gazepoint/internal/gaze"
)

type DB struct {
	*sql.DB
}

// NewDB opens (creating if needed) the event database at path.
func NewDB(path string) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS gaze_events (
			event_id          INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id        TEXT,
			kind              TEXT,
			outcome           TEXT,
			x                 DOUBLE,
			y                 DOUBLE,
			avg_ear           DOUBLE,
			timestamp         BIGINT
		);
		CREATE TABLE IF NOT EXISTS calibration_fits (
			fit_id            INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id        TEXT,
			mean_residual_px  DOUBLE,
			sample_count      BIGINT,
			screen_w          BIGINT,
			screen_h          BIGINT,
			timestamp         BIGINT
		);
		CREATE INDEX IF NOT EXISTS idx_gaze_events_session ON gaze_events(session_id);
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &DB{db}, nil
}

// Event is one persisted session event.
type Event struct {
	EventID   int64     `json:"event_id"`
	SessionID string    `json:"session_id"`
	Kind      string    `json:"kind"`
	Outcome   string    `json:"outcome,omitempty"`
	X         float64   `json:"x"`
	Y         float64   `json:"y"`
	AvgEAR    float64   `json:"avg_ear"`
	Timestamp time.Time `json:"timestamp"`
}

// Fit is one persisted calibration fit record.
type Fit struct {
	FitID          int64     `json:"fit_id"`
	SessionID      string    `json:"session_id"`
	MeanResidualPx float64   `json:"mean_residual_px"`
	SampleCount    int       `json:"sample_count"`
	ScreenW        int       `json:"screen_w"`
	ScreenH        int       `json:"screen_h"`
	Timestamp      time.Time `json:"timestamp"`
}

// RecordClick persists one arbitrated click outcome.
func (db *DB) RecordClick(sessionID string, outcome gaze.ClickOutcome, x, y float64) error {
	_, err := db.Exec(
		"INSERT INTO gaze_events (session_id, kind, outcome, x, y, timestamp) VALUES (?, 'click', ?, ?, ?, ?)",
		sessionID, string(outcome), x, y, time.Now().Unix())
	return err
}

// RecordBlink persists one blink event with its triggering EAR.
func (db *DB) RecordBlink(sessionID string, avgEAR float64) error {
	_, err := db.Exec(
		"INSERT INTO gaze_events (session_id, kind, avg_ear, timestamp) VALUES (?, 'blink', ?, ?)",
		sessionID, avgEAR, time.Now().Unix())
	return err
}

// RecordFit persists one completed calibration fit.
func (db *DB) RecordFit(sessionID string, meanResidualPx float64, sampleCount, screenW, screenH int) error {
	_, err := db.Exec(
		"INSERT INTO calibration_fits (session_id, mean_residual_px, sample_count, screen_w, screen_h, timestamp) VALUES (?, ?, ?, ?, ?, ?)",
		sessionID, meanResidualPx, sampleCount, screenW, screenH, time.Now().Unix())
	return err
}

// RecentEvents returns up to limit events, newest first.
func (db *DB) RecentEvents(limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := db.Query(`
		SELECT event_id, session_id, kind, outcome, x, y, avg_ear, timestamp
		FROM gaze_events ORDER BY event_id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var e Event
		var outcome sql.NullString
		var x, y, ear sql.NullFloat64
		var ts int64
		if err := rows.Scan(&e.EventID, &e.SessionID, &e.Kind, &outcome, &x, &y, &ear, &ts); err != nil {
			return nil, err
		}
		e.Outcome = outcome.String
		e.X = x.Float64
		e.Y = y.Float64
		e.AvgEAR = ear.Float64
		e.Timestamp = time.Unix(ts, 0)
		events = append(events, e)
	}
	return events, rows.Err()
}

// RecentFits returns up to limit calibration fit records, newest first.
func (db *DB) RecentFits(limit int) ([]Fit, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := db.Query(`
		SELECT fit_id, session_id, mean_residual_px, sample_count, screen_w, screen_h, timestamp
		FROM calibration_fits ORDER BY fit_id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var fits []Fit
	for rows.Next() {
		var f Fit
		var ts int64
		if err := rows.Scan(&f.FitID, &f.SessionID, &f.MeanResidualPx, &f.SampleCount, &f.ScreenW, &f.ScreenH, &ts); err != nil {
			return nil, err
		}
		f.Timestamp = time.Unix(ts, 0)
		fits = append(fits, f)
	}
	return fits, rows.Err()
}
