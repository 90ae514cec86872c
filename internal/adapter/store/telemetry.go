package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// Reading is one archived sensor update. Numeric sensors fill Value, text sensors fill Text.
type Reading struct {
	Timestamp time.Time `json:"ts"`
	SensorId  string    `json:"sensor_id"`
	Value     *float64  `json:"value,omitempty"`
	Text      string    `json:"text,omitempty"`
}

var ErrNotFound = errors.New("no readings")

// TelemetryStore archives sensor updates in SQLite.
type TelemetryStore struct {
	db *sql.DB
	mu sync.RWMutex
}

// OpenTelemetryStore opens or creates the archive at path. Use ":memory:" for tests.
func OpenTelemetryStore(path string) (*TelemetryStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open telemetry store: %w", err)
	}
	// a single connection keeps ":memory:" databases alive and serializes writers
	db.SetMaxOpenConns(1)

	s := &TelemetryStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate telemetry store: %w", err)
	}
	return s, nil
}

func (s *TelemetryStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS readings (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		ts INTEGER NOT NULL,
		sensor_id TEXT NOT NULL,
		value REAL,
		text TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_readings_sensor_ts ON readings(sensor_id, ts);
	`
	_, err := s.db.Exec(schema)
	return err
}

func (s *TelemetryStore) Close() error {
	return s.db.Close()
}

// Record appends a reading.
func (s *TelemetryStore) Record(ctx context.Context, r Reading) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var value sql.NullFloat64
	if r.Value != nil {
		value = sql.NullFloat64{Float64: *r.Value, Valid: true}
	}
	var text sql.NullString
	if r.Text != "" {
		text = sql.NullString{String: r.Text, Valid: true}
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO readings (ts, sensor_id, value, text)
		VALUES (?, ?, ?, ?)
	`, r.Timestamp.UnixMilli(), r.SensorId, value, text)
	return err
}

// Latest returns the most recent reading of a sensor, or ErrNotFound.
func (s *TelemetryStore) Latest(ctx context.Context, sensorId string) (Reading, error) {
	readings, err := s.History(ctx, sensorId, 1)
	if err != nil {
		return Reading{}, err
	}
	if len(readings) == 0 {
		return Reading{}, fmt.Errorf("%w for %s", ErrNotFound, sensorId)
	}
	return readings[0], nil
}

// History returns up to limit readings of a sensor, most recent first.
func (s *TelemetryStore) History(ctx context.Context, sensorId string, limit int) ([]Reading, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		return []Reading{}, nil
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT ts, sensor_id, value, text
		FROM readings WHERE sensor_id = ?
		ORDER BY ts DESC, id DESC
		LIMIT ?
	`, sensorId, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Reading{}
	for rows.Next() {
		var ts int64
		var r Reading
		var value sql.NullFloat64
		var text sql.NullString
		if err := rows.Scan(&ts, &r.SensorId, &value, &text); err != nil {
			return nil, err
		}
		r.Timestamp = time.UnixMilli(ts)
		if value.Valid {
			v := value.Float64
			r.Value = &v
		}
		if text.Valid {
			r.Text = text.String
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
