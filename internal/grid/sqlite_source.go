package grid

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// TimestampLayout is the text form of timestamps in the SQLite tables.
const TimestampLayout = "2006-01-02 15:04:05"

// SQLiteSource reads frames from the dust_measurements_realtime table.
type SQLiteSource struct {
	db *sql.DB
}

var _ Source = (*SQLiteSource)(nil)

// NewSQLiteSource creates a SQLiteSource backed by db.
func NewSQLiteSource(db *sql.DB) *SQLiteSource {
	return &SQLiteSource{db: db}
}

// Migrate creates the grid table and indexes if they do not exist.
func (s *SQLiteSource) Migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS dust_measurements_realtime (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp_utc TEXT NOT NULL,
			latitude REAL NOT NULL,
			longitude REAL NOT NULL,
			dust_concentration_ugm3 REAL,
			source_file TEXT,
			data_source TEXT DEFAULT 'latest_nc',
			processed_time TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			UNIQUE (timestamp_utc, latitude, longitude)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_realtime_timestamp ON dust_measurements_realtime(timestamp_utc)`,
		`CREATE INDEX IF NOT EXISTS idx_realtime_location ON dust_measurements_realtime(latitude, longitude)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrating grid table: %w", err)
		}
	}
	return nil
}

// Timestamps returns distinct frame times within [from, to], ascending.
func (s *SQLiteSource) Timestamps(ctx context.Context, from, to time.Time) ([]time.Time, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT timestamp_utc
		FROM dust_measurements_realtime
		WHERE timestamp_utc >= ? AND timestamp_utc <= ?
		ORDER BY timestamp_utc
	`, from.UTC().Format(TimestampLayout), to.UTC().Format(TimestampLayout))
	if err != nil {
		return nil, fmt.Errorf("querying grid timestamps: %w", err)
	}
	defer rows.Close()

	var out []time.Time
	for rows.Next() {
		var raw any
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scanning grid timestamp: %w", err)
		}
		t, err := ParseTimestamp(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// Frame loads every cell stored for t.
func (s *SQLiteSource) Frame(ctx context.Context, t time.Time) (*Frame, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT latitude, longitude, dust_concentration_ugm3
		FROM dust_measurements_realtime
		WHERE timestamp_utc = ? AND dust_concentration_ugm3 IS NOT NULL
	`, t.UTC().Format(TimestampLayout))
	if err != nil {
		return nil, fmt.Errorf("querying grid frame: %w", err)
	}
	defer rows.Close()

	frame := &Frame{Time: t.UTC()}
	for rows.Next() {
		var c Cell
		if err := rows.Scan(&c.Lat, &c.Lon, &c.Value); err != nil {
			return nil, fmt.Errorf("scanning grid cell: %w", err)
		}
		frame.Cells = append(frame.Cells, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(frame.Cells) == 0 {
		return nil, ErrFrameNotFound
	}
	return frame, nil
}

// ParseTimestamp converts a scanned timestamp column to UTC. Older
// databases declare the column TIMESTAMP, which the driver returns as
// time.Time rather than text.
func ParseTimestamp(raw any) (time.Time, error) {
	switch v := raw.(type) {
	case time.Time:
		return v.UTC(), nil
	case string:
		return parseTimestampText(v)
	case []byte:
		return parseTimestampText(string(v))
	default:
		return time.Time{}, fmt.Errorf("unexpected timestamp type %T", raw)
	}
}

func parseTimestampText(s string) (time.Time, error) {
	for _, layout := range []string{TimestampLayout, time.RFC3339Nano, "2006-01-02T15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("parsing timestamp %q", s)
}

// Store writes a frame in one transaction. Cells already stored for the
// same time and location are replaced.
func (s *SQLiteSource) Store(ctx context.Context, f Frame, sourceFile string) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO dust_measurements_realtime
			(timestamp_utc, latitude, longitude, dust_concentration_ugm3, source_file, data_source)
		VALUES (?, ?, ?, ?, ?, 'latest_nc')
	`)
	if err != nil {
		return 0, fmt.Errorf("preparing grid insert: %w", err)
	}
	defer stmt.Close()

	ts := f.Time.UTC().Format(TimestampLayout)
	for _, c := range f.Cells {
		if _, err := stmt.ExecContext(ctx, ts, c.Lat, c.Lon, c.Value, sourceFile); err != nil {
			return 0, fmt.Errorf("inserting grid cell: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing grid frame: %w", err)
	}
	return len(f.Cells), nil
}
