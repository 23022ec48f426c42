package reading

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/Althuwaynee/iraqairquality/internal/grid"
)

// SQLiteRepository stores readings in the district_pm10_hourly table of a
// SQLite database, next to the grid table.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite reading repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Migrate creates the readings table if it does not exist.
func (r *SQLiteRepository) Migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS district_pm10_hourly (
			district_id TEXT,
			timestamp_utc TEXT,
			pm10 REAL,
			points_used INTEGER,
			avg_distance_km REAL,
			method TEXT,
			PRIMARY KEY (district_id, timestamp_utc)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_pm10_hourly_time ON district_pm10_hourly(timestamp_utc)`,
	}
	for _, stmt := range stmts {
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrating readings table: %w", err)
		}
	}
	return nil
}

const sqliteUpsertReading = `
	INSERT INTO district_pm10_hourly (district_id, timestamp_utc, pm10, points_used, avg_distance_km, method)
	VALUES (?, ?, ?, ?, ?, ?)
	ON CONFLICT (district_id, timestamp_utc) DO UPDATE SET
		pm10 = excluded.pm10,
		points_used = excluded.points_used,
		avg_distance_km = excluded.avg_distance_km,
		method = excluded.method
`

// Append stores one reading.
func (r *SQLiteRepository) Append(ctx context.Context, rd Reading) error {
	return r.AppendBatch(ctx, []Reading{rd})
}

// AppendBatch stores readings in one transaction.
func (r *SQLiteRepository) AppendBatch(ctx context.Context, rs []Reading) error {
	for _, rd := range rs {
		if err := rd.Validate(); err != nil {
			return err
		}
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, rd := range rs {
		_, err := tx.ExecContext(ctx, sqliteUpsertReading,
			rd.DistrictID, rd.Timestamp.UTC().Format(grid.TimestampLayout),
			rd.PM10, rd.PointsUsed, rd.AvgDistanceKm, rd.Method)
		if err != nil {
			return fmt.Errorf("upserting reading %s: %w", rd.DistrictID, err)
		}
	}

	return tx.Commit()
}

// QueryRange returns readings for a district within [from, to].
func (r *SQLiteRepository) QueryRange(ctx context.Context, districtID string, from, to time.Time) ([]Reading, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT district_id, timestamp_utc, pm10, points_used, avg_distance_km, method
		FROM district_pm10_hourly
		WHERE district_id = ? AND timestamp_utc >= ? AND timestamp_utc <= ?
		ORDER BY timestamp_utc
	`, districtID, from.UTC().Format(grid.TimestampLayout), to.UTC().Format(grid.TimestampLayout))
	if err != nil {
		return nil, fmt.Errorf("querying readings: %w", err)
	}
	defer rows.Close()

	out := []Reading{}
	for rows.Next() {
		var (
			rd     Reading
			ts     any
			points sql.NullInt64
			dist   sql.NullFloat64
			method sql.NullString
		)
		if err := rows.Scan(&rd.DistrictID, &ts, &rd.PM10, &points, &dist, &method); err != nil {
			return nil, fmt.Errorf("scanning reading: %w", err)
		}
		if rd.Timestamp, err = grid.ParseTimestamp(ts); err != nil {
			return nil, err
		}
		rd.PointsUsed = int(points.Int64)
		rd.AvgDistanceKm = dist.Float64
		rd.Method = method.String
		out = append(out, rd)
	}
	return out, rows.Err()
}

// Timestamps returns the distinct reading timestamps within [from, to].
func (r *SQLiteRepository) Timestamps(ctx context.Context, from, to time.Time) ([]time.Time, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT DISTINCT timestamp_utc
		FROM district_pm10_hourly
		WHERE timestamp_utc >= ? AND timestamp_utc <= ?
		ORDER BY timestamp_utc
	`, from.UTC().Format(grid.TimestampLayout), to.UTC().Format(grid.TimestampLayout))
	if err != nil {
		return nil, fmt.Errorf("querying reading timestamps: %w", err)
	}
	defer rows.Close()

	var out []time.Time
	for rows.Next() {
		var raw any
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		t, err := grid.ParseTimestamp(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// Ensure SQLiteRepository implements Repository interface.
var _ Repository = (*SQLiteRepository)(nil)
