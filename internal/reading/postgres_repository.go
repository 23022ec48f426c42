package reading

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresRepository is a PostgreSQL implementation of Repository.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a new PostgreSQL reading repository.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// Migrate creates the readings table if it does not exist.
func (r *PostgresRepository) Migrate(ctx context.Context) error {
	_, err := r.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS district_pm10_hourly (
			district_id     TEXT NOT NULL,
			timestamp_utc   TIMESTAMPTZ NOT NULL,
			pm10            DOUBLE PRECISION NOT NULL,
			points_used     INTEGER NOT NULL DEFAULT 0,
			avg_distance_km DOUBLE PRECISION NOT NULL DEFAULT 0,
			method          TEXT NOT NULL DEFAULT '',
			PRIMARY KEY (district_id, timestamp_utc)
		)
	`)
	return err
}

const upsertReading = `
	INSERT INTO district_pm10_hourly (district_id, timestamp_utc, pm10, points_used, avg_distance_km, method)
	VALUES ($1, $2, $3, $4, $5, $6)
	ON CONFLICT (district_id, timestamp_utc) DO UPDATE SET
		pm10 = EXCLUDED.pm10,
		points_used = EXCLUDED.points_used,
		avg_distance_km = EXCLUDED.avg_distance_km,
		method = EXCLUDED.method
`

// Append stores one reading.
func (r *PostgresRepository) Append(ctx context.Context, rd Reading) error {
	if err := rd.Validate(); err != nil {
		return err
	}
	_, err := r.pool.Exec(ctx, upsertReading,
		rd.DistrictID, rd.Timestamp.UTC(), rd.PM10, rd.PointsUsed, rd.AvgDistanceKm, rd.Method)
	return err
}

// AppendBatch stores readings in one transaction.
func (r *PostgresRepository) AppendBatch(ctx context.Context, rs []Reading) error {
	for _, rd := range rs {
		if err := rd.Validate(); err != nil {
			return err
		}
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback error is not critical

	for _, rd := range rs {
		_, err = tx.Exec(ctx, upsertReading,
			rd.DistrictID, rd.Timestamp.UTC(), rd.PM10, rd.PointsUsed, rd.AvgDistanceKm, rd.Method)
		if err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

// QueryRange returns readings for a district within [from, to].
func (r *PostgresRepository) QueryRange(ctx context.Context, districtID string, from, to time.Time) ([]Reading, error) {
	query := `
		SELECT district_id, timestamp_utc, pm10, points_used, avg_distance_km, method
		FROM district_pm10_hourly
		WHERE district_id = $1 AND timestamp_utc >= $2 AND timestamp_utc <= $3
		ORDER BY timestamp_utc ASC
	`

	rows, err := r.pool.Query(ctx, query, districtID, from.UTC(), to.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Reading{}
	for rows.Next() {
		var rd Reading
		if err := rows.Scan(&rd.DistrictID, &rd.Timestamp, &rd.PM10, &rd.PointsUsed, &rd.AvgDistanceKm, &rd.Method); err != nil {
			return nil, err
		}
		rd.Timestamp = rd.Timestamp.UTC()
		out = append(out, rd)
	}

	return out, rows.Err()
}

// Timestamps returns the distinct reading timestamps within [from, to].
func (r *PostgresRepository) Timestamps(ctx context.Context, from, to time.Time) ([]time.Time, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT DISTINCT timestamp_utc
		FROM district_pm10_hourly
		WHERE timestamp_utc >= $1 AND timestamp_utc <= $2
		ORDER BY timestamp_utc ASC
	`, from.UTC(), to.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []time.Time
	for rows.Next() {
		var t time.Time
		if err := rows.Scan(&t); err != nil {
			return nil, err
		}
		out = append(out, t.UTC())
	}
	return out, rows.Err()
}

// Ensure PostgresRepository implements Repository interface.
var _ Repository = (*PostgresRepository)(nil)
