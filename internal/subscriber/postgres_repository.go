package subscriber

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Althuwaynee/iraqairquality/internal/airquality"
)

// PostgresRepository is a PostgreSQL implementation of Repository.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a new PostgreSQL subscriber repository.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// Migrate creates the subscribers table if it does not exist.
func (r *PostgresRepository) Migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS subscribers (
			id TEXT PRIMARY KEY,
			latitude DOUBLE PRECISION NOT NULL,
			longitude DOUBLE PRECISION NOT NULL,
			nearest_district_id TEXT NOT NULL DEFAULT '',
			last_alert_level TEXT,
			last_alert_at TIMESTAMPTZ,
			last_alert_reference TIMESTAMPTZ,
			language TEXT NOT NULL DEFAULT 'ar',
			active BOOLEAN NOT NULL DEFAULT TRUE,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)`,
		`ALTER TABLE subscribers ADD COLUMN IF NOT EXISTS last_alert_reference TIMESTAMPTZ`,
		`CREATE INDEX IF NOT EXISTS idx_subscribers_active ON subscribers (active)`,
	}
	for _, stmt := range stmts {
		if _, err := r.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migrating subscribers table: %w", err)
		}
	}
	return nil
}

const selectSubscriber = `
	SELECT id, latitude, longitude, nearest_district_id, last_alert_level, last_alert_at,
		last_alert_reference, language, active, created_at, updated_at
	FROM subscribers
`

// Get retrieves a subscriber by ID.
func (r *PostgresRepository) Get(ctx context.Context, id string) (*Subscriber, error) {
	s, err := scanSubscriber(r.pool.QueryRow(ctx, selectSubscriber+` WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSubscriberNotFound
		}
		return nil, err
	}
	return s, nil
}

// List returns subscribers ordered by ID.
func (r *PostgresRepository) List(ctx context.Context, opts ListOptions) ([]*Subscriber, error) {
	query := selectSubscriber
	if opts.ActiveOnly {
		query += ` WHERE active`
	}
	query += ` ORDER BY id`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*Subscriber
	for rows.Next() {
		s, err := scanSubscriber(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

// Upsert stores a location share.
func (r *PostgresRepository) Upsert(ctx context.Context, s *Subscriber) (bool, error) {
	lang := s.Language
	if lang == "" {
		lang = DefaultLanguage
	}

	query := `
		INSERT INTO subscribers (id, latitude, longitude, nearest_district_id, language, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, TRUE, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			latitude = EXCLUDED.latitude,
			longitude = EXCLUDED.longitude,
			nearest_district_id = EXCLUDED.nearest_district_id,
			active = TRUE,
			updated_at = EXCLUDED.updated_at
		RETURNING (xmax = 0) AS inserted
	`

	var inserted bool
	err := r.pool.QueryRow(ctx, query,
		s.ID,
		s.Latitude,
		s.Longitude,
		s.NearestDistrictID,
		string(lang),
		s.CreatedAt,
		s.UpdatedAt,
	).Scan(&inserted)
	if err != nil {
		return false, err
	}
	return inserted, nil
}

// SetActive toggles whether the subscriber receives alerts.
func (r *PostgresRepository) SetActive(ctx context.Context, id string, active bool, at time.Time) error {
	return r.exec(ctx, `UPDATE subscribers SET active = $2, updated_at = $3 WHERE id = $1`, id, active, at)
}

// SetLanguage changes the notification language.
func (r *PostgresRepository) SetLanguage(ctx context.Context, id string, lang Language, at time.Time) error {
	return r.exec(ctx, `UPDATE subscribers SET language = $2, updated_at = $3 WHERE id = $1`, id, string(lang), at)
}

// RecordAlert stores the state of a delivered notification.
func (r *PostgresRepository) RecordAlert(ctx context.Context, id string, rec AlertRecord) error {
	return r.exec(ctx, `
		UPDATE subscribers SET
			nearest_district_id = $2,
			last_alert_level = $3,
			last_alert_at = $4,
			last_alert_reference = $5,
			updated_at = $4
		WHERE id = $1
	`, id, rec.DistrictID, string(rec.Level), rec.At, rec.ReferenceTime)
}

func (r *PostgresRepository) exec(ctx context.Context, query string, args ...interface{}) error {
	result, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrSubscriberNotFound
	}
	return nil
}

func scanSubscriber(row pgx.Row) (*Subscriber, error) {
	var (
		s     Subscriber
		level *string
		lang  string
	)
	err := row.Scan(
		&s.ID,
		&s.Latitude,
		&s.Longitude,
		&s.NearestDistrictID,
		&level,
		&s.LastAlertAt,
		&s.LastAlertReference,
		&lang,
		&s.Active,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if level != nil {
		s.LastAlertLevel = airquality.Level(*level)
	}
	s.Language = Language(lang)
	return &s, nil
}

// Ensure PostgresRepository implements Repository interface.
var _ Repository = (*PostgresRepository)(nil)
