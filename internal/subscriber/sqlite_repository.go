package subscriber

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Althuwaynee/iraqairquality/internal/airquality"
)

// SQLiteRepository stores subscribers in a SQLite database, for single-host
// deployments where the bot and the pipeline share a disk.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite subscriber repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Migrate creates the subscribers table if it does not exist.
func (r *SQLiteRepository) Migrate(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS subscribers (
			id TEXT PRIMARY KEY,
			latitude REAL NOT NULL,
			longitude REAL NOT NULL,
			nearest_district_id TEXT NOT NULL DEFAULT '',
			last_alert_level TEXT,
			last_alert_at TEXT,
			last_alert_reference TEXT,
			language TEXT NOT NULL DEFAULT 'ar',
			active INTEGER NOT NULL DEFAULT 1,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("migrating subscribers table: %w", err)
	}

	// Tables created before last_alert_reference existed.
	var hasRef int
	err = r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM pragma_table_info('subscribers') WHERE name = 'last_alert_reference'`,
	).Scan(&hasRef)
	if err != nil {
		return fmt.Errorf("inspecting subscribers table: %w", err)
	}
	if hasRef == 0 {
		if _, err := r.db.ExecContext(ctx, `ALTER TABLE subscribers ADD COLUMN last_alert_reference TEXT`); err != nil {
			return fmt.Errorf("adding last_alert_reference: %w", err)
		}
	}
	return nil
}

const sqliteSelectSubscriber = `
	SELECT id, latitude, longitude, nearest_district_id, last_alert_level, last_alert_at,
		last_alert_reference, language, active, created_at, updated_at
	FROM subscribers
`

// Get retrieves a subscriber by ID.
func (r *SQLiteRepository) Get(ctx context.Context, id string) (*Subscriber, error) {
	s, err := scanSQLiteSubscriber(r.db.QueryRowContext(ctx, sqliteSelectSubscriber+` WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSubscriberNotFound
		}
		return nil, err
	}
	return s, nil
}

// List returns subscribers ordered by ID.
func (r *SQLiteRepository) List(ctx context.Context, opts ListOptions) ([]*Subscriber, error) {
	query := sqliteSelectSubscriber
	if opts.ActiveOnly {
		query += ` WHERE active = 1`
	}
	query += ` ORDER BY id`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*Subscriber
	for rows.Next() {
		s, err := scanSQLiteSubscriber(rows)
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
func (r *SQLiteRepository) Upsert(ctx context.Context, s *Subscriber) (bool, error) {
	lang := s.Language
	if lang == "" {
		lang = DefaultLanguage
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var exists bool
	if err := tx.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM subscribers WHERE id = ?)`, s.ID).Scan(&exists); err != nil {
		return false, err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO subscribers (id, latitude, longitude, nearest_district_id, language, active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, 1, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			latitude = excluded.latitude,
			longitude = excluded.longitude,
			nearest_district_id = excluded.nearest_district_id,
			active = 1,
			updated_at = excluded.updated_at
	`, s.ID, s.Latitude, s.Longitude, s.NearestDistrictID, string(lang), formatTime(s.CreatedAt), formatTime(s.UpdatedAt))
	if err != nil {
		return false, err
	}

	if err := tx.Commit(); err != nil {
		return false, err
	}
	return !exists, nil
}

// SetActive toggles whether the subscriber receives alerts.
func (r *SQLiteRepository) SetActive(ctx context.Context, id string, active bool, at time.Time) error {
	return r.exec(ctx, `UPDATE subscribers SET active = ?, updated_at = ? WHERE id = ?`, active, formatTime(at), id)
}

// SetLanguage changes the notification language.
func (r *SQLiteRepository) SetLanguage(ctx context.Context, id string, lang Language, at time.Time) error {
	return r.exec(ctx, `UPDATE subscribers SET language = ?, updated_at = ? WHERE id = ?`, string(lang), formatTime(at), id)
}

// RecordAlert stores the state of a delivered notification.
func (r *SQLiteRepository) RecordAlert(ctx context.Context, id string, rec AlertRecord) error {
	ts := formatTime(rec.At)
	return r.exec(ctx, `
		UPDATE subscribers SET
			nearest_district_id = ?,
			last_alert_level = ?,
			last_alert_at = ?,
			last_alert_reference = ?,
			updated_at = ?
		WHERE id = ?
	`, rec.DistrictID, string(rec.Level), ts, formatTime(rec.ReferenceTime), ts, id)
}

func (r *SQLiteRepository) exec(ctx context.Context, query string, args ...interface{}) error {
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrSubscriberNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteSubscriber(row rowScanner) (*Subscriber, error) {
	var (
		s                    Subscriber
		level, lastAlertAt   sql.NullString
		lastAlertRef         sql.NullString
		lang                 string
		createdAt, updatedAt string
	)
	err := row.Scan(
		&s.ID,
		&s.Latitude,
		&s.Longitude,
		&s.NearestDistrictID,
		&level,
		&lastAlertAt,
		&lastAlertRef,
		&lang,
		&s.Active,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	s.LastAlertLevel = airquality.Level(level.String)
	s.Language = Language(lang)
	if lastAlertAt.Valid {
		t, err := time.Parse(time.RFC3339Nano, lastAlertAt.String)
		if err != nil {
			return nil, fmt.Errorf("parsing last_alert_at: %w", err)
		}
		s.LastAlertAt = &t
	}
	if lastAlertRef.Valid {
		t, err := time.Parse(time.RFC3339Nano, lastAlertRef.String)
		if err != nil {
			return nil, fmt.Errorf("parsing last_alert_reference: %w", err)
		}
		s.LastAlertReference = &t
	}
	if s.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	if s.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt); err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}
	return &s, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// Ensure SQLiteRepository implements Repository interface.
var _ Repository = (*SQLiteRepository)(nil)
