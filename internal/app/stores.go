// Package app assembles the pipeline components from configuration. The
// API, the worker and the pipeline CLI share it so every process sees the
// same stores and the same cycle.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/Althuwaynee/iraqairquality/internal/api/handler"
	"github.com/Althuwaynee/iraqairquality/internal/config"
	"github.com/Althuwaynee/iraqairquality/internal/database"
	"github.com/Althuwaynee/iraqairquality/internal/grid"
	"github.com/Althuwaynee/iraqairquality/internal/reading"
	"github.com/Althuwaynee/iraqairquality/internal/subscriber"
)

// Stores holds the opened persistence layers.
type Stores struct {
	Grid        *grid.SQLiteSource
	Readings    reading.Repository
	Subscribers subscriber.Repository

	pool   *pgxpool.Pool
	sqlite map[string]*sql.DB
}

// OpenStores opens the grid SQLite database and the reading and subscriber
// stores, and migrates all of them. Readings and subscribers live in
// PostgreSQL when DB_HOST is set and in SQLite files otherwise.
func OpenStores(ctx context.Context, cfg config.PipelineConfig, logger zerolog.Logger) (*Stores, error) {
	s := &Stores{sqlite: make(map[string]*sql.DB)}

	gridDB, err := s.openSQLite(ctx, "grid", cfg.GridDBPath)
	if err != nil {
		s.Close()
		return nil, err
	}
	s.Grid = grid.NewSQLiteSource(gridDB)
	if err := s.Grid.Migrate(ctx); err != nil {
		s.Close()
		return nil, fmt.Errorf("migrating grid store: %w", err)
	}

	if database.Enabled() {
		dbConfig := database.ConfigFromEnv()
		pool, err := database.Connect(ctx, dbConfig)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("connecting to database: %w", err)
		}
		s.pool = pool
		logger.Info().
			Str("host", dbConfig.Host).
			Int("port", dbConfig.Port).
			Str("database", dbConfig.Database).
			Msg("database connected")

		readings := reading.NewPostgresRepository(pool)
		if err := readings.Migrate(ctx); err != nil {
			s.Close()
			return nil, fmt.Errorf("migrating readings: %w", err)
		}
		subscribers := subscriber.NewPostgresRepository(pool)
		if err := subscribers.Migrate(ctx); err != nil {
			s.Close()
			return nil, fmt.Errorf("migrating subscribers: %w", err)
		}
		s.Readings, s.Subscribers = readings, subscribers
		return s, nil
	}

	readingsDB, err := s.openSQLite(ctx, "readings", cfg.ReadingsDBPath)
	if err != nil {
		s.Close()
		return nil, err
	}
	readings := reading.NewSQLiteRepository(readingsDB)
	if err := readings.Migrate(ctx); err != nil {
		s.Close()
		return nil, fmt.Errorf("migrating readings: %w", err)
	}

	subscribersDB, err := s.openSQLite(ctx, "subscribers", cfg.SubscribersDBPath)
	if err != nil {
		s.Close()
		return nil, err
	}
	subscribers := subscriber.NewSQLiteRepository(subscribersDB)
	if err := subscribers.Migrate(ctx); err != nil {
		s.Close()
		return nil, fmt.Errorf("migrating subscribers: %w", err)
	}
	s.Readings, s.Subscribers = readings, subscribers

	logger.Info().
		Str("readings", cfg.ReadingsDBPath).
		Str("subscribers", cfg.SubscribersDBPath).
		Msg("using sqlite stores")
	return s, nil
}

func (s *Stores) openSQLite(ctx context.Context, name, path string) (*sql.DB, error) {
	if db, ok := s.sqlite[path]; ok {
		return db, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating %s store directory: %w", name, err)
	}
	db, err := database.OpenSQLite(ctx, database.SQLiteConfig{Path: path, MaxOpenConns: 4})
	if err != nil {
		return nil, fmt.Errorf("opening %s store: %w", name, err)
	}
	s.sqlite[path] = db
	return db, nil
}

// Checks returns readiness probes for every open store.
func (s *Stores) Checks() []handler.DependencyCheck {
	var checks []handler.DependencyCheck
	if s.pool != nil {
		pool := s.pool
		checks = append(checks, handler.DependencyCheck{Name: "postgres", Check: pool.Ping})
	}
	for path, db := range s.sqlite {
		db := db
		checks = append(checks, handler.DependencyCheck{Name: "sqlite:" + filepath.Base(path), Check: db.PingContext})
	}
	return checks
}

// Close closes every open store.
func (s *Stores) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
	for _, db := range s.sqlite {
		_ = db.Close()
	}
}
