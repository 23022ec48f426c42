package reading

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/Althuwaynee/iraqairquality/internal/district"
	"github.com/Althuwaynee/iraqairquality/internal/grid"
	"github.com/Althuwaynee/iraqairquality/internal/observability"
)

// Sampler is the part of grid.Sampler the store needs.
type Sampler interface {
	Timestamps(ctx context.Context, from, to time.Time) ([]time.Time, error)
	Sample(ctx context.Context, d district.District, t time.Time) (grid.Sample, error)
	Reset()
}

// IngestConfig holds configuration for ingest runs.
type IngestConfig struct {
	// Concurrency is the number of districts sampled in parallel.
	// Default: 8
	Concurrency int

	// Timeout bounds the work for one district.
	// Default: 30 seconds
	Timeout time.Duration

	// ForecastHorizon is how far past now backfill also ingests, so model
	// forecast frames are stored alongside analyses.
	// Default: 24 hours
	ForecastHorizon time.Duration
}

// DefaultIngestConfig returns the default ingest configuration.
func DefaultIngestConfig() IngestConfig {
	return IngestConfig{
		Concurrency:     8,
		Timeout:         30 * time.Second,
		ForecastHorizon: 24 * time.Hour,
	}
}

// ServiceConfig holds configuration for creating a Service.
type ServiceConfig struct {
	Repository Repository
	Sampler    Sampler
	Registry   *district.Registry
	Config     IngestConfig
	Clock      clockwork.Clock
	Logger     zerolog.Logger
	Metrics    *observability.Metrics
}

// Service owns the reading history and fills it from the grid.
type Service struct {
	repo     Repository
	sampler  Sampler
	registry *district.Registry
	config   IngestConfig
	clock    clockwork.Clock
	logger   zerolog.Logger
	metrics  *observability.Metrics
}

// NewService creates a new reading service.
func NewService(cfg ServiceConfig) *Service {
	config := cfg.Config
	def := DefaultIngestConfig()
	if config.Concurrency <= 0 {
		config.Concurrency = def.Concurrency
	}
	if config.Timeout <= 0 {
		config.Timeout = def.Timeout
	}
	if config.ForecastHorizon <= 0 {
		config.ForecastHorizon = def.ForecastHorizon
	}

	clock := cfg.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	return &Service{
		repo:     cfg.Repository,
		sampler:  cfg.Sampler,
		registry: cfg.Registry,
		config:   config,
		clock:    clock,
		logger:   cfg.Logger,
		metrics:  cfg.Metrics,
	}
}

// Repository returns the underlying store.
func (s *Service) Repository() Repository {
	return s.repo
}

// IngestResult summarises an ingest run.
type IngestResult struct {
	From       time.Time
	To         time.Time
	Timestamps int
	Districts  int
	Stored     int
	Missing    int
	Failed     int
	Errors     []DistrictError
	Duration   time.Duration
}

// DistrictError records a district that could not be ingested.
type DistrictError struct {
	DistrictID string
	Error      string
}

// Ingest samples every district at every grid timestamp in [from, to] and
// upserts the readings. Missing samples are not written. A district that
// fails is recorded and skipped; the error return is reserved for failures
// that affect the whole run, such as an unreadable grid.
func (s *Service) Ingest(ctx context.Context, from, to time.Time) (*IngestResult, error) {
	start := s.clock.Now()
	result := &IngestResult{From: from.UTC(), To: to.UTC()}

	// A new model run rewrites frames at the same timestamps.
	s.sampler.Reset()

	timestamps, err := s.sampler.Timestamps(ctx, from, to)
	if err != nil {
		return nil, err
	}
	result.Timestamps = len(timestamps)

	districts := s.registry.All()
	result.Districts = len(districts)

	if len(timestamps) == 0 {
		s.logger.Warn().
			Time("from", from).
			Time("to", to).
			Msg("no grid frames in ingest range")
		return result, nil
	}

	s.logger.Info().
		Int("timestamps", len(timestamps)).
		Int("districts", len(districts)).
		Int("concurrency", s.config.Concurrency).
		Msg("starting ingest")

	jobs := make(chan district.District, len(districts))
	results := make(chan districtResult, len(districts))

	var wg sync.WaitGroup
	for i := 0; i < s.config.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.ingestWorker(ctx, timestamps, jobs, results)
		}()
	}

	for _, d := range districts {
		jobs <- d
	}
	close(jobs)

	go func() {
		wg.Wait()
		close(results)
	}()

	for dr := range results {
		result.Stored += dr.stored
		result.Missing += dr.missing
		if dr.err != nil {
			result.Failed++
			result.Errors = append(result.Errors, DistrictError{DistrictID: dr.districtID, Error: dr.err.Error()})
		}
	}

	result.Duration = s.clock.Since(start)

	if s.metrics != nil {
		s.metrics.DistrictSamples.WithLabelValues("stored").Add(float64(result.Stored))
		s.metrics.DistrictSamples.WithLabelValues("missing").Add(float64(result.Missing))
		s.metrics.DistrictSamples.WithLabelValues("error").Add(float64(result.Failed))
		s.metrics.ReadingsUpserted.Add(float64(result.Stored))
	}

	s.logger.Info().
		Dur("duration", result.Duration).
		Int("stored", result.Stored).
		Int("missing", result.Missing).
		Int("failed", result.Failed).
		Msg("ingest completed")

	if err := ctx.Err(); err != nil {
		return result, fmt.Errorf("ingest cancelled: %w", err)
	}
	return result, nil
}

// Backfill re-derives the last hours of readings plus the forecast horizon
// ahead of now. Re-running it yields the same set of readings.
func (s *Service) Backfill(ctx context.Context, hours int) (*IngestResult, error) {
	if hours <= 0 {
		return nil, fmt.Errorf("backfill hours must be positive, got %d", hours)
	}
	now := s.clock.Now().UTC()
	from := now.Add(-time.Duration(hours) * time.Hour)
	to := now.Add(s.config.ForecastHorizon)

	s.logger.Info().
		Int("hours", hours).
		Time("from", from).
		Time("to", to).
		Msg("starting backfill")

	return s.Ingest(ctx, from, to)
}

type districtResult struct {
	districtID string
	stored     int
	missing    int
	err        error
}

func (s *Service) ingestWorker(ctx context.Context, timestamps []time.Time, jobs <-chan district.District, results chan<- districtResult) {
	for d := range jobs {
		select {
		case <-ctx.Done():
			results <- districtResult{districtID: d.ID, err: ctx.Err()}
		default:
			results <- s.ingestDistrict(ctx, d, timestamps)
		}
	}
}

func (s *Service) ingestDistrict(ctx context.Context, d district.District, timestamps []time.Time) districtResult {
	result := districtResult{districtID: d.ID}

	districtCtx, cancel := context.WithTimeout(ctx, s.config.Timeout)
	defer cancel()

	batch := make([]Reading, 0, len(timestamps))
	for _, t := range timestamps {
		sample, err := s.sampler.Sample(districtCtx, d, t)
		if errors.Is(err, grid.ErrMissingData) {
			result.missing++
			continue
		}
		if err != nil {
			result.err = fmt.Errorf("sampling %s at %s: %w", d.ID, t.Format(time.RFC3339), err)
			return result
		}

		batch = append(batch, Reading{
			DistrictID:    d.ID,
			Timestamp:     t.UTC(),
			PM10:          sample.Value,
			PointsUsed:    sample.PointsUsed,
			AvgDistanceKm: sample.AvgDistanceKm,
			Method:        sample.Method,
		})
	}

	if len(batch) == 0 {
		return result
	}

	if err := s.repo.AppendBatch(districtCtx, batch); err != nil {
		result.err = fmt.Errorf("storing readings for %s: %w", d.ID, err)
		s.logger.Error().Err(err).Str("district_id", d.ID).Msg("failed to store readings")
		return result
	}
	result.stored = len(batch)
	return result
}
