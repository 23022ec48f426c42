package snapshot

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/Althuwaynee/iraqairquality/internal/airquality"
	"github.com/Althuwaynee/iraqairquality/internal/district"
	"github.com/Althuwaynee/iraqairquality/internal/forecast"
	"github.com/Althuwaynee/iraqairquality/internal/reading"
	"github.com/Althuwaynee/iraqairquality/internal/rolling"
)

// BuilderConfig holds configuration for the Builder.
type BuilderConfig struct {
	Registry   *district.Registry
	Readings   reading.Repository
	Aggregator *rolling.Aggregator
	Classifier *airquality.Classifier
	Forecaster *forecast.Generator
	Logger     zerolog.Logger

	// Windows are the rolling windows in hours. Default: 6, 12, 24.
	Windows []int

	// ComplianceWindow is the window judged against the limit. Default: 24.
	ComplianceWindow int

	// CurrentTolerance is how far from the reference time the current
	// reading may lie. Default: 90 minutes.
	CurrentTolerance time.Duration

	// Concurrency bounds parallel district builds. Default: 8.
	Concurrency int
}

// Builder assembles DistrictSnapshots.
type Builder struct {
	cfg BuilderConfig
}

// NewBuilder creates a Builder.
func NewBuilder(cfg BuilderConfig) (*Builder, error) {
	if cfg.Registry == nil || cfg.Readings == nil || cfg.Classifier == nil || cfg.Forecaster == nil {
		return nil, errors.New("snapshot builder requires registry, readings, classifier and forecaster")
	}
	if cfg.Aggregator == nil {
		cfg.Aggregator = rolling.NewAggregator(cfg.Readings, 0)
	}
	if len(cfg.Windows) == 0 {
		cfg.Windows = rolling.DefaultWindows
	}
	if cfg.ComplianceWindow <= 0 {
		cfg.ComplianceWindow = 24
	}
	if cfg.CurrentTolerance <= 0 {
		cfg.CurrentTolerance = 90 * time.Minute
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 8
	}
	return &Builder{cfg: cfg}, nil
}

// Windows returns the rolling windows in hours.
func (b *Builder) Windows() []int {
	return append([]int(nil), b.cfg.Windows...)
}

// Horizons returns the forecast horizons in hours.
func (b *Builder) Horizons() []int {
	return b.cfg.Forecaster.Horizons()
}

// Resolution returns the data resolution assumed by the aggregator.
func (b *Builder) Resolution() time.Duration {
	return b.cfg.Aggregator.Resolution()
}

// Classifier returns the classifier used for AQI and compliance.
func (b *Builder) Classifier() *airquality.Classifier {
	return b.cfg.Classifier
}

// ForecastStrategy returns the name of the forecast strategy.
func (b *Builder) ForecastStrategy() string {
	return b.cfg.Forecaster.StrategyName()
}

// Build returns one snapshot per registered district in registry order.
// A district whose inputs fail is kept with missing markers; only
// cancellation of ctx fails the build.
func (b *Builder) Build(ctx context.Context, asOf time.Time) ([]DistrictSnapshot, error) {
	asOf = asOf.UTC()
	districts := b.cfg.Registry.All()
	out := make([]DistrictSnapshot, len(districts))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.cfg.Concurrency)

	for i, d := range districts {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			snap, err := b.buildDistrict(gctx, d, asOf)
			if err != nil {
				if ctxErr := gctx.Err(); ctxErr != nil {
					return ctxErr
				}
				b.cfg.Logger.Warn().
					Err(err).
					Str("district_id", d.ID).
					Msg("district snapshot incomplete")
				snap = b.unavailable(d)
			}
			out[i] = snap
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("building snapshot: %w", err)
	}
	return out, nil
}

func (b *Builder) buildDistrict(ctx context.Context, d district.District, asOf time.Time) (DistrictSnapshot, error) {
	snap := identity(d)
	snap.Rolling = make([]RollingMean, 0, len(b.cfg.Windows))
	snap.Missing = []string{}

	tol := b.cfg.CurrentTolerance
	around, err := b.cfg.Readings.QueryRange(ctx, d.ID, asOf.Add(-tol), asOf.Add(tol))
	if err != nil {
		return DistrictSnapshot{}, fmt.Errorf("current reading: %w", err)
	}

	if r, ok := reading.Nearest(around, asOf, tol); ok {
		snap.Current = &Current{
			PM10:          r.PM10,
			Timestamp:     r.Timestamp,
			PointsUsed:    r.PointsUsed,
			AvgDistanceKm: r.AvgDistanceKm,
			Method:        r.Method,
		}
		aqi, err := b.cfg.Classifier.Classify(r.PM10)
		if err != nil {
			return DistrictSnapshot{}, err
		}
		snap.AQI = &aqi
		snap.DustStorm = airquality.IsDustStorm(r.PM10, aqi.Value)
	} else {
		snap.Missing = append(snap.Missing, MissingCurrent)
	}

	stats, err := b.cfg.Aggregator.Windows(ctx, d.ID, asOf, b.cfg.Windows)
	if err != nil {
		return DistrictSnapshot{}, err
	}
	for _, s := range stats {
		snap.Rolling = append(snap.Rolling, RollingMean{
			WindowHours: s.WindowHours,
			Mean:        s.Mean,
			SampleCount: s.SampleCount,
			MaxSamples:  s.MaxSamples,
			WindowStart: s.WindowStart,
		})
		if !s.HasData() {
			snap.Missing = append(snap.Missing, MissingRolling(s.WindowHours))
		}
	}

	compliance, err := b.cfg.Aggregator.RollingMean(ctx, d.ID, b.cfg.ComplianceWindow, asOf)
	if err != nil {
		return DistrictSnapshot{}, err
	}
	snap.Compliance = b.cfg.Classifier.Compliance(compliance.Mean)

	points, err := b.cfg.Forecaster.Forecast(ctx, d.ID, asOf)
	if err != nil {
		return DistrictSnapshot{}, err
	}
	snap.Forecast = points
	if len(points) == 0 {
		snap.Missing = append(snap.Missing, MissingForecast)
	}

	return snap, nil
}

// unavailable is the snapshot of a district whose inputs could not be read.
func (b *Builder) unavailable(d district.District) DistrictSnapshot {
	snap := identity(d)
	snap.Rolling = []RollingMean{}
	snap.Forecast = []forecast.Point{}
	snap.Compliance = b.cfg.Classifier.Compliance(nil)
	snap.Missing = []string{MissingCurrent}
	for _, w := range b.cfg.Windows {
		snap.Missing = append(snap.Missing, MissingRolling(w))
	}
	snap.Missing = append(snap.Missing, MissingForecast)
	return snap
}

func identity(d district.District) DistrictSnapshot {
	return DistrictSnapshot{
		DistrictID:   d.ID,
		DistrictName: d.Name,
		ProvinceID:   d.ProvinceID,
		ProvinceName: d.ProvinceName,
		Latitude:     d.Lat,
		Longitude:    d.Lon,
	}
}
