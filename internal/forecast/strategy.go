package forecast

import (
	"context"
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/Althuwaynee/iraqairquality/internal/reading"
)

// Data sources reported on each point.
const (
	SourceExact       = "exact"
	SourceNearest     = "nearest"
	SourcePersistence = "persistence"
	SourceTrend       = "trend"
)

// Prediction is one strategy output.
type Prediction struct {
	Value     float64
	Timestamp time.Time
	Source    string
}

// Strategy produces a PM10 estimate for a district at asOf + horizon.
// ok is false when the strategy has no value for that horizon; the point is
// then omitted rather than fabricated.
type Strategy interface {
	Name() string
	Predict(ctx context.Context, districtID string, asOf time.Time, horizonHours int) (Prediction, bool, error)
}

// StoreFeed reads model forecasts already ingested into the hourly store at
// future timestamps. The target time is snapped to the model resolution,
// then an exact match is preferred over the nearest reading within tolerance.
type StoreFeed struct {
	repo       reading.Repository
	resolution time.Duration
	tolerance  time.Duration
}

// NewStoreFeed creates a StoreFeed. Zero durations use 3 h resolution and
// 90 min tolerance.
func NewStoreFeed(repo reading.Repository, resolution, tolerance time.Duration) *StoreFeed {
	if resolution <= 0 {
		resolution = 3 * time.Hour
	}
	if tolerance <= 0 {
		tolerance = 90 * time.Minute
	}
	return &StoreFeed{repo: repo, resolution: resolution, tolerance: tolerance}
}

// Name implements Strategy.
func (s *StoreFeed) Name() string { return "store_feed" }

// Predict implements Strategy.
func (s *StoreFeed) Predict(ctx context.Context, districtID string, asOf time.Time, horizonHours int) (Prediction, bool, error) {
	target := asOf.UTC().Add(time.Duration(horizonHours) * time.Hour).Round(s.resolution)

	readings, err := s.repo.QueryRange(ctx, districtID, target.Add(-s.tolerance), target.Add(s.tolerance))
	if err != nil {
		return Prediction{}, false, fmt.Errorf("querying forecast readings: %w", err)
	}

	for _, r := range readings {
		if r.Timestamp.Equal(target) {
			return Prediction{Value: r.PM10, Timestamp: r.Timestamp, Source: SourceExact}, true, nil
		}
	}

	r, ok := reading.Nearest(readings, target, s.tolerance)
	if !ok {
		return Prediction{}, false, nil
	}
	return Prediction{Value: r.PM10, Timestamp: r.Timestamp, Source: SourceNearest}, true, nil
}

// Persistence carries the current reading forward unchanged.
type Persistence struct {
	repo      reading.Repository
	tolerance time.Duration
}

// NewPersistence creates a Persistence strategy. The current reading must lie
// within tolerance of asOf; zero uses 90 min.
func NewPersistence(repo reading.Repository, tolerance time.Duration) *Persistence {
	if tolerance <= 0 {
		tolerance = 90 * time.Minute
	}
	return &Persistence{repo: repo, tolerance: tolerance}
}

// Name implements Strategy.
func (p *Persistence) Name() string { return "persistence" }

// Predict implements Strategy.
func (p *Persistence) Predict(ctx context.Context, districtID string, asOf time.Time, horizonHours int) (Prediction, bool, error) {
	asOf = asOf.UTC()
	readings, err := p.repo.QueryRange(ctx, districtID, asOf.Add(-p.tolerance), asOf.Add(p.tolerance))
	if err != nil {
		return Prediction{}, false, fmt.Errorf("querying current reading: %w", err)
	}

	r, ok := reading.Nearest(readings, asOf, p.tolerance)
	if !ok {
		return Prediction{}, false, nil
	}
	return Prediction{
		Value:     r.PM10,
		Timestamp: asOf.Add(time.Duration(horizonHours) * time.Hour),
		Source:    SourcePersistence,
	}, true, nil
}

// Trend extrapolates a least-squares line through the trailing readings.
type Trend struct {
	repo       reading.Repository
	lookback   time.Duration
	minSamples int
}

// NewTrend creates a Trend strategy fitted over lookback (default 24 h),
// needing at least minSamples readings (default 3).
func NewTrend(repo reading.Repository, lookback time.Duration, minSamples int) *Trend {
	if lookback <= 0 {
		lookback = 24 * time.Hour
	}
	if minSamples < 2 {
		minSamples = 3
	}
	return &Trend{repo: repo, lookback: lookback, minSamples: minSamples}
}

// Name implements Strategy.
func (t *Trend) Name() string { return "trend" }

// Predict implements Strategy.
func (t *Trend) Predict(ctx context.Context, districtID string, asOf time.Time, horizonHours int) (Prediction, bool, error) {
	asOf = asOf.UTC()
	readings, err := t.repo.QueryRange(ctx, districtID, asOf.Add(-t.lookback), asOf)
	if err != nil {
		return Prediction{}, false, fmt.Errorf("querying trend readings: %w", err)
	}
	if len(readings) < t.minSamples {
		return Prediction{}, false, nil
	}

	xs := make([]float64, len(readings))
	ys := make([]float64, len(readings))
	for i, r := range readings {
		xs[i] = r.Timestamp.Sub(asOf).Hours()
		ys[i] = r.PM10
	}

	alpha, beta := stat.LinearRegression(xs, ys, nil, false)
	v := alpha + beta*float64(horizonHours)
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return Prediction{}, false, nil
	}

	return Prediction{
		Value:     math.Max(0, v),
		Timestamp: asOf.Add(time.Duration(horizonHours) * time.Hour),
		Source:    SourceTrend,
	}, true, nil
}

// NewStrategy returns a strategy by name.
func NewStrategy(name string, repo reading.Repository) (Strategy, error) {
	switch name {
	case "", "store_feed", "model":
		return NewStoreFeed(repo, 0, 0), nil
	case "persistence":
		return NewPersistence(repo, 0), nil
	case "trend":
		return NewTrend(repo, 0, 0), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownStrategy, name)
	}
}
