// Package forecast produces per-district PM10 estimates at fixed horizons
// through a pluggable strategy.
package forecast

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Althuwaynee/iraqairquality/internal/airquality"
)

// ErrUnknownStrategy is returned by NewStrategy.
var ErrUnknownStrategy = errors.New("unknown forecast strategy")

// DefaultHorizons are 3..24 h in 3 h steps.
var DefaultHorizons = []int{3, 6, 9, 12, 15, 18, 21, 24}

// Point is one classified forecast value.
type Point struct {
	DistrictID   string           `json:"district_id"`
	HorizonHours int              `json:"horizon_hours"`
	Timestamp    time.Time        `json:"timestamp"`
	Value        float64          `json:"value"`
	AQI          int              `json:"aqi"`
	AQILevel     airquality.Level `json:"aqi_level"`
	DustStorm    bool             `json:"dust_storm"`
	DataSource   string           `json:"data_source"`
}

// GeneratorConfig holds configuration for the Generator.
type GeneratorConfig struct {
	Strategy   Strategy
	Classifier *airquality.Classifier

	// Horizons in hours, ascending. Default: DefaultHorizons.
	Horizons []int
}

// Generator runs a strategy over the configured horizons.
type Generator struct {
	strategy   Strategy
	classifier *airquality.Classifier
	horizons   []int
}

// NewGenerator creates a Generator.
func NewGenerator(cfg GeneratorConfig) (*Generator, error) {
	if cfg.Strategy == nil {
		return nil, errors.New("forecast generator requires a strategy")
	}
	if cfg.Classifier == nil {
		return nil, errors.New("forecast generator requires a classifier")
	}

	horizons := cfg.Horizons
	if len(horizons) == 0 {
		horizons = DefaultHorizons
	}
	for i, h := range horizons {
		if h <= 0 || (i > 0 && h <= horizons[i-1]) {
			return nil, fmt.Errorf("forecast horizons must be positive and ascending: %v", horizons)
		}
	}

	return &Generator{
		strategy:   cfg.Strategy,
		classifier: cfg.Classifier,
		horizons:   append([]int(nil), horizons...),
	}, nil
}

// Horizons returns the configured horizons.
func (g *Generator) Horizons() []int {
	return append([]int(nil), g.horizons...)
}

// StrategyName returns the active strategy name.
func (g *Generator) StrategyName() string {
	return g.strategy.Name()
}

// Forecast returns up to one point per horizon, ordered by horizon. Horizons
// the strategy has no value for are omitted.
func (g *Generator) Forecast(ctx context.Context, districtID string, asOf time.Time) ([]Point, error) {
	points := make([]Point, 0, len(g.horizons))
	for _, h := range g.horizons {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		p, ok, err := g.strategy.Predict(ctx, districtID, asOf, h)
		if err != nil {
			return nil, fmt.Errorf("forecasting %s at +%dh: %w", districtID, h, err)
		}
		if !ok {
			continue
		}

		aqi, err := g.classifier.Classify(p.Value)
		if err != nil {
			continue
		}

		points = append(points, Point{
			DistrictID:   districtID,
			HorizonHours: h,
			Timestamp:    p.Timestamp.UTC(),
			Value:        p.Value,
			AQI:          aqi.Value,
			AQILevel:     aqi.Level,
			DustStorm:    airquality.IsDustStorm(p.Value, aqi.Value),
			DataSource:   p.Source,
		})
	}
	return points, nil
}
