// Package rolling computes trailing-window statistics over the hourly store.
package rolling

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/Althuwaynee/iraqairquality/internal/reading"
)

// ErrInvalidWindow is returned for a non-positive window.
var ErrInvalidWindow = errors.New("rolling window must be positive")

// DefaultWindows are the published rolling windows in hours.
var DefaultWindows = []int{6, 12, 24}

// DefaultResolution is the spacing of model frames.
const DefaultResolution = 3 * time.Hour

// Stat is a rolling mean over [WindowStart, AsOf]. Mean is nil when no
// reading fell in the window; callers render that as no data, never zero.
type Stat struct {
	DistrictID  string    `json:"district_id"`
	WindowHours int       `json:"window_hours"`
	Mean        *float64  `json:"mean"`
	SampleCount int       `json:"sample_count"`
	MaxSamples  int       `json:"max_samples"`
	AsOf        time.Time `json:"as_of"`
	WindowStart time.Time `json:"window_start"`
}

// HasData reports whether the window held at least one reading.
func (s Stat) HasData() bool {
	return s.Mean != nil
}

// Coverage is SampleCount / MaxSamples, a data-quality signal.
func (s Stat) Coverage() float64 {
	if s.MaxSamples == 0 {
		return 0
	}
	return float64(s.SampleCount) / float64(s.MaxSamples)
}

// Aggregator computes rolling means from a reading repository.
type Aggregator struct {
	repo       reading.Repository
	resolution time.Duration
}

// NewAggregator creates an Aggregator. A zero resolution uses DefaultResolution.
func NewAggregator(repo reading.Repository, resolution time.Duration) *Aggregator {
	if resolution <= 0 {
		resolution = DefaultResolution
	}
	return &Aggregator{repo: repo, resolution: resolution}
}

// Resolution returns the assumed spacing between readings.
func (a *Aggregator) Resolution() time.Duration {
	return a.resolution
}

// MaxSamples is the number of readings a full window of the given length
// holds at this resolution, counting both ends.
func (a *Aggregator) MaxSamples(windowHours int) int {
	return int(time.Duration(windowHours)*time.Hour/a.resolution) + 1
}

// RollingMean returns the arithmetic mean of the district's readings in
// [asOf - window, asOf]. The mean and count are reported as is; sparse
// windows are not adjusted or gap-filled.
func (a *Aggregator) RollingMean(ctx context.Context, districtID string, windowHours int, asOf time.Time) (Stat, error) {
	if windowHours <= 0 {
		return Stat{}, fmt.Errorf("%w: %d", ErrInvalidWindow, windowHours)
	}

	asOf = asOf.UTC()
	start := asOf.Add(-time.Duration(windowHours) * time.Hour)

	readings, err := a.repo.QueryRange(ctx, districtID, start, asOf)
	if err != nil {
		return Stat{}, fmt.Errorf("querying %dh window for %s: %w", windowHours, districtID, err)
	}

	s := Stat{
		DistrictID:  districtID,
		WindowHours: windowHours,
		SampleCount: len(readings),
		MaxSamples:  a.MaxSamples(windowHours),
		AsOf:        asOf,
		WindowStart: start,
	}
	if len(readings) == 0 {
		return s, nil
	}

	values := make([]float64, len(readings))
	for i, r := range readings {
		values[i] = r.PM10
	}
	mean := stat.Mean(values, nil)
	s.Mean = &mean
	return s, nil
}

// Windows computes RollingMean for each window, in the order given.
func (a *Aggregator) Windows(ctx context.Context, districtID string, asOf time.Time, windows []int) ([]Stat, error) {
	if len(windows) == 0 {
		windows = DefaultWindows
	}

	out := make([]Stat, 0, len(windows))
	for _, w := range windows {
		s, err := a.RollingMean(ctx, districtID, w, asOf)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}
