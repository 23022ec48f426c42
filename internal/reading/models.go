// Package reading is the hourly store: the per-district PM10 time series
// sampled from the grid, and the ingest and backfill jobs that fill it.
package reading

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// Reading errors.
var (
	ErrInvalidReading = errors.New("invalid reading")
)

// Reading is one district concentration at one timestamp. At most one
// reading exists per (DistrictID, Timestamp); later writes replace earlier ones.
type Reading struct {
	DistrictID    string    `json:"district_id"`
	Timestamp     time.Time `json:"timestamp"`
	PM10          float64   `json:"pm10"`
	PointsUsed    int       `json:"points_used"`
	AvgDistanceKm float64   `json:"avg_distance_km"`
	Method        string    `json:"method"`
}

// Key returns the uniqueness key of the reading.
func (r Reading) Key() Key {
	return Key{DistrictID: r.DistrictID, Unix: r.Timestamp.Unix()}
}

// Validate checks the reading can be stored.
func (r Reading) Validate() error {
	if r.DistrictID == "" {
		return fmt.Errorf("%w: empty district id", ErrInvalidReading)
	}
	if r.Timestamp.IsZero() {
		return fmt.Errorf("%w: zero timestamp for %s", ErrInvalidReading, r.DistrictID)
	}
	if math.IsNaN(r.PM10) || math.IsInf(r.PM10, 0) || r.PM10 < 0 {
		return fmt.Errorf("%w: concentration %v for %s", ErrInvalidReading, r.PM10, r.DistrictID)
	}
	return nil
}

// Key identifies a reading.
type Key struct {
	DistrictID string
	Unix       int64
}

// Nearest returns the reading closest to t within tolerance on either side.
// Ties go to the earlier reading.
func Nearest(readings []Reading, t time.Time, tolerance time.Duration) (Reading, bool) {
	var (
		best     Reading
		bestDiff time.Duration = -1
	)
	for _, r := range readings {
		diff := r.Timestamp.Sub(t)
		if diff < 0 {
			diff = -diff
		}
		if diff > tolerance {
			continue
		}
		if bestDiff < 0 || diff < bestDiff {
			best, bestDiff = r, diff
		}
	}
	return best, bestDiff >= 0
}
