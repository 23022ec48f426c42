// Package snapshot assembles the per-district state published each cycle
// and writes the "now" and "alerts" artifacts atomically.
package snapshot

import (
	"fmt"
	"time"

	"github.com/Althuwaynee/iraqairquality/internal/airquality"
	"github.com/Althuwaynee/iraqairquality/internal/forecast"
)

// Missing markers.
const (
	MissingCurrent  = "current"
	MissingForecast = "forecast"
)

// MissingRolling returns the marker for an empty rolling window.
func MissingRolling(windowHours int) string {
	return fmt.Sprintf("rolling_%dh", windowHours)
}

// Current is the reading nearest the reference time.
type Current struct {
	PM10          float64   `json:"pm10"`
	Timestamp     time.Time `json:"timestamp"`
	PointsUsed    int       `json:"points_used"`
	AvgDistanceKm float64   `json:"avg_distance_km"`
	Method        string    `json:"method"`
}

// RollingMean is one published rolling window.
type RollingMean struct {
	WindowHours int       `json:"window_hours"`
	Mean        *float64  `json:"mean"`
	SampleCount int       `json:"sample_count"`
	MaxSamples  int       `json:"max_samples"`
	WindowStart time.Time `json:"window_start"`
}

// DistrictSnapshot is the published state of one district. A district whose
// inputs are missing is still present, with the gaps listed in Missing.
type DistrictSnapshot struct {
	DistrictID   string                     `json:"district_id"`
	DistrictName string                     `json:"district_name"`
	ProvinceID   string                     `json:"province_id"`
	ProvinceName string                     `json:"province_name"`
	Latitude     float64                    `json:"latitude"`
	Longitude    float64                    `json:"longitude"`
	Current      *Current                   `json:"current"`
	Rolling      []RollingMean              `json:"rolling"`
	AQI          *airquality.AQIState       `json:"aqi"`
	Compliance   airquality.ComplianceState `json:"compliance"`
	DustStorm    bool                       `json:"dust_storm"`
	Forecast     []forecast.Point           `json:"forecast"`
	Missing      []string                   `json:"missing"`
}

// Level returns the current AQI level, if there is a current reading.
func (d DistrictSnapshot) Level() (airquality.Level, bool) {
	if d.AQI == nil {
		return "", false
	}
	return d.AQI.Level, true
}

// RollingWindow returns the rolling mean for a window.
func (d DistrictSnapshot) RollingWindow(windowHours int) (RollingMean, bool) {
	for _, r := range d.Rolling {
		if r.WindowHours == windowHours {
			return r, true
		}
	}
	return RollingMean{}, false
}

// IsComplete reports whether nothing was missing.
func (d DistrictSnapshot) IsComplete() bool {
	return len(d.Missing) == 0
}
