// Package airquality classifies PM10 concentrations into AQI values, health
// levels, regulatory compliance and dust-storm conditions.
package airquality

import (
	"errors"
	"fmt"
)

// Classification errors.
var (
	ErrInvalidConcentration = errors.New("invalid concentration")
	ErrUnknownLevel         = errors.New("unknown aqi level")
	ErrUnknownTable         = errors.New("unknown aqi table")
	ErrInvalidTable         = errors.New("invalid aqi table")
)

// Level is an AQI health category.
type Level string

const (
	LevelGood                        Level = "good"
	LevelModerate                    Level = "moderate"
	LevelUnhealthyForSensitiveGroups Level = "unhealthy_for_sensitive_groups"
	LevelUnhealthy                   Level = "unhealthy"
	LevelVeryUnhealthy               Level = "very_unhealthy"
	LevelHazardous                   Level = "hazardous"
)

// levels is ordered by ascending severity.
var levels = []Level{
	LevelGood,
	LevelModerate,
	LevelUnhealthyForSensitiveGroups,
	LevelUnhealthy,
	LevelVeryUnhealthy,
	LevelHazardous,
}

// Levels returns all levels in ascending severity.
func Levels() []Level {
	out := make([]Level, len(levels))
	copy(out, levels)
	return out
}

// Severity returns the rank of the level, 0 for good up to 5 for hazardous.
// Unknown levels return -1.
func (l Level) Severity() int {
	for i, candidate := range levels {
		if candidate == l {
			return i
		}
	}
	return -1
}

// Valid reports whether l is one of the known levels.
func (l Level) Valid() bool {
	return l.Severity() >= 0
}

// ParseLevel converts a string to a Level.
func ParseLevel(s string) (Level, error) {
	l := Level(s)
	if !l.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownLevel, s)
	}
	return l, nil
}

// AQIState is the index value and category for one concentration.
type AQIState struct {
	Value int   `json:"value"`
	Level Level `json:"level"`
}

// ComplianceStatus is the outcome of comparing a 24h mean to the national limit.
type ComplianceStatus string

const (
	ComplianceCompliant ComplianceStatus = "compliant"
	ComplianceExceeded  ComplianceStatus = "exceeded"
	ComplianceNoData    ComplianceStatus = "no_data"
)

// ComplianceState pairs a compliance status with the limit it was judged against.
type ComplianceState struct {
	Status    ComplianceStatus `json:"status"`
	LimitUgM3 float64          `json:"limit_ug_m3"`
}

// Dust-storm thresholds.
const (
	DustStormPM10 = 300.0
	DustStormAQI  = 200
)

// IsDustStorm reports whether a reading or forecast point is a dust storm.
// Evaluated independently of the rolling means.
func IsDustStorm(pm10 float64, aqi int) bool {
	return pm10 >= DustStormPM10 || aqi >= DustStormAQI
}
