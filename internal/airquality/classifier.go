package airquality

import (
	"fmt"
	"math"
)

// ClassifierConfig holds configuration for the classifier.
type ClassifierConfig struct {
	// Table is the breakpoint table. Default: DustTable.
	Table Table

	// ComplianceLimit is the national 24h PM10 limit in µg/m³. Default: 150.
	ComplianceLimit float64
}

// DefaultClassifierConfig returns the default configuration.
func DefaultClassifierConfig() ClassifierConfig {
	return ClassifierConfig{
		Table:           DustTable,
		ComplianceLimit: 150,
	}
}

// Classifier maps concentrations to AQI states. It holds no mutable state.
type Classifier struct {
	table Table
	limit float64
}

// NewClassifier creates a Classifier, filling zero fields from the defaults.
func NewClassifier(cfg ClassifierConfig) (*Classifier, error) {
	if len(cfg.Table.Breakpoints) == 0 {
		cfg.Table = DefaultClassifierConfig().Table
	}
	if cfg.ComplianceLimit <= 0 {
		cfg.ComplianceLimit = DefaultClassifierConfig().ComplianceLimit
	}
	if err := cfg.Table.Validate(); err != nil {
		return nil, err
	}
	return &Classifier{table: cfg.Table, limit: cfg.ComplianceLimit}, nil
}

// TableName returns the name of the breakpoint table in use.
func (c *Classifier) TableName() string {
	return c.table.Name
}

// ComplianceLimit returns the configured limit in µg/m³.
func (c *Classifier) ComplianceLimit() float64 {
	return c.limit
}

// Classify converts a PM10 concentration in µg/m³ to an AQI state.
// Negative inputs are clipped to zero; values above the table saturate at
// the last band's upper index.
func (c *Classifier) Classify(concentration float64) (AQIState, error) {
	if math.IsNaN(concentration) || math.IsInf(concentration, 0) {
		return AQIState{}, fmt.Errorf("%w: %v", ErrInvalidConcentration, concentration)
	}

	x := math.Max(concentration, 0)
	if c.table.RoundConcentration {
		x = math.Round(x)
	}

	bps := c.table.Breakpoints
	idx := 0
	for i := range bps {
		if x >= bps[i].Low {
			idx = i
		}
	}
	bp := bps[idx]

	if x >= bp.High {
		if idx == len(bps)-1 {
			return AQIState{Value: bp.IndexHigh, Level: bp.Level}, nil
		}
		x = bp.High
	}

	frac := (x - bp.Low) / (bp.High - bp.Low)
	value := float64(bp.IndexLow) + frac*float64(bp.IndexHigh-bp.IndexLow)

	return AQIState{Value: int(math.Round(value)), Level: bp.Level}, nil
}

// Compliance judges a 24h mean against the configured limit.
// A nil mean (empty window) yields ComplianceNoData.
func (c *Classifier) Compliance(mean24h *float64) ComplianceState {
	state := ComplianceState{LimitUgM3: c.limit}
	switch {
	case mean24h == nil:
		state.Status = ComplianceNoData
	case *mean24h > c.limit:
		state.Status = ComplianceExceeded
	default:
		state.Status = ComplianceCompliant
	}
	return state
}
