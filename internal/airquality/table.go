package airquality

import (
	"fmt"
	"strings"
)

// Breakpoint maps the concentration band [Low, High] onto [IndexLow, IndexHigh].
type Breakpoint struct {
	Level     Level
	Low       float64
	High      float64
	IndexLow  int
	IndexHigh int
}

// Table is an ordered, non-overlapping set of breakpoints ascending on
// concentration.
type Table struct {
	Name string

	// RoundConcentration rounds the input to the nearest integer before the
	// band lookup. Tables written with integer-inclusive bands need it.
	RoundConcentration bool

	Breakpoints []Breakpoint
}

// DustTable is tuned for the regional dust regime: the index tracks the
// concentration up to 200 µg/m³ and rises steeply above it, reaching the
// upper hazardous band at 300 µg/m³.
var DustTable = Table{
	Name: "dust",
	Breakpoints: []Breakpoint{
		{Level: LevelGood, Low: 0, High: 50, IndexLow: 0, IndexHigh: 50},
		{Level: LevelModerate, Low: 50, High: 100, IndexLow: 51, IndexHigh: 100},
		{Level: LevelUnhealthyForSensitiveGroups, Low: 100, High: 150, IndexLow: 101, IndexHigh: 150},
		{Level: LevelUnhealthy, Low: 150, High: 200, IndexLow: 151, IndexHigh: 200},
		{Level: LevelVeryUnhealthy, Low: 200, High: 250, IndexLow: 201, IndexHigh: 300},
		{Level: LevelHazardous, Low: 250, High: 300, IndexLow: 301, IndexHigh: 400},
		{Level: LevelHazardous, Low: 300, High: 400, IndexLow: 401, IndexHigh: 500},
	},
}

// EPAPM10Table is the US EPA 24-hour PM10 breakpoint table.
var EPAPM10Table = Table{
	Name:               "epa_pm10",
	RoundConcentration: true,
	Breakpoints: []Breakpoint{
		{Level: LevelGood, Low: 0, High: 54, IndexLow: 0, IndexHigh: 50},
		{Level: LevelModerate, Low: 55, High: 154, IndexLow: 51, IndexHigh: 100},
		{Level: LevelUnhealthyForSensitiveGroups, Low: 155, High: 254, IndexLow: 101, IndexHigh: 150},
		{Level: LevelUnhealthy, Low: 255, High: 354, IndexLow: 151, IndexHigh: 200},
		{Level: LevelVeryUnhealthy, Low: 355, High: 424, IndexLow: 201, IndexHigh: 300},
		{Level: LevelHazardous, Low: 425, High: 504, IndexLow: 301, IndexHigh: 400},
		{Level: LevelHazardous, Low: 505, High: 604, IndexLow: 401, IndexHigh: 500},
	},
}

// TableByName returns a built-in table.
func TableByName(name string) (Table, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", DustTable.Name:
		return DustTable, nil
	case EPAPM10Table.Name, "epa":
		return EPAPM10Table, nil
	default:
		return Table{}, fmt.Errorf("%w: %q", ErrUnknownTable, name)
	}
}

// Validate checks ordering, band widths and level monotonicity.
func (t Table) Validate() error {
	if len(t.Breakpoints) == 0 {
		return fmt.Errorf("%w: %s has no breakpoints", ErrInvalidTable, t.Name)
	}
	for i, bp := range t.Breakpoints {
		if !bp.Level.Valid() {
			return fmt.Errorf("%w: breakpoint %d: %w", ErrInvalidTable, i, ErrUnknownLevel)
		}
		if bp.High <= bp.Low || bp.IndexHigh < bp.IndexLow {
			return fmt.Errorf("%w: breakpoint %d has an empty band", ErrInvalidTable, i)
		}
		if i == 0 {
			continue
		}
		prev := t.Breakpoints[i-1]
		if bp.Low < prev.High || bp.IndexLow <= prev.IndexHigh {
			return fmt.Errorf("%w: breakpoint %d overlaps its predecessor", ErrInvalidTable, i)
		}
		if bp.Level.Severity() < prev.Level.Severity() {
			return fmt.Errorf("%w: breakpoint %d lowers severity", ErrInvalidTable, i)
		}
	}
	return nil
}
