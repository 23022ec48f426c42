// Package worker runs pipeline cycles: ingest grid frames into the hourly
// store, build district snapshots, publish the artifacts, and dispatch
// subscriber alerts. A cycle is triggered externally, by the CLI, cron, or a
// Pub/Sub message.
package worker

import (
	"time"
)

// CycleConfig holds configuration for pipeline cycles.
type CycleConfig struct {
	// Lookback is how far before the reference time each cycle re-ingests,
	// so late-arriving frames are picked up.
	// Default: 24 hours
	Lookback time.Duration

	// Lookahead is how far past the reference time each cycle ingests, so
	// model forecast frames are stored for the forecast generator.
	// Default: 24 hours
	Lookahead time.Duration

	// Resolution is the step the reference time is truncated to.
	// Default: 3 hours
	Resolution time.Duration

	// Timeout bounds a whole cycle.
	// Default: 10 minutes
	Timeout time.Duration

	// SkipAlerts publishes artifacts without dispatching notifications.
	SkipAlerts bool
}

// DefaultCycleConfig returns the default cycle configuration.
func DefaultCycleConfig() CycleConfig {
	return CycleConfig{
		Lookback:   24 * time.Hour,
		Lookahead:  24 * time.Hour,
		Resolution: 3 * time.Hour,
		Timeout:    10 * time.Minute,
	}
}

func (c CycleConfig) withDefaults() CycleConfig {
	def := DefaultCycleConfig()
	if c.Lookback <= 0 {
		c.Lookback = def.Lookback
	}
	if c.Lookahead <= 0 {
		c.Lookahead = def.Lookahead
	}
	if c.Resolution <= 0 {
		c.Resolution = def.Resolution
	}
	if c.Timeout <= 0 {
		c.Timeout = def.Timeout
	}
	return c
}

// ReferenceTime returns the cycle reference time for now: now in UTC,
// truncated to the resolution.
func (c CycleConfig) ReferenceTime(now time.Time) time.Time {
	res := c.Resolution
	if res <= 0 {
		res = DefaultCycleConfig().Resolution
	}
	return now.UTC().Truncate(res)
}
