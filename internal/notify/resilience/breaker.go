// Package resilience wraps outbound HTTP calls of notification transports
// with a circuit breaker, bounded retries and per-transport health tracking.
package resilience

import (
	"net/http"
	"time"

	"github.com/sony/gobreaker/v2"
)

// BreakerConfig holds configuration for a transport's circuit breaker.
type BreakerConfig struct {
	// MaxRequests is the number of trial requests allowed while half-open.
	// Default: 1
	MaxRequests uint32

	// OpenTimeout is how long the breaker stays open before a trial.
	// Default: 60 seconds
	OpenTimeout time.Duration

	// MinRequests is the number of requests seen before the breaker may trip.
	// Default: 5
	MinRequests uint32

	// FailureRatio trips the breaker once reached. Default: 0.5
	FailureRatio float64

	// OnStateChange is called when the breaker changes state.
	OnStateChange func(name string, from, to gobreaker.State)
}

// DefaultBreakerConfig returns the default breaker configuration.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		MaxRequests:  1,
		OpenTimeout:  60 * time.Second,
		MinRequests:  5,
		FailureRatio: 0.5,
	}
}

// ReadyToTrip reports whether counts exceed the configured failure ratio.
func (c BreakerConfig) ReadyToTrip(counts gobreaker.Counts) bool {
	if counts.Requests == 0 || counts.Requests < c.MinRequests {
		return false
	}
	return float64(counts.TotalFailures)/float64(counts.Requests) >= c.FailureRatio
}

func (c BreakerConfig) withDefaults() BreakerConfig {
	def := DefaultBreakerConfig()
	if c.MaxRequests == 0 {
		c.MaxRequests = def.MaxRequests
	}
	if c.OpenTimeout <= 0 {
		c.OpenTimeout = def.OpenTimeout
	}
	if c.MinRequests == 0 {
		c.MinRequests = def.MinRequests
	}
	if c.FailureRatio <= 0 {
		c.FailureRatio = def.FailureRatio
	}
	return c
}

func newBreaker(name string, cfg BreakerConfig) *gobreaker.CircuitBreaker[*http.Response] {
	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: cfg.MaxRequests,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: cfg.ReadyToTrip,
	}
	if cfg.OnStateChange != nil {
		settings.OnStateChange = cfg.OnStateChange
	}
	return gobreaker.NewCircuitBreaker[*http.Response](settings) //nolint:bodyclose // type param, not response
}
