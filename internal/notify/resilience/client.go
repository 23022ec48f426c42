package resilience

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"
)

// Client errors.
var (
	// ErrCircuitOpen is returned without calling the transport while its
	// breaker is open.
	ErrCircuitOpen = errors.New("circuit breaker is open")

	// ErrBodyNotReplayable is returned when a request with a body cannot be
	// retried because it has no GetBody.
	ErrBodyNotReplayable = errors.New("request body cannot be replayed")
)

// ClientConfig holds configuration for the resilient HTTP client.
type ClientConfig struct {
	// Name identifies the transport in logs and health reports.
	Name string

	// Timeout bounds each HTTP attempt. Default: 10 seconds
	Timeout time.Duration

	// MaxRetries is the number of retries after the first attempt.
	// Zero disables retries.
	MaxRetries uint64

	// InitialInterval is the first retry pause. Default: 200ms
	InitialInterval time.Duration

	// MaxInterval caps the retry pause. Default: 5 seconds
	MaxInterval time.Duration

	Breaker BreakerConfig

	// Health, if set, receives the outcome of every call.
	Health *HealthRegistry

	Logger zerolog.Logger
}

// DefaultClientConfig returns the default configuration for a transport.
func DefaultClientConfig(name string) ClientConfig {
	return ClientConfig{
		Name:            name,
		Timeout:         10 * time.Second,
		MaxRetries:      3,
		InitialInterval: 200 * time.Millisecond,
		MaxInterval:     5 * time.Second,
		Breaker:         DefaultBreakerConfig(),
	}
}

// Client is an HTTP client with circuit breaker and retry logic.
type Client struct {
	name       string
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker[*http.Response]
	config     ClientConfig
}

// NewClient creates a resilient HTTP client and registers it with the
// configured health registry.
func NewClient(cfg ClientConfig) *Client {
	def := DefaultClientConfig(cfg.Name)
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.InitialInterval <= 0 {
		cfg.InitialInterval = def.InitialInterval
	}
	if cfg.MaxInterval <= 0 {
		cfg.MaxInterval = def.MaxInterval
	}
	cfg.Breaker = cfg.Breaker.withDefaults()
	if cfg.Breaker.OnStateChange == nil {
		logger := cfg.Logger
		cfg.Breaker.OnStateChange = func(name string, from, to gobreaker.State) {
			logger.Warn().
				Str("transport", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("circuit breaker state changed")
		}
	}

	c := &Client{
		name:       cfg.Name,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		breaker:    newBreaker(cfg.Name, cfg.Breaker),
		config:     cfg,
	}
	if cfg.Health != nil {
		cfg.Health.Register(cfg.Name, c)
	}
	return c
}

// Name returns the transport name.
func (c *Client) Name() string {
	return c.name
}

// Do executes req through the breaker. Network errors, 429 and 5xx
// responses are retried with exponential backoff; other responses are
// returned as is. When retries are exhausted on a status error the last
// response is returned with a nil error so the caller can read it.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	if req.Body != nil && req.Body != http.NoBody && req.GetBody == nil && c.config.MaxRetries > 0 {
		return nil, ErrBodyNotReplayable
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.config.InitialInterval
	bo.MaxInterval = c.config.MaxInterval
	bo.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(bo, c.config.MaxRetries), ctx)

	var lastResp *http.Response
	attempt := 0

	operation := func() error {
		attempt++
		if lastResp != nil {
			lastResp.Body.Close()
			lastResp = nil
		}

		attemptReq := req.Clone(ctx)
		if attempt > 1 && req.GetBody != nil {
			body, err := req.GetBody()
			if err != nil {
				return backoff.Permanent(fmt.Errorf("replaying request body: %w", err))
			}
			attemptReq.Body = body
		}

		resp, err := c.breaker.Execute(func() (*http.Response, error) { //nolint:bodyclose // caller closes
			r, err := c.httpClient.Do(attemptReq)
			if err != nil {
				return nil, err
			}
			if r.StatusCode >= 500 || r.StatusCode == http.StatusTooManyRequests {
				return r, &StatusError{StatusCode: r.StatusCode}
			}
			return r, nil
		})
		if err != nil {
			if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
				return backoff.Permanent(ErrCircuitOpen)
			}
			lastResp = resp
			c.config.Logger.Debug().
				Err(err).
				Str("transport", c.name).
				Int("attempt", attempt).
				Msg("transport attempt failed")
			return err
		}

		lastResp = resp
		return nil
	}

	err := backoff.Retry(operation, policy)
	if err != nil {
		c.recordFailure(err)
		if lastResp != nil && ctx.Err() == nil {
			return lastResp, nil
		}
		if lastResp != nil {
			lastResp.Body.Close()
		}
		return nil, err
	}

	c.recordSuccess()
	return lastResp, nil
}

func (c *Client) recordSuccess() {
	if c.config.Health != nil {
		c.config.Health.RecordSuccess(c.name)
	}
}

func (c *Client) recordFailure(err error) {
	if c.config.Health != nil {
		c.config.Health.RecordFailure(c.name, err)
	}
}

// StatusError is a retryable HTTP status: 429 or 5xx.
type StatusError struct {
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("transport status %d: %s", e.StatusCode, http.StatusText(e.StatusCode))
}

// BreakerState returns the current state of the circuit breaker.
func (c *Client) BreakerState() gobreaker.State {
	return c.breaker.State()
}

// BreakerCounts returns the current counts of the circuit breaker.
func (c *Client) BreakerCounts() gobreaker.Counts {
	return c.breaker.Counts()
}
