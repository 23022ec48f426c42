package resilience

import (
	"sort"
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"
)

// TransportHealth is the health of one notification transport.
type TransportHealth struct {
	Name          string           `json:"name"`
	State         string           `json:"state"`
	Counts        gobreaker.Counts `json:"-"`
	LastSuccessAt *time.Time       `json:"last_success_at,omitempty"`
	LastFailureAt *time.Time       `json:"last_failure_at,omitempty"`
	LastError     string           `json:"last_error,omitempty"`
}

// Healthy reports whether the breaker is closed.
func (h *TransportHealth) Healthy() bool {
	return h.State == gobreaker.StateClosed.String()
}

// HealthRegistry tracks registered transports and their last outcomes.
type HealthRegistry struct {
	mu         sync.RWMutex
	transports map[string]*transportEntry
	now        func() time.Time
}

type transportEntry struct {
	client        *Client
	lastSuccessAt *time.Time
	lastFailureAt *time.Time
	lastError     string
}

// NewHealthRegistry creates an empty registry.
func NewHealthRegistry() *HealthRegistry {
	return &HealthRegistry{
		transports: make(map[string]*transportEntry),
		now:        time.Now,
	}
}

// Register adds a transport client. Registering a name again replaces it.
func (r *HealthRegistry) Register(name string, client *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transports[name] = &transportEntry{client: client}
}

// RecordSuccess records a successful call.
func (r *HealthRegistry) RecordSuccess(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.transports[name]; ok {
		now := r.now()
		e.lastSuccessAt = &now
	}
}

// RecordFailure records a failed call.
func (r *HealthRegistry) RecordFailure(name string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.transports[name]; ok {
		now := r.now()
		e.lastFailureAt = &now
		if err != nil {
			e.lastError = err.Error()
		}
	}
}

// Get returns the health of one transport, or nil if unknown.
func (r *HealthRegistry) Get(name string) *TransportHealth {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.transports[name]
	if !ok {
		return nil
	}
	return e.health(name)
}

// All returns the health of every transport, ordered by name.
func (r *HealthRegistry) All() []*TransportHealth {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*TransportHealth, 0, len(r.transports))
	for name, e := range r.transports {
		out = append(out, e.health(name))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (e *transportEntry) health(name string) *TransportHealth {
	return &TransportHealth{
		Name:          name,
		State:         e.client.BreakerState().String(),
		Counts:        e.client.BreakerCounts(),
		LastSuccessAt: e.lastSuccessAt,
		LastFailureAt: e.lastFailureAt,
		LastError:     e.lastError,
	}
}
