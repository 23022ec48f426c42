package subscriber

import (
	"context"
	"sort"
	"sync"
	"time"
)

// InMemoryRepository is an in-memory implementation of Repository.
// This is intended for testing and single-process runs. Production should
// use the PostgreSQL or SQLite implementation.
type InMemoryRepository struct {
	mu          sync.RWMutex
	subscribers map[string]*Subscriber
}

// NewInMemoryRepository creates a new in-memory subscriber repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		subscribers: make(map[string]*Subscriber),
	}
}

// Get retrieves a subscriber by ID.
func (r *InMemoryRepository) Get(_ context.Context, id string) (*Subscriber, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.subscribers[id]
	if !ok {
		return nil, ErrSubscriberNotFound
	}
	return copySubscriber(s), nil
}

// List returns subscribers ordered by ID.
func (r *InMemoryRepository) List(_ context.Context, opts ListOptions) ([]*Subscriber, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	items := make([]*Subscriber, 0, len(r.subscribers))
	for _, s := range r.subscribers {
		if opts.ActiveOnly && !s.Active {
			continue
		}
		items = append(items, copySubscriber(s))
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	return items, nil
}

// Upsert stores a location share.
func (r *InMemoryRepository) Upsert(_ context.Context, s *Subscriber) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.subscribers[s.ID]; ok {
		existing.Latitude = s.Latitude
		existing.Longitude = s.Longitude
		existing.NearestDistrictID = s.NearestDistrictID
		existing.Active = true
		existing.UpdatedAt = s.UpdatedAt
		return false, nil
	}

	created := copySubscriber(s)
	created.Active = true
	if created.Language == "" {
		created.Language = DefaultLanguage
	}
	r.subscribers[s.ID] = created
	return true, nil
}

// SetActive toggles whether the subscriber receives alerts.
func (r *InMemoryRepository) SetActive(_ context.Context, id string, active bool, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.subscribers[id]
	if !ok {
		return ErrSubscriberNotFound
	}
	s.Active = active
	s.UpdatedAt = at
	return nil
}

// SetLanguage changes the notification language.
func (r *InMemoryRepository) SetLanguage(_ context.Context, id string, lang Language, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.subscribers[id]
	if !ok {
		return ErrSubscriberNotFound
	}
	s.Language = lang
	s.UpdatedAt = at
	return nil
}

// RecordAlert stores the state of a delivered notification.
func (r *InMemoryRepository) RecordAlert(_ context.Context, id string, rec AlertRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.subscribers[id]
	if !ok {
		return ErrSubscriberNotFound
	}
	at, ref := rec.At, rec.ReferenceTime
	s.NearestDistrictID = rec.DistrictID
	s.LastAlertLevel = rec.Level
	s.LastAlertAt = &at
	s.LastAlertReference = &ref
	s.UpdatedAt = at
	return nil
}

// Ensure InMemoryRepository implements Repository interface.
var _ Repository = (*InMemoryRepository)(nil)
