package reading

import (
	"context"
	"sort"
	"sync"
	"time"
)

// InMemoryRepository is an in-memory implementation of Repository.
// This is intended for testing and single-process runs without a database.
type InMemoryRepository struct {
	mu       sync.RWMutex
	readings map[Key]Reading
}

var _ Repository = (*InMemoryRepository)(nil)

// NewInMemoryRepository creates a new in-memory reading repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		readings: make(map[Key]Reading),
	}
}

// Append stores one reading.
func (r *InMemoryRepository) Append(ctx context.Context, rd Reading) error {
	return r.AppendBatch(ctx, []Reading{rd})
}

// AppendBatch stores readings, validating all of them first.
func (r *InMemoryRepository) AppendBatch(_ context.Context, rs []Reading) error {
	for _, rd := range rs {
		if err := rd.Validate(); err != nil {
			return err
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, rd := range rs {
		rd.Timestamp = rd.Timestamp.UTC()
		r.readings[rd.Key()] = rd
	}
	return nil
}

// QueryRange returns readings for a district within [from, to].
func (r *InMemoryRepository) QueryRange(_ context.Context, districtID string, from, to time.Time) ([]Reading, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := []Reading{}
	for k, rd := range r.readings {
		if k.DistrictID != districtID {
			continue
		}
		if rd.Timestamp.Before(from) || rd.Timestamp.After(to) {
			continue
		}
		out = append(out, rd)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

// Timestamps returns the distinct reading timestamps within [from, to].
func (r *InMemoryRepository) Timestamps(_ context.Context, from, to time.Time) ([]time.Time, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[int64]bool)
	var out []time.Time
	for k, rd := range r.readings {
		if seen[k.Unix] || rd.Timestamp.Before(from) || rd.Timestamp.After(to) {
			continue
		}
		seen[k.Unix] = true
		out = append(out, rd.Timestamp)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out, nil
}

// Len returns the number of stored readings.
func (r *InMemoryRepository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.readings)
}
