// Package grid samples the gridded dust concentration field onto districts.
package grid

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"
)

// Grid errors.
var (
	// ErrMissingData means no grid value could be attributed to the district
	// at the requested time. Callers treat it as absence, never as zero.
	ErrMissingData = errors.New("no grid data within tolerance")

	// ErrFrameNotFound is returned by a Source for an unknown timestamp.
	ErrFrameNotFound = errors.New("grid frame not found")

	ErrUnknownReducer = errors.New("unknown zonal reducer")
)

// Cell is one grid point. Value is PM10 dust concentration in µg/m³.
type Cell struct {
	Lat   float64
	Lon   float64
	Value float64
}

// Frame is the whole grid at one timestamp.
type Frame struct {
	Time  time.Time
	Cells []Cell
}

// Sample is a district value reduced from one frame.
type Sample struct {
	Value         float64
	PointsUsed    int
	AvgDistanceKm float64
	Method        string
	FrameTime     time.Time
}

// Source provides grid frames. Implementations must be safe for concurrent use.
type Source interface {
	// Timestamps returns frame times within [from, to], ascending.
	Timestamps(ctx context.Context, from, to time.Time) ([]time.Time, error)

	// Frame returns the frame at exactly t, or ErrFrameNotFound.
	Frame(ctx context.Context, t time.Time) (*Frame, error)
}

// MemorySource is an in-memory Source, used in tests and for frames decoded
// straight from a NetCDF file.
type MemorySource struct {
	mu     sync.RWMutex
	frames map[int64]*Frame
}

// NewMemorySource creates a MemorySource holding the given frames.
func NewMemorySource(frames ...Frame) *MemorySource {
	s := &MemorySource{frames: make(map[int64]*Frame)}
	for _, f := range frames {
		s.Put(f)
	}
	return s
}

// Put stores or replaces a frame.
func (s *MemorySource) Put(f Frame) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cells := make([]Cell, len(f.Cells))
	copy(cells, f.Cells)
	t := f.Time.UTC()
	s.frames[t.Unix()] = &Frame{Time: t, Cells: cells}
}

// Timestamps returns frame times within [from, to], ascending.
func (s *MemorySource) Timestamps(_ context.Context, from, to time.Time) ([]time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []time.Time
	for _, f := range s.frames {
		if !f.Time.Before(from) && !f.Time.After(to) {
			out = append(out, f.Time)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out, nil
}

// Frame returns the frame at exactly t.
func (s *MemorySource) Frame(_ context.Context, t time.Time) (*Frame, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	f, ok := s.frames[t.UTC().Unix()]
	if !ok {
		return nil, ErrFrameNotFound
	}
	return f, nil
}
