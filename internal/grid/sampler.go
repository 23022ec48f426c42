package grid

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/Althuwaynee/iraqairquality/internal/district"
)

// SamplerConfig holds configuration for the Sampler.
type SamplerConfig struct {
	Source  Source
	Reducer Reducer
	Logger  zerolog.Logger

	// Tolerance is how far before the requested time a frame may lie.
	// Default: 90 minutes, half the 3-hourly model step.
	Tolerance time.Duration

	// CacheSize caps the number of decoded frames kept in memory.
	// Default: 16.
	CacheSize int
}

// DefaultSamplerConfig returns the default sampler configuration.
func DefaultSamplerConfig() SamplerConfig {
	return SamplerConfig{
		Tolerance: 90 * time.Minute,
		CacheSize: 16,
	}
}

// Sampler extracts district concentrations from grid frames.
type Sampler struct {
	source    Source
	reducer   Reducer
	logger    zerolog.Logger
	tolerance time.Duration
	cacheSize int

	mu    sync.Mutex
	cache map[int64]*Frame
	order []int64
}

// NewSampler creates a new Sampler.
func NewSampler(cfg SamplerConfig) (*Sampler, error) {
	if cfg.Source == nil {
		return nil, errors.New("grid sampler requires a source")
	}
	def := DefaultSamplerConfig()
	if cfg.Reducer == nil {
		cfg.Reducer = NewConstrainedIDW(DefaultIDWConfig())
	}
	if cfg.Tolerance <= 0 {
		cfg.Tolerance = def.Tolerance
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = def.CacheSize
	}

	return &Sampler{
		source:    cfg.Source,
		reducer:   cfg.Reducer,
		logger:    cfg.Logger,
		tolerance: cfg.Tolerance,
		cacheSize: cfg.CacheSize,
		cache:     make(map[int64]*Frame),
	}, nil
}

// Method returns the name of the zonal reducer in use.
func (s *Sampler) Method() string {
	return s.reducer.Name()
}

// Timestamps lists the grid frame times within [from, to].
func (s *Sampler) Timestamps(ctx context.Context, from, to time.Time) ([]time.Time, error) {
	ts, err := s.source.Timestamps(ctx, from.UTC(), to.UTC())
	if err != nil {
		return nil, fmt.Errorf("listing grid timestamps: %w", err)
	}
	return ts, nil
}

// FrameTime returns the frame timestamp closest to, and not after, t within
// the tolerance. ErrMissingData is returned when there is none.
func (s *Sampler) FrameTime(ctx context.Context, t time.Time) (time.Time, error) {
	t = t.UTC()
	ts, err := s.Timestamps(ctx, t.Add(-s.tolerance), t)
	if err != nil {
		return time.Time{}, err
	}
	if len(ts) == 0 {
		return time.Time{}, ErrMissingData
	}
	return ts[len(ts)-1], nil
}

// Sample reduces the grid at t onto the district. A district with no usable
// cell near it yields ErrMissingData, never a zero value.
func (s *Sampler) Sample(ctx context.Context, d district.District, t time.Time) (Sample, error) {
	ft, err := s.FrameTime(ctx, t)
	if err != nil {
		return Sample{}, err
	}

	frame, err := s.frame(ctx, ft)
	if err != nil {
		if errors.Is(err, ErrFrameNotFound) {
			return Sample{}, ErrMissingData
		}
		return Sample{}, err
	}

	sample, ok := s.reducer.Reduce(d, frame)
	if !ok {
		return Sample{}, ErrMissingData
	}
	return sample, nil
}

func (s *Sampler) frame(ctx context.Context, t time.Time) (*Frame, error) {
	key := t.Unix()

	s.mu.Lock()
	if f, ok := s.cache[key]; ok {
		s.mu.Unlock()
		return f, nil
	}
	s.mu.Unlock()

	f, err := s.source.Frame(ctx, t)
	if err != nil {
		return nil, fmt.Errorf("loading grid frame %s: %w", t.Format(time.RFC3339), err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.cache[key]; !ok {
		s.cache[key] = f
		s.order = append(s.order, key)
		if len(s.order) > s.cacheSize {
			evict := s.order[0]
			s.order = s.order[1:]
			delete(s.cache, evict)
		}
		s.logger.Debug().
			Time("frame_time", t).
			Int("cells", len(f.Cells)).
			Msg("grid frame loaded")
	}
	return s.cache[key], nil
}

// Reset drops cached frames. Ingest calls it before every run because the
// grid store overwrites frames in place.
func (s *Sampler) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache = make(map[int64]*Frame)
	s.order = nil
}
