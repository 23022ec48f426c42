package grid

import (
	"fmt"
	"math"
	"sort"

	"github.com/golang/geo/s2"

	"github.com/Althuwaynee/iraqairquality/internal/district"
)

// Reducer names.
const (
	MethodConstrainedIDW = "constrained_idw"
	MethodNearestCell    = "nearest_cell"
	MethodZonalMean      = "zonal_mean"
)

// Reducer turns the cells of one frame into a single district value.
// It reports false when no cell can be attributed to the district.
type Reducer interface {
	Name() string
	Reduce(d district.District, f *Frame) (Sample, bool)
}

// IDWConfig holds configuration for constrained inverse distance weighting.
type IDWConfig struct {
	// K is the number of nearest cells used. Default: 4.
	K int

	// MaxDistanceKm ignores cells farther than this. Default: 55.
	MaxDistanceKm float64

	// Power is the inverse distance exponent. Default: 2.
	Power float64

	// MinDistanceKm replaces smaller distances so a cell on the centroid
	// does not divide by zero. Default: 0.001.
	MinDistanceKm float64
}

// DefaultIDWConfig returns the default configuration.
func DefaultIDWConfig() IDWConfig {
	return IDWConfig{
		K:             4,
		MaxDistanceKm: 55,
		Power:         2,
		MinDistanceKm: 0.001,
	}
}

// ConstrainedIDW interpolates the district centroid from its K nearest cells
// within MaxDistanceKm, weighting each by 1/d^Power.
type ConstrainedIDW struct {
	config IDWConfig
}

// NewConstrainedIDW creates a ConstrainedIDW, filling zero fields from the defaults.
func NewConstrainedIDW(config IDWConfig) *ConstrainedIDW {
	def := DefaultIDWConfig()
	if config.K <= 0 {
		config.K = def.K
	}
	if config.MaxDistanceKm <= 0 {
		config.MaxDistanceKm = def.MaxDistanceKm
	}
	if config.Power <= 0 {
		config.Power = def.Power
	}
	if config.MinDistanceKm <= 0 {
		config.MinDistanceKm = def.MinDistanceKm
	}
	return &ConstrainedIDW{config: config}
}

// Name returns the method name recorded with each reading.
func (r *ConstrainedIDW) Name() string { return MethodConstrainedIDW }

// MaxDistanceKm returns the search radius.
func (r *ConstrainedIDW) MaxDistanceKm() float64 { return r.config.MaxDistanceKm }

// Reduce implements Reducer.
func (r *ConstrainedIDW) Reduce(d district.District, f *Frame) (Sample, bool) {
	near := nearestCells(d.Lat, d.Lon, f.Cells, r.config.MaxDistanceKm, r.config.K)
	if len(near) == 0 {
		return Sample{}, false
	}

	var weighted, totalWeight, totalDist float64
	for _, cd := range near {
		dist := math.Max(cd.distance, r.config.MinDistanceKm)
		w := 1.0 / math.Pow(dist, r.config.Power)
		weighted += w * cd.cell.Value
		totalWeight += w
		totalDist += cd.distance
	}

	return Sample{
		Value:         weighted / totalWeight,
		PointsUsed:    len(near),
		AvgDistanceKm: totalDist / float64(len(near)),
		Method:        MethodConstrainedIDW,
		FrameTime:     f.Time,
	}, true
}

// NearestCell takes the value of the single closest cell.
type NearestCell struct {
	maxDistanceKm float64
}

// NewNearestCell creates a NearestCell reducer; maxDistanceKm <= 0 uses 55 km.
func NewNearestCell(maxDistanceKm float64) *NearestCell {
	if maxDistanceKm <= 0 {
		maxDistanceKm = DefaultIDWConfig().MaxDistanceKm
	}
	return &NearestCell{maxDistanceKm: maxDistanceKm}
}

// Name returns the method name recorded with each reading.
func (r *NearestCell) Name() string { return MethodNearestCell }

// Reduce implements Reducer.
func (r *NearestCell) Reduce(d district.District, f *Frame) (Sample, bool) {
	near := nearestCells(d.Lat, d.Lon, f.Cells, r.maxDistanceKm, 1)
	if len(near) == 0 {
		return Sample{}, false
	}
	return Sample{
		Value:         near[0].cell.Value,
		PointsUsed:    1,
		AvgDistanceKm: near[0].distance,
		Method:        MethodNearestCell,
		FrameTime:     f.Time,
	}, true
}

// ZonalMean averages the cells inside the district polygon. Districts smaller
// than a grid cell, or without a boundary, fall back to the nearest cell.
type ZonalMean struct {
	fallback *NearestCell
}

// NewZonalMean creates a ZonalMean reducer.
func NewZonalMean(maxDistanceKm float64) *ZonalMean {
	return &ZonalMean{fallback: NewNearestCell(maxDistanceKm)}
}

// Name returns the method name recorded with each reading.
func (r *ZonalMean) Name() string { return MethodZonalMean }

// Reduce implements Reducer.
func (r *ZonalMean) Reduce(d district.District, f *Frame) (Sample, bool) {
	if d.HasBoundary() {
		var sum, dist float64
		n := 0
		for _, c := range f.Cells {
			if d.Contains(c.Lat, c.Lon) {
				sum += c.Value
				dist += greatCircleKm(d.Lat, d.Lon, c.Lat, c.Lon)
				n++
			}
		}
		if n > 0 {
			return Sample{
				Value:         sum / float64(n),
				PointsUsed:    n,
				AvgDistanceKm: dist / float64(n),
				Method:        MethodZonalMean,
				FrameTime:     f.Time,
			}, true
		}
	}

	s, ok := r.fallback.Reduce(d, f)
	if ok {
		s.Method = MethodZonalMean
	}
	return s, ok
}

// NewReducer returns a reducer by method name.
func NewReducer(method string, idw IDWConfig) (Reducer, error) {
	switch method {
	case "", MethodConstrainedIDW, "idw":
		return NewConstrainedIDW(idw), nil
	case MethodNearestCell, "nearest":
		return NewNearestCell(idw.MaxDistanceKm), nil
	case MethodZonalMean, "zonal":
		return NewZonalMean(idw.MaxDistanceKm), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownReducer, method)
	}
}

type cellDistance struct {
	cell     Cell
	distance float64
}

// nearestCells returns up to k cells within maxKm, closest first. Cells with
// non-finite values are skipped.
func nearestCells(lat, lon float64, cells []Cell, maxKm float64, k int) []cellDistance {
	var candidates []cellDistance
	for _, c := range cells {
		if math.IsNaN(c.Value) || math.IsInf(c.Value, 0) {
			continue
		}
		dist := greatCircleKm(lat, lon, c.Lat, c.Lon)
		if dist <= maxKm {
			candidates = append(candidates, cellDistance{cell: c, distance: dist})
		}
	}

	sort.SliceStable(candidates, func(a, b int) bool {
		return candidates[a].distance < candidates[b].distance
	})

	if len(candidates) > k {
		candidates = candidates[:k]
	}
	return candidates
}

func greatCircleKm(lat1, lon1, lat2, lon2 float64) float64 {
	p1 := s2.LatLngFromDegrees(lat1, lon1)
	p2 := s2.LatLngFromDegrees(lat2, lon2)
	return p1.Distance(p2).Radians() * district.EarthRadiusKm
}
