package district

import (
	"fmt"
	"math"

	"github.com/Althuwaynee/iraqairquality/internal/validation"
)

// EarthRadiusKm is the mean Earth radius used for great-circle distances.
const EarthRadiusKm = 6371.0

// Registry is a read-only catalog of districts. Safe for concurrent use.
type Registry struct {
	districts []District
	index     map[string]int
}

// New validates the districts and builds a registry preserving their order.
func New(districts []District) (*Registry, error) {
	r := &Registry{
		districts: make([]District, 0, len(districts)),
		index:     make(map[string]int, len(districts)),
	}

	for i, d := range districts {
		field := fmt.Sprintf("districts[%d]", i)
		if d.ID == "" {
			return nil, validation.NewSchemaError("district registry", field+".district_id", "must not be empty")
		}
		if _, dup := r.index[d.ID]; dup {
			return nil, validation.NewSchemaError("district registry", field+".district_id", fmt.Sprintf("duplicate id %q", d.ID))
		}
		if math.IsNaN(d.Lat) || d.Lat < -90 || d.Lat > 90 {
			return nil, validation.NewSchemaError("district registry", field+".latitude", "out of range")
		}
		if math.IsNaN(d.Lon) || d.Lon < -180 || d.Lon > 180 {
			return nil, validation.NewSchemaError("district registry", field+".longitude", "out of range")
		}

		r.index[d.ID] = len(r.districts)
		r.districts = append(r.districts, d)
	}

	return r, nil
}

// Len returns the number of districts.
func (r *Registry) Len() int {
	return len(r.districts)
}

// All returns the districts in registry order.
func (r *Registry) All() []District {
	out := make([]District, len(r.districts))
	copy(out, r.districts)
	return out
}

// Get returns a district by id.
func (r *Registry) Get(id string) (District, error) {
	i, ok := r.index[id]
	if !ok {
		return District{}, fmt.Errorf("%w: %s", ErrDistrictNotFound, id)
	}
	return r.districts[i], nil
}

// ResolveNearest returns the district whose centroid is closest to the point
// and the distance in kilometres. On equal distances the district that
// appears first in the registry wins.
func (r *Registry) ResolveNearest(lat, lon float64) (District, float64, error) {
	if len(r.districts) == 0 {
		return District{}, 0, ErrNoDistrictsLoaded
	}

	best := 0
	bestDist := math.Inf(1)
	for i, d := range r.districts {
		dist := HaversineKm(lat, lon, d.Lat, d.Lon)
		if dist < bestDist {
			best, bestDist = i, dist
		}
	}

	return r.districts[best], bestDist, nil
}

// ResolveContaining returns the first district whose boundary contains the
// point. Districts without boundaries never match.
func (r *Registry) ResolveContaining(lat, lon float64) (District, bool) {
	for _, d := range r.districts {
		if d.Contains(lat, lon) {
			return d, true
		}
	}
	return District{}, false
}

// Resolve prefers the containing district and falls back to the nearest
// centroid, which also covers points just outside the national border.
func (r *Registry) Resolve(lat, lon float64) (District, float64, error) {
	if d, ok := r.ResolveContaining(lat, lon); ok {
		return d, HaversineKm(lat, lon, d.Lat, d.Lon), nil
	}
	return r.ResolveNearest(lat, lon)
}

// HaversineKm returns the great-circle distance between two points in km:
// d = 2R·asin(√(sin²(Δlat/2) + cos(lat1)·cos(lat2)·sin²(Δlon/2))).
func HaversineKm(lat1, lon1, lat2, lon2 float64) float64 {
	lat1Rad := lat1 * math.Pi / 180
	lat2Rad := lat2 * math.Pi / 180
	deltaLat := (lat2 - lat1) * math.Pi / 180
	deltaLon := (lon2 - lon1) * math.Pi / 180

	a := math.Sin(deltaLat/2)*math.Sin(deltaLat/2) +
		math.Cos(lat1Rad)*math.Cos(lat2Rad)*
			math.Sin(deltaLon/2)*math.Sin(deltaLon/2)

	return 2 * EarthRadiusKm * math.Asin(math.Min(1, math.Sqrt(a)))
}
