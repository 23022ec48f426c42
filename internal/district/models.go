// Package district holds the static catalog of administrative districts and
// resolves geographic points to districts.
package district

import (
	"errors"

	"github.com/ctessum/geom"
)

// Registry errors.
var (
	ErrNoDistrictsLoaded = errors.New("no districts loaded")
	ErrDistrictNotFound  = errors.New("district not found")
)

// District is an immutable administrative district.
type District struct {
	ID           string  `json:"district_id"`
	Name         string  `json:"district_name"`
	ProvinceID   string  `json:"province_id"`
	ProvinceName string  `json:"province_name"`
	Lat          float64 `json:"latitude"`
	Lon          float64 `json:"longitude"`

	// Boundary is the district polygon in lon/lat, nil when only the
	// centroid is known.
	Boundary geom.Polygonal `json:"-"`
}

// HasBoundary reports whether a polygon was loaded for the district.
func (d District) HasBoundary() bool {
	return d.Boundary != nil
}

// Contains reports whether the point lies inside or on the district boundary.
// Always false for districts without a boundary.
func (d District) Contains(lat, lon float64) bool {
	if d.Boundary == nil {
		return false
	}
	return geom.Point{X: lon, Y: lat}.Within(d.Boundary) != geom.Outside
}

// BBox is a latitude/longitude bounding box.
type BBox struct {
	MinLat float64
	MaxLat float64
	MinLon float64
	MaxLon float64
}

// IraqBBox covers Iraq with a small margin.
var IraqBBox = BBox{MinLat: 29, MaxLat: 38, MinLon: 39, MaxLon: 49}

// ContainsPoint reports whether the point lies within the box, inclusive.
func (b BBox) ContainsPoint(lat, lon float64) bool {
	return lat >= b.MinLat && lat <= b.MaxLat && lon >= b.MinLon && lon <= b.MaxLon
}
