package models

import (
	"github.com/Althuwaynee/iraqairquality/internal/district"
	"github.com/Althuwaynee/iraqairquality/internal/snapshot"
)

// District is the catalog entry of a district.
type District struct {
	ID           string  `json:"districtId"`
	Name         string  `json:"districtName"`
	ProvinceID   string  `json:"provinceId"`
	ProvinceName string  `json:"provinceName"`
	Latitude     float64 `json:"latitude"`
	Longitude    float64 `json:"longitude"`
	HasBoundary  bool    `json:"hasBoundary"`
}

// NewDistrict converts a registry district.
func NewDistrict(d district.District) District {
	return District{
		ID:           d.ID,
		Name:         d.Name,
		ProvinceID:   d.ProvinceID,
		ProvinceName: d.ProvinceName,
		Latitude:     d.Lat,
		Longitude:    d.Lon,
		HasBoundary:  d.HasBoundary(),
	}
}

// DistrictList is the response of GET /v1/districts.
type DistrictList struct {
	Items []District `json:"items"`
	Total int        `json:"total"`
}

// DistrictDetail is a district with its latest published snapshot. Snapshot
// is nil when no artifact has been published yet.
type DistrictDetail struct {
	District
	ReferenceTime *Timestamp                 `json:"referenceTime,omitempty"`
	Snapshot      *snapshot.DistrictSnapshot `json:"snapshot,omitempty"`
}

// ResolveResult is the response of GET /v1/districts/resolve.
type ResolveResult struct {
	District   District `json:"district"`
	DistanceKm float64  `json:"distanceKm"`

	// Contained is true when the point lies inside the district boundary
	// rather than only nearest to its centroid.
	Contained bool `json:"contained"`
}
