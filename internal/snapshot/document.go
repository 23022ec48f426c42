package snapshot

import (
	"fmt"
	"time"

	"github.com/Althuwaynee/iraqairquality/internal/validation"
)

// NowDocument is the "now" artifact consumed by the map.
type NowDocument struct {
	Metadata  NowMetadata   `json:"metadata"`
	Districts []NowDistrict `json:"districts"`
}

// NowMetadata describes a NowDocument.
type NowMetadata struct {
	GeneratedAt       time.Time `json:"generated_at"`
	ForecastTimestamp time.Time `json:"forecast_timestamp"`
	Method            string    `json:"method"`
	MaxDistanceKm     float64   `json:"max_distance_km"`
}

// NowDistrict is one district in the "now" artifact. PM10 and Timestamp are
// null when there is no current reading.
type NowDistrict struct {
	DistrictID    string     `json:"district_id"`
	DistrictName  string     `json:"district_name"`
	ProvinceID    string     `json:"province_id"`
	ProvinceName  string     `json:"province_name"`
	Latitude      float64    `json:"latitude"`
	Longitude     float64    `json:"longitude"`
	PM10          *float64   `json:"pm10"`
	Timestamp     *time.Time `json:"timestamp"`
	PointsUsed    int        `json:"points_used"`
	AvgDistanceKm float64    `json:"avg_distance_km"`
}

// NewNowDocument builds the "now" artifact from snapshots.
func NewNowDocument(snaps []DistrictSnapshot, asOf, generatedAt time.Time, method string, maxDistanceKm float64) NowDocument {
	doc := NowDocument{
		Metadata: NowMetadata{
			GeneratedAt:       generatedAt.UTC(),
			ForecastTimestamp: asOf.UTC(),
			Method:            method,
			MaxDistanceKm:     maxDistanceKm,
		},
		Districts: make([]NowDistrict, 0, len(snaps)),
	}

	for _, s := range snaps {
		nd := NowDistrict{
			DistrictID:   s.DistrictID,
			DistrictName: s.DistrictName,
			ProvinceID:   s.ProvinceID,
			ProvinceName: s.ProvinceName,
			Latitude:     s.Latitude,
			Longitude:    s.Longitude,
		}
		if s.Current != nil {
			pm10 := s.Current.PM10
			ts := s.Current.Timestamp
			nd.PM10 = &pm10
			nd.Timestamp = &ts
			nd.PointsUsed = s.Current.PointsUsed
			nd.AvgDistanceKm = s.Current.AvgDistanceKm
		}
		doc.Districts = append(doc.Districts, nd)
	}
	return doc
}

// AlertsDocument is the "alerts" artifact consumed by the bot and dashboard.
type AlertsDocument struct {
	Metadata  AlertsMetadata     `json:"metadata"`
	Districts []DistrictSnapshot `json:"districts"`
}

// AlertsMetadata describes an AlertsDocument.
type AlertsMetadata struct {
	GeneratedAt          time.Time `json:"generated_at"`
	ReferenceTime        time.Time `json:"reference_time"`
	RollingWindowsHours  []int     `json:"rolling_windows_hours"`
	ForecastWindowsHours []int     `json:"forecast_windows_hours"`
	DataResolutionHours  int       `json:"data_resolution_hours"`
	ComplianceLimitUgM3  float64   `json:"compliance_limit_ug_m3"`
	AQITable             string    `json:"aqi_table"`
	ForecastStrategy     string    `json:"forecast_strategy"`
}

// NewAlertsDocument builds the "alerts" artifact from snapshots.
func NewAlertsDocument(b *Builder, snaps []DistrictSnapshot, asOf, generatedAt time.Time) AlertsDocument {
	return AlertsDocument{
		Metadata: AlertsMetadata{
			GeneratedAt:          generatedAt.UTC(),
			ReferenceTime:        asOf.UTC(),
			RollingWindowsHours:  b.Windows(),
			ForecastWindowsHours: b.Horizons(),
			DataResolutionHours:  int(b.Resolution() / time.Hour),
			ComplianceLimitUgM3:  b.Classifier().ComplianceLimit(),
			AQITable:             b.Classifier().TableName(),
			ForecastStrategy:     b.ForecastStrategy(),
		},
		Districts: snaps,
	}
}

// District returns the snapshot for a district id.
func (d *AlertsDocument) District(id string) (DistrictSnapshot, bool) {
	for _, s := range d.Districts {
		if s.DistrictID == id {
			return s, true
		}
	}
	return DistrictSnapshot{}, false
}

// Validate checks the fields consumers rely on.
func (d *AlertsDocument) Validate(source string) error {
	if d.Metadata.ReferenceTime.IsZero() {
		return validation.NewSchemaError(source, "metadata.reference_time", "missing")
	}
	if d.Districts == nil {
		return validation.NewSchemaError(source, "districts", "missing")
	}

	seen := make(map[string]bool, len(d.Districts))
	for i, s := range d.Districts {
		field := fmt.Sprintf("districts[%d]", i)
		if s.DistrictID == "" {
			return validation.NewSchemaError(source, field+".district_id", "must not be empty")
		}
		if seen[s.DistrictID] {
			return validation.NewSchemaError(source, field+".district_id", fmt.Sprintf("duplicate id %q", s.DistrictID))
		}
		seen[s.DistrictID] = true
		if s.AQI != nil && !s.AQI.Level.Valid() {
			return validation.NewSchemaError(source, field+".aqi.level", fmt.Sprintf("unknown level %q", s.AQI.Level))
		}
	}
	return nil
}
