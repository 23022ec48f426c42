package handler

import (
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/Althuwaynee/iraqairquality/internal/api/models"
	"github.com/Althuwaynee/iraqairquality/internal/api/response"
	"github.com/Althuwaynee/iraqairquality/internal/district"
)

// DistrictHandler serves the district catalog and per-district snapshots.
type DistrictHandler struct {
	registry *district.Registry
	alerts   AlertsSource
	logger   zerolog.Logger
}

// NewDistrictHandler creates a new DistrictHandler. alerts may be nil.
func NewDistrictHandler(registry *district.Registry, alerts AlertsSource, logger zerolog.Logger) *DistrictHandler {
	return &DistrictHandler{registry: registry, alerts: alerts, logger: logger}
}

// ListDistricts handles GET /v1/districts. An optional province query
// parameter filters by province id.
func (h *DistrictHandler) ListDistricts(w http.ResponseWriter, r *http.Request) {
	province := r.URL.Query().Get("province")

	all := h.registry.All()
	items := make([]models.District, 0, len(all))
	for _, d := range all {
		if province != "" && d.ProvinceID != province {
			continue
		}
		items = append(items, models.NewDistrict(d))
	}
	response.JSON(w, r, http.StatusOK, models.DistrictList{Items: items, Total: len(items)})
}

// GetDistrict handles GET /v1/districts/{districtId}. The snapshot comes
// from the last published artifact and is omitted if none exists.
func (h *DistrictHandler) GetDistrict(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "districtId")

	d, err := h.registry.Get(id)
	if err != nil {
		if errors.Is(err, district.ErrDistrictNotFound) {
			response.NotFound(w, r, "district "+id)
			return
		}
		response.InternalError(w, r, "internal server error")
		return
	}

	detail := models.DistrictDetail{District: models.NewDistrict(d)}
	if h.alerts != nil {
		doc, err := h.alerts.LatestAlerts(r.Context())
		if err != nil {
			h.logger.Debug().Err(err).Msg("no published artifact for district detail")
		} else if snap, ok := doc.District(d.ID); ok {
			ref := models.Timestamp(doc.Metadata.ReferenceTime)
			detail.ReferenceTime = &ref
			detail.Snapshot = &snap
		}
	}
	response.JSON(w, r, http.StatusOK, detail)
}

// ResolveDistrict handles GET /v1/districts/resolve?lat=..&lon=.. and
// returns the district containing the point, or the nearest one.
func (h *DistrictHandler) ResolveDistrict(w http.ResponseWriter, r *http.Request) {
	lat, latErr := parseCoordinate(r.URL.Query().Get("lat"), 90)
	lon, lonErr := parseCoordinate(r.URL.Query().Get("lon"), 180)

	var fieldErrors []models.FieldError
	if latErr != nil {
		fieldErrors = append(fieldErrors, models.FieldError{Field: "lat", Message: latErr.Error()})
	}
	if lonErr != nil {
		fieldErrors = append(fieldErrors, models.FieldError{Field: "lon", Message: lonErr.Error()})
	}
	if len(fieldErrors) > 0 {
		response.BadRequest(w, r, "invalid coordinates", fieldErrors)
		return
	}

	if d, ok := h.registry.ResolveContaining(lat, lon); ok {
		response.JSON(w, r, http.StatusOK, models.ResolveResult{
			District:   models.NewDistrict(d),
			DistanceKm: district.HaversineKm(lat, lon, d.Lat, d.Lon),
			Contained:  true,
		})
		return
	}

	d, dist, err := h.registry.ResolveNearest(lat, lon)
	if err != nil {
		if errors.Is(err, district.ErrNoDistrictsLoaded) {
			response.ServiceUnavailable(w, r, "no districts loaded")
			return
		}
		response.InternalError(w, r, "internal server error")
		return
	}
	response.JSON(w, r, http.StatusOK, models.ResolveResult{
		District:   models.NewDistrict(d),
		DistanceKm: dist,
	})
}

func parseCoordinate(raw string, limit float64) (float64, error) {
	if raw == "" {
		return 0, errors.New("required")
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, errors.New("must be a number")
	}
	if v < -limit || v > limit {
		return 0, fmt.Errorf("must be between %v and %v", -limit, limit)
	}
	return v, nil
}
