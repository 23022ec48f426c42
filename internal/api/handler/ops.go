// Package handler provides HTTP handlers for the district air quality API.
package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/Althuwaynee/iraqairquality/internal/api/models"
	"github.com/Althuwaynee/iraqairquality/internal/api/response"
	"github.com/Althuwaynee/iraqairquality/internal/notify/resilience"
)

// readinessTimeout bounds each dependency check.
const readinessTimeout = 2 * time.Second

var errNoArtifactSource = errors.New("no artifact source configured")

// DependencyCheck is a named readiness probe, such as a database ping.
type DependencyCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// OpsConfig holds configuration for the OpsHandler.
type OpsConfig struct {
	Version   string
	BuildTime string

	// Artifacts is optional; without it status reports no artifact.
	Artifacts AlertsSource

	// MaxArtifactAge marks the published artifact stale.
	// Default: 6 hours
	MaxArtifactAge time.Duration

	// Transports is optional.
	Transports *resilience.HealthRegistry

	Checks []DependencyCheck
	Clock  clockwork.Clock
}

// OpsHandler handles operational endpoints.
type OpsHandler struct {
	version        string
	buildTime      string
	artifacts      AlertsSource
	maxArtifactAge time.Duration
	transports     *resilience.HealthRegistry
	checks         []DependencyCheck
	clock          clockwork.Clock
}

// NewOpsHandler creates a new OpsHandler.
func NewOpsHandler(cfg OpsConfig) *OpsHandler {
	if cfg.MaxArtifactAge <= 0 {
		cfg.MaxArtifactAge = 6 * time.Hour
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	return &OpsHandler{
		version:        cfg.Version,
		buildTime:      cfg.BuildTime,
		artifacts:      cfg.Artifacts,
		maxArtifactAge: cfg.MaxArtifactAge,
		transports:     cfg.Transports,
		checks:         cfg.Checks,
		clock:          cfg.Clock,
	}
}

// HealthCheck handles GET /v1/ops/health - liveness check.
func (h *OpsHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	health := models.Health{
		Status: models.HealthStatusOK,
		Time:   models.Timestamp(h.clock.Now()),
		Details: map[string]interface{}{
			"version":   h.version,
			"buildTime": h.buildTime,
		},
	}
	response.JSON(w, r, http.StatusOK, health)
}

// ReadinessCheck handles GET /v1/ops/ready. It fails when any dependency
// check fails.
func (h *OpsHandler) ReadinessCheck(w http.ResponseWriter, r *http.Request) {
	subsystems := h.runChecks(r.Context())

	health := models.Health{
		Status: models.HealthStatusOK,
		Time:   models.Timestamp(h.clock.Now()),
	}
	status := http.StatusOK
	for _, s := range subsystems {
		if s.Status != models.HealthStatusOK {
			health.Status = models.HealthStatusFail
			status = http.StatusServiceUnavailable
			if health.Details == nil {
				health.Details = map[string]interface{}{}
			}
			health.Details[s.Name] = *s.Detail
		}
	}
	response.JSON(w, r, status, health)
}

// SystemStatus handles GET /v1/ops/status - artifact, subsystem and
// notification transport status.
func (h *OpsHandler) SystemStatus(w http.ResponseWriter, r *http.Request) {
	status := models.SystemStatus{
		Status:     models.HealthStatusOK,
		Time:       models.Timestamp(h.clock.Now()),
		Subsystems: h.runChecks(r.Context()),
		Transports: h.transportStatus(),
	}

	artifact, err := h.artifactStatus(r.Context())
	switch {
	case err != nil:
		detail := err.Error()
		status.Status = models.HealthStatusFail
		status.Subsystems = append(status.Subsystems, models.SubsystemStatus{
			Name: "artifacts", Status: models.HealthStatusFail, Detail: &detail,
		})
	default:
		status.Artifact = artifact
		if artifact.Stale {
			status.Status = models.HealthStatusDegraded
		}
	}

	if status.Status == models.HealthStatusOK {
		for _, s := range status.Subsystems {
			if s.Status != models.HealthStatusOK {
				status.Status = models.HealthStatusDegraded
			}
		}
		for _, t := range status.Transports {
			if t.Status != models.HealthStatusOK {
				status.Status = models.HealthStatusDegraded
			}
		}
	}

	response.JSON(w, r, http.StatusOK, status)
}

func (h *OpsHandler) runChecks(ctx context.Context) []models.SubsystemStatus {
	out := make([]models.SubsystemStatus, 0, len(h.checks))
	for _, c := range h.checks {
		checkCtx, cancel := context.WithTimeout(ctx, readinessTimeout)
		err := c.Check(checkCtx)
		cancel()

		s := models.SubsystemStatus{Name: c.Name, Status: models.HealthStatusOK}
		if err != nil {
			detail := err.Error()
			s.Status = models.HealthStatusFail
			s.Detail = &detail
		}
		out = append(out, s)
	}
	return out
}

func (h *OpsHandler) artifactStatus(ctx context.Context) (*models.ArtifactStatus, error) {
	if h.artifacts == nil {
		return nil, errNoArtifactSource
	}
	doc, err := h.artifacts.LatestAlerts(ctx)
	if err != nil {
		return nil, err
	}

	age := h.clock.Since(doc.Metadata.GeneratedAt)
	st := &models.ArtifactStatus{
		GeneratedAt:   models.Timestamp(doc.Metadata.GeneratedAt),
		ReferenceTime: models.Timestamp(doc.Metadata.ReferenceTime),
		AgeSeconds:    int64(age / time.Second),
		Districts:     len(doc.Districts),
		Stale:         age > h.maxArtifactAge,
	}
	for _, d := range doc.Districts {
		if d.IsComplete() {
			st.CompleteDistricts++
		}
	}
	return st, nil
}

func (h *OpsHandler) transportStatus() []models.TransportStatus {
	if h.transports == nil {
		return []models.TransportStatus{}
	}
	all := h.transports.All()
	out := make([]models.TransportStatus, 0, len(all))
	for _, t := range all {
		ts := models.TransportStatus{
			Transport:    t.Name,
			Status:       models.HealthStatusOK,
			BreakerState: t.State,
		}
		if !t.Healthy() {
			ts.Status = models.HealthStatusDegraded
		}
		if t.LastSuccessAt != nil {
			at := models.Timestamp(*t.LastSuccessAt)
			ts.LastSuccessAt = &at
		}
		if t.LastFailureAt != nil {
			at := models.Timestamp(*t.LastFailureAt)
			ts.LastFailureAt = &at
		}
		if t.LastError != "" {
			msg := t.LastError
			ts.Message = &msg
		}
		out = append(out, ts)
	}
	return out
}
