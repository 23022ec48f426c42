// Package api provides the HTTP API for the district air quality service:
// published artifacts, the district catalog, and the subscriber endpoints
// the Telegram bot calls.
package api

import (
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/Althuwaynee/iraqairquality/internal/api/handler"
	"github.com/Althuwaynee/iraqairquality/internal/api/middleware"
	"github.com/Althuwaynee/iraqairquality/internal/auth"
	"github.com/Althuwaynee/iraqairquality/internal/district"
	"github.com/Althuwaynee/iraqairquality/internal/notify/resilience"
	"github.com/Althuwaynee/iraqairquality/internal/snapshot"
	"github.com/Althuwaynee/iraqairquality/internal/subscriber"
)

// RouterConfig holds configuration for the router.
type RouterConfig struct {
	Version     string
	BuildTime   string
	Logger      zerolog.Logger
	ServiceName string
	Metrics     *middleware.Metrics

	Registry  *district.Registry
	Publisher *snapshot.Publisher

	// Subscribers and Tokens are both required for the subscriber routes;
	// without them the API is read-only.
	Subscribers *subscriber.Service
	Tokens      middleware.TokenValidator

	Transports     *resilience.HealthRegistry
	Checks         []handler.DependencyCheck
	MaxArtifactAge time.Duration
	Clock          clockwork.Clock

	// RequireTLS rejects plain HTTP requests forwarded by the load balancer.
	RequireTLS bool
}

// NewRouter creates a new chi router with all API routes configured.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "iraq-dust-api"
	}

	// Global middleware - order matters
	r.Use(middleware.RequestID)            // Generate/propagate request ID first
	r.Use(middleware.Tracing(serviceName)) // Distributed tracing
	if cfg.Metrics != nil {
		r.Use(cfg.Metrics.Middleware()) // HTTP metrics
	}
	r.Use(middleware.Logger(cfg.Logger))         // Structured logging
	r.Use(middleware.Recovery(cfg.Logger))       // Panic recovery
	r.Use(chimiddleware.RealIP)                  // Real IP extraction
	r.Use(middleware.SecurityHeaders)            // Security headers (HSTS, CSP, etc.)
	r.Use(middleware.RequireTLS(cfg.RequireTLS)) // TLS enforcement behind the load balancer
	r.Use(middleware.ContentTypeJSON)            // JSON content type

	var alerts handler.AlertsSource
	if cfg.Publisher != nil {
		alerts = cfg.Publisher
	}

	opsHandler := handler.NewOpsHandler(handler.OpsConfig{
		Version:        cfg.Version,
		BuildTime:      cfg.BuildTime,
		Artifacts:      alerts,
		MaxArtifactAge: cfg.MaxArtifactAge,
		Transports:     cfg.Transports,
		Checks:         cfg.Checks,
		Clock:          cfg.Clock,
	})

	publicRateLimit := middleware.RateLimitByIP(middleware.PublicRateLimit)   // 60 req/min
	resolveRateLimit := middleware.RateLimitByIP(middleware.ResolveRateLimit) // 30 req/min

	// Published artifacts, same paths as the static site.
	if cfg.Publisher != nil {
		artifactHandler := handler.NewArtifactHandler(cfg.Publisher.Dir())
		r.Route("/data", func(r chi.Router) {
			r.Use(publicRateLimit)
			r.Use(middleware.PublicArtifacts)
			r.Get("/"+snapshot.NowFile, artifactHandler.Now)
			r.Get("/"+snapshot.AlertsFile, artifactHandler.Alerts)
		})
	}

	r.Route("/v1", func(r chi.Router) {
		// Ops endpoints (public)
		r.Route("/ops", func(r chi.Router) {
			r.Get("/health", opsHandler.HealthCheck)
			r.Get("/ready", opsHandler.ReadinessCheck)
			if cfg.Tokens != nil {
				r.With(middleware.Auth(cfg.Tokens)).Get("/status", opsHandler.SystemStatus)
			} else {
				r.Get("/status", opsHandler.SystemStatus)
			}
		})

		if cfg.Registry != nil {
			districtHandler := handler.NewDistrictHandler(cfg.Registry, alerts, cfg.Logger)
			r.Route("/districts", func(r chi.Router) {
				r.Use(publicRateLimit)
				r.Get("/", districtHandler.ListDistricts)
				r.With(resolveRateLimit).Get("/resolve", districtHandler.ResolveDistrict)
				r.Get("/{districtId}", districtHandler.GetDistrict)
			})
		}

		if cfg.Subscribers != nil && cfg.Tokens != nil {
			subscriberHandler := handler.NewSubscriberHandler(cfg.Subscribers, cfg.Logger)
			read := middleware.RequireScope(auth.ScopeSubscribersRead)
			write := chi.Chain(middleware.RequireScope(auth.ScopeSubscribersWrite), middleware.RequireJSON).Handler

			r.Route("/subscribers/{subscriberId}", func(r chi.Router) {
				r.Use(middleware.Auth(cfg.Tokens))
				r.Use(middleware.RateLimitByClient(middleware.ClientRateLimit))

				r.With(read).Get("/", subscriberHandler.GetStatus)
				r.With(read).Get("/current", subscriberHandler.GetCurrent)

				r.With(write).Put("/location", subscriberHandler.ShareLocation)
				r.With(write).Post("/deactivate", subscriberHandler.Deactivate)
				r.With(write).Post("/reactivate", subscriberHandler.Reactivate)
				r.With(write).Put("/language", subscriberHandler.SetLanguage)
				r.With(write).Post("/language/toggle", subscriberHandler.ToggleLanguage)
			})
		}
	})

	return r
}
