// Package main provides the entrypoint for the Iraq dust API server.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/Althuwaynee/iraqairquality/internal/api"
	"github.com/Althuwaynee/iraqairquality/internal/api/middleware"
	"github.com/Althuwaynee/iraqairquality/internal/app"
	"github.com/Althuwaynee/iraqairquality/internal/auth"
	"github.com/Althuwaynee/iraqairquality/internal/config"
	"github.com/Althuwaynee/iraqairquality/internal/district"
	"github.com/Althuwaynee/iraqairquality/internal/snapshot"
	"github.com/Althuwaynee/iraqairquality/internal/subscriber"
	"github.com/Althuwaynee/iraqairquality/internal/telemetry"
)

// Version and BuildTime are set at compile time via ldflags.
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	const serviceName = "iraq-dust-api"

	// Setup structured logging
	log := zerolog.New(os.Stdout).
		With().
		Timestamp().
		Str("service", serviceName).
		Str("version", Version).
		Logger()

	log.Info().
		Str("build_time", BuildTime).
		Msg("starting Iraq dust API")

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	// Initialize OpenTelemetry
	ctx := context.Background()

	tp, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName:    serviceName,
		ServiceVersion: Version,
		Environment:    cfg.Env,
		OTLPEndpoint:   cfg.Telemetry.OTLPEndpoint,
		Enabled:        cfg.Telemetry.Enabled,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize telemetry")
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if shutdownErr := tp.Shutdown(shutdownCtx); shutdownErr != nil {
			log.Error().Err(shutdownErr).Msg("failed to shutdown telemetry")
		}
	}()

	if cfg.Telemetry.Enabled {
		log.Info().
			Str("otlp_endpoint", cfg.Telemetry.OTLPEndpoint).
			Msg("OpenTelemetry initialized")
	}

	metrics, err := middleware.NewMetrics()
	if err != nil {
		log.Error().Err(err).Msg("failed to initialize metrics")
		os.Exit(1) //nolint:gocritic // intentional exit, telemetry cleanup is best-effort
	}

	registry, err := district.Load(cfg.Pipeline.DistrictsFile)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load districts")
	}
	log.Info().Int("districts", registry.Len()).Msg("district registry loaded")

	stores, err := app.OpenStores(ctx, cfg.Pipeline, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open stores")
	}
	defer stores.Close()

	publisher, err := snapshot.NewPublisher(cfg.Pipeline.ArtifactsDir, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open artifacts directory")
	}

	subscribers, err := subscriber.NewService(subscriber.ServiceConfig{
		Repository: stores.Subscribers,
		Registry:   registry,
		Conditions: publisher,
		Logger:     log.With().Str("component", "subscribers").Logger(),
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create subscriber service")
	}

	jwtSigningKey := cfg.Auth.JWTSigningKey
	if jwtSigningKey == "" {
		jwtSigningKey = "local-dev-signing-key-change-in-production"
		log.Warn().Msg("using default JWT signing key - not secure for production")
	}
	tokens := auth.NewJWTService(auth.JWTConfig{
		SigningKey: jwtSigningKey,
		Issuer:     cfg.Auth.JWTIssuer,
	})

	router := api.NewRouter(api.RouterConfig{
		Version:        Version,
		BuildTime:      BuildTime,
		Logger:         log,
		ServiceName:    serviceName,
		Metrics:        metrics,
		Registry:       registry,
		Publisher:      publisher,
		Subscribers:    subscribers,
		Tokens:         tokens,
		Checks:         stores.Checks(),
		MaxArtifactAge: cfg.Pipeline.MaxArtifactAge,
		RequireTLS:     cfg.RequireTLS,
	})

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().
			Str("addr", server.Addr).
			Msg("server listening")

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
		return
	}

	log.Info().Msg("server stopped")
}
