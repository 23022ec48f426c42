// Package main provides the pipeline worker. It runs cycles on Pub/Sub job
// messages published by Cloud Scheduler and exposes health and Prometheus
// endpoints for Cloud Run.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/Althuwaynee/iraqairquality/internal/app"
	"github.com/Althuwaynee/iraqairquality/internal/config"
	"github.com/Althuwaynee/iraqairquality/internal/observability"
	"github.com/Althuwaynee/iraqairquality/internal/telemetry"
	"github.com/Althuwaynee/iraqairquality/internal/worker"
)

// Version and BuildTime are set at compile time via ldflags
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	const serviceName = "iraq-dust-worker"

	log := zerolog.New(os.Stdout).
		With().
		Timestamp().
		Str("service", serviceName).
		Str("version", Version).
		Logger()

	log.Info().
		Str("build_time", BuildTime).
		Msg("starting pipeline worker")

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

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
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if shutdownErr := tp.Shutdown(shutdownCtx); shutdownErr != nil {
			log.Error().Err(shutdownErr).Msg("failed to shutdown telemetry")
		}
	}()

	pipeline, err := app.NewPipeline(ctx, cfg, app.Options{
		Logger:  log,
		Metrics: observability.NewMetrics(),
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build pipeline")
	}
	defer func() {
		if closeErr := pipeline.Close(); closeErr != nil {
			log.Error().Err(closeErr).Msg("failed to close pipeline")
		}
	}()

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		status, code := "healthy", http.StatusOK
		body := map[string]string{"version": Version}
		if err := pipeline.Jobs.HealthCheck(r.Context()); err != nil {
			status, code = "unhealthy", http.StatusServiceUnavailable
			body["error"] = err.Error()
		}
		body["status"] = status
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(body)
	})

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Info().Str("addr", server.Addr).Msg("health server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("health server error")
		}
	}()

	switch {
	case cfg.PubSub.ProjectID != "":
		handler, err := worker.NewPubSubHandler(ctx, worker.PubSubConfig{
			ProjectID:        cfg.PubSub.ProjectID,
			SubscriptionName: cfg.PubSub.Subscription,
			Jobs:             pipeline.Jobs,
			Logger:           log,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("failed to create pubsub handler")
		}
		defer handler.Close()

		go func() {
			if err := handler.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error().Err(err).Msg("pubsub handler stopped")
				cancel()
			}
		}()
	case cfg.PubSub.LocalInterval > 0:
		log.Warn().
			Dur("interval", cfg.PubSub.LocalInterval).
			Msg("PUBSUB_PROJECT_ID not set, triggering cycles locally")
		go runLocal(ctx, pipeline.Jobs, cfg.PubSub.LocalInterval, log)
	default:
		log.Fatal().Msg("set PUBSUB_PROJECT_ID, or WORKER_INTERVAL for local development")
	}

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down worker")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("health server forced to shutdown")
	}

	log.Info().Msg("worker stopped")
}

// runLocal stands in for the external scheduler: one cycle job immediately,
// then one per interval, each through the same handler Pub/Sub uses.
func runLocal(ctx context.Context, jobs *worker.JobHandler, interval time.Duration, log zerolog.Logger) {
	run := func() {
		if err := jobs.Run(ctx, worker.JobMessage{JobType: worker.JobPipelineCycle}); err != nil {
			log.Error().Err(err).Msg("local cycle failed")
		}
	}

	run()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			run()
		}
	}
}
