// Package config loads process configuration from the environment. A .env
// file in the working directory is read first when present; variables that
// are already set win.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/Althuwaynee/iraqairquality/internal/airquality"
	"github.com/Althuwaynee/iraqairquality/internal/grid"
)

// Forecast strategies accepted in FORECAST_STRATEGY.
var forecastStrategies = map[string]bool{
	"store_feed":  true,
	"model":       true,
	"persistence": true,
	"trend":       true,
}

// Config is the full process configuration.
type Config struct {
	Env     string
	Port    string
	Version string

	// RequireTLS rejects plain HTTP API requests behind the load balancer.
	RequireTLS bool

	Pipeline  PipelineConfig
	Alerts    AlertsConfig
	Kafka     KafkaConfig
	Redis     RedisConfig
	PubSub    PubSubConfig
	Auth      AuthConfig
	Telemetry TelemetryConfig
}

// PipelineConfig covers ingest, snapshot and publishing.
type PipelineConfig struct {
	DistrictsFile     string
	GridDBPath        string
	ReadingsDBPath    string
	SubscribersDBPath string
	ArtifactsDir      string

	Reducer          string
	MaxDistanceKm    float64
	AQITable         string
	ComplianceLimit  float64
	ForecastStrategy string

	Lookback          time.Duration
	Lookahead         time.Duration
	CycleTimeout      time.Duration
	IngestConcurrency int
	MaxArtifactAge    time.Duration
}

// AlertsConfig covers notification dispatch.
type AlertsConfig struct {
	Concurrency     int
	DispatchTimeout time.Duration
	TelegramToken   string
	TelegramBaseURL string
}

// KafkaConfig enables the Kafka notifier when Brokers is non-empty.
type KafkaConfig struct {
	Brokers []string
	Topic   string
}

// Enabled reports whether Kafka brokers are configured.
func (k KafkaConfig) Enabled() bool {
	return len(k.Brokers) > 0
}

// RedisConfig enables the distributed subscriber lock when Addr is set.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// Enabled reports whether a Redis address is configured.
func (r RedisConfig) Enabled() bool {
	return r.Addr != ""
}

// PubSubConfig configures the worker subscription.
type PubSubConfig struct {
	ProjectID    string
	Subscription string

	// LocalInterval makes the worker trigger its own cycles when no
	// subscription is configured. Local development only; zero disables.
	LocalInterval time.Duration
}

// AuthConfig configures bot service tokens on the API.
type AuthConfig struct {
	JWTSigningKey string
	JWTIssuer     string
}

// TelemetryConfig configures OpenTelemetry export.
type TelemetryConfig struct {
	Enabled      bool
	OTLPEndpoint string
}

// Load reads the configuration and validates it.
func Load() (*Config, error) {
	// A missing .env file is normal outside local development.
	_ = godotenv.Load()

	cfg := FromEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromEnv reads the configuration without validating it.
func FromEnv() *Config {
	return &Config{
		Env:     getEnv("APP_ENV", "development"),
		Port:    getEnv("APP_PORT", "8080"),
		Version: getEnv("APP_VERSION", "dev"),

		RequireTLS: getEnv("REQUIRE_TLS", "") == "true",
		Pipeline: PipelineConfig{
			DistrictsFile:     getEnv("DISTRICTS_FILE", "data/iraq_districts.json"),
			GridDBPath:        getEnv("GRID_DB_PATH", "data/dust_realtime.db"),
			ReadingsDBPath:    getEnv("READINGS_DB_PATH", "data/district_pm10.db"),
			SubscribersDBPath: getEnv("SUBSCRIBERS_DB_PATH", "data/subscribers.db"),
			ArtifactsDir:      getEnv("ARTIFACTS_DIR", "web/data"),
			Reducer:           getEnv("REDUCER", grid.MethodConstrainedIDW),
			MaxDistanceKm:     getEnvAsFloat("MAX_DISTANCE_KM", grid.DefaultIDWConfig().MaxDistanceKm),
			AQITable:          getEnv("AQI_TABLE", airquality.DustTable.Name),
			ComplianceLimit:   getEnvAsFloat("COMPLIANCE_LIMIT_UGM3", 150),
			ForecastStrategy:  getEnv("FORECAST_STRATEGY", "store_feed"),
			Lookback:          getEnvAsDuration("CYCLE_LOOKBACK", 24*time.Hour),
			Lookahead:         getEnvAsDuration("CYCLE_LOOKAHEAD", 24*time.Hour),
			CycleTimeout:      getEnvAsDuration("CYCLE_TIMEOUT", 10*time.Minute),
			IngestConcurrency: getEnvAsInt("INGEST_CONCURRENCY", 8),
			MaxArtifactAge:    getEnvAsDuration("MAX_ARTIFACT_AGE", 6*time.Hour),
		},
		Alerts: AlertsConfig{
			Concurrency:     getEnvAsInt("ALERT_CONCURRENCY", 16),
			DispatchTimeout: getEnvAsDuration("ALERT_DISPATCH_TIMEOUT", 10*time.Second),
			TelegramToken:   getEnv("TELEGRAM_TOKEN", ""),
			TelegramBaseURL: getEnv("TELEGRAM_BASE_URL", ""),
		},
		Kafka: KafkaConfig{
			Brokers: splitList(getEnv("KAFKA_BROKERS", "")),
			Topic:   getEnv("KAFKA_TOPIC_ALERTS", "iraq-dust.alerts"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		PubSub: PubSubConfig{
			ProjectID:     getEnv("PUBSUB_PROJECT_ID", ""),
			Subscription:  getEnv("PUBSUB_SUBSCRIPTION", "pipeline-jobs"),
			LocalInterval: getEnvAsDuration("WORKER_INTERVAL", 0),
		},
		Auth: AuthConfig{
			JWTSigningKey: getEnv("JWT_SIGNING_KEY", ""),
			JWTIssuer:     getEnv("JWT_ISSUER", "iraq-dust"),
		},
		Telemetry: TelemetryConfig{
			Enabled:      getEnv("OTEL_ENABLED", "") == "true",
			OTLPEndpoint: getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
		},
	}
}

// Validate checks every field and reports all problems at once.
func (c *Config) Validate() error {
	var errs []error

	p := c.Pipeline
	if p.DistrictsFile == "" {
		errs = append(errs, errors.New("DISTRICTS_FILE is required"))
	}
	if p.ArtifactsDir == "" {
		errs = append(errs, errors.New("ARTIFACTS_DIR is required"))
	}
	if _, err := airquality.TableByName(p.AQITable); err != nil {
		errs = append(errs, fmt.Errorf("AQI_TABLE: %w", err))
	}
	if p.ComplianceLimit <= 0 {
		errs = append(errs, fmt.Errorf("COMPLIANCE_LIMIT_UGM3 must be positive, got %v", p.ComplianceLimit))
	}
	if _, err := grid.NewReducer(p.Reducer, grid.DefaultIDWConfig()); err != nil {
		errs = append(errs, fmt.Errorf("REDUCER: %w", err))
	}
	if p.MaxDistanceKm <= 0 {
		errs = append(errs, fmt.Errorf("MAX_DISTANCE_KM must be positive, got %v", p.MaxDistanceKm))
	}
	if !forecastStrategies[p.ForecastStrategy] {
		errs = append(errs, fmt.Errorf("FORECAST_STRATEGY: unknown strategy %q", p.ForecastStrategy))
	}
	if p.Lookback < 0 || p.Lookahead < 0 {
		errs = append(errs, errors.New("CYCLE_LOOKBACK and CYCLE_LOOKAHEAD must not be negative"))
	}
	if p.IngestConcurrency <= 0 {
		errs = append(errs, fmt.Errorf("INGEST_CONCURRENCY must be positive, got %d", p.IngestConcurrency))
	}

	if c.Alerts.Concurrency <= 0 {
		errs = append(errs, fmt.Errorf("ALERT_CONCURRENCY must be positive, got %d", c.Alerts.Concurrency))
	}
	if c.PubSub.LocalInterval < 0 {
		errs = append(errs, errors.New("WORKER_INTERVAL must not be negative"))
	}
	if c.Kafka.Enabled() && c.Kafka.Topic == "" {
		errs = append(errs, errors.New("KAFKA_TOPIC_ALERTS is required when KAFKA_BROKERS is set"))
	}
	if c.Env == "production" && c.Auth.JWTSigningKey == "" {
		errs = append(errs, errors.New("JWT_SIGNING_KEY is required in production"))
	}

	return errors.Join(errs...)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value, err := strconv.Atoi(getEnv(key, "")); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value, err := strconv.ParseFloat(getEnv(key, ""), 64); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value, err := time.ParseDuration(getEnv(key, "")); err == nil {
		return value
	}
	return defaultValue
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
