package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Althuwaynee/iraqairquality/internal/config"
)

func TestFromEnv_Defaults(t *testing.T) {
	cfg := config.FromEnv()

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "constrained_idw", cfg.Pipeline.Reducer)
	assert.Equal(t, 55.0, cfg.Pipeline.MaxDistanceKm)
	assert.Equal(t, "dust", cfg.Pipeline.AQITable)
	assert.Equal(t, 150.0, cfg.Pipeline.ComplianceLimit)
	assert.Equal(t, "store_feed", cfg.Pipeline.ForecastStrategy)
	assert.Equal(t, 24*time.Hour, cfg.Pipeline.Lookback)
	assert.Equal(t, 16, cfg.Alerts.Concurrency)
	assert.False(t, cfg.Kafka.Enabled())
	assert.False(t, cfg.Redis.Enabled())
	assert.Zero(t, cfg.PubSub.LocalInterval)
	assert.False(t, cfg.RequireTLS)
	assert.NoError(t, cfg.Validate())
}

func TestFromEnv_Overrides(t *testing.T) {
	t.Setenv("AQI_TABLE", "epa_pm10")
	t.Setenv("COMPLIANCE_LIMIT_UGM3", "100")
	t.Setenv("REDUCER", "zonal_mean")
	t.Setenv("FORECAST_STRATEGY", "trend")
	t.Setenv("CYCLE_TIMEOUT", "90s")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092,")
	t.Setenv("REDIS_ADDR", "localhost:6379")
	t.Setenv("INGEST_CONCURRENCY", "not-a-number")
	t.Setenv("WORKER_INTERVAL", "3h")
	t.Setenv("REQUIRE_TLS", "true")

	cfg := config.FromEnv()

	assert.Equal(t, "epa_pm10", cfg.Pipeline.AQITable)
	assert.Equal(t, 100.0, cfg.Pipeline.ComplianceLimit)
	assert.Equal(t, "zonal_mean", cfg.Pipeline.Reducer)
	assert.Equal(t, 90*time.Second, cfg.Pipeline.CycleTimeout)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.True(t, cfg.Kafka.Enabled())
	assert.True(t, cfg.Redis.Enabled())
	assert.Equal(t, 8, cfg.Pipeline.IngestConcurrency)
	assert.Equal(t, 3*time.Hour, cfg.PubSub.LocalInterval)
	assert.True(t, cfg.RequireTLS)
	assert.NoError(t, cfg.Validate())
}

func TestValidate_ReportsEveryProblem(t *testing.T) {
	cfg := config.FromEnv()
	cfg.Pipeline.AQITable = "aqhi"
	cfg.Pipeline.ComplianceLimit = 0
	cfg.Pipeline.Reducer = "kriging"
	cfg.Pipeline.ForecastStrategy = "oracle"
	cfg.Env = "production"
	cfg.Auth.JWTSigningKey = ""
	cfg.PubSub.LocalInterval = -time.Minute

	err := cfg.Validate()
	require.Error(t, err)
	for _, want := range []string{"AQI_TABLE", "COMPLIANCE_LIMIT_UGM3", "REDUCER", "FORECAST_STRATEGY", "JWT_SIGNING_KEY", "WORKER_INTERVAL"} {
		assert.Contains(t, err.Error(), want)
	}
}

func TestLoad_ReadsDotEnv(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("DUST_TEST_TELEGRAM=1\nTELEGRAM_BASE_URL=http://bot.local\n"), 0o600))
	t.Chdir(dir)
	t.Cleanup(func() {
		_ = os.Unsetenv("DUST_TEST_TELEGRAM")
		_ = os.Unsetenv("TELEGRAM_BASE_URL")
	})

	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Equal(t, "http://bot.local", cfg.Alerts.TelegramBaseURL)
	assert.Equal(t, "1", os.Getenv("DUST_TEST_TELEGRAM"))
}
