package middleware_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/Althuwaynee/iraqairquality/internal/api/middleware"
)

func newMetricsWithReader(t *testing.T) (*middleware.Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	otel.SetMeterProvider(provider)
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	metrics, err := middleware.NewMetrics()
	require.NoError(t, err)
	return metrics, reader
}

// requestCounts returns http.server.request.total keyed by route and status.
func requestCounts(t *testing.T, reader *sdkmetric.ManualReader) map[[2]string]int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	counts := map[[2]string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != "http.server.request.total" {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			require.True(t, ok)
			for _, dp := range sum.DataPoints {
				route, _ := dp.Attributes.Value(attribute.Key("http.route"))
				status, _ := dp.Attributes.Value(attribute.Key("http.status_code"))
				counts[[2]string{route.AsString(), status.AsString()}] += dp.Value
			}
		}
	}
	return counts
}

func TestMetrics_LabelsByRoutePattern(t *testing.T) {
	metrics, reader := newMetricsWithReader(t)

	r := chi.NewRouter()
	r.Use(metrics.Middleware())
	r.Get("/v1/subscribers/{subscriberId}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	for _, id := range []string{"101", "102", "103"} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/subscribers/"+id, http.NoBody))
		assert.Equal(t, http.StatusNoContent, w.Code)
	}

	counts := requestCounts(t, reader)
	assert.Equal(t, int64(3), counts[[2]string{"/v1/subscribers/{subscriberId}", "204"}])
	assert.Len(t, counts, 1)
}

func TestMetrics_RecordsStatus(t *testing.T) {
	metrics, reader := newMetricsWithReader(t)

	tests := []struct {
		path   string
		status int
	}{
		{"/v1/districts/resolve", http.StatusBadRequest},
		{"/data/pm10_now.json", http.StatusServiceUnavailable},
		{"/v1/ops/health", 0},
	}

	for _, tt := range tests {
		handler := metrics.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			if tt.status != 0 {
				w.WriteHeader(tt.status)
			}
			_, _ = w.Write([]byte("{}"))
		}))
		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, tt.path, http.NoBody))
	}

	counts := requestCounts(t, reader)
	assert.Equal(t, int64(1), counts[[2]string{"/v1/districts/resolve", "400"}])
	assert.Equal(t, int64(1), counts[[2]string{"/data/pm10_now.json", "503"}])
	assert.Equal(t, int64(1), counts[[2]string{"/v1/ops/health", "200"}], "implicit WriteHeader counts as 200")
}

func TestMetrics_PassesResponseThrough(t *testing.T) {
	metrics, _ := newMetricsWithReader(t)

	handler := metrics.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/ops/health", http.NoBody))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, `{"status":"ok"}`, w.Body.String())
}
