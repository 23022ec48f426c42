package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Althuwaynee/iraqairquality/internal/airquality"
	"github.com/Althuwaynee/iraqairquality/internal/api"
	"github.com/Althuwaynee/iraqairquality/internal/api/handler"
	"github.com/Althuwaynee/iraqairquality/internal/api/models"
	"github.com/Althuwaynee/iraqairquality/internal/auth"
	"github.com/Althuwaynee/iraqairquality/internal/district"
	"github.com/Althuwaynee/iraqairquality/internal/notify/resilience"
	"github.com/Althuwaynee/iraqairquality/internal/snapshot"
	"github.com/Althuwaynee/iraqairquality/internal/subscriber"
)

var (
	refTime = time.Date(2025, 10, 17, 12, 0, 0, 0, time.UTC)
	now     = refTime.Add(40 * time.Minute)
)

const signingKey = "test-secret-key-for-testing-only"

type testEnv struct {
	router    http.Handler
	clock     *clockwork.FakeClock
	publisher *snapshot.Publisher
	repo      *subscriber.InMemoryRepository
	tokens    *auth.JWTService
}

func testRegistry(t *testing.T) *district.Registry {
	t.Helper()
	reg, err := district.New([]district.District{
		{ID: "IRQ.1.1", Name: "Baghdad", ProvinceID: "1", ProvinceName: "Baghdad", Lat: 33.3, Lon: 44.4},
		{ID: "IRQ.2.1", Name: "Najaf", ProvinceID: "2", ProvinceName: "An-Najaf", Lat: 32.0, Lon: 44.3},
	})
	require.NoError(t, err)
	return reg
}

func alertsDocument() snapshot.AlertsDocument {
	pm10 := 320.7
	mean := 310.0
	return snapshot.AlertsDocument{
		Metadata: snapshot.AlertsMetadata{
			GeneratedAt:          now,
			ReferenceTime:        refTime,
			RollingWindowsHours:  []int{24},
			ForecastWindowsHours: []int{24},
			DataResolutionHours:  3,
			ComplianceLimitUgM3:  150,
			AQITable:             "dust",
			ForecastStrategy:     "store_feed",
		},
		Districts: []snapshot.DistrictSnapshot{
			{
				DistrictID:   "IRQ.1.1",
				DistrictName: "Baghdad",
				Latitude:     33.3,
				Longitude:    44.4,
				Missing:      []string{snapshot.MissingCurrent},
			},
			{
				DistrictID:   "IRQ.2.1",
				DistrictName: "Najaf",
				Latitude:     32.0,
				Longitude:    44.3,
				Current:      &snapshot.Current{PM10: pm10, Timestamp: refTime, PointsUsed: 4, Method: "constrained_idw"},
				Rolling:      []snapshot.RollingMean{{WindowHours: 24, Mean: &mean, SampleCount: 8, MaxSamples: 8}},
				AQI:          &airquality.AQIState{Value: 421, Level: airquality.LevelHazardous},
				Compliance:   airquality.ComplianceState{Status: airquality.ComplianceExceeded, LimitUgM3: 150},
				DustStorm:    true,
			},
		},
	}
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	clock := clockwork.NewFakeClockAt(now)
	publisher, err := snapshot.NewPublisher(t.TempDir(), zerolog.Nop())
	require.NoError(t, err)

	reg := testRegistry(t)
	repo := subscriber.NewInMemoryRepository()
	svc, err := subscriber.NewService(subscriber.ServiceConfig{
		Repository: repo,
		Registry:   reg,
		Conditions: publisher,
		Clock:      clock,
		Logger:     zerolog.Nop(),
	})
	require.NoError(t, err)

	tokens := auth.NewJWTService(auth.JWTConfig{SigningKey: signingKey, Clock: clock})

	transports := resilience.NewHealthRegistry()
	transports.Register("telegram", resilience.NewClient(resilience.DefaultClientConfig("telegram")))

	router := api.NewRouter(api.RouterConfig{
		Version:     "test",
		BuildTime:   "2025-10-17T00:00:00Z",
		Logger:      zerolog.New(io.Discard),
		Registry:    reg,
		Publisher:   publisher,
		Subscribers: svc,
		Tokens:      tokens,
		Transports:  transports,
		Checks: []handler.DependencyCheck{
			{Name: "subscribers-db", Check: func(context.Context) error { return nil }},
		},
		Clock: clock,
	})

	return &testEnv{router: router, clock: clock, publisher: publisher, repo: repo, tokens: tokens}
}

func (e *testEnv) publish(t *testing.T) {
	t.Helper()
	doc := alertsDocument()
	nowDoc := snapshot.NewNowDocument(doc.Districts, refTime, now, "constrained_idw", 55)
	require.NoError(t, e.publisher.Publish(nowDoc, doc))
}

func (e *testEnv) token(t *testing.T, scopes ...string) string {
	t.Helper()
	token, _, err := e.tokens.Issue("telegram-bot", scopes, time.Hour)
	require.NoError(t, err)
	return token
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader = http.NoBody
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, reader)
	req.RemoteAddr = "198.51.100.7:40000"
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func TestRouter_HealthCheck(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/v1/ops/health", "", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.NotEmpty(t, w.Header().Get("X-Request-Id"))

	var health models.Health
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &health))
	assert.Equal(t, models.HealthStatusOK, health.Status)
	assert.Equal(t, "test", health.Details["version"])
}

func TestRouter_ReadinessCheck(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/v1/ops/ready", "", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	var health models.Health
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &health))
	assert.Equal(t, models.HealthStatusOK, health.Status)
}

func TestRouter_ReadinessCheck_DependencyDown(t *testing.T) {
	router := api.NewRouter(api.RouterConfig{
		Logger: zerolog.Nop(),
		Checks: []handler.DependencyCheck{
			{Name: "redis", Check: func(context.Context) error { return errors.New("connection refused") }},
		},
	})

	req := httptest.NewRequest(http.MethodGet, "/v1/ops/ready", http.NoBody)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	var health models.Health
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &health))
	assert.Equal(t, models.HealthStatusFail, health.Status)
	assert.Equal(t, "connection refused", health.Details["redis"])
}

func TestRouter_SystemStatus(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/v1/ops/status", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	// Nothing published yet.
	w = env.do(t, http.MethodGet, "/v1/ops/status", env.token(t), nil)
	require.Equal(t, http.StatusOK, w.Code)
	var status models.SystemStatus
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
	assert.Equal(t, models.HealthStatusFail, status.Status)
	assert.Nil(t, status.Artifact)

	env.publish(t)
	w = env.do(t, http.MethodGet, "/v1/ops/status", env.token(t), nil)
	status = models.SystemStatus{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
	assert.Equal(t, models.HealthStatusOK, status.Status)
	require.NotNil(t, status.Artifact)
	assert.Equal(t, 2, status.Artifact.Districts)
	assert.Equal(t, 1, status.Artifact.CompleteDistricts)
	assert.False(t, status.Artifact.Stale)
	require.Len(t, status.Transports, 1)
	assert.Equal(t, "telegram", status.Transports[0].Transport)
	assert.Equal(t, "closed", status.Transports[0].BreakerState)

	env.clock.Advance(7 * time.Hour)
	w = env.do(t, http.MethodGet, "/v1/ops/status", env.token(t), nil)
	status = models.SystemStatus{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
	assert.Equal(t, models.HealthStatusDegraded, status.Status)
	assert.True(t, status.Artifact.Stale)
}

func TestRouter_Artifacts(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/data/pm10_alerts.json", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	env.publish(t)

	w = env.do(t, http.MethodGet, "/data/pm10_alerts.json", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.Equal(t, "public, max-age=300", w.Header().Get("Cache-Control"))

	var doc snapshot.AlertsDocument
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &doc))
	assert.Len(t, doc.Districts, 2)

	w = env.do(t, http.MethodGet, "/data/pm10_now.json", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var nowDoc snapshot.NowDocument
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &nowDoc))
	assert.Equal(t, "constrained_idw", nowDoc.Metadata.Method)

	published, err := os.ReadFile(filepath.Join(env.publisher.Dir(), snapshot.NowFile))
	require.NoError(t, err)
	assert.Equal(t, string(published), w.Body.String())
}

func TestRouter_Districts(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/v1/districts", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list models.DistrictList
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	assert.Equal(t, 2, list.Total)
	assert.Equal(t, "IRQ.1.1", list.Items[0].ID)

	w = env.do(t, http.MethodGet, "/v1/districts?province=2", "", nil)
	list = models.DistrictList{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	require.Len(t, list.Items, 1)
	assert.Equal(t, "Najaf", list.Items[0].Name)

	w = env.do(t, http.MethodGet, "/v1/districts/IRQ.9.9", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "application/problem+json", w.Header().Get("Content-Type"))

	// Detail without a published artifact has no snapshot.
	w = env.do(t, http.MethodGet, "/v1/districts/IRQ.2.1", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var detail models.DistrictDetail
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &detail))
	assert.Nil(t, detail.Snapshot)

	env.publish(t)
	w = env.do(t, http.MethodGet, "/v1/districts/IRQ.2.1", "", nil)
	detail = models.DistrictDetail{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &detail))
	require.NotNil(t, detail.Snapshot)
	assert.True(t, detail.Snapshot.DustStorm)
	assert.Equal(t, airquality.LevelHazardous, detail.Snapshot.AQI.Level)
	require.NotNil(t, detail.ReferenceTime)
	assert.Equal(t, refTime, detail.ReferenceTime.Time().UTC())
}

func TestRouter_ResolveDistrict(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/v1/districts/resolve?lat=32.1&lon=44.3", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var res models.ResolveResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.Equal(t, "IRQ.2.1", res.District.ID)
	assert.False(t, res.Contained)
	assert.InDelta(t, 11.1, res.DistanceKm, 0.2)

	w = env.do(t, http.MethodGet, "/v1/districts/resolve?lat=95&lon=abc", "", nil)
	require.Equal(t, http.StatusBadRequest, w.Code)
	var problem models.Problem
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &problem))
	require.Len(t, problem.Errors, 2)
	assert.Equal(t, "lat", problem.Errors[0].Field)
	assert.Equal(t, "lon", problem.Errors[1].Field)
}

func TestRouter_Subscribers_RequireAuth(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/v1/subscribers/12345", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	readOnly := env.token(t, auth.ScopeSubscribersRead)
	w = env.do(t, http.MethodPut, "/v1/subscribers/12345/location", readOnly, map[string]float64{"latitude": 32, "longitude": 44})
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestRouter_Subscribers_Lifecycle(t *testing.T) {
	env := newTestEnv(t)
	token := env.token(t, auth.ScopeSubscribersRead, auth.ScopeSubscribersWrite)

	// First share creates the subscriber.
	w := env.do(t, http.MethodPut, "/v1/subscribers/12345/location", token, map[string]float64{"latitude": 32.05, "longitude": 44.31})
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "/v1/subscribers/12345", w.Header().Get("Location"))
	var reg models.RegistrationResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &reg))
	assert.True(t, reg.Created)
	assert.Equal(t, "IRQ.2.1", reg.Status.DistrictID)
	assert.Equal(t, "Najaf", reg.Status.DistrictName)
	assert.Equal(t, subscriber.LanguageArabic, reg.Status.Language)

	// A new location updates the existing subscriber.
	w = env.do(t, http.MethodPut, "/v1/subscribers/12345/location", token, map[string]float64{"latitude": 33.3, "longitude": 44.4})
	require.Equal(t, http.StatusOK, w.Code)
	reg = models.RegistrationResponse{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &reg))
	assert.False(t, reg.Created)
	assert.Equal(t, "IRQ.1.1", reg.Status.DistrictID)

	w = env.do(t, http.MethodPut, "/v1/subscribers/12345/language", token, map[string]string{"language": "en"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"language":"en"}`, w.Body.String())

	w = env.do(t, http.MethodPost, "/v1/subscribers/12345/language/toggle", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"language":"ar"}`, w.Body.String())

	w = env.do(t, http.MethodPost, "/v1/subscribers/12345/deactivate", token, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = env.do(t, http.MethodGet, "/v1/subscribers/12345", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var status subscriber.Status
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
	assert.False(t, status.Active)

	w = env.do(t, http.MethodPost, "/v1/subscribers/12345/reactivate", token, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	sub, err := env.repo.Get(context.Background(), "12345")
	require.NoError(t, err)
	assert.True(t, sub.Active)
	assert.Empty(t, sub.LastAlertLevel)
}

func TestRouter_Subscribers_Validation(t *testing.T) {
	env := newTestEnv(t)
	token := env.token(t, auth.ScopeSubscribersRead, auth.ScopeSubscribersWrite)

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		want   int
	}{
		{"missing longitude", http.MethodPut, "/v1/subscribers/1/location", map[string]float64{"latitude": 32}, http.StatusBadRequest},
		{"out of range", http.MethodPut, "/v1/subscribers/1/location", map[string]float64{"latitude": 120, "longitude": 44}, http.StatusBadRequest},
		{"unknown field", http.MethodPut, "/v1/subscribers/1/location", map[string]any{"latitude": 32, "longitude": 44, "alt": 1}, http.StatusBadRequest},
		{"unsupported language", http.MethodPut, "/v1/subscribers/1/language", map[string]string{"language": "fr"}, http.StatusBadRequest},
		{"unknown subscriber", http.MethodPost, "/v1/subscribers/404/deactivate", nil, http.StatusNotFound},
		{"unknown subscriber status", http.MethodGet, "/v1/subscribers/404", nil, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, tt.method, tt.path, token, tt.body)
			assert.Equal(t, tt.want, w.Code)
			assert.Equal(t, "application/problem+json", w.Header().Get("Content-Type"))
		})
	}
}

func TestRouter_Subscribers_Current(t *testing.T) {
	env := newTestEnv(t)
	token := env.token(t, auth.ScopeSubscribersRead, auth.ScopeSubscribersWrite)

	w := env.do(t, http.MethodPut, "/v1/subscribers/777/location", token, map[string]float64{"latitude": 32.0, "longitude": 44.3})
	require.Equal(t, http.StatusCreated, w.Code)

	// No artifact yet.
	w = env.do(t, http.MethodGet, "/v1/subscribers/777/current", token, nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	env.publish(t)
	w = env.do(t, http.MethodGet, "/v1/subscribers/777/current", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var cond subscriber.Conditions
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &cond))
	assert.Equal(t, "IRQ.2.1", cond.District.DistrictID)
	assert.True(t, cond.District.DustStorm)

	// Baghdad has no current reading.
	w = env.do(t, http.MethodPut, "/v1/subscribers/777/location", token, map[string]float64{"latitude": 33.3, "longitude": 44.4})
	require.Equal(t, http.StatusOK, w.Code)
	w = env.do(t, http.MethodGet, "/v1/subscribers/777/current", token, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRouter_ReadOnlyWithoutTokens(t *testing.T) {
	router := api.NewRouter(api.RouterConfig{Logger: zerolog.Nop(), Registry: testRegistry(t)})

	req := httptest.NewRequest(http.MethodGet, "/v1/subscribers/12345", http.NoBody)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRouter_RequestID_Generated(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/v1/ops/health", "", nil)

	requestID := w.Header().Get("X-Request-Id")
	assert.NotEmpty(t, requestID)
	assert.Contains(t, requestID, "req_")
}

func TestRouter_RequestID_Preserved(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/ops/health", http.NoBody)
	req.Header.Set("X-Request-Id", "custom_request_id")
	w := httptest.NewRecorder()

	env.router.ServeHTTP(w, req)

	assert.Equal(t, "custom_request_id", w.Header().Get("X-Request-Id"))
}

func TestRouter_NotFound(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/v1/nonexistent", "", nil)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRouter_Artifacts_Preflight(t *testing.T) {
	env := newTestEnv(t)
	env.publish(t)

	w := env.do(t, http.MethodOptions, "/data/pm10_now.json", "", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))

	w = env.do(t, http.MethodGet, "/data/pm10_now.json", "", nil)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestRouter_Subscribers_RejectsNonJSON(t *testing.T) {
	env := newTestEnv(t)
	token := env.token(t, auth.ScopeSubscribersRead, auth.ScopeSubscribersWrite)

	req := httptest.NewRequest(http.MethodPut, "/v1/subscribers/12345/location",
		strings.NewReader("latitude=33.3&longitude=44.4"))
	req.RemoteAddr = "198.51.100.7:40000"
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnsupportedMediaType, w.Code)
	assert.Equal(t, "application/problem+json", w.Header().Get("Content-Type"))
}
