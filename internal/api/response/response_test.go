package response_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Althuwaynee/iraqairquality/internal/api/middleware"
	"github.com/Althuwaynee/iraqairquality/internal/api/models"
	"github.com/Althuwaynee/iraqairquality/internal/api/response"
)

// serve runs fn behind the RequestID middleware, as the router does.
func serve(method, path string, fn func(w http.ResponseWriter, r *http.Request)) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	middleware.RequestID(http.HandlerFunc(fn)).ServeHTTP(rec, httptest.NewRequest(method, path, http.NoBody))
	return rec
}

func decodeProblem(t *testing.T, rec *httptest.ResponseRecorder) models.Problem {
	t.Helper()
	assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
	var p models.Problem
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&p))
	return p
}

func TestJSON(t *testing.T) {
	rec := serve(http.MethodGet, "/v1/districts/IRQ.1.1", func(w http.ResponseWriter, r *http.Request) {
		response.JSON(w, r, http.StatusOK, map[string]string{"district_id": "IRQ.1.1"})
	})

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("X-Request-Id"), "req_")
	assert.JSONEq(t, `{"district_id":"IRQ.1.1"}`, rec.Body.String())
}

func TestJSON_WithoutRequestID(t *testing.T) {
	rec := httptest.NewRecorder()
	response.JSON(rec, httptest.NewRequest(http.MethodGet, "/v1/districts", http.NoBody), http.StatusOK, []string{})

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("X-Request-Id"))
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestJSON_NilData(t *testing.T) {
	rec := serve(http.MethodGet, "/v1/ops/health", func(w http.ResponseWriter, r *http.Request) {
		response.JSON(w, r, http.StatusAccepted, nil)
	})

	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Empty(t, rec.Header().Get("Content-Type"))
	assert.Zero(t, rec.Body.Len())
}

func TestCreated(t *testing.T) {
	rec := serve(http.MethodPut, "/v1/subscribers/12345/location", func(w http.ResponseWriter, r *http.Request) {
		response.Created(w, r, "/v1/subscribers/12345", map[string]string{"district_id": "IRQ.1.1"})
	})

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "/v1/subscribers/12345", rec.Header().Get("Location"))
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
}

func TestNoContent(t *testing.T) {
	rec := serve(http.MethodPost, "/v1/subscribers/12345/deactivate", func(w http.ResponseWriter, r *http.Request) {
		response.NoContent(w, r)
	})

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))
	assert.Empty(t, rec.Header().Get("Content-Type"))
	assert.Zero(t, rec.Body.Len())
}

func TestProblems(t *testing.T) {
	tests := []struct {
		name   string
		write  func(w http.ResponseWriter, r *http.Request)
		status int
		typ    string
	}{
		{
			name:   "not found",
			write:  func(w http.ResponseWriter, r *http.Request) { response.NotFound(w, r, "district not found") },
			status: http.StatusNotFound,
			typ:    models.ProblemTypeNotFound,
		},
		{
			name:   "internal error",
			write:  func(w http.ResponseWriter, r *http.Request) { response.InternalError(w, r, "reading store failed") },
			status: http.StatusInternalServerError,
			typ:    models.ProblemTypeInternal,
		},
		{
			name:   "service unavailable",
			write:  func(w http.ResponseWriter, r *http.Request) { response.ServiceUnavailable(w, r, "no artifact published yet") },
			status: http.StatusServiceUnavailable,
			typ:    models.ProblemTypeUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(http.MethodGet, "/v1/districts/IRQ.99.9", tt.write)

			assert.Equal(t, tt.status, rec.Code)
			p := decodeProblem(t, rec)
			assert.Equal(t, tt.status, p.Status)
			assert.Equal(t, tt.typ, p.Type)
			assert.Equal(t, "/v1/districts/IRQ.99.9", p.Instance)
			assert.Equal(t, rec.Header().Get("X-Request-Id"), p.TraceID)
		})
	}
}

func TestBadRequest_CarriesFieldErrors(t *testing.T) {
	rec := serve(http.MethodPut, "/v1/subscribers/12345/location", func(w http.ResponseWriter, r *http.Request) {
		response.BadRequest(w, r, "validation failed", []models.FieldError{
			{Field: "latitude", Message: "must be between -90 and 90"},
		})
	})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	p := decodeProblem(t, rec)
	assert.Equal(t, "/v1/subscribers/12345/location", p.Instance)
	assert.NotEmpty(t, p.TraceID)
	require.Len(t, p.Errors, 1)
	assert.Equal(t, "latitude", p.Errors[0].Field)
}
