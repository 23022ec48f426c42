// Package middleware provides HTTP middleware for the district air quality API.
package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

// requestIDKey is the context key for the request ID.
type requestIDKey struct{}

// requestStateKey carries state that inner middleware reports back to the
// outer chain. Contexts only flow inward, so Auth records the client here for
// the logger, tracer and recovery handler that wrap it.
type requestStateKey struct{}

type requestState struct {
	clientID string
}

// maxRequestIDLength bounds caller-supplied ids; longer ones are replaced.
const maxRequestIDLength = 64

// RequestID takes the caller's X-Request-Id, so the bot can correlate its
// own logs, or generates one. Ids that are too long or carry characters
// outside [A-Za-z0-9._-] are replaced since they end up in logs and problem
// bodies. The id is echoed in the X-Request-Id response header.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-Id")
		if !validRequestID(requestID) {
			requestID = "req_" + uuid.New().String()[:22]
		}

		w.Header().Set("X-Request-Id", requestID)

		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		ctx = context.WithValue(ctx, requestStateKey{}, &requestState{})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func validRequestID(id string) bool {
	if id == "" || len(id) > maxRequestIDLength {
		return false
	}
	for _, c := range id {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		case c == '-', c == '_', c == '.':
		default:
			return false
		}
	}
	return true
}

// GetRequestID retrieves the request ID from the context.
func GetRequestID(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey{}).(string); ok {
		return id
	}
	return ""
}

func recordClient(ctx context.Context, clientID string) {
	if st, ok := ctx.Value(requestStateKey{}).(*requestState); ok {
		st.clientID = clientID
	}
}
