package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/Althuwaynee/iraqairquality/internal/api/middleware"
	"github.com/Althuwaynee/iraqairquality/internal/api/models"
	"github.com/Althuwaynee/iraqairquality/internal/api/response"
	"github.com/Althuwaynee/iraqairquality/internal/snapshot"
	"github.com/Althuwaynee/iraqairquality/internal/validation"
)

// maxBodyBytes bounds request bodies. Every body this API accepts is a
// handful of fields.
const maxBodyBytes = 4 << 10

// AlertsSource provides the latest published alerts artifact.
// *snapshot.Publisher implements it.
type AlertsSource interface {
	LatestAlerts(ctx context.Context) (*snapshot.AlertsDocument, error)
}

// GetClientID retrieves the authenticated client from the context.
// This is a convenience wrapper around middleware.GetClientID.
func GetClientID(ctx context.Context) string {
	return middleware.GetClientID(ctx)
}

// decodeBody strictly decodes a JSON request body into v. On failure it
// writes a 400 response and returns false.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	err := validation.DecodeStrict(r.Body, v, "request body")
	if err == nil {
		return true
	}

	var se *validation.SchemaError
	if errors.As(err, &se) && se.Field != "" {
		response.BadRequest(w, r, "invalid JSON body", []models.FieldError{
			{Field: se.Field, Message: se.Reason},
		})
		return false
	}
	response.BadRequest(w, r, "invalid JSON body", nil)
	return false
}
