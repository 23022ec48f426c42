package handler

import (
	"errors"
	"io/fs"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/Althuwaynee/iraqairquality/internal/api/models"
	"github.com/Althuwaynee/iraqairquality/internal/api/response"
	"github.com/Althuwaynee/iraqairquality/internal/district"
	"github.com/Althuwaynee/iraqairquality/internal/subscriber"
)

// SubscriberHandler handles the subscriber endpoints used by the bot. The
// subscriber id is the bot's chat id and is opaque to the API.
type SubscriberHandler struct {
	service *subscriber.Service
	logger  zerolog.Logger
}

// NewSubscriberHandler creates a new SubscriberHandler.
func NewSubscriberHandler(service *subscriber.Service, logger zerolog.Logger) *SubscriberHandler {
	return &SubscriberHandler{service: service, logger: logger}
}

// ShareLocation handles PUT /v1/subscribers/{subscriberId}/location. It
// registers a new subscriber (201) or updates an existing one (200).
func (h *SubscriberHandler) ShareLocation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "subscriberId")

	var input models.LocationInput
	if !decodeBody(w, r, &input) {
		return
	}
	if fieldErrors := input.Validate(); len(fieldErrors) > 0 {
		response.BadRequest(w, r, "validation failed", fieldErrors)
		return
	}

	_, created, err := h.service.Register(r.Context(), id, *input.Latitude, *input.Longitude)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	status, err := h.service.Status(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	body := models.RegistrationResponse{Created: created, Status: status}
	if created {
		response.Created(w, r, "/v1/subscribers/"+id, body)
		return
	}
	response.JSON(w, r, http.StatusOK, body)
}

// GetStatus handles GET /v1/subscribers/{subscriberId}.
func (h *SubscriberHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	status, err := h.service.Status(r.Context(), chi.URLParam(r, "subscriberId"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, status)
}

// GetCurrent handles GET /v1/subscribers/{subscriberId}/current: the latest
// conditions of the subscriber's nearest district.
func (h *SubscriberHandler) GetCurrent(w http.ResponseWriter, r *http.Request) {
	conditions, err := h.service.Current(r.Context(), chi.URLParam(r, "subscriberId"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, conditions)
}

// Deactivate handles POST /v1/subscribers/{subscriberId}/deactivate.
func (h *SubscriberHandler) Deactivate(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Deactivate(r.Context(), chi.URLParam(r, "subscriberId")); err != nil {
		h.writeError(w, r, err)
		return
	}
	response.NoContent(w, r)
}

// Reactivate handles POST /v1/subscribers/{subscriberId}/reactivate.
func (h *SubscriberHandler) Reactivate(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Reactivate(r.Context(), chi.URLParam(r, "subscriberId")); err != nil {
		h.writeError(w, r, err)
		return
	}
	response.NoContent(w, r)
}

// SetLanguage handles PUT /v1/subscribers/{subscriberId}/language.
func (h *SubscriberHandler) SetLanguage(w http.ResponseWriter, r *http.Request) {
	var input models.LanguageInput
	if !decodeBody(w, r, &input) {
		return
	}

	if err := h.service.SetLanguage(r.Context(), chi.URLParam(r, "subscriberId"), input.Language); err != nil {
		if errors.Is(err, subscriber.ErrUnsupportedLanguage) {
			response.BadRequest(w, r, "validation failed", []models.FieldError{
				{Field: "language", Message: "must be ar or en", Code: "UNSUPPORTED"},
			})
			return
		}
		h.writeError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, models.LanguageResponse{Language: subscriber.Language(input.Language)})
}

// ToggleLanguage handles POST /v1/subscribers/{subscriberId}/language/toggle.
func (h *SubscriberHandler) ToggleLanguage(w http.ResponseWriter, r *http.Request) {
	lang, err := h.service.ToggleLanguage(r.Context(), chi.URLParam(r, "subscriberId"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, models.LanguageResponse{Language: lang})
}

func (h *SubscriberHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, subscriber.ErrSubscriberNotFound):
		response.NotFound(w, r, "subscriber")
	case errors.Is(err, subscriber.ErrInvalidSubscriberID):
		response.BadRequest(w, r, "invalid subscriber id", nil)
	case errors.Is(err, subscriber.ErrInvalidLocation):
		response.BadRequest(w, r, "validation failed", []models.FieldError{
			{Field: "latitude", Message: "must be between -90 and 90", Code: "OUT_OF_RANGE"},
			{Field: "longitude", Message: "must be between -180 and 180", Code: "OUT_OF_RANGE"},
		})
	case errors.Is(err, subscriber.ErrUnsupportedLanguage):
		response.BadRequest(w, r, err.Error(), nil)
	case errors.Is(err, subscriber.ErrNoConditions):
		response.NotFound(w, r, "no current conditions for the subscriber's district")
	case errors.Is(err, fs.ErrNotExist), errors.Is(err, district.ErrNoDistrictsLoaded):
		response.ServiceUnavailable(w, r, "air quality data is not available yet")
	default:
		h.logger.Error().
			Err(err).
			Str("client_id", GetClientID(r.Context())).
			Str("path", r.URL.Path).
			Msg("subscriber request failed")
		response.InternalError(w, r, "internal server error")
	}
}
