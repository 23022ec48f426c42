package models

import (
	"github.com/Althuwaynee/iraqairquality/internal/subscriber"
)

// LocationInput is the body of PUT /v1/subscribers/{subscriberId}/location.
// Pointers distinguish a missing coordinate from zero.
type LocationInput struct {
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
}

// Validate returns field errors for missing coordinates. Range checks are
// left to the subscriber service.
func (in LocationInput) Validate() []FieldError {
	var errs []FieldError
	if in.Latitude == nil {
		errs = append(errs, FieldError{Field: "latitude", Message: "required", Code: "REQUIRED"})
	}
	if in.Longitude == nil {
		errs = append(errs, FieldError{Field: "longitude", Message: "required", Code: "REQUIRED"})
	}
	return errs
}

// LanguageInput is the body of PUT /v1/subscribers/{subscriberId}/language.
type LanguageInput struct {
	Language string `json:"language"`
}

// LanguageResponse reports the subscriber's language after a change.
type LanguageResponse struct {
	Language subscriber.Language `json:"language"`
}

// RegistrationResponse is returned after a location is shared.
type RegistrationResponse struct {
	Created bool               `json:"created"`
	Status  *subscriber.Status `json:"status"`
}
