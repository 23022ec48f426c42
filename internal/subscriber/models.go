// Package subscriber manages alert subscribers: people who shared a location
// and receive a notification when the air quality of their nearest district
// changes level or turns into a dust storm.
//
// # Data stored
//
//   - ID: the transport's chat identifier, opaque to this package
//   - Latitude/Longitude: the last shared location, used only to resolve the
//     nearest district
//   - NearestDistrictID and LastAlertLevel: alert state, written by the alert
//     engine after a successful dispatch
//   - Language: "ar" (default) or "en"
//   - Active: cleared on opt-out; inactive subscribers keep their state
//
// No location history is kept. A new location replaces the previous one.
package subscriber

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/Althuwaynee/iraqairquality/internal/airquality"
)

// Subscriber errors.
var (
	ErrSubscriberNotFound  = errors.New("subscriber not found")
	ErrInvalidSubscriberID = errors.New("invalid subscriber id")
	ErrInvalidLocation     = errors.New("invalid location")
	ErrUnsupportedLanguage = errors.New("unsupported language")
	ErrNoConditions        = errors.New("no current conditions for district")
)

// Language is the language notifications are rendered in.
type Language string

const (
	LanguageArabic  Language = "ar"
	LanguageEnglish Language = "en"

	DefaultLanguage = LanguageArabic
)

// ParseLanguage converts a string to a supported Language.
func ParseLanguage(s string) (Language, error) {
	switch l := Language(s); l {
	case LanguageArabic, LanguageEnglish:
		return l, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedLanguage, s)
	}
}

// Subscriber is one registered alert recipient.
type Subscriber struct {
	ID        string
	Latitude  float64
	Longitude float64

	// NearestDistrictID is the district the subscriber was last resolved to.
	NearestDistrictID string

	// LastAlertLevel is the level of the last delivered notification.
	// Empty until the first notification has been sent.
	LastAlertLevel airquality.Level

	// LastAlertAt is when the last notification was delivered.
	LastAlertAt *time.Time

	// LastAlertReference is the artifact reference time the last
	// notification was computed from.
	LastAlertReference *time.Time

	Language  Language
	Active    bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// HasAlerted reports whether a notification was ever delivered.
func (s *Subscriber) HasAlerted() bool {
	return s.LastAlertLevel != ""
}

// AlertedFor reports whether a notification was already delivered for the
// artifact with the given reference time.
func (s *Subscriber) AlertedFor(ref time.Time) bool {
	return s.LastAlertReference != nil && s.LastAlertReference.Equal(ref)
}

// AlertRecord is the alert state stored once a notification is delivered.
type AlertRecord struct {
	DistrictID    string
	Level         airquality.Level
	ReferenceTime time.Time
	At            time.Time
}

// ValidateLocation checks that a point is a finite WGS84 coordinate.
func ValidateLocation(lat, lon float64) error {
	if math.IsNaN(lat) || math.IsNaN(lon) || lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return fmt.Errorf("%w: (%v, %v)", ErrInvalidLocation, lat, lon)
	}
	return nil
}

// ListOptions contains options for listing subscribers.
type ListOptions struct {
	ActiveOnly bool
}

// Status is the subscriber view returned to the bot.
type Status struct {
	SubscriberID string           `json:"subscriber_id"`
	DistrictID   string           `json:"district_id"`
	DistrictName string           `json:"district_name,omitempty"`
	Latitude     float64          `json:"latitude"`
	Longitude    float64          `json:"longitude"`
	LastLevel    airquality.Level `json:"last_level,omitempty"`
	LastAlertAt  *time.Time       `json:"last_alert_at,omitempty"`
	Active       bool             `json:"active"`
	Language     Language         `json:"language"`
}

// copySubscriber creates a deep copy of a subscriber.
func copySubscriber(s *Subscriber) *Subscriber {
	if s == nil {
		return nil
	}
	c := *s
	if s.LastAlertAt != nil {
		at := *s.LastAlertAt
		c.LastAlertAt = &at
	}
	if s.LastAlertReference != nil {
		ref := *s.LastAlertReference
		c.LastAlertReference = &ref
	}
	return &c
}
