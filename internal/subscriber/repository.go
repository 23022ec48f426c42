package subscriber

import (
	"context"
	"time"
)

// Repository defines the interface for subscriber persistence.
type Repository interface {
	// Get retrieves a subscriber by ID.
	Get(ctx context.Context, id string) (*Subscriber, error)

	// List returns subscribers ordered by ID.
	List(ctx context.Context, opts ListOptions) ([]*Subscriber, error)

	// Upsert stores a location share. An existing subscriber gets the new
	// location and district and is reactivated; its language and alert
	// state are kept. Returns true if a new subscriber was created.
	Upsert(ctx context.Context, s *Subscriber) (created bool, err error)

	// SetActive toggles whether the subscriber receives alerts.
	SetActive(ctx context.Context, id string, active bool, at time.Time) error

	// SetLanguage changes the notification language.
	SetLanguage(ctx context.Context, id string, lang Language, at time.Time) error

	// RecordAlert stores the state of a delivered notification.
	RecordAlert(ctx context.Context, id string, rec AlertRecord) error
}
