// Package alert decides, once per pipeline cycle, which subscribers get a
// notification.
//
// Each subscriber moves through a two-state machine: no alert sent, then
// at_level(L). A notification is dispatched when the level of the
// subscriber's nearest district differs from the last delivered level, and
// on every cycle while that district reports a dust storm. State changes
// only after the notifier accepted the notification, so a failed dispatch
// is retried on the next cycle.
package alert

import (
	"context"
	"time"

	"github.com/Althuwaynee/iraqairquality/internal/airquality"
	"github.com/Althuwaynee/iraqairquality/internal/subscriber"
)

// Notification is the event emitted for one subscriber.
type Notification struct {
	SubscriberID  string              `json:"subscriber_id"`
	DistrictID    string              `json:"district_id"`
	DistrictName  string              `json:"district_name"`
	Level         airquality.Level    `json:"level"`
	PreviousLevel airquality.Level    `json:"previous_level,omitempty"`
	AQI           int                 `json:"aqi"`
	PM10          *float64            `json:"pm10"`
	DustStorm     bool                `json:"dust_storm"`
	Language      subscriber.Language `json:"language"`
	ReferenceTime time.Time           `json:"reference_time"`
}

// Notifier delivers notifications. Notify must honour ctx cancellation.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, n Notification) error

// Notify implements Notifier.
func (f NotifierFunc) Notify(ctx context.Context, n Notification) error {
	return f(ctx, n)
}

// Outcome is what happened to one subscriber in a cycle.
type Outcome string

const (
	OutcomeSent       Outcome = "sent"
	OutcomeUnchanged  Outcome = "unchanged"
	OutcomeNoData     Outcome = "no_data"
	OutcomeUnresolved Outcome = "unresolved"
	OutcomeInactive   Outcome = "inactive"
	OutcomeFailed     Outcome = "failed"
)

// SubscriberError records a failed subscriber.
type SubscriberError struct {
	SubscriberID string
	Err          error
}

// Result summarizes one alert cycle.
type Result struct {
	ReferenceTime time.Time
	Evaluated     int
	Sent          int
	Unchanged     int
	NoData        int
	Unresolved    int
	Inactive      int
	Failed        int
	Errors        []SubscriberError
	Duration      time.Duration
}

func (r *Result) add(o Outcome) {
	r.Evaluated++
	switch o {
	case OutcomeSent:
		r.Sent++
	case OutcomeUnchanged:
		r.Unchanged++
	case OutcomeNoData:
		r.NoData++
	case OutcomeUnresolved:
		r.Unresolved++
	case OutcomeInactive:
		r.Inactive++
	case OutcomeFailed:
		r.Failed++
	}
}
