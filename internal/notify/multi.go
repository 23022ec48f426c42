package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/Althuwaynee/iraqairquality/internal/alert"
)

// Log writes notifications to the logger. Used when no transport is
// configured, and in dry runs.
type Log struct {
	logger zerolog.Logger
}

// NewLog creates a Log notifier.
func NewLog(logger zerolog.Logger) *Log {
	return &Log{logger: logger}
}

// Notify implements alert.Notifier.
func (l *Log) Notify(_ context.Context, n alert.Notification) error {
	ev := l.logger.Info().
		Str("subscriber_id", n.SubscriberID).
		Str("district_id", n.DistrictID).
		Str("level", string(n.Level)).
		Str("previous_level", string(n.PreviousLevel)).
		Int("aqi", n.AQI).
		Bool("dust_storm", n.DustStorm)
	if n.PM10 != nil {
		ev = ev.Float64("pm10", *n.PM10)
	}
	ev.Msg("notification")
	return nil
}

// Multi delivers to the transport the subscriber reads, then mirrors the
// notification to secondary sinks. Only the primary decides whether the
// alert counts as sent: a secondary failure is logged and dropped, and
// secondaries are skipped when the primary fails so a retried alert is
// mirrored once.
type Multi struct {
	Primary   alert.Notifier
	Secondary []alert.Notifier
	Logger    zerolog.Logger
}

// Notify implements alert.Notifier.
func (m *Multi) Notify(ctx context.Context, n alert.Notification) error {
	if m.Primary == nil {
		return errors.New("no primary notifier configured")
	}
	if err := m.Primary.Notify(ctx, n); err != nil {
		return fmt.Errorf("primary notifier: %w", err)
	}

	for i, sink := range m.Secondary {
		if err := sink.Notify(ctx, n); err != nil {
			m.Logger.Warn().
				Err(err).
				Int("sink", i).
				Str("subscriber_id", n.SubscriberID).
				Msg("secondary notifier failed")
		}
	}
	return nil
}

var (
	_ alert.Notifier = (*Log)(nil)
	_ alert.Notifier = (*Multi)(nil)
)
