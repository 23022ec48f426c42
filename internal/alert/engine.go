package alert

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/Althuwaynee/iraqairquality/internal/district"
	"github.com/Althuwaynee/iraqairquality/internal/observability"
	"github.com/Althuwaynee/iraqairquality/internal/snapshot"
	"github.com/Althuwaynee/iraqairquality/internal/subscriber"
)

// EngineConfig holds configuration for the Engine.
type EngineConfig struct {
	Subscribers subscriber.Repository
	Registry    *district.Registry
	Notifier    Notifier

	// Locker serializes state changes per subscriber. Default: KeyedMutex.
	Locker Locker

	Clock   clockwork.Clock
	Logger  zerolog.Logger
	Metrics *observability.Metrics

	// Concurrency bounds parallel dispatches. Default: 16.
	Concurrency int

	// DispatchTimeout bounds one Notify call. Default: 10s.
	DispatchTimeout time.Duration

	// LockTimeout bounds waiting for a subscriber lock. Default: 5s.
	LockTimeout time.Duration
}

// DefaultEngineConfig returns the default engine settings.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		Concurrency:     16,
		DispatchTimeout: 10 * time.Second,
		LockTimeout:     5 * time.Second,
	}
}

// Engine runs alert cycles.
type Engine struct {
	cfg EngineConfig
}

// NewEngine creates an Engine.
func NewEngine(cfg EngineConfig) (*Engine, error) {
	if cfg.Subscribers == nil || cfg.Registry == nil || cfg.Notifier == nil {
		return nil, errors.New("alert engine requires subscribers, registry and notifier")
	}
	def := DefaultEngineConfig()
	if cfg.Locker == nil {
		cfg.Locker = NewKeyedMutex()
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = def.Concurrency
	}
	if cfg.DispatchTimeout <= 0 {
		cfg.DispatchTimeout = def.DispatchTimeout
	}
	if cfg.LockTimeout <= 0 {
		cfg.LockTimeout = def.LockTimeout
	}
	return &Engine{cfg: cfg}, nil
}

// RunCycle evaluates every active subscriber against the published
// snapshot. Failures of single subscribers are reported in the Result and
// leave their state untouched; only listing subscribers or cancellation of
// ctx fails the cycle.
func (e *Engine) RunCycle(ctx context.Context, doc *snapshot.AlertsDocument) (*Result, error) {
	if doc == nil {
		return nil, errors.New("alert cycle requires a snapshot")
	}
	start := e.cfg.Clock.Now()

	subs, err := e.cfg.Subscribers.List(ctx, subscriber.ListOptions{ActiveOnly: true})
	if err != nil {
		return nil, fmt.Errorf("listing subscribers: %w", err)
	}

	byDistrict := make(map[string]snapshot.DistrictSnapshot, len(doc.Districts))
	for _, s := range doc.Districts {
		byDistrict[s.DistrictID] = s
	}

	result := &Result{ReferenceTime: doc.Metadata.ReferenceTime}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.Concurrency)

	for _, sub := range subs {
		id := sub.ID
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			outcome, err := e.evaluate(gctx, id, byDistrict, doc.Metadata.ReferenceTime)
			if err != nil && gctx.Err() != nil {
				return gctx.Err()
			}

			mu.Lock()
			defer mu.Unlock()
			result.add(outcome)
			if err != nil {
				result.Errors = append(result.Errors, SubscriberError{SubscriberID: id, Err: err})
			}
			return nil
		})
	}

	waitErr := g.Wait()
	result.Duration = e.cfg.Clock.Since(start)
	e.record(result)

	if waitErr != nil {
		return result, fmt.Errorf("alert cycle cancelled: %w", waitErr)
	}

	e.cfg.Logger.Info().
		Int("evaluated", result.Evaluated).
		Int("sent", result.Sent).
		Int("unchanged", result.Unchanged).
		Int("no_data", result.NoData).
		Int("unresolved", result.Unresolved).
		Int("failed", result.Failed).
		Dur("duration", result.Duration).
		Msg("alert cycle completed")

	return result, nil
}

func (e *Engine) evaluate(ctx context.Context, id string, byDistrict map[string]snapshot.DistrictSnapshot, ref time.Time) (Outcome, error) {
	lockCtx, cancel := context.WithTimeout(ctx, e.cfg.LockTimeout)
	unlock, err := e.cfg.Locker.Lock(lockCtx, id)
	cancel()
	if err != nil {
		return OutcomeFailed, fmt.Errorf("locking subscriber: %w", err)
	}
	defer unlock()

	// Re-read under the lock; the listed copy may be stale.
	sub, err := e.cfg.Subscribers.Get(ctx, id)
	if err != nil {
		return OutcomeFailed, fmt.Errorf("loading subscriber: %w", err)
	}
	if !sub.Active {
		return OutcomeInactive, nil
	}

	d, _, err := e.cfg.Registry.ResolveNearest(sub.Latitude, sub.Longitude)
	if err != nil {
		e.cfg.Logger.Warn().
			Err(err).
			Str("subscriber_id", id).
			Msg("subscriber has no resolvable district")
		return OutcomeUnresolved, nil
	}

	snap, ok := byDistrict[d.ID]
	if !ok || snap.AQI == nil {
		return OutcomeNoData, nil
	}

	// A re-run against the same artifact must not repeat its alerts.
	if sub.AlertedFor(ref) {
		return OutcomeUnchanged, nil
	}

	level := snap.AQI.Level
	if !snap.DustStorm && level == sub.LastAlertLevel {
		return OutcomeUnchanged, nil
	}

	n := Notification{
		SubscriberID:  sub.ID,
		DistrictID:    d.ID,
		DistrictName:  d.Name,
		Level:         level,
		PreviousLevel: sub.LastAlertLevel,
		AQI:           snap.AQI.Value,
		DustStorm:     snap.DustStorm,
		Language:      sub.Language,
		ReferenceTime: ref,
	}
	if snap.Current != nil {
		pm10 := snap.Current.PM10
		n.PM10 = &pm10
	}

	dispatchCtx, cancelDispatch := context.WithTimeout(ctx, e.cfg.DispatchTimeout)
	start := e.cfg.Clock.Now()
	err = e.cfg.Notifier.Notify(dispatchCtx, n)
	cancelDispatch()
	if e.cfg.Metrics != nil {
		e.cfg.Metrics.DispatchDuration.Observe(e.cfg.Clock.Since(start).Seconds())
	}
	if err != nil {
		e.cfg.Logger.Warn().
			Err(err).
			Str("subscriber_id", id).
			Str("level", string(level)).
			Msg("notification dispatch failed")
		return OutcomeFailed, fmt.Errorf("dispatching notification: %w", err)
	}

	rec := subscriber.AlertRecord{
		DistrictID:    d.ID,
		Level:         level,
		ReferenceTime: ref,
		At:            e.cfg.Clock.Now().UTC(),
	}
	if err := e.cfg.Subscribers.RecordAlert(ctx, id, rec); err != nil {
		return OutcomeFailed, fmt.Errorf("recording alert state: %w", err)
	}

	e.cfg.Logger.Debug().
		Str("subscriber_id", id).
		Str("district_id", d.ID).
		Str("level", string(level)).
		Str("previous_level", string(sub.LastAlertLevel)).
		Bool("dust_storm", snap.DustStorm).
		Msg("notification sent")

	return OutcomeSent, nil
}

func (e *Engine) record(r *Result) {
	if e.cfg.Metrics == nil {
		return
	}
	e.cfg.Metrics.Notifications.WithLabelValues("sent").Add(float64(r.Sent))
	e.cfg.Metrics.Notifications.WithLabelValues("failed").Add(float64(r.Failed))
	e.cfg.Metrics.Notifications.WithLabelValues("skipped").Add(float64(r.Unchanged + r.NoData + r.Unresolved + r.Inactive))
}
