package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Althuwaynee/iraqairquality/internal/alert"
	"github.com/Althuwaynee/iraqairquality/internal/observability"
	"github.com/Althuwaynee/iraqairquality/internal/reading"
	"github.com/Althuwaynee/iraqairquality/internal/snapshot"
)

const tracerName = "github.com/Althuwaynee/iraqairquality/internal/worker"

// ErrAborted marks a cycle that stopped before publishing. The previously
// published artifacts stay in place.
var ErrAborted = errors.New("cycle aborted before publishing")

// Ingester fills the hourly store from the grid. *reading.Service implements it.
type Ingester interface {
	Ingest(ctx context.Context, from, to time.Time) (*reading.IngestResult, error)
	Backfill(ctx context.Context, hours int) (*reading.IngestResult, error)
}

// Alerter dispatches notifications for a published document.
// *alert.Engine implements it.
type Alerter interface {
	RunCycle(ctx context.Context, doc *snapshot.AlertsDocument) (*alert.Result, error)
}

// RunnerConfig holds configuration for creating a Runner.
type RunnerConfig struct {
	Config    CycleConfig
	Ingester  Ingester
	Builder   *snapshot.Builder
	Publisher *snapshot.Publisher

	// Alerter is optional. Without it cycles only publish.
	Alerter Alerter

	// Method and MaxDistanceKm describe the zonal reduction in the "now"
	// artifact metadata.
	Method        string
	MaxDistanceKm float64

	Clock   clockwork.Clock
	Logger  zerolog.Logger
	Metrics *observability.Metrics
	Tracer  trace.Tracer
}

// Runner executes pipeline cycles. Stages run strictly in order; each
// stage's output is durable before the next starts.
type Runner struct {
	config        CycleConfig
	ingester      Ingester
	builder       *snapshot.Builder
	publisher     *snapshot.Publisher
	alerter       Alerter
	method        string
	maxDistanceKm float64
	clock         clockwork.Clock
	logger        zerolog.Logger
	metrics       *observability.Metrics
	tracer        trace.Tracer
}

// NewRunner creates a new cycle runner.
func NewRunner(cfg RunnerConfig) (*Runner, error) {
	if cfg.Ingester == nil || cfg.Builder == nil || cfg.Publisher == nil {
		return nil, errors.New("cycle runner requires ingester, builder and publisher")
	}
	clock := cfg.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	tracer := cfg.Tracer
	if tracer == nil {
		tracer = otel.Tracer(tracerName)
	}

	return &Runner{
		config:        cfg.Config.withDefaults(),
		ingester:      cfg.Ingester,
		builder:       cfg.Builder,
		publisher:     cfg.Publisher,
		alerter:       cfg.Alerter,
		method:        cfg.Method,
		maxDistanceKm: cfg.MaxDistanceKm,
		clock:         clock,
		logger:        cfg.Logger,
		metrics:       cfg.Metrics,
		tracer:        tracer,
	}, nil
}

// CycleResult summarises one cycle.
type CycleResult struct {
	ID            string
	ReferenceTime time.Time
	StartedAt     time.Time
	Duration      time.Duration

	Ingest    *reading.IngestResult
	Districts int
	Complete  int
	Published bool
	Alerts    *alert.Result
}

// Run executes one full cycle at the current reference time.
func (r *Runner) Run(ctx context.Context) (*CycleResult, error) {
	ctx, cancel := context.WithTimeout(ctx, r.config.Timeout)
	defer cancel()

	start := r.clock.Now()
	result := &CycleResult{
		ID:            uuid.NewString(),
		ReferenceTime: r.config.ReferenceTime(start),
		StartedAt:     start,
	}

	ctx, span := r.tracer.Start(ctx, "pipeline.cycle", trace.WithAttributes(
		attribute.String("cycle.id", result.ID),
		attribute.String("cycle.reference_time", result.ReferenceTime.Format(time.RFC3339)),
	))
	defer span.End()

	logger := r.logger.With().
		Str("cycle_id", result.ID).
		Time("reference_time", result.ReferenceTime).
		Logger()
	logger.Info().Msg("starting pipeline cycle")

	err := r.run(ctx, logger, result)
	result.Duration = r.clock.Since(start)
	r.record(span, result, err)

	if err != nil {
		logger.Error().
			Err(err).
			Bool("published", result.Published).
			Dur("duration", result.Duration).
			Msg("pipeline cycle failed")
		return result, err
	}

	ev := logger.Info().
		Dur("duration", result.Duration).
		Int("districts", result.Districts).
		Int("complete", result.Complete)
	if result.Alerts != nil {
		ev = ev.Int("notifications_sent", result.Alerts.Sent)
	}
	ev.Msg("pipeline cycle completed")
	return result, nil
}

func (r *Runner) run(ctx context.Context, logger zerolog.Logger, result *CycleResult) error {
	asOf := result.ReferenceTime

	ingest, err := r.ingest(ctx, asOf)
	result.Ingest = ingest
	if err != nil {
		return fmt.Errorf("%w: ingest: %w", ErrAborted, err)
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrAborted, err)
	}

	snaps, err := r.build(ctx, asOf)
	if err != nil {
		return fmt.Errorf("%w: build: %w", ErrAborted, err)
	}
	result.Districts = len(snaps)
	for _, s := range snaps {
		if s.IsComplete() {
			result.Complete++
		}
	}

	generatedAt := r.clock.Now()
	nowDoc := snapshot.NewNowDocument(snaps, asOf, generatedAt, r.method, r.maxDistanceKm)
	alertsDoc := snapshot.NewAlertsDocument(r.builder, snaps, asOf, generatedAt)
	if err := alertsDoc.Validate("cycle " + result.ID); err != nil {
		return fmt.Errorf("%w: %w", ErrAborted, err)
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrAborted, err)
	}

	if err := r.publish(ctx, nowDoc, alertsDoc); err != nil {
		return fmt.Errorf("%w: publish: %w", ErrAborted, err)
	}
	result.Published = true

	if r.alerter == nil || r.config.SkipAlerts {
		logger.Debug().Msg("alert dispatch skipped")
		return nil
	}

	alerts, err := r.dispatch(ctx, &alertsDoc)
	result.Alerts = alerts
	if err != nil {
		return fmt.Errorf("alerts: %w", err)
	}
	return nil
}

func (r *Runner) ingest(ctx context.Context, asOf time.Time) (*reading.IngestResult, error) {
	ctx, span := r.tracer.Start(ctx, "pipeline.ingest")
	defer span.End()

	res, err := r.ingester.Ingest(ctx, asOf.Add(-r.config.Lookback), asOf.Add(r.config.Lookahead))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return res, err
	}
	span.SetAttributes(
		attribute.Int("ingest.timestamps", res.Timestamps),
		attribute.Int("ingest.stored", res.Stored),
		attribute.Int("ingest.failed", res.Failed),
	)
	return res, nil
}

func (r *Runner) build(ctx context.Context, asOf time.Time) ([]snapshot.DistrictSnapshot, error) {
	ctx, span := r.tracer.Start(ctx, "pipeline.build")
	defer span.End()

	snaps, err := r.builder.Build(ctx, asOf)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.Int("snapshot.districts", len(snaps)))
	return snaps, nil
}

func (r *Runner) publish(ctx context.Context, now snapshot.NowDocument, alerts snapshot.AlertsDocument) error {
	_, span := r.tracer.Start(ctx, "pipeline.publish")
	defer span.End()

	if err := r.publisher.Publish(now, alerts); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	if r.metrics != nil {
		r.metrics.ArtifactsWritten.WithLabelValues("now").Inc()
		r.metrics.ArtifactsWritten.WithLabelValues("alerts").Inc()
	}
	return nil
}

func (r *Runner) dispatch(ctx context.Context, doc *snapshot.AlertsDocument) (*alert.Result, error) {
	ctx, span := r.tracer.Start(ctx, "pipeline.alerts")
	defer span.End()

	res, err := r.alerter.RunCycle(ctx, doc)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return res, err
	}
	span.SetAttributes(
		attribute.Int("alerts.evaluated", res.Evaluated),
		attribute.Int("alerts.sent", res.Sent),
		attribute.Int("alerts.failed", res.Failed),
	)
	return res, nil
}

func (r *Runner) record(span trace.Span, result *CycleResult, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	if r.metrics == nil {
		return
	}

	r.metrics.CycleDuration.Observe(result.Duration.Seconds())
	if result.Published {
		r.metrics.SnapshotDistricts.WithLabelValues("complete").Set(float64(result.Complete))
		r.metrics.SnapshotDistricts.WithLabelValues("partial").Set(float64(result.Districts - result.Complete))
	}
	if err != nil {
		r.metrics.CyclesTotal.WithLabelValues("failed").Inc()
		return
	}
	r.metrics.CyclesTotal.WithLabelValues("success").Inc()
	r.metrics.LastCycleUnix.Set(float64(r.clock.Now().Unix()))
}

// RunAlerts dispatches notifications from the last published alerts
// artifact without ingesting or rebuilding.
func (r *Runner) RunAlerts(ctx context.Context) (*alert.Result, error) {
	if r.alerter == nil {
		return nil, errors.New("no alerter configured")
	}
	ctx, cancel := context.WithTimeout(ctx, r.config.Timeout)
	defer cancel()

	doc, err := r.publisher.LatestAlerts(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading alerts artifact: %w", err)
	}
	r.logger.Info().
		Time("reference_time", doc.Metadata.ReferenceTime).
		Int("districts", len(doc.Districts)).
		Msg("running alerts from published artifact")

	return r.dispatch(ctx, doc)
}

// Backfill re-ingests the last hours of grid data plus the forecast horizon.
func (r *Runner) Backfill(ctx context.Context, hours int) (*reading.IngestResult, error) {
	ctx, span := r.tracer.Start(ctx, "pipeline.backfill", trace.WithAttributes(
		attribute.Int("backfill.hours", hours),
	))
	defer span.End()

	res, err := r.ingester.Backfill(ctx, hours)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return res, err
	}
	return res, nil
}
