package worker_test

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Althuwaynee/iraqairquality/internal/airquality"
	"github.com/Althuwaynee/iraqairquality/internal/alert"
	"github.com/Althuwaynee/iraqairquality/internal/district"
	"github.com/Althuwaynee/iraqairquality/internal/forecast"
	"github.com/Althuwaynee/iraqairquality/internal/grid"
	"github.com/Althuwaynee/iraqairquality/internal/observability"
	"github.com/Althuwaynee/iraqairquality/internal/reading"
	"github.com/Althuwaynee/iraqairquality/internal/snapshot"
	"github.com/Althuwaynee/iraqairquality/internal/subscriber"
	"github.com/Althuwaynee/iraqairquality/internal/validation"
	"github.com/Althuwaynee/iraqairquality/internal/worker"
)

var (
	refTime = time.Date(2025, 10, 17, 12, 0, 0, 0, time.UTC)
	now     = refTime.Add(40 * time.Minute)
)

type recorder struct {
	mu   sync.Mutex
	sent []alert.Notification
}

func (r *recorder) Notify(_ context.Context, n alert.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, n)
	return nil
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sent)
}

type pipeline struct {
	runner    *worker.Runner
	readings  *reading.InMemoryRepository
	subs      *subscriber.InMemoryRepository
	publisher *snapshot.Publisher
	notifier  *recorder
	metrics   *observability.Metrics
	clock     *clockwork.FakeClock
}

func testRegistry(t *testing.T) *district.Registry {
	t.Helper()
	reg, err := district.New([]district.District{
		{ID: "IRQ.1.1", Name: "Baghdad", ProvinceID: "1", ProvinceName: "Baghdad", Lat: 33.3, Lon: 44.4},
		{ID: "IRQ.2.1", Name: "Najaf", ProvinceID: "2", ProvinceName: "An-Najaf", Lat: 32.0, Lon: 44.3},
		{ID: "IRQ.9.9", Name: "Remote", ProvinceID: "9", ProvinceName: "Anbar", Lat: 36.5, Lon: 41.0},
	})
	require.NoError(t, err)
	return reg
}

// testGrid covers Baghdad and Najaf every 3 hours from a day before to a day
// after the reference time. Najaf is in a dust storm throughout.
func testGrid() *grid.MemorySource {
	src := grid.NewMemorySource()
	for h := -24; h <= 24; h += 3 {
		src.Put(grid.Frame{
			Time: refTime.Add(time.Duration(h) * time.Hour),
			Cells: []grid.Cell{
				{Lat: 33.35, Lon: 44.4, Value: 80},
				{Lat: 32.05, Lon: 44.3, Value: 320},
			},
		})
	}
	return src
}

func newPipeline(t *testing.T, ingester worker.Ingester, cycle worker.CycleConfig) *pipeline {
	t.Helper()
	return newPipelineIn(t, t.TempDir(), ingester, cycle)
}

func newPipelineIn(t *testing.T, dir string, ingester worker.Ingester, cycle worker.CycleConfig) *pipeline {
	t.Helper()
	p := &pipeline{
		readings: reading.NewInMemoryRepository(),
		subs:     subscriber.NewInMemoryRepository(),
		notifier: &recorder{},
		metrics:  observability.NewMetricsForTesting(),
		clock:    clockwork.NewFakeClockAt(now),
	}
	reg := testRegistry(t)

	if ingester == nil {
		sampler, err := grid.NewSampler(grid.SamplerConfig{Source: testGrid(), Logger: zerolog.Nop()})
		require.NoError(t, err)
		ingester = reading.NewService(reading.ServiceConfig{
			Repository: p.readings,
			Sampler:    sampler,
			Registry:   reg,
			Clock:      p.clock,
			Logger:     zerolog.Nop(),
			Metrics:    p.metrics,
		})
	}

	cls, err := airquality.NewClassifier(airquality.DefaultClassifierConfig())
	require.NoError(t, err)
	gen, err := forecast.NewGenerator(forecast.GeneratorConfig{
		Strategy:   forecast.NewStoreFeed(p.readings, 0, 0),
		Classifier: cls,
	})
	require.NoError(t, err)
	builder, err := snapshot.NewBuilder(snapshot.BuilderConfig{
		Registry:   reg,
		Readings:   p.readings,
		Classifier: cls,
		Forecaster: gen,
		Logger:     zerolog.Nop(),
	})
	require.NoError(t, err)

	p.publisher, err = snapshot.NewPublisher(dir, zerolog.Nop())
	require.NoError(t, err)

	engine, err := alert.NewEngine(alert.EngineConfig{
		Subscribers: p.subs,
		Registry:    reg,
		Notifier:    p.notifier,
		Clock:       p.clock,
		Logger:      zerolog.Nop(),
		Metrics:     p.metrics,
	})
	require.NoError(t, err)

	p.runner, err = worker.NewRunner(worker.RunnerConfig{
		Config:        cycle,
		Ingester:      ingester,
		Builder:       builder,
		Publisher:     p.publisher,
		Alerter:       engine,
		Method:        grid.MethodConstrainedIDW,
		MaxDistanceKm: 55,
		Clock:         p.clock,
		Logger:        zerolog.Nop(),
		Metrics:       p.metrics,
	})
	require.NoError(t, err)
	return p
}

func (p *pipeline) subscribe(t *testing.T, id string, lat, lon float64) {
	t.Helper()
	_, err := p.subs.Upsert(context.Background(), &subscriber.Subscriber{
		ID: id, Latitude: lat, Longitude: lon, Language: subscriber.LanguageEnglish,
		CreatedAt: now, UpdatedAt: now,
	})
	require.NoError(t, err)
}

func TestCycleConfig_ReferenceTime(t *testing.T) {
	cfg := worker.DefaultCycleConfig()

	assert.Equal(t, refTime, cfg.ReferenceTime(now))
	assert.Equal(t, refTime, cfg.ReferenceTime(refTime))
	assert.Equal(t, refTime.Add(-3*time.Hour), cfg.ReferenceTime(refTime.Add(-time.Minute)))

	baghdad := time.FixedZone("AST", 3*60*60)
	assert.Equal(t, refTime, cfg.ReferenceTime(now.In(baghdad)))
}

func TestRun_PublishesAndAlerts(t *testing.T) {
	p := newPipeline(t, nil, worker.CycleConfig{})
	p.subscribe(t, "100", 32.01, 44.33)
	p.subscribe(t, "200", 33.31, 44.36)

	res, err := p.runner.Run(context.Background())
	require.NoError(t, err)

	assert.NotEmpty(t, res.ID)
	assert.Equal(t, refTime, res.ReferenceTime)
	assert.True(t, res.Published)
	assert.Equal(t, 3, res.Districts)
	require.NotNil(t, res.Ingest)
	assert.Equal(t, 17, res.Ingest.Timestamps)
	assert.Equal(t, 34, res.Ingest.Stored)

	doc, err := snapshot.LoadAlerts(p.publisher.AlertsPath())
	require.NoError(t, err)
	assert.Equal(t, refTime, doc.Metadata.ReferenceTime)
	najaf, ok := doc.District("IRQ.2.1")
	require.True(t, ok)
	require.NotNil(t, najaf.AQI)
	assert.Equal(t, airquality.LevelHazardous, najaf.AQI.Level)
	assert.True(t, najaf.DustStorm)

	remote, ok := doc.District("IRQ.9.9")
	require.True(t, ok)
	assert.Nil(t, remote.Current)
	assert.False(t, remote.IsComplete())

	_, err = os.Stat(p.publisher.NowPath())
	require.NoError(t, err)

	require.NotNil(t, res.Alerts)
	assert.Equal(t, 2, res.Alerts.Sent)
	assert.Equal(t, 2, p.notifier.count())

	assert.Equal(t, 1.0, testutil.ToFloat64(p.metrics.CyclesTotal.WithLabelValues("success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.metrics.ArtifactsWritten.WithLabelValues("alerts")))
	assert.Equal(t, float64(now.Unix()), testutil.ToFloat64(p.metrics.LastCycleUnix))
}

func TestRun_DustStormRenotifiesEachCycle(t *testing.T) {
	p := newPipeline(t, nil, worker.CycleConfig{})
	p.subscribe(t, "100", 32.01, 44.33)
	p.subscribe(t, "200", 33.31, 44.36)

	_, err := p.runner.Run(context.Background())
	require.NoError(t, err)

	p.clock.Advance(3 * time.Hour)
	res, err := p.runner.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, refTime.Add(3*time.Hour), res.ReferenceTime)

	// Baghdad is unchanged; Najaf is still in a dust storm.
	assert.Equal(t, 1, res.Alerts.Sent)
	assert.Equal(t, 1, res.Alerts.Unchanged)
	assert.Equal(t, 3, p.notifier.count())
}

func TestRun_SkipAlerts(t *testing.T) {
	p := newPipeline(t, nil, worker.CycleConfig{SkipAlerts: true})
	p.subscribe(t, "100", 32.01, 44.33)

	res, err := p.runner.Run(context.Background())
	require.NoError(t, err)

	assert.True(t, res.Published)
	assert.Nil(t, res.Alerts)
	assert.Zero(t, p.notifier.count())
}

type fakeIngester struct {
	mu        sync.Mutex
	err       error
	from, to  time.Time
	backfills []int
}

func (f *fakeIngester) Ingest(_ context.Context, from, to time.Time) (*reading.IngestResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.from, f.to = from, to
	if f.err != nil {
		return nil, f.err
	}
	return &reading.IngestResult{From: from, To: to}, nil
}

func (f *fakeIngester) Backfill(_ context.Context, hours int) (*reading.IngestResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.backfills = append(f.backfills, hours)
	return &reading.IngestResult{}, f.err
}

func TestRun_IngestWindow(t *testing.T) {
	ing := &fakeIngester{}
	p := newPipeline(t, ing, worker.CycleConfig{Lookback: 6 * time.Hour, Lookahead: 12 * time.Hour})

	_, err := p.runner.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, refTime.Add(-6*time.Hour), ing.from)
	assert.Equal(t, refTime.Add(12*time.Hour), ing.to)
}

func TestRun_AbortsBeforePublishing(t *testing.T) {
	dir := t.TempDir()
	good := newPipelineIn(t, dir, nil, worker.CycleConfig{})
	_, err := good.runner.Run(context.Background())
	require.NoError(t, err)
	before, err := os.ReadFile(good.publisher.AlertsPath())
	require.NoError(t, err)

	ing := &fakeIngester{err: validation.NewSchemaError("grid.nc", "SCONC_DUST", "missing variable")}
	bad := newPipelineIn(t, dir, ing, worker.CycleConfig{})

	res, err := bad.runner.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, worker.ErrAborted)
	assert.True(t, validation.IsSchemaError(err))
	assert.False(t, res.Published)

	after, err := os.ReadFile(bad.publisher.AlertsPath())
	require.NoError(t, err)
	assert.Equal(t, before, after)
	assert.Equal(t, 1.0, testutil.ToFloat64(bad.metrics.CyclesTotal.WithLabelValues("failed")))
}

func TestRun_Cancelled(t *testing.T) {
	p := newPipeline(t, nil, worker.CycleConfig{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := p.runner.Run(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, res.Published)
	_, statErr := os.Stat(p.publisher.AlertsPath())
	assert.True(t, os.IsNotExist(statErr))
}

func TestRunAlerts_FromPublishedArtifact(t *testing.T) {
	p := newPipeline(t, nil, worker.CycleConfig{SkipAlerts: true})
	p.subscribe(t, "100", 32.01, 44.33)

	_, err := p.runner.Run(context.Background())
	require.NoError(t, err)
	require.Zero(t, p.notifier.count())

	res, err := p.runner.RunAlerts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, refTime, res.ReferenceTime)
	assert.Equal(t, 1, res.Sent)
	require.Equal(t, 1, p.notifier.count())
	assert.Equal(t, "IRQ.2.1", p.notifier.sent[0].DistrictID)
	assert.True(t, p.notifier.sent[0].DustStorm)

	// Re-running the job against the same artifact sends nothing new.
	res, err = p.runner.RunAlerts(context.Background())
	require.NoError(t, err)
	assert.Zero(t, res.Sent)
	assert.Equal(t, 1, res.Unchanged)
	assert.Equal(t, 1, p.notifier.count())
}

func TestRunAlerts_NoArtifact(t *testing.T) {
	p := newPipeline(t, nil, worker.CycleConfig{})

	_, err := p.runner.RunAlerts(context.Background())
	assert.Error(t, err)
}

func TestNewRunner_RequiresCollaborators(t *testing.T) {
	_, err := worker.NewRunner(worker.RunnerConfig{})
	assert.Error(t, err)
}

func TestJobHandler(t *testing.T) {
	ing := &fakeIngester{}
	p := newPipeline(t, ing, worker.CycleConfig{})
	jobs, err := worker.NewJobHandler(worker.JobHandlerConfig{
		Runner: p.runner,
		Clock:  p.clock,
		Logger: zerolog.Nop(),
	})
	require.NoError(t, err)
	ctx := context.Background()

	t.Run("unknown job", func(t *testing.T) {
		err := jobs.Handle(ctx, []byte(`{"job_type":"provider_refresh"}`))
		assert.ErrorIs(t, err, worker.ErrUnknownJob)
	})

	t.Run("malformed message", func(t *testing.T) {
		err := jobs.Handle(ctx, []byte(`not json`))
		assert.ErrorIs(t, err, worker.ErrUnknownJob)
	})

	t.Run("health check before first publish", func(t *testing.T) {
		err := jobs.Handle(ctx, []byte(`{"job_type":"health_check"}`))
		require.Error(t, err)
		assert.False(t, errors.Is(err, worker.ErrStaleArtifact))
	})

	t.Run("pipeline cycle", func(t *testing.T) {
		require.NoError(t, jobs.Handle(ctx, []byte(`{"job_type":"pipeline_cycle"}`)))
		_, err := os.Stat(p.publisher.AlertsPath())
		assert.NoError(t, err)
	})

	t.Run("backfill", func(t *testing.T) {
		require.NoError(t, jobs.Handle(ctx, []byte(`{"job_type":"backfill"}`)))
		require.NoError(t, jobs.Handle(ctx, []byte(`{"job_type":"backfill","hours":12}`)))
		assert.Equal(t, []int{worker.DefaultBackfillHours, 12}, ing.backfills)
	})

	t.Run("alerts", func(t *testing.T) {
		assert.NoError(t, jobs.Handle(ctx, []byte(`{"job_type":"alerts"}`)))
	})

	t.Run("health check", func(t *testing.T) {
		require.NoError(t, jobs.Handle(ctx, []byte(`{"job_type":"health_check"}`)))

		p.clock.Advance(7 * time.Hour)
		err := jobs.Handle(ctx, []byte(`{"job_type":"health_check"}`))
		assert.ErrorIs(t, err, worker.ErrStaleArtifact)
	})
}

func TestNewJobHandler_RequiresRunner(t *testing.T) {
	_, err := worker.NewJobHandler(worker.JobHandlerConfig{})
	assert.Error(t, err)
}
