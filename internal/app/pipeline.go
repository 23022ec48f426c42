package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/Althuwaynee/iraqairquality/internal/airquality"
	"github.com/Althuwaynee/iraqairquality/internal/alert"
	"github.com/Althuwaynee/iraqairquality/internal/api/handler"
	"github.com/Althuwaynee/iraqairquality/internal/config"
	"github.com/Althuwaynee/iraqairquality/internal/district"
	"github.com/Althuwaynee/iraqairquality/internal/forecast"
	"github.com/Althuwaynee/iraqairquality/internal/grid"
	"github.com/Althuwaynee/iraqairquality/internal/notify"
	"github.com/Althuwaynee/iraqairquality/internal/notify/resilience"
	"github.com/Althuwaynee/iraqairquality/internal/observability"
	"github.com/Althuwaynee/iraqairquality/internal/reading"
	"github.com/Althuwaynee/iraqairquality/internal/rolling"
	"github.com/Althuwaynee/iraqairquality/internal/snapshot"
	"github.com/Althuwaynee/iraqairquality/internal/worker"
)

// Options carries the process-level dependencies of a Pipeline.
type Options struct {
	Logger  zerolog.Logger
	Metrics *observability.Metrics
	Clock   clockwork.Clock

	// Notifier replaces the notifiers built from configuration. Used by tests.
	Notifier alert.Notifier
}

// Pipeline is a fully wired pipeline process.
type Pipeline struct {
	Stores     *Stores
	Registry   *district.Registry
	Sampler    *grid.Sampler
	Readings   *reading.Service
	Classifier *airquality.Classifier
	Builder    *snapshot.Builder
	Publisher  *snapshot.Publisher
	Alerts     *alert.Engine
	Transports *resilience.HealthRegistry
	Runner     *worker.Runner
	Jobs       *worker.JobHandler

	redis   *redis.Client
	closers []func() error
	logger  zerolog.Logger
}

// NewPipeline builds every component of the pipeline from cfg.
func NewPipeline(ctx context.Context, cfg *config.Config, opts Options) (*Pipeline, error) {
	logger := opts.Logger
	clock := opts.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	p := &Pipeline{
		Transports: resilience.NewHealthRegistry(),
		logger:     logger,
	}

	registry, err := district.Load(cfg.Pipeline.DistrictsFile)
	if err != nil {
		return nil, fmt.Errorf("loading districts: %w", err)
	}
	p.Registry = registry
	logger.Info().
		Int("districts", registry.Len()).
		Str("file", cfg.Pipeline.DistrictsFile).
		Msg("district registry loaded")

	stores, err := OpenStores(ctx, cfg.Pipeline, logger)
	if err != nil {
		return nil, err
	}
	p.Stores = stores

	if err := p.build(ctx, cfg, opts, clock); err != nil {
		_ = p.Close()
		return nil, err
	}
	return p, nil
}

func (p *Pipeline) build(ctx context.Context, cfg *config.Config, opts Options, clock clockwork.Clock) error {
	pc := cfg.Pipeline
	logger := p.logger

	idw := grid.DefaultIDWConfig()
	idw.MaxDistanceKm = pc.MaxDistanceKm
	reducer, err := grid.NewReducer(pc.Reducer, idw)
	if err != nil {
		return err
	}
	sampler, err := grid.NewSampler(grid.SamplerConfig{
		Source:  p.Stores.Grid,
		Reducer: reducer,
		Logger:  logger.With().Str("component", "sampler").Logger(),
	})
	if err != nil {
		return err
	}
	p.Sampler = sampler

	p.Readings = reading.NewService(reading.ServiceConfig{
		Repository: p.Stores.Readings,
		Sampler:    sampler,
		Registry:   p.Registry,
		Config: reading.IngestConfig{
			Concurrency:     pc.IngestConcurrency,
			ForecastHorizon: pc.Lookahead,
		},
		Clock:   clock,
		Logger:  logger.With().Str("component", "ingest").Logger(),
		Metrics: opts.Metrics,
	})

	table, err := airquality.TableByName(pc.AQITable)
	if err != nil {
		return err
	}
	classifier, err := airquality.NewClassifier(airquality.ClassifierConfig{
		Table:           table,
		ComplianceLimit: pc.ComplianceLimit,
	})
	if err != nil {
		return err
	}
	p.Classifier = classifier

	strategy, err := forecast.NewStrategy(pc.ForecastStrategy, p.Stores.Readings)
	if err != nil {
		return err
	}
	forecaster, err := forecast.NewGenerator(forecast.GeneratorConfig{
		Strategy:   strategy,
		Classifier: classifier,
	})
	if err != nil {
		return err
	}

	builder, err := snapshot.NewBuilder(snapshot.BuilderConfig{
		Registry:   p.Registry,
		Readings:   p.Stores.Readings,
		Aggregator: rolling.NewAggregator(p.Stores.Readings, 0),
		Classifier: classifier,
		Forecaster: forecaster,
		Logger:     logger.With().Str("component", "snapshot").Logger(),
	})
	if err != nil {
		return err
	}
	p.Builder = builder

	publisher, err := snapshot.NewPublisher(pc.ArtifactsDir, logger)
	if err != nil {
		return err
	}
	p.Publisher = publisher

	notifier := opts.Notifier
	if notifier == nil {
		notifier, err = p.notifiers(cfg)
		if err != nil {
			return err
		}
	}

	locker, err := p.locker(ctx, cfg.Redis)
	if err != nil {
		return err
	}

	engine, err := alert.NewEngine(alert.EngineConfig{
		Subscribers:     p.Stores.Subscribers,
		Registry:        p.Registry,
		Notifier:        notifier,
		Locker:          locker,
		Clock:           clock,
		Logger:          logger.With().Str("component", "alerts").Logger(),
		Metrics:         opts.Metrics,
		Concurrency:     cfg.Alerts.Concurrency,
		DispatchTimeout: cfg.Alerts.DispatchTimeout,
	})
	if err != nil {
		return err
	}
	p.Alerts = engine

	runner, err := worker.NewRunner(worker.RunnerConfig{
		Config: worker.CycleConfig{
			Lookback:  pc.Lookback,
			Lookahead: pc.Lookahead,
			Timeout:   pc.CycleTimeout,
		},
		Ingester:      p.Readings,
		Builder:       builder,
		Publisher:     publisher,
		Alerter:       engine,
		Method:        sampler.Method(),
		MaxDistanceKm: pc.MaxDistanceKm,
		Clock:         clock,
		Logger:        logger.With().Str("component", "cycle").Logger(),
		Metrics:       opts.Metrics,
	})
	if err != nil {
		return err
	}
	p.Runner = runner

	jobs, err := worker.NewJobHandler(worker.JobHandlerConfig{
		Runner:         runner,
		MaxArtifactAge: pc.MaxArtifactAge,
		Clock:          clock,
		Logger:         logger.With().Str("component", "jobs").Logger(),
	})
	if err != nil {
		return err
	}
	p.Jobs = jobs
	return nil
}

// notifiers builds the configured transports. Telegram is the primary when
// configured; otherwise the log notifier is, so a deployment without
// Telegram still records alerts. Kafka is always a secondary sink.
func (p *Pipeline) notifiers(cfg *config.Config) (alert.Notifier, error) {
	logNotifier := notify.NewLog(p.logger.With().Str("component", "notify").Logger())
	multi := &notify.Multi{
		Primary: logNotifier,
		Logger:  p.logger.With().Str("component", "notify").Logger(),
	}

	if cfg.Alerts.TelegramToken != "" {
		clientCfg := notify.TransportClientConfig(notify.TelegramTransport)
		clientCfg.Timeout = cfg.Alerts.DispatchTimeout
		clientCfg.Health = p.Transports
		clientCfg.Logger = p.logger
		tg, err := notify.NewTelegram(notify.TelegramConfig{
			Token:      cfg.Alerts.TelegramToken,
			BaseURL:    cfg.Alerts.TelegramBaseURL,
			HTTPClient: resilience.NewClient(clientCfg),
			Logger:     p.logger.With().Str("transport", notify.TelegramTransport).Logger(),
		})
		if err != nil {
			return nil, err
		}
		multi.Primary = tg
		multi.Secondary = append(multi.Secondary, logNotifier)
	}

	if cfg.Kafka.Enabled() {
		k, err := notify.NewKafka(notify.KafkaConfig{
			Brokers: cfg.Kafka.Brokers,
			Topic:   cfg.Kafka.Topic,
		})
		if err != nil {
			return nil, err
		}
		p.closers = append(p.closers, k.Close)
		multi.Secondary = append(multi.Secondary, k)
		p.logger.Info().
			Strs("brokers", cfg.Kafka.Brokers).
			Str("topic", cfg.Kafka.Topic).
			Msg("kafka notifier enabled")
	}

	return multi, nil
}

func (p *Pipeline) locker(ctx context.Context, cfg config.RedisConfig) (alert.Locker, error) {
	if !cfg.Enabled() {
		return alert.NewKeyedMutex(), nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}
	p.redis = client
	p.closers = append(p.closers, client.Close)

	lockCfg := alert.DefaultRedisLockerConfig()
	lockCfg.Client = client
	return alert.NewRedisLocker(lockCfg)
}

// Checks returns readiness probes for the stores and Redis.
func (p *Pipeline) Checks() []handler.DependencyCheck {
	checks := p.Stores.Checks()
	if p.redis != nil {
		client := p.redis
		checks = append(checks, handler.DependencyCheck{
			Name:  "redis",
			Check: func(ctx context.Context) error { return client.Ping(ctx).Err() },
		})
	}
	return checks
}

// Close releases every connection the pipeline holds.
func (p *Pipeline) Close() error {
	var errs []error
	for _, c := range p.closers {
		if err := c(); err != nil {
			errs = append(errs, err)
		}
	}
	if p.Stores != nil {
		p.Stores.Close()
	}
	return errors.Join(errs...)
}
