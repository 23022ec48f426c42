package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/pubsub/v2"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
)

// Job types carried in JobMessage.JobType.
const (
	JobPipelineCycle = "pipeline_cycle"
	JobBackfill      = "backfill"
	JobAlerts        = "alerts"
	JobHealthCheck   = "health_check"
)

// DefaultBackfillHours is used when a backfill message carries no hours.
const DefaultBackfillHours = 72

// ErrUnknownJob is returned for messages with an unrecognised job type.
var ErrUnknownJob = errors.New("unknown job type")

// ErrStaleArtifact is returned by the health check when the last published
// artifact is older than allowed.
var ErrStaleArtifact = errors.New("published artifact is stale")

// PubSubHandler handles Pub/Sub messages for the worker.
type PubSubHandler struct {
	client           *pubsub.Client
	subscriber       *pubsub.Subscriber
	subscriptionName string
	jobs             *JobHandler
	logger           zerolog.Logger
}

// PubSubConfig holds configuration for the Pub/Sub handler.
type PubSubConfig struct {
	ProjectID        string
	SubscriptionName string
	Jobs             *JobHandler
	Logger           zerolog.Logger
}

// JobMessage is a pipeline job request, usually published by Cloud Scheduler.
type JobMessage struct {
	JobType string `json:"job_type"`
	Hours   int    `json:"hours,omitempty"`
}

// NewPubSubHandler creates a new Pub/Sub handler.
func NewPubSubHandler(ctx context.Context, cfg PubSubConfig) (*PubSubHandler, error) {
	if cfg.Jobs == nil {
		return nil, errors.New("pubsub handler requires a job handler")
	}
	client, err := pubsub.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}

	subscriber := client.Subscriber(cfg.SubscriptionName)

	// One cycle at a time; cycles must not overlap.
	subscriber.ReceiveSettings.MaxOutstandingMessages = 1
	subscriber.ReceiveSettings.MaxExtension = 30 * time.Minute

	return &PubSubHandler{
		client:           client,
		subscriber:       subscriber,
		subscriptionName: cfg.SubscriptionName,
		jobs:             cfg.Jobs,
		logger:           cfg.Logger,
	}, nil
}

// Start begins processing Pub/Sub messages. It blocks until ctx is done.
func (h *PubSubHandler) Start(ctx context.Context) error {
	h.logger.Info().
		Str("subscription", h.subscriptionName).
		Msg("starting pubsub handler")

	return h.subscriber.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		h.handleMessage(ctx, msg)
	})
}

// Close closes the Pub/Sub client.
func (h *PubSubHandler) Close() error {
	return h.client.Close()
}

func (h *PubSubHandler) handleMessage(ctx context.Context, msg *pubsub.Message) {
	logger := h.logger.With().
		Str("message_id", msg.ID).
		Str("publish_time", msg.PublishTime.Format(time.RFC3339)).
		Logger()

	logger.Debug().Msg("received pubsub message")

	err := h.jobs.Handle(ctx, msg.Data)
	switch {
	case err == nil:
		msg.Ack()
	case errors.Is(err, ErrUnknownJob):
		// Ack unknown messages to prevent redelivery.
		logger.Warn().Err(err).Msg("dropping message")
		msg.Ack()
	case errors.Is(err, ErrAborted), errors.Is(err, ErrStaleArtifact):
		// The next scheduled message retries; redelivery would only
		// stack cycles.
		logger.Error().Err(err).Msg("job failed")
		msg.Ack()
	default:
		logger.Error().Err(err).Msg("job failed")
		msg.Nack()
	}
}

// JobHandlerConfig holds configuration for creating a JobHandler.
type JobHandlerConfig struct {
	Runner *Runner

	// MaxArtifactAge is how old the published artifact may be before the
	// health check fails.
	// Default: 6 hours
	MaxArtifactAge time.Duration

	Clock  clockwork.Clock
	Logger zerolog.Logger
}

// JobHandler decodes job messages and runs them. It is transport
// independent so the same jobs can be triggered from Pub/Sub or the CLI.
type JobHandler struct {
	runner         *Runner
	maxArtifactAge time.Duration
	clock          clockwork.Clock
	logger         zerolog.Logger
}

// NewJobHandler creates a JobHandler.
func NewJobHandler(cfg JobHandlerConfig) (*JobHandler, error) {
	if cfg.Runner == nil {
		return nil, errors.New("job handler requires a runner")
	}
	maxAge := cfg.MaxArtifactAge
	if maxAge <= 0 {
		maxAge = 6 * time.Hour
	}
	clock := cfg.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &JobHandler{
		runner:         cfg.Runner,
		maxArtifactAge: maxAge,
		clock:          clock,
		logger:         cfg.Logger,
	}, nil
}

// Handle runs the job encoded in data.
func (h *JobHandler) Handle(ctx context.Context, data []byte) error {
	var msg JobMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return fmt.Errorf("%w: malformed message: %v", ErrUnknownJob, err)
	}
	return h.Run(ctx, msg)
}

// Run executes one job.
func (h *JobHandler) Run(ctx context.Context, msg JobMessage) error {
	start := h.clock.Now()

	var err error
	switch msg.JobType {
	case JobPipelineCycle:
		_, err = h.runner.Run(ctx)
	case JobBackfill:
		hours := msg.Hours
		if hours <= 0 {
			hours = DefaultBackfillHours
		}
		_, err = h.runner.Backfill(ctx, hours)
	case JobAlerts:
		_, err = h.runner.RunAlerts(ctx)
	case JobHealthCheck:
		err = h.HealthCheck(ctx)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownJob, msg.JobType)
	}
	if err != nil {
		return err
	}

	h.logger.Info().
		Str("job_type", msg.JobType).
		Dur("duration", h.clock.Since(start)).
		Msg("job completed successfully")
	return nil
}

// HealthCheck verifies that a valid alerts artifact exists and is recent.
func (h *JobHandler) HealthCheck(ctx context.Context) error {
	doc, err := h.runner.publisher.LatestAlerts(ctx)
	if err != nil {
		return fmt.Errorf("health check: %w", err)
	}
	age := h.clock.Since(doc.Metadata.GeneratedAt)
	if age > h.maxArtifactAge {
		return fmt.Errorf("%w: generated %s ago", ErrStaleArtifact, age.Round(time.Minute))
	}
	h.logger.Debug().Dur("artifact_age", age).Msg("health check passed")
	return nil
}
