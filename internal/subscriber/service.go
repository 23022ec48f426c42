package subscriber

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/Althuwaynee/iraqairquality/internal/district"
	"github.com/Althuwaynee/iraqairquality/internal/snapshot"
)

// ConditionsSource provides the latest published alerts artifact.
type ConditionsSource interface {
	LatestAlerts(ctx context.Context) (*snapshot.AlertsDocument, error)
}

// ServiceConfig holds configuration for the Service.
type ServiceConfig struct {
	Repository Repository
	Registry   *district.Registry

	// Conditions is optional; without it Current is unavailable.
	Conditions ConditionsSource

	Clock  clockwork.Clock
	Logger zerolog.Logger
}

// Service provides subscriber operations for the bot.
type Service struct {
	repo       Repository
	registry   *district.Registry
	conditions ConditionsSource
	clock      clockwork.Clock
	logger     zerolog.Logger
}

// NewService creates a new subscriber service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Repository == nil || cfg.Registry == nil {
		return nil, errors.New("subscriber service requires a repository and a registry")
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	return &Service{
		repo:       cfg.Repository,
		registry:   cfg.Registry,
		conditions: cfg.Conditions,
		clock:      cfg.Clock,
		logger:     cfg.Logger,
	}, nil
}

// Repository returns the underlying repository.
func (s *Service) Repository() Repository {
	return s.repo
}

// Register stores a shared location and links the subscriber to the nearest
// district. A returning subscriber is reactivated; alert state and language
// are kept. Returns the subscriber and whether it was newly created.
func (s *Service) Register(ctx context.Context, id string, lat, lon float64) (*Subscriber, bool, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, false, ErrInvalidSubscriberID
	}
	if err := ValidateLocation(lat, lon); err != nil {
		return nil, false, err
	}

	d, dist, err := s.registry.ResolveNearest(lat, lon)
	if err != nil {
		return nil, false, fmt.Errorf("resolving nearest district: %w", err)
	}

	now := s.clock.Now().UTC()
	created, err := s.repo.Upsert(ctx, &Subscriber{
		ID:                id,
		Latitude:          lat,
		Longitude:         lon,
		NearestDistrictID: d.ID,
		Language:          DefaultLanguage,
		Active:            true,
		CreatedAt:         now,
		UpdatedAt:         now,
	})
	if err != nil {
		return nil, false, fmt.Errorf("storing subscriber: %w", err)
	}

	s.logger.Info().
		Str("subscriber_id", id).
		Str("district_id", d.ID).
		Float64("distance_km", dist).
		Bool("created", created).
		Msg("subscriber registered")

	sub, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, false, err
	}
	return sub, created, nil
}

// Deactivate stops alerts for a subscriber.
func (s *Service) Deactivate(ctx context.Context, id string) error {
	if err := s.repo.SetActive(ctx, id, false, s.clock.Now().UTC()); err != nil {
		return err
	}
	s.logger.Info().Str("subscriber_id", id).Msg("subscriber deactivated")
	return nil
}

// Reactivate resumes alerts for a subscriber.
func (s *Service) Reactivate(ctx context.Context, id string) error {
	if err := s.repo.SetActive(ctx, id, true, s.clock.Now().UTC()); err != nil {
		return err
	}
	s.logger.Info().Str("subscriber_id", id).Msg("subscriber reactivated")
	return nil
}

// SetLanguage changes the notification language.
func (s *Service) SetLanguage(ctx context.Context, id, lang string) error {
	l, err := ParseLanguage(lang)
	if err != nil {
		return err
	}
	return s.repo.SetLanguage(ctx, id, l, s.clock.Now().UTC())
}

// ToggleLanguage switches between Arabic and English and returns the new language.
func (s *Service) ToggleLanguage(ctx context.Context, id string) (Language, error) {
	sub, err := s.repo.Get(ctx, id)
	if err != nil {
		return "", err
	}
	next := LanguageArabic
	if sub.Language == LanguageArabic {
		next = LanguageEnglish
	}
	if err := s.repo.SetLanguage(ctx, id, next, s.clock.Now().UTC()); err != nil {
		return "", err
	}
	return next, nil
}

// Status returns the subscriber's district, last alert level and settings.
func (s *Service) Status(ctx context.Context, id string) (*Status, error) {
	sub, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	st := &Status{
		SubscriberID: sub.ID,
		DistrictID:   sub.NearestDistrictID,
		Latitude:     sub.Latitude,
		Longitude:    sub.Longitude,
		LastLevel:    sub.LastAlertLevel,
		LastAlertAt:  sub.LastAlertAt,
		Active:       sub.Active,
		Language:     sub.Language,
	}
	if d, err := s.registry.Get(sub.NearestDistrictID); err == nil {
		st.DistrictName = d.Name
	}
	return st, nil
}

// Conditions is the current state of the district nearest a subscriber.
type Conditions struct {
	SubscriberID  string                    `json:"subscriber_id"`
	Language      Language                  `json:"language"`
	DistanceKm    float64                   `json:"distance_km"`
	ReferenceTime time.Time                 `json:"reference_time"`
	District      snapshot.DistrictSnapshot `json:"district"`
}

// Current resolves the subscriber's nearest district and returns its state
// from the latest published artifact. It does not touch alert state.
func (s *Service) Current(ctx context.Context, id string) (*Conditions, error) {
	if s.conditions == nil {
		return nil, ErrNoConditions
	}

	sub, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	d, dist, err := s.registry.ResolveNearest(sub.Latitude, sub.Longitude)
	if err != nil {
		return nil, fmt.Errorf("resolving nearest district: %w", err)
	}

	doc, err := s.conditions.LatestAlerts(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading latest conditions: %w", err)
	}

	snap, ok := doc.District(d.ID)
	if !ok || snap.AQI == nil {
		return nil, fmt.Errorf("%w: %s", ErrNoConditions, d.ID)
	}

	return &Conditions{
		SubscriberID:  sub.ID,
		Language:      sub.Language,
		DistanceKm:    dist,
		ReferenceTime: doc.Metadata.ReferenceTime,
		District:      snap,
	}, nil
}
