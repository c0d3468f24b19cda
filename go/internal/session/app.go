package session

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/simulive/go/internal/events"
	"github.com/mcdev12/simulive/go/internal/lifecycle"
	"github.com/mcdev12/simulive/go/internal/models"
)

// SessionRepository defines what the app layer needs from the repository.
type SessionRepository interface {
	CreateSession(ctx context.Context, req CreateSessionRequest) (*models.Session, error)
	GetSession(ctx context.Context, id uuid.UUID) (*models.Session, error)
	SetActive(ctx context.Context, id uuid.UUID, active bool) (*models.Session, error)
	RecordStreamEnd(ctx context.Context, id uuid.UUID, durationSec float64) (*models.Session, error)
}

// EventPublisher defines what the app layer needs from the event bus.
type EventPublisher interface {
	Publish(ctx context.Context, sessionID uuid.UUID, eventType events.Type, payload any) error
}

// App handles session schedule business logic.
type App struct {
	repo      SessionRepository
	publisher EventPublisher
}

// NewApp creates a new sessions App. The publisher may be nil when no event
// bus is wired (e.g. in tests).
func NewApp(repo SessionRepository, publisher EventPublisher) *App {
	return &App{
		repo:      repo,
		publisher: publisher,
	}
}

// CreateSession schedules a new broadcast, inactive until activated.
func (a *App) CreateSession(ctx context.Context, req CreateSessionRequest) (*models.Session, error) {
	if req.Title == "" {
		return nil, fmt.Errorf("title is required")
	}
	if req.VideoURL == "" {
		return nil, fmt.Errorf("video_url is required")
	}
	if req.ScheduledStart.IsZero() {
		return nil, fmt.Errorf("scheduled_start is required")
	}

	s, err := a.repo.CreateSession(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	log.Info().
		Str("session_id", s.ID.String()).
		Time("scheduled_start", s.ScheduledStart).
		Msg("session created")
	return s, nil
}

// GetSession retrieves a session by ID.
func (a *App) GetSession(ctx context.Context, id uuid.UUID) (*models.Session, error) {
	return a.repo.GetSession(ctx, id)
}

// GetSchedule fetches the scheduling inputs for state derivation. The data is
// treated as already validated; no schema checks happen here.
func (a *App) GetSchedule(ctx context.Context, id uuid.UUID) (lifecycle.Schedule, error) {
	s, err := a.repo.GetSession(ctx, id)
	if err != nil {
		return lifecycle.Schedule{}, err
	}
	return lifecycle.Schedule{
		ScheduledStart:   s.ScheduledStart,
		VideoDurationSec: s.VideoDurationSec,
		IsActive:         s.IsActive,
	}, nil
}

// SetActive gates whether the schedule participates in state derivation.
func (a *App) SetActive(ctx context.Context, id uuid.UUID, active bool) (*models.Session, error) {
	s, err := a.repo.SetActive(ctx, id, active)
	if err != nil {
		return nil, err
	}
	log.Info().
		Str("session_id", id.String()).
		Bool("active", active).
		Msg("session active flag updated")
	a.publishScheduleUpdated(ctx, s)
	return s, nil
}

// RecordStreamEnd persists a naturally detected stream end. The repository
// upsert is idempotent per session, so concurrent detections from multiple
// viewers settle on the first recorded duration. Both the stream-ended event
// and the refreshed schedule are fanned out so joined viewers flip to ended
// without re-fetching.
func (a *App) RecordStreamEnd(ctx context.Context, id uuid.UUID, durationSec float64) (*models.Session, error) {
	s, err := a.repo.RecordStreamEnd(ctx, id, durationSec)
	if err != nil {
		return nil, fmt.Errorf("failed to record stream end: %w", err)
	}

	log.Info().
		Str("session_id", id.String()).
		Float64("duration_sec", durationSec).
		Msg("stream end recorded")

	if a.publisher != nil {
		if err := a.publisher.Publish(ctx, id, events.TypeStreamEnded, events.StreamEndedPayload{
			SessionID:   id,
			DurationSec: durationSec,
		}); err != nil {
			log.Error().Err(err).Str("session_id", id.String()).Msg("failed to publish StreamEnded event")
		}
	}
	a.publishScheduleUpdated(ctx, s)
	return s, nil
}

func (a *App) publishScheduleUpdated(ctx context.Context, s *models.Session) {
	if a.publisher == nil || s == nil {
		return
	}
	err := a.publisher.Publish(ctx, s.ID, events.TypeScheduleUpdated, events.ScheduleUpdatedPayload{Session: *s})
	if err != nil {
		log.Error().Err(err).Str("session_id", s.ID.String()).Msg("failed to publish ScheduleUpdated event")
	}
}
