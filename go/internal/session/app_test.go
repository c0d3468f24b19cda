package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcdev12/simulive/go/internal/events"
	"github.com/mcdev12/simulive/go/internal/models"
)

// memRepo is an in-memory SessionRepository with the same first-write-wins
// duration semantics as the Postgres repository.
type memRepo struct {
	mu       sync.Mutex
	sessions map[uuid.UUID]*models.Session
}

func newMemRepo() *memRepo {
	return &memRepo{sessions: make(map[uuid.UUID]*models.Session)}
}

func (m *memRepo) CreateSession(ctx context.Context, req CreateSessionRequest) (*models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := &models.Session{
		ID:             uuid.New(),
		Title:          req.Title,
		VideoURL:       req.VideoURL,
		ScheduledStart: req.ScheduledStart,
		CreatedAt:      time.Now(),
		UpdatedAt:      time.Now(),
	}
	m.sessions[s.ID] = s
	return copySession(s), nil
}

func (m *memRepo) GetSession(ctx context.Context, id uuid.UUID) (*models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrScheduleUnavailable
	}
	return copySession(s), nil
}

func (m *memRepo) SetActive(ctx context.Context, id uuid.UUID, active bool) (*models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrScheduleUnavailable
	}
	s.IsActive = active
	return copySession(s), nil
}

func (m *memRepo) RecordStreamEnd(ctx context.Context, id uuid.UUID, durationSec float64) (*models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrScheduleUnavailable
	}
	if s.VideoDurationSec == nil {
		s.VideoDurationSec = &durationSec
	}
	return copySession(s), nil
}

func copySession(s *models.Session) *models.Session {
	c := *s
	if s.VideoDurationSec != nil {
		d := *s.VideoDurationSec
		c.VideoDurationSec = &d
	}
	return &c
}

type capturingPublisher struct {
	mu     sync.Mutex
	events []events.Type
}

func (p *capturingPublisher) Publish(ctx context.Context, sessionID uuid.UUID, eventType events.Type, payload any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, eventType)
	return nil
}

func (p *capturingPublisher) published() []events.Type {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]events.Type(nil), p.events...)
}

func validRequest() CreateSessionRequest {
	return CreateSessionRequest{
		Title:          "Launch keynote",
		VideoURL:       "https://cdn.example.com/keynote.mp4",
		ScheduledStart: time.Date(2026, 9, 1, 17, 0, 0, 0, time.UTC),
	}
}

func TestCreateSession_Validation(t *testing.T) {
	app := NewApp(newMemRepo(), nil)
	ctx := context.Background()

	_, err := app.CreateSession(ctx, CreateSessionRequest{})
	assert.Error(t, err)

	req := validRequest()
	req.VideoURL = ""
	_, err = app.CreateSession(ctx, req)
	assert.Error(t, err)

	s, err := app.CreateSession(ctx, validRequest())
	require.NoError(t, err)
	assert.False(t, s.IsActive)
	assert.Nil(t, s.VideoDurationSec)
}

func TestGetSchedule_MapsSessionFields(t *testing.T) {
	repo := newMemRepo()
	app := NewApp(repo, nil)
	ctx := context.Background()

	s, err := app.CreateSession(ctx, validRequest())
	require.NoError(t, err)
	_, err = app.SetActive(ctx, s.ID, true)
	require.NoError(t, err)

	sch, err := app.GetSchedule(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, s.ScheduledStart, sch.ScheduledStart)
	assert.True(t, sch.IsActive)
	assert.False(t, sch.DurationKnown())
}

func TestGetSchedule_UnknownSession(t *testing.T) {
	app := NewApp(newMemRepo(), nil)

	_, err := app.GetSchedule(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrScheduleUnavailable)
}

func TestRecordStreamEnd_FirstDurationWins(t *testing.T) {
	repo := newMemRepo()
	pub := &capturingPublisher{}
	app := NewApp(repo, pub)
	ctx := context.Background()

	s, err := app.CreateSession(ctx, validRequest())
	require.NoError(t, err)

	first, err := app.RecordStreamEnd(ctx, s.ID, 3600.5)
	require.NoError(t, err)
	require.NotNil(t, first.VideoDurationSec)
	assert.InDelta(t, 3600.5, *first.VideoDurationSec, 0.0001)

	// A second viewer detecting the end slightly later must not overwrite.
	second, err := app.RecordStreamEnd(ctx, s.ID, 3601.2)
	require.NoError(t, err)
	assert.InDelta(t, 3600.5, *second.VideoDurationSec, 0.0001)

	got := pub.published()
	assert.Contains(t, got, events.TypeStreamEnded)
	assert.Contains(t, got, events.TypeScheduleUpdated)
}
