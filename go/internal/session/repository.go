package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mcdev12/simulive/go/internal/models"
	"github.com/mcdev12/simulive/go/internal/sqlutil"
)

// Repository implements session data access operations over Postgres.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new sessions repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const sessionColumns = `id, title, video_url, scheduled_start, video_duration_sec, is_active, created_at, updated_at`

// CreateSession inserts a new scheduled session.
func (r *Repository) CreateSession(ctx context.Context, req CreateSessionRequest) (*models.Session, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO sessions (id, title, video_url, scheduled_start, is_active)
		VALUES ($1, $2, $3, $4, false)
		RETURNING `+sessionColumns,
		uuid.New(), req.Title, req.VideoURL, req.ScheduledStart,
	)
	s, err := scanSession(row)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	return s, nil
}

// GetSession retrieves a session by ID.
func (r *Repository) GetSession(ctx context.Context, id uuid.UUID) (*models.Session, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE id = $1`, id,
	)
	s, err := scanSession(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrScheduleUnavailable
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return s, nil
}

// SetActive flips the schedule gate for a session.
func (r *Repository) SetActive(ctx context.Context, id uuid.UUID, active bool) (*models.Session, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE sessions SET is_active = $2, updated_at = now()
		WHERE id = $1
		RETURNING `+sessionColumns,
		id, active,
	)
	s, err := scanSession(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrScheduleUnavailable
		}
		return nil, fmt.Errorf("failed to update session active flag: %w", err)
	}
	return s, nil
}

// RecordStreamEnd persists the measured video duration, keyed by session
// identity. The write is idempotent: the first recorded duration wins, so
// concurrent end-of-stream detections from multiple viewers cannot clobber
// each other.
func (r *Repository) RecordStreamEnd(ctx context.Context, id uuid.UUID, durationSec float64) (*models.Session, error) {
	var s *models.Session
	err := sqlutil.Run(ctx, r.pool, func(tx pgx.Tx) error {
		var existing *float64
		if err := tx.QueryRow(ctx,
			`SELECT video_duration_sec FROM sessions WHERE id = $1 FOR UPDATE`, id,
		).Scan(&existing); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrScheduleUnavailable
			}
			return fmt.Errorf("failed to lock session: %w", err)
		}

		if existing == nil {
			if _, err := tx.Exec(ctx, `
				UPDATE sessions SET video_duration_sec = $2, updated_at = now()
				WHERE id = $1`,
				id, durationSec,
			); err != nil {
				return fmt.Errorf("failed to record stream end: %w", err)
			}
		}

		row := tx.QueryRow(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = $1`, id)
		var scanErr error
		s, scanErr = scanSession(row)
		return scanErr
	})
	if err != nil {
		return nil, err
	}
	return s, nil
}

func scanSession(row pgx.Row) (*models.Session, error) {
	var s models.Session
	err := row.Scan(
		&s.ID,
		&s.Title,
		&s.VideoURL,
		&s.ScheduledStart,
		&s.VideoDurationSec,
		&s.IsActive,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &s, nil
}
