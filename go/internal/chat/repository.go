package chat

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mcdev12/simulive/go/internal/models"
)

// Repository implements chat message data access over Postgres.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new chat repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// InsertMessage persists a chat message.
func (r *Repository) InsertMessage(ctx context.Context, msg models.ChatMessage) (*models.ChatMessage, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO chat_messages (id, session_id, user_id, username, body)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, session_id, user_id, username, body, created_at`,
		msg.ID, msg.SessionID, msg.UserID, msg.Username, msg.Body,
	)

	var out models.ChatMessage
	if err := row.Scan(&out.ID, &out.SessionID, &out.UserID, &out.Username, &out.Body, &out.CreatedAt); err != nil {
		return nil, fmt.Errorf("failed to insert chat message: %w", err)
	}
	return &out, nil
}

// ListRecentMessages returns the latest limit messages for a session in
// chronological order.
func (r *Repository) ListRecentMessages(ctx context.Context, sessionID uuid.UUID, limit int) ([]models.ChatMessage, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, session_id, user_id, username, body, created_at
		FROM chat_messages
		WHERE session_id = $1
		ORDER BY created_at DESC
		LIMIT $2`,
		sessionID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list chat messages: %w", err)
	}
	defer rows.Close()

	var msgs []models.ChatMessage
	for rows.Next() {
		var m models.ChatMessage
		if err := rows.Scan(&m.ID, &m.SessionID, &m.UserID, &m.Username, &m.Body, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan chat message: %w", err)
		}
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read chat messages: %w", err)
	}

	// Newest-first from the query; chronological for the caller.
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}
