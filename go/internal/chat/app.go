package chat

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/simulive/go/internal/events"
	"github.com/mcdev12/simulive/go/internal/models"
)

// MaxBodyLength caps chat message size.
const MaxBodyLength = 500

// DefaultHistoryLimit is how many messages a joining viewer receives.
const DefaultHistoryLimit = 50

// ChatRepository defines what the app layer needs from the repository.
type ChatRepository interface {
	InsertMessage(ctx context.Context, msg models.ChatMessage) (*models.ChatMessage, error)
	ListRecentMessages(ctx context.Context, sessionID uuid.UUID, limit int) ([]models.ChatMessage, error)
}

// EventPublisher defines what the app layer needs from the event bus.
type EventPublisher interface {
	Publish(ctx context.Context, sessionID uuid.UUID, eventType events.Type, payload any) error
}

// ChatMetrics defines what the app needs from a metrics sink.
type ChatMetrics interface {
	RecordChatMessage()
}

type noopMetrics struct{}

func (noopMetrics) RecordChatMessage() {}

// App handles chat business logic: persist first, then fan out.
type App struct {
	repo      ChatRepository
	publisher EventPublisher
	metrics   ChatMetrics
}

// NewApp creates a new chat App. Publisher and metrics may be nil.
func NewApp(repo ChatRepository, publisher EventPublisher, metrics ChatMetrics) *App {
	if metrics == nil {
		metrics = noopMetrics{}
	}
	return &App{
		repo:      repo,
		publisher: publisher,
		metrics:   metrics,
	}
}

// PostMessageRequest holds one incoming chat message.
type PostMessageRequest struct {
	SessionID uuid.UUID `json:"session_id"`
	UserID    string    `json:"user_id"`
	Username  string    `json:"username"`
	Body      string    `json:"body"`
}

// PostMessage validates, persists, and broadcasts a chat message.
func (a *App) PostMessage(ctx context.Context, req PostMessageRequest) (*models.ChatMessage, error) {
	body := strings.TrimSpace(req.Body)
	if body == "" {
		return nil, fmt.Errorf("message body is required")
	}
	if len(body) > MaxBodyLength {
		return nil, fmt.Errorf("message body exceeds %d characters", MaxBodyLength)
	}
	if req.UserID == "" {
		return nil, fmt.Errorf("user_id is required")
	}

	msg, err := a.repo.InsertMessage(ctx, models.ChatMessage{
		ID:        uuid.New(),
		SessionID: req.SessionID,
		UserID:    req.UserID,
		Username:  req.Username,
		Body:      body,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to post message: %w", err)
	}
	a.metrics.RecordChatMessage()

	if a.publisher != nil {
		err := a.publisher.Publish(ctx, msg.SessionID, events.TypeChatMessage, events.ChatMessagePayload{Message: *msg})
		if err != nil {
			// The message is persisted; fan-out failure is not fatal.
			log.Error().
				Err(err).
				Str("session_id", msg.SessionID.String()).
				Str("message_id", msg.ID.String()).
				Msg("failed to publish chat message")
		}
	}
	return msg, nil
}

// History returns the most recent messages for a session in chronological
// order.
func (a *App) History(ctx context.Context, sessionID uuid.UUID, limit int) ([]models.ChatMessage, error) {
	if limit <= 0 || limit > 200 {
		limit = DefaultHistoryLimit
	}
	msgs, err := a.repo.ListRecentMessages(ctx, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch chat history: %w", err)
	}
	return msgs, nil
}
