package main

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonboulle/clockwork"

	"github.com/mcdev12/simulive/go/internal/chat"
	"github.com/mcdev12/simulive/go/internal/events"
	"github.com/mcdev12/simulive/go/internal/gateway"
	"github.com/mcdev12/simulive/go/internal/metrics"
	"github.com/mcdev12/simulive/go/internal/presence"
	"github.com/mcdev12/simulive/go/internal/session"
	"github.com/mcdev12/simulive/go/internal/timeref"
)

// Services holds the wired application graph.
type Services struct {
	Metrics   *metrics.Metrics
	Publisher *events.Publisher
	Times     *timeref.Reference
	Sessions  *session.App
	Chat      *chat.App
	Presence  *presence.Tracker
	Gateway   *gateway.Manager
	Consumer  *gateway.EventConsumer
}

// setupServices wires the dependency chain: pool -> repositories -> apps,
// with the event publisher and metrics shared across them.
func setupServices(ctx context.Context, pool *pgxpool.Pool, config *Config) (*Services, error) {
	m := metrics.New()
	clock := clockwork.NewRealClock()

	publisher, err := events.NewPublisher(ctx, events.PublisherConfig{
		URL:           config.NATS.URL,
		MaxReconnects: -1,
		ReconnectWait: 2 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create event publisher: %w", err)
	}

	// Time authority. Without a configured upstream the local clock is
	// authoritative and probing is disabled.
	var times *timeref.Reference
	if config.Time.SourceURL != "" {
		times = timeref.NewReference(
			timeref.NewHTTPTimeSource(config.Time.SourceURL),
			timeref.WithClock(clock),
			timeref.WithStaleAfter(config.staleAfter()),
			timeref.WithMetrics(m),
		)
	}

	// Sessions
	sessionRepo := session.NewRepository(pool)
	sessionApp := session.NewApp(sessionRepo, publisher)

	// Chat
	chatRepo := chat.NewRepository(pool)
	chatApp := chat.NewApp(chatRepo, publisher, m)

	// Presence
	tracker := presence.NewTracker(presence.TrackerConfig{
		Clock:         clock,
		Publisher:     publisher,
		Metrics:       m,
		TTL:           config.presenceTTL(),
		SweepInterval: config.presenceSweepInterval(),
	})

	// Gateway. A dropped socket releases the viewer's presence immediately
	// instead of waiting out the heartbeat TTL.
	manager := gateway.NewManager(gateway.DefaultConnectionConfig(), m)
	manager.OnDisconnect = func(sessionID uuid.UUID, viewerID string) {
		tracker.Leave(context.Background(), sessionID, viewerID)
	}
	consumerConfig := gateway.DefaultConsumerConfig()
	consumerConfig.URL = config.NATS.URL
	consumer, err := gateway.NewEventConsumer(manager, consumerConfig)
	if err != nil {
		publisher.Close()
		return nil, fmt.Errorf("failed to create event consumer: %w", err)
	}

	return &Services{
		Metrics:   m,
		Publisher: publisher,
		Times:     times,
		Sessions:  sessionApp,
		Chat:      chatApp,
		Presence:  tracker,
		Gateway:   manager,
		Consumer:  consumer,
	}, nil
}
