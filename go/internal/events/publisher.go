package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"
)

const (
	// StreamName is the JetStream stream all session events flow through.
	StreamName = "SIMULIVE_EVENTS"

	// SubjectPrefix is the subject namespace; per-session subjects append the
	// session ID.
	SubjectPrefix = "simulive.events"
)

// Subject returns the per-session event subject.
func Subject(sessionID uuid.UUID) string {
	return fmt.Sprintf("%s.%s", SubjectPrefix, sessionID)
}

// PublisherConfig holds NATS connection settings for the publisher.
type PublisherConfig struct {
	URL           string
	MaxReconnects int
	ReconnectWait time.Duration
}

// DefaultPublisherConfig returns default publisher configuration.
func DefaultPublisherConfig() PublisherConfig {
	return PublisherConfig{
		URL:           nats.DefaultURL,
		MaxReconnects: -1, // Infinite
		ReconnectWait: 2 * time.Second,
	}
}

// Publisher publishes session events to JetStream.
type Publisher struct {
	nc *nats.Conn
	js jetstream.JetStream
}

// NewPublisher connects to NATS and ensures the event stream exists.
func NewPublisher(ctx context.Context, config PublisherConfig) (*Publisher, error) {
	opts := []nats.Option{
		nats.MaxReconnects(config.MaxReconnects),
		nats.ReconnectWait(config.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Error().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
	}

	nc, err := nats.Connect(config.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("create JetStream context: %w", err)
	}

	if _, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      StreamName,
		Subjects:  []string{SubjectPrefix + ".>"},
		Retention: jetstream.LimitsPolicy,
		MaxAge:    24 * time.Hour,
	}); err != nil {
		nc.Close()
		return nil, fmt.Errorf("ensure event stream: %w", err)
	}

	return &Publisher{nc: nc, js: js}, nil
}

// Publish wraps the payload in an envelope and publishes it on the session's
// subject.
func (p *Publisher) Publish(ctx context.Context, sessionID uuid.UUID, eventType Type, payload any) error {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal event payload: %w", err)
	}

	envelope := Envelope{
		EventID:   uuid.New().String(),
		EventType: eventType,
		SessionID: sessionID.String(),
		Timestamp: time.Now(),
		Payload:   payloadBytes,
	}
	data, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("failed to marshal event envelope: %w", err)
	}

	if _, err := p.js.Publish(ctx, Subject(sessionID), data); err != nil {
		return fmt.Errorf("failed to publish %s event: %w", eventType, err)
	}

	log.Debug().
		Str("event_id", envelope.EventID).
		Str("session_id", envelope.SessionID).
		Str("event_type", string(eventType)).
		Msg("event published")
	return nil
}

// Close shuts the NATS connection down.
func (p *Publisher) Close() {
	if p.nc != nil {
		p.nc.Close()
	}
}
