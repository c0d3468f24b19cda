package gateway

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// ConnMetrics defines what the manager needs from a metrics sink.
type ConnMetrics interface {
	ConnectionOpened()
	ConnectionClosed()
}

type noopMetrics struct{}

func (noopMetrics) ConnectionOpened() {}
func (noopMetrics) ConnectionClosed() {}

// Manager owns the WebSocket connections of watching viewers, pooled per
// session. Events consumed from the bus are fanned out to every connection
// in a session's pool.
type Manager struct {
	mu                 sync.RWMutex
	sessionConnections map[uuid.UUID]map[*Connection]bool

	upgrader websocket.Upgrader
	config   ConnectionConfig
	metrics  ConnMetrics

	// OnDisconnect, if set, is invoked after a connection is torn down.
	OnDisconnect func(sessionID uuid.UUID, viewerID string)

	broadcastCh chan broadcastMessage
}

// Connection represents a single viewer's WebSocket connection.
type Connection struct {
	ID        string
	ViewerID  string
	SessionID uuid.UUID

	conn    *websocket.Conn
	send    chan []byte
	manager *Manager

	ConnectedAt time.Time
}

// ConnectionConfig holds tunables for WebSocket connections.
type ConnectionConfig struct {
	WriteTimeout    time.Duration
	ReadTimeout     time.Duration
	PingInterval    time.Duration
	MaxMessageSize  int64
	ReadBufferSize  int
	WriteBufferSize int
	CheckOrigin     func(r *http.Request) bool
}

type broadcastMessage struct {
	sessionID uuid.UUID
	data      []byte
}

// DefaultConnectionConfig returns the default WebSocket configuration.
func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		WriteTimeout:    10 * time.Second,
		ReadTimeout:     60 * time.Second,
		PingInterval:    30 * time.Second,
		MaxMessageSize:  4096,
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			// Allow all origins in development - restrict in production
			return true
		},
	}
}

// NewManager creates a WebSocket connection manager.
func NewManager(config ConnectionConfig, metrics ConnMetrics) *Manager {
	if metrics == nil {
		metrics = noopMetrics{}
	}
	return &Manager{
		sessionConnections: make(map[uuid.UUID]map[*Connection]bool),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		config:      config,
		metrics:     metrics,
		broadcastCh: make(chan broadcastMessage, 1000),
	}
}

// Start processes broadcast messages until ctx is cancelled.
func (m *Manager) Start(ctx context.Context) {
	log.Info().Msg("connection manager started")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("connection manager shutting down")
			return
		case message := <-m.broadcastCh:
			m.handleBroadcast(message)
		}
	}
}

// UpgradeConnection upgrades an HTTP request to a WebSocket connection and
// registers it in the session's pool.
func (m *Manager) UpgradeConnection(w http.ResponseWriter, r *http.Request, viewerID string, sessionID uuid.UUID) error {
	conn, err := m.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}

	connection := &Connection{
		ID:          uuid.New().String(),
		ViewerID:    viewerID,
		SessionID:   sessionID,
		conn:        conn,
		send:        make(chan []byte, 256),
		manager:     m,
		ConnectedAt: time.Now(),
	}

	m.registerConnection(connection)

	go connection.writePump()
	go connection.readPump()

	log.Info().
		Str("connection_id", connection.ID).
		Str("viewer_id", viewerID).
		Str("session_id", sessionID.String()).
		Msg("WebSocket connection established")

	return nil
}

// Broadcast queues pre-marshaled event data for every connection watching a
// session. Drops the message if the broadcast queue is full.
func (m *Manager) Broadcast(sessionID uuid.UUID, data []byte) {
	select {
	case m.broadcastCh <- broadcastMessage{sessionID: sessionID, data: data}:
	default:
		log.Warn().Str("session_id", sessionID.String()).Msg("broadcast channel full, dropping message")
	}
}

// ConnectionCount returns the number of open connections for a session.
func (m *Manager) ConnectionCount(sessionID uuid.UUID) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessionConnections[sessionID])
}

func (m *Manager) registerConnection(conn *Connection) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.sessionConnections[conn.SessionID] == nil {
		m.sessionConnections[conn.SessionID] = make(map[*Connection]bool)
	}
	m.sessionConnections[conn.SessionID][conn] = true
	m.metrics.ConnectionOpened()

	log.Debug().
		Str("connection_id", conn.ID).
		Str("session_id", conn.SessionID.String()).
		Int("total_connections", len(m.sessionConnections[conn.SessionID])).
		Msg("connection registered")
}

func (m *Manager) unregisterConnection(conn *Connection) {
	m.mu.Lock()
	connections, exists := m.sessionConnections[conn.SessionID]
	removed := false
	if exists {
		if _, ok := connections[conn]; ok {
			delete(connections, conn)
			close(conn.send)
			removed = true

			if len(connections) == 0 {
				delete(m.sessionConnections, conn.SessionID)
			}
		}
	}
	m.mu.Unlock()

	if !removed {
		return
	}

	m.metrics.ConnectionClosed()
	log.Info().
		Str("connection_id", conn.ID).
		Str("viewer_id", conn.ViewerID).
		Str("session_id", conn.SessionID.String()).
		Msg("connection unregistered")

	if m.OnDisconnect != nil {
		m.OnDisconnect(conn.SessionID, conn.ViewerID)
	}
}

func (m *Manager) handleBroadcast(message broadcastMessage) {
	m.mu.RLock()
	connections, exists := m.sessionConnections[message.sessionID]
	if !exists {
		m.mu.RUnlock()
		return
	}

	// Snapshot so the lock is not held while writing.
	targets := make([]*Connection, 0, len(connections))
	for conn := range connections {
		targets = append(targets, conn)
	}
	m.mu.RUnlock()

	for _, conn := range targets {
		select {
		case conn.send <- message.data:
		default:
			// Connection is slow or dead, close it.
			log.Warn().
				Str("connection_id", conn.ID).
				Str("viewer_id", conn.ViewerID).
				Msg("connection send buffer full, closing connection")
			m.unregisterConnection(conn)
			conn.conn.Close()
		}
	}

	log.Debug().
		Str("session_id", message.sessionID.String()).
		Int("connections", len(targets)).
		Msg("event broadcasted")
}

func (c *Connection) writePump() {
	ticker := time.NewTicker(c.manager.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
		c.manager.unregisterConnection(c)
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(c.manager.config.WriteTimeout))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("failed to write message to WebSocket")
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(c.manager.config.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("failed to send ping")
				return
			}
		}
	}
}

func (c *Connection) readPump() {
	defer func() {
		c.manager.unregisterConnection(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(c.manager.config.MaxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(c.manager.config.ReadTimeout))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(c.manager.config.ReadTimeout))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("unexpected WebSocket close error")
			}
			break
		}

		// Viewers only receive events; inbound frames are logged and
		// otherwise ignored.
		log.Debug().
			Str("connection_id", c.ID).
			Str("viewer_id", c.ViewerID).
			RawJSON("message", message).
			Msg("received client message")
		c.conn.SetReadDeadline(time.Now().Add(c.manager.config.ReadTimeout))
	}
}
