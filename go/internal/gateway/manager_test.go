package gateway

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, m *Manager) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	NewHandler(m).RegisterRoutes(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func dial(t *testing.T, srv *httptest.Server, sessionID uuid.UUID, viewerID string) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?session_id=" + sessionID.String() + "&viewer_id=" + viewerID
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestBroadcastReachesSessionConnections(t *testing.T) {
	m := NewManager(DefaultConnectionConfig(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.Start(ctx)

	srv := newTestServer(t, m)
	sessionID := uuid.New()
	otherSession := uuid.New()

	conn := dial(t, srv, sessionID, "alice")
	other := dial(t, srv, otherSession, "bob")

	require.Eventually(t, func() bool {
		return m.ConnectionCount(sessionID) == 1 && m.ConnectionCount(otherSession) == 1
	}, time.Second, 10*time.Millisecond)

	payload := []byte(`{"eventType":"ViewerCount"}`)
	m.Broadcast(sessionID, payload)

	conn.SetReadDeadline(time.Now().Add(time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, payload, data)

	// The other session's pool must not receive the event.
	other.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
	_, _, err = other.ReadMessage()
	assert.Error(t, err)
}

func TestDisconnectCallbackFires(t *testing.T) {
	m := NewManager(DefaultConnectionConfig(), nil)

	var mu sync.Mutex
	var gone []string
	m.OnDisconnect = func(sessionID uuid.UUID, viewerID string) {
		mu.Lock()
		gone = append(gone, viewerID)
		mu.Unlock()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.Start(ctx)

	srv := newTestServer(t, m)
	sessionID := uuid.New()

	conn := dial(t, srv, sessionID, "alice")
	require.Eventually(t, func() bool {
		return m.ConnectionCount(sessionID) == 1
	}, time.Second, 10*time.Millisecond)

	conn.Close()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(gone) == 1 && gone[0] == "alice"
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, 0, m.ConnectionCount(sessionID))
}

func TestUpgradeRequiresSessionID(t *testing.T) {
	m := NewManager(DefaultConnectionConfig(), nil)
	srv := newTestServer(t, m)

	resp, err := http.Get(srv.URL + "/ws")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
