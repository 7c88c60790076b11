package realtime

import (
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ghmassaro/presenca-treino/internal/application"
)

func dial(t *testing.T, server *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func waitForSubscribers(t *testing.T, hub *Hub, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return hub.Subscribers() == n }, 2*time.Second, 10*time.Millisecond)
}

func TestHub_BroadcastsSeatUpdates(t *testing.T) {
	hub := NewHub(slog.New(slog.NewTextHandler(io.Discard, nil)))
	server := httptest.NewServer(hub)
	t.Cleanup(server.Close)

	first := dial(t, server)
	second := dial(t, server)
	waitForSubscribers(t, hub, 2)

	hub.PublishSeats(application.SeatUpdate{SessionID: "s1", Confirmed: 3, Capacity: 6})

	for _, conn := range []*websocket.Conn{first, second} {
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
		var msg SeatMessage
		require.NoError(t, conn.ReadJSON(&msg))
		assert.Equal(t, SeatMessage{SessionID: "s1", Confirmed: 3, Capacity: 6}, msg)
	}
}

func TestHub_BroadcastsSessionRemoval(t *testing.T) {
	hub := NewHub(slog.New(slog.NewTextHandler(io.Discard, nil)))
	server := httptest.NewServer(hub)
	t.Cleanup(server.Close)

	conn := dial(t, server)
	waitForSubscribers(t, hub, 1)

	hub.PublishSeats(application.SeatUpdate{SessionID: "s1", Removed: true})

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.JSONEq(t, `{"session_id":"s1","confirmed":0,"capacity":0,"removed":true}`, string(data))
}

func TestHub_ForgetsDisconnectedClients(t *testing.T) {
	hub := NewHub(slog.New(slog.NewTextHandler(io.Discard, nil)))
	server := httptest.NewServer(hub)
	t.Cleanup(server.Close)

	conn := dial(t, server)
	waitForSubscribers(t, hub, 1)

	require.NoError(t, conn.Close())
	waitForSubscribers(t, hub, 0)
}

func TestHub_CloseDisconnectsSubscribers(t *testing.T) {
	hub := NewHub(slog.New(slog.NewTextHandler(io.Discard, nil)))
	server := httptest.NewServer(hub)
	t.Cleanup(server.Close)

	conn := dial(t, server)
	waitForSubscribers(t, hub, 1)

	hub.Close()
	assert.Zero(t, hub.Subscribers())

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err)

	hub.PublishSeats(application.SeatUpdate{SessionID: "s1"})
}
