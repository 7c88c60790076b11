// Package realtime pushes seat count changes to browsers over websockets.
package realtime

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ghmassaro/presenca-treino/internal/application"
)

const (
	sendBuffer   = 16
	writeTimeout = 5 * time.Second
	pongWait     = 60 * time.Second
	pingInterval = pongWait * 9 / 10
)

// SeatMessage is the JSON payload sent to subscribers.
type SeatMessage struct {
	SessionID string `json:"session_id"`
	Confirmed int    `json:"confirmed"`
	Capacity  int    `json:"capacity"`
	Removed   bool   `json:"removed,omitempty"`
}

// Hub fans seat updates out to every connected subscriber. A subscriber
// whose buffer is full is disconnected instead of slowing the publisher.
type Hub struct {
	upgrader websocket.Upgrader
	logger   *slog.Logger

	mu      sync.Mutex
	clients map[*client]struct{}
	closed  bool
}

var _ application.SeatNotifier = (*Hub)(nil)

// NewHub returns an empty hub. The upgrader keeps gorilla's same-origin check.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		upgrader: websocket.Upgrader{ReadBufferSize: 1024, WriteBufferSize: 1024},
		logger:   logger.With("component", "realtime"),
		clients:  make(map[*client]struct{}),
	}
}

// PublishSeats implements application.SeatNotifier. It never blocks.
func (h *Hub) PublishSeats(update application.SeatUpdate) {
	data, err := json.Marshal(SeatMessage{
		SessionID: update.SessionID,
		Confirmed: update.Confirmed,
		Capacity:  update.Capacity,
		Removed:   update.Removed,
	})
	if err != nil {
		h.logger.Error("failed to encode seat update", "error", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			h.logger.Warn("dropping slow subscriber", "remote", c.remote)
			h.removeLocked(c)
		}
	}
}

// Subscribers returns the number of connected clients.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// ServeHTTP upgrades the request and streams seat updates until the client
// disconnects or the hub is closed.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.WarnContext(r.Context(), "websocket upgrade failed", "error", err)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &client{
		conn:   conn,
		send:   make(chan []byte, sendBuffer),
		remote: r.RemoteAddr,
		ctx:    ctx,
		cancel: cancel,
	}
	if !h.add(c) {
		c.close()
		return
	}
	h.logger.Debug("subscriber connected", "remote", c.remote)

	go c.writeLoop()
	c.readLoop()

	h.remove(c)
	h.logger.Debug("subscriber disconnected", "remote", c.remote)
}

// Close disconnects every subscriber and refuses new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for c := range h.clients {
		h.removeLocked(c)
	}
}

func (h *Hub) add(c *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[c] = struct{}{}
	return true
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(c)
}

func (h *Hub) removeLocked(c *client) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	c.close()
}

// client is one websocket subscriber. Only writeLoop writes to conn.
type client struct {
	conn      *websocket.Conn
	send      chan []byte
	remote    string
	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
}

func (c *client) writeLoop() {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case data := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
				c.close()
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				c.close()
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout)); err != nil {
				c.close()
				return
			}
		case <-c.ctx.Done():
			return
		}
	}
}

// readLoop discards client messages; it exists to process control frames
// and notice when the peer goes away.
func (c *client) readLoop() {
	c.conn.SetReadLimit(512)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *client) close() {
	c.closeOnce.Do(func() {
		c.cancel()
		_ = c.conn.Close()
	})
}
