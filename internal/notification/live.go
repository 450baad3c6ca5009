package notification

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/frahmantamala/fleet-approval/internal/core/events"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	sendBufferSize = 16
)

// TokenValidator resolves a bearer token to a user id.
type TokenValidator interface {
	UserIDFromToken(token string) (int64, error)
}

type liveClient struct {
	userID int64
	conn   *websocket.Conn
	send   chan []byte
}

// Hub pushes freshly persisted notifications to the recipient's open sockets.
type Hub struct {
	mu       sync.RWMutex
	clients  map[int64]map[*liveClient]struct{}
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

func NewHub(allowedOrigin func(r *http.Request) bool, logger *slog.Logger) *Hub {
	if allowedOrigin == nil {
		allowedOrigin = func(r *http.Request) bool { return true }
	}
	return &Hub{
		clients: make(map[int64]map[*liveClient]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     allowedOrigin,
		},
		logger: logger,
	}
}

// OnNotificationCreated is the event bus handler for notification.created.
func (h *Hub) OnNotificationCreated(_ context.Context, event events.Event) error {
	e, ok := event.(*events.NotificationCreatedEvent)
	if !ok {
		return nil
	}
	payload, err := json.Marshal(map[string]interface{}{
		"type":         "notification",
		"notification": e.Body,
	})
	if err != nil {
		return err
	}
	h.Deliver(e.RecipientID, payload)
	return nil
}

// Deliver queues payload on every socket of userID and returns how many took it.
// Sockets whose buffer is full are dropped.
func (h *Hub) Deliver(userID int64, payload []byte) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	delivered := 0
	for c := range h.clients[userID] {
		select {
		case c.send <- payload:
			delivered++
		default:
			h.removeLocked(c)
		}
	}
	return delivered
}

// Connected reports the number of open sockets for userID.
func (h *Hub) Connected(userID int64) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[userID])
}

func (h *Hub) register(c *liveClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[c.userID] == nil {
		h.clients[c.userID] = make(map[*liveClient]struct{})
	}
	h.clients[c.userID][c] = struct{}{}
	h.logger.Debug("live client connected", "user_id", c.userID)
}

func (h *Hub) unregister(c *liveClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(c)
}

func (h *Hub) removeLocked(c *liveClient) {
	set, ok := h.clients[c.userID]
	if !ok {
		return
	}
	if _, ok := set[c]; !ok {
		return
	}
	delete(set, c)
	close(c.send)
	if len(set) == 0 {
		delete(h.clients, c.userID)
	}
	h.logger.Debug("live client disconnected", "user_id", c.userID)
}

// ServeWS upgrades an authenticated request; the token travels in the query
// string because browsers cannot set headers on websocket handshakes.
func (h *Hub) ServeWS(validator TokenValidator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := r.URL.Query().Get("token")
		if token == "" {
			http.Error(w, "missing token", http.StatusUnauthorized)
			return
		}
		userID, err := validator.UserIDFromToken(token)
		if err != nil {
			h.logger.Warn("websocket rejected: invalid token", "error", err)
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}

		conn, err := h.upgrader.Upgrade(w, r, nil)
		if err != nil {
			h.logger.Warn("websocket upgrade failed", "user_id", userID, "error", err)
			return
		}

		c := &liveClient{userID: userID, conn: conn, send: make(chan []byte, sendBufferSize)}
		h.register(c)

		go h.writePump(c)
		go h.readPump(c)
	}
}

func (h *Hub) writePump(c *liveClient) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *Hub) readPump(c *liveClient) {
	defer func() {
		h.unregister(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(512)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Debug("websocket closed unexpectedly", "user_id", c.userID, "error", err)
			}
			return
		}
	}
}
