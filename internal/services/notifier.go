package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cast"
)

// Notification is the wire shape pushed to connected clients.
type Notification struct {
	Type      string                 `json:"type"`
	UserID    uint                   `json:"user_id"`
	Payload   map[string]interface{} `json:"payload"`
	Timestamp time.Time              `json:"timestamp"`
}

// NotificationHub fans automation notifications out to websocket clients.
// Delivery is best-effort: an offline user simply misses the push, the
// execution record still carries the action outcome.
type NotificationHub struct {
	mu      sync.RWMutex
	clients map[uint]map[*websocket.Conn]bool
	logger  *logrus.Logger
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // origin checks belong to the fronting proxy
	},
}

func NewNotificationHub(logger *logrus.Logger) *NotificationHub {
	if logger == nil {
		logger = logrus.New()
	}
	return &NotificationHub{
		clients: make(map[uint]map[*websocket.Conn]bool),
		logger:  logger,
	}
}

// HandleWebSocket upgrades the connection and keeps it registered for the
// given user until the peer closes it.
func (h *NotificationHub) HandleWebSocket(c *gin.Context) {
	userID := cast.ToUint(c.Query("user_id"))
	if userID == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id is required"})
		return
	}
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warnf("notifications: upgrade failed: %v", err)
		return
	}
	h.register(userID, conn)
	go h.readLoop(userID, conn)
}

func (h *NotificationHub) register(userID uint, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[userID] == nil {
		h.clients[userID] = make(map[*websocket.Conn]bool)
	}
	h.clients[userID][conn] = true
}

func (h *NotificationHub) unregister(userID uint, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if conns, ok := h.clients[userID]; ok {
		delete(conns, conn)
		if len(conns) == 0 {
			delete(h.clients, userID)
		}
	}
	_ = conn.Close()
}

// readLoop discards inbound frames; it exists to detect the close.
func (h *NotificationHub) readLoop(userID uint, conn *websocket.Conn) {
	defer h.unregister(userID, conn)
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

// ClientCount reports currently connected user sessions.
func (h *NotificationHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, conns := range h.clients {
		n += len(conns)
	}
	return n
}

// Notify implements engine.Notifier: push the payload to every open
// connection of the user.
func (h *NotificationHub) Notify(ctx context.Context, userID uint, payload map[string]interface{}) error {
	msg, err := json.Marshal(Notification{
		Type:      "automation",
		UserID:    userID,
		Payload:   payload,
		Timestamp: time.Now(),
	})
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}

	h.mu.RLock()
	conns := make([]*websocket.Conn, 0, len(h.clients[userID]))
	for conn := range h.clients[userID] {
		conns = append(conns, conn)
	}
	h.mu.RUnlock()

	if len(conns) == 0 {
		h.logger.Debugf("notifications: user %d has no open connections", userID)
		return nil
	}
	for _, conn := range conns {
		if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			h.logger.Warnf("notifications: write to user %d failed: %v", userID, err)
			h.unregister(userID, conn)
		}
	}
	return nil
}
