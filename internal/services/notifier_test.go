package services

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

func dialHub(t *testing.T, hub *NotificationHub, userID string) (*websocket.Conn, func()) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/ws", hub.HandleWebSocket)
	srv := httptest.NewServer(r)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?user_id=" + userID
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		srv.Close()
		t.Fatalf("dial: %v", err)
	}
	return conn, func() {
		conn.Close()
		srv.Close()
	}
}

func TestNotificationHub_DeliversToConnectedUser(t *testing.T) {
	hub := NewNotificationHub(nil)
	conn, cleanup := dialHub(t, hub, "7")
	defer cleanup()

	// Registration happens on the server goroutine.
	deadline := time.Now().Add(time.Second)
	for hub.ClientCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if hub.ClientCount() != 1 {
		t.Fatal("client never registered")
	}

	if err := hub.Notify(context.Background(), 7, map[string]interface{}{"message": "hi"}); err != nil {
		t.Fatal(err)
	}

	conn.SetReadDeadline(time.Now().Add(time.Second))
	_, raw, err := conn.ReadMessage()
	if err != nil {
		t.Fatal(err)
	}
	var n Notification
	if err := json.Unmarshal(raw, &n); err != nil {
		t.Fatal(err)
	}
	if n.Type != "automation" || n.UserID != 7 || n.Payload["message"] != "hi" {
		t.Fatalf("notification = %+v", n)
	}
}

func TestNotificationHub_OfflineUserIsNotAnError(t *testing.T) {
	hub := NewNotificationHub(nil)
	if err := hub.Notify(context.Background(), 99, map[string]interface{}{"message": "hi"}); err != nil {
		t.Fatalf("offline delivery must be a silent no-op, got %v", err)
	}
}

func TestNotificationHub_RequiresUserID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	hub := NewNotificationHub(nil)
	r := gin.New()
	r.GET("/ws", hub.HandleWebSocket)
	srv := httptest.NewServer(r)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	if _, _, err := websocket.DefaultDialer.Dial(url, nil); err == nil {
		t.Fatal("missing user_id must refuse the upgrade")
	}
}
