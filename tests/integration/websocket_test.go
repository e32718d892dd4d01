// Package integration contains integration tests for the cycle trading bot.
//
// WebSocket Integration Tests
// These tests verify the full path from hub broadcast to a connected
// client: upgrade over the router, registration, message delivery.
package integration

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	gws "github.com/gorilla/websocket"

	"cyclebot/internal/models"
	"cyclebot/internal/websocket"
)

// wsURL converts an httptest server URL to the stream endpoint
func wsURL(ts *TestServer) string {
	return "ws" + strings.TrimPrefix(ts.Server.URL, "http") + "/ws/stream"
}

// dialStream connects to the stream endpoint and waits for the hub to
// register the client
func dialStream(t *testing.T, ts *TestServer) *gws.Conn {
	t.Helper()

	conn, _, err := gws.DefaultDialer.Dial(wsURL(ts), nil)
	if err != nil {
		t.Fatalf("failed to dial websocket: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for ts.Hub.ClientCount() == 0 {
		if time.Now().After(deadline) {
			conn.Close()
			t.Fatal("hub never registered the client")
		}
		time.Sleep(10 * time.Millisecond)
	}
	return conn
}

func TestWebSocketConnect_Integration(t *testing.T) {
	ts := SetupTestServer(t)
	defer ts.Cleanup()

	conn := dialStream(t, ts)
	defer conn.Close()

	if got := ts.Hub.ClientCount(); got != 1 {
		t.Errorf("ClientCount = %d, want 1", got)
	}
}

func TestWebSocketNotificationBroadcast_Integration(t *testing.T) {
	ts := SetupTestServer(t)
	defer ts.Cleanup()

	conn := dialStream(t, ts)
	defer conn.Close()

	ts.Hub.BroadcastNotification(&models.Notification{
		ID:       7,
		Type:     models.NotificationTypeCycleOpen,
		Severity: models.SeverityInfo,
		Market:   "paper",
		Message:  "cycle opened",
	})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("failed to read broadcast: %v", err)
	}

	var msg websocket.NotificationMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("failed to decode message: %v", err)
	}
	if msg.Type != websocket.MessageTypeNotification {
		t.Errorf("message type = %q, want %q", msg.Type, websocket.MessageTypeNotification)
	}
	if msg.Data == nil || msg.Data.Message != "cycle opened" || msg.Data.Market != "paper" {
		t.Errorf("unexpected payload: %+v", msg.Data)
	}
}

func TestWebSocketBookBroadcast_Integration(t *testing.T) {
	ts := SetupTestServer(t)
	defer ts.Cleanup()

	conn := dialStream(t, ts)
	defer conn.Close()

	ts.Hub.BroadcastBookUpdate("paper", "BTC-USDT", 99.5, 2, 100.5, 2)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("failed to read broadcast: %v", err)
	}

	var msg websocket.BookUpdateMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("failed to decode message: %v", err)
	}
	if msg.Pair != "BTC-USDT" || msg.Data == nil {
		t.Fatalf("unexpected message: %+v", msg)
	}
	if msg.Data.BestBidPrice != 99.5 || msg.Data.BestAskPrice != 100.5 {
		t.Errorf("unexpected top of book: %+v", msg.Data)
	}
	if msg.Data.Spread <= 0 {
		t.Errorf("expected positive spread, got %v", msg.Data.Spread)
	}
}

func TestWebSocketMultipleClients_Integration(t *testing.T) {
	ts := SetupTestServer(t)
	defer ts.Cleanup()

	first := dialStream(t, ts)
	defer first.Close()

	second, _, err := gws.DefaultDialer.Dial(wsURL(ts), nil)
	if err != nil {
		t.Fatalf("failed to dial second client: %v", err)
	}
	defer second.Close()

	deadline := time.Now().Add(2 * time.Second)
	for ts.Hub.ClientCount() < 2 {
		if time.Now().After(deadline) {
			t.Fatalf("expected 2 clients, got %d", ts.Hub.ClientCount())
		}
		time.Sleep(10 * time.Millisecond)
	}

	ts.Hub.BroadcastBalanceUpdate("paper", "USDT", 10000)

	for i, conn := range []*gws.Conn{first, second} {
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		_, data, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("client %d failed to read broadcast: %v", i, err)
		}

		var msg websocket.BalanceUpdateMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			t.Fatalf("client %d failed to decode message: %v", i, err)
		}
		if msg.Asset != "USDT" || msg.Balance != 10000 {
			t.Errorf("client %d got unexpected message: %+v", i, msg)
		}
	}
}
