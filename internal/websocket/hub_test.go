package websocket

import (
	"sync"
	"testing"
	"time"

	"cyclebot/internal/models"
)

// ============================================================
// Unit Tests
// ============================================================

func TestNewHub(t *testing.T) {
	hub := NewHub(nil)

	if hub == nil {
		t.Fatal("NewHub returned nil")
	}

	if hub.ClientCount() != 0 {
		t.Errorf("expected 0 clients, got %d", hub.ClientCount())
	}

	if hub.DroppedMessages() != 0 {
		t.Errorf("expected 0 dropped messages, got %d", hub.DroppedMessages())
	}
}

func TestOriginChecker_Check(t *testing.T) {
	checker := &OriginChecker{
		allowedOrigins: map[string]struct{}{
			"http://localhost:3000": {},
			"https://example.com":   {},
		},
		allowAll: false,
	}

	tests := []struct {
		origin string
		want   bool
	}{
		{"", true},                       // empty origin allowed
		{"http://localhost:3000", true},  // allowed
		{"https://example.com", true},    // allowed
		{"http://evil.com", false},       // not allowed
		{"http://localhost:8080", false}, // not in list
	}

	for _, tt := range tests {
		got := checker.Check(tt.origin)
		if got != tt.want {
			t.Errorf("Check(%q) = %v, want %v", tt.origin, got, tt.want)
		}
	}
}

func TestOriginChecker_AllowAll(t *testing.T) {
	checker := &OriginChecker{
		allowAll: true,
	}

	origins := []string{
		"http://localhost:3000",
		"https://evil.com",
		"http://anything.example.org",
	}

	for _, origin := range origins {
		if !checker.Check(origin) {
			t.Errorf("allowAll=true but Check(%q) = false", origin)
		}
	}
}

func TestHub_BroadcastNonBlocking(t *testing.T) {
	hub := NewHub(nil)

	// Цикл Run не запущен: канал переполнится и сообщения начнут отбрасываться
	for i := 0; i < 1000; i++ {
		hub.Broadcast(map[string]int{"i": i})
	}

	if hub.DroppedMessages() == 0 {
		t.Error("expected dropped messages when broadcast channel is full")
	}
}

func TestHub_Stop(t *testing.T) {
	hub := NewHub(nil)

	done := make(chan struct{})
	go func() {
		hub.Run()
		close(done)
	}()

	time.Sleep(10 * time.Millisecond)
	hub.Stop()

	select {
	case <-done:
		// Run() завершился
	case <-time.After(1 * time.Second):
		t.Error("Hub.Run() did not exit after Stop()")
	}
}

func TestHub_StopClosesClients(t *testing.T) {
	hub := NewHub(nil)
	go hub.Run()

	client := &Client{hub: hub, send: make(chan []byte, clientSendBufferSize)}
	hub.register <- client

	hub.Stop()

	select {
	case _, ok := <-client.send:
		if ok {
			t.Error("expected closed send channel after Stop")
		}
	case <-time.After(1 * time.Second):
		t.Error("client send channel not closed after Stop")
	}
}

func TestNewBookUpdateMessage_Spread(t *testing.T) {
	msg := NewBookUpdateMessage("paper", "BTC-USDT", 100.0, 1.0, 101.0, 2.0)

	if msg.Type != MessageTypeBookUpdate {
		t.Errorf("type = %s, want %s", msg.Type, MessageTypeBookUpdate)
	}
	if msg.Data.Spread != 1.0 {
		t.Errorf("spread = %v, want 1.0", msg.Data.Spread)
	}

	// Пустая сторона бидов не должна давать деление на ноль
	empty := NewBookUpdateMessage("paper", "BTC-USDT", 0, 0, 101.0, 2.0)
	if empty.Data.Spread != 0 {
		t.Errorf("spread with empty bids = %v, want 0", empty.Data.Spread)
	}
}

func TestNewNotificationMessage(t *testing.T) {
	notif := &models.Notification{
		ID:       7,
		Type:     models.NotificationTypeKillSwitch,
		Severity: models.SeverityError,
		Market:   "paper",
		Message:  "halted",
	}

	msg := NewNotificationMessage(notif)
	if msg.Data.ID != 7 || msg.Data.Type != models.NotificationTypeKillSwitch {
		t.Errorf("unexpected notification data: %+v", msg.Data)
	}
}

// ============================================================
// Benchmarks
// ============================================================

// BenchmarkHub_Broadcast тестирует скорость broadcast
func BenchmarkHub_Broadcast(b *testing.B) {
	hub := NewHub(nil)
	go hub.Run()
	defer hub.Stop()

	msg := map[string]interface{}{
		"type": "test",
		"data": "benchmark message",
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		hub.Broadcast(msg)
	}
}

// BenchmarkHub_BroadcastRaw тестирует скорость broadcast уже сериализованных данных
func BenchmarkHub_BroadcastRaw(b *testing.B) {
	hub := NewHub(nil)
	go hub.Run()
	defer hub.Stop()

	data := []byte(`{"type":"test","data":"benchmark message"}`)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		hub.BroadcastRaw(data)
	}
}

// BenchmarkHub_BroadcastBookUpdate тестирует реальный use case
func BenchmarkHub_BroadcastBookUpdate(b *testing.B) {
	hub := NewHub(nil)
	go hub.Run()
	defer hub.Stop()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		hub.BroadcastBookUpdate("paper", "BTC-USDT", 100.0, 1.5, 100.1, 2.5)
	}
}

// BenchmarkOriginChecker_Check тестирует скорость проверки origin
func BenchmarkOriginChecker_Check(b *testing.B) {
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		originChecker.Check("http://localhost:3000")
	}
}

// BenchmarkClientPool тестирует sync.Pool для клиентов
func BenchmarkClientPool(b *testing.B) {
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		client := clientPool.Get().(*Client)
		clientPool.Put(client)
	}
}

// BenchmarkHub_ManyClients симулирует много клиентов
func BenchmarkHub_ManyClients(b *testing.B) {
	hub := NewHub(nil)
	go hub.Run()
	defer hub.Stop()

	var clients []*Client
	for i := 0; i < 100; i++ {
		client := &Client{
			hub:  hub,
			send: make(chan []byte, clientSendBufferSize),
		}
		hub.register <- client
		clients = append(clients, client)

		go func(c *Client) {
			for range c.send {
				// discard
			}
		}(client)
	}

	time.Sleep(50 * time.Millisecond)

	msg := map[string]string{"type": "test", "data": "benchmark"}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		hub.Broadcast(msg)
	}
	b.StopTimer()
}

// ============================================================
// Parallel Stress Test
// ============================================================

func TestHub_ConcurrentOperations(t *testing.T) {
	hub := NewHub(nil)
	go hub.Run()
	defer hub.Stop()

	var wg sync.WaitGroup
	const goroutines = 10
	const operations = 1000

	// Concurrent broadcasts
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for j := 0; j < operations; j++ {
				hub.Broadcast(map[string]int{"goroutine": id, "op": j})
			}
		}(i)
	}

	// Concurrent ClientCount reads
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < operations; j++ {
				_ = hub.ClientCount()
			}
		}()
	}

	wg.Wait()
}
