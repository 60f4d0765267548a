package websocket

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"tradebridge/internal/models"
	"tradebridge/internal/service"
)

var _ service.EventPublisher = (*Hub)(nil)

// ============================================================
// Unit Tests
// ============================================================

func TestNewHub(t *testing.T) {
	hub := NewHub()

	if hub.ClientCount() != 0 {
		t.Errorf("expected 0 clients, got %d", hub.ClientCount())
	}
	if hub.DroppedMessages() != 0 {
		t.Errorf("expected 0 dropped messages, got %d", hub.DroppedMessages())
	}
}

func TestOriginChecker_Check(t *testing.T) {
	checker := NewOriginChecker([]string{"http://localhost:3000", " https://example.com "})

	tests := []struct {
		origin string
		want   bool
	}{
		{"", true},                       // не браузерный клиент
		{"http://localhost:3000", true},  // разрешен
		{"https://example.com", true},    // разрешен, пробелы обрезаны
		{"http://evil.com", false},       // не разрешен
		{"http://localhost:8080", false}, // нет в списке
	}

	for _, tt := range tests {
		if got := checker.Check(tt.origin); got != tt.want {
			t.Errorf("Check(%q) = %v, want %v", tt.origin, got, tt.want)
		}
	}
}

func TestOriginChecker_AllowAll(t *testing.T) {
	for _, origins := range [][]string{nil, {""}, {"*"}, {"http://a.com", "*"}} {
		checker := NewOriginChecker(origins)
		if !checker.Check("https://evil.com") {
			t.Errorf("origins=%v: ожидался allowAll", origins)
		}
	}
}

func TestHub_BroadcastNonBlocking(t *testing.T) {
	hub := NewHub()
	// Run не запущен: очередь заполняется и сообщения отбрасываются

	done := make(chan struct{})
	go func() {
		for i := 0; i < broadcastBufferSize+10; i++ {
			hub.BroadcastMappingDeleted("m-1")
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Broadcast заблокировался при полной очереди")
	}

	if got := hub.DroppedMessages(); got != 10 {
		t.Errorf("DroppedMessages() = %d, want 10", got)
	}
}

func TestHub_Stop(t *testing.T) {
	hub := NewHub()

	done := make(chan struct{})
	go func() {
		hub.Run()
		close(done)
	}()

	hub.Stop()
	hub.Stop() // повторный вызов безопасен

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Error("Hub.Run() did not exit after Stop()")
	}
}

// ============================================================
// Интеграция с реальным соединением
// ============================================================

func startHub(t *testing.T, origins ...string) (*Hub, string) {
	t.Helper()

	hub := NewHub(origins...)
	go hub.Run()
	t.Cleanup(hub.Stop)

	srv := httptest.NewServer(http.HandlerFunc(hub.ServeWS))
	t.Cleanup(srv.Close)

	return hub, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func waitClients(t *testing.T, hub *Hub, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for hub.ClientCount() != n {
		if time.Now().After(deadline) {
			t.Fatalf("ClientCount() = %d, want %d", hub.ClientCount(), n)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestHub_DeliversEvents(t *testing.T) {
	hub, url := startHub(t)

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer conn.Close()
	waitClients(t, hub, 1)

	hub.BroadcastMappingUpdate(&models.BridgeMapping{
		ID:     "m-1",
		Name:   "Hankox Demo to TradeLocker Demo",
		Status: models.MappingStatusActive,
	})
	hub.BroadcastAccountsError("metaapi", "timeout")

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	var update MappingUpdateMessage
	if err := conn.ReadJSON(&update); err != nil {
		t.Fatalf("ReadJSON() error = %v", err)
	}
	if update.Type != MessageTypeMappingUpdate || update.MappingID != "m-1" || update.Data.Status != models.MappingStatusActive {
		t.Errorf("неверное сообщение: %+v", update)
	}

	var accErr AccountsErrorMessage
	if err := conn.ReadJSON(&accErr); err != nil {
		t.Fatalf("ReadJSON() error = %v", err)
	}
	if accErr.Type != MessageTypeAccountsError || accErr.Source != "metaapi" {
		t.Errorf("неверное сообщение: %+v", accErr)
	}
}

func TestHub_ClientDisconnect(t *testing.T) {
	hub, url := startHub(t)

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	waitClients(t, hub, 1)

	conn.Close()
	waitClients(t, hub, 0)
}

func TestHub_RejectsOrigin(t *testing.T) {
	_, url := startHub(t, "https://dashboard.example.com")

	header := http.Header{"Origin": []string{"https://evil.example.com"}}
	_, resp, err := websocket.DefaultDialer.Dial(url, header)
	if err == nil {
		t.Fatal("ожидался отказ в подключении")
	}
	if resp == nil || resp.StatusCode != http.StatusForbidden {
		t.Errorf("ожидался 403, got %v", resp)
	}
}

func TestNewAccountsUpdateMessage_NilAccounts(t *testing.T) {
	msg := NewAccountsUpdateMessage(nil, time.Now(), true)
	if msg.Accounts == nil || !msg.Cached {
		t.Errorf("неверное сообщение: %+v", msg)
	}

	data, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	if !strings.Contains(string(data), `"accounts":[]`) {
		t.Errorf("accounts должен сериализоваться как []: %s", data)
	}
}

// ============================================================
// Benchmarks
// ============================================================

func BenchmarkHub_Broadcast(b *testing.B) {
	hub := NewHub()
	go hub.Run()
	defer hub.Stop()

	m := &models.BridgeMapping{ID: "m-1", Status: models.MappingStatusActive}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		hub.BroadcastMappingUpdate(m)
	}
}
