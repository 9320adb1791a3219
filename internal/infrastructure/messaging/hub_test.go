package messaging

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func startHubServer(t *testing.T, hub *Hub) string {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		client := hub.Register(r.URL.Query().Get("visitor"), conn)
		if client == nil {
			conn.Close()
			return
		}
		hub.Serve(client)
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func waitForConnections(t *testing.T, hub *Hub, visitorID string, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for hub.ConnectionCount(visitorID) != n {
		if time.Now().After(deadline) {
			t.Fatalf("connections for %s = %d, want %d", visitorID, hub.ConnectionCount(visitorID), n)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestPublishReachesEveryTabOfOneVisitor(t *testing.T) {
	hub := NewHub(nil)
	t.Cleanup(hub.Close)
	url := startHubServer(t, hub)

	tab1 := dial(t, url+"?visitor=v1")
	tab2 := dial(t, url+"?visitor=v1")
	other := dial(t, url+"?visitor=v2")
	waitForConnections(t, hub, "v1", 2)
	waitForConnections(t, hub, "v2", 1)

	if n := hub.Publish("v1", map[string]string{"type": "prompt", "popup": "contentAccess"}); n != 2 {
		t.Fatalf("delivered to %d connections, want 2", n)
	}

	for _, conn := range []*websocket.Conn{tab1, tab2} {
		_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		var got map[string]string
		if err := conn.ReadJSON(&got); err != nil {
			t.Fatalf("read: %v", err)
		}
		if got["type"] != "prompt" || got["popup"] != "contentAccess" {
			t.Fatalf("payload = %v", got)
		}
	}

	_ = other.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
	if _, _, err := other.ReadMessage(); err == nil {
		t.Fatal("other visitor received a message")
	}
}

func TestClosedConnectionIsUnregistered(t *testing.T) {
	hub := NewHub(nil)
	t.Cleanup(hub.Close)
	url := startHubServer(t, hub)

	conn := dial(t, url+"?visitor=v1")
	waitForConnections(t, hub, "v1", 1)
	conn.Close()
	waitForConnections(t, hub, "v1", 0)

	if n := hub.Publish("v1", json.RawMessage(`{}`)); n != 0 {
		t.Fatalf("delivered to %d connections after close", n)
	}
}

func TestCloseRefusesNewClients(t *testing.T) {
	hub := NewHub(nil)
	url := startHubServer(t, hub)
	dial(t, url+"?visitor=v1")
	waitForConnections(t, hub, "v1", 1)

	hub.Close()
	if hub.ConnectionCount("v1") != 0 {
		t.Fatal("clients survived Close")
	}
	if c := hub.Register("v1", nil); c != nil {
		t.Fatal("closed hub accepted a client")
	}
}
