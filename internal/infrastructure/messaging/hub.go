package messaging

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/MichaelMishaev/signals-sub003/internal/infrastructure/observability/logging"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
	sendBuffer     = 16
)

// Client is one websocket connection of a visitor.
type Client struct {
	VisitorID string
	conn      *websocket.Conn
	send      chan []byte
}

// Hub tracks websocket clients per visitor, so every open tab of a
// visitor sees the same prompt and reconciliation events.
type Hub struct {
	mu       sync.RWMutex
	visitors map[string]map[*Client]struct{}
	closed   bool
	logger   *logging.ChanneledLogger
}

// NewHub creates an empty hub.
func NewHub(logger *logging.ChanneledLogger) *Hub {
	if logger == nil {
		logger = logging.NewDiscardLogger()
	}
	return &Hub{
		visitors: make(map[string]map[*Client]struct{}),
		logger:   logger,
	}
}

// Register adds conn as a client of visitorID. It returns nil once the
// hub is closed.
func (h *Hub) Register(visitorID string, conn *websocket.Conn) *Client {
	client := &Client{VisitorID: visitorID, conn: conn, send: make(chan []byte, sendBuffer)}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}
	if h.visitors[visitorID] == nil {
		h.visitors[visitorID] = make(map[*Client]struct{})
	}
	h.visitors[visitorID][client] = struct{}{}

	h.logger.WithVisitor(logging.ChannelRealtime, visitorID).Debug("Websocket client registered", "connections", len(h.visitors[visitorID]))
	return client
}

// Unregister removes a client and closes its send queue. Safe to call twice.
func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.remove(client)
}

func (h *Hub) remove(client *Client) {
	clients, ok := h.visitors[client.VisitorID]
	if !ok {
		return
	}
	if _, ok := clients[client]; !ok {
		return
	}
	delete(clients, client)
	close(client.send)
	if len(clients) == 0 {
		delete(h.visitors, client.VisitorID)
	}
	h.logger.WithVisitor(logging.ChannelRealtime, client.VisitorID).Debug("Websocket client unregistered")
}

// ConnectionCount returns the number of open connections of a visitor.
func (h *Hub) ConnectionCount(visitorID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.visitors[visitorID])
}

// Publish marshals payload once and queues it on every connection of the
// visitor. Full queues drop the message. It returns the number of
// connections the message was queued on.
func (h *Hub) Publish(visitorID string, payload any) int {
	message, err := json.Marshal(payload)
	if err != nil {
		h.logger.Realtime().Error("Failed to marshal realtime payload", "error", err.Error())
		return 0
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	delivered := 0
	for client := range h.visitors[visitorID] {
		select {
		case client.send <- message:
			delivered++
		default:
			h.logger.WithVisitor(logging.ChannelRealtime, visitorID).Warn("Websocket queue full, message dropped")
		}
	}
	return delivered
}

// Serve pumps messages to the client until the connection fails or the
// hub drops it. It blocks and unregisters the client on return.
func (h *Hub) Serve(client *Client) {
	done := make(chan struct{})
	go func() {
		h.writePump(client)
		close(done)
	}()
	h.readPump(client)
	h.Unregister(client)
	<-done
}

// readPump discards inbound frames; it exists to process pongs and
// notice closed connections.
func (h *Hub) readPump(client *Client) {
	client.conn.SetReadLimit(maxMessageSize)
	_ = client.conn.SetReadDeadline(time.Now().Add(pongWait))
	client.conn.SetPongHandler(func(string) error {
		return client.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := client.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.WithVisitor(logging.ChannelRealtime, client.VisitorID).Debug("Websocket read failed", "error", err.Error())
			}
			return
		}
	}
}

func (h *Hub) writePump(client *Client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		client.conn.Close()
	}()

	for {
		select {
		case message, ok := <-client.send:
			_ = client.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = client.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := client.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			_ = client.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := client.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Close drops every client. Later registrations are refused.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for _, clients := range h.visitors {
		for client := range clients {
			h.remove(client)
		}
	}
}
