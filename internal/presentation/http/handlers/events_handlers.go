package handlers

import (
	"net/http"
	"slices"

	"github.com/MichaelMishaev/signals-sub003/internal/application/services"
	"github.com/MichaelMishaev/signals-sub003/internal/infrastructure/messaging"
	"github.com/MichaelMishaev/signals-sub003/internal/infrastructure/observability/logging"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// EventsHandlers upgrades visitors to the realtime prompt channel.
type EventsHandlers struct {
	visitors *services.VisitorService
	hub      *messaging.Hub
	upgrader websocket.Upgrader
	logger   *logging.ChanneledLogger
}

// NewEventsHandlers creates the websocket handler. Browser connections are
// accepted only from allowedOrigins.
func NewEventsHandlers(visitors *services.VisitorService, hub *messaging.Hub, allowedOrigins []string, logger *logging.ChanneledLogger) *EventsHandlers {
	return &EventsHandlers{
		visitors: visitors,
		hub:      hub,
		logger:   logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || slices.Contains(allowedOrigins, origin)
			},
		},
	}
}

// snapshotMessage is the first frame of every connection.
type snapshotMessage struct {
	Type  string `json:"type"`
	State any    `json:"state"`
}

// GetEvents handles GET /api/v1/gate/events
func (h *EventsHandlers) GetEvents(c *gin.Context) {
	visitorID, ok := requireVisitor(c)
	if !ok {
		return
	}
	snap, err := h.visitors.Mount(visitorID)
	if err != nil {
		engineError(c, err)
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.WithVisitor(logging.ChannelRealtime, visitorID).Debug("Websocket upgrade failed", "error", err.Error())
		return
	}
	if err := conn.WriteJSON(snapshotMessage{Type: "snapshot", State: snap}); err != nil {
		conn.Close()
		return
	}

	client := h.hub.Register(visitorID, conn)
	if client == nil {
		conn.Close()
		return
	}
	h.hub.Serve(client)
}
