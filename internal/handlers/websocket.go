package handlers

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/google/uuid"

	"boardroom/internal/services"
)

// clientEvent is the small set of control messages a subscriber may send.
type clientEvent struct {
	Type string `json:"type"`
}

// WebSocketHandler handles transcript subscription connections. A client
// connects per session and receives a full snapshot on every persisted change.
type WebSocketHandler struct {
	connManager *services.ConnectionManager
	turns       *services.TurnService
	metrics     *services.Metrics
}

// NewWebSocketHandler creates a new WebSocket handler
func NewWebSocketHandler(connManager *services.ConnectionManager, turns *services.TurnService, metrics *services.Metrics) *WebSocketHandler {
	return &WebSocketHandler{connManager: connManager, turns: turns, metrics: metrics}
}

// Handle handles a new WebSocket connection
func (h *WebSocketHandler) Handle(c *websocket.Conn) {
	userID, _ := c.Locals("user_id").(string)
	sessionID := c.Params("id")
	if userID == "" || sessionID == "" {
		c.Close()
		return
	}

	conn := &services.ClientConnection{
		ConnID:    uuid.New().String(),
		UserID:    userID,
		SessionID: sessionID,
		WriteChan: make(chan []byte, 64),
		StopChan:  make(chan struct{}, 1),
	}

	// The connection manager owns connect/disconnect accounting.
	h.connManager.Add(conn)
	defer h.connManager.Remove(conn.ConnID)

	go h.writeLoop(c, conn)

	// Initial snapshot so a reconnecting client catches up immediately.
	h.sendSnapshot(conn, userID, sessionID)

	for {
		_, data, err := c.ReadMessage()
		if err != nil {
			return
		}
		var event clientEvent
		if err := json.Unmarshal(data, &event); err != nil {
			continue
		}
		if h.metrics != nil {
			h.metrics.RecordWebSocketMessage(event.Type, "inbound")
		}
		switch event.Type {
		case "stop":
			h.turns.Stop(userID, sessionID)
		case "ping":
			conn.WriteChan <- []byte(`{"type":"pong"}`)
		}
	}
}

func (h *WebSocketHandler) writeLoop(c *websocket.Conn, conn *services.ClientConnection) {
	defer c.Close()
	for {
		select {
		case data, ok := <-conn.WriteChan:
			if !ok {
				return
			}
			c.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-conn.StopChan:
			return
		}
	}
}

func (h *WebSocketHandler) sendSnapshot(conn *services.ClientConnection, userID, sessionID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	messages, err := h.turns.Transcript(ctx, userID, sessionID)
	if err != nil {
		log.Printf("⚠️ Failed to load transcript for ws snapshot: %v", err)
		return
	}
	h.connManager.NotifySession(userID, sessionID, messages)
}
