package services

import (
	"encoding/json"
	"log"
	"sync"

	"boardroom/internal/models"
)

// ClientConnection is one WebSocket subscriber: a client watching a session's
// transcript. Writes go through WriteChan so a single goroutine owns the
// socket.
type ClientConnection struct {
	ConnID    string
	UserID    string
	SessionID string
	WriteChan chan []byte
	StopChan  chan struct{}
	closeOnce sync.Once
}

// CloseChannels shuts down the connection's channels exactly once.
func (c *ClientConnection) CloseChannels() {
	c.closeOnce.Do(func() {
		close(c.WriteChan)
		close(c.StopChan)
	})
}

// snapshotEvent is the wire format for a transcript push.
type snapshotEvent struct {
	Type      string           `json:"type"`
	SessionID string           `json:"session_id"`
	Messages  []models.Message `json:"messages"`
}

// ConnectionManager tracks active WebSocket connections and pushes transcript
// snapshots to every subscriber of a session. It implements the scheduler's
// notifier contract.
type ConnectionManager struct {
	connections map[string]*ClientConnection
	mutex       sync.RWMutex
	metrics     *Metrics
}

// NewConnectionManager creates a new connection manager
func NewConnectionManager() *ConnectionManager {
	return &ConnectionManager{
		connections: make(map[string]*ClientConnection),
	}
}

// SetMetrics attaches the metrics recorder.
func (cm *ConnectionManager) SetMetrics(m *Metrics) {
	cm.metrics = m
}

// Add adds a new connection
func (cm *ConnectionManager) Add(conn *ClientConnection) {
	cm.mutex.Lock()
	defer cm.mutex.Unlock()
	cm.connections[conn.ConnID] = conn
	if cm.metrics != nil {
		cm.metrics.RecordWebSocketConnect()
	}
	log.Printf("✅ Connection added: %s (Total: %d)", conn.ConnID, len(cm.connections))
}

// Remove removes a connection
func (cm *ConnectionManager) Remove(connID string) {
	cm.mutex.Lock()
	defer cm.mutex.Unlock()
	if conn, exists := cm.connections[connID]; exists {
		conn.CloseChannels()
		delete(cm.connections, connID)
		if cm.metrics != nil {
			cm.metrics.RecordWebSocketDisconnect()
		}
		log.Printf("❌ Connection removed: %s (Total: %d)", connID, len(cm.connections))
	}
}

// Count returns the number of active connections
func (cm *ConnectionManager) Count() int {
	cm.mutex.RLock()
	defer cm.mutex.RUnlock()
	return len(cm.connections)
}

// NotifySession pushes the transcript snapshot to every connection subscribed
// to the session. Slow consumers are skipped rather than blocking the turn.
func (cm *ConnectionManager) NotifySession(userID, sessionID string, messages []models.Message) {
	payload, err := json.Marshal(snapshotEvent{
		Type:      "transcript_snapshot",
		SessionID: sessionID,
		Messages:  messages,
	})
	if err != nil {
		log.Printf("⚠️ Failed to encode snapshot for session %s: %v", sessionID, err)
		return
	}

	cm.mutex.RLock()
	defer cm.mutex.RUnlock()
	for _, conn := range cm.connections {
		if conn.UserID != userID || conn.SessionID != sessionID {
			continue
		}
		select {
		case conn.WriteChan <- payload:
			if cm.metrics != nil {
				cm.metrics.RecordWebSocketMessage("transcript_snapshot", "outbound")
			}
		default:
			log.Printf("⚠️ Dropping snapshot for slow connection %s", conn.ConnID)
		}
	}
}
