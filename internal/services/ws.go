package services

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"reminder-service/internal/logging"
	"reminder-service/internal/models"
)

// maxConnsPerUser caps concurrent sockets for one user.
const maxConnsPerUser = 10

// StatusEvent is the payload pushed to connected clients whenever one of
// their notifications changes status.
type StatusEvent struct {
	NotificationID string    `json:"notification_id"`
	Channel        string    `json:"channel"`
	Status         string    `json:"status"`
	At             time.Time `json:"at"`
}

// WebSocketManager manages WebSocket connections for users.
type WebSocketManager struct {
	connections map[int]map[*websocket.Conn]bool // userID -> set of connections
	mutex       sync.Mutex
	logger      *logging.Logger
}

func NewWebSocketManager(logger *logging.Logger) *WebSocketManager {
	return &WebSocketManager{
		connections: make(map[int]map[*websocket.Conn]bool),
		logger:      logger,
	}
}

// AddConnection registers a WebSocket connection for a user. It returns
// false when the per-user cap is reached so the caller can close the
// socket instead of leaving the client waiting on a connection that will
// never receive anything.
func (m *WebSocketManager) AddConnection(userID int, conn *websocket.Conn) bool {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if _, exists := m.connections[userID]; !exists {
		m.connections[userID] = make(map[*websocket.Conn]bool)
	}
	if len(m.connections[userID]) >= maxConnsPerUser {
		m.logger.Warnf("Max connections reached for user %d", userID)
		return false
	}
	m.connections[userID][conn] = true
	m.logger.Infof("Added WebSocket connection for user %d (total: %d)", userID, len(m.connections[userID]))
	return true
}

// RemoveConnection removes a WebSocket connection for a user.
func (m *WebSocketManager) RemoveConnection(userID int, conn *websocket.Conn) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if conns, exists := m.connections[userID]; exists {
		delete(conns, conn)
		if len(conns) == 0 {
			delete(m.connections, userID)
		}
		m.logger.Infof("Removed WebSocket connection for user %d (remaining: %d)", userID, len(conns))
	}
}

// BroadcastStatus pushes a status event to all of the user's connections,
// pruning any that fail to write.
func (m *WebSocketManager) BroadcastStatus(userID int, notifID uuid.UUID, channel models.Channel, status models.NotificationStatus) {
	payload, err := json.Marshal(StatusEvent{
		NotificationID: notifID.String(),
		Channel:        string(channel),
		Status:         string(status),
		At:             time.Now(),
	})
	if err != nil {
		m.logger.Errorf("Failed to marshal status event: %v", err)
		return
	}

	m.mutex.Lock()
	defer m.mutex.Unlock()
	conns, exists := m.connections[userID]
	if !exists {
		return
	}
	for conn := range conns {
		if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			m.logger.Errorf("Failed to send WebSocket message to user %d: %v", userID, err)
			delete(conns, conn)
		}
	}
	if len(conns) == 0 {
		delete(m.connections, userID)
	}
}
