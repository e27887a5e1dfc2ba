// Package websocket pushes task and reminder events to connected browsers.
// The gateway is purely observational: clients receive notifications for
// their own events and send nothing but pongs.
package websocket

import (
	"sync"

	"go.uber.org/zap"

	"github.com/taskloop/taskloop/internal/common/logger"
)

// Hub tracks the open connections of each user.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]map[*Client]bool // user id -> connections
	logger  *logger.Logger
}

// NewHub creates an empty hub.
func NewHub(log *logger.Logger) *Hub {
	return &Hub{
		clients: make(map[string]map[*Client]bool),
		logger:  log.WithFields(zap.String("component", "ws-hub")),
	}
}

func (h *Hub) register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[client.userID]; !ok {
		h.clients[client.userID] = make(map[*Client]bool)
	}
	h.clients[client.userID][client] = true
	h.logger.Debug("client connected", zap.String("user_id", client.userID))
}

func (h *Hub) unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if conns, ok := h.clients[client.userID]; ok {
		if conns[client] {
			delete(conns, client)
			close(client.send)
		}
		if len(conns) == 0 {
			delete(h.clients, client.userID)
		}
	}
	h.logger.Debug("client disconnected", zap.String("user_id", client.userID))
}

// SendToUser delivers data to every open connection of the user. Connections
// with a full send buffer are skipped; the write pump closes them when the
// peer stops draining.
func (h *Hub) SendToUser(userID string, data []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.clients[userID] {
		select {
		case client.send <- data:
		default:
			h.logger.Warn("client send buffer full, dropping notification",
				zap.String("user_id", userID))
		}
	}
}

// ClientCount returns the number of open connections.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	count := 0
	for _, conns := range h.clients {
		count += len(conns)
	}
	return count
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for userID, conns := range h.clients {
		for client := range conns {
			close(client.send)
		}
		delete(h.clients, userID)
	}
}
