package websocket

import (
	"encoding/json"
	"sync"

	"campus-lostfound/internal/utils"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// sendBufferSize is the number of outbound frames queued per connection
// before new events are dropped for it.
const sendBufferSize = 256

// Envelope is the frame format in both directions: one JSON object per
// websocket text frame.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Hub maintains the set of active clients, grouped into one room per user.
type Hub struct {
	// Registered clients. Maps user ID to a set of active client connections.
	clients map[uuid.UUID]map[*Client]bool

	// Guards clients and every close of a client's send channel.
	mu sync.RWMutex

	logger  *zap.Logger
	metrics *utils.MetricsCollector
}

func NewHub(logger *zap.Logger, metrics *utils.MetricsCollector) *Hub {
	return &Hub{
		clients: make(map[uuid.UUID]map[*Client]bool),
		logger:  logger.Named("hub"),
		metrics: metrics,
	}
}

// Join adds client to the room of client.UserID.
func (h *Hub) Join(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	room, ok := h.clients[client.UserID]
	if !ok {
		room = make(map[*Client]bool)
		h.clients[client.UserID] = room
	}
	room[client] = true
	h.metrics.ConnectionOpened()
	h.logger.Debug("client joined",
		zap.String("userId", client.UserID.String()),
		zap.Int("connections", len(room)))
}

// Leave removes client from its room and closes its send channel. Calling
// it more than once is harmless.
func (h *Hub) Leave(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	room, ok := h.clients[client.UserID]
	if !ok || !room[client] {
		return
	}
	delete(room, client)
	close(client.send)
	if len(room) == 0 {
		delete(h.clients, client.UserID)
	}
	h.metrics.ConnectionClosed()
	h.logger.Debug("client left",
		zap.String("userId", client.UserID.String()),
		zap.Int("remaining", len(room)))
}

// Publish delivers event to every connection in userID's room. It never
// blocks: with nobody connected the event is dropped, and a connection
// whose buffer is full misses it.
func (h *Hub) Publish(userID uuid.UUID, event string, payload interface{}) {
	frame, err := encodeFrame(event, payload)
	if err != nil {
		h.logger.Error("failed to encode event", zap.String("event", event), zap.Error(err))
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	room, ok := h.clients[userID]
	if !ok {
		h.logger.Debug("user not connected, event dropped",
			zap.String("userId", userID.String()),
			zap.String("event", event))
		return
	}
	for client := range room {
		select {
		case client.send <- frame:
		default:
			h.logger.Warn("send buffer full, event dropped for connection",
				zap.String("userId", userID.String()),
				zap.String("event", event))
		}
	}
}

// sendTo delivers an event to a single connection, if it is still joined.
func (h *Hub) sendTo(client *Client, event string, payload interface{}) {
	frame, err := encodeFrame(event, payload)
	if err != nil {
		h.logger.Error("failed to encode event", zap.String("event", event), zap.Error(err))
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	if !h.clients[client.UserID][client] {
		return
	}
	select {
	case client.send <- frame:
	default:
		h.logger.Warn("send buffer full, event dropped for connection",
			zap.String("userId", client.UserID.String()),
			zap.String("event", event))
	}
}

// Connections returns the number of live connections for userID.
func (h *Hub) Connections(userID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[userID])
}

// ConnectedUsers returns the number of users with at least one connection.
func (h *Hub) ConnectedUsers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close disconnects every client. Their write pumps send a close frame and
// exit.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for userID, room := range h.clients {
		for client := range room {
			close(client.send)
			h.metrics.ConnectionClosed()
		}
		delete(h.clients, userID)
	}
	h.logger.Info("hub closed")
}

func encodeFrame(event string, payload interface{}) ([]byte, error) {
	env := struct {
		Event string      `json:"event"`
		Data  interface{} `json:"data"`
	}{event, payload}
	return json.Marshal(env)
}
