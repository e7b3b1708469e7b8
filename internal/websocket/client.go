package websocket

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer. Kept above the text message
	// limit plus envelope so oversized content gets an error event.
	maxMessageSize = 64 * 1024
)

// EventHandler processes inbound events from a joined client.
type EventHandler interface {
	HandleEvent(ctx context.Context, client *Client, event string, data json.RawMessage)
}

// Client is a middleman between the websocket connection and the hub.
type Client struct {
	hub *Hub

	// The user ID this client represents.
	UserID uuid.UUID

	// The websocket connection.
	conn *websocket.Conn

	// Buffered channel of outbound frames. Closed by the hub on Leave.
	send chan []byte

	handler EventHandler
	logger  *zap.Logger
}

// NewClient wraps an upgraded connection for an already resolved user.
func NewClient(hub *Hub, userID uuid.UUID, conn *websocket.Conn, handler EventHandler, logger *zap.Logger) *Client {
	return &Client{
		hub:     hub,
		UserID:  userID,
		conn:    conn,
		send:    make(chan []byte, sendBufferSize),
		handler: handler,
		logger:  logger.With(zap.String("userId", userID.String())),
	}
}

// Emit sends an event to this connection only.
func (c *Client) Emit(event string, payload interface{}) {
	c.hub.sendTo(c, event, payload)
}

// Serve joins the hub and runs both pumps until the connection ends.
func (c *Client) Serve(ctx context.Context) {
	c.hub.Join(c)
	go c.WritePump()
	c.ReadPump(ctx)
}

// ReadPump pumps events from the websocket connection to the handler.
func (c *Client) ReadPump(ctx context.Context) {
	defer func() {
		c.hub.Leave(c)
		c.conn.Close()
		c.logger.Debug("read pump stopped")
	}()
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error { c.conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })
	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Warn("websocket read error", zap.Error(err))
			}
			break
		}

		var env Envelope
		if err := json.Unmarshal(message, &env); err != nil || env.Event == "" {
			c.Emit("error", map[string]string{"message": "invalid message format"})
			continue
		}
		if c.handler != nil {
			c.handler.HandleEvent(ctx, c, env.Event, env.Data)
		}
	}
}

// WritePump pumps frames from the hub to the websocket connection.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
		c.logger.Debug("write pump stopped")
	}()
	for {
		select {
		case frame, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel.
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				c.logger.Warn("websocket write error", zap.Error(err))
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.logger.Warn("websocket ping error", zap.Error(err))
				return
			}
		}
	}
}
