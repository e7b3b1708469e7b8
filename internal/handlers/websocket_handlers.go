package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"campus-lostfound/internal/messaging"
	"campus-lostfound/internal/middleware"
	"campus-lostfound/internal/utils"
	"campus-lostfound/internal/websocket"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Inbound and outbound real-time event names handled here.
const (
	EventSendMessage = "send_message"
	EventTyping      = "typing"
	EventUserTyping  = "user_typing"
	EventError       = "error"
)

// eventTimeout bounds the work done for one inbound event.
const eventTimeout = 10 * time.Second

// HandleWebSocket authenticates the handshake and then serves the
// connection until it closes.
func (s *Server) HandleWebSocket() http.HandlerFunc {
	handler := &realtimeHandler{
		messages: s.Messages,
		hub:      s.Hub,
		logger:   s.logger.Named("realtime"),
	}
	return func(w http.ResponseWriter, r *http.Request) {
		// 1. Authenticate before upgrading so a bad token is a plain 401
		token := middleware.TokenFromRequest(r)
		userID, err := s.Gateway.Resolve(token)
		if err != nil {
			s.logger.Debug("websocket connection refused",
				zap.String("token", utils.TokenPrefix(token)),
				zap.Error(err))
			s.writeError(w, r, err)
			return
		}

		// 2. Upgrade connection
		conn, err := s.upgrader.Upgrade(w, r, nil)
		if err != nil {
			// The upgrader has already replied with an HTTP error.
			s.logger.Warn("websocket upgrade failed", zap.String("userId", userID.String()), zap.Error(err))
			return
		}

		// 3. Join the user's room and pump until disconnect
		client := websocket.NewClient(s.Hub, userID, conn, handler, s.logger)
		client.Serve(r.Context())
	}
}

// sendMessagePayload is the data of an inbound send_message event.
type sendMessagePayload struct {
	ConversationID string `json:"conversationId"`
	ReceiverID     string `json:"receiverId,omitempty"`
	Content        string `json:"content"`
}

// typingPayload is the data of an inbound typing event.
type typingPayload struct {
	ReceiverID string `json:"receiverId"`
}

// errorPayload is the data of an outbound error event.
type errorPayload struct {
	Message      string   `json:"message"`
	MatchedTerms []string `json:"matchedTerms,omitempty"`
}

// realtimeHandler implements websocket.EventHandler for the real-time
// protocol.
type realtimeHandler struct {
	messages *messaging.Service
	hub      *websocket.Hub
	logger   *zap.Logger
}

func (h *realtimeHandler) HandleEvent(ctx context.Context, client *websocket.Client, event string, data json.RawMessage) {
	ctx, cancel := context.WithTimeout(ctx, eventTimeout)
	defer cancel()

	switch event {
	case EventSendMessage:
		h.handleSendMessage(ctx, client, data)
	case EventTyping:
		h.handleTyping(client, data)
	default:
		client.Emit(EventError, errorPayload{Message: "unknown event: " + event})
	}
}

// handleSendMessage runs the same send path as the REST endpoint. Success
// is reported through the new_message and message_sent events the service
// publishes; only failures are answered directly.
func (h *realtimeHandler) handleSendMessage(ctx context.Context, client *websocket.Client, data json.RawMessage) {
	var payload sendMessagePayload
	if err := json.Unmarshal(data, &payload); err != nil {
		client.Emit(EventError, errorPayload{Message: "invalid message format"})
		return
	}
	convID, err := uuid.Parse(payload.ConversationID)
	if err != nil {
		client.Emit(EventError, errorPayload{Message: "invalid conversationId"})
		return
	}
	receiverID, err := optionalUUID(payload.ReceiverID, "receiverId")
	if err != nil {
		client.Emit(EventError, errorPayload{Message: err.Error()})
		return
	}

	_, err = h.messages.SendText(ctx, messaging.SendTextRequest{
		ConversationID: convID,
		SenderID:       client.UserID,
		ReceiverID:     receiverID,
		Content:        payload.Content,
	})
	if err != nil {
		client.Emit(EventError, h.errorFor(err))
	}
}

// handleTyping relays a typing indicator to the receiver's room. Nothing is
// stored.
func (h *realtimeHandler) handleTyping(client *websocket.Client, data json.RawMessage) {
	var payload typingPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		client.Emit(EventError, errorPayload{Message: "invalid message format"})
		return
	}
	receiverID, err := uuid.Parse(payload.ReceiverID)
	if err != nil || receiverID == client.UserID {
		client.Emit(EventError, errorPayload{Message: "invalid receiverId"})
		return
	}
	h.hub.Publish(receiverID, EventUserTyping, map[string]string{"senderId": client.UserID.String()})
}

func (h *realtimeHandler) errorFor(err error) errorPayload {
	appErr, ok := utils.AsAppError(err)
	if !ok || utils.AppErrorToHTTPStatus(appErr.Code) == http.StatusInternalServerError {
		h.logger.Error("realtime send failed", zap.Error(err))
		return errorPayload{Message: "failed to send message"}
	}
	return errorPayload{Message: appErr.Message, MatchedTerms: appErr.MatchedTerms}
}
