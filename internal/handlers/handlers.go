package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"campus-lostfound/internal/database"
	"campus-lostfound/internal/messaging"
	"campus-lostfound/internal/middleware"
	"campus-lostfound/internal/utils"
	"campus-lostfound/internal/websocket"

	"github.com/google/uuid"
	ws "github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Server holds all server dependencies shared by the HTTP and websocket
// handlers.
type Server struct {
	Messages       *messaging.Service
	Directory      *messaging.Directory
	Store          database.Store
	Hub            *websocket.Hub
	Gateway        middleware.IdentityGateway
	CORS           *middleware.CORSConfig
	Metrics        *utils.MetricsCollector
	MetricsEnabled bool
	MaxImageBytes  int64

	logger   *zap.Logger
	upgrader ws.Upgrader
}

// NewServer creates a new Server instance with the given components
func NewServer(
	messages *messaging.Service,
	store database.Store,
	hub *websocket.Hub,
	gateway middleware.IdentityGateway,
	cors *middleware.CORSConfig,
	metrics *utils.MetricsCollector,
	logger *zap.Logger,
) *Server {
	if cors == nil {
		cors = middleware.DefaultCORSConfig(nil)
	}
	return &Server{
		Messages:       messages,
		Directory:      messages.Directory(),
		Store:          store,
		Hub:            hub,
		Gateway:        gateway,
		CORS:           cors,
		Metrics:        metrics,
		MetricsEnabled: true,
		MaxImageBytes:  messaging.DefaultMaxImageBytes,
		logger:         logger.Named("http"),
		upgrader: ws.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     cors.CheckOrigin,
		},
	}
}

// Routes builds the complete handler tree: public endpoints, authenticated
// API endpoints and the websocket endpoint, wrapped in CORS and request
// logging.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	auth := middleware.AuthMiddleware(s.Gateway, s.logger)

	mux.HandleFunc("GET /health", s.HandleHealth())
	if s.MetricsEnabled {
		mux.Handle("GET /metrics", s.Metrics.Handler())
	}
	mux.HandleFunc("GET /ws", s.HandleWebSocket())

	// Users
	mux.Handle("PUT /api/users/me", auth(s.HandleUpdateProfile()))
	mux.Handle("GET /api/users/me", auth(s.HandleGetProfile()))

	// Conversations
	mux.Handle("GET /api/conversations", auth(s.HandleListConversations()))
	mux.Handle("GET /api/conversations/{userId}", auth(s.HandleGetOrCreateConversation()))
	mux.Handle("POST /api/conversations/{userId}", auth(s.HandleGetOrCreateConversation()))
	mux.Handle("GET /api/conversation/{id}", auth(s.HandleGetConversation()))

	// Messages
	mux.Handle("GET /api/conversations/{id}/messages", auth(s.HandleListMessages()))
	mux.Handle("POST /api/conversations/{id}/messages", auth(s.HandleSendMessage()))
	mux.Handle("POST /api/conversations/{id}/send-image", auth(s.HandleSendImage()))
	mux.Handle("GET /api/messages/unread-count", auth(s.HandleUnreadCount()))
	mux.Handle("GET /api/messages/{id}/image", auth(s.HandleMessageImage()))
	mux.Handle("DELETE /api/messages/{id}", auth(s.HandleDeleteMessage()))
	mux.Handle("PUT /api/messages/{id}/recall", auth(s.HandleRecallMessage()))

	var handler http.Handler = mux
	handler = middleware.CORSMiddleware(s.CORS)(handler)
	handler = middleware.RequestLogger(s.logger, s.Metrics)(handler)
	return handler
}

// errorResponse is the JSON body of every failed request.
type errorResponse struct {
	Code         string   `json:"code"`
	Message      string   `json:"message"`
	MatchedTerms []string `json:"matchedTerms,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// maxJSONBodyBytes bounds JSON request bodies. It leaves room for escaped
// message content up to messaging.MaxMessageBytes.
const maxJSONBodyBytes = 64 << 10

// decodeJSON reads a size-capped JSON body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return utils.NewValidationError("request body too large")
		}
		return utils.NewValidationError("invalid request body")
	}
	return nil
}

// writeError maps err onto a status code and structured body. Errors
// outside the AppError taxonomy are logged and reported generically.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	appErr, ok := utils.AsAppError(err)
	if !ok || utils.AppErrorToHTTPStatus(appErr.Code) == http.StatusInternalServerError {
		s.logger.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{
			Code:    utils.ErrDatabase,
			Message: "internal server error",
		})
		return
	}
	if utils.IsAuthError(appErr) {
		s.logger.Debug("request denied",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("code", appErr.Code))
	}
	writeJSON(w, utils.AppErrorToHTTPStatus(appErr.Code), errorResponse{
		Code:         appErr.Code,
		Message:      appErr.Message,
		MatchedTerms: appErr.MatchedTerms,
	})
}

// callerID returns the identity resolved by AuthMiddleware.
func callerID(r *http.Request) (uuid.UUID, error) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		return uuid.Nil, utils.NewUnauthorizedError("no identity on request")
	}
	return userID, nil
}

// pathID parses a UUID path wildcard.
func pathID(r *http.Request, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(r.PathValue(name))
	if err != nil {
		return uuid.Nil, utils.NewValidationError("invalid " + name)
	}
	return id, nil
}

// callerAndPathID is the common prologue of handlers addressing one
// resource on behalf of the caller.
func callerAndPathID(r *http.Request, name string) (uuid.UUID, uuid.UUID, error) {
	userID, err := callerID(r)
	if err != nil {
		return uuid.Nil, uuid.Nil, err
	}
	id, err := pathID(r, name)
	if err != nil {
		return uuid.Nil, uuid.Nil, err
	}
	return userID, id, nil
}
