package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"campus-lostfound/internal/database"
	"campus-lostfound/internal/messaging"
	"campus-lostfound/internal/middleware"
	"campus-lostfound/internal/models"
	"campus-lostfound/internal/moderation"
	"campus-lostfound/internal/notify"
	"campus-lostfound/internal/storage"
	"campus-lostfound/internal/utils"
	"campus-lostfound/internal/websocket"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/google/uuid"
	ws "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"
)

// pngHeader is enough of a PNG for content sniffing.
var pngHeader = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0, 0, 0, 0x0d, 'I', 'H', 'D', 'R'}

type testEnv struct {
	server  *httptest.Server
	store   *database.MemoryDB
	gateway *middleware.JWTGateway
	hub     *websocket.Hub
	alice   uuid.UUID
	bob     uuid.UUID
	carol   uuid.UUID
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := zaptest.NewLogger(t)
	metrics := utils.NewMetricsCollector()
	store := database.NewMemoryDB()

	env := &testEnv{
		store:   store,
		gateway: middleware.NewJWTGateway("test-secret"),
		alice:   uuid.New(),
		bob:     uuid.New(),
		carol:   uuid.New(),
	}
	for id, name := range map[uuid.UUID]string{env.alice: "alice", env.bob: "bob", env.carol: "carol"} {
		require.NoError(t, store.SaveUser(context.Background(), &models.User{ID: id, Username: name, CreatedAt: time.Now().UTC()}))
	}

	filter, err := moderation.NewFilter(moderation.DefaultConfig())
	require.NoError(t, err)
	images, err := storage.NewLocalImageStore(t.TempDir(), logger)
	require.NoError(t, err)

	env.hub = websocket.NewHub(logger, metrics)
	system := actor.NewActorSystem()
	dispatcher := notify.NewDispatcher(system, store, env.hub, logger)

	service := messaging.NewService(store, filter, logger,
		messaging.WithPublisher(env.hub),
		messaging.WithNotifier(dispatcher),
		messaging.WithImageStore(images),
		messaging.WithMetrics(metrics),
		messaging.WithMaxImageBytes(1024),
	)
	srv := NewServer(service, store, env.hub, env.gateway, nil, metrics, logger)
	srv.MaxImageBytes = 1024

	env.server = httptest.NewServer(srv.Routes())
	t.Cleanup(func() {
		env.hub.Close()
		env.server.Close()
		dispatcher.Stop()
	})
	return env
}

func (e *testEnv) token(t *testing.T, userID uuid.UUID) string {
	t.Helper()
	token, err := e.gateway.GenerateToken(userID)
	require.NoError(t, err)
	return token
}

// do sends an authenticated JSON request and decodes the response into out
// when out is non-nil.
func (e *testEnv) do(t *testing.T, as uuid.UUID, method, path string, body interface{}, out interface{}) int {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, e.server.URL+path, reader)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+e.token(t, as))
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func (e *testEnv) conversation(t *testing.T, as, with uuid.UUID) models.ConversationView {
	t.Helper()
	var view models.ConversationView
	status := e.do(t, as, http.MethodPost, "/api/conversations/"+with.String(), nil, &view)
	require.Contains(t, []int{http.StatusOK, http.StatusCreated}, status)
	return view
}

func TestHealthIsPublic(t *testing.T) {
	env := newTestEnv(t)
	resp, err := http.Get(env.server.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, float64(0), body["connectedUsers"])
}

func TestAPIRequiresIdentity(t *testing.T) {
	env := newTestEnv(t)
	resp, err := http.Get(env.server.URL + "/api/conversations")
	require.NoError(t, err)
	defer resp.Body.Close()

	var body errorResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, utils.ErrUnauthorized, body.Code)
}

func TestConversationEndpoints(t *testing.T) {
	env := newTestEnv(t)

	var first models.ConversationView
	status := env.do(t, env.alice, http.MethodPost, "/api/conversations/"+env.bob.String(), nil, &first)
	assert.Equal(t, http.StatusCreated, status)
	assert.Equal(t, "bob", first.OtherUser.Username)

	var again models.ConversationView
	status = env.do(t, env.bob, http.MethodGet, "/api/conversations/"+env.alice.String(), nil, &again)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, first.ID, again.ID)
	assert.Equal(t, "alice", again.OtherUser.Username)

	var one models.ConversationView
	assert.Equal(t, http.StatusOK, env.do(t, env.alice, http.MethodGet, "/api/conversation/"+first.ID.String(), nil, &one))
	assert.Equal(t, first.ID, one.ID)

	var list []models.ConversationView
	assert.Equal(t, http.StatusOK, env.do(t, env.alice, http.MethodGet, "/api/conversations", nil, &list))
	require.Len(t, list, 1)

	var errBody errorResponse
	assert.Equal(t, http.StatusForbidden, env.do(t, env.carol, http.MethodGet, "/api/conversation/"+first.ID.String(), nil, &errBody))
	assert.Equal(t, utils.ErrForbidden, errBody.Code)

	assert.Equal(t, http.StatusBadRequest, env.do(t, env.alice, http.MethodPost, "/api/conversations/"+env.alice.String(), nil, &errBody))
	assert.Equal(t, utils.ErrSelfConversationForbidden, errBody.Code)

	assert.Equal(t, http.StatusNotFound, env.do(t, env.alice, http.MethodPost, "/api/conversations/"+uuid.NewString(), nil, &errBody))
	assert.Equal(t, http.StatusBadRequest, env.do(t, env.alice, http.MethodPost, "/api/conversations/not-a-uuid", nil, &errBody))
}

func TestMessageLifecycleOverHTTP(t *testing.T) {
	env := newTestEnv(t)
	conv := env.conversation(t, env.alice, env.bob)
	messagesPath := "/api/conversations/" + conv.ID.String() + "/messages"

	var sent models.MessageView
	status := env.do(t, env.alice, http.MethodPost, messagesPath, SendMessageRequest{Content: "  I found a blue umbrella  "}, &sent)
	require.Equal(t, http.StatusCreated, status)
	require.NotNil(t, sent.Content)
	assert.Equal(t, "I found a blue umbrella", *sent.Content)
	assert.True(t, sent.IsSender)

	var unread map[string]int
	assert.Equal(t, http.StatusOK, env.do(t, env.bob, http.MethodGet, "/api/messages/unread-count", nil, &unread))
	assert.Equal(t, 1, unread["count"])

	var listed []models.MessageView
	assert.Equal(t, http.StatusOK, env.do(t, env.bob, http.MethodGet, messagesPath, nil, &listed))
	require.Len(t, listed, 1)
	assert.True(t, listed[0].IsRead)

	env.do(t, env.bob, http.MethodGet, "/api/messages/unread-count", nil, &unread)
	assert.Equal(t, 0, unread["count"])

	var deleted map[string]bool
	assert.Equal(t, http.StatusOK, env.do(t, env.bob, http.MethodDelete, "/api/messages/"+sent.ID.String(), nil, &deleted))
	assert.True(t, deleted["success"])
	env.do(t, env.bob, http.MethodGet, messagesPath, nil, &listed)
	assert.Empty(t, listed)
	env.do(t, env.alice, http.MethodGet, messagesPath, nil, &listed)
	assert.Len(t, listed, 1)

	var errBody errorResponse
	assert.Equal(t, http.StatusForbidden, env.do(t, env.bob, http.MethodPut, "/api/messages/"+sent.ID.String()+"/recall", nil, &errBody))

	var recalled models.MessageView
	assert.Equal(t, http.StatusOK, env.do(t, env.alice, http.MethodPut, "/api/messages/"+sent.ID.String()+"/recall", nil, &recalled))
	assert.True(t, recalled.IsRecalled)
	assert.Nil(t, recalled.Content)

	assert.Equal(t, http.StatusBadRequest, env.do(t, env.alice, http.MethodPut, "/api/messages/"+sent.ID.String()+"/recall", nil, &errBody))
	assert.Equal(t, utils.ErrAlreadyRecalled, errBody.Code)
}

func TestSendMessageErrors(t *testing.T) {
	env := newTestEnv(t)
	conv := env.conversation(t, env.alice, env.bob)
	messagesPath := "/api/conversations/" + conv.ID.String() + "/messages"

	var errBody errorResponse
	status := env.do(t, env.alice, http.MethodPost, messagesPath, SendMessageRequest{Content: "you stupid idiot"}, &errBody)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, utils.ErrContentRejected, errBody.Code)
	assert.Contains(t, errBody.MatchedTerms, "stupid")

	status = env.do(t, env.alice, http.MethodPost, messagesPath, SendMessageRequest{Content: "   "}, &errBody)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, utils.ErrInvalidInput, errBody.Code)

	status = env.do(t, env.carol, http.MethodPost, messagesPath, SendMessageRequest{Content: "hi"}, &errBody)
	assert.Equal(t, http.StatusForbidden, status)

	status = env.do(t, env.alice, http.MethodPost, messagesPath, SendMessageRequest{Content: "hi", ReceiverID: env.carol.String()}, &errBody)
	assert.Equal(t, http.StatusForbidden, status)

	status = env.do(t, env.alice, http.MethodPost, "/api/conversations/"+uuid.NewString()+"/messages", SendMessageRequest{Content: "hi"}, &errBody)
	assert.Equal(t, http.StatusNotFound, status)

	status = env.do(t, env.alice, http.MethodPost, messagesPath, SendMessageRequest{Content: strings.Repeat("a", messaging.MaxMessageBytes+1)}, &errBody)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, utils.ErrInvalidInput, errBody.Code)
	assert.Equal(t, "message exceeds the maximum allowed length", errBody.Message)

	status = env.do(t, env.alice, http.MethodPost, messagesPath, SendMessageRequest{Content: strings.Repeat("a", maxJSONBodyBytes)}, &errBody)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "request body too large", errBody.Message)

	var listed []models.MessageView
	env.do(t, env.bob, http.MethodGet, messagesPath, nil, &listed)
	assert.Empty(t, listed, "rejected sends leave nothing behind")
}

func uploadImage(t *testing.T, env *testEnv, as uuid.UUID, convID uuid.UUID, filename string, data []byte) *http.Response {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("image", filename)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req, err := http.NewRequest(http.MethodPost, env.server.URL+"/api/conversations/"+convID.String()+"/send-image", &body)
	require.NoError(t, err)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+env.token(t, as))
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func TestSendAndFetchImage(t *testing.T) {
	env := newTestEnv(t)
	conv := env.conversation(t, env.alice, env.bob)

	resp := uploadImage(t, env, env.alice, conv.ID, "blob", pngHeader)
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var sent models.MessageView
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&sent))
	assert.Equal(t, models.KindImage, sent.Kind)
	require.NotNil(t, sent.ImageURL)

	// Image tags cannot set headers, so the token travels as a query parameter.
	imgResp, err := http.Get(env.server.URL + *sent.ImageURL + "?token=" + env.token(t, env.bob))
	require.NoError(t, err)
	defer imgResp.Body.Close()
	assert.Equal(t, http.StatusOK, imgResp.StatusCode)
	assert.Equal(t, "image/png", imgResp.Header.Get("Content-Type"))
	got, err := io.ReadAll(imgResp.Body)
	require.NoError(t, err)
	assert.Equal(t, pngHeader, got)

	outsider, err := http.Get(env.server.URL + *sent.ImageURL + "?token=" + env.token(t, env.carol))
	require.NoError(t, err)
	outsider.Body.Close()
	assert.Equal(t, http.StatusForbidden, outsider.StatusCode)

	var recalled models.MessageView
	require.Equal(t, http.StatusOK, env.do(t, env.alice, http.MethodPut, "/api/messages/"+sent.ID.String()+"/recall", nil, &recalled))
	gone, err := http.Get(env.server.URL + *sent.ImageURL + "?token=" + env.token(t, env.bob))
	require.NoError(t, err)
	gone.Body.Close()
	assert.Equal(t, http.StatusNotFound, gone.StatusCode)
}

func TestSendImageValidation(t *testing.T) {
	env := newTestEnv(t)
	conv := env.conversation(t, env.alice, env.bob)

	tests := []struct {
		name     string
		filename string
		data     []byte
	}{
		{"unsupported extension", "notes.txt", []byte("hello")},
		{"too large", "big.png", bytes.Repeat([]byte{1}, 2048)},
		{"empty", "empty.png", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := uploadImage(t, env, env.alice, conv.ID, tt.filename, tt.data)
			defer resp.Body.Close()
			var body errorResponse
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
			assert.Equal(t, utils.ErrInvalidInput, body.Code)
		})
	}
}

func TestProfileEndpoints(t *testing.T) {
	env := newTestEnv(t)
	newcomer := uuid.New()

	var errBody errorResponse
	assert.Equal(t, http.StatusNotFound, env.do(t, newcomer, http.MethodGet, "/api/users/me", nil, &errBody))

	var user models.User
	assert.Equal(t, http.StatusOK, env.do(t, newcomer, http.MethodPut, "/api/users/me", UpdateProfileRequest{Username: " dana "}, &user))
	assert.Equal(t, "dana", user.Username)
	assert.Equal(t, newcomer, user.ID)

	assert.Equal(t, http.StatusBadRequest, env.do(t, newcomer, http.MethodPut, "/api/users/me", UpdateProfileRequest{Username: ""}, &errBody))
	assert.Equal(t, http.StatusBadRequest, env.do(t, newcomer, http.MethodPut, "/api/users/me", UpdateProfileRequest{Username: strings.Repeat("d", maxJSONBodyBytes)}, &errBody))
	assert.Equal(t, "request body too large", errBody.Message)

	// Renaming keeps the ban in place
	admin := env.carol
	require.NoError(t, env.store.SaveUser(context.Background(), &models.User{ID: newcomer, Username: "dana", IsBanned: true, BannedBy: &admin}))
	env.do(t, newcomer, http.MethodPut, "/api/users/me", UpdateProfileRequest{Username: "dana2"}, &user)
	assert.True(t, user.IsBanned)
	assert.Equal(t, "dana2", user.Username)
}

// dial opens a websocket connection for userID against the test server.
func (e *testEnv) dial(t *testing.T, userID uuid.UUID) *ws.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(e.server.URL, "http") + "/ws?token=" + e.token(t, userID)
	before := e.hub.Connections(userID)
	conn, resp, err := ws.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	resp.Body.Close()
	t.Cleanup(func() { conn.Close() })

	require.Eventually(t, func() bool { return e.hub.Connections(userID) > before }, 2*time.Second, 10*time.Millisecond)
	return conn
}

type frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// next reads frames until one named event arrives.
func next(t *testing.T, conn *ws.Conn, event string) json.RawMessage {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	for {
		var f frame
		require.NoError(t, conn.ReadJSON(&f), "waiting for %s", event)
		if f.Event == event {
			return f.Data
		}
	}
}

func send(t *testing.T, conn *ws.Conn, event string, data interface{}) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(map[string]interface{}{"event": event, "data": data}))
}

func TestWebSocketRejectsBadToken(t *testing.T) {
	env := newTestEnv(t)
	url := "ws" + strings.TrimPrefix(env.server.URL, "http") + "/ws?token=garbage"
	_, resp, err := ws.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	_, resp, err = ws.DefaultDialer.Dial("ws"+strings.TrimPrefix(env.server.URL, "http")+"/ws", nil)
	require.Error(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestWebSocketMessaging(t *testing.T) {
	env := newTestEnv(t)
	conv := env.conversation(t, env.alice, env.bob)

	aliceTab1 := env.dial(t, env.alice)
	aliceTab2 := env.dial(t, env.alice)
	bob := env.dial(t, env.bob)

	send(t, aliceTab1, EventSendMessage, map[string]string{
		"conversationId": conv.ID.String(),
		"receiverId":     env.bob.String(),
		"content":        "is this your wallet?",
	})

	var received models.MessageView
	require.NoError(t, json.Unmarshal(next(t, bob, messaging.EventNewMessage), &received))
	require.NotNil(t, received.Content)
	assert.Equal(t, "is this your wallet?", *received.Content)
	assert.False(t, received.IsSender)

	// Both of the sender's tabs learn about the send
	for _, tab := range []*ws.Conn{aliceTab1, aliceTab2} {
		var echoed models.MessageView
		require.NoError(t, json.Unmarshal(next(t, tab, messaging.EventMessageSent), &echoed))
		assert.Equal(t, received.ID, echoed.ID)
		assert.True(t, echoed.IsSender)
	}

	var notification models.Notification
	require.NoError(t, json.Unmarshal(next(t, bob, notify.EventNewNotification), &notification))
	assert.Equal(t, "alice sent you a message", notification.Content)

	send(t, bob, EventTyping, map[string]string{"receiverId": env.alice.String()})
	var typing map[string]string
	require.NoError(t, json.Unmarshal(next(t, aliceTab2, EventUserTyping), &typing))
	assert.Equal(t, env.bob.String(), typing["senderId"])
}

func TestWebSocketErrors(t *testing.T) {
	env := newTestEnv(t)
	conv := env.conversation(t, env.alice, env.bob)
	alice := env.dial(t, env.alice)

	send(t, alice, EventSendMessage, map[string]string{
		"conversationId": conv.ID.String(),
		"content":        "stupid idiot",
	})
	var rejected errorPayload
	require.NoError(t, json.Unmarshal(next(t, alice, EventError), &rejected))
	assert.Contains(t, rejected.MatchedTerms, "stupid")

	send(t, alice, EventSendMessage, map[string]string{
		"conversationId": conv.ID.String(),
		"receiverId":     env.carol.String(),
		"content":        "hello",
	})
	var forbidden errorPayload
	require.NoError(t, json.Unmarshal(next(t, alice, EventError), &forbidden))
	assert.Empty(t, forbidden.MatchedTerms)

	send(t, alice, EventTyping, map[string]string{"receiverId": env.alice.String()})
	var badTyping errorPayload
	require.NoError(t, json.Unmarshal(next(t, alice, EventError), &badTyping))
	assert.Equal(t, "invalid receiverId", badTyping.Message)

	require.NoError(t, alice.WriteMessage(ws.TextMessage, []byte("not json")))
	var malformed errorPayload
	require.NoError(t, json.Unmarshal(next(t, alice, EventError), &malformed))
	assert.Equal(t, "invalid message format", malformed.Message)

	// Oversized content is refused without dropping the connection
	send(t, alice, EventSendMessage, map[string]string{
		"conversationId": conv.ID.String(),
		"content":        strings.Repeat("a", messaging.MaxMessageBytes+1),
	})
	var tooLong errorPayload
	require.NoError(t, json.Unmarshal(next(t, alice, EventError), &tooLong))
	assert.Equal(t, "message exceeds the maximum allowed length", tooLong.Message)

	send(t, alice, "dance", nil)
	var unknown errorPayload
	require.NoError(t, json.Unmarshal(next(t, alice, EventError), &unknown))
	assert.Equal(t, fmt.Sprintf("unknown event: %s", "dance"), unknown.Message)

	// Nothing was persisted by any of the failures
	msgs, err := env.store.ListMessages(context.Background(), conv.ID)
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestWriteErrorLogsAuthDenialsAtDebug(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	srv := &Server{logger: zap.New(core)}

	rec := httptest.NewRecorder()
	srv.writeError(rec, httptest.NewRequest(http.MethodGet, "/api/conversations", nil), utils.NewForbiddenError("not a participant"))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = httptest.NewRecorder()
	srv.writeError(rec, httptest.NewRequest(http.MethodGet, "/api/conversations", nil), utils.NewValidationError("bad"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	denied := logs.FilterMessage("request denied").All()
	require.Len(t, denied, 1)
	assert.Equal(t, zapcore.DebugLevel, denied[0].Level)
	assert.Equal(t, utils.ErrForbidden, denied[0].ContextMap()["code"])
}
