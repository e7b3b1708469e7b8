package database

import (
	"context"
	"sort"
	"sync"
	"time"

	"campus-lostfound/internal/models"
	"campus-lostfound/internal/utils"

	"github.com/google/uuid"
)

type pairKey struct {
	low, high uuid.UUID
}

// MemoryDB is a Store kept entirely in process memory. It is used for local
// runs without a database and by tests. Values are copied on the way in and
// out so callers never share state with the store.
type MemoryDB struct {
	mu            sync.RWMutex
	seq           int64
	users         map[uuid.UUID]*models.User
	conversations map[uuid.UUID]*models.Conversation
	byPair        map[pairKey]uuid.UUID
	messages      map[uuid.UUID]*models.Message
	logs          map[uuid.UUID][]uuid.UUID // conversation -> message ids in append order
	notifications map[uuid.UUID]*models.Notification
}

var _ Store = (*MemoryDB)(nil)

func NewMemoryDB() *MemoryDB {
	return &MemoryDB{
		users:         make(map[uuid.UUID]*models.User),
		conversations: make(map[uuid.UUID]*models.Conversation),
		byPair:        make(map[pairKey]uuid.UUID),
		messages:      make(map[uuid.UUID]*models.Message),
		logs:          make(map[uuid.UUID][]uuid.UUID),
		notifications: make(map[uuid.UUID]*models.Notification),
	}
}

func (m *MemoryDB) Close(ctx context.Context) error { return nil }

func (m *MemoryDB) GetUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	user, ok := m.users[id]
	if !ok {
		return nil, utils.NewNotFoundError("user")
	}
	return copyUser(user), nil
}

func (m *MemoryDB) SaveUser(ctx context.Context, user *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.users[user.ID]; ok {
		user.CreatedAt = existing.CreatedAt
	} else if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	m.users[user.ID] = copyUser(user)
	return nil
}

func (m *MemoryDB) DeleteUser(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.users[id]; !ok {
		return utils.NewNotFoundError("user")
	}
	delete(m.users, id)

	for convID, conv := range m.conversations {
		if !conv.HasParticipant(id) {
			continue
		}
		for _, msgID := range m.logs[convID] {
			delete(m.messages, msgID)
		}
		delete(m.logs, convID)
		delete(m.byPair, pairKey{conv.LowID, conv.HighID})
		delete(m.conversations, convID)
	}
	for nID, n := range m.notifications {
		if n.UserID == id {
			delete(m.notifications, nID)
		}
	}
	return nil
}

func (m *MemoryDB) GetOrCreateConversation(ctx context.Context, a, b uuid.UUID, now time.Time) (*models.Conversation, bool, error) {
	low, high := models.CanonicalPair(a, b)
	key := pairKey{low, high}

	m.mu.Lock()
	defer m.mu.Unlock()

	if id, ok := m.byPair[key]; ok {
		return copyConversation(m.conversations[id]), false, nil
	}
	for _, id := range []uuid.UUID{low, high} {
		if _, ok := m.users[id]; !ok {
			return nil, false, utils.NewNotFoundError("user")
		}
	}
	conv := &models.Conversation{
		ID:        uuid.New(),
		LowID:     low,
		HighID:    high,
		CreatedAt: now.UTC(),
	}
	m.conversations[conv.ID] = conv
	m.byPair[key] = conv.ID
	return copyConversation(conv), true, nil
}

func (m *MemoryDB) GetConversation(ctx context.Context, id uuid.UUID) (*models.Conversation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	conv, ok := m.conversations[id]
	if !ok {
		return nil, utils.NewNotFoundError("conversation")
	}
	return copyConversation(conv), nil
}

func (m *MemoryDB) ListConversations(ctx context.Context, userID uuid.UUID) ([]*models.Conversation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*models.Conversation, 0)
	for _, conv := range m.conversations {
		if conv.HasParticipant(userID) {
			result = append(result, copyConversation(conv))
		}
	}
	sort.Slice(result, func(i, j int) bool {
		ti, tj := result[i].SortTime(), result[j].SortTime()
		if !ti.Equal(tj) {
			return ti.After(tj)
		}
		return result[i].ID.String() < result[j].ID.String()
	})
	return result, nil
}

func (m *MemoryDB) AppendMessage(ctx context.Context, msg *models.Message, preview string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	conv, ok := m.conversations[msg.ConversationID]
	if !ok {
		return utils.NewNotFoundError("conversation")
	}

	m.seq++
	msg.Seq = m.seq
	stored := copyMessage(msg)
	stored.CreatedAt = stored.CreatedAt.UTC()
	m.messages[stored.ID] = stored
	m.logs[conv.ID] = append(m.logs[conv.ID], stored.ID)

	conv.LastMessagePreview = &preview
	lastTime := stored.CreatedAt
	conv.LastMessageTime = &lastTime
	return nil
}

func (m *MemoryDB) GetMessage(ctx context.Context, id uuid.UUID) (*models.Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	msg, ok := m.messages[id]
	if !ok {
		return nil, utils.NewNotFoundError("message")
	}
	return copyMessage(msg), nil
}

func (m *MemoryDB) ListMessages(ctx context.Context, conversationID uuid.UUID) ([]*models.Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := m.logs[conversationID]
	result := make([]*models.Message, 0, len(ids))
	for _, id := range ids {
		result = append(result, copyMessage(m.messages[id]))
	}
	sort.SliceStable(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.Before(result[j].CreatedAt)
		}
		return result[i].Seq < result[j].Seq
	})
	return result, nil
}

func (m *MemoryDB) MarkConversationRead(ctx context.Context, conversationID, receiverID uuid.UUID) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var n int64
	for _, id := range m.logs[conversationID] {
		msg := m.messages[id]
		if msg.ReceiverID == receiverID && !msg.IsRead {
			msg.IsRead = true
			n++
		}
	}
	return n, nil
}

func (m *MemoryDB) MarkDeleted(ctx context.Context, messageID uuid.UUID, bySender bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	msg, ok := m.messages[messageID]
	if !ok {
		return utils.NewNotFoundError("message")
	}
	if bySender {
		msg.IsDeletedBySender = true
	} else {
		msg.IsDeletedByReceiver = true
	}
	return nil
}

func (m *MemoryDB) RecallMessage(ctx context.Context, messageID uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	msg, ok := m.messages[messageID]
	if !ok {
		return false, utils.NewNotFoundError("message")
	}
	if msg.IsRecalled {
		return false, nil
	}
	msg.IsRecalled = true
	msg.ImageRef = nil
	return true, nil
}

func (m *MemoryDB) CountUnread(ctx context.Context, receiverID uuid.UUID) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	count := 0
	for _, msg := range m.messages {
		if unreadFor(msg, receiverID) {
			count++
		}
	}
	return count, nil
}

func (m *MemoryDB) CountUnreadInConversation(ctx context.Context, conversationID, receiverID uuid.UUID) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	count := 0
	for _, id := range m.logs[conversationID] {
		if unreadFor(m.messages[id], receiverID) {
			count++
		}
	}
	return count, nil
}

func (m *MemoryDB) SaveNotification(ctx context.Context, n *models.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.users[n.UserID]; !ok {
		return utils.NewNotFoundError("user")
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	stored := *n
	m.notifications[n.ID] = &stored
	return nil
}

// Notifications returns the stored notifications for userID, oldest first.
func (m *MemoryDB) Notifications(userID uuid.UUID) []models.Notification {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []models.Notification
	for _, n := range m.notifications {
		if n.UserID == userID {
			result = append(result, *n)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.Before(result[j].CreatedAt) })
	return result
}

func unreadFor(msg *models.Message, receiverID uuid.UUID) bool {
	return msg.ReceiverID == receiverID && !msg.IsRead && !msg.IsDeletedByReceiver
}

func copyUser(u *models.User) *models.User {
	c := *u
	if u.BannedBy != nil {
		by := *u.BannedBy
		c.BannedBy = &by
	}
	return &c
}

func copyConversation(conv *models.Conversation) *models.Conversation {
	c := *conv
	if conv.LastMessagePreview != nil {
		preview := *conv.LastMessagePreview
		c.LastMessagePreview = &preview
	}
	if conv.LastMessageTime != nil {
		t := *conv.LastMessageTime
		c.LastMessageTime = &t
	}
	return &c
}

func copyMessage(msg *models.Message) *models.Message {
	c := *msg
	if msg.Content != nil {
		content := *msg.Content
		c.Content = &content
	}
	if msg.ImageRef != nil {
		ref := *msg.ImageRef
		c.ImageRef = &ref
	}
	return &c
}
