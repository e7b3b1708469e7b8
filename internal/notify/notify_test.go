package notify

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"campus-lostfound/internal/database"
	"campus-lostfound/internal/models"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type capturePublisher struct {
	mu     sync.Mutex
	events map[uuid.UUID][]interface{}
}

func (p *capturePublisher) Publish(userID uuid.UUID, event string, payload interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if event == EventNewNotification {
		p.events[userID] = append(p.events[userID], payload)
	}
}

func (p *capturePublisher) count(userID uuid.UUID) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.events[userID])
}

type failingStore struct{}

func (failingStore) SaveNotification(context.Context, *models.Notification) error {
	return errors.New("disk full")
}

func TestDispatcherStoresAndPublishes(t *testing.T) {
	store := database.NewMemoryDB()
	user := &models.User{ID: uuid.New(), Username: "owner"}
	require.NoError(t, store.SaveUser(context.Background(), user))

	publisher := &capturePublisher{events: make(map[uuid.UUID][]interface{})}
	system := actor.NewActorSystem()
	dispatcher := NewDispatcher(system, store, publisher, zaptest.NewLogger(t))

	dispatcher.Notify(user.ID, "New message", "finder sent you a message", "")

	assert.Eventually(t, func() bool {
		return publisher.count(user.ID) == 1
	}, 2*time.Second, 10*time.Millisecond)

	stored := store.Notifications(user.ID)
	require.Len(t, stored, 1)
	assert.Equal(t, "New message", stored[0].Title)
	assert.Equal(t, models.NotificationInfo, stored[0].Type)
	assert.False(t, stored[0].IsRead)

	dispatcher.Stop()
}

func TestDispatcherDrainsOnStop(t *testing.T) {
	store := database.NewMemoryDB()
	user := &models.User{ID: uuid.New(), Username: "owner"}
	require.NoError(t, store.SaveUser(context.Background(), user))

	system := actor.NewActorSystem()
	dispatcher := NewDispatcher(system, store, nil, zaptest.NewLogger(t))

	for i := 0; i < 5; i++ {
		dispatcher.Notify(user.ID, "Claim update", "your claim was reviewed", models.NotificationSuccess)
	}
	dispatcher.Stop()

	assert.Len(t, store.Notifications(user.ID), 5)
}

func TestFailedSaveIsNotPublished(t *testing.T) {
	publisher := &capturePublisher{events: make(map[uuid.UUID][]interface{})}
	system := actor.NewActorSystem()
	dispatcher := NewDispatcher(system, failingStore{}, publisher, zaptest.NewLogger(t))

	userID := uuid.New()
	dispatcher.Notify(userID, "New message", "hello", models.NotificationInfo)
	dispatcher.Stop()

	assert.Zero(t, publisher.count(userID))
}
