// Package notify issues user notifications off the request path.
package notify

import (
	"context"
	"time"

	"campus-lostfound/internal/models"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// EventNewNotification is pushed to the user's room after a notification
// has been stored.
const EventNewNotification = "new_notification"

const saveTimeout = 5 * time.Second

// IssueNotificationMsg asks the actor to create one notification.
type IssueNotificationMsg struct {
	UserID  uuid.UUID
	Title   string
	Content string
	Type    string
}

// NotificationStore persists notification records.
type NotificationStore interface {
	SaveNotification(ctx context.Context, n *models.Notification) error
}

// Publisher pushes an event to a user's live connections.
type Publisher interface {
	Publish(userID uuid.UUID, event string, payload interface{})
}

// NotificationActor stores notifications and announces them in real time.
// Requests are processed one at a time in arrival order.
type NotificationActor struct {
	store     NotificationStore
	publisher Publisher
	logger    *zap.Logger
	now       func() time.Time
}

func NewNotificationActor(store NotificationStore, publisher Publisher, logger *zap.Logger) actor.Actor {
	return &NotificationActor{
		store:     store,
		publisher: publisher,
		logger:    logger,
		now:       time.Now,
	}
}

func (a *NotificationActor) Receive(context actor.Context) {
	switch msg := context.Message().(type) {
	case *actor.Started:
		a.logger.Debug("notification actor started")
	case *IssueNotificationMsg:
		a.handleIssue(msg)
	}
}

func (a *NotificationActor) handleIssue(msg *IssueNotificationMsg) {
	n := &models.Notification{
		ID:        uuid.New(),
		UserID:    msg.UserID,
		Title:     msg.Title,
		Content:   msg.Content,
		Type:      msg.Type,
		CreatedAt: a.now().UTC(),
	}

	ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
	defer cancel()
	if err := a.store.SaveNotification(ctx, n); err != nil {
		a.logger.Warn("failed to save notification",
			zap.String("userId", msg.UserID.String()),
			zap.Error(err))
		return
	}

	if a.publisher != nil {
		a.publisher.Publish(n.UserID, EventNewNotification, n)
	}
}
