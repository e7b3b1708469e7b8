package notify

import (
	"campus-lostfound/internal/models"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Dispatcher is the fire-and-forget front of the notification actor.
type Dispatcher struct {
	root *actor.RootContext
	pid  *actor.PID
}

// NewDispatcher spawns the notification actor on system.
func NewDispatcher(system *actor.ActorSystem, store NotificationStore, publisher Publisher, logger *zap.Logger) *Dispatcher {
	logger = logger.Named("notify")
	props := actor.PropsFromProducer(func() actor.Actor {
		return NewNotificationActor(store, publisher, logger)
	})
	return &Dispatcher{
		root: system.Root,
		pid:  system.Root.Spawn(props),
	}
}

// Notify queues a notification for userID and returns immediately.
func (d *Dispatcher) Notify(userID uuid.UUID, title, content, kind string) {
	if kind == "" {
		kind = models.NotificationInfo
	}
	d.root.Send(d.pid, &IssueNotificationMsg{
		UserID:  userID,
		Title:   title,
		Content: content,
		Type:    kind,
	})
}

// Stop processes the notifications already queued, then stops the actor.
func (d *Dispatcher) Stop() {
	_ = d.root.PoisonFuture(d.pid).Wait()
}
