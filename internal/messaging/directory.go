// Package messaging implements the conversation directory and the message
// lifecycle on top of a database.Store.
package messaging

import (
	"context"
	"time"

	"campus-lostfound/internal/database"
	"campus-lostfound/internal/models"
	"campus-lostfound/internal/utils"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Directory maps unordered user pairs to their single conversation.
type Directory struct {
	store  database.Store
	logger *zap.Logger
	now    func() time.Time
}

func NewDirectory(store database.Store, logger *zap.Logger, now func() time.Time) *Directory {
	if now == nil {
		now = time.Now
	}
	return &Directory{store: store, logger: logger.Named("directory"), now: now}
}

// GetOrCreate returns callerID's conversation with otherID, creating it on
// first contact. The bool reports whether it was created by this call.
func (d *Directory) GetOrCreate(ctx context.Context, callerID, otherID uuid.UUID) (*models.ConversationView, bool, error) {
	if callerID == otherID {
		return nil, false, utils.NewAppError(utils.ErrSelfConversationForbidden, "cannot start a conversation with yourself", nil)
	}
	for _, id := range []uuid.UUID{callerID, otherID} {
		if _, err := d.store.GetUser(ctx, id); err != nil {
			return nil, false, err
		}
	}

	conv, created, err := d.store.GetOrCreateConversation(ctx, callerID, otherID, d.now())
	if err != nil {
		return nil, false, err
	}
	if created {
		d.logger.Debug("conversation created",
			zap.String("conversationId", conv.ID.String()),
			zap.String("callerId", callerID.String()))
	}

	view, err := d.view(ctx, conv, callerID)
	if err != nil {
		return nil, false, err
	}
	return view, created, nil
}

// ListFor returns every conversation userID takes part in, most recent
// activity first.
func (d *Directory) ListFor(ctx context.Context, userID uuid.UUID) ([]*models.ConversationView, error) {
	convs, err := d.store.ListConversations(ctx, userID)
	if err != nil {
		return nil, err
	}
	views := make([]*models.ConversationView, 0, len(convs))
	for _, conv := range convs {
		view, err := d.view(ctx, conv, userID)
		if err != nil {
			return nil, err
		}
		views = append(views, view)
	}
	return views, nil
}

// Get returns the conversation as seen by callerID.
func (d *Directory) Get(ctx context.Context, id, callerID uuid.UUID) (*models.ConversationView, error) {
	conv, err := d.conversationFor(ctx, id, callerID)
	if err != nil {
		return nil, err
	}
	return d.view(ctx, conv, callerID)
}

// conversationFor loads a conversation and checks that callerID is one of
// its participants.
func (d *Directory) conversationFor(ctx context.Context, id, callerID uuid.UUID) (*models.Conversation, error) {
	conv, err := d.store.GetConversation(ctx, id)
	if err != nil {
		return nil, err
	}
	if !conv.HasParticipant(callerID) {
		return nil, utils.NewForbiddenError("not a participant of this conversation")
	}
	return conv, nil
}

func (d *Directory) view(ctx context.Context, conv *models.Conversation, callerID uuid.UUID) (*models.ConversationView, error) {
	otherID := conv.OtherParticipant(callerID)
	other := models.UserSummary{ID: otherID}
	user, err := d.store.GetUser(ctx, otherID)
	switch {
	case err == nil:
		other.Username = user.Username
	case utils.IsErrorCode(err, utils.ErrNotFound):
		d.logger.Warn("conversation participant has no user record", zap.String("userId", otherID.String()))
	default:
		return nil, err
	}

	unread, err := d.store.CountUnreadInConversation(ctx, conv.ID, callerID)
	if err != nil {
		return nil, err
	}

	return &models.ConversationView{
		ID:              conv.ID,
		OtherUser:       other,
		LastMessage:     conv.LastMessagePreview,
		LastMessageTime: conv.LastMessageTime,
		UnreadCount:     unread,
		CreatedAt:       conv.CreatedAt,
	}, nil
}
