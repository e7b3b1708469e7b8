package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"campus-lostfound/internal/models"
	"campus-lostfound/internal/utils"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const messageColumns = `seq, id, conversation_id, sender_id, receiver_id, kind, content, image_ref,
	is_read, is_recalled, is_deleted_by_sender, is_deleted_by_receiver, created_at`

// AppendMessage inserts msg and moves the owning conversation's summary to
// it in one transaction. msg.Seq is filled in from storage.
func (p *SQLDB) AppendMessage(ctx context.Context, msg *models.Message, preview string) (err error) {
	tx, err := p.DB.BeginTxx(ctx, nil)
	if err != nil {
		return utils.NewAppError(utils.ErrDatabase, "failed to begin transaction", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				p.logger.Warn("rollback failed", zap.Error(rbErr))
			}
		}
	}()

	createdAt := msg.CreatedAt.UTC()
	insert := tx.Rebind(`
		INSERT INTO messages (id, conversation_id, sender_id, receiver_id, kind, content, image_ref,
			is_read, is_recalled, is_deleted_by_sender, is_deleted_by_receiver, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING seq
	`)
	if err = tx.QueryRowxContext(ctx, insert,
		msg.ID, msg.ConversationID, msg.SenderID, msg.ReceiverID, string(msg.Kind), msg.Content, msg.ImageRef,
		msg.IsRead, msg.IsRecalled, msg.IsDeletedBySender, msg.IsDeletedByReceiver, createdAt,
	).Scan(&msg.Seq); err != nil {
		return utils.NewAppError(utils.ErrDatabase, "failed to insert message", err)
	}

	update := tx.Rebind(`UPDATE conversations SET last_message_preview = ?, last_message_time = ? WHERE id = ?`)
	result, err := tx.ExecContext(ctx, update, preview, createdAt, msg.ConversationID)
	if err != nil {
		return utils.NewAppError(utils.ErrDatabase, "failed to update conversation summary", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return utils.NewNotFoundError("conversation")
	}

	if err := tx.Commit(); err != nil {
		return utils.NewAppError(utils.ErrDatabase, "failed to commit message", err)
	}
	return nil
}

// GetMessage fetches a message by ID.
func (p *SQLDB) GetMessage(ctx context.Context, id uuid.UUID) (*models.Message, error) {
	query := p.rebind(`SELECT ` + messageColumns + ` FROM messages WHERE id = ?`)
	var msg models.Message
	if err := p.DB.GetContext(ctx, &msg, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, utils.NewAppError(utils.ErrNotFound, "message not found", err)
		}
		return nil, utils.NewAppError(utils.ErrDatabase, "failed to query message", err)
	}
	return &msg, nil
}

// ListMessages returns a conversation's full log in creation order.
func (p *SQLDB) ListMessages(ctx context.Context, conversationID uuid.UUID) ([]*models.Message, error) {
	query := p.rebind(`SELECT ` + messageColumns + ` FROM messages WHERE conversation_id = ? ORDER BY created_at, seq`)
	messages := make([]*models.Message, 0)
	if err := p.DB.SelectContext(ctx, &messages, query, conversationID); err != nil {
		return nil, utils.NewAppError(utils.ErrDatabase, "failed to query messages", err)
	}
	return messages, nil
}

// MarkConversationRead flips every unread message addressed to receiverID
// in the conversation in a single statement.
func (p *SQLDB) MarkConversationRead(ctx context.Context, conversationID, receiverID uuid.UUID) (int64, error) {
	query := p.rebind(`UPDATE messages SET is_read = ? WHERE conversation_id = ? AND receiver_id = ? AND is_read = ?`)
	result, err := p.DB.ExecContext(ctx, query, true, conversationID, receiverID, false)
	if err != nil {
		return 0, utils.NewAppError(utils.ErrDatabase, "failed to mark messages read", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, utils.NewAppError(utils.ErrDatabase, "failed to mark messages read", err)
	}
	return n, nil
}

// MarkDeleted sets the sender's or the receiver's deletion flag.
func (p *SQLDB) MarkDeleted(ctx context.Context, messageID uuid.UUID, bySender bool) error {
	column := "is_deleted_by_receiver"
	if bySender {
		column = "is_deleted_by_sender"
	}
	query := p.rebind(fmt.Sprintf(`UPDATE messages SET %s = ? WHERE id = ?`, column))
	result, err := p.DB.ExecContext(ctx, query, true, messageID)
	if err != nil {
		return utils.NewAppError(utils.ErrDatabase, "failed to delete message", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return utils.NewNotFoundError("message")
	}
	return nil
}

// RecallMessage marks a message recalled and drops its image reference. It
// reports false when the message was already recalled.
func (p *SQLDB) RecallMessage(ctx context.Context, messageID uuid.UUID) (bool, error) {
	query := p.rebind(`UPDATE messages SET is_recalled = ?, image_ref = NULL WHERE id = ? AND is_recalled = ?`)
	result, err := p.DB.ExecContext(ctx, query, true, messageID, false)
	if err != nil {
		return false, utils.NewAppError(utils.ErrDatabase, "failed to recall message", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, utils.NewAppError(utils.ErrDatabase, "failed to recall message", err)
	}
	return n == 1, nil
}

// CountUnread counts unread messages addressed to receiverID that they have
// not deleted.
func (p *SQLDB) CountUnread(ctx context.Context, receiverID uuid.UUID) (int, error) {
	query := p.rebind(`SELECT COUNT(*) FROM messages WHERE receiver_id = ? AND is_read = ? AND is_deleted_by_receiver = ?`)
	var count int
	if err := p.DB.GetContext(ctx, &count, query, receiverID, false, false); err != nil {
		return 0, utils.NewAppError(utils.ErrDatabase, "failed to count unread messages", err)
	}
	return count, nil
}

// CountUnreadInConversation is CountUnread restricted to one conversation.
func (p *SQLDB) CountUnreadInConversation(ctx context.Context, conversationID, receiverID uuid.UUID) (int, error) {
	query := p.rebind(`
		SELECT COUNT(*) FROM messages
		WHERE conversation_id = ? AND receiver_id = ? AND is_read = ? AND is_deleted_by_receiver = ?
	`)
	var count int
	if err := p.DB.GetContext(ctx, &count, query, conversationID, receiverID, false, false); err != nil {
		return 0, utils.NewAppError(utils.ErrDatabase, "failed to count unread messages", err)
	}
	return count, nil
}
