package database

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"campus-lostfound/internal/models"
	"campus-lostfound/internal/utils"

	"github.com/google/uuid"
)

const conversationColumns = `id, low_id, high_id, last_message_preview, last_message_time, created_at`

// GetOrCreateConversation returns the conversation for the unordered pair
// (a, b), inserting it first if needed. The unique (low_id, high_id) index
// makes concurrent first contacts converge on one row. The bool reports
// whether this call created it.
func (p *SQLDB) GetOrCreateConversation(ctx context.Context, a, b uuid.UUID, now time.Time) (*models.Conversation, bool, error) {
	low, high := models.CanonicalPair(a, b)

	insert := p.rebind(`
		INSERT INTO conversations (id, low_id, high_id, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (low_id, high_id) DO NOTHING
	`)
	result, err := p.DB.ExecContext(ctx, insert, uuid.New(), low, high, now.UTC())
	if err != nil {
		return nil, false, utils.NewAppError(utils.ErrDatabase, "failed to create conversation", err)
	}
	created := false
	if n, err := result.RowsAffected(); err == nil && n == 1 {
		created = true
	}

	query := p.rebind(`SELECT ` + conversationColumns + ` FROM conversations WHERE low_id = ? AND high_id = ?`)
	var conv models.Conversation
	if err := p.DB.GetContext(ctx, &conv, query, low, high); err != nil {
		return nil, false, utils.NewAppError(utils.ErrDatabase, "failed to load conversation", err)
	}
	return &conv, created, nil
}

// GetConversation fetches a conversation by ID.
func (p *SQLDB) GetConversation(ctx context.Context, id uuid.UUID) (*models.Conversation, error) {
	query := p.rebind(`SELECT ` + conversationColumns + ` FROM conversations WHERE id = ?`)
	var conv models.Conversation
	if err := p.DB.GetContext(ctx, &conv, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, utils.NewAppError(utils.ErrNotFound, "conversation not found", err)
		}
		return nil, utils.NewAppError(utils.ErrDatabase, "failed to query conversation", err)
	}
	return &conv, nil
}

// ListConversations returns every conversation userID takes part in, most
// recently active first.
func (p *SQLDB) ListConversations(ctx context.Context, userID uuid.UUID) ([]*models.Conversation, error) {
	query := p.rebind(`
		SELECT ` + conversationColumns + `
		FROM conversations
		WHERE low_id = ? OR high_id = ?
		ORDER BY COALESCE(last_message_time, created_at) DESC, id
	`)
	conversations := make([]*models.Conversation, 0)
	if err := p.DB.SelectContext(ctx, &conversations, query, userID, userID); err != nil {
		return nil, utils.NewAppError(utils.ErrDatabase, "failed to query conversations", err)
	}
	return conversations, nil
}
