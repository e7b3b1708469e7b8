package database

import (
	"context"
	"time"

	"campus-lostfound/internal/models"
	"campus-lostfound/internal/utils"
)

// SaveNotification persists a notification record.
func (p *SQLDB) SaveNotification(ctx context.Context, n *models.Notification) error {
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	query := p.rebind(`
		INSERT INTO notifications (id, user_id, title, content, type, is_read, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	_, err := p.DB.ExecContext(ctx, query, n.ID, n.UserID, n.Title, n.Content, n.Type, n.IsRead, n.CreatedAt.UTC())
	if err != nil {
		return utils.NewAppError(utils.ErrDatabase, "failed to save notification", err)
	}
	return nil
}
