// internal/database/user_repository.go
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

// GetUser fetches a user by their ID.
func (p *SQLDB) GetUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	query := p.rebind(`SELECT id, username, is_banned, banned_by, created_at FROM users WHERE id = ?`)
	var user models.User
	if err := p.DB.GetContext(ctx, &user, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, utils.NewAppError(utils.ErrNotFound, "user not found", err)
		}
		return nil, utils.NewAppError(utils.ErrDatabase, "failed to query user by id", err)
	}
	return &user, nil
}

// SaveUser creates a user or updates its name and ban state.
func (p *SQLDB) SaveUser(ctx context.Context, user *models.User) error {
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	query := p.rebind(`
		INSERT INTO users (id, username, is_banned, banned_by, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			username = excluded.username,
			is_banned = excluded.is_banned,
			banned_by = excluded.banned_by
	`)
	_, err := p.DB.ExecContext(ctx, query, user.ID, user.Username, user.IsBanned, user.BannedBy, user.CreatedAt)
	if err != nil {
		return utils.NewAppError(utils.ErrDatabase, "failed to save user", err)
	}
	return nil
}

// DeleteUser removes a user; their conversations, messages and
// notifications go with them.
func (p *SQLDB) DeleteUser(ctx context.Context, id uuid.UUID) error {
	result, err := p.DB.ExecContext(ctx, p.rebind(`DELETE FROM users WHERE id = ?`), id)
	if err != nil {
		return utils.NewAppError(utils.ErrDatabase, "failed to delete user", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return utils.NewNotFoundError("user")
	}
	return nil
}
