package models

import (
	"time"

	"github.com/google/uuid"
)

// User mirrors the account fields messaging needs for authorization. The
// account lifecycle itself is owned elsewhere.
type User struct {
	ID        uuid.UUID  `json:"id" db:"id"`
	Username  string     `json:"username" db:"username"`
	IsBanned  bool       `json:"isBanned" db:"is_banned"`
	BannedBy  *uuid.UUID `json:"bannedBy,omitempty" db:"banned_by"`
	CreatedAt time.Time  `json:"createdAt" db:"created_at"`
}

// CanMessage reports whether the user may send to receiverID. A banned user
// may only contact the admin who imposed the ban.
func (u *User) CanMessage(receiverID uuid.UUID) bool {
	if !u.IsBanned {
		return true
	}
	return u.BannedBy != nil && *u.BannedBy == receiverID
}

// UserSummary is the public part of a user shown next to a conversation.
type UserSummary struct {
	ID       uuid.UUID `json:"id"`
	Username string    `json:"username"`
}
