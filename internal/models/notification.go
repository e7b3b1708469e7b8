package models

import (
	"time"

	"github.com/google/uuid"
)

// Notification types
const (
	NotificationInfo    = "info"
	NotificationWarning = "warning"
	NotificationSuccess = "success"
)

// Notification is a "tell this user about X" record.
type Notification struct {
	ID        uuid.UUID `json:"id" db:"id"`
	UserID    uuid.UUID `json:"userId" db:"user_id"`
	Title     string    `json:"title" db:"title"`
	Content   string    `json:"content" db:"content"`
	Type      string    `json:"type" db:"type"`
	IsRead    bool      `json:"isRead" db:"is_read"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
}
