package models

import (
	"bytes"
	"time"

	"github.com/google/uuid"
)

// Conversation is the single channel between two users. The pair is stored
// canonically (LowID < HighID) so lookups ignore argument order.
type Conversation struct {
	ID                 uuid.UUID  `json:"id" db:"id"`
	LowID              uuid.UUID  `json:"-" db:"low_id"`
	HighID             uuid.UUID  `json:"-" db:"high_id"`
	LastMessagePreview *string    `json:"lastMessage" db:"last_message_preview"`
	LastMessageTime    *time.Time `json:"lastMessageTime" db:"last_message_time"`
	CreatedAt          time.Time  `json:"createdAt" db:"created_at"`
}

// CanonicalPair orders two ids so that the same unordered pair always
// yields the same (low, high) tuple.
func CanonicalPair(a, b uuid.UUID) (uuid.UUID, uuid.UUID) {
	if bytes.Compare(a[:], b[:]) <= 0 {
		return a, b
	}
	return b, a
}

// HasParticipant reports whether id is one of the two participants.
func (c *Conversation) HasParticipant(id uuid.UUID) bool {
	return c.LowID == id || c.HighID == id
}

// OtherParticipant returns the participant that is not id.
func (c *Conversation) OtherParticipant(id uuid.UUID) uuid.UUID {
	if c.LowID == id {
		return c.HighID
	}
	return c.LowID
}

// SortTime is the instant conversation lists are ordered by.
func (c *Conversation) SortTime() time.Time {
	if c.LastMessageTime != nil {
		return *c.LastMessageTime
	}
	return c.CreatedAt
}

// ConversationView is a conversation as seen by one participant.
type ConversationView struct {
	ID              uuid.UUID   `json:"id"`
	OtherUser       UserSummary `json:"otherUser"`
	LastMessage     *string     `json:"lastMessage"`
	LastMessageTime *time.Time  `json:"lastMessageTime"`
	UnreadCount     int         `json:"unreadCount"`
	CreatedAt       time.Time   `json:"createdAt"`
}
