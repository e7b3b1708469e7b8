package models

import (
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

// MessageKind distinguishes text from image messages.
type MessageKind string

const (
	KindText  MessageKind = "text"
	KindImage MessageKind = "image"
)

const (
	// PreviewLength is the number of characters kept in a conversation summary.
	PreviewLength = 50

	// ImagePreview stands in for image messages in a conversation summary.
	ImagePreview = "[Image]"
)

// Message is one entry of a conversation's append-only log. Content is set
// for text messages, ImageRef for image messages.
type Message struct {
	Seq                 int64       `json:"-" db:"seq"`
	ID                  uuid.UUID   `json:"id" db:"id"`
	ConversationID      uuid.UUID   `json:"conversationId" db:"conversation_id"`
	SenderID            uuid.UUID   `json:"senderId" db:"sender_id"`
	ReceiverID          uuid.UUID   `json:"receiverId" db:"receiver_id"`
	Kind                MessageKind `json:"kind" db:"kind"`
	Content             *string     `json:"content,omitempty" db:"content"`
	ImageRef            *string     `json:"-" db:"image_ref"`
	IsRead              bool        `json:"isRead" db:"is_read"`
	IsRecalled          bool        `json:"isRecalled" db:"is_recalled"`
	IsDeletedBySender   bool        `json:"-" db:"is_deleted_by_sender"`
	IsDeletedByReceiver bool        `json:"-" db:"is_deleted_by_receiver"`
	CreatedAt           time.Time   `json:"createdAt" db:"created_at"`
}

// HiddenFor reports whether viewerID deleted the message on their side.
// The other party's deletion flag never affects viewerID.
func (m *Message) HiddenFor(viewerID uuid.UUID) bool {
	switch viewerID {
	case m.SenderID:
		return m.IsDeletedBySender
	case m.ReceiverID:
		return m.IsDeletedByReceiver
	default:
		return true
	}
}

// MessageView is a message rendered for one viewer.
type MessageView struct {
	ID             uuid.UUID   `json:"id"`
	ConversationID uuid.UUID   `json:"conversationId"`
	SenderID       uuid.UUID   `json:"senderId"`
	ReceiverID     uuid.UUID   `json:"receiverId"`
	Kind           MessageKind `json:"kind"`
	Content        *string     `json:"content"`
	ImageURL       *string     `json:"imageUrl"`
	IsRead         bool        `json:"isRead"`
	IsRecalled     bool        `json:"isRecalled"`
	IsSender       bool        `json:"isSender"`
	CreatedAt      time.Time   `json:"createdAt"`
}

// Render produces viewerID's view of the message, or nil when it is hidden
// for them. A recalled message always renders as a tombstone without any
// payload, whatever its deletion flags.
func (m *Message) Render(viewerID uuid.UUID) *MessageView {
	if !m.IsRecalled && m.HiddenFor(viewerID) {
		return nil
	}

	view := &MessageView{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		SenderID:       m.SenderID,
		ReceiverID:     m.ReceiverID,
		Kind:           m.Kind,
		IsRead:         m.IsRead,
		IsRecalled:     m.IsRecalled,
		IsSender:       m.SenderID == viewerID,
		CreatedAt:      m.CreatedAt,
	}
	if m.IsRecalled {
		return view
	}

	if m.Content != nil {
		content := *m.Content
		view.Content = &content
	}
	if m.Kind == KindImage && m.ImageRef != nil {
		url := "/api/messages/" + m.ID.String() + "/image"
		view.ImageURL = &url
	}
	return view
}

// Preview truncates content for a conversation summary.
func Preview(content string) string {
	if utf8.RuneCountInString(content) <= PreviewLength {
		return content
	}
	runes := []rune(content)
	return string(runes[:PreviewLength]) + "..."
}
