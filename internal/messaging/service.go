package messaging

import (
	"context"
	"io"
	"strings"
	"time"

	"campus-lostfound/internal/database"
	"campus-lostfound/internal/models"
	"campus-lostfound/internal/moderation"
	"campus-lostfound/internal/utils"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Real-time event names published by the service.
const (
	EventNewMessage      = "new_message"
	EventMessageSent     = "message_sent"
	EventMessageRecalled = "message_recalled"
)

const (
	DefaultRecallWindow  = 120 * time.Second
	DefaultMaxImageBytes = 10 << 20

	// MaxMessageBytes caps the trimmed content of a text message. It stays
	// well under the websocket frame limit so an oversized send over a
	// socket is answered with an error event instead of a disconnect.
	MaxMessageBytes = 16 << 10

	// matchedTermsPreview caps the matched terms returned with a rejection.
	matchedTermsPreview = 3
)

// Publisher delivers an event to every live connection of a user. Delivery
// is best effort.
type Publisher interface {
	Publish(userID uuid.UUID, event string, payload interface{})
}

// Notifier hands a "tell this user about X" request to the notification
// issuer without waiting for it.
type Notifier interface {
	Notify(userID uuid.UUID, title, content, kind string)
}

// ImageStore holds image payloads by reference.
type ImageStore interface {
	Save(ctx context.Context, ref string, data []byte) error
	Open(ctx context.Context, ref string) (io.ReadSeekCloser, error)
	Delete(ctx context.Context, ref string) error
}

// SendTextRequest is a text send on behalf of an authenticated sender.
// ReceiverID is optional; when set it must name the other participant.
type SendTextRequest struct {
	ConversationID uuid.UUID
	SenderID       uuid.UUID
	ReceiverID     *uuid.UUID
	Content        string
}

// SendImageRequest is an image send. Filename is only used to derive the
// file type.
type SendImageRequest struct {
	ConversationID uuid.UUID
	SenderID       uuid.UUID
	Filename       string
	Data           []byte
}

type Option func(*Service)

func WithPublisher(p Publisher) Option { return func(s *Service) { s.publisher = p } }

func WithNotifier(n Notifier) Option { return func(s *Service) { s.notifier = n } }

func WithImageStore(is ImageStore) Option { return func(s *Service) { s.images = is } }

func WithMetrics(m *utils.MetricsCollector) Option { return func(s *Service) { s.metrics = m } }

func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

func WithRecallWindow(d time.Duration) Option { return func(s *Service) { s.recallWindow = d } }

func WithMaxImageBytes(n int64) Option { return func(s *Service) { s.maxImageBytes = n } }

// Service runs the message lifecycle: send, list, delete, recall and
// unread tracking.
type Service struct {
	store     database.Store
	directory *Directory
	filter    *moderation.Filter
	publisher Publisher
	notifier  Notifier
	images    ImageStore
	metrics   *utils.MetricsCollector
	logger    *zap.Logger

	now           func() time.Time
	recallWindow  time.Duration
	maxImageBytes int64
}

func NewService(store database.Store, filter *moderation.Filter, logger *zap.Logger, opts ...Option) *Service {
	s := &Service{
		store:         store,
		filter:        filter,
		publisher:     nopPublisher{},
		notifier:      nopNotifier{},
		metrics:       utils.NewMetricsCollector(),
		logger:        logger.Named("messaging"),
		now:           time.Now,
		recallWindow:  DefaultRecallWindow,
		maxImageBytes: DefaultMaxImageBytes,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.directory = NewDirectory(store, logger, s.now)
	return s
}

// Directory returns the conversation directory sharing this service's
// store and clock.
func (s *Service) Directory() *Directory {
	return s.directory
}

// SendText moderates and persists a text message, then delivers it.
func (s *Service) SendText(ctx context.Context, req SendTextRequest) (*models.MessageView, error) {
	start := time.Now()
	defer func() { s.metrics.AddOperationLatency("send_text", time.Since(start)) }()

	conv, sender, receiverID, err := s.authorizeSend(ctx, req.ConversationID, req.SenderID, req.ReceiverID)
	if err != nil {
		return nil, err
	}

	content := strings.TrimSpace(req.Content)
	if content == "" {
		return nil, utils.NewValidationError("message content cannot be empty")
	}
	if len(content) > MaxMessageBytes {
		return nil, utils.NewValidationError("message exceeds the maximum allowed length")
	}
	if result := s.filter.Evaluate(content); result.Flagged {
		s.metrics.ContentRejected()
		s.logger.Info("message rejected by moderation",
			zap.String("senderId", req.SenderID.String()),
			zap.Strings("matches", result.Matches))
		return nil, utils.NewContentRejectedError(result.Matches, matchedTermsPreview)
	}

	msg := &models.Message{
		ID:             uuid.New(),
		ConversationID: conv.ID,
		SenderID:       req.SenderID,
		ReceiverID:     receiverID,
		Kind:           models.KindText,
		Content:        &content,
		CreatedAt:      s.now().UTC(),
	}
	if err := s.store.AppendMessage(ctx, msg, models.Preview(content)); err != nil {
		return nil, err
	}
	s.metrics.MessageSent(string(models.KindText))

	s.deliver(msg, sender.Username)
	return msg.Render(req.SenderID), nil
}

// SendImage validates and stores an image payload and persists an image
// message referencing it. Images are not moderated.
func (s *Service) SendImage(ctx context.Context, req SendImageRequest) (*models.MessageView, error) {
	start := time.Now()
	defer func() { s.metrics.AddOperationLatency("send_image", time.Since(start)) }()

	if s.images == nil {
		return nil, utils.NewAppError(utils.ErrInvalidInput, "image messages are not enabled", nil)
	}

	conv, sender, receiverID, err := s.authorizeSend(ctx, req.ConversationID, req.SenderID, nil)
	if err != nil {
		return nil, err
	}

	if len(req.Data) == 0 {
		return nil, utils.NewValidationError("image is empty")
	}
	if int64(len(req.Data)) > s.maxImageBytes {
		return nil, utils.NewValidationError("image exceeds the maximum allowed size")
	}
	ext, ok := ImageExtension(req.Filename, req.Data)
	if !ok {
		return nil, utils.NewValidationError("unsupported image type")
	}

	msgID := uuid.New()
	ref := msgID.String() + "." + ext
	if err := s.images.Save(ctx, ref, req.Data); err != nil {
		return nil, utils.NewAppError(utils.ErrDatabase, "failed to store image", err)
	}

	msg := &models.Message{
		ID:             msgID,
		ConversationID: conv.ID,
		SenderID:       req.SenderID,
		ReceiverID:     receiverID,
		Kind:           models.KindImage,
		ImageRef:       &ref,
		CreatedAt:      s.now().UTC(),
	}
	if err := s.store.AppendMessage(ctx, msg, models.ImagePreview); err != nil {
		if delErr := s.images.Delete(ctx, ref); delErr != nil {
			s.logger.Warn("failed to remove orphaned image", zap.String("ref", ref), zap.Error(delErr))
		}
		return nil, err
	}
	s.metrics.MessageSent(string(models.KindImage))

	s.deliver(msg, sender.Username)
	return msg.Render(req.SenderID), nil
}

// List returns conversationID's messages as viewerID sees them, after
// marking everything addressed to viewerID as read.
func (s *Service) List(ctx context.Context, conversationID, viewerID uuid.UUID) ([]*models.MessageView, error) {
	start := time.Now()
	defer func() { s.metrics.AddOperationLatency("list_messages", time.Since(start)) }()

	if _, err := s.directory.conversationFor(ctx, conversationID, viewerID); err != nil {
		return nil, err
	}
	if _, err := s.store.MarkConversationRead(ctx, conversationID, viewerID); err != nil {
		return nil, err
	}

	msgs, err := s.store.ListMessages(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	views := make([]*models.MessageView, 0, len(msgs))
	for _, msg := range msgs {
		if view := msg.Render(viewerID); view != nil {
			views = append(views, view)
		}
	}
	return views, nil
}

// SoftDelete hides a message on viewerID's side only.
func (s *Service) SoftDelete(ctx context.Context, messageID, viewerID uuid.UUID) error {
	msg, err := s.store.GetMessage(ctx, messageID)
	if err != nil {
		return err
	}
	switch viewerID {
	case msg.SenderID:
		return s.store.MarkDeleted(ctx, messageID, true)
	case msg.ReceiverID:
		return s.store.MarkDeleted(ctx, messageID, false)
	default:
		return utils.NewForbiddenError("not allowed to delete this message")
	}
}

// Recall withdraws a message for both parties. Only the sender may recall,
// and only within the recall window measured from creation.
func (s *Service) Recall(ctx context.Context, messageID, senderID uuid.UUID) (*models.MessageView, error) {
	msg, err := s.store.GetMessage(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if msg.SenderID != senderID {
		return nil, utils.NewForbiddenError("only the sender can recall a message")
	}
	if msg.IsRecalled {
		return nil, utils.NewAppError(utils.ErrAlreadyRecalled, "message already recalled", nil)
	}
	if s.now().Sub(msg.CreatedAt) > s.recallWindow {
		return nil, utils.NewAppError(utils.ErrWindowExpired, "recall window has passed", nil)
	}

	recalled, err := s.store.RecallMessage(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if !recalled {
		return nil, utils.NewAppError(utils.ErrAlreadyRecalled, "message already recalled", nil)
	}

	if msg.Kind == models.KindImage && msg.ImageRef != nil && s.images != nil {
		if err := s.images.Delete(ctx, *msg.ImageRef); err != nil {
			s.logger.Warn("failed to remove recalled image", zap.String("ref", *msg.ImageRef), zap.Error(err))
		}
	}

	msg.IsRecalled = true
	msg.ImageRef = nil
	event := map[string]interface{}{
		"messageId":      msg.ID,
		"conversationId": msg.ConversationID,
	}
	s.publisher.Publish(msg.ReceiverID, EventMessageRecalled, event)
	s.publisher.Publish(msg.SenderID, EventMessageRecalled, event)

	return msg.Render(senderID), nil
}

// UnreadCount counts unread messages addressed to viewerID that viewerID
// has not deleted.
func (s *Service) UnreadCount(ctx context.Context, viewerID uuid.UUID) (int, error) {
	return s.store.CountUnread(ctx, viewerID)
}

// OpenImage returns an image message's payload to one of its participants.
// The caller closes the reader.
func (s *Service) OpenImage(ctx context.Context, messageID, viewerID uuid.UUID) (io.ReadSeekCloser, string, error) {
	msg, err := s.store.GetMessage(ctx, messageID)
	if err != nil {
		return nil, "", err
	}
	if msg.SenderID != viewerID && msg.ReceiverID != viewerID {
		return nil, "", utils.NewForbiddenError("not a participant of this conversation")
	}
	if msg.Kind != models.KindImage || msg.IsRecalled || msg.ImageRef == nil || msg.HiddenFor(viewerID) || s.images == nil {
		return nil, "", utils.NewNotFoundError("image")
	}

	rc, err := s.images.Open(ctx, *msg.ImageRef)
	if err != nil {
		return nil, "", err
	}
	return rc, *msg.ImageRef, nil
}

// authorizeSend checks membership and the ban rule and returns the
// conversation, the sender record and the receiver the message will be
// addressed to.
func (s *Service) authorizeSend(ctx context.Context, conversationID, senderID uuid.UUID, receiverHint *uuid.UUID) (*models.Conversation, *models.User, uuid.UUID, error) {
	conv, err := s.directory.conversationFor(ctx, conversationID, senderID)
	if err != nil {
		return nil, nil, uuid.Nil, err
	}
	receiverID := conv.OtherParticipant(senderID)
	if receiverHint != nil && *receiverHint != receiverID {
		return nil, nil, uuid.Nil, utils.NewForbiddenError("receiver is not the other participant of this conversation")
	}

	sender, err := s.store.GetUser(ctx, senderID)
	if err != nil {
		return nil, nil, uuid.Nil, err
	}
	if !sender.CanMessage(receiverID) {
		return nil, nil, uuid.Nil, utils.NewForbiddenError("your account is banned and can only contact the administrator who banned it")
	}
	return conv, sender, receiverID, nil
}

// deliver fans a committed message out to both rooms and raises a
// notification for the receiver. Nothing here can fail the send.
func (s *Service) deliver(msg *models.Message, senderName string) {
	s.publisher.Publish(msg.ReceiverID, EventNewMessage, msg.Render(msg.ReceiverID))
	s.publisher.Publish(msg.SenderID, EventMessageSent, msg.Render(msg.SenderID))
	s.notifier.Notify(msg.ReceiverID, "New message", senderName+" sent you a message", models.NotificationInfo)
}

type nopPublisher struct{}

func (nopPublisher) Publish(uuid.UUID, string, interface{}) {}

type nopNotifier struct{}

func (nopNotifier) Notify(uuid.UUID, string, string, string) {}
