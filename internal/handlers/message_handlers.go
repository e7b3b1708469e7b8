package handlers

import (
	"errors"
	"io"
	"net/http"
	"time"

	"campus-lostfound/internal/messaging"
	"campus-lostfound/internal/utils"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// multipartOverhead is the allowance for form boundaries and headers on top
// of the image itself.
const multipartOverhead = 1 << 20

// SendMessageRequest represents a request to send a text message
type SendMessageRequest struct {
	Content    string `json:"content"`
	ReceiverID string `json:"receiverId,omitempty"`
}

// HandleListMessages returns a conversation's messages in order and marks
// those addressed to the caller as read.
func (s *Server) HandleListMessages() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, convID, err := callerAndPathID(r, "id")
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		views, err := s.Messages.List(r.Context(), convID, userID)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, views)
	}
}

// HandleSendMessage sends a text message into a conversation.
func (s *Server) HandleSendMessage() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, convID, err := callerAndPathID(r, "id")
		if err != nil {
			s.writeError(w, r, err)
			return
		}

		var req SendMessageRequest
		if err := decodeJSON(w, r, &req); err != nil {
			s.writeError(w, r, err)
			return
		}
		receiverID, err := optionalUUID(req.ReceiverID, "receiverId")
		if err != nil {
			s.writeError(w, r, err)
			return
		}

		view, err := s.Messages.SendText(r.Context(), messaging.SendTextRequest{
			ConversationID: convID,
			SenderID:       userID,
			ReceiverID:     receiverID,
			Content:        req.Content,
		})
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, view)
	}
}

// HandleSendImage sends an image uploaded as the multipart field "image".
func (s *Server) HandleSendImage() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, convID, err := callerAndPathID(r, "id")
		if err != nil {
			s.writeError(w, r, err)
			return
		}

		r.Body = http.MaxBytesReader(w, r.Body, s.MaxImageBytes+multipartOverhead)
		file, header, err := r.FormFile("image")
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				s.writeError(w, r, utils.NewValidationError("image exceeds the maximum allowed size"))
				return
			}
			s.writeError(w, r, utils.NewValidationError("missing image file"))
			return
		}
		defer file.Close()

		data, err := io.ReadAll(io.LimitReader(file, s.MaxImageBytes+1))
		if err != nil {
			s.writeError(w, r, utils.NewValidationError("failed to read image"))
			return
		}

		view, err := s.Messages.SendImage(r.Context(), messaging.SendImageRequest{
			ConversationID: convID,
			SenderID:       userID,
			Filename:       header.Filename,
			Data:           data,
		})
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, view)
	}
}

// HandleMessageImage streams an image message's payload to a participant.
func (s *Server) HandleMessageImage() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, msgID, err := callerAndPathID(r, "id")
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		rc, ref, err := s.Messages.OpenImage(r.Context(), msgID, userID)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		defer rc.Close()

		w.Header().Set("Cache-Control", "private, max-age=3600")
		w.Header().Set("X-Content-Type-Options", "nosniff")
		// The content type follows the extension in ref.
		http.ServeContent(w, r, ref, time.Time{}, rc)
	}
}

// HandleDeleteMessage hides a message on the caller's side.
func (s *Server) HandleDeleteMessage() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, msgID, err := callerAndPathID(r, "id")
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		if err := s.Messages.SoftDelete(r.Context(), msgID, userID); err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]bool{"success": true})
	}
}

// HandleRecallMessage withdraws the caller's own recent message.
func (s *Server) HandleRecallMessage() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, msgID, err := callerAndPathID(r, "id")
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		view, err := s.Messages.Recall(r.Context(), msgID, userID)
		if err != nil {
			s.logger.Debug("recall refused", zap.String("messageId", msgID.String()), zap.Error(err))
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, view)
	}
}

// HandleUnreadCount returns the caller's total unread count.
func (s *Server) HandleUnreadCount() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := callerID(r)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		count, err := s.Messages.UnreadCount(r.Context(), userID)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]int{"count": count})
	}
}

// optionalUUID parses an optional id field; empty means absent.
func optionalUUID(raw, field string) (*uuid.UUID, error) {
	if raw == "" {
		return nil, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, utils.NewValidationError("invalid " + field)
	}
	return &id, nil
}
