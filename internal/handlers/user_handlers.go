package handlers

import (
	"net/http"
	"strings"
	"time"

	"campus-lostfound/internal/models"
	"campus-lostfound/internal/utils"
)

const maxUsernameLength = 64

// UpdateProfileRequest carries the caller's display name.
type UpdateProfileRequest struct {
	Username string `json:"username"`
}

// HandleUpdateProfile creates or refreshes the caller's user record. Ban
// state is owned by moderation tooling and is never changed here.
func (s *Server) HandleUpdateProfile() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := callerID(r)
		if err != nil {
			s.writeError(w, r, err)
			return
		}

		var req UpdateProfileRequest
		if err := decodeJSON(w, r, &req); err != nil {
			s.writeError(w, r, err)
			return
		}
		username := strings.TrimSpace(req.Username)
		if username == "" || len(username) > maxUsernameLength {
			s.writeError(w, r, utils.NewValidationError("username must be between 1 and 64 characters"))
			return
		}

		user, err := s.Store.GetUser(r.Context(), userID)
		switch {
		case utils.IsErrorCode(err, utils.ErrNotFound):
			user = &models.User{ID: userID, CreatedAt: time.Now().UTC()}
		case err != nil:
			s.writeError(w, r, err)
			return
		}
		user.Username = username

		if err := s.Store.SaveUser(r.Context(), user); err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, user)
	}
}

// HandleGetProfile returns the caller's user record.
func (s *Server) HandleGetProfile() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := callerID(r)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		user, err := s.Store.GetUser(r.Context(), userID)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, user)
	}
}
