package handlers

import (
	"net/http"
)

// HandleListConversations lists the caller's conversations, most recent
// activity first.
func (s *Server) HandleListConversations() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := callerID(r)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		views, err := s.Directory.ListFor(r.Context(), userID)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, views)
	}
}

// HandleGetOrCreateConversation returns the caller's conversation with the
// user in the path, starting it on first contact.
func (s *Server) HandleGetOrCreateConversation() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, otherID, err := callerAndPathID(r, "userId")
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		view, created, err := s.Directory.GetOrCreate(r.Context(), userID, otherID)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		status := http.StatusOK
		if created {
			status = http.StatusCreated
		}
		writeJSON(w, status, view)
	}
}

// HandleGetConversation returns one conversation as the caller sees it.
func (s *Server) HandleGetConversation() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, convID, err := callerAndPathID(r, "id")
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		view, err := s.Directory.Get(r.Context(), convID, userID)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, view)
	}
}
