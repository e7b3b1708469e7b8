package handlers

import (
	"net/http"
	"time"
)

// HandleHealth reports liveness and how many users are connected in real
// time.
func (s *Server) HandleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"status":         "ok",
			"connectedUsers": s.Hub.ConnectedUsers(),
			"uptime":         s.Metrics.Uptime().Round(time.Second).String(),
			"serverTime":     time.Now().UTC(),
		})
	}
}
