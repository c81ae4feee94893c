package httpapi

import (
	"net/http"

	"github.com/example/ride-negotiation/internal/apperr"
	"github.com/example/ride-negotiation/internal/notify"
)

func (s *Server) handleListNotifications(w http.ResponseWriter, r *http.Request) {
	limit, fe := queryInt(r, "limit", notify.DefaultListLimit, 1, notify.MaxListLimit)
	if fe != nil {
		s.writeError(w, r, apperr.Invalid(*fe))
		return
	}
	unread := r.URL.Query().Get("unread") == "true"
	items, err := s.Notifications.List(r.Context(), identity(r).UserID, unread, limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"notifications": items})
}

func (s *Server) handleMarkRead(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		s.writeError(w, r, apperr.New(apperr.NotFound, "notification not found"))
		return
	}
	if err := s.Notifications.MarkRead(r.Context(), identity(r).UserID, id); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
