package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/patrickwarner/nest/internal/apperr"
	"github.com/patrickwarner/nest/internal/models"
)

func (s *Server) ListNotifications(w http.ResponseWriter, r *http.Request) {
	p, err := pageFromQuery(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	p = p.Normalize()
	f := models.NotificationFilter{
		Recipient:  caller(r).ID,
		UnreadOnly: r.URL.Query().Get("unread") == "true",
	}
	items, total, unread, err := s.Store.ListNotifications(r.Context(), f, p)
	if err != nil {
		s.fail(w, r, fmt.Errorf("list notifications: %w", err))
		return
	}
	if items == nil {
		items = []*models.Notification{}
	}
	pagination := models.NewPagination(total, p)
	writeJSON(w, http.StatusOK, envelope{Success: true, Data: items, Pagination: &pagination, UnreadCount: &unread})
}

// notificationErr maps a missing or foreign notification to 404.
func notificationErr(op string, err error) error {
	if errors.Is(err, models.ErrNotFound) {
		return apperr.NotFound("notification")
	}
	return fmt.Errorf("%s: %w", op, err)
}

func (s *Server) MarkNotificationRead(w http.ResponseWriter, r *http.Request) {
	if err := s.Store.MarkRead(r.Context(), mux.Vars(r)["id"], caller(r).ID); err != nil {
		s.fail(w, r, notificationErr("mark notification read", err))
		return
	}
	writeJSON(w, http.StatusOK, envelope{Success: true, Message: "Notification marked as read"})
}

func (s *Server) MarkAllNotificationsRead(w http.ResponseWriter, r *http.Request) {
	n, err := s.Store.MarkAllRead(r.Context(), caller(r).ID)
	if err != nil {
		s.fail(w, r, fmt.Errorf("mark all notifications read: %w", err))
		return
	}
	writeJSON(w, http.StatusOK, envelope{
		Success: true,
		Message: "All notifications marked as read",
		Data:    map[string]int{"updated": n},
	})
}

func (s *Server) DeleteNotification(w http.ResponseWriter, r *http.Request) {
	if err := s.Store.DeleteNotification(r.Context(), mux.Vars(r)["id"], caller(r).ID); err != nil {
		s.fail(w, r, notificationErr("delete notification", err))
		return
	}
	writeJSON(w, http.StatusOK, envelope{Success: true, Message: "Notification deleted successfully"})
}
