package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"spendwatch/internal/core"
	"spendwatch/internal/log"
)

type notificationResponse struct {
	ID           string            `json:"id"`
	UserID       string            `json:"userId"`
	Type         string            `json:"type"`
	Severity     string            `json:"severity"`
	ResourceType string            `json:"resourceType"`
	ResourceID   string            `json:"resourceId"`
	Title        string            `json:"title"`
	Message      string            `json:"message"`
	Meta         map[string]string `json:"meta,omitempty"`
	IsRead       bool              `json:"isRead"`
	CreatedAt    time.Time         `json:"createdAt"`
}

func toNotificationResponse(n core.Notification) notificationResponse {
	return notificationResponse{
		ID:           n.ID,
		UserID:       n.UserID,
		Type:         n.Type,
		Severity:     n.Severity,
		ResourceType: n.ResourceType,
		ResourceID:   n.ResourceID,
		Title:        n.Title,
		Message:      n.Message,
		Meta:         n.Meta,
		IsRead:       n.IsRead,
		CreatedAt:    n.CreatedAt,
	}
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.health != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.health.Ping(ctx); err != nil {
			s.logger.WarnContext(ctx, "Readiness check failed",
				log.FieldError, err,
				"request_id", RequestID(ctx))
			http.Error(w, "store unavailable", http.StatusServiceUnavailable)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

func (s *Server) handleListNotifications(w http.ResponseWriter, r *http.Request) {
	userID := strings.TrimSpace(r.PathValue("userID"))
	if userID == "" {
		writeError(w, http.StatusBadRequest, "user id is required")
		return
	}

	unreadOnly := false
	if v := r.URL.Query().Get("unread"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "unread must be a boolean")
			return
		}
		unreadOnly = b
	}

	notes, err := s.notifications.ListNotifications(r.Context(), userID, unreadOnly)
	if err != nil {
		s.logger.ErrorContext(r.Context(), "Failed to list notifications",
			log.FieldUserID, userID,
			log.FieldError, err)
		writeError(w, http.StatusInternalServerError, "failed to list notifications")
		return
	}

	out := make([]notificationResponse, 0, len(notes))
	for _, n := range notes {
		out = append(out, toNotificationResponse(n))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleMarkRead(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(r.PathValue("id"))

	err := s.notifications.MarkNotificationRead(r.Context(), id)
	switch {
	case errors.Is(err, core.ErrNotFound):
		writeError(w, http.StatusNotFound, "notification not found")
	case err != nil:
		s.logger.ErrorContext(r.Context(), "Failed to mark notification read",
			"notification_id", id,
			log.FieldError, err)
		writeError(w, http.StatusInternalServerError, "failed to mark notification read")
	default:
		w.WriteHeader(http.StatusNoContent)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
