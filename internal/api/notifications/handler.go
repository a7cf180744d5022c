// Package notifications serves a recipient's notification inbox.
package notifications

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/good-yellow-bee/pawwatch/internal/api/respond"
	"github.com/good-yellow-bee/pawwatch/internal/models"
	"github.com/good-yellow-bee/pawwatch/internal/storage"
)

const maxLimit = 200

// Handler handles notification endpoints.
type Handler struct {
	repo storage.NotificationRepository
	now  func() time.Time
}

// NewHandler creates a new notifications handler.
func NewHandler(repo storage.NotificationRepository) *Handler {
	return &Handler{repo: repo, now: time.Now}
}

// List handles GET /api/v1/recipients/{id}/notifications.
// Query: unread=true, limit (1-200, default 50), offset.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	recipientID := chi.URLParam(r, "id")
	filter, err := parseFilter(r)
	if err != nil {
		respond.Error(w, r, http.StatusBadRequest, respond.CodeBadRequest, err.Error())
		return
	}

	items, total, err := h.repo.ListByRecipient(r.Context(), recipientID, filter)
	if err != nil {
		zerolog.Ctx(r.Context()).Error().Err(err).Str("recipient_id", recipientID).Msg("failed to list notifications")
		respond.Error(w, r, http.StatusInternalServerError, respond.CodeInternalError, "failed to list notifications")
		return
	}
	if items == nil {
		items = []*models.Notification{}
	}
	respond.Page(w, r, items, respond.PageMeta{Total: total, Limit: filter.Limit, Offset: filter.Offset})
}

// MarkRead handles POST /api/v1/recipients/{id}/notifications/{nid}/read.
func (h *Handler) MarkRead(w http.ResponseWriter, r *http.Request) {
	recipientID := chi.URLParam(r, "id")
	notificationID := chi.URLParam(r, "nid")

	err := h.repo.MarkRead(r.Context(), notificationID, recipientID, h.now())
	if errors.Is(err, storage.ErrNotFound) {
		respond.Error(w, r, http.StatusNotFound, respond.CodeNotFound, "notification not found")
		return
	}
	if err != nil {
		zerolog.Ctx(r.Context()).Error().Err(err).Str("notification_id", notificationID).Msg("failed to mark notification read")
		respond.Error(w, r, http.StatusInternalServerError, respond.CodeInternalError, "failed to mark notification read")
		return
	}
	respond.NoContent(w)
}

func parseFilter(r *http.Request) (storage.NotificationFilter, error) {
	q := r.URL.Query()
	f := storage.NotificationFilter{Limit: 50}

	if v := q.Get("unread"); v != "" {
		unread, err := strconv.ParseBool(v)
		if err != nil {
			return f, errors.New("unread must be a boolean")
		}
		f.UnreadOnly = unread
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > maxLimit {
			return f, errors.New("limit must be between 1 and 200")
		}
		f.Limit = n
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return f, errors.New("offset must be a non-negative integer")
		}
		f.Offset = n
	}
	return f, nil
}
