package notification

import (
	"context"
	"net/http"
	"strconv"

	"github.com/frahmantamala/fleet-approval/internal/transport"
	"github.com/frahmantamala/fleet-approval/internal/user"
)

type ServiceAPI interface {
	List(ctx context.Context, recipientID int64, unreadOnly bool, page, pageSize int) (*Page, error)
	UnreadCount(ctx context.Context, recipientID int64) (int64, error)
	MarkRead(ctx context.Context, recipientID, id int64) error
	MarkAllRead(ctx context.Context, recipientID int64) (int64, error)
}

type Handler struct {
	*transport.BaseHandler
	Service ServiceAPI
}

func NewHandler(baseHandler *transport.BaseHandler, service ServiceAPI) *Handler {
	return &Handler{BaseHandler: baseHandler, Service: service}
}

// List handles GET /notifications?unread_only=&page=&page_size=
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	actor, ok := user.FromContext(r.Context())
	if !ok {
		h.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	q := r.URL.Query()
	unreadOnly, _ := strconv.ParseBool(q.Get("unread_only"))
	page, _ := strconv.Atoi(q.Get("page"))
	pageSize, _ := strconv.Atoi(q.Get("page_size"))

	result, err := h.Service.List(r.Context(), actor.ID, unreadOnly, page, pageSize)
	if err != nil {
		h.WriteAppError(w, r, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, result)
}

func (h *Handler) UnreadCount(w http.ResponseWriter, r *http.Request) {
	actor, ok := user.FromContext(r.Context())
	if !ok {
		h.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	count, err := h.Service.UnreadCount(r.Context(), actor.ID)
	if err != nil {
		h.WriteAppError(w, r, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, map[string]int64{"unread_count": count})
}

func (h *Handler) MarkRead(w http.ResponseWriter, r *http.Request) {
	actor, ok := user.FromContext(r.Context())
	if !ok {
		h.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	id, err := h.PathInt64(r, "id")
	if err != nil {
		h.WriteAppError(w, r, err)
		return
	}
	if err := h.Service.MarkRead(r.Context(), actor.ID, id); err != nil {
		h.WriteAppError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) MarkAllRead(w http.ResponseWriter, r *http.Request) {
	actor, ok := user.FromContext(r.Context())
	if !ok {
		h.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	updated, err := h.Service.MarkAllRead(r.Context(), actor.ID)
	if err != nil {
		h.WriteAppError(w, r, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, map[string]int64{"updated": updated})
}
