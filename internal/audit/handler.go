package audit

import (
	"context"
	"net/http"
	"strconv"

	"github.com/frahmantamala/fleet-approval/internal/transport"
	"github.com/frahmantamala/fleet-approval/internal/user"
)

type LogAPI interface {
	ListByActor(ctx context.Context, actorID int64, limit int) ([]Entry, error)
}

type Handler struct {
	*transport.BaseHandler
	Log LogAPI
}

func NewHandler(baseHandler *transport.BaseHandler, log LogAPI) *Handler {
	return &Handler{BaseHandler: baseHandler, Log: log}
}

// Mine handles GET /audit/me?limit=
func (h *Handler) Mine(w http.ResponseWriter, r *http.Request) {
	actor, ok := user.FromContext(r.Context())
	if !ok {
		h.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	entries, err := h.Log.ListByActor(r.Context(), actor.ID, limit)
	if err != nil {
		h.WriteAppError(w, r, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, map[string]interface{}{"entries": entries})
}
