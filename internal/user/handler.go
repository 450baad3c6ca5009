package user

import (
	"net/http"

	apperrors "github.com/frahmantamala/fleet-approval/internal"
	"github.com/frahmantamala/fleet-approval/internal/transport"
)

type Handler struct {
	*transport.BaseHandler
}

func NewHandler(base *transport.BaseHandler) *Handler {
	return &Handler{BaseHandler: base}
}

// GetCurrentUser handles GET /users/me
func (h *Handler) GetCurrentUser(w http.ResponseWriter, r *http.Request) {
	u, ok := FromContext(r.Context())
	if !ok {
		h.WriteAppError(w, r, apperrors.NewUnauthorizedError("authentication required", apperrors.ErrCodeUnauthorizedAccess))
		return
	}
	h.WriteJSON(w, http.StatusOK, u)
}
