package otp

import (
	"context"
	"net/http"
	"time"

	apperrors "github.com/frahmantamala/fleet-approval/internal"
	"github.com/frahmantamala/fleet-approval/internal/core/common/validation"
	"github.com/frahmantamala/fleet-approval/internal/transport"
	"github.com/frahmantamala/fleet-approval/internal/user"
)

type GateAPI interface {
	Generate(ctx context.Context, u *user.User) (*Code, error)
	Verify(ctx context.Context, u *user.User, submitted, ip string) error
}

type VerifyDTO struct {
	Code string `json:"code" validate:"required,len=6,numeric"`
}

func (d VerifyDTO) Validate() error {
	if err := validation.Struct(d); err != nil {
		return err
	}
	return nil
}

type Handler struct {
	*transport.BaseHandler
	Gate GateAPI
}

func NewHandler(base *transport.BaseHandler, gate GateAPI) *Handler {
	return &Handler{BaseHandler: base, Gate: gate}
}

// Request handles POST /otp/request
func (h *Handler) Request(w http.ResponseWriter, r *http.Request) {
	actor, ok := user.FromContext(r.Context())
	if !ok {
		h.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	code, err := h.Gate.Generate(r.Context(), actor)
	if err != nil {
		h.WriteAppError(w, r, err)
		return
	}
	h.WriteJSON(w, http.StatusAccepted, map[string]time.Time{"expires_at": code.ExpiresAt})
}

// Verify handles POST /otp/verify
func (h *Handler) Verify(w http.ResponseWriter, r *http.Request) {
	actor, ok := user.FromContext(r.Context())
	if !ok {
		h.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var dto VerifyDTO
	if err := h.DecodeJSON(r, &dto); err != nil {
		h.WriteAppError(w, r, err)
		return
	}
	if err := dto.Validate(); err != nil {
		h.WriteAppError(w, r, err)
		return
	}
	if err := h.Gate.Verify(r.Context(), actor, dto.Code, apperrors.ClientIPFromContext(r.Context())); err != nil {
		h.WriteAppError(w, r, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, map[string]bool{"verified": true})
}
