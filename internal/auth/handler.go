package auth

import (
	"context"
	"net/http"

	apperrors "github.com/frahmantamala/fleet-approval/internal"
	"github.com/frahmantamala/fleet-approval/internal/transport"
	"github.com/frahmantamala/fleet-approval/internal/user"
	"github.com/frahmantamala/fleet-approval/pkg/logger"
)

type ServiceAPI interface {
	Authenticate(ctx context.Context, dto LoginDTO) (AuthTokens, error)
	RefreshTokens(ctx context.Context, refreshToken string) (AuthTokens, error)
	Authenticated(ctx context.Context, accessToken string) (*user.User, error)
}

type Handler struct {
	*transport.BaseHandler
	Service ServiceAPI
}

func NewHandler(base *transport.BaseHandler, svc ServiceAPI) *Handler {
	return &Handler{BaseHandler: base, Service: svc}
}

// Login handles POST /auth/login
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var dto LoginDTO
	if err := h.DecodeJSON(r, &dto); err != nil {
		h.WriteAppError(w, r, err)
		return
	}

	tokens, err := h.Service.Authenticate(r.Context(), dto)
	if err != nil {
		h.WriteAppError(w, r, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, tokens)
}

// RefreshToken handles POST /auth/refresh
func (h *Handler) RefreshToken(w http.ResponseWriter, r *http.Request) {
	var dto RefreshTokenDTO
	if err := h.DecodeJSON(r, &dto); err != nil {
		h.WriteAppError(w, r, err)
		return
	}
	if err := dto.Validate(); err != nil {
		h.WriteAppError(w, r, err)
		return
	}

	tokens, err := h.Service.RefreshTokens(r.Context(), dto.RefreshToken)
	if err != nil {
		h.WriteAppError(w, r, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, tokens)
}

// Logout is stateless; it only confirms the presented token is still good.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	token := h.ExtractTokenFromHeader(r)
	if token == "" {
		h.WriteAppError(w, r, apperrors.NewUnauthorizedError("missing authorization token", apperrors.ErrCodeUnauthorizedAccess))
		return
	}
	if _, err := h.Service.Authenticated(r.Context(), token); err != nil {
		h.WriteAppError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// AuthMiddleware resolves the bearer token to an active user and puts it on
// the request context together with a user-scoped logger.
func (h *Handler) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := h.ExtractTokenFromHeader(r)
		if token == "" {
			h.WriteAppError(w, r, apperrors.NewUnauthorizedError("missing authorization token", apperrors.ErrCodeUnauthorizedAccess))
			return
		}

		u, err := h.Service.Authenticated(r.Context(), token)
		if err != nil {
			h.WriteAppError(w, r, err)
			return
		}

		ctx := user.WithContext(r.Context(), u)
		ctx = apperrors.ContextWithUserID(ctx, u.ID)
		ctx = logger.With(ctx, "user_id", u.ID, "role", u.Role)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
