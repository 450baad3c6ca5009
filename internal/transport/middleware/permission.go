package middleware

import (
	"net/http"

	apperrors "github.com/frahmantamala/fleet-approval/internal"
	"github.com/frahmantamala/fleet-approval/internal/core/approval"
	"github.com/frahmantamala/fleet-approval/internal/transport"
	"github.com/frahmantamala/fleet-approval/internal/user"
	"github.com/frahmantamala/fleet-approval/pkg/logger"
)

// RequireRoles admits only authenticated users holding one of roles. It must
// run after the auth middleware.
func RequireRoles(base *transport.BaseHandler, roles ...approval.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			u, ok := user.FromContext(r.Context())
			if !ok {
				base.WriteAppError(w, r, apperrors.NewUnauthorizedError("authentication required", apperrors.ErrCodeUnauthorizedAccess))
				return
			}
			if !u.HasRole(roles...) {
				logger.From(r.Context()).Warn("access denied: role not permitted",
					"user_id", u.ID,
					"role", u.Role,
					"required_roles", roles)
				base.WriteAppError(w, r, apperrors.ErrRoleNotPermitted)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
