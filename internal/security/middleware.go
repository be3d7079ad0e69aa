package security

import (
	"log/slog"
	"net/http"

	"github.com/festeja/festeja/internal/identity"
	"github.com/festeja/festeja/internal/observability"
	"github.com/festeja/festeja/internal/platform/httpx"
)

// Middleware wires authorization checks into HTTP handlers.
type Middleware struct {
	Access  *AccessService
	Logger  *slog.Logger
	Metrics *observability.Metrics
}

// Require ensures the caller holds the named permission at the given level.
// Anonymous requests get 401; everything else that is not an explicit grant
// gets 403, including identity lookups that fail.
func (m Middleware) Require(permission string, level Level) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, ok := identity.UserFromContext(r.Context())
			if !ok {
				httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "missing caller identity")
				return
			}
			allowed, err := m.Access.CheckPermission(r.Context(), userID, permission, level)
			if err != nil {
				if m.Logger != nil {
					m.Logger.Warn("authorization check failed",
						slog.String("usuario", userID),
						slog.String("permiso", permission),
						slog.Any("error", err))
				}
				m.Metrics.Decision("error")
				httpx.Problem(w, http.StatusForbidden, "Forbidden", "")
				return
			}
			if !allowed {
				m.Metrics.Decision("denied")
				httpx.Problem(w, http.StatusForbidden, "Forbidden", "")
				return
			}
			m.Metrics.Decision("granted")
			next.ServeHTTP(w, r)
		})
	}
}
