package identity

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/festeja/festeja/internal/platform/httpx"
)

// Middleware places the bearer identity on the request context. Requests
// without a token pass through anonymously; guarded routes reject them later.
func Middleware(resolver *TokenResolver, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			token, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || token == "" {
				next.ServeHTTP(w, r)
				return
			}
			subject, err := resolver.Subject(token)
			if err != nil {
				if logger != nil {
					logger.Warn("bearer token rejected", slog.Any("error", err))
				}
				httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "invalid bearer token")
				return
			}
			next.ServeHTTP(w, r.WithContext(ContextWithUser(r.Context(), subject)))
		})
	}
}
