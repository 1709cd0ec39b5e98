package auth

import (
	"log/slog"
	"net/http"

	"github.com/agriledger/agriledger/internal/platform/httpx"
	"github.com/agriledger/agriledger/internal/shared"
)

const headerAPIKey = "X-API-Key"

// Middleware authenticates every request with the X-API-Key header and puts
// the resolved principal in the request context.
func Middleware(authn *Authenticator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			presented := r.Header.Get(headerAPIKey)
			if presented == "" {
				httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "missing API key")
				return
			}
			principal, err := authn.Verify(r.Context(), presented)
			if err != nil {
				logger.WarnContext(r.Context(), "api key rejected", slog.String("path", r.URL.Path))
				httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "invalid API key")
				return
			}
			next.ServeHTTP(w, r.WithContext(shared.ContextWithPrincipal(r.Context(), principal)))
		})
	}
}

// RequireRole gates a route subtree to the given roles.
func RequireRole(roles ...shared.Role) func(http.Handler) http.Handler {
	allowed := make(map[shared.Role]bool, len(roles))
	for _, role := range roles {
		allowed[role] = true
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p := shared.PrincipalFromContext(r.Context())
			if p.TenantID == 0 || !allowed[p.Role] {
				httpx.Problem(w, http.StatusForbidden, "Forbidden", "role not permitted")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
