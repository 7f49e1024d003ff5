package middleware

import (
	"net/http"
	"strings"

	pkgAuth "github.com/dannyvalenz/fanlink-backend/pkg/auth"
	"github.com/dannyvalenz/fanlink-backend/pkg/config"
	"github.com/dannyvalenz/fanlink-backend/pkg/logger"
)

// OptionalAuth parses a bearer token when one is present and seeds the
// request context with the buyer's identity. Checkout is guest-first, so an
// absent or invalid token is not an error; the request simply proceeds
// anonymous and the guest-or-login stage stays mandatory.
func OptionalAuth(cfg config.JWTConfig, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := strings.TrimSpace(r.Header.Get("Authorization"))
			if raw == "" {
				next.ServeHTTP(w, r)
				return
			}

			token := raw
			if strings.HasPrefix(strings.ToLower(token), "bearer ") {
				token = strings.TrimSpace(token[7:])
			}
			if token == "" {
				next.ServeHTTP(w, r)
				return
			}

			claims, err := pkgAuth.ParseAccessToken(cfg, token)
			if err != nil {
				if logg != nil {
					logg.Warn(r.Context(), "ignoring invalid bearer token")
				}
				next.ServeHTTP(w, r)
				return
			}

			ctx := WithBuyer(r.Context(), claims.UserID.String(), claims.Email, claims.FirstName, claims.LastName)
			if logg != nil {
				ctx = logg.WithFields(ctx, map[string]any{"user_id": claims.UserID.String()})
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
