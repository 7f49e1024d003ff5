package middleware

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/dannyvalenz/fanlink-backend/pkg/logger"
)

const sessionHeader = "X-Fanlink-Session"

// Session resolves the visitor session identifier that keys the cart and any
// in-progress checkout. A missing or malformed header gets a fresh id, which
// is echoed back so the client can persist it.
func Session(logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sessionID := strings.TrimSpace(r.Header.Get(sessionHeader))
			if _, err := uuid.Parse(sessionID); err != nil {
				sessionID = uuid.NewString()
			}

			w.Header().Set(sessionHeader, sessionID)

			ctx := WithSessionID(r.Context(), sessionID)
			if logg != nil {
				ctx = logg.WithSessionID(ctx, sessionID)
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
