package httpapi

import (
	"context"
	"net/http"

	"go.uber.org/zap"
)

type contextKey string

const UserIDKey contextKey = "userId"

// ExtractUserMiddleware trusts the user header set by the reverse proxy.
// devUser, when non-empty, stands in for requests without one.
func ExtractUserMiddleware(devUser string, log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Traefik BasicAuth sets this header
			userID := r.Header.Get("X-Auth-User")

			if userID == "" {
				userID = r.Header.Get("X-Forwarded-User")
			}
			if userID == "" {
				userID = r.Header.Get("Remote-User")
			}

			if userID == "" && devUser != "" {
				userID = devUser
				log.Debug("no auth header, using dev user", zap.String("user", devUser))
			}

			if userID == "" {
				respondError(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), userID)))
		})
	}
}

func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, UserIDKey, userID)
}

func UserIDFrom(ctx context.Context) string {
	userID, _ := ctx.Value(UserIDKey).(string)
	return userID
}
