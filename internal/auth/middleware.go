package auth

import (
	"context"
	"net/http"

	"ticket-wallet/internal/logger"
	"ticket-wallet/internal/models"
)

type contextKey string

const userKey contextKey = "user"

// Middleware rejects requests without a valid bearer token and puts the
// token's user into the request context.
func Middleware(secret []byte, log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rawToken, err := ExtractTokenFromRequest(r)
			if err != nil {
				http.Error(w, err.Error(), http.StatusUnauthorized)
				return
			}

			user, err := ParseUser(rawToken, secret)
			if err != nil {
				log.Warn("AUTH", err.Error())
				http.Error(w, "invalid token", http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user)))
		})
	}
}

func WithUser(ctx context.Context, user models.User) context.Context {
	return context.WithValue(ctx, userKey, user)
}

// UserFromContext returns the signed-in user of a request.
func UserFromContext(ctx context.Context) (models.User, bool) {
	user, ok := ctx.Value(userKey).(models.User)
	return user, ok && user.ID != ""
}
