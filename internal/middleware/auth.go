// Package middleware provides HTTP middlewares for authentication and logging.
package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/atinyakov/FinKeeper/internal/models"
	"github.com/atinyakov/FinKeeper/internal/service"
	"go.uber.org/zap"
)

type ctxKey string

const userKey ctxKey = "user"

// Authenticator resolves a bearer token.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*models.Profile, error)
}

// BearerAuth rejects requests without a valid "Authorization: Bearer" token
// with 401. On success the owner's profile is stored in the request context.
func BearerAuth(auth Authenticator, log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || token == "" {
				http.Error(w, "missing bearer token", http.StatusUnauthorized)
				return
			}
			profile, err := auth.Authenticate(r.Context(), token)
			if err != nil {
				if errors.Is(err, service.ErrUnauthorized) {
					http.Error(w, "invalid or expired token", http.StatusUnauthorized)
					return
				}
				log.Error("session lookup failed", zap.Error(err))
				http.Error(w, "internal error", http.StatusInternalServerError)
				return
			}
			ctx := context.WithValue(r.Context(), userKey, profile)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ProfileFromContext returns the authenticated profile, or nil.
func ProfileFromContext(ctx context.Context) *models.Profile {
	p, _ := ctx.Value(userKey).(*models.Profile)
	return p
}

// GetUserIDFromContext extracts the authenticated user ID from the request
// context. Returns an empty string if not found.
func GetUserIDFromContext(ctx context.Context) string {
	if p := ProfileFromContext(ctx); p != nil {
		return p.ID
	}
	return ""
}

// WithUser returns a copy of ctx carrying p, for handler tests.
func WithUser(ctx context.Context, p *models.Profile) context.Context {
	return context.WithValue(ctx, userKey, p)
}
