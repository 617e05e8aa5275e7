// Package auth carries the authenticated viewer through request contexts.
//
// Both middleware and handler import it, so it depends on nothing but the
// domain package.
package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/DukeRupert/safetyline/internal/domain"
)

type contextKey string

const userContextKey contextKey = "user"

// GetUser returns the viewer stored by the bearer middleware, or nil.
func GetUser(ctx context.Context) *domain.User {
	user, ok := ctx.Value(userContextKey).(*domain.User)
	if !ok {
		return nil
	}
	return user
}

// GetUserFromRequest is GetUser on the request context.
func GetUserFromRequest(r *http.Request) *domain.User {
	return GetUser(r.Context())
}

// SetUser stores the viewer in ctx.
func SetUser(ctx context.Context, user *domain.User) context.Context {
	return context.WithValue(ctx, userContextKey, user)
}

// BearerToken returns the token of an "Authorization: Bearer" header, or ""
// when the header is missing or uses another scheme.
func BearerToken(r *http.Request) string {
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
