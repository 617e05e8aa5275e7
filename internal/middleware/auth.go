// Package middleware contains HTTP middleware for the SafetyLine API.
//
// Middleware functions follow the standard Go pattern of wrapping http.Handler.
// They are designed to be composed using a middleware stack approach.
package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"slices"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/DukeRupert/safetyline/internal/auth"
	"github.com/DukeRupert/safetyline/internal/domain"
	"github.com/DukeRupert/safetyline/internal/handler"
	"github.com/DukeRupert/safetyline/internal/store"
)

// =============================================================================
// Auth Middleware Configuration
// =============================================================================

// UserLookup resolves the user named by a token. *store.Users implements it.
type UserLookup interface {
	ByEmail(ctx context.Context, email string) (*domain.User, error)
}

// Claims are the JWT claims issued by the identity provider. Only the email
// claim is used to find the user.
type Claims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// AuthMiddleware verifies bearer JWTs and loads the user they name.
//
// Create one instance and use its methods as middleware.
type AuthMiddleware struct {
	users       UserLookup
	secret      []byte
	issuer      string
	adminEmails []string
	logger      *slog.Logger
}

// AuthOption configures an AuthMiddleware.
type AuthOption func(*AuthMiddleware)

// WithIssuer rejects tokens whose iss claim differs from issuer.
func WithIssuer(issuer string) AuthOption {
	return func(m *AuthMiddleware) { m.issuer = issuer }
}

// WithAdminEmails grants the admin role to the listed addresses regardless
// of the role stored on the user.
func WithAdminEmails(emails []string) AuthOption {
	return func(m *AuthMiddleware) {
		for _, e := range emails {
			m.adminEmails = append(m.adminEmails, strings.ToLower(strings.TrimSpace(e)))
		}
	}
}

// NewAuthMiddleware creates a new AuthMiddleware instance.
//
// Parameters:
// - users: lookup for the user named by the email claim
// - secret: HMAC key the tokens are signed with
// - logger: Structured logger for auth events
func NewAuthMiddleware(users UserLookup, secret string, logger *slog.Logger, opts ...AuthOption) *AuthMiddleware {
	m := &AuthMiddleware{
		users:  users,
		secret: []byte(secret),
		logger: logger,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// =============================================================================
// Token Verification
// =============================================================================

var (
	errMissingEmail = errors.New("token has no email claim")
	errUnknownUser  = errors.New("token names an unknown user")
)

// Authenticate verifies token and returns the user it names.
func (m *AuthMiddleware) Authenticate(ctx context.Context, token string) (*domain.User, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if m.issuer != "" {
		opts = append(opts, jwt.WithIssuer(m.issuer))
	}

	var claims Claims
	if _, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return m.secret, nil
	}, opts...); err != nil {
		return nil, err
	}

	email := strings.ToLower(strings.TrimSpace(claims.Email))
	if email == "" {
		return nil, errMissingEmail
	}

	user, err := m.users.ByEmail(ctx, email)
	if err != nil {
		if store.IsNotFound(err) {
			return nil, errUnknownUser
		}
		return nil, err
	}
	if slices.Contains(m.adminEmails, strings.ToLower(user.Email)) {
		user.Role = domain.RoleAdmin
	}
	return user, nil
}

// =============================================================================
// WithUser Middleware
// =============================================================================

// WithUser is middleware that attempts to load the user from the bearer
// token.
//
// This middleware:
// 1. Reads the Authorization: Bearer header
// 2. If present, verifies the token and loads the user
// 3. Stores the user in the request context
// 4. Continues to the next handler regardless of authentication status
//
// The user can be retrieved in handlers using:
//
//	user := auth.GetUserFromRequest(r)
func (m *AuthMiddleware) WithUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := auth.BearerToken(r)
		if token == "" {
			next.ServeHTTP(w, r)
			return
		}

		user, err := m.Authenticate(r.Context(), token)
		if err != nil {
			m.logger.Info("bearer token rejected",
				"path", r.URL.Path,
				"remote_addr", r.RemoteAddr,
				"error", err,
			)
			next.ServeHTTP(w, r)
			return
		}

		next.ServeHTTP(w, r.WithContext(auth.SetUser(r.Context(), user)))
	})
}

// =============================================================================
// RequireUser Middleware
// =============================================================================

// RequireUser is middleware that requires an authenticated user.
//
// IMPORTANT: This middleware must be used AFTER WithUser in the middleware chain.
//
// Usage:
//
//	mux.Handle("GET /api/incident-reports", authMw.WithUser(authMw.RequireUser(listHandler)))
func (m *AuthMiddleware) RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if auth.GetUserFromRequest(r) == nil {
			handler.UnauthorizedResponse(w, r, m.logger)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Authenticated is WithUser followed by RequireUser.
func (m *AuthMiddleware) Authenticated(next http.Handler) http.Handler {
	return m.WithUser(m.RequireUser(next))
}

// =============================================================================
// Middleware Stack Helpers
// =============================================================================

// Stack composes multiple middleware functions into a single middleware.
//
// Middleware is applied in the order provided, meaning the first middleware
// in the slice is the outermost (runs first on request, last on response).
//
// Example:
//
//	stack := Stack(loggingMw, authMw.WithUser, authMw.RequireUser)
//	mux.Handle("GET /api/drafts/{id}", stack(showHandler))
func Stack(middlewares ...func(http.Handler) http.Handler) func(http.Handler) http.Handler {
	return func(final http.Handler) http.Handler {
		for i := len(middlewares) - 1; i >= 0; i-- {
			final = middlewares[i](final)
		}
		return final
	}
}

// =============================================================================
// Compile-time checks
// =============================================================================

var (
	_ func(http.Handler) http.Handler = (&AuthMiddleware{}).WithUser
	_ func(http.Handler) http.Handler = (&AuthMiddleware{}).RequireUser
	_ UserLookup                      = (*store.Users)(nil)
)
