package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/stacksapp/stacks-server/internal/domain"
	"github.com/stacksapp/stacks-server/internal/http/response"
)

// contextKey is a custom type for context keys to avoid collisions.
type contextKey string

const contextKeyCurrentUser contextKey = "current_user"

// authGate validates a bearer token when one is present and attaches the
// resolved user to the request context.
//
// A missing Authorization header is not an error: the request proceeds
// anonymously and each handler decides whether it needs a user. A header
// that is present but malformed or unverifiable fails the request with 401
// INVALID_TOKEN; it is never downgraded to anonymous.
func (s *Server) authGate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			next.ServeHTTP(w, r)
			return
		}

		scheme, token, found := strings.Cut(authHeader, " ")
		if !found || !strings.EqualFold(scheme, "Bearer") || token == "" {
			response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "invalid authorization header format", nil, s.logger)
			return
		}

		user, _, err := s.authService.VerifyAccessToken(r.Context(), token)
		if err != nil {
			response.HandleError(w, err, s.logger)
			return
		}

		ctx := context.WithValue(r.Context(), contextKeyCurrentUser, user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// currentUser returns the authenticated user from request context, or nil
// for anonymous requests.
func currentUser(ctx context.Context) *domain.User {
	if user, ok := ctx.Value(contextKeyCurrentUser).(*domain.User); ok {
		return user
	}
	return nil
}
