// ABOUTME: HTTP middleware for JWT authentication on the live transport
// ABOUTME: Accepts bearer tokens or a token query parameter for websocket upgrades

package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/mentorconnect/chatd/internal/store"
)

// UserLookup defines what the middleware needs to resolve token subjects
type UserLookup interface {
	GetUser(ctx context.Context, id string) (*store.User, error)
}

// extractToken pulls a token from the Authorization header or, for websocket
// upgrades where browsers cannot set headers, from the "token" query
// parameter. Returns the token and an error message (empty if successful).
func extractToken(r *http.Request) (string, string) {
	authHeader := r.Header.Get("Authorization")
	if authHeader != "" {
		if !strings.HasPrefix(authHeader, "Bearer ") {
			return "", "invalid authorization header format"
		}
		token := strings.TrimPrefix(authHeader, "Bearer ")
		if token == "" {
			return "", "empty token"
		}
		return token, ""
	}

	if token := r.URL.Query().Get("token"); token != "" {
		return token, ""
	}

	return "", "missing credentials"
}

// Middleware creates an HTTP middleware that validates tokens, resolves the
// subject against the user store, and attaches an Identity to the request
// context for the transport handlers.
func Middleware(users UserLookup, verifier TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, errMsg := extractToken(r)
			if errMsg != "" {
				http.Error(w, `{"error":"`+errMsg+`"}`, http.StatusUnauthorized)
				return
			}

			userID, err := verifier.Verify(token)
			if err != nil {
				http.Error(w, `{"error":"invalid token"}`, http.StatusUnauthorized)
				return
			}

			user, err := users.GetUser(r.Context(), userID)
			if err != nil {
				if errors.Is(err, store.ErrNotFound) {
					http.Error(w, `{"error":"unknown user"}`, http.StatusUnauthorized)
					return
				}
				http.Error(w, `{"error":"lookup failed"}`, http.StatusInternalServerError)
				return
			}

			identity := &Identity{UserID: user.ID, DisplayName: user.DisplayName}
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), identity)))
		})
	}
}
