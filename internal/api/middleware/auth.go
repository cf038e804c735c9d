package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/forgebench/scheduler/internal/api/shared"
)

// AuthMiddleware provides JWT bearer-token authentication for routes.
// Tokens are signed with HMAC-SHA256 using a shared secret; the subject
// claim identifies the calling client.
type AuthMiddleware struct {
	signingKey []byte
}

// NewAuthMiddleware creates a new AuthMiddleware with the given signing secret.
func NewAuthMiddleware(jwtSecret string) *AuthMiddleware {
	return &AuthMiddleware{
		signingKey: []byte(jwtSecret),
	}
}

// Authenticate validates JWT tokens from the Authorization header and
// adds the client ID to the request context for authorized requests.
func (m *AuthMiddleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			shared.RespondWithError(w, r, http.StatusUnauthorized, "Authorization header required")
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			shared.RespondWithError(w, r, http.StatusUnauthorized, "Invalid authorization format")
			return
		}

		claims := &jwt.RegisteredClaims{}
		token, err := jwt.ParseWithClaims(
			parts[1],
			claims,
			func(token *jwt.Token) (interface{}, error) {
				if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, errors.New("unexpected signing method")
				}
				return m.signingKey, nil
			},
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Name}),
		)
		if err != nil || !token.Valid {
			switch {
			case errors.Is(err, jwt.ErrTokenExpired):
				shared.RespondWithError(w, r, http.StatusUnauthorized, "Token expired")
			default:
				slog.Debug("token validation failed", "error", err)
				shared.RespondWithError(w, r, http.StatusUnauthorized, "Invalid token")
			}
			return
		}

		ctx := context.WithValue(r.Context(), shared.ClientIDContextKey, claims.Subject)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetClientID extracts the authenticated client ID from the request context.
// Returns the client ID and a boolean indicating if it was found.
func GetClientID(r *http.Request) (string, bool) {
	clientID, ok := r.Context().Value(shared.ClientIDContextKey).(string)
	return clientID, ok
}
