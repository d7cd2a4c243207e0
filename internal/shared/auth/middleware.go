// Package auth turns the opaque authenticated-identity token into an
// Identity on the request context. Role and permission resolution happens
// later, in the principal resolver; this package only proves who is calling.
package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/safetrack/platform/internal/shared/config"
	"github.com/safetrack/platform/internal/shared/types"
)

type contextKey string

const (
	identityContextKey contextKey = "identity"
)

// Identity is the authenticated caller before principal resolution. It
// carries no role or permission information.
type Identity struct {
	UID   types.ID `json:"sub"`
	Email string   `json:"email"`
}

// Claims extends JWT registered claims with the identity-provider fields
// the platform consumes.
type Claims struct {
	jwt.RegisteredClaims
	Email string `json:"email"`
}

// Middleware creates JWT authentication middleware
func Middleware(cfg config.AuthConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				writeError(w, http.StatusUnauthorized, "missing authorization header")
				return
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
				writeError(w, http.StatusUnauthorized, "invalid authorization header format")
				return
			}

			tokenString := parts[1]

			token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
				// Symmetric key for development; the identity provider's
				// public key in production.
				return []byte(cfg.JWTSecret), nil
			})

			if err != nil {
				writeError(w, http.StatusUnauthorized, "invalid token")
				return
			}

			claims, ok := token.Claims.(*Claims)
			if !ok || !token.Valid {
				writeError(w, http.StatusUnauthorized, "invalid token claims")
				return
			}

			identity := &Identity{
				UID:   types.ID(claims.Subject),
				Email: claims.Email,
			}

			ctx := context.WithValue(r.Context(), identityContextKey, identity)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetIdentity extracts the authenticated identity from request context.
// Returns nil when the request is unauthenticated.
func GetIdentity(ctx context.Context) *Identity {
	identity, ok := ctx.Value(identityContextKey).(*Identity)
	if !ok {
		return nil
	}
	return identity
}

// WithIdentity returns a context carrying the given identity. Used by
// tests and by internal actors (the system actor on creation).
func WithIdentity(ctx context.Context, identity *Identity) context.Context {
	return context.WithValue(ctx, identityContextKey, identity)
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
