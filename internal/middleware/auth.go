package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

const (
	// SubjectKey is the context key for the authenticated operator id
	SubjectKey = contextKey("auth-subject")
	// RolesKey is the context key for the authenticated operator roles
	RolesKey = contextKey("auth-roles")
)

// Auth validates bearer tokens signed with the shared HMAC secret. When
// disabled it passes requests through untouched so the engine can run in
// standalone and test setups.
type Auth struct {
	secret  []byte
	enabled bool
}

// NewAuth creates auth middleware with the given HMAC secret.
func NewAuth(secret string, enabled bool) *Auth {
	return &Auth{secret: []byte(secret), enabled: enabled}
}

// Wrap enforces bearer authentication on next when enabled.
func (a *Auth) Wrap(next http.Handler) http.Handler {
	if !a.enabled {
		return next
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			http.Error(w, "Missing authorization header", http.StatusUnauthorized)
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			http.Error(w, "Invalid authorization header", http.StatusUnauthorized)
			return
		}

		claims := jwt.MapClaims{}
		token, err := jwt.ParseWithClaims(parts[1], claims, func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
			}
			return a.secret, nil
		})
		if err != nil || !token.Valid {
			http.Error(w, "Invalid or expired token", http.StatusUnauthorized)
			return
		}

		ctx := r.Context()
		if sub, err := claims.GetSubject(); err == nil && sub != "" {
			ctx = context.WithValue(ctx, SubjectKey, sub)
		}
		if raw, ok := claims["roles"].([]interface{}); ok {
			roles := make([]string, 0, len(raw))
			for _, r := range raw {
				if s, ok := r.(string); ok {
					roles = append(roles, s)
				}
			}
			ctx = context.WithValue(ctx, RolesKey, roles)
		}

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetSubject extracts the authenticated operator id from the context.
func GetSubject(ctx context.Context) string {
	if sub, ok := ctx.Value(SubjectKey).(string); ok {
		return sub
	}
	return ""
}
