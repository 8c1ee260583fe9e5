// Package middleware provides HTTP middleware for the gateway and the
// development agent backend.
package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/inmobiliaria/gestion-chat/internal/auth"
)

// ContextKey is a type for context keys.
type ContextKey string

const (
	// UserIDKey is the context key for the user's email (JWT subject).
	UserIDKey ContextKey = "user_id"
	// UserUIDKey is the context key for the numeric user id.
	UserUIDKey ContextKey = "user_uid"
	// RoleKey is the context key for the user's role.
	RoleKey ContextKey = "role"
	// NameKey is the context key for the user's display name.
	NameKey ContextKey = "name"
)

// Auth creates JWT authentication middleware. The raw token is kept on the
// context so it can be forwarded to the agent service.
func Auth(jwtSecret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" && isWebSocketUpgrade(r) {
				// Browsers cannot set headers on WebSocket handshakes.
				if token := r.URL.Query().Get("access_token"); token != "" {
					authHeader = "Bearer " + token
				}
			}
			if authHeader == "" {
				writeJSONError(w, http.StatusUnauthorized, "missing authorization header")
				return
			}

			tokenString, ok := auth.BearerToken(authHeader)
			if !ok {
				writeJSONError(w, http.StatusUnauthorized, "invalid authorization header format")
				return
			}

			claims, err := auth.ParseToken(jwtSecret, tokenString)
			if err != nil {
				writeJSONError(w, http.StatusUnauthorized, "invalid token")
				return
			}

			ctx := context.WithValue(r.Context(), UserIDKey, claims.Subject)
			ctx = context.WithValue(ctx, UserUIDKey, claims.UID)
			ctx = context.WithValue(ctx, RoleKey, claims.Role)
			ctx = context.WithValue(ctx, NameKey, claims.Name)
			ctx = auth.WithToken(ctx, tokenString)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetUserID gets the user's email from context.
func GetUserID(ctx context.Context) string {
	if v, ok := ctx.Value(UserIDKey).(string); ok {
		return v
	}
	return ""
}

// GetUserUID gets the numeric user id from context.
func GetUserUID(ctx context.Context) int64 {
	if v, ok := ctx.Value(UserUIDKey).(int64); ok {
		return v
	}
	return 0
}

// GetRole gets the user's role from context.
func GetRole(ctx context.Context) string {
	if v, ok := ctx.Value(RoleKey).(string); ok {
		return v
	}
	return ""
}

// GetName gets the user's display name from context.
func GetName(ctx context.Context) string {
	if v, ok := ctx.Value(NameKey).(string); ok {
		return v
	}
	return ""
}

// RequireRole creates middleware that only admits the given roles.
func RequireRole(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			role := GetRole(r.Context())
			for _, allowed := range roles {
				if role == allowed {
					next.ServeHTTP(w, r)
					return
				}
			}
			writeJSONError(w, http.StatusForbidden, "insufficient permissions")
		})
	}
}

func isWebSocketUpgrade(r *http.Request) bool {
	return strings.EqualFold(r.Header.Get("Upgrade"), "websocket")
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(`{"error":"` + msg + `"}`))
}
