// Package auth supplies bearer credentials to the agent API client.
//
// The gateway forwards the browser's token through the request context,
// while the terminal client persists its own token in a bbolt file.
package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrNoCredential is returned when no usable token is available.
var ErrNoCredential = errors.New("no credential available")

// CredentialProvider supplies and revokes the bearer token sent to the
// agent backend.
type CredentialProvider interface {
	// Token returns the current token or ErrNoCredential.
	Token(ctx context.Context) (string, error)
	// Invalidate forgets the current token after the backend rejected it.
	Invalidate(ctx context.Context) error
}

type tokenKey struct{}

// WithToken returns a context carrying token.
func WithToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, tokenKey{}, token)
}

// TokenFromContext returns the token stored by WithToken.
func TokenFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(tokenKey{}).(string); ok {
		return v
	}
	return ""
}

// ContextProvider reads the token placed on the request context by the
// gateway's auth middleware. Invalidate is a no-op: the browser owns the
// token and is told to re-authenticate through the 401 response.
type ContextProvider struct{}

// Token implements CredentialProvider.
func (ContextProvider) Token(ctx context.Context) (string, error) {
	if token := TokenFromContext(ctx); token != "" {
		return token, nil
	}
	return "", ErrNoCredential
}

// Invalidate implements CredentialProvider.
func (ContextProvider) Invalidate(context.Context) error {
	return nil
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// Expired reports whether token carries an exp claim at or before now.
// The signature is not checked; the backend remains the authority.
// Tokens that cannot be parsed count as expired.
func Expired(token string, now time.Time) bool {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return true
	}
	exp, err := claims.GetExpirationTime()
	if err != nil {
		return true
	}
	if exp == nil {
		return false
	}
	return !now.Before(exp.Time)
}
