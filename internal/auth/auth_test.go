package auth

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/inmobiliaria/gestion-chat/internal/model"
)

func signed(t *testing.T, exp time.Time) string {
	t.Helper()
	claims := jwt.MapClaims{"sub": "admin@test.com", "exp": exp.Unix()}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("secret"))
	if err != nil {
		t.Fatal(err)
	}
	return token
}

func TestExpired(t *testing.T) {
	t.Parallel()

	now := time.Now()
	if Expired(signed(t, now.Add(time.Hour)), now) {
		t.Fatal("future exp reported expired")
	}
	if !Expired(signed(t, now.Add(-time.Minute)), now) {
		t.Fatal("past exp reported valid")
	}
	if !Expired("not-a-jwt", now) {
		t.Fatal("garbage token should count as expired")
	}
}

func TestBearerToken(t *testing.T) {
	t.Parallel()

	if tok, ok := BearerToken("Bearer abc.def"); !ok || tok != "abc.def" {
		t.Fatalf("BearerToken = %q, %v", tok, ok)
	}
	if tok, ok := BearerToken("bearer  xyz "); !ok || tok != "xyz" {
		t.Fatalf("BearerToken lower-case = %q, %v", tok, ok)
	}
	for _, h := range []string{"", "Basic abc", "Bearer", "Bearer   "} {
		if _, ok := BearerToken(h); ok {
			t.Errorf("BearerToken(%q) accepted", h)
		}
	}
}

func TestContextProvider(t *testing.T) {
	t.Parallel()

	var p ContextProvider
	if _, err := p.Token(context.Background()); !errors.Is(err, ErrNoCredential) {
		t.Fatalf("err = %v, want ErrNoCredential", err)
	}
	tok, err := p.Token(WithToken(context.Background(), "abc"))
	if err != nil || tok != "abc" {
		t.Fatalf("Token = %q, %v", tok, err)
	}
}

func TestStoreRoundTripAndInvalidate(t *testing.T) {
	t.Parallel()

	s, err := OpenStore(filepath.Join(t.TempDir(), "nested", "credentials.db"))
	if err != nil {
		t.Fatalf("OpenStore: %v", err)
	}
	defer s.Close()

	ctx := context.Background()
	if _, err := s.Token(ctx); !errors.Is(err, ErrNoCredential) {
		t.Fatalf("empty store err = %v, want ErrNoCredential", err)
	}

	token := signed(t, time.Now().Add(time.Hour))
	err = s.Save(&model.LoginResponse{
		Token:     token,
		TokenType: "Bearer",
		User:      model.User{ID: 1, Email: "admin@test.com", FullName: "Admin", Role: "ADMIN"},
	})
	if err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := s.Token(ctx)
	if err != nil || got != token {
		t.Fatalf("Token = %q, %v", got, err)
	}
	u, err := s.User()
	if err != nil || u == nil || u.Email != "admin@test.com" {
		t.Fatalf("User = %+v, %v", u, err)
	}

	if err := s.Invalidate(ctx); err != nil {
		t.Fatalf("Invalidate: %v", err)
	}
	if _, err := s.Token(ctx); !errors.Is(err, ErrNoCredential) {
		t.Fatalf("after invalidate err = %v", err)
	}
	if u, _ := s.User(); u != nil {
		t.Fatalf("user survived invalidate: %+v", u)
	}
}

func TestStoreTreatsExpiredTokenAsMissing(t *testing.T) {
	t.Parallel()

	s, err := OpenStore(filepath.Join(t.TempDir(), "credentials.db"))
	if err != nil {
		t.Fatalf("OpenStore: %v", err)
	}
	defer s.Close()

	if err := s.Save(&model.LoginResponse{Token: signed(t, time.Now().Add(-time.Hour))}); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Token(context.Background()); !errors.Is(err, ErrNoCredential) {
		t.Fatalf("err = %v, want ErrNoCredential", err)
	}
}

func TestIssueAndParseToken(t *testing.T) {
	t.Parallel()

	now := time.Now()
	token, err := IssueToken("secret", 7, "ana@inmo.test", "Ana", "AGENT", time.Hour, now)
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}

	claims, err := ParseToken("secret", token)
	if err != nil {
		t.Fatalf("ParseToken: %v", err)
	}
	if claims.Email() != "ana@inmo.test" || claims.UID != 7 || claims.Name != "Ana" || claims.Role != "AGENT" {
		t.Fatalf("claims = %+v", claims)
	}

	if _, err := ParseToken("other-secret", token); err == nil {
		t.Fatal("token verified with the wrong secret")
	}

	expired, _ := IssueToken("secret", 7, "ana@inmo.test", "Ana", "AGENT", time.Hour, now.Add(-2*time.Hour))
	if _, err := ParseToken("secret", expired); err == nil {
		t.Fatal("expired token accepted")
	}
}
