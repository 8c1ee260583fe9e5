package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/inmobiliaria/gestion-chat/internal/auth"
	"github.com/inmobiliaria/gestion-chat/pkg/logger"
)

func TestAuthStoresClaimsAndToken(t *testing.T) {
	t.Parallel()

	token, err := auth.IssueToken("secret", 3, "ana@inmo.test", "Ana", "ADMIN", time.Hour, time.Now())
	if err != nil {
		t.Fatal(err)
	}

	var gotUser, gotToken, gotRole string
	var gotUID int64
	h := Auth("secret")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUser = GetUserID(r.Context())
		gotUID = GetUserUID(r.Context())
		gotRole = GetRole(r.Context())
		gotToken = auth.TokenFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if gotUser != "ana@inmo.test" || gotUID != 3 || gotRole != "ADMIN" || gotToken != token {
		t.Fatalf("context = %q %d %q %q", gotUser, gotUID, gotRole, gotToken)
	}
}

func TestAuthRejects(t *testing.T) {
	t.Parallel()

	h := Auth("secret")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler must not run")
	}))

	for _, header := range []string{"", "Basic Zm9v", "Bearer not.a.jwt"} {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("header %q: status = %d, want 401", header, rec.Code)
		}
		if !strings.Contains(rec.Body.String(), `"error"`) {
			t.Errorf("header %q: body = %s", header, rec.Body.String())
		}
	}
}

func TestLoggingSetsCorrelationID(t *testing.T) {
	t.Parallel()

	var seen string
	h := Logging(logger.NewNop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetCorrelationID(r.Context())
		w.WriteHeader(http.StatusTeapot)
	}))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Correlation-ID", "corr-1")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if seen != "corr-1" || rec.Header().Get("X-Correlation-ID") != "corr-1" {
		t.Fatalf("correlation id = %q / %q", seen, rec.Header().Get("X-Correlation-ID"))
	}
	if rec.Code != http.StatusTeapot {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestValidateMessage(t *testing.T) {
	t.Parallel()

	if err := ValidateMessage("   "); err != nil {
		t.Fatalf("blank input should pass validation: %v", err)
	}
	if err := ValidateMessage(strings.Repeat("a", MaxMessageLength+1)); err == nil {
		t.Fatal("oversized message accepted")
	}
	if err := ValidateMessage(string([]byte{0xff, 0xfe})); err == nil {
		t.Fatal("invalid UTF-8 accepted")
	}
}

func TestValidateEmail(t *testing.T) {
	t.Parallel()

	for _, ok := range []string{"admin@test.com", " a@b "} {
		if err := ValidateEmail(ok); err != nil {
			t.Errorf("ValidateEmail(%q) = %v", ok, err)
		}
	}
	for _, bad := range []string{"", "admin", "@test.com", "admin@"} {
		if err := ValidateEmail(bad); err == nil {
			t.Errorf("ValidateEmail(%q) accepted", bad)
		}
	}
}
