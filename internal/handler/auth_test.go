package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/inmobiliaria/gestion-chat/internal/agentapi"
	"github.com/inmobiliaria/gestion-chat/internal/model"
	"github.com/inmobiliaria/gestion-chat/pkg/logger"
)

type fakeAuthBackend struct {
	loginErr  error
	logoutErr error
}

func (f *fakeAuthBackend) Login(_ context.Context, email, password string) (*model.LoginResponse, error) {
	if f.loginErr != nil {
		return nil, f.loginErr
	}
	return &model.LoginResponse{Token: "tok", TokenType: "Bearer", User: model.User{ID: 1, Email: email}}, nil
}

func (f *fakeAuthBackend) Me(context.Context) (*model.User, error) {
	return &model.User{ID: 1, Email: testUser, Role: "ADMIN"}, nil
}

func (f *fakeAuthBackend) Logout(context.Context) error {
	return f.logoutErr
}

func authRouter(b AuthBackend) http.Handler {
	h := NewAuthHandler(b, logger.NewNop())
	r := chi.NewRouter()
	r.Post("/auth/login", h.Login)
	r.Get("/auth/me", h.Me)
	r.Post("/auth/logout", h.Logout)
	return r
}

func TestAuthLogin(t *testing.T) {
	t.Parallel()
	r := authRouter(&fakeAuthBackend{})

	rec := do(t, r, http.MethodPost, "/auth/login", `{"email":"admin@test.com","password":"admin123"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body %s", rec.Code, rec.Body)
	}
	var resp model.LoginResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil || resp.Token != "tok" {
		t.Fatalf("resp = %+v, %v", resp, err)
	}

	if rec := do(t, r, http.MethodPost, "/auth/login", `{"email":"nope","password":"x"}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("bad email status = %d", rec.Code)
	}
}

func TestAuthLoginBackendErrors(t *testing.T) {
	t.Parallel()

	rejected := authRouter(&fakeAuthBackend{loginErr: &agentapi.APIError{StatusCode: http.StatusUnauthorized, Message: "Invalid credentials"}})
	rec := do(t, rejected, http.MethodPost, "/auth/login", `{"email":"admin@test.com","password":"bad"}`)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}

	down := authRouter(&fakeAuthBackend{loginErr: errors.New("connection refused")})
	rec = do(t, down, http.MethodPost, "/auth/login", `{"email":"admin@test.com","password":"x"}`)
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", rec.Code)
	}
}

func TestAuthMeAndLogout(t *testing.T) {
	t.Parallel()
	r := authRouter(&fakeAuthBackend{logoutErr: errors.New("timeout")})

	rec := do(t, r, http.MethodGet, "/auth/me", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("me status = %d", rec.Code)
	}
	if rec := do(t, r, http.MethodPost, "/auth/logout", ""); rec.Code != http.StatusNoContent {
		t.Fatalf("logout status = %d", rec.Code)
	}
}
