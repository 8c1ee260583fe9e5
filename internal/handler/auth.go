package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/inmobiliaria/gestion-chat/internal/agentapi"
	"github.com/inmobiliaria/gestion-chat/internal/middleware"
	"github.com/inmobiliaria/gestion-chat/internal/model"
	"github.com/inmobiliaria/gestion-chat/pkg/logger"
)

// AuthBackend is the part of the agent service that owns accounts.
type AuthBackend interface {
	Login(ctx context.Context, email, password string) (*model.LoginResponse, error)
	Me(ctx context.Context) (*model.User, error)
	Logout(ctx context.Context) error
}

// AuthHandler proxies authentication to the agent service so the browser
// only talks to the gateway.
type AuthHandler struct {
	backend AuthBackend
	logger  *logger.Logger
}

// NewAuthHandler creates a new auth handler.
func NewAuthHandler(backend AuthBackend, log *logger.Logger) *AuthHandler {
	return &AuthHandler{backend: backend, logger: log}
}

// Login handles POST /api/v1/auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req model.LoginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.Email = strings.TrimSpace(req.Email)
	if err := middleware.ValidateEmail(req.Email); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Password == "" {
		writeError(w, http.StatusBadRequest, "password is required")
		return
	}

	resp, err := h.backend.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		h.writeBackendError(w, err, "login failed")
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// Me handles GET /api/v1/auth/me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	user, err := h.backend.Me(r.Context())
	if err != nil {
		h.writeBackendError(w, err, "could not load user")
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// Logout handles POST /api/v1/auth/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.backend.Logout(r.Context()); err != nil {
		h.logger.Warn("logout not acknowledged by agent service", zap.Error(err))
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *AuthHandler) writeBackendError(w http.ResponseWriter, err error, msg string) {
	var apiErr *agentapi.APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode < http.StatusInternalServerError {
		detail := apiErr.Message
		if detail == "" {
			detail = msg
		}
		writeError(w, apiErr.StatusCode, detail)
		return
	}
	h.logger.Error(msg, zap.Error(err))
	writeError(w, http.StatusBadGateway, msg)
}
