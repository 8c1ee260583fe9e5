// Package agentsvc implements the development agent backend: login for the
// back-office user and the three agent chat endpoints, answered by an LLM
// with per-session history.
package agentsvc

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/inmobiliaria/gestion-chat/internal/auth"
	"github.com/inmobiliaria/gestion-chat/internal/chat"
	"github.com/inmobiliaria/gestion-chat/internal/llm"
	"github.com/inmobiliaria/gestion-chat/internal/middleware"
	"github.com/inmobiliaria/gestion-chat/internal/model"
	"github.com/inmobiliaria/gestion-chat/pkg/logger"
	"github.com/inmobiliaria/gestion-chat/pkg/metrics"
)

// NoResponseMessage answers a turn for which the model produced no text.
const NoResponseMessage = "I processed your request but have no specific response."

const (
	maxRequestBody = 64 * 1024
	devUserID      = 1
	devUserRole    = "ADMIN"
	sessionPrefix  = "user-"
)

// History stores agent session turns.
type History interface {
	AppendMessages(ctx context.Context, owner string, msgs ...model.StoredMessage) error
	History(ctx context.Context, sessionID, agent string, limit int) ([]model.StoredMessage, error)
	Owner(ctx context.Context, sessionID string) (string, error)
}

// DevUser is the single account accepted by the development login.
type DevUser struct {
	Email    string
	Password string
	FullName string
}

// Config holds the server settings.
type Config struct {
	JWTSecret     string
	JWTExpiration time.Duration
	HistoryLimit  int
	User          DevUser
	LoginLimit    int
	LoginWindow   time.Duration
}

// Server serves the agent backend API.
type Server struct {
	cfg     Config
	history History
	llm     llm.Client
	log     *logger.Logger
	now     func() time.Time
	newID   func() string
}

// NewServer creates a server.
func NewServer(cfg Config, history History, client llm.Client, log *logger.Logger) *Server {
	if cfg.JWTExpiration <= 0 {
		cfg.JWTExpiration = 24 * time.Hour
	}
	if cfg.LoginLimit <= 0 {
		cfg.LoginLimit = 10
	}
	if cfg.LoginWindow <= 0 {
		cfg.LoginWindow = time.Minute
	}
	return &Server{
		cfg:     cfg,
		history: history,
		llm:     client,
		log:     log.Named("agentsvc"),
		now:     time.Now,
		newID:   func() string { return sessionPrefix + uuid.NewString() },
	}
}

// Routes mounts the API under r. Paths are relative to the API base
// (/api in production).
func (s *Server) Routes(r chi.Router) {
	r.With(middleware.IPRateLimit(s.cfg.LoginLimit, s.cfg.LoginWindow)).Post("/auth/login", s.Login)

	r.Group(func(r chi.Router) {
		r.Use(middleware.Auth(s.cfg.JWTSecret))
		r.Get("/auth/me", s.Me)
		r.Post("/auth/logout", s.Logout)
		for _, kind := range chat.AgentKinds() {
			r.Post(kind.Endpoint(), s.Chat(kind))
		}
	})
}

// Handler returns the full router with the API mounted at /api.
func (s *Server) Handler(extra func(chi.Router)) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.Logging(s.log))
	r.Use(chimw.Recoverer)
	r.Use(middleware.SecurityHeaders)
	if extra != nil {
		extra(r)
	}
	r.Route("/api", s.Routes)
	return r
}

// Login checks the development credentials and issues a token.
func (s *Server) Login(w http.ResponseWriter, r *http.Request) {
	var req model.LoginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := middleware.ValidateEmail(req.Email); err != nil || req.Password == "" {
		writeMessage(w, http.StatusBadRequest, "email and password are required")
		return
	}

	emailOK := strings.EqualFold(req.Email, s.cfg.User.Email)
	passOK := subtle.ConstantTimeCompare([]byte(req.Password), []byte(s.cfg.User.Password)) == 1
	if !emailOK || !passOK {
		s.log.Warn("login rejected", zap.String("email", req.Email))
		writeMessage(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}

	user := s.devUser()
	token, err := auth.IssueToken(s.cfg.JWTSecret, user.ID, user.Email, user.FullName, user.Role, s.cfg.JWTExpiration, s.now())
	if err != nil {
		s.log.Error("issue token", zap.Error(err))
		writeMessage(w, http.StatusInternalServerError, "could not issue token")
		return
	}

	s.log.Info("login", zap.String("email", user.Email))
	writeJSON(w, http.StatusOK, model.LoginResponse{
		Token:     token,
		TokenType: "Bearer",
		User:      user,
	})
}

// Me returns the authenticated user.
func (s *Server) Me(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	writeJSON(w, http.StatusOK, model.User{
		ID:       middleware.GetUserUID(ctx),
		Email:    middleware.GetUserID(ctx),
		FullName: middleware.GetName(ctx),
		Role:     middleware.GetRole(ctx),
	})
}

// Logout acknowledges a logout. Tokens are stateless, so nothing is revoked.
func (s *Server) Logout(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) devUser() model.User {
	return model.User{
		ID:       devUserID,
		Email:    s.cfg.User.Email,
		FullName: s.cfg.User.FullName,
		Role:     devUserRole,
	}
}

// Chat returns the handler for one agent endpoint.
func (s *Server) Chat(kind chat.AgentKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req chat.Request
		if err := decodeJSON(r, &req); err != nil {
			s.fail(w, kind, http.StatusBadRequest, "invalid request body")
			return
		}
		if strings.TrimSpace(req.Message) == "" {
			s.fail(w, kind, http.StatusBadRequest, "Message is required")
			return
		}
		if err := middleware.ValidateMessage(req.Message); err != nil {
			s.fail(w, kind, http.StatusBadRequest, err.Error())
			return
		}

		ctx := r.Context()
		owner := middleware.GetUserID(ctx)
		log := s.log.With(zap.String("agent", string(kind)), zap.String("user_id", owner))

		sessionID, err := s.resolveSession(ctx, req.SessionID, owner)
		if err != nil {
			log.Error("resolve session", zap.Error(err))
			s.fail(w, kind, http.StatusInternalServerError, "Unexpected error: "+err.Error())
			return
		}
		log = log.With(zap.String("session_id", sessionID))

		reply, err := s.answer(ctx, kind, sessionID, owner, req.Message)
		if err != nil {
			log.Error("agent turn failed", zap.Error(err))
			s.fail(w, kind, http.StatusInternalServerError, "Unexpected error: "+err.Error())
			return
		}

		log.Info("agent response generated")
		metrics.AgentRequestsTotal.WithLabelValues(string(kind), "success").Inc()
		writeJSON(w, http.StatusOK, chat.Response{
			Response:  reply,
			SessionID: &sessionID,
			Success:   true,
		})
	}
}

// resolveSession keeps a supplied session id unless it belongs to another
// user, in which case a fresh one is minted.
func (s *Server) resolveSession(ctx context.Context, supplied *string, owner string) (string, error) {
	if supplied == nil || strings.TrimSpace(*supplied) == "" {
		return s.newID(), nil
	}
	existing, err := s.history.Owner(ctx, *supplied)
	if err != nil {
		return "", err
	}
	if existing != "" && existing != owner {
		return s.newID(), nil
	}
	return *supplied, nil
}

func (s *Server) answer(ctx context.Context, kind chat.AgentKind, sessionID, owner, message string) (string, error) {
	past, err := s.history.History(ctx, sessionID, string(kind), s.cfg.HistoryLimit)
	if err != nil {
		return "", err
	}

	msgs := make([]llm.ChatMessage, 0, len(past)+1)
	for _, m := range past {
		msgs = append(msgs, llm.ChatMessage{Role: string(m.Role), Content: m.Content})
	}
	msgs = append(msgs, llm.ChatMessage{Role: string(model.RoleUser), Content: message})

	resp, err := s.llm.Complete(ctx, &llm.CompletionRequest{
		System:   SystemPrompt(kind),
		Messages: msgs,
	})
	if err != nil {
		return "", err
	}

	reply := resp.Content
	if strings.TrimSpace(reply) == "" {
		reply = NoResponseMessage
	}

	now := s.now().UnixMilli()
	err = s.history.AppendMessages(ctx, owner,
		model.StoredMessage{SessionID: sessionID, Agent: string(kind), Role: model.RoleUser, Content: message, CreatedAt: now},
		model.StoredMessage{SessionID: sessionID, Agent: string(kind), Role: model.RoleAssistant, Content: reply, CreatedAt: now},
	)
	if err != nil {
		return "", err
	}
	return reply, nil
}

func (s *Server) fail(w http.ResponseWriter, kind chat.AgentKind, status int, msg string) {
	metrics.AgentRequestsTotal.WithLabelValues(string(kind), "error").Inc()
	writeJSON(w, status, chat.Response{Success: false, Error: &msg})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeMessage(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, model.APIErrorBody{Message: msg})
}

func decodeJSON(r *http.Request, v interface{}) error {
	err := json.NewDecoder(io.LimitReader(r.Body, maxRequestBody)).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}
