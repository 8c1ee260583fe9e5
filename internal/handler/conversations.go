package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/inmobiliaria/gestion-chat/internal/middleware"
	"github.com/inmobiliaria/gestion-chat/internal/model"
	"github.com/inmobiliaria/gestion-chat/internal/service"
	"github.com/inmobiliaria/gestion-chat/pkg/logger"
)

// ChatHandler handles chat view endpoints.
type ChatHandler struct {
	service *service.ChatService
	logger  *logger.Logger
}

// NewChatHandler creates a new chat handler.
func NewChatHandler(svc *service.ChatService, log *logger.Logger) *ChatHandler {
	return &ChatHandler{
		service: svc,
		logger:  log,
	}
}

// ListAgents handles GET /api/v1/agents
func (h *ChatHandler) ListAgents(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, &model.ListAgentsResponse{Agents: model.Agents()})
}

// Create handles POST /api/v1/chats
func (h *ChatHandler) Create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	var req model.CreateChatRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	view, err := h.service.Create(ctx, userID, req.Agent)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, view)
}

// Get handles GET /api/v1/chats/{id}
func (h *ChatHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	chatID, ok := chatIDParam(w, r)
	if !ok {
		return
	}

	view, err := h.service.Get(ctx, middleware.GetUserID(ctx), chatID)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, view)
}

// Delete handles DELETE /api/v1/chats/{id}
func (h *ChatHandler) Delete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	chatID, ok := chatIDParam(w, r)
	if !ok {
		return
	}

	if err := h.service.Delete(ctx, middleware.GetUserID(ctx), chatID); err != nil {
		writeServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Audit handles GET /api/v1/chats/{id}/audit
// Supports ?after_sequence=N&limit=M for paging.
func (h *ChatHandler) Audit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	chatID, ok := chatIDParam(w, r)
	if !ok {
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	var afterSequence uint64
	if seqStr := r.URL.Query().Get("after_sequence"); seqStr != "" {
		seq, err := strconv.ParseUint(seqStr, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid after_sequence")
			return
		}
		afterSequence = seq
	}

	resp, err := h.service.Audit(ctx, middleware.GetUserID(ctx), chatID, afterSequence, limit)
	if err != nil {
		if statusFor(err) == http.StatusInternalServerError {
			h.logger.Error("failed to replay audit", zap.String("chat_id", chatID), zap.Error(err))
		}
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

func chatIDParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	chatID := chi.URLParam(r, "id")
	if err := middleware.ValidateChatID(chatID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return "", false
	}
	return chatID, true
}
