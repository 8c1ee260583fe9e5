package handler

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/inmobiliaria/gestion-chat/internal/agentapi"
	"github.com/inmobiliaria/gestion-chat/internal/middleware"
	"github.com/inmobiliaria/gestion-chat/internal/model"
)

// Send handles POST /api/v1/chats/{id}/messages
//
// 204 means the input was blank. Agent failures are part of the returned
// state; only a rejected credential is surfaced as 401.
func (h *ChatHandler) Send(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)
	chatID, ok := chatIDParam(w, r)
	if !ok {
		return
	}

	var req model.SendMessageRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := middleware.ValidateMessage(req.Message); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ex, view, err := h.service.Send(ctx, userID, chatID, req.Message)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if ex == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if errors.Is(ex.Err, agentapi.ErrUnauthenticated) {
		h.logger.Info("agent service rejected forwarded token",
			zap.String("chat_id", chatID),
			zap.String("user_id", userID),
		)
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	writeJSON(w, http.StatusOK, &model.SendMessageResponse{Exchange: ex, State: view.State})
}

// ChangeAgent handles PUT /api/v1/chats/{id}/agent
func (h *ChatHandler) ChangeAgent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	chatID, ok := chatIDParam(w, r)
	if !ok {
		return
	}

	var req model.ChangeAgentRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	view, err := h.service.ChangeAgent(ctx, middleware.GetUserID(ctx), chatID, req.Agent)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, view)
}

// Reset handles POST /api/v1/chats/{id}/reset
func (h *ChatHandler) Reset(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	chatID, ok := chatIDParam(w, r)
	if !ok {
		return
	}

	view, err := h.service.Reset(ctx, middleware.GetUserID(ctx), chatID)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, view)
}
