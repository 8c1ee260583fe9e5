package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/inmobiliaria/gestion-chat/internal/agentapi"
	"github.com/inmobiliaria/gestion-chat/internal/chat"
	"github.com/inmobiliaria/gestion-chat/internal/middleware"
	"github.com/inmobiliaria/gestion-chat/internal/model"
	"github.com/inmobiliaria/gestion-chat/internal/service"
	"github.com/inmobiliaria/gestion-chat/pkg/logger"
	"github.com/inmobiliaria/gestion-chat/pkg/metrics"
)

const (
	wsWriteTimeout = 10 * time.Second
	wsOutbox       = 16
)

// StreamHandler serves the chat WebSocket: clients send commands and receive
// the view state after every transition.
type StreamHandler struct {
	service        *service.ChatService
	originPatterns []string
	logger         *logger.Logger
}

// NewStreamHandler creates a new stream handler. originPatterns are matched
// against the Origin header of cross-origin upgrades.
func NewStreamHandler(svc *service.ChatService, originPatterns []string, log *logger.Logger) *StreamHandler {
	return &StreamHandler{
		service:        svc,
		originPatterns: originPatterns,
		logger:         log,
	}
}

// Stream handles GET /api/v1/chats/{id}/ws
func (h *StreamHandler) Stream(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	chatID, ok := chatIDParam(w, r)
	if !ok {
		return
	}

	view, err := h.service.Get(r.Context(), userID, chatID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	states, unsubscribe, err := h.service.Subscribe(userID, chatID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	defer unsubscribe()

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.originPatterns,
	})
	if err != nil {
		h.logger.Warn("failed to accept websocket", zap.String("chat_id", chatID), zap.Error(err))
		return
	}

	metrics.IncrementWSConnections()
	defer metrics.DecrementWSConnections()

	log := h.logger.WithRequest(chimw.GetReqID(r.Context()), userID).With(zap.String("chat_id", chatID))
	log.Info("websocket connected")

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	out := make(chan model.ServerFrame, wsOutbox)
	out <- model.ServerFrame{Type: model.FrameState, State: &view.State}

	var wg sync.WaitGroup
	wg.Add(2)

	// Output loop: state updates and replies -> client.
	closeReason := "chat closed"
	go func() {
		defer wg.Done()
		defer cancel()
		closeReason = h.outputLoop(ctx, ws, states, out, log)
	}()

	// Input loop: client commands -> chat service.
	go func() {
		defer wg.Done()
		defer cancel()
		h.inputLoop(ctx, ws, userID, chatID, out, log)
	}()

	wg.Wait()
	if err := ws.Close(websocket.StatusNormalClosure, closeReason); err != nil {
		log.Debug("failed to close websocket", zap.Error(err))
	}
	log.Info("websocket disconnected")
}

func (h *StreamHandler) inputLoop(ctx context.Context, ws *websocket.Conn, userID, chatID string, out chan<- model.ServerFrame, log *logger.Logger) {
	for {
		_, data, err := ws.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) == -1 && !errors.Is(err, context.Canceled) {
				log.Debug("websocket read error", zap.Error(err))
			}
			return
		}

		var frame model.ClientFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			enqueue(ctx, out, errorFrame(model.ErrCodeBadFrame, "frame is not valid JSON"))
			continue
		}

		switch frame.Type {
		case model.FrameSend:
			if err := middleware.ValidateMessage(frame.Message); err != nil {
				enqueue(ctx, out, errorFrame(model.ErrCodeBadFrame, err.Error()))
				continue
			}
			go func(text string) {
				ex, _, err := h.service.Send(ctx, userID, chatID, text)
				switch {
				case errors.Is(err, service.ErrSendInFlight):
					enqueue(ctx, out, errorFrame(model.ErrCodeSendInFlight, err.Error()))
				case err != nil:
					enqueue(ctx, out, errorFrame(model.ErrCodeBadFrame, err.Error()))
				case ex != nil && errors.Is(ex.Err, agentapi.ErrUnauthenticated):
					enqueue(ctx, out, errorFrame(model.ErrCodeUnauthenticated, "authentication required"))
				}
			}(frame.Message)

		case model.FrameChangeAgent:
			if _, err := h.service.ChangeAgent(ctx, userID, chatID, frame.Agent); err != nil {
				code := model.ErrCodeBadFrame
				if errors.Is(err, chat.ErrUnknownAgent) {
					code = model.ErrCodeUnknownAgent
				}
				enqueue(ctx, out, errorFrame(code, err.Error()))
			}

		case model.FrameReset:
			if _, err := h.service.Reset(ctx, userID, chatID); err != nil {
				enqueue(ctx, out, errorFrame(model.ErrCodeBadFrame, err.Error()))
			}

		default:
			enqueue(ctx, out, errorFrame(model.ErrCodeBadFrame, "unknown frame type "+string(frame.Type)))
		}
	}
}

// outputLoop writes frames until ctx ends or the view is removed and
// returns the close reason.
func (h *StreamHandler) outputLoop(ctx context.Context, ws *websocket.Conn, states <-chan chat.State, out <-chan model.ServerFrame, log *logger.Logger) string {
	for {
		var frame model.ServerFrame
		select {
		case <-ctx.Done():
			return "connection closed"
		case st, ok := <-states:
			if !ok {
				return "chat closed"
			}
			frame = model.ServerFrame{Type: model.FrameState, State: &st}
		case frame = <-out:
		}

		if err := writeFrame(ctx, ws, frame); err != nil {
			if !errors.Is(err, context.Canceled) {
				log.Debug("websocket write error", zap.Error(err))
			}
			return "write failed"
		}
	}
}

func writeFrame(ctx context.Context, ws *websocket.Conn, frame model.ServerFrame) error {
	data, err := json.Marshal(frame)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
	defer cancel()
	return ws.Write(ctx, websocket.MessageText, data)
}

func enqueue(ctx context.Context, out chan<- model.ServerFrame, frame model.ServerFrame) {
	select {
	case out <- frame:
	case <-ctx.Done():
	}
}

func errorFrame(code, msg string) model.ServerFrame {
	return model.ServerFrame{Type: model.FrameError, Error: &model.ErrorEvent{Code: code, Message: msg}}
}
