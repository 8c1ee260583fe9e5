// Package service holds the chat views the gateway keeps for its users.
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/inmobiliaria/gestion-chat/internal/chat"
	"github.com/inmobiliaria/gestion-chat/internal/model"
	"github.com/inmobiliaria/gestion-chat/pkg/logger"
	"github.com/inmobiliaria/gestion-chat/pkg/metrics"
)

var (
	// ErrViewNotFound is returned for unknown chat ids and for views owned
	// by another user.
	ErrViewNotFound = errors.New("chat not found")
	// ErrSendInFlight is returned when a view already has a send pending.
	ErrSendInFlight = errors.New("a message is already being processed")
	// ErrAuditDisabled is returned when no audit stream is configured.
	ErrAuditDisabled = errors.New("audit stream is not enabled")
)

// AuditSink receives audit records for every conversation transition.
type AuditSink interface {
	Publish(ctx context.Context, rec *model.AuditRecord) error
}

// AuditReader replays the audit records of one chat.
type AuditReader interface {
	Replay(ctx context.Context, chatID string, afterSequence uint64, limit int) ([]model.AuditRecord, uint64, bool, error)
}

// Option configures a ChatService.
type Option func(*ChatService)

// WithAudit enables audit publishing and replay.
func WithAudit(sink AuditSink, reader AuditReader) Option {
	return func(s *ChatService) {
		s.auditSink = sink
		s.auditReader = reader
	}
}

// WithRecorder adds a recorder shared by every view.
func WithRecorder(r chat.Recorder) Option {
	return func(s *ChatService) {
		s.recorder = r
	}
}

// WithClock overrides the time source used for idle tracking.
func WithClock(now func() time.Time) Option {
	return func(s *ChatService) {
		s.now = now
	}
}

// ChatService keeps one chat.Dispatcher per open chat view.
type ChatService struct {
	transport   chat.Transport
	recorder    chat.Recorder
	auditSink   AuditSink
	auditReader AuditReader
	logger      *logger.Logger
	idleTTL     time.Duration
	now         func() time.Time

	mu    sync.RWMutex
	views map[string]*view
}

type view struct {
	id         string
	userID     string
	createdAt  time.Time
	dispatcher *chat.Dispatcher

	sending  atomic.Bool
	lastUsed atomic.Int64

	subMu       sync.Mutex
	subscribers map[int]chan chat.State
	nextSub     int
}

func (v *view) touch(now time.Time) {
	v.lastUsed.Store(now.UnixNano())
}

// NewChatService creates a service whose views talk to the agents through
// transport. Views idle for longer than idleTTL are removed by Sweep.
func NewChatService(transport chat.Transport, idleTTL time.Duration, log *logger.Logger, opts ...Option) *ChatService {
	s := &ChatService{
		transport: transport,
		logger:    log,
		idleTTL:   idleTTL,
		now:       time.Now,
		views:     make(map[string]*view),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create opens a chat view for userID. An empty agent selects the default.
func (s *ChatService) Create(ctx context.Context, userID, agent string) (*model.ChatView, error) {
	kind := chat.DefaultAgent
	if agent != "" {
		parsed, err := chat.ParseAgentKind(agent)
		if err != nil {
			return nil, err
		}
		kind = parsed
	}

	now := s.now()
	v := &view{
		id:          uuid.Must(uuid.NewV7()).String(),
		userID:      userID,
		createdAt:   now,
		subscribers: make(map[int]chan chat.State),
	}
	v.touch(now)

	recorders := chat.MultiRecorder{s.recorder, &viewRecorder{service: s, view: v}}
	v.dispatcher = chat.NewDispatcher(s.transport, kind,
		chat.WithLogger(s.logger.With(zap.String("chat_id", v.id))),
		chat.WithRecorder(recorders),
	)

	s.mu.Lock()
	s.views[v.id] = v
	count := len(s.views)
	s.mu.Unlock()
	metrics.ChatViewsActive.Set(float64(count))

	s.logger.Info("chat created",
		zap.String("chat_id", v.id),
		zap.String("user_id", userID),
		zap.String("agent", string(kind)),
	)

	return s.snapshot(v), nil
}

// Get returns the current state of a view.
func (s *ChatService) Get(ctx context.Context, userID, chatID string) (*model.ChatView, error) {
	v, err := s.lookup(userID, chatID)
	if err != nil {
		return nil, err
	}
	v.touch(s.now())
	return s.snapshot(v), nil
}

// Delete removes a view. A send in flight completes against the detached
// dispatcher and its result is dropped.
func (s *ChatService) Delete(ctx context.Context, userID, chatID string) error {
	s.mu.Lock()
	v, ok := s.views[chatID]
	if !ok || v.userID != userID {
		s.mu.Unlock()
		return ErrViewNotFound
	}
	delete(s.views, chatID)
	count := len(s.views)
	s.mu.Unlock()
	metrics.ChatViewsActive.Set(float64(count))

	v.closeSubscribers()
	s.logger.Info("chat deleted", zap.String("chat_id", chatID), zap.String("user_id", userID))
	return nil
}

// Count returns the number of open views.
func (s *ChatService) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.views)
}

// Sweep removes views idle since before now-idleTTL that have no send in
// flight and reports how many were removed.
func (s *ChatService) Sweep(now time.Time) int {
	cutoff := now.Add(-s.idleTTL).UnixNano()

	s.mu.Lock()
	var expired []*view
	for id, v := range s.views {
		if v.lastUsed.Load() < cutoff && !v.sending.Load() {
			expired = append(expired, v)
			delete(s.views, id)
		}
	}
	count := len(s.views)
	s.mu.Unlock()
	metrics.ChatViewsActive.Set(float64(count))

	for _, v := range expired {
		v.closeSubscribers()
	}
	if len(expired) > 0 {
		s.logger.Info("idle chats removed", zap.Int("count", len(expired)))
	}
	return len(expired)
}

// Run sweeps idle views every interval until ctx is done.
func (s *ChatService) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep(s.now())
		}
	}
}

func (s *ChatService) lookup(userID, chatID string) (*view, error) {
	s.mu.RLock()
	v, ok := s.views[chatID]
	s.mu.RUnlock()
	if !ok || v.userID != userID {
		return nil, fmt.Errorf("%w: %s", ErrViewNotFound, chatID)
	}
	return v, nil
}

func (s *ChatService) snapshot(v *view) *model.ChatView {
	return &model.ChatView{
		ID:        v.id,
		UserID:    v.userID,
		CreatedAt: v.createdAt,
		UpdatedAt: time.Unix(0, v.lastUsed.Load()).UTC(),
		State:     v.dispatcher.State(),
	}
}
