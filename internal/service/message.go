package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/inmobiliaria/gestion-chat/internal/chat"
	"github.com/inmobiliaria/gestion-chat/internal/model"
	"github.com/inmobiliaria/gestion-chat/pkg/metrics"
)

const subscriberBuffer = 16

// Send delivers text through the view's dispatcher. A nil exchange means the
// input was blank and nothing happened. Only one send per view may be in
// flight; a concurrent call gets ErrSendInFlight.
//
// The send is detached from ctx cancellation so a client that goes away does
// not turn the reply into a transport failure; the agent client timeout
// still bounds it.
func (s *ChatService) Send(ctx context.Context, userID, chatID, text string) (*chat.Exchange, *model.ChatView, error) {
	v, err := s.lookup(userID, chatID)
	if err != nil {
		return nil, nil, err
	}
	if !v.sending.CompareAndSwap(false, true) {
		return nil, nil, ErrSendInFlight
	}
	defer v.sending.Store(false)

	v.touch(s.now())
	ex := v.dispatcher.Send(context.WithoutCancel(ctx), text)
	v.touch(s.now())

	return ex, s.snapshot(v), nil
}

// ChangeAgent switches the view's agent, clearing the conversation.
func (s *ChatService) ChangeAgent(ctx context.Context, userID, chatID, agent string) (*model.ChatView, error) {
	v, err := s.lookup(userID, chatID)
	if err != nil {
		return nil, err
	}
	kind, err := chat.ParseAgentKind(agent)
	if err != nil {
		return nil, err
	}
	if err := v.dispatcher.ChangeAgent(ctx, kind); err != nil {
		return nil, err
	}
	v.touch(s.now())
	return s.snapshot(v), nil
}

// Reset clears the view's conversation, keeping its agent.
func (s *ChatService) Reset(ctx context.Context, userID, chatID string) (*model.ChatView, error) {
	v, err := s.lookup(userID, chatID)
	if err != nil {
		return nil, err
	}
	v.dispatcher.Reset(ctx)
	v.touch(s.now())
	return s.snapshot(v), nil
}

// Audit replays the audit trail of a view.
func (s *ChatService) Audit(ctx context.Context, userID, chatID string, afterSequence uint64, limit int) (*model.ListAuditResponse, error) {
	if _, err := s.lookup(userID, chatID); err != nil {
		return nil, err
	}
	if s.auditReader == nil {
		return nil, ErrAuditDisabled
	}
	if limit <= 0 {
		limit = 50
	}
	if limit > 200 {
		limit = 200
	}

	records, lastSeq, hasMore, err := s.auditReader.Replay(ctx, chatID, afterSequence, limit)
	if err != nil {
		return nil, err
	}
	if records == nil {
		records = []model.AuditRecord{}
	}
	if lastSeq < afterSequence {
		lastSeq = afterSequence
	}
	return &model.ListAuditResponse{Records: records, LastSequence: lastSeq, HasMore: hasMore}, nil
}

// Subscribe returns a channel receiving the view state after every
// transition. The channel is closed when cancel is called or the view is
// removed. Slow subscribers miss intermediate states, never the latest one.
func (s *ChatService) Subscribe(userID, chatID string) (<-chan chat.State, func(), error) {
	v, err := s.lookup(userID, chatID)
	if err != nil {
		return nil, nil, err
	}

	ch := make(chan chat.State, subscriberBuffer)
	v.subMu.Lock()
	if v.subscribers == nil {
		v.subMu.Unlock()
		return nil, nil, ErrViewNotFound
	}
	id := v.nextSub
	v.nextSub++
	v.subscribers[id] = ch
	v.subMu.Unlock()

	cancel := func() {
		v.subMu.Lock()
		defer v.subMu.Unlock()
		if c, ok := v.subscribers[id]; ok {
			delete(v.subscribers, id)
			close(c)
		}
	}
	return ch, cancel, nil
}

func (v *view) publish(st chat.State) {
	v.subMu.Lock()
	defer v.subMu.Unlock()
	for _, ch := range v.subscribers {
		select {
		case ch <- st:
		default:
			// Drop the oldest queued state to make room for the newest.
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- st:
			default:
			}
		}
	}
}

func (v *view) closeSubscribers() {
	v.subMu.Lock()
	defer v.subMu.Unlock()
	for id, ch := range v.subscribers {
		delete(v.subscribers, id)
		close(ch)
	}
	v.subscribers = nil
}

// viewRecorder fans dispatcher events out to subscribers and the audit sink.
type viewRecorder struct {
	service *ChatService
	view    *view
}

func (r *viewRecorder) Record(ctx context.Context, ev chat.Event) {
	r.view.publish(r.view.dispatcher.State())

	sink := r.service.auditSink
	if sink == nil {
		return
	}
	rec := &model.AuditRecord{
		ID:        uuid.Must(uuid.NewV7()).String(),
		ChatID:    r.view.id,
		UserID:    r.view.userID,
		Type:      ev.Type,
		Agent:     ev.Agent,
		SessionID: ev.SessionID,
		Entry:     ev.Entry,
		Failure:   ev.Failure,
		Succeeded: ev.Succeeded,
		LatencyMs: ev.Duration.Milliseconds(),
		Discarded: ev.Discarded,
		CreatedAt: time.Now().UTC(),
	}
	status := "ok"
	if err := sink.Publish(ctx, rec); err != nil {
		status = "error"
		r.service.logger.Warn("failed to publish audit record",
			zap.String("chat_id", r.view.id),
			zap.String("type", string(ev.Type)),
			zap.Error(err),
		)
	}
	metrics.AuditEventsTotal.WithLabelValues(string(ev.Type), status).Inc()
}
