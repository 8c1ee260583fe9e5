package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/inmobiliaria/gestion-chat/pkg/logger"
)

const tracerName = "github.com/inmobiliaria/gestion-chat/internal/chat"

var errEmptyResponse = errors.New("agent returned an empty response")

// Exchange is the result of one Send that reached the transport.
type Exchange struct {
	User  Entry `json:"user"`
	Reply Entry `json:"reply"`

	// Err is the transport error behind a transport failure.
	Err error `json:"-"`

	// Discarded is set when the conversation was reset or switched agent
	// while the request was in flight. The reply was not appended.
	Discarded bool `json:"discarded,omitempty"`
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithLogger sets the dispatcher logger.
func WithLogger(l *logger.Logger) Option {
	return func(d *Dispatcher) {
		if l != nil {
			d.logger = l
		}
	}
}

// WithRecorder sets the recorder notified of every transition.
func WithRecorder(r Recorder) Option {
	return func(d *Dispatcher) {
		if r != nil {
			d.recorder = r
		}
	}
}

// WithClock overrides the entry timestamp source.
func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) {
		if now != nil {
			d.now = now
		}
	}
}

// WithIDGenerator overrides the entry id source.
func WithIDGenerator(newID func() string) Option {
	return func(d *Dispatcher) {
		if newID != nil {
			d.newID = newID
		}
	}
}

// Dispatcher owns the state of one conversation and drives the
// send/response cycle against the backend agents.
//
// It assumes at most one Send in flight: callers must check Pending (or
// gate otherwise) before sending. Reset and ChangeAgent may be called at any
// time; a reply that arrives after either is discarded.
type Dispatcher struct {
	transport Transport
	recorder  Recorder
	logger    *logger.Logger
	tracer    trace.Tracer
	now       func() time.Time
	newID     func() string

	mu    sync.Mutex
	state State
	epoch uint64
}

// NewDispatcher creates a dispatcher with an empty conversation bound to
// agent. An invalid agent falls back to DefaultAgent.
func NewDispatcher(transport Transport, agent AgentKind, opts ...Option) *Dispatcher {
	if !agent.Valid() {
		agent = DefaultAgent
	}
	d := &Dispatcher{
		transport: transport,
		recorder:  nopRecorder{},
		logger:    logger.Global(),
		tracer:    otel.Tracer(tracerName),
		now:       time.Now,
		newID:     func() string { return uuid.Must(uuid.NewV7()).String() },
		state: State{
			Transcript:  []Entry{},
			ActiveAgent: agent,
		},
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// State returns a copy of the current conversation state.
func (d *Dispatcher) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state.clone()
}

// Pending reports whether a Send is in flight.
func (d *Dispatcher) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state.Pending
}

// ActiveAgent returns the currently selected agent.
func (d *Dispatcher) ActiveAgent() AgentKind {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state.ActiveAgent
}

// Send delivers text to the active agent and records both sides of the
// exchange. Input that is empty after trimming is ignored and Send returns
// nil. Failures never escape as errors: they are appended to the transcript
// and exposed through State().LastError.
func (d *Dispatcher) Send(ctx context.Context, text string) *Exchange {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	d.mu.Lock()
	user := Entry{
		ID:         d.newID(),
		AuthoredBy: AuthorUser,
		Text:       text,
		CreatedAt:  d.now(),
	}
	d.state.Transcript = append(d.state.Transcript, user)
	d.state.Pending = true
	d.state.LastError = nil
	agent := d.state.ActiveAgent
	epoch := d.epoch
	req := Request{Message: text}
	if d.state.SessionID != nil {
		req.SessionID = stringPtr(*d.state.SessionID)
	}
	sessionID := d.state.Session()
	d.mu.Unlock()

	settled := false
	defer func() {
		if !settled {
			d.mu.Lock()
			d.state.Pending = false
			d.mu.Unlock()
		}
	}()

	d.recorder.Record(ctx, Event{Type: EventEntryAppended, Agent: agent, SessionID: sessionID, Entry: &user})

	endpoint := agent.Endpoint()
	ctx, span := d.tracer.Start(ctx, "chat.send", trace.WithAttributes(
		attribute.String("chat.agent", string(agent)),
		attribute.String("chat.endpoint", endpoint),
		attribute.Bool("chat.has_session", req.SessionID != nil),
	))
	defer span.End()

	start := time.Now()
	resp, err := d.transport.Chat(ctx, endpoint, req)
	if err == nil && resp == nil {
		err = &TransportError{Err: errEmptyResponse}
	}
	elapsed := time.Since(start)

	reply := Entry{
		ID:         d.newID(),
		AuthoredBy: AuthorAgent,
		CreatedAt:  d.now(),
	}
	switch {
	case err != nil:
		detail := DetailFromError(err)
		reply.Text = detail
		reply.Outcome = &Outcome{Succeeded: false, ErrorDetail: stringPtr(detail), Failure: FailureTransport}
	case resp.Success:
		reply.Text = resp.Response
		reply.Outcome = &Outcome{Succeeded: true}
	default:
		detail := detailFromResponse(resp)
		reply.Text = resp.Response
		if strings.TrimSpace(reply.Text) == "" {
			reply.Text = detail
		}
		reply.Outcome = &Outcome{Succeeded: false, ErrorDetail: stringPtr(detail), Failure: FailureApplication}
	}

	d.mu.Lock()
	stale := d.epoch != epoch
	adopted := ""
	if !stale {
		if err == nil && d.state.SessionID == nil {
			if id, ok := resp.Session(); ok {
				d.state.SessionID = stringPtr(id)
				adopted = id
			}
		}
		d.state.Transcript = append(d.state.Transcript, reply)
		if reply.Failed() {
			d.state.LastError = stringPtr(*reply.Outcome.ErrorDetail)
		}
	}
	d.state.Pending = false
	sessionID = d.state.Session()
	settled = true
	d.mu.Unlock()

	ex := &Exchange{User: user, Reply: reply, Err: err, Discarded: stale}
	d.finishSpan(span, ex)
	d.logExchange(agent, ex, elapsed)

	if adopted != "" {
		d.recorder.Record(ctx, Event{Type: EventSessionAdopted, Agent: agent, SessionID: adopted})
	}
	if !stale {
		d.recorder.Record(ctx, Event{Type: EventEntryAppended, Agent: agent, SessionID: sessionID, Entry: &reply})
	}
	d.recorder.Record(ctx, Event{
		Type:      EventExchangeCompleted,
		Agent:     agent,
		SessionID: sessionID,
		Failure:   reply.Outcome.Failure,
		Succeeded: reply.Outcome.Succeeded,
		Duration:  elapsed,
		Discarded: stale,
	})

	return ex
}

// ChangeAgent switches the active agent and clears the conversation.
// Selecting the current agent is a no-op.
func (d *Dispatcher) ChangeAgent(ctx context.Context, kind AgentKind) error {
	if !kind.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownAgent, string(kind))
	}

	d.mu.Lock()
	if d.state.ActiveAgent == kind {
		d.mu.Unlock()
		return nil
	}
	previous := d.state.ActiveAgent
	d.state.ActiveAgent = kind
	d.state.clear()
	d.epoch++
	d.mu.Unlock()

	d.logger.Debug("agent changed",
		zap.String("from", string(previous)),
		zap.String("to", string(kind)),
	)
	d.recorder.Record(ctx, Event{Type: EventAgentChanged, Agent: kind})
	return nil
}

// Reset clears the transcript, the session id and the last error.
// The active agent is kept.
func (d *Dispatcher) Reset(ctx context.Context) {
	d.mu.Lock()
	agent := d.state.ActiveAgent
	d.state.clear()
	d.epoch++
	d.mu.Unlock()

	d.logger.Debug("conversation reset", zap.String("agent", string(agent)))
	d.recorder.Record(ctx, Event{Type: EventConversationReset, Agent: agent})
}

func (d *Dispatcher) finishSpan(span trace.Span, ex *Exchange) {
	outcome := "success"
	if ex.Reply.Failed() {
		outcome = string(ex.Reply.Outcome.Failure)
		span.SetStatus(codes.Error, *ex.Reply.Outcome.ErrorDetail)
	}
	if ex.Err != nil {
		span.RecordError(ex.Err)
	}
	span.SetAttributes(
		attribute.String("chat.outcome", outcome),
		attribute.Bool("chat.discarded", ex.Discarded),
	)
}

func (d *Dispatcher) logExchange(agent AgentKind, ex *Exchange, elapsed time.Duration) {
	fields := []zap.Field{
		zap.String("agent", string(agent)),
		zap.Duration("duration", elapsed),
		zap.Bool("discarded", ex.Discarded),
	}
	switch {
	case ex.Err != nil:
		d.logger.Warn("agent request failed", append(fields, zap.Error(ex.Err))...)
	case ex.Reply.Failed():
		d.logger.Info("agent reported failure", append(fields, zap.String("detail", *ex.Reply.Outcome.ErrorDetail))...)
	default:
		d.logger.Debug("agent exchange completed", fields...)
	}
}
