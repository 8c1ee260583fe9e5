package chat

import (
	"context"
	"time"
)

// EventType names a state transition reported to a Recorder.
type EventType string

const (
	EventEntryAppended     EventType = "entry_appended"
	EventSessionAdopted    EventType = "session_adopted"
	EventConversationReset EventType = "conversation_reset"
	EventAgentChanged      EventType = "agent_changed"
	EventExchangeCompleted EventType = "exchange_completed"
)

// Event describes one transition of a conversation.
type Event struct {
	Type      EventType
	Agent     AgentKind
	SessionID string
	Entry     *Entry

	// Set on EventExchangeCompleted.
	Failure   FailureKind
	Succeeded bool
	Duration  time.Duration
	Discarded bool
}

// Recorder observes conversation transitions. Record is called without the
// state lock held, so it may read the dispatcher State.
type Recorder interface {
	Record(ctx context.Context, ev Event)
}

// RecorderFunc adapts a function to Recorder.
type RecorderFunc func(ctx context.Context, ev Event)

// Record calls f.
func (f RecorderFunc) Record(ctx context.Context, ev Event) {
	f(ctx, ev)
}

// MultiRecorder fans events out to several recorders in order.
type MultiRecorder []Recorder

// Record forwards ev to every non-nil recorder.
func (m MultiRecorder) Record(ctx context.Context, ev Event) {
	for _, r := range m {
		if r != nil {
			r.Record(ctx, ev)
		}
	}
}

type nopRecorder struct{}

func (nopRecorder) Record(context.Context, Event) {}
