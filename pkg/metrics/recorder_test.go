package metrics

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/inmobiliaria/gestion-chat/internal/chat"
)

func TestChatRecorderCountsOutcomes(t *testing.T) {
	rec := ChatRecorder{}
	ctx := context.Background()

	before := testutil.ToFloat64(ChatExchangesTotal.WithLabelValues("persona", "application"))
	rec.Record(ctx, chat.Event{
		Type:     chat.EventExchangeCompleted,
		Agent:    chat.AgentContact,
		Failure:  chat.FailureApplication,
		Duration: 120 * time.Millisecond,
	})
	after := testutil.ToFloat64(ChatExchangesTotal.WithLabelValues("persona", "application"))
	if after-before != 1 {
		t.Fatalf("application outcome counter moved by %v, want 1", after-before)
	}

	before = testutil.ToFloat64(ChatClearsTotal.WithLabelValues("agent_change"))
	rec.Record(ctx, chat.Event{Type: chat.EventAgentChanged, Agent: chat.AgentProperty})
	if got := testutil.ToFloat64(ChatClearsTotal.WithLabelValues("agent_change")) - before; got != 1 {
		t.Fatalf("agent_change counter moved by %v, want 1", got)
	}
}
