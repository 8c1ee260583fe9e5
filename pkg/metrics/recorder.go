package metrics

import (
	"context"

	"github.com/inmobiliaria/gestion-chat/internal/chat"
)

// ChatRecorder turns conversation events into Prometheus samples.
type ChatRecorder struct{}

// Record implements chat.Recorder.
func (ChatRecorder) Record(_ context.Context, ev chat.Event) {
	switch ev.Type {
	case chat.EventExchangeCompleted:
		outcome := "success"
		if !ev.Succeeded {
			outcome = string(ev.Failure)
		}
		if ev.Discarded {
			outcome = "discarded"
		}
		agent := string(ev.Agent)
		ChatExchangeDuration.WithLabelValues(agent, outcome).Observe(ev.Duration.Seconds())
		ChatExchangesTotal.WithLabelValues(agent, outcome).Inc()
	case chat.EventSessionAdopted:
		ChatSessionsAdopted.WithLabelValues(string(ev.Agent)).Inc()
	case chat.EventConversationReset:
		ChatClearsTotal.WithLabelValues("reset").Inc()
	case chat.EventAgentChanged:
		ChatClearsTotal.WithLabelValues("agent_change").Inc()
	}
}
