package model

import (
	"time"

	"github.com/inmobiliaria/gestion-chat/internal/chat"
)

// FrameType names a WebSocket frame.
type FrameType string

const (
	// Client frames.
	FrameSend        FrameType = "send"
	FrameChangeAgent FrameType = "change_agent"
	FrameReset       FrameType = "reset"

	// Server frames.
	FrameState FrameType = "state"
	FrameError FrameType = "error"
)

// ClientFrame is a command sent by a WebSocket client.
type ClientFrame struct {
	Type    FrameType `json:"type"`
	Message string    `json:"message,omitempty"`
	Agent   string    `json:"agent,omitempty"`
}

// ServerFrame is pushed to WebSocket clients.
type ServerFrame struct {
	Type     FrameType      `json:"type"`
	State    *chat.State    `json:"state,omitempty"`
	Exchange *chat.Exchange `json:"exchange,omitempty"`
	Error    *ErrorEvent    `json:"error,omitempty"`
}

// ErrorEvent represents an error pushed to a client.
type ErrorEvent struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error codes used in ErrorEvent.
const (
	ErrCodeBadFrame        = "bad_frame"
	ErrCodeUnknownAgent    = "unknown_agent"
	ErrCodeSendInFlight    = "send_in_flight"
	ErrCodeUnauthenticated = "unauthenticated"
)

// AuditRecord is one conversation transition published to the audit stream.
type AuditRecord struct {
	ID        string           `json:"id"`
	ChatID    string           `json:"chat_id"`
	UserID    string           `json:"user_id"`
	Type      chat.EventType   `json:"type"`
	Agent     chat.AgentKind   `json:"agent"`
	SessionID string           `json:"session_id,omitempty"`
	Entry     *chat.Entry      `json:"entry,omitempty"`
	Failure   chat.FailureKind `json:"failure,omitempty"`
	Succeeded bool             `json:"succeeded,omitempty"`
	LatencyMs int64            `json:"latency_ms,omitempty"`
	Discarded bool             `json:"discarded,omitempty"`
	CreatedAt time.Time        `json:"created_at"`

	// JetStream metadata, populated on read.
	Sequence uint64 `json:"sequence,omitempty"`
}

// ListAuditResponse is the response for reading a chat's audit trail.
type ListAuditResponse struct {
	Records      []AuditRecord `json:"records"`
	LastSequence uint64        `json:"last_sequence"`
	HasMore      bool          `json:"has_more"`
}
