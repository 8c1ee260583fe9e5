package model

import (
	"github.com/inmobiliaria/gestion-chat/internal/chat"
)

// SendMessageRequest is the request to send a message to the active agent.
type SendMessageRequest struct {
	Message string `json:"message"`
}

// SendMessageResponse carries the exchange and the resulting state.
type SendMessageResponse struct {
	Exchange *chat.Exchange `json:"exchange"`
	State    chat.State     `json:"state"`
}

// StoredMessage is one turn of an agent session persisted by the backend.
type StoredMessage struct {
	ID        int64  `json:"id"`
	SessionID string `json:"session_id"`
	Agent     string `json:"agent"`
	Role      Role   `json:"role"`
	Content   string `json:"content"`
	CreatedAt int64  `json:"created_at"`
}

// Role represents the role of a message sender in agent history.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)
