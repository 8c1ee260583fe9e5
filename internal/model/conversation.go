// Package model defines the data structures exchanged by the chat gateway,
// the development agent backend and their clients.
package model

import (
	"time"

	"github.com/inmobiliaria/gestion-chat/internal/chat"
)

// ChatView is one conversation held by the gateway on behalf of a user.
type ChatView struct {
	ID        string     `json:"id"`
	UserID    string     `json:"user_id"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	State     chat.State `json:"state"`
}

// CreateChatRequest is the request to open a chat view.
type CreateChatRequest struct {
	Agent string `json:"agent,omitempty"`
}

// ChangeAgentRequest selects another agent for a chat view.
type ChangeAgentRequest struct {
	Agent string `json:"agent"`
}

// AgentInfo describes one selectable agent.
type AgentInfo struct {
	Kind        chat.AgentKind `json:"kind"`
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Endpoint    string         `json:"endpoint"`
	Default     bool           `json:"default,omitempty"`
}

// ListAgentsResponse is the response for listing agents.
type ListAgentsResponse struct {
	Agents []AgentInfo `json:"agents"`
}

// Agents returns the catalogue of selectable agents.
func Agents() []AgentInfo {
	kinds := chat.AgentKinds()
	out := make([]AgentInfo, 0, len(kinds))
	for _, k := range kinds {
		out = append(out, AgentInfo{
			Kind:        k,
			Name:        k.DisplayName(),
			Description: k.Description(),
			Endpoint:    k.Endpoint(),
			Default:     k == chat.DefaultAgent,
		})
	}
	return out
}
