// Package chat implements the agent conversation core: the per-view session
// state, the agent router and the message dispatcher.
package chat

import (
	"errors"
	"fmt"
	"strings"
)

// AgentKind identifies one of the backend conversational agents.
type AgentKind string

const (
	// AgentAgency manages real estate agencies (inmobiliarias).
	AgentAgency AgentKind = "inmobiliaria"
	// AgentProperty manages properties (propiedades).
	AgentProperty AgentKind = "propiedad"
	// AgentContact manages contacts (personas).
	AgentContact AgentKind = "persona"
)

// DefaultAgent is the agent a new conversation starts with.
const DefaultAgent = AgentAgency

// ErrUnknownAgent is returned when parsing a value that names no agent.
var ErrUnknownAgent = errors.New("unknown agent kind")

// AgentKinds returns every declared agent kind in display order.
func AgentKinds() []AgentKind {
	return []AgentKind{AgentAgency, AgentProperty, AgentContact}
}

// ParseAgentKind parses a kind name, case-insensitively.
func ParseAgentKind(s string) (AgentKind, error) {
	k := AgentKind(strings.ToLower(strings.TrimSpace(s)))
	if !k.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownAgent, s)
	}
	return k, nil
}

// Valid reports whether k is a declared kind.
func (k AgentKind) Valid() bool {
	switch k {
	case AgentAgency, AgentProperty, AgentContact:
		return true
	}
	return false
}

// Endpoint returns the backend path bound to k, relative to the API base.
// Every declared kind has exactly one endpoint; calling Endpoint on an
// undeclared kind is a programming error and panics.
func (k AgentKind) Endpoint() string {
	switch k {
	case AgentAgency:
		return "/agent/chat"
	case AgentProperty:
		return "/agent/propiedades/chat"
	case AgentContact:
		return "/agent/personas/chat"
	}
	panic(fmt.Sprintf("chat: no endpoint bound to agent kind %q", string(k)))
}

// DisplayName returns a short human label for k.
func (k AgentKind) DisplayName() string {
	switch k {
	case AgentAgency:
		return "Agencies"
	case AgentProperty:
		return "Properties"
	case AgentContact:
		return "Contacts"
	}
	return string(k)
}

// Description returns a one-line summary of what the agent handles.
func (k AgentKind) Description() string {
	switch k {
	case AgentAgency:
		return "Create, update and list real estate agencies"
	case AgentProperty:
		return "Manage property listings, prices and availability"
	case AgentContact:
		return "Manage owners, tenants and other contacts"
	}
	return ""
}

// Next returns the kind after k in display order, wrapping around.
func (k AgentKind) Next() AgentKind {
	kinds := AgentKinds()
	for i, kind := range kinds {
		if kind == k {
			return kinds[(i+1)%len(kinds)]
		}
	}
	return DefaultAgent
}
