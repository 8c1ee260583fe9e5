package chat

import (
	"context"
)

// Request is the body posted to an agent endpoint.
type Request struct {
	Message   string  `json:"message"`
	SessionID *string `json:"sessionId,omitempty"`
}

// Response is the body returned by an agent endpoint.
type Response struct {
	Response  string  `json:"response"`
	SessionID *string `json:"sessionId,omitempty"`
	Success   bool    `json:"success"`
	Error     *string `json:"error,omitempty"`
}

// Session returns the session id carried by the response, treating an
// empty string as absent.
func (r *Response) Session() (string, bool) {
	if r == nil || r.SessionID == nil || *r.SessionID == "" {
		return "", false
	}
	return *r.SessionID, true
}

// Transport delivers one request to a backend agent endpoint.
// A non-nil error means no response was obtained.
type Transport interface {
	Chat(ctx context.Context, endpoint string, req Request) (*Response, error)
}

// TransportFunc adapts a function to Transport.
type TransportFunc func(ctx context.Context, endpoint string, req Request) (*Response, error)

// Chat calls f.
func (f TransportFunc) Chat(ctx context.Context, endpoint string, req Request) (*Response, error) {
	return f(ctx, endpoint, req)
}
