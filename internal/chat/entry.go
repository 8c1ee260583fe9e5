package chat

import (
	"time"
)

// Author identifies who wrote a transcript entry.
type Author string

const (
	AuthorUser  Author = "user"
	AuthorAgent Author = "agent"
)

// FailureKind distinguishes why an agent entry reports failure.
type FailureKind string

const (
	// FailureTransport means no response was obtained from the backend.
	FailureTransport FailureKind = "transport"
	// FailureApplication means the backend answered but flagged the
	// operation unsuccessful.
	FailureApplication FailureKind = "application"
)

// Outcome is attached to every agent entry and never to user entries.
type Outcome struct {
	Succeeded   bool        `json:"succeeded"`
	ErrorDetail *string     `json:"error_detail,omitempty"`
	Failure     FailureKind `json:"failure,omitempty"`
}

// Entry is one immutable record of the transcript.
type Entry struct {
	ID         string    `json:"id"`
	AuthoredBy Author    `json:"authored_by"`
	Text       string    `json:"text"`
	CreatedAt  time.Time `json:"created_at"`
	Outcome    *Outcome  `json:"outcome,omitempty"`
}

// Failed reports whether e is an agent entry flagged unsuccessful.
func (e Entry) Failed() bool {
	return e.Outcome != nil && !e.Outcome.Succeeded
}

func (e Entry) clone() Entry {
	if e.Outcome == nil {
		return e
	}
	o := *e.Outcome
	if o.ErrorDetail != nil {
		o.ErrorDetail = stringPtr(*o.ErrorDetail)
	}
	e.Outcome = &o
	return e
}

func stringPtr(s string) *string {
	return &s
}
