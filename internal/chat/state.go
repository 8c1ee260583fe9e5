package chat

// State is a snapshot of one conversation.
type State struct {
	Transcript  []Entry   `json:"transcript"`
	SessionID   *string   `json:"session_id,omitempty"`
	ActiveAgent AgentKind `json:"active_agent"`
	Pending     bool      `json:"pending"`
	LastError   *string   `json:"last_error,omitempty"`
}

// HasSession reports whether a backend session id has been adopted.
func (s State) HasSession() bool {
	return s.SessionID != nil
}

// Session returns the adopted session id or "".
func (s State) Session() string {
	if s.SessionID == nil {
		return ""
	}
	return *s.SessionID
}

// Err returns the last error message or "".
func (s State) Err() string {
	if s.LastError == nil {
		return ""
	}
	return *s.LastError
}

func (s State) clone() State {
	out := State{
		Transcript:  make([]Entry, len(s.Transcript)),
		ActiveAgent: s.ActiveAgent,
		Pending:     s.Pending,
	}
	for i, e := range s.Transcript {
		out.Transcript[i] = e.clone()
	}
	if s.SessionID != nil {
		out.SessionID = stringPtr(*s.SessionID)
	}
	if s.LastError != nil {
		out.LastError = stringPtr(*s.LastError)
	}
	return out
}

// clear empties the transcript and drops the session and error together.
func (s *State) clear() {
	s.Transcript = []Entry{}
	s.SessionID = nil
	s.LastError = nil
}
