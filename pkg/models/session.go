package models

import "time"

// Session is a conversation thread. The relational store that backs it is
// external; the core only ever reads it and applies commutative counter
// increments through the repository interface.
type Session struct {
	ID        string `json:"id"`
	ProjectID string `json:"project_id"`
	Agent     string `json:"agent"`
	Vendor    string `json:"vendor,omitempty"`
	Model     string `json:"model,omitempty"`

	// ParentSessionID is set for sessions created by the Sub-Agent Runner.
	ParentSessionID string `json:"parent_session_id,omitempty"`
	Title           string `json:"title,omitempty"`

	MessageCount int     `json:"message_count"`
	TokensInput  int     `json:"tokens_input"`
	TokensOutput int     `json:"tokens_output"`
	Cost         float64 `json:"cost"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsChild reports whether this session was spawned by a parent turn.
func (s *Session) IsChild() bool {
	return s != nil && s.ParentSessionID != ""
}

// SessionStatsDelta carries commutative increments applied by
// sessions.updateStats. A nil field means "no change".
type SessionStatsDelta struct {
	MessageCount *int
	TokensInput  *int
	TokensOutput *int
	Cost         *float64
}
