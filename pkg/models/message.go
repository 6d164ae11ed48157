// Package models defines the core data shapes the orchestration engine
// persists and exchanges: sessions, messages, message parts, and the
// terminal result of a turn. The concrete store that backs these types is
// external to this module; these types are the contract the store must
// honor.
package models

import (
	"encoding/json"
	"time"
)

// Role indicates the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// FinishReason is the closed set of terminal states a turn can end in.
// Any value an adapter emits outside this set is normalised to Stop.
type FinishReason string

const (
	FinishStop      FinishReason = "stop"
	FinishToolCalls FinishReason = "tool-calls"
	FinishLength    FinishReason = "length"
	FinishError     FinishReason = "error"
)

// NormalizeFinishReason maps an arbitrary adapter-reported finish string
// onto the closed set, defaulting unknown values to FinishStop.
func NormalizeFinishReason(raw string) FinishReason {
	switch FinishReason(raw) {
	case FinishStop, FinishToolCalls, FinishLength, FinishError:
		return FinishReason(raw)
	default:
		return FinishStop
	}
}

// MessageError records the terminal error state of a message.
type MessageError struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// Message is one turn of a conversation: a user utterance or an
// assistant response. Messages are created in user/assistant pairs by the
// Orchestrator and mutated exactly once at finalisation (or by an error
// path).
type Message struct {
	ID        string     `json:"id"`
	SessionID string     `json:"session_id"`
	Role      Role       `json:"role"`
	ParentID  string     `json:"parent_id,omitempty"`
	Vendor    string     `json:"vendor,omitempty"`
	Model     string     `json:"model,omitempty"`
	Agent     string     `json:"agent,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`

	// Terminal fields, set once at stream finish or on an error path.
	FinishReason FinishReason  `json:"finish_reason,omitempty"`
	InputTokens  int           `json:"input_tokens,omitempty"`
	OutputTokens int           `json:"output_tokens,omitempty"`
	Cost         float64       `json:"cost,omitempty"`
	Error        *MessageError `json:"error,omitempty"`
}

// Done reports whether the message reached a terminal state (either a
// finish reason or an error was recorded).
func (m *Message) Done() bool {
	return m != nil && (m.FinishReason != "" || m.Error != nil)
}

// PartType identifies the shape of a MessagePart's content.
type PartType string

const (
	PartText       PartType = "text"
	PartReasoning  PartType = "reasoning"
	PartToolCall   PartType = "tool-call"
	PartToolResult PartType = "tool-result"
	PartFile       PartType = "file"
	PartStepStart  PartType = "step-start"
	PartStepFinish PartType = "step-finish"
)

// ToolStatus is the lifecycle state of a tool-call / tool-result part pair.
type ToolStatus string

const (
	ToolPending   ToolStatus = "pending"
	ToolRunning   ToolStatus = "running"
	ToolCompleted ToolStatus = "completed"
	ToolError     ToolStatus = "error"
)

// MessagePart is the atomic, ordered, observable unit of a message. Its
// Content shape depends on Type; tool-shaped parts additionally carry a
// tool name, a correlation id pairing tool-call with tool-result, and a
// status.
type MessagePart struct {
	ID          string          `json:"id"`
	MessageID   string          `json:"message_id"`
	SessionID   string          `json:"session_id"`
	Type        PartType        `json:"type"`
	Content     json.RawMessage `json:"content,omitempty"`
	ToolName    string          `json:"tool_name,omitempty"`
	ToolCallID  string          `json:"tool_call_id,omitempty"`
	Status      ToolStatus      `json:"status,omitempty"`
	StepNumber  int             `json:"step_number,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

// TextContent is the Content payload of a PartText part.
type TextContent struct {
	Text string `json:"text"`
}

// ToolCallContent is the Content payload of a PartToolCall part.
type ToolCallContent struct {
	Input json.RawMessage `json:"input"`
}

// ToolResultContent is the Content payload of a PartToolResult part.
type ToolResultContent struct {
	Output  string `json:"output"`
	IsError bool   `json:"is_error,omitempty"`
}

// TurnResult is what the Orchestrator returns for a completed (or failed)
// turn.
type TurnResult struct {
	AssistantMessageID string
	FinishReason       FinishReason
	InputTokens        int
	OutputTokens       int
	Cost               float64
}
