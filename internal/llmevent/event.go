// Package llmevent defines the fixed event alphabet a streaming model
// adapter yields and the request/tool shapes it consumes. Both the
// provider adapters and the Stream Processor depend on this package
// instead of on each other.
package llmevent

import "encoding/json"

// Type is one of the ten event kinds an adapter may emit, in the order the
// Stream Processor's state machine expects them.
type Type string

const (
	TypeTextDelta      Type = "text-delta"
	TypeReasoningDelta Type = "reasoning-delta"
	TypeToolInputStart Type = "tool-input-start"
	TypeToolInputDelta Type = "tool-input-delta"
	TypeToolCall       Type = "tool-call"
	TypeToolResult     Type = "tool-result"
	TypeStepStart      Type = "step-start"
	TypeStepFinish     Type = "step-finish"
	TypeFinish         Type = "finish"
	TypeError          Type = "error"
)

// Usage is the cumulative token usage reported at finish.
type Usage struct {
	InputTokens  int
	OutputTokens int
}

// Event is the single type every adapter emits; only the fields relevant
// to Type are populated.
type Event struct {
	Type Type

	TextDelta      string
	ReasoningDelta string

	ToolCallID   string
	ToolName     string
	ToolInput    json.RawMessage // finalised input, set on TypeToolCall
	ToolInputPartial string       // set on TypeToolInputDelta
	ToolResult   string
	ToolIsError  bool

	StepNumber int

	FinishReason string
	Usage        Usage

	Err error
}

// Message is one turn of conversation history passed to the adapter. Tool
// calls/results embedded in an assistant message let the adapter replay
// prior tool use when reconstructing context.
type Message struct {
	Role    string
	Content string
}

// Tool is a callable binding exposed to the model: a name, an input JSON
// schema, and the execution context is threaded through the caller, not
// the adapter.
type Tool struct {
	Name        string
	Description string
	Schema      json.RawMessage
}

// StreamRequest carries everything an adapter needs to start a streaming
// completion.
type StreamRequest struct {
	System      string
	Messages    []Message
	Tools       []Tool
	MaxSteps    int
	Temperature *float64
	TopP        *float64
}

// Stream is the channel of events an adapter yields. It is closed after a
// TypeFinish or TypeError event.
type Stream <-chan Event
