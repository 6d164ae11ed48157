package main

import (
	"context"
	"strings"

	"github.com/agentrun/core/internal/llmevent"
	"github.com/agentrun/core/pkg/models"
)

// stubAdapter is a scripted providers.Adapter for the CLI harness: it
// never makes a network call. It echoes the last user message back,
// optionally emitting one fabricated tool call first when the prompt
// mentions a bound tool by name, so the harness can smoke-test both the
// simple-stop path and the tool-call round-trip without touching a real
// vendor.
type stubAdapter struct {
	vendor models.Vendor
}

func (s *stubAdapter) Vendor() models.Vendor { return s.vendor }

func (s *stubAdapter) Stream(ctx context.Context, cred *models.Credential, model string, req llmevent.StreamRequest) (llmevent.Stream, error) {
	ch := make(chan llmevent.Event, 8)

	lastUser := ""
	for i := len(req.Messages) - 1; i >= 0; i-- {
		if req.Messages[i].Role == "user" {
			lastUser = req.Messages[i].Content
			break
		}
	}

	// A fresh call after a tool round is already folded into history (the
	// Orchestrator appends a synthetic "[tool result ...]" user message,
	// see appendToolRound) answers with plain text; a fresh user turn that
	// names a bound tool triggers one scripted tool call first.
	calledTool := toolRoundAlreadyRan(req.Messages)
	toolName := matchingTool(lastUser, req.Tools)

	go func() {
		defer close(ch)
		if toolName != "" && !calledTool {
			ch <- llmevent.Event{Type: llmevent.TypeStepStart, StepNumber: 1}
			ch <- llmevent.Event{Type: llmevent.TypeToolCall, ToolCallID: "call-1", ToolName: toolName, ToolInput: []byte(`{}`)}
			ch <- llmevent.Event{Type: llmevent.TypeFinish, FinishReason: "tool-calls", Usage: llmevent.Usage{InputTokens: len(lastUser), OutputTokens: 4}}
			return
		}
		reply := "echo: " + lastUser
		ch <- llmevent.Event{Type: llmevent.TypeTextDelta, TextDelta: reply}
		ch <- llmevent.Event{Type: llmevent.TypeFinish, FinishReason: "stop", Usage: llmevent.Usage{InputTokens: len(lastUser), OutputTokens: len(reply)}}
	}()

	return ch, nil
}

func toolRoundAlreadyRan(msgs []llmevent.Message) bool {
	if len(msgs) == 0 {
		return false
	}
	return strings.Contains(msgs[len(msgs)-1].Content, "[tool result")
}

func matchingTool(prompt string, tools []llmevent.Tool) string {
	lower := strings.ToLower(prompt)
	for _, t := range tools {
		if strings.Contains(lower, strings.ToLower(t.Name)) {
			return t.Name
		}
	}
	return ""
}
