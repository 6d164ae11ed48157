package providers

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/agentrun/core/internal/llmevent"
)

func TestToolInputSchemaParsesObjectShape(t *testing.T) {
	schema := toolInputSchema(json.RawMessage(`{"type":"object","properties":{"path":{"type":"string"}},"required":["path"]}`))
	if schema.Type != "object" {
		t.Errorf("Type = %q, want object", schema.Type)
	}
	if len(schema.Required) != 1 || schema.Required[0] != "path" {
		t.Errorf("Required = %v, want [path]", schema.Required)
	}
}

func TestToolInputSchemaFallsBackOnInvalidJSON(t *testing.T) {
	schema := toolInputSchema(json.RawMessage(`not json`))
	if schema.Type != "object" {
		t.Errorf("Type = %q, want object fallback", schema.Type)
	}
}

func TestConvertMessagesCountMatchesInput(t *testing.T) {
	msgs := []llmevent.Message{
		{Role: "user", Content: "hi"},
		{Role: "assistant", Content: "hello back"},
	}
	out := convertMessages(msgs)
	if len(out) != 2 {
		t.Fatalf("convertMessages() len = %d, want 2", len(out))
	}
}

func TestConvertToolsCountMatchesInput(t *testing.T) {
	tools := []llmevent.Tool{
		{Name: "read", Description: "reads a file", Schema: json.RawMessage(`{"type":"object"}`)},
	}
	out := convertTools(tools)
	if len(out) != 1 {
		t.Fatalf("convertTools() len = %d, want 1", len(out))
	}
	if out[0].OfTool.Name != "read" {
		t.Errorf("Name = %q, want read", out[0].OfTool.Name)
	}
}

func TestIsRetryableAnthropicErrorByMessage(t *testing.T) {
	if !isRetryableAnthropicError(errors.New("upstream timeout")) {
		t.Errorf("isRetryableAnthropicError(timeout) = false, want true")
	}
	if isRetryableAnthropicError(errors.New("invalid api key")) {
		t.Errorf("isRetryableAnthropicError(invalid api key) = true, want false")
	}
}

func TestIsRetryableAnthropicErrorNil(t *testing.T) {
	if isRetryableAnthropicError(nil) {
		t.Errorf("isRetryableAnthropicError(nil) = true, want false")
	}
}
