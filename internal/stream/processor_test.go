package stream

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/agentrun/core/internal/llmevent"
	"github.com/agentrun/core/internal/store"
	"github.com/agentrun/core/pkg/models"
)

func newTestSession(t *testing.T, st *store.MemoryStore) *models.Session {
	t.Helper()
	s := &models.Session{ProjectID: "proj1"}
	if err := st.Sessions().Create(context.Background(), s); err != nil {
		t.Fatalf("Sessions().Create() error = %v", err)
	}
	return s
}

func newTestMessage(t *testing.T, st *store.MemoryStore, sessionID string) *models.Message {
	t.Helper()
	m := &models.Message{SessionID: sessionID, Role: models.RoleAssistant}
	if err := st.Messages().Create(context.Background(), m); err != nil {
		t.Fatalf("Messages().Create() error = %v", err)
	}
	return m
}

func fixedCost(vendor models.Vendor, model string, in, out int) float64 {
	return float64(in)*0.001 + float64(out)*0.002
}

func TestProcessorSimpleStopComputesCost(t *testing.T) {
	st := store.NewMemoryStore()
	session := newTestSession(t, st)
	msg := newTestMessage(t, st, session.ID)

	p := New(st.MessageParts(), st.Messages(), st.Sessions(), nil, nil, fixedCost,
		"proj1", session.ID, msg.ID, models.VendorAnthropic, "claude-sonnet-4-20250514")

	ctx := context.Background()
	events := []llmevent.Event{
		{Type: llmevent.TypeTextDelta, TextDelta: "Hello, "},
		{Type: llmevent.TypeTextDelta, TextDelta: "world."},
		{Type: llmevent.TypeFinish, FinishReason: "stop", Usage: llmevent.Usage{InputTokens: 10, OutputTokens: 20}},
	}
	for _, ev := range events {
		if err := p.Process(ctx, ev); err != nil {
			t.Fatalf("Process(%v) error = %v", ev.Type, err)
		}
	}

	parts, err := st.MessageParts().ListByMessage(ctx, msg.ID)
	if err != nil {
		t.Fatalf("ListByMessage() error = %v", err)
	}
	if len(parts) != 1 {
		t.Fatalf("len(parts) = %d, want 1 (single coalesced text part)", len(parts))
	}
	var text models.TextContent
	_ = json.Unmarshal(parts[0].Content, &text)
	if text.Text != "Hello, world." {
		t.Errorf("coalesced text = %q, want %q", text.Text, "Hello, world.")
	}

	finalized, err := st.Messages().ListBySession(ctx, session.ID)
	if err != nil || len(finalized) != 1 {
		t.Fatalf("ListBySession() = %v, %v", finalized, err)
	}
	got := finalized[0]
	if got.FinishReason != models.FinishStop {
		t.Errorf("FinishReason = %v, want stop", got.FinishReason)
	}
	wantCost := 10*0.001 + 20*0.002
	if got.Cost != wantCost {
		t.Errorf("Cost = %v, want %v", got.Cost, wantCost)
	}

	sess, _ := st.Sessions().Get(ctx, session.ID)
	if sess.TokensInput != 10 || sess.TokensOutput != 20 {
		t.Errorf("session stats = in:%d out:%d, want in:10 out:20", sess.TokensInput, sess.TokensOutput)
	}
}

func TestProcessorSingleToolCallRound(t *testing.T) {
	st := store.NewMemoryStore()
	session := newTestSession(t, st)
	msg := newTestMessage(t, st, session.ID)

	p := New(st.MessageParts(), st.Messages(), st.Sessions(), nil, nil, fixedCost,
		"proj1", session.ID, msg.ID, models.VendorAnthropic, "claude-sonnet-4-20250514")

	ctx := context.Background()
	toolInput := json.RawMessage(`{"path":"foo.go"}`)
	events := []llmevent.Event{
		{Type: llmevent.TypeToolCall, ToolCallID: "call1", ToolName: "read", ToolInput: toolInput},
		{Type: llmevent.TypeToolResult, ToolCallID: "call1", ToolName: "read", ToolResult: "file contents"},
		{Type: llmevent.TypeFinish, FinishReason: "stop", Usage: llmevent.Usage{InputTokens: 5, OutputTokens: 5}},
	}
	for _, ev := range events {
		if err := p.Process(ctx, ev); err != nil {
			t.Fatalf("Process(%v) error = %v", ev.Type, err)
		}
	}

	parts, err := st.MessageParts().ListByMessage(ctx, msg.ID)
	if err != nil {
		t.Fatalf("ListByMessage() error = %v", err)
	}
	if len(parts) != 2 {
		t.Fatalf("len(parts) = %d, want 2 (tool-call, tool-result)", len(parts))
	}
	if parts[0].Type != models.PartToolCall || parts[0].Status != models.ToolCompleted {
		t.Errorf("parts[0] = %+v, want completed tool-call", parts[0])
	}
	if parts[1].Type != models.PartToolResult {
		t.Errorf("parts[1].Type = %v, want tool-result", parts[1].Type)
	}
}

func TestProcessorErrorMidStreamMarksRunningToolsAsError(t *testing.T) {
	st := store.NewMemoryStore()
	session := newTestSession(t, st)
	msg := newTestMessage(t, st, session.ID)

	p := New(st.MessageParts(), st.Messages(), st.Sessions(), nil, nil, fixedCost,
		"proj1", session.ID, msg.ID, models.VendorAnthropic, "claude-sonnet-4-20250514")

	ctx := context.Background()
	if err := p.Process(ctx, llmevent.Event{Type: llmevent.TypeToolCall, ToolCallID: "call1", ToolName: "read", ToolInput: json.RawMessage(`{}`)}); err != nil {
		t.Fatalf("Process(tool-call) error = %v", err)
	}
	if err := p.Process(ctx, llmevent.Event{Type: llmevent.TypeError, Err: errBoom}); err != nil {
		t.Fatalf("Process(error) error = %v", err)
	}

	parts, err := st.MessageParts().ListByMessage(ctx, msg.ID)
	if err != nil {
		t.Fatalf("ListByMessage() error = %v", err)
	}
	if parts[0].Status != models.ToolError {
		t.Errorf("dangling tool-call Status = %v, want error", parts[0].Status)
	}

	finalized, _ := st.Messages().ListBySession(ctx, session.ID)
	if finalized[0].FinishReason != models.FinishError {
		t.Errorf("FinishReason = %v, want error", finalized[0].FinishReason)
	}
	if finalized[0].Error == nil {
		t.Fatalf("Error = nil, want populated MessageError")
	}
}

func TestProcessorRejectsEventsAfterFinish(t *testing.T) {
	st := store.NewMemoryStore()
	session := newTestSession(t, st)
	msg := newTestMessage(t, st, session.ID)

	p := New(st.MessageParts(), st.Messages(), st.Sessions(), nil, nil, fixedCost,
		"proj1", session.ID, msg.ID, models.VendorAnthropic, "claude-sonnet-4-20250514")

	ctx := context.Background()
	_ = p.Process(ctx, llmevent.Event{Type: llmevent.TypeFinish, FinishReason: "stop"})

	if err := p.Process(ctx, llmevent.Event{Type: llmevent.TypeTextDelta, TextDelta: "late"}); err == nil {
		t.Fatalf("Process() after finish error = nil, want error")
	}
}

var errBoom = &boomError{}

type boomError struct{}

func (e *boomError) Error() string { return "boom" }
