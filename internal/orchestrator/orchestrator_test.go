package orchestrator

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/agentrun/core/internal/agents"
	"github.com/agentrun/core/internal/llmevent"
	"github.com/agentrun/core/internal/providers"
	"github.com/agentrun/core/internal/store"
	"github.com/agentrun/core/internal/toolset"
	"github.com/agentrun/core/pkg/models"
)

// scriptedAdapter replays one pre-built event stream per call to Stream, in
// order, so a test can script a multi-round tool-calling exchange.
type scriptedAdapter struct {
	vendor models.Vendor
	rounds [][]llmevent.Event
	calls  int
}

func (a *scriptedAdapter) Vendor() models.Vendor { return a.vendor }

func (a *scriptedAdapter) Stream(ctx context.Context, cred *models.Credential, model string, req llmevent.StreamRequest) (llmevent.Stream, error) {
	if a.calls >= len(a.rounds) {
		panic("scriptedAdapter: more Stream calls than scripted rounds")
	}
	round := a.rounds[a.calls]
	a.calls++
	ch := make(chan llmevent.Event, len(round))
	for _, ev := range round {
		ch <- ev
	}
	close(ch)
	return ch, nil
}

func newTestOrchestrator(t *testing.T, adapter providers.Adapter) (*Orchestrator, *store.MemoryStore, *models.Session) {
	t.Helper()
	st := store.NewMemoryStore()
	session := &models.Session{ProjectID: "proj1"}
	if err := st.Sessions().Create(context.Background(), session); err != nil {
		t.Fatalf("Sessions().Create() error = %v", err)
	}

	agentRegistry := agents.NewRegistry([]*models.AgentDefinition{
		{Name: "default", Mode: models.AgentModeAll, BuiltIn: true},
	}, []string{"read"})

	toolRegistry := toolset.NewRegistry()
	_ = toolRegistry.Register(&toolset.Binding{
		Name:   "read",
		Schema: json.RawMessage(`{"type":"object"}`),
		Call: func(ctx context.Context, raw json.RawMessage) (string, error) {
			return "file contents", nil
		},
	})

	providerRegistry := providers.NewRegistry(adapter)
	o := New(st, agentRegistry, providerRegistry, toolRegistry, nil, nil)
	return o, st, session
}

func TestRunSimpleStop(t *testing.T) {
	adapter := &scriptedAdapter{
		vendor: models.VendorAnthropic,
		rounds: [][]llmevent.Event{
			{
				{Type: llmevent.TypeTextDelta, TextDelta: "hi there"},
				{Type: llmevent.TypeFinish, FinishReason: "stop", Usage: llmevent.Usage{InputTokens: 3, OutputTokens: 4}},
			},
		},
	}
	o, st, session := newTestOrchestrator(t, adapter)

	result, err := o.Run(context.Background(), Request{
		SessionID: session.ID, ProjectID: "proj1", Utterance: "hello", Vendor: models.VendorAnthropic, Model: "claude-sonnet-4-20250514",
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if result.FinishReason != models.FinishStop {
		t.Errorf("FinishReason = %v, want stop", result.FinishReason)
	}
	if adapter.calls != 1 {
		t.Errorf("adapter called %d times, want 1 for a finish with no tool calls", adapter.calls)
	}

	msgs, err := st.Messages().ListBySession(context.Background(), session.ID)
	if err != nil {
		t.Fatalf("ListBySession() error = %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("len(msgs) = %d, want 2 (user + assistant)", len(msgs))
	}

	sess, _ := st.Sessions().Get(context.Background(), session.ID)
	if sess.MessageCount != 1 {
		t.Errorf("session.MessageCount = %d, want 1", sess.MessageCount)
	}
}

func TestRunToolCallRoundContinuesThenStops(t *testing.T) {
	adapter := &scriptedAdapter{
		vendor: models.VendorAnthropic,
		rounds: [][]llmevent.Event{
			{
				{Type: llmevent.TypeToolCall, ToolCallID: "c1", ToolName: "read", ToolInput: json.RawMessage(`{}`)},
				{Type: llmevent.TypeFinish, FinishReason: "tool-calls", Usage: llmevent.Usage{InputTokens: 2, OutputTokens: 2}},
			},
			{
				{Type: llmevent.TypeTextDelta, TextDelta: "done"},
				{Type: llmevent.TypeFinish, FinishReason: "stop", Usage: llmevent.Usage{InputTokens: 1, OutputTokens: 1}},
			},
		},
	}
	o, _, session := newTestOrchestrator(t, adapter)

	result, err := o.Run(context.Background(), Request{
		SessionID: session.ID, ProjectID: "proj1", Utterance: "read the file", Vendor: models.VendorAnthropic, Model: "claude-sonnet-4-20250514",
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if result.FinishReason != models.FinishStop {
		t.Errorf("FinishReason = %v, want stop", result.FinishReason)
	}
	if adapter.calls != 2 {
		t.Errorf("adapter called %d times, want 2 (one per round)", adapter.calls)
	}
	if result.InputTokens != 3 || result.OutputTokens != 3 {
		t.Errorf("usage = in:%d out:%d, want accumulated in:3 out:3", result.InputTokens, result.OutputTokens)
	}
}

func TestRunStepCeilingForcesLengthFinish(t *testing.T) {
	toolCallRound := []llmevent.Event{
		{Type: llmevent.TypeToolCall, ToolCallID: "c1", ToolName: "read", ToolInput: json.RawMessage(`{}`)},
		{Type: llmevent.TypeFinish, FinishReason: "tool-calls", Usage: llmevent.Usage{InputTokens: 1, OutputTokens: 1}},
	}
	adapter := &scriptedAdapter{
		vendor: models.VendorAnthropic,
		rounds: [][]llmevent.Event{toolCallRound, toolCallRound},
	}
	o, _, session := newTestOrchestrator(t, adapter)

	result, err := o.Run(context.Background(), Request{
		SessionID: session.ID, ProjectID: "proj1", Utterance: "loop forever", Vendor: models.VendorAnthropic, Model: "claude-sonnet-4-20250514",
		StepCeilingOverride: 2,
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if result.FinishReason != models.FinishLength {
		t.Errorf("FinishReason = %v, want length when the step ceiling is hit mid tool-call", result.FinishReason)
	}
	if adapter.calls != 2 {
		t.Errorf("adapter called %d times, want 2 (step ceiling caps at 2)", adapter.calls)
	}
}

func TestRunUnknownVendorFinalizesError(t *testing.T) {
	adapter := &scriptedAdapter{vendor: models.VendorAnthropic}
	o, st, session := newTestOrchestrator(t, adapter)

	_, err := o.Run(context.Background(), Request{
		SessionID: session.ID, ProjectID: "proj1", Utterance: "hi", Vendor: models.VendorOpenAI, Model: "gpt-4o",
	})
	if err == nil {
		t.Fatalf("Run() error = nil, want error for an unregistered vendor")
	}

	msgs, _ := st.Messages().ListBySession(context.Background(), session.ID)
	if len(msgs) != 2 {
		t.Fatalf("len(msgs) = %d, want 2", len(msgs))
	}
	assistant := msgs[1]
	if assistant.FinishReason != models.FinishError || assistant.Error == nil {
		t.Errorf("assistant message = %+v, want finalized with an error", assistant)
	}
}
