package subagent

import (
	"context"
	"testing"
	"time"

	"github.com/agentrun/core/internal/agents"
	"github.com/agentrun/core/internal/llmevent"
	"github.com/agentrun/core/internal/orchestrator"
	"github.com/agentrun/core/internal/providers"
	"github.com/agentrun/core/internal/store"
	"github.com/agentrun/core/internal/toolset"
	"github.com/agentrun/core/pkg/models"
)

type scriptedAdapter struct {
	vendor models.Vendor
	events []llmevent.Event
}

func (a *scriptedAdapter) Vendor() models.Vendor { return a.vendor }

func (a *scriptedAdapter) Stream(ctx context.Context, cred *models.Credential, model string, req llmevent.StreamRequest) (llmevent.Stream, error) {
	ch := make(chan llmevent.Event, len(a.events))
	for _, ev := range a.events {
		ch <- ev
	}
	close(ch)
	return ch, nil
}

func newTestRunner(t *testing.T, adapter providers.Adapter, subagentDef *models.AgentDefinition) (*Runner, *store.MemoryStore) {
	t.Helper()
	st := store.NewMemoryStore()
	agentRegistry := agents.NewRegistry([]*models.AgentDefinition{subagentDef}, []string{"read", toolset.TaskToolName})
	toolRegistry := toolset.NewRegistry()
	providerRegistry := providers.NewRegistry(adapter)
	orch := orchestrator.New(st, agentRegistry, providerRegistry, toolRegistry, nil, nil)
	runner := New(st, agentRegistry, orch)
	orch.SetDispatcher(runner)
	return runner, st
}

func TestDispatchSyncSuccess(t *testing.T) {
	adapter := &scriptedAdapter{
		vendor: models.VendorAnthropic,
		events: []llmevent.Event{
			{Type: llmevent.TypeTextDelta, TextDelta: "child result"},
			{Type: llmevent.TypeFinish, FinishReason: "stop", Usage: llmevent.Usage{InputTokens: 1, OutputTokens: 1}},
		},
	}
	def := &models.AgentDefinition{Name: "explore", Mode: models.AgentModeSubagent}
	runner, _ := newTestRunner(t, adapter, def)

	caller := orchestrator.DispatchContext{ParentSessionID: "parent1", ProjectID: "proj1", Vendor: models.VendorAnthropic, Model: "claude-sonnet-4-20250514"}
	result, err := runner.Dispatch(context.Background(), caller, toolset.TaskToolInput{SubagentType: "explore", Prompt: "look around"})
	if err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	if !result.Success {
		t.Fatalf("Dispatch() Success = false, want true; Error = %q", result.Error)
	}
	if result.Response != "child result" {
		t.Errorf("Dispatch() Response = %q, want %q", result.Response, "child result")
	}
	if result.SessionID == "" {
		t.Errorf("Dispatch() SessionID is empty")
	}
}

func TestDispatchUnknownAgentIsStructuredFailure(t *testing.T) {
	def := &models.AgentDefinition{Name: "explore", Mode: models.AgentModeSubagent}
	runner, _ := newTestRunner(t, &scriptedAdapter{vendor: models.VendorAnthropic}, def)

	result, err := runner.Dispatch(context.Background(), orchestrator.DispatchContext{}, toolset.TaskToolInput{SubagentType: "nonexistent", Prompt: "x"})
	if err != nil {
		t.Fatalf("Dispatch() error = %v, want nil with a structured failure", err)
	}
	if result.Success {
		t.Errorf("Dispatch() Success = true, want false for an unresolvable agent")
	}
}

func TestDispatchRejectsPrimaryOnlyAgentAsSubagent(t *testing.T) {
	def := &models.AgentDefinition{Name: "primaryOnly", Mode: models.AgentModePrimary}
	runner, _ := newTestRunner(t, &scriptedAdapter{vendor: models.VendorAnthropic}, def)

	result, err := runner.Dispatch(context.Background(), orchestrator.DispatchContext{}, toolset.TaskToolInput{SubagentType: "primaryOnly", Prompt: "x"})
	if err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	if result.Success {
		t.Errorf("Dispatch() Success = true, want false for a primary-only agent")
	}
}

func TestDispatchMissingPromptIsAnError(t *testing.T) {
	def := &models.AgentDefinition{Name: "explore", Mode: models.AgentModeSubagent}
	runner, _ := newTestRunner(t, &scriptedAdapter{vendor: models.VendorAnthropic}, def)

	_, err := runner.Dispatch(context.Background(), orchestrator.DispatchContext{}, toolset.TaskToolInput{SubagentType: "explore"})
	if err == nil {
		t.Fatalf("Dispatch() error = nil, want error for a missing prompt")
	}
}

func TestExcludeTaskToolDropsOnlyTheTaskTool(t *testing.T) {
	got := excludeTaskTool([]string{"read", toolset.TaskToolName, "write"})
	if len(got) != 2 || got[0] != "read" || got[1] != "write" {
		t.Errorf("excludeTaskTool() = %v, want [read write]", got)
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("short", 10); got != "short" {
		t.Errorf("truncate() = %q, want unchanged %q", got, "short")
	}
	if got := truncate("this is a long prompt", 7); got != "this is…" {
		t.Errorf("truncate() = %q, want %q", got, "this is…")
	}
}

func TestDispatchBackgroundSucceedsAndDeregistersWhenDone(t *testing.T) {
	adapter := &scriptedAdapter{
		vendor: models.VendorAnthropic,
		events: []llmevent.Event{
			{Type: llmevent.TypeTextDelta, TextDelta: "background done"},
			{Type: llmevent.TypeFinish, FinishReason: "stop"},
		},
	}
	def := &models.AgentDefinition{Name: "explore", Mode: models.AgentModeSubagent}
	runner, _ := newTestRunner(t, adapter, def)

	result, err := runner.Dispatch(context.Background(), orchestrator.DispatchContext{ProjectID: "proj1", Vendor: models.VendorAnthropic, Model: "claude-sonnet-4-20250514"},
		toolset.TaskToolInput{SubagentType: "explore", Prompt: "go", RunInBackground: true})
	if err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	if !result.Success {
		t.Errorf("Dispatch() Success = false, want true for a started background task")
	}

	deadline := time.Now().Add(2 * time.Second)
	for runner.Background().Get(result.SessionID) && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if runner.Background().Get(result.SessionID) {
		t.Fatalf("background task %s still running after deadline", result.SessionID)
	}
}

func TestDispatchResumeUnknownSessionIsFailure(t *testing.T) {
	def := &models.AgentDefinition{Name: "explore", Mode: models.AgentModeSubagent}
	runner, _ := newTestRunner(t, &scriptedAdapter{vendor: models.VendorAnthropic}, def)

	result, err := runner.Dispatch(context.Background(), orchestrator.DispatchContext{}, toolset.TaskToolInput{Resume: "ghost-session"})
	if err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	if result.Success {
		t.Errorf("Dispatch() Success = true, want false for an unknown resume id")
	}
}
