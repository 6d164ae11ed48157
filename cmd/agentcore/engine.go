package main

import (
	"context"
	"encoding/json"

	"github.com/agentrun/core/internal/agents"
	"github.com/agentrun/core/internal/credentials"
	"github.com/agentrun/core/internal/eventbus"
	"github.com/agentrun/core/internal/orchestrator"
	"github.com/agentrun/core/internal/providers"
	"github.com/agentrun/core/internal/store"
	"github.com/agentrun/core/internal/subagent"
	"github.com/agentrun/core/internal/toolset"
	"github.com/agentrun/core/pkg/models"
)

// stubVendor is the vendor name the scripted adapter answers to; any
// agent definition must name this to reach it.
const stubVendor = models.VendorAnthropic

// builtinAgents returns the default agent roster every invocation starts
// from; --agents-dir definitions are added alongside it and may not reuse
// these names.
func builtinAgents() []*models.AgentDefinition {
	return []*models.AgentDefinition{
		{
			Name:           "default",
			Description:    "General-purpose primary agent with the full tool set.",
			Mode:           models.AgentModeAll,
			Vendor:         string(stubVendor),
			PromptFragment: "You are a careful, concise coding assistant.",
			BuiltIn:        true,
		},
		{
			Name:           "explore",
			Description:    "Read-only sub-agent for codebase exploration.",
			Mode:           models.AgentModeSubagent,
			Vendor:         string(stubVendor),
			Tools:          []string{"read", "grep"},
			PromptFragment: "You may only read and search; never modify files.",
			BuiltIn:        true,
		},
	}
}

func stubToolBindings() []*toolset.Binding {
	return []*toolset.Binding{
		{
			Name:        "read",
			Description: "Read a file's contents.",
			Schema:      json.RawMessage(`{"type":"object","properties":{"path":{"type":"string"}},"required":["path"]}`),
			Call: func(ctx context.Context, raw json.RawMessage) (string, error) {
				return "stub: read tool is not wired to a filesystem in the smoke-test harness", nil
			},
		},
		{
			Name:        "grep",
			Description: "Search file contents for a pattern.",
			Schema:      json.RawMessage(`{"type":"object","properties":{"pattern":{"type":"string"}},"required":["pattern"]}`),
			Call: func(ctx context.Context, raw json.RawMessage) (string, error) {
				return "stub: grep tool is not wired to a filesystem in the smoke-test harness", nil
			},
		},
	}
}

// engine bundles the wired registries one CLI invocation needs.
type engine struct {
	store     store.Store
	agents    *agents.Registry
	tools     *toolset.Registry
	providers *providers.Registry
	bus       *eventbus.InMemory
	orch      *orchestrator.Orchestrator
	subrunner *subagent.Runner
	resolver  *credentials.Resolver
}

func buildEngine(agentsDir string) (*engine, error) {
	toolNames := []string{"read", "grep"}
	reg := agents.NewRegistry(builtinAgents(), toolNames)
	if agentsDir != "" {
		if err := reg.LoadProjectDefinitions(agentsDir); err != nil {
			return nil, err
		}
	}

	tools := toolset.NewRegistry()
	for _, b := range stubToolBindings() {
		if err := tools.Register(b); err != nil {
			return nil, err
		}
	}

	providerRegistry := providers.NewRegistry(&stubAdapter{vendor: stubVendor})

	st := store.NewMemoryStore()
	bus := eventbus.NewInMemory()

	orch := orchestrator.New(st, reg, providerRegistry, tools, bus, nil)
	runner := subagent.New(st, reg, orch)
	orch.SetDispatcher(runner)

	resolver := credentials.NewResolver(st.Credentials(), credentials.WithStaticKey(stubVendor, "stub-key"))

	return &engine{
		store:     st,
		agents:    reg,
		tools:     tools,
		providers: providerRegistry,
		bus:       bus,
		orch:      orch,
		subrunner: runner,
		resolver:  resolver,
	}, nil
}
