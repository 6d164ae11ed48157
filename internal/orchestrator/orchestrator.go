// Package orchestrator drives one user turn end to end: it resolves the
// agent and settings, persists the user/assistant message pair, rebuilds
// history, computes the active tool set, assembles the system prompt,
// and drives the model adapter's event stream through a Stream Processor
// bound to the assistant message — looping over tool-call rounds until
// the model stops, a step ceiling is hit, or an error surfaces.
package orchestrator

import (
	"context"
	"encoding/json"
	"sort"

	"go.opentelemetry.io/otel/trace"

	"github.com/agentrun/core/internal/agents"
	"github.com/agentrun/core/internal/errkind"
	"github.com/agentrun/core/internal/eventbus"
	"github.com/agentrun/core/internal/llmevent"
	"github.com/agentrun/core/internal/providers"
	"github.com/agentrun/core/internal/store"
	"github.com/agentrun/core/internal/stream"
	"github.com/agentrun/core/internal/telemetry"
	"github.com/agentrun/core/internal/toolset"
	"github.com/agentrun/core/pkg/models"
)

// defaultStepCeiling is the hard default applied when neither the request
// nor the agent definition names one.
const defaultStepCeiling = 10

// Request is everything one call to Run needs. Credential is expected to
// already be resolved (by a Credential Resolver upstream of this call) —
// the orchestrator never talks to a credential store itself.
type Request struct {
	ProjectID          string
	ProjectRoot        string
	SessionID          string
	UserID             string
	AllowCodeExecution bool
	Utterance          string

	Vendor     models.Vendor // "" -> resolved from agent/session default
	Model      string        // "" -> resolved from agent/session default
	Credential *models.Credential

	AgentName string // "" -> session agent -> "default"

	PromptOverride      string
	StepCeilingOverride int
	Temperature         *float64
	TopP                *float64

	ToolAllowList []string

	ProjectContext    string
	SkillSummaries    []string
	ExtraInstructions string
}

// Orchestrator wires together the registries and stores one turn touches.
type Orchestrator struct {
	store     store.Store
	agents    *agents.Registry
	providers *providers.Registry
	tools     *toolset.Registry
	bus       eventbus.Bus
	metrics   *eventbus.Metrics
	tracer    *telemetry.Tracer

	dispatcher TaskDispatcher
}

// SetTracer wires an OpenTelemetry tracer in after construction. A nil
// tracer (the default) means Run and tool invocations are untraced.
func (o *Orchestrator) SetTracer(t *telemetry.Tracer) {
	o.tracer = t
}

// New builds an Orchestrator. The task dispatcher is wired afterwards via
// SetDispatcher, once the Sub-Agent Runner that implements it exists.
func New(st store.Store, agentRegistry *agents.Registry, providerRegistry *providers.Registry, toolRegistry *toolset.Registry, bus eventbus.Bus, metrics *eventbus.Metrics) *Orchestrator {
	return &Orchestrator{
		store:     st,
		agents:    agentRegistry,
		providers: providerRegistry,
		tools:     toolRegistry,
		bus:       bus,
		metrics:   metrics,
	}
}

// Run drives one turn to completion and returns its terminal result.
func (o *Orchestrator) Run(ctx context.Context, req Request) (*models.TurnResult, error) {
	session, err := o.store.Sessions().Get(ctx, req.SessionID)
	if err != nil {
		return nil, err
	}

	agentName := req.AgentName
	if agentName == "" {
		agentName = session.Agent
	}
	if agentName == "" {
		agentName = "default"
	}
	def, err := o.agents.Resolve(agentName)
	if err != nil {
		return nil, err
	}

	if o.tracer != nil {
		var span trace.Span
		ctx, span = o.tracer.StartTurn(ctx, req.SessionID, agentName)
		defer span.End()
	}

	vendor := req.Vendor
	if vendor == "" && def.Vendor != "" {
		vendor = models.Vendor(def.Vendor)
	}
	if vendor == "" && session.Vendor != "" {
		vendor = models.Vendor(session.Vendor)
	}
	model := req.Model
	if model == "" {
		model = def.Model
	}
	if model == "" {
		model = session.Model
	}
	stepCeiling := req.StepCeilingOverride
	if stepCeiling <= 0 {
		stepCeiling = def.StepCeiling
	}
	if stepCeiling <= 0 {
		stepCeiling = defaultStepCeiling
	}
	temperature := req.Temperature
	if temperature == nil {
		temperature = def.Temperature
	}
	topP := req.TopP
	if topP == nil {
		topP = def.TopP
	}

	// Rebuild history from messages that exist prior to this turn, before
	// persisting anything new — the fresh utterance is appended from the
	// raw argument, never from what we are about to write to the store.
	history, err := loadPriorHistory(ctx, o.store.Messages(), o.store.MessageParts(), req.SessionID)
	if err != nil {
		return nil, err
	}
	history = append(history, llmevent.Message{Role: string(models.RoleUser), Content: req.Utterance})

	userMsg := &models.Message{SessionID: req.SessionID, Role: models.RoleUser}
	if err := o.store.Messages().Create(ctx, userMsg); err != nil {
		return nil, err
	}
	userTextContent, _ := json.Marshal(models.TextContent{Text: req.Utterance})
	if err := o.store.MessageParts().Create(ctx, &models.MessagePart{
		MessageID: userMsg.ID,
		SessionID: req.SessionID,
		Type:      models.PartText,
		Content:   userTextContent,
	}); err != nil {
		return nil, err
	}
	msgCountDelta := 1
	if err := o.store.Sessions().UpdateStats(ctx, req.SessionID, models.SessionStatsDelta{MessageCount: &msgCountDelta}); err != nil {
		return nil, err
	}

	assistantMsg := &models.Message{
		SessionID: req.SessionID,
		Role:      models.RoleAssistant,
		ParentID:  userMsg.ID,
		Vendor:    string(vendor),
		Model:     model,
		Agent:     agentName,
	}
	if err := o.store.Messages().Create(ctx, assistantMsg); err != nil {
		return nil, err
	}
	o.broadcastCreated(req.ProjectID, req.SessionID, assistantMsg.ID)

	activeTools := o.computeToolSet(def, req.ToolAllowList, req.AllowCodeExecution)
	toolDescriptors := o.tools.Tools(activeTools)

	system := buildSystemPrompt(firstNonEmpty(req.PromptOverride, def.PromptFragment), req)

	adapter, err := o.providers.Get(vendor)
	if err != nil {
		o.finalizeError(ctx, assistantMsg.ID, err)
		return nil, err
	}

	processor := stream.New(o.store.MessageParts(), o.store.Messages(), o.store.Sessions(), o.bus, o.metrics,
		o.providers.ComputeCost, req.ProjectID, req.SessionID, assistantMsg.ID, vendor, model)

	toolCtx := withToolExec(ctx, ToolExecContext{
		ProjectID:   req.ProjectID,
		ProjectRoot: req.ProjectRoot,
		SessionID:   req.SessionID,
		MessageID:   assistantMsg.ID,
		UserID:      req.UserID,
	})
	dispatchCtx := DispatchContext{
		ParentSessionID:    req.SessionID,
		ProjectID:          req.ProjectID,
		ProjectRoot:        req.ProjectRoot,
		UserID:             req.UserID,
		Vendor:             vendor,
		Model:              model,
		AllowCodeExecution: req.AllowCodeExecution,
	}

	streamReq := llmevent.StreamRequest{
		System:      system,
		Messages:    history,
		Tools:       toolDescriptors,
		MaxSteps:    stepCeiling,
		Temperature: temperature,
		TopP:        topP,
	}

	var usage llmevent.Usage
	sawNaturalFinish := false

	for step := 0; ; step++ {
		events, err := adapter.Stream(ctx, req.Credential, model, streamReq)
		if err != nil {
			o.finalizeError(ctx, assistantMsg.ID, err)
			return nil, err
		}

		var round []toolRoundEntry
		var finishEvent *llmevent.Event
		var streamErr error

		for ev := range events {
			switch ev.Type {
			case llmevent.TypeToolCall:
				if err := processor.Process(ctx, ev); err != nil {
					return nil, err
				}
				output, isErr := o.invokeTool(toolCtx, dispatchCtx, ev)
				resultEv := llmevent.Event{
					Type:        llmevent.TypeToolResult,
					ToolCallID:  ev.ToolCallID,
					ToolName:    ev.ToolName,
					ToolResult:  output,
					ToolIsError: isErr,
				}
				if err := processor.Process(ctx, resultEv); err != nil {
					return nil, err
				}
				round = append(round, toolRoundEntry{Name: ev.ToolName, Input: ev.ToolInput, Output: output, IsError: isErr})
			case llmevent.TypeFinish:
				fr := ev
				finishEvent = &fr
				sawNaturalFinish = true
			case llmevent.TypeError:
				streamErr = ev.Err
				sawNaturalFinish = true
				if err := processor.Process(ctx, ev); err != nil {
					return nil, err
				}
			default:
				if err := processor.Process(ctx, ev); err != nil {
					return nil, err
				}
			}
		}

		if streamErr != nil {
			return nil, streamErr
		}
		if finishEvent == nil {
			// Stream closed with neither finish nor error — only a
			// cancelled context gets here.
			break
		}

		usage.InputTokens += finishEvent.Usage.InputTokens
		usage.OutputTokens += finishEvent.Usage.OutputTokens

		reason := models.NormalizeFinishReason(finishEvent.FinishReason)
		ceilingHit := step+1 >= stepCeiling
		moreRounds := reason == models.FinishToolCalls && len(round) > 0 && !ceilingHit

		if !moreRounds {
			if reason == models.FinishToolCalls && len(round) > 0 && ceilingHit {
				reason = models.FinishLength
			}
			finishEvent.FinishReason = string(reason)
			finishEvent.Usage = usage
			if err := processor.Process(ctx, *finishEvent); err != nil {
				return nil, err
			}
			return &models.TurnResult{
				AssistantMessageID: assistantMsg.ID,
				FinishReason:       reason,
				InputTokens:        usage.InputTokens,
				OutputTokens:       usage.OutputTokens,
				Cost:               o.providers.ComputeCost(vendor, model, usage.InputTokens, usage.OutputTokens),
			}, nil
		}

		streamReq.Messages = appendToolRound(streamReq.Messages, round)
	}

	if !sawNaturalFinish && ctx.Err() != nil {
		o.finalizeError(ctx, assistantMsg.ID, errkind.New(errkind.Cancelled, "turn cancelled"))
		return nil, ctx.Err()
	}
	return &models.TurnResult{AssistantMessageID: assistantMsg.ID, FinishReason: models.FinishStop}, nil
}

func (o *Orchestrator) computeToolSet(def *models.AgentDefinition, allowList []string, allowCodeExecution bool) []string {
	names := o.agents.ResolveToolSet(def)
	if allowList != nil {
		allowed := make(map[string]bool, len(allowList))
		for _, n := range allowList {
			allowed[n] = true
		}
		filtered := names[:0:0]
		for _, n := range names {
			if allowed[n] {
				filtered = append(filtered, n)
			}
		}
		names = filtered
	}
	if !allowCodeExecution {
		filtered := names[:0:0]
		for _, n := range names {
			if !o.tools.RequiresCodeExecution(n) {
				filtered = append(filtered, n)
			}
		}
		names = filtered
	}
	sort.Strings(names)
	return names
}

func (o *Orchestrator) invokeTool(ctx context.Context, dctx DispatchContext, ev llmevent.Event) (result string, isError bool) {
	if o.tracer != nil {
		var span trace.Span
		ctx, span = o.tracer.StartTool(ctx, ev.ToolName, ev.ToolCallID)
		defer span.End()
	}

	if ev.ToolName == toolset.TaskToolName && o.dispatcher != nil {
		var params toolset.TaskToolInput
		if err := json.Unmarshal(ev.ToolInput, &params); err != nil {
			return "invalid task parameters: " + err.Error(), true
		}
		outcome, err := o.dispatcher.Dispatch(ctx, dctx, params)
		if err != nil {
			return err.Error(), true
		}
		encoded, err := json.Marshal(outcome)
		if err != nil {
			return err.Error(), true
		}
		return string(encoded), !outcome.Success
	}

	out, err := o.tools.Invoke(ctx, ev.ToolName, ev.ToolInput)
	if err != nil {
		return err.Error(), true
	}
	return out, false
}

func (o *Orchestrator) finalizeError(ctx context.Context, messageID string, err error) {
	kind := string(errkind.ModelAdapterError)
	if k, ok := errkind.KindOf(err); ok {
		kind = string(k)
	}
	_ = o.store.Messages().Finalize(ctx, messageID, models.FinishError, 0, 0, 0, &models.MessageError{
		Kind:    kind,
		Message: err.Error(),
	})
}

func (o *Orchestrator) broadcastCreated(projectID, sessionID, messageID string) {
	if o.bus == nil {
		return
	}
	defer func() { _ = recover() }()
	o.bus.Publish(projectID, eventbus.Part{Type: "message.created", SessionID: sessionID, MessageID: messageID})
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
