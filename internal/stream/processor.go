// Package stream implements the Stream Processor: the single-writer
// consumer that turns one model adapter's event stream into durable,
// ordered message parts and broadcast events for one assistant message.
package stream

import (
	"context"
	"encoding/json"

	"github.com/agentrun/core/internal/errkind"
	"github.com/agentrun/core/internal/eventbus"
	"github.com/agentrun/core/internal/llmevent"
	"github.com/agentrun/core/internal/store"
	"github.com/agentrun/core/pkg/models"
)

// CostFunc computes a turn's cost from its vendor, model, and usage —
// satisfied by (*providers.Registry).ComputeCost or internal/catalog.ComputeCost.
type CostFunc func(vendor models.Vendor, model string, inputTokens, outputTokens int) float64

// Processor is bound to exactly one assistant message for the lifetime of
// one turn. It is not safe for concurrent Process calls — the orchestrator
// contract guarantees exactly one goroutine drives it.
type Processor struct {
	parts    store.MessageParts
	messages store.Messages
	sessions store.Sessions
	bus      eventbus.Bus
	metrics  *eventbus.Metrics
	cost     CostFunc

	projectID string
	sessionID string
	messageID string
	vendor    models.Vendor
	model     string

	step             int
	openTextPartID   string
	openReasoningID  string
	runningTools     map[string]string // tool call id -> tool-call part id
	finished         bool
}

// New builds a Processor bound to messageID within sessionID/projectID.
func New(parts store.MessageParts, messages store.Messages, sessions store.Sessions, bus eventbus.Bus, metrics *eventbus.Metrics, cost CostFunc, projectID, sessionID, messageID string, vendor models.Vendor, model string) *Processor {
	return &Processor{
		parts:        parts,
		messages:     messages,
		sessions:     sessions,
		bus:          bus,
		metrics:      metrics,
		cost:         cost,
		projectID:    projectID,
		sessionID:    sessionID,
		messageID:    messageID,
		vendor:       vendor,
		model:        model,
		runningTools: map[string]string{},
	}
}

// Process handles one event. It returns an error only for a programming
// misuse (events after finish/error) or a store failure — never for a
// broadcast failure, which this method swallows per the "observer
// failures must not abort processing" rule.
func (p *Processor) Process(ctx context.Context, ev llmevent.Event) error {
	if p.finished {
		return errkind.New(errkind.ModelAdapterError, "stream processor: event received after finish")
	}

	if ev.Type != llmevent.TypeTextDelta && p.openTextPartID != "" {
		p.openTextPartID = ""
	}
	if ev.Type != llmevent.TypeReasoningDelta && p.openReasoningID != "" {
		p.openReasoningID = ""
	}

	switch ev.Type {
	case llmevent.TypeTextDelta:
		return p.handleTextDelta(ctx, ev)
	case llmevent.TypeReasoningDelta:
		return p.handleReasoningDelta(ctx, ev)
	case llmevent.TypeToolInputStart, llmevent.TypeToolInputDelta:
		p.broadcast(ev, "")
		return nil
	case llmevent.TypeToolCall:
		return p.handleToolCall(ctx, ev)
	case llmevent.TypeToolResult:
		return p.handleToolResult(ctx, ev)
	case llmevent.TypeStepStart:
		return p.handleStep(ctx, models.PartStepStart, ev)
	case llmevent.TypeStepFinish:
		return p.handleStep(ctx, models.PartStepFinish, ev)
	case llmevent.TypeFinish:
		return p.handleFinish(ctx, ev)
	case llmevent.TypeError:
		return p.handleError(ctx, ev)
	default:
		return nil
	}
}

func (p *Processor) handleTextDelta(ctx context.Context, ev llmevent.Event) error {
	if p.openTextPartID == "" {
		content, _ := json.Marshal(models.TextContent{Text: ev.TextDelta})
		part := &models.MessagePart{
			MessageID: p.messageID,
			SessionID: p.sessionID,
			Type:      models.PartText,
			Content:   content,
			StepNumber: p.step,
		}
		if err := p.parts.Create(ctx, part); err != nil {
			return err
		}
		p.openTextPartID = part.ID
		p.countPart(models.PartText)
		p.broadcast(ev, part.ID)
		return nil
	}
	if err := p.parts.AppendText(ctx, p.openTextPartID, ev.TextDelta); err != nil {
		return err
	}
	p.broadcast(ev, p.openTextPartID)
	return nil
}

func (p *Processor) handleReasoningDelta(ctx context.Context, ev llmevent.Event) error {
	if p.openReasoningID == "" {
		content, _ := json.Marshal(models.TextContent{Text: ev.ReasoningDelta})
		part := &models.MessagePart{
			MessageID: p.messageID,
			SessionID: p.sessionID,
			Type:      models.PartReasoning,
			Content:   content,
			StepNumber: p.step,
		}
		if err := p.parts.Create(ctx, part); err != nil {
			return err
		}
		p.openReasoningID = part.ID
		p.countPart(models.PartReasoning)
		p.broadcast(ev, part.ID)
		return nil
	}
	if err := p.parts.AppendText(ctx, p.openReasoningID, ev.ReasoningDelta); err != nil {
		return err
	}
	p.broadcast(ev, p.openReasoningID)
	return nil
}

func (p *Processor) handleToolCall(ctx context.Context, ev llmevent.Event) error {
	content, _ := json.Marshal(models.ToolCallContent{Input: ev.ToolInput})
	part := &models.MessagePart{
		MessageID:  p.messageID,
		SessionID:  p.sessionID,
		Type:       models.PartToolCall,
		Content:    content,
		ToolName:   ev.ToolName,
		ToolCallID: ev.ToolCallID,
		Status:     models.ToolRunning,
		StepNumber: p.step,
	}
	if err := p.parts.Create(ctx, part); err != nil {
		return err
	}
	p.runningTools[ev.ToolCallID] = part.ID
	p.countPart(models.PartToolCall)
	p.broadcast(ev, part.ID)
	return nil
}

func (p *Processor) handleToolResult(ctx context.Context, ev llmevent.Event) error {
	content, _ := json.Marshal(models.ToolResultContent{Output: ev.ToolResult, IsError: ev.ToolIsError})
	part := &models.MessagePart{
		MessageID:  p.messageID,
		SessionID:  p.sessionID,
		Type:       models.PartToolResult,
		Content:    content,
		ToolName:   ev.ToolName,
		ToolCallID: ev.ToolCallID,
		Status:     models.ToolCompleted,
		StepNumber: p.step,
	}
	if err := p.parts.Create(ctx, part); err != nil {
		return err
	}
	if callPartID, ok := p.runningTools[ev.ToolCallID]; ok {
		status := models.ToolCompleted
		if ev.ToolIsError {
			status = models.ToolError
		}
		if err := p.parts.SetToolStatus(ctx, callPartID, status); err != nil {
			return err
		}
		delete(p.runningTools, ev.ToolCallID)
	}
	p.countPart(models.PartToolResult)
	if p.metrics != nil {
		status := "success"
		if ev.ToolIsError {
			status = "error"
		}
		p.metrics.ToolCallsTotal.WithLabelValues(ev.ToolName, status).Inc()
	}
	p.broadcast(ev, part.ID)
	return nil
}

func (p *Processor) handleStep(ctx context.Context, partType models.PartType, ev llmevent.Event) error {
	if partType == models.PartStepStart {
		p.step = ev.StepNumber
	}
	part := &models.MessagePart{
		MessageID:  p.messageID,
		SessionID:  p.sessionID,
		Type:       partType,
		StepNumber: p.step,
	}
	if err := p.parts.Create(ctx, part); err != nil {
		return err
	}
	p.countPart(partType)
	p.broadcast(ev, part.ID)
	return nil
}

func (p *Processor) handleFinish(ctx context.Context, ev llmevent.Event) error {
	p.finished = true
	finish := models.NormalizeFinishReason(ev.FinishReason)
	cost := 0.0
	if p.cost != nil {
		cost = p.cost(p.vendor, p.model, ev.Usage.InputTokens, ev.Usage.OutputTokens)
	}

	if err := p.messages.Finalize(ctx, p.messageID, finish, ev.Usage.InputTokens, ev.Usage.OutputTokens, cost, nil); err != nil {
		return err
	}

	tokensIn, tokensOut := ev.Usage.InputTokens, ev.Usage.OutputTokens
	costCopy := cost
	if err := p.sessions.UpdateStats(ctx, p.sessionID, models.SessionStatsDelta{
		TokensInput:  &tokensIn,
		TokensOutput: &tokensOut,
		Cost:         &costCopy,
	}); err != nil {
		return err
	}

	if p.metrics != nil {
		p.metrics.TurnsTotal.WithLabelValues(string(finish)).Inc()
		p.metrics.TokensTotal.WithLabelValues(string(p.vendor), p.model, "input").Add(float64(tokensIn))
		p.metrics.TokensTotal.WithLabelValues(string(p.vendor), p.model, "output").Add(float64(tokensOut))
		p.metrics.CostTotal.WithLabelValues(string(p.vendor), p.model).Add(cost)
	}

	ev.FinishReason = string(finish)
	p.broadcast(ev, "")
	return nil
}

func (p *Processor) handleError(ctx context.Context, ev llmevent.Event) error {
	p.finished = true
	for toolCallID, partID := range p.runningTools {
		if err := p.parts.SetToolStatus(ctx, partID, models.ToolError); err != nil {
			return err
		}
		delete(p.runningTools, toolCallID)
	}

	msg := "stream error"
	if ev.Err != nil {
		msg = ev.Err.Error()
	}
	kind := "ModelAdapterError"
	if ev.Err != nil {
		if k, ok := errkind.KindOf(ev.Err); ok {
			kind = string(k)
		}
	}
	if err := p.messages.Finalize(ctx, p.messageID, models.FinishError, 0, 0, 0, &models.MessageError{Kind: kind, Message: msg}); err != nil {
		return err
	}

	if p.metrics != nil {
		p.metrics.TurnsTotal.WithLabelValues(string(models.FinishError)).Inc()
	}
	ev.Err = nil
	p.broadcast(ev, "")
	return nil
}

func (p *Processor) countPart(t models.PartType) {
	if p.metrics != nil {
		p.metrics.PartsTotal.WithLabelValues(string(t)).Inc()
	}
}

func (p *Processor) broadcast(ev llmevent.Event, partID string) {
	if p.bus == nil {
		return
	}
	defer func() { _ = recover() }()
	p.bus.Publish(p.projectID, eventbus.Part{
		Type:         string(ev.Type),
		SessionID:    p.sessionID,
		MessageID:    p.messageID,
		PartID:       partID,
		ToolCallID:   ev.ToolCallID,
		ToolName:     ev.ToolName,
		Text:         ev.TextDelta + ev.ReasoningDelta,
		StepNumber:   ev.StepNumber,
		FinishReason: ev.FinishReason,
		Error:        errString(ev.Err),
	})
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
