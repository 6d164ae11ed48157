// Package subagent implements the Sub-Agent Runner: the task-tool
// interceptor that creates a child session, builds a restricted
// orchestration for it (no task tool — the recursion guard), and runs it
// either synchronously or as a detached background task tracked in a
// process-wide registry keyed by child-session id.
package subagent

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/agentrun/core/internal/agents"
	"github.com/agentrun/core/internal/errkind"
	"github.com/agentrun/core/internal/orchestrator"
	"github.com/agentrun/core/internal/store"
	"github.com/agentrun/core/internal/toolset"
	"github.com/agentrun/core/pkg/models"
)

// Runner implements orchestrator.TaskDispatcher by running child turns
// through the same Orchestrator the parent turn used.
type Runner struct {
	store   store.Store
	agents  *agents.Registry
	orch    *orchestrator.Orchestrator
	bg      *BackgroundRegistry
}

// New builds a Runner. orch is the same Orchestrator the caller will also
// SetDispatcher(runner) on — the runner calls back into it to drive child
// turns, which is what makes the task tool recurse one level without an
// import cycle (subagent imports orchestrator, never the reverse).
func New(st store.Store, agentRegistry *agents.Registry, orch *orchestrator.Orchestrator) *Runner {
	return &Runner{
		store:  st,
		agents: agentRegistry,
		orch:   orch,
		bg:     NewBackgroundRegistry(),
	}
}

// Background returns the runner's background-task registry.
func (r *Runner) Background() *BackgroundRegistry { return r.bg }

// Dispatch implements orchestrator.TaskDispatcher.
func (r *Runner) Dispatch(ctx context.Context, caller orchestrator.DispatchContext, params toolset.TaskToolInput) (*orchestrator.DispatchResult, error) {
	if params.Resume != "" {
		if r.bg.Get(params.Resume) {
			return &orchestrator.DispatchResult{SessionID: params.Resume, Success: true, Response: "already running in background"}, nil
		}
		// Not tracked any more — either it already finished or the id is
		// stale. Either way there is no duplicate to avoid spawning, and
		// the caller's session record (out of this module's scope) is
		// the source of truth for the finished child's outcome.
		return &orchestrator.DispatchResult{SessionID: params.Resume, Success: false, Error: "no running background task for " + params.Resume}, nil
	}

	if params.SubagentType == "" {
		return nil, errkind.New(errkind.AgentNotFound, "task tool: subagentType is required")
	}
	if params.Prompt == "" {
		return nil, errkind.New(errkind.ToolInvocationError, "task tool: prompt is required")
	}

	def, err := r.agents.Resolve(params.SubagentType)
	if err != nil {
		// A structured failure result for the calling tool, not an abort
		// of the parent turn.
		return &orchestrator.DispatchResult{Success: false, Error: err.Error()}, nil
	}
	if !def.CanBeSubagent() {
		return &orchestrator.DispatchResult{Success: false, Error: "agent " + params.SubagentType + " cannot run as a sub-agent"}, nil
	}

	title := params.Description
	if title == "" {
		title = params.SubagentType + ": " + truncate(params.Prompt, 60)
	}

	vendor := caller.Vendor
	model := caller.Model
	if def.Vendor != "" {
		vendor = models.Vendor(def.Vendor)
	}
	if def.Model != "" {
		model = def.Model
	}
	if params.Model != "" {
		model = params.Model
	}

	child := &models.Session{
		ProjectID:       caller.ProjectID,
		Agent:           params.SubagentType,
		Vendor:          string(vendor),
		Model:           model,
		ParentSessionID: caller.ParentSessionID,
		Title:           title,
	}
	if err := r.store.Sessions().Create(ctx, child); err != nil {
		return nil, err
	}

	req := orchestrator.Request{
		ProjectID:           caller.ProjectID,
		ProjectRoot:         caller.ProjectRoot,
		SessionID:           child.ID,
		UserID:              caller.UserID,
		AllowCodeExecution:  caller.AllowCodeExecution,
		Utterance:           params.Prompt,
		Vendor:              vendor,
		Model:               model,
		AgentName:           params.SubagentType,
		StepCeilingOverride: params.MaxTurns,
		// The task tool is always excluded from a child's active set —
		// the recursion guard. Agents with no explicit tool list resolve
		// to the full registry; excluding "task" here caps the tree at
		// depth two no matter what the child agent declares.
		ToolAllowList: excludeTaskTool(r.agents.ResolveToolSet(def)),
	}

	if params.RunInBackground {
		cancelCtx, cancel := context.WithCancel(context.Background())
		r.bg.start(child.ID, cancel)
		go func() {
			_, _ = r.orch.Run(cancelCtx, req)
			r.bg.finish(child.ID)
		}()
		return &orchestrator.DispatchResult{SessionID: child.ID, Success: true, Response: "started in background"}, nil
	}

	result, err := r.orch.Run(ctx, req)
	if err != nil {
		return &orchestrator.DispatchResult{SessionID: child.ID, Success: false, Error: err.Error()}, nil
	}

	response, err := concatFinalText(ctx, r.store, result.AssistantMessageID)
	if err != nil {
		return &orchestrator.DispatchResult{SessionID: child.ID, Success: false, Error: err.Error()}, nil
	}

	return &orchestrator.DispatchResult{
		SessionID: child.ID,
		Success:   result.FinishReason != models.FinishError,
		Response:  response,
		Usage:     result,
	}, nil
}

func excludeTaskTool(names []string) []string {
	out := make([]string, 0, len(names))
	for _, n := range names {
		if n != toolset.TaskToolName {
			out = append(out, n)
		}
	}
	return out
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "…"
}

func concatFinalText(ctx context.Context, st store.Store, messageID string) (string, error) {
	parts, err := st.MessageParts().ListByMessage(ctx, messageID)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	for _, p := range parts {
		if p.Type != models.PartText || len(p.Content) == 0 {
			continue
		}
		var tc models.TextContent
		if err := json.Unmarshal(p.Content, &tc); err == nil {
			b.WriteString(tc.Text)
		}
	}
	return b.String(), nil
}
