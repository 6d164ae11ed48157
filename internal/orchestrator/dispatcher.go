package orchestrator

import (
	"context"

	"github.com/agentrun/core/internal/toolset"
	"github.com/agentrun/core/pkg/models"
)

// TaskDispatcher is the seam the Sub-Agent Runner implements. The
// orchestrator depends only on this interface, never on the runner's
// package — the runner is the one that imports internal/orchestrator to
// drive a child turn, not the other way around, so this stays acyclic.
type TaskDispatcher interface {
	Dispatch(ctx context.Context, caller DispatchContext, params toolset.TaskToolInput) (*DispatchResult, error)
}

// DispatchContext carries everything about the parent turn the runner
// needs to create and seed a child session, without the runner reaching
// back into the Orchestrator's internals.
type DispatchContext struct {
	ParentSessionID    string
	ProjectID          string
	ProjectRoot        string
	UserID             string
	Vendor             models.Vendor
	Model              string
	AllowCodeExecution bool
}

// DispatchResult is what a task-tool invocation resolves to, whether run
// synchronously or started in the background. It is marshalled verbatim
// as the tool result the model sees.
type DispatchResult struct {
	SessionID string            `json:"sessionId"`
	Success   bool              `json:"success"`
	Response  string            `json:"response"`
	Usage     *models.TurnResult `json:"usage,omitempty"`
	Error     string            `json:"error,omitempty"`
}

// SetDispatcher wires the Sub-Agent Runner in after both it and the
// Orchestrator have been constructed, breaking the construction-order
// cycle between them.
func (o *Orchestrator) SetDispatcher(d TaskDispatcher) {
	o.dispatcher = d
}
