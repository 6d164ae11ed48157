package toolset

import (
	"encoding/json"

	"github.com/invopop/jsonschema"
)

// TaskToolName is the reserved name of the core-owned tool the Sub-Agent
// Runner intercepts; it never reaches the toolset registry's Invoke path
// because the orchestrator dispatches it before consulting the registry.
const TaskToolName = "task"

// TaskToolInput is the parameter struct the model fills in to spawn a
// sub-agent. Its JSON Schema is generated, not hand-written, so the
// schema and the Go struct the orchestrator decodes into can never drift.
type TaskToolInput struct {
	SubagentType    string `json:"subagentType" jsonschema:"required,description=Name of the agent definition to run as a sub-agent"`
	Description     string `json:"description,omitempty" jsonschema:"description=Short human-readable label for the spawned task"`
	Prompt          string `json:"prompt" jsonschema:"required,description=The task prompt to hand to the sub-agent"`
	MaxTurns        int    `json:"maxTurns,omitempty" jsonschema:"description=Override the sub-agent's step ceiling"`
	Model           string `json:"model,omitempty" jsonschema:"description=Override the sub-agent's model id"`
	RunInBackground bool   `json:"runInBackground,omitempty" jsonschema:"description=Run the sub-agent without blocking the current turn"`
	Resume          string `json:"resume,omitempty" jsonschema:"description=Session id of a previously spawned background task to attach to instead of spawning a new one"`
}

var taskToolSchema = mustGenerateSchema[TaskToolInput]()

// TaskToolSchema returns the generated JSON Schema for TaskToolInput, in
// the same raw form every other tool binding carries.
func TaskToolSchema() json.RawMessage { return taskToolSchema }

func mustGenerateSchema[T any]() json.RawMessage {
	reflector := &jsonschema.Reflector{
		RequiredFromJSONSchemaTags: true,
		ExpandedStruct:             true,
		DoNotReference:             true,
	}
	schema := reflector.Reflect(new(T))
	raw, err := json.Marshal(schema)
	if err != nil {
		panic("toolset: generating task tool schema: " + err.Error())
	}
	return raw
}
