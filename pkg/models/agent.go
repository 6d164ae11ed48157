package models

// AgentMode restricts where an agent definition may be used.
type AgentMode string

const (
	// AgentModePrimary agents can be selected directly for a top-level turn.
	AgentModePrimary AgentMode = "primary"
	// AgentModeSubagent agents may only be spawned via the task tool.
	AgentModeSubagent AgentMode = "subagent"
	// AgentModeAll agents may be used in either position.
	AgentModeAll AgentMode = "all"
)

// AgentDefinition describes a named agent: its model preferences, prompt
// fragment, and the tool names it is allowed to invoke. Definitions are
// immutable once resolved for a turn.
type AgentDefinition struct {
	Name        string    `json:"name" yaml:"name"`
	Description string    `json:"description,omitempty" yaml:"description,omitempty"`
	Mode        AgentMode `json:"mode,omitempty" yaml:"mode,omitempty"`
	Hidden      bool      `json:"hidden,omitempty" yaml:"hidden,omitempty"`

	Vendor string `json:"vendor,omitempty" yaml:"vendor,omitempty"`
	Model  string `json:"model,omitempty" yaml:"model,omitempty"`

	Temperature *float64 `json:"temperature,omitempty" yaml:"temperature,omitempty"`
	TopP        *float64 `json:"top_p,omitempty" yaml:"top_p,omitempty"`
	StepCeiling int      `json:"step_ceiling,omitempty" yaml:"step_ceiling,omitempty"`

	PromptFragment string `json:"prompt_fragment,omitempty" yaml:"prompt_fragment,omitempty"`

	// Tools lists the tool names this agent may invoke. An empty list means
	// "the full registry", per the Agent Registry's tool resolution rule.
	Tools []string `json:"tools,omitempty" yaml:"tools,omitempty"`

	BuiltIn bool `json:"-" yaml:"-"`
}

// Clone returns a deep-enough copy safe for a caller to mutate without
// affecting the registry's stored definition.
func (a *AgentDefinition) Clone() *AgentDefinition {
	if a == nil {
		return nil
	}
	clone := *a
	if a.Tools != nil {
		clone.Tools = append([]string(nil), a.Tools...)
	}
	if a.Temperature != nil {
		t := *a.Temperature
		clone.Temperature = &t
	}
	if a.TopP != nil {
		p := *a.TopP
		clone.TopP = &p
	}
	return &clone
}

// CanBePrimary reports whether the agent may drive a top-level turn.
func (a *AgentDefinition) CanBePrimary() bool {
	return a != nil && (a.Mode == "" || a.Mode == AgentModePrimary || a.Mode == AgentModeAll)
}

// CanBeSubagent reports whether the agent may be spawned via the task tool.
func (a *AgentDefinition) CanBeSubagent() bool {
	return a != nil && (a.Mode == AgentModeSubagent || a.Mode == AgentModeAll || a.Mode == "")
}
