// Package toolset holds the tool-binding contract the orchestrator
// invokes against and the registry that resolves a name to a binding,
// validating arguments against each tool's declared JSON Schema before
// the model's call ever reaches the callable.
package toolset

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/agentrun/core/internal/errkind"
	"github.com/agentrun/core/internal/llmevent"
)

// Callable is the typed function a tool binding invokes. It receives the
// raw, already-validated JSON arguments and returns a result string (or an
// error, surfaced to the model as a tool error result).
type Callable func(ctx context.Context, rawInput json.RawMessage) (string, error)

// Binding is one registered tool: its name, description, schema, and the
// callable it dispatches to. RequiresCodeExecution marks tools the
// orchestrator strips from the active set unless the caller's turn grants
// code-execution permission (shell, long-running services, and similar).
type Binding struct {
	Name                  string
	Description           string
	Schema                json.RawMessage
	Call                  Callable
	RequiresCodeExecution bool
}

// Registry resolves tool names to bindings and validates call arguments.
type Registry struct {
	mu       sync.RWMutex
	bindings map[string]*Binding
	compiled sync.Map // name -> *jsonschema.Schema
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{bindings: map[string]*Binding{}}
}

// Register adds or replaces a tool binding.
func (r *Registry) Register(b *Binding) error {
	if b.Name == "" {
		return fmt.Errorf("toolset: binding name is required")
	}
	r.compiled.Delete(b.Name)
	if _, err := r.compile(b.Name, b.Schema); err != nil {
		return fmt.Errorf("toolset: %s: invalid schema: %w", b.Name, err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bindings[b.Name] = b
	return nil
}

func (r *Registry) compile(name string, schema json.RawMessage) (*jsonschema.Schema, error) {
	if cached, ok := r.compiled.Load(name); ok {
		return cached.(*jsonschema.Schema), nil
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(name+".json", strings.NewReader(string(schema))); err != nil {
		return nil, err
	}
	compiled, err := compiler.Compile(name + ".json")
	if err != nil {
		return nil, err
	}
	r.compiled.Store(name, compiled)
	return compiled, nil
}

// RequiresCodeExecution reports whether name is registered and flagged as
// needing code-execution permission. An unknown name reports false — the
// caller's allow-list intersection already drops unknown names.
func (r *Registry) RequiresCodeExecution(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.bindings[name]
	return ok && b.RequiresCodeExecution
}

// Names returns every registered tool name, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.bindings))
	for name := range r.bindings {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Tools returns the llmevent.Tool descriptors for the given allowed names,
// in the order requested, skipping any name the registry doesn't know.
func (r *Registry) Tools(allowed []string) []llmevent.Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]llmevent.Tool, 0, len(allowed))
	for _, name := range allowed {
		b, ok := r.bindings[name]
		if !ok {
			continue
		}
		out = append(out, llmevent.Tool{Name: b.Name, Description: b.Description, Schema: b.Schema})
	}
	return out
}

// Invoke validates rawInput against the tool's schema and, if valid, calls
// it. An unregistered tool name or a schema violation is a
// ToolInvocationError — the orchestrator turns this into a tool-result
// part marked as an error rather than failing the whole turn.
func (r *Registry) Invoke(ctx context.Context, name string, rawInput json.RawMessage) (string, error) {
	r.mu.RLock()
	b, ok := r.bindings[name]
	r.mu.RUnlock()
	if !ok {
		return "", errkind.New(errkind.ToolInvocationError, "unknown tool: "+name)
	}

	compiled, err := r.compile(name, b.Schema)
	if err != nil {
		return "", errkind.Wrap(errkind.ToolInvocationError, "tool schema error: "+name, err)
	}

	var decoded any
	if len(rawInput) == 0 {
		decoded = map[string]any{}
	} else if err := json.Unmarshal(rawInput, &decoded); err != nil {
		return "", errkind.Wrap(errkind.ToolInvocationError, "tool input is not valid JSON: "+name, err)
	}
	if err := compiled.Validate(decoded); err != nil {
		return "", errkind.Wrap(errkind.ToolInvocationError, "tool input failed schema validation: "+name, err)
	}

	result, err := b.Call(ctx, rawInput)
	if err != nil {
		return "", errkind.Wrap(errkind.ToolInvocationError, "tool call failed: "+name, err)
	}
	return result, nil
}
