// Package agents is the Agent Registry: it resolves an agent name to its
// AgentDefinition, merging a small set of built-ins with project-local
// YAML definitions, and computes the tool set an agent is allowed to use.
package agents

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/agentrun/core/internal/errkind"
	"github.com/agentrun/core/pkg/models"
)

// Registry resolves agent names to definitions.
type Registry struct {
	builtins map[string]*models.AgentDefinition
	project  map[string]*models.AgentDefinition
	toolset  []string // full registry tool-name set, for intersection
}

// NewRegistry builds a registry seeded with the given built-in definitions
// and the full set of tool names the core's toolset registry exposes.
func NewRegistry(builtins []*models.AgentDefinition, allToolNames []string) *Registry {
	r := &Registry{
		builtins: make(map[string]*models.AgentDefinition, len(builtins)),
		project:  map[string]*models.AgentDefinition{},
		toolset:  allToolNames,
	}
	for _, b := range builtins {
		r.builtins[b.Name] = b
	}
	return r
}

// LoadProjectDefinitions parses a directory of *.yaml/*.yml agent
// definition files, expanding ${VAR} environment references the way the
// project's own config loader does, and registers each under its name.
// Built-in names are reserved: a project file naming one is rejected,
// since a project-local definition can never shadow a built-in.
func (r *Registry) LoadProjectDefinitions(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("agents: reading %s: %w", dir, err)
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if !strings.HasSuffix(name, ".yaml") && !strings.HasSuffix(name, ".yml") {
			continue
		}
		path := dir + "/" + name
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("agents: reading %s: %w", path, err)
		}
		expanded := os.ExpandEnv(string(data))

		var def models.AgentDefinition
		if err := yaml.Unmarshal([]byte(expanded), &def); err != nil {
			return fmt.Errorf("agents: parsing %s: %w", path, err)
		}
		if def.Name == "" {
			return fmt.Errorf("agents: %s: name is required", path)
		}
		if _, ok := r.builtins[def.Name]; ok {
			return fmt.Errorf("agents: %s: %q is a reserved built-in agent name", path, def.Name)
		}
		r.project[def.Name] = &def
	}
	return nil
}

// Resolve looks up an agent definition by name: built-ins first, then
// project-local definitions. Since LoadProjectDefinitions already rejects
// any project file that names a built-in, this order never actually
// chooses between the two for the same name — it just matches the lookup
// the orchestrator is specified to perform.
func (r *Registry) Resolve(name string) (*models.AgentDefinition, error) {
	if def, ok := r.builtins[name]; ok {
		return def.Clone(), nil
	}
	if def, ok := r.project[name]; ok {
		return def.Clone(), nil
	}
	return nil, errkind.New(errkind.AgentNotFound, name)
}

// ResolveToolSet computes the tools an agent is allowed to invoke: the
// intersection of its declared tool list with the registry's known tools.
// An empty declared list means "every registered tool" rather than none.
func (r *Registry) ResolveToolSet(def *models.AgentDefinition) []string {
	if len(def.Tools) == 0 {
		out := make([]string, len(r.toolset))
		copy(out, r.toolset)
		sort.Strings(out)
		return out
	}
	known := make(map[string]bool, len(r.toolset))
	for _, t := range r.toolset {
		known[t] = true
	}
	out := make([]string, 0, len(def.Tools))
	for _, t := range def.Tools {
		if known[t] {
			out = append(out, t)
		}
	}
	sort.Strings(out)
	return out
}

// List returns every resolvable agent name, built-in and project-local,
// sorted alphabetically.
func (r *Registry) List() []string {
	names := make([]string, 0, len(r.builtins)+len(r.project))
	for name := range r.project {
		names = append(names, name)
	}
	for name := range r.builtins {
		if _, overridden := r.project[name]; !overridden {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}
