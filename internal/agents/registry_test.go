package agents

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/agentrun/core/internal/errkind"
	"github.com/agentrun/core/pkg/models"
)

func newTestRegistry() *Registry {
	builtins := []*models.AgentDefinition{
		{Name: "default", Mode: models.AgentModeAll, BuiltIn: true},
		{Name: "explore", Mode: models.AgentModeSubagent, Tools: []string{"read", "grep"}, BuiltIn: true},
	}
	return NewRegistry(builtins, []string{"read", "grep", "write", "task"})
}

func TestResolveBuiltin(t *testing.T) {
	r := newTestRegistry()
	def, err := r.Resolve("explore")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if def.Name != "explore" {
		t.Errorf("Resolve() Name = %q, want explore", def.Name)
	}
}

func TestResolveUnknown(t *testing.T) {
	r := newTestRegistry()
	_, err := r.Resolve("nope")
	if !errkind.Is(err, errkind.AgentNotFound) {
		t.Errorf("Resolve(nope) error = %v, want AgentNotFound", err)
	}
}

func TestResolveClonesSoCallerMutationIsIsolated(t *testing.T) {
	r := newTestRegistry()
	def, err := r.Resolve("explore")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	def.Tools[0] = "mutated"

	again, err := r.Resolve("explore")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if again.Tools[0] != "read" {
		t.Errorf("stored definition mutated: Tools[0] = %q, want read", again.Tools[0])
	}
}

func TestLoadProjectDefinitionsRejectsAnyBuiltinName(t *testing.T) {
	dir := t.TempDir()
	yamlBody := "name: explore\ndescription: project override\ntools: [\"write\"]\n"
	if err := os.WriteFile(filepath.Join(dir, "explore.yaml"), []byte(yamlBody), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	// "explore" is a built-in seeded by newTestRegistry, not one of the
	// literal {default, main} names — the rejection must come from the
	// registry's actual built-in set, not a hardcoded pair.
	r := newTestRegistry()
	if err := r.LoadProjectDefinitions(dir); err == nil {
		t.Fatalf("LoadProjectDefinitions() error = nil, want error for a name that collides with a built-in")
	}

	def, err := r.Resolve("explore")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if def.Description == "project override" {
		t.Errorf("Resolve() returned the rejected project definition instead of the built-in")
	}
}

func TestLoadProjectDefinitionsRejectsReservedName(t *testing.T) {
	dir := t.TempDir()
	yamlBody := "name: default\n"
	if err := os.WriteFile(filepath.Join(dir, "default.yaml"), []byte(yamlBody), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	r := newTestRegistry()
	if err := r.LoadProjectDefinitions(dir); err == nil {
		t.Fatalf("LoadProjectDefinitions() error = nil, want error for reserved name")
	}
}

func TestLoadProjectDefinitionsMissingDirIsNotAnError(t *testing.T) {
	r := newTestRegistry()
	if err := r.LoadProjectDefinitions(filepath.Join(t.TempDir(), "missing")); err != nil {
		t.Errorf("LoadProjectDefinitions() error = %v, want nil for missing dir", err)
	}
}

func TestResolveToolSetEmptyMeansEverything(t *testing.T) {
	r := newTestRegistry()
	def, _ := r.Resolve("default")
	got := r.ResolveToolSet(def)
	want := []string{"grep", "read", "task", "write"}
	if len(got) != len(want) {
		t.Fatalf("ResolveToolSet() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("ResolveToolSet()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestResolveToolSetIntersectsDeclaredWithKnown(t *testing.T) {
	r := newTestRegistry()
	def, _ := r.Resolve("explore")
	got := r.ResolveToolSet(def)
	want := []string{"grep", "read"}
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Errorf("ResolveToolSet() = %v, want %v", got, want)
	}
}

func TestResolveToolSetDropsUnknownDeclaredTool(t *testing.T) {
	r := newTestRegistry()
	def := &models.AgentDefinition{Name: "custom", Tools: []string{"read", "nonexistent"}}
	got := r.ResolveToolSet(def)
	if len(got) != 1 || got[0] != "read" {
		t.Errorf("ResolveToolSet() = %v, want [read]", got)
	}
}

func TestListMergesProjectWithBuiltinsAndSortsNames(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "reviewer.yaml"), []byte("name: reviewer\n"), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	r := newTestRegistry()
	if err := r.LoadProjectDefinitions(dir); err != nil {
		t.Fatalf("LoadProjectDefinitions() error = %v", err)
	}
	got := r.List()
	want := []string{"default", "explore", "reviewer"}
	if len(got) != len(want) {
		t.Fatalf("List() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("List()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}
