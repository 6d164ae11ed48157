package toolset

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/agentrun/core/internal/errkind"
)

func echoBinding() *Binding {
	return &Binding{
		Name:        "echo",
		Description: "echoes its input",
		Schema:      json.RawMessage(`{"type":"object","properties":{"text":{"type":"string"}},"required":["text"]}`),
		Call: func(ctx context.Context, raw json.RawMessage) (string, error) {
			var in struct {
				Text string `json:"text"`
			}
			if err := json.Unmarshal(raw, &in); err != nil {
				return "", err
			}
			return in.Text, nil
		},
	}
}

func TestRegisterRejectsInvalidSchema(t *testing.T) {
	r := NewRegistry()
	err := r.Register(&Binding{Name: "bad", Schema: json.RawMessage(`not json`)})
	if err == nil {
		t.Fatalf("Register() error = nil, want error for invalid schema")
	}
}

func TestInvokeValidatesInput(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(echoBinding()); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	out, err := r.Invoke(context.Background(), "echo", json.RawMessage(`{"text":"hi"}`))
	if err != nil {
		t.Fatalf("Invoke() error = %v", err)
	}
	if out != "hi" {
		t.Errorf("Invoke() = %q, want %q", out, "hi")
	}

	_, err = r.Invoke(context.Background(), "echo", json.RawMessage(`{}`))
	if !errkind.Is(err, errkind.ToolInvocationError) {
		t.Errorf("Invoke() with missing required field error = %v, want ToolInvocationError", err)
	}
}

func TestInvokeUnknownTool(t *testing.T) {
	r := NewRegistry()
	_, err := r.Invoke(context.Background(), "nope", json.RawMessage(`{}`))
	if !errkind.Is(err, errkind.ToolInvocationError) {
		t.Errorf("Invoke() unknown tool error = %v, want ToolInvocationError", err)
	}
}

func TestToolsPreservesRequestedOrderAndSkipsUnknown(t *testing.T) {
	r := NewRegistry()
	_ = r.Register(echoBinding())
	_ = r.Register(&Binding{Name: "other", Schema: json.RawMessage(`{"type":"object"}`), Call: echoBinding().Call})

	got := r.Tools([]string{"other", "missing", "echo"})
	if len(got) != 2 {
		t.Fatalf("Tools() len = %d, want 2", len(got))
	}
	if got[0].Name != "other" || got[1].Name != "echo" {
		t.Errorf("Tools() order = [%s %s], want [other echo]", got[0].Name, got[1].Name)
	}
}

func TestRequiresCodeExecution(t *testing.T) {
	r := NewRegistry()
	_ = r.Register(echoBinding())
	_ = r.Register(&Binding{Name: "shell", Schema: json.RawMessage(`{"type":"object"}`), Call: echoBinding().Call, RequiresCodeExecution: true})

	if r.RequiresCodeExecution("echo") {
		t.Errorf("RequiresCodeExecution(echo) = true, want false")
	}
	if !r.RequiresCodeExecution("shell") {
		t.Errorf("RequiresCodeExecution(shell) = false, want true")
	}
	if r.RequiresCodeExecution("unknown") {
		t.Errorf("RequiresCodeExecution(unknown) = true, want false")
	}
}

func TestTaskToolSchemaIsValidJSON(t *testing.T) {
	raw := TaskToolSchema()
	var decoded map[string]any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("TaskToolSchema() is not valid JSON: %v", err)
	}
	if decoded["type"] != "object" {
		t.Errorf("TaskToolSchema() type = %v, want object", decoded["type"])
	}
}
