package toolkit_test

import (
	"context"
	"testing"

	"github.com/nstogner/investigator/pkg/toolkit"
)

type stubTool struct{ name string }

func (s stubTool) Name() string        { return s.name }
func (s stubTool) Description() string { return "stub" }
func (s stubTool) Parameters() toolkit.Schema {
	return toolkit.Schema{Properties: map[string]toolkit.Param{"path": {Type: "string"}}, Required: []string{"path"}}
}
func (s stubTool) Execute(ctx context.Context, args map[string]any) (string, error) {
	return "ok", nil
}

func TestRegisterAndGet(t *testing.T) {
	r := toolkit.NewRegistry()
	r.Register(stubTool{name: "read_file"})

	tool, ok := r.Get("read_file")
	if !ok {
		t.Fatal("expected tool to be registered")
	}
	if tool.Name() != "read_file" {
		t.Fatalf("got %q", tool.Name())
	}
}

func TestUnknownNameAbsent(t *testing.T) {
	r := toolkit.NewRegistry()
	if _, ok := r.Get("nonexistent"); ok {
		t.Fatal("expected absent for unknown tool")
	}
}

func TestDisabledToolSilentlySkipped(t *testing.T) {
	r := toolkit.NewRegistry(toolkit.WithDisabledTools([]string{"write_file"}))
	r.Register(stubTool{name: "write_file"})

	if _, ok := r.Get("write_file"); ok {
		t.Fatal("disabled tool should not be registered")
	}
}

func TestEnabledAllowlistRestrictsRegistration(t *testing.T) {
	r := toolkit.NewRegistry(toolkit.WithEnabledTools([]string{"read_file"}))
	r.Register(stubTool{name: "read_file"})
	r.Register(stubTool{name: "ripgrep"})

	if _, ok := r.Get("read_file"); !ok {
		t.Fatal("allowlisted tool should register")
	}
	if _, ok := r.Get("ripgrep"); ok {
		t.Fatal("non-allowlisted tool should be skipped")
	}
}

func TestWireSchemaShape(t *testing.T) {
	schema := toolkit.Schema{
		Properties: map[string]toolkit.Param{"path": {Type: "string", Description: "a path"}},
		Required:   []string{"path"},
	}
	wire := schema.WireSchema()
	if wire["type"] != "object" {
		t.Fatalf("got type %v", wire["type"])
	}
	props, ok := wire["properties"].(map[string]any)
	if !ok || len(props) != 1 {
		t.Fatalf("got properties %v", wire["properties"])
	}
}

func TestListPreservesRegistrationOrder(t *testing.T) {
	r := toolkit.NewRegistry()
	r.Register(stubTool{name: "b"})
	r.Register(stubTool{name: "a"})

	names := r.Names()
	if len(names) != 2 || names[0] != "b" || names[1] != "a" {
		t.Fatalf("got %v", names)
	}
}
