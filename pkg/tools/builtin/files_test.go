package builtin_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/nstogner/investigator/pkg/tools/builtin"
)

func TestReadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.go")
	if err := os.WriteFile(path, []byte("package main\n"), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	tool := builtin.ReadFile{}
	out, err := tool.Execute(context.Background(), map[string]any{"path": path})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if out != "package main\n" {
		t.Fatalf("got %q", out)
	}
}

func TestReadFileMissingPathArg(t *testing.T) {
	tool := builtin.ReadFile{}
	if _, err := tool.Execute(context.Background(), map[string]any{}); err == nil {
		t.Fatal("expected error for missing path argument")
	}
}

func TestListDir(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "x.go"), []byte(""), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if err := os.Mkdir(filepath.Join(dir, "sub"), 0755); err != nil {
		t.Fatalf("Mkdir: %v", err)
	}

	tool := builtin.ListDir{}
	out, err := tool.Execute(context.Background(), map[string]any{"path": dir})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !strings.Contains(out, "x.go") || !strings.Contains(out, "sub/") {
		t.Fatalf("unexpected listing: %q", out)
	}
}

func TestThink(t *testing.T) {
	tool := builtin.Think{}
	out, err := tool.Execute(context.Background(), map[string]any{"thought": "checked everything"})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !strings.Contains(out, "checked everything") {
		t.Fatalf("got %q", out)
	}
}
