// Package builtin implements the concrete, non-core Tool adapters the
// investigator CLI wires into the ToolRegistry: read_file, list_dir,
// ripgrep, and think. Grounded on the teacher's pkg/tools/files.go
// (ReadFileTool/ListFilesTool structure), generalized to the
// toolkit.Tool capability interface and extended with ripgrep/think per
// spec §4.5's tool-result handling and self-check gate.
package builtin

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/nstogner/investigator/pkg/toolkit"
)

// ReadFile reads a file's full contents.
type ReadFile struct{}

func (ReadFile) Name() string { return "read_file" }

func (ReadFile) Description() string {
	return "读取指定路径文件的完整内容。"
}

func (ReadFile) Parameters() toolkit.Schema {
	return toolkit.Schema{
		Properties: map[string]toolkit.Param{
			"path": {Type: "string", Description: "要读取的文件路径"},
		},
		Required: []string{"path"},
	}
}

func (ReadFile) Execute(ctx context.Context, args map[string]any) (string, error) {
	path, ok := args["path"].(string)
	if !ok || path == "" {
		return "", fmt.Errorf("argument 'path' is required and must be a string")
	}
	slog.Debug("reading file", "path", path)
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read file: %w", err)
	}
	return string(data), nil
}

// ListDir lists one directory's immediate entries.
type ListDir struct{}

func (ListDir) Name() string { return "list_dir" }

func (ListDir) Description() string {
	return "列出指定目录下的文件和子目录。"
}

func (ListDir) Parameters() toolkit.Schema {
	return toolkit.Schema{
		Properties: map[string]toolkit.Param{
			"path": {Type: "string", Description: "要列出的目录路径"},
		},
		Required: []string{"path"},
	}
}

func (ListDir) Execute(ctx context.Context, args map[string]any) (string, error) {
	path, ok := args["path"].(string)
	if !ok || path == "" {
		return "", fmt.Errorf("argument 'path' is required and must be a string")
	}
	slog.Debug("listing directory", "path", path)
	entries, err := os.ReadDir(path)
	if err != nil {
		return "", fmt.Errorf("failed to list directory: %w", err)
	}

	var out string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() {
			name += "/"
		}
		out += name + "\n"
	}
	return out, nil
}
