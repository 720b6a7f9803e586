package builtin

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"

	"github.com/nstogner/investigator/pkg/toolkit"
)

// Ripgrep shells out to the rg binary to search a directory tree.
// Grounded on the teacher's convention of wrapping a single external
// binary per tool (pkg/sandbox execs docker; this execs rg).
type Ripgrep struct {
	// Binary overrides the executable name, for tests. Empty means "rg".
	Binary string
}

func (Ripgrep) Name() string { return "ripgrep" }

func (Ripgrep) Description() string {
	return "在指定目录下按正则表达式搜索代码内容，返回匹配行。"
}

func (Ripgrep) Parameters() toolkit.Schema {
	return toolkit.Schema{
		Properties: map[string]toolkit.Param{
			"pattern": {Type: "string", Description: "要搜索的正则表达式"},
			"path":    {Type: "string", Description: "搜索的起始目录，默认为当前目录"},
		},
		Required: []string{"pattern"},
	}
}

func (t Ripgrep) Execute(ctx context.Context, args map[string]any) (string, error) {
	pattern, ok := args["pattern"].(string)
	if !ok || pattern == "" {
		return "", fmt.Errorf("argument 'pattern' is required and must be a string")
	}
	path, _ := args["path"].(string)
	if path == "" {
		path = "."
	}

	bin := t.Binary
	if bin == "" {
		bin = "rg"
	}

	slog.Debug("running ripgrep", "pattern", pattern, "path", path)
	cmd := exec.CommandContext(ctx, bin, "--line-number", "--no-heading", pattern, path)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && exitErr.ExitCode() == 1 {
		// rg exits 1 for "no matches", which is not a tool failure.
		return "未找到匹配项。", nil
	}
	if err != nil {
		return "", fmt.Errorf("ripgrep failed: %w: %s", err, stderr.String())
	}
	return stdout.String(), nil
}
