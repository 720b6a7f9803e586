package investigator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/nstogner/investigator/pkg/contextmgr"
	"github.com/nstogner/investigator/pkg/events"
	"github.com/nstogner/investigator/pkg/storage"
)

func boolPtr(b bool) *bool { return &b }

// handleToolCall executes decision's tool call and appends the two
// messages spec §4.5 step 5 names: the scrubbed assistant text (or a
// fallback when entirely hallucinated), then the tool-result user
// message. Returns the updated keyFiles list and a debug record of the
// execution.
func (inv *Investigator) handleToolCall(ctx context.Context, d Decision, rawContent string, keyFiles []string) ([]string, storage.TurnToolResult) {
	assistantContent := rawContent
	if idx, ok := firstHallucinationMatch(rawContent); ok {
		assistantContent = strings.TrimSpace(rawContent[:idx])
	}
	if strings.TrimSpace(assistantContent) == "" {
		assistantContent = fmt.Sprintf("调用 %s 工具", d.Name)
	}
	inv.mgr.AddMessage(contextmgr.AddMessageInput{Role: storage.RoleAssistant, Content: assistantContent})

	inv.emit(events.TypeToolCall, map[string]any{"name": d.Name, "arguments": d.Arguments})

	start := time.Now()
	output, err := inv.executeTool(ctx, d.Name, d.Arguments)
	duration := time.Since(start)
	success := err == nil
	body := output
	if !success {
		body = err.Error()
	}

	label := "执行成功"
	if !success {
		label = "执行失败"
	}
	content := fmt.Sprintf("工具 \"%s\" %s:\n\n%s", d.Name, label, body)

	source := ""
	if p, ok := d.Arguments["path"].(string); ok {
		source = p
	}
	inv.mgr.AddMessage(contextmgr.AddMessageInput{
		Role:    storage.RoleUser,
		Content: content,
		Metadata: contextmgr.Metadata{
			ToolName:     d.Name,
			Source:       source,
			Compressible: boolPtr(true),
		},
	})

	inv.emit(events.TypeToolResult, map[string]any{"name": d.Name, "result": body, "duration": duration.Milliseconds()})

	keyFiles = trackKeyFiles(keyFiles, d.Name, d.Arguments, body)
	return keyFiles, storage.TurnToolResult{Success: success, Output: body, Duration: duration.Milliseconds()}
}

// executeTool dispatches name to the registry, special-casing
// recall_detail (consults ContextManager directly) and unknown names
// (spec §7: the result lists available tool names).
func (inv *Investigator) executeTool(ctx context.Context, name string, args map[string]any) (string, error) {
	if name == "recall_detail" {
		key, _ := args["key"].(string)
		res := inv.mgr.Recall(key)
		if !res.Success {
			if len(res.CompressedHint) > 0 {
				return "", fmt.Errorf("未找到 key \"%s\"。当前已压缩的 key: %s", key, strings.Join(res.CompressedHint, ", "))
			}
			return "", fmt.Errorf("recall 失败: %s", res.ErrorKind)
		}
		return res.Content, nil
	}

	tool, ok := inv.tools.Get(name)
	if !ok {
		return "", fmt.Errorf("未知工具 \"%s\"。可用工具: %s", name, strings.Join(inv.tools.Names(), ", "))
	}
	return tool.Execute(ctx, args)
}

const invalidToolCallFeedback = "请使用工具调用 API（function calling）来调用工具，而不要在文本中描述调用。"

func (inv *Investigator) handleInvalidToolCall(d Decision) {
	inv.mgr.AddMessage(contextmgr.AddMessageInput{Role: storage.RoleAssistant, Content: d.Content})
	inv.mgr.AddMessage(contextmgr.AddMessageInput{Role: storage.RoleUser, Content: invalidToolCallFeedback})
}

const continueFeedback = "请继续：调用一个工具以获取更多信息，或者在调查完成后给出最终结论。"

func (inv *Investigator) handleThinking(d Decision) {
	inv.mgr.AddMessage(contextmgr.AddMessageInput{Role: storage.RoleAssistant, Content: d.Content})
	inv.mgr.AddMessage(contextmgr.AddMessageInput{Role: storage.RoleUser, Content: continueFeedback})
}

const selfCheckFeedback = "必须先完成自检才能结束调查：请调用 think 工具，然后再给出最终结论。"

func (inv *Investigator) handleRequiresSelfCheck(d Decision) {
	inv.mgr.AddMessage(contextmgr.AddMessageInput{Role: storage.RoleAssistant, Content: d.Content})
	inv.mgr.AddMessage(contextmgr.AddMessageInput{
		Role:     storage.RoleUser,
		Content:  selfCheckFeedback,
		Metadata: contextmgr.Metadata{Compressible: boolPtr(false)},
	})
}

const hallucinationFeedback = "检测到虚构的工具执行结果。请使用真实的工具调用 API，不要在文本中伪造执行结果。"

func (inv *Investigator) handleHallucination(d Decision) {
	if strings.TrimSpace(d.CleanedContent) != "" {
		inv.mgr.AddMessage(contextmgr.AddMessageInput{Role: storage.RoleAssistant, Content: d.CleanedContent})
	}
	inv.mgr.AddMessage(contextmgr.AddMessageInput{
		Role:     storage.RoleUser,
		Content:  hallucinationFeedback,
		Metadata: contextmgr.Metadata{Compressible: boolPtr(false)},
	})
}
