// Package synthesizer implements the Synthesizer: a single-shot report
// generator that turns the Investigator's filtered transcript into a
// final report, with a bounded recall tool loop for compressed messages.
// Grounded on the teacher's operative/pkg/controller.compact prompt-
// building style (string concatenation over a fixed instruction plus a
// verbatim entry dump), adapted from whole-history summarization to
// spec §4.6's query+transcript+keyFiles report prompt.
package synthesizer

import (
	"fmt"
	"strings"

	"github.com/nstogner/investigator/pkg/contextmgr"
	"github.com/nstogner/investigator/pkg/events"
	"github.com/nstogner/investigator/pkg/llm"

	"context"
)

// Config names the recall loop bound. Synthesizer does not read it: New
// takes no Config, and Run always allows 3 iterations when any input
// message is compressed and 1 otherwise.
type Config struct {
	MaxRecallIterations int
}

// Report is the Synthesizer's output.
type Report struct {
	Content         string
	TotalTokensUsed int
}

// Synthesizer generates the final report.
type Synthesizer struct {
	client llm.Client
	mgr    *contextmgr.Manager
	bus    *events.Bus
}

// New creates a Synthesizer.
func New(client llm.Client, mgr *contextmgr.Manager, bus *events.Bus) *Synthesizer {
	return &Synthesizer{client: client, mgr: mgr, bus: bus}
}

func (s *Synthesizer) emit(t events.Type, payload map[string]any) {
	if s.bus == nil {
		return
	}
	s.bus.Emit(events.Event{Type: t, Payload: payload})
}

const synthesizerSystemPrompt = `你是一名报告撰写者（Synthesizer）。根据调查员收集到的对话记录，为用户的问题撰写一份结构化的最终报告。

要求：
- 直接以标题（# 或 ##）开头。
- 报告应准确反映调查记录中的发现，不要编造未出现过的内容。
- 如果某条记录被压缩，且需要查看完整内容才能准确作答，可调用 recall_detail 工具取回原文。`

const recallToolName = "recall_detail"

// exhaustedPlaceholder is returned when the recall loop runs out of
// iterations without reaching a terminal (non-tool-call) response.
const exhaustedPlaceholder = "## 分析结果\n\n达到最大召回次数限制，无法生成完整报告。"

// Run builds the synthesis prompt from query/messages/keyFiles, then runs
// the bounded recall loop described in spec §4.6.
func (s *Synthesizer) Run(ctx context.Context, query string, messages []contextmgr.SynthesisMessage, keyFiles []string) (Report, error) {
	s.emit(events.TypeSynthesisStart, map[string]any{"query": query})

	hasCompressed := false
	for _, m := range messages {
		if m.Compressed {
			hasCompressed = true
			break
		}
	}

	maxIter := 1
	if hasCompressed {
		maxIter = 3
	}

	convo := buildInitialMessages(query, messages, keyFiles)

	var tools []llm.ToolSchema
	if hasCompressed {
		tools = []llm.ToolSchema{{
			Name:        recallToolName,
			Description: "根据 key 取回被压缩消息的原始内容。",
			Parameters: map[string]any{
				"type":       "object",
				"properties": map[string]any{"key": map[string]any{"type": "string"}},
				"required":   []string{"key"},
			},
		}}
	}

	totalTokens := 0
	for i := 0; i < maxIter; i++ {
		resp, err := s.client.Complete(ctx, convo, llm.Options{Tools: tools, SystemPrompt: synthesizerSystemPrompt})
		if err != nil {
			s.emit(events.TypeSynthesisError, map[string]any{"error": err.Error()})
			return Report{}, err
		}
		totalTokens += resp.Usage.InputTokens + resp.Usage.OutputTokens

		if len(resp.ToolCalls) == 0 || resp.ToolCalls[0].Name != recallToolName {
			content := ensureProperFormat(resp.Content)
			s.emit(events.TypeSynthesisComplete, map[string]any{"tokensUsed": totalTokens})
			return Report{Content: content, TotalTokensUsed: totalTokens}, nil
		}

		key, _ := resp.ToolCalls[0].Arguments["key"].(string)
		assistantContent := resp.Content
		if strings.TrimSpace(assistantContent) == "" {
			assistantContent = fmt.Sprintf("调用 recall_detail(key=%s)", key)
		}
		convo = append(convo, llm.Message{Role: llm.RoleAssistant, Content: assistantContent})

		result := s.mgr.Recall(key)
		var resultContent string
		if result.Success {
			resultContent = result.Content
		} else {
			resultContent = fmt.Sprintf("recall 失败: %s", result.ErrorKind)
		}
		convo = append(convo, llm.Message{Role: llm.RoleUser, Content: resultContent})
	}

	s.emit(events.TypeSynthesisComplete, map[string]any{"tokensUsed": totalTokens, "exhausted": true})
	return Report{Content: exhaustedPlaceholder, TotalTokensUsed: totalTokens}, nil
}

// buildInitialMessages assembles the three-part message list spec §4.6
// names: the query, the verbatim transcript, and the closing keyFiles
// instruction.
func buildInitialMessages(query string, messages []contextmgr.SynthesisMessage, keyFiles []string) []llm.Message {
	convo := make([]llm.Message, 0, len(messages)+2)
	convo = append(convo, llm.Message{Role: llm.RoleUser, Content: "用户问题: " + query})

	for _, m := range messages {
		role := llm.RoleUser
		if m.Role == "assistant" {
			role = llm.RoleAssistant
		}
		convo = append(convo, llm.Message{Role: role, Content: m.Content})
	}

	convo = append(convo, llm.Message{Role: llm.RoleUser, Content: closingMessage(keyFiles)})
	return convo
}

func closingMessage(keyFiles []string) string {
	shown := keyFiles
	suffix := ""
	if len(shown) > 20 {
		suffix = fmt.Sprintf("… 等%d 个文件", len(shown))
		shown = shown[:20]
	}
	list := strings.Join(shown, ", ") + suffix
	return fmt.Sprintf("涉及的文件: %s\n\n请直接以标题开头撰写最终报告。", list)
}

// ensureProperFormat implements spec §4.6's post-processing: if content
// already starts with a heading, keep it; else discard any preamble
// before the first heading; else prepend a default heading.
func ensureProperFormat(content string) string {
	trimmed := strings.TrimLeft(content, " \t\n")
	if strings.HasPrefix(trimmed, "#") {
		return trimmed
	}

	lines := strings.Split(content, "\n")
	for i, line := range lines {
		l := strings.TrimLeft(line, " \t")
		if strings.HasPrefix(l, "#") {
			return strings.Join(lines[i:], "\n")
		}
	}

	return "## 分析结果\n\n" + content
}
