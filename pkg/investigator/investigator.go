// Package investigator implements the Investigator ReAct loop: it
// alternates model turns with tool execution, parses model output into a
// typed Decision, detects pathological behaviors (loops, skipped
// self-check, hallucinated tool results, text-described tool calls), and
// feeds corrective messages back into the conversation. Grounded on the
// teacher's operative/pkg/controller.Controller.step state machine,
// generalized from the stream-entry switch to an explicit Decision
// union and a single-goroutine iteration loop.
package investigator

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/nstogner/investigator/pkg/contextmgr"
	"github.com/nstogner/investigator/pkg/events"
	"github.com/nstogner/investigator/pkg/llm"
	"github.com/nstogner/investigator/pkg/storage"
	"github.com/nstogner/investigator/pkg/toolkit"
	"github.com/nstogner/investigator/pkg/tokens"
)

// Config tunes the loop's termination and self-check behavior (spec §6).
type Config struct {
	MaxIterations  int
	StuckThreshold int
	EnableThinking bool
	ThinkingBudget int
}

// DefaultConfig matches spec §4.5/§6's named defaults.
func DefaultConfig() Config {
	return Config{MaxIterations: 20, StuckThreshold: 3}
}

// Result is the outcome of one Run.
type Result struct {
	Success         bool
	Result          string
	Iterations      int
	TotalTokensUsed int
	Decisions       []Decision
	KeyFiles        []string
	Error           string
}

// Investigator owns one run's ReAct loop.
type Investigator struct {
	client    llm.Client
	mgr       *contextmgr.Manager
	tools     *toolkit.Registry
	bus       *events.Bus
	estimator tokens.Estimator
	cfg       Config

	aborted atomic.Bool
}

// New creates an Investigator.
func New(client llm.Client, mgr *contextmgr.Manager, tools *toolkit.Registry, bus *events.Bus, estimator tokens.Estimator, cfg Config) *Investigator {
	return &Investigator{client: client, mgr: mgr, tools: tools, bus: bus, estimator: estimator, cfg: cfg}
}

// Abort signals the loop to stop at its next check point (spec §5).
func (inv *Investigator) Abort() {
	inv.aborted.Store(true)
}

func (inv *Investigator) emit(t events.Type, payload map[string]any) {
	if inv.bus == nil {
		return
	}
	inv.bus.Emit(events.Event{Type: t, Payload: payload})
}

// Run executes the ReAct loop until the model emits done, a terminal
// error occurs, the loop is aborted, or maxIterations is reached.
func (inv *Investigator) Run(ctx context.Context, query string) Result {
	var decisions []Decision
	var keyFiles []string
	totalTokens := 0

	inv.emit(events.TypeSessionStart, map[string]any{"query": query})

	for iteration := 1; iteration <= inv.cfg.MaxIterations; iteration++ {
		if inv.aborted.Load() || ctx.Err() != nil {
			inv.emit(events.TypeSessionEnd, map[string]any{"success": false})
			return Result{
				Success: false, Error: "Aborted",
				Iterations: iteration - 1, TotalTokensUsed: totalTokens,
				Decisions: decisions, KeyFiles: keyFiles,
			}
		}

		systemPrompt := inv.buildSystemPrompt()
		inv.mgr.SetSystemPromptTokens(inv.estimator.Estimate(systemPrompt))
		budget := inv.mgr.Budget()
		inv.emit(events.TypeIterationStart, map[string]any{
			"iteration": iteration, "maxIterations": inv.cfg.MaxIterations, "budget": budget,
		})

		messages := inv.mgr.GetMessagesForLLM()
		turnStart := time.Now()
		resp, err := inv.client.Complete(ctx, toLLMMessages(messages), llm.Options{
			Tools:        inv.toolSchemas(),
			SystemPrompt: systemPrompt,
		})
		if err != nil {
			recoverable := false
			if lerr, ok := err.(*llm.Error); ok {
				recoverable = lerr.Kind.Recoverable()
			}
			inv.emit(events.TypeError, map[string]any{"error": err.Error(), "recoverable": recoverable, "retrying": false})
			inv.emit(events.TypeSessionEnd, map[string]any{"success": false})
			return Result{
				Success: false, Error: err.Error(),
				Iterations: iteration - 1, TotalTokensUsed: totalTokens,
				Decisions: decisions, KeyFiles: keyFiles,
			}
		}
		totalTokens += resp.Usage.InputTokens + resp.Usage.OutputTokens

		decision := parseDecision(resp, decisions)
		decisions = append(decisions, decision)

		if resp.Thinking != "" {
			inv.emit(events.TypeThinking, map[string]any{"content": resp.Thinking})
		}

		var toolResult *storage.TurnToolResult
		var finalResult Result
		done := false

		switch decision.Kind {
		case KindToolCall:
			var res storage.TurnToolResult
			keyFiles, res = inv.handleToolCall(ctx, decision, resp.Content, keyFiles)
			toolResult = &res
		case KindInvalidToolCall:
			inv.handleInvalidToolCall(decision)
		case KindThinking:
			inv.handleThinking(decision)
		case KindRequiresSelfCheck:
			inv.handleRequiresSelfCheck(decision)
		case KindHallucinationDetected:
			inv.handleHallucination(decision)
		case KindDone:
			findings := extractFindings(decision.Result)
			inv.mgr.AddMessage(contextmgr.AddMessageInput{
				Role:    storage.RoleAssistant,
				Content: decision.Result,
			})
			done = true
			finalResult = Result{
				Success: true, Result: findings,
				Iterations: iteration, TotalTokensUsed: totalTokens,
				Decisions: decisions, KeyFiles: keyFiles,
			}
		}

		inv.saveTurn(iteration, systemPrompt, messages, resp, decision, toolResult, turnStart)
		inv.emit(events.TypeIterationEnd, map[string]any{
			"iteration": iteration, "decision": string(decision.Kind),
			"tokensUsed": resp.Usage.InputTokens + resp.Usage.OutputTokens,
		})

		if done {
			inv.emit(events.TypeDone, map[string]any{"result": finalResult.Result})
			inv.emit(events.TypeSessionEnd, map[string]any{"success": true})
			return finalResult
		}

		if isStuck(decisions, inv.cfg.StuckThreshold) {
			inv.mgr.AddMessage(contextmgr.AddMessageInput{
				Role:    storage.RoleUser,
				Content: "检测到循环：连续多次调用了相同的工具和参数，请尝试不同的方法。",
			})
			decisions = decisions[:len(decisions)-inv.cfg.StuckThreshold]
		}
	}

	findings := inv.gatherPartialFindings()
	inv.emit(events.TypeSessionEnd, map[string]any{"success": true})
	return Result{
		Success: true, Result: findings,
		Iterations: inv.cfg.MaxIterations, TotalTokensUsed: totalTokens,
		Decisions: decisions, KeyFiles: keyFiles,
	}
}

func toLLMMessages(msgs []storage.Message) []llm.Message {
	out := make([]llm.Message, len(msgs))
	for i, m := range msgs {
		role := llm.RoleUser
		if m.Role == storage.RoleAssistant {
			role = llm.RoleAssistant
		}
		out[i] = llm.Message{Role: role, Content: m.Content}
	}
	return out
}

// extractFindings strips the first completeSentinel occurrence and
// returns the trimmed remainder (spec §4.5 "Findings extraction").
func extractFindings(result string) string {
	if idx := strings.Index(result, completeSentinel); idx != -1 {
		result = result[:idx] + result[idx+len(completeSentinel):]
	}
	return strings.TrimSpace(result)
}

// gatherPartialFindings is the best-effort max-iterations fallback: a
// bulleted concatenation of every non-empty assistant message, or the
// sole assistant message's content if only one exists.
func (inv *Investigator) gatherPartialFindings() string {
	sess := inv.mgr.Session()
	if sess == nil {
		return ""
	}
	var assistantMsgs []string
	for _, m := range sess.Messages {
		if m.Role == storage.RoleAssistant && strings.TrimSpace(m.Content) != "" {
			assistantMsgs = append(assistantMsgs, strings.TrimSpace(m.Content))
		}
	}
	switch len(assistantMsgs) {
	case 0:
		return ""
	case 1:
		return assistantMsgs[0]
	default:
		bullets := make([]string, len(assistantMsgs))
		for i, m := range assistantMsgs {
			bullets[i] = "- " + m
		}
		return strings.Join(bullets, "\n")
	}
}

func (inv *Investigator) saveTurn(iteration int, systemPrompt string, messages []storage.Message, resp llm.Response, decision Decision, toolResult *storage.TurnToolResult, start time.Time) {
	inputMessages := make([]storage.TurnMessage, len(messages))
	for i, m := range messages {
		inputMessages[i] = storage.TurnMessage{Key: m.Key, Role: m.Role, Compressed: m.Compressed, Content: m.Content}
	}
	var toolCalls []storage.TurnToolCall
	if decision.Kind == KindToolCall {
		toolCalls = []storage.TurnToolCall{{Name: decision.Name, Arguments: decision.Arguments}}
	}
	turn := storage.LLMTurn{
		ID:            uuid.New().String(),
		Agent:         "investigator",
		SystemPrompt:  systemPrompt,
		InputMessages: inputMessages,
		OutputContent: resp.Content,
		Thinking:      resp.Thinking,
		ToolCalls:     toolCalls,
		Usage: storage.TurnUsage{
			InputTokens: resp.Usage.InputTokens, OutputTokens: resp.Usage.OutputTokens,
			CacheHit: resp.Usage.CacheHit, CachedTokens: resp.Usage.CachedTokens,
		},
		StartedAt:      start,
		FinishedAt:     time.Now(),
		ToolExecResult: toolResult,
	}
	if err := inv.mgr.SaveLLMTurn(turn); err != nil {
		inv.emit(events.TypeError, map[string]any{"error": err.Error(), "recoverable": true, "retrying": false})
	}
}

const investigatorSystemPromptTemplate = `你是一名代码调查员（Investigator）。你的任务是通过调用工具探索代码库，回答用户的问题。

规则：
- 每一步要么调用一个工具，要么在调查完成时给出结论。
- 结论前必须先调用 think 工具完成自检，然后在最终回复中包含标记 [INVESTIGATION_COMPLETE]。
- 不要在文本中伪造工具执行结果；必须通过工具调用API真实执行。

可用工具：
`

// buildSystemPrompt concatenates the fixed template with the current
// tool catalog (spec §4.5 step 1).
func (inv *Investigator) buildSystemPrompt() string {
	var b strings.Builder
	b.WriteString(investigatorSystemPromptTemplate)
	for _, t := range inv.tools.List() {
		fmt.Fprintf(&b, "- %s: %s\n", t.Name(), t.Description())
	}
	b.WriteString("- recall_detail: 根据 key 取回被压缩的原始内容。\n")
	return b.String()
}

func (inv *Investigator) toolSchemas() []llm.ToolSchema {
	list := inv.tools.List()
	out := make([]llm.ToolSchema, 0, len(list)+1)
	for _, t := range list {
		out = append(out, llm.ToolSchema{Name: t.Name(), Description: t.Description(), Parameters: t.Parameters().WireSchema()})
	}
	out = append(out, llm.ToolSchema{
		Name:        "recall_detail",
		Description: "根据 key 取回被压缩消息的原始内容。",
		Parameters: toolkit.Schema{
			Properties: map[string]toolkit.Param{"key": {Type: "string", Description: "要召回的消息 key"}},
			Required:   []string{"key"},
		}.WireSchema(),
	})
	return out
}
