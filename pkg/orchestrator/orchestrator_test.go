package orchestrator_test

import (
	"context"
	"strings"
	"testing"

	"github.com/nstogner/investigator/pkg/contextmgr"
	"github.com/nstogner/investigator/pkg/events"
	"github.com/nstogner/investigator/pkg/investigator"
	"github.com/nstogner/investigator/pkg/llm"
	"github.com/nstogner/investigator/pkg/orchestrator"
	"github.com/nstogner/investigator/pkg/storage"
	"github.com/nstogner/investigator/pkg/synthesizer"
	"github.com/nstogner/investigator/pkg/tokens"
	"github.com/nstogner/investigator/pkg/toolkit"
)

type scriptedClient struct {
	responses []llm.Response
	calls     int
}

func (c *scriptedClient) Complete(ctx context.Context, messages []llm.Message, opts llm.Options) (llm.Response, error) {
	if c.calls >= len(c.responses) {
		return llm.Response{Content: "## 分析结果\n\nfallback"}, nil
	}
	r := c.responses[c.calls]
	c.calls++
	return r, nil
}

func (c *scriptedClient) Stream(ctx context.Context, messages []llm.Message, opts llm.Options) (llm.Stream, error) {
	panic("not used")
}

type stubThinkTool struct{}

func (stubThinkTool) Name() string              { return "think" }
func (stubThinkTool) Description() string       { return "self-check" }
func (stubThinkTool) Parameters() toolkit.Schema { return toolkit.Schema{} }
func (stubThinkTool) Execute(ctx context.Context, args map[string]any) (string, error) {
	return "ok", nil
}

func TestOrchestratorHappyPath(t *testing.T) {
	invClient := &scriptedClient{responses: []llm.Response{
		{ToolCalls: []llm.ToolCall{{Name: "think", Arguments: map[string]any{"thought": "check"}}}},
		{Content: "[INVESTIGATION_COMPLETE]\n\nraw findings"},
	}}
	synClient := &scriptedClient{responses: []llm.Response{
		{Content: "## Final Report\n\nsynthesized"},
	}}

	fs := storage.NewFS(t.TempDir())
	bus := events.New()
	mgr := contextmgr.New(fs, tokens.NewHeuristic(), bus, contextmgr.DefaultConfig())
	if _, err := mgr.InitSession("Test query", "/tmp"); err != nil {
		t.Fatalf("InitSession: %v", err)
	}
	reg := toolkit.NewRegistry()
	reg.Register(stubThinkTool{})

	inv := investigator.New(invClient, mgr, reg, bus, tokens.NewHeuristic(), investigator.DefaultConfig())
	syn := synthesizer.New(synClient, mgr, bus)
	orch := orchestrator.New(mgr, inv, syn, bus)

	var seenOrder []events.Type
	bus.Subscribe(func(ev events.Event) { seenOrder = append(seenOrder, ev.Type) })

	result := orch.Run(context.Background(), "Test query")
	if !result.Success {
		t.Fatalf("expected success, got error=%q", result.Error)
	}
	if !strings.Contains(result.Result, "synthesized") {
		t.Fatalf("expected synthesized report in result, got %q", result.Result)
	}

	wantPrefix := []events.Type{events.TypeOrchestratorStart, events.TypePhaseStart}
	for i, want := range wantPrefix {
		if seenOrder[i] != want {
			t.Fatalf("event %d: got %s want %s (full order: %v)", i, seenOrder[i], want, seenOrder)
		}
	}
	last := seenOrder[len(seenOrder)-1]
	if last != events.TypeDone {
		t.Fatalf("expected the run to end with done, got %s", last)
	}
}

func TestOrchestratorInvestigatorFailure(t *testing.T) {
	invClient := &scriptedClient{} // no responses -> Complete would return a fallback that parses as done; force failure via Abort instead
	fs := storage.NewFS(t.TempDir())
	bus := events.New()
	mgr := contextmgr.New(fs, tokens.NewHeuristic(), bus, contextmgr.DefaultConfig())
	if _, err := mgr.InitSession("q", "/tmp"); err != nil {
		t.Fatalf("InitSession: %v", err)
	}
	reg := toolkit.NewRegistry()
	inv := investigator.New(invClient, mgr, reg, bus, tokens.NewHeuristic(), investigator.DefaultConfig())
	inv.Abort()
	syn := synthesizer.New(invClient, mgr, bus)
	orch := orchestrator.New(mgr, inv, syn, bus)

	result := orch.Run(context.Background(), "q")
	if result.Success {
		t.Fatal("expected failure when Investigator is aborted before running")
	}
	if result.Error != "Aborted" {
		t.Fatalf("expected Aborted error, got %q", result.Error)
	}
}
