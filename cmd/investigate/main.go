// Command investigate runs one code-investigation query end to end:
// Investigator gathers findings via tool calls, Synthesizer turns the
// filtered transcript into a report. Grounded on the teacher's
// cmd/cli/main.go setup sequence (env-var API key, file-backed slog
// handler, gemini.New), replacing its bubbletea TUI with a single
// non-interactive run plus optional buffered JSON event output.
//
// Usage:
//
//	export GEMINI_API_KEY="your-api-key"
//	go run ./cmd/investigate -query "why does X fail?" -dir .
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/nstogner/investigator/pkg/contextmgr"
	"github.com/nstogner/investigator/pkg/events"
	"github.com/nstogner/investigator/pkg/investigator"
	"github.com/nstogner/investigator/pkg/llm/gemini"
	"github.com/nstogner/investigator/pkg/orchestrator"
	"github.com/nstogner/investigator/pkg/storage"
	"github.com/nstogner/investigator/pkg/synthesizer"
	"github.com/nstogner/investigator/pkg/tokens"
	"github.com/nstogner/investigator/pkg/tools/builtin"
	"github.com/nstogner/investigator/pkg/toolkit"
)

func main() {
	query := flag.String("query", "", "the investigation question to answer")
	workDir := flag.String("dir", ".", "the working directory recorded in the session (tools resolve relative paths against the current directory, not this one)")
	storeDir := flag.String("store", "./.investigator", "directory sessions/turns are persisted under")
	model := flag.String("model", "gemini-2.0-flash", "the Gemini model name to use")
	maxIterations := flag.Int("max-iterations", 20, "maximum Investigator iterations before falling back to partial findings")
	jsonOutput := flag.Bool("json", false, "emit the buffered event stream and result as JSON instead of plain text")
	logFile := flag.String("log-file", "investigate.log", "file slog output is appended to")
	flag.Parse()

	if *query == "" {
		fmt.Fprintln(os.Stderr, "investigate: -query is required")
		os.Exit(1)
	}

	f, err := os.OpenFile(*logFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		fmt.Fprintln(os.Stderr, "investigate: opening log file:", err)
		os.Exit(1)
	}
	defer f.Close()
	slog.SetDefault(slog.New(slog.NewTextHandler(f, &slog.HandlerOptions{Level: slog.LevelInfo})))

	apiKey := os.Getenv("GEMINI_API_KEY")
	if apiKey == "" {
		fmt.Fprintln(os.Stderr, "investigate: GEMINI_API_KEY environment variable not set")
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	client, err := gemini.New(ctx, apiKey, *model)
	if err != nil {
		slog.Error("initializing gemini client", "error", err)
		os.Exit(1)
	}
	defer client.Close()

	bus := events.New()
	if *jsonOutput {
		bus.SetBuffering(true)
	} else {
		bus.Subscribe(printEvent)
	}

	fs := storage.NewFS(*storeDir)
	estimator := tokens.NewHeuristic()
	mgr := contextmgr.New(fs, estimator, bus, contextmgr.DefaultConfig())
	if _, err := mgr.InitSession(*query, *workDir); err != nil {
		slog.Error("initializing session", "error", err)
		os.Exit(1)
	}

	registry := toolkit.NewRegistry()
	registry.Register(builtin.ReadFile{})
	registry.Register(builtin.ListDir{})
	registry.Register(builtin.Ripgrep{})
	registry.Register(builtin.Think{})

	invCfg := investigator.DefaultConfig()
	invCfg.MaxIterations = *maxIterations
	inv := investigator.New(client, mgr, registry, bus, estimator, invCfg)
	syn := synthesizer.New(client, mgr, bus)
	orch := orchestrator.New(mgr, inv, syn, bus)

	result := orch.Run(ctx, *query)

	if *jsonOutput {
		printJSON(result, bus.Drain())
	} else {
		fmt.Println()
		fmt.Println(result.Result)
	}

	if !result.Success {
		os.Exit(1)
	}
}

func printEvent(ev events.Event) {
	switch ev.Type {
	case events.TypeIterationStart:
		fmt.Printf("[iteration %v]\n", ev.Payload["iteration"])
	case events.TypeToolCall:
		fmt.Printf("  -> %v(%v)\n", ev.Payload["name"], ev.Payload["arguments"])
	case events.TypeThinking:
		fmt.Printf("  (thinking) %v\n", ev.Payload["content"])
	case events.TypeCompression:
		fmt.Printf("  [compressed %v]\n", ev.Payload["key"])
	case events.TypeError:
		fmt.Printf("  ! error: %v\n", ev.Payload["error"])
	}
}

func printJSON(result orchestrator.Result, drained []events.Event) {
	out := struct {
		Success         bool           `json:"success"`
		Result          string         `json:"result"`
		Iterations      int            `json:"iterations"`
		TotalTokensUsed int            `json:"totalTokensUsed"`
		Error           string         `json:"error,omitempty"`
		Events          []events.Event `json:"events"`
	}{
		Success: result.Success, Result: result.Result,
		Iterations: result.Iterations, TotalTokensUsed: result.TotalTokensUsed,
		Error: result.Error, Events: drained,
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		slog.Error("encoding JSON output", "error", err)
	}
}
