// Package orchestrator implements the Orchestrator: the two-phase
// pipeline that runs the Investigator to gather findings, then the
// Synthesizer to turn the filtered transcript into a final report.
// Grounded on the teacher's operative/pkg/controller.step phase
// sequencing (model turn -> compaction check), generalized to spec
// §4.7's explicit five-phase event sequence.
package orchestrator

import (
	"context"

	"github.com/nstogner/investigator/pkg/contextmgr"
	"github.com/nstogner/investigator/pkg/events"
	"github.com/nstogner/investigator/pkg/investigator"
	"github.com/nstogner/investigator/pkg/synthesizer"
)

// Result is the Orchestrator's contract: Run(query) -> Result.
type Result struct {
	Success         bool
	Result          string
	Iterations      int
	TotalTokensUsed int
	Decisions       []investigator.Decision
	Error           string
}

// Orchestrator wires an Investigator and a Synthesizer over one shared
// ContextManager/session.
type Orchestrator struct {
	mgr   *contextmgr.Manager
	inv   *investigator.Investigator
	syn   *synthesizer.Synthesizer
	bus   *events.Bus
}

// New creates an Orchestrator.
func New(mgr *contextmgr.Manager, inv *investigator.Investigator, syn *synthesizer.Synthesizer, bus *events.Bus) *Orchestrator {
	return &Orchestrator{mgr: mgr, inv: inv, syn: syn, bus: bus}
}

func (o *Orchestrator) emit(t events.Type, payload map[string]any) {
	if o.bus == nil {
		return
	}
	o.bus.Emit(events.Event{Type: t, Payload: payload})
}

// Run executes the investigation/synthesis pipeline spec §4.7 describes.
func (o *Orchestrator) Run(ctx context.Context, query string) Result {
	o.emit(events.TypeOrchestratorStart, map[string]any{"query": query})
	o.emit(events.TypePhaseStart, map[string]any{"phase": "investigation"})

	invResult := o.inv.Run(ctx, query)

	if !invResult.Success {
		o.emit(events.TypeOrchestratorError, map[string]any{"error": invResult.Error})
		return Result{
			Success: false, Error: invResult.Error,
			Iterations: invResult.Iterations, TotalTokensUsed: invResult.TotalTokensUsed,
			Decisions: invResult.Decisions,
		}
	}

	o.emit(events.TypePhaseEnd, map[string]any{"phase": "investigation", "success": true})
	o.emit(events.TypePhaseStart, map[string]any{"phase": "synthesis"})

	synMessages := o.mgr.GetMessagesForSynthesis()
	report, err := o.syn.Run(ctx, query, synMessages, invResult.KeyFiles)

	totalTokens := invResult.TotalTokensUsed
	finalResult := invResult.Result
	if err != nil {
		// Best-effort fallback: synthesis failure still yields success=true
		// using the Investigator's raw findings (spec §4.7 step 4).
		o.emit(events.TypePhaseEnd, map[string]any{"phase": "synthesis", "success": false})
	} else {
		totalTokens += report.TotalTokensUsed
		finalResult = report.Content
		o.emit(events.TypePhaseEnd, map[string]any{"phase": "synthesis", "success": true})
	}

	result := Result{
		Success: true, Result: finalResult,
		Iterations: invResult.Iterations, TotalTokensUsed: totalTokens,
		Decisions: invResult.Decisions,
	}

	o.emit(events.TypeOrchestratorComplete, map[string]any{"success": true, "iterations": result.Iterations})
	o.emit(events.TypeDone, map[string]any{"result": result.Result})
	return result
}
