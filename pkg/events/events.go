// Package events implements the typed event bus: synchronous fan-out of
// lifecycle signals to any observer. Grounded on the subscribe/broadcast
// pattern in the teacher's store/jsonl Manager (Subscribe returning a
// channel, a broadcast loop fanning out to subscribers) but adapted to
// direct synchronous calls, since spec §5/§9 requires a strict,
// observable emission order that an async channel broadcaster cannot
// guarantee.
package events

import "log/slog"

// Type enumerates the event kinds produced by the core, per spec §6.
type Type string

const (
	TypeSessionStart         Type = "session_start"
	TypeSessionEnd           Type = "session_end"
	TypeIterationStart       Type = "iteration_start"
	TypeIterationEnd         Type = "iteration_end"
	TypeThinking             Type = "thinking"
	TypeToolCall             Type = "tool_call"
	TypeToolResult           Type = "tool_result"
	TypeDone                 Type = "done"
	TypeError                Type = "error"
	TypeCompression          Type = "compression"
	TypeRecall               Type = "recall"
	TypeMessagesDiscarded    Type = "messages_discarded"
	TypePhaseStart           Type = "phase_start"
	TypePhaseEnd             Type = "phase_end"
	TypeSynthesisStart       Type = "synthesis_start"
	TypeSynthesisComplete    Type = "synthesis_complete"
	TypeSynthesisError       Type = "synthesis_error"
	TypeOrchestratorStart    Type = "orchestrator_start"
	TypeOrchestratorComplete Type = "orchestrator_complete"
	TypeOrchestratorError    Type = "orchestrator_error"
)

// Event is the envelope delivered to every subscriber. Payload holds the
// event-specific fields as a plain map so the bus stays agnostic of any
// one event's shape; producers build Payload with the field names named
// in spec §6 (e.g. {"iteration": n, "maxIterations": m, "budget": b}).
type Event struct {
	Type    Type
	Payload map[string]any
}

// Observer receives events in registration order, once per Emit call.
type Observer func(Event)

// Bus is a synchronous, in-process fan-out point. Emit invokes every
// subscriber in registration order on the caller's goroutine; a panicking
// subscriber is recovered and logged so it can never break the bus for
// the remaining subscribers (mirrors spec §5: "a subscriber exception
// must be caught and logged, never break the bus").
type Bus struct {
	observers []Observer

	buffering bool
	buffered  []Event
}

// New creates an empty Bus.
func New() *Bus {
	return &Bus{}
}

// Subscribe registers an Observer. Order of registration is the order
// events are delivered in.
func (b *Bus) Subscribe(o Observer) {
	b.observers = append(b.observers, o)
}

// Emit delivers ev to every subscriber, in registration order. If
// buffering is enabled, ev is also appended to the buffer (buffering
// does not suppress live delivery; Drain is what an observer calls to
// retrieve everything captured while turned on).
func (b *Bus) Emit(ev Event) {
	if b.buffering {
		b.buffered = append(b.buffered, ev)
	}
	for _, o := range b.observers {
		safeInvoke(o, ev)
	}
}

func safeInvoke(o Observer, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("event observer panicked", "event", ev.Type, "recovered", r)
		}
	}()
	o(ev)
}

// SetBuffering toggles capture of emitted events into an in-memory list,
// used by non-interactive JSON output collaborators that want to replay
// the whole run's event stream once it completes.
func (b *Bus) SetBuffering(on bool) {
	b.buffering = on
}

// Drain returns and clears the buffered events captured while buffering
// was enabled.
func (b *Bus) Drain() []Event {
	out := b.buffered
	b.buffered = nil
	return out
}
