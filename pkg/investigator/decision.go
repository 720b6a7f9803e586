package investigator

// Kind identifies which arm of the Decision tagged union is populated.
type Kind string

const (
	KindToolCall              Kind = "tool_call"
	KindDone                  Kind = "done"
	KindThinking              Kind = "thinking"
	KindInvalidToolCall       Kind = "invalid_tool_call"
	KindRequiresSelfCheck     Kind = "requires_self_check"
	KindHallucinationDetected Kind = "hallucination_detected"
)

// Decision is the single model-turn result the parser produces, one per
// Investigator iteration (spec §3). Exactly one set of fields is
// meaningful per Kind; the rest are zero.
type Decision struct {
	Kind Kind

	// tool_call
	Name      string
	Arguments map[string]any

	// done
	Result string

	// thinking, invalid_tool_call, requires_self_check,
	// hallucination_detected
	Content string

	// invalid_tool_call
	DetectedToolName string

	// hallucination_detected
	CleanedContent string
}
