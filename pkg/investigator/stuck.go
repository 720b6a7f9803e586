package investigator

import "encoding/json"

// isStuck implements spec §4.5/§8 invariant 6: the last threshold
// decisions are all tool_call, share the same name, and their arguments
// serialize identically. encoding/json sorts map keys, so two maps with
// the same content always marshal to the same bytes regardless of
// insertion order.
func isStuck(decisions []Decision, threshold int) bool {
	if threshold <= 0 || len(decisions) < threshold {
		return false
	}
	tail := decisions[len(decisions)-threshold:]
	if tail[0].Kind != KindToolCall {
		return false
	}
	name := tail[0].Name
	firstArgs, err := json.Marshal(tail[0].Arguments)
	if err != nil {
		return false
	}
	for _, d := range tail[1:] {
		if d.Kind != KindToolCall || d.Name != name {
			return false
		}
		args, err := json.Marshal(d.Arguments)
		if err != nil || string(args) != string(firstArgs) {
			return false
		}
	}
	return true
}
