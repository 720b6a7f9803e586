package contextmgr

import "github.com/nstogner/investigator/pkg/events"

// Recall resolves a compressed message's key back to its original
// content. Recall never mutates the conversation, totalTokens, or
// budget (spec invariant 9).
func (m *Manager) Recall(key string) RecallResult {
	if m.session == nil {
		return RecallResult{Success: false, ErrorKind: string(ErrKindNoSession)}
	}

	idx := -1
	for i, msg := range m.session.Messages {
		if msg.Key == key {
			idx = i
			break
		}
	}

	if idx == -1 {
		hint := m.compressedKeysHint(5)
		res := RecallResult{Success: false, ErrorKind: string(ErrKindRecall), CompressedHint: hint}
		m.emit(events.TypeRecall, map[string]any{"key": key, "success": false})
		return res
	}

	msg := m.session.Messages[idx]
	if !msg.Compressed {
		res := RecallResult{
			Success: true,
			Content: msg.Content,
			Tokens:  msg.Tokens,
			Note:    "not compressed",
		}
		m.emit(events.TypeRecall, map[string]any{"key": key, "success": true, "tokensRecalled": 0})
		return res
	}

	original, err := m.store.LoadMessageContent(m.session.ID, key)
	if err != nil {
		res := RecallResult{Success: false, ErrorKind: string(ErrKindStorage)}
		m.emit(events.TypeRecall, map[string]any{"key": key, "success": false})
		return res
	}

	res := RecallResult{
		Success: true,
		Content: original.Content,
		Tokens:  original.Tokens,
		Source:  msg.Metadata.Source,
	}
	m.emit(events.TypeRecall, map[string]any{"key": key, "success": true, "tokensRecalled": original.Tokens})
	return res
}

// compressedKeysHint lists up to n currently-compressed message keys, in
// conversation order, for the "unknown key" recall payload.
func (m *Manager) compressedKeysHint(n int) []string {
	var hint []string
	for _, msg := range m.session.Messages {
		if !msg.Compressed {
			continue
		}
		hint = append(hint, msg.Key)
		if len(hint) >= n {
			break
		}
	}
	return hint
}
