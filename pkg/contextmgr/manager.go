// Package contextmgr implements the ContextManager: a token-budgeted
// conversation store that persists every message to disk, transparently
// compresses old/large tool results into summary placeholders with a
// recall key, and can rehydrate originals on demand. Grounded on the
// teacher's operative/pkg/controller/compaction.go threshold-and-trigger
// control flow, generalized from whole-prefix summarization to spec
// §4.2's per-message ROI-ordered compression.
package contextmgr

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nstogner/investigator/pkg/events"
	"github.com/nstogner/investigator/pkg/storage"
	"github.com/nstogner/investigator/pkg/tokens"
)

// Manager owns the live conversation for the lifetime of one run. It is
// the single writer to Session: Investigator and Synthesizer mutate the
// conversation only through this API (spec §9 "single writer").
type Manager struct {
	store     Store
	estimator tokens.Estimator
	bus       *events.Bus
	cfg       Config

	session      *storage.Session
	systemPrompt int
}

// New creates a Manager. bus may be nil if the caller does not want
// compression/recall/discard events emitted.
func New(store Store, estimator tokens.Estimator, bus *events.Bus, cfg Config) *Manager {
	return &Manager{store: store, estimator: estimator, bus: bus, cfg: cfg}
}

func (m *Manager) emit(t events.Type, payload map[string]any) {
	if m.bus == nil {
		return
	}
	m.bus.Emit(events.Event{Type: t, Payload: payload})
}

// InitSession creates a new session with zero totals.
func (m *Manager) InitSession(query, workDir string) (*storage.Session, error) {
	id := newOpaqueKey("sess")
	s := &storage.Session{
		ID:           id,
		Query:        query,
		StartedAt:    time.Now(),
		WorkingDir:   workDir,
		Budget:       storage.DefaultBudgetConfig(),
		MessagePaths: make(map[string]string),
	}
	if err := m.store.CreateSession(s); err != nil {
		return nil, &Error{Kind: ErrKindStorage, Err: err}
	}
	m.session = s
	m.systemPrompt = 0
	return s, nil
}

// SetSystemPromptTokens updates the budget breakdown's systemPrompt
// figure; the Investigator calls it once per iteration since the
// system prompt's size can change across runs (though not across
// iterations within one, per spec §9's prompt-cache discipline note).
// The Synthesizer does not call it.
func (m *Manager) SetSystemPromptTokens(n int) {
	m.systemPrompt = n
}

// Budget returns the current derived BudgetState.
func (m *Manager) Budget() storage.BudgetState {
	if m.session == nil {
		return storage.BudgetConfig{}.Compute(m.systemPrompt, 0)
	}
	return m.session.Budget.Compute(m.systemPrompt, m.session.TotalTokens)
}

// AddMessage allocates a fresh key, estimates tokens, saves the original
// to Store iff isCompressible holds, appends, updates TotalTokens,
// triggers compression if needed, and persists session metadata.
func (m *Manager) AddMessage(in AddMessageInput) (storage.Message, error) {
	if m.session == nil {
		return storage.Message{}, &Error{Kind: ErrKindNoSession}
	}

	key := newOpaqueKey("msg")

	msg := storage.Message{
		Key:       key,
		Role:      in.Role,
		Content:   in.Content,
		Tokens:    m.estimator.Estimate(in.Content),
		Timestamp: time.Now(),
		Metadata:  in.Metadata,
	}

	if isCompressible(msg, m.cfg) {
		path, err := m.store.SaveMessageContent(m.session.ID, msg)
		if err != nil {
			return storage.Message{}, &Error{Kind: ErrKindStorage, Err: err}
		}
		if m.session.MessagePaths == nil {
			m.session.MessagePaths = make(map[string]string)
		}
		m.session.MessagePaths[key] = path
	}

	m.session.Messages = append(m.session.Messages, msg)
	m.session.TotalTokens += msg.Tokens

	if err := m.runCompressionIfNeeded(); err != nil {
		slog.Error("compression pass failed", "sessionID", m.session.ID, "error", err)
	}

	if err := m.store.SaveSession(m.session); err != nil {
		return storage.Message{}, &Error{Kind: ErrKindStorage, Err: err}
	}

	// Return the (possibly now-compressed) copy of the message that was
	// actually appended, by key, since compression may have rewritten it
	// in place within the same AddMessage call.
	for i := range m.session.Messages {
		if m.session.Messages[i].Key == key {
			return m.session.Messages[i], nil
		}
	}
	return msg, nil
}

// GetMessagesForLLM returns ordered (role, content) pairs, post
// compression.
func (m *Manager) GetMessagesForLLM() []storage.Message {
	if m.session == nil {
		return nil
	}
	out := make([]storage.Message, len(m.session.Messages))
	copy(out, m.session.Messages)
	return out
}

// GetMessagesForSynthesis applies the synthesis filter of spec §4.2:
// drop failure-phrase messages, drop list_dir/ripgrep tool results,
// keep everything else.
func (m *Manager) GetMessagesForSynthesis() []SynthesisMessage {
	if m.session == nil {
		return nil
	}
	var out []SynthesisMessage
	for _, msg := range m.session.Messages {
		if containsFailurePhrase(msg.Content) {
			continue
		}
		if msg.Metadata.ToolName == "list_dir" || msg.Metadata.ToolName == "ripgrep" {
			continue
		}
		out = append(out, SynthesisMessage{
			Key:        msg.Key,
			Role:       msg.Role,
			Content:    msg.Content,
			ToolName:   msg.Metadata.ToolName,
			Source:     msg.Metadata.Source,
			Compressed: msg.Compressed,
		})
	}
	return out
}

// containsFailurePhrase reports whether content contains one of the two
// literal failure markers the synthesis filter drops on (spec §4.2).
func containsFailurePhrase(content string) bool {
	return strings.Contains(content, "执行失败") || strings.Contains(content, "错误:")
}

// Save persists the current session metadata.
func (m *Manager) Save() error {
	if m.session == nil {
		return &Error{Kind: ErrKindNoSession}
	}
	if err := m.store.SaveSession(m.session); err != nil {
		return &Error{Kind: ErrKindStorage, Err: err}
	}
	return nil
}

// SaveLLMTurn persists one LLMTurn debug record.
func (m *Manager) SaveLLMTurn(turn storage.LLMTurn) error {
	if m.session == nil {
		return &Error{Kind: ErrKindNoSession}
	}
	if err := m.store.SaveTurn(m.session.ID, turn); err != nil {
		return &Error{Kind: ErrKindStorage, Err: err}
	}
	return nil
}

// Session returns the live session (read-only use expected by callers).
func (m *Manager) Session() *storage.Session {
	return m.session
}

func newOpaqueKey(prefix string) string {
	return fmt.Sprintf("%s_%s", prefix, uuid.New().String())
}
