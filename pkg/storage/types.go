// Package storage implements the on-disk session layout: session
// metadata, per-message originals, and per-turn debug records, rooted
// at <base>/sessions/<sid>/.
package storage

import "time"

// Role identifies the sender of a Message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Metadata carries optional per-message annotations.
type Metadata struct {
	ToolName     string `json:"toolName,omitempty"`
	Source       string `json:"source,omitempty"`
	Compressible *bool  `json:"compressible,omitempty"`
}

// Message is a single entry in a Session's conversation.
type Message struct {
	Key            string    `json:"key"`
	Role           Role      `json:"role"`
	Content        string    `json:"content"`
	Tokens         int       `json:"tokens"`
	Compressed     bool      `json:"compressed"`
	OriginalTokens int       `json:"originalTokens,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
	Metadata       Metadata  `json:"metadata"`
}

// BudgetConfig is immutable, supplied at session creation.
type BudgetConfig struct {
	ContextWindow        int `json:"contextWindow"`
	ReservedForSynthesis int `json:"reservedForSynthesis"`
	ReservedForRecalls   int `json:"reservedForRecalls"`
	ReservedForNextSteps int `json:"reservedForNextSteps"`
}

// DefaultBudgetConfig matches the configuration defaults in spec §6.
func DefaultBudgetConfig() BudgetConfig {
	return BudgetConfig{
		ContextWindow:        262144,
		ReservedForSynthesis: 30000,
		ReservedForRecalls:   20000,
		ReservedForNextSteps: 15000,
	}
}

// BudgetBreakdown itemizes how the budget's "used" and "reserved"
// figures are composed.
type BudgetBreakdown struct {
	SystemPrompt int `json:"systemPrompt"`
	Messages     int `json:"messages"`
	Reserved     int `json:"reserved"`
}

// BudgetState is derived fresh whenever the session's tokens change.
type BudgetState struct {
	Total     int             `json:"total"`
	Used      int             `json:"used"`
	Available int             `json:"available"`
	Breakdown BudgetBreakdown `json:"breakdown"`
}

// Compute derives a BudgetState from the config and current token usage.
func (c BudgetConfig) Compute(systemPromptTokens, messageTokens int) BudgetState {
	reserved := c.ReservedForSynthesis + c.ReservedForRecalls + c.ReservedForNextSteps
	used := systemPromptTokens + messageTokens
	available := c.ContextWindow - used - reserved
	if available < 0 {
		available = 0
	}
	return BudgetState{
		Total:     c.ContextWindow,
		Used:      used,
		Available: available,
		Breakdown: BudgetBreakdown{
			SystemPrompt: systemPromptTokens,
			Messages:     messageTokens,
			Reserved:     reserved,
		},
	}
}

// Session is the persisted, in-memory-owned record of one investigation.
type Session struct {
	ID           string            `json:"id"`
	Query        string            `json:"query"`
	StartedAt    time.Time         `json:"startedAt"`
	WorkingDir   string            `json:"workingDir"`
	Messages     []Message         `json:"messages"`
	TotalTokens  int               `json:"totalTokens"`
	MessagePaths map[string]string `json:"storageMessages"`
	Budget       BudgetConfig      `json:"budget"`
}

// LLMTurn is a debug record of one model round-trip, persisted for
// offline inspection under turns/<agent>-<NNN>.json.
type LLMTurn struct {
	ID             string          `json:"id"`
	Agent          string          `json:"agent"`
	Index          int             `json:"index"`
	SystemPrompt   string          `json:"systemPrompt"`
	InputMessages  []TurnMessage   `json:"inputMessages"`
	ToolSchemas    []string        `json:"toolSchemas,omitempty"`
	OutputContent  string          `json:"outputContent"`
	Thinking       string          `json:"thinking,omitempty"`
	ToolCalls      []TurnToolCall  `json:"toolCalls,omitempty"`
	Usage          TurnUsage       `json:"usage"`
	StartedAt      time.Time       `json:"startedAt"`
	FinishedAt     time.Time       `json:"finishedAt"`
	ToolExecResult *TurnToolResult `json:"toolExecResult,omitempty"`
}

// TurnMessage is the (key, role, compressed, content) projection of a
// Message as it was sent to the model for this turn.
type TurnMessage struct {
	Key        string `json:"key"`
	Role       Role   `json:"role"`
	Compressed bool   `json:"compressed"`
	Content    string `json:"content"`
}

// TurnToolCall records one tool invocation requested by the model.
type TurnToolCall struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// TurnToolResult records the outcome of executing a TurnToolCall.
type TurnToolResult struct {
	Success  bool   `json:"success"`
	Output   string `json:"output"`
	Duration int64  `json:"durationMs"`
}

// TurnUsage carries whatever usage accounting the LLMClient reported.
type TurnUsage struct {
	InputTokens  int  `json:"inputTokens"`
	OutputTokens int  `json:"outputTokens"`
	CacheHit     bool `json:"cacheHit,omitempty"`
	CachedTokens int  `json:"cachedTokens,omitempty"`
}
