package contextmgr

import (
	"github.com/nstogner/investigator/pkg/storage"
)

// Message and Session reuse storage's on-disk shapes directly: spec §3
// names exactly the fields storage.Message/storage.Session already
// carry, so there is no separate in-memory projection to keep in sync.
type Message = storage.Message
type Session = storage.Session
type Metadata = storage.Metadata
type BudgetConfig = storage.BudgetConfig
type BudgetState = storage.BudgetState
type LLMTurn = storage.LLMTurn

// SynthesisMessage is the projection of a Message handed to the
// Synthesizer (spec §3).
type SynthesisMessage struct {
	Key        string
	Role       storage.Role
	Content    string
	ToolName   string
	Source     string
	Compressed bool
}

// AddMessageInput is the argument to AddMessage.
type AddMessageInput struct {
	Role     storage.Role
	Content  string
	Metadata Metadata
}

// Store is the subset of storage.FS the ContextManager depends on. Kept
// as a narrow consumer-defined interface so tests can substitute an
// in-memory fake without touching disk.
type Store interface {
	CreateSession(s *storage.Session) error
	SaveSession(s *storage.Session) error
	SaveMessageContent(sid string, msg storage.Message) (string, error)
	LoadMessageContent(sid, key string) (*storage.Message, error)
	SaveTurn(sid string, turn storage.LLMTurn) error
}

// Config tunes the compression/eviction thresholds spec §4.2 fixes as
// defaults. Exposed so tests can exercise small sessions without
// needing 200+ token messages.
type Config struct {
	MinTokensToCompress     int
	TriggerRatio            float64
	TargetRatio             float64
	ProtectedRecentMessages int
}

// DefaultConfig matches spec §4.2's named defaults.
func DefaultConfig() Config {
	return Config{
		MinTokensToCompress:     200,
		TriggerRatio:            0.80,
		TargetRatio:             0.60,
		ProtectedRecentMessages: 4,
	}
}

// RecallResult is the structured payload Recall returns (spec §4.2).
type RecallResult struct {
	Success       bool     `json:"success"`
	Content       string   `json:"content,omitempty"`
	Tokens        int      `json:"tokens,omitempty"`
	Source        string   `json:"source,omitempty"`
	Note          string   `json:"note,omitempty"`
	ErrorKind     string   `json:"errorKind,omitempty"`
	CompressedHint []string `json:"compressedKeysHint,omitempty"`
}
