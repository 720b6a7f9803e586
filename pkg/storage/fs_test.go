package storage_test

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/nstogner/investigator/pkg/storage"
)

func newTestSession(id string) *storage.Session {
	return &storage.Session{
		ID:         id,
		Query:      "Test query",
		StartedAt:  time.Now(),
		WorkingDir: "/tmp/project",
		Budget:     storage.DefaultBudgetConfig(),
	}
}

func TestCreateAndLoadSession(t *testing.T) {
	fs := storage.NewFS(t.TempDir())
	s := newTestSession("sess-1")

	if err := fs.CreateSession(s); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	loaded, err := fs.LoadSession("sess-1")
	if err != nil {
		t.Fatalf("LoadSession: %v", err)
	}
	if loaded.Query != "Test query" {
		t.Fatalf("got query %q", loaded.Query)
	}
}

func TestLoadSessionNotFound(t *testing.T) {
	fs := storage.NewFS(t.TempDir())
	if _, err := fs.LoadSession("missing"); err == nil {
		t.Fatal("expected error for missing session")
	}
}

func TestSaveAndLoadMessageContentRoundTrip(t *testing.T) {
	fs := storage.NewFS(t.TempDir())
	s := newTestSession("sess-2")
	if err := fs.CreateSession(s); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	original := storage.Message{
		Key:       "msg_abcd1234",
		Role:      storage.RoleUser,
		Content:   "the full, uncompressed content of a tool result",
		Tokens:    42,
		Timestamp: time.Now(),
	}

	path, err := fs.SaveMessageContent(s.ID, original)
	if err != nil {
		t.Fatalf("SaveMessageContent: %v", err)
	}
	if path == "" {
		t.Fatal("expected non-empty path")
	}

	restored, err := fs.LoadMessageContent(s.ID, original.Key)
	if err != nil {
		t.Fatalf("LoadMessageContent: %v", err)
	}
	if restored.Content != original.Content {
		t.Fatalf("content mismatch: got %q want %q", restored.Content, original.Content)
	}
	if restored.Compressed {
		t.Fatal("restored message should never report compressed=true")
	}
}

func TestSaveTurnZeroPaddedSequence(t *testing.T) {
	base := t.TempDir()
	fs := storage.NewFS(base)
	s := newTestSession("sess-3")
	if err := fs.CreateSession(s); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	for i := 0; i < 3; i++ {
		if err := fs.SaveTurn(s.ID, storage.LLMTurn{Agent: "investigator"}); err != nil {
			t.Fatalf("SaveTurn %d: %v", i, err)
		}
	}
	// Three turns should produce investigator-001.json .. investigator-003.json.
	for i := 1; i <= 3; i++ {
		name := fmt.Sprintf("investigator-%03d.json", i)
		if _, err := os.Stat(filepath.Join(base, "sessions", s.ID, "turns", name)); err != nil {
			t.Fatalf("expected turn file %s: %v", name, err)
		}
	}

	// A second session on the same FS starts its own counter at 001: the
	// first session's counter must not leak into it.
	s2 := newTestSession("sess-4")
	if err := fs.CreateSession(s2); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if err := fs.SaveTurn(s2.ID, storage.LLMTurn{Agent: "investigator"}); err != nil {
		t.Fatalf("SaveTurn: %v", err)
	}
	if _, err := os.Stat(filepath.Join(base, "sessions", s2.ID, "turns", "investigator-001.json")); err != nil {
		t.Fatalf("expected second session to start at investigator-001.json: %v", err)
	}
}
