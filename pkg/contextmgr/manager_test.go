package contextmgr_test

import (
	"strings"
	"testing"

	"github.com/nstogner/investigator/pkg/contextmgr"
	"github.com/nstogner/investigator/pkg/storage"
	"github.com/nstogner/investigator/pkg/tokens"
)

func newManager(t *testing.T, cfg contextmgr.Config) (*contextmgr.Manager, *storage.FS) {
	t.Helper()
	fs := storage.NewFS(t.TempDir())
	mgr := contextmgr.New(fs, tokens.NewHeuristic(), nil, cfg)
	if _, err := mgr.InitSession("Test query", "/tmp/project"); err != nil {
		t.Fatalf("InitSession: %v", err)
	}
	return mgr, fs
}

// TestTotalTokensInvariant exercises invariant 1: totalTokens always
// equals the sum of current message tokens.
func TestTotalTokensInvariant(t *testing.T) {
	mgr, _ := newManager(t, contextmgr.DefaultConfig())

	for _, c := range []string{"hello", "a longer message here", "third"} {
		if _, err := mgr.AddMessage(contextmgr.AddMessageInput{Role: storage.RoleUser, Content: c}); err != nil {
			t.Fatalf("AddMessage: %v", err)
		}
	}

	sess := mgr.Session()
	sum := 0
	for _, m := range sess.Messages {
		sum += m.Tokens
	}
	if sum != sess.TotalTokens {
		t.Fatalf("totalTokens=%d want sum=%d", sess.TotalTokens, sum)
	}
}

// TestAddMessageNoSession covers the no_active_session failure mode.
func TestAddMessageNoSession(t *testing.T) {
	fs := storage.NewFS(t.TempDir())
	mgr := contextmgr.New(fs, tokens.NewHeuristic(), nil, contextmgr.DefaultConfig())
	if _, err := mgr.AddMessage(contextmgr.AddMessageInput{Role: storage.RoleUser, Content: "hi"}); err == nil {
		t.Fatal("expected error with no active session")
	}
}

// TestCompressionAndRecallRoundTrip exercises invariant 2 and scenario S5:
// a large tool result triggers compression and recall returns the
// original verbatim.
func TestCompressionAndRecallRoundTrip(t *testing.T) {
	cfg := contextmgr.Config{
		MinTokensToCompress:     20,
		TriggerRatio:            0.80,
		TargetRatio:             0.60,
		ProtectedRecentMessages: 1,
	}
	fs := storage.NewFS(t.TempDir())
	mgr := contextmgr.New(fs, tokens.NewHeuristic(), nil, cfg)
	sess, err := mgr.InitSession("q", "/tmp")
	if err != nil {
		t.Fatalf("InitSession: %v", err)
	}
	sess.Budget.ContextWindow = 1000
	sess.Budget.ReservedForSynthesis = 0
	sess.Budget.ReservedForRecalls = 0
	sess.Budget.ReservedForNextSteps = 0

	big := strings.Repeat("func DoWork() {}\n", 80)
	msg, err := mgr.AddMessage(contextmgr.AddMessageInput{
		Role:     storage.RoleUser,
		Content:  big,
		Metadata: contextmgr.Metadata{ToolName: "read_file", Source: "pkg/work.go"},
	})
	if err != nil {
		t.Fatalf("AddMessage: %v", err)
	}
	key := msg.Key
	originalContent := big

	// Push usage over the trigger ratio with a filler message.
	filler := strings.Repeat("x", 1500)
	if _, err := mgr.AddMessage(contextmgr.AddMessageInput{Role: storage.RoleAssistant, Content: filler}); err != nil {
		t.Fatalf("AddMessage filler: %v", err)
	}

	var compressed *storage.Message
	for i, m := range mgr.Session().Messages {
		if m.Key == key {
			compressed = &mgr.Session().Messages[i]
		}
	}
	if compressed == nil {
		t.Fatal("original message vanished")
	}
	if !compressed.Compressed {
		t.Skip("usage did not reach trigger ratio in this configuration")
	}
	if !strings.HasPrefix(compressed.Content, "[COMPRESSED:"+key) {
		t.Fatalf("placeholder does not start with compressed marker: %q", compressed.Content)
	}
	if compressed.OriginalTokens == 0 {
		t.Fatal("expected OriginalTokens to be recorded")
	}

	result := mgr.Recall(key)
	if !result.Success {
		t.Fatalf("recall failed: %+v", result)
	}
	if result.Content != originalContent {
		t.Fatalf("recalled content mismatch")
	}
}

// TestProtectedTailNeverCompressed exercises invariant 4.
func TestProtectedTailNeverCompressed(t *testing.T) {
	cfg := contextmgr.Config{
		MinTokensToCompress:     1,
		TriggerRatio:            0.01,
		TargetRatio:             0.0,
		ProtectedRecentMessages: 4,
	}
	fs := storage.NewFS(t.TempDir())
	mgr := contextmgr.New(fs, tokens.NewHeuristic(), nil, cfg)
	sess, _ := mgr.InitSession("q", "/tmp")
	sess.Budget.ContextWindow = 10000
	sess.Budget.ReservedForSynthesis = 0
	sess.Budget.ReservedForRecalls = 0
	sess.Budget.ReservedForNextSteps = 0

	for i := 0; i < 6; i++ {
		if _, err := mgr.AddMessage(contextmgr.AddMessageInput{
			Role:    storage.RoleUser,
			Content: strings.Repeat("word ", 50),
		}); err != nil {
			t.Fatalf("AddMessage %d: %v", i, err)
		}
	}

	msgs := mgr.Session().Messages
	tail := msgs[len(msgs)-4:]
	for _, m := range tail {
		if m.Compressed {
			t.Fatalf("protected tail message %s was compressed", m.Key)
		}
	}
}

// TestRecallUnknownKeyFails exercises the "missing key" recall path.
func TestRecallUnknownKeyFails(t *testing.T) {
	mgr, _ := newManager(t, contextmgr.DefaultConfig())
	result := mgr.Recall("msg_doesnotexist")
	if result.Success {
		t.Fatal("expected failure for unknown key")
	}
}

// TestRecallIsReadOnly exercises invariant 9.
func TestRecallIsReadOnly(t *testing.T) {
	mgr, _ := newManager(t, contextmgr.DefaultConfig())
	msg, err := mgr.AddMessage(contextmgr.AddMessageInput{
		Role:     storage.RoleUser,
		Content:  strings.Repeat("z", 300),
		Metadata: contextmgr.Metadata{ToolName: "read_file", Source: "a.go"},
	})
	if err != nil {
		t.Fatalf("AddMessage: %v", err)
	}

	before := mgr.Session().TotalTokens
	mgr.Recall(msg.Key)
	after := mgr.Session().TotalTokens
	if before != after {
		t.Fatalf("recall mutated totalTokens: before=%d after=%d", before, after)
	}
}

// TestSynthesisFilterDropsFailuresAndListDirRipgrep exercises the
// synthesis filter rules of spec §4.2.
func TestSynthesisFilterDropsFailuresAndListDirRipgrep(t *testing.T) {
	mgr, _ := newManager(t, contextmgr.DefaultConfig())

	mustAdd := func(role storage.Role, content string, meta contextmgr.Metadata) {
		if _, err := mgr.AddMessage(contextmgr.AddMessageInput{Role: role, Content: content, Metadata: meta}); err != nil {
			t.Fatalf("AddMessage: %v", err)
		}
	}

	mustAdd(storage.RoleUser, "original query", contextmgr.Metadata{})
	mustAdd(storage.RoleUser, "工具 \"ripgrep\" 执行失败:\n\n错误: not found", contextmgr.Metadata{ToolName: "ripgrep"})
	mustAdd(storage.RoleUser, "dir listing", contextmgr.Metadata{ToolName: "list_dir"})
	mustAdd(storage.RoleUser, "file contents here", contextmgr.Metadata{ToolName: "read_file", Source: "a.go"})
	mustAdd(storage.RoleAssistant, "analysis prose", contextmgr.Metadata{})

	filtered := mgr.GetMessagesForSynthesis()
	if len(filtered) != 3 {
		t.Fatalf("got %d messages, want 3: %+v", len(filtered), filtered)
	}
	for _, m := range filtered {
		if m.ToolName == "ripgrep" || m.ToolName == "list_dir" {
			t.Fatalf("synthesis filter should drop %s", m.ToolName)
		}
	}
}
