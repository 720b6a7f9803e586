package contextmgr

import (
	"fmt"
	"math"
	"regexp"
	"sort"
	"strings"

	"github.com/nstogner/investigator/pkg/events"
	"github.com/nstogner/investigator/pkg/storage"
)

// isCompressible implements spec §4.2's compressibility predicate: not
// already compressed, not explicitly marked compressible=false, and
// either (a) carries a toolName, or (b) is at least MinTokensToCompress.
func isCompressible(msg storage.Message, cfg Config) bool {
	if msg.Compressed {
		return false
	}
	if msg.Metadata.Compressible != nil && !*msg.Metadata.Compressible {
		return false
	}
	if msg.Metadata.ToolName != "" {
		return true
	}
	return msg.Tokens >= cfg.MinTokensToCompress
}

// priority is the candidate ranking tier spec §4.2 assigns per message.
type priority int

const (
	priorityLow priority = iota
	priorityMedium
	priorityHigh
)

type candidate struct {
	index    int
	priority priority
	savings  int
	estTok   int
}

// runCompressionIfNeeded is called after every AddMessage. If
// used/total >= TriggerRatio, it compresses ROI-ordered candidates
// until used <= TargetRatio*total or candidates are exhausted, then
// falls back to evicting the oldest unprotected messages.
func (m *Manager) runCompressionIfNeeded() error {
	budget := m.Budget()
	if budget.Total == 0 {
		return nil
	}
	usedRatio := float64(budget.Used) / float64(budget.Total)
	if usedRatio < m.cfg.TriggerRatio {
		return nil
	}

	targetUsed := int(m.cfg.TargetRatio * float64(budget.Total))

	for {
		budget = m.Budget()
		if budget.Used <= targetUsed {
			return nil
		}
		cands := m.collectCandidates()
		if len(cands) == 0 {
			break
		}
		c := cands[0]
		if err := m.compressAt(c.index); err != nil {
			return err
		}
	}

	return m.evictUntilTarget(targetUsed)
}

// collectCandidates returns every compressible, non-protected message,
// ordered by priority (high first) then savings descending.
func (m *Manager) collectCandidates() []candidate {
	n := len(m.session.Messages)
	protectedFrom := n - m.cfg.ProtectedRecentMessages
	if protectedFrom < 0 {
		protectedFrom = 0
	}

	var cands []candidate
	for i := 0; i < protectedFrom; i++ {
		msg := m.session.Messages[i]
		if !isCompressible(msg, m.cfg) {
			continue
		}
		ratio := 0.20
		isToolResult := msg.Metadata.ToolName != ""
		if isToolResult {
			ratio = 0.05
		}
		est := int(math.Ceil(float64(msg.Tokens) * ratio))
		if est < 50 {
			est = 50
		}
		savings := msg.Tokens - est
		if savings <= 0 {
			continue
		}

		p := priorityMedium
		switch {
		case msg.Metadata.ToolName == "read_file" || msg.Metadata.ToolName == "ripgrep":
			p = priorityHigh
		case msg.Role == storage.RoleAssistant:
			p = priorityLow
		}

		cands = append(cands, candidate{index: i, priority: p, savings: savings, estTok: est})
	}

	sort.SliceStable(cands, func(a, b int) bool {
		if cands[a].priority != cands[b].priority {
			return cands[a].priority > cands[b].priority
		}
		return cands[a].savings > cands[b].savings
	})
	return cands
}

// compressAt replaces message i's content with its placeholder,
// preserving Key and recording OriginalTokens, then adjusts TotalTokens.
func (m *Manager) compressAt(i int) error {
	msg := &m.session.Messages[i]
	placeholder := buildPlaceholder(*msg)
	newTokens := m.estimator.Estimate(placeholder)

	prevTokens := msg.Tokens
	msg.OriginalTokens = prevTokens
	msg.Content = placeholder
	msg.Compressed = true
	msg.Tokens = newTokens

	m.session.TotalTokens += newTokens - prevTokens

	m.emit(events.TypeCompression, map[string]any{
		"key":            msg.Key,
		"originalTokens": prevTokens,
		"newTokens":      newTokens,
	})
	return nil
}

// evictUntilTarget discards the oldest unprotected messages (whether or
// not they were ever compressible) until budget.Used <= targetUsed or no
// unprotected messages remain.
func (m *Manager) evictUntilTarget(targetUsed int) error {
	discardedCount := 0
	tokensFreed := 0

	for {
		budget := m.Budget()
		if budget.Used <= targetUsed {
			break
		}
		n := len(m.session.Messages)
		protectedFrom := n - m.cfg.ProtectedRecentMessages
		if protectedFrom <= 0 {
			break
		}

		victim := m.session.Messages[0]
		tokensFreed += victim.Tokens
		m.session.TotalTokens -= victim.Tokens
		m.session.Messages = m.session.Messages[1:]
		discardedCount++
	}

	if discardedCount > 0 {
		m.emit(events.TypeMessagesDiscarded, map[string]any{
			"count":       discardedCount,
			"tokensFreed": tokensFreed,
		})
	}
	return nil
}

// symbolKeywordRe matches an identifier immediately following one of the
// function/class/type/interface/def keywords (spec §4.2's "simple
// identifier-after-keyword scan").
var symbolKeywordRe = regexp.MustCompile(`\b(?:function|class|type|interface|def)\s+([A-Za-z_][A-Za-z0-9_]*)`)

// extractSymbols returns up to 5 symbol names found in content, plus the
// total count found (which may exceed 5).
func extractSymbols(content string) (syms []string, total int) {
	matches := symbolKeywordRe.FindAllStringSubmatch(content, -1)
	total = len(matches)
	for i, mm := range matches {
		if i >= 5 {
			break
		}
		syms = append(syms, mm[1])
	}
	return syms, total
}

// buildPlaceholder renders the compressed-content replacement for msg,
// per spec §4.2's three shapes (read_file, ripgrep, generic).
func buildPlaceholder(msg storage.Message) string {
	switch msg.Metadata.ToolName {
	case "read_file":
		return readFilePlaceholder(msg)
	case "ripgrep":
		return ripgrepPlaceholder(msg)
	default:
		return genericPlaceholder(msg)
	}
}

func readFilePlaceholder(msg storage.Message) string {
	lineCount := strings.Count(msg.Content, "\n") + 1
	if msg.Content == "" {
		lineCount = 0
	}
	syms, total := extractSymbols(msg.Content)
	symStr := strings.Join(syms, ",")
	extra := ""
	if total > 5 {
		extra = fmt.Sprintf(" [等%d个符号]", total)
	}
	return fmt.Sprintf(
		"[COMPRESSED:%s] 文件 %s (%d行) 包含: %s%s\n如需完整内容，使用 recall_detail(key=\"%s\")",
		msg.Key, msg.Metadata.Source, lineCount, symStr, extra, msg.Key,
	)
}

func ripgrepPlaceholder(msg storage.Message) string {
	matches := strings.Count(msg.Content, "\n")
	return fmt.Sprintf(
		"[COMPRESSED:%s] 搜索结果 (%d个匹配)\n如需完整内容，使用 recall_detail(key=\"%s\")",
		msg.Key, matches, msg.Key,
	)
}

func genericPlaceholder(msg storage.Message) string {
	runes := []rune(msg.Content)
	n := 200
	if len(runes) < n {
		n = len(runes)
	}
	head := strings.ReplaceAll(string(runes[:n]), "\n", " ")
	return fmt.Sprintf(
		"%s…\n如需完整内容，使用 recall_detail(key=\"%s\")",
		head, msg.Key,
	)
}
