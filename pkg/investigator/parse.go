package investigator

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/nstogner/investigator/pkg/llm"
)

const completeSentinel = "[INVESTIGATION_COMPLETE]"

// parseDecision implements the three-layer decision parser of spec §4.5.
func parseDecision(resp llm.Response, history []Decision) Decision {
	if len(resp.ToolCalls) > 0 {
		tc := resp.ToolCalls[0]
		return Decision{Kind: KindToolCall, Name: tc.Name, Arguments: tc.Arguments}
	}

	if name, args, ok := rescueToolCall(resp.Content); ok {
		return Decision{Kind: KindToolCall, Name: name, Arguments: args}
	}

	if idx, ok := firstHallucinationMatch(resp.Content); ok {
		return Decision{
			Kind:           KindHallucinationDetected,
			Content:        resp.Content,
			CleanedContent: strings.TrimSpace(resp.Content[:idx]),
		}
	}

	if strings.Contains(resp.Content, completeSentinel) {
		if lastToolCallName(history) == "think" {
			return Decision{Kind: KindDone, Result: resp.Content}
		}
		return Decision{Kind: KindRequiresSelfCheck, Content: resp.Content}
	}

	if name, ok := detectTextToolCallPhrase(resp.Content); ok {
		return Decision{Kind: KindInvalidToolCall, Content: resp.Content, DetectedToolName: name}
	}

	if thinkingHeuristicRe.MatchString(resp.Content) {
		return Decision{Kind: KindThinking, Content: resp.Content}
	}

	return Decision{Kind: KindDone, Result: resp.Content}
}

// lastToolCallName returns the Name of the most recent tool_call Decision
// in history, or "" if there is none.
func lastToolCallName(history []Decision) string {
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Kind == KindToolCall {
			return history[i].Name
		}
	}
	return ""
}

// Layer 2 rescue patterns, tried in order.
var (
	rescueChineseRe = regexp.MustCompile(`我将使用\s*"?([A-Za-z0-9_\-./]+)"?\s*工具[:：]?\s*(\{.*\})`)
	rescueEnglishRe = regexp.MustCompile(`(?i)I(?:'ll| will) use (?:the )?"?([A-Za-z0-9_\-./]+)"?\s*tool[:]?\s*(\{.*\})`)
	rescueFencedRe  = regexp.MustCompile("(?s)([A-Za-z0-9_\\-./]+)[^`]{0,80}```(?:json)?\\s*(\\{.*?\\})\\s*```")
)

// rescueToolCall tries to recover (toolName, arguments) from free text per
// spec §4.5 layer 2.
func rescueToolCall(content string) (name string, args map[string]any, ok bool) {
	for _, re := range []*regexp.Regexp{rescueChineseRe, rescueEnglishRe, rescueFencedRe} {
		m := re.FindStringSubmatch(content)
		if m == nil {
			continue
		}
		name, rawJSON := m[1], m[2]
		repaired := repairJSON(rawJSON)
		var parsed map[string]any
		if err := json.Unmarshal([]byte(repaired), &parsed); err != nil {
			continue
		}
		return name, parsed, true
	}
	return "", nil, false
}

var (
	smartQuoteRe    = regexp.MustCompile("[“”]")
	smartSingleRe   = regexp.MustCompile("[‘’]")
	trailingCommaRe = regexp.MustCompile(`,\s*([}\]])`)
	unquotedKeyRe   = regexp.MustCompile(`([{,]\s*)([A-Za-z_][A-Za-z0-9_]*)(\s*:)`)
	chineseColonRe  = regexp.MustCompile(`：`)
	trailingJunkRe  = regexp.MustCompile(`\}[^}]*$`)
)

// repairJSON applies the small repair pass spec §4.5 names: smart quotes
// to straight, trailing comma strip, unquoted keys quoted, Chinese colon
// to ASCII, trailing junk after the last "}" stripped.
func repairJSON(s string) string {
	s = smartQuoteRe.ReplaceAllString(s, `"`)
	s = smartSingleRe.ReplaceAllString(s, `'`)
	s = chineseColonRe.ReplaceAllString(s, ":")
	s = unquotedKeyRe.ReplaceAllString(s, `$1"$2"$3`)
	s = trailingCommaRe.ReplaceAllString(s, "$1")
	if idx := strings.LastIndex(s, "}"); idx != -1 {
		s = trailingJunkRe.ReplaceAllString(s, "}")
	}
	return s
}

// Layer 3 hallucination patterns, checked in order; firstHallucinationMatch
// returns the earliest match start across all four.
var hallucinationPatterns = []*regexp.Regexp{
	regexp.MustCompile(`</user>`),
	regexp.MustCompile(`工具\s*"[^"]+"\s*执行(成功|失败)`),
	regexp.MustCompile(`(?i)Tool\s*"[^"]+"\s*(executed|completed|failed)`),
	regexp.MustCompile(`(?m)^File:\s+\S+\nLines:\s+\d+-\d+`),
}

// firstHallucinationMatch returns the index of the earliest pattern match
// in content across all four hallucination patterns.
func firstHallucinationMatch(content string) (int, bool) {
	best := -1
	for _, re := range hallucinationPatterns {
		loc := re.FindStringIndex(content)
		if loc == nil {
			continue
		}
		if best == -1 || loc[0] < best {
			best = loc[0]
		}
	}
	if best == -1 {
		return 0, false
	}
	return best, true
}

// textToolCallPhraseRe matches the three phrases spec §4.5 names for
// detecting a text-described (invalid) tool call. Captures the tool name.
var textToolCallPhraseRe = regexp.MustCompile(
	`我将使用\s*"?([A-Za-z0-9_\-./]+)"?\s*工具|` +
		`(?i)I'll use (?:the )?"?([A-Za-z0-9_\-./]+)"?\s*tool|` +
		`使用\s*"?([A-Za-z0-9_\-./]+)"?\s*工支`,
)

func detectTextToolCallPhrase(content string) (string, bool) {
	m := textToolCallPhraseRe.FindStringSubmatch(content)
	if m == nil {
		return "", false
	}
	for _, g := range m[1:] {
		if g != "" {
			return g, true
		}
	}
	return "", true
}

// thinkingHeuristicRe matches the English/Chinese "thinking" phrasings of
// spec §4.5.
var thinkingHeuristicRe = regexp.MustCompile(
	`(?i)\b(let me\b|I'll (check|look|search|investigate|examine|try))|` +
		`需要|让我|我(来|需要|应该)`,
)
