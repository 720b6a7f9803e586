package investigator

import "regexp"

// sourceFileRe matches a source-file-looking token by extension, per spec
// §4.5's keyFiles scan list.
var sourceFileRe = regexp.MustCompile(
	`\b[\w./\-]+\.(?:ts|js|go|py|java|rs|rb|cpp|c|h|tsx|jsx|vue|svelte)\b`,
)

// trackKeyFiles appends path (if the tool was read_file and args carries a
// string "path") and up to 10 source-file-looking substrings scanned out
// of output, deduplicating against the running list, in order.
func trackKeyFiles(keyFiles []string, toolName string, args map[string]any, output string) []string {
	if toolName == "read_file" {
		if p, ok := args["path"].(string); ok && p != "" {
			keyFiles = appendDedup(keyFiles, p)
		}
	}

	matches := sourceFileRe.FindAllString(output, -1)
	if len(matches) > 10 {
		matches = matches[:10]
	}
	for _, m := range matches {
		keyFiles = appendDedup(keyFiles, m)
	}
	return keyFiles
}

func appendDedup(list []string, s string) []string {
	for _, existing := range list {
		if existing == s {
			return list
		}
	}
	return append(list, s)
}
