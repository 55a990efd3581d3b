// Package dispatch classifies free-text action requests against a fixed set
// of intent patterns and, on a match, executes the corresponding tool
// operation directly. Classification is deterministic and side-effect free;
// anything that does not match is declined so the caller can fall back to
// generative reasoning.
package dispatch

import (
	"regexp"
	"strings"
)

// ToolCall is a classified request: a named tool operation plus its
// extracted string parameters.
type ToolCall struct {
	Operation string            `json:"operation"`
	Params    map[string]string `json:"params"`
}

// intentPattern pairs a predicate with an extractor. Patterns are tried in
// order and the first predicate that matches wins; the extractor then pulls
// the structured parameters out of the raw request.
type intentPattern struct {
	name    string
	match   func(req string) bool
	extract func(raw, lower string) *ToolCall
}

var (
	createFileRe  = regexp.MustCompile(`(?i)create\s+(?:a\s+)?(?:new\s+)?file\s+(?:at|in|called|named)\s+(\S+)`)
	viewFileRe    = regexp.MustCompile(`(?i)\b(?:view|show|read|open)\b.*?([\w./-]+\.\w+)`)
	searchRe      = regexp.MustCompile(`(?i)(?:search|find|look)\s+(?:for\s+)?(?:files?\s+)?(?:named|containing|for|with)\s+(.+)`)
	runCommandRe  = regexp.MustCompile(`(?i)(?:run|execute)\s+(?:the\s+)?(?:shell\s+)?command\s*:?\s+(.+)`)
	runBacktickRe = regexp.MustCompile("(?i)(?:run|execute)\\s+`([^`]+)`")
	checkErrorsRe = regexp.MustCompile(`(?i)check\s+(?:for\s+)?(?:errors|diagnostics|problems)\s*(?:in\s+(\S+))?`)
	installRe     = regexp.MustCompile(`(?i)install(?:\s+the)?(?:\s+(?:package|dependency|library|module))?\s+(\S+)`)
	uninstallRe   = regexp.MustCompile(`(?i)(?:uninstall|remove)\s+(?:the\s+)?(?:package|dependency|library|module)\s+(\S+)`)
	listFilesRe   = regexp.MustCompile(`(?i)list\s+(?:the\s+)?files\s*(?:in\s+(\S+))?`)
	deleteFileRe  = regexp.MustCompile(`(?i)delete\s+(?:the\s+)?file\s+(?:at\s+|in\s+|called\s+)?(\S+)`)
	renameFileRe  = regexp.MustCompile(`(?i)(?:rename|move)\s+(?:the\s+)?file\s+(?:at\s+)?(\S+)\s+to\s+(\S+)`)
)

// patterns is the fixed ordered set of recognized intents. Order matters:
// more specific shapes (create-with-path, rename-with-destination) are
// tried before broad ones (bare view, bare search).
var patterns = []intentPattern{
	{
		name:  "create_file",
		match: func(req string) bool { return createFileRe.MatchString(req) },
		extract: func(raw, lower string) *ToolCall {
			m := createFileRe.FindStringSubmatch(raw)
			params := map[string]string{"path": trimPathToken(m[1])}
			if content, found := extractAfter(raw, "with content", "containing"); found {
				params["content"] = content
			}
			return &ToolCall{Operation: "create_file", Params: params}
		},
	},
	{
		name:  "rename_file",
		match: func(req string) bool { return renameFileRe.MatchString(req) },
		extract: func(raw, lower string) *ToolCall {
			m := renameFileRe.FindStringSubmatch(raw)
			return &ToolCall{Operation: "rename_file", Params: map[string]string{
				"path":     trimPathToken(m[1]),
				"new_path": trimPathToken(m[2]),
			}}
		},
	},
	{
		name:  "delete_file",
		match: func(req string) bool { return deleteFileRe.MatchString(req) },
		extract: func(raw, lower string) *ToolCall {
			m := deleteFileRe.FindStringSubmatch(raw)
			return &ToolCall{Operation: "delete_file", Params: map[string]string{
				"path": trimPathToken(m[1]),
			}}
		},
	},
	{
		name:  "search_files",
		match: func(req string) bool { return searchRe.MatchString(req) },
		extract: func(raw, lower string) *ToolCall {
			m := searchRe.FindStringSubmatch(raw)
			return &ToolCall{Operation: "search_files", Params: map[string]string{
				"query": strings.TrimSpace(strings.Trim(m[1], `"'`)),
			}}
		},
	},
	{
		name: "run_command",
		match: func(req string) bool {
			return runCommandRe.MatchString(req) || runBacktickRe.MatchString(req)
		},
		extract: func(raw, lower string) *ToolCall {
			var command string
			if m := runCommandRe.FindStringSubmatch(raw); m != nil {
				command = m[1]
			} else if m := runBacktickRe.FindStringSubmatch(raw); m != nil {
				command = m[1]
			}
			return &ToolCall{Operation: "run_command", Params: map[string]string{
				"command": strings.TrimSpace(strings.Trim(command, `"'`)),
			}}
		},
	},
	{
		name:  "check_diagnostics",
		match: func(req string) bool { return checkErrorsRe.MatchString(req) },
		extract: func(raw, lower string) *ToolCall {
			m := checkErrorsRe.FindStringSubmatch(raw)
			return &ToolCall{Operation: "check_diagnostics", Params: map[string]string{
				"path": trimPathToken(m[1]),
			}}
		},
	},
	{
		name:  "uninstall_package",
		match: func(req string) bool { return uninstallRe.MatchString(req) },
		extract: func(raw, lower string) *ToolCall {
			m := uninstallRe.FindStringSubmatch(raw)
			return &ToolCall{Operation: "uninstall_package", Params: map[string]string{
				"package": trimPathToken(m[1]),
			}}
		},
	},
	{
		name: "install_package",
		match: func(req string) bool {
			lower := strings.ToLower(req)
			return strings.Contains(lower, "install") &&
				(strings.Contains(lower, "package") || strings.Contains(lower, "dependency") ||
					strings.Contains(lower, "library") || strings.Contains(lower, "module"))
		},
		extract: func(raw, lower string) *ToolCall {
			pkg := ""
			if m := installRe.FindStringSubmatch(raw); m != nil {
				pkg = trimPathToken(m[1])
			}
			return &ToolCall{Operation: "install_package", Params: map[string]string{"package": pkg}}
		},
	},
	{
		name:  "list_files",
		match: func(req string) bool { return listFilesRe.MatchString(req) },
		extract: func(raw, lower string) *ToolCall {
			m := listFilesRe.FindStringSubmatch(raw)
			return &ToolCall{Operation: "list_files", Params: map[string]string{
				"path": trimPathToken(m[1]),
			}}
		},
	},
	{
		name:  "view_file",
		match: func(req string) bool { return viewFileRe.MatchString(req) },
		extract: func(raw, lower string) *ToolCall {
			m := viewFileRe.FindStringSubmatch(raw)
			return &ToolCall{Operation: "view_file", Params: map[string]string{
				"path": trimPathToken(m[1]),
			}}
		},
	},
}

// Classify matches a free-text request against the ordered pattern set and
// returns the structured tool call for the first match. It never executes
// anything and never guesses: an unrecognized request returns (nil, false).
func Classify(request string) (*ToolCall, bool) {
	trimmed := strings.TrimSpace(request)
	if trimmed == "" {
		return nil, false
	}
	lower := strings.ToLower(trimmed)

	for _, p := range patterns {
		if p.match(trimmed) {
			return p.extract(trimmed, lower), true
		}
	}
	return nil, false
}

// trimPathToken strips quoting and trailing sentence punctuation from an
// extracted path-like token.
func trimPathToken(tok string) string {
	tok = strings.Trim(tok, `"'`)
	return strings.TrimRight(tok, ".,;:!?")
}

// extractAfter returns the text following the first of the given marker
// phrases, if any is present.
func extractAfter(raw string, markers ...string) (string, bool) {
	lower := strings.ToLower(raw)
	for _, marker := range markers {
		if idx := strings.Index(lower, marker); idx >= 0 {
			rest := strings.TrimSpace(raw[idx+len(marker):])
			rest = strings.Trim(rest, `"'`)
			if rest != "" {
				return rest, true
			}
		}
	}
	return "", false
}
