package verify

import (
	"fmt"
	"strings"
)

// fixRule maps an error-text marker to a remediation hint.
type fixRule struct {
	markers []string
	hint    string
}

var fixRules = []fixRule{
	{
		markers: []string{"cannot find name", "is not defined", "undefined:", "undeclared name"},
		hint:    "a symbol is referenced before it exists; add the missing import or definition",
	},
	{
		markers: []string{"cannot find module", "no required module provides", "module not found"},
		hint:    "a dependency is missing; install the package or fix the import path",
	},
	{
		markers: []string{"implicitly has an 'any' type", "missing type annotation"},
		hint:    "add an explicit type annotation to the flagged declaration",
	},
	{
		markers: []string{"declared and not used", "is declared but its value is never read"},
		hint:    "remove the unused declaration or wire it into the code that needs it",
	},
}

// AutoFixCommonIssues maps recognized error categories to remediation
// hints. It never edits anything: the hints go back to the caller, which
// decides what to do with them.
func AutoFixCommonIssues(errors []string) []string {
	var hints []string
	seen := map[string]bool{}

	for _, errText := range errors {
		lower := strings.ToLower(errText)
		for _, rule := range fixRules {
			for _, marker := range rule.markers {
				if strings.Contains(lower, strings.ToLower(marker)) && !seen[rule.hint] {
					seen[rule.hint] = true
					hints = append(hints, rule.hint)
				}
			}
		}
	}

	if len(hints) == 0 && len(errors) > 0 {
		hints = append(hints, fmt.Sprintf("%d error(s) did not match any known category; inspect the raw diagnostics", len(errors)))
	}
	return hints
}
