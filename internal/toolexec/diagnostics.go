package toolexec

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
)

// Diagnostics compiles or lints the given file, or the whole project when
// path is empty, and reports whether errors exist plus the raw diagnostic
// output. The checker is chosen by file extension; unknown extensions fall
// back to a whole-project check.
func (b *Backend) Diagnostics(ctx context.Context, path string) Result {
	command := diagnosticCommand(path)

	res := b.RunCommand(ctx, command)
	if res.Success {
		target := path
		if target == "" {
			target = "project"
		}
		return okf("no errors found in %s", target)
	}

	// A failing checker is diagnostic signal, not an operational failure of
	// the tool itself. Surface the raw output as a successful report.
	raw := res.Error
	if res.Output != "" {
		raw = res.Output + "\n" + raw
	}
	return Result{
		Success: true,
		Output:  fmt.Sprintf("errors found:\n%s", truncate(raw, 8000)),
	}
}

func diagnosticCommand(path string) string {
	if path == "" {
		return "go build ./... 2>&1 || npx tsc --noEmit 2>&1"
	}
	switch filepath.Ext(path) {
	case ".go":
		return fmt.Sprintf("go vet %s", shellQuote(filepath.Dir(path)+"/..."))
	case ".ts", ".tsx":
		return fmt.Sprintf("npx tsc --noEmit %s", shellQuote(path))
	case ".js", ".jsx":
		return fmt.Sprintf("node --check %s", shellQuote(path))
	case ".py":
		return fmt.Sprintf("python -m py_compile %s", shellQuote(path))
	default:
		return "go build ./... 2>&1 || npx tsc --noEmit 2>&1"
	}
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
