package toolexec

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// maxSearchFileSize caps how large a file may be before its contents are
// skipped during content matching. Paths are still matched.
const maxSearchFileSize = 512 * 1024

// SearchFiles walks the workspace matching the query against file paths and
// contents, bounded by the configured depth and hit caps. Broad queries
// ("all files", "structure", "list all") raise the cap and group the output
// by directory.
func (b *Backend) SearchFiles(ctx context.Context, query string) Result {
	if query == "" {
		return fail("query is required")
	}

	broad := isBroadQuery(query)
	maxHits := b.searchMaxHits
	if broad {
		maxHits *= 4
	}

	needle := strings.ToLower(query)
	var hits []searchHit

	root := b.root
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			rel = path
		}
		if rel == "." {
			return nil
		}

		if d.IsDir() {
			if isHiddenOrDependency(d.Name()) {
				return fs.SkipDir
			}
			if strings.Count(rel, string(filepath.Separator))+1 > b.searchMaxDepth {
				return fs.SkipDir
			}
			return nil
		}
		if strings.HasPrefix(d.Name(), ".") {
			return nil
		}
		if len(hits) >= maxHits {
			return fs.SkipAll
		}

		if broad {
			hits = append(hits, searchHit{path: rel, reason: "file"})
			return nil
		}

		if strings.Contains(strings.ToLower(rel), needle) {
			hits = append(hits, searchHit{path: rel, reason: "path match"})
			return nil
		}

		info, infoErr := d.Info()
		if infoErr != nil || info.Size() > maxSearchFileSize {
			return nil
		}
		data, readErr := os.ReadFile(path)
		if readErr != nil {
			return nil
		}
		if line, n := firstMatchingLine(string(data), needle); n > 0 {
			hits = append(hits, searchHit{
				path:   rel,
				reason: fmt.Sprintf("line %d: %s", n, truncate(strings.TrimSpace(line), 160)),
			})
		}
		return nil
	})
	if err != nil && err != fs.SkipAll {
		return failf("searching workspace: %v", err)
	}

	if len(hits) == 0 {
		return okf("no files matching %q", query)
	}

	if broad {
		return ok(groupByDirectory(hits))
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%d match(es) for %q:\n", len(hits), query)
	for _, h := range hits {
		fmt.Fprintf(&sb, "%s\t%s\n", h.path, h.reason)
	}
	return ok(sb.String())
}

type searchHit struct {
	path   string
	reason string
}

func isBroadQuery(query string) bool {
	q := strings.ToLower(query)
	for _, marker := range []string{"all files", "structure", "list all", "everything"} {
		if strings.Contains(q, marker) {
			return true
		}
	}
	return false
}

// firstMatchingLine returns the first line containing the lowercased needle
// and its 1-indexed line number, or 0 when nothing matches.
func firstMatchingLine(content, needle string) (string, int) {
	for i, line := range strings.Split(content, "\n") {
		if strings.Contains(strings.ToLower(line), needle) {
			return line, i + 1
		}
	}
	return "", 0
}

func groupByDirectory(hits []searchHit) string {
	byDir := make(map[string][]string)
	for _, h := range hits {
		dir := filepath.Dir(h.path)
		byDir[dir] = append(byDir[dir], filepath.Base(h.path))
	}

	dirs := make([]string, 0, len(byDir))
	for dir := range byDir {
		dirs = append(dirs, dir)
	}
	sort.Strings(dirs)

	var sb strings.Builder
	fmt.Fprintf(&sb, "%d file(s) in %d director(ies):\n", len(hits), len(dirs))
	for _, dir := range dirs {
		files := byDir[dir]
		sort.Strings(files)
		fmt.Fprintf(&sb, "%s/\n", dir)
		for _, f := range files {
			fmt.Fprintf(&sb, "  %s\n", f)
		}
	}
	return sb.String()
}
