package toolexec

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ViewFile returns the file's content with injected line numbers. When
// startLine/endLine are positive the output is limited to that 1-indexed,
// inclusive range.
func (b *Backend) ViewFile(ctx context.Context, path string, startLine, endLine int) Result {
	if path == "" {
		return fail("path is required")
	}

	data, err := os.ReadFile(b.resolve(path))
	if err != nil {
		return failf("reading file: %v", err)
	}

	lines := strings.Split(string(data), "\n")

	start := 1
	end := len(lines)
	if startLine > 0 {
		start = startLine
	}
	if endLine > 0 && endLine < end {
		end = endLine
	}
	if start > len(lines) {
		return failf("start line %d beyond end of file (%d lines)", start, len(lines))
	}

	var sb strings.Builder
	for i := start; i <= end; i++ {
		fmt.Fprintf(&sb, "%d\t%s\n", i, lines[i-1])
	}
	return ok(sb.String())
}

// CreateFile writes content to a new file, creating parent directories as
// needed. An empty write is reported as a failure rather than silently
// producing a zero-byte file.
func (b *Backend) CreateFile(ctx context.Context, path, content string) Result {
	if path == "" {
		return fail("path is required")
	}
	if content == "" {
		return fail("refusing to create empty file: no content supplied")
	}

	full := b.resolve(path)
	if dir := filepath.Dir(full); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return failf("creating parent directories: %v", err)
		}
	}

	if err := os.WriteFile(full, []byte(content), 0644); err != nil {
		return failf("writing file: %v", err)
	}

	return okf("created %s (%d bytes)", path, len(content))
}

// ReplaceText replaces the first occurrence of oldText in the file. A target
// that is not present is an explicit failure, never a silent no-op.
func (b *Backend) ReplaceText(ctx context.Context, path, oldText, newText string) Result {
	if path == "" {
		return fail("path is required")
	}
	if oldText == "" {
		return fail("old_text is required")
	}

	full := b.resolve(path)
	data, err := os.ReadFile(full)
	if err != nil {
		return failf("reading file: %v", err)
	}

	content := string(data)
	if !strings.Contains(content, oldText) {
		return failf("text not found in %s", path)
	}

	updated := strings.Replace(content, oldText, newText, 1)
	if err := os.WriteFile(full, []byte(updated), 0644); err != nil {
		return failf("writing file: %v", err)
	}

	return okf("replaced text in %s", path)
}

// InsertLines inserts content at the given 1-indexed line. Line 0 prepends,
// a line past the end appends, anything in between shifts existing lines
// down.
func (b *Backend) InsertLines(ctx context.Context, path string, line int, content string) Result {
	if path == "" {
		return fail("path is required")
	}

	full := b.resolve(path)
	data, err := os.ReadFile(full)
	if err != nil {
		return failf("reading file: %v", err)
	}

	lines := strings.Split(string(data), "\n")
	inserted := strings.Split(content, "\n")

	var out []string
	switch {
	case line <= 0:
		out = append(append(out, inserted...), lines...)
	case line > len(lines):
		out = append(append(out, lines...), inserted...)
	default:
		out = append(out, lines[:line-1]...)
		out = append(out, inserted...)
		out = append(out, lines[line-1:]...)
	}

	if err := os.WriteFile(full, []byte(strings.Join(out, "\n")), 0644); err != nil {
		return failf("writing file: %v", err)
	}

	return okf("inserted %d line(s) into %s at line %d", len(inserted), path, line)
}

// DeleteFile removes a single file. Directories are refused.
func (b *Backend) DeleteFile(ctx context.Context, path string) Result {
	if path == "" {
		return fail("path is required")
	}

	full := b.resolve(path)
	info, err := os.Stat(full)
	if err != nil {
		return failf("stat: %v", err)
	}
	if info.IsDir() {
		return failf("%s is a directory, not a file", path)
	}

	if err := os.Remove(full); err != nil {
		return failf("deleting file: %v", err)
	}
	return okf("deleted %s", path)
}

// RenameFile moves a file to a new path, creating parent directories for
// the destination.
func (b *Backend) RenameFile(ctx context.Context, path, newPath string) Result {
	if path == "" || newPath == "" {
		return fail("path and new_path are required")
	}

	dst := b.resolve(newPath)
	if dir := filepath.Dir(dst); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return failf("creating destination directories: %v", err)
		}
	}

	if err := os.Rename(b.resolve(path), dst); err != nil {
		return failf("renaming file: %v", err)
	}
	return okf("renamed %s to %s", path, newPath)
}

// ListFiles lists the entries of a directory, directories suffixed with a
// slash, sorted for stable output. Hidden entries are skipped.
func (b *Backend) ListFiles(ctx context.Context, path string) Result {
	if path == "" {
		path = "."
	}

	entries, err := os.ReadDir(b.resolve(path))
	if err != nil {
		return failf("reading directory: %v", err)
	}

	var names []string
	for _, e := range entries {
		name := e.Name()
		if strings.HasPrefix(name, ".") {
			continue
		}
		if e.IsDir() {
			name += "/"
		}
		names = append(names, name)
	}
	sort.Strings(names)

	if len(names) == 0 {
		return okf("%s is empty", path)
	}
	return ok(strings.Join(names, "\n"))
}
