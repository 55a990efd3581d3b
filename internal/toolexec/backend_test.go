package toolexec

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func newTestBackend(t *testing.T) *Backend {
	t.Helper()
	return New(Options{WorkspaceRoot: t.TempDir()})
}

func TestCreateThenViewRoundtrip(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()

	content := "alpha\nbeta\ngamma"
	if res := b.CreateFile(ctx, "notes/todo.txt", content); !res.Success {
		t.Fatalf("CreateFile failed: %s", res.Error)
	}

	res := b.ViewFile(ctx, "notes/todo.txt", 0, 0)
	if !res.Success {
		t.Fatalf("ViewFile failed: %s", res.Error)
	}
	want := "1\talpha\n2\tbeta\n3\tgamma\n"
	if res.Output != want {
		t.Errorf("ViewFile output = %q, want %q", res.Output, want)
	}
}

func TestViewFileRange(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()

	b.CreateFile(ctx, "f.txt", "one\ntwo\nthree\nfour")

	res := b.ViewFile(ctx, "f.txt", 2, 3)
	if !res.Success {
		t.Fatalf("ViewFile failed: %s", res.Error)
	}
	if res.Output != "2\ttwo\n3\tthree\n" {
		t.Errorf("unexpected range output: %q", res.Output)
	}

	if res := b.ViewFile(ctx, "f.txt", 99, 0); res.Success {
		t.Error("expected failure for start line beyond end of file")
	}
}

func TestCreateFileRejectsEmptyContent(t *testing.T) {
	b := newTestBackend(t)

	res := b.CreateFile(context.Background(), "empty.txt", "")
	if res.Success {
		t.Fatal("expected failure for empty content")
	}
	if _, err := os.Stat(filepath.Join(b.root, "empty.txt")); !os.IsNotExist(err) {
		t.Error("empty file should not have been created")
	}
}

func TestReplaceText(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()

	b.CreateFile(ctx, "app.go", "port := 8080\nhost := \"localhost\"")

	if res := b.ReplaceText(ctx, "app.go", "8080", "9090"); !res.Success {
		t.Fatalf("ReplaceText failed: %s", res.Error)
	}
	data, _ := os.ReadFile(filepath.Join(b.root, "app.go"))
	if !strings.Contains(string(data), "9090") {
		t.Error("replacement not applied")
	}

	res := b.ReplaceText(ctx, "app.go", "no such text", "x")
	if res.Success {
		t.Fatal("expected explicit failure for missing target text")
	}
	if !strings.Contains(res.Error, "not found") {
		t.Errorf("error = %q, want mention of text not found", res.Error)
	}
}

func TestInsertLines(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name string
		line int
		want string
	}{
		{"prepend", 0, "new\na\nb\nc"},
		{"in range", 2, "a\nnew\nb\nc"},
		{"append past end", 99, "a\nb\nc\nnew"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := newTestBackend(t)
			b.CreateFile(ctx, "f.txt", "a\nb\nc")

			if res := b.InsertLines(ctx, "f.txt", tt.line, "new"); !res.Success {
				t.Fatalf("InsertLines failed: %s", res.Error)
			}
			data, _ := os.ReadFile(filepath.Join(b.root, "f.txt"))
			if string(data) != tt.want {
				t.Errorf("content = %q, want %q", data, tt.want)
			}
		})
	}
}

func TestDeleteAndRename(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()

	b.CreateFile(ctx, "old.txt", "content")

	if res := b.RenameFile(ctx, "old.txt", "sub/new.txt"); !res.Success {
		t.Fatalf("RenameFile failed: %s", res.Error)
	}
	if res := b.ViewFile(ctx, "sub/new.txt", 0, 0); !res.Success {
		t.Fatalf("renamed file not readable: %s", res.Error)
	}

	if res := b.DeleteFile(ctx, "sub/new.txt"); !res.Success {
		t.Fatalf("DeleteFile failed: %s", res.Error)
	}
	if res := b.DeleteFile(ctx, "sub/new.txt"); res.Success {
		t.Error("expected failure deleting a missing file")
	}
	if res := b.DeleteFile(ctx, "sub"); res.Success {
		t.Error("expected failure deleting a directory")
	}
}

func TestListFiles(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()

	b.CreateFile(ctx, "b.txt", "x")
	b.CreateFile(ctx, "a.txt", "x")
	b.CreateFile(ctx, "sub/c.txt", "x")
	b.CreateFile(ctx, ".hidden", "x")

	res := b.ListFiles(ctx, "")
	if !res.Success {
		t.Fatalf("ListFiles failed: %s", res.Error)
	}
	if res.Output != "a.txt\nb.txt\nsub/" {
		t.Errorf("listing = %q", res.Output)
	}
}

func TestSearchFiles(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()

	b.CreateFile(ctx, "handlers/user.go", "func GetUser() {}")
	b.CreateFile(ctx, "handlers/order.go", "func GetOrder() {}")
	b.CreateFile(ctx, "node_modules/pkg/index.js", "GetUser everywhere")
	b.CreateFile(ctx, "readme.md", "plain documentation")

	res := b.SearchFiles(ctx, "GetUser")
	if !res.Success {
		t.Fatalf("SearchFiles failed: %s", res.Error)
	}
	if !strings.Contains(res.Output, "handlers/user.go") {
		t.Errorf("content match missing from output: %q", res.Output)
	}
	if strings.Contains(res.Output, "node_modules") {
		t.Error("dependency directory should be excluded")
	}
	if strings.Contains(res.Output, "readme.md") {
		t.Error("non-matching file reported")
	}

	// Path fragments match even when file contents do not.
	res = b.SearchFiles(ctx, "order")
	if !strings.Contains(res.Output, "handlers/order.go") {
		t.Errorf("path match missing: %q", res.Output)
	}

	res = b.SearchFiles(ctx, "nothing matches this")
	if !res.Success || !strings.Contains(res.Output, "no files matching") {
		t.Errorf("empty result should still succeed, got %+v", res)
	}
}

func TestSearchFilesBroadQueryGroupsByDirectory(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()

	b.CreateFile(ctx, "a/one.txt", "x")
	b.CreateFile(ctx, "a/two.txt", "x")
	b.CreateFile(ctx, "b/three.txt", "x")

	res := b.SearchFiles(ctx, "list all files")
	if !res.Success {
		t.Fatalf("SearchFiles failed: %s", res.Error)
	}
	for _, want := range []string{"a/\n", "b/\n", "  one.txt", "  three.txt"} {
		if !strings.Contains(res.Output, want) {
			t.Errorf("grouped output missing %q: %q", want, res.Output)
		}
	}
}

func TestRunCommand(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()

	res := b.RunCommand(ctx, "echo hello")
	if !res.Success {
		t.Fatalf("RunCommand failed: %s", res.Error)
	}
	if !strings.Contains(res.Output, "hello") {
		t.Errorf("output = %q", res.Output)
	}
}

func TestRunCommandNonZeroExit(t *testing.T) {
	b := newTestBackend(t)

	res := b.RunCommand(context.Background(), "echo partial && exit 3")
	if res.Success {
		t.Fatal("expected structured failure for non-zero exit")
	}
	if !strings.Contains(res.Error, "exit code 3") {
		t.Errorf("error = %q, want exit code", res.Error)
	}
	if !strings.Contains(res.Output, "partial") {
		t.Errorf("stdout before failure should be preserved, got %q", res.Output)
	}
}

func TestRunCommandTimeout(t *testing.T) {
	b := New(Options{WorkspaceRoot: t.TempDir(), CommandTimeout: 50 * time.Millisecond})

	res := b.RunCommand(context.Background(), "sleep 5")
	if res.Success {
		t.Fatal("expected timeout failure")
	}
	if !strings.Contains(res.Error, "timed out") {
		t.Errorf("error = %q, want timeout", res.Error)
	}
}

func TestScopedQueryEnvironmentRestriction(t *testing.T) {
	b := New(Options{WorkspaceRoot: t.TempDir(), DataEnvTag: "development"})

	res := b.ScopedQuery(context.Background(), "production", "SELECT 1")
	if res.Success {
		t.Fatal("expected rejection of production-scoped query")
	}
	if !strings.Contains(res.Error, "restricted") {
		t.Errorf("error = %q, want restriction message", res.Error)
	}

	// Matching environment but no pool configured fails safely too.
	res = b.ScopedQuery(context.Background(), "development", "SELECT 1")
	if res.Success {
		t.Fatal("expected failure without a configured data store")
	}
}

func TestManagePackageValidation(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()

	if res := b.ManagePackage(ctx, "install", "bad name;rm"); res.Success {
		t.Error("expected rejection of invalid package name")
	}
	if res := b.ManagePackage(ctx, "upgrade", "lodash"); res.Success {
		t.Error("expected rejection of unknown action")
	}
	if res := b.ManagePackage(ctx, "install", "lodash"); res.Success {
		t.Error("expected failure when no package manifest exists")
	}
}

func TestOperationsRegistry(t *testing.T) {
	b := newTestBackend(t)
	ops := b.Operations()

	for _, name := range []string{
		"create_file", "view_file", "replace_text", "insert_lines",
		"delete_file", "rename_file", "list_files", "search_files",
		"run_command", "check_diagnostics", "query_datastore",
		"install_package", "uninstall_package",
	} {
		if _, found := ops[name]; !found {
			t.Errorf("operation %q missing from registry", name)
		}
	}

	res := ops["create_file"](context.Background(), map[string]string{
		"path": "via-registry.txt", "content": "hi",
	})
	if !res.Success {
		t.Errorf("registry dispatch failed: %s", res.Error)
	}
}

func TestMutatesFiles(t *testing.T) {
	for op, want := range map[string]bool{
		"create_file":  true,
		"replace_text": true,
		"delete_file":  true,
		"view_file":    false,
		"search_files": false,
		"run_command":  false,
	} {
		if got := MutatesFiles(op); got != want {
			t.Errorf("MutatesFiles(%q) = %v, want %v", op, got, want)
		}
	}
}
