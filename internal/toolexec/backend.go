package toolexec

import (
	"context"
	"path/filepath"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Backend executes primitive tool operations against one workspace. All
// operations are blocking and bounded (explicit timeouts on execution,
// depth/result caps on search); callers impose their own cancellation above
// this layer.
type Backend struct {
	root           string
	commandTimeout time.Duration
	packageTimeout time.Duration
	searchMaxDepth int
	searchMaxHits  int

	// pool and envTag back the scoped data-store query operation. pool may
	// be nil, in which case scoped queries fail with a structured error.
	pool   *pgxpool.Pool
	envTag string
}

// Options configures a Backend. Zero values fall back to safe defaults.
type Options struct {
	WorkspaceRoot  string
	CommandTimeout time.Duration
	PackageTimeout time.Duration
	SearchMaxDepth int
	SearchMaxHits  int
	Pool           *pgxpool.Pool
	DataEnvTag     string
}

// New creates a Backend rooted at opts.WorkspaceRoot.
func New(opts Options) *Backend {
	b := &Backend{
		root:           opts.WorkspaceRoot,
		commandTimeout: opts.CommandTimeout,
		packageTimeout: opts.PackageTimeout,
		searchMaxDepth: opts.SearchMaxDepth,
		searchMaxHits:  opts.SearchMaxHits,
		pool:           opts.Pool,
		envTag:         opts.DataEnvTag,
	}
	if b.root == "" {
		b.root = "."
	}
	if b.commandTimeout <= 0 {
		b.commandTimeout = 30 * time.Second
	}
	if b.packageTimeout <= 0 {
		b.packageTimeout = 60 * time.Second
	}
	if b.searchMaxDepth <= 0 {
		b.searchMaxDepth = 8
	}
	if b.searchMaxHits <= 0 {
		b.searchMaxHits = 50
	}
	if b.envTag == "" {
		b.envTag = "development"
	}
	return b
}

// resolve joins a workspace-relative path onto the backend root. Absolute
// paths are kept as-is so operators can point tools outside the workspace
// deliberately.
func (b *Backend) resolve(path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(b.root, path)
}

// Executor runs one named operation with string parameters.
type Executor func(ctx context.Context, params map[string]string) Result

// Operations returns the registry of every primitive operation keyed by
// name. The dispatch router resolves classified intents against this map.
func (b *Backend) Operations() map[string]Executor {
	return map[string]Executor{
		"create_file": func(ctx context.Context, p map[string]string) Result {
			return b.CreateFile(ctx, p["path"], p["content"])
		},
		"view_file": func(ctx context.Context, p map[string]string) Result {
			return b.ViewFile(ctx, p["path"], atoiDefault(p["start_line"], 0), atoiDefault(p["end_line"], 0))
		},
		"replace_text": func(ctx context.Context, p map[string]string) Result {
			return b.ReplaceText(ctx, p["path"], p["old_text"], p["new_text"])
		},
		"insert_lines": func(ctx context.Context, p map[string]string) Result {
			return b.InsertLines(ctx, p["path"], atoiDefault(p["line"], 0), p["content"])
		},
		"delete_file": func(ctx context.Context, p map[string]string) Result {
			return b.DeleteFile(ctx, p["path"])
		},
		"rename_file": func(ctx context.Context, p map[string]string) Result {
			return b.RenameFile(ctx, p["path"], p["new_path"])
		},
		"list_files": func(ctx context.Context, p map[string]string) Result {
			return b.ListFiles(ctx, p["path"])
		},
		"search_files": func(ctx context.Context, p map[string]string) Result {
			return b.SearchFiles(ctx, p["query"])
		},
		"run_command": func(ctx context.Context, p map[string]string) Result {
			return b.RunCommand(ctx, p["command"])
		},
		"check_diagnostics": func(ctx context.Context, p map[string]string) Result {
			return b.Diagnostics(ctx, p["path"])
		},
		"query_datastore": func(ctx context.Context, p map[string]string) Result {
			return b.ScopedQuery(ctx, p["environment"], p["query"])
		},
		"install_package": func(ctx context.Context, p map[string]string) Result {
			return b.ManagePackage(ctx, "install", p["package"])
		},
		"uninstall_package": func(ctx context.Context, p map[string]string) Result {
			return b.ManagePackage(ctx, "uninstall", p["package"])
		},
	}
}

// MutatesFiles reports whether the named operation modifies the filesystem.
// The verification auditor runs after any invocation for which this is true.
func MutatesFiles(operation string) bool {
	switch operation {
	case "create_file", "replace_text", "insert_lines", "delete_file", "rename_file":
		return true
	}
	return false
}

func atoiDefault(s string, def int) int {
	if s == "" {
		return def
	}
	n := 0
	for _, r := range s {
		if r < '0' || r > '9' {
			return def
		}
		n = n*10 + int(r-'0')
	}
	return n
}

// truncate bounds a string to max bytes, marking the cut.
func truncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	return s[:max] + "\n...[truncated]"
}

// isHiddenOrDependency reports whether a directory should be skipped during
// traversal: dotfiles and well-known dependency/build trees.
func isHiddenOrDependency(name string) bool {
	if strings.HasPrefix(name, ".") {
		return true
	}
	switch name {
	case "node_modules", "vendor", "dist", "build", "__pycache__":
		return true
	}
	return false
}
