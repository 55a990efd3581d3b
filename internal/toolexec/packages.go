package toolexec

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
)

var packageNamePattern = regexp.MustCompile(`^[A-Za-z0-9@._/-]+$`)

// ManagePackage installs or uninstalls a dependency using the workspace's
// package manager, with the longer package timeout. The manager is picked
// from what the workspace already uses (go.mod, package.json,
// requirements.txt).
func (b *Backend) ManagePackage(ctx context.Context, action, pkg string) Result {
	if pkg == "" {
		return fail("package is required")
	}
	if !packageNamePattern.MatchString(pkg) {
		return failf("invalid package name %q", pkg)
	}
	if action != "install" && action != "uninstall" {
		return failf("unknown package action %q", action)
	}

	command, err := b.packageCommand(action, pkg)
	if err != nil {
		return failErr(err)
	}

	res := b.run(ctx, command, b.packageTimeout)
	if !res.Success {
		return Result{
			Success: false,
			Output:  res.Output,
			Error:   fmt.Sprintf("%s %s failed: %s", action, pkg, res.Error),
		}
	}
	return okf("%sed %s\n%s", action, pkg, truncate(res.Output, 2000))
}

func (b *Backend) packageCommand(action, pkg string) (string, error) {
	switch {
	case b.workspaceHas("go.mod"):
		if action == "install" {
			return fmt.Sprintf("go get %s", shellQuote(pkg)), nil
		}
		return fmt.Sprintf("go get %s@none", shellQuote(pkg)), nil
	case b.workspaceHas("package.json"):
		if action == "install" {
			return fmt.Sprintf("npm install %s", shellQuote(pkg)), nil
		}
		return fmt.Sprintf("npm uninstall %s", shellQuote(pkg)), nil
	case b.workspaceHas("requirements.txt"), b.workspaceHas("pyproject.toml"):
		if action == "install" {
			return fmt.Sprintf("pip install %s", shellQuote(pkg)), nil
		}
		return fmt.Sprintf("pip uninstall -y %s", shellQuote(pkg)), nil
	}
	return "", fmt.Errorf("no recognized package manifest in workspace")
}

func (b *Backend) workspaceHas(name string) bool {
	_, err := os.Stat(filepath.Join(b.root, name))
	return err == nil
}
