package toolexec

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// RunCommand executes a shell command in the workspace root, bounded by the
// configured command timeout. stdout and stderr are captured separately; a
// non-zero exit is a structured failure carrying both streams.
func (b *Backend) RunCommand(ctx context.Context, command string) Result {
	return b.run(ctx, command, b.commandTimeout)
}

func (b *Backend) run(ctx context.Context, command string, timeout time.Duration) Result {
	if strings.TrimSpace(command) == "" {
		return fail("command is required")
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	cmd.Dir = b.root
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if ctx.Err() == context.DeadlineExceeded {
		return failf("command timed out after %s", timeout)
	}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return Result{
				Success: false,
				Output:  stdout.String(),
				Error:   fmt.Sprintf("exit code %d\n%s", exitErr.ExitCode(), stderr.String()),
			}
		}
		return failf("running command: %v", err)
	}

	out := stdout.String()
	if s := stderr.String(); s != "" {
		out += "\n[stderr]\n" + s
	}
	if strings.TrimSpace(out) == "" {
		out = "(no output)"
	}
	return ok(out)
}
