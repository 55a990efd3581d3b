// Package toolexec implements the primitive, directly side-effecting
// operations agents are allowed to run without generative reasoning: file
// I/O, workspace search, shell execution, diagnostics, scoped data queries,
// and package management. Every operation returns a uniform Result value;
// failures are data, never panics, so the dispatch boundary can react
// programmatically.
package toolexec

import "fmt"

// Result is the uniform outcome of a single tool invocation.
type Result struct {
	Success bool   `json:"success"`
	Output  string `json:"output,omitempty"`
	Error   string `json:"error,omitempty"`
}

// ok wraps a successful output.
func ok(output string) Result {
	return Result{Success: true, Output: output}
}

// okf formats a successful output.
func okf(format string, args ...any) Result {
	return ok(fmt.Sprintf(format, args...))
}

// fail wraps a failure message. Partial output may still be carried so the
// caller can surface it (e.g. a command's stdout before a non-zero exit).
func fail(message string) Result {
	return Result{Success: false, Error: message}
}

// failf formats a failure message.
func failf(format string, args ...any) Result {
	return fail(fmt.Sprintf(format, args...))
}

// failErr wraps an error as a failure.
func failErr(err error) Result {
	return Result{Success: false, Error: err.Error()}
}
