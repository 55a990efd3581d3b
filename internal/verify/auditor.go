// Package verify implements post-hoc auditing of agent work: a fixed
// pipeline of diagnostics, connectivity, breaking-change, integration and
// liveness checks producing an ephemeral report. Verification detects
// problems after the fact; it never blocks or undoes the action that
// triggered it.
package verify

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/glowfoundry/steward/internal/toolexec"
)

// Report accumulates the outcome of one verification run. It is consumed
// once and never persisted.
type Report struct {
	AgentID     string    `json:"agentId"`
	ActionTaken string    `json:"actionTaken"`
	Success     bool      `json:"success"`
	Errors      []string  `json:"errors"`
	Warnings    []string  `json:"warnings"`
	Suggestions []string  `json:"suggestions"`
	NextSteps   []string  `json:"nextSteps"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Tools is the slice of the tool backend the auditor uses. Narrowed for
// testing.
type Tools interface {
	Diagnostics(ctx context.Context, path string) toolexec.Result
	SearchFiles(ctx context.Context, query string) toolexec.Result
}

// Options configures an Auditor.
type Options struct {
	Tools         Tools
	LivenessURL   string
	CriticalFiles []string
	HTTPClient    *http.Client
	Logger        *slog.Logger
}

// Auditor runs the verification pipeline.
type Auditor struct {
	tools         Tools
	livenessURL   string
	criticalFiles []string
	client        *http.Client
	logger        *slog.Logger
}

// NewAuditor creates an Auditor.
func NewAuditor(opts Options) *Auditor {
	a := &Auditor{
		tools:         opts.Tools,
		livenessURL:   opts.LivenessURL,
		criticalFiles: opts.CriticalFiles,
		client:        opts.HTTPClient,
		logger:        opts.Logger,
	}
	if a.client == nil {
		a.client = &http.Client{Timeout: 5 * time.Second}
	}
	if a.logger == nil {
		a.logger = slog.Default()
	}
	return a
}

// VerifyAgentWork runs the fixed check pipeline over the modified files.
// Success reflects errors only; warnings and suggestions are always
// carried but never flip it.
func (a *Auditor) VerifyAgentWork(ctx context.Context, agentID string, filesModified []string, actionTaken string) *Report {
	r := &Report{
		AgentID:     agentID,
		ActionTaken: actionTaken,
		Errors:      []string{},
		Warnings:    []string{},
		Suggestions: []string{},
		NextSteps:   []string{},
		CreatedAt:   time.Now().UTC(),
	}

	a.checkDiagnostics(ctx, r, filesModified)
	a.checkConnectivity(ctx, r, filesModified, actionTaken)
	a.checkBreakingChanges(r, filesModified)
	a.checkIntegration(r, filesModified)
	a.checkLiveness(ctx, r)

	r.Success = len(r.Errors) == 0
	return r
}

// checkDiagnostics compiles/lints each modified file plus the project as a
// whole. Any error forces a NextSteps entry.
func (a *Auditor) checkDiagnostics(ctx context.Context, r *Report, files []string) {
	targets := append([]string{}, files...)
	targets = append(targets, "") // whole project

	found := false
	for _, target := range targets {
		res := a.tools.Diagnostics(ctx, target)
		if !res.Success {
			r.Warnings = append(r.Warnings, fmt.Sprintf("diagnostics unavailable for %q: %s", target, res.Error))
			continue
		}
		if strings.HasPrefix(res.Output, "errors found") {
			label := target
			if label == "" {
				label = "project"
			}
			r.Errors = append(r.Errors, fmt.Sprintf("diagnostics failed for %s: %s", label, firstLines(res.Output, 5)))
			found = true
		}
	}
	if found {
		r.NextSteps = append(r.NextSteps, "fix the reported compile/lint errors before continuing")
	}
}

// checkConnectivity confirms a newly created file is referenced somewhere.
// Absence is a warning, never an error: new code may simply not be wired
// up yet.
func (a *Auditor) checkConnectivity(ctx context.Context, r *Report, files []string, actionTaken string) {
	if !isCreation(actionTaken) {
		return
	}

	for _, f := range files {
		base := strings.TrimSuffix(filepath.Base(f), filepath.Ext(f))
		if base == "" {
			continue
		}
		res := a.tools.SearchFiles(ctx, base)
		if !res.Success {
			continue
		}
		if referenceCount(res.Output, f) == 0 {
			r.Warnings = append(r.Warnings, fmt.Sprintf("%s does not appear to be referenced anywhere yet", f))
			r.Suggestions = append(r.Suggestions, fmt.Sprintf("import or route %s from existing code", f))
		}
	}
}

// checkBreakingChanges flags modified files on the critical list. These
// always require explicit dependency review.
func (a *Auditor) checkBreakingChanges(r *Report, files []string) {
	for _, f := range files {
		for _, critical := range a.criticalFiles {
			if strings.Contains(f, critical) {
				r.Errors = append(r.Errors, fmt.Sprintf("%s is a critical shared file; review everything that depends on it", f))
				r.NextSteps = append(r.NextSteps, fmt.Sprintf("audit dependents of %s before deploying", f))
			}
		}
	}
}

// checkIntegration warns when presentation and service layers change
// together, or when routing changes, since those combinations tend to
// break integration paths.
func (a *Auditor) checkIntegration(r *Report, files []string) {
	var presentation, service, routing bool
	for _, f := range files {
		switch {
		case strings.Contains(f, "routes") || strings.Contains(f, "router"):
			routing = true
		case strings.Contains(f, "client/") || strings.Contains(f, "components/") || strings.Contains(f, "pages/"):
			presentation = true
		case strings.Contains(f, "server/") || strings.Contains(f, "services/") || strings.Contains(f, "api/"):
			service = true
		}
	}

	if presentation && service {
		r.Warnings = append(r.Warnings, "presentation and service layers changed in one action; run integration tests")
	}
	if routing {
		r.Warnings = append(r.Warnings, "routing changed; verify every existing route still resolves")
	}
}

// checkLiveness probes the running service. Non-response is an error: the
// change may have crashed it.
func (a *Auditor) checkLiveness(ctx context.Context, r *Report) {
	if a.livenessURL == "" {
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.livenessURL, nil)
	if err != nil {
		r.Errors = append(r.Errors, fmt.Sprintf("liveness probe misconfigured: %v", err))
		return
	}
	resp, err := a.client.Do(req)
	if err != nil {
		r.Errors = append(r.Errors, fmt.Sprintf("service did not respond to liveness probe (possible crash): %v", err))
		r.NextSteps = append(r.NextSteps, "check service logs and restart if necessary")
		return
	}
	resp.Body.Close()
	if resp.StatusCode >= 500 {
		r.Errors = append(r.Errors, fmt.Sprintf("liveness probe returned %d", resp.StatusCode))
		r.NextSteps = append(r.NextSteps, "check service logs and restart if necessary")
	}
}

func isCreation(actionTaken string) bool {
	lower := strings.ToLower(actionTaken)
	return strings.Contains(lower, "create") || strings.Contains(lower, "add") ||
		strings.Contains(lower, "new")
}

// referenceCount counts search hits that are not the file itself. Hit
// lines carry a tab between path and match detail; header and summary
// lines do not.
func referenceCount(searchOutput, self string) int {
	count := 0
	for _, line := range strings.Split(searchOutput, "\n") {
		path, _, found := strings.Cut(line, "\t")
		if !found {
			continue
		}
		if path == self || strings.HasSuffix(self, path) || strings.HasSuffix(path, self) {
			continue
		}
		count++
	}
	return count
}

func firstLines(s string, n int) string {
	lines := strings.Split(s, "\n")
	if len(lines) > n {
		lines = lines[:n]
	}
	return strings.Join(lines, "\n")
}
