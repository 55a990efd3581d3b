package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/glowfoundry/steward/internal/toolexec"
)

// ErrNoMatch is returned when no intent pattern matches the request. The
// caller is expected to fall back to full generative reasoning.
var ErrNoMatch = errors.New("dispatch: no intent pattern matched")

// PauseChecker reports whether an agent's spending is currently paused.
// Implemented by the budget enforcer's pause cache.
type PauseChecker interface {
	IsPaused(ctx context.Context, userID, agentID string) bool
}

// Summarizer produces a short natural-language summary of a bounded result
// excerpt. Implemented by the reasoning service client.
type Summarizer interface {
	Summarize(ctx context.Context, excerpt string) (string, error)
}

// Auditor receives notifications about file-mutating operations so
// verification can run off the request path. A rename carries both the
// old and the new path.
type Auditor interface {
	Notify(agentID, operation string, paths ...string)
}

// MetricsRecorder is the slice of the metrics surface the router needs.
type MetricsRecorder interface {
	ObserveToolDuration(operation string, seconds float64)
	IncSummarization(status string)
}

// Outcome is the result of one dispatch attempt that matched a pattern.
type Outcome struct {
	Operation string `json:"operation"`
	Success   bool   `json:"success"`
	Paused    bool   `json:"paused,omitempty"`
	Message   string `json:"message"`
	Summary   string `json:"summary,omitempty"`
}

// Options configures a Router.
type Options struct {
	Backend    *toolexec.Backend
	Pauses     PauseChecker
	Summarizer Summarizer
	Auditor    Auditor
	Metrics    MetricsRecorder
	Logger     *slog.Logger

	// SummaryThresholdBytes triggers summarization when a raw result is
	// larger; SummaryExcerptBytes bounds what is actually sent.
	SummaryThresholdBytes int
	SummaryExcerptBytes   int
}

// Router turns classified requests into live tool executions. Execution is
// never cached: the same request is re-run every time it arrives.
type Router struct {
	ops        map[string]toolexec.Executor
	pauses     PauseChecker
	summarizer Summarizer
	auditor    Auditor
	metrics    MetricsRecorder
	logger     *slog.Logger

	summaryThreshold int
	summaryExcerpt   int
}

// NewRouter creates a Router over the given tool backend.
func NewRouter(opts Options) *Router {
	r := &Router{
		ops:              opts.Backend.Operations(),
		pauses:           opts.Pauses,
		summarizer:       opts.Summarizer,
		auditor:          opts.Auditor,
		metrics:          opts.Metrics,
		logger:           opts.Logger,
		summaryThreshold: opts.SummaryThresholdBytes,
		summaryExcerpt:   opts.SummaryExcerptBytes,
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	if r.summaryThreshold <= 0 {
		r.summaryThreshold = 4000
	}
	if r.summaryExcerpt <= 0 {
		r.summaryExcerpt = 1500
	}
	return r
}

// Dispatch classifies the request and, on a match, executes it against the
// tool backend. A non-match returns (nil, ErrNoMatch) and nothing runs. A
// paused agent gets an explicit paused outcome rather than an execution.
func (r *Router) Dispatch(ctx context.Context, userID, agentID, request string) (*Outcome, error) {
	call, matched := Classify(request)
	if !matched {
		return nil, ErrNoMatch
	}

	if r.pauses != nil && r.pauses.IsPaused(ctx, userID, agentID) {
		r.logger.Info("dispatch blocked, agent paused",
			slog.String("agent_id", agentID),
			slog.String("operation", call.Operation))
		return &Outcome{
			Operation: call.Operation,
			Success:   false,
			Paused:    true,
			Message:   fmt.Sprintf("Agent %s is paused; %s was not executed.", agentID, call.Operation),
		}, nil
	}

	exec, found := r.ops[call.Operation]
	if !found {
		return nil, fmt.Errorf("no executor registered for operation %q", call.Operation)
	}

	start := time.Now()
	res := exec(ctx, call.Params)
	if r.metrics != nil {
		r.metrics.ObserveToolDuration(call.Operation, time.Since(start).Seconds())
	}

	r.logger.Info("dispatched tool call",
		slog.String("agent_id", agentID),
		slog.String("operation", call.Operation),
		slog.Bool("success", res.Success))

	if res.Success && toolexec.MutatesFiles(call.Operation) && r.auditor != nil {
		paths := []string{call.Params["path"]}
		if dest := call.Params["new_path"]; dest != "" {
			paths = append(paths, dest)
		}
		r.auditor.Notify(agentID, call.Operation, paths...)
	}

	out := &Outcome{
		Operation: call.Operation,
		Success:   res.Success,
		Message:   formatResult(agentID, call.Operation, res),
	}

	if raw := rawText(res); r.summarizer != nil && (!res.Success || needsSummary(raw, r.summaryThreshold)) {
		excerpt := boundedExcerpt(raw, r.summaryExcerpt)
		summary, err := r.summarizer.Summarize(ctx, excerpt)
		if err != nil {
			r.logger.Warn("result summarization failed", slog.Any("error", err))
			if r.metrics != nil {
				r.metrics.IncSummarization("error")
			}
		} else {
			out.Summary = summary
			if r.metrics != nil {
				r.metrics.IncSummarization("ok")
			}
		}
	}

	return out, nil
}

// formatResult wraps the raw tool result in the fixed per-agent template.
// No generative call is involved here.
func formatResult(agentID, operation string, res toolexec.Result) string {
	if res.Success {
		return fmt.Sprintf("[%s] %s succeeded:\n%s", agentID, operation, res.Output)
	}
	return fmt.Sprintf("[%s] %s failed: %s", agentID, operation, res.Error)
}

func rawText(res toolexec.Result) string {
	if res.Success {
		return res.Output
	}
	return res.Output + "\n" + res.Error
}

// needsSummary reports whether a raw result is worth a generative summary:
// it is either large or carries an error/failure marker.
func needsSummary(raw string, threshold int) bool {
	if len(raw) > threshold {
		return true
	}
	lower := strings.ToLower(raw)
	return strings.Contains(lower, "error") || strings.Contains(lower, "failed") ||
		strings.Contains(lower, "exception")
}

func boundedExcerpt(raw string, max int) string {
	if len(raw) <= max {
		return raw
	}
	return raw[:max]
}
