package verify

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Job is one queued verification run.
type Job struct {
	AgentID       string
	FilesModified []string
	ActionTaken   string
}

// MetricsRecorder is the slice of the metrics surface the worker needs.
type MetricsRecorder interface {
	ObserveVerification(result string, seconds float64)
	SetVerifyQueueDepth(depth int)
}

// Worker runs verification off the request path. Jobs queue onto a bounded
// channel; a full queue drops the job with a log line rather than blocking
// dispatch. The latest report per agent is held until consumed exactly
// once.
type Worker struct {
	auditor *Auditor
	jobs    chan Job
	metrics MetricsRecorder
	logger  *slog.Logger
	done    chan struct{}

	mu      sync.Mutex
	reports map[string]*Report
}

// NewWorker creates a Worker with the given queue capacity. metrics may be
// nil.
func NewWorker(auditor *Auditor, queueSize int, metrics MetricsRecorder, logger *slog.Logger) *Worker {
	if queueSize <= 0 {
		queueSize = 64
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{
		auditor: auditor,
		jobs:    make(chan Job, queueSize),
		metrics: metrics,
		logger:  logger,
		done:    make(chan struct{}),
		reports: make(map[string]*Report),
	}
}

// Start blocks, draining the queue, until Stop is called or the context is
// cancelled.
func (w *Worker) Start(ctx context.Context) {
	for {
		select {
		case job := <-w.jobs:
			w.process(ctx, job)
		case <-ctx.Done():
			return
		case <-w.done:
			return
		}
	}
}

// Stop terminates the worker loop.
func (w *Worker) Stop() {
	close(w.done)
}

// Enqueue queues a verification job. Returns false when the queue is full
// and the job was dropped.
func (w *Worker) Enqueue(job Job) bool {
	select {
	case w.jobs <- job:
		if w.metrics != nil {
			w.metrics.SetVerifyQueueDepth(len(w.jobs))
		}
		return true
	default:
		w.logger.Warn("verification queue full, dropping job",
			slog.String("agent_id", job.AgentID),
			slog.String("action", job.ActionTaken))
		return false
	}
}

// Notify queues verification for one file-mutating operation. It is the
// dispatch router's post-mutation hook; a rename passes both paths.
func (w *Worker) Notify(agentID, operation string, paths ...string) {
	var files []string
	for _, p := range paths {
		if p != "" {
			files = append(files, p)
		}
	}
	w.Enqueue(Job{AgentID: agentID, FilesModified: files, ActionTaken: operation})
}

func (w *Worker) process(ctx context.Context, job Job) {
	if w.metrics != nil {
		w.metrics.SetVerifyQueueDepth(len(w.jobs))
	}
	start := time.Now()
	report := w.auditor.VerifyAgentWork(ctx, job.AgentID, job.FilesModified, job.ActionTaken)
	if w.metrics != nil {
		result := "fail"
		if report.Success {
			result = "pass"
		}
		w.metrics.ObserveVerification(result, time.Since(start).Seconds())
	}

	// Always logged, even if nobody consumes the report.
	if report.Success {
		w.logger.Info("verification passed",
			slog.String("agent_id", job.AgentID),
			slog.String("action", job.ActionTaken),
			slog.Int("warnings", len(report.Warnings)))
	} else {
		w.logger.Warn("verification failed",
			slog.String("agent_id", job.AgentID),
			slog.String("action", job.ActionTaken),
			slog.Any("errors", report.Errors))
	}

	w.mu.Lock()
	w.reports[job.AgentID] = report
	w.mu.Unlock()
}

// Consume returns and removes the agent's latest report. Each report is
// delivered at most once; a newer run replaces an unconsumed older one.
func (w *Worker) Consume(agentID string) (*Report, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	report, found := w.reports[agentID]
	if found {
		delete(w.reports, agentID)
	}
	return report, found
}
