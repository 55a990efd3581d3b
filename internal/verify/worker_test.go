package verify

import (
	"context"
	"sync"
	"testing"
	"time"
)

type fakeVerifyMetrics struct {
	mu      sync.Mutex
	results []string
	depths  []int
}

func (f *fakeVerifyMetrics) ObserveVerification(result string, _ float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.results = append(f.results, result)
}

func (f *fakeVerifyMetrics) SetVerifyQueueDepth(depth int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.depths = append(f.depths, depth)
}

func TestWorkerProcessesAndDeliversOnce(t *testing.T) {
	w := NewWorker(cleanAuditor(&fakeTools{}), 4, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Start(ctx)
	defer w.Stop()

	if !w.Enqueue(Job{AgentID: "agent-1", FilesModified: []string{"content/post.md"}, ActionTaken: "replace_text"}) {
		t.Fatal("enqueue refused on an empty queue")
	}

	report := waitForReport(t, w, "agent-1")
	if !report.Success {
		t.Errorf("report = %+v, want success", report)
	}

	// Exactly once: a second consume finds nothing.
	if _, found := w.Consume("agent-1"); found {
		t.Error("report delivered twice")
	}
}

func TestWorkerLatestReportWins(t *testing.T) {
	w := NewWorker(cleanAuditor(&fakeTools{}), 4, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Start(ctx)
	defer w.Stop()

	w.Enqueue(Job{AgentID: "agent-1", FilesModified: []string{"a.md"}, ActionTaken: "replace_text"})
	w.Enqueue(Job{AgentID: "agent-1", FilesModified: []string{"shared/schema.ts"}, ActionTaken: "replace_text"})

	// Wait until the second (failing) run lands.
	deadline := time.After(2 * time.Second)
	for {
		w.mu.Lock()
		r := w.reports["agent-1"]
		w.mu.Unlock()
		if r != nil && !r.Success {
			break
		}
		select {
		case <-deadline:
			t.Fatal("second report never landed")
		case <-time.After(10 * time.Millisecond):
		}
	}

	report, found := w.Consume("agent-1")
	if !found || report.Success {
		t.Errorf("report = %+v, want the later failing run", report)
	}
}

func TestWorkerNotifyAdaptsMutations(t *testing.T) {
	w := NewWorker(cleanAuditor(&fakeTools{}), 4, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Start(ctx)
	defer w.Stop()

	w.Notify("agent-1", "create_file", "utils/helper.ts")

	report := waitForReport(t, w, "agent-1")
	if report.ActionTaken != "create_file" {
		t.Errorf("action = %q", report.ActionTaken)
	}
	if len(report.Warnings) == 0 {
		t.Error("expected the unreferenced-creation warning to flow through")
	}
}

// A rename verifies the destination as well as the source: moving content
// onto a critical path must fail even though the source path is harmless.
func TestWorkerNotifyRenameVerifiesBothPaths(t *testing.T) {
	w := NewWorker(cleanAuditor(&fakeTools{}), 4, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Start(ctx)
	defer w.Stop()

	w.Notify("agent-1", "rename_file", "content/old.md", "shared/schema.ts")

	report := waitForReport(t, w, "agent-1")
	if report.Success {
		t.Fatal("rename onto a critical path must fail verification")
	}
}

func TestWorkerRecordsMetrics(t *testing.T) {
	rec := &fakeVerifyMetrics{}
	w := NewWorker(cleanAuditor(&fakeTools{}), 4, rec, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Start(ctx)
	defer w.Stop()

	w.Notify("agent-1", "replace_text", "content/post.md")
	waitForReport(t, w, "agent-1")

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.results) != 1 || rec.results[0] != "pass" {
		t.Errorf("recorded results = %v, want one pass", rec.results)
	}
	if len(rec.depths) == 0 {
		t.Error("queue depth gauge never updated")
	}
}

func TestWorkerDropsWhenFull(t *testing.T) {
	// No goroutine draining the queue.
	w := NewWorker(cleanAuditor(&fakeTools{}), 1, nil, nil)

	if !w.Enqueue(Job{AgentID: "agent-1"}) {
		t.Fatal("first enqueue should fit")
	}
	if w.Enqueue(Job{AgentID: "agent-2"}) {
		t.Error("second enqueue should drop, not block")
	}
}

func waitForReport(t *testing.T, w *Worker, agentID string) *Report {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		if report, found := w.Consume(agentID); found {
			return report
		}
		select {
		case <-deadline:
			t.Fatal("report never arrived")
			return nil
		case <-time.After(10 * time.Millisecond):
		}
	}
}
