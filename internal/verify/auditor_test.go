package verify

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/glowfoundry/steward/internal/toolexec"
)

// fakeTools scripts diagnostics and search results per path/query.
type fakeTools struct {
	diagnostics map[string]toolexec.Result
	search      map[string]toolexec.Result
}

func (f *fakeTools) Diagnostics(ctx context.Context, path string) toolexec.Result {
	if res, found := f.diagnostics[path]; found {
		return res
	}
	return toolexec.Result{Success: true, Output: "no errors found in " + path}
}

func (f *fakeTools) SearchFiles(ctx context.Context, query string) toolexec.Result {
	if res, found := f.search[query]; found {
		return res
	}
	return toolexec.Result{Success: true, Output: `no files matching "` + query + `"`}
}

func cleanAuditor(tools Tools) *Auditor {
	return NewAuditor(Options{
		Tools:         tools,
		CriticalFiles: []string{"shared/schema", "server/index", "server/routes", "server/db"},
	})
}

func TestVerifyCleanChangeSucceeds(t *testing.T) {
	a := cleanAuditor(&fakeTools{})

	r := a.VerifyAgentWork(context.Background(), "agent-1", []string{"content/post.md"}, "replace_text")
	if !r.Success {
		t.Fatalf("report = %+v, want success", r)
	}
	if len(r.Errors) != 0 {
		t.Errorf("errors = %v, want none", r.Errors)
	}
}

func TestVerifyDiagnosticsErrorForcesNextSteps(t *testing.T) {
	tools := &fakeTools{diagnostics: map[string]toolexec.Result{
		"app/main.ts": {Success: true, Output: "errors found:\napp/main.ts(3,1): error TS2304: cannot find name 'Router'."},
	}}
	a := cleanAuditor(tools)

	r := a.VerifyAgentWork(context.Background(), "agent-1", []string{"app/main.ts"}, "replace_text")
	if r.Success {
		t.Fatal("diagnostics errors must fail the report")
	}
	if len(r.NextSteps) == 0 {
		t.Error("diagnostics errors must force a next step")
	}

	hints := AutoFixCommonIssues(r.Errors)
	if len(hints) == 0 || !strings.Contains(hints[0], "import") {
		t.Errorf("hints = %v, want missing-import remediation", hints)
	}
}

func TestVerifyCriticalFileAlwaysErrors(t *testing.T) {
	a := cleanAuditor(&fakeTools{})

	r := a.VerifyAgentWork(context.Background(), "agent-1", []string{"shared/schema.ts"}, "replace_text")
	if r.Success {
		t.Fatal("critical file change must fail verification")
	}
	if len(r.Errors) < 1 {
		t.Errorf("errors = %v, want dependency-review error", r.Errors)
	}
}

func TestVerifyUnreferencedCreationWarnsOnly(t *testing.T) {
	a := cleanAuditor(&fakeTools{})

	r := a.VerifyAgentWork(context.Background(), "agent-1", []string{"utils/helper.ts"}, "create_file")
	if !r.Success {
		t.Fatalf("report = %+v; an unreferenced new file is a warning, never an error", r)
	}
	if len(r.Warnings) == 0 {
		t.Error("expected an unreferenced-file warning")
	}
}

func TestVerifyReferencedCreationIsQuiet(t *testing.T) {
	tools := &fakeTools{search: map[string]toolexec.Result{
		"helper": {Success: true, Output: "2 match(es) for \"helper\":\nutils/helper.ts\tfile\napp/main.ts\tline 3: import helper\n"},
	}}
	a := cleanAuditor(tools)

	r := a.VerifyAgentWork(context.Background(), "agent-1", []string{"utils/helper.ts"}, "create_file")
	for _, w := range r.Warnings {
		if strings.Contains(w, "referenced") {
			t.Errorf("unexpected connectivity warning: %q", w)
		}
	}
}

func TestVerifyIntegrationWarnings(t *testing.T) {
	a := cleanAuditor(&fakeTools{})

	r := a.VerifyAgentWork(context.Background(), "agent-1",
		[]string{"client/pages/home.tsx", "server/api/home.ts"}, "replace_text")
	if !r.Success {
		t.Fatalf("report = %+v; integration issues are warnings", r)
	}

	found := false
	for _, w := range r.Warnings {
		if strings.Contains(w, "integration") {
			found = true
		}
	}
	if !found {
		t.Errorf("warnings = %v, want integration-test recommendation", r.Warnings)
	}
}

func TestVerifyLiveness(t *testing.T) {
	live := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer live.Close()

	a := NewAuditor(Options{Tools: &fakeTools{}, LivenessURL: live.URL})
	r := a.VerifyAgentWork(context.Background(), "agent-1", []string{"content/post.md"}, "replace_text")
	if !r.Success {
		t.Fatalf("report = %+v, want success with live service", r)
	}

	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	downURL := down.URL
	down.Close()

	a = NewAuditor(Options{Tools: &fakeTools{}, LivenessURL: downURL})
	r = a.VerifyAgentWork(context.Background(), "agent-1", []string{"content/post.md"}, "replace_text")
	if r.Success {
		t.Fatal("unresponsive service must fail verification")
	}
	found := false
	for _, e := range r.Errors {
		if strings.Contains(e, "liveness") || strings.Contains(e, "respond") {
			found = true
		}
	}
	if !found {
		t.Errorf("errors = %v, want liveness failure", r.Errors)
	}
}

func TestAutoFixCommonIssues(t *testing.T) {
	tests := []struct {
		name   string
		errors []string
		want   string
	}{
		{
			name:   "missing symbol",
			errors: []string{"main.ts(3,1): error TS2304: cannot find name 'Router'."},
			want:   "import",
		},
		{
			name:   "missing module",
			errors: []string{"error: cannot find module 'express'"},
			want:   "install",
		},
		{
			name:   "implicit any",
			errors: []string{"param implicitly has an 'any' type"},
			want:   "type annotation",
		},
		{
			name:   "unrecognized",
			errors: []string{"segmentation fault"},
			want:   "known category",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hints := AutoFixCommonIssues(tt.errors)
			if len(hints) != 1 || !strings.Contains(hints[0], tt.want) {
				t.Errorf("hints = %v, want one containing %q", hints, tt.want)
			}
		})
	}

	if hints := AutoFixCommonIssues(nil); len(hints) != 0 {
		t.Errorf("hints for no errors = %v, want none", hints)
	}
}
