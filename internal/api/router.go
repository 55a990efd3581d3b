package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/glowfoundry/steward/internal/approval"
	"github.com/glowfoundry/steward/internal/budget"
	"github.com/glowfoundry/steward/internal/dispatch"
	"github.com/glowfoundry/steward/internal/metrics"
	"github.com/glowfoundry/steward/internal/verify"
)

// RouterDeps holds all dependencies for the API router.
type RouterDeps struct {
	Enforcer   *budget.Enforcer
	Gate       *approval.Gate
	Dispatcher *dispatch.Router
	Verifier   *verify.Worker
	Metrics    *metrics.Metrics

	AllowedOrigins []string
}

// NewRouter builds the chi router with all routes and middleware.
func NewRouter(deps RouterDeps) http.Handler {
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chimw.Recoverer)
	r.Use(requestIDMiddleware)
	r.Use(secureHeaders)
	r.Use(corsMiddleware(deps.AllowedOrigins))
	r.Use(slogRequestLogger)
	if deps.Metrics != nil {
		r.Use(metricsMiddleware(deps.Metrics))
	}

	// Handlers.
	disp := newDispatchHandler(deps.Dispatcher, deps.Metrics)
	usage := newUsageHandler(deps.Enforcer, deps.Metrics)
	users := newUsersHandler(deps.Enforcer, deps.Gate, deps.Metrics)
	approvals := newApprovalsHandler(deps.Gate, deps.Metrics)
	verification := newVerificationHandler(deps.Verifier)

	// Health check.
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	// Metrics endpoints: Prometheus scrape format plus a JSON live summary.
	if deps.Metrics != nil {
		r.Get("/metrics", promhttp.HandlerFor(deps.Metrics.Registry(), promhttp.HandlerOpts{}).ServeHTTP)
		r.Get("/metrics/summary", deps.Metrics.Handler())
	}

	r.Route("/api/v1", func(ar chi.Router) {
		// Dispatch.
		ar.Post("/dispatch", disp.Dispatch)

		// Usage tracking and cost reporting.
		ar.Post("/usage", usage.TrackUsage)
		ar.Get("/usage/summary", usage.GetCostSummary)

		// Budget management and the emergency stop switch.
		ar.Post("/users/{userID}/budgets/defaults", users.CreateDefaultBudgets)
		ar.Post("/emergency-stop", users.EmergencyStop)
		ar.Post("/resume", users.Resume)

		// Approval workflow.
		ar.Post("/approvals", approvals.CreateRequest)
		ar.Get("/approvals", approvals.ListRequests)
		ar.Get("/approvals/{id}", approvals.GetRequest)
		ar.Post("/approvals/{id}/approve", approvals.Approve)
		ar.Post("/approvals/{id}/reject", approvals.Reject)

		// Agent-to-human handoffs.
		ar.Post("/handoffs", approvals.CreateHandoff)
		ar.Get("/handoffs", approvals.ListHandoffs)

		// Verification reports.
		ar.Get("/agents/{agentID}/verification", verification.GetReport)
	})

	return r
}

// slogRequestLogger is a simple structured logging middleware using slog.
func slogRequestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		slog.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"bytes", ww.BytesWritten(),
			"request_id", RequestIDFromContext(r.Context()),
		)
	})
}

// metricsMiddleware records per-request counters and latency, labelled by
// the chi route pattern rather than the raw path to keep cardinality low.
func metricsMiddleware(m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			pattern := chi.RouteContext(r.Context()).RoutePattern()
			if pattern == "" {
				pattern = "unmatched"
			}
			m.IncHTTPRequest(r.Method, pattern, ww.Status())
			m.ObserveHTTPDuration(r.Method, pattern, time.Since(start).Seconds())
		})
	}
}
