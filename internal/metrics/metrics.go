package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Metrics holds all Prometheus metric collectors for the steward control
// plane.
type Metrics struct {
	registry *prometheus.Registry

	// HTTP metrics.
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Dispatch metrics.
	DispatchTotal         *prometheus.CounterVec
	DispatchDeclinesTotal prometheus.Counter
	ToolDuration          *prometheus.HistogramVec
	SummarizationsTotal   *prometheus.CounterVec

	// Budget metrics.
	UsageRecordsTotal     prometheus.Counter
	BudgetPausesTotal     *prometheus.CounterVec
	BudgetWarningsTotal   prometheus.Counter
	DegradedChecksTotal   prometheus.Counter
	EmergencyStopsTotal   prometheus.Counter
	DailyResetsTotal      prometheus.Counter

	// Approval metrics.
	ApprovalRequestsTotal  *prometheus.CounterVec
	ApprovalDecisionsTotal *prometheus.CounterVec

	// Verification metrics.
	VerificationsTotal   *prometheus.CounterVec
	VerificationDuration prometheus.Histogram
	VerifyQueueDepth     prometheus.Gauge

	// Server lifecycle.
	ServerStartTime prometheus.Gauge
}

// New creates and registers all Prometheus metrics on a private registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		registry: reg,

		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "steward_http_requests_total",
			Help: "Total number of HTTP requests.",
		}, []string{"method", "path_pattern", "status_code"}),

		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "steward_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path_pattern"}),

		DispatchTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "steward_dispatch_total",
			Help: "Total number of dispatched tool calls.",
		}, []string{"operation", "outcome"}),

		DispatchDeclinesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "steward_dispatch_declines_total",
			Help: "Total number of requests no intent pattern matched.",
		}),

		ToolDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "steward_tool_duration_seconds",
			Help:    "Tool execution duration in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),

		SummarizationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "steward_summarizations_total",
			Help: "Total number of result summarization calls to the reasoning service.",
		}, []string{"status"}),

		UsageRecordsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "steward_usage_records_total",
			Help: "Total number of usage records appended to the ledger.",
		}),

		BudgetPausesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "steward_budget_pauses_total",
			Help: "Total number of pause decisions by scope.",
		}, []string{"scope"}),

		BudgetWarningsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "steward_budget_warnings_total",
			Help: "Total number of budget warning decisions.",
		}),

		DegradedChecksTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "steward_budget_degraded_checks_total",
			Help: "Total number of budget checks answered while the ledger store was unreachable.",
		}),

		EmergencyStopsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "steward_emergency_stops_total",
			Help: "Total number of emergency stop broadcasts.",
		}),

		DailyResetsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "steward_daily_resets_total",
			Help: "Total number of scheduled daily budget resets.",
		}),

		ApprovalRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "steward_approval_requests_total",
			Help: "Total number of approval requests created, by impact level.",
		}, []string{"impact_level"}),

		ApprovalDecisionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "steward_approval_decisions_total",
			Help: "Total number of approval decisions, by outcome.",
		}, []string{"outcome"}),

		VerificationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "steward_verifications_total",
			Help: "Total number of verification runs, by result.",
		}, []string{"result"}),

		VerificationDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "steward_verification_duration_seconds",
			Help:    "Duration of verification pipeline runs in seconds.",
			Buckets: prometheus.DefBuckets,
		}),

		VerifyQueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "steward_verify_queue_depth",
			Help: "Current number of queued verification jobs.",
		}),

		ServerStartTime: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "steward_server_start_time_seconds",
			Help: "Unix timestamp when the server started.",
		}),
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.DispatchTotal,
		m.DispatchDeclinesTotal,
		m.ToolDuration,
		m.SummarizationsTotal,
		m.UsageRecordsTotal,
		m.BudgetPausesTotal,
		m.BudgetWarningsTotal,
		m.DegradedChecksTotal,
		m.EmergencyStopsTotal,
		m.DailyResetsTotal,
		m.ApprovalRequestsTotal,
		m.ApprovalDecisionsTotal,
		m.VerificationsTotal,
		m.VerificationDuration,
		m.VerifyQueueDepth,
		m.ServerStartTime,
	)

	m.ServerStartTime.Set(float64(time.Now().Unix()))

	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	return m
}

// Registry returns the private Prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RegisterDBPoolCollector registers a custom DB pool stats collector.
func (m *Metrics) RegisterDBPoolCollector(statFunc DBPoolStatFunc) {
	m.registry.MustRegister(NewDBPoolCollector(statFunc))
}

// IncHTTPRequest increments the HTTP request counter.
func (m *Metrics) IncHTTPRequest(method, pathPattern string, statusCode int) {
	m.HTTPRequestsTotal.WithLabelValues(method, pathPattern, fmt.Sprintf("%d", statusCode)).Inc()
}

// ObserveHTTPDuration records one request's duration.
func (m *Metrics) ObserveHTTPDuration(method, pathPattern string, seconds float64) {
	m.HTTPRequestDuration.WithLabelValues(method, pathPattern).Observe(seconds)
}

// IncDispatch increments the dispatch counter for one operation outcome.
func (m *Metrics) IncDispatch(operation, outcome string) {
	m.DispatchTotal.WithLabelValues(operation, outcome).Inc()
}

// IncDispatchDecline counts a request no pattern matched.
func (m *Metrics) IncDispatchDecline() {
	m.DispatchDeclinesTotal.Inc()
}

// ObserveToolDuration records one tool execution's duration.
func (m *Metrics) ObserveToolDuration(operation string, seconds float64) {
	m.ToolDuration.WithLabelValues(operation).Observe(seconds)
}

// IncSummarization counts one summarization call by status.
func (m *Metrics) IncSummarization(status string) {
	m.SummarizationsTotal.WithLabelValues(status).Inc()
}

// IncDailyReset counts one scheduled daily budget reset run.
func (m *Metrics) IncDailyReset() {
	m.DailyResetsTotal.Inc()
}

// IncBudgetPause counts a pause decision for the given scope.
func (m *Metrics) IncBudgetPause(scope string) {
	m.BudgetPausesTotal.WithLabelValues(scope).Inc()
}

// IncApprovalRequest counts a created approval request.
func (m *Metrics) IncApprovalRequest(impactLevel string) {
	m.ApprovalRequestsTotal.WithLabelValues(impactLevel).Inc()
}

// IncApprovalDecision counts an approval decision outcome.
func (m *Metrics) IncApprovalDecision(outcome string) {
	m.ApprovalDecisionsTotal.WithLabelValues(outcome).Inc()
}

// IncVerification counts a verification run result.
func (m *Metrics) IncVerification(result string) {
	m.VerificationsTotal.WithLabelValues(result).Inc()
}

// ObserveVerification records one verification run's result and duration.
func (m *Metrics) ObserveVerification(result string, seconds float64) {
	m.IncVerification(result)
	m.VerificationDuration.Observe(seconds)
}

// SetVerifyQueueDepth updates the verification queue depth gauge.
func (m *Metrics) SetVerifyQueueDepth(depth int) {
	m.VerifyQueueDepth.Set(float64(depth))
}
