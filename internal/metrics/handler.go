package metrics

import (
	"encoding/json"
	"math"
	"net/http"
	"sort"
	"time"

	dto "github.com/prometheus/client_model/go"
)

// Summary is the JSON response for the metrics endpoint.
type Summary struct {
	Mode         string           `json:"mode"`
	HTTP         httpSummary      `json:"http"`
	Dispatch     dispatchSummary  `json:"dispatch"`
	Budget       budgetSummary    `json:"budget"`
	Approval     approvalSummary  `json:"approval"`
	Verification verifySummary    `json:"verification"`
	DB           dbInfo           `json:"db"`
	Server       serverInfo       `json:"server"`
}

type httpSummary struct {
	TotalRequests float64 `json:"totalRequests"`
	ErrorRate     float64 `json:"errorRate"`
	P50Latency    float64 `json:"p50Latency"`
	P95Latency    float64 `json:"p95Latency"`
	P99Latency    float64 `json:"p99Latency"`
}

type dispatchSummary struct {
	Dispatched     float64 `json:"dispatched"`
	Declines       float64 `json:"declines"`
	Summarizations float64 `json:"summarizations"`
	P50Tool        float64 `json:"p50Tool"`
	P95Tool        float64 `json:"p95Tool"`
}

type budgetSummary struct {
	UsageRecords   float64 `json:"usageRecords"`
	Pauses         float64 `json:"pauses"`
	Warnings       float64 `json:"warnings"`
	DegradedChecks float64 `json:"degradedChecks"`
	EmergencyStops float64 `json:"emergencyStops"`
	DailyResets    float64 `json:"dailyResets"`
}

type approvalSummary struct {
	Requested float64 `json:"requested"`
	Approved  float64 `json:"approved"`
	Rejected  float64 `json:"rejected"`
	Critical  float64 `json:"critical"`
}

type verifySummary struct {
	Runs       float64 `json:"runs"`
	Failures   float64 `json:"failures"`
	QueueDepth float64 `json:"queueDepth"`
	P95Run     float64 `json:"p95Run"`
}

type dbInfo struct {
	TotalConns    float64 `json:"totalConns"`
	IdleConns     float64 `json:"idleConns"`
	AcquiredConns float64 `json:"acquiredConns"`
}

type serverInfo struct {
	StartTime     float64 `json:"startTime"`
	UptimeSeconds float64 `json:"uptimeSeconds"`
}

// Handler returns an http.HandlerFunc that serves live metrics in JSON format.
func (m *Metrics) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		m.handleLive(w)
	}
}

func (m *Metrics) handleLive(w http.ResponseWriter) {
	families, err := m.registry.Gather()
	if err != nil {
		http.Error(w, "failed to gather metrics", http.StatusInternalServerError)
		return
	}

	fam := make(map[string]*dto.MetricFamily, len(families))
	for _, f := range families {
		fam[f.GetName()] = f
	}

	summary := Summary{
		Mode: "live",
		HTTP: httpSummary{
			TotalRequests: sumCounter(fam["steward_http_requests_total"]),
			ErrorRate:     computeErrorRate(fam["steward_http_requests_total"]),
			P50Latency:    histogramPercentile(fam["steward_http_request_duration_seconds"], 0.50),
			P95Latency:    histogramPercentile(fam["steward_http_request_duration_seconds"], 0.95),
			P99Latency:    histogramPercentile(fam["steward_http_request_duration_seconds"], 0.99),
		},
		Dispatch: dispatchSummary{
			Dispatched:     sumCounter(fam["steward_dispatch_total"]),
			Declines:       counterValue(fam["steward_dispatch_declines_total"]),
			Summarizations: sumCounter(fam["steward_summarizations_total"]),
			P50Tool:        histogramPercentile(fam["steward_tool_duration_seconds"], 0.50),
			P95Tool:        histogramPercentile(fam["steward_tool_duration_seconds"], 0.95),
		},
		Budget: budgetSummary{
			UsageRecords:   counterValue(fam["steward_usage_records_total"]),
			Pauses:         sumCounter(fam["steward_budget_pauses_total"]),
			Warnings:       counterValue(fam["steward_budget_warnings_total"]),
			DegradedChecks: counterValue(fam["steward_budget_degraded_checks_total"]),
			EmergencyStops: counterValue(fam["steward_emergency_stops_total"]),
			DailyResets:    counterValue(fam["steward_daily_resets_total"]),
		},
		Approval: approvalSummary{
			Requested: sumCounter(fam["steward_approval_requests_total"]),
			Approved:  counterWithLabel(fam["steward_approval_decisions_total"], "outcome", "approved"),
			Rejected:  counterWithLabel(fam["steward_approval_decisions_total"], "outcome", "rejected"),
			Critical:  counterWithLabel(fam["steward_approval_requests_total"], "impact_level", "critical"),
		},
		Verification: verifySummary{
			Runs:       sumCounter(fam["steward_verifications_total"]),
			Failures:   counterWithLabel(fam["steward_verifications_total"], "result", "failed"),
			QueueDepth: gaugeValue(fam["steward_verify_queue_depth"]),
			P95Run:     histogramPercentile(fam["steward_verification_duration_seconds"], 0.95),
		},
		DB: dbInfo{
			TotalConns:    gaugeValue(fam["steward_db_pool_total_conns"]),
			IdleConns:     gaugeValue(fam["steward_db_pool_idle_conns"]),
			AcquiredConns: gaugeValue(fam["steward_db_pool_acquired_conns"]),
		},
		Server: serverInfo{
			StartTime:     gaugeValue(fam["steward_server_start_time_seconds"]),
			UptimeSeconds: float64(time.Now().Unix()) - gaugeValue(fam["steward_server_start_time_seconds"]),
		},
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache, no-store")
	_ = json.NewEncoder(w).Encode(summary)
}

// --- Prometheus metric helpers ---

func sumCounter(f *dto.MetricFamily) float64 {
	if f == nil {
		return 0
	}
	var total float64
	for _, m := range f.GetMetric() {
		if m.GetCounter() != nil {
			total += m.GetCounter().GetValue()
		}
	}
	return total
}

func gaugeValue(f *dto.MetricFamily) float64 {
	if f == nil {
		return 0
	}
	ms := f.GetMetric()
	if len(ms) == 0 {
		return 0
	}
	if ms[0].GetGauge() != nil {
		return ms[0].GetGauge().GetValue()
	}
	return 0
}

func counterValue(f *dto.MetricFamily) float64 {
	if f == nil {
		return 0
	}
	ms := f.GetMetric()
	if len(ms) == 0 {
		return 0
	}
	if ms[0].GetCounter() != nil {
		return ms[0].GetCounter().GetValue()
	}
	return 0
}

func counterWithLabel(f *dto.MetricFamily, labelName, labelValue string) float64 {
	if f == nil {
		return 0
	}
	for _, m := range f.GetMetric() {
		for _, lp := range m.GetLabel() {
			if lp.GetName() == labelName && lp.GetValue() == labelValue {
				if m.GetCounter() != nil {
					return m.GetCounter().GetValue()
				}
			}
		}
	}
	return 0
}

func computeErrorRate(f *dto.MetricFamily) float64 {
	if f == nil {
		return 0
	}
	var total, errors float64
	for _, m := range f.GetMetric() {
		if m.GetCounter() == nil {
			continue
		}
		v := m.GetCounter().GetValue()
		total += v
		for _, lp := range m.GetLabel() {
			if lp.GetName() == "status_code" {
				code := lp.GetValue()
				if len(code) > 0 && code[0] >= '4' {
					errors += v
				}
			}
		}
	}
	if total == 0 {
		return 0
	}
	return errors / total
}

// histogramPercentile computes a percentile from aggregated histogram buckets
// using linear interpolation.
func histogramPercentile(f *dto.MetricFamily, q float64) float64 {
	if f == nil {
		return 0
	}

	// Aggregate all histogram metrics in the family.
	type bucket struct {
		upperBound      float64
		cumulativeCount uint64
	}
	var totalCount uint64
	bucketMap := make(map[float64]uint64)

	for _, m := range f.GetMetric() {
		h := m.GetHistogram()
		if h == nil {
			continue
		}
		totalCount += h.GetSampleCount()
		for _, b := range h.GetBucket() {
			bucketMap[b.GetUpperBound()] += b.GetCumulativeCount()
		}
	}

	if totalCount == 0 {
		return 0
	}

	buckets := make([]bucket, 0, len(bucketMap))
	for ub, count := range bucketMap {
		buckets = append(buckets, bucket{upperBound: ub, cumulativeCount: count})
	}
	sort.Slice(buckets, func(i, j int) bool {
		return buckets[i].upperBound < buckets[j].upperBound
	})

	rank := q * float64(totalCount)

	var prevBound float64
	var prevCount uint64
	for _, b := range buckets {
		if math.IsInf(b.upperBound, 1) {
			break
		}
		if float64(b.cumulativeCount) >= rank {
			// Linear interpolation within this bucket.
			bucketCount := b.cumulativeCount - prevCount
			if bucketCount == 0 {
				return b.upperBound
			}
			fraction := (rank - float64(prevCount)) / float64(bucketCount)
			return prevBound + fraction*(b.upperBound-prevBound)
		}
		prevBound = b.upperBound
		prevCount = b.cumulativeCount
	}

	// If we didn't find it, return the last finite bucket upper bound.
	if len(buckets) > 0 {
		for i := len(buckets) - 1; i >= 0; i-- {
			if !math.IsInf(buckets[i].upperBound, 1) {
				return buckets[i].upperBound
			}
		}
	}
	return 0
}
