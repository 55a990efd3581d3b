package api

import (
	"net/http"

	"github.com/glowfoundry/steward/internal/budget"
	"github.com/glowfoundry/steward/internal/metrics"
)

// usageHandler groups usage tracking and cost reporting handlers.
type usageHandler struct {
	enforcer *budget.Enforcer
	metrics  *metrics.Metrics
}

func newUsageHandler(enforcer *budget.Enforcer, m *metrics.Metrics) *usageHandler {
	return &usageHandler{enforcer: enforcer, metrics: m}
}

// trackUsageRequest is the JSON body for recording token usage.
type trackUsageRequest struct {
	UserID         string `json:"userId"`
	AgentID        string `json:"agentId"`
	ConversationID string `json:"conversationId"`
	TokensUsed     int64  `json:"tokensUsed"`
	TaskType       string `json:"taskType"`
}

// TrackUsage handles POST /api/v1/usage. The response is always a decision,
// never an error from the budget side: checks fail open and a degraded
// decision says so explicitly.
func (h *usageHandler) TrackUsage(w http.ResponseWriter, r *http.Request) {
	var req trackUsageRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "failed to parse request body")
		return
	}
	if req.UserID == "" || req.AgentID == "" {
		writeError(w, http.StatusUnprocessableEntity, "validation_error", "userId and agentId are required")
		return
	}
	if req.TokensUsed <= 0 {
		writeError(w, http.StatusUnprocessableEntity, "validation_error", "tokensUsed must be positive")
		return
	}

	decision := h.enforcer.TrackUsage(r.Context(), req.UserID, req.AgentID, req.ConversationID, req.TokensUsed, req.TaskType)

	// Pause and warning counters are incremented by the enforcer's
	// notifier; only record-level metrics belong here.
	if h.metrics != nil {
		h.metrics.UsageRecordsTotal.Inc()
		if decision.Degraded {
			h.metrics.DegradedChecksTotal.Inc()
		}
	}

	writeJSON(w, http.StatusOK, decision)
}

// GetCostSummary handles GET /api/v1/usage/summary?user_id=&timeframe=.
func (h *usageHandler) GetCostSummary(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		writeError(w, http.StatusBadRequest, "invalid_id", "user_id is required")
		return
	}

	timeframe := r.URL.Query().Get("timeframe")
	if timeframe == "" {
		timeframe = "today"
	}

	summary, err := h.enforcer.GetCostSummary(r.Context(), userID, timeframe)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to summarize costs")
		return
	}
	writeJSON(w, http.StatusOK, summary)
}
