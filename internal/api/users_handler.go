package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/glowfoundry/steward/internal/approval"
	"github.com/glowfoundry/steward/internal/budget"
	"github.com/glowfoundry/steward/internal/metrics"
)

// usersHandler groups per-user budget management and the emergency stop
// switch.
type usersHandler struct {
	enforcer *budget.Enforcer
	gate     *approval.Gate
	metrics  *metrics.Metrics
}

func newUsersHandler(enforcer *budget.Enforcer, gate *approval.Gate, m *metrics.Metrics) *usersHandler {
	return &usersHandler{enforcer: enforcer, gate: gate, metrics: m}
}

// CreateDefaultBudgets handles POST /api/v1/users/{userID}/budgets/defaults.
// Idempotent: existing active global budgets are left alone.
func (h *usersHandler) CreateDefaultBudgets(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	if userID == "" {
		writeError(w, http.StatusBadRequest, "invalid_id", "user id is required")
		return
	}

	if err := h.enforcer.CreateDefaultBudgets(r.Context(), userID); err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to create default budgets")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"status": "created"})
}

// emergencyStopRequest is the JSON body for an emergency stop.
type emergencyStopRequest struct {
	UserID string `json:"userId"`
	Reason string `json:"reason"`
}

// EmergencyStop handles POST /api/v1/emergency-stop. It deactivates every
// budget of the user and freezes all pending approvals in one sweep.
func (h *usersHandler) EmergencyStop(w http.ResponseWriter, r *http.Request) {
	var req emergencyStopRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "failed to parse request body")
		return
	}
	if req.UserID == "" {
		writeError(w, http.StatusUnprocessableEntity, "validation_error", "userId is required")
		return
	}
	if req.Reason == "" {
		req.Reason = "emergency stop requested"
	}
	userID := req.UserID

	budgetsStopped, err := h.enforcer.EmergencyStopAllAgents(r.Context(), userID, req.Reason)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to stop agents")
		return
	}

	approvalsPaused, err := h.gate.PauseAllPending(r.Context(), userID)
	if err != nil {
		// Budgets are already stopped; report the partial result rather
		// than pretending nothing happened.
		writeError(w, http.StatusInternalServerError, "internal_error", "agents stopped but pending approvals could not be paused")
		return
	}

	if h.metrics != nil {
		h.metrics.EmergencyStopsTotal.Inc()
	}
	auditLog(r, "emergency_stop", "user", userID, "reason", req.Reason,
		"budgets_stopped", budgetsStopped, "approvals_paused", approvalsPaused)

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":           "stopped",
		"budgets_stopped":  budgetsStopped,
		"approvals_paused": approvalsPaused,
	})
}

// resumeRequest is the JSON body for reversing an emergency stop.
type resumeRequest struct {
	UserID string `json:"userId"`
}

// Resume handles POST /api/v1/resume, reversing an emergency stop.
func (h *usersHandler) Resume(w http.ResponseWriter, r *http.Request) {
	var req resumeRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "failed to parse request body")
		return
	}
	if req.UserID == "" {
		writeError(w, http.StatusUnprocessableEntity, "validation_error", "userId is required")
		return
	}
	userID := req.UserID

	budgetsResumed, err := h.enforcer.ResumeAllAgents(r.Context(), userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to resume agents")
		return
	}

	approvalsResumed, err := h.gate.ResumePaused(r.Context(), userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "agents resumed but paused approvals could not be restored")
		return
	}

	auditLog(r, "resume", "user", userID,
		"budgets_resumed", budgetsResumed, "approvals_resumed", approvalsResumed)

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":            "resumed",
		"budgets_resumed":   budgetsResumed,
		"approvals_resumed": approvalsResumed,
	})
}
