package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/glowfoundry/steward/internal/approval"
	"github.com/glowfoundry/steward/internal/metrics"
)

// approvalsHandler groups approval and handoff HTTP handlers.
type approvalsHandler struct {
	gate    *approval.Gate
	metrics *metrics.Metrics
}

func newApprovalsHandler(gate *approval.Gate, m *metrics.Metrics) *approvalsHandler {
	return &approvalsHandler{gate: gate, metrics: m}
}

// createApprovalRequest is the JSON body for submitting content for review.
type createApprovalRequest struct {
	AgentID string           `json:"agentId"`
	UserID  string           `json:"userId"`
	Content approval.Content `json:"content"`
}

// CreateRequest handles POST /api/v1/approvals. The stored request is
// always pending; there is no way to submit pre-approved content.
func (h *approvalsHandler) CreateRequest(w http.ResponseWriter, r *http.Request) {
	var req createApprovalRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "failed to parse request body")
		return
	}
	if req.AgentID == "" || req.UserID == "" {
		writeError(w, http.StatusUnprocessableEntity, "validation_error", "agentId and userId are required")
		return
	}
	if req.Content.ContentType == "" {
		writeError(w, http.StatusUnprocessableEntity, "validation_error", "content.contentType is required")
		return
	}

	created, err := h.gate.RequestApproval(r.Context(), req.AgentID, req.UserID, req.Content)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to create approval request")
		return
	}

	if h.metrics != nil {
		h.metrics.IncApprovalRequest(created.ImpactLevel)
	}
	auditLog(r, "create", "approval_request", created.ID,
		"agent_id", created.AgentID, "impact_level", created.ImpactLevel)
	writeJSON(w, http.StatusCreated, created)
}

// GetRequest handles GET /api/v1/approvals/{id}.
func (h *approvalsHandler) GetRequest(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "invalid_id", "approval id is required")
		return
	}

	req, err := h.gate.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, approval.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "approval request not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to load approval request")
		return
	}
	writeJSON(w, http.StatusOK, req)
}

// ListRequests handles GET /api/v1/approvals.
func (h *approvalsHandler) ListRequests(w http.ResponseWriter, r *http.Request) {
	params := approval.ListParams{
		UserID: r.URL.Query().Get("user_id"),
		Status: r.URL.Query().Get("status"),
		Cursor: r.URL.Query().Get("cursor"),
	}
	if limitParam := r.URL.Query().Get("limit"); limitParam != "" {
		limit, err := strconv.Atoi(limitParam)
		if err != nil || limit <= 0 {
			writeError(w, http.StatusBadRequest, "invalid_limit", "limit must be a positive integer")
			return
		}
		params.Limit = limit
	}

	requests, nextCursor, err := h.gate.List(r.Context(), params)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to list approval requests")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"requests":    requests,
		"next_cursor": nextCursor,
	})
}

// decisionRequest is the JSON body for approve/reject.
type decisionRequest struct {
	DecidedBy string `json:"decidedBy"`
}

// Approve handles POST /api/v1/approvals/{id}/approve.
func (h *approvalsHandler) Approve(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, "approved")
}

// Reject handles POST /api/v1/approvals/{id}/reject.
func (h *approvalsHandler) Reject(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, "rejected")
}

func (h *approvalsHandler) decide(w http.ResponseWriter, r *http.Request, outcome string) {
	id := chi.URLParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "invalid_id", "approval id is required")
		return
	}

	var req decisionRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "failed to parse request body")
		return
	}
	if req.DecidedBy == "" {
		writeError(w, http.StatusUnprocessableEntity, "validation_error", "decidedBy is required")
		return
	}

	var (
		decided *approval.Request
		err     error
	)
	if outcome == "approved" {
		decided, err = h.gate.Approve(r.Context(), id, req.DecidedBy)
	} else {
		decided, err = h.gate.Reject(r.Context(), id, req.DecidedBy)
	}
	if err != nil {
		switch {
		case errors.Is(err, approval.ErrNotFound):
			writeError(w, http.StatusNotFound, "not_found", "approval request not found")
		case errors.Is(err, approval.ErrInvalidTransition):
			writeError(w, http.StatusConflict, "invalid_transition", "approval request is not pending")
		default:
			writeError(w, http.StatusInternalServerError, "internal_error", "failed to record decision")
		}
		return
	}

	if h.metrics != nil {
		h.metrics.IncApprovalDecision(outcome)
	}
	auditLog(r, outcome, "approval_request", id, "decided_by", req.DecidedBy)
	writeJSON(w, http.StatusOK, decided)
}

// createHandoffRequest is the JSON body for requesting human guidance.
type createHandoffRequest struct {
	AgentID        string `json:"agentId"`
	ConversationID string `json:"conversationId"`
	ContextSummary string `json:"contextSummary"`
	Urgency        string `json:"urgency"`
}

// CreateHandoff handles POST /api/v1/handoffs.
func (h *approvalsHandler) CreateHandoff(w http.ResponseWriter, r *http.Request) {
	var req createHandoffRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "failed to parse request body")
		return
	}
	if req.AgentID == "" {
		writeError(w, http.StatusUnprocessableEntity, "validation_error", "agentId is required")
		return
	}
	if req.ContextSummary == "" {
		writeError(w, http.StatusUnprocessableEntity, "validation_error", "contextSummary is required")
		return
	}

	handoff, err := h.gate.RequestHandoff(r.Context(), req.AgentID, req.ConversationID, req.ContextSummary, req.Urgency)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to create handoff")
		return
	}
	writeJSON(w, http.StatusCreated, handoff)
}

// ListHandoffs handles GET /api/v1/handoffs?agent_id=.
func (h *approvalsHandler) ListHandoffs(w http.ResponseWriter, r *http.Request) {
	agentID := r.URL.Query().Get("agent_id")
	if agentID == "" {
		writeError(w, http.StatusBadRequest, "invalid_id", "agent_id is required")
		return
	}

	limit := 50
	if limitParam := r.URL.Query().Get("limit"); limitParam != "" {
		n, err := strconv.Atoi(limitParam)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "invalid_limit", "limit must be a positive integer")
			return
		}
		limit = n
	}

	handoffs, err := h.gate.ListHandoffs(r.Context(), agentID, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to list handoffs")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"handoffs": handoffs})
}
