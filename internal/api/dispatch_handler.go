package api

import (
	"errors"
	"net/http"

	"github.com/glowfoundry/steward/internal/dispatch"
	"github.com/glowfoundry/steward/internal/metrics"
)

// dispatchHandler exposes the natural-language dispatch surface.
type dispatchHandler struct {
	router  *dispatch.Router
	metrics *metrics.Metrics
}

func newDispatchHandler(router *dispatch.Router, m *metrics.Metrics) *dispatchHandler {
	return &dispatchHandler{router: router, metrics: m}
}

// dispatchRequest is the JSON body for a dispatch call.
type dispatchRequest struct {
	UserID  string `json:"userId"`
	AgentID string `json:"agentId"`
	Request string `json:"request"`
}

// dispatchResponse wraps the outcome. A decline (no pattern matched) is a
// normal response, not an error: the caller decides what to do next.
type dispatchResponse struct {
	Matched bool              `json:"matched"`
	Message string            `json:"message,omitempty"`
	Outcome *dispatch.Outcome `json:"outcome,omitempty"`
}

// Dispatch handles POST /api/v1/dispatch.
func (h *dispatchHandler) Dispatch(w http.ResponseWriter, r *http.Request) {
	var req dispatchRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "failed to parse request body")
		return
	}
	if req.UserID == "" || req.AgentID == "" {
		writeError(w, http.StatusUnprocessableEntity, "validation_error", "userId and agentId are required")
		return
	}
	if req.Request == "" {
		writeError(w, http.StatusUnprocessableEntity, "validation_error", "request is required")
		return
	}

	outcome, err := h.router.Dispatch(r.Context(), req.UserID, req.AgentID, req.Request)
	if err != nil {
		if errors.Is(err, dispatch.ErrNoMatch) {
			if h.metrics != nil {
				h.metrics.IncDispatchDecline()
			}
			writeJSON(w, http.StatusOK, dispatchResponse{
				Matched: false,
				Message: "request did not match any supported operation",
			})
			return
		}
		writeError(w, http.StatusInternalServerError, "internal_error", "dispatch failed")
		return
	}

	if h.metrics != nil {
		h.metrics.IncDispatch(outcome.Operation, dispatchOutcomeLabel(outcome))
	}
	writeJSON(w, http.StatusOK, dispatchResponse{Matched: true, Outcome: outcome})
}

func dispatchOutcomeLabel(o *dispatch.Outcome) string {
	switch {
	case o.Paused:
		return "paused"
	case o.Success:
		return "success"
	default:
		return "failure"
	}
}
