package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/glowfoundry/steward/internal/verify"
)

// verificationHandler serves audit reports produced off the request path.
type verificationHandler struct {
	worker *verify.Worker
}

func newVerificationHandler(worker *verify.Worker) *verificationHandler {
	return &verificationHandler{worker: worker}
}

// GetReport handles GET /api/v1/agents/{agentID}/verification. A report is
// delivered at most once; a second read returns 404 until the next audit
// completes.
func (h *verificationHandler) GetReport(w http.ResponseWriter, r *http.Request) {
	agentID := chi.URLParam(r, "agentID")
	if agentID == "" {
		writeError(w, http.StatusBadRequest, "invalid_id", "agent id is required")
		return
	}

	report, ok := h.worker.Consume(agentID)
	if !ok {
		writeError(w, http.StatusNotFound, "not_found", "no verification report available")
		return
	}
	writeJSON(w, http.StatusOK, report)
}
