// Package approval implements the human approval gate: requests created
// pending-only, a strict status state machine, and handoff records for
// escalation to a human operator. Notification delivery is external; this
// package only produces and transitions the records.
package approval

import (
	"errors"
	"time"
)

// Approval statuses. pending may move to approved or rejected (terminal)
// or detour to emergency_paused and back; nothing else is valid.
const (
	StatusPending         = "pending"
	StatusApproved        = "approved"
	StatusRejected        = "rejected"
	StatusEmergencyPaused = "emergency_paused"
)

// Impact levels.
const (
	ImpactMedium   = "medium"
	ImpactHigh     = "high"
	ImpactCritical = "critical"
)

// recipientThreshold is the outbound-communication size above which a
// request is classified high impact.
const recipientThreshold = 100

// ErrInvalidTransition is returned for any status change outside the state
// machine.
var ErrInvalidTransition = errors.New("approval: invalid status transition")

// Content is what an agent wants published, as submitted for approval.
type Content struct {
	ContentType    string         `json:"contentType"`
	Title          string         `json:"title"`
	Preview        string         `json:"preview"`
	Payload        map[string]any `json:"payload,omitempty"`
	RecipientCount int            `json:"recipientCount,omitempty"`
	EstimatedCost  float64        `json:"estimatedCost,omitempty"`
}

// Request is a persisted approval request. While status is pending the
// payload has not reached any external audience.
type Request struct {
	ID            string         `json:"id"`
	AgentID       string         `json:"agentId"`
	UserID        string         `json:"userId"`
	ContentType   string         `json:"contentType"`
	Title         string         `json:"title"`
	Preview       string         `json:"preview"`
	Payload       map[string]any `json:"payload,omitempty"`
	ImpactLevel   string         `json:"impactLevel"`
	EstimatedCost float64        `json:"estimatedCost"`
	Status        string         `json:"status"`
	CreatedAt     time.Time      `json:"createdAt"`
	DecidedAt     *time.Time     `json:"decidedAt,omitempty"`
	DecidedBy     string         `json:"decidedBy,omitempty"`
}

// Handoff target types.
const (
	TargetHuman = "human"
	TargetAgent = "agent"
)

// Handoff is a persisted request for external guidance.
type Handoff struct {
	ID             string    `json:"id"`
	FromAgentID    string    `json:"fromAgentId"`
	TargetType     string    `json:"targetType"`
	TargetID       string    `json:"targetId,omitempty"`
	RequestType    string    `json:"requestType"`
	ContextSummary string    `json:"contextSummary"`
	Urgency        string    `json:"urgency"`
	ConversationID string    `json:"conversationId,omitempty"`
	Status         string    `json:"status"`
	CreatedAt      time.Time `json:"createdAt"`
}

// irreversibleContentTypes are content types whose effects are live and
// external-facing; publishing them cannot be undone.
var irreversibleContentTypes = map[string]bool{
	"website_update": true,
	"ad_campaign":    true,
	"dns_change":     true,
}

// ClassifyImpact applies the rule table: irreversible external-facing
// content is critical, large outbound sends are high, everything else is
// medium.
func ClassifyImpact(c Content) string {
	if irreversibleContentTypes[c.ContentType] {
		return ImpactCritical
	}
	if c.RecipientCount > recipientThreshold {
		return ImpactHigh
	}
	return ImpactMedium
}

// validTransition reports whether the status change is allowed.
func validTransition(from, to string) bool {
	switch from {
	case StatusPending:
		return to == StatusApproved || to == StatusRejected || to == StatusEmergencyPaused
	case StatusEmergencyPaused:
		return to == StatusPending
	}
	return false
}
