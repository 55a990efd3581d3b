// Package budget implements the spend ledger and enforcement for agent
// activity: an append-only usage record stream, per-scope budget rows with
// atomic spend accumulation, pause decisions, and the emergency stop.
package budget

import "time"

// costPerToken is the flat heuristic rate used to derive estimated cost
// from token counts. It is deliberately not tied to any vendor pricing
// tier.
const costPerToken = 0.00002

// Budget types.
const (
	TypeDaily   = "daily"
	TypeMonthly = "monthly"
)

// defaultRemaining is the generous headroom reported when a user has no
// budget rows at all. Checks never fail closed on a missing budget.
const defaultRemaining = 1000.0

// UsageRecord is one append-only ledger entry for a single agent call.
type UsageRecord struct {
	ID             string    `json:"id"`
	AgentID        string    `json:"agentId"`
	UserID         string    `json:"userId"`
	ConversationID string    `json:"conversationId,omitempty"`
	TokensUsed     int64     `json:"tokensUsed"`
	EstimatedCost  float64   `json:"estimatedCost"`
	TaskType       string    `json:"taskType,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
}

// Budget is one spend ledger scope. AgentID nil means the row is the
// user's global scope; the agent-scoped and global rows are maintained
// independently.
type Budget struct {
	ID                    string     `json:"id"`
	UserID                string     `json:"userId"`
	AgentID               *string    `json:"agentId,omitempty"`
	BudgetType            string     `json:"budgetType"`
	LimitAmount           float64    `json:"limitAmount"`
	CurrentSpend          float64    `json:"currentSpend"`
	IsActive              bool       `json:"isActive"`
	AlertThresholdPercent int        `json:"alertThresholdPercent"`
	ResetAt               *time.Time `json:"resetAt,omitempty"`
	CreatedAt             time.Time  `json:"createdAt"`
	UpdatedAt             time.Time  `json:"updatedAt"`
}

// Decision is the outcome of a budget check. Degraded marks a decision
// produced while the ledger store was unreachable: it is non-blocking with
// conservative headroom, and must never be mistaken for a genuine
// measurement.
type Decision struct {
	ShouldPause bool    `json:"shouldPause"`
	Warning     bool    `json:"warning"`
	Remaining   float64 `json:"remaining"`
	Limit       float64 `json:"limit,omitempty"`
	NewTotal    float64 `json:"newTotal,omitempty"`
	Degraded    bool    `json:"degraded,omitempty"`
	Reason      string  `json:"reason,omitempty"`
}

// AgentCost is one agent's aggregate within a cost summary window.
type AgentCost struct {
	AgentID     string  `json:"agentId"`
	TotalCost   float64 `json:"totalCost"`
	TotalTokens int64   `json:"totalTokens"`
	Calls       int64   `json:"calls"`
}

// CostSummary aggregates a user's usage records over a timeframe, grouped
// per agent plus grand totals.
type CostSummary struct {
	UserID      string      `json:"userId"`
	Timeframe   string      `json:"timeframe"`
	Since       time.Time   `json:"since"`
	Agents      []AgentCost `json:"agents"`
	TotalCost   float64     `json:"totalCost"`
	TotalTokens int64       `json:"totalTokens"`
	TotalCalls  int64       `json:"totalCalls"`
}

// EstimateCost converts a token count to cost at the flat rate.
func EstimateCost(tokens int64) float64 {
	return float64(tokens) * costPerToken
}
