package budget

import (
	"context"
	"log/slog"
	"time"
)

// degradedRemaining is the conservative headroom reported while the ledger
// store is unreachable. Small on purpose: a degraded decision should let a
// single call through, not a spree.
const degradedRemaining = 10.0

// Ledger is the persistence surface the enforcer needs. Implemented by
// Store; narrowed here so tests can supply fakes.
type Ledger interface {
	InsertUsage(ctx context.Context, rec *UsageRecord) error
	ActiveBudget(ctx context.Context, userID string, agentID *string, budgetType string) (*Budget, error)
	UserHasBudgets(ctx context.Context, userID string) (bool, error)
	AddSpend(ctx context.Context, userID, agentID string, cost float64) error
	CreateDefaults(ctx context.Context, userID string, dailyLimit, monthlyLimit float64, alertPercent int) error
	ResetDaily(ctx context.Context) (int64, error)
	DeactivateAll(ctx context.Context, userID string) (int64, error)
	ReactivateAll(ctx context.Context, userID string) (int64, error)
	Summarize(ctx context.Context, userID string, since time.Time) ([]AgentCost, error)
}

// PauseMirror propagates pause state to a fast shared cache so dispatch
// checks see a stop promptly. Implemented by PauseCache; optional.
type PauseMirror interface {
	IsPaused(ctx context.Context, userID, agentID string) bool
	PauseUser(ctx context.Context, userID, reason string) error
	PauseAgent(ctx context.Context, userID, agentID, reason string) error
	ResumeUser(ctx context.Context, userID string) error
}

// Notifier receives budget events for escalation. The enforcer only emits;
// delivery belongs to the collaborator behind this interface.
type Notifier interface {
	BudgetWarning(ctx context.Context, userID, agentID string, d Decision)
	BudgetPaused(ctx context.Context, userID, agentID string, d Decision)
	EmergencyStop(ctx context.Context, userID, reason string)
}

// Enforcer applies budget policy over the ledger. Checks fail open: a
// storage fault yields a non-blocking Degraded decision rather than an
// error, so a persistence outage cannot halt the whole agent fleet.
type Enforcer struct {
	ledger   Ledger
	mirror   PauseMirror
	notifier Notifier
	logger   *slog.Logger

	defaultDailyLimit   float64
	defaultMonthlyLimit float64
	alertPercent        int
}

// EnforcerOptions configures an Enforcer.
type EnforcerOptions struct {
	Ledger              Ledger
	Mirror              PauseMirror
	Notifier            Notifier
	Logger              *slog.Logger
	DefaultDailyLimit   float64
	DefaultMonthlyLimit float64
	AlertPercent        int
}

// NewEnforcer creates an Enforcer.
func NewEnforcer(opts EnforcerOptions) *Enforcer {
	e := &Enforcer{
		ledger:              opts.Ledger,
		mirror:              opts.Mirror,
		notifier:            opts.Notifier,
		logger:              opts.Logger,
		defaultDailyLimit:   opts.DefaultDailyLimit,
		defaultMonthlyLimit: opts.DefaultMonthlyLimit,
		alertPercent:        opts.AlertPercent,
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	if e.defaultDailyLimit <= 0 {
		e.defaultDailyLimit = 50
	}
	if e.defaultMonthlyLimit <= 0 {
		e.defaultMonthlyLimit = 500
	}
	if e.alertPercent <= 0 {
		e.alertPercent = 80
	}
	return e
}

// TrackUsage appends a usage record, derives its cost at the flat rate,
// checks limits, and accumulates the spend on both ledgers. The spend is
// recorded even when the decision pauses the scope: the cost has already
// been incurred.
func (e *Enforcer) TrackUsage(ctx context.Context, userID, agentID, conversationID string, tokensUsed int64, taskType string) Decision {
	cost := EstimateCost(tokensUsed)

	rec := &UsageRecord{
		AgentID:        agentID,
		UserID:         userID,
		ConversationID: conversationID,
		TokensUsed:     tokensUsed,
		EstimatedCost:  cost,
		TaskType:       taskType,
	}
	if err := e.ledger.InsertUsage(ctx, rec); err != nil {
		e.logger.Error("usage record insert failed, degrading",
			slog.String("user_id", userID), slog.String("agent_id", agentID),
			slog.Any("error", err))
		return e.degraded("usage ledger unavailable")
	}

	d := e.CheckLimits(ctx, userID, agentID, cost)

	if err := e.ledger.AddSpend(ctx, userID, agentID, cost); err != nil {
		e.logger.Error("spend accumulation failed",
			slog.String("user_id", userID), slog.String("agent_id", agentID),
			slog.Any("error", err))
	}

	if d.ShouldPause {
		e.propagatePause(ctx, userID, agentID, d)
	} else if d.Warning && e.notifier != nil {
		e.notifier.BudgetWarning(ctx, userID, agentID, d)
	}

	return d
}

// CheckLimits evaluates headroom for one incremental cost against the
// active agent-scoped daily budget, falling back to the user's global
// daily budget. A user with no budget rows at all gets a generous
// non-blocking default.
func (e *Enforcer) CheckLimits(ctx context.Context, userID, agentID string, incrementalCost float64) Decision {
	if e.mirror != nil && e.mirror.IsPaused(ctx, userID, agentID) {
		return Decision{ShouldPause: true, Remaining: 0, Reason: "scope is paused"}
	}

	b, err := e.ledger.ActiveBudget(ctx, userID, &agentID, TypeDaily)
	if err != nil {
		e.logger.Error("budget lookup failed, degrading", slog.Any("error", err))
		return e.degraded("budget store unavailable")
	}
	if b == nil {
		b, err = e.ledger.ActiveBudget(ctx, userID, nil, TypeDaily)
		if err != nil {
			e.logger.Error("global budget lookup failed, degrading", slog.Any("error", err))
			return e.degraded("budget store unavailable")
		}
	}

	if b == nil {
		has, err := e.ledger.UserHasBudgets(ctx, userID)
		if err != nil {
			e.logger.Error("budget existence check failed, degrading", slog.Any("error", err))
			return e.degraded("budget store unavailable")
		}
		if has {
			// Rows exist but none are active: the user was emergency
			// stopped. Paused regardless of headroom.
			return Decision{ShouldPause: true, Remaining: 0, Reason: "all budgets deactivated"}
		}
		return Decision{Remaining: defaultRemaining, Reason: "no budget configured"}
	}

	newTotal := b.CurrentSpend + incrementalCost
	d := Decision{
		Limit:     b.LimitAmount,
		NewTotal:  newTotal,
		Remaining: b.LimitAmount - newTotal,
	}
	if newTotal >= b.LimitAmount {
		d.ShouldPause = true
		d.Reason = "daily budget exhausted"
		return d
	}
	if newTotal >= float64(b.AlertThresholdPercent)/100*b.LimitAmount {
		d.Warning = true
		d.Reason = "approaching daily budget"
	}
	return d
}

// IsPaused reports whether new work for the scope must be refused. It is
// the dispatch-path view of CheckLimits: an emergency stop or an exhausted
// budget pauses even without the Redis mirror, and storage faults fail
// open. Satisfies the dispatch router's pause checker.
func (e *Enforcer) IsPaused(ctx context.Context, userID, agentID string) bool {
	return e.CheckLimits(ctx, userID, agentID, 0).ShouldPause
}

// AddSpend persists one increment against both the agent-scoped and global
// ledgers.
func (e *Enforcer) AddSpend(ctx context.Context, userID, agentID string, cost float64) error {
	return e.ledger.AddSpend(ctx, userID, agentID, cost)
}

// GetCostSummary aggregates usage since the start of the timeframe
// ("today", "7d" or "30d"), grouped per agent plus grand totals.
func (e *Enforcer) GetCostSummary(ctx context.Context, userID, timeframe string) (*CostSummary, error) {
	since := timeframeStart(timeframe, time.Now().UTC())

	agents, err := e.ledger.Summarize(ctx, userID, since)
	if err != nil {
		return nil, err
	}

	summary := &CostSummary{
		UserID:    userID,
		Timeframe: timeframe,
		Since:     since,
		Agents:    agents,
	}
	for _, a := range agents {
		summary.TotalCost += a.TotalCost
		summary.TotalTokens += a.TotalTokens
		summary.TotalCalls += a.Calls
	}
	return summary, nil
}

// CreateDefaultBudgets seeds the user's global daily and monthly budgets
// on first use.
func (e *Enforcer) CreateDefaultBudgets(ctx context.Context, userID string) error {
	return e.ledger.CreateDefaults(ctx, userID, e.defaultDailyLimit, e.defaultMonthlyLimit, e.alertPercent)
}

// ResetDailyBudgets zeroes current spend on every active daily budget.
func (e *Enforcer) ResetDailyBudgets(ctx context.Context) (int64, error) {
	n, err := e.ledger.ResetDaily(ctx)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		e.logger.Info("daily budgets reset", slog.Int64("count", n))
	}
	return n, nil
}

// EmergencyStopAllAgents deactivates every budget row of the user and
// broadcasts the pause. Already-dispatched tool calls are not cancelled;
// only future checks are blocked.
func (e *Enforcer) EmergencyStopAllAgents(ctx context.Context, userID, reason string) (int64, error) {
	n, err := e.ledger.DeactivateAll(ctx, userID)
	if err != nil {
		return 0, err
	}

	if e.mirror != nil {
		if err := e.mirror.PauseUser(ctx, userID, reason); err != nil {
			e.logger.Warn("pause broadcast failed", slog.String("user_id", userID), slog.Any("error", err))
		}
	}
	if e.notifier != nil {
		e.notifier.EmergencyStop(ctx, userID, reason)
	}

	e.logger.Warn("emergency stop",
		slog.String("user_id", userID),
		slog.String("reason", reason),
		slog.Int64("budgets_deactivated", n))
	return n, nil
}

// ResumeAllAgents undoes an emergency stop: budgets reactivate and the
// broadcast pause clears.
func (e *Enforcer) ResumeAllAgents(ctx context.Context, userID string) (int64, error) {
	n, err := e.ledger.ReactivateAll(ctx, userID)
	if err != nil {
		return 0, err
	}
	if e.mirror != nil {
		if err := e.mirror.ResumeUser(ctx, userID); err != nil {
			e.logger.Warn("resume broadcast failed", slog.String("user_id", userID), slog.Any("error", err))
		}
	}
	return n, nil
}

func (e *Enforcer) propagatePause(ctx context.Context, userID, agentID string, d Decision) {
	if e.mirror != nil {
		if err := e.mirror.PauseAgent(ctx, userID, agentID, d.Reason); err != nil {
			e.logger.Warn("pause broadcast failed",
				slog.String("user_id", userID), slog.String("agent_id", agentID),
				slog.Any("error", err))
		}
	}
	if e.notifier != nil {
		e.notifier.BudgetPaused(ctx, userID, agentID, d)
	}
}

func (e *Enforcer) degraded(reason string) Decision {
	return Decision{
		Remaining: degradedRemaining,
		Degraded:  true,
		Reason:    reason,
	}
}

// timeframeStart computes the aggregation window start. Unknown timeframes
// fall back to today.
func timeframeStart(timeframe string, now time.Time) time.Time {
	switch timeframe {
	case "7d":
		return now.AddDate(0, 0, -7)
	case "30d":
		return now.AddDate(0, 0, -30)
	default:
		return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	}
}
