package budget

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"
)

// fakeLedger is an in-memory Ledger with per-method fault injection.
type fakeLedger struct {
	usage   []*UsageRecord
	budgets []*Budget

	insertErr error
	lookupErr error
	spendErr  error
}

func (f *fakeLedger) InsertUsage(ctx context.Context, rec *UsageRecord) error {
	if f.insertErr != nil {
		return f.insertErr
	}
	rec.CreatedAt = time.Now().UTC()
	f.usage = append(f.usage, rec)
	return nil
}

func (f *fakeLedger) ActiveBudget(ctx context.Context, userID string, agentID *string, budgetType string) (*Budget, error) {
	if f.lookupErr != nil {
		return nil, f.lookupErr
	}
	for _, b := range f.budgets {
		if b.UserID != userID || b.BudgetType != budgetType || !b.IsActive {
			continue
		}
		if agentID == nil && b.AgentID == nil {
			return b, nil
		}
		if agentID != nil && b.AgentID != nil && *b.AgentID == *agentID {
			return b, nil
		}
	}
	return nil, nil
}

func (f *fakeLedger) UserHasBudgets(ctx context.Context, userID string) (bool, error) {
	if f.lookupErr != nil {
		return false, f.lookupErr
	}
	for _, b := range f.budgets {
		if b.UserID == userID {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeLedger) AddSpend(ctx context.Context, userID, agentID string, cost float64) error {
	if f.spendErr != nil {
		return f.spendErr
	}
	for _, b := range f.budgets {
		if b.UserID != userID || !b.IsActive {
			continue
		}
		if b.AgentID == nil || *b.AgentID == agentID {
			b.CurrentSpend += cost
		}
	}
	return nil
}

func (f *fakeLedger) CreateDefaults(ctx context.Context, userID string, dailyLimit, monthlyLimit float64, alertPercent int) error {
	f.budgets = append(f.budgets,
		&Budget{UserID: userID, BudgetType: TypeDaily, LimitAmount: dailyLimit, IsActive: true, AlertThresholdPercent: alertPercent},
		&Budget{UserID: userID, BudgetType: TypeMonthly, LimitAmount: monthlyLimit, IsActive: true, AlertThresholdPercent: alertPercent},
	)
	return nil
}

func (f *fakeLedger) ResetDaily(ctx context.Context) (int64, error) {
	var n int64
	for _, b := range f.budgets {
		if b.BudgetType == TypeDaily && b.IsActive {
			b.CurrentSpend = 0
			n++
		}
	}
	return n, nil
}

func (f *fakeLedger) DeactivateAll(ctx context.Context, userID string) (int64, error) {
	var n int64
	for _, b := range f.budgets {
		if b.UserID == userID {
			b.IsActive = false
			n++
		}
	}
	return n, nil
}

func (f *fakeLedger) ReactivateAll(ctx context.Context, userID string) (int64, error) {
	// Mirrors the store: only scopes without a live row come back, one
	// row per scope.
	var n int64
	for _, b := range f.budgets {
		if b.UserID != userID || b.IsActive {
			continue
		}
		if f.scopeHasActive(userID, b.AgentID, b.BudgetType) {
			continue
		}
		b.IsActive = true
		n++
	}
	return n, nil
}

func (f *fakeLedger) scopeHasActive(userID string, agentID *string, budgetType string) bool {
	for _, b := range f.budgets {
		if b.UserID != userID || b.BudgetType != budgetType || !b.IsActive {
			continue
		}
		if agentID == nil && b.AgentID == nil {
			return true
		}
		if agentID != nil && b.AgentID != nil && *b.AgentID == *agentID {
			return true
		}
	}
	return false
}

func (f *fakeLedger) Summarize(ctx context.Context, userID string, since time.Time) ([]AgentCost, error) {
	byAgent := map[string]*AgentCost{}
	var order []string
	for _, rec := range f.usage {
		if rec.UserID != userID || rec.CreatedAt.Before(since) {
			continue
		}
		a, found := byAgent[rec.AgentID]
		if !found {
			a = &AgentCost{AgentID: rec.AgentID}
			byAgent[rec.AgentID] = a
			order = append(order, rec.AgentID)
		}
		a.TotalCost += rec.EstimatedCost
		a.TotalTokens += rec.TokensUsed
		a.Calls++
	}
	var out []AgentCost
	for _, id := range order {
		out = append(out, *byAgent[id])
	}
	return out, nil
}

type fakeNotifier struct {
	warnings  int
	pauses    int
	stops     int
	lastPause Decision
}

func (f *fakeNotifier) BudgetWarning(ctx context.Context, userID, agentID string, d Decision) {
	f.warnings++
}

func (f *fakeNotifier) BudgetPaused(ctx context.Context, userID, agentID string, d Decision) {
	f.pauses++
	f.lastPause = d
}

func (f *fakeNotifier) EmergencyStop(ctx context.Context, userID, reason string) {
	f.stops++
}

func globalDaily(userID string, limit float64) *Budget {
	return &Budget{UserID: userID, BudgetType: TypeDaily, LimitAmount: limit, IsActive: true, AlertThresholdPercent: 80}
}

func approx(got, want float64) bool {
	diff := got - want
	return diff < 1e-9 && diff > -1e-9
}

// Three calls against a 10 unit daily budget: 3, then 4, then 5. The third
// crosses the limit and pauses; the ledger still records all 12 units.
func TestTrackUsageExhaustsDailyBudget(t *testing.T) {
	ledger := &fakeLedger{budgets: []*Budget{globalDaily("rachel", 10)}}
	notifier := &fakeNotifier{}
	e := NewEnforcer(EnforcerOptions{Ledger: ledger, Notifier: notifier})
	ctx := context.Background()

	// EstimateCost inverts to tokens at the flat rate.
	tokensFor := func(cost float64) int64 { return int64(math.Round(cost / costPerToken)) }

	d1 := e.TrackUsage(ctx, "rachel", "agent-1", "conv-1", tokensFor(3), "chat")
	if d1.ShouldPause || d1.Warning {
		t.Fatalf("first call decision = %+v, want clean pass", d1)
	}
	if !approx(d1.Remaining, 7) {
		t.Errorf("remaining after first call = %v, want 7", d1.Remaining)
	}

	d2 := e.TrackUsage(ctx, "rachel", "agent-1", "conv-1", tokensFor(4), "chat")
	if d2.ShouldPause {
		t.Fatalf("second call paused: %+v", d2)
	}
	if !approx(d2.Remaining, 3) {
		t.Errorf("remaining after second call = %v, want 3", d2.Remaining)
	}

	d3 := e.TrackUsage(ctx, "rachel", "agent-1", "conv-1", tokensFor(5), "chat")
	if !d3.ShouldPause {
		t.Fatalf("third call decision = %+v, want pause", d3)
	}
	if d3.Remaining > 1e-9 {
		t.Errorf("remaining on pause = %v, want <= 0", d3.Remaining)
	}

	// Spend is recorded even for the pausing call.
	var total float64
	for _, rec := range ledger.usage {
		total += rec.EstimatedCost
	}
	if !approx(total, 12) {
		t.Errorf("ledger total = %v, want 12", total)
	}
	if !approx(ledger.budgets[0].CurrentSpend, 12) {
		t.Errorf("accumulated spend = %v, want 12", ledger.budgets[0].CurrentSpend)
	}
	if notifier.pauses != 1 {
		t.Errorf("pause notifications = %d, want 1", notifier.pauses)
	}
}

func TestCheckLimitsWarningThreshold(t *testing.T) {
	b := globalDaily("u1", 10)
	b.CurrentSpend = 7.5
	notifier := &fakeNotifier{}
	e := NewEnforcer(EnforcerOptions{Ledger: &fakeLedger{budgets: []*Budget{b}}, Notifier: notifier})

	d := e.CheckLimits(context.Background(), "u1", "agent-1", 1)
	if d.ShouldPause {
		t.Fatalf("decision = %+v, want pass", d)
	}
	if !d.Warning {
		t.Errorf("decision = %+v, want warning at 8.5 of 10 with an 80%% threshold", d)
	}

	// TrackUsage also surfaces the warning to the notifier.
	e.TrackUsage(context.Background(), "u1", "agent-1", "", 50000, "chat")
	if notifier.warnings != 1 {
		t.Errorf("warning notifications = %d, want 1", notifier.warnings)
	}
}

func TestCheckLimitsAgentScopePrecedesGlobal(t *testing.T) {
	agent := "agent-1"
	ledger := &fakeLedger{budgets: []*Budget{
		globalDaily("u1", 100),
		{UserID: "u1", AgentID: &agent, BudgetType: TypeDaily, LimitAmount: 5, IsActive: true, AlertThresholdPercent: 80},
	}}
	e := NewEnforcer(EnforcerOptions{Ledger: ledger})

	d := e.CheckLimits(context.Background(), "u1", "agent-1", 6)
	if !d.ShouldPause {
		t.Errorf("decision = %+v, want pause against the tighter agent budget", d)
	}

	// Another agent without its own budget falls back to the global row.
	d = e.CheckLimits(context.Background(), "u1", "agent-2", 6)
	if d.ShouldPause {
		t.Errorf("decision = %+v, want pass against the global budget", d)
	}
}

func TestCheckLimitsNoBudgetRowsIsGenerous(t *testing.T) {
	e := NewEnforcer(EnforcerOptions{Ledger: &fakeLedger{}})

	d := e.CheckLimits(context.Background(), "nobody", "agent-1", 3)
	if d.ShouldPause || d.Degraded {
		t.Fatalf("decision = %+v, want non-blocking default", d)
	}
	if d.Remaining != defaultRemaining {
		t.Errorf("remaining = %v, want generous default %v", d.Remaining, defaultRemaining)
	}
}

func TestCheckLimitsFailsOpenOnStorageFault(t *testing.T) {
	ledger := &fakeLedger{lookupErr: errors.New("connection refused")}
	e := NewEnforcer(EnforcerOptions{Ledger: ledger})

	d := e.CheckLimits(context.Background(), "u1", "agent-1", 3)
	if d.ShouldPause {
		t.Fatal("storage fault must not block the fleet")
	}
	if !d.Degraded {
		t.Error("degraded decision must be flagged, not passed off as headroom")
	}
	if d.Remaining != degradedRemaining {
		t.Errorf("remaining = %v, want conservative %v", d.Remaining, degradedRemaining)
	}
}

func TestTrackUsageFailsOpenOnInsertFault(t *testing.T) {
	ledger := &fakeLedger{insertErr: errors.New("disk full")}
	e := NewEnforcer(EnforcerOptions{Ledger: ledger})

	d := e.TrackUsage(context.Background(), "u1", "agent-1", "", 1000, "chat")
	if d.ShouldPause || !d.Degraded {
		t.Errorf("decision = %+v, want non-blocking degraded", d)
	}
}

func TestEmergencyStopPausesEverything(t *testing.T) {
	agent := "agent-1"
	ledger := &fakeLedger{budgets: []*Budget{
		globalDaily("u1", 100),
		{UserID: "u1", AgentID: &agent, BudgetType: TypeDaily, LimitAmount: 50, IsActive: true, AlertThresholdPercent: 80},
	}}
	notifier := &fakeNotifier{}
	e := NewEnforcer(EnforcerOptions{Ledger: ledger, Notifier: notifier})
	ctx := context.Background()

	n, err := e.EmergencyStopAllAgents(ctx, "u1", "runaway loop")
	if err != nil {
		t.Fatalf("EmergencyStopAllAgents: %v", err)
	}
	if n != 2 {
		t.Errorf("deactivated = %d, want 2", n)
	}
	if notifier.stops != 1 {
		t.Errorf("stop notifications = %d, want 1", notifier.stops)
	}

	// Plenty of headroom remains on paper, but every check now pauses.
	d := e.CheckLimits(ctx, "u1", "agent-1", 0.01)
	if !d.ShouldPause {
		t.Fatalf("post-stop decision = %+v, want pause regardless of headroom", d)
	}

	// Resume restores normal checks.
	if _, err := e.ResumeAllAgents(ctx, "u1"); err != nil {
		t.Fatalf("ResumeAllAgents: %v", err)
	}
	if d := e.CheckLimits(ctx, "u1", "agent-1", 0.01); d.ShouldPause {
		t.Errorf("post-resume decision = %+v, want pass", d)
	}
}

// IsPaused must surface an emergency stop from the ledger alone, so a
// deployment without the Redis mirror still refuses new dispatches.
func TestIsPausedWithoutMirrorAfterEmergencyStop(t *testing.T) {
	ledger := &fakeLedger{budgets: []*Budget{globalDaily("u1", 100)}}
	e := NewEnforcer(EnforcerOptions{Ledger: ledger})
	ctx := context.Background()

	if e.IsPaused(ctx, "u1", "agent-1") {
		t.Fatal("healthy scope reported paused")
	}

	if _, err := e.EmergencyStopAllAgents(ctx, "u1", "runaway loop"); err != nil {
		t.Fatalf("EmergencyStopAllAgents: %v", err)
	}
	if !e.IsPaused(ctx, "u1", "agent-1") {
		t.Error("stopped scope not reported paused")
	}

	// A user with no rows at all is not paused, and a ledger fault fails
	// open rather than blocking dispatch.
	if e.IsPaused(ctx, "fresh-user", "agent-1") {
		t.Error("unbudgeted user reported paused")
	}
	ledger.lookupErr = errors.New("db down")
	if e.IsPaused(ctx, "u1", "agent-1") {
		t.Error("degraded check must fail open")
	}
}

func TestIsPausedOnExhaustedBudget(t *testing.T) {
	b := globalDaily("u1", 10)
	b.CurrentSpend = 10
	ledger := &fakeLedger{budgets: []*Budget{b}}
	e := NewEnforcer(EnforcerOptions{Ledger: ledger})

	if !e.IsPaused(context.Background(), "u1", "agent-1") {
		t.Error("exhausted budget not reported paused")
	}
}

// Resuming after defaults were reseeded mid-stop must not revive the old
// rows for scopes that already have a live one.
func TestResumeSkipsScopesReseededDuringStop(t *testing.T) {
	ledger := &fakeLedger{budgets: []*Budget{globalDaily("u1", 100)}}
	e := NewEnforcer(EnforcerOptions{Ledger: ledger})
	ctx := context.Background()

	if _, err := e.EmergencyStopAllAgents(ctx, "u1", "stop"); err != nil {
		t.Fatalf("EmergencyStopAllAgents: %v", err)
	}
	if err := e.CreateDefaultBudgets(ctx, "u1"); err != nil {
		t.Fatalf("CreateDefaultBudgets: %v", err)
	}

	n, err := e.ResumeAllAgents(ctx, "u1")
	if err != nil {
		t.Fatalf("ResumeAllAgents: %v", err)
	}
	if n != 0 {
		t.Errorf("reactivated = %d, want 0: the reseeded rows already cover both scopes", n)
	}

	// Exactly one active row per (scope, type).
	active := map[string]int{}
	for _, b := range ledger.budgets {
		if b.UserID == "u1" && b.IsActive && b.AgentID == nil {
			active[b.BudgetType]++
		}
	}
	for budgetType, count := range active {
		if count != 1 {
			t.Errorf("active %s rows = %d, want 1", budgetType, count)
		}
	}
}

func TestGetCostSummary(t *testing.T) {
	ledger := &fakeLedger{}
	e := NewEnforcer(EnforcerOptions{Ledger: ledger})
	ctx := context.Background()

	e.TrackUsage(ctx, "u1", "agent-1", "", 100000, "chat")
	e.TrackUsage(ctx, "u1", "agent-1", "", 50000, "chat")
	e.TrackUsage(ctx, "u1", "agent-2", "", 200000, "email")
	e.TrackUsage(ctx, "other", "agent-9", "", 999999, "chat")

	sum, err := e.GetCostSummary(ctx, "u1", "today")
	if err != nil {
		t.Fatalf("GetCostSummary: %v", err)
	}
	if len(sum.Agents) != 2 {
		t.Fatalf("agent groups = %d, want 2", len(sum.Agents))
	}
	if sum.TotalTokens != 350000 {
		t.Errorf("total tokens = %d, want 350000", sum.TotalTokens)
	}
	if sum.TotalCalls != 3 {
		t.Errorf("total calls = %d, want 3", sum.TotalCalls)
	}
	want := EstimateCost(350000)
	if diff := sum.TotalCost - want; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("total cost = %v, want %v", sum.TotalCost, want)
	}
}

func TestResetDailyBudgets(t *testing.T) {
	ledger := &fakeLedger{budgets: []*Budget{
		{UserID: "u1", BudgetType: TypeDaily, LimitAmount: 10, CurrentSpend: 8, IsActive: true, AlertThresholdPercent: 80},
		{UserID: "u1", BudgetType: TypeMonthly, LimitAmount: 100, CurrentSpend: 40, IsActive: true, AlertThresholdPercent: 80},
	}}
	e := NewEnforcer(EnforcerOptions{Ledger: ledger})

	n, err := e.ResetDailyBudgets(context.Background())
	if err != nil {
		t.Fatalf("ResetDailyBudgets: %v", err)
	}
	if n != 1 {
		t.Errorf("reset count = %d, want 1", n)
	}
	if ledger.budgets[0].CurrentSpend != 0 {
		t.Error("daily spend not zeroed")
	}
	if ledger.budgets[1].CurrentSpend != 40 {
		t.Error("monthly spend must be untouched by the daily reset")
	}
}

func TestTimeframeStart(t *testing.T) {
	now := time.Date(2026, 3, 15, 14, 30, 0, 0, time.UTC)

	tests := []struct {
		timeframe string
		want      time.Time
	}{
		{"today", time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)},
		{"7d", now.AddDate(0, 0, -7)},
		{"30d", now.AddDate(0, 0, -30)},
		{"bogus", time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		if got := timeframeStart(tt.timeframe, now); !got.Equal(tt.want) {
			t.Errorf("timeframeStart(%q) = %v, want %v", tt.timeframe, got, tt.want)
		}
	}
}
