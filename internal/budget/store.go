package budget

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store provides database operations for usage records and budgets.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a new budget store backed by the given connection pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// InsertUsage appends a usage record to the ledger. Records are never
// updated or deleted afterwards.
func (s *Store) InsertUsage(ctx context.Context, rec *UsageRecord) error {
	err := s.pool.QueryRow(ctx,
		`INSERT INTO usage_records (agent_id, user_id, conversation_id, tokens_used, estimated_cost, task_type)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING id, created_at`,
		rec.AgentID, rec.UserID, rec.ConversationID, rec.TokensUsed, rec.EstimatedCost, rec.TaskType,
	).Scan(&rec.ID, &rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("inserting usage record: %w", err)
	}
	return nil
}

const budgetColumns = `id, user_id, agent_id, budget_type, limit_amount, current_spend,
	 is_active, alert_threshold_percent, reset_at, created_at, updated_at`

func scanBudget(row pgx.Row) (*Budget, error) {
	b := &Budget{}
	err := row.Scan(&b.ID, &b.UserID, &b.AgentID, &b.BudgetType, &b.LimitAmount,
		&b.CurrentSpend, &b.IsActive, &b.AlertThresholdPercent, &b.ResetAt,
		&b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return b, nil
}

// ActiveBudget returns the active budget row for the given scope and type.
// agentID nil selects the user's global row. A missing row returns
// (nil, nil), not an error.
func (s *Store) ActiveBudget(ctx context.Context, userID string, agentID *string, budgetType string) (*Budget, error) {
	var row pgx.Row
	if agentID == nil {
		row = s.pool.QueryRow(ctx,
			`SELECT `+budgetColumns+`
			 FROM budgets
			 WHERE user_id = $1 AND agent_id IS NULL AND budget_type = $2 AND is_active`,
			userID, budgetType)
	} else {
		row = s.pool.QueryRow(ctx,
			`SELECT `+budgetColumns+`
			 FROM budgets
			 WHERE user_id = $1 AND agent_id = $2 AND budget_type = $3 AND is_active`,
			userID, *agentID, budgetType)
	}

	b, err := scanBudget(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting active budget: %w", err)
	}
	return b, nil
}

// UserHasBudgets reports whether any budget rows exist for the user,
// active or not. Distinguishes a never-seeded user from one whose budgets
// were deactivated by an emergency stop.
func (s *Store) UserHasBudgets(ctx context.Context, userID string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM budgets WHERE user_id = $1)`,
		userID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("checking budget existence: %w", err)
	}
	return exists, nil
}

// AddSpend atomically increments current_spend on the user's active
// agent-scoped rows and, independently, on the active global rows. The two
// ledgers are parallel by design and are never derived from one another.
func (s *Store) AddSpend(ctx context.Context, userID, agentID string, cost float64) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE budgets
		 SET current_spend = current_spend + $1, updated_at = now()
		 WHERE user_id = $2 AND agent_id = $3 AND is_active`,
		cost, userID, agentID,
	)
	if err != nil {
		return fmt.Errorf("adding agent-scoped spend: %w", err)
	}

	_, err = s.pool.Exec(ctx,
		`UPDATE budgets
		 SET current_spend = current_spend + $1, updated_at = now()
		 WHERE user_id = $2 AND agent_id IS NULL AND is_active`,
		cost, userID,
	)
	if err != nil {
		return fmt.Errorf("adding global spend: %w", err)
	}
	return nil
}

// CreateDefaults seeds one global daily and one global monthly budget for
// the user. Existing active rows are left untouched.
func (s *Store) CreateDefaults(ctx context.Context, userID string, dailyLimit, monthlyLimit float64, alertPercent int) error {
	for _, seed := range []struct {
		budgetType string
		limit      float64
	}{
		{TypeDaily, dailyLimit},
		{TypeMonthly, monthlyLimit},
	} {
		_, err := s.pool.Exec(ctx,
			`INSERT INTO budgets (user_id, agent_id, budget_type, limit_amount, current_spend, is_active, alert_threshold_percent)
			 VALUES ($1, NULL, $2, $3, 0, true, $4)
			 ON CONFLICT (user_id, budget_type) WHERE agent_id IS NULL AND is_active
			 DO NOTHING`,
			userID, seed.budgetType, seed.limit, alertPercent,
		)
		if err != nil {
			return fmt.Errorf("seeding %s budget: %w", seed.budgetType, err)
		}
	}
	return nil
}

// CreateBudget inserts an explicit budget row, agent-scoped when agentID is
// non-nil.
func (s *Store) CreateBudget(ctx context.Context, userID string, agentID *string, budgetType string, limit float64, alertPercent int) (*Budget, error) {
	b, err := scanBudget(s.pool.QueryRow(ctx,
		`INSERT INTO budgets (user_id, agent_id, budget_type, limit_amount, current_spend, is_active, alert_threshold_percent)
		 VALUES ($1, $2, $3, $4, 0, true, $5)
		 RETURNING `+budgetColumns,
		userID, agentID, budgetType, limit, alertPercent,
	))
	if err != nil {
		return nil, fmt.Errorf("creating budget: %w", err)
	}
	return b, nil
}

// ResetDaily zeroes current_spend on every active daily budget and stamps
// reset_at. Returns the number of rows reset.
func (s *Store) ResetDaily(ctx context.Context) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE budgets
		 SET current_spend = 0, reset_at = now(), updated_at = now()
		 WHERE budget_type = $1 AND is_active`,
		TypeDaily,
	)
	if err != nil {
		return 0, fmt.Errorf("resetting daily budgets: %w", err)
	}
	return tag.RowsAffected(), nil
}

// DeactivateAll flips is_active off on every budget row belonging to the
// user. Returns the number of rows deactivated.
func (s *Store) DeactivateAll(ctx context.Context, userID string) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE budgets SET is_active = false, updated_at = now() WHERE user_id = $1`,
		userID,
	)
	if err != nil {
		return 0, fmt.Errorf("deactivating budgets: %w", err)
	}
	return tag.RowsAffected(), nil
}

// ReactivateAll undoes an emergency stop. Only scopes without a live row
// come back, one row per scope (the newest), so reseeding between a stop
// and a resume cannot trip the one-active-row-per-scope indexes.
func (s *Store) ReactivateAll(ctx context.Context, userID string) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE budgets SET is_active = true, updated_at = now()
		 WHERE id IN (
		     SELECT DISTINCT ON (budget_type, agent_id) id
		     FROM budgets
		     WHERE user_id = $1 AND NOT is_active
		     ORDER BY budget_type, agent_id, created_at DESC
		 )
		 AND NOT EXISTS (
		     SELECT 1 FROM budgets a
		     WHERE a.user_id = $1
		       AND a.budget_type = budgets.budget_type
		       AND a.agent_id IS NOT DISTINCT FROM budgets.agent_id
		       AND a.is_active
		 )`,
		userID,
	)
	if err != nil {
		return 0, fmt.Errorf("reactivating budgets: %w", err)
	}
	return tag.RowsAffected(), nil
}

// Summarize aggregates the user's usage records since the given time,
// grouped per agent.
func (s *Store) Summarize(ctx context.Context, userID string, since time.Time) ([]AgentCost, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT agent_id, COALESCE(SUM(estimated_cost), 0), COALESCE(SUM(tokens_used), 0), COUNT(*)
		 FROM usage_records
		 WHERE user_id = $1 AND created_at >= $2
		 GROUP BY agent_id
		 ORDER BY SUM(estimated_cost) DESC`,
		userID, since,
	)
	if err != nil {
		return nil, fmt.Errorf("summarizing usage: %w", err)
	}
	defer rows.Close()

	var agents []AgentCost
	for rows.Next() {
		var a AgentCost
		if err := rows.Scan(&a.AgentID, &a.TotalCost, &a.TotalTokens, &a.Calls); err != nil {
			return nil, fmt.Errorf("scanning usage summary row: %w", err)
		}
		agents = append(agents, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating usage summary rows: %w", err)
	}
	return agents, nil
}
