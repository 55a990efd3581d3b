package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/glowfoundry/steward/internal/approval"
	"github.com/glowfoundry/steward/internal/budget"
	"github.com/glowfoundry/steward/internal/config"
)

var seedUserID string

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Seed default budgets and a demo approval request for a user",
	RunE:  runSeed,
}

func init() {
	seedCmd.Flags().StringVar(&seedUserID, "user", "demo-user", "user id to seed")
	rootCmd.AddCommand(seedCmd)
}

func runSeed(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, cfg.Database.URL)
	if err != nil {
		return err
	}
	defer pool.Close()

	logger := slog.Default()
	ledger := budget.NewStore(pool)
	enforcer := budget.NewEnforcer(budget.EnforcerOptions{
		Ledger:              ledger,
		Logger:              logger,
		DefaultDailyLimit:   cfg.Budget.DefaultDailyLimit,
		DefaultMonthlyLimit: cfg.Budget.DefaultMonthlyLimit,
		AlertPercent:        cfg.Budget.AlertThresholdPercent,
	})

	if err := enforcer.CreateDefaultBudgets(ctx, seedUserID); err != nil {
		return fmt.Errorf("seeding default budgets: %w", err)
	}
	slog.Info("seeded default budgets",
		"user_id", seedUserID,
		"daily_limit", cfg.Budget.DefaultDailyLimit,
		"monthly_limit", cfg.Budget.DefaultMonthlyLimit)

	// Record a sample day of usage so the cost summary has something to show.
	decision := enforcer.TrackUsage(ctx, seedUserID, "demo-agent", "seed-conversation", 50000, "research")
	slog.Info("recorded sample usage", "remaining", decision.Remaining)

	gate := approval.NewGate(approval.NewStore(pool), logger)
	req, err := gate.RequestApproval(ctx, "demo-agent", seedUserID, approval.Content{
		ContentType:    "email",
		Title:          "Welcome email draft",
		Preview:        "Hi! Here is the welcome email the agent drafted for new signups...",
		RecipientCount: 25,
		EstimatedCost:  0.4,
	})
	if err != nil {
		return fmt.Errorf("seeding approval request: %w", err)
	}

	fmt.Printf("\n=== Demo Data Seeded ===\n")
	fmt.Printf("User:      %s\n", seedUserID)
	fmt.Printf("Budgets:   daily %.2f / monthly %.2f\n", cfg.Budget.DefaultDailyLimit, cfg.Budget.DefaultMonthlyLimit)
	fmt.Printf("Approval:  %s (%s, %s)\n", req.ID, req.ImpactLevel, req.Status)
	fmt.Printf("\nTry it:\n")
	fmt.Printf("  curl 'http://localhost:%d/api/v1/usage/summary?user_id=%s&timeframe=today'\n", cfg.Server.Port, seedUserID)
	fmt.Printf("  curl -X POST http://localhost:%d/api/v1/approvals/%s/approve -d '{\"decidedBy\":\"you@example.com\"}'\n", cfg.Server.Port, req.ID)

	return nil
}
