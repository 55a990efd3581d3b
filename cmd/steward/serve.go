package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/glowfoundry/steward/internal/api"
	"github.com/glowfoundry/steward/internal/approval"
	"github.com/glowfoundry/steward/internal/budget"
	"github.com/glowfoundry/steward/internal/config"
	"github.com/glowfoundry/steward/internal/dispatch"
	"github.com/glowfoundry/steward/internal/metrics"
	"github.com/glowfoundry/steward/internal/reasoning"
	"github.com/glowfoundry/steward/internal/toolexec"
	"github.com/glowfoundry/steward/internal/verify"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the Steward control plane server",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

// metricsNotifier turns budget events into counters and structured logs.
type metricsNotifier struct {
	metrics *metrics.Metrics
}

func (n *metricsNotifier) BudgetWarning(_ context.Context, userID, agentID string, d budget.Decision) {
	n.metrics.BudgetWarningsTotal.Inc()
	slog.Warn("budget warning",
		"user_id", userID, "agent_id", agentID,
		"remaining", d.Remaining, "reason", d.Reason)
}

func (n *metricsNotifier) BudgetPaused(_ context.Context, userID, agentID string, d budget.Decision) {
	n.metrics.IncBudgetPause("agent")
	slog.Warn("budget pause",
		"user_id", userID, "agent_id", agentID,
		"new_total", d.NewTotal, "reason", d.Reason)
}

func (n *metricsNotifier) EmergencyStop(_ context.Context, userID, reason string) {
	n.metrics.IncBudgetPause("user")
	slog.Warn("emergency stop broadcast", "user_id", userID, "reason", reason)
}

// meteredResetter counts each scheduled daily reset run.
type meteredResetter struct {
	enforcer *budget.Enforcer
	metrics  *metrics.Metrics
}

func (r *meteredResetter) ResetDailyBudgets(ctx context.Context) (int64, error) {
	n, err := r.enforcer.ResetDailyBudgets(ctx)
	if err == nil {
		r.metrics.IncDailyReset()
	}
	return n, err
}

func runServe(cmd *cobra.Command, args []string) error {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.Database.URL)
	if err != nil {
		return err
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		return err
	}
	slog.Info("connected to database")

	m := metrics.New()
	m.RegisterDBPoolCollector(func() (total, idle, acquired int32) {
		stat := pool.Stat()
		return stat.TotalConns(), stat.IdleConns(), stat.AcquiredConns()
	})

	// Pause cache is optional: without Redis the enforcer answers pause
	// checks from the ledger directly, just without the fast broadcast
	// path.
	var mirror budget.PauseMirror
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr})
		defer rdb.Close()
		mirror = budget.NewPauseCache(rdb, logger)
		slog.Info("pause cache enabled", "addr", cfg.Redis.Addr)
	}

	ledger := budget.NewStore(pool)
	enforcer := budget.NewEnforcer(budget.EnforcerOptions{
		Ledger:              ledger,
		Mirror:              mirror,
		Notifier:            &metricsNotifier{metrics: m},
		Logger:              logger,
		DefaultDailyLimit:   cfg.Budget.DefaultDailyLimit,
		DefaultMonthlyLimit: cfg.Budget.DefaultMonthlyLimit,
		AlertPercent:        cfg.Budget.AlertThresholdPercent,
	})

	scheduler := budget.NewScheduler(&meteredResetter{enforcer: enforcer, metrics: m}, cfg.Budget.ResetInterval, logger)
	go scheduler.Start(ctx)

	gate := approval.NewGate(approval.NewStore(pool), logger)

	backend := toolexec.New(toolexec.Options{
		WorkspaceRoot:  cfg.Toolexec.WorkspaceRoot,
		CommandTimeout: cfg.Toolexec.CommandTimeout,
		PackageTimeout: cfg.Toolexec.PackageTimeout,
		SearchMaxDepth: cfg.Toolexec.SearchMaxDepth,
		SearchMaxHits:  cfg.Toolexec.SearchMaxHits,
		Pool:           pool,
		DataEnvTag:     cfg.Toolexec.DataEnvTag,
	})

	auditor := verify.NewAuditor(verify.Options{
		Tools:         backend,
		LivenessURL:   cfg.Verify.LivenessURL,
		CriticalFiles: cfg.Verify.CriticalFiles,
		Logger:        logger,
	})
	worker := verify.NewWorker(auditor, cfg.Verify.QueueSize, m, logger)
	go worker.Start(ctx)

	var summarizer dispatch.Summarizer
	if cfg.Dispatch.ReasoningURL != "" {
		summarizer = reasoning.New(cfg.Dispatch.ReasoningURL, cfg.Dispatch.ReasoningTimeout)
		slog.Info("result summarization enabled", "url", cfg.Dispatch.ReasoningURL)
	}

	dispatcher := dispatch.NewRouter(dispatch.Options{
		Backend:               backend,
		Pauses:                enforcer,
		Summarizer:            summarizer,
		Auditor:               worker,
		Metrics:               m,
		Logger:                logger,
		SummaryThresholdBytes: cfg.Dispatch.SummaryThresholdBytes,
		SummaryExcerptBytes:   cfg.Dispatch.SummaryExcerptBytes,
	})

	router := api.NewRouter(api.RouterDeps{
		Enforcer:       enforcer,
		Gate:           gate,
		Dispatcher:     dispatcher,
		Verifier:       worker,
		Metrics:        m,
		AllowedOrigins: cfg.CORS.AllowedOrigins,
	})

	srv := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("server starting", "addr", cfg.Addr())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-sigCh
	slog.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	scheduler.Stop()
	worker.Stop()

	return srv.Shutdown(shutdownCtx)
}
