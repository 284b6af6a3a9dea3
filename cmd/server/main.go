/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the mortgage engine server. Handles configuration,
  dependency injection, the delinquency sweeper, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load configuration (config.yaml + MORTGAGE_* env overrides)
  2. Build the zap logger
  3. Open the store (SQLite or in-memory)
  4. Wire services, handler, and Prometheus registry
  5. Start the delinquency sweeper
  6. Start the HTTP server with graceful shutdown

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (configurable timeout)
  3. Stop the sweeper, close the database
  4. Exit

CONFIGURATION:
  See config/config.go. Everything has a default; a config file is optional.
  Environment overrides use the MORTGAGE_ prefix, e.g.
  MORTGAGE_SERVER_PORT=3000 or MORTGAGE_DATABASE_DRIVER=memory.

SEE ALSO:
  - api/server.go: Router configuration
  - api/scheduler.go: Delinquency sweeper
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/warp/mortgage-engine/api"
	"github.com/warp/mortgage-engine/config"
	"github.com/warp/mortgage-engine/finance"
	"github.com/warp/mortgage-engine/mortgage"
	memstore "github.com/warp/mortgage-engine/mortgage/store"
	"github.com/warp/mortgage-engine/store/sqlite"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := buildLogger(cfg.Logging.Level)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync() //nolint:errcheck

	// Store
	var repo mortgage.Repository
	var closeStore func() error
	switch cfg.Database.Driver {
	case "memory":
		repo = memstore.NewMemory()
		closeStore = func() error { return nil }
		logger.Info("using in-memory store")
	default:
		db, err := sqlite.New(cfg.Database.Path)
		if err != nil {
			logger.Fatal("failed to open database", zap.String("path", cfg.Database.Path), zap.Error(err))
		}
		repo = db
		closeStore = db.Close
		logger.Info("using sqlite store", zap.String("path", cfg.Database.Path))
	}

	// Metrics
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := api.NewMetrics(registry)

	// Handler and services
	clock := finance.SystemClock{}
	handler := api.NewHandler(repo, clock, logger, metrics)
	handler.Policy = delinquencyPolicy(cfg.Delinquency)
	handler.Workflow.Criteria = eligibilityCriteria(cfg.Eligibility)
	handler.Ledger.Policy = handler.Policy
	handler.Adjustments.Policy = handler.Policy

	// Background sweeper
	sweeper := api.NewSweeper(repo, handler.Ledger, logger, metrics, cfg.Sweep.Interval, cfg.Sweep.Concurrency)
	sweeper.Start()

	router := api.NewRouter(handler, registry)

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		logger.Info("server starting", zap.Int("port", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("forced shutdown", zap.Error(err))
	}
	sweeper.Stop()
	if err := closeStore(); err != nil {
		logger.Error("failed to close store", zap.Error(err))
	}

	logger.Info("server stopped")
}

func buildLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		lvl = zapcore.InfoLevel
	}
	zcfg := zap.NewProductionConfig()
	zcfg.Level = zap.NewAtomicLevelAt(lvl)
	return zcfg.Build()
}

func delinquencyPolicy(c config.DelinquencyConfig) mortgage.DelinquencyPolicy {
	policy := mortgage.DefaultDelinquencyPolicy()
	if c.ConsecutiveMissLimit > 0 {
		policy.ConsecutiveMissLimit = c.ConsecutiveMissLimit
	}
	if c.DailyPenaltyRate != "" {
		policy.DailyPenaltyRate = finance.NewRate(c.DailyPenaltyRate)
	}
	return policy
}

func eligibilityCriteria(c config.EligibilityConfig) mortgage.EligibilityCriteria {
	criteria := mortgage.DefaultEligibilityCriteria()
	if c.MinMonthlyIncome != "" {
		if income, err := finance.NewMoneyFromString(c.MinMonthlyIncome); err == nil {
			criteria.MinIncome = income
		}
	}
	if c.MaxDebtToIncomeRatio > 0 {
		criteria.MaxDebtToIncomeRatio = decimal.NewFromFloat(c.MaxDebtToIncomeRatio)
	}
	criteria.RequiresNHFContribution = c.RequireNHFContribution
	if c.MinNHFContributionMonths > 0 {
		criteria.MinNHFContributionMonths = c.MinNHFContributionMonths
	}
	if c.MinEmploymentMonths > 0 {
		criteria.MinEmploymentMonths = c.MinEmploymentMonths
	}
	return criteria
}
