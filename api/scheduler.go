/*
scheduler.go - Automated delinquency sweep scheduler

PURPOSE:
  Periodically re-evaluates every open account against the current date:
  marks missed installments overdue, recomputes carried-forward arrears,
  opens default records after consecutive misses, and closes accounts whose
  schedules are fully settled.

DESIGN:
  - Runs a background goroutine with a configurable sweep interval
  - Refreshes accounts concurrently with a bounded worker limit
  - Each account refresh is an independent load-mutate-save; a version
    conflict on one account never blocks the rest
  - Closed accounts are skipped at the store level

USAGE:
  sweeper := NewSweeper(repo, ledger, logger, metrics, 24*time.Hour, 8)
  sweeper.Start()
  // ... later
  sweeper.Stop()

SEE ALSO:
  - handlers.go: TriggerSweep endpoint (manual sweep)
  - mortgage/ledger.go: Refresh, the per-account delinquency pass
*/
package api

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/warp/mortgage-engine/mortgage"
)

// Sweeper drives the periodic delinquency check.
type Sweeper struct {
	Repo        mortgage.Repository
	Ledger      *mortgage.LedgerService
	Logger      *zap.Logger
	Metrics     *Metrics
	Interval    time.Duration
	Concurrency int

	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewSweeper creates a sweeper; Start must be called to begin sweeping.
func NewSweeper(repo mortgage.Repository, ledger *mortgage.LedgerService, logger *zap.Logger, metrics *Metrics, interval time.Duration, concurrency int) *Sweeper {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Sweeper{
		Repo:        repo,
		Ledger:      ledger,
		Logger:      logger,
		Metrics:     metrics,
		Interval:    interval,
		Concurrency: concurrency,
		stop:        make(chan struct{}),
	}
}

// Start begins the background sweep loop. The first sweep runs immediately.
func (s *Sweeper) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.ticker = time.NewTicker(s.Interval)
	s.wg.Add(1)

	go s.run()

	s.Logger.Info("delinquency sweeper started", zap.Duration("interval", s.Interval))
}

// Stop halts the sweep loop and waits for an in-flight sweep to finish.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ticker != nil {
		s.ticker.Stop()
		close(s.stop)
		s.wg.Wait()
		s.Logger.Info("delinquency sweeper stopped")
	}
}

func (s *Sweeper) run() {
	defer s.wg.Done()

	s.sweep()

	for {
		select {
		case <-s.ticker.C:
			s.sweep()
		case <-s.stop:
			return
		}
	}
}

func (s *Sweeper) sweep() {
	refreshed, failed := RunSweep(context.Background(), s.Repo, s.Ledger, s.Logger, s.Metrics, s.Concurrency)
	if refreshed > 0 || failed > 0 {
		s.Logger.Info("delinquency sweep completed",
			zap.Int("refreshed", refreshed),
			zap.Int("failed", failed))
	}
}

// RunSweep refreshes delinquency state on every open account and returns how
// many accounts were refreshed and how many failed. Shared by the scheduler
// and the admin endpoint.
func RunSweep(ctx context.Context, repo mortgage.Repository, ledger *mortgage.LedgerService, logger *zap.Logger, metrics *Metrics, concurrency int) (int, int) {
	accounts, err := repo.ListAccounts(ctx, "")
	if err != nil {
		logger.Error("sweep failed to list accounts", zap.Error(err))
		metrics.SweepFailures.Inc()
		return 0, 1
	}

	var mu sync.Mutex
	refreshed, failed, inDefault := 0, 0, 0

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for _, acct := range accounts {
		if acct.Status == mortgage.AccountClosed {
			continue
		}
		id := acct.ID
		priorStatus := acct.Status
		g.Go(func() error {
			updated, err := ledger.Refresh(gctx, id)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				logger.Warn("sweep failed to refresh account",
					zap.String("accountId", string(id)), zap.Error(err))
				failed++
				metrics.SweepFailures.Inc()
				return nil // one bad account never aborts the sweep
			}
			refreshed++
			if updated.Status == mortgage.AccountDefault {
				inDefault++
				if priorStatus != mortgage.AccountDefault {
					metrics.DefaultsOpened.Inc()
				}
			}
			return nil
		})
	}
	_ = g.Wait()

	metrics.SweepRuns.Inc()
	metrics.AccountsInDefault.Set(float64(inDefault))
	return refreshed, failed
}
