package app

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

const reconcileBatch = 100

// Sweeper runs the periodic maintenance jobs: withdrawal reconciliation with
// a ledger audit of every wallet it touched, and the bonus streak sweep.
type Sweeper struct {
	svcs   *Services
	logger *slog.Logger

	reconcileEvery time.Duration
	streakEvery    time.Duration
}

// NewSweeper creates a Sweeper. A non-positive interval disables that job.
func NewSweeper(svcs *Services, reconcileEvery, streakEvery time.Duration, logger *slog.Logger) *Sweeper {
	return &Sweeper{svcs: svcs, logger: logger, reconcileEvery: reconcileEvery, streakEvery: streakEvery}
}

// Run blocks until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	var wg sync.WaitGroup
	if s.reconcileEvery > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			every(ctx, s.reconcileEvery, func() { s.Reconcile(ctx) })
		}()
	}
	if s.streakEvery > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			every(ctx, s.streakEvery, func() { s.SweepStreaks(ctx) })
		}()
	}
	wg.Wait()
}

// Reconcile runs one reconciliation pass and audits the wallets it changed.
// It returns the number of audit failures.
func (s *Sweeper) Reconcile(ctx context.Context) int {
	report, err := s.svcs.Requests.ReconcileProcessing(ctx, reconcileBatch)
	if err != nil {
		s.logger.Error("reconcile failed", "error", err)
		return 0
	}
	if report.Checked > 0 {
		s.logger.Info("reconcile pass",
			"checked", report.Checked,
			"dispatched", report.Dispatched,
			"settled", report.Settled,
			"failed", report.Failed,
			"waiting", report.Waiting,
			"errors", report.Errors,
		)
	}

	violations := 0
	for _, userID := range report.Touched {
		res, err := s.svcs.Wallets.Audit(ctx, userID)
		if err != nil {
			s.logger.Error("post-reconcile audit failed", "user_id", userID, "error", err)
			continue
		}
		if !res.AllPassed {
			violations++
			for _, c := range res.Failed() {
				s.logger.Error("ledger invariant violated", "user_id", userID, "invariant", c.Name, "detail", c.Detail)
			}
		}
	}
	return violations
}

// SweepStreaks resets streaks whose owners missed a day.
func (s *Sweeper) SweepStreaks(ctx context.Context) {
	n, err := s.svcs.Bonuses.SweepExpiredStreaks(ctx)
	if err != nil {
		s.logger.Error("streak sweep failed", "error", err)
		return
	}
	if n > 0 {
		s.logger.Info("expired bonus streaks reset", "count", n)
	}
}

func every(ctx context.Context, d time.Duration, fn func()) {
	ticker := time.NewTicker(d)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fn()
		}
	}
}
