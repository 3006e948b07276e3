package batch

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/asmbly/membersync/internal/monitoring"
	"github.com/asmbly/membersync/internal/reconcile"
)

// Reconciler is the single-account operation the runner fans out.
type Reconciler interface {
	Reconcile(ctx context.Context, accountID int) (reconcile.Outcome, error)
}

// AccountSource enumerates the accounts worth reconciling.
type AccountSource interface {
	SearchMemberIDs(ctx context.Context, pageSize int) ([]int, error)
}

// Failure records one account whose pass failed. A failed account
// never stops the rest of the run.
type Failure struct {
	AccountID int
	Err       error
}

// Result summarizes a batch run.
type Result struct {
	RunID       uuid.UUID
	Total       int
	Updated     int
	Unchanged   int
	Skipped     int
	Provisioned int
	Failed      []Failure
	Duration    time.Duration
}

// Runner reconciles every known account with a bounded worker pool.
// Accounts are independent, so workers share nothing but the result
// aggregation and the per-member locks.
type Runner struct {
	logger     *slog.Logger
	reconciler Reconciler
	accounts   AccountSource
	telemetry  monitoring.Telemetry
	locks      *MemberLocks
	workers    int
	pageSize   int
}

func NewRunner(logger *slog.Logger, reconciler Reconciler, accounts AccountSource, telemetry monitoring.Telemetry, locks *MemberLocks, workers, pageSize int) *Runner {
	if workers <= 0 {
		workers = 1
	}
	return &Runner{
		logger:     logger,
		reconciler: reconciler,
		accounts:   accounts,
		telemetry:  telemetry,
		locks:      locks,
		workers:    workers,
		pageSize:   pageSize,
	}
}

// Run reconciles all accounts and returns the per-run summary. Only
// enumeration failures and context cancellation abort the run;
// individual account failures are collected into the result.
func (r *Runner) Run(ctx context.Context) (Result, error) {
	result := Result{RunID: uuid.New()}
	started := time.Now()

	logger := r.logger.With("run_id", result.RunID.String())

	ids, err := r.accounts.SearchMemberIDs(ctx, r.pageSize)
	if err != nil {
		return result, fmt.Errorf("enumerating accounts: %w", err)
	}
	result.Total = len(ids)
	logger.Info("Starting batch reconciliation", "accounts", len(ids), "workers", r.workers)

	var mu sync.Mutex
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(r.workers)

	for _, accountID := range ids {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}

			r.locks.Lock(accountID)
			outcome, err := r.reconciler.Reconcile(ctx, accountID)
			r.locks.Unlock(accountID)

			mu.Lock()
			defer mu.Unlock()

			if err != nil {
				logger.Error("Account reconciliation failed",
					"account_id", accountID, "error", err)
				r.telemetry.RecordReconcileFailure(ctx, "reconcile")
				result.Failed = append(result.Failed, Failure{AccountID: accountID, Err: err})
				return nil
			}

			switch {
			case outcome.Skipped:
				result.Skipped++
			case outcome.Wrote || outcome.Provisioned:
				result.Updated++
			default:
				result.Unchanged++
			}
			if outcome.Provisioned {
				result.Provisioned++
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return result, fmt.Errorf("batch run aborted: %w", err)
	}

	result.Duration = time.Since(started)
	logger.Info("Batch reconciliation finished",
		"total", result.Total,
		"updated", result.Updated,
		"unchanged", result.Unchanged,
		"skipped", result.Skipped,
		"provisioned", result.Provisioned,
		"failed", len(result.Failed),
		"duration", result.Duration)

	for _, failure := range result.Failed {
		logger.Warn("Failed account", "account_id", failure.AccountID, "error", failure.Err)
	}

	return result, nil
}
