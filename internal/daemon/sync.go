package daemon

import (
	"context"
	"log/slog"
	"time"

	"github.com/asmbly/membersync/internal/batch"
)

// SyncTask runs a full batch reconciliation immediately and then on
// every tick. A failed run is logged and the ticker carries on; the
// next run starts from fresh CRM state anyway.
func SyncTask(runner *batch.Runner, logger *slog.Logger, interval time.Duration) DaemonFunc {
	return func(ctx context.Context, name string) error {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		runOnce := func() {
			if _, err := runner.Run(ctx); err != nil {
				logger.Error("Scheduled batch run failed", "daemon", name, "error", err)
			}
		}

		runOnce()
		for {
			select {
			case <-ctx.Done():
				logger.Info("Sync daemon shutting down", "daemon", name)
				return nil
			case <-ticker.C:
				runOnce()
			}
		}
	}
}
