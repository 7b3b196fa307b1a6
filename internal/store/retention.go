package store

import (
	"context"
	"log/slog"
	"time"
)

const retentionWorkerInterval = time.Hour

// StartRetentionWorker runs a background goroutine that periodically prunes
// journal entries older than retention. A non-positive retention disables it.
func StartRetentionWorker(ctx context.Context, journal Journal, retention time.Duration) {
	if retention <= 0 {
		slog.Info("Journal retention disabled")
		return
	}
	ticker := time.NewTicker(retentionWorkerInterval)
	go func() {
		defer ticker.Stop()
		slog.Info("Retention worker started", "interval", retentionWorkerInterval, "retention", retention)

		pruneExpired(ctx, journal, retention, time.Now())
		for {
			select {
			case now := <-ticker.C:
				pruneExpired(ctx, journal, retention, now)
			case <-ctx.Done():
				slog.Info("Retention worker shutting down", "reason", ctx.Err())
				return
			}
		}
	}()
}

func pruneExpired(ctx context.Context, journal Journal, retention time.Duration, now time.Time) {
	deleted, err := journal.Prune(ctx, now.Add(-retention))
	if err != nil {
		slog.Error("Retention worker failed to prune journal", "error", err)
		return
	}
	if deleted > 0 {
		slog.Info("Retention worker pruned journal", "count", deleted)
	}
}
