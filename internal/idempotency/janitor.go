package idempotency

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Janitor enforces the retention policy by purging old records on a fixed interval.
type Janitor struct {
	store     Store
	retention time.Duration
	interval  time.Duration
	logger    *zap.Logger
	now       func() time.Time
}

// NewJanitor creates a Janitor for store
func NewJanitor(store Store, retention, interval time.Duration, logger *zap.Logger) *Janitor {
	return &Janitor{
		store:     store,
		retention: retention,
		interval:  interval,
		logger:    logger.Named("idempotency-janitor"),
		now:       time.Now,
	}
}

// Run purges until ctx is cancelled. Purge failures are logged and retried on
// the next tick; they never stop the loop.
func (j *Janitor) Run(ctx context.Context) error {
	if j.retention <= 0 || j.interval <= 0 {
		j.logger.Info("Idempotency retention disabled")
		<-ctx.Done()
		return nil
	}

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			j.PurgeOnce(ctx)
		}
	}
}

// PurgeOnce removes records older than the retention period
func (j *Janitor) PurgeOnce(ctx context.Context) int64 {
	cutoff := j.now().Add(-j.retention)

	removed, err := j.store.Purge(ctx, cutoff)
	if err != nil {
		j.logger.Warn("Failed to purge idempotency keys",
			zap.Time("cutoff", cutoff),
			zap.Error(err),
		)
		return 0
	}

	if removed > 0 {
		j.logger.Info("Purged idempotency keys",
			zap.Int64("removed", removed),
			zap.Time("cutoff", cutoff),
		)
	}
	return removed
}
