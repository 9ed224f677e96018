// Package maintenance runs scheduled background work: draining the retry
// queue on its cron spec and the nightly cleanup sweep. All scheduling is
// in-process since the engine is already a persistent service (required for
// LISTEN/NOTIFY).
package maintenance

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/homescout/alert-engine/internal/db"
	"github.com/homescout/alert-engine/internal/metrics"
	"github.com/homescout/alert-engine/internal/notify"
	"github.com/homescout/alert-engine/internal/queue"
	"github.com/homescout/alert-engine/internal/throttle"
)

// Retention for per-day throttle counter rows.
const throttleRetention = 30 * 24 * time.Hour

// Scheduler owns the cron runner and its jobs.
type Scheduler struct {
	cron      *cron.Cron
	processor *queue.Processor
	queues    queue.Store
	throttle  *throttle.PGStore
	sends     *notify.PGStore
	logger    *slog.Logger
}

// New creates a scheduler in the given location. Cron specs are evaluated on
// the engine's local clock so the cleanup sweep stays in the quiet of night.
func New(pool *db.Pool, processor *queue.Processor, loc *time.Location, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		cron:      cron.New(cron.WithLocation(loc)),
		processor: processor,
		queues:    queue.NewPGStore(pool.Pool),
		throttle:  throttle.NewPGStore(pool.Pool),
		sends:     notify.NewPGStore(pool.Pool),
		logger:    logger,
	}
}

// Start registers the jobs and starts the cron runner. Blocks until ctx is
// cancelled. Intended to be called with `go`.
func (s *Scheduler) Start(ctx context.Context, queueSpec, cleanupSpec string) error {
	if _, err := s.cron.AddFunc(queueSpec, func() { s.runQueue(ctx) }); err != nil {
		return fmt.Errorf("schedule queue processing %q: %w", queueSpec, err)
	}
	if _, err := s.cron.AddFunc(cleanupSpec, func() { s.runCleanup(ctx) }); err != nil {
		return fmt.Errorf("schedule cleanup %q: %w", cleanupSpec, err)
	}

	s.cron.Start()
	s.logger.Info("Maintenance scheduler started",
		"queue_spec", queueSpec, "cleanup_spec", cleanupSpec)

	<-ctx.Done()
	stopCtx := s.cron.Stop()
	<-stopCtx.Done()
	s.logger.Info("Maintenance scheduler stopped")
	return nil
}

// runQueue drains ready retry-queue batches until one comes back short.
func (s *Scheduler) runQueue(ctx context.Context) {
	for {
		res, err := s.processor.ProcessBatch(ctx)
		if err != nil {
			s.logger.Warn("Queue processing run failed", "error", err)
			return
		}
		if res.Processed < queue.BatchSize {
			return
		}
	}
}

func (s *Scheduler) runCleanup(ctx context.Context) {
	cleanup(ctx, s.queues, s.throttle, s.sends, s.logger)
}

// Cleanup runs one cleanup sweep immediately. Used by the operator CLI; the
// scheduler runs the same sweep on its cron spec.
func Cleanup(ctx context.Context, pool *db.Pool, logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	cleanup(ctx, queue.NewPGStore(pool.Pool), throttle.NewPGStore(pool.Pool),
		notify.NewPGStore(pool.Pool), logger)
}

// cleanup expires stale queue items, purges terminal ones, and trims the
// throttle counters and send log.
func cleanup(ctx context.Context, queues queue.Store, throttles *throttle.PGStore, sends *notify.PGStore, logger *slog.Logger) {
	now := time.Now()

	if n, err := queues.ExpireStale(ctx, now.Add(-queue.StaleAfter)); err != nil {
		logger.Warn("Cleanup: expire stale queue items failed", "error", err)
	} else if n > 0 {
		metrics.QueueOutcomes.WithLabelValues("expired").Add(float64(n))
		logger.Info("Cleanup: expired stale queue items", "count", n)
	}

	if n, err := queues.ExpireDeactivated(ctx); err != nil {
		logger.Warn("Cleanup: expire deactivated-search items failed", "error", err)
	} else if n > 0 {
		metrics.QueueOutcomes.WithLabelValues("expired").Add(float64(n))
		logger.Info("Cleanup: expired items for inactive searches", "count", n)
	}

	if n, err := queues.PurgeTerminal(ctx, now.Add(-queue.PurgeAfter)); err != nil {
		logger.Warn("Cleanup: purge terminal queue items failed", "error", err)
	} else if n > 0 {
		logger.Info("Cleanup: purged terminal queue items", "count", n)
	}

	if n, err := throttles.PurgeOld(ctx, now.Add(-throttleRetention)); err != nil {
		logger.Warn("Cleanup: purge throttle state failed", "error", err)
	} else if n > 0 {
		logger.Info("Cleanup: purged throttle state rows", "count", n)
	}

	if n, err := sends.PurgeLog(ctx, now.Add(-queue.PurgeAfter)); err != nil {
		logger.Warn("Cleanup: purge send log failed", "error", err)
	} else if n > 0 {
		logger.Info("Cleanup: purged send log rows", "count", n)
	}
}
