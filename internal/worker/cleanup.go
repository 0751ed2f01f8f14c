package worker

import (
	"context"
	"log"
	"time"
)

const (
	// DefaultCleanupInterval is how often the retention cycle runs.
	DefaultCleanupInterval = 1 * time.Hour

	// DefaultRetentionDays is how long raw hits and site events are
	// kept when the config does not say otherwise. Daily aggregates
	// are kept forever.
	DefaultRetentionDays = 90

	// cleanupBatchSize limits each DELETE to avoid table-level locks.
	cleanupBatchSize = 10000
)

// RetentionStore deletes expired analytics rows. *postgres.HitRepo
// satisfies it.
type RetentionStore interface {
	DeleteHitsBefore(ctx context.Context, cutoff time.Time, batchSize int) (int64, error)
	DeleteEventsBefore(ctx context.Context, cutoff time.Time, batchSize int) (int64, error)
}

// CleanupWorker periodically removes raw hits and site events past the
// retention window. Deletes run in batches of 10 000 rows so a large
// backlog never holds a long transaction open against live traffic.
type CleanupWorker struct {
	store         RetentionStore
	retentionDays int
	interval      time.Duration
}

// NewCleanupWorker creates a cleanup worker. Non-positive retentionDays
// falls back to the 90-day default.
func NewCleanupWorker(store RetentionStore, retentionDays int) *CleanupWorker {
	if retentionDays <= 0 {
		retentionDays = DefaultRetentionDays
	}
	return &CleanupWorker{
		store:         store,
		retentionDays: retentionDays,
		interval:      DefaultCleanupInterval,
	}
}

// Start begins the cleanup loop. It blocks until ctx is cancelled.
func (cw *CleanupWorker) Start(ctx context.Context) {
	log.Printf("[Cleanup] Starting (interval=%s, retention=%dd, batch_size=%d)",
		cw.interval, cw.retentionDays, cleanupBatchSize)

	// Run once immediately on start
	cw.cleanup(ctx)

	ticker := time.NewTicker(cw.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("[Cleanup] Stopping")
			return
		case <-ticker.C:
			cw.cleanup(ctx)
		}
	}
}

func (cw *CleanupWorker) cleanup(ctx context.Context) {
	start := time.Now()
	cutoff := start.AddDate(0, 0, -cw.retentionDays)

	hits := cw.batchDelete(ctx, "hits", cw.store.DeleteHitsBefore, cutoff)
	events := cw.batchDelete(ctx, "site events", cw.store.DeleteEventsBefore, cutoff)

	if hits > 0 || events > 0 {
		log.Printf("[Cleanup] Removed %d hits and %d site events older than %s in %s",
			hits, events, cutoff.Format("2006-01-02"), time.Since(start).Round(time.Millisecond))
	}
}

type deleteFunc func(ctx context.Context, cutoff time.Time, batchSize int) (int64, error)

func (cw *CleanupWorker) batchDelete(ctx context.Context, what string, del deleteFunc, cutoff time.Time) int64 {
	var totalDeleted int64

	for {
		if ctx.Err() != nil {
			return totalDeleted
		}

		opCtx, cancel := context.WithTimeout(ctx, 60*time.Second)
		affected, err := del(opCtx, cutoff, cleanupBatchSize)
		cancel()

		if err != nil {
			log.Printf("[Cleanup] Error deleting %s: %v", what, err)
			return totalDeleted
		}
		if affected == 0 {
			return totalDeleted
		}
		totalDeleted += affected

		// Small pause between batches to reduce load
		time.Sleep(100 * time.Millisecond)
	}
}
