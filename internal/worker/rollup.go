package worker

import (
	"context"
	"log"
	"time"

	"github.com/ignite/promo-gateway/internal/config"
	"github.com/ignite/promo-gateway/internal/pkg/distlock"
)

const (
	// DefaultRollupInterval is how often hit rows are folded into the
	// daily aggregate table.
	DefaultRollupInterval = 1 * time.Hour

	// rollupLookback is how far back each cycle re-aggregates. Two days
	// covers late-arriving hits and the day boundary in every timezone.
	rollupLookback = 48 * time.Hour
)

// RollupStore aggregates raw hits into daily counts. *postgres.HitRepo
// satisfies it.
type RollupStore interface {
	RollupDaily(ctx context.Context, since time.Time, tz string) (int64, error)
}

// RollupWorker periodically folds raw hit rows into gateway_hit_daily so
// the stats endpoints read a small table instead of scanning hits. A
// distributed lock keeps multiple gateway instances from racing on the
// same upsert.
type RollupWorker struct {
	store    RollupStore
	lock     distlock.DistLock
	interval time.Duration
}

// NewRollupWorker creates a rollup worker with default settings.
func NewRollupWorker(store RollupStore, lock distlock.DistLock) *RollupWorker {
	return &RollupWorker{
		store:    store,
		lock:     lock,
		interval: DefaultRollupInterval,
	}
}

// Start begins the rollup loop. It blocks until ctx is cancelled.
func (rw *RollupWorker) Start(ctx context.Context) {
	log.Printf("[Rollup] Starting (interval=%s, lookback=%s)", rw.interval, rollupLookback)

	// Run once immediately on start
	rw.rollup(ctx)

	ticker := time.NewTicker(rw.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("[Rollup] Stopping")
			return
		case <-ticker.C:
			rw.rollup(ctx)
		}
	}
}

func (rw *RollupWorker) rollup(ctx context.Context) {
	if rw.lock != nil {
		ok, err := rw.lock.Acquire(ctx)
		if err != nil {
			log.Printf("[Rollup] Lock error: %v", err)
			return
		}
		if !ok {
			// Another instance is rolling up this hour.
			return
		}
		defer rw.lock.Release(ctx)
	}

	start := time.Now()
	opCtx, cancel := context.WithTimeout(ctx, 60*time.Second)
	defer cancel()

	rows, err := rw.store.RollupDaily(opCtx, start.Add(-rollupLookback), config.DefaultTimezone)
	if err != nil {
		log.Printf("[Rollup] Rollup error: %v", err)
		return
	}
	log.Printf("[Rollup] Aggregated %d day/path rows in %s", rows, time.Since(start).Round(time.Millisecond))
}
