// Package worker provides the gateway's background loops: content sync,
// podcast feed polling, analytics rollup, and retention cleanup.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ignite/promo-gateway/internal/config"
	"github.com/ignite/promo-gateway/internal/content"
	"github.com/ignite/promo-gateway/internal/domain"
	"github.com/ignite/promo-gateway/internal/feeds"
	"github.com/ignite/promo-gateway/internal/publish"
	"github.com/ignite/promo-gateway/internal/redirect"
	"github.com/ignite/promo-gateway/internal/sitemap"
)

// ManagedSource supplies the admin-managed redirect rows for table
// builds. *redirects.Service satisfies it; nil means no database.
type ManagedSource interface {
	ListActive(ctx context.Context) ([]domain.ManagedRedirect, error)
}

// SyncWorker keeps the serving state current: it reloads the content
// tree, rebuilds the redirect table, regenerates the per-site artifacts
// and optionally pushes them to the CDN bucket. Cycles run on an
// interval and on demand via Trigger (admin API, file watcher).
type SyncWorker struct {
	cfg       *config.Config
	loader    *content.Loader
	store     *content.Store
	resolver  *redirect.Resolver
	artifacts *publish.Cache

	// Optional
	managed   ManagedSource
	publisher *publish.Publisher

	interval time.Duration
	trigger  chan struct{}

	// Stats
	totalSyncs  int64
	totalErrors int64
	lastSyncMu  sync.RWMutex
	lastSync    time.Time

	// Control
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool
}

// NewSyncWorker creates the sync worker. The interval comes from the
// content config; zero means the 5-minute default.
func NewSyncWorker(cfg *config.Config, loader *content.Loader, store *content.Store, resolver *redirect.Resolver, artifacts *publish.Cache) *SyncWorker {
	interval := cfg.Content.SyncInterval()
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &SyncWorker{
		cfg:       cfg,
		loader:    loader,
		store:     store,
		resolver:  resolver,
		artifacts: artifacts,
		interval:  interval,
		trigger:   make(chan struct{}, 1),
	}
}

// SetManagedSource wires the managed redirect rows into table builds.
func (w *SyncWorker) SetManagedSource(src ManagedSource) {
	w.managed = src
}

// SetPublisher wires CDN publishing of regenerated artifacts.
func (w *SyncWorker) SetPublisher(p *publish.Publisher) {
	w.publisher = p
}

// Start begins the sync loop in a background goroutine.
func (w *SyncWorker) Start() {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return
	}
	w.running = true
	w.ctx, w.cancel = context.WithCancel(context.Background())
	w.mu.Unlock()

	log.Printf("[SyncWorker] Starting (interval=%s)", w.interval)

	w.wg.Add(1)
	go w.loop()
}

// Stop gracefully stops the sync loop.
func (w *SyncWorker) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	w.cancel()
	w.mu.Unlock()

	w.wg.Wait()
	log.Printf("[SyncWorker] Stopped. Stats: syncs=%d, errors=%d",
		atomic.LoadInt64(&w.totalSyncs), atomic.LoadInt64(&w.totalErrors))
}

// Trigger schedules an immediate sync. Safe from any goroutine; while a
// trigger is pending further calls coalesce into it.
func (w *SyncWorker) Trigger() {
	select {
	case w.trigger <- struct{}{}:
	default:
	}
}

// Stats returns cumulative sync counters.
func (w *SyncWorker) Stats() map[string]int64 {
	return map[string]int64{
		"total_syncs":  atomic.LoadInt64(&w.totalSyncs),
		"total_errors": atomic.LoadInt64(&w.totalErrors),
	}
}

// LastSync returns when the last successful cycle finished.
func (w *SyncWorker) LastSync() time.Time {
	w.lastSyncMu.RLock()
	defer w.lastSyncMu.RUnlock()
	return w.lastSync
}

func (w *SyncWorker) loop() {
	defer w.wg.Done()

	// Sync immediately on start so the gateway never serves an empty table.
	if err := w.RunOnce(w.ctx); err != nil {
		log.Printf("[SyncWorker] Initial sync error: %v", err)
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-ticker.C:
		case <-w.trigger:
		}
		if err := w.RunOnce(w.ctx); err != nil {
			log.Printf("[SyncWorker] Sync error: %v", err)
		}
	}
}

// RunOnce performs one full sync cycle: load, swap, rebuild, regenerate.
// Failures leave the previous state serving.
func (w *SyncWorker) RunOnce(ctx context.Context) error {
	start := time.Now()
	atomic.AddInt64(&w.totalSyncs, 1)

	snap, err := w.loader.Load()
	if err != nil {
		atomic.AddInt64(&w.totalErrors, 1)
		return fmt.Errorf("load content: %w", err)
	}
	w.store.Swap(snap)

	table, err := w.rebuildTable(ctx, snap)
	if err != nil {
		atomic.AddInt64(&w.totalErrors, 1)
		return err
	}
	w.resolver.Swap(table)

	artifacts := w.regenerate(time.Now())
	w.artifacts.Put(artifacts...)

	if w.publisher != nil {
		if err := w.publisher.Publish(ctx, artifacts); err != nil {
			atomic.AddInt64(&w.totalErrors, 1)
			log.Printf("[SyncWorker] Publish error: %v", err)
		}
	}

	w.lastSyncMu.Lock()
	w.lastSync = time.Now()
	w.lastSyncMu.Unlock()

	stats := table.Stats()
	log.Printf("[SyncWorker] Sync complete in %s: %d records (%d skipped), %d redirect entries, %d artifacts",
		time.Since(start).Round(time.Millisecond), snap.Records, snap.Skipped, stats.Entries, len(artifacts))
	return nil
}

// rebuildTable assembles the redirect table from the snapshot plus the
// managed rows. A managed-source failure fails the build; serving a
// table with the managed entries silently missing would un-claim paths
// the admin owns.
func (w *SyncWorker) rebuildTable(ctx context.Context, snap *content.Snapshot) (*redirect.Table, error) {
	managedBySite := make(map[string][]domain.ManagedRedirect)
	if w.managed != nil {
		rows, err := w.managed.ListActive(ctx)
		if err != nil {
			return nil, fmt.Errorf("list managed redirects: %w", err)
		}
		for _, r := range rows {
			managedBySite[r.Site] = append(managedBySite[r.Site], r)
		}
	}

	inputs := make([]redirect.SiteInput, 0, len(w.cfg.Sites))
	for i := range w.cfg.Sites {
		site := w.cfg.Sites[i]
		sc := snap.Sites[site.Key]
		if sc == nil {
			sc = &content.SiteContent{}
		}
		inputs = append(inputs, redirect.SiteInput{
			Key:       site.Key,
			BaseURL:   site.BaseURL,
			Title:     site.Title,
			Static:    sc.Static,
			Campaigns: sc.Campaigns,
			Coupons:   sc.Coupons,
			Managed:   managedBySite[site.Key],
		})
	}
	return redirect.Build(inputs), nil
}

// regenerate builds every per-site artifact from the freshly swapped
// store and resolver. Generation errors skip the artifact and keep the
// cycle going; the previous version stays cached.
func (w *SyncWorker) regenerate(now time.Time) []publish.Artifact {
	var out []publish.Artifact

	add := func(site, name string, body []byte, err error) {
		if err != nil {
			atomic.AddInt64(&w.totalErrors, 1)
			log.Printf("[SyncWorker] Generate %s for %s: %v", name, site, err)
			return
		}
		out = append(out, publish.Artifact{
			Site:        site,
			Name:        name,
			ContentType: publish.ContentTypeFor(name),
			Body:        body,
		})
	}

	for i := range w.cfg.Sites {
		site := w.cfg.Sites[i]
		posts := w.store.Posts(site.Key, now)
		episodes := w.store.Episodes(site.Key, now)

		body, err := feeds.BlogFeed(site, posts, now)
		add(site.Key, "feed.xml", body, err)

		body, err = feeds.PodcastFeed(site, episodes, now)
		add(site.Key, "podcast.xml", body, err)

		body, err = sitemap.Generate(site, sitemap.Input{
			Posts:     posts,
			Episodes:  episodes,
			Campaigns: w.store.Campaigns(site.Key),
			Coupons:   w.store.Coupons(site.Key),
		}, now)
		add(site.Key, "sitemap.xml", body, err)

		body, err = json.MarshalIndent(map[string]interface{}{
			"site":         site.Key,
			"generated_at": now.UTC(),
			"redirects":    w.resolver.Export(site.Key, now),
		}, "", "  ")
		add(site.Key, "redirects.json", body, err)

		robots := fmt.Sprintf("User-agent: *\nAllow: /\n\nSitemap: %s/sitemap.xml\n", site.BaseURL)
		add(site.Key, "robots.txt", []byte(robots), nil)
	}
	return out
}
