package worker

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ignite/promo-gateway/internal/config"
	"github.com/ignite/promo-gateway/internal/content"
	"github.com/ignite/promo-gateway/internal/domain"
)

// episodeFetcher is the slice of feeds.Ingester the poller needs.
type episodeFetcher interface {
	FetchEpisodes(ctx context.Context, site, feedURL string) ([]domain.Episode, int, error)
}

// FeedPoller ingests external podcast feeds for sites that declare one
// and hands the episodes to the content store, where they merge with
// the locally authored ones.
type FeedPoller struct {
	cfg     *config.Config
	fetcher episodeFetcher
	store   *content.Store

	interval time.Duration

	// Stats
	totalPolls    int64
	totalEpisodes int64
	totalErrors   int64

	// Control
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool
}

// NewFeedPoller creates a poller over the configured sites. The
// interval comes from the feeds config; zero means 30 minutes.
func NewFeedPoller(cfg *config.Config, fetcher episodeFetcher, store *content.Store) *FeedPoller {
	interval := cfg.Feeds.PollInterval()
	if interval <= 0 {
		interval = 30 * time.Minute
	}
	return &FeedPoller{
		cfg:      cfg,
		fetcher:  fetcher,
		store:    store,
		interval: interval,
	}
}

// Start begins polling in a background goroutine.
func (p *FeedPoller) Start() {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return
	}
	p.running = true
	p.ctx, p.cancel = context.WithCancel(context.Background())
	p.mu.Unlock()

	log.Printf("[FeedPoller] Starting (interval=%s)", p.interval)

	p.wg.Add(1)
	go p.pollLoop()
}

// Stop gracefully stops the poller.
func (p *FeedPoller) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	p.cancel()
	p.mu.Unlock()

	p.wg.Wait()
	log.Printf("[FeedPoller] Stopped. Stats: polls=%d, episodes=%d, errors=%d",
		atomic.LoadInt64(&p.totalPolls), atomic.LoadInt64(&p.totalEpisodes), atomic.LoadInt64(&p.totalErrors))
}

// IsRunning reports whether the poller is active.
func (p *FeedPoller) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

// Stats returns cumulative poll counters.
func (p *FeedPoller) Stats() map[string]int64 {
	return map[string]int64{
		"total_polls":    atomic.LoadInt64(&p.totalPolls),
		"total_episodes": atomic.LoadInt64(&p.totalEpisodes),
		"total_errors":   atomic.LoadInt64(&p.totalErrors),
	}
}

func (p *FeedPoller) pollLoop() {
	defer p.wg.Done()

	// Poll immediately on start
	p.PollAll(p.ctx)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-p.ctx.Done():
			return
		case <-ticker.C:
			p.PollAll(p.ctx)
		}
	}
}

// PollAll fetches every configured podcast feed, a few at a time.
func (p *FeedPoller) PollAll(ctx context.Context) {
	var sites []config.SiteConfig
	for i := range p.cfg.Sites {
		if p.cfg.Sites[i].PodcastFeed != "" {
			sites = append(sites, p.cfg.Sites[i])
		}
	}
	if len(sites) == 0 {
		return
	}

	sem := make(chan struct{}, 4)
	var wg sync.WaitGroup
	for _, site := range sites {
		wg.Add(1)
		sem <- struct{}{}
		go func(site config.SiteConfig) {
			defer wg.Done()
			defer func() { <-sem }()
			p.pollSite(ctx, site)
		}(site)
	}
	wg.Wait()
}

func (p *FeedPoller) pollSite(ctx context.Context, site config.SiteConfig) {
	atomic.AddInt64(&p.totalPolls, 1)

	episodes, skipped, err := p.fetcher.FetchEpisodes(ctx, site.Key, site.PodcastFeed)
	if err != nil {
		atomic.AddInt64(&p.totalErrors, 1)
		log.Printf("[FeedPoller] Fetch %s: %v", site.Key, err)
		return
	}

	p.store.SetIngested(site.Key, episodes)
	atomic.AddInt64(&p.totalEpisodes, int64(len(episodes)))

	if skipped > 0 {
		log.Printf("[FeedPoller] %s: %d episodes ingested, %d items skipped", site.Key, len(episodes), skipped)
	} else {
		log.Printf("[FeedPoller] %s: %d episodes ingested", site.Key, len(episodes))
	}
}
