package worker

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ignite/promo-gateway/internal/config"
	"github.com/ignite/promo-gateway/internal/content"
	"github.com/ignite/promo-gateway/internal/domain"
	"github.com/ignite/promo-gateway/internal/publish"
	"github.com/ignite/promo-gateway/internal/redirect"
)

func writeFile(t *testing.T, root string, parts ...string) {
	t.Helper()
	path := filepath.Join(root, filepath.Join(parts[:len(parts)-1]...))
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(parts[len(parts)-1]), 0644); err != nil {
		t.Fatal(err)
	}
}

func syncFixture(t *testing.T) *config.Config {
	t.Helper()
	root := t.TempDir()

	writeFile(t, root, "getmecoupons", "posts", "hello-deals.md", `---
title: "Hello Deals"
date: 2026-03-10
---
Welcome to the deals blog.`)

	writeFile(t, root, "getmecoupons", "campaigns", "spring-sale.md", `---
title: "Spring Sale"
redirect:
  path: /deals/spring
  destination: "https://store.example/spring"
---
Big spring savings.`)

	writeFile(t, root, "getmecoupons", "redirects.yaml", `redirects:
  - path: /old-blog
    destination: /blog
`)

	return &config.Config{
		DefaultSite: "getmecoupons",
		Content:     config.ContentConfig{Root: root, StaticRedirectsFile: "redirects.yaml"},
		Sites: []config.SiteConfig{
			{
				Key:       "getmecoupons",
				Hostnames: []string{"getmecoupons.net"},
				BaseURL:   "https://getmecoupons.net",
				Title:     "GetMeCoupons",
			},
		},
	}
}

type managedStub struct {
	rows  []domain.ManagedRedirect
	err   error
	calls int
}

func (m *managedStub) ListActive(ctx context.Context) ([]domain.ManagedRedirect, error) {
	m.calls++
	return m.rows, m.err
}

func newSyncWorker(t *testing.T, cfg *config.Config) (*SyncWorker, *content.Store, *redirect.Resolver, *publish.Cache) {
	t.Helper()
	store := content.NewStore()
	resolver := redirect.NewResolver()
	cache := publish.NewCache()
	loader := content.NewLoader(cfg.Content, cfg.Sites)
	return NewSyncWorker(cfg, loader, store, resolver, cache), store, resolver, cache
}

func TestSyncWorkerRunOnce(t *testing.T) {
	cfg := syncFixture(t)
	w, store, resolver, cache := newSyncWorker(t, cfg)
	w.SetManagedSource(&managedStub{rows: []domain.ManagedRedirect{
		{ID: "m1", Site: "getmecoupons", Path: "/promo", Destination: "https://partner.example/landing", Active: true},
	}})

	if err := w.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce() error: %v", err)
	}

	now := time.Now()
	if posts := store.Posts("getmecoupons", now); len(posts) != 1 {
		t.Errorf("store has %d posts, want 1", len(posts))
	}

	// Static, campaign, and managed entries all land in one table.
	for _, path := range []string{"/old-blog", "/deals/spring", "/promo"} {
		if _, ok := resolver.Resolve("getmecoupons", path, nil, now); !ok {
			t.Errorf("Resolve(%q) missed after sync", path)
		}
	}

	for _, name := range []string{"feed.xml", "podcast.xml", "sitemap.xml", "robots.txt", "redirects.json"} {
		if _, ok := cache.Get("getmecoupons", name); !ok {
			t.Errorf("artifact %s not cached after sync", name)
		}
	}

	robots, _ := cache.Get("getmecoupons", "robots.txt")
	if !strings.Contains(string(robots.Body), "Sitemap: https://getmecoupons.net/sitemap.xml") {
		t.Errorf("robots.txt missing sitemap line: %q", robots.Body)
	}

	manifest, _ := cache.Get("getmecoupons", "redirects.json")
	var decoded struct {
		Site      string                 `json:"site"`
		Redirects []redirect.ExportEntry `json:"redirects"`
	}
	if err := json.Unmarshal(manifest.Body, &decoded); err != nil {
		t.Fatalf("redirects.json did not parse: %v", err)
	}
	if decoded.Site != "getmecoupons" || len(decoded.Redirects) != 3 {
		t.Errorf("redirects.json = site %q with %d entries, want getmecoupons with 3", decoded.Site, len(decoded.Redirects))
	}
}

func TestSyncWorkerManagedFailureKeepsOldTable(t *testing.T) {
	cfg := syncFixture(t)
	w, _, resolver, _ := newSyncWorker(t, cfg)

	if err := w.RunOnce(context.Background()); err != nil {
		t.Fatalf("first RunOnce() error: %v", err)
	}
	before := resolver.Stats()

	w.SetManagedSource(&managedStub{err: errors.New("connection refused")})
	if err := w.RunOnce(context.Background()); err == nil {
		t.Fatal("RunOnce() should fail when the managed source errors")
	}

	after := resolver.Stats()
	if after.Entries != before.Entries || !after.BuiltAt.Equal(before.BuiltAt) {
		t.Errorf("table changed after failed sync: before=%+v after=%+v", before, after)
	}
	if w.Stats()["total_errors"] == 0 {
		t.Error("total_errors should count the failed cycle")
	}
}

func TestSyncWorkerSkipsMissingManagedSource(t *testing.T) {
	cfg := syncFixture(t)
	w, _, resolver, _ := newSyncWorker(t, cfg)

	if err := w.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce() error: %v", err)
	}
	if stats := resolver.Stats(); stats.Entries != 2 {
		t.Errorf("entries = %d, want 2 (static + campaign, no managed)", stats.Entries)
	}
}

func TestSyncWorkerTriggerCoalesces(t *testing.T) {
	cfg := syncFixture(t)
	w, _, _, _ := newSyncWorker(t, cfg)

	w.Trigger()
	w.Trigger()
	w.Trigger()

	if len(w.trigger) != 1 {
		t.Errorf("pending triggers = %d, want 1", len(w.trigger))
	}
}

func TestSyncWorkerStartStop(t *testing.T) {
	cfg := syncFixture(t)
	w, store, _, _ := newSyncWorker(t, cfg)

	w.Start()
	w.Start() // second call is a no-op

	w.mu.Lock()
	running := w.running
	w.mu.Unlock()
	if !running {
		t.Error("worker should be running after Start()")
	}

	w.Stop()

	w.mu.Lock()
	running = w.running
	w.mu.Unlock()
	if running {
		t.Error("worker should not be running after Stop()")
	}

	// The initial sync ran before Stop returned.
	if posts := store.Posts("getmecoupons", time.Now()); len(posts) != 1 {
		t.Errorf("initial sync did not populate the store: %d posts", len(posts))
	}
	if w.LastSync().IsZero() {
		t.Error("LastSync should be set after the initial sync")
	}
}
