package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/promo-gateway/internal/auth"
	"github.com/ignite/promo-gateway/internal/config"
	"github.com/ignite/promo-gateway/internal/content"
	"github.com/ignite/promo-gateway/internal/domain"
	"github.com/ignite/promo-gateway/internal/ratelimit"
	"github.com/ignite/promo-gateway/internal/redirect"
	"github.com/ignite/promo-gateway/internal/service/redirects"
)

// memPublisher records hits and events synchronously so tests can
// assert on them without sleeping.
type memPublisher struct {
	mu     sync.Mutex
	hits   []domain.Hit
	events []domain.SiteEvent
}

func (p *memPublisher) PublishHit(ctx context.Context, h domain.Hit) {
	p.mu.Lock()
	p.hits = append(p.hits, h)
	p.mu.Unlock()
}

func (p *memPublisher) PublishEvent(ctx context.Context, e domain.SiteEvent) {
	p.mu.Lock()
	p.events = append(p.events, e)
	p.mu.Unlock()
}

func (p *memPublisher) Hits() []domain.Hit {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]domain.Hit(nil), p.hits...)
}

func (p *memPublisher) Events() []domain.SiteEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]domain.SiteEvent(nil), p.events...)
}

// memRedirectRepo is an in-memory redirects.Repository for admin tests.
type memRedirectRepo struct {
	mu   sync.Mutex
	rows map[string]*domain.ManagedRedirect
}

func newMemRedirectRepo() *memRedirectRepo {
	return &memRedirectRepo{rows: make(map[string]*domain.ManagedRedirect)}
}

func (m *memRedirectRepo) Get(ctx context.Context, id string) (*domain.ManagedRedirect, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rows[id]
	if !ok {
		return nil, redirects.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (m *memRedirectRepo) GetByPath(ctx context.Context, site, path string) (*domain.ManagedRedirect, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.rows {
		if r.Site == site && r.Path == path {
			cp := *r
			return &cp, nil
		}
	}
	return nil, redirects.ErrNotFound
}

func (m *memRedirectRepo) List(ctx context.Context, f redirects.ListFilter) ([]domain.ManagedRedirect, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []domain.ManagedRedirect
	for _, r := range m.rows {
		if f.Site != "" && r.Site != f.Site {
			continue
		}
		if f.Active != nil && r.Active != *f.Active {
			continue
		}
		if f.Search != "" && !strings.Contains(r.Path, f.Search) && !strings.Contains(r.Destination, f.Search) {
			continue
		}
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })

	total := len(out)
	if f.Offset >= len(out) {
		return nil, total, nil
	}
	out = out[f.Offset:]
	if f.Limit > 0 && f.Limit < len(out) {
		out = out[:f.Limit]
	}
	return out, total, nil
}

func (m *memRedirectRepo) ListActive(ctx context.Context, sites []string) ([]domain.ManagedRedirect, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	keys := make(map[string]bool, len(sites))
	for _, s := range sites {
		keys[s] = true
	}
	var out []domain.ManagedRedirect
	for _, r := range m.rows {
		if r.Active && keys[r.Site] {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (m *memRedirectRepo) Create(ctx context.Context, r *domain.ManagedRedirect) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *r
	cp.CreatedAt = time.Now()
	cp.UpdatedAt = cp.CreatedAt
	m.rows[cp.ID] = &cp
	return cp.ID, nil
}

func (m *memRedirectRepo) Update(ctx context.Context, id string, u redirects.UpdateFields) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rows[id]
	if !ok {
		return redirects.ErrNotFound
	}
	if u.Destination != nil {
		r.Destination = *u.Destination
	}
	if u.Permanent != nil {
		r.Permanent = *u.Permanent
	}
	if u.Active != nil {
		r.Active = *u.Active
	}
	if u.ClearWindow {
		r.StartsAt, r.EndsAt = nil, nil
	} else {
		if u.StartsAt != nil {
			r.StartsAt = u.StartsAt
		}
		if u.EndsAt != nil {
			r.EndsAt = u.EndsAt
		}
	}
	if u.UTM != nil {
		r.UTM = *u.UTM
	}
	if u.Notes != nil {
		r.Notes = *u.Notes
	}
	r.UpdatedAt = time.Now()
	return nil
}

func (m *memRedirectRepo) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rows[id]; !ok {
		return redirects.ErrNotFound
	}
	delete(m.rows, id)
	return nil
}

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{Port: 8080},
		RateLimit: config.RateLimitConfig{
			RedirectsPerMinute: 120,
			EventsPerMinute:    60,
		},
		DefaultSite: "getmecoupons",
		Sites: []config.SiteConfig{
			{
				Key:       "getmecoupons",
				Hostnames: []string{"getmecoupons.net", "www.getmecoupons.net"},
				BaseURL:   "https://getmecoupons.net",
				Title:     "GetMeCoupons",
				Language:  "en",
				Timezone:  "America/Los_Angeles",
			},
			{
				Key:       "discountblog",
				Hostnames: []string{"discountblog.com"},
				BaseURL:   "https://discountblog.com",
				Title:     "Discount Blog",
				Language:  "en",
				Timezone:  "America/Los_Angeles",
			},
		},
	}
}

// newTestServer builds a server over a populated store and table.
func newTestServer(t *testing.T) (*Server, *memPublisher) {
	t.Helper()

	now := time.Now().UTC()
	yesterday := now.Add(-24 * time.Hour)
	tomorrow := now.Add(24 * time.Hour)
	lastWeek := now.Add(-7 * 24 * time.Hour)

	snap := &content.Snapshot{
		Sites: map[string]*content.SiteContent{
			"getmecoupons": {
				Posts: []domain.Post{
					{Site: "getmecoupons", Slug: "best-cashback-apps", Title: "Best Cashback Apps", PublishedAt: yesterday, Body: "Full comparison."},
					{Site: "getmecoupons", Slug: "scheduled-later", Title: "Scheduled", PublishedAt: tomorrow, Body: "Not yet."},
				},
				Episodes: []domain.Episode{
					{Site: "getmecoupons", Slug: "ep-1-saving-basics", Title: "Saving Basics", AudioURL: "https://cdn.example/ep1.mp3", PublishedAt: lastWeek, Body: "Show notes."},
				},
				Campaigns: []domain.Campaign{
					{
						Site: "getmecoupons", Slug: "summer-blowout", Title: "Summer Blowout",
						Redirect: &domain.RedirectSpec{Path: "/deals/summer", Destination: "https://store.example/summer"},
					},
				},
				Coupons: []domain.Coupon{
					{
						Site: "getmecoupons", Slug: "save10", Title: "Save 10%", Merchant: "Acme", Code: "SAVE10", Featured: true,
						Redirect: &domain.RedirectSpec{
							Path:        "/coupons/save10/go",
							Destination: "https://partner.example/track?offer=save10",
							UTM:         domain.UTMParams{Source: "gateway"},
						},
					},
					{
						Site: "getmecoupons", Slug: "expired-deal", Title: "Expired Deal", Merchant: "Acme",
						Window:   domain.Window{End: &yesterday},
						Redirect: &domain.RedirectSpec{Path: "/coupons/expired-deal/go", Destination: "https://partner.example/track?offer=old"},
					},
				},
				Static: []domain.Redirect{
					{Path: "/old-blog", Destination: "https://getmecoupons.net/blog"},
					{Path: "/old-site", Destination: "https://getmecoupons.net/welcome", Permanent: true},
				},
			},
			"discountblog": {
				Posts: []domain.Post{
					{Site: "discountblog", Slug: "march-roundup", Title: "March Roundup", PublishedAt: yesterday},
				},
				Static: []domain.Redirect{
					{Path: "/old-blog", Destination: "https://discountblog.com/archive"},
				},
			},
		},
		LoadedAt: now,
		Records:  8,
	}

	store := content.NewStore()
	store.Swap(snap)

	var inputs []redirect.SiteInput
	for _, key := range []string{"getmecoupons", "discountblog"} {
		sc := snap.Sites[key]
		inputs = append(inputs, redirect.SiteInput{
			Key:       key,
			BaseURL:   "https://" + key + ".example",
			Static:    sc.Static,
			Campaigns: sc.Campaigns,
			Coupons:   sc.Coupons,
		})
	}
	resolver := redirect.NewResolver()
	resolver.Swap(redirect.Build(inputs))

	pub := &memPublisher{}
	return NewServer(testConfig(), store, resolver, pub, nil), pub
}

func doJSON(t *testing.T, router http.Handler, req *http.Request) map[string]interface{} {
	t.Helper()
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), "body: %s", rec.Body.String())
	return body
}

func TestRedirectCatchAll(t *testing.T) {
	srv, pub := newTestServer(t)
	router := srv.Handler()

	req := httptest.NewRequest(http.MethodGet, "/old-blog", nil)
	req.Host = "getmecoupons.net"
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "https://getmecoupons.net/blog", rec.Header().Get("Location"))
	assert.Empty(t, rec.Header().Get("Cache-Control"))

	hits := pub.Hits()
	require.Len(t, hits, 1)
	assert.Equal(t, "getmecoupons", hits[0].Site)
	assert.Equal(t, "/old-blog", hits[0].Path)
	assert.Equal(t, domain.SourceStatic, hits[0].Source)

	// Unknown paths miss without recording anything.
	req = httptest.NewRequest(http.MethodGet, "/never-existed", nil)
	req.Host = "getmecoupons.net"
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Len(t, pub.Hits(), 1)
}

func TestRedirectPermanent(t *testing.T) {
	srv, _ := newTestServer(t)
	router := srv.Handler()

	req := httptest.NewRequest(http.MethodGet, "/old-site", nil)
	req.Host = "getmecoupons.net"
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusMovedPermanently, rec.Code)
	assert.Empty(t, rec.Header().Get("Cache-Control"))
}

func TestRedirectResolvesSiteByHost(t *testing.T) {
	srv, _ := newTestServer(t)
	router := srv.Handler()

	req := httptest.NewRequest(http.MethodGet, "/old-blog", nil)
	req.Host = "www.discountblog.com:443"
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "https://discountblog.com/archive", rec.Header().Get("Location"))

	// Unrecognized hosts fall back to the default site.
	req = httptest.NewRequest(http.MethodGet, "/old-blog", nil)
	req.Host = "lb-internal.example"
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "https://getmecoupons.net/blog", rec.Header().Get("Location"))
}

func TestRedirectWindowCheckedAtRequestTime(t *testing.T) {
	srv, pub := newTestServer(t)
	router := srv.Handler()

	// The expired coupon's entry is in the table but its window closed.
	req := httptest.NewRequest(http.MethodGet, "/coupons/expired-deal/go", nil)
	req.Host = "getmecoupons.net"
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Empty(t, pub.Hits())
}

func TestShortLink(t *testing.T) {
	srv, pub := newTestServer(t)
	router := srv.Handler()

	req := httptest.NewRequest(http.MethodGet, "/go/summer-blowout", nil)
	req.Host = "getmecoupons.net"
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "https://store.example/summer", rec.Header().Get("Location"))
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))

	hits := pub.Hits()
	require.Len(t, hits, 1)
	assert.Equal(t, "summer-blowout", hits[0].Ref)
	assert.Equal(t, domain.SourcePromo, hits[0].Source)
	assert.Equal(t, "/deals/summer", hits[0].Path, "short-link hits aggregate under the canonical path")

	// Slugs are case-insensitive.
	req = httptest.NewRequest(http.MethodGet, "/go/SUMMER-BLOWOUT", nil)
	req.Host = "getmecoupons.net"
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusFound, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/go/no-such-promo", nil)
	req.Host = "getmecoupons.net"
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestShortLinkMergesQuery(t *testing.T) {
	srv, _ := newTestServer(t)
	router := srv.Handler()

	req := httptest.NewRequest(http.MethodGet, "/go/save10?utm_source=newsletter", nil)
	req.Host = "getmecoupons.net"
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusFound, rec.Code)
	loc := rec.Header().Get("Location")
	assert.Contains(t, loc, "offer=save10")
	assert.Contains(t, loc, "utm_source=newsletter", "incoming UTM wins over the entry default")
}

func TestBlogFeed(t *testing.T) {
	srv, _ := newTestServer(t)
	router := srv.Handler()

	req := httptest.NewRequest(http.MethodGet, "/feed.xml", nil)
	req.Host = "getmecoupons.net"
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/xml", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), "<rss")
	assert.Contains(t, rec.Body.String(), "Best Cashback Apps")
	assert.NotContains(t, rec.Body.String(), "Scheduled", "future-dated posts stay out of the feed")
}

func TestPodcastFeed(t *testing.T) {
	srv, _ := newTestServer(t)
	router := srv.Handler()

	req := httptest.NewRequest(http.MethodGet, "/podcast.xml", nil)
	req.Host = "getmecoupons.net"
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Saving Basics")
	assert.Contains(t, rec.Body.String(), "ep1.mp3")
}

func TestSitemap(t *testing.T) {
	srv, _ := newTestServer(t)
	router := srv.Handler()

	req := httptest.NewRequest(http.MethodGet, "/sitemap.xml", nil)
	req.Host = "getmecoupons.net"
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "https://getmecoupons.net")
	assert.Contains(t, rec.Body.String(), "best-cashback-apps")
}

func TestRobots(t *testing.T) {
	srv, _ := newTestServer(t)
	router := srv.Handler()

	req := httptest.NewRequest(http.MethodGet, "/robots.txt", nil)
	req.Host = "discountblog.com"
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Sitemap: https://discountblog.com/sitemap.xml")
}

func TestContentPostsAPI(t *testing.T) {
	srv, _ := newTestServer(t)
	router := srv.Handler()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/content/getmecoupons/posts", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "getmecoupons", resp["site"])
	assert.Equal(t, float64(1), resp["count"], "future-dated post excluded")
	assert.NotContains(t, rec.Body.String(), "Full comparison.", "list strips bodies")

	// Detail carries the full body.
	req = httptest.NewRequest(http.MethodGet, "/api/v1/content/getmecoupons/posts/best-cashback-apps", nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Full comparison.")

	req = httptest.NewRequest(http.MethodGet, "/api/v1/content/getmecoupons/posts/missing", nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/v1/content/nosite/posts", nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestContentCouponsAPI(t *testing.T) {
	srv, _ := newTestServer(t)
	router := srv.Handler()

	body := doJSON(t, router, httptest.NewRequest(http.MethodGet, "/api/v1/content/getmecoupons/coupons", nil))
	assert.Equal(t, float64(2), body["count"])

	body = doJSON(t, router, httptest.NewRequest(http.MethodGet, "/api/v1/content/getmecoupons/coupons?active=true", nil))
	assert.Equal(t, float64(1), body["count"], "expired coupon filtered out")

	body = doJSON(t, router, httptest.NewRequest(http.MethodGet, "/api/v1/content/getmecoupons/coupons?featured=true", nil))
	assert.Equal(t, float64(1), body["count"])
}

func TestSiteEvents(t *testing.T) {
	srv, pub := newTestServer(t)
	router := srv.Handler()

	post := func(payload, referer, ua string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/events", bytes.NewBufferString(payload))
		req.Host = "getmecoupons.net"
		req.Header.Set("Content-Type", "application/json")
		if referer != "" {
			req.Header.Set("Referer", referer)
		}
		if ua != "" {
			req.Header.Set("User-Agent", ua)
		}
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		return rec
	}

	// Valid event is accepted and recorded.
	rec := post(`{"event":"copy","path":"/coupons/save10","ref":"save10"}`, "https://www.getmecoupons.net/coupons/save10", "Mozilla/5.0")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	events := pub.Events()
	require.Len(t, events, 1)
	assert.Equal(t, domain.SiteEventCopy, events[0].Event)
	assert.Equal(t, "getmecoupons", events[0].Site)
	assert.Equal(t, "save10", events[0].Ref)

	// Foreign referers are rejected.
	rec = post(`{"event":"click","path":"/x"}`, "https://evil-getmecoupons.net/page", "Mozilla/5.0")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// Bots get a quiet 204 and nothing is recorded.
	rec = post(`{"event":"click","path":"/x"}`, "", "Googlebot/2.1")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Len(t, pub.Events(), 1)

	// Unknown event types are a client error.
	rec = post(`{"event":"hover","path":"/x"}`, "", "Mozilla/5.0")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = post(`{"event":"click"}`, "", "Mozilla/5.0")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestBeacon(t *testing.T) {
	srv, pub := newTestServer(t)
	router := srv.Handler()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/events/beacon?event=play&path=/podcast/ep-1&ref=ep-1", nil)
	req.Host = "getmecoupons.net"
	req.Header.Set("User-Agent", "Mozilla/5.0")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/gif", rec.Header().Get("Content-Type"))
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
	assert.Equal(t, transparentGIF, rec.Body.Bytes())
	require.Len(t, pub.Events(), 1)
	assert.Equal(t, domain.SiteEventPlay, pub.Events()[0].Event)

	// Bots still get the pixel, but nothing is recorded.
	req = httptest.NewRequest(http.MethodGet, "/api/v1/events/beacon?event=play&path=/podcast/ep-1", nil)
	req.Host = "getmecoupons.net"
	req.Header.Set("User-Agent", "curl/8.0")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, transparentGIF, rec.Body.Bytes())
	assert.Len(t, pub.Events(), 1)
}

func TestHealthEndpoints(t *testing.T) {
	srv, _ := newTestServer(t)
	router := srv.Handler()

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Contains(t, resp, "status")
	assert.Contains(t, resp, "version")
	assert.Contains(t, resp, "uptime")
	assert.Contains(t, resp, "checks")

	req = httptest.NewRequest(http.MethodGet, "/health/live", nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	// With content and a table loaded, the gateway is ready even without
	// a database.
	req = httptest.NewRequest(http.MethodGet, "/health/ready", nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestReadinessFailsWithoutContent(t *testing.T) {
	srv := NewServer(testConfig(), content.NewStore(), redirect.NewResolver(), &memPublisher{}, nil)
	router := srv.Handler()

	req := httptest.NewRequest(http.MethodGet, "/health/ready", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, false, resp["ready"])
}

func TestAdminRequiresAuth(t *testing.T) {
	srv, _ := newTestServer(t)
	srv.SetRedirectService(redirects.NewService(newMemRedirectRepo(), testConfig().SiteKeys()))
	srv.SetAuthManager(auth.NewManager(&config.AuthConfig{
		Enabled:            true,
		GoogleClientID:     "test-client",
		GoogleClientSecret: "test-secret",
		SessionSecret:      "test-session-secret",
		CookieName:         "gateway_session",
	}, "http://localhost:8080", false))
	router := srv.Handler()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/redirects", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// Public routes stay open.
	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAdminDevModeSession(t *testing.T) {
	srv, _ := newTestServer(t)
	srv.SetRedirectService(redirects.NewService(newMemRedirectRepo(), testConfig().SiteKeys()))
	srv.SetAuthManager(auth.NewManager(&config.AuthConfig{
		Enabled:       true,
		SessionSecret: "test-session-secret",
		CookieName:    "gateway_session",
	}, "http://localhost:8080", true))
	router := srv.Handler()

	body := bytes.NewBufferString(`{"site":"getmecoupons","path":"/promo-test","destination":"https://example.com/landing"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/redirects", body)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusCreated, rec.Code)
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "dev@localhost", resp["created_by"])
}

func TestAdminRedirectCRUD(t *testing.T) {
	srv, _ := newTestServer(t)
	srv.SetRedirectService(redirects.NewService(newMemRedirectRepo(), testConfig().SiteKeys()))
	router := srv.Handler()

	create := func(payload string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/redirects", bytes.NewBufferString(payload))
		req.Header.Set("Content-Type", "application/json")
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		return rec
	}

	rec := create(`{"site":"getmecoupons","path":"/Black-Friday","destination":"https://store.example/bf"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var created map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	id := created["id"].(string)
	assert.Equal(t, "/black-friday", created["path"], "paths normalize to lowercase")

	// Same path again conflicts, regardless of case.
	rec = create(`{"site":"getmecoupons","path":"/black-friday","destination":"https://store.example/other"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)

	// Reserved prefixes are rejected.
	rec = create(`{"site":"getmecoupons","path":"/api/sneaky","destination":"https://store.example/x"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Unknown site is rejected.
	rec = create(`{"site":"nosite","path":"/x","destination":"https://store.example/x"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Fetch it back.
	req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/redirects/"+id, nil)
	recGet := httptest.NewRecorder()
	router.ServeHTTP(recGet, req)
	assert.Equal(t, http.StatusOK, recGet.Code)

	// Update the destination.
	req = httptest.NewRequest(http.MethodPut, "/api/v1/admin/redirects/"+id,
		bytes.NewBufferString(`{"destination":"https://store.example/bf-2026"}`))
	req.Header.Set("Content-Type", "application/json")
	recPut := httptest.NewRecorder()
	router.ServeHTTP(recPut, req)
	assert.Equal(t, http.StatusOK, recPut.Code)
	var updated map[string]interface{}
	require.NoError(t, json.Unmarshal(recPut.Body.Bytes(), &updated))
	assert.Equal(t, "https://store.example/bf-2026", updated["destination"])

	// List sees it.
	list := doJSON(t, router, httptest.NewRequest(http.MethodGet, "/api/v1/admin/redirects?site=getmecoupons", nil))
	assert.Equal(t, float64(1), list["total"])
	assert.Equal(t, false, list["has_more"])

	// Delete, then 404.
	req = httptest.NewRequest(http.MethodDelete, "/api/v1/admin/redirects/"+id, nil)
	recDel := httptest.NewRecorder()
	router.ServeHTTP(recDel, req)
	assert.Equal(t, http.StatusNoContent, recDel.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/v1/admin/redirects/"+id, nil)
	recGone := httptest.NewRecorder()
	router.ServeHTTP(recGone, req)
	assert.Equal(t, http.StatusNotFound, recGone.Code)
}

func TestAdminRedirectsUnavailableWithoutDB(t *testing.T) {
	srv, _ := newTestServer(t)
	router := srv.Handler()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/redirects", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

type fakeStats struct{}

func (fakeStats) DailyHits(ctx context.Context, site string, days int) ([]domain.DailyHits, error) {
	return []domain.DailyHits{{Day: "2026-08-24", Hits: 42}}, nil
}

func (fakeStats) TopPaths(ctx context.Context, site string, days, limit int) ([]domain.TopPath, error) {
	return []domain.TopPath{{Path: "/coupons/save10/go", Destination: "https://partner.example/track", Hits: 30}}, nil
}

func (fakeStats) EventCounts(ctx context.Context, site string, days int) ([]domain.EventCount, error) {
	return []domain.EventCount{{Event: domain.SiteEventCopy, Count: 12}}, nil
}

func TestAdminStats(t *testing.T) {
	srv, _ := newTestServer(t)
	srv.SetStatsSource(fakeStats{})
	router := srv.Handler()

	body := doJSON(t, router, httptest.NewRequest(http.MethodGet, "/api/v1/admin/stats/getmecoupons/daily?days=7", nil))
	assert.Equal(t, "getmecoupons", body["site"])
	assert.Equal(t, float64(7), body["days"])
	assert.Contains(t, body, "daily")

	body = doJSON(t, router, httptest.NewRequest(http.MethodGet, "/api/v1/admin/stats/getmecoupons/top", nil))
	assert.Contains(t, body, "top")

	body = doJSON(t, router, httptest.NewRequest(http.MethodGet, "/api/v1/admin/stats/getmecoupons/events", nil))
	assert.Contains(t, body, "events")

	req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/stats/nosite/daily", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAdminTableStats(t *testing.T) {
	srv, _ := newTestServer(t)
	router := srv.Handler()

	body := doJSON(t, router, httptest.NewRequest(http.MethodGet, "/api/v1/admin/table", nil))
	assert.Equal(t, float64(2), body["sites"])
	assert.Greater(t, body["entries"], float64(0))

	body = doJSON(t, router, httptest.NewRequest(http.MethodGet, "/api/v1/admin/table?site=getmecoupons", nil))
	assert.Contains(t, body, "redirects")

	req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/table?site=nosite", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestTriggerSync(t *testing.T) {
	srv, _ := newTestServer(t)
	triggered := false
	srv.SetSyncTrigger(func() { triggered = true })
	router := srv.Handler()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/sync", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.True(t, triggered)

	// Without a worker wired the endpoint reports unavailable.
	srv2, _ := newTestServer(t)
	router2 := srv2.Handler()
	req = httptest.NewRequest(http.MethodPost, "/api/v1/admin/sync", nil)
	rec = httptest.NewRecorder()
	router2.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestEventRateLimit(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	srv, _ := newTestServer(t)
	srv.cfg.RateLimit.Enabled = true
	srv.cfg.RateLimit.EventsPerMinute = 2
	srv.SetRateLimiter(ratelimit.NewLimiter(rdb))
	router := srv.Handler()

	post := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/events",
			bytes.NewBufferString(`{"event":"pageview","path":"/"}`))
		req.Host = "getmecoupons.net"
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("User-Agent", "Mozilla/5.0")
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		return rec
	}

	assert.Equal(t, http.StatusNoContent, post().Code)
	assert.Equal(t, http.StatusNoContent, post().Code)

	rec := post()
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
}

func TestCORSPreflight(t *testing.T) {
	srv, _ := newTestServer(t)
	router := srv.Handler()

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/content/getmecoupons/posts", nil)
	req.Header.Set("Origin", "https://getmecoupons.net")
	req.Header.Set("Access-Control-Request-Method", "GET")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Contains(t, []int{http.StatusOK, http.StatusNoContent}, rec.Code)
	assert.Equal(t, "https://getmecoupons.net", rec.Header().Get("Access-Control-Allow-Origin"))

	// Unlisted origins get no CORS grant.
	req = httptest.NewRequest(http.MethodOptions, "/api/v1/content/getmecoupons/posts", nil)
	req.Header.Set("Origin", "https://stranger.example")
	req.Header.Set("Access-Control-Request-Method", "GET")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}
