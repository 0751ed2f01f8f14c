package api

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ignite/promo-gateway/internal/config"
	"github.com/ignite/promo-gateway/internal/domain"
	"github.com/ignite/promo-gateway/internal/feeds"
	"github.com/ignite/promo-gateway/internal/pkg/httputil"
	"github.com/ignite/promo-gateway/internal/publish"
	"github.com/ignite/promo-gateway/internal/sitemap"
)

// siteParam resolves the {site} path parameter, writing a 404 when the
// key is unknown.
func (s *Server) siteParam(w http.ResponseWriter, r *http.Request) *config.SiteConfig {
	site := s.cfg.Site(chi.URLParam(r, "site"))
	if site == nil {
		httputil.NotFound(w, "unknown site")
	}
	return site
}

// handleListPosts returns published posts, newest first, bodies stripped.
//
//	GET /api/v1/content/{site}/posts?limit=N
func (s *Server) handleListPosts(w http.ResponseWriter, r *http.Request) {
	site := s.siteParam(w, r)
	if site == nil {
		return
	}

	posts := s.store.Posts(site.Key, time.Now())
	if limit := queryInt(r, "limit", 0); limit > 0 && limit < len(posts) {
		posts = posts[:limit]
	}
	for i := range posts {
		posts[i].Body = ""
	}

	httputil.OK(w, map[string]interface{}{
		"site":  site.Key,
		"count": len(posts),
		"posts": posts,
	})
}

// handleGetPost returns one published post with its full body.
func (s *Server) handleGetPost(w http.ResponseWriter, r *http.Request) {
	site := s.siteParam(w, r)
	if site == nil {
		return
	}

	post, ok := s.store.Post(site.Key, chi.URLParam(r, "slug"), time.Now())
	if !ok {
		httputil.NotFound(w, "post not found")
		return
	}
	httputil.OK(w, post)
}

// handleListEpisodes returns published episodes, newest first, bodies
// stripped. Locally authored and feed-ingested episodes are merged.
//
//	GET /api/v1/content/{site}/episodes?limit=N
func (s *Server) handleListEpisodes(w http.ResponseWriter, r *http.Request) {
	site := s.siteParam(w, r)
	if site == nil {
		return
	}

	episodes := s.store.Episodes(site.Key, time.Now())
	if limit := queryInt(r, "limit", 0); limit > 0 && limit < len(episodes) {
		episodes = episodes[:limit]
	}
	for i := range episodes {
		episodes[i].Body = ""
	}

	httputil.OK(w, map[string]interface{}{
		"site":     site.Key,
		"count":    len(episodes),
		"episodes": episodes,
	})
}

// handleGetEpisode returns one published episode with its full body.
func (s *Server) handleGetEpisode(w http.ResponseWriter, r *http.Request) {
	site := s.siteParam(w, r)
	if site == nil {
		return
	}

	episode, ok := s.store.Episode(site.Key, chi.URLParam(r, "slug"), time.Now())
	if !ok {
		httputil.NotFound(w, "episode not found")
		return
	}
	httputil.OK(w, episode)
}

// handleListCampaigns returns campaigns, bodies stripped. ?active=true
// narrows to campaigns whose window is open right now.
func (s *Server) handleListCampaigns(w http.ResponseWriter, r *http.Request) {
	site := s.siteParam(w, r)
	if site == nil {
		return
	}

	var campaigns []domain.Campaign
	if r.URL.Query().Get("active") == "true" {
		campaigns = s.store.ActiveCampaigns(site.Key, time.Now())
	} else {
		campaigns = s.store.Campaigns(site.Key)
	}
	for i := range campaigns {
		campaigns[i].Body = ""
	}

	httputil.OK(w, map[string]interface{}{
		"site":      site.Key,
		"count":     len(campaigns),
		"campaigns": campaigns,
	})
}

// handleListCoupons returns coupons, bodies stripped. ?active=true narrows
// to open windows, ?featured=true to featured offers.
func (s *Server) handleListCoupons(w http.ResponseWriter, r *http.Request) {
	site := s.siteParam(w, r)
	if site == nil {
		return
	}

	var coupons []domain.Coupon
	if r.URL.Query().Get("active") == "true" {
		coupons = s.store.ActiveCoupons(site.Key, time.Now())
	} else {
		coupons = s.store.Coupons(site.Key)
	}
	if r.URL.Query().Get("featured") == "true" {
		featured := coupons[:0:0]
		for _, c := range coupons {
			if c.Featured {
				featured = append(featured, c)
			}
		}
		coupons = featured
	}
	for i := range coupons {
		coupons[i].Body = ""
	}

	httputil.OK(w, map[string]interface{}{
		"site":    site.Key,
		"count":   len(coupons),
		"coupons": coupons,
	})
}

// handleRedirectExport returns the site's currently active redirect map,
// the same payload published as redirects.json for edge workers.
//
//	GET /api/v1/redirects/{site}
func (s *Server) handleRedirectExport(w http.ResponseWriter, r *http.Request) {
	site := s.siteParam(w, r)
	if site == nil {
		return
	}

	entries := s.resolver.Export(site.Key, time.Now())
	httputil.OK(w, map[string]interface{}{
		"site":      site.Key,
		"count":     len(entries),
		"redirects": entries,
	})
}

// ---------------------------------------------------------------------------
// Generated artifacts (feeds, sitemap, robots)
// ---------------------------------------------------------------------------

// serveArtifact answers from the artifact cache, generating on a miss so
// the endpoints work before the first sync completes.
func (s *Server) serveArtifact(w http.ResponseWriter, r *http.Request, name string, generate func(config.SiteConfig) ([]byte, error)) {
	site := s.cfg.SiteByHost(r.Host)
	if site == nil {
		http.NotFound(w, r)
		return
	}

	artifact, ok := s.artifacts.Get(site.Key, name)
	if !ok {
		body, err := generate(*site)
		if err != nil {
			httputil.InternalError(w, fmt.Errorf("generate %s for %s: %w", name, site.Key, err))
			return
		}
		artifact = publish.Artifact{
			Site:        site.Key,
			Name:        name,
			ContentType: publish.ContentTypeFor(name),
			Body:        body,
		}
		s.artifacts.Put(artifact)
	}

	w.Header().Set("Content-Type", artifact.ContentType)
	w.Header().Set("Cache-Control", "public, max-age=300")
	w.Write(artifact.Body)
}

// handleBlogFeed serves the site's blog RSS feed.
//
//	GET /feed.xml
func (s *Server) handleBlogFeed(w http.ResponseWriter, r *http.Request) {
	s.serveArtifact(w, r, "feed.xml", func(site config.SiteConfig) ([]byte, error) {
		now := time.Now()
		return feeds.BlogFeed(site, s.store.Posts(site.Key, now), now)
	})
}

// handlePodcastFeed serves the site's podcast RSS feed.
//
//	GET /podcast.xml
func (s *Server) handlePodcastFeed(w http.ResponseWriter, r *http.Request) {
	s.serveArtifact(w, r, "podcast.xml", func(site config.SiteConfig) ([]byte, error) {
		now := time.Now()
		return feeds.PodcastFeed(site, s.store.Episodes(site.Key, now), now)
	})
}

// handleSitemap serves the site's sitemap.
//
//	GET /sitemap.xml
func (s *Server) handleSitemap(w http.ResponseWriter, r *http.Request) {
	s.serveArtifact(w, r, "sitemap.xml", func(site config.SiteConfig) ([]byte, error) {
		now := time.Now()
		return sitemap.Generate(site, sitemap.Input{
			Posts:     s.store.Posts(site.Key, now),
			Episodes:  s.store.Episodes(site.Key, now),
			Campaigns: s.store.Campaigns(site.Key),
			Coupons:   s.store.Coupons(site.Key),
		}, now)
	})
}

// handleRobots serves robots.txt pointing crawlers at the sitemap.
func (s *Server) handleRobots(w http.ResponseWriter, r *http.Request) {
	site := s.cfg.SiteByHost(r.Host)
	if site == nil {
		http.NotFound(w, r)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Cache-Control", "public, max-age=300")
	fmt.Fprintf(w, "User-agent: *\nAllow: /\n\nSitemap: %s/sitemap.xml\n", site.BaseURL)
}

// queryInt parses an integer query parameter, falling back to def.
func queryInt(r *http.Request, key string, def int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}
