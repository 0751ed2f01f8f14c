package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/ignite/promo-gateway/internal/pkg/httputil"
	"github.com/ignite/promo-gateway/internal/pkg/logger"
)

// buildRoutes configures the full route table. The redirect catch-all is
// registered last so every named route wins over it.
func (s *Server) buildRoutes() *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	// CORS - allow credentials for auth cookies (explicit origins only)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.corsOrigins(),
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health checks (no auth required)
	hc := NewHealthChecker(s.db, s.redisClient, s.resolver, s.store)
	r.Get("/health", hc.HandleHealth)
	r.Get("/health/live", hc.HandleLiveness)
	r.Get("/health/ready", hc.HandleReadiness)

	// Auth routes (no auth required)
	if s.authManager != nil {
		r.Get("/auth/login", s.authManager.HandleLogin)
		r.Get("/auth/callback", s.authManager.HandleCallback)
		r.Get("/auth/logout", s.authManager.HandleLogout)
		r.Get("/auth/user", s.authManager.HandleUserInfo)
	}

	// Generated artifacts, resolved per requesting host
	r.Get("/feed.xml", s.handleBlogFeed)
	r.Get("/podcast.xml", s.handlePodcastFeed)
	r.Get("/sitemap.xml", s.handleSitemap)
	r.Get("/robots.txt", s.handleRobots)

	r.Route("/api/v1", func(r chi.Router) {
		// Analytics beacons (public, called from site JavaScript)
		r.With(s.rateLimit("events", s.cfg.RateLimit.EventsPerMinute)).
			Post("/events", s.events.HandleSiteEvent)
		r.Get("/events/beacon", s.events.HandleBeacon)

		// Content read API (public, consumed at build time by the sites)
		r.Route("/content/{site}", func(r chi.Router) {
			r.Get("/posts", s.handleListPosts)
			r.Get("/posts/{slug}", s.handleGetPost)
			r.Get("/episodes", s.handleListEpisodes)
			r.Get("/episodes/{slug}", s.handleGetEpisode)
			r.Get("/campaigns", s.handleListCampaigns)
			r.Get("/coupons", s.handleListCoupons)
		})

		// Redirect map export (same payload as the redirects.json artifact)
		r.Get("/redirects/{site}", s.handleRedirectExport)

		// Admin API (protected when auth is configured)
		r.Route("/admin", func(r chi.Router) {
			if s.authManager != nil {
				r.Use(s.authManager.RequireAuth)
			}
			r.Get("/redirects", s.handleListRedirects)
			r.Post("/redirects", s.handleCreateRedirect)
			r.Get("/redirects/{id}", s.handleGetRedirect)
			r.Put("/redirects/{id}", s.handleUpdateRedirect)
			r.Delete("/redirects/{id}", s.handleDeleteRedirect)
			r.Get("/table", s.handleTableStats)
			r.Get("/stats/{site}/daily", s.handleDailyStats)
			r.Get("/stats/{site}/top", s.handleTopPaths)
			r.Get("/stats/{site}/events", s.handleEventStats)
			r.Post("/sync", s.handleTriggerSync)
		})
	})

	// Short links and the redirect catch-all
	limited := s.rateLimit("redirect", s.cfg.RateLimit.RedirectsPerMinute)
	r.With(limited).Get("/go/{slug}", s.handleShortLink)
	r.With(limited).Get("/*", s.handleRedirect)

	return r
}

// corsOrigins allows each site's canonical origin plus local dev servers.
func (s *Server) corsOrigins() []string {
	origins := make([]string, 0, len(s.cfg.Sites)+2)
	for _, site := range s.cfg.Sites {
		if site.BaseURL != "" {
			origins = append(origins, site.BaseURL)
		}
	}
	origins = append(origins, "http://localhost:4321", "http://localhost:3000")
	return origins
}

// rateLimit wraps a route group with per-IP limiting. A nil limiter or a
// disabled config turns it into a pass-through.
func (s *Server) rateLimit(scope string, perMinute int) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if s.limiter == nil || !s.cfg.RateLimit.Enabled {
				next.ServeHTTP(w, req)
				return
			}
			allowed, retryAfter := s.limiter.Allow(req.Context(), scope, httputil.ClientIP(req), perMinute)
			if !allowed {
				httputil.TooManyRequests(w, int(retryAfter/time.Second)+1)
				return
			}
			next.ServeHTTP(w, req)
		})
	}
}

// requestLogger logs one structured line per request.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, req.ProtoMajor)
		next.ServeHTTP(ww, req)
		logger.Info("http request",
			"method", req.Method,
			"path", req.URL.Path,
			"host", req.Host,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start).String(),
			"ip", logger.RedactIP(httputil.ClientIP(req)),
		)
	})
}
