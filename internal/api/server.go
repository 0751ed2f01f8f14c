package api

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"

	"github.com/ignite/promo-gateway/internal/auth"
	"github.com/ignite/promo-gateway/internal/config"
	"github.com/ignite/promo-gateway/internal/content"
	"github.com/ignite/promo-gateway/internal/domain"
	"github.com/ignite/promo-gateway/internal/hits"
	"github.com/ignite/promo-gateway/internal/publish"
	"github.com/ignite/promo-gateway/internal/ratelimit"
	"github.com/ignite/promo-gateway/internal/redirect"
	"github.com/ignite/promo-gateway/internal/service/redirects"
)

// StatsSource provides aggregate hit statistics for the admin API.
// *postgres.HitRepo satisfies it.
type StatsSource interface {
	DailyHits(ctx context.Context, site string, days int) ([]domain.DailyHits, error)
	TopPaths(ctx context.Context, site string, days int, limit int) ([]domain.TopPath, error)
	EventCounts(ctx context.Context, site string, days int) ([]domain.EventCount, error)
}

// Server hosts the public redirect surface, the content and feed
// endpoints, and the admin API for managed redirects and stats.
type Server struct {
	cfg       *config.Config
	store     *content.Store
	resolver  *redirect.Resolver
	publisher hits.Publisher
	artifacts *publish.Cache

	redirectSvc *redirects.Service
	authManager *auth.Manager
	limiter     *ratelimit.Limiter
	deduper     *hits.Deduper
	stats       StatsSource
	db          *sql.DB
	redisClient *redis.Client
	triggerSync func()

	events *SiteEventsHandler

	buildOnce sync.Once
	router    *chi.Mux
	server    *http.Server
}

// NewServer wires the core dependencies. Optional subsystems (database,
// redis, auth, managed redirects) are attached through the Set* methods
// before the first call to Handler.
func NewServer(cfg *config.Config, store *content.Store, resolver *redirect.Resolver, publisher hits.Publisher, artifacts *publish.Cache) *Server {
	if publisher == nil {
		publisher = hits.NopPublisher{}
	}
	if artifacts == nil {
		artifacts = publish.NewCache()
	}
	return &Server{
		cfg:       cfg,
		store:     store,
		resolver:  resolver,
		publisher: publisher,
		artifacts: artifacts,
	}
}

// Handler returns the HTTP handler, building the route table on first use.
func (s *Server) Handler() http.Handler {
	s.buildOnce.Do(func() {
		s.events = NewSiteEventsHandler(s.cfg, s.publisher, s.deduper)
		s.router = s.buildRoutes()
	})
	return s.router
}

// ListenAndServe starts the HTTP server on the configured port and
// blocks until it exits.
func (s *Server) ListenAndServe() error {
	addr := fmt.Sprintf(":%d", s.cfg.Server.Port)
	s.server = &http.Server{
		Addr:    addr,
		Handler: s.Handler(),
		// Redirect responses are tiny; tight timeouts keep slow clients
		// from pinning connections open.
		ReadTimeout:       30 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}
