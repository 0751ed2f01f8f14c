package api

import (
	"database/sql"

	"github.com/redis/go-redis/v9"

	"github.com/ignite/promo-gateway/internal/auth"
	"github.com/ignite/promo-gateway/internal/hits"
	"github.com/ignite/promo-gateway/internal/ratelimit"
	"github.com/ignite/promo-gateway/internal/service/redirects"
)

// The Set* methods attach optional subsystems. Call them before the
// first call to Handler; routes are built once.

// SetRedirectService wires the managed redirect CRUD service.
func (s *Server) SetRedirectService(svc *redirects.Service) {
	s.redirectSvc = svc
}

// SetAuthManager enables Google OAuth on /auth/* and protects the admin API.
func (s *Server) SetAuthManager(m *auth.Manager) {
	s.authManager = m
}

// SetRateLimiter enables per-IP rate limiting on the redirect and event routes.
func (s *Server) SetRateLimiter(l *ratelimit.Limiter) {
	s.limiter = l
}

// SetDeduper enables short-window duplicate suppression for site events.
func (s *Server) SetDeduper(d *hits.Deduper) {
	s.deduper = d
}

// SetStatsSource wires the hit statistics backend for the admin API.
func (s *Server) SetStatsSource(src StatsSource) {
	s.stats = src
}

// SetDB wires the database handle used by health checks.
func (s *Server) SetDB(db *sql.DB) {
	s.db = db
}

// SetRedisClient wires the Redis client used by health checks.
func (s *Server) SetRedisClient(client *redis.Client) {
	s.redisClient = client
}

// SetSyncTrigger wires the content sync worker's manual trigger.
func (s *Server) SetSyncTrigger(fn func()) {
	s.triggerSync = fn
}
