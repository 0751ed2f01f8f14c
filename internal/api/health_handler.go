package api

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ignite/promo-gateway/internal/content"
	"github.com/ignite/promo-gateway/internal/pkg/httputil"
	"github.com/ignite/promo-gateway/internal/redirect"
)

// HealthStatus represents the overall health of the system.
type HealthStatus struct {
	Status  string                    `json:"status"` // "healthy", "degraded", "unhealthy"
	Version string                    `json:"version"`
	Uptime  string                    `json:"uptime"`
	Checks  map[string]ComponentCheck `json:"checks"`
}

// ComponentCheck represents the health of a single component.
type ComponentCheck struct {
	Status  string `json:"status"` // "up", "down", "degraded"
	Latency string `json:"latency,omitempty"`
	Message string `json:"message,omitempty"`
}

// HealthChecker provides health check functionality for the gateway's
// dependencies (DB, Redis, content store, redirect table).
type HealthChecker struct {
	db          *sql.DB
	redisClient *redis.Client
	resolver    *redirect.Resolver
	store       *content.Store
	startTime   time.Time
}

// NewHealthChecker creates a new HealthChecker. The database and Redis
// client can be nil; their checks report "not configured".
func NewHealthChecker(db *sql.DB, redisClient *redis.Client, resolver *redirect.Resolver, store *content.Store) *HealthChecker {
	return &HealthChecker{
		db:          db,
		redisClient: redisClient,
		resolver:    resolver,
		store:       store,
		startTime:   time.Now(),
	}
}

const healthVersion = "1.0.0"

// HandleHealth returns the health status of all components.
// Overall status is "healthy" if all checks pass, "degraded" if any are
// degraded or non-critical ones are down, and "unhealthy" if critical
// components are down.
//
//	GET /health
func (hc *HealthChecker) HandleHealth(w http.ResponseWriter, r *http.Request) {
	checks := hc.runAllChecks(r.Context())

	status := HealthStatus{
		Status:  determineOverallStatus(checks),
		Version: healthVersion,
		Uptime:  formatUptime(time.Since(hc.startTime)),
		Checks:  checks,
	}

	// Always return 200 for the general health endpoint.
	// The status field in the JSON body conveys health.
	// Use /health/ready for probes that need HTTP 503 on failure.
	httputil.JSON(w, http.StatusOK, status)
}

// HandleLiveness is a simple liveness probe — always returns 200 if the
// server process is running.
//
//	GET /health/live
func (hc *HealthChecker) HandleLiveness(w http.ResponseWriter, r *http.Request) {
	httputil.JSON(w, http.StatusOK, map[string]interface{}{
		"status": "alive",
		"uptime": formatUptime(time.Since(hc.startTime)),
	})
}

// HandleReadiness checks all critical dependencies and returns 200 only
// when the gateway can answer redirects. Suitable for readiness probes.
//
//	GET /health/ready
func (hc *HealthChecker) HandleReadiness(w http.ResponseWriter, r *http.Request) {
	checks := hc.runAllChecks(r.Context())
	overall := determineOverallStatus(checks)

	ready := overall != "unhealthy"
	httpStatus := http.StatusOK
	if !ready {
		httpStatus = http.StatusServiceUnavailable
	}

	httputil.JSON(w, httpStatus, map[string]interface{}{
		"ready":  ready,
		"status": overall,
		"checks": checks,
	})
}

// ---------------------------------------------------------------------------
// Individual component checks
// ---------------------------------------------------------------------------

func (hc *HealthChecker) runAllChecks(ctx context.Context) map[string]ComponentCheck {
	checks := make(map[string]ComponentCheck, 4)

	// Network-bound checks run concurrently for minimal total latency.
	type result struct {
		name  string
		check ComponentCheck
	}
	ch := make(chan result, 2)

	go func() { ch <- result{"database", hc.checkDatabase(ctx)} }()
	go func() { ch <- result{"redis", hc.checkRedis(ctx)} }()

	for i := 0; i < 2; i++ {
		r := <-ch
		checks[r.name] = r.check
	}

	// In-memory checks are instant.
	checks["content"] = hc.checkContent()
	checks["redirects"] = hc.checkResolver()

	return checks
}

// checkDatabase pings PostgreSQL with a 3-second timeout.
func (hc *HealthChecker) checkDatabase(ctx context.Context) ComponentCheck {
	if hc.db == nil {
		return ComponentCheck{Status: "down", Message: "not configured"}
	}

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	start := time.Now()
	err := hc.db.PingContext(pingCtx)
	latency := time.Since(start)

	if err != nil {
		return ComponentCheck{
			Status:  "down",
			Latency: latency.String(),
			Message: fmt.Sprintf("ping failed: %v", err),
		}
	}

	status := "up"
	msg := "connected"
	if latency > 1*time.Second {
		status = "degraded"
		msg = fmt.Sprintf("slow response (%s)", latency)
	}

	return ComponentCheck{
		Status:  status,
		Latency: latency.String(),
		Message: msg,
	}
}

// checkRedis pings Redis with a 2-second timeout.
func (hc *HealthChecker) checkRedis(ctx context.Context) ComponentCheck {
	if hc.redisClient == nil {
		return ComponentCheck{Status: "down", Message: "not configured"}
	}

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	start := time.Now()
	err := hc.redisClient.Ping(pingCtx).Err()
	latency := time.Since(start)

	if err != nil {
		return ComponentCheck{
			Status:  "down",
			Latency: latency.String(),
			Message: fmt.Sprintf("ping failed: %v", err),
		}
	}

	status := "up"
	msg := "connected"
	if latency > 500*time.Millisecond {
		status = "degraded"
		msg = fmt.Sprintf("slow response (%s)", latency)
	}

	return ComponentCheck{
		Status:  status,
		Latency: latency.String(),
		Message: msg,
	}
}

// checkContent reports whether the content store holds a usable snapshot.
func (hc *HealthChecker) checkContent() ComponentCheck {
	if hc.store == nil {
		return ComponentCheck{Status: "down", Message: "not configured"}
	}

	snap := hc.store.Snapshot()
	if snap == nil || len(snap.Sites) == 0 {
		return ComponentCheck{Status: "down", Message: "no content loaded"}
	}

	return ComponentCheck{
		Status:  "up",
		Message: fmt.Sprintf("%d sites, loaded %s ago", len(snap.Sites), time.Since(snap.LoadedAt).Round(time.Second)),
	}
}

// checkResolver reports whether a redirect table has been built.
func (hc *HealthChecker) checkResolver() ComponentCheck {
	if hc.resolver == nil {
		return ComponentCheck{Status: "down", Message: "not configured"}
	}

	stats := hc.resolver.Stats()
	if stats.Sites == 0 {
		return ComponentCheck{Status: "down", Message: "no redirect table built"}
	}

	return ComponentCheck{
		Status:  "up",
		Message: fmt.Sprintf("%d entries across %d sites, built %s ago", stats.Entries, stats.Sites, time.Since(stats.BuiltAt).Round(time.Second)),
	}
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

// determineOverallStatus derives the aggregate status from individual checks.
//
// Rules:
//   - "unhealthy" if content or redirects are down — the gateway cannot
//     answer requests without them
//   - "unhealthy" if a configured database is down
//   - "degraded"  if any check is degraded or a non-critical check is down
//   - "healthy"   otherwise
func determineOverallStatus(checks map[string]ComponentCheck) string {
	for _, name := range []string{"content", "redirects"} {
		if c, ok := checks[name]; ok && c.Status == "down" {
			return "unhealthy"
		}
	}

	// Database down only matters when one is configured.
	if db, ok := checks["database"]; ok && db.Status == "down" {
		if db.Message != "not configured" {
			return "unhealthy"
		}
	}

	for _, c := range checks {
		if c.Status == "degraded" {
			return "degraded"
		}
		if c.Status == "down" && c.Message != "not configured" {
			return "degraded"
		}
	}

	return "healthy"
}

// formatUptime produces a human-readable uptime string like "3d 4h 12m 5s".
func formatUptime(d time.Duration) string {
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	minutes := int(d.Minutes()) % 60
	seconds := int(d.Seconds()) % 60

	if days > 0 {
		return fmt.Sprintf("%dd %dh %dm %ds", days, hours, minutes, seconds)
	}
	if hours > 0 {
		return fmt.Sprintf("%dh %dm %ds", hours, minutes, seconds)
	}
	if minutes > 0 {
		return fmt.Sprintf("%dm %ds", minutes, seconds)
	}
	return fmt.Sprintf("%ds", seconds)
}
