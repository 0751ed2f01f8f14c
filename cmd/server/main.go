package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/ignite/promo-gateway/internal/api"
	"github.com/ignite/promo-gateway/internal/auth"
	"github.com/ignite/promo-gateway/internal/config"
	"github.com/ignite/promo-gateway/internal/content"
	"github.com/ignite/promo-gateway/internal/feeds"
	"github.com/ignite/promo-gateway/internal/hits"
	"github.com/ignite/promo-gateway/internal/pkg/distlock"
	"github.com/ignite/promo-gateway/internal/publish"
	"github.com/ignite/promo-gateway/internal/ratelimit"
	"github.com/ignite/promo-gateway/internal/redirect"
	"github.com/ignite/promo-gateway/internal/repository/postgres"
	"github.com/ignite/promo-gateway/internal/service/redirects"
	"github.com/ignite/promo-gateway/internal/worker"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/redis/go-redis/v9"
)

// checkPortAvailable verifies that the target port is not already in use.
// This prevents confusion from stale/stub processes occupying the port.
func checkPortAvailable(host string, port int) error {
	addr := fmt.Sprintf("%s:%d", host, port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("port %d is already in use (addr %s): %v\n"+
			"  Hint: Run 'lsof -i :%d' to find the blocking process", port, addr, err, port)
	}
	ln.Close()
	return nil
}

func extractHost(dsn string) string {
	at := strings.Index(dsn, "@")
	if at < 0 {
		return "(unknown)"
	}
	rest := dsn[at+1:]
	slash := strings.Index(rest, "/")
	if slash >= 0 {
		rest = rest[:slash]
	}
	return rest
}

func main() {
	log.Println("╔════════════════════════════════════════════════════════════╗")
	log.Println("║  IGNITE Promo Gateway (cmd/server/main.go)                ║")
	log.Println("║  Multi-site redirects, content APIs and hit analytics     ║")
	log.Println("╚════════════════════════════════════════════════════════════╝")

	// Load configuration
	cfg, err := config.LoadFromEnv("config/config.yaml")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if os.Getenv("DATABASE_URL") != "" {
		log.Println("[config] DATABASE_URL env override active")
	}

	// Pre-flight check: verify the target port is available
	host := cfg.Server.GetHost()
	port := cfg.Server.Port
	if port == 0 {
		port = 8080
	}
	if err := checkPortAvailable(host, port); err != nil {
		log.Fatalf("Pre-flight check FAILED: %v", err)
	}
	log.Printf("Pre-flight check passed: port %d is available", port)

	// Core serving state. Everything else hangs off these four.
	store := content.NewStore()
	resolver := redirect.NewResolver()
	artifacts := publish.NewCache()
	loader := content.NewLoader(cfg.Content, cfg.Sites)

	ctx, cancel := context.WithCancel(context.Background())

	// Connect Redis if configured (rate limiting, event dedup, distributed locks)
	var redisClient *redis.Client
	redisURL := os.Getenv("REDIS_URL")
	if redisURL == "" {
		redisURL = cfg.Redis.URL
	}
	if redisURL != "" {
		opts, err := redis.ParseURL(redisURL)
		if err != nil {
			redisClient = redis.NewClient(&redis.Options{Addr: redisURL})
		} else {
			redisClient = redis.NewClient(opts)
		}
		pingCtx, pingCancel := context.WithTimeout(ctx, 3*time.Second)
		if err := redisClient.Ping(pingCtx).Err(); err != nil {
			log.Printf("Warning: Redis connection failed (%s): %v — rate limiting and event dedup disabled", redisURL, err)
			redisClient.Close()
			redisClient = nil
		} else {
			log.Printf("Redis connected: %s", redisURL)
		}
		pingCancel()
	} else {
		log.Println("Redis not configured (REDIS_URL not set) — rate limiting and event dedup disabled")
	}

	// Connect PostgreSQL if configured (managed redirects, hit storage, stats)
	var db *sql.DB
	if cfg.Database.URL != "" {
		dbURL := cfg.Database.URL
		sep := "?"
		if strings.Contains(dbURL, "?") {
			sep = "&"
		}
		if !strings.Contains(dbURL, "connect_timeout") {
			dbURL += sep + "connect_timeout=5"
			sep = "&"
		}
		dbURL += sep + "options=-c%20statement_timeout%3D15000%20-c%20idle_in_transaction_session_timeout%3D15000"
		log.Printf("DB URL host portion: ...@%s/...", extractHost(dbURL))

		db, err = sql.Open("postgres", dbURL)
		if err != nil {
			log.Printf("Warning: Failed to open database: %v — managed redirects and analytics disabled", err)
			db = nil
		} else {
			db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
			db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
			db.SetConnMaxLifetime(cfg.Database.ConnMaxLifetime())
			db.SetConnMaxIdleTime(30 * time.Second)

			pingCtx, pingCancel := context.WithTimeout(ctx, 3*time.Second)
			if err := db.PingContext(pingCtx); err != nil {
				log.Printf("Warning: Database ping failed: %v — continuing, queries will retry", err)
			} else {
				log.Println("Database connected successfully")
			}
			pingCancel()
		}
	} else {
		log.Println("Database not configured (DATABASE_URL not set) — managed redirects and analytics disabled")
	}

	// Hit publisher: SQS when a queue is configured, direct Postgres
	// writes otherwise. Without either, hits are counted and dropped.
	var publisher hits.Publisher = hits.NopPublisher{}
	var sqsClient *sqs.Client
	var hitRepo *postgres.HitRepo
	if db != nil {
		hitRepo = postgres.NewHitRepo(db)
	}
	if cfg.Analytics.QueueURL != "" {
		var awsOpts []func(*awsconfig.LoadOptions) error
		if cfg.Analytics.Region != "" {
			awsOpts = append(awsOpts, awsconfig.WithRegion(cfg.Analytics.Region))
		}
		if cfg.Analytics.AWSProfile != "" {
			awsOpts = append(awsOpts, awsconfig.WithSharedConfigProfile(cfg.Analytics.AWSProfile))
		}
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsOpts...)
		if err != nil {
			log.Printf("Warning: AWS config for SQS failed: %v — falling back to direct writes", err)
		} else {
			sqsClient = sqs.NewFromConfig(awsCfg)
			publisher = hits.NewSQSPublisher(sqsClient, cfg.Analytics.QueueURL)
			log.Printf("Hit publisher: SQS (queue=%s)", cfg.Analytics.QueueURL)
		}
	}
	if sqsClient == nil {
		if hitRepo != nil {
			publisher = hits.NewStorePublisher(hitRepo)
			log.Println("Hit publisher: direct Postgres writes")
		} else {
			log.Println("Hit publisher: none configured — hits are dropped")
		}
	}

	// Initialize authentication manager if enabled
	var authManager *auth.Manager
	if cfg.Auth.Enabled && cfg.Auth.GoogleClientID != "" {
		// Determine base URL for OAuth callbacks
		baseURL := fmt.Sprintf("http://%s:%d", cfg.Server.GetHost(), cfg.Server.Port)
		// On ECS, callbacks go through the default site's public URL
		if os.Getenv("ECS_CONTAINER_METADATA_URI") != "" {
			if site := cfg.Site(cfg.DefaultSite); site != nil {
				baseURL = site.BaseURL
			}
		}
		// Allow override via environment variable
		if envURL := os.Getenv("AUTH_BASE_URL"); envURL != "" {
			baseURL = envURL
		}

		authManager = auth.NewManager(&cfg.Auth, baseURL, cfg.Server.DevMode)

		if cfg.Server.DevMode {
			log.Println("Auth in dev mode: every request gets a synthetic admin session")
		} else {
			// Pre-flight: validate OAuth credentials against Google before
			// accepting traffic, instead of surfacing misconfiguration at
			// first login.
			log.Println("Validating Google OAuth credentials...")
			if err := authManager.ValidateCredentials(context.Background()); err != nil {
				log.Fatalf("OAuth pre-flight FAILED: %v", err)
			}
			log.Println("Google OAuth credentials validated successfully")
		}

		authManager.StartSessionCleanup(ctx)
		log.Printf("Google OAuth enabled for domain: %s (callback: %s/auth/callback)", cfg.Auth.AllowedDomain, baseURL)
	} else {
		log.Println("Authentication disabled — admin API is open")
	}

	// Initialize API server and attach the optional subsystems before the
	// first Handler() call builds the routes.
	server := api.NewServer(cfg, store, resolver, publisher, artifacts)
	server.SetAuthManager(authManager)
	if redisClient != nil {
		server.SetRedisClient(redisClient)
		server.SetRateLimiter(ratelimit.NewLimiter(redisClient))
		server.SetDeduper(hits.NewDeduper(redisClient, cfg.Analytics.DedupWindow()))
	}

	// Managed redirects and stats need the database
	var redirectSvc *redirects.Service
	if db != nil {
		server.SetDB(db)
		redirectSvc = redirects.NewService(postgres.NewRedirectRepo(db), cfg.SiteKeys())
		server.SetRedirectService(redirectSvc)
		server.SetStatsSource(hitRepo)
	}

	// CDN publisher for generated artifacts
	var cdnPublisher *publish.Publisher
	if cfg.Publish.Enabled && cfg.Publish.S3Bucket != "" {
		lock := distlock.NewLock(redisClient, db, "gateway:publish", 2*time.Minute)
		cdnPublisher, err = publish.New(ctx, cfg.Publish, lock)
		if err != nil {
			log.Printf("Warning: CDN publisher init failed: %v — artifacts served from memory only", err)
		} else {
			log.Printf("CDN publishing enabled (bucket=%s)", cfg.Publish.S3Bucket)
		}
	} else {
		log.Println("CDN publishing not configured — artifacts served from memory only")
	}

	// Start Sync Worker (loads content, rebuilds the redirect table,
	// regenerates artifacts). The initial cycle runs before the first
	// request can hit an empty table.
	syncWorker := worker.NewSyncWorker(cfg, loader, store, resolver, artifacts)
	if redirectSvc != nil {
		syncWorker.SetManagedSource(redirectSvc)
	}
	if cdnPublisher != nil {
		syncWorker.SetPublisher(cdnPublisher)
	}
	syncWorker.Start()
	server.SetSyncTrigger(syncWorker.Trigger)

	// Watch the content tree for edits and resync on change
	if cfg.Content.Watch {
		watcher := content.NewWatcher(cfg.Content.Root, syncWorker.Trigger)
		if err := watcher.Start(ctx); err != nil {
			log.Printf("Warning: content watcher failed: %v — relying on interval sync", err)
		}
	}

	// Start Feed Poller for sites that ingest an external podcast feed
	var feedPoller *worker.FeedPoller
	podcastSites := 0
	for i := range cfg.Sites {
		if cfg.Sites[i].PodcastFeed != "" {
			podcastSites++
		}
	}
	if podcastSites > 0 {
		ingester := feeds.NewIngester(cfg.Feeds.Timeout())
		feedPoller = worker.NewFeedPoller(cfg, ingester, store)
		feedPoller.Start()
		log.Printf("Feed Poller started (%d sites with podcast feeds)", podcastSites)
	} else {
		log.Println("Feed Poller not started (no site declares a podcast feed)")
	}

	// Start SQS hit consumer (drains the queue into Postgres)
	var consumer *hits.Consumer
	if sqsClient != nil && hitRepo != nil {
		consumer = hits.NewConsumer(sqsClient, cfg.Analytics.QueueURL, hitRepo, hits.NewForwarder(cfg.Analytics.ForwardURL))
		consumer.Start(ctx)
	}

	// Start Rollup and Cleanup workers (daily aggregates + retention)
	if hitRepo != nil {
		rollup := worker.NewRollupWorker(hitRepo, distlock.NewLock(redisClient, db, "gateway:rollup", 10*time.Minute))
		go rollup.Start(ctx)

		cleanup := worker.NewCleanupWorker(hitRepo, cfg.Analytics.RetentionDays)
		go cleanup.Start(ctx)
	}

	// Ensure workers stop on shutdown
	go func() {
		<-ctx.Done()
		syncWorker.Stop()
		if feedPoller != nil {
			feedPoller.Stop()
		}
		if consumer != nil {
			consumer.Stop()
		}
		if redisClient != nil {
			redisClient.Close()
		}
	}()

	// Setup graceful shutdown
	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Printf("Starting server on %s:%d (%d sites)", host, port, len(cfg.Sites))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	log.Println("All services initialized — gateway is ready")

	<-done
	log.Println("Shutting down...")

	// Cancel background tasks
	cancel()

	// Graceful shutdown with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}

	if db != nil {
		db.Close()
	}

	log.Println("Server stopped")
}
