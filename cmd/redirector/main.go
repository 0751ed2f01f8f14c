// The redirector is the stripped-down edge build of the gateway: it
// serves redirects, feeds and sitemaps straight from memory and ships
// hits to SQS. No database, no Redis, no admin API. Run it close to the
// traffic; run cmd/server somewhere with a database to drain the queue.
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/ignite/promo-gateway/internal/api"
	"github.com/ignite/promo-gateway/internal/config"
	"github.com/ignite/promo-gateway/internal/content"
	"github.com/ignite/promo-gateway/internal/hits"
	"github.com/ignite/promo-gateway/internal/publish"
	"github.com/ignite/promo-gateway/internal/redirect"
	"github.com/ignite/promo-gateway/internal/worker"
)

func main() {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config/config.yaml"
	}
	cfg, err := config.LoadFromEnv(configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	var publisher hits.Publisher = hits.NopPublisher{}
	if cfg.Analytics.QueueURL != "" {
		var awsOpts []func(*awsconfig.LoadOptions) error
		if cfg.Analytics.Region != "" {
			awsOpts = append(awsOpts, awsconfig.WithRegion(cfg.Analytics.Region))
		}
		awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(), awsOpts...)
		if err != nil {
			log.Fatalf("aws config: %v", err)
		}
		publisher = hits.NewSQSPublisher(sqs.NewFromConfig(awsCfg), cfg.Analytics.QueueURL)
		log.Printf("hits go to SQS (queue=%s)", cfg.Analytics.QueueURL)
	} else {
		log.Println("ANALYTICS_QUEUE_URL not set — hits are dropped")
	}

	store := content.NewStore()
	resolver := redirect.NewResolver()
	artifacts := publish.NewCache()
	loader := content.NewLoader(cfg.Content, cfg.Sites)

	ctx, cancel := context.WithCancel(context.Background())

	syncWorker := worker.NewSyncWorker(cfg, loader, store, resolver, artifacts)
	syncWorker.Start()

	if cfg.Content.Watch {
		watcher := content.NewWatcher(cfg.Content.Root, syncWorker.Trigger)
		if err := watcher.Start(ctx); err != nil {
			log.Printf("content watcher failed: %v — relying on interval sync", err)
		}
	}

	server := api.NewServer(cfg, store, resolver, publisher, artifacts)
	server.SetSyncTrigger(syncWorker.Trigger)

	go func() {
		log.Printf("redirector listening on :%d (%d sites)", cfg.Server.Port, len(cfg.Sites))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("shutting down redirector...")

	cancel()
	syncWorker.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	server.Shutdown(shutdownCtx)
}
