package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultTimezone is the zone promo windows are evaluated in when a site
// does not override it. The whole network runs on Pacific time.
const DefaultTimezone = "America/Los_Angeles"

// Config holds all configuration for the gateway.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Content   ContentConfig   `yaml:"content"`
	Analytics AnalyticsConfig `yaml:"analytics"`
	Feeds     FeedsConfig     `yaml:"feeds"`
	Publish   PublishConfig   `yaml:"publish"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Auth      AuthConfig      `yaml:"auth"`

	// DefaultSite is the site served for hosts not in the registry
	// (bare IPs, load balancer health checks).
	DefaultSite string       `yaml:"default_site"`
	Sites       []SiteConfig `yaml:"sites"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port    int    `yaml:"port"`
	Host    string `yaml:"host"`
	DevMode bool   `yaml:"dev_mode"`
}

// GetHost returns the server host, with ECS detection.
func (c ServerConfig) GetHost() string {
	// On ECS/container, listen on all interfaces
	if os.Getenv("ECS_CONTAINER_METADATA_URI") != "" || os.Getenv("AWS_EXECUTION_ENV") != "" {
		return "0.0.0.0"
	}
	// Allow override via environment
	if host := os.Getenv("SERVER_HOST"); host != "" {
		return host
	}
	return c.Host
}

// DatabaseConfig holds Postgres connection settings.
type DatabaseConfig struct {
	URL                 string `yaml:"url"`
	MaxOpenConns        int    `yaml:"max_open_conns"`
	MaxIdleConns        int    `yaml:"max_idle_conns"`
	ConnMaxLifetimeMins int    `yaml:"conn_max_lifetime_mins"`
}

// ConnMaxLifetime returns the configured connection lifetime as a duration.
func (c DatabaseConfig) ConnMaxLifetime() time.Duration {
	return time.Duration(c.ConnMaxLifetimeMins) * time.Minute
}

// RedisConfig holds Redis connection settings. Redis backs rate limiting,
// beacon dedup, and the publish lock; the gateway runs without it.
type RedisConfig struct {
	URL string `yaml:"url"`
}

// ContentConfig holds the content tree settings.
type ContentConfig struct {
	Root                string `yaml:"root"`
	StaticRedirectsFile string `yaml:"static_redirects_file"`
	SyncIntervalSeconds int    `yaml:"sync_interval_seconds"`
	Watch               bool   `yaml:"watch"`
}

// SyncInterval returns the rescan interval as a duration.
func (c ContentConfig) SyncInterval() time.Duration {
	return time.Duration(c.SyncIntervalSeconds) * time.Second
}

// AnalyticsConfig holds the hit pipeline settings. With no queue URL the
// publisher writes straight to Postgres; with neither configured the
// gateway warns once and serves redirects without recording.
type AnalyticsConfig struct {
	QueueURL           string `yaml:"queue_url"`
	Region             string `yaml:"region"`
	AWSProfile         string `yaml:"aws_profile"`
	RetentionDays      int    `yaml:"retention_days"`
	DedupWindowSeconds int    `yaml:"dedup_window_seconds"`
	ForwardURL         string `yaml:"forward_url"`
}

// DedupWindow returns the beacon dedup window as a duration.
func (c AnalyticsConfig) DedupWindow() time.Duration {
	return time.Duration(c.DedupWindowSeconds) * time.Second
}

// FeedsConfig holds remote podcast feed ingestion settings.
type FeedsConfig struct {
	PollIntervalMinutes int `yaml:"poll_interval_minutes"`
	TimeoutSeconds      int `yaml:"timeout_seconds"`
}

// PollInterval returns the ingestion poll interval as a duration.
func (c FeedsConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMinutes) * time.Minute
}

// Timeout returns the feed fetch timeout as a duration.
func (c FeedsConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// PublishConfig holds artifact publishing settings (S3 + CloudFront).
type PublishConfig struct {
	Enabled        bool   `yaml:"enabled"`
	S3Bucket       string `yaml:"s3_bucket"`
	S3Region       string `yaml:"s3_region"`
	AWSProfile     string `yaml:"aws_profile"` // Empty string uses default credential chain (IAM role on ECS)
	AccessKey      string `yaml:"access_key"`  // Static credentials for non-AWS hosts; leave empty on ECS
	SecretKey      string `yaml:"secret_key"`
	DistributionID string `yaml:"distribution_id"`
}

// GetAWSProfile returns the AWS profile, with environment variable override.
func (c PublishConfig) GetAWSProfile() string {
	if envProfile := os.Getenv("AWS_PROFILE_OVERRIDE"); envProfile != "" {
		if envProfile == "none" || envProfile == "iam" {
			return "" // Use default credential chain (IAM role)
		}
		return envProfile
	}
	// On ECS/Lambda, don't use a profile - use IAM role
	if os.Getenv("ECS_CONTAINER_METADATA_URI") != "" || os.Getenv("AWS_EXECUTION_ENV") != "" {
		return ""
	}
	return c.AWSProfile
}

// RateLimitConfig holds per-IP request limits for the public endpoints.
// Limits are enforced in Redis across instances and fail open.
type RateLimitConfig struct {
	Enabled            bool `yaml:"enabled"`
	RedirectsPerMinute int  `yaml:"redirects_per_minute"`
	EventsPerMinute    int  `yaml:"events_per_minute"`
}

// AuthConfig holds Google OAuth authentication configuration for the
// admin API.
type AuthConfig struct {
	Enabled            bool   `yaml:"enabled"`
	GoogleClientID     string `yaml:"google_client_id"`
	GoogleClientSecret string `yaml:"google_client_secret"`
	AllowedDomain      string `yaml:"allowed_domain"`
	SessionSecret      string `yaml:"session_secret"`
	CookieName         string `yaml:"cookie_name"`
	CookieMaxAge       int    `yaml:"cookie_max_age"`
}

// SiteConfig describes one site in the network.
type SiteConfig struct {
	Key         string   `yaml:"key"`
	Hostnames   []string `yaml:"hostnames"`
	BaseURL     string   `yaml:"base_url"`
	Title       string   `yaml:"title"`
	Description string   `yaml:"description"`
	Language    string   `yaml:"language"`
	Timezone    string   `yaml:"timezone"`
	PodcastFeed string   `yaml:"podcast_feed"` // remote feed to ingest episodes from
	StaticPages []string `yaml:"static_pages"` // extra sitemap paths ("/about", "/contact")
}

// Location returns the timezone promo windows are evaluated in for this
// site. Falls back to the network default, then UTC.
func (s SiteConfig) Location() *time.Location {
	if s.Timezone != "" {
		if loc, err := time.LoadLocation(s.Timezone); err == nil {
			return loc
		}
	}
	if loc, err := time.LoadLocation(DefaultTimezone); err == nil {
		return loc
	}
	return time.UTC
}

// Site returns the site with the given key, or nil.
func (c *Config) Site(key string) *SiteConfig {
	for i := range c.Sites {
		if c.Sites[i].Key == key {
			return &c.Sites[i]
		}
	}
	return nil
}

// SiteByHost resolves a request Host header (port stripped, case folded)
// to a site, falling back to the default site.
func (c *Config) SiteByHost(host string) *SiteConfig {
	host = strings.ToLower(host)
	if i := strings.LastIndex(host, ":"); i >= 0 {
		host = host[:i]
	}
	host = strings.TrimPrefix(host, "www.")
	for i := range c.Sites {
		for _, h := range c.Sites[i].Hostnames {
			if strings.TrimPrefix(strings.ToLower(h), "www.") == host {
				return &c.Sites[i]
			}
		}
	}
	return c.Site(c.DefaultSite)
}

// SiteKeys returns every configured site key in registry order.
func (c *Config) SiteKeys() []string {
	keys := make([]string, 0, len(c.Sites))
	for i := range c.Sites {
		keys = append(keys, c.Sites[i].Key)
	}
	return keys
}

// Validate checks the parts of the config that would otherwise fail at
// first use: duplicate site keys and an unknown default site.
func (c *Config) Validate() error {
	seen := make(map[string]bool, len(c.Sites))
	for i := range c.Sites {
		key := c.Sites[i].Key
		if key == "" {
			return fmt.Errorf("site %d: key is required", i)
		}
		if seen[key] {
			return fmt.Errorf("duplicate site key %q", key)
		}
		seen[key] = true
	}
	if c.DefaultSite != "" && !seen[c.DefaultSite] {
		return fmt.Errorf("default_site %q is not a configured site", c.DefaultSite)
	}
	return nil
}

// Load reads and parses the configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	// Set defaults
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 25
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Database.ConnMaxLifetimeMins == 0 {
		cfg.Database.ConnMaxLifetimeMins = 30
	}
	if cfg.Content.Root == "" {
		cfg.Content.Root = "content"
	}
	if cfg.Content.StaticRedirectsFile == "" {
		cfg.Content.StaticRedirectsFile = "redirects.yaml"
	}
	if cfg.Content.SyncIntervalSeconds == 0 {
		cfg.Content.SyncIntervalSeconds = 300
	}
	if cfg.Analytics.RetentionDays == 0 {
		cfg.Analytics.RetentionDays = 90
	}
	if cfg.Analytics.DedupWindowSeconds == 0 {
		cfg.Analytics.DedupWindowSeconds = 30
	}
	if cfg.Analytics.Region == "" {
		cfg.Analytics.Region = "us-west-2"
	}
	if cfg.Feeds.PollIntervalMinutes == 0 {
		cfg.Feeds.PollIntervalMinutes = 30
	}
	if cfg.Feeds.TimeoutSeconds == 0 {
		cfg.Feeds.TimeoutSeconds = 30
	}
	if cfg.Publish.S3Region == "" {
		cfg.Publish.S3Region = "us-west-2"
	}
	if cfg.RateLimit.RedirectsPerMinute == 0 {
		cfg.RateLimit.RedirectsPerMinute = 120
	}
	if cfg.RateLimit.EventsPerMinute == 0 {
		cfg.RateLimit.EventsPerMinute = 60
	}
	if cfg.Auth.CookieName == "" {
		cfg.Auth.CookieName = "gateway_session"
	}
	if cfg.Auth.CookieMaxAge == 0 {
		cfg.Auth.CookieMaxAge = 86400
	}
	if cfg.DefaultSite == "" && len(cfg.Sites) > 0 {
		cfg.DefaultSite = cfg.Sites[0].Key
	}
	for i := range cfg.Sites {
		cfg.Sites[i].BaseURL = strings.TrimRight(cfg.Sites[i].BaseURL, "/")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// LoadFromEnv loads configuration with environment variable overrides.
// It automatically loads a .env file (if present) before reading env vars,
// so secrets can live in .env locally and in real env vars on ECS.
func LoadFromEnv(path string) (*Config, error) {
	// Load .env file if it exists (no error if missing)
	_ = godotenv.Load()

	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	if port := os.Getenv("PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.Server.Port = p
		}
	}
	if v := os.Getenv("DEV_MODE"); v == "true" || v == "1" {
		cfg.Server.DevMode = true
	}
	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		cfg.Database.URL = dbURL
	}
	if redisURL := os.Getenv("REDIS_URL"); redisURL != "" {
		cfg.Redis.URL = redisURL
	}
	if root := os.Getenv("CONTENT_ROOT"); root != "" {
		cfg.Content.Root = root
	}
	if queueURL := os.Getenv("HITS_QUEUE_URL"); queueURL != "" {
		cfg.Analytics.QueueURL = queueURL
	}
	if region := os.Getenv("AWS_REGION"); region != "" {
		cfg.Analytics.Region = region
		cfg.Publish.S3Region = region
	}
	if v := os.Getenv("PUBLISH_S3_BUCKET"); v != "" {
		cfg.Publish.S3Bucket = v
		cfg.Publish.Enabled = true
	}
	if v := os.Getenv("CLOUDFRONT_DISTRIBUTION_ID"); v != "" {
		cfg.Publish.DistributionID = v
	}
	if v := os.Getenv("AWS_PUBLISH_ACCESS_KEY"); v != "" {
		cfg.Publish.AccessKey = v
	}
	if v := os.Getenv("AWS_PUBLISH_SECRET_KEY"); v != "" {
		cfg.Publish.SecretKey = v
	}

	// Auth overrides
	if v := os.Getenv("GOOGLE_CLIENT_ID"); v != "" {
		cfg.Auth.GoogleClientID = v
	}
	if v := os.Getenv("GOOGLE_CLIENT_SECRET"); v != "" {
		cfg.Auth.GoogleClientSecret = v
	}
	if v := os.Getenv("SESSION_SECRET"); v != "" {
		cfg.Auth.SessionSecret = v
	}
	if v := os.Getenv("AUTH_ALLOWED_DOMAIN"); v != "" {
		cfg.Auth.AllowedDomain = v
	}

	return cfg, nil
}
