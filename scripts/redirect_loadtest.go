//go:build ignore
// +build ignore

// Redirect Load Test - validates redirect serving capacity for the promo gateway
//
// Test Scenarios:
// 1. Seed Test - create managed redirects through the admin API and resync
// 2. Redirect Throughput Test - hammer the seeded paths, expect 302s
// 3. Miss Test - unknown paths and short links must 404 cheaply
// 4. Artifact Test - feed/sitemap/robots stay fast under redirect load
// 5. Sustained Load Test - hold a production rate and watch for degradation
// 6. Spike Test - handle a sudden surge over the sustained rate
//
// Point this at a dev gateway (auth disabled, rate limiting off) with a
// scratch database. Seeded rows are deleted afterwards unless --keep-seed.
//
// Usage:
//
//	go run scripts/redirect_loadtest.go \
//	  --url="http://localhost:8080" \
//	  --host="getmecoupons.net" \
//	  --site="getmecoupons" \
//	  --test=all \
//	  --duration=60s \
//	  --entries=500 \
//	  --workers=8 \
//	  --rate=1000
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"math"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"
)

// =============================================================================
// CONFIGURATION
// =============================================================================

// RedirectLoadTestConfig defines the test configuration
type RedirectLoadTestConfig struct {
	GatewayURL      string
	Host            string // Host header, selects the site
	Site            string // site key for seeded redirects
	TestType        string // all, seed, redirect, miss, artifact, sustained, spike
	Duration        time.Duration
	Entries         int
	Workers         int
	TargetRate      float64 // redirects/second for sustained + spike baselines
	SpikeMultiplier float64
	KeepSeed        bool
}

// DefaultRedirectConfig returns sensible defaults for gateway testing
func DefaultRedirectConfig() *RedirectLoadTestConfig {
	return &RedirectLoadTestConfig{
		GatewayURL:      "http://localhost:8080",
		Host:            "getmecoupons.net",
		Site:            "getmecoupons",
		TestType:        "all",
		Duration:        time.Minute,
		Entries:         500,
		Workers:         8,
		TargetRate:      1000,
		SpikeMultiplier: 5.0,
	}
}

// =============================================================================
// METRICS COLLECTION
// =============================================================================

// RedirectTestMetrics holds all collected metrics
type RedirectTestMetrics struct {
	TestStartTime time.Time
	TestEndTime   time.Time
	TestDuration  time.Duration

	// Redirect serving
	RedirectsAttempted int64
	RedirectsServed    int64
	RedirectRate       float64 // per second
	RedirectLatencies  []time.Duration
	RedirectLatencyP50 time.Duration
	RedirectLatencyP99 time.Duration

	// Miss handling
	MissesAttempted int64
	MissesAnswered  int64
	MissLatencies   []time.Duration
	MissLatencyP50  time.Duration
	MissLatencyP99  time.Duration

	// Artifact serving
	ArtifactsFetched   int64
	ArtifactRate       float64
	ArtifactLatencies  []time.Duration
	ArtifactLatencyP99 time.Duration

	// Status code breakdown across every request made
	StatusCounts map[int]int64

	// Errors
	TotalErrors  int64
	ErrorsByType map[string]int64

	// Capacity projections
	ProjectedDailyCapacity int64
	HeadroomPercent        float64
	BottleneckComponent    string

	PhaseResults map[string]*RedirectPhaseResult

	mu sync.Mutex
}

// RedirectPhaseResult holds results for each test phase
type RedirectPhaseResult struct {
	Name      string
	Status    string // "PASS", "FAIL" or "SKIP"
	Duration  time.Duration
	Details   map[string]interface{}
	StartTime time.Time
	EndTime   time.Time
}

// NewRedirectTestMetrics creates a new metrics collector
func NewRedirectTestMetrics() *RedirectTestMetrics {
	return &RedirectTestMetrics{
		StatusCounts:      make(map[int]int64),
		ErrorsByType:      make(map[string]int64),
		PhaseResults:      make(map[string]*RedirectPhaseResult),
		RedirectLatencies: make([]time.Duration, 0, 100000),
		MissLatencies:     make([]time.Duration, 0, 100000),
		ArtifactLatencies: make([]time.Duration, 0, 100000),
	}
}

// RecordRedirect records one redirect request
func (m *RedirectTestMetrics) RecordRedirect(status int, latency time.Duration, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.RedirectsAttempted++

	if err != nil {
		m.TotalErrors++
		m.ErrorsByType["redirect"]++
		return
	}
	m.StatusCounts[status]++

	if status != http.StatusFound && status != http.StatusMovedPermanently {
		m.TotalErrors++
		m.ErrorsByType[fmt.Sprintf("redirect_status_%d", status)]++
		return
	}

	m.RedirectsServed++
	if len(m.RedirectLatencies) < 100000 {
		m.RedirectLatencies = append(m.RedirectLatencies, latency)
	}
}

// RecordMiss records one expected-404 request
func (m *RedirectTestMetrics) RecordMiss(status int, latency time.Duration, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.MissesAttempted++

	if err != nil {
		m.TotalErrors++
		m.ErrorsByType["miss"]++
		return
	}
	m.StatusCounts[status]++

	if status != http.StatusNotFound {
		m.TotalErrors++
		m.ErrorsByType[fmt.Sprintf("miss_status_%d", status)]++
		return
	}

	m.MissesAnswered++
	if len(m.MissLatencies) < 100000 {
		m.MissLatencies = append(m.MissLatencies, latency)
	}
}

// RecordArtifact records one artifact fetch
func (m *RedirectTestMetrics) RecordArtifact(status int, latency time.Duration, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err != nil {
		m.TotalErrors++
		m.ErrorsByType["artifact"]++
		return
	}
	m.StatusCounts[status]++

	if status != http.StatusOK {
		m.TotalErrors++
		m.ErrorsByType[fmt.Sprintf("artifact_status_%d", status)]++
		return
	}

	m.ArtifactsFetched++
	if len(m.ArtifactLatencies) < 100000 {
		m.ArtifactLatencies = append(m.ArtifactLatencies, latency)
	}
}

// RecordError records an error by type
func (m *RedirectTestMetrics) RecordError(errorType string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.TotalErrors++
	m.ErrorsByType[errorType]++
}

// Finalize calculates derived metrics
func (m *RedirectTestMetrics) Finalize(config *RedirectLoadTestConfig) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.TestDuration = m.TestEndTime.Sub(m.TestStartTime)

	var servingSeconds float64
	for _, name := range []string{"redirect", "sustained", "spike"} {
		if phase, ok := m.PhaseResults[name]; ok && phase.Status != "SKIP" {
			servingSeconds += phase.Duration.Seconds()
		}
	}
	if servingSeconds > 0 {
		m.RedirectRate = float64(m.RedirectsServed) / servingSeconds
	}

	if phase, ok := m.PhaseResults["artifact"]; ok && phase.Duration.Seconds() > 0 {
		m.ArtifactRate = float64(m.ArtifactsFetched) / phase.Duration.Seconds()
	}

	m.RedirectLatencyP50 = redirectPercentile(m.RedirectLatencies, 50)
	m.RedirectLatencyP99 = redirectPercentile(m.RedirectLatencies, 99)
	m.MissLatencyP50 = redirectPercentile(m.MissLatencies, 50)
	m.MissLatencyP99 = redirectPercentile(m.MissLatencies, 99)
	m.ArtifactLatencyP99 = redirectPercentile(m.ArtifactLatencies, 99)

	secondsInDay := float64(86400)
	m.ProjectedDailyCapacity = int64(m.RedirectRate * secondsInDay)

	targetDaily := config.TargetRate * secondsInDay
	if targetDaily > 0 {
		m.HeadroomPercent = ((float64(m.ProjectedDailyCapacity) - targetDaily) / targetDaily) * 100
	}

	m.BottleneckComponent = identifyRedirectBottleneck(m, config)
}

// redirectPercentile calculates the p-th percentile of durations
func redirectPercentile(durations []time.Duration, p int) time.Duration {
	if len(durations) == 0 {
		return 0
	}

	sorted := make([]time.Duration, len(durations))
	copy(sorted, durations)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	idx := int(float64(len(sorted)-1) * float64(p) / 100)
	return sorted[idx]
}

// identifyRedirectBottleneck determines the system bottleneck
func identifyRedirectBottleneck(m *RedirectTestMetrics, config *RedirectLoadTestConfig) string {
	if m.RedirectRate > 0 && m.RedirectRate < config.TargetRate*0.9 {
		return "Redirect Throughput (resolver or HTTP stack)"
	}
	if m.RedirectLatencyP99 > 50*time.Millisecond {
		return fmt.Sprintf("Redirect Latency (P99 %.1fms)", m.RedirectLatencyP99.Seconds()*1000)
	}
	if m.MissLatencyP99 > 25*time.Millisecond {
		return fmt.Sprintf("Miss Latency (P99 %.1fms)", m.MissLatencyP99.Seconds()*1000)
	}
	if m.RedirectsServed > 0 && m.TotalErrors > m.RedirectsServed/100 {
		return "High Error Rate"
	}
	if m.ArtifactLatencyP99 > 100*time.Millisecond {
		return fmt.Sprintf("Artifact Serving (P99 %.1fms)", m.ArtifactLatencyP99.Seconds()*1000)
	}
	return "None identified"
}

// =============================================================================
// GATEWAY CLIENT
// =============================================================================

// SeededRedirect is one managed row created for the test
type SeededRedirect struct {
	ID   string `json:"id"`
	Path string `json:"path"`
}

// RedirectLoadTest orchestrates the gateway load test
type RedirectLoadTest struct {
	config  *RedirectLoadTestConfig
	metrics *RedirectTestMetrics
	client  *http.Client
	seeded  []SeededRedirect

	ctx    context.Context
	cancel context.CancelFunc
}

// NewRedirectLoadTest creates a new load test runner
func NewRedirectLoadTest(config *RedirectLoadTestConfig) *RedirectLoadTest {
	return &RedirectLoadTest{
		config:  config,
		metrics: NewRedirectTestMetrics(),
		client: &http.Client{
			Timeout: 10 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:        1000,
				MaxIdleConnsPerHost: 200,
				IdleConnTimeout:     90 * time.Second,
			},
			// The whole point is to look at the 3xx, never follow it
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}
}

// get fires one GET with the configured Host header and drains the body.
func (t *RedirectLoadTest) get(path string) (int, time.Duration, error) {
	req, err := http.NewRequestWithContext(t.ctx, http.MethodGet, t.config.GatewayURL+path, nil)
	if err != nil {
		return 0, 0, err
	}
	req.Host = t.config.Host

	start := time.Now()
	resp, err := t.client.Do(req)
	latency := time.Since(start)
	if err != nil {
		return 0, latency, err
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	return resp.StatusCode, latency, nil
}

// doJSON fires one JSON request against the admin API.
func (t *RedirectLoadTest) doJSON(method, path string, payload interface{}, out interface{}) (int, error) {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return 0, err
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(t.ctx, method, t.config.GatewayURL+path, body)
	if err != nil {
		return 0, err
	}
	req.Host = t.config.Host
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if out != nil && resp.StatusCode < 300 {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, err
		}
		return resp.StatusCode, nil
	}
	io.Copy(io.Discard, resp.Body)
	return resp.StatusCode, nil
}

// Initialize verifies the gateway is up before any load goes out
func (t *RedirectLoadTest) Initialize(ctx context.Context) error {
	t.ctx, t.cancel = context.WithCancel(ctx)

	log.Println("Checking gateway health...")
	status, _, err := t.get("/health")
	if err != nil {
		return fmt.Errorf("gateway unreachable at %s: %w", t.config.GatewayURL, err)
	}
	if status != http.StatusOK {
		return fmt.Errorf("gateway unhealthy: status %d from /health", status)
	}
	log.Printf("  ✓ Gateway is healthy at %s (host %s)", t.config.GatewayURL, t.config.Host)
	return nil
}

// =============================================================================
// TEST PHASES
// =============================================================================

// RunSeedTest creates managed redirects through the admin API
func (t *RedirectLoadTest) RunSeedTest() (*RedirectPhaseResult, error) {
	log.Println("\n[TEST 1] SEED TEST")
	log.Println(strings.Repeat("-", 60))

	result := &RedirectPhaseResult{
		Name:      "seed",
		StartTime: time.Now(),
		Details:   make(map[string]interface{}),
	}

	log.Printf("  Creating %d managed redirects for site %s...", t.config.Entries, t.config.Site)

	var failed int
	for i := 0; i < t.config.Entries; i++ {
		select {
		case <-t.ctx.Done():
			return result, t.ctx.Err()
		default:
		}

		payload := map[string]interface{}{
			"site":        t.config.Site,
			"path":        fmt.Sprintf("/lt/offer-%05d", i),
			"destination": fmt.Sprintf("https://partner.example/track?code=LT%05d", i),
			"notes":       "redirect_loadtest seed row",
		}

		var created SeededRedirect
		status, err := t.doJSON(http.MethodPost, "/api/v1/admin/redirects", payload, &created)
		if err != nil || status != http.StatusCreated {
			failed++
			t.metrics.RecordError("seed")
			continue
		}
		t.seeded = append(t.seeded, created)

		if (i+1)%500 == 0 {
			log.Printf("    Progress: %d created", i+1)
		}
	}

	// The table rebuilds on the next sync, not on row insert
	log.Println("  Triggering sync...")
	if status, err := t.doJSON(http.MethodPost, "/api/v1/admin/sync", nil, nil); err != nil || status != http.StatusAccepted {
		result.Status = "FAIL"
		result.Details["error"] = fmt.Sprintf("sync trigger failed (status %d, err %v)", status, err)
		return result, nil
	}

	// Wait until the table carries the seeded entries
	var tableStats struct {
		Entries int `json:"entries"`
	}
	deadline := time.Now().Add(30 * time.Second)
	for time.Now().Before(deadline) {
		if _, err := t.doJSON(http.MethodGet, "/api/v1/admin/table", nil, &tableStats); err == nil {
			if tableStats.Entries >= len(t.seeded) {
				break
			}
		}
		time.Sleep(500 * time.Millisecond)
	}

	result.EndTime = time.Now()
	result.Duration = time.Since(result.StartTime)
	result.Details["created"] = len(t.seeded)
	result.Details["failed"] = failed
	result.Details["table_entries"] = tableStats.Entries

	if failed == 0 && tableStats.Entries >= len(t.seeded) && len(t.seeded) > 0 {
		result.Status = "PASS"
		log.Printf("  ✓ PASS: %d redirects live in a %d-entry table", len(t.seeded), tableStats.Entries)
	} else {
		result.Status = "FAIL"
		log.Printf("  ✗ FAIL: created=%d failed=%d table_entries=%d", len(t.seeded), failed, tableStats.Entries)
	}

	return result, nil
}

// RunRedirectThroughputTest hammers seeded paths with concurrent workers
func (t *RedirectLoadTest) RunRedirectThroughputTest() (*RedirectPhaseResult, error) {
	log.Println("\n[TEST 2] REDIRECT THROUGHPUT TEST")
	log.Println(strings.Repeat("-", 60))

	result := &RedirectPhaseResult{
		Name:      "redirect",
		StartTime: time.Now(),
		Details:   make(map[string]interface{}),
	}

	if len(t.seeded) == 0 {
		result.Status = "SKIP"
		result.Details["reason"] = "no seeded redirects (run the seed phase first)"
		return result, nil
	}

	testDuration := 30 * time.Second
	if t.config.Duration < testDuration {
		testDuration = t.config.Duration
	}
	log.Printf("  Hammering %d paths with %d workers for %v...", len(t.seeded), t.config.Workers, testDuration)

	var served int64
	var wg sync.WaitGroup

	startTime := time.Now()
	deadline := startTime.Add(testDuration)

	for i := 0; i < t.config.Workers; i++ {
		wg.Add(1)
		go func(seed int64) {
			defer wg.Done()
			rng := rand.New(rand.NewSource(seed))

			for time.Now().Before(deadline) {
				select {
				case <-t.ctx.Done():
					return
				default:
				}

				path := t.seeded[rng.Intn(len(t.seeded))].Path
				status, latency, err := t.get(path)
				t.metrics.RecordRedirect(status, latency, err)
				if err == nil && (status == http.StatusFound || status == http.StatusMovedPermanently) {
					atomic.AddInt64(&served, 1)
				}
			}
		}(int64(i) + time.Now().UnixNano())
	}

	// Monitor progress
	ticker := time.NewTicker(10 * time.Second)
	go func() {
		for {
			select {
			case <-t.ctx.Done():
				return
			case <-ticker.C:
				if time.Now().After(deadline) {
					return
				}
				elapsed := time.Since(startTime)
				rate := float64(atomic.LoadInt64(&served)) / elapsed.Seconds()
				log.Printf("    Progress: %d served (%.0f/sec)", atomic.LoadInt64(&served), rate)
			}
		}
	}()

	wg.Wait()
	ticker.Stop()

	elapsed := time.Since(startTime)
	actualRate := float64(served) / elapsed.Seconds()

	result.EndTime = time.Now()
	result.Duration = elapsed
	result.Details["served"] = served
	result.Details["rate"] = actualRate
	result.Details["target_rate"] = t.config.TargetRate

	if actualRate >= t.config.TargetRate*0.9 {
		result.Status = "PASS"
		log.Printf("  ✓ PASS: %.0f redirects/second (target: %.0f)", actualRate, t.config.TargetRate)
	} else {
		result.Status = "FAIL"
		log.Printf("  ✗ FAIL: %.0f redirects/second (target: %.0f)", actualRate, t.config.TargetRate)
	}

	return result, nil
}

// RunMissTest verifies unknown paths and short links 404 cheaply
func (t *RedirectLoadTest) RunMissTest() (*RedirectPhaseResult, error) {
	log.Println("\n[TEST 3] MISS TEST")
	log.Println(strings.Repeat("-", 60))

	result := &RedirectPhaseResult{
		Name:      "miss",
		StartTime: time.Now(),
		Details:   make(map[string]interface{}),
	}

	testDuration := 15 * time.Second
	log.Printf("  Firing unknown paths and slugs for %v...", testDuration)

	var answered int64
	var wg sync.WaitGroup

	startTime := time.Now()
	deadline := startTime.Add(testDuration)

	for i := 0; i < t.config.Workers; i++ {
		wg.Add(1)
		go func(seed int64) {
			defer wg.Done()
			rng := rand.New(rand.NewSource(seed))

			for time.Now().Before(deadline) {
				select {
				case <-t.ctx.Done():
					return
				default:
				}

				var path string
				if rng.Intn(2) == 0 {
					path = fmt.Sprintf("/never-configured-%d", rng.Intn(1_000_000))
				} else {
					path = fmt.Sprintf("/go/no-such-promo-%d", rng.Intn(1_000_000))
				}
				status, latency, err := t.get(path)
				t.metrics.RecordMiss(status, latency, err)
				if err == nil && status == http.StatusNotFound {
					atomic.AddInt64(&answered, 1)
				}
			}
		}(int64(i) + time.Now().UnixNano())
	}

	wg.Wait()

	elapsed := time.Since(startTime)
	p99 := redirectPercentile(t.metrics.MissLatencies, 99)

	result.EndTime = time.Now()
	result.Duration = elapsed
	result.Details["answered"] = answered
	result.Details["rate"] = float64(answered) / elapsed.Seconds()
	result.Details["latency_p99"] = p99.String()

	if answered > 0 && p99 <= 25*time.Millisecond {
		result.Status = "PASS"
		log.Printf("  ✓ PASS: %d misses answered, P99 %v", answered, p99)
	} else {
		result.Status = "FAIL"
		log.Printf("  ✗ FAIL: %d misses answered, P99 %v (target: <25ms)", answered, p99)
	}

	return result, nil
}

// RunArtifactTest fetches feeds and sitemaps while redirects flow
func (t *RedirectLoadTest) RunArtifactTest() (*RedirectPhaseResult, error) {
	log.Println("\n[TEST 4] ARTIFACT TEST")
	log.Println(strings.Repeat("-", 60))

	result := &RedirectPhaseResult{
		Name:      "artifact",
		StartTime: time.Now(),
		Details:   make(map[string]interface{}),
	}

	artifacts := []string{"/feed.xml", "/podcast.xml", "/sitemap.xml", "/robots.txt"}
	testDuration := 15 * time.Second
	log.Printf("  Fetching %v for %v with background redirect load...", artifacts, testDuration)

	var wg sync.WaitGroup
	startTime := time.Now()
	deadline := startTime.Add(testDuration)

	// Half the workers keep redirect pressure on, the rest fetch artifacts
	redirectWorkers := t.config.Workers / 2
	if redirectWorkers < 1 || len(t.seeded) == 0 {
		redirectWorkers = 0
	}

	for i := 0; i < redirectWorkers; i++ {
		wg.Add(1)
		go func(seed int64) {
			defer wg.Done()
			rng := rand.New(rand.NewSource(seed))
			for time.Now().Before(deadline) {
				select {
				case <-t.ctx.Done():
					return
				default:
				}
				path := t.seeded[rng.Intn(len(t.seeded))].Path
				status, latency, err := t.get(path)
				t.metrics.RecordRedirect(status, latency, err)
			}
		}(int64(i) + time.Now().UnixNano())
	}

	var fetched int64
	for i := redirectWorkers; i < t.config.Workers; i++ {
		wg.Add(1)
		go func(seed int64) {
			defer wg.Done()
			rng := rand.New(rand.NewSource(seed))
			for time.Now().Before(deadline) {
				select {
				case <-t.ctx.Done():
					return
				default:
				}
				status, latency, err := t.get(artifacts[rng.Intn(len(artifacts))])
				t.metrics.RecordArtifact(status, latency, err)
				if err == nil && status == http.StatusOK {
					atomic.AddInt64(&fetched, 1)
				}
			}
		}(int64(i) + time.Now().UnixNano())
	}

	wg.Wait()

	elapsed := time.Since(startTime)
	p99 := redirectPercentile(t.metrics.ArtifactLatencies, 99)

	result.EndTime = time.Now()
	result.Duration = elapsed
	result.Details["fetched"] = fetched
	result.Details["rate"] = float64(fetched) / elapsed.Seconds()
	result.Details["latency_p99"] = p99.String()

	if fetched > 0 && p99 <= 100*time.Millisecond {
		result.Status = "PASS"
		log.Printf("  ✓ PASS: %d artifacts served, P99 %v", fetched, p99)
	} else {
		result.Status = "FAIL"
		log.Printf("  ✗ FAIL: %d artifacts served, P99 %v (target: <100ms)", fetched, p99)
	}

	return result, nil
}

// RunSustainedLoadTest holds the target rate for the full duration
func (t *RedirectLoadTest) RunSustainedLoadTest() (*RedirectPhaseResult, error) {
	log.Println("\n[TEST 5] SUSTAINED LOAD TEST")
	log.Println(strings.Repeat("-", 60))

	result := &RedirectPhaseResult{
		Name:      "sustained",
		StartTime: time.Now(),
		Details:   make(map[string]interface{}),
	}

	if len(t.seeded) == 0 {
		result.Status = "SKIP"
		result.Details["reason"] = "no seeded redirects"
		return result, nil
	}

	log.Printf("  Target rate: %.0f redirects/second for %v", t.config.TargetRate, t.config.Duration)

	startTime := time.Now()
	deadline := startTime.Add(t.config.Duration)

	var totalServed int64
	var samples []float64
	var samplesMu sync.Mutex

	var wg sync.WaitGroup
	perWorker := t.config.TargetRate / float64(t.config.Workers)

	for i := 0; i < t.config.Workers; i++ {
		wg.Add(1)
		go func(seed int64) {
			defer wg.Done()
			rng := rand.New(rand.NewSource(seed))
			ticker := time.NewTicker(time.Duration(float64(time.Second) / perWorker))
			defer ticker.Stop()

			for time.Now().Before(deadline) {
				select {
				case <-t.ctx.Done():
					return
				case <-ticker.C:
					path := t.seeded[rng.Intn(len(t.seeded))].Path
					status, latency, err := t.get(path)
					t.metrics.RecordRedirect(status, latency, err)
					if err == nil && (status == http.StatusFound || status == http.StatusMovedPermanently) {
						atomic.AddInt64(&totalServed, 1)
					}
				}
			}
		}(int64(i) + time.Now().UnixNano())
	}

	// Watch for degradation over the run
	monitorTicker := time.NewTicker(10 * time.Second)
	go func() {
		for {
			select {
			case <-t.ctx.Done():
				return
			case <-monitorTicker.C:
				if time.Now().After(deadline) {
					return
				}
				elapsed := time.Since(startTime)
				rate := float64(atomic.LoadInt64(&totalServed)) / elapsed.Seconds()
				samplesMu.Lock()
				samples = append(samples, rate)
				samplesMu.Unlock()
				log.Printf("    [%.0fs] Rate: %.0f/sec", elapsed.Seconds(), rate)
			}
		}
	}()

	wg.Wait()
	monitorTicker.Stop()

	elapsed := time.Since(startTime)
	actualRate := float64(totalServed) / elapsed.Seconds()

	degradation := 0.0
	samplesMu.Lock()
	if len(samples) >= 2 && samples[0] > 0 {
		degradation = (samples[0] - samples[len(samples)-1]) / samples[0] * 100
	}
	samplesMu.Unlock()

	result.EndTime = time.Now()
	result.Duration = elapsed
	result.Details["total_served"] = totalServed
	result.Details["average_rate"] = actualRate
	result.Details["target_rate"] = t.config.TargetRate
	result.Details["degradation_percent"] = degradation

	if actualRate >= t.config.TargetRate*0.9 && degradation < 10 {
		result.Status = "PASS"
		log.Printf("  ✓ PASS: %.0f/sec sustained (%.1f%% degradation)", actualRate, degradation)
	} else {
		result.Status = "FAIL"
		log.Printf("  ✗ FAIL: %.0f/sec (target: %.0f), %.1f%% degradation", actualRate, t.config.TargetRate, degradation)
	}

	return result, nil
}

// RunSpikeTest pushes a burst over the sustained rate and checks recovery
func (t *RedirectLoadTest) RunSpikeTest() (*RedirectPhaseResult, error) {
	log.Println("\n[TEST 6] SPIKE TEST")
	log.Println(strings.Repeat("-", 60))

	result := &RedirectPhaseResult{
		Name:      "spike",
		StartTime: time.Now(),
		Details:   make(map[string]interface{}),
	}

	if len(t.seeded) == 0 {
		result.Status = "SKIP"
		result.Details["reason"] = "no seeded redirects"
		return result, nil
	}

	baselineRate := t.config.TargetRate / 2
	spikeRate := baselineRate * t.config.SpikeMultiplier
	log.Printf("  Baseline: %.0f/sec, Spike: %.0f/sec (%.0fx)", baselineRate, spikeRate, t.config.SpikeMultiplier)

	log.Println("  Running baseline...")
	baselineServed := t.runAtRate(15*time.Second, baselineRate)

	log.Println("  Triggering spike...")
	spikeStart := time.Now()
	spikeServed := t.runAtRate(15*time.Second, spikeRate)
	spikeActualRate := float64(spikeServed) / time.Since(spikeStart).Seconds()

	log.Println("  Recovery period...")
	recoveryStart := time.Now()
	recoveryServed := t.runAtRate(15*time.Second, baselineRate)
	recoveryRate := float64(recoveryServed) / time.Since(recoveryStart).Seconds()

	result.EndTime = time.Now()
	result.Duration = time.Since(result.StartTime)
	result.Details["baseline_served"] = baselineServed
	result.Details["spike_served"] = spikeServed
	result.Details["spike_actual_rate"] = spikeActualRate
	result.Details["recovery_rate"] = recoveryRate
	result.Details["spike_multiplier"] = t.config.SpikeMultiplier

	spikeSuccess := spikeActualRate >= spikeRate*0.8
	recoverySuccess := recoveryRate >= baselineRate*0.9

	if spikeSuccess && recoverySuccess {
		result.Status = "PASS"
		log.Printf("  ✓ PASS: Handled %.0fx spike, recovered to %.0f/sec", t.config.SpikeMultiplier, recoveryRate)
	} else {
		result.Status = "FAIL"
		log.Printf("  ✗ FAIL: Spike handling: %v, Recovery: %v", spikeSuccess, recoverySuccess)
	}

	return result, nil
}

// runAtRate fires redirects at a target rate for a duration
func (t *RedirectLoadTest) runAtRate(duration time.Duration, targetRate float64) int64 {
	var served int64
	var wg sync.WaitGroup

	deadline := time.Now().Add(duration)
	perWorker := targetRate / float64(t.config.Workers)

	for i := 0; i < t.config.Workers; i++ {
		wg.Add(1)
		go func(seed int64) {
			defer wg.Done()
			rng := rand.New(rand.NewSource(seed))
			ticker := time.NewTicker(time.Duration(float64(time.Second) / perWorker))
			defer ticker.Stop()

			for time.Now().Before(deadline) {
				select {
				case <-t.ctx.Done():
					return
				case <-ticker.C:
					path := t.seeded[rng.Intn(len(t.seeded))].Path
					status, latency, err := t.get(path)
					t.metrics.RecordRedirect(status, latency, err)
					if err == nil && (status == http.StatusFound || status == http.StatusMovedPermanently) {
						atomic.AddInt64(&served, 1)
					}
				}
			}
		}(int64(i) + time.Now().UnixNano())
	}

	wg.Wait()
	return served
}

// Run executes all test phases
func (t *RedirectLoadTest) Run(ctx context.Context) error {
	t.metrics.TestStartTime = time.Now()

	log.Println("\n" + strings.Repeat("=", 80))
	log.Println("                    STARTING REDIRECT LOAD TEST")
	log.Println(strings.Repeat("=", 80))
	log.Printf("Gateway: %s (host %s, site %s)\n", t.config.GatewayURL, t.config.Host, t.config.Site)
	log.Printf("Entries: %d, Workers: %d, Target: %.0f/sec over %v\n",
		t.config.Entries, t.config.Workers, t.config.TargetRate, t.config.Duration)
	log.Println(strings.Repeat("=", 80))

	testTypes := []string{}
	switch t.config.TestType {
	case "all":
		testTypes = []string{"seed", "redirect", "miss", "artifact", "sustained", "spike"}
	default:
		testTypes = strings.Split(t.config.TestType, ",")
	}

	for _, testType := range testTypes {
		select {
		case <-t.ctx.Done():
			log.Printf("Test interrupted during: %s", testType)
			return t.ctx.Err()
		default:
		}

		var result *RedirectPhaseResult
		var err error

		switch strings.TrimSpace(testType) {
		case "seed":
			result, err = t.RunSeedTest()
		case "redirect":
			result, err = t.RunRedirectThroughputTest()
		case "miss":
			result, err = t.RunMissTest()
		case "artifact":
			result, err = t.RunArtifactTest()
		case "sustained":
			result, err = t.RunSustainedLoadTest()
		case "spike":
			result, err = t.RunSpikeTest()
		default:
			continue
		}

		if err != nil {
			log.Printf("Phase %s error: %v", testType, err)
			result = &RedirectPhaseResult{
				Name:   testType,
				Status: "FAIL",
				Details: map[string]interface{}{
					"error": err.Error(),
				},
			}
		}
		t.metrics.PhaseResults[strings.TrimSpace(testType)] = result
	}

	t.metrics.TestEndTime = time.Now()
	t.metrics.Finalize(t.config)

	return nil
}

// Cleanup deletes the seeded rows and resyncs the table
func (t *RedirectLoadTest) Cleanup() {
	log.Println("\nCleaning up...")

	if t.config.KeepSeed {
		log.Printf("  - Keeping %d seeded redirects (--keep-seed)", len(t.seeded))
		return
	}

	// Cleanup runs after cancel on interrupt, so use a fresh context
	t.ctx = context.Background()

	var deleted int
	for _, row := range t.seeded {
		status, err := t.doJSON(http.MethodDelete, "/api/v1/admin/redirects/"+row.ID, nil, nil)
		if err == nil && status == http.StatusNoContent {
			deleted++
		}
	}
	if len(t.seeded) > 0 {
		t.doJSON(http.MethodPost, "/api/v1/admin/sync", nil, nil)
	}
	log.Printf("  ✓ Deleted %d/%d seeded redirects", deleted, len(t.seeded))
}

// GenerateReport produces the final test report
func (t *RedirectLoadTest) GenerateReport() string {
	m := t.metrics
	c := t.config

	var buf bytes.Buffer
	w := func(format string, args ...interface{}) {
		fmt.Fprintf(&buf, format+"\n", args...)
	}

	w("")
	w(strings.Repeat("=", 80))
	w("                    REDIRECT LOAD TEST REPORT")
	w(strings.Repeat("=", 80))
	w("")
	w("Test Configuration:")
	w("  Gateway:          %s", c.GatewayURL)
	w("  Site:             %s (host %s)", c.Site, c.Host)
	w("  Test Type:        %s", c.TestType)
	w("  Duration:         %v", m.TestDuration.Round(time.Second))
	w("  Seeded Entries:   %d", len(t.seeded))
	w("  Workers:          %d", c.Workers)
	w("")

	if m.RedirectsAttempted > 0 {
		w("REDIRECT PERFORMANCE")
		w(strings.Repeat("-", 40))
		w("  Served:           %d / %d (%.1f%%)",
			m.RedirectsServed, m.RedirectsAttempted,
			float64(m.RedirectsServed)/float64(m.RedirectsAttempted)*100)
		w("  Rate:             %.0f redirects/second", m.RedirectRate)
		w("  Latency P50:      %v", m.RedirectLatencyP50)
		w("  Latency P99:      %v", m.RedirectLatencyP99)
		w("")
	}

	if m.MissesAttempted > 0 {
		w("MISS PERFORMANCE")
		w(strings.Repeat("-", 40))
		w("  Answered:         %d / %d", m.MissesAnswered, m.MissesAttempted)
		w("  Latency P50:      %v", m.MissLatencyP50)
		w("  Latency P99:      %v", m.MissLatencyP99)
		w("")
	}

	if m.ArtifactsFetched > 0 {
		w("ARTIFACT PERFORMANCE")
		w(strings.Repeat("-", 40))
		w("  Fetched:          %d", m.ArtifactsFetched)
		w("  Rate:             %.0f artifacts/second", m.ArtifactRate)
		w("  Latency P99:      %v", m.ArtifactLatencyP99)
		w("")
	}

	if len(m.StatusCounts) > 0 {
		w("STATUS BREAKDOWN")
		w(strings.Repeat("-", 40))
		statuses := make([]int, 0, len(m.StatusCounts))
		for status := range m.StatusCounts {
			statuses = append(statuses, status)
		}
		sort.Ints(statuses)
		for _, status := range statuses {
			w("  %d:              %d", status, m.StatusCounts[status])
		}
		w("")
	}

	w("CAPACITY PROJECTIONS")
	w(strings.Repeat("-", 40))
	w("  Daily Capacity:   ~%dM redirects", m.ProjectedDailyCapacity/1_000_000)
	w("  Sustained Rate:   ~%.0f/second", m.RedirectRate)
	if m.HeadroomPercent >= 0 {
		w("  Headroom:         %.1f%% above target", m.HeadroomPercent)
	} else {
		w("  Deficit:          %.1f%% below target", math.Abs(m.HeadroomPercent))
	}
	w("  Bottleneck:       %s", m.BottleneckComponent)
	w("")

	if m.TotalErrors > 0 {
		w("ERRORS SUMMARY")
		w(strings.Repeat("-", 40))
		w("  Total Errors:     %d", m.TotalErrors)
		for errType, count := range m.ErrorsByType {
			w("    %-22s  %d", errType+":", count)
		}
		w("")
	}

	w(strings.Repeat("=", 80))

	allPass := true
	for _, phase := range m.PhaseResults {
		if phase.Status == "FAIL" {
			allPass = false
			break
		}
	}

	if allPass {
		w("OVERALL: PASS - Gateway can handle the target redirect traffic")
	} else {
		w("OVERALL: FAIL - Gateway does not meet redirect load targets")
		w("")
		w("Recommendations:")
		if m.BottleneckComponent != "None identified" {
			w("  - Address bottleneck: %s", m.BottleneckComponent)
		}
		if m.TotalErrors > 0 {
			w("  - Investigate %d errors that occurred during test", m.TotalErrors)
		}
	}
	w(strings.Repeat("=", 80))

	return buf.String()
}

// =============================================================================
// MAIN
// =============================================================================

func main() {
	config := DefaultRedirectConfig()

	var durationStr string

	flag.StringVar(&config.GatewayURL, "url", config.GatewayURL,
		"Gateway base URL")
	flag.StringVar(&config.Host, "host", config.Host,
		"Host header to send (selects the site)")
	flag.StringVar(&config.Site, "site", config.Site,
		"Site key for seeded managed redirects")
	flag.StringVar(&config.TestType, "test", config.TestType,
		"Test type: all, seed, redirect, miss, artifact, sustained, spike")
	flag.StringVar(&durationStr, "duration", "60s",
		"Sustained test duration (e.g., 60s, 5m)")
	flag.IntVar(&config.Entries, "entries", config.Entries,
		"Number of managed redirects to seed")
	flag.IntVar(&config.Workers, "workers", config.Workers,
		"Number of worker goroutines")
	flag.Float64Var(&config.TargetRate, "rate", config.TargetRate,
		"Target redirects/second for sustained load")
	flag.Float64Var(&config.SpikeMultiplier, "spike-multiplier", config.SpikeMultiplier,
		"Spike multiplier for spike test")
	flag.BoolVar(&config.KeepSeed, "keep-seed", config.KeepSeed,
		"Leave seeded redirects in place after the test")

	flag.Parse()

	if d, err := time.ParseDuration(durationStr); err == nil {
		config.Duration = d
	}

	fmt.Println()
	fmt.Println("╔══════════════════════════════════════════════════════════════════════════════╗")
	fmt.Println("║                    PROMO GATEWAY REDIRECT LOAD TEST                           ║")
	fmt.Println("╚══════════════════════════════════════════════════════════════════════════════╝")
	fmt.Println()

	runner := NewRedirectLoadTest(config)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		log.Println("\nReceived interrupt signal, shutting down gracefully...")
		cancel()
	}()

	if err := runner.Initialize(ctx); err != nil {
		log.Fatalf("Failed to initialize: %v", err)
	}
	defer runner.Cleanup()

	if err := runner.Run(ctx); err != nil && err != context.Canceled {
		log.Printf("Test error: %v", err)
	}

	report := runner.GenerateReport()
	fmt.Println(report)

	allPass := true
	for _, phase := range runner.metrics.PhaseResults {
		if phase.Status == "FAIL" {
			allPass = false
			break
		}
	}

	if !allPass {
		os.Exit(1)
	}
}
