// Command loadgen replays a Zipf-skewed mix of layer requests against a
// running opendata-map server and reports latency percentiles, to compare
// runs with and without the feature cache.
package main

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"math/rand"
	"net"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

type config struct {
	BaseURL        string
	Datasets       string
	Years          string
	Resolutions    string
	Concurrency    int
	Duration       time.Duration
	ZipfS          float64
	ZipfV          float64
	OutputPrefix   string
	RequestTimeout time.Duration
	Seed           int64
}

func loadConfig() config {
	var cfg config
	flag.StringVar(&cfg.BaseURL, "target", "http://localhost:8090", "opendata-map base URL")
	flag.StringVar(&cfg.Datasets, "datasets", "outages,rat_sightings,projects,ev_stations", "comma-separated datasets")
	flag.StringVar(&cfg.Years, "years", "all,2024,2023", "comma-separated year filters")
	flag.StringVar(&cfg.Resolutions, "res", "7,8,9", "comma-separated H3 resolutions (raw points are always included)")
	flag.IntVar(&cfg.Concurrency, "concurrency", 16, "concurrent workers")
	flag.DurationVar(&cfg.Duration, "duration", 60*time.Second, "test duration")
	flag.Float64Var(&cfg.ZipfS, "zipf-s", 1.3, "Zipf parameter s (>1)")
	flag.Float64Var(&cfg.ZipfV, "zipf-v", 1.0, "Zipf parameter v (>=1)")
	flag.StringVar(&cfg.OutputPrefix, "out", "results/loadgen", "output file prefix (JSON/CSV)")
	flag.DurationVar(&cfg.RequestTimeout, "timeout", 30*time.Second, "per-request timeout")
	flag.Int64Var(&cfg.Seed, "seed", 0, "workload seed (0 = time based)")
	flag.Parse()
	return cfg
}

// one sample per request
type sample struct {
	Timestamp time.Time
	Latency   time.Duration
	Status    int
	Bytes     int64
	ErrorMsg  string
	Target    string
}

type summary struct {
	StartTime     time.Time `json:"start"`
	EndTime       time.Time `json:"end"`
	DurationSec   float64   `json:"duration_sec"`
	TotalRequests int64     `json:"total"`
	SuccessCount  int64     `json:"success"`
	ErrorCount    int64     `json:"errors"`
	ThroughputRPS float64   `json:"throughput_rps"`
	P50Ms         float64   `json:"p50_ms"`
	P95Ms         float64   `json:"p95_ms"`
	P99Ms         float64   `json:"p99_ms"`
	Concurrency   int       `json:"concurrency"`
	ZipfS         float64   `json:"zipf_s"`
	ZipfV         float64   `json:"zipf_v"`
	Targets       int       `json:"targets"`
	BaseURL       string    `json:"target"`
	Seed          int64     `json:"seed"`
}

type aggregate struct {
	total   int64
	success int64
	errors  int64
	latMs   []float64
}

func main() {
	cfg := loadConfig()
	base, err := url.Parse(cfg.BaseURL)
	if err != nil || (base.Scheme != "http" && base.Scheme != "https") {
		log.Fatalf("bad -target %q", cfg.BaseURL)
	}
	resolutions, err := parseResolutions(cfg.Resolutions)
	if err != nil {
		log.Fatal(err)
	}
	if cfg.ZipfS <= 1 || cfg.ZipfV < 1 || cfg.Concurrency < 1 {
		log.Fatal("need -zipf-s > 1, -zipf-v >= 1 and -concurrency >= 1")
	}
	if cfg.Seed == 0 {
		cfg.Seed = time.Now().UnixNano()
	}
	targets := makeTargets(splitList(cfg.Datasets), splitList(cfg.Years), resolutions, rand.New(rand.NewSource(cfg.Seed)))
	if len(targets) == 0 {
		log.Fatal("no targets: check -datasets and -years")
	}

	if err := os.MkdirAll(filepath.Dir(cfg.OutputPrefix), 0o750); err != nil {
		log.Fatalf("mkdir results: %v", err)
	}
	prefix := fmt.Sprintf("%s_%s", cfg.OutputPrefix, time.Now().UTC().Format("20060102_150405Z"))
	csvPath, jsonPath := prefix+"_samples.csv", prefix+"_summary.json"
	csvFile, err := os.Create(filepath.Clean(csvPath))
	if err != nil {
		log.Fatalf("open csv: %v", err)
	}
	defer func() { _ = csvFile.Close() }()

	httpClient := &http.Client{
		Transport: &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			DialContext:         (&net.Dialer{Timeout: 4 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
			MaxIdleConns:        256,
			MaxIdleConnsPerHost: 256,
			IdleConnTimeout:     90 * time.Second,
		},
		Timeout: cfg.RequestTimeout,
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Duration)
	defer cancel()

	samples := make(chan sample, 4096)
	results := make(chan aggregate, 1)
	go collect(csv.NewWriter(csvFile), samples, results)

	start := time.Now()
	log.Printf("loadgen start target=%s dur=%s conc=%d zipf(s=%.2f,v=%.2f) targets=%d seed=%d",
		cfg.BaseURL, cfg.Duration, cfg.Concurrency, cfg.ZipfS, cfg.ZipfV, len(targets), cfg.Seed)

	var wg sync.WaitGroup
	for id := range cfg.Concurrency {
		wg.Add(1)
		go func() {
			defer wg.Done()
			worker(ctx, httpClient, base, targets, cfg, int64(id), samples)
		}()
	}
	go func() {
		wg.Wait()
		close(samples)
	}()

	agg := <-results
	end := time.Now()
	elapsed := end.Sub(start).Seconds()

	sort.Float64s(agg.latMs)
	sum := summary{
		StartTime:     start.UTC(),
		EndTime:       end.UTC(),
		DurationSec:   elapsed,
		TotalRequests: agg.total,
		SuccessCount:  agg.success,
		ErrorCount:    agg.errors,
		ThroughputRPS: float64(agg.total) / elapsed,
		P50Ms:         percentile(agg.latMs, 50),
		P95Ms:         percentile(agg.latMs, 95),
		P99Ms:         percentile(agg.latMs, 99),
		Concurrency:   cfg.Concurrency,
		ZipfS:         cfg.ZipfS,
		ZipfV:         cfg.ZipfV,
		Targets:       len(targets),
		BaseURL:       cfg.BaseURL,
		Seed:          cfg.Seed,
	}
	if f, err := os.Create(filepath.Clean(jsonPath)); err == nil {
		enc := json.NewEncoder(f)
		enc.SetIndent("", "  ")
		_ = enc.Encode(sum)
		_ = f.Close()
	}

	log.Printf("done: total=%d succ=%d err=%d thr=%.2f rps p50=%.1fms p95=%.1fms p99=%.1fms",
		sum.TotalRequests, sum.SuccessCount, sum.ErrorCount, sum.ThroughputRPS, sum.P50Ms, sum.P95Ms, sum.P99Ms)
	log.Printf("wrote %s and %s", jsonPath, csvPath)
}

func worker(ctx context.Context, c *http.Client, base *url.URL, targets []target, cfg config, id int64, out chan<- sample) {
	r := rand.New(rand.NewSource(cfg.Seed + id + 1))
	zipf := rand.NewZipf(r, cfg.ZipfS, cfg.ZipfV, uint64(len(targets)-1))
	for ctx.Err() == nil {
		t := targets[zipf.Uint64()]
		s := fire(ctx, c, t.URL(base))
		s.Target = t.String()
		select {
		case out <- s:
		case <-ctx.Done():
			return
		}
	}
}

func fire(ctx context.Context, c *http.Client, u string) sample {
	start := time.Now()
	s := sample{Timestamp: start}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		s.ErrorMsg = err.Error()
		return s
	}
	req.Header.Set("Accept", "application/geo+json")
	resp, err := c.Do(req)
	if err != nil {
		s.Latency = time.Since(start)
		s.ErrorMsg = err.Error()
		return s
	}
	s.Bytes, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
	s.Latency = time.Since(start)
	s.Status = resp.StatusCode
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		s.ErrorMsg = fmt.Sprintf("status=%d", resp.StatusCode)
	}
	return s
}

func collect(w *csv.Writer, in <-chan sample, done chan<- aggregate) {
	_ = w.Write([]string{"timestamp", "latency_ms", "status", "bytes", "error", "target"})
	var agg aggregate
	for s := range in {
		agg.total++
		ms := float64(s.Latency.Microseconds()) / 1000.0
		if s.ErrorMsg == "" {
			agg.success++
			agg.latMs = append(agg.latMs, ms)
		} else {
			agg.errors++
		}
		_ = w.Write([]string{
			s.Timestamp.UTC().Format(time.RFC3339Nano),
			fmt.Sprintf("%.3f", ms),
			fmt.Sprintf("%d", s.Status),
			fmt.Sprintf("%d", s.Bytes),
			strings.ReplaceAll(s.ErrorMsg, "\n", " "),
			s.Target,
		})
	}
	w.Flush()
	if err := w.Error(); err != nil {
		log.Printf("csv flush error: %v", err)
	}
	done <- agg
}
