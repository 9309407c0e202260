package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/punchamoorthee/decoledger/internal/auth"
	"github.com/punchamoorthee/decoledger/internal/domain"
)

// Config holds the benchmark settings
var (
	targetURL   string
	concurrency int
	duration    time.Duration
	workload    string
	ledger      string
	secret      string
	deposit     string
	callers     int
)

// outcomes counts responses of the request endpoint by kind.
type outcomes struct {
	sent      atomic.Uint64
	created   atomic.Uint64
	replayed  atomic.Uint64
	underpaid atomic.Uint64
	conflicts atomic.Uint64
	errors    atomic.Uint64
}

var counts outcomes

func init() {
	flag.StringVar(&targetURL, "url", "http://localhost:8080", "API Base URL")
	flag.IntVar(&concurrency, "workers", 10, "Number of concurrent workers")
	flag.DurationVar(&duration, "duration", 30*time.Second, "Test duration")
	flag.StringVar(&workload, "workload", "uniform", "Workload type: uniform | hotspot | replay")
	flag.StringVar(&ledger, "ledger", "deco-zero.near", "Service ledger to call")
	flag.StringVar(&secret, "secret", os.Getenv("JWT_SECRET"), "JWT signing secret of the api host")
	flag.StringVar(&deposit, "deposit", "1", "Payment attached to every request")
	flag.IntVar(&callers, "callers", 100, "Number of distinct caller accounts")
}

func main() {
	flag.Parse()
	if secret == "" {
		log.Fatal("-secret or JWT_SECRET is required")
	}
	amount, err := domain.ParseAmount(deposit)
	if err != nil {
		log.Fatal(err)
	}

	tokens := make([]string, callers)
	for i := range tokens {
		tokens[i], err = auth.GenerateToken(domain.AccountID(fmt.Sprintf("bench-%d.near", i)), amount, []byte(secret), duration+time.Minute)
		if err != nil {
			log.Fatal(err)
		}
	}

	log.Printf("Starting Benchmark: %s | Workers: %d | Duration: %s", workload, concurrency, duration)

	start := time.Now()
	var wg sync.WaitGroup
	wg.Add(concurrency)

	for i := 0; i < concurrency; i++ {
		go worker(&wg, start, tokens)
	}

	wg.Wait()
	printResults(time.Since(start))
}

func worker(wg *sync.WaitGroup, start time.Time, tokens []string) {
	defer wg.Done()
	client := &http.Client{Timeout: 5 * time.Second}
	endpoint := fmt.Sprintf("%s/api/v1/service/%s/requests", targetURL, ledger)

	for time.Since(start) < duration {
		caller := rand.Intn(len(tokens))
		repo, key := generateRequest(caller)

		payload := map[string]interface{}{
			"repo_url":       repo,
			"selected_areas": []string{"legal", "governance"},
		}
		body, _ := json.Marshal(payload)

		req, _ := http.NewRequest(http.MethodPost, endpoint, bytes.NewBuffer(body))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+tokens[caller])
		req.Header.Set("Idempotency-Key", key)

		resp, err := client.Do(req)
		if err != nil {
			counts.errors.Add(1)
			continue
		}
		counts.sent.Add(1)
		counts.record(resp)
		resp.Body.Close()
	}
}

// generateRequest picks the repository and idempotency key of one request.
func generateRequest(caller int) (string, string) {
	switch workload {
	case "hotspot":
		// Hotspot: 90% of traffic targets one repository
		if rand.Float32() < 0.90 {
			return "https://github.com/deco/hot", uuid.NewString()
		}
	case "replay":
		// Replay: every caller resends one of a few keys
		n := rand.Intn(4)
		return fmt.Sprintf("https://github.com/deco/replay-%d-%d", caller, n), fmt.Sprintf("bench-%d-%d", caller, n)
	}
	return fmt.Sprintf("https://github.com/deco/repo-%d", rand.Intn(10000)), uuid.NewString()
}

func (o *outcomes) record(resp *http.Response) {
	switch {
	case resp.StatusCode == http.StatusCreated && resp.Header.Get("Idempotent-Replayed") == "true":
		o.replayed.Add(1)
	case resp.StatusCode == http.StatusCreated:
		o.created.Add(1)
	case resp.StatusCode == http.StatusPaymentRequired:
		o.underpaid.Add(1)
	case resp.StatusCode == http.StatusConflict:
		o.conflicts.Add(1)
	default:
		o.errors.Add(1)
	}
}

// report is the JSON summary written to stdout and results_<workload>.json.
type report struct {
	Workload        string  `json:"workload"`
	Ledger          string  `json:"ledger"`
	Callers         int     `json:"callers"`
	DurationSec     float64 `json:"duration_sec"`
	TotalRequests   uint64  `json:"total_requests"`
	ThroughputTPS   float64 `json:"throughput_tps"`
	Created         uint64  `json:"success_created"`
	Replayed        uint64  `json:"success_replay"`
	Underpaid       uint64  `json:"rejected_underpaid"`
	Conflicts       uint64  `json:"conflicts"`
	ConflictRatePct float64 `json:"conflict_rate_pct"`
	Errors          uint64  `json:"errors"`
}

func printResults(d time.Duration) {
	r := report{
		Workload:      workload,
		Ledger:        ledger,
		Callers:       callers,
		DurationSec:   d.Seconds(),
		TotalRequests: counts.sent.Load(),
		Created:       counts.created.Load(),
		Replayed:      counts.replayed.Load(),
		Underpaid:     counts.underpaid.Load(),
		Conflicts:     counts.conflicts.Load(),
		Errors:        counts.errors.Load(),
	}
	r.ThroughputTPS = float64(r.TotalRequests) / d.Seconds()
	if r.TotalRequests > 0 {
		r.ConflictRatePct = float64(r.Conflicts) / float64(r.TotalRequests) * 100
	}

	out, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println(string(out))

	filename := fmt.Sprintf("results_%s.json", workload)
	if err := os.WriteFile(filename, out, 0o644); err != nil {
		log.Printf("unable to save results: %v", err)
	}
}
