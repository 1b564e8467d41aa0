// Benchmark tool for replaying labelled credit profiles against Merlin.
//
// Usage:
//
//	go run ./cmd/benchmark -csv /path/to/credit.csv -url http://localhost:8080
//
// Every CSV row becomes one POST /score request with the header names as
// profile fields. The label column (Credit_Score by default) is withheld
// from the request and used to group the returned scores.
package main

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"math"
	"net/http"
	"os"
	"sort"
	"strings"
	"sync"
	"time"
)

// Sample is one labelled profile.
type Sample struct {
	Label   string
	Profile map[string]string
}

// ScoreResponse is the subset of the /score answer the benchmark reads.
type ScoreResponse struct {
	Status      string `json:"status"`
	Reason      string `json:"reason"`
	CreditScore *int   `json:"credit_score_estimate"`
	Flags       []struct {
		Rule string `json:"rule"`
	} `json:"flags"`
	SummaryStatus string `json:"summary_status"`
}

// Result is the outcome of one request.
type Result struct {
	Label    string
	Response *ScoreResponse
	Latency  time.Duration
	Err      error
}

// Report aggregates results.
type Report struct {
	Total    int
	Errors   int
	Statuses map[string]int
	Rules    map[string]int
	Summary  map[string]int

	// Scores groups credit scores by label.
	Scores map[string][]int

	Latencies []time.Duration
}

func main() {
	csvPath := flag.String("csv", "", "Path to a credit profile CSV file")
	baseURL := flag.String("url", "http://localhost:8080", "Merlin base URL")
	labelCol := flag.String("label", "Credit_Score", "Column holding the expected class (withheld from requests)")
	limit := flag.Int("limit", 1000, "Maximum profiles to send (0 = all)")
	workers := flag.Int("workers", 10, "Number of concurrent workers")
	timeout := flag.Duration("timeout", 90*time.Second, "Per-request timeout")
	verbose := flag.Bool("verbose", false, "Print each result")
	flag.Parse()

	if *csvPath == "" {
		fmt.Println("Usage: benchmark -csv /path/to/credit.csv [-url http://localhost:8080]")
		fmt.Println("\nFlags:")
		flag.PrintDefaults()
		os.Exit(1)
	}

	if err := checkHealth(*baseURL); err != nil {
		fmt.Printf("ERROR: Merlin not reachable at %s: %v\n", *baseURL, err)
		fmt.Println("\nMake sure Merlin is running:")
		fmt.Println("  go run ./cmd/merlin serve")
		os.Exit(1)
	}

	f, err := os.Open(*csvPath)
	if err != nil {
		fmt.Printf("ERROR: %v\n", err)
		os.Exit(1)
	}
	samples, err := readSamples(f, *labelCol, *limit)
	f.Close()
	if err != nil {
		fmt.Printf("ERROR: failed to read CSV: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Loaded %d profiles from %s\n", len(samples), *csvPath)

	client := &http.Client{Timeout: *timeout}
	start := time.Now()
	report := run(samples, *workers, func(s Sample) Result {
		return send(client, *baseURL, s)
	}, *verbose)

	printReport(os.Stdout, report, time.Since(start))
}

func checkHealth(baseURL string) error {
	resp, err := http.Get(baseURL + "/health")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}
	return nil
}

// readSamples reads up to limit rows. Rows with the wrong number of columns are skipped.
func readSamples(r io.Reader, labelCol string, limit int) ([]Sample, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}

	var samples []Sample
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil || len(record) != len(header) {
			continue
		}

		s := Sample{Profile: make(map[string]string, len(header))}
		for i, col := range header {
			if strings.EqualFold(col, labelCol) {
				s.Label = record[i]
				continue
			}
			s.Profile[col] = record[i]
		}
		samples = append(samples, s)

		if limit > 0 && len(samples) >= limit {
			break
		}
	}
	return samples, nil
}

func send(client *http.Client, baseURL string, s Sample) (res Result) {
	res.Label = s.Label
	start := time.Now()
	defer func() { res.Latency = time.Since(start) }()

	body, err := json.Marshal(s.Profile)
	if err != nil {
		res.Err = err
		return res
	}

	resp, err := client.Post(baseURL+"/score", "application/json", bytes.NewReader(body))
	if err != nil {
		res.Err = err
		return res
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		res.Err = fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
		return res
	}

	var out ScoreResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		res.Err = err
		return res
	}
	res.Response = &out
	return res
}

// run fans samples out to numWorkers goroutines and aggregates the results.
func run(samples []Sample, numWorkers int, do func(Sample) Result, verbose bool) *Report {
	if numWorkers < 1 {
		numWorkers = 1
	}

	work := make(chan Sample, 100)
	results := make(chan Result, 100)
	var wg sync.WaitGroup

	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for s := range work {
				results <- do(s)
			}
		}()
	}

	go func() {
		for _, s := range samples {
			work <- s
		}
		close(work)
		wg.Wait()
		close(results)
	}()

	report := &Report{
		Statuses: make(map[string]int),
		Rules:    make(map[string]int),
		Summary:  make(map[string]int),
		Scores:   make(map[string][]int),
	}
	for r := range results {
		report.add(r)
		if verbose {
			printResult(r)
		}
	}
	return report
}

func (rep *Report) add(r Result) {
	rep.Total++
	rep.Latencies = append(rep.Latencies, r.Latency)
	if r.Err != nil {
		rep.Errors++
		return
	}

	resp := r.Response
	rep.Statuses[resp.Status]++
	if resp.Reason != "" {
		rep.Rules[resp.Reason]++
	}
	for _, f := range resp.Flags {
		rep.Rules[f.Rule]++
	}
	if resp.SummaryStatus != "" {
		rep.Summary[resp.SummaryStatus]++
	}
	if resp.CreditScore != nil {
		label := r.Label
		if label == "" {
			label = "(unlabelled)"
		}
		rep.Scores[label] = append(rep.Scores[label], *resp.CreditScore)
	}
}

func printResult(r Result) {
	if r.Err != nil {
		fmt.Printf("ERROR  %-10s %v\n", r.Label, r.Err)
		return
	}
	score := "-"
	if r.Response.CreditScore != nil {
		score = fmt.Sprint(*r.Response.CreditScore)
	}
	fmt.Printf("%-8s %-10s score=%-4s %s\n", r.Response.Status, r.Label, score, r.Latency.Round(time.Millisecond))
}

// percentile returns the p-th percentile (0-100) by nearest rank.
func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	rank := int(math.Ceil(p/100*float64(len(sorted)))) - 1
	if rank < 0 {
		rank = 0
	}
	if rank >= len(sorted) {
		rank = len(sorted) - 1
	}
	return sorted[rank]
}

func mean(xs []int) float64 {
	if len(xs) == 0 {
		return 0
	}
	sum := 0
	for _, x := range xs {
		sum += x
	}
	return float64(sum) / float64(len(xs))
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func printReport(w io.Writer, rep *Report, duration time.Duration) {
	fmt.Fprintln(w, "\nBENCHMARK RESULTS")
	fmt.Fprintf(w, "\nRequests:  %d\n", rep.Total)
	fmt.Fprintf(w, "Errors:    %d\n", rep.Errors)

	fmt.Fprintln(w, "\nDecisions")
	for _, k := range sortedKeys(rep.Statuses) {
		fmt.Fprintf(w, "  %-10s %d\n", k, rep.Statuses[k])
	}

	if len(rep.Rules) > 0 {
		fmt.Fprintln(w, "\nRule matches")
		for _, k := range sortedKeys(rep.Rules) {
			fmt.Fprintf(w, "  %-30s %d\n", k, rep.Rules[k])
		}
	}

	if len(rep.Summary) > 0 {
		fmt.Fprintln(w, "\nExplanations")
		for _, k := range sortedKeys(rep.Summary) {
			fmt.Fprintf(w, "  %-12s %d\n", k, rep.Summary[k])
		}
	}

	if len(rep.Scores) > 0 {
		fmt.Fprintln(w, "\nScore by label")
		for _, k := range sortedKeys(rep.Scores) {
			s := rep.Scores[k]
			fmt.Fprintf(w, "  %-14s n=%-6d mean=%.1f\n", k, len(s), mean(s))
		}
	}

	lat := append([]time.Duration(nil), rep.Latencies...)
	sort.Slice(lat, func(i, j int) bool { return lat[i] < lat[j] })
	fmt.Fprintln(w, "\nPerformance")
	fmt.Fprintf(w, "  Duration:    %v\n", duration.Round(time.Millisecond))
	fmt.Fprintf(w, "  p50:         %v\n", percentile(lat, 50).Round(time.Millisecond))
	fmt.Fprintf(w, "  p95:         %v\n", percentile(lat, 95).Round(time.Millisecond))
	fmt.Fprintf(w, "  p99:         %v\n", percentile(lat, 99).Round(time.Millisecond))
	if rep.Total > 0 && duration > 0 {
		fmt.Fprintf(w, "  Throughput:  %.2f req/sec\n", float64(rep.Total)/duration.Seconds())
	}
	fmt.Fprintln(w)
}
