package metrics

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// Simple Prometheus-style metrics for the API and the crawl pipeline.
// This is intentionally minimal and in-memory only.

var (
	mu             sync.RWMutex
	requestsTotal  = make(map[reqKey]int64)
	latencyMsSum   = make(map[latKey]int64)
	latencyMsCount = make(map[latKey]int64)

	pagesCrawled   int64
	pagesSkipped   int64
	pagesFailed    int64
	snippetsStored int64

	annotations = make(map[annKey]int64)

	jobsStarted    int64
	jobsFinished   = make(map[string]int64)
	jobDurationMs  = make(map[string]int64)
	jobDurationCnt = make(map[string]int64)

	searchRequestsTotal int64
	searchResultsTotal  int64
)

type reqKey struct {
	Method string
	Path   string
	Status int
}

type latKey struct {
	Method string
	Path   string
}

type annKey struct {
	Model   string
	Outcome string
}

// RecordRequest increments request counter and records latency.
func RecordRequest(method, path string, status int, latencyMs int64) {
	mu.Lock()
	defer mu.Unlock()

	rk := reqKey{Method: method, Path: path, Status: status}
	requestsTotal[rk]++

	lk := latKey{Method: method, Path: path}
	latencyMsSum[lk] += latencyMs
	latencyMsCount[lk]++
}

// RecordPage tallies one page outcome from the crawl pipeline.
func RecordPage(outcome string) {
	mu.Lock()
	defer mu.Unlock()
	switch outcome {
	case "crawled":
		pagesCrawled++
	case "skipped":
		pagesSkipped++
	case "failed":
		pagesFailed++
	}
}

// RecordSnippets adds newly stored snippets.
func RecordSnippets(n int) {
	if n <= 0 {
		return
	}
	mu.Lock()
	defer mu.Unlock()
	snippetsStored += int64(n)
}

// RecordAnnotation counts one LLM annotation call by model and outcome
// (ok, error, fallback).
func RecordAnnotation(model, outcome string) {
	mu.Lock()
	defer mu.Unlock()
	annotations[annKey{Model: model, Outcome: outcome}]++
}

// RecordJobStarted counts a job entering the running state.
func RecordJobStarted() {
	mu.Lock()
	defer mu.Unlock()
	jobsStarted++
}

// RecordJobFinished counts a terminal transition and its duration.
func RecordJobFinished(status string, d time.Duration) {
	mu.Lock()
	defer mu.Unlock()
	jobsFinished[status]++
	jobDurationMs[status] += d.Milliseconds()
	jobDurationCnt[status]++
}

// RecordSearch counts one snippet search and its result size.
func RecordSearch(results int) {
	mu.Lock()
	defer mu.Unlock()
	searchRequestsTotal++
	if results > 0 {
		searchResultsTotal += int64(results)
	}
}

// Export returns Prometheus-style metrics text.
func Export() string {
	mu.RLock()
	defer mu.RUnlock()

	var b strings.Builder

	b.WriteString("# HELP codedox_http_requests_total Total HTTP requests\n")
	b.WriteString("# TYPE codedox_http_requests_total counter\n")

	// Sort keys for stable output
	var reqKeys []reqKey
	for k := range requestsTotal {
		reqKeys = append(reqKeys, k)
	}
	sort.Slice(reqKeys, func(i, j int) bool {
		if reqKeys[i].Method != reqKeys[j].Method {
			return reqKeys[i].Method < reqKeys[j].Method
		}
		if reqKeys[i].Path != reqKeys[j].Path {
			return reqKeys[i].Path < reqKeys[j].Path
		}
		return reqKeys[i].Status < reqKeys[j].Status
	})

	for _, k := range reqKeys {
		fmt.Fprintf(&b, "codedox_http_requests_total{method=\"%s\",path=\"%s\",status=\"%d\"} %d\n",
			k.Method, k.Path, k.Status, requestsTotal[k])
	}

	b.WriteString("# HELP codedox_http_request_duration_ms_sum Total request duration in milliseconds\n")
	b.WriteString("# TYPE codedox_http_request_duration_ms_sum counter\n")
	b.WriteString("# HELP codedox_http_request_duration_ms_count Request count for latency metric\n")
	b.WriteString("# TYPE codedox_http_request_duration_ms_count counter\n")

	var latKeys []latKey
	for k := range latencyMsSum {
		latKeys = append(latKeys, k)
	}
	sort.Slice(latKeys, func(i, j int) bool {
		if latKeys[i].Method != latKeys[j].Method {
			return latKeys[i].Method < latKeys[j].Method
		}
		return latKeys[i].Path < latKeys[j].Path
	})

	for _, k := range latKeys {
		fmt.Fprintf(&b, "codedox_http_request_duration_ms_sum{method=\"%s\",path=\"%s\"} %d\n",
			k.Method, k.Path, latencyMsSum[k])
		fmt.Fprintf(&b, "codedox_http_request_duration_ms_count{method=\"%s\",path=\"%s\"} %d\n",
			k.Method, k.Path, latencyMsCount[k])
	}

	// Crawl pipeline counters
	b.WriteString("# HELP codedox_pages_crawled_total Pages fetched and ingested\n")
	b.WriteString("# TYPE codedox_pages_crawled_total counter\n")
	fmt.Fprintf(&b, "codedox_pages_crawled_total %d\n", pagesCrawled)

	b.WriteString("# HELP codedox_pages_skipped_total Pages skipped with unchanged content\n")
	b.WriteString("# TYPE codedox_pages_skipped_total counter\n")
	fmt.Fprintf(&b, "codedox_pages_skipped_total %d\n", pagesSkipped)

	b.WriteString("# HELP codedox_pages_failed_total Pages that failed to ingest\n")
	b.WriteString("# TYPE codedox_pages_failed_total counter\n")
	fmt.Fprintf(&b, "codedox_pages_failed_total %d\n", pagesFailed)

	b.WriteString("# HELP codedox_snippets_stored_total Code snippets written to storage\n")
	b.WriteString("# TYPE codedox_snippets_stored_total counter\n")
	fmt.Fprintf(&b, "codedox_snippets_stored_total %d\n", snippetsStored)

	// Annotation metrics
	b.WriteString("# HELP codedox_annotations_total LLM annotation calls by model and outcome\n")
	b.WriteString("# TYPE codedox_annotations_total counter\n")

	var annKeys []annKey
	for k := range annotations {
		annKeys = append(annKeys, k)
	}
	sort.Slice(annKeys, func(i, j int) bool {
		if annKeys[i].Model != annKeys[j].Model {
			return annKeys[i].Model < annKeys[j].Model
		}
		return annKeys[i].Outcome < annKeys[j].Outcome
	})

	for _, k := range annKeys {
		fmt.Fprintf(&b, "codedox_annotations_total{model=\"%s\",outcome=\"%s\"} %d\n",
			k.Model, k.Outcome, annotations[k])
	}

	// Job metrics
	b.WriteString("# HELP codedox_jobs_started_total Crawl jobs started\n")
	b.WriteString("# TYPE codedox_jobs_started_total counter\n")
	fmt.Fprintf(&b, "codedox_jobs_started_total %d\n", jobsStarted)

	b.WriteString("# HELP codedox_jobs_finished_total Crawl jobs by terminal status\n")
	b.WriteString("# TYPE codedox_jobs_finished_total counter\n")
	b.WriteString("# HELP codedox_job_duration_ms_sum Total job duration in milliseconds\n")
	b.WriteString("# TYPE codedox_job_duration_ms_sum counter\n")
	b.WriteString("# HELP codedox_job_duration_ms_count Job count for duration metric\n")
	b.WriteString("# TYPE codedox_job_duration_ms_count counter\n")

	var statuses []string
	for s := range jobsFinished {
		statuses = append(statuses, s)
	}
	sort.Strings(statuses)
	for _, s := range statuses {
		fmt.Fprintf(&b, "codedox_jobs_finished_total{status=\"%s\"} %d\n", s, jobsFinished[s])
		fmt.Fprintf(&b, "codedox_job_duration_ms_sum{status=\"%s\"} %d\n", s, jobDurationMs[s])
		fmt.Fprintf(&b, "codedox_job_duration_ms_count{status=\"%s\"} %d\n", s, jobDurationCnt[s])
	}

	// Search metrics
	b.WriteString("# HELP codedox_search_requests_total Snippet search requests\n")
	b.WriteString("# TYPE codedox_search_requests_total counter\n")
	fmt.Fprintf(&b, "codedox_search_requests_total %d\n", searchRequestsTotal)

	b.WriteString("# HELP codedox_search_results_total Snippet search results returned\n")
	b.WriteString("# TYPE codedox_search_results_total counter\n")
	fmt.Fprintf(&b, "codedox_search_results_total %d\n", searchResultsTotal)

	return b.String()
}
